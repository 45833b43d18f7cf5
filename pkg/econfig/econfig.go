// Package econfig loads the engine's tunable knobs from a YAML manifest,
// the way the teacher decodes resource manifests with yaml.Unmarshal: a
// plain struct with yaml tags, no schema validation library, defaults
// applied after decode.
package econfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ELRMode is the early lock release mode, one of {none, s, sx, clv}
// per spec.md §4.5. clv is accepted as an alias of sx (see SPEC_FULL.md
// Open Questions).
type ELRMode string

const (
	ELRNone ELRMode = "none"
	ELRS    ELRMode = "s"
	ELRSX   ELRMode = "sx"
	ELRCLV  ELRMode = "clv"
)

// Normalize resolves the clv alias to sx, the mode it is implemented
// identically to.
func (m ELRMode) Normalize() ELRMode {
	if m == ELRCLV {
		return ELRSX
	}
	return m
}

// Config holds every knob enumerated in spec.md §6.
type Config struct {
	BufferPoolPages   int     `yaml:"buffer_pool_pages"`
	PageWriterCount   int     `yaml:"page_writer_count"`
	DirtyThreshold    int     `yaml:"dirty_threshold"`
	LogDir            string  `yaml:"log_dir"`
	MaxOpenLog        int     `yaml:"max_openlog"`
	OKVLPartitions    int     `yaml:"okvl_partitions"`
	OKVLPrefixLen     int     `yaml:"okvl_prefix_len"`
	OKVLUniquefierLen int     `yaml:"okvl_uniquefier_len"`
	ELRMode           ELRMode `yaml:"elr_mode"`
	LockTableSize     int     `yaml:"lock_table_size"`
	FakeDiskLatencyUS int     `yaml:"fake_disk_latency_us"`
}

// Default returns the engine's out-of-the-box configuration.
func Default() Config {
	return Config{
		BufferPoolPages:   16384,
		PageWriterCount:   4,
		DirtyThreshold:    4096,
		LogDir:            "./data/log",
		MaxOpenLog:        8,
		OKVLPartitions:    4,
		OKVLPrefixLen:     4,
		OKVLUniquefierLen: 4,
		ELRMode:           ELRSX,
		LockTableSize:     1 << 14,
		FakeDiskLatencyUS: 0,
	}
}

// Load reads and decodes a YAML manifest at path over Default(), so any
// field the manifest omits keeps its default (a field set explicitly to
// zero stays zero), validates, and rounds LockTableSize to the nearest
// prime at or above the configured value.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.LockTableSize = nextPrime(cfg.LockTableSize)
	return cfg, nil
}

// Validate rejects configurations that can never produce a working
// engine instance.
func (c Config) Validate() error {
	if c.BufferPoolPages <= 0 {
		return fmt.Errorf("buffer_pool_pages must be positive, got %d", c.BufferPoolPages)
	}
	if c.PageWriterCount <= 0 {
		return fmt.Errorf("page_writer_count must be positive, got %d", c.PageWriterCount)
	}
	if c.LogDir == "" {
		return fmt.Errorf("log_dir must not be empty")
	}
	if c.OKVLPartitions <= 0 {
		return fmt.Errorf("okvl_partitions must be positive, got %d", c.OKVLPartitions)
	}
	switch c.ELRMode.Normalize() {
	case ELRNone, ELRS, ELRSX:
	default:
		return fmt.Errorf("elr_mode must be one of {none,s,sx,clv}, got %q", c.ELRMode)
	}
	if c.LockTableSize <= 0 {
		return fmt.Errorf("lock_table_size must be positive, got %d", c.LockTableSize)
	}
	return nil
}

// nextPrime rounds n up to the nearest prime, matching the
// lock_table_size rounding rule called out in spec.md §6.
func nextPrime(n int) int {
	if n < 2 {
		return 2
	}
	for !isPrime(n) {
		n++
	}
	return n
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	for i := 2; i*i <= n; i++ {
		if n%i == 0 {
			return false
		}
	}
	return true
}
