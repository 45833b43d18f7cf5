package econfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaultsAndRoundsLockTableSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ember.yaml")
	if err := os.WriteFile(path, []byte("lock_table_size: 100\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BufferPoolPages != Default().BufferPoolPages {
		t.Fatalf("expected default buffer_pool_pages to survive, got %d", cfg.BufferPoolPages)
	}
	if !isPrime(cfg.LockTableSize) {
		t.Fatalf("expected lock_table_size to be rounded to a prime, got %d", cfg.LockTableSize)
	}
	if cfg.LockTableSize < 100 {
		t.Fatalf("expected lock_table_size >= 100, got %d", cfg.LockTableSize)
	}
}

func TestValidateRejectsBadELRMode(t *testing.T) {
	cfg := Default()
	cfg.ELRMode = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an invalid elr_mode")
	}
}

func TestELRModeNormalizeAliasesCLVToSX(t *testing.T) {
	if ELRCLV.Normalize() != ELRSX {
		t.Fatalf("expected clv to normalize to sx, got %s", ELRCLV.Normalize())
	}
}

func TestNextPrime(t *testing.T) {
	cases := map[int]int{1: 2, 2: 2, 4: 5, 14: 17}
	for in, want := range cases {
		if got := nextPrime(in); got != want {
			t.Errorf("nextPrime(%d) = %d, want %d", in, got, want)
		}
	}
}
