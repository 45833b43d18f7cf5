package engine

import (
	"fmt"
	"time"

	"github.com/cuemby/ember/pkg/buffer"
	"github.com/cuemby/ember/pkg/checkpoint"
	elog "github.com/cuemby/ember/pkg/elog"
	"github.com/cuemby/ember/pkg/econfig"
	"github.com/cuemby/ember/pkg/lockmgr"
	"github.com/cuemby/ember/pkg/metrics"
	"github.com/cuemby/ember/pkg/txn"
	"github.com/cuemby/ember/pkg/volumes"
	"github.com/cuemby/ember/pkg/wal"
)

// defaultCheckpointInterval matches no config knob in spec.md §6's table;
// this port keeps it an internal constant rather than inventing an
// unspecified one (see DESIGN.md).
const defaultCheckpointInterval = 30 * time.Second

// defaultCleanerInterval is how often each mounted volume's page cleaner
// sweeps for dirty pages absent an explicit dirty_threshold trigger.
const defaultCleanerInterval = 5 * time.Second

// Engine is the storage engine's context handle: it owns every C1-C8
// component for one process and threads them into pkg/txn, the way the
// teacher's Manager constructs its Raft/storage/security stack once at
// startup and hands out accessors rather than exposing package globals.
type Engine struct {
	cfg econfig.Config

	Log         *wal.Manager
	Volumes     volumes.Registry
	Locks       *lockmgr.Manager
	Buffer      *buffer.Pool
	Checkpoints *checkpoint.Manager
	Xcts        *txn.Table

	mountedVolumes []volumes.VolumeID
}

// Open constructs and wires every engine component: the log manager, the
// volume registry (mounting every device in devices), the lock manager,
// the buffer pool, the checkpoint manager, and the transaction table. It
// starts the checkpoint thread and a page cleaner per mounted volume.
func Open(cfg econfig.Config, dataDir string, devices []volumes.DeviceInfo) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := elog.WithComponent("engine")

	log, err := wal.New(wal.Config{
		Dir:                   cfg.LogDir,
		MaxOpenLog:            cfg.MaxOpenLog,
		ChkptReservationBytes: 2 * wal.DefaultPartitionSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log manager: %w", err)
	}

	registry, err := volumes.NewBoltStore(dataDir)
	if err != nil {
		_ = log.Close()
		return nil, fmt.Errorf("failed to open volume registry: %w", err)
	}

	mounted := make([]volumes.VolumeID, 0, len(devices))
	for _, dev := range devices {
		vol, err := registry.Mount(dev)
		if err != nil {
			_ = registry.Close()
			_ = log.Close()
			return nil, fmt.Errorf("failed to mount volume %d: %w", dev.ID, err)
		}
		mounted = append(mounted, vol.ID())
	}

	lm := lockmgr.New(cfg)
	buf := buffer.New(cfg, log, registry)
	xcts := txn.NewTable(cfg, log, lm, buf)
	chkpt := checkpoint.New(cfg, log, buf, registry, xcts)

	e := &Engine{
		cfg:            cfg,
		Log:            log,
		Volumes:        registry,
		Locks:          lm,
		Buffer:         buf,
		Checkpoints:    chkpt,
		Xcts:           xcts,
		mountedVolumes: mounted,
	}

	chkpt.Start(defaultCheckpointInterval)
	for _, vol := range mounted {
		buf.StartCleaner(vol, defaultCleanerInterval)
	}

	metrics.RegisterComponent("wal", true, "")
	metrics.RegisterComponent("buffer", true, "")
	metrics.RegisterComponent("lockmgr", true, "")
	logger.Info().Int("volumes", len(mounted)).Msg("engine opened")
	return e, nil
}

// Begin starts a new transaction against this engine.
func (e *Engine) Begin() *txn.Xct {
	return e.Xcts.Begin()
}

// Close stops the checkpoint thread and every volume's cleaner, forces
// all dirty pages, and releases the log and volume registry.
func (e *Engine) Close() error {
	e.Checkpoints.Stop()
	for _, vol := range e.mountedVolumes {
		e.Buffer.StopCleaner(vol)
	}
	if err := e.Buffer.ForceAll(); err != nil {
		return fmt.Errorf("failed to force buffer pool on close: %w", err)
	}
	if err := e.Volumes.Close(); err != nil {
		return fmt.Errorf("failed to close volume registry: %w", err)
	}
	if err := e.Log.Close(); err != nil {
		return fmt.Errorf("failed to close log manager: %w", err)
	}
	return nil
}

// BufferPoolStats implements metrics.StatsSource.
func (e *Engine) BufferPoolStats() metrics.BufferPoolStats { return e.Buffer.BufferPoolStats() }

// LockTableStats implements metrics.StatsSource.
func (e *Engine) LockTableStats() metrics.LockTableStats { return e.Locks.LockTableStats() }

// LogStats implements metrics.StatsSource.
func (e *Engine) LogStats() metrics.LogStats { return e.Log.LogStats() }
