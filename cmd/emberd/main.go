package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	elog "github.com/cuemby/ember/pkg/elog"
	"github.com/cuemby/ember/pkg/econfig"
	"github.com/cuemby/ember/pkg/engine"
	"github.com/cuemby/ember/pkg/metrics"
	"github.com/cuemby/ember/pkg/volumes"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "emberd",
	Short:   "ember - a disk-oriented, log-structured storage engine daemon",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"emberd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	elog.Init(elog.Config{
		Level:      elog.Level(level),
		JSONOutput: jsonOut,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the storage engine daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		deviceFlags, _ := cmd.Flags().GetStringArray("volume")

		cfg := econfig.Default()
		if configPath != "" {
			loaded, err := econfig.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg = loaded
		} else {
			cfg.LogDir = dataDir + "/log"
		}

		devices, err := parseVolumeFlags(deviceFlags)
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			devices = []volumes.DeviceInfo{{ID: 1, Path: "main", PageSize: 8192, NumPages: 1 << 20}}
		}

		eng, err := engine.Open(cfg, dataDir, devices)
		if err != nil {
			return fmt.Errorf("failed to open engine: %w", err)
		}

		collector := metrics.NewCollector(eng)
		collector.Start()
		metrics.SetVersion(Version)
		metrics.RegisterComponent("checkpoint", true, "running")

		go func() {
			http.Handle("/metrics", metrics.Handler())
			http.Handle("/health", metrics.HealthHandler())
			http.Handle("/ready", metrics.ReadyHandler())
			http.Handle("/live", metrics.LivenessHandler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil && err != http.ErrServerClosed {
				elog.Logger.Error().Err(err).Msg("metrics server exited")
			}
		}()
		elog.Logger.Info().Str("addr", metricsAddr).Msg("metrics and health endpoints listening")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		elog.Logger.Info().Msg("shutting down")
		collector.Stop()
		if err := eng.Close(); err != nil {
			return fmt.Errorf("failed to shut down engine: %w", err)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().String("config", "", "Path to an econfig YAML manifest (defaults applied if omitted)")
	runCmd.Flags().String("data-dir", "./data", "Directory for log partitions and the volume registry")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for /metrics and /health endpoints")
	runCmd.Flags().StringArray("volume", nil, "Volume to mount as id:path:page_size:num_pages (repeatable)")
}

// parseVolumeFlags parses "id:path:page_size:num_pages" flag values into
// volumes.DeviceInfo entries.
func parseVolumeFlags(flags []string) ([]volumes.DeviceInfo, error) {
	devices := make([]volumes.DeviceInfo, 0, len(flags))
	for _, f := range flags {
		parts := strings.Split(f, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid --volume %q, want id:path:page_size:num_pages", f)
		}
		id, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid --volume id %q: %w", parts[0], err)
		}
		pageSize, err := strconv.ParseUint(parts[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid --volume page_size %q: %w", parts[2], err)
		}
		numPages, err := strconv.ParseUint(parts[3], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid --volume num_pages %q: %w", parts[3], err)
		}
		devices = append(devices, volumes.DeviceInfo{
			ID:       volumes.VolumeID(id),
			Path:     parts[1],
			PageSize: uint32(pageSize),
			NumPages: uint32(numPages),
		})
	}
	return devices, nil
}
