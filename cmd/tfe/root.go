package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gputfe/tfe/config"
	"github.com/gputfe/tfe/engine"
	"github.com/gputfe/tfe/workload"
)

var (
	configPath string
	cycles     uint64
	logLevel   string
	seed       int64
)

var rootCmd = &cobra.Command{
	Use:   "tfe",
	Short: "Cycle-driven timing simulator for a GPU's SIMT memory pipeline",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the timing simulation",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		logrus.SetLevel(level)

		cfg := config.Default()
		if configPath != "" {
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
		}
		if cycles > 0 {
			cfg.Cycles = cycles
		}

		wcfg := workload.Config{
			Seed:          seed,
			NumWarps:      cfg.Core.NumWarps,
			LanesPerWarp:  32,
			LineBytes:     cfg.GmemPolicy.L0LineBytes,
			SmemBanks:     cfg.Smem.Core.NumBanks,
			SmemWordBytes: cfg.Smem.Core.WordBytes,
			BarrierID:     0,
			ExpectedWarps: cfg.Core.NumWarps * cfg.CoresPerCluster,
			Mix:           workload.DefaultMix(),
		}

		logrus.WithFields(logrus.Fields{
			"cycles":            cfg.Cycles,
			"clusters":          cfg.NumClusters,
			"cores_per_cluster": cfg.CoresPerCluster,
		}).Info("building engine")

		e := engine.New(cfg, wcfg)
		report := e.Run()

		fmt.Printf("cycles: %d\n", report.Cycle)
		fmt.Printf("latency: count=%d mean=%.2f p50=%.2f p90=%.2f p99=%.2f\n",
			report.Latency.Count, report.Latency.Mean, report.Latency.P50, report.Latency.P90, report.Latency.P99)
		fmt.Printf("l0 hit rate: %.4f\n", report.L0.Ratio())
		for name, s := range report.Stages {
			fmt.Printf("stage %s: issued=%d completed=%d busy_rejects=%d queue_full_rejects=%d\n",
				name, s.Issued, s.Completed, s.BusyRejects, s.QueueFullRejects)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults to config.Default())")
	runCmd.Flags().Uint64Var(&cycles, "cycles", 0, "override the configured cycle count (0 = use config)")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "log level (debug, info, warn, error)")
	runCmd.Flags().Int64Var(&seed, "seed", 1, "workload generator seed")

	rootCmd.AddCommand(runCmd)
}
