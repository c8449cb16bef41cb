// Package engine assembles the cluster- and core-level components into a
// runnable simulation: one clustermem.ClusterGmemGraph, one smem.Subgraph,
// and one stages.Barrier shared per cluster, ticked once per cycle ahead
// of every core.Model in that cluster (spec.md §5's cluster-level
// arbitration), mirroring the teacher's sim.Simulator as the single
// top-level driver loop a cmd package calls Run on.
package engine

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gputfe/tfe/clustermem"
	"github.com/gputfe/tfe/config"
	"github.com/gputfe/tfe/core"
	"github.com/gputfe/tfe/gmem"
	"github.com/gputfe/tfe/metrics"
	"github.com/gputfe/tfe/smem"
	"github.com/gputfe/tfe/stages"
	"github.com/gputfe/tfe/timeq"
	"github.com/gputfe/tfe/workload"
)

// cluster bundles one cluster's shared state and the core Models that
// contend for it.
type cluster struct {
	gmem  *clustermem.ClusterGmemGraph
	smem  *smem.Subgraph
	bar   *stages.Barrier
	cores []*core.Model
}

// Engine is the whole simulator: a set of clusters, stepped cycle by cycle.
type Engine struct {
	cfg      config.Config
	clusters []*cluster
	metrics  *metrics.Aggregator
	now      timeq.Cycle
	log      *logrus.Entry

	prevGmemStats map[string]gmem.Stats
}

// New builds an Engine from cfg, one synthetic workload.Generator per core
// (spec.md's Supplemented Features: a traffic source is needed to drive
// every stage end to end).
func New(cfg config.Config, workloadCfg workload.Config) *Engine {
	e := &Engine{
		cfg:           cfg,
		metrics:       metrics.NewAggregator(cfg.MetricsIntervalCycles),
		log:           logrus.WithField("component", "engine"),
		prevGmemStats: make(map[string]gmem.Stats),
	}

	for clusterID := 0; clusterID < cfg.NumClusters; clusterID++ {
		clusterCfg := cfg.Cluster
		clusterCfg.NumCores = cfg.CoresPerCluster

		cg := clustermem.NewClusterGmemGraph(clusterCfg,
			cfg.GmemPolicy.L1Sets, cfg.GmemPolicy.L1Ways, cfg.GmemPolicy.L2Sets, cfg.GmemPolicy.L2Ways)
		sg := smem.NewSubgraph(cfg.Smem.Core.NumBanks, cfg.Smem.Core.NumSubbanks, cfg.Smem.Server)
		bar := stages.NewBarrier(cfg.Stages.BarrierEnabled, cfg.Stages.Barrier)

		c := &cluster{gmem: cg, smem: sg, bar: bar}
		for coreID := 0; coreID < cfg.CoresPerCluster; coreID++ {
			wcfg := workloadCfg
			wcfg.Seed = workloadCfg.Seed ^ int64(clusterID)<<32 ^ int64(coreID)
			gen := workload.NewGenerator(wcfg)

			m := core.NewModel(
				coreID, clusterID,
				cfg.Core, cfg.Smem.Core,
				gen,
				cfg.GmemPolicy,
				cg,
				sg,
				bar,
				cfg.Admission.Admission, cfg.Admission.Flush,
				cfg.Stages.IcacheEnabled, cfg.Stages.IcacheHitRate, cfg.Stages.IcacheSeed,
				cfg.Stages.IcacheHit, cfg.Stages.IcacheMiss,
				cfg.Stages.OperandFetch,
				cfg.Stages.Writeback,
				cfg.Stages.DMA,
				cfg.Stages.Fence,
			)
			c.cores = append(c.cores, m)
		}
		e.clusters = append(e.clusters, c)
	}
	return e
}

// Step advances every cluster and every core by one cycle: cluster-shared
// nodes tick exactly once, before any of their cores issue against them.
func (e *Engine) Step() {
	for _, c := range e.clusters {
		c.gmem.Tick(e.now)
		c.smem.Tick(e.now)
		c.bar.Tick(e.now, func(_, _ int, participants []int) {
			for _, p := range participants {
				coreID, warpID := core.DecodeBarrierParticipant(p, e.cfg.Core.NumWarps)
				if coreID >= 0 && coreID < len(c.cores) {
					c.cores[coreID].ReleaseBarrierWarp(warpID)
				}
			}
		})
		for _, m := range c.cores {
			m.Step(e.now)
		}
	}
	e.sample()
	e.now++
}

// sample folds this cycle's per-core gmem stats into the metrics
// aggregator, as deltas against the last sample so the accumulating
// StageCounters hold run-to-date totals without double counting; a fuller
// integration would also feed smem conflict degrees and per-stage
// issue/complete counts as each stage grows its own instrumentation hook.
func (e *Engine) sample() {
	if !e.metrics.ShouldReport(uint64(e.now)) {
		return
	}
	for ci, c := range e.clusters {
		for coreIdx, m := range c.cores {
			key := statKey(ci, coreIdx)
			stats := *m.GmemStats()
			prev := e.prevGmemStats[key]

			s := e.metrics.Stage(key)
			s.Record(stats.Issued-prev.Issued, stats.Completed-prev.Completed,
				stats.BusyRejects > prev.BusyRejects, stats.QueueFullRejects > prev.QueueFullRejects,
				0, stats.CompletionQueueLen)

			for i := uint64(0); i < stats.L0Hits-prev.L0Hits; i++ {
				e.metrics.ObserveL0(true)
			}
			for i := uint64(0); i < stats.L0Misses-prev.L0Misses; i++ {
				e.metrics.ObserveL0(false)
			}
			e.prevGmemStats[key] = stats
		}
	}
}

func statKey(clusterID, coreID int) string {
	return fmt.Sprintf("gmem[cluster=%d,core=%d]", clusterID, coreID)
}

// Run steps the engine for cfg.Cycles cycles and returns the final
// metrics report.
func (e *Engine) Run() metrics.CycleReport {
	e.log.WithField("cycles", e.cfg.Cycles).Info("starting run")
	for i := uint64(0); i < e.cfg.Cycles; i++ {
		e.Step()
	}
	e.log.WithField("cycle", e.now).Info("run complete")
	return e.metrics.Report(uint64(e.now))
}

// Now returns the current simulated cycle.
func (e *Engine) Now() timeq.Cycle { return e.now }
