// Package config loads the simulator's hierarchical YAML configuration
// (spec.md §6) into the per-package Config structs every stage already
// declares, the same strict-decode, KnownFields(true) pattern the
// teacher's cmd.loadDefaultsConfig uses for defaults.yaml (R10: a typo'd
// field must fail to load, not silently zero-value).
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gputfe/tfe/clustermem"
	"github.com/gputfe/tfe/core"
	"github.com/gputfe/tfe/gmem"
	"github.com/gputfe/tfe/timeq"
	"github.com/gputfe/tfe/warpsched"
)

// StagesConfig groups every auxiliary timed-queue stage's server config
// (spec.md §6's per-stage groups: icache, operand_fetch, writeback, dma,
// fence, barrier).
type StagesConfig struct {
	IcacheEnabled   bool               `yaml:"icache_enabled"`
	IcacheHitRate   float64            `yaml:"icache_hit_rate"`
	IcacheSeed      uint64             `yaml:"icache_seed"`
	IcacheHit       timeq.ServerConfig `yaml:"icache_hit"`
	IcacheMiss      timeq.ServerConfig `yaml:"icache_miss"`
	OperandFetch    timeq.ServerConfig `yaml:"operand_fetch"`
	Writeback       timeq.ServerConfig `yaml:"writeback"`
	DMA             timeq.ServerConfig `yaml:"dma"`
	Fence           timeq.ServerConfig `yaml:"fence"`
	BarrierEnabled  bool               `yaml:"barrier_enabled"`
	Barrier         timeq.ServerConfig `yaml:"barrier"`
}

// DefaultStagesConfig mirrors the source's documented per-stage defaults
// (timeflow/stages/*.rs's Default impls): the generic stages get one cycle
// of base latency, 1 byte/cycle, a 64-entry queue and one completion per
// cycle; icache and DMA carry their own sizes.
func DefaultStagesConfig() StagesConfig {
	unit := timeq.ServerConfig{BaseLatency: 1, BytesPerCycle: 1, QueueCapacity: 64, CompletionsPerCycle: 1}
	return StagesConfig{
		IcacheEnabled:  true,
		IcacheHitRate:  0.9,
		IcacheSeed:     0,
		IcacheHit:      timeq.ServerConfig{BaseLatency: 1, BytesPerCycle: 1, QueueCapacity: 32, CompletionsPerCycle: 1},
		IcacheMiss:     timeq.ServerConfig{BaseLatency: 20, BytesPerCycle: 1, QueueCapacity: 32, CompletionsPerCycle: 1},
		OperandFetch:   unit,
		Writeback:      unit,
		DMA:            timeq.ServerConfig{BaseLatency: 1, BytesPerCycle: 16, QueueCapacity: 32, CompletionsPerCycle: 1},
		Fence:          unit,
		BarrierEnabled: true,
		Barrier:        unit,
	}
}

// SmemConfig groups shared-memory bank/subbank/word geometry alongside the
// bank station's server config (spec.md §4.4's smem group).
type SmemConfig struct {
	Core   core.SmemConfig    `yaml:"core"`
	Server timeq.ServerConfig `yaml:"server"`
}

// DefaultSmemConfig mirrors the source's documented shared-memory defaults
// (32 banks x 1 subbank, 4-byte words, one cycle per bank access).
func DefaultSmemConfig() SmemConfig {
	return SmemConfig{
		Core:   core.SmemConfig{NumBanks: 32, NumSubbanks: 1, WordBytes: 4},
		Server: timeq.ServerConfig{BaseLatency: 1, BytesPerCycle: 4, QueueCapacity: 64, CompletionsPerCycle: 1},
	}
}

// AdmissionConfig groups the per-core MSHR admission gate and flush-queue
// server configs (spec.md §4.3's admission group).
type AdmissionConfig struct {
	Admission timeq.ServerConfig `yaml:"admission"`
	Flush     timeq.ServerConfig `yaml:"flush"`
}

func DefaultAdmissionConfig() AdmissionConfig {
	return AdmissionConfig{
		Admission: timeq.ServerConfig{BaseLatency: 0, BytesPerCycle: 64, QueueCapacity: 32, CompletionsPerCycle: 4},
		Flush:     timeq.ServerConfig{BaseLatency: 8, BytesPerCycle: 4096, QueueCapacity: 4, CompletionsPerCycle: 1},
	}
}

// Config is the full top-level simulator configuration (spec.md §6). All
// sections are listed explicitly so KnownFields(true) strict parsing can
// catch a misspelled field instead of silently dropping it.
type Config struct {
	Cycles       uint64                `yaml:"cycles"`
	NumClusters  int                   `yaml:"num_clusters"`
	CoresPerCluster int                `yaml:"cores_per_cluster"`
	Core         core.Config           `yaml:"core"`
	GmemPolicy   gmem.PolicyConfig     `yaml:"gmem_policy"`
	Admission    AdmissionConfig       `yaml:"admission"`
	Cluster      clustermem.Config     `yaml:"cluster"`
	Smem         SmemConfig            `yaml:"smem"`
	Stages       StagesConfig          `yaml:"stages"`
	MetricsIntervalCycles uint64       `yaml:"metrics_interval_cycles"`
}

// Default returns the documented baseline configuration: a single
// 4-core cluster, one warp scheduler slot wide, with every stage enabled.
func Default() Config {
	return Config{
		Cycles:          10000,
		NumClusters:     1,
		CoresPerCluster: 4,
		Core: core.Config{
			NumWarps:           32,
			MaxInflightPerLane: 16,
			RetryBackoffMin:    1,
			Issue:              warpsched.Config{Enabled: true, IssueWidth: 1},
			LogStats:           false,
		},
		GmemPolicy: gmem.DefaultPolicyConfig(),
		Admission:  DefaultAdmissionConfig(),
		Cluster: clustermem.Config{
			L1Banks: 2,
			L2Banks: 1,
			L1:      timeq.ServerConfig{BaseLatency: 20, BytesPerCycle: 32, QueueCapacity: 64, CompletionsPerCycle: 2},
			L2:      timeq.ServerConfig{BaseLatency: 120, BytesPerCycle: 128, QueueCapacity: 64, CompletionsPerCycle: 1},
			DRAM:    timeq.ServerConfig{BaseLatency: 400, BytesPerCycle: 256, QueueCapacity: 128, CompletionsPerCycle: 1},
		},
		Smem:                  DefaultSmemConfig(),
		Stages:                DefaultStagesConfig(),
		MetricsIntervalCycles: 100,
	}
}

// Load reads and strictly decodes a YAML file into a Config, starting from
// Default() so an omitted section keeps its documented default rather than
// zero-valuing.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
