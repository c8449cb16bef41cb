// Package gmem implements the per-core global-memory pipeline: the
// coalescer, the private L0 cache, the MSHR coalescing table, and the
// stochastic cache-decision policy shared with the cluster-level L1/L2/DRAM
// tiers (see clustermem).
package gmem

// PolicyConfig groups the global-memory hit-rate, line-size, associativity,
// banking, and flush parameters (spec.md §6's gmem_policy group).
type PolicyConfig struct {
	L0HitRate        float64 `yaml:"l0_hit_rate"`
	L1HitRate        float64 `yaml:"l1_hit_rate"`
	L2HitRate        float64 `yaml:"l2_hit_rate"`
	L1WritebackRate  float64 `yaml:"l1_writeback_rate"`
	L2WritebackRate  float64 `yaml:"l2_writeback_rate"`
	L0LineBytes      uint32  `yaml:"l0_line_bytes"`
	L1LineBytes      uint32  `yaml:"l1_line_bytes"`
	L2LineBytes      uint32  `yaml:"l2_line_bytes"`
	L0Sets           int     `yaml:"l0_sets"`
	L0Ways           int     `yaml:"l0_ways"`
	L1Sets           int     `yaml:"l1_sets"`
	L1Ways           int     `yaml:"l1_ways"`
	L2Sets           int     `yaml:"l2_sets"`
	L2Ways           int     `yaml:"l2_ways"`
	L0FlushMMIOBase   uint64 `yaml:"l0_flush_mmio_base"`
	L0FlushMMIOStride uint64 `yaml:"l0_flush_mmio_stride"`
	L0FlushMMIOSize   uint64 `yaml:"l0_flush_mmio_size"`
	L1Banks          int     `yaml:"l1_banks"`
	L2Banks          int     `yaml:"l2_banks"`
	FlushBytes       uint32  `yaml:"flush_bytes"`
	Seed             uint64  `yaml:"seed"`
	MSHRCapacity     int     `yaml:"mshr_capacity"`
}

// DefaultPolicyConfig returns the source's documented defaults
// (timeflow/gmem/policy.rs's GmemPolicyConfig::default).
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		L0HitRate:         0.4,
		L1HitRate:         0.7,
		L2HitRate:         0.9,
		L1WritebackRate:   0.1,
		L2WritebackRate:   0.1,
		L0LineBytes:       64,
		L1LineBytes:       32,
		L2LineBytes:       128,
		L0Sets:            512,
		L0Ways:            1,
		L1Sets:            512,
		L1Ways:            4,
		L2Sets:            512,
		L2Ways:            8,
		L0FlushMMIOBase:   0x0008_0200,
		L0FlushMMIOStride: 0x100,
		L0FlushMMIOSize:   0x100,
		L1Banks:           2,
		L2Banks:           1,
		FlushBytes:        4096,
		Seed:              0,
		MSHRCapacity:      64,
	}
}

// LineAddr returns the index of the cache line containing addr
// (addr / lineBytes), not the line's starting byte address.
func LineAddr(addr uint64, lineBytes uint32) uint64 {
	b := uint64(lineBytes)
	if b == 0 {
		b = 1
	}
	return addr / b
}

// BankFor maps a line address to one of banks banks, salted so L1 and L2
// banking derive independent, reproducible distributions from the same
// line address.
func BankFor(lineAddr uint64, banks uint64, salt uint64) uint64 {
	if banks == 0 {
		return 0
	}
	return HashU64(lineAddr^salt) % banks
}

// Decide is a deterministic, reproducible coin flip keyed on (rate, key):
// edges are clamped (rate<=0 always false, rate>=1 always true), otherwise
// hash_u64(key) is compared against the scaled rate threshold.
func Decide(rate float64, key uint64) bool {
	clamped := rate
	if clamped < 0 {
		clamped = 0
	} else if clamped > 1 {
		clamped = 1
	}
	if clamped <= 0 {
		return false
	}
	if clamped >= 1 {
		return true
	}
	threshold := uint64(clamped * maxUint64Float)
	return HashU64(key) <= threshold
}

const maxUint64Float = float64(1<<64 - 1)

// HashU64 is the deterministic two-multiply mix (murmur3-finalizer
// variant) every stochastic decision in the TFE derives from. It is
// distinct from the RNG-subsystem-partitioning hash used elsewhere
// (hash/fnv in workload); this one must match bit-for-bit across
// reruns at the (seed, id, line_addr) level, which fnv does not guarantee
// the same way once mixed with XOR composition the source relies on.
func HashU64(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// IsFlushMMIO reports whether addr falls within one of the configured
// flush-triggering MMIO stride windows.
func (c PolicyConfig) IsFlushMMIO(addr uint64) bool {
	if c.L0FlushMMIOStride == 0 {
		return addr >= c.L0FlushMMIOBase && addr < c.L0FlushMMIOBase+c.L0FlushMMIOSize
	}
	if addr < c.L0FlushMMIOBase {
		return false
	}
	offset := (addr - c.L0FlushMMIOBase) % c.L0FlushMMIOStride
	return offset < c.L0FlushMMIOSize
}
