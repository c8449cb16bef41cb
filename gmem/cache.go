package gmem

// CacheTagArray is a set-associative, MRU-ordered tag-only cache: it tracks
// which line addresses are resident per set but never moves data. Probe
// reports hit/miss without changing recency; Touch and Fill move the line to
// the front of its set's recency list (mirrors gmem/cache.rs's probe/fill
// using remove-then-insert(0) for MRU promotion instead of a full LRU list
// walk on every access).
type CacheTagArray struct {
	sets int
	ways int
	tags []recencyList
}

// recencyList holds one set's resident line addresses, most-recently-used
// first.
type recencyList struct {
	lines []uint64
}

// NewCacheTagArray builds a tag array with the given set/way geometry. Ways
// <= 0 behaves as a fully-bypassed cache (Fill never installs a line, so
// Probe always misses).
func NewCacheTagArray(sets, ways int) *CacheTagArray {
	if sets <= 0 {
		sets = 1
	}
	return &CacheTagArray{sets: sets, ways: ways, tags: make([]recencyList, sets)}
}

func (c *CacheTagArray) setFor(lineAddr uint64) int {
	return int(lineAddr % uint64(c.sets))
}

// Probe reports whether lineAddr is resident, without mutating recency.
func (c *CacheTagArray) Probe(lineAddr uint64) bool {
	set := &c.tags[c.setFor(lineAddr)]
	for _, l := range set.lines {
		if l == lineAddr {
			return true
		}
	}
	return false
}

// Touch promotes lineAddr to MRU if resident; otherwise it is a no-op.
func (c *CacheTagArray) Touch(lineAddr uint64) {
	set := &c.tags[c.setFor(lineAddr)]
	for i, l := range set.lines {
		if l == lineAddr {
			set.lines = append(set.lines[:i], set.lines[i+1:]...)
			set.lines = append([]uint64{lineAddr}, set.lines...)
			return
		}
	}
}

// Fill inserts lineAddr as MRU, evicting the LRU entry if the set is already
// full. It returns the evicted line address, if any eviction occurred.
func (c *CacheTagArray) Fill(lineAddr uint64) (evicted uint64, didEvict bool) {
	if c.ways <= 0 {
		return 0, false
	}
	set := &c.tags[c.setFor(lineAddr)]
	for _, l := range set.lines {
		if l == lineAddr {
			c.Touch(lineAddr)
			return 0, false
		}
	}
	if c.ways > 0 && len(set.lines) >= c.ways {
		evicted = set.lines[len(set.lines)-1]
		set.lines = set.lines[:len(set.lines)-1]
		didEvict = true
	}
	set.lines = append([]uint64{lineAddr}, set.lines...)
	return evicted, didEvict
}

// InvalidateAll clears every set, modeling an L0/L1 flush.
func (c *CacheTagArray) InvalidateAll() {
	for i := range c.tags {
		c.tags[i].lines = nil
	}
}

// Invalidate drops a single line if resident.
func (c *CacheTagArray) Invalidate(lineAddr uint64) {
	set := &c.tags[c.setFor(lineAddr)]
	for i, l := range set.lines {
		if l == lineAddr {
			set.lines = append(set.lines[:i], set.lines[i+1:]...)
			return
		}
	}
}
