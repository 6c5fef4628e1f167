package stats

import "github.com/alphadose/haxmap"

// concurrentValueCounts is a lock-free concurrent value→count map used
// by a column's accumulator once its running distinct-count crosses
// concurrentCardinalityThreshold, generalizing the engine's only
// haxmap use site (a fixed-size preallocated map keyed by IPv4 address
// in a sliding time-window tracker) into a value-frequency tracker
// keyed by the observed string value instead of a numeric IP.
type concurrentValueCounts struct {
	m *haxmap.Map[string, uint64]
}

// concurrentCardinalityThreshold is the distinct-value count above
// which a mutex-guarded plain map's lock contention starts costing more
// than haxmap's lock-free get/set path; below it a plain map is simpler
// and just as fast.
const concurrentCardinalityThreshold = 100_000

func newConcurrentValueCounts() *concurrentValueCounts {
	return &concurrentValueCounts{m: haxmap.New[string, uint64](1 << 17)}
}

// observe increments value's count by one, mirroring the
// get-then-set-on-miss pattern the source uses for its per-IP stat
// map. The read-modify-write is not atomic; it is safe because each
// worker observes into its own accumulator, never a shared one.
func (c *concurrentValueCounts) observe(value string) {
	cur, _ := c.m.Get(value)
	c.m.Set(value, cur+1)
}

func (c *concurrentValueCounts) len() int {
	return int(c.m.Len())
}

func (c *concurrentValueCounts) toPlainMap() map[string]uint64 {
	out := make(map[string]uint64, c.m.Len())
	c.m.ForEach(func(k string, v uint64) bool {
		out[k] = v
		return true
	})
	return out
}

// mergeValueCounts merges src into dst — used by Accumulator.Merge for
// the plain-map path. Wide value domains promote to
// concurrentValueCounts both while observing and in the merge step:
// Merge promotes the merged map once its distinct count passes
// concurrentCardinalityThreshold.
func mergeValueCounts(dst map[string]uint64, src map[string]uint64) {
	for v, c := range src {
		dst[v] += c
	}
}
