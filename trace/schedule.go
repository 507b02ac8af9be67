package trace

import (
	"sort"

	"github.com/gomlx/exceptions"
)

// Scheduling: the active set is partitioned into buckets by element count, and
// each bucket is compiled into one kernel. Within a bucket, a depth-first
// post-order over the operand edges yields the emission schedule; the visited
// set is shared across all seeds of the bucket, so common sub-expressions are
// emitted exactly once per kernel.

// bucket groups the active-set seeds sharing one element count.
type bucket struct {
	size     int
	seeds    []Index
	schedule []Index
}

// partition splits the active set into buckets, largest element count first.
// Bucket iteration order is not part of the contract (it is only observable
// through side effects); largest-first makes it deterministic and lets scalar
// seeds already swept into a wider kernel drop their own single-lane bucket.
func (c *Context) partition() []*bucket {
	bySize := make(map[int]*bucket)
	for idx := range c.active {
		v := c.vars[idx]
		if v == nil {
			exceptions.Panicf("trace: active set names destroyed variable %d", idx)
		}
		b := bySize[v.count]
		if b == nil {
			b = &bucket{size: v.count}
			bySize[v.count] = b
		}
		b.seeds = append(b.seeds, idx)
	}
	buckets := make([]*bucket, 0, len(bySize))
	for _, b := range bySize {
		sort.Slice(b.seeds, func(i, j int) bool { return b.seeds[i] < b.seeds[j] })
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].size > buckets[j].size })
	return buckets
}

// scheduleBuckets fills in the post-order schedule of every bucket. merged collects
// broadcast scalars swept into a wider bucket: their own seeds are dropped,
// the wider kernel already computes them per lane.
func (c *Context) scheduleBuckets(buckets []*bucket) {
	merged := make(map[Index]bool)
	for _, b := range buckets {
		visited := make(map[Index]bool)
		for _, seed := range b.seeds {
			if b.size == 1 && merged[seed] {
				continue
			}
			c.sweep(seed, visited, &b.schedule)
		}
		if b.size > 1 {
			for idx := range visited {
				if c.vars[idx] != nil && c.vars[idx].count == 1 {
					merged[idx] = true
				}
			}
		}
	}
}

// sweep appends the dependency closure of idx to schedule in post-order.
// Reserved pseudo-registers are skipped, and variables that already carry data
// are leaves: their operand edges (if any remain) do not reach the kernel.
//
// Before recursing, the operand slots are ordered by descending subtree size,
// emitting the heavy sub-expression first; this keeps fewer registers live in
// the generated code. Only the traversal order changes; the declared operand
// order that the $-placeholders resolve against stays untouched.
func (c *Context) sweep(idx Index, visited map[Index]bool, schedule *[]Index) {
	if idx < reservedIndices || visited[idx] {
		return
	}
	visited[idx] = true
	v := c.vars[idx]
	if v == nil {
		exceptions.Panicf("trace: scheduled variable %d was already destroyed", idx)
	}
	if v.data == 0 {
		deps := v.deps
		size := func(i Index) uint32 {
			if i < reservedIndices {
				return 0
			}
			return c.get(i).subtreeSize
		}
		if size(deps[0]) < size(deps[1]) {
			deps[0], deps[1] = deps[1], deps[0]
		}
		if size(deps[0]) < size(deps[2]) {
			deps[0], deps[2] = deps[2], deps[0]
		}
		if size(deps[1]) < size(deps[2]) {
			deps[1], deps[2] = deps[2], deps[1]
		}
		for _, dep := range deps {
			if dep != 0 {
				c.sweep(dep, visited, schedule)
			}
		}
	}
	*schedule = append(*schedule, idx)
}
