// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package s1r

import (
	"github.com/biogo/store/llrb"
	"github.com/pkg/errors"
)

// stagedEntry orders entries by interval midpoint, breaking ties by
// insertion order so the bulk-load sees a stable, reproducible sequence
// regardless of llrb's internal rebalancing.
type stagedEntry struct {
	mid uint64
	seq int
	e   Entry
}

func (s *stagedEntry) Compare(c llrb.Comparable) int {
	o := c.(*stagedEntry)
	switch {
	case s.mid < o.mid:
		return -1
	case s.mid > o.mid:
		return 1
	case s.seq < o.seq:
		return -1
	case s.seq > o.seq:
		return 1
	default:
		return 0
	}
}

// Builder stages leaf entries in sorted order before bulk-loading them into
// a paged tree, mirroring the staged-then-flushed llrb.Tree merge in
// cmd/bio-bam-sort/sorter/sort.go.
type Builder struct {
	tree llrb.Tree
	n    int
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// Insert stages one leaf entry, keyed by its interval midpoint.
func (b *Builder) Insert(e Entry) {
	mid := e.RegionStart + e.RegionLength/2
	b.tree.Insert(&stagedEntry{mid: mid, seq: b.n, e: e})
	b.n++
}

// Len returns the number of staged entries.
func (b *Builder) Len() int { return b.tree.Len() }

// Finish drains the staged entries in sorted order and bulk-loads them into
// a paged tree at block-size exponent e, returning the serialized file
// contents (header included).
func (b *Builder) Finish(e Exponent) ([]byte, error) {
	entries := make([]Entry, 0, b.tree.Len())
	b.tree.Do(func(c llrb.Comparable) bool {
		entries = append(entries, c.(*stagedEntry).e)
		return false
	})
	return Build(entries, e)
}

func ceilDiv(a, b int) int {
	if a == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// levelNodeCounts returns the number of nodes at each tree level, root
// first, leaf last. levelNodeCounts[len-1] is always the leaf node count;
// levelNodeCounts[0] is always 1 (the root).
func levelNodeCounts(entryCount int, e Exponent) []int {
	leafNodes := ceilDiv(entryCount, e.LeafFanout())
	if leafNodes == 0 {
		leafNodes = 1 // An empty tree still has one (empty) leaf block.
	}
	counts := []int{leafNodes}
	for counts[0] > 1 {
		counts = append([]int{ceilDiv(counts[0], e.InternalFanout())}, counts...)
	}
	return counts
}

// Build bulk-loads entries (already sorted by midpoint, ascending) into a
// paged tree at block-size exponent e and returns the full serialized file:
// the 16-byte header, padded to one block, followed by the tree's levels
// laid out root first.
func Build(entries []Entry, e Exponent) ([]byte, error) {
	if !e.valid() {
		return nil, errors.Errorf("s1r: bad block-size exponent %d", e)
	}
	blockBytes := e.BlockBytes()
	counts := levelNodeCounts(len(entries), e)
	totalBlocks := 1 // Header block.
	for _, c := range counts {
		totalBlocks += c
	}
	out := make([]byte, totalBlocks*blockBytes)

	copy(out[0:7], Magic[:])
	out[7] = byte(e)
	putU64(out[8:16], uint64(len(entries)))

	// spans[i] is the [start,end] interval covered by leaf node i, used
	// to synthesize the parent level's internal entries.
	leafFanout := e.LeafFanout()
	nLeaf := counts[len(counts)-1]
	type span struct{ start, end uint64 }
	spans := make([]span, nLeaf)

	leafBlockStart := totalBlocks - nLeaf
	for i := 0; i < nLeaf; i++ {
		lo := i * leafFanout
		hi := lo + leafFanout
		if hi > len(entries) {
			hi = len(entries)
		}
		block := out[(leafBlockStart+i)*blockBytes : (leafBlockStart+i+1)*blockBytes]
		var regionStart, regionEnd uint64
		for j, k := lo, 0; j < hi; j, k = j+1, k+1 {
			entries[j].encode(block[k*LeafEntrySize:])
			if j == lo || entries[j].RegionStart < regionStart {
				regionStart = entries[j].RegionStart
			}
			if j == lo || entries[j].RegionEnd() > regionEnd {
				regionEnd = entries[j].RegionEnd()
			}
		}
		spans[i] = span{regionStart, regionEnd}
	}

	// Walk the remaining levels bottom-up, synthesizing each internal node's
	// entries from the child spans directly below it.
	childSpans := spans
	blockCursor := leafBlockStart
	for level := len(counts) - 2; level >= 0; level-- {
		nNode := counts[level]
		internalFanout := e.InternalFanout()
		nodeBlockStart := blockCursor - nNode
		nextSpans := make([]span, nNode)
		for i := 0; i < nNode; i++ {
			lo := i * internalFanout
			hi := lo + internalFanout
			if hi > len(childSpans) {
				hi = len(childSpans)
			}
			block := out[(nodeBlockStart+i)*blockBytes : (nodeBlockStart+i+1)*blockBytes]
			var regionStart, regionEnd uint64
			for j, k := lo, 0; j < hi; j, k = j+1, k+1 {
				ie := internalEntry{regionStart: childSpans[j].start, regionLength: childSpans[j].end - childSpans[j].start}
				ie.encode(block[k*InternalEntrySize:])
				if j == lo || childSpans[j].start < regionStart {
					regionStart = childSpans[j].start
				}
				if j == lo || childSpans[j].end > regionEnd {
					regionEnd = childSpans[j].end
				}
			}
			nextSpans[i] = span{regionStart, regionEnd}
		}
		childSpans = nextSpans
		blockCursor = nodeBlockStart
	}
	return out, nil
}
