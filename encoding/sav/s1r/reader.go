// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package s1r

import (
	"os"

	"github.com/grailbio/sav/encoding/sav/saverr"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Reader provides random-access range queries over a serialized s1r index.
// OpenFile memory-maps the index so a query only faults in the handful of
// blocks its descent actually touches; Close releases that mapping.
type Reader struct {
	data       []byte
	mmapped    bool
	exponent   Exponent
	entryCount int
	counts     []int // Node count per level, root first, leaf last.
	blockStart []int // Block index each level starts at.
}

// NewReader parses an in-memory s1r file image, such as the bytes Build or
// Builder.Finish returned.
func NewReader(data []byte) (*Reader, error) {
	if len(data) < HeaderSize {
		return nil, saverr.Truncated
	}
	var magic [7]byte
	copy(magic[:], data[0:7])
	if magic != Magic {
		return nil, errors.Wrap(saverr.BadMagic, "s1r: header")
	}
	e := Exponent(data[7])
	if !e.valid() {
		return nil, errors.Errorf("s1r: bad block-size exponent %d", e)
	}
	entryCount := int(getU64(data[8:16]))
	counts := levelNodeCounts(entryCount, e)
	blockStart := make([]int, len(counts))
	cursor := 1 // Block 0 is the header.
	for i, c := range counts {
		blockStart[i] = cursor
		cursor += c
	}
	return &Reader{data: data, exponent: e, entryCount: entryCount, counts: counts, blockStart: blockStart}, nil
}

// OpenFile memory-maps path, which must hold exactly one serialized s1r
// tree (as opposed to the multi-tree directory a SAV trailer packs several
// trees into; callers there slice out one tree's bytes and call NewReader).
func OpenFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(saverr.IO, "s1r: open %s: %v", path, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(saverr.IO, "s1r: stat %s: %v", path, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(saverr.IO, "s1r: mmap %s: %v", path, err)
	}
	r, err := NewReader(data)
	if err != nil {
		unix.Munmap(data)
		return nil, err
	}
	r.mmapped = true
	return r, nil
}

// Close releases the index's memory-mapped pages, if any.
func (r *Reader) Close() error {
	if !r.mmapped {
		return nil
	}
	r.mmapped = false
	return unix.Munmap(r.data)
}

// EntryCount returns the total number of leaf entries in the tree.
func (r *Reader) EntryCount() int { return r.entryCount }

func (r *Reader) block(level, nodeIdx int) []byte {
	blockBytes := r.exponent.BlockBytes()
	idx := r.blockStart[level] + nodeIdx
	return r.data[idx*blockBytes : (idx+1)*blockBytes]
}

// nodeSpan returns the number of occupied entries in the given node: full
// except possibly the last node at a level, which may be a partial page.
func (r *Reader) nodeSpan(level, nodeIdx, fanout, totalAtNextLevel int) int {
	lo := nodeIdx * fanout
	hi := lo + fanout
	if hi > totalAtNextLevel {
		hi = totalAtNextLevel
	}
	if hi < lo {
		return 0
	}
	return hi - lo
}

func overlaps(aStart, aEnd, bStart, bEnd uint64) bool {
	return aStart < bEnd && bStart <= aEnd
}

// Query returns every leaf Entry whose interval intersects the half-open
// range [begin, end), in leaf (sorted-by-midpoint) order.
func (r *Reader) Query(begin, end uint64) []Entry {
	if r.entryCount == 0 {
		return nil
	}
	var out []Entry
	r.visit(0, 0, begin, end, &out)
	return out
}

func (r *Reader) visit(level, nodeIdx int, begin, end uint64, out *[]Entry) {
	block := r.block(level, nodeIdx)
	if level == len(r.counts)-1 {
		n := r.nodeSpan(level, nodeIdx, r.exponent.LeafFanout(), r.entryCount)
		for i := 0; i < n; i++ {
			e := decodeEntry(block[i*LeafEntrySize:])
			if overlaps(e.RegionStart, e.RegionEnd(), begin, end) {
				*out = append(*out, e)
			}
		}
		return
	}
	childCount := r.counts[level+1]
	n := r.nodeSpan(level, nodeIdx, r.exponent.InternalFanout(), childCount)
	fanout := r.exponent.InternalFanout()
	for i := 0; i < n; i++ {
		ie := decodeInternalEntry(block[i*InternalEntrySize:])
		ieEnd := ie.regionStart + ie.regionLength
		if overlaps(ie.regionStart, ieEnd, begin, end) {
			r.visit(level+1, nodeIdx*fanout+i, begin, end, out)
		}
	}
}
