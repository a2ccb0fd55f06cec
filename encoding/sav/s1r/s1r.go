// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package s1r implements the fixed-block B+-tree-style genomic interval
// index: entries are bulk-loaded bottom-up from a sorted slice, paged
// into fixed-size blocks, and queried by descending only into children whose
// interval overlaps the query range.
//
// It is grounded on the flat, binary-searchable .gbai index in
// encoding/bam/gindex.go -- same idea of a magic header plus packed
// big-endian entries read with a single io.ReaderAt -- generalized into a
// paged tree so a range query touches O(log n) blocks instead of the whole
// index.
package s1r

import (
	"github.com/grailbio/sav/encoding/sav/saverr"
	"github.com/pkg/errors"
)

// Magic is the 7-byte s1r file signature, "s1r\0\x01\0\0".
var Magic = [7]byte{'s', '1', 'r', 0, 1, 0, 0}

// HeaderSize is the size in bytes of the fixed s1r file header, before
// block padding.
const HeaderSize = 16

// LeafEntrySize is the encoded size of one leaf entry.
const LeafEntrySize = 32

// InternalEntrySize is the encoded size of one internal entry.
const InternalEntrySize = 16

// Exponent is the 1-byte block-size exponent stored in the header. Valid
// values are 2..5; block size in bytes is 8^(e+2).
type Exponent uint8

// BlockBytes returns the page size in bytes for this exponent.
func (e Exponent) BlockBytes() int {
	n := 1
	for i := 0; i < int(e)+2; i++ {
		n *= 8
	}
	return n
}

func (e Exponent) valid() bool { return e >= 2 && e <= 5 }

// LeafFanout returns the number of leaf entries that fit in one block.
func (e Exponent) LeafFanout() int { return e.BlockBytes() / LeafEntrySize }

// InternalFanout returns the number of internal entries that fit in one
// block.
func (e Exponent) InternalFanout() int { return e.BlockBytes() / InternalEntrySize }

// Entry is one leaf record: a genomic interval plus the two 64-bit values
// it carries. SAV packs a block location into (ValueHi, ValueLo): ValueHi
// is the zstd frame's file offset, ValueLo is (records-in-block - 1).
type Entry struct {
	RegionStart  uint64
	RegionLength uint64
	ValueHi      uint64
	ValueLo      uint64
}

// RegionEnd returns the inclusive end of the entry's interval.
func (e Entry) RegionEnd() uint64 { return e.RegionStart + e.RegionLength }

// FileOffset returns the block's file offset, decoded from ValueHi.
func (e Entry) FileOffset() uint64 { return e.ValueHi }

// RecordCount returns the number of records in the block, decoded from
// ValueLo.
func (e Entry) RecordCount() int { return int(e.ValueLo) + 1 }

// MakeEntry builds a leaf Entry for a block spanning [regionStart,
// regionStart+regionLength] that starts at fileOffset and holds
// recordCount records. It returns saverr.IndexOverflow if recordCount or
// fileOffset exceed the limits (records_in_block <= 65536,
// file_offset < 2^48).
func MakeEntry(regionStart, regionLength uint64, fileOffset uint64, recordCount int) (Entry, error) {
	if recordCount <= 0 || recordCount > 65536 {
		return Entry{}, errors.Wrapf(saverr.IndexOverflow, "s1r: records_in_block %d", recordCount)
	}
	if fileOffset >= 1<<48 {
		return Entry{}, errors.Wrapf(saverr.IndexOverflow, "s1r: file_offset %d", fileOffset)
	}
	return Entry{
		RegionStart:  regionStart,
		RegionLength: regionLength,
		ValueHi:      fileOffset,
		ValueLo:      uint64(recordCount - 1),
	}, nil
}

func putU64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func (e Entry) encode(buf []byte) {
	putU64(buf[0:8], e.RegionStart)
	putU64(buf[8:16], e.RegionLength)
	putU64(buf[16:24], e.ValueHi)
	putU64(buf[24:32], e.ValueLo)
}

func decodeEntry(buf []byte) Entry {
	return Entry{
		RegionStart:  getU64(buf[0:8]),
		RegionLength: getU64(buf[8:16]),
		ValueHi:      getU64(buf[16:24]),
		ValueLo:      getU64(buf[24:32]),
	}
}

type internalEntry struct {
	regionStart  uint64
	regionLength uint64
}

func (e internalEntry) encode(buf []byte) {
	putU64(buf[0:8], e.regionStart)
	putU64(buf[8:16], e.regionLength)
}

func decodeInternalEntry(buf []byte) internalEntry {
	return internalEntry{regionStart: getU64(buf[0:8]), regionLength: getU64(buf[8:16])}
}
