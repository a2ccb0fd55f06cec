// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package varint implements the two integer encodings used throughout the
// SAV container: plain unsigned LEB128, and a k-bit-prefixed variant that
// steals the high bits of the first byte for an auxiliary tag. Both share
// the same continuation-bit convention, so a corrupt prefix width can be
// detected only by the caller, not by this package.
package varint

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrTruncated is returned when the input ends before a varint is complete.
var ErrTruncated = errors.New("varint: truncated input")

// ErrOverflow is returned when a varint would not fit in 64 bits.
var ErrOverflow = errors.New("varint: overflow")

// MaxLen is the longest a plain varint encoding of a uint64 can be.
const MaxLen = binary.MaxVarintLen64

// Put encodes x into buf and returns the number of bytes written. buf must
// have at least MaxLen bytes of room.
func Put(buf []byte, x uint64) int {
	return binary.PutUvarint(buf, x)
}

// Append encodes x and appends it to buf.
func Append(buf []byte, x uint64) []byte {
	var tmp [MaxLen]byte
	n := binary.PutUvarint(tmp[:], x)
	return append(buf, tmp[:n]...)
}

// Get decodes a varint from the head of buf, returning the value and the
// number of bytes consumed.
func Get(buf []byte) (x uint64, n int, err error) {
	x, n = binary.Uvarint(buf)
	switch {
	case n == 0:
		return 0, 0, ErrTruncated
	case n < 0:
		return 0, 0, ErrOverflow
	}
	return x, n, nil
}

// Len returns the number of bytes Put(buf, x) would write.
func Len(x uint64) int {
	n := 1
	for x >>= 7; x != 0; x >>= 7 {
		n++
	}
	return n
}

// maxPrefixWidth is the widest prefix that fits beside the continuation bit
// in the first byte; at this width the first byte carries no value bits.
const maxPrefixWidth = 7

// PutPrefixed encodes value with a k-bit prefix tag embedded in the most
// significant bits of the first byte, per the legacy v1 genotype payload
// layout. k must be in [1,7]. It panics if prefix does not fit in k bits.
func PutPrefixed(buf []byte, k uint8, prefix uint8, value uint64) int {
	if k < 1 || k > maxPrefixWidth {
		panic("varint: prefix width out of range")
	}
	if prefix >= 1<<k {
		panic("varint: prefix does not fit in k bits")
	}
	valueBits := uint(8 - 1 - k)
	mask := uint64(1)<<valueBits - 1
	first := byte(value&mask) | (prefix << valueBits)
	value >>= valueBits
	n := 0
	if value != 0 {
		first |= 0x80
	}
	buf[n] = first
	n++
	for value != 0 {
		b := byte(value & 0x7f)
		value >>= 7
		if value != 0 {
			b |= 0x80
		}
		buf[n] = b
		n++
	}
	return n
}

// PrefixedLen returns the number of bytes PutPrefixed would write.
func PrefixedLen(k uint8, value uint64) int {
	valueBits := uint(8 - 1 - k)
	value >>= valueBits
	n := 1
	for value != 0 {
		n++
		value >>= 7
	}
	return n
}

// GetPrefixed decodes a k-bit-prefixed varint, returning the prefix tag, the
// value, and the number of bytes consumed.
func GetPrefixed(buf []byte, k uint8) (prefix uint8, value uint64, n int, err error) {
	if k < 1 || k > maxPrefixWidth {
		panic("varint: prefix width out of range")
	}
	if len(buf) == 0 {
		return 0, 0, 0, ErrTruncated
	}
	valueBits := uint(8 - 1 - k)
	first := buf[0]
	prefix = (first >> valueBits) & (1<<k - 1)
	value = uint64(first) & (uint64(1)<<valueBits - 1)
	n = 1
	cont := first&0x80 != 0
	shift := valueBits
	for cont {
		if n >= len(buf) {
			return 0, 0, 0, ErrTruncated
		}
		if shift >= 64 {
			return 0, 0, 0, ErrOverflow
		}
		b := buf[n]
		value |= uint64(b&0x7f) << shift
		cont = b&0x80 != 0
		shift += 7
		n++
	}
	return prefix, value, n, nil
}
