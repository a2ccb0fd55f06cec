// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package pbwt implements the stateful positional Burrows-Wheeler-style
// permutation applied to small-integer FORMAT vectors to cluster runs of
// equal values for better zstd compressibility. Each (FORMAT key,
// vector-length) pair owns one Context, held by the reader or writer across
// the records of a block rather than as process-wide state.
package pbwt

import "sort"

// Context is the permutation state for one (FORMAT key, vector-length)
// pair. The zero value is not usable; create one with NewContext.
type Context struct {
	perm []int
}

// NewContext creates a Context for vectors of the given size, with the
// permutation initialized to the identity.
func NewContext(size int) *Context {
	c := &Context{perm: make([]int, size)}
	c.Reset()
	return c
}

// Reset restores the identity permutation. Called at block start and
// whenever the contig changes, per the shared sample word's reset bit.
func (c *Context) Reset() {
	for i := range c.perm {
		c.perm[i] = i
	}
}

// Size returns the vector length this context was built for.
func (c *Context) Size() int { return len(c.perm) }

// Encode permutes v (keyed by its unsigned bit pattern, e.g. uint16(int16
// value)) into output order out[i] = v[π[i]], then advances π to the
// counting-sort of v[π[0..size)].
func (c *Context) Encode(v []uint16) []uint16 {
	if len(v) != len(c.perm) {
		panic("pbwt: vector size mismatch")
	}
	out := make([]uint16, len(v))
	for i, p := range c.perm {
		out[i] = v[p]
	}
	c.perm = stableSortByKey(c.perm, func(i int) uint16 { return v[i] })
	return out
}

// Decode is the inverse of Encode: given permuted values in output order,
// it reconstructs v by scattering through π, then advances π using the same
// counting rule the encoder used.
func (c *Context) Decode(permuted []uint16) []uint16 {
	if len(permuted) != len(c.perm) {
		panic("pbwt: vector size mismatch")
	}
	out := make([]uint16, len(permuted))
	for i, p := range c.perm {
		out[p] = permuted[i]
	}
	c.perm = stableSortByKey(c.perm, func(i int) uint16 { return out[i] })
	return out
}

// stableSortByKey returns a permutation of idx sorted by key, a bucket
// (counting) sort stable on ties: this is the "counting-sort the elements
// v[π[0..size)] by unsigned value" step.
func stableSortByKey(idx []int, key func(i int) uint16) []int {
	buckets := make(map[uint16][]int, len(idx))
	var distinct []uint16
	for _, i := range idx {
		k := key(i)
		if _, ok := buckets[k]; !ok {
			distinct = append(distinct, k)
		}
		buckets[k] = append(buckets[k], i)
	}
	sort.Slice(distinct, func(a, b int) bool { return distinct[a] < distinct[b] })
	out := make([]int, 0, len(idx))
	for _, k := range distinct {
		out = append(out, buckets[k]...)
	}
	return out
}

// EncodeInt8 is the int8 specialization of Encode.
func (c *Context) EncodeInt8(v []int8) []int8 {
	keys := make([]uint16, len(v))
	for i, x := range v {
		keys[i] = uint16(uint8(x))
	}
	permuted := c.Encode(keys)
	out := make([]int8, len(v))
	for i, k := range permuted {
		out[i] = int8(uint8(k))
	}
	return out
}

// DecodeInt8 is the int8 specialization of Decode.
func (c *Context) DecodeInt8(permuted []int8) []int8 {
	keys := make([]uint16, len(permuted))
	for i, x := range permuted {
		keys[i] = uint16(uint8(x))
	}
	v := c.Decode(keys)
	out := make([]int8, len(v))
	for i, k := range v {
		out[i] = int8(uint8(k))
	}
	return out
}

// EncodeInt16 is the int16 specialization of Encode.
func (c *Context) EncodeInt16(v []int16) []int16 {
	keys := make([]uint16, len(v))
	for i, x := range v {
		keys[i] = uint16(x)
	}
	permuted := c.Encode(keys)
	out := make([]int16, len(v))
	for i, k := range permuted {
		out[i] = int16(k)
	}
	return out
}

// DecodeInt16 is the int16 specialization of Decode.
func (c *Context) DecodeInt16(permuted []int16) []int16 {
	keys := make([]uint16, len(permuted))
	for i, x := range permuted {
		keys[i] = uint16(x)
	}
	v := c.Decode(keys)
	out := make([]int16, len(v))
	for i, k := range v {
		out[i] = int16(k)
	}
	return out
}
