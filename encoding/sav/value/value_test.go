// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func denseInt8(xs ...int8) Value {
	v := NewDense(Int8, len(xs))
	for i, x := range xs {
		v.PutIntAt(i, int64(x))
	}
	return v
}

func TestSerializeRoundTripDense(t *testing.T) {
	v := denseInt8(0, 1, -1, int8(MissingInt(1)), int8(EndOfVectorInt(1)))
	var buf []byte
	assert.NoError(t, Serialize(&v, &buf, 1))
	got, n, err := Deserialize(buf, 1)
	assert.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, v.ValType, got.ValType)
	assert.Equal(t, v.OffType, got.OffType)
	assert.Equal(t, v.Size, got.Size)
	for i := 0; i < v.Size; i++ {
		assert.Equal(t, v.IntAt(i), got.IntAt(i))
	}
}

func TestSerializeRoundTripLargeSize(t *testing.T) {
	v := NewDense(Int32, 20)
	for i := 0; i < 20; i++ {
		v.PutIntAt(i, int64(i*i))
	}
	var buf []byte
	assert.NoError(t, Serialize(&v, &buf, 1))
	got, _, err := Deserialize(buf, 1)
	assert.NoError(t, err)
	assert.Equal(t, 20, got.Size)
	for i := 0; i < 20; i++ {
		assert.Equal(t, int64(i*i), got.IntAt(i))
	}
}

func TestSerializeRoundTripSparse(t *testing.T) {
	dense := NewDense(Int16, 1000000)
	dense.PutIntAt(5, 7)
	dense.PutIntAt(900000, -3)
	sparse := dense.CopyAsSparse()
	var buf []byte
	assert.NoError(t, Serialize(&sparse, &buf, 1))
	// 2 control bytes + typed nnz + nnz*(off+val) widths; well under the
	// dense 2MB encoding.
	assert.Less(t, len(buf), 100)
	got, n, err := Deserialize(buf, 1)
	assert.NoError(t, err)
	assert.Equal(t, len(buf), n)
	redense := got.CopyAsDense()
	for i := 0; i < dense.Size; i++ {
		assert.Equal(t, dense.IntAt(i), redense.IntAt(i), "index %d", i)
	}
}

func TestDenseSparseEquivalence(t *testing.T) {
	dense := denseInt8(0, 0, 5, 0, -5, 0, 0, 3)
	sparse := dense.CopyAsSparse()
	assert.Equal(t, 3, sparse.NNZ)
	redense := sparse.CopyAsDense()
	for i := 0; i < dense.Size; i++ {
		assert.Equal(t, dense.IntAt(i), redense.IntAt(i))
	}
}

func TestSubsetDenseAndSparseAgree(t *testing.T) {
	dense := denseInt8(1, 0, 2, 0, 3, 0, 4)
	mask := []bool{true, false, true, true, false, false, true}
	k := 0
	for _, m := range mask {
		if m {
			k++
		}
	}
	viaDense := dense.Subset(mask, k)
	sparse := dense.CopyAsSparse()
	viaSparse := sparse.Subset(mask, k).CopyAsDense()
	assert.Equal(t, viaDense.Size, viaSparse.Size)
	for i := 0; i < k; i++ {
		assert.Equal(t, viaDense.IntAt(i), viaSparse.IntAt(i))
	}
}

func TestFloatSentinelsBitPattern(t *testing.T) {
	assert.True(t, IsMissingFloat32(MissingFloat32()))
	assert.True(t, IsEndOfVectorFloat32(EndOfVectorFloat32()))
	assert.True(t, IsMissingFloat64(MissingFloat64()))
	assert.True(t, IsEndOfVectorFloat64(EndOfVectorFloat64()))
	assert.False(t, IsMissingFloat32(0))
}

func TestBCFGTRoundTrip(t *testing.T) {
	alleles := []int8{-1, 0, 1, 2}
	phased := []bool{false, true, false, true}
	encoded := BCFGTEncodeVector(alleles, phased)
	gotAlleles, gotPhased := BCFGTDecodeVector(encoded)
	assert.Equal(t, alleles, gotAlleles)
	assert.Equal(t, phased, gotPhased)
}

func TestApplySparseVisitsOnlyNonZero(t *testing.T) {
	dense := denseInt8(0, 0, 9, 0, 7)
	sparse := dense.CopyAsSparse()
	visited := map[int]int64{}
	sparse.Apply(func(idx int, val int64) { visited[idx] = val })
	assert.Equal(t, map[int]int64{2: 9, 4: 7}, visited)
}

func TestChooseLayoutPrefersSparseWhenSmaller(t *testing.T) {
	vals := make([]int8, 1000)
	vals[10] = 5
	vals[900] = 7
	dense := denseInt8(vals...)
	sparse, useSparse := dense.ChooseLayout()
	assert.True(t, useSparse)
	assert.Equal(t, 2, sparse.NNZ)
}

func TestChooseLayoutPrefersDenseWhenNotSparser(t *testing.T) {
	dense := denseInt8(1, 2, 3, 4, 5, 6, 7, 8)
	_, useSparse := dense.ChooseLayout()
	assert.False(t, useSparse)
}
