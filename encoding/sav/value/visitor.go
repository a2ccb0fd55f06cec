// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package value

// IntVisitor is called once per logical element of an integer-typed Value
// by Apply. For a sparse value it is called only for the stored non-zero
// elements, each tagged with its absolute logical index.
type IntVisitor func(logicalIndex int, val int64)

// FloatVisitor is the float32/float64 analog of IntVisitor.
type FloatVisitor func(logicalIndex int, val float64)

// Apply dispatches to fn for every element of v's integer-typed data,
// walking dense storage in order or sparse storage via its offset deltas.
// This is a monomorphic visitor in place of a templated apply/capply member
// function.
func (v *Value) Apply(fn IntVisitor) {
	switch v.ValType {
	case Int8, Int16, Int32, Int64:
	default:
		panic("value: Apply(IntVisitor) on non-integer type")
	}
	if v.IsSparse() {
		for i, idx := range v.SparseIndices() {
			fn(idx, v.IntAt(i))
		}
		return
	}
	for i := 0; i < v.Size; i++ {
		fn(i, v.IntAt(i))
	}
}

// ApplyFloat is the float32/float64 analog of Apply.
func (v *Value) ApplyFloat(fn FloatVisitor) {
	get := func(i int) float64 {
		if v.ValType == Float32 {
			return float64(v.Float32At(i))
		}
		return v.Float64At(i)
	}
	switch v.ValType {
	case Float32, Float64:
	default:
		panic("value: ApplyFloat on non-float type")
	}
	if v.IsSparse() {
		for i, idx := range v.SparseIndices() {
			fn(idx, get(i))
		}
		return
	}
	for i := 0; i < v.Size; i++ {
		fn(i, get(i))
	}
}

// CApply is the "complete apply": it visits every logical position
// including defaulted/implicit-zero sparse slots, passing isExplicit=false
// for the latter.
func (v *Value) CApply(fn func(logicalIndex int, val int64, isExplicit bool)) {
	if !v.IsSparse() {
		for i := 0; i < v.Size; i++ {
			fn(i, v.IntAt(i), true)
		}
		return
	}
	indices := v.SparseIndices()
	pos := 0
	for i := 0; i < v.Size; i++ {
		if pos < len(indices) && indices[pos] == i {
			fn(i, v.IntAt(pos), true)
			pos++
		} else {
			fn(i, 0, false)
		}
	}
}
