// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package value

// isDefaultAt reports whether the dense element at logical index i is the
// default (zero) value; sparse layout only stores non-default elements.
func (v *Value) isDefaultAt(i int) bool {
	switch v.ValType {
	case Int8, Int16, Int32, Int64:
		return v.IntAt(i) == 0
	case Float32:
		return v.Float32At(i) == 0
	case Float64:
		return v.Float64At(i) == 0
	default:
		return false
	}
}

// CopyAsSparse converts v (which must be dense) to the sparse layout,
// selecting the narrowest off_type that holds the largest delta between
// consecutive non-zero positions.
func (v *Value) CopyAsSparse() Value {
	if v.IsSparse() {
		return v.clone()
	}
	var indices []int
	for i := 0; i < v.Size; i++ {
		if !v.isDefaultAt(i) {
			indices = append(indices, i)
		}
	}
	var maxDelta int64
	prev := -1
	for _, idx := range indices {
		delta := int64(idx - prev - 1)
		if delta > maxDelta {
			maxDelta = delta
		}
		prev = idx
	}
	offType := smallestIntType(maxDelta)

	sv := Value{
		ValType: v.ValType,
		OffType: offType,
		Size:    v.Size,
		NNZ:     len(indices),
		OffData: make([]byte, len(indices)*offType.Width()),
		ValData: make([]byte, len(indices)*v.ValType.Width()),
	}
	prev = -1
	for i, idx := range indices {
		sv.putOffsetAt(i, int64(idx-prev-1))
		prev = idx
		copy(sv.ValData[i*v.ValType.Width():], v.ValData[idx*v.ValType.Width():(idx+1)*v.ValType.Width()])
	}
	return sv
}

// CopyAsDense converts v (which must be sparse) to the dense layout.
func (v *Value) CopyAsDense() Value {
	if !v.IsSparse() {
		return v.clone()
	}
	dv := NewDense(v.ValType, v.Size)
	w := v.ValType.Width()
	for i, idx := range v.SparseIndices() {
		copy(dv.ValData[idx*w:(idx+1)*w], v.ValData[i*w:(i+1)*w])
	}
	return dv
}

// ChooseLayout converts dense (which must not already be sparse) to sparse
// layout and reports whether the sparse encoding is smaller: it compares
// nnz*(off_width+val_width) against size*val_width, the threshold the
// writer applies per FORMAT field before choosing which layout to emit.
func (v *Value) ChooseLayout() (sparse Value, useSparse bool) {
	if v.IsSparse() || v.ValType == String {
		return Value{}, false
	}
	sparse = v.CopyAsSparse()
	sparseBytes := sparse.NNZ * (sparse.OffType.Width() + sparse.ValType.Width())
	denseBytes := v.Size * v.ValType.Width()
	return sparse, sparseBytes < denseBytes
}

func (v *Value) clone() Value {
	cp := *v
	cp.OffData = append([]byte(nil), v.OffData...)
	cp.ValData = append([]byte(nil), v.ValData...)
	return cp
}

// Subset retains only the elements selected by mask (len(mask) == v.Size
// for a per-sample vector), returning a value of logical size k == number
// of true entries in mask. For sparse values the offsets are recomputed in
// a single pass.
func (v *Value) Subset(mask []bool, k int) Value {
	if !v.IsSparse() {
		w := v.ValType.Width()
		dv := NewDense(v.ValType, k)
		j := 0
		for i, keep := range mask {
			if keep {
				copy(dv.ValData[j*w:(j+1)*w], v.ValData[i*w:(i+1)*w])
				j++
			}
		}
		return dv
	}

	w := v.ValType.Width()
	indices := v.SparseIndices()
	var keptIdx []int
	var keptVal [][]byte
	// newPos[i] gives the post-subset logical position of original logical
	// position i, valid only when mask[i] is true.
	newPos := make([]int, v.Size)
	j := 0
	for i, keep := range mask {
		if keep {
			newPos[i] = j
			j++
		}
	}
	for i, idx := range indices {
		if idx < len(mask) && mask[idx] {
			keptIdx = append(keptIdx, newPos[idx])
			keptVal = append(keptVal, v.ValData[i*w:(i+1)*w])
		}
	}

	var maxDelta int64
	prev := -1
	for _, idx := range keptIdx {
		delta := int64(idx - prev - 1)
		if delta > maxDelta {
			maxDelta = delta
		}
		prev = idx
	}
	offType := smallestIntType(maxDelta)
	sv := Value{
		ValType: v.ValType,
		OffType: offType,
		Size:    k,
		NNZ:     len(keptIdx),
		OffData: make([]byte, len(keptIdx)*offType.Width()),
		ValData: make([]byte, len(keptIdx)*w),
	}
	prev = -1
	for i, idx := range keptIdx {
		sv.putOffsetAt(i, int64(idx-prev-1))
		prev = idx
		copy(sv.ValData[i*w:(i+1)*w], keptVal[i])
	}
	return sv
}
