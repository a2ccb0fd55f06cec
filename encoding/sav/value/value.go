// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package value implements the self-describing typed value container:
// a tagged scalar/vector with a dense or sparse layout, reserved
// MISSING/END_OF_VECTOR sentinels, and lossless conversions between the two
// layouts. The control-byte scheme mirrors BCF's typed descriptor (size
// nibble + type nibble, with an escape for size >= 15), generalized with an
// explicit off_type nibble for the sparse case.
package value

import (
	"math"

	"github.com/grailbio/sav/encoding/sav/saverr"
	"github.com/pkg/errors"
)

// Type tags the element kind of a Value's val_data, or (when used as
// off_type) the width of its sparse offset deltas.
type Type uint8

// Type tag values. They double as BCF-style type codes; Sparse (0) never
// appears in a val_data position, only as the dense/sparse flag in the
// first control byte and as the off_type "not sparse" sentinel.
const (
	Sparse  Type = 0
	Int8    Type = 1
	Int16   Type = 2
	Int32   Type = 3
	Int64   Type = 4
	Float32 Type = 5
	Float64 Type = 6
	String  Type = 7
)

// Width returns the byte width of one element of the given type. For
// integer types this is 2^(t-1) bytes; float, double and string are
// special-cased since they don't follow that progression.
func (t Type) Width() int {
	switch t {
	case Int8:
		return 1
	case Int16:
		return 2
	case Int32:
		return 4
	case Int64:
		return 8
	case Float32:
		return 4
	case Float64:
		return 8
	case String:
		return 1
	default:
		return 0
	}
}

func (t Type) String_() string {
	switch t {
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float"
	case Float64:
		return "double"
	case String:
		return "string"
	default:
		return "sparse"
	}
}

func (t Type) valid() bool {
	return t >= Int8 && t <= String
}

// Reserved sentinel bit patterns. They must be compared by bit pattern, not
// by IEEE equality, since NaN payloads do not compare equal to themselves.
const (
	MissingFloat32Bits      uint32 = 0x7F800001
	EndOfVectorFloat32Bits  uint32 = 0x7F800002
	MissingFloat64Bits      uint64 = 0x7FF0000000000001
	EndOfVectorFloat64Bits  uint64 = 0x7FF0000000000002
)

// MissingInt returns MISSING(intN) for the given width in bytes (1,2,4,8).
func MissingInt(width int) int64 {
	return -(int64(1) << uint(width*8-1))
}

// EndOfVectorInt returns END_OF_VECTOR(intN) for the given width in bytes.
func EndOfVectorInt(width int) int64 {
	return MissingInt(width) + 1
}

// MissingFloat32 returns the float32 MISSING sentinel.
func MissingFloat32() float32 { return math.Float32frombits(MissingFloat32Bits) }

// EndOfVectorFloat32 returns the float32 END_OF_VECTOR sentinel.
func EndOfVectorFloat32() float32 { return math.Float32frombits(EndOfVectorFloat32Bits) }

// MissingFloat64 returns the float64 MISSING sentinel.
func MissingFloat64() float64 { return math.Float64frombits(MissingFloat64Bits) }

// EndOfVectorFloat64 returns the float64 END_OF_VECTOR sentinel.
func EndOfVectorFloat64() float64 { return math.Float64frombits(EndOfVectorFloat64Bits) }

// IsMissingFloat32 reports whether v is the float32 MISSING sentinel, by bit
// pattern.
func IsMissingFloat32(v float32) bool { return math.Float32bits(v) == MissingFloat32Bits }

// IsEndOfVectorFloat32 reports whether v is the float32 END_OF_VECTOR
// sentinel, by bit pattern.
func IsEndOfVectorFloat32(v float32) bool { return math.Float32bits(v) == EndOfVectorFloat32Bits }

// IsMissingFloat64 reports whether v is the float64 MISSING sentinel.
func IsMissingFloat64(v float64) bool { return math.Float64bits(v) == MissingFloat64Bits }

// IsEndOfVectorFloat64 reports whether v is the float64 END_OF_VECTOR
// sentinel.
func IsEndOfVectorFloat64(v float64) bool { return math.Float64bits(v) == EndOfVectorFloat64Bits }

// Value is the self-describing typed scalar/vector container.
// ValData/OffData are the raw little-endian bytes as they appear on the
// wire; use the At/Put accessors rather than indexing them directly.
type Value struct {
	ValType Type
	OffType Type // Sparse (0) means dense.
	Size    int  // Logical element count.
	NNZ     int  // Meaningful only when OffType != Sparse.
	OffData []byte
	ValData []byte
}

// IsSparse reports whether v uses the sparse layout.
func (v *Value) IsSparse() bool { return v.OffType != Sparse }

// NewDense creates a dense Value of the given type and size, with zeroed
// storage.
func NewDense(t Type, size int) Value {
	return Value{ValType: t, Size: size, ValData: make([]byte, size*t.Width())}
}

// elementWidth returns the ValData element width, or 1 for String (its
// "elements" are bytes).
func (v *Value) elementWidth() int { return v.ValType.Width() }

// IntAt returns the i'th logical element as an int64, valid for integer
// ValTypes. For a sparse value it returns the stored non-zero value at
// sparse position i (0 <= i < NNZ), not the absolute logical position.
func (v *Value) IntAt(i int) int64 {
	off := i * v.elementWidth()
	switch v.ValType {
	case Int8:
		return int64(int8(v.ValData[off]))
	case Int16:
		return int64(int16(le16(v.ValData[off:])))
	case Int32:
		return int64(int32(le32(v.ValData[off:])))
	case Int64:
		return int64(le64(v.ValData[off:]))
	default:
		panic("value: IntAt on non-integer type")
	}
}

// PutIntAt stores x as the i'th logical element, truncated to ValType's
// width.
func (v *Value) PutIntAt(i int, x int64) {
	off := i * v.elementWidth()
	switch v.ValType {
	case Int8:
		v.ValData[off] = byte(int8(x))
	case Int16:
		putLE16(v.ValData[off:], uint16(int16(x)))
	case Int32:
		putLE32(v.ValData[off:], uint32(int32(x)))
	case Int64:
		putLE64(v.ValData[off:], uint64(x))
	default:
		panic("value: PutIntAt on non-integer type")
	}
}

// Float32At returns the i'th logical element as a float32.
func (v *Value) Float32At(i int) float32 {
	return math.Float32frombits(le32(v.ValData[i*4:]))
}

// Float64At returns the i'th logical element as a float64.
func (v *Value) Float64At(i int) float64 {
	return math.Float64frombits(le64(v.ValData[i*8:]))
}

// offsetAt returns the raw delta stored at sparse position i of OffData.
func (v *Value) offsetAt(i int) int64 {
	w := v.OffType.Width()
	off := i * w
	switch v.OffType {
	case Int8:
		return int64(int8(v.OffData[off]))
	case Int16:
		return int64(int16(le16(v.OffData[off:])))
	case Int32:
		return int64(int32(le32(v.OffData[off:])))
	case Int64:
		return int64(le64(v.OffData[off:]))
	default:
		panic("value: offsetAt on dense value")
	}
}

func (v *Value) putOffsetAt(i int, delta int64) {
	w := v.OffType.Width()
	off := i * w
	switch v.OffType {
	case Int8:
		v.OffData[off] = byte(int8(delta))
	case Int16:
		putLE16(v.OffData[off:], uint16(int16(delta)))
	case Int32:
		putLE32(v.OffData[off:], uint32(int32(delta)))
	case Int64:
		putLE64(v.OffData[off:], uint64(delta))
	default:
		panic("value: putOffsetAt on dense value")
	}
}

// SparseIndices returns the absolute logical index of every stored
// non-zero element: "absolute index of element i is Σ₀..ᵢ off[j] +
// i".
func (v *Value) SparseIndices() []int {
	if !v.IsSparse() {
		panic("value: SparseIndices on dense value")
	}
	indices := make([]int, v.NNZ)
	var cum int64
	for i := 0; i < v.NNZ; i++ {
		cum += v.offsetAt(i)
		indices[i] = int(cum) + i
	}
	return indices
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func le64(b []byte) uint64 {
	return uint64(le32(b)) | uint64(le32(b[4:]))<<32
}
func putLE16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
func putLE64(b []byte, v uint64) {
	putLE32(b, uint32(v))
	putLE32(b[4:], uint32(v>>32))
}

// smallestIntType returns the narrowest integer Type that can losslessly
// hold every value in absolute value up to maxAbs, reserving the top 8
// sentinel values of each width ("values strictly less than MISSING+8 are
// reserved").
func smallestIntType(maxAbs int64) Type {
	for _, t := range []Type{Int8, Int16, Int32} {
		w := t.Width()
		limit := (int64(1) << uint(w*8-1)) - 8
		if maxAbs < limit {
			return t
		}
	}
	return Int64
}

var errBadType = errors.Wrap(saverr.BadType, "value")
