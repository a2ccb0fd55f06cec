// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package value

import (
	"github.com/grailbio/sav/encoding/sav/saverr"
	"github.com/pkg/errors"
)

// writeTypedInt writes n as a one-element typed value: a control byte with
// size nibble 1 and the narrowest integer type that holds n, followed by
// the value itself. It is the "typed integer scalar" encoding used both for
// escaped sizes and for sparse nnz.
func writeTypedInt(c *cursor, n int) {
	t := smallestIntType(int64(n))
	c.putUint8(byte(1<<4) | byte(t))
	switch t {
	case Int8:
		c.putUint8(byte(int8(n)))
	case Int16:
		c.putUint16(uint16(int16(n)))
	case Int32:
		c.putUint32(uint32(int32(n)))
	default:
		c.putUint64(uint64(int64(n)))
	}
}

// EncodeTypedInt appends n to out as a one-element typed integer scalar:
// the same "typed integer scalar" encoding used for escaped sizes and
// sparse nnz, exported for record-level fields like FORMAT and INFO key
// ids that embed standalone typed integers.
func EncodeTypedInt(out *[]byte, n int) {
	c := newCursor(*out)
	c.n = len(*out)
	writeTypedInt(c, n)
	*out = c.bytes()
}

// DecodeTypedInt decodes one typed integer scalar from the head of in,
// returning the value and the number of bytes consumed.
func DecodeTypedInt(in []byte) (int, int, error) {
	c := newCursor(in)
	n, err := readTypedInt(c)
	if err != nil {
		return 0, 0, err
	}
	return n, c.n, nil
}

func readTypedInt(c *cursor) (int, error) {
	if c.remaining() < 1 {
		return 0, saverr.Truncated
	}
	cb := c.uint8()
	t := Type(cb & 0x0F)
	if c.remaining() < t.Width() {
		return 0, saverr.Truncated
	}
	switch t {
	case Int8:
		return int(int8(c.uint8())), nil
	case Int16:
		return int(int16(c.uint16())), nil
	case Int32:
		return int(int32(c.uint32())), nil
	case Int64:
		return int(int64(c.uint64())), nil
	default:
		return 0, errors.Wrapf(saverr.BadType, "readTypedInt: tag %d", t)
	}
}

// Serialize writes v in the control-byte format. sizeDiv
// lets a BCF-style FORMAT field carry a per-sample stride; SAV files always
// pass 1.
func Serialize(v *Value, out *[]byte, sizeDiv int) error {
	if !v.ValType.valid() {
		return errors.Wrapf(saverr.BadType, "serialize: val_type %d", v.ValType)
	}
	if v.IsSparse() && v.ValType == String {
		return errors.Wrap(saverr.BadType, "serialize: sparse string is unsupported")
	}
	c := newCursor(*out)
	c.n = len(*out)

	sizeNibble := v.Size / sizeDiv
	if sizeNibble > 14 {
		sizeNibble = 15
	}
	firstLow := byte(0)
	if !v.IsSparse() {
		firstLow = byte(v.ValType)
	}
	c.putUint8(byte(sizeNibble<<4) | firstLow)
	if sizeNibble == 15 {
		writeTypedInt(c, v.Size)
	}

	if v.IsSparse() {
		if !v.OffType.valid() {
			return errors.Wrapf(saverr.BadType, "serialize: off_type %d", v.OffType)
		}
		c.putUint8(byte(v.OffType)<<4 | byte(v.ValType))
		writeTypedInt(c, v.NNZ)
		c.putBytes(v.OffData)
		c.putBytes(v.ValData)
	} else if v.ValType == String {
		c.putBytes(v.ValData)
	} else {
		c.putBytes(v.ValData)
	}
	*out = c.bytes()
	return nil
}

// Deserialize reads one typed value from in, returning the value and the
// number of bytes consumed.
func Deserialize(in []byte, sizeDiv int) (Value, int, error) {
	c := newCursor(in)
	if c.remaining() < 1 {
		return Value{}, 0, saverr.Truncated
	}
	cb := c.uint8()
	sizeNibble := int(cb >> 4)
	lowNibble := Type(cb & 0x0F)

	size := sizeNibble * sizeDiv
	if sizeNibble == 15 {
		var err error
		if size, err = readTypedInt(c); err != nil {
			return Value{}, 0, err
		}
	}

	if lowNibble == Sparse {
		if c.remaining() < 1 {
			return Value{}, 0, saverr.Truncated
		}
		cb2 := c.uint8()
		offType := Type(cb2 >> 4)
		valType := Type(cb2 & 0x0F)
		if !offType.valid() || !valType.valid() || valType == String {
			return Value{}, 0, errors.Wrapf(saverr.BadType, "deserialize: sparse off=%d val=%d", offType, valType)
		}
		nnz, err := readTypedInt(c)
		if err != nil {
			return Value{}, 0, err
		}
		offBytes := nnz * offType.Width()
		valBytes := nnz * valType.Width()
		if c.remaining() < offBytes+valBytes {
			return Value{}, 0, saverr.Truncated
		}
		v := Value{
			ValType: valType,
			OffType: offType,
			Size:    size,
			NNZ:     nnz,
			OffData: c.rawBytes(offBytes),
			ValData: c.rawBytes(valBytes),
		}
		return v, c.n, nil
	}

	valType := lowNibble
	if !valType.valid() {
		return Value{}, 0, errors.Wrapf(saverr.BadType, "deserialize: val_type %d", valType)
	}
	nbytes := size * valType.Width()
	if c.remaining() < nbytes {
		return Value{}, 0, saverr.Truncated
	}
	v := Value{ValType: valType, Size: size, ValData: c.rawBytes(nbytes)}
	return v, c.n, nil
}
