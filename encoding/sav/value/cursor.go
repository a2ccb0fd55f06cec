// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package value

import (
	"encoding/binary"
	"math"

	"github.com/grailbio/base/log"
	"github.com/grailbio/sav/encoding/sav/varint"
)

// cursor is a wrapper around a byte slice plus a read/write position, mirroring
// the byteBuffer helper in encoding/pam/fieldio. Using explicit LittleEndian
// accessors throughout means callers never need a host-endian branch: the
// byte swap required on big-endian hosts happens for free inside
// encoding/binary.
type cursor struct {
	n   int
	buf []byte
}

func newCursor(buf []byte) *cursor { return &cursor{buf: buf} }

// Reader side.

func (c *cursor) remaining() int { return len(c.buf) - c.n }

func (c *cursor) uint8() uint8 {
	v := c.buf[c.n]
	c.n++
	return v
}

func (c *cursor) uint16() uint16 {
	v := binary.LittleEndian.Uint16(c.buf[c.n:])
	c.n += 2
	return v
}

func (c *cursor) uint32() uint32 {
	v := binary.LittleEndian.Uint32(c.buf[c.n:])
	c.n += 4
	return v
}

func (c *cursor) uint64() uint64 {
	v := binary.LittleEndian.Uint64(c.buf[c.n:])
	c.n += 8
	return v
}

func (c *cursor) float32() float32 {
	return math.Float32frombits(c.uint32())
}

func (c *cursor) float64() float64 {
	return math.Float64frombits(c.uint64())
}

func (c *cursor) uvarint() uint64 {
	v, n, err := varint.Get(c.buf[c.n:])
	if err != nil {
		log.Panicf("cursor.uvarint: %v", err)
	}
	c.n += n
	return v
}

func (c *cursor) rawBytes(n int) []byte {
	v := c.buf[c.n : c.n+n]
	c.n += n
	return v
}

// Writer side.

func (c *cursor) ensure(extra int) {
	if cap(c.buf) >= c.n+extra {
		return
	}
	newCap := ((c.n+extra)/16 + 1) * 16
	if newCap < cap(c.buf)*2 {
		newCap = cap(c.buf) * 2
	}
	newBuf := make([]byte, newCap)
	copy(newBuf, c.buf[:c.n])
	c.buf = newBuf
}

func (c *cursor) putUint8(v uint8) {
	c.ensure(1)
	c.buf = c.buf[:c.n+1]
	c.buf[c.n] = v
	c.n++
}

func (c *cursor) putUint16(v uint16) {
	c.ensure(2)
	c.buf = c.buf[:c.n+2]
	binary.LittleEndian.PutUint16(c.buf[c.n:], v)
	c.n += 2
}

func (c *cursor) putUint32(v uint32) {
	c.ensure(4)
	c.buf = c.buf[:c.n+4]
	binary.LittleEndian.PutUint32(c.buf[c.n:], v)
	c.n += 4
}

func (c *cursor) putUint64(v uint64) {
	c.ensure(8)
	c.buf = c.buf[:c.n+8]
	binary.LittleEndian.PutUint64(c.buf[c.n:], v)
	c.n += 8
}

func (c *cursor) putFloat32(v float32) { c.putUint32(math.Float32bits(v)) }
func (c *cursor) putFloat64(v float64) { c.putUint64(math.Float64bits(v)) }

func (c *cursor) putUvarint(v uint64) {
	c.ensure(10)
	c.buf = c.buf[:c.n+10]
	n := binary.PutUvarint(c.buf[c.n:], v)
	c.buf = c.buf[:c.n+n]
	c.n += n
}

func (c *cursor) putBytes(data []byte) {
	c.ensure(len(data))
	c.buf = c.buf[:c.n+len(data)]
	copy(c.buf[c.n:], data)
	c.n += len(data)
}

func (c *cursor) bytes() []byte { return c.buf[:c.n] }
