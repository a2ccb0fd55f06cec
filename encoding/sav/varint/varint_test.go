// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package varint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 2, 127, 128, 129, 16383, 16384, math.MaxUint32, math.MaxUint64}
	for _, x := range values {
		buf := make([]byte, MaxLen)
		n := Put(buf, x)
		assert.Equal(t, Len(x), n)
		got, n2, err := Get(buf[:n])
		assert.NoError(t, err)
		assert.Equal(t, n, n2)
		assert.Equal(t, x, got)
	}
}

func TestTruncated(t *testing.T) {
	buf := make([]byte, MaxLen)
	n := Put(buf, 1<<40)
	_, _, err := Get(buf[:n-1])
	assert.Equal(t, ErrTruncated, err)
}

func TestPrefixedRoundTrip(t *testing.T) {
	for k := uint8(1); k <= 7; k++ {
		maxPrefix := uint8(1)<<k - 1
		values := []uint64{0, 1, 2, 63, 64, 1 << 20, math.MaxUint32}
		for prefix := uint8(0); prefix <= maxPrefix; prefix++ {
			for _, v := range values {
				buf := make([]byte, MaxLen+1)
				n := PutPrefixed(buf, k, prefix, v)
				assert.Equal(t, PrefixedLen(k, v), n)
				gotPrefix, gotValue, n2, err := GetPrefixed(buf[:n], k)
				assert.NoError(t, err)
				assert.Equal(t, n, n2)
				assert.Equal(t, prefix, gotPrefix)
				assert.Equal(t, v, gotValue)
			}
		}
	}
}

func TestPrefixedTruncated(t *testing.T) {
	buf := make([]byte, MaxLen+1)
	n := PutPrefixed(buf, 3, 5, 1<<30)
	_, _, _, err := GetPrefixed(buf[:n-1], 3)
	assert.Equal(t, ErrTruncated, err)
}
