// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package s1r

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEntry(t *testing.T, start, length uint64, fileOffset uint64, count int) Entry {
	e, err := MakeEntry(start, length, fileOffset, count)
	require.NoError(t, err)
	return e
}

func TestBuildAndQuerySmall(t *testing.T) {
	b := NewBuilder()
	want := []Entry{
		mustEntry(t, 100, 0, 1000, 1),
		mustEntry(t, 200, 50, 2000, 3),
		mustEntry(t, 500, 0, 3000, 1),
		mustEntry(t, 900, 10, 4000, 2),
	}
	for _, e := range want {
		b.Insert(e)
	}
	assert.Equal(t, len(want), b.Len())

	data, err := Build(nil, 2)
	require.NoError(t, err)
	r, err := NewReader(data)
	require.NoError(t, err)
	assert.Equal(t, 0, r.EntryCount())
	assert.Empty(t, r.Query(0, 1000))

	data, err = b.Finish(2)
	require.NoError(t, err)
	r, err = NewReader(data)
	require.NoError(t, err)
	assert.Equal(t, len(want), r.EntryCount())

	got := r.Query(150, 960)
	sort.Slice(got, func(i, j int) bool { return got[i].RegionStart < got[j].RegionStart })
	if assert.Len(t, got, 3) {
		assert.Equal(t, uint64(200), got[0].RegionStart)
		assert.Equal(t, uint64(500), got[1].RegionStart)
		assert.Equal(t, uint64(900), got[2].RegionStart)
	}

	assert.Empty(t, r.Query(0, 50))
	assert.Len(t, r.Query(0, 101), 1)
}

func TestBuildManyEntriesAcrossLevels(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	b := NewBuilder()
	const n = 5000
	type interval struct{ start, end uint64 }
	var intervals []interval
	for i := 0; i < n; i++ {
		start := uint64(rnd.Intn(1 << 20))
		length := uint64(rnd.Intn(100))
		b.Insert(mustEntry(t, start, length, uint64(i)*64, 1+rnd.Intn(10)))
		intervals = append(intervals, interval{start, start + length})
	}
	data, err := b.Finish(2)
	require.NoError(t, err)
	r, err := NewReader(data)
	require.NoError(t, err)
	assert.Equal(t, n, r.EntryCount())

	queryBegin, queryEnd := uint64(1<<18), uint64(1<<19)
	got := r.Query(queryBegin, queryEnd)

	var want int
	for _, iv := range intervals {
		if iv.start < queryEnd && queryBegin <= iv.end {
			want++
		}
	}
	assert.Len(t, got, want)
	for _, e := range got {
		assert.True(t, e.RegionStart < queryEnd && queryBegin <= e.RegionEnd())
	}
}

func TestEntryOverflow(t *testing.T) {
	_, err := MakeEntry(0, 10, 0, 65537)
	assert.Error(t, err)
	_, err = MakeEntry(0, 10, uint64(1)<<48, 1)
	assert.Error(t, err)
	_, err = MakeEntry(0, 10, 0, 65536)
	assert.NoError(t, err)
}

func TestExponentFanout(t *testing.T) {
	e := Exponent(2)
	assert.Equal(t, 4096, e.BlockBytes())
	assert.Equal(t, 4096/LeafEntrySize, e.LeafFanout())
	assert.Equal(t, 4096/InternalEntrySize, e.InternalFanout())
}
