// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sav

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/sav/encoding/sav/value"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
)

func newTestHeader(t *testing.T) *Header {
	h := NewHeader()
	lines := []string{
		`##contig=<ID=chr1,length=1000>`,
		`##contig=<ID=chr2,length=1000>`,
		`##INFO=<ID=END,Number=1,Type=Integer>`,
		`##FORMAT=<ID=GT,Number=1,Type=Integer>`,
	}
	for _, l := range lines {
		expect.NoError(t, h.ParseLine(l))
	}
	h.Dicts.Sample.Insert("sample0", Number{Kind: NumberFixed, Fixed: 1}, value.String)
	h.Dicts.Sample.Insert("sample1", Number{Kind: NumberFixed, Fixed: 1}, value.String)
	return h
}

func gtField(h *Header, calls ...int8) FormatField {
	key, _ := h.Dicts.ID.Lookup("GT")
	v := value.NewDense(value.Int8, len(calls))
	for i, c := range calls {
		v.PutIntAt(i, int64(c))
	}
	return FormatField{Key: int32(key.ID), Value: v}
}

func writeTestFile(t *testing.T, path string, h *Header, recs []*Record, opts WriteOpts) {
	f, err := os.Create(path)
	expect.NoError(t, err)
	w, err := NewWriter(f, h, opts)
	expect.NoError(t, err)
	for _, r := range recs {
		expect.NoError(t, w.Write(r))
	}
	expect.NoError(t, w.Close())
}

func TestWriterReaderRoundTrip(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	h := newTestHeader(t)
	chr1, _ := h.Dicts.Contig.Lookup("chr1")
	chr2, _ := h.Dicts.Contig.Lookup("chr2")

	recs := []*Record{
		{Site: Site{ChromID: int32(chr1.ID), Pos: 100, Ref: "A", Alts: []string{"G"}},
			Formats: []FormatField{gtField(h, 0, 1)}},
		{Site: Site{ChromID: int32(chr1.ID), Pos: 200, Ref: "C", Alts: []string{"T"}},
			Formats: []FormatField{gtField(h, 1, 1)}},
		{Site: Site{ChromID: int32(chr2.ID), Pos: 50, Ref: "G", Alts: []string{"A"}},
			Formats: []FormatField{gtField(h, 0, 0)}},
	}

	path := filepath.Join(dir, "test.sav")
	writeTestFile(t, path, h, recs, WriteOpts{BlockSize: 8, CompressionLevel: 3})

	f, err := os.Open(path)
	expect.NoError(t, err)
	defer f.Close()
	r, err := NewReader(f)
	expect.NoError(t, err)
	defer r.Close()

	var got []*Record
	for {
		rec, err := r.Next()
		if err != nil {
			break
		}
		got = append(got, rec)
	}
	expect.EQ(t, len(got), 3)
	expect.EQ(t, got[0].Site.Pos, int32(100))
	expect.EQ(t, got[0].Site.Ref, "A")
	expect.EQ(t, got[0].Formats[0].Value.IntAt(0), int64(0))
	expect.EQ(t, got[1].Site.Pos, int32(200))
	expect.EQ(t, got[2].Site.ChromID, int32(chr2.ID))
}

func TestWriterRawModeRoundTrip(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	h := newTestHeader(t)
	chr1, _ := h.Dicts.Contig.Lookup("chr1")
	recs := []*Record{
		{Site: Site{ChromID: int32(chr1.ID), Pos: 10, Ref: "A", Alts: []string{"T"}},
			Formats: []FormatField{gtField(h, 0, 1)}},
	}
	path := filepath.Join(dir, "raw.sav")
	writeTestFile(t, path, h, recs, WriteOpts{BlockSize: 0, CompressionLevel: 0})

	f, err := os.Open(path)
	expect.NoError(t, err)
	defer f.Close()
	r, err := NewReader(f)
	expect.NoError(t, err)
	rec, err := r.Next()
	expect.NoError(t, err)
	expect.EQ(t, rec.Site.Pos, int32(10))
	_, err = r.Next()
	expect.EQ(t, err, io.EOF)
}

func TestQuerierRangeQuery(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	h := newTestHeader(t)
	chr1, _ := h.Dicts.Contig.Lookup("chr1")
	chr2, _ := h.Dicts.Contig.Lookup("chr2")

	recs := []*Record{
		{Site: Site{ChromID: int32(chr1.ID), Pos: 100, Ref: "A", Alts: []string{"G"}},
			Formats: []FormatField{gtField(h, 0, 1)}},
		{Site: Site{ChromID: int32(chr1.ID), Pos: 500, Ref: "C", Alts: []string{"T"}},
			Formats: []FormatField{gtField(h, 1, 1)}},
		{Site: Site{ChromID: int32(chr1.ID), Pos: 900, Ref: "G", Alts: []string{"A"}},
			Formats: []FormatField{gtField(h, 0, 0)}},
		{Site: Site{ChromID: int32(chr2.ID), Pos: 50, Ref: "G", Alts: []string{"A"}},
			Formats: []FormatField{gtField(h, 1, 0)}},
	}
	path := filepath.Join(dir, "idx.sav")
	writeTestFile(t, path, h, recs, WriteOpts{BlockSize: 1, CompressionLevel: 3})

	f, err := os.Open(path)
	expect.NoError(t, err)
	defer f.Close()
	q, err := NewQuerier(f)
	expect.NoError(t, err)
	defer q.Close()

	out, err := q.Query("chr1", 90, 600, BoundAny)
	expect.NoError(t, err)
	expect.EQ(t, len(out), 2)
	expect.EQ(t, out[0].Site.Pos, int32(100))
	expect.EQ(t, out[1].Site.Pos, int32(500))

	out, err = q.Query("chr2", 1, 1000, BoundAny)
	expect.NoError(t, err)
	expect.EQ(t, len(out), 1)
	expect.EQ(t, out[0].Site.Pos, int32(50))

	_, err = q.Query("chr1x", 1, 10, BoundAny)
	expect.True(t, strings.Contains(err.Error(), "did you mean"))
}

func TestQuerierEndBoundingPolicy(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	h := newTestHeader(t)
	chr1, _ := h.Dicts.Contig.Lookup("chr1")
	endKey, _ := h.Dicts.ID.Lookup("END")

	endVal := value.NewDense(value.Int32, 1)
	endVal.PutIntAt(0, 200)
	recs := []*Record{
		{Site: Site{ChromID: int32(chr1.ID), Pos: 100, Ref: "A", Alts: []string{"<DEL>"},
			Info: []InfoField{{Key: int32(endKey.ID), Value: endVal}}}},
	}
	path := filepath.Join(dir, "end.sav")
	writeTestFile(t, path, h, recs, WriteOpts{BlockSize: 4, CompressionLevel: 1})

	f, err := os.Open(path)
	expect.NoError(t, err)
	defer f.Close()
	q, err := NewQuerier(f)
	expect.NoError(t, err)
	defer q.Close()

	out, err := q.Query("chr1", 150, 150, BoundAny)
	expect.NoError(t, err)
	expect.EQ(t, len(out), 1)

	out, err = q.Query("chr1", 150, 150, BoundBeg)
	expect.NoError(t, err)
	expect.EQ(t, len(out), 0)

	out, err = q.Query("chr1", 150, 150, BoundEnd)
	expect.NoError(t, err)
	expect.EQ(t, len(out), 0)
}
