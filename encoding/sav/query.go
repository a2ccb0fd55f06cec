// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sav

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/antzucaro/matchr"
	"github.com/grailbio/sav/encoding/sav/pbwt"
	"github.com/grailbio/sav/encoding/sav/s1r"
	"github.com/grailbio/sav/encoding/sav/saverr"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// BoundingPolicy selects how a candidate record's genomic interval is
// compared against a query range.
type BoundingPolicy int

// BoundingPolicy values.
const (
	// BoundAny admits a record if its interval overlaps [begin, end] at
	// all, preferring an END INFO value when present.
	BoundAny BoundingPolicy = iota
	// BoundAll admits a record only if its interval lies entirely within
	// [begin, end], preferring END when present.
	BoundAll
	// BoundBeg admits a record whose start position falls in [begin, end].
	BoundBeg
	// BoundEnd admits a record whose ref/alt-length-derived end position
	// falls in [begin, end]. Unlike BoundAny/BoundAll this ignores any END
	// INFO value: it is always the raw allele-length heuristic.
	BoundEnd
)

func admits(site *Site, endID int32, begin, end int32, policy BoundingPolicy) bool {
	switch policy {
	case BoundBeg:
		return site.Pos >= begin && site.Pos <= end
	case BoundEnd:
		_, rawEnd := site.Bound(-1)
		return rawEnd >= begin && rawEnd <= end
	case BoundAll:
		s, e := site.Bound(endID)
		return s >= begin && e <= end
	default: // BoundAny
		s, e := site.Bound(endID)
		return s <= end && e >= begin
	}
}

// trailerDirEntry is one parsed row of the trailer directory: the byte
// range of one contig's s1r tree within the concatenated tree blob.
type trailerDirEntry struct {
	name   string
	offset int
	length int
}

// Index is a SAV file's trailer: one s1r tree per contig, opened lazily on
// first query.
type Index struct {
	dir     []trailerDirEntry
	byName  map[string]int
	trees   []byte
	readers map[string]*s1r.Reader
}

// OpenIndex locates and parses the trailer appended to f by Writer.Close.
// It seeks to the last 8 bytes of the file for the trailer's starting
// offset, then reads the skippable zstd frame at that offset.
func OpenIndex(f *os.File) (*Index, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(saverr.IO, err.Error())
	}
	size := fi.Size()
	if size < 8 {
		return nil, errors.Wrap(saverr.Truncated, "sav: file too small for a trailer footer")
	}
	var footer [8]byte
	if _, err := f.ReadAt(footer[:], size-8); err != nil {
		return nil, errors.Wrap(saverr.Truncated, "sav: trailer footer")
	}
	trailerOffset := int64(getU64LE(footer[:]))
	if trailerOffset < 0 || trailerOffset >= size-8 {
		return nil, errors.Wrap(saverr.BadMagic, "sav: trailer footer points outside file")
	}

	var frameHeader [8]byte
	if _, err := f.ReadAt(frameHeader[:], trailerOffset); err != nil {
		return nil, errors.Wrap(saverr.Truncated, "sav: trailer frame header")
	}
	if getU32(frameHeader[0:]) != trailerMagic {
		return nil, errors.Wrap(saverr.BadMagic, "sav: trailer frame magic")
	}
	blobLen := int64(getU32(frameHeader[4:]))
	blob := make([]byte, blobLen)
	if _, err := f.ReadAt(blob, trailerOffset+8); err != nil {
		return nil, errors.Wrap(saverr.Truncated, "sav: trailer blob")
	}

	br := bytes.NewReader(blob)
	dirLen, err := readVarint(br)
	if err != nil {
		return nil, errors.Wrap(err, "sav: trailer directory length")
	}
	dirStart := int(blobLen) - br.Len()
	dirEnd := dirStart + int(dirLen)
	if dirEnd > len(blob) {
		return nil, errors.Wrap(saverr.Truncated, "sav: trailer directory")
	}
	dirReader := bytes.NewReader(blob[dirStart:dirEnd])
	nDir, err := readVarint(dirReader)
	if err != nil {
		return nil, errors.Wrap(err, "sav: trailer directory count")
	}
	var dir []trailerDirEntry
	byName := make(map[string]int)
	for i := uint64(0); i < nDir; i++ {
		name, err := readLenPrefixed(dirReader)
		if err != nil {
			return nil, errors.Wrap(err, "sav: trailer directory entry name")
		}
		offset, err := readVarint(dirReader)
		if err != nil {
			return nil, errors.Wrap(err, "sav: trailer directory entry offset")
		}
		length, err := readVarint(dirReader)
		if err != nil {
			return nil, errors.Wrap(err, "sav: trailer directory entry length")
		}
		byName[string(name)] = len(dir)
		dir = append(dir, trailerDirEntry{name: string(name), offset: int(offset), length: int(length)})
	}

	return &Index{
		dir:     dir,
		byName:  byName,
		trees:   blob[dirEnd:],
		readers: make(map[string]*s1r.Reader),
	}, nil
}

// reader returns (creating and caching if necessary) the s1r.Reader for the
// named contig's tree, or nil if the contig was never indexed.
func (idx *Index) reader(name string) (*s1r.Reader, error) {
	if r, ok := idx.readers[name]; ok {
		return r, nil
	}
	i, ok := idx.byName[name]
	if !ok {
		return nil, nil
	}
	d := idx.dir[i]
	r, err := s1r.NewReader(idx.trees[d.offset : d.offset+d.length])
	if err != nil {
		return nil, errors.Wrapf(err, "sav: contig %q index", name)
	}
	idx.readers[name] = r
	return r, nil
}

// Contigs returns the names of every contig the index covers, for fuzzy
// match suggestions.
func (idx *Index) Contigs() []string {
	names := make([]string, len(idx.dir))
	for i, d := range idx.dir {
		names[i] = d.name
	}
	return names
}

// Querier answers (contig, begin, end, bounding policy) range queries
// against a SAV file, combining Reader's record parsing with an Index's
// s1r trees.
type Querier struct {
	file    *os.File
	size    int64
	header  *Header
	idx     *Index
	raw     bool
	endID   int32
	nSample int
}

// NewQuerier opens a Querier over f, which must remain open and positioned
// at the start of a valid SAV container; f's seek offset is undefined on
// return.
func NewQuerier(f *os.File) (*Querier, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(saverr.IO, err.Error())
	}
	br := bufio.NewReader(f)
	header, _, err := readContainerHeader(br)
	if err != nil {
		return nil, err
	}
	raw := false
	for _, hl := range header.Lines {
		if hl.Key == rawRecordMarker && hl.Value == "1" {
			raw = true
			break
		}
	}
	idx, err := OpenIndex(f)
	if err != nil {
		return nil, errors.Wrap(err, "sav: open index")
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(saverr.IO, err.Error())
	}
	q := &Querier{
		file:    f,
		size:    fi.Size(),
		header:  header,
		idx:     idx,
		raw:     raw,
		endID:   -1,
		nSample: header.Dicts.Sample.Len(),
	}
	if e, ok := header.Dicts.ID.Lookup("END"); ok {
		q.endID = int32(e.ID)
	}
	return q, nil
}

// Header returns the container header.
func (q *Querier) Header() *Header { return q.header }

// suggestContig returns the closest known contig name to name by edit
// distance, for an error message, or "" if none is close.
func (q *Querier) suggestContig(name string) string {
	names := q.idx.Contigs()
	sort.Strings(names)
	best := ""
	bestDist := -1
	for _, n := range names {
		d := matchr.Levenshtein(name, n)
		if bestDist < 0 || d < bestDist {
			bestDist, best = d, n
		}
	}
	if bestDist < 0 || bestDist > len(name)/2+1 {
		return ""
	}
	return best
}

// Query returns every record on contig whose interval, under policy,
// overlaps [begin, end] (both 1-based, inclusive).
func (q *Querier) Query(contig string, begin, end int32, policy BoundingPolicy) ([]*Record, error) {
	entry, ok := q.header.Dicts.Contig.Lookup(contig)
	if !ok || entry.Tombstone {
		msg := errors.Wrapf(saverr.UnknownKey, "sav: contig %q", contig)
		if s := q.suggestContig(contig); s != "" {
			return nil, errors.Wrapf(msg, "did you mean %q?", s)
		}
		return nil, msg
	}
	treeName := entry.Name
	if treeName == "" {
		treeName = strconv.Itoa(entry.ID)
	}
	r, err := q.idx.reader(treeName)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil // Contig carries no records; nothing to do.
	}

	matches := r.Query(uint64(begin), uint64(end)+1)
	var out []*Record
	for _, m := range matches {
		recs, err := q.readBlock(m)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if admits(&rec.Site, q.endID, begin, end, policy) {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

// readBlock decodes every record in the block described by entry, applying
// a fresh PBWT context since each block resets its contexts at the start.
func (q *Querier) readBlock(entry s1r.Entry) ([]*Record, error) {
	offset := int64(entry.FileOffset())
	sr := io.NewSectionReader(q.file, offset, q.size-offset)
	var src io.Reader = sr
	var dec *zstd.Decoder
	if !q.raw {
		d, err := zstd.NewReader(sr)
		if err != nil {
			return nil, errors.Wrap(saverr.IO, err.Error())
		}
		dec = d
		src = d
	}
	store := pbwt.NewStore()
	recs := make([]*Record, 0, entry.RecordCount())
	for i := 0; i < entry.RecordCount(); i++ {
		rec, err := readOneRecord(src, store)
		if err != nil {
			if dec != nil {
				dec.Close()
			}
			return nil, errors.Wrapf(err, "sav: block at offset %d, record %d", offset, i)
		}
		recs = append(recs, rec)
	}
	if dec != nil {
		dec.Close()
	}
	return recs, nil
}

// Close releases index readers. It does not close the underlying file,
// which the caller opened.
func (q *Querier) Close() error {
	for _, r := range q.idx.readers {
		r.Close()
	}
	return nil
}
