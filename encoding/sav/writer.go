// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sav

import (
	"bytes"
	"io"
	"strconv"

	"github.com/grailbio/sav/encoding/sav/pbwt"
	"github.com/grailbio/sav/encoding/sav/s1r"
	"github.com/grailbio/sav/encoding/sav/saverr"
	"github.com/grailbio/sav/encoding/sav/value"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// WriteOpts configures a Writer.
type WriteOpts struct {
	// BlockSize is the maximum number of records per block. Zero disables
	// indexing and requires CompressionLevel == 0.
	BlockSize int
	// CompressionLevel is the zstd compression level. Zero bypasses zstd
	// entirely and writes raw concatenated records.
	CompressionLevel int
}

func (o WriteOpts) validate() error {
	if o.BlockSize == 0 && o.CompressionLevel != 0 {
		return errors.Errorf("sav: block size 0 requires compression level 0")
	}
	return nil
}

func (o WriteOpts) zstdLevel() zstd.EncoderLevel {
	switch {
	case o.CompressionLevel <= 1:
		return zstd.SpeedFastest
	case o.CompressionLevel <= 6:
		return zstd.SpeedDefault
	case o.CompressionLevel <= 15:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// countingWriter tracks the number of bytes written so the writer can
// record each block's starting file offset for the index.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// pendingBlock accumulates one block's serialized records, all on one
// contig and at most BlockSize of them, before it is compressed and flushed
// as a single zstd frame.
type pendingBlock struct {
	buf      bytes.Buffer
	count    int
	minStart int32
	maxEnd   int32
	chromID  int32
	have     bool
}

func (b *pendingBlock) reset() {
	b.buf.Reset()
	b.count = 0
	b.have = false
}

func (b *pendingBlock) extend(start, end int32) {
	if !b.have {
		b.minStart, b.maxEnd, b.have = start, end, true
		return
	}
	if start < b.minStart {
		b.minStart = start
	}
	if end > b.maxEnd {
		b.maxEnd = end
	}
}

// Writer serializes Records into a SAV container: one zstd frame per block,
// a trailing skippable frame holding a per-contig s1r index.
type Writer struct {
	out     *countingWriter
	header  *Header
	opts    WriteOpts
	pbwt    *pbwt.Store
	block   pendingBlock
	nSample int
	endID   int32
	hasEnd  bool

	builders    map[int32]*s1r.Builder
	contigOrder []int32
	err         error
	closed      bool
}

// NewWriter creates a Writer for header, which must already carry its
// dictionaries and sample list. It writes the container header immediately.
func NewWriter(w io.Writer, header *Header, opts WriteOpts) (*Writer, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.CompressionLevel == 0 {
		header.Lines = append(header.Lines, HeaderLine{Key: rawRecordMarker, Value: "1"})
	}
	cw := &countingWriter{w: w}
	if err := writeContainerHeader(cw, newUUID(), header); err != nil {
		return nil, err
	}
	wr := &Writer{
		out:      cw,
		header:   header,
		opts:     opts,
		pbwt:     pbwt.NewStore(),
		nSample:  header.Dicts.Sample.Len(),
		builders: make(map[int32]*s1r.Builder),
	}
	if e, ok := header.Dicts.ID.Lookup("END"); ok {
		wr.endID, wr.hasEnd = int32(e.ID), true
	} else {
		wr.endID = -1
	}
	return wr, nil
}

func (w *Writer) fail(err error) error {
	if w.err == nil {
		w.err = err
	}
	return err
}

// Write serializes rec, flushing the current block first if it is full or
// rec starts a new contig.
func (w *Writer) Write(rec *Record) error {
	if w.err != nil {
		return w.err
	}
	site := &rec.Site
	contigChanged := w.blockStarted() && site.ChromID != w.block.chromID
	full := w.opts.BlockSize > 0 && w.block.count >= w.opts.BlockSize
	if contigChanged || full {
		if err := w.flushBlock(); err != nil {
			return w.fail(err)
		}
	}
	reset := !w.blockStarted()
	if reset {
		w.block.chromID = site.ChromID
	}

	formats := make([]FormatField, len(rec.Formats))
	copy(formats, rec.Formats)
	for i := range formats {
		if w.pbwtEligible(formats[i].Value) {
			formats[i].Value = w.transformPBWT(formats[i].Key, formats[i].Value, reset)
			continue
		}
		if sparse, ok := formats[i].Value.ChooseLayout(); ok {
			formats[i].Value = sparse
		}
	}

	sharedBuf, err := marshalShared(site, len(formats), w.nSample, reset)
	if err != nil {
		return w.fail(err)
	}
	indivBuf, err := marshalIndividual(formats)
	if err != nil {
		return w.fail(err)
	}

	var lenWords [8]byte
	putU32(lenWords[0:], uint32(len(sharedBuf)))
	putU32(lenWords[4:], uint32(len(indivBuf)))
	w.block.buf.Write(lenWords[:])
	w.block.buf.Write(sharedBuf)
	w.block.buf.Write(indivBuf)
	w.block.count++

	start, end := site.Bound(w.endID)
	w.block.extend(start, end)
	return nil
}

func (w *Writer) blockStarted() bool { return w.block.count > 0 }

// pbwtEligible reports whether v is a dense int8/int16 vector, the only
// layout the PBWT transform operates on; sparse FORMAT fields and fields
// of other element types are left to the dense/sparse size comparison
// in ChooseLayout instead.
func (w *Writer) pbwtEligible(v value.Value) bool {
	return !v.IsSparse() && (v.ValType == value.Int8 || v.ValType == value.Int16)
}

// transformPBWT applies the PBWT permutation to v, which must be
// pbwtEligible.
func (w *Writer) transformPBWT(key int32, v value.Value, reset bool) value.Value {
	ctx := w.pbwt.For(strconv.Itoa(int(key)), v.Size)
	if reset {
		ctx.Reset()
	}
	out := v
	switch v.ValType {
	case value.Int8:
		src := make([]int8, v.Size)
		for i := range src {
			src[i] = int8(v.IntAt(i))
		}
		permuted := ctx.EncodeInt8(src)
		out.ValData = make([]byte, v.Size)
		for i, x := range permuted {
			out.ValData[i] = byte(x)
		}
	case value.Int16:
		src := make([]int16, v.Size)
		for i := range src {
			src[i] = int16(v.IntAt(i))
		}
		permuted := ctx.EncodeInt16(src)
		out.ValData = make([]byte, v.Size*2)
		for i, x := range permuted {
			out.ValData[i*2] = byte(x)
			out.ValData[i*2+1] = byte(x >> 8)
		}
	}
	return out
}

// flushBlock compresses and emits the current block (if non-empty) as one
// frame, records its index entry, and resets per-block state.
func (w *Writer) flushBlock() error {
	if w.block.count == 0 {
		return nil
	}
	fileOffset := uint64(w.out.n)
	raw := w.block.buf.Bytes()
	var frame []byte
	if w.opts.CompressionLevel == 0 {
		frame = raw
	} else {
		var buf bytes.Buffer
		enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(w.opts.zstdLevel()))
		if err != nil {
			return errors.Wrap(saverr.IO, err.Error())
		}
		if _, err := enc.Write(raw); err != nil {
			enc.Close()
			return errors.Wrap(saverr.IO, err.Error())
		}
		if err := enc.Close(); err != nil {
			return errors.Wrap(saverr.IO, err.Error())
		}
		frame = buf.Bytes()
	}
	if _, err := w.out.Write(frame); err != nil {
		return errors.Wrap(saverr.IO, err.Error())
	}

	if w.opts.BlockSize > 0 {
		length := uint64(w.block.maxEnd - w.block.minStart)
		entry, err := s1r.MakeEntry(uint64(w.block.minStart), length, fileOffset, w.block.count)
		if err != nil {
			return err
		}
		b, ok := w.builders[w.block.chromID]
		if !ok {
			b = s1r.NewBuilder()
			w.builders[w.block.chromID] = b
			w.contigOrder = append(w.contigOrder, w.block.chromID)
		}
		b.Insert(entry)
	}

	w.block.reset()
	w.pbwt.ResetAll()
	return nil
}

// Close flushes any pending block, appends the s1r index trailer (unless
// indexing is disabled), and closes the underlying writer if it is an
// io.Closer.
func (w *Writer) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	if w.err != nil {
		return w.err
	}
	if err := w.flushBlock(); err != nil {
		return w.fail(err)
	}
	if w.opts.BlockSize > 0 && len(w.contigOrder) > 0 {
		if err := w.writeTrailer(); err != nil {
			return w.fail(err)
		}
	}
	if c, ok := w.out.w.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return w.fail(errors.Wrap(saverr.IO, err.Error()))
		}
	}
	return nil
}

// writeTrailer serializes a directory mapping each contig name to the
// (offset, length) of its s1r tree within the trailer blob, followed by the
// concatenated tree bytes themselves, all wrapped in a single skippable
// zstd frame (magic 0x184D2A50). The directory comes first so OpenIndex can
// parse it without pre-scanning the tree bytes to find it.
//
// The trailer frame's own starting file offset is then written as an
// 8-byte little-endian footer at the absolute end of the file, so a reader
// can locate the trailer by seeking to size-8 instead of scanning forward
// from the first record.
func (w *Writer) writeTrailer() error {
	type dirEntry struct {
		name   string
		offset int
		length int
	}
	var dir []dirEntry
	var trees bytes.Buffer
	for _, chromID := range w.contigOrder {
		treeBytes, err := w.builders[chromID].Finish(2)
		if err != nil {
			return err
		}
		entry, ok := w.header.Dicts.Contig.ByID(int(chromID))
		name := entry.Name
		if !ok || name == "" {
			name = strconv.Itoa(int(chromID))
		}
		dir = append(dir, dirEntry{name: name, offset: trees.Len(), length: len(treeBytes)})
		trees.Write(treeBytes)
	}

	var dirBuf bytes.Buffer
	if err := writeVarint(&dirBuf, uint64(len(dir))); err != nil {
		return err
	}
	for _, d := range dir {
		if err := writeLenPrefixed(&dirBuf, []byte(d.name)); err != nil {
			return err
		}
		if err := writeVarint(&dirBuf, uint64(d.offset)); err != nil {
			return err
		}
		if err := writeVarint(&dirBuf, uint64(d.length)); err != nil {
			return err
		}
	}

	var blob bytes.Buffer
	if err := writeVarint(&blob, uint64(dirBuf.Len())); err != nil {
		return err
	}
	blob.Write(dirBuf.Bytes())
	blob.Write(trees.Bytes())

	trailerOffset := uint64(w.out.n)
	var frameHeader [8]byte
	putU32(frameHeader[0:], trailerMagic)
	putU32(frameHeader[4:], uint32(blob.Len()))
	if _, err := w.out.Write(frameHeader[:]); err != nil {
		return errors.Wrap(saverr.IO, err.Error())
	}
	if _, err := w.out.Write(blob.Bytes()); err != nil {
		return errors.Wrap(saverr.IO, err.Error())
	}

	var footer [8]byte
	putU64LE(footer[:], trailerOffset)
	if _, err := w.out.Write(footer[:]); err != nil {
		return errors.Wrap(saverr.IO, err.Error())
	}
	return nil
}
