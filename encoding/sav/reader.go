// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sav

import (
	"bufio"
	"encoding/binary"
	"io"
	"strconv"

	"github.com/grailbio/sav/encoding/sav/pbwt"
	"github.com/grailbio/sav/encoding/sav/saverr"
	"github.com/grailbio/sav/encoding/sav/value"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// rawRecordMarker is the header line a Writer injects when CompressionLevel
// is 0, so a Reader knows to read records directly rather than through a
// zstd decoder. The container format has no other way to signal this: zstd
// framing is a per-writer choice, not a bit in the fixed container layout.
const rawRecordMarker = "sav_raw"

// Reader streams Records from a SAV container in file order.
// Random-access range queries are handled by Query, which seeks using the
// s1r index and opens short-lived per-block decoders of its own.
type Reader struct {
	br      *bufio.Reader
	closer  io.Closer
	header  *Header
	uuid    [16]byte
	raw     bool
	decoder io.Reader
	zstdDec *zstd.Decoder
	pbwt    *pbwt.Store
	endID   int32
	nSample int
	err     error
}

// NewReader parses the container header from r and returns a Reader
// positioned at the first record.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	header, uuid, err := readContainerHeader(br)
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
	rd := &Reader{
		br:      br,
		header:  header,
		uuid:    uuid,
		raw:     raw,
		pbwt:    pbwt.NewStore(),
		nSample: header.Dicts.Sample.Len(),
		endID:   -1,
	}
	if c, ok := r.(io.Closer); ok {
		rd.closer = c
	}
	if e, ok := header.Dicts.ID.Lookup("END"); ok {
		rd.endID = int32(e.ID)
	}
	return rd, nil
}

// Header returns the parsed container header.
func (r *Reader) Header() *Header { return r.header }

// UUID returns the container's 16-byte identifier.
func (r *Reader) UUID() [16]byte { return r.uuid }

func (r *Reader) ensureDecoder() error {
	if r.decoder != nil {
		return nil
	}
	if r.raw {
		r.decoder = r.br
		return nil
	}
	dec, err := zstd.NewReader(r.br)
	if err != nil {
		return errors.Wrap(saverr.IO, err.Error())
	}
	r.zstdDec, r.decoder = dec, dec
	return nil
}

// atTrailer reports whether the next 4 bytes of the raw stream are the
// skippable-frame trailer magic. Only meaningful in raw mode: zstd mode
// relies on the decoder transparently skipping the skippable frame and
// returning io.EOF.
func (r *Reader) atTrailer() bool {
	peek, err := r.br.Peek(4)
	if err != nil || len(peek) < 4 {
		return false
	}
	return binary.LittleEndian.Uint32(peek) == trailerMagic
}

// Next returns the next Record in file order, or io.EOF once the trailer
// (or end of file) is reached.
func (r *Reader) Next() (*Record, error) {
	if r.err != nil {
		return nil, r.err
	}
	if err := r.ensureDecoder(); err != nil {
		r.err = err
		return nil, err
	}
	if r.raw && r.atTrailer() {
		r.err = io.EOF
		return nil, io.EOF
	}
	rec, err := r.readRecord()
	if err != nil {
		r.err = err
		return nil, err
	}
	return rec, nil
}

func (r *Reader) readRecord() (*Record, error) {
	return readOneRecord(r.decoder, r.pbwt)
}

// readOneRecord reads one length-prefixed record from src, inverting any
// PBWT-transformed FORMAT fields against store. It is shared by Reader's
// sequential scan and Query's per-block random access.
func readOneRecord(src io.Reader, store *pbwt.Store) (*Record, error) {
	var lenWords [8]byte
	if _, err := io.ReadFull(src, lenWords[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(saverr.Truncated, "sav: record length prefix")
	}
	sharedLen := getU32(lenWords[0:])
	indivLen := getU32(lenWords[4:])

	sharedBuf := make([]byte, sharedLen)
	if _, err := io.ReadFull(src, sharedBuf); err != nil {
		return nil, errors.Wrap(saverr.Truncated, "sav: shared block")
	}
	indivBuf := make([]byte, indivLen)
	if _, err := io.ReadFull(src, indivBuf); err != nil {
		return nil, errors.Wrap(saverr.Truncated, "sav: individual block")
	}

	site, hdr, err := unmarshalShared(sharedBuf)
	if err != nil {
		return nil, err
	}
	if hdr.ResetPBWT {
		store.ResetAll()
	}
	formats, err := unmarshalIndividual(indivBuf, hdr.NFormat)
	if err != nil {
		return nil, err
	}
	for i := range formats {
		formats[i].Value = invertPBWT(store, formats[i].Key, formats[i].Value)
	}
	return &Record{Site: site, Formats: formats}, nil
}

// invertPBWT undoes transformPBWT's permutation for the same class of
// field (dense int8/int16): the val_type/off_type surviving serialization
// is enough to recognize which fields were transformed, with no side
// channel needed.
func invertPBWT(store *pbwt.Store, key int32, v value.Value) value.Value {
	if v.IsSparse() || (v.ValType != value.Int8 && v.ValType != value.Int16) {
		return v
	}
	ctx := store.For(strconv.Itoa(int(key)), v.Size)
	out := v
	switch v.ValType {
	case value.Int8:
		permuted := make([]int8, v.Size)
		for i := range permuted {
			permuted[i] = int8(v.IntAt(i))
		}
		orig := ctx.DecodeInt8(permuted)
		out.ValData = make([]byte, v.Size)
		for i, x := range orig {
			out.ValData[i] = byte(x)
		}
	case value.Int16:
		permuted := make([]int16, v.Size)
		for i := range permuted {
			permuted[i] = int16(v.IntAt(i))
		}
		orig := ctx.DecodeInt16(permuted)
		out.ValData = make([]byte, v.Size*2)
		for i, x := range orig {
			out.ValData[i*2] = byte(x)
			out.ValData[i*2+1] = byte(x >> 8)
		}
	}
	return out
}

// Close releases the reader's decoder and, if the source supports it,
// closes the underlying stream.
func (r *Reader) Close() error {
	if r.zstdDec != nil {
		r.zstdDec.Close()
	}
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// SubsetFormats rewrites every FORMAT field to retain only the samples
// selected by keep (len(keep) == nSample), expanding the per-sample mask to
// each field's own stride.
func SubsetFormats(formats []FormatField, keep []bool, nSample int) ([]FormatField, error) {
	kept := 0
	for _, k := range keep {
		if k {
			kept++
		}
	}
	out := make([]FormatField, len(formats))
	for i, f := range formats {
		if err := checkStride(f.Value.Size, nSample); err != nil {
			return nil, errors.Wrapf(err, "sav: subset FORMAT key %d", f.Key)
		}
		stride := 0
		if nSample > 0 {
			stride = f.Value.Size / nSample
		}
		if stride == 0 {
			out[i] = f
			continue
		}
		elemMask := make([]bool, f.Value.Size)
		for s, k := range keep {
			if k {
				for j := 0; j < stride; j++ {
					elemMask[s*stride+j] = true
				}
			}
		}
		v := f.Value
		out[i] = FormatField{Key: f.Key, Value: v.Subset(elemMask, kept*stride)}
	}
	return out, nil
}
