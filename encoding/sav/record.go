// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sav

import (
	"math"

	"github.com/grailbio/sav/encoding/sav/saverr"
	"github.com/grailbio/sav/encoding/sav/value"
	"github.com/pkg/errors"
)

// maxBlockBytes is the largest a shared or individual block may be before
// OVERSIZED_RECORD fires; the container's two length prefixes are each a
// plain uint32.
const maxBlockBytes = math.MaxUint32

// InfoField is one (dictionary id, typed value) INFO annotation.
type InfoField struct {
	Key   int32
	Value value.Value
}

// FormatField is one (dictionary id, typed value) per-record FORMAT field.
// Value.Size is the *total* element count across all samples: for a SAV
// file the stride is implicit (Size == n_sample * per_sample_count); the
// BCF compatibility profile instead declares a per-sample size and the
// reader multiplies by n_sample.
type FormatField struct {
	Key   int32
	Value value.Value
}

// Site is the record's site descriptor: contig, position, alleles,
// quality, filters and INFO annotations.
type Site struct {
	ChromID int32
	Pos     int32 // 1-based.
	RLen    int32 // Reference span, stored in the shared header; Bound does not read it.
	ID      string
	Ref     string
	Alts    []string
	Qual    float32 // May be value.MissingFloat32().
	Filters []int32 // Dictionary ids, in declaration order.
	Info    []InfoField
}

// Record is a site descriptor plus its ordered FORMAT fields. By convention
// the first field, if present, is the genotype call; a field named "PH"
// carries one phase bit per non-leading allele slot when mixed phasing is
// in effect.
type Record struct {
	Site    Site
	Formats []FormatField
}

// End returns the record's END INFO value and whether it was present. endID
// is the dictionary id of the "END" INFO key.
func (s *Site) End(endID int32) (int32, bool) {
	for _, f := range s.Info {
		if f.Key == endID && f.Value.ValType == value.Int32 && !f.Value.IsSparse() && f.Value.Size >= 1 {
			return int32(f.Value.IntAt(0)), true
		}
	}
	return 0, false
}

// maxAlleleLen returns max(len(ref), len(alt) for every alt).
func (s *Site) maxAlleleLen() int {
	m := len(s.Ref)
	for _, a := range s.Alts {
		if len(a) > m {
			m = len(a)
		}
	}
	return m
}

// Bound returns the record's [start, end] genomic interval, preferring an
// END INFO annotation over the ref/alt-length heuristic.
func (s *Site) Bound(endID int32) (start, end int32) {
	start = s.Pos
	if e, ok := s.End(endID); ok {
		return start, e
	}
	return start, s.Pos + int32(s.maxAlleleLen()) - 1
}

const pbwtResetBit = 0x800000

// encodeString appends a String-typed value holding s.
func encodeString(buf *[]byte, s string) {
	v := value.Value{ValType: value.String, Size: len(s), ValData: []byte(s)}
	if err := value.Serialize(&v, buf, 1); err != nil {
		panic(err) // String is always a legal val_type; this cannot fail.
	}
}

func decodeString(in []byte) (string, int, error) {
	v, n, err := value.Deserialize(in, 1)
	if err != nil {
		return "", 0, err
	}
	if v.ValType != value.String {
		return "", 0, errors.Wrap(saverr.BadType, "record: expected string")
	}
	return string(v.ValData), n, nil
}

// marshalShared serializes site into the shared byte block: six
// little-endian 32-bit header words, followed by id, ref, alts, filters and
// info.
func marshalShared(site *Site, nFormat, nSample int, resetPBWT bool) ([]byte, error) {
	if nSample < 0 || nSample > 0x7FFFFF {
		return nil, errors.Wrap(saverr.OversizedRecord, "record: sample count out of range")
	}
	buf := make([]byte, 24)
	putU32(buf[0:], uint32(site.ChromID))
	putU32(buf[4:], uint32(site.Pos-1))
	putU32(buf[8:], uint32(site.RLen))
	putU32(buf[12:], math.Float32bits(site.Qual))
	putU32(buf[16:], (uint32(len(site.Alts)+1)<<16)|uint32(len(site.Info)))
	sampleWord := uint32(nFormat)<<24 | uint32(nSample)&0x7FFFFF
	if resetPBWT {
		sampleWord |= pbwtResetBit
	}
	putU32(buf[20:], sampleWord)

	encodeString(&buf, site.ID)
	encodeString(&buf, site.Ref)
	for _, a := range site.Alts {
		encodeString(&buf, a)
	}

	filters := value.NewDense(value.Int32, len(site.Filters))
	for i, f := range site.Filters {
		filters.PutIntAt(i, int64(f))
	}
	if err := value.Serialize(&filters, &buf, 1); err != nil {
		return nil, errors.Wrap(err, "record: serialize filters")
	}

	for _, f := range site.Info {
		value.EncodeTypedInt(&buf, int(f.Key))
		v := f.Value
		if err := value.Serialize(&v, &buf, 1); err != nil {
			return nil, errors.Wrapf(err, "record: serialize INFO key %d", f.Key)
		}
	}
	if len(buf) > maxBlockBytes {
		return nil, errors.Wrap(saverr.OversizedRecord, "record: shared block")
	}
	return buf, nil
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// sharedHeader is the decoded form of the six 32-bit shared-block words.
type sharedHeader struct {
	ChromID    int32
	Pos        int32
	RLen       int32
	Qual       float32
	NAlt       int
	NInfo      int
	NFormat    int
	NSample    int
	ResetPBWT  bool
}

func parseSharedHeader(buf []byte) (sharedHeader, error) {
	if len(buf) < 24 {
		return sharedHeader{}, saverr.Truncated
	}
	w4 := getU32(buf[16:])
	w5 := getU32(buf[20:])
	return sharedHeader{
		ChromID:   int32(getU32(buf[0:])),
		Pos:       int32(getU32(buf[4:])) + 1,
		RLen:      int32(getU32(buf[8:])),
		Qual:      math.Float32frombits(getU32(buf[12:])),
		NAlt:      int(w4>>16) - 1,
		NInfo:     int(w4 & 0xFFFF),
		NFormat:   int(w5 >> 24),
		NSample:   int(w5 & 0x7FFFFF),
		ResetPBWT: w5&pbwtResetBit != 0,
	}, nil
}

// unmarshalShared is the inverse of marshalShared.
func unmarshalShared(buf []byte) (Site, sharedHeader, error) {
	hdr, err := parseSharedHeader(buf)
	if err != nil {
		return Site{}, hdr, err
	}
	pos := 24
	site := Site{ChromID: hdr.ChromID, Pos: hdr.Pos, RLen: hdr.RLen, Qual: hdr.Qual}

	id, n, err := decodeString(buf[pos:])
	if err != nil {
		return Site{}, hdr, errors.Wrap(err, "record: decode id")
	}
	site.ID = id
	pos += n

	ref, n, err := decodeString(buf[pos:])
	if err != nil {
		return Site{}, hdr, errors.Wrap(err, "record: decode ref")
	}
	site.Ref = ref
	pos += n

	for i := 0; i < hdr.NAlt; i++ {
		alt, n, err := decodeString(buf[pos:])
		if err != nil {
			return Site{}, hdr, errors.Wrapf(err, "record: decode alt %d", i)
		}
		site.Alts = append(site.Alts, alt)
		pos += n
	}

	filters, n, err := value.Deserialize(buf[pos:], 1)
	if err != nil {
		return Site{}, hdr, errors.Wrap(err, "record: decode filters")
	}
	pos += n
	for i := 0; i < filters.Size; i++ {
		site.Filters = append(site.Filters, int32(filters.IntAt(i)))
	}

	for i := 0; i < hdr.NInfo; i++ {
		key, n, err := value.DecodeTypedInt(buf[pos:])
		if err != nil {
			return Site{}, hdr, errors.Wrapf(err, "record: decode INFO key %d", i)
		}
		pos += n
		v, n, err := value.Deserialize(buf[pos:], 1)
		if err != nil {
			return Site{}, hdr, errors.Wrapf(err, "record: decode INFO value %d", i)
		}
		pos += n
		site.Info = append(site.Info, InfoField{Key: int32(key), Value: v})
	}
	return site, hdr, nil
}

// marshalIndividual serializes a record's FORMAT fields as a concatenation
// of (format_key_id as typed int, typed_value).
func marshalIndividual(formats []FormatField) ([]byte, error) {
	var buf []byte
	for _, f := range formats {
		value.EncodeTypedInt(&buf, int(f.Key))
		v := f.Value
		if err := value.Serialize(&v, &buf, 1); err != nil {
			return nil, errors.Wrapf(err, "record: serialize FORMAT key %d", f.Key)
		}
	}
	if len(buf) > maxBlockBytes {
		return nil, errors.Wrap(saverr.OversizedRecord, "record: individual block")
	}
	return buf, nil
}

// unmarshalIndividual is the inverse of marshalIndividual.
func unmarshalIndividual(buf []byte, nFormat int) ([]FormatField, error) {
	var formats []FormatField
	pos := 0
	for i := 0; i < nFormat; i++ {
		key, n, err := value.DecodeTypedInt(buf[pos:])
		if err != nil {
			return nil, errors.Wrapf(err, "record: decode FORMAT key %d", i)
		}
		pos += n
		v, n, err := value.Deserialize(buf[pos:], 1)
		if err != nil {
			return nil, errors.Wrapf(err, "record: decode FORMAT value %d", i)
		}
		pos += n
		formats = append(formats, FormatField{Key: int32(key), Value: v})
	}
	return formats, nil
}

// checkStride validates that a FORMAT field's declared size is a multiple
// of nSample, the BAD_STRIDE error case.
func checkStride(size, nSample int) error {
	if nSample == 0 {
		return nil
	}
	if size%nSample != 0 {
		return errors.Wrapf(saverr.BadStride, "record: size %d not a multiple of %d samples", size, nSample)
	}
	return nil
}
