// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sav

import (
	"crypto/rand"
	"encoding/binary"
	"io"

	"github.com/grailbio/sav/encoding/sav/saverr"
	"github.com/grailbio/sav/encoding/sav/value"
	"github.com/pkg/errors"
)

// magic is the 5-byte container signature and version, "SAV" 0x02 0x00.
var magic = [5]byte{'S', 'A', 'V', 0x02, 0x00}

// trailerMagic is the skippable zstd frame magic the s1r index trailer is
// wrapped in.
const trailerMagic uint32 = 0x184D2A50

// putU64LE/getU64LE are little-endian, unlike s1r's big-endian index entry
// encoding: they are used only for the trailer footer pointer, which is
// read by seeking from the end of the file rather than walking a tree.
func putU64LE(b []byte, x uint64) { binary.LittleEndian.PutUint64(b, x) }
func getU64LE(b []byte) uint64    { return binary.LittleEndian.Uint64(b) }

func newUUID() [16]byte {
	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		panic(errors.Wrap(err, "sav: generate UUID"))
	}
	return id
}

func writeVarint(w io.Writer, x uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], x)
	_, err := w.Write(buf[:n])
	return err
}

func writeLenPrefixed(w io.Writer, b []byte) error {
	if err := writeVarint(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readVarint(r io.ByteReader) (uint64, error) {
	x, err := binary.ReadUvarint(r)
	if err != nil {
		if err == io.EOF {
			return 0, saverr.Truncated
		}
		return 0, errors.Wrap(saverr.Truncated, err.Error())
	}
	return x, nil
}

// byteReader is the minimal interface readLenPrefixed and
// readContainerHeader need: both *bufio.Reader (streaming) and *bytes.Reader
// (parsing an in-memory trailer blob) satisfy it.
type byteReader interface {
	io.Reader
	io.ByteReader
}

func readLenPrefixed(r byteReader) ([]byte, error) {
	n, err := readVarint(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(saverr.Truncated, "sav: len-prefixed field")
	}
	return buf, nil
}

// writeContainerHeader writes the 5-byte magic, the 16-byte UUID, the
// header-line list, and the sample dictionary, in the wire order fixed by
// the container's fixed wire order.
func writeContainerHeader(w io.Writer, uuid [16]byte, h *Header) error {
	if _, err := w.Write(magic[:]); err != nil {
		return errors.Wrap(saverr.IO, err.Error())
	}
	if _, err := w.Write(uuid[:]); err != nil {
		return errors.Wrap(saverr.IO, err.Error())
	}
	if err := writeVarint(w, uint64(len(h.Lines))); err != nil {
		return errors.Wrap(saverr.IO, err.Error())
	}
	for _, hl := range h.Lines {
		if err := writeLenPrefixed(w, []byte(hl.Key)); err != nil {
			return errors.Wrap(saverr.IO, err.Error())
		}
		if err := writeLenPrefixed(w, []byte(hl.Value)); err != nil {
			return errors.Wrap(saverr.IO, err.Error())
		}
	}
	samples := h.Dicts.Sample
	if err := writeVarint(w, uint64(samples.Len())); err != nil {
		return errors.Wrap(saverr.IO, err.Error())
	}
	for i := 0; i < samples.Len(); i++ {
		e, _ := samples.ByID(i)
		if err := writeLenPrefixed(w, []byte(e.Name)); err != nil {
			return errors.Wrap(saverr.IO, err.Error())
		}
	}
	return nil
}

// readContainerHeader is the inverse of writeContainerHeader. Structured
// header lines ("##INFO=<...>" etc.) are re-parsed through Header.ParseLine
// so the dictionaries they define are populated exactly as they would be
// from a text header.
func readContainerHeader(r byteReader) (*Header, [16]byte, error) {
	var uuid [16]byte
	var gotMagic [5]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return nil, uuid, errors.Wrap(saverr.Truncated, "sav: container magic")
	}
	if gotMagic != magic {
		return nil, uuid, errors.Wrapf(saverr.BadMagic, "sav: got %v", gotMagic)
	}
	if _, err := io.ReadFull(r, uuid[:]); err != nil {
		return nil, uuid, errors.Wrap(saverr.Truncated, "sav: container uuid")
	}

	h := NewHeader()
	nHeaders, err := readVarint(r)
	if err != nil {
		return nil, uuid, errors.Wrap(err, "sav: header count")
	}
	for i := uint64(0); i < nHeaders; i++ {
		key, err := readLenPrefixed(r)
		if err != nil {
			return nil, uuid, errors.Wrapf(err, "sav: header %d key", i)
		}
		val, err := readLenPrefixed(r)
		if err != nil {
			return nil, uuid, errors.Wrapf(err, "sav: header %d value", i)
		}
		if err := h.ParseLine("##" + string(key) + "=" + string(val)); err != nil {
			return nil, uuid, errors.Wrapf(err, "sav: header %d", i)
		}
	}

	nSamples, err := readVarint(r)
	if err != nil {
		return nil, uuid, errors.Wrap(err, "sav: sample count")
	}
	for i := uint64(0); i < nSamples; i++ {
		name, err := readLenPrefixed(r)
		if err != nil {
			return nil, uuid, errors.Wrapf(err, "sav: sample %d", i)
		}
		h.Dicts.Sample.Insert(string(name), Number{Kind: NumberFixed, Fixed: 1}, value.String)
	}
	return h, uuid, nil
}
