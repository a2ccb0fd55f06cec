// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sav

import (
	"strconv"
	"strings"

	"github.com/grailbio/sav/encoding/sav/value"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"
)

// Phasing describes a file's overall genotype phasing convention, set by
// the "phasing" header line.
type Phasing uint8

// Phasing values.
const (
	PhasingUnknown Phasing = iota
	PhasingNone
	PhasingPartial
	PhasingPhased
)

func parsePhasing(s string) (Phasing, bool) {
	switch s {
	case "unknown":
		return PhasingUnknown, true
	case "none":
		return PhasingNone, true
	case "partial":
		return PhasingPartial, true
	case "phased":
		return PhasingPhased, true
	}
	return PhasingUnknown, false
}

// HeaderLine is one "key=value" header line, preserved in file order. For
// structured lines (INFO, FORMAT, FILTER, contig), Value holds the raw
// "<...>" text as it would be re-serialized, and Fields holds the parsed
// key/value pairs.
type HeaderLine struct {
	Key    string
	Value  string
	Fields map[string]string // non-nil only for structured "<...>" lines.
}

// Header is the parsed metadata model: the raw header line list plus
// the three dictionaries those lines populate, and the derived phasing
// mode.
type Header struct {
	Lines   []HeaderLine
	Dicts   *Dictionaries
	Phasing Phasing

	// phSynth records whether a synthetic PH FORMAT header was injected
	// because Phasing is Unknown/Partial and a GT FORMAT field is present.
	phSynth bool
}

// NewHeader creates an empty Header with fresh dictionaries.
func NewHeader() *Header {
	return &Header{Dicts: NewDictionaries()}
}

// parseNumber parses a VCF/BCF Number= attribute: an integer, ".", "A",
// "R", or "G".
func parseNumber(s string) (Number, error) {
	switch s {
	case ".":
		return Number{Kind: NumberDot}, nil
	case "A":
		return Number{Kind: NumberA}, nil
	case "R":
		return Number{Kind: NumberR}, nil
	case "G":
		return Number{Kind: NumberG}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Number{}, errors.Wrapf(err, "header: bad Number %q", s)
	}
	return Number{Kind: NumberFixed, Fixed: n}, nil
}

func parseBCFType(s string) (value.Type, error) {
	switch strings.ToLower(s) {
	case "integer", "int", "int32":
		return value.Int32, nil
	case "int8":
		return value.Int8, nil
	case "int16":
		return value.Int16, nil
	case "int64":
		return value.Int64, nil
	case "float", "float32":
		return value.Float32, nil
	case "float64":
		return value.Float64, nil
	case "string", "character", "flag":
		return value.String, nil
	}
	return 0, errors.Errorf("header: unknown Type %q", s)
}

// parseStructuredValue parses a "<K1=V1,K2=V2,...>" header value, honoring
// double-quoted values that may themselves contain commas (e.g.
// Description="a, b").
func parseStructuredValue(s string) (map[string]string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "<") || !strings.HasSuffix(s, ">") {
		return nil, errors.Errorf("header: not a structured value: %q", s)
	}
	s = s[1 : len(s)-1]
	fields := make(map[string]string)
	var key strings.Builder
	var val strings.Builder
	inQuotes := false
	inKey := true
	flush := func() {
		if key.Len() > 0 {
			fields[key.String()] = val.String()
		}
		key.Reset()
		val.Reset()
		inKey = true
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' && inKey == false:
			inQuotes = !inQuotes
		case c == '=' && inKey && !inQuotes:
			inKey = false
		case c == ',' && !inQuotes:
			flush()
		default:
			if inKey {
				key.WriteByte(c)
			} else {
				val.WriteByte(c)
			}
		}
	}
	flush()
	return fields, nil
}

// ParseLine parses one "##key=value" metadata line and, for structured
// lines that define a dictionary entry, inserts it into h.Dicts. The first
// definition of an id always wins.
func (h *Header) ParseLine(line string) error {
	line = strings.TrimPrefix(line, "##")
	eq := strings.IndexByte(line, '=')
	if eq < 0 {
		return errors.Errorf("header: malformed line %q", line)
	}
	key, val := line[:eq], line[eq+1:]
	hl := HeaderLine{Key: key, Value: val}

	if strings.HasPrefix(val, "<") {
		fields, err := parseStructuredValue(val)
		if err != nil {
			return err
		}
		hl.Fields = fields
		if err := h.indexStructured(key, fields); err != nil {
			return err
		}
	} else if key == "phasing" {
		p, ok := parsePhasing(val)
		if !ok {
			return errors.Errorf("header: bad phasing %q", val)
		}
		h.Phasing = p
	}
	h.Lines = append(h.Lines, hl)
	return nil
}

func (h *Header) indexStructured(key string, fields map[string]string) error {
	var dict *Dictionary
	switch key {
	case "contig":
		dict = h.Dicts.Contig
	case "INFO", "FORMAT", "FILTER":
		dict = h.Dicts.ID
	default:
		return nil // Unstructured-but-bracketed line we don't index (e.g. ##PEDIGREE).
	}
	id := fields["ID"]
	if id == "" {
		return errors.Errorf("header: %s line missing ID", key)
	}
	var number Number
	var typ value.Type
	if key == "contig" {
		number, typ = Number{Kind: NumberFixed, Fixed: 1}, value.Int32
	} else if key == "FILTER" {
		number, typ = Number{Kind: NumberFixed, Fixed: 0}, value.Int32
	} else {
		var err error
		if number, err = parseNumber(fields["Number"]); err != nil {
			return err
		}
		if typ, err = parseBCFType(fields["Type"]); err != nil {
			return err
		}
	}

	if idxStr, ok := fields["IDX"]; ok {
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			return errors.Wrapf(err, "header: bad IDX %q", idxStr)
		}
		return dict.InsertAt(idx, id, number, typ)
	}
	dict.Insert(id, number, typ)
	return nil
}

// InjectSyntheticPH adds a synthetic PH FORMAT header when Phasing is
// Unknown or Partial and a GT FORMAT field is defined. After this
// call PH is required alongside GT on every record written by this header;
// RequiresPH reports this, and Writer.Write does not check that a record
// carries PH.
func (h *Header) InjectSyntheticPH() {
	if h.Phasing != PhasingUnknown && h.Phasing != PhasingPartial {
		return
	}
	if _, ok := h.Dicts.ID.Lookup("GT"); !ok {
		return
	}
	if _, ok := h.Dicts.ID.Lookup("PH"); ok {
		return
	}
	h.Dicts.ID.Insert("PH", Number{Kind: NumberFixed, Fixed: 1}, value.Int8)
	h.Lines = append(h.Lines, HeaderLine{
		Key:    "FORMAT",
		Value:  "<ID=PH,Number=1,Type=Int8>",
		Fields: map[string]string{"ID": "PH", "Number": "1", "Type": "Int8"},
	})
	h.phSynth = true
	vlog.VI(1).Infof("sav: injected synthetic PH FORMAT header (phasing=%v)", h.Phasing)
}

// RequiresPH reports whether PH must accompany GT on every record.
func (h *Header) RequiresPH() bool { return h.phSynth }
