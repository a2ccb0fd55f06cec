// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sav

import (
	"github.com/grailbio/sav/encoding/sav/saverr"
	"github.com/grailbio/sav/encoding/sav/value"
	"github.com/pkg/errors"
)

// NumberKind classifies a dictionary entry's declared element count, per
// the VCF/BCF "Number" header field.
type NumberKind uint8

// NumberKind values.
const (
	NumberFixed NumberKind = iota // Number is the literal Fixed count.
	NumberDot                    // "." : unknown / variable.
	NumberA                      // One value per ALT allele.
	NumberR                      // One value per allele, REF included.
	NumberG                      // One value per possible genotype.
)

// Number is a dictionary entry's declared cardinality.
type Number struct {
	Kind  NumberKind
	Fixed int // Meaningful only when Kind == NumberFixed.
}

// tombstoneName marks a dictionary slot reserved by an explicit IDX but not
// (yet, or ever) given a real definition.
const tombstoneName = ""

// DictEntry is one row of a Dictionary: a stable id, its name, its declared
// Number and BCF type code.
type DictEntry struct {
	ID         int
	Name       string
	Number     Number
	Type       value.Type
	Tombstone  bool
	Descriptor string // Free-form Description=, kept for round-tripping.
}

// Dictionary is one of the three parallel string-to-id tables (CONTIG, ID,
// SAMPLE). IDs are stable within a file; Insert always
// appends at the next free id, InsertAt honors an explicit IDX= and backfills
// any lower empty slots with tombstones.
type Dictionary struct {
	byName  map[string]int
	entries []DictEntry
}

// NewDictionary creates an empty Dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{byName: make(map[string]int)}
}

// Len returns the number of id slots, including tombstones.
func (d *Dictionary) Len() int { return len(d.entries) }

// Lookup resolves name to its entry. The first definition of an id always
// wins, so a second Insert of the same name is a no-op that returns the
// original entry.
func (d *Dictionary) Lookup(name string) (DictEntry, bool) {
	id, ok := d.byName[name]
	if !ok {
		return DictEntry{}, false
	}
	return d.entries[id], true
}

// ByID returns the entry at the given id, which may be a tombstone.
func (d *Dictionary) ByID(id int) (DictEntry, bool) {
	if id < 0 || id >= len(d.entries) {
		return DictEntry{}, false
	}
	return d.entries[id], true
}

// Insert appends name at the next free id unless it is already present, in
// which case the existing entry is returned unchanged.
func (d *Dictionary) Insert(name string, number Number, t value.Type) DictEntry {
	if id, ok := d.byName[name]; ok {
		return d.entries[id]
	}
	id := len(d.entries)
	e := DictEntry{ID: id, Name: name, Number: number, Type: t}
	d.entries = append(d.entries, e)
	d.byName[name] = id
	return e
}

// InsertAt inserts name at the explicit id idx, per a header's IDX=
// attribute. Slots between the current length and idx that are not yet
// occupied are filled with tombstones. Re-declaring an id that already has
// a non-tombstone entry is a no-op: the first definition wins.
func (d *Dictionary) InsertAt(idx int, name string, number Number, t value.Type) error {
	if idx < 0 {
		return errors.Errorf("dict: negative IDX %d for %q", idx, name)
	}
	for len(d.entries) <= idx {
		d.entries = append(d.entries, DictEntry{ID: len(d.entries), Name: tombstoneName, Tombstone: true})
	}
	existing := d.entries[idx]
	if !existing.Tombstone {
		return nil // First definition wins.
	}
	e := DictEntry{ID: idx, Name: name, Number: number, Type: t}
	d.entries[idx] = e
	d.byName[name] = idx
	return nil
}

// MustResolve looks up name and returns saverr.UnknownKey if it is absent or
// a tombstone, the error a writer must raise when it can't find a
// contig/INFO/FILTER/FORMAT name in its dictionary.
func (d *Dictionary) MustResolve(name string) (DictEntry, error) {
	e, ok := d.Lookup(name)
	if !ok || e.Tombstone {
		return DictEntry{}, errors.Wrapf(saverr.UnknownKey, "dict: %q", name)
	}
	return e, nil
}

// Dictionaries bundles the three parallel tables a SAV file carries.
type Dictionaries struct {
	Contig *Dictionary
	ID     *Dictionary // Shared id space for INFO, FILTER and FORMAT keys.
	Sample *Dictionary
}

// NewDictionaries creates three empty dictionaries.
func NewDictionaries() *Dictionaries {
	return &Dictionaries{Contig: NewDictionary(), ID: NewDictionary(), Sample: NewDictionary()}
}
