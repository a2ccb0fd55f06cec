// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package saverr defines the error kinds shared by every layer of the SAV
// codec, so a caller several packages away from where an error originated
// can still classify it without string matching.
package saverr

import "github.com/pkg/errors"

// These are the error categories the codec surfaces: encoding errors abort
// the current record, decoding errors latch the reader into a failure
// state.
var (
	// Truncated means the input ended mid-structure.
	Truncated = errors.New("sav: truncated input")
	// BadMagic means the container signature did not match.
	BadMagic = errors.New("sav: bad magic")
	// BadVersion means the container version is unsupported.
	BadVersion = errors.New("sav: bad version")
	// BadType means a typed-value tag was unknown or illegally combined,
	// e.g. a sparse string.
	BadType = errors.New("sav: bad type")
	// UnknownKey means a dictionary lookup missed during write.
	UnknownKey = errors.New("sav: unknown dictionary key")
	// BadStride means a FORMAT field's size was not a multiple of the
	// sample count.
	BadStride = errors.New("sav: FORMAT size not a multiple of sample count")
	// OversizedRecord means a shared or individual block exceeded 2^32-1
	// bytes.
	OversizedRecord = errors.New("sav: record block exceeds size limit")
	// IndexOverflow means a block would exceed 65536 records, or a file
	// offset would exceed 2^48.
	IndexOverflow = errors.New("sav: index capacity exceeded")
	// IO wraps an underlying stream or compressor failure.
	IO = errors.New("sav: I/O failure")
)

// Is reports whether err, or any error in its Cause() chain, is target.
// pkg/errors.Wrap predates the stdlib Unwrap convention, so we walk Cause()
// explicitly rather than relying on errors.Is.
func Is(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		causer, ok := err.(interface{ Cause() error })
		if !ok {
			return false
		}
		err = causer.Cause()
	}
	return false
}
