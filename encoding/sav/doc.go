// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package sav implements SAV, a compressed columnar file format for
// population-scale genetic variant data: a site descriptor plus per-sample
// FORMAT fields (genotype calls, dosages, phase bits) for thousands to
// millions of samples, laid out as zstd-compressed blocks with an appended
// s1r range index.
//
// Subpackages implement the lower layers: value holds the self-describing
// typed-value codec, pbwt the stateful permutation transform applied to
// FORMAT vectors, s1r the block-structured range index, and varint the
// LEB128 codec shared by all of the above.
package sav
