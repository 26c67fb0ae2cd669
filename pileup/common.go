// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package pileup

import (
	"context"
	"fmt"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/rnaedit/encoding/fasta"
	"github.com/grailbio/rnaedit/interval"
)

// Common pileup components.

// PosType is the integer type used to represent genomic positions.
type PosType = interval.PosType

// PosTypeMax is the maximum value that can be represented by a PosType.
const PosTypeMax = interval.PosTypeMax

// These constants have two relevant meanings:
// 1. They index the 4-element base-count arrays used throughout the pileup
//    code, in A/C/G/T order.
// 2. It's the natural value for A/C/G/T in a packed 2-bit representation
//    (useful anywhere we don't have to worry about Ns).

const (
	// BaseA represents an A base.
	BaseA byte = iota
	// BaseC represents an C base.
	BaseC
	// BaseG represents an G base.
	BaseG
	// BaseT represents an T base.
	BaseT
	// BaseX is a catch-all.
	BaseX
)

const (
	// NBase is the number of regular base types.
	NBase = 4
	// NBaseEnum counts BaseX as well as the regular base types.
	NBaseEnum = 5
)

// EnumToASCIITable is the A/C/G/T/X -> ASCII mapping, with X rendered as 'N'.
var EnumToASCIITable = [...]byte{'A', 'C', 'G', 'T', 'N'}

// ASCIIToEnumTable is the ASCII -> A/C/G/T/X mapping.  Lowercase (soft-masked)
// bases map to the same values as uppercase ones; everything else is BaseX.
var ASCIIToEnumTable [256]byte

func init() {
	for i := range ASCIIToEnumTable {
		ASCIIToEnumTable[i] = BaseX
	}
	for b, c := range EnumToASCIITable[:NBase] {
		ASCIIToEnumTable[c] = byte(b)
		ASCIIToEnumTable[c+'a'-'A'] = byte(b)
	}
}

// StrandType describes which transcript strand a read (or a position) is
// assigned to.
type StrandType int

const (
	// StrandNone means either no strand restriction, or an unknown strand
	// (unstranded library, or no confident call at a position).
	StrandNone StrandType = iota
	// StrandFwd means the read's transcript is on the forward strand.
	StrandFwd
	// StrandRev means the read's transcript is on the reverse strand.
	StrandRev
)

// StrandTypeToASCIITable is the StrandType -> ASCII mapping.
var StrandTypeToASCIITable = [...]byte{'*', '+', '-'}

// ParseStrand is the inverse of StrandTypeToASCIITable.
func ParseStrand(c byte) (StrandType, error) {
	switch c {
	case '*':
		return StrandNone, nil
	case '+':
		return StrandFwd, nil
	case '-':
		return StrandRev, nil
	}
	return StrandNone, fmt.Errorf("pileup.ParseStrand: invalid strand character %q", c)
}

// Library strandedness codes.  These follow the usual RNA-seq convention:
// with LibraryFirstStrand (e.g. dUTP), read 1 is the reverse complement of
// the transcript; with LibrarySecondStrand, read 1 has the transcript's
// orientation.
const (
	LibraryUnstranded   = 0
	LibrarySecondStrand = 1
	LibraryFirstStrand  = 2
)

// TranscriptStrand returns the transcript strand implied by the read's
// alignment orientation under the given library type.  Unpaired reads are
// treated like read 1.
func TranscriptStrand(samr *sam.Record, libType int) StrandType {
	if libType == LibraryUnstranded {
		return StrandNone
	}
	reverse := samr.Flags&sam.Reverse != 0
	if samr.Flags&sam.Read2 != 0 {
		reverse = !reverse
	}
	if libType == LibraryFirstStrand {
		reverse = !reverse
	}
	if reverse {
		return StrandRev
	}
	return StrandFwd
}

// LoadFa is a thin wrapper around fasta.New() which reads the entire
// (optionally compressed) FASTA into memory.
func LoadFa(ctx context.Context, fapath string) (fa fasta.Fasta, err error) {
	var infile file.File
	if infile, err = file.Open(ctx, fapath); err != nil {
		return
	}
	defer func() {
		if e := infile.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	reader, _ := compress.NewReader(infile.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if fa, err = fasta.New(reader, fasta.OptClean); err != nil {
		return
	}
	log.Printf("pileup.LoadFa: loaded %d sequence(s) from %s", len(fa.SeqNames()), fapath)
	return
}
