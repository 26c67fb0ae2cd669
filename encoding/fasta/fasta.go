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

// Package fasta contains code for parsing (optionally indexed) FASTA files.
// See http://www.htslib.org/doc/faidx.html.  Briefly, FASTA files consist of a
// number of named sequences that may be interrupted by newlines.  For example:
//
// >chr7
// ACGTAC
// GAGGAC
// GCG
// >chr8
// ACGT
//
// Note: Sequence names are defined to be the stretch of characters excluding
// spaces immediately after '>'.  Any text appear after a space are ignored.
// For example, '>chr1 A viral sequence' becomes 'chr1'.
package fasta

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const (
	bufferInitSize = 1024 * 1024 * 300 // 300 MB
)

// Fasta represents FASTA-formatted data, consisting of a set of named
// sequences.  All methods are thread-safe.
type Fasta interface {
	// Get returns a substring of the given sequence name at the given
	// coordinates, which are treated as a 0-based half-open interval
	// [start, end).
	Get(seqName string, start, end uint64) (string, error)

	// Base returns the character at 0-based position pos of the given
	// sequence.
	Base(seqName string, pos uint64) (byte, error)

	// Len returns the length of the given sequence.
	Len(seqName string) (uint64, error)

	// SeqNames returns the names of all sequences, in the order of appearance in
	// the FASTA file.
	SeqNames() []string
}

// Opt is an option for New and NewIndexed.
type Opt func(*opts)

type opts struct {
	clean bool
}

// OptClean causes sequences to be uppercased, with every character other than
// A/C/G/T replaced by 'N'.  Soft-masked (lowercase) reference regions are
// therefore treated like any other.
func OptClean(o *opts) { o.clean = true }

func parseOpts(optList []Opt) opts {
	var o opts
	for _, opt := range optList {
		opt(&o)
	}
	return o
}

// cleanTable maps every byte to its OptClean replacement.
var cleanTable [256]byte

func init() {
	for i := range cleanTable {
		cleanTable[i] = 'N'
	}
	for _, c := range []byte("ACGT") {
		cleanTable[c] = c
		cleanTable[c+'a'-'A'] = c
	}
}

func cleanInplace(seq []byte) {
	for i, c := range seq {
		seq[i] = cleanTable[c]
	}
}

// seqNameFromHeader extracts the sequence name from a '>' line (without the
// '>').
func seqNameFromHeader(header string) string {
	return strings.Split(header, " ")[0]
}

type fasta struct {
	seqs     map[string]string
	seqNames []string
}

// New creates a new Fasta that holds all the FASTA data from the given reader
// in memory.
func New(r io.Reader, optList ...Opt) (Fasta, error) {
	o := parseOpts(optList)
	f := &fasta{seqs: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, bufferInitSize)
	var seqName string
	var seq []byte
	finishSeq := func() {
		if o.clean {
			cleanInplace(seq)
		}
		f.seqs[seqName] = string(seq)
		f.seqNames = append(f.seqNames, seqName)
		seq = seq[:0]
	}
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' { // Start a new sequence.
			if len(seq) != 0 { // We need to store the previous sequence first.
				if seqName == "" {
					return nil, errors.Errorf("malformed FASTA file")
				}
				finishSeq()
			}
			seqName = seqNameFromHeader(string(line[1:]))
			if _, found := f.seqs[seqName]; found {
				return nil, errors.Errorf("duplicate sequence name in FASTA: %s", seqName)
			}
		} else {
			seq = append(seq, line...)
		}
	}
	if scanner.Err() != nil {
		return nil, errors.Wrap(scanner.Err(), "couldn't read FASTA data")
	}
	if seqName == "" && len(seq) == 0 {
		return nil, errors.Errorf("empty FASTA file")
	}
	finishSeq()
	return f, nil
}

// Get implements Fasta.Get().
func (f *fasta) Get(seqName string, start, end uint64) (string, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("sequence not found: %s", seqName)
	}
	if end <= start {
		return "", errors.Errorf("start must be less than end")
	}
	if end > uint64(len(s)) {
		return "", errors.Errorf("invalid query range %d - %d for sequence %s with length %d",
			start, end, seqName, len(s))
	}
	return s[start:end], nil
}

// Base implements Fasta.Base().
func (f *fasta) Base(seqName string, pos uint64) (byte, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.Errorf("sequence not found: %s", seqName)
	}
	if pos >= uint64(len(s)) {
		return 0, errors.Errorf("position %d out of range for sequence %s with length %d", pos, seqName, len(s))
	}
	return s[pos], nil
}

// Len implements Fasta.Len().
func (f *fasta) Len(seq string) (uint64, error) {
	s, ok := f.seqs[seq]
	if !ok {
		return 0, errors.Errorf("sequence not found: %s", seq)
	}
	return uint64(len(s)), nil
}

// SeqNames implements Fasta.SeqNames().
func (f *fasta) SeqNames() []string {
	return f.seqNames
}
