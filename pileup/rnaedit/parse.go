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
package rnaedit

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/rnaedit/pileup"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// RecordStream is an ordered sequence of PositionRecords.  Both Scanner and
// TableReader implement it.
type RecordStream interface {
	Scan() bool
	Record() *PositionRecord
	Err() error
}

// fieldError describes a bad field; the caller fills in the row context.
type fieldError struct {
	column string
	value  string
	err    error
}

func newFieldError(col int, value string, err error) *fieldError {
	return &fieldError{column: Columns[col], value: value, err: err}
}

func parseRatio(col int, s string) (Ratio, *fieldError) {
	if s == Blank {
		return Ratio{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
		err = errors.New("not a finite number")
	}
	if err != nil {
		return Ratio{}, newFieldError(col, s, err)
	}
	return Defined(v), nil
}

// ParseBaseCounts parses "[a, c, g, t]"; the spaces are optional.
func ParseBaseCounts(s string) (c BaseCounts, err error) {
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return c, errors.New("expected a bracketed list")
	}
	parts := strings.Split(s[1:len(s)-1], ",")
	if len(parts) != pileup.NBase {
		return c, errors.Errorf("expected %d counts, got %d", pileup.NBase, len(parts))
	}
	for i, part := range parts {
		var n uint64
		if n, err = strconv.ParseUint(strings.TrimSpace(part), 10, 32); err != nil {
			return
		}
		c[i] = uint32(n)
	}
	return
}

// ParseSubstitutions parses space-separated two-letter labels whose
// reference letter must be ref.
func ParseSubstitutions(s string, ref byte) (SubstitutionSet, error) {
	var subs SubstitutionSet
	if s == Blank {
		return subs, nil
	}
	for _, label := range strings.Fields(s) {
		if len(label) != 2 {
			return 0, errors.Errorf("bad substitution label %q", label)
		}
		r := pileup.ASCIIToEnumTable[label[0]]
		a := pileup.ASCIIToEnumTable[label[1]]
		if r >= pileup.NBase || a >= pileup.NBase || r == a {
			return 0, errors.Errorf("bad substitution label %q", label)
		}
		if r != ref {
			return 0, errors.Errorf("substitution %q does not match reference base %c", label, pileup.EnumToASCIITable[ref])
		}
		subs = subs.Add(r, a)
	}
	return subs, nil
}

// parseProfile parses the five profile columns starting at firstCol.
func parseProfile(fields []string, firstCol int, ref byte) (p Profile, ferr *fieldError) {
	cov, err := strconv.ParseUint(fields[firstCol], 10, 32)
	if err != nil {
		return p, newFieldError(firstCol, fields[firstCol], err)
	}
	p.Coverage = uint32(cov)
	if p.MeanQuality, ferr = parseRatio(firstCol+1, fields[firstCol+1]); ferr != nil {
		return
	}
	if p.BaseCounts, err = ParseBaseCounts(fields[firstCol+2]); err != nil {
		return p, newFieldError(firstCol+2, fields[firstCol+2], err)
	}
	if p.BaseCounts.Sum() != p.Coverage {
		return p, newFieldError(firstCol+2, fields[firstCol+2], errors.Errorf("counts do not sum to coverage %d", p.Coverage))
	}
	if p.Substitutions, err = ParseSubstitutions(fields[firstCol+3], ref); err != nil {
		return p, newFieldError(firstCol+3, fields[firstCol+3], err)
	}
	if p.Frequency, ferr = parseRatio(firstCol+4, fields[firstCol+4]); ferr != nil {
		return
	}
	return
}

// parseFields converts one table row into a PositionRecord.
func parseFields(fields []string) (rec PositionRecord, ferr *fieldError) {
	rec.Region = fields[0]
	if rec.Region == "" {
		return rec, newFieldError(0, "", errors.New("empty region"))
	}
	pos, err := strconv.ParseInt(fields[1], 10, 32)
	if err == nil && pos <= 0 {
		err = errors.New("position must be positive")
	}
	if err != nil {
		return rec, newFieldError(1, fields[1], err)
	}
	rec.Pos = PosType(pos)
	if len(fields[2]) != 1 || (pileup.ASCIIToEnumTable[fields[2][0]] == pileup.BaseX && fields[2] != "N") {
		return rec, newFieldError(2, fields[2], errors.New("expected one of A, C, G, T, N"))
	}
	rec.Ref = pileup.ASCIIToEnumTable[fields[2][0]]
	if len(fields[3]) != 1 {
		return rec, newFieldError(3, fields[3], errors.New("expected one of +, -, *"))
	}
	if rec.Strand, err = pileup.ParseStrand(fields[3][0]); err != nil {
		return rec, newFieldError(3, fields[3], err)
	}
	if rec.Profile, ferr = parseProfile(fields, 4, rec.Ref); ferr != nil {
		return
	}
	const gFirstCol = 9
	if fields[gFirstCol] == Blank {
		for col := gFirstCol + 1; col < NumColumns; col++ {
			if fields[col] != Blank {
				return rec, newFieldError(col, fields[col], errors.New("genomic columns must be all present or all absent"))
			}
		}
		return
	}
	var g Profile
	if g, ferr = parseProfile(fields, gFirstCol, rec.Ref); ferr != nil {
		return
	}
	rec.Genomic = &g
	return
}

// TableReader reads PositionRecords from a table written by TableWriter.
// Malformed rows are handled according to its MalformedPolicy: under Abort
// the first one stops the scan with a *MalformedRowError, and under
// SkipAndCount it is logged and counted.
type TableReader struct {
	r        *tsv.Reader
	source   string
	policy   MalformedPolicy
	closer   func() error
	line     int
	rec      PositionRecord
	err      error
	rejected int
}

// NewTableReader reads a table from r.  source names the input in error
// messages.
func NewTableReader(r io.Reader, source string, policy MalformedPolicy) *TableReader {
	tr := tsv.NewReader(r)
	tr.LazyQuotes = true
	tr.FieldsPerRecord = -1
	return &TableReader{r: tr, source: source, policy: policy}
}

// OpenTable opens a table file.  Gzip and bgzip input is detected from the
// .gz extension.
func OpenTable(ctx context.Context, path string, policy MalformedPolicy) (*TableReader, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	var r io.Reader = in.Reader(ctx)
	var gz *gzip.Reader
	if fileio.DetermineType(path) == fileio.Gzip {
		if gz, err = gzip.NewReader(r); err != nil {
			_ = in.Close(ctx)
			return nil, errors.Wrapf(err, "%s", path)
		}
		r = gz
	}
	t := NewTableReader(r, path, policy)
	t.closer = func() error {
		var err error
		if gz != nil {
			err = gz.Close()
		}
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
		return err
	}
	return t, nil
}

// Close releases the file opened by OpenTable.  It is a no-op for readers
// created with NewTableReader.
func (t *TableReader) Close() error {
	if t.closer == nil {
		return nil
	}
	closer := t.closer
	t.closer = nil
	return closer()
}

func (t *TableReader) malformed(column, value string, err error) *MalformedRowError {
	return &MalformedRowError{Source: t.source, Line: t.line, Column: column, Value: value, Err: err}
}

// readHeader consumes and validates the header row.
func (t *TableReader) readHeader() error {
	t.line++
	fields, err := t.r.Reader.Read()
	if err == io.EOF {
		return &MalformedRowError{Source: t.source, Line: t.line, Err: errors.New("missing header row")}
	}
	if err != nil {
		return err
	}
	if len(fields) != NumColumns {
		return t.malformed("", "", errors.Errorf("header has %d columns, expected %d", len(fields), NumColumns))
	}
	for i, col := range Columns {
		if fields[i] != col {
			return t.malformed("", "", errors.Errorf("header column %d is %q, expected %q", i+1, fields[i], col))
		}
	}
	return nil
}

// Scan advances to the next well-formed row.
func (t *TableReader) Scan() bool {
	if t.err != nil {
		return false
	}
	if t.line == 0 {
		if t.err = t.readHeader(); t.err != nil {
			return false
		}
	}
	for {
		t.line++
		fields, err := t.r.Reader.Read()
		if err == io.EOF {
			return false
		}
		var merr *MalformedRowError
		if err != nil {
			if _, ok := err.(*csv.ParseError); !ok {
				t.err = err
				return false
			}
			merr = t.malformed("", "", err)
		} else if len(fields) != NumColumns {
			merr = t.malformed("", "", errors.Errorf("row has %d columns, expected %d", len(fields), NumColumns))
		} else {
			rec, ferr := parseFields(fields)
			if ferr == nil {
				t.rec = rec
				return true
			}
			merr = t.malformed(ferr.column, ferr.value, ferr.err)
		}
		if t.policy == Abort {
			t.err = merr
			return false
		}
		t.rejected++
		log.Error.Printf("%v (skipped)", merr)
	}
}

// Record returns the current record.  The record (including its Genomic
// profile) is not reused by later calls to Scan.
func (t *TableReader) Record() *PositionRecord {
	rec := t.rec
	return &rec
}

// Err returns the error that stopped the scan, if any.
func (t *TableReader) Err() error {
	return t.err
}

// Rejected returns the number of malformed rows skipped so far.
func (t *TableReader) Rejected() int {
	return t.rejected
}
