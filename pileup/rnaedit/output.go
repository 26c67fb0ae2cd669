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
	"io"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/rnaedit/pileup"
)

// Blank is the marker for an undefined or absent value.
const Blank = "-"

// Columns are the table columns, in order.
var Columns = [...]string{
	"Region",
	"Position",
	"Reference",
	"Strand",
	"Coverage-q30",
	"MeanQ",
	"BaseCount[A,C,G,T]",
	"AllSubs",
	"Frequency",
	"gCoverage-q30",
	"gMeanQ",
	"gBaseCount[A,C,G,T]",
	"gAllSubs",
	"gFrequency",
}

// NumColumns is the number of table columns.
const NumColumns = len(Columns)

// AppendRatio appends r with two decimal places, or Blank if r is
// undefined.
func AppendRatio(dst []byte, r Ratio) []byte {
	if !r.Valid {
		return append(dst, Blank...)
	}
	return strconv.AppendFloat(dst, r.V, 'f', 2, 64)
}

// AppendBaseCounts appends c as "[a, c, g, t]".
func AppendBaseCounts(dst []byte, c BaseCounts) []byte {
	dst = append(dst, '[')
	for i, n := range c {
		if i != 0 {
			dst = append(dst, ", "...)
		}
		dst = strconv.AppendUint(dst, uint64(n), 10)
	}
	return append(dst, ']')
}

// AppendSubstitutions appends s as space-separated two-letter labels (e.g.
// "AG AT"), in reference then alternate base order, or Blank if s is empty.
func AppendSubstitutions(dst []byte, s SubstitutionSet) []byte {
	if s == 0 {
		return append(dst, Blank...)
	}
	first := true
	for ref := byte(0); ref < pileup.NBase; ref++ {
		for alt := byte(0); alt < pileup.NBase; alt++ {
			if !s.Has(ref, alt) {
				continue
			}
			if !first {
				dst = append(dst, ' ')
			}
			first = false
			dst = append(dst, pileup.EnumToASCIITable[ref], pileup.EnumToASCIITable[alt])
		}
	}
	return dst
}

// appendFields appends the table fields of rec to dst, each followed by sep.
func appendFields(dst []byte, rec *PositionRecord, sep byte) []byte {
	dst = append(dst, rec.Region...)
	dst = append(dst, sep)
	dst = strconv.AppendInt(dst, int64(rec.Pos), 10)
	dst = append(dst, sep, pileup.EnumToASCIITable[rec.Ref], sep, pileup.StrandTypeToASCIITable[rec.Strand], sep)
	dst = appendProfile(dst, &rec.Profile, sep)
	if rec.Genomic == nil {
		for i := 0; i < 5; i++ {
			dst = append(dst, Blank...)
			dst = append(dst, sep)
		}
		return dst
	}
	return appendProfile(dst, rec.Genomic, sep)
}

func appendProfile(dst []byte, p *Profile, sep byte) []byte {
	dst = strconv.AppendUint(dst, uint64(p.Coverage), 10)
	dst = append(dst, sep)
	dst = AppendRatio(dst, p.MeanQuality)
	dst = append(dst, sep)
	dst = AppendBaseCounts(dst, p.BaseCounts)
	dst = append(dst, sep)
	dst = AppendSubstitutions(dst, p.Substitutions)
	dst = append(dst, sep)
	dst = AppendRatio(dst, p.Frequency)
	return append(dst, sep)
}

// AppendRow appends the tab-separated rendering of rec, without a trailing
// newline.
func AppendRow(dst []byte, rec *PositionRecord) []byte {
	dst = appendFields(dst, rec, '\t')
	return dst[:len(dst)-1]
}

// FormatRow returns the tab-separated rendering of rec.
func FormatRow(rec *PositionRecord) string {
	return string(AppendRow(nil, rec))
}

// TableWriter writes PositionRecords as a table.
type TableWriter struct {
	tsvw    *tsv.Writer
	scratch []byte
	nRow    int
}

// NewTableWriter creates a TableWriter and writes the header row.
func NewTableWriter(w io.Writer) (*TableWriter, error) {
	tw := &TableWriter{tsvw: tsv.NewWriter(w)}
	for _, col := range Columns {
		tw.tsvw.WriteString(col)
	}
	if err := tw.tsvw.EndLine(); err != nil {
		return nil, err
	}
	return tw, nil
}

// Write appends one row.
func (tw *TableWriter) Write(rec *PositionRecord) error {
	tw.scratch = appendFields(tw.scratch[:0], rec, '\t')
	tw.tsvw.WritePartialBytes(tw.scratch)
	tw.nRow++
	return tw.tsvw.EndLine()
}

// Flush flushes buffered rows.
func (tw *TableWriter) Flush() error {
	return tw.tsvw.Flush()
}

// Rows returns the number of rows written.
func (tw *TableWriter) Rows() int {
	return tw.nRow
}

// WriteTable creates path and calls fill with a TableWriter on it.  Paths
// ending in .gz are bgzip-compressed.  The table is flushed and closed even
// if fill fails, so partial output remains.
func WriteTable(ctx context.Context, path string, parallelism int, fill func(*TableWriter) error) (err error) {
	var out file.File
	if out, err = file.Create(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := out.Writer(ctx)
	if fileio.DetermineType(path) == fileio.Gzip {
		if parallelism < 1 {
			parallelism = 1
		}
		bgzfw := bgzf.NewWriter(w, parallelism)
		defer func() {
			if e := bgzfw.Close(); e != nil && err == nil {
				err = e
			}
		}()
		w = bgzfw
	}
	var tw *TableWriter
	if tw, err = NewTableWriter(w); err != nil {
		return
	}
	err = fill(tw)
	if e := tw.Flush(); e != nil && err == nil {
		err = e
	}
	return
}
