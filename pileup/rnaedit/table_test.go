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
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/rnaedit/pileup"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

var tableHeader = strings.Join(Columns[:], "\t")

// tableText returns a table with the given rows; fields within a row are
// separated by single spaces, except inside brackets.
func tableText(rows ...string) string {
	var sb strings.Builder
	sb.WriteString(tableHeader)
	sb.WriteByte('\n')
	for _, row := range rows {
		sb.WriteString(row)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func readTable(t *testing.T, text string, policy MalformedPolicy) ([]PositionRecord, *TableReader) {
	tr := NewTableReader(strings.NewReader(text), "test.tsv", policy)
	var recs []PositionRecord
	for tr.Scan() {
		recs = append(recs, *tr.Record())
	}
	return recs, tr
}

func TestFormatRow(t *testing.T) {
	rec := PositionRecord{
		Region: "chr1",
		Pos:    1115716,
		Ref:    pileup.BaseA,
		Strand: pileup.StrandRev,
		Profile: Profile{
			Coverage:      4,
			MeanQuality:   Defined(37.25),
			BaseCounts:    BaseCounts{1, 0, 2, 1},
			Substitutions: SubstitutionSet(0).Add(pileup.BaseA, pileup.BaseT).Add(pileup.BaseA, pileup.BaseG),
			Frequency:     Defined(0.75),
		},
	}
	expect.EQ(t, FormatRow(&rec), "chr1\t1115716\tA\t-\t4\t37.25\t[1, 0, 2, 1]\tAG AT\t0.75\t-\t-\t-\t-\t-")
	rec.Genomic = &Profile{Coverage: 2, MeanQuality: Defined(38), BaseCounts: BaseCounts{2, 0, 0, 0}, Frequency: Defined(0)}
	expect.EQ(t, FormatRow(&rec), "chr1\t1115716\tA\t-\t4\t37.25\t[1, 0, 2, 1]\tAG AT\t0.75\t2\t38.00\t[2, 0, 0, 0]\t-\t0.00")
	rec.Ref = pileup.BaseX
	rec.Substitutions = 0
	rec.Frequency = Ratio{}
	rec.Genomic = nil
	expect.EQ(t, FormatRow(&rec), "chr1\t1115716\tN\t-\t4\t37.25\t[1, 0, 2, 1]\t-\t-\t-\t-\t-\t-\t-")
}

func TestTableRoundTrip(t *testing.T) {
	recs := []PositionRecord{
		{Region: "chr1", Pos: 10, Ref: pileup.BaseC, Strand: pileup.StrandFwd,
			Profile: Profile{Coverage: 2, MeanQuality: Defined(35.5), BaseCounts: BaseCounts{0, 1, 0, 1},
				Substitutions: SubstitutionSet(0).Add(pileup.BaseC, pileup.BaseT), Frequency: Defined(0.5)}},
		{Region: "chr1", Pos: 11, Ref: pileup.BaseX,
			Profile: Profile{Coverage: 1, MeanQuality: Defined(30), BaseCounts: BaseCounts{0, 0, 1, 0}}},
		{Region: "chr2", Pos: 1, Ref: pileup.BaseA,
			Profile: Profile{Coverage: 1, MeanQuality: Defined(40), BaseCounts: BaseCounts{1, 0, 0, 0}, Frequency: Defined(0)},
			Genomic: &Profile{Coverage: 3, MeanQuality: Defined(33.25), BaseCounts: BaseCounts{1, 0, 2, 0},
				Substitutions: SubstitutionSet(0).Add(pileup.BaseA, pileup.BaseG), Frequency: Defined(0.75)}},
	}
	var buf bytes.Buffer
	tw, err := NewTableWriter(&buf)
	assert.NoError(t, err)
	for i := range recs {
		assert.NoError(t, tw.Write(&recs[i]))
	}
	assert.NoError(t, tw.Flush())
	expect.EQ(t, tw.Rows(), 3)
	expect.True(t, strings.HasPrefix(buf.String(), tableHeader+"\n"))

	got, tr := readTable(t, buf.String(), Abort)
	assert.NoError(t, tr.Err())
	require.Equal(t, recs, got)

	// A header-only table is valid and empty.
	got, tr = readTable(t, tableHeader+"\n", Abort)
	assert.NoError(t, tr.Err())
	expect.EQ(t, len(got), 0)
}

func TestWriteTableGzip(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	rec := PositionRecord{Region: "chr1", Pos: 3, Ref: pileup.BaseG,
		Profile: Profile{Coverage: 1, MeanQuality: Defined(40), BaseCounts: BaseCounts{1, 0, 0, 0},
			Substitutions: SubstitutionSet(0).Add(pileup.BaseG, pileup.BaseA), Frequency: Defined(1)}}
	for _, name := range []string{"out.tsv", "out.tsv.gz"} {
		path := filepath.Join(tmpdir, name)
		assert.NoError(t, WriteTable(ctx, path, 2, func(tw *TableWriter) error {
			return tw.Write(&rec)
		}))
		tr, err := OpenTable(ctx, path, Abort)
		assert.NoError(t, err)
		recs := collect(t, tr)
		assert.NoError(t, tr.Close())
		require.Equal(t, []PositionRecord{rec}, recs, name)
	}
}

func TestParseBaseCountsSpacing(t *testing.T) {
	for _, s := range []string{"[2,0,1,0]", "[2, 0, 1, 0]", "[ 2 ,0, 1,0 ]"} {
		c, err := ParseBaseCounts(s)
		assert.NoError(t, err, s)
		expect.EQ(t, c, BaseCounts{2, 0, 1, 0})
	}
	for _, s := range []string{"2,0,1,0", "[2,0,1]", "[2,0,1,x]", "[2,0,1,-1]", "[]"} {
		_, err := ParseBaseCounts(s)
		expect.True(t, err != nil, s)
	}
}

func TestMalformedRows(t *testing.T) {
	good1 := "chr1\t5\tA\t*\t2\t38.00\t[2, 0, 0, 0]\t-\t0.00\t-\t-\t-\t-\t-"
	good2 := "chr1\t9\tA\t*\t2\t38.00\t[1,0,1,0]\tAG\t0.50\t-\t-\t-\t-\t-"
	tests := []struct {
		row    string
		column string
	}{
		{"chr1\t7\tA\t*\t2\tabc\t[2, 0, 0, 0]\t-\t0.00\t-\t-\t-\t-\t-", "MeanQ"},
		{"chr1\t7\tA\t*\t2\t38.00\t[2, 0, 0, 0]\t-\t0.00", ""},
		{"chr1\tx\tA\t*\t2\t38.00\t[2, 0, 0, 0]\t-\t0.00\t-\t-\t-\t-\t-", "Position"},
		{"chr1\t7\tR\t*\t2\t38.00\t[2, 0, 0, 0]\t-\t0.00\t-\t-\t-\t-\t-", "Reference"},
		{"chr1\t7\tA\t?\t2\t38.00\t[2, 0, 0, 0]\t-\t0.00\t-\t-\t-\t-\t-", "Strand"},
		{"chr1\t7\tA\t*\t3\t38.00\t[2, 0, 0, 0]\t-\t0.00\t-\t-\t-\t-\t-", "BaseCount[A,C,G,T]"},
		{"chr1\t7\tA\t*\t2\t38.00\t[1, 0, 1, 0]\tCG\t0.50\t-\t-\t-\t-\t-", "AllSubs"},
		{"chr1\t7\tA\t*\t2\t38.00\t[2, 0, 0, 0]\t-\tNaN\t-\t-\t-\t-\t-", "Frequency"},
		{"chr1\t7\tA\t*\t2\t38.00\t[2, 0, 0, 0]\t-\t0.00\t-\t38.00\t-\t-\t-", "gMeanQ"},
		{"chr1\t7\tA\t*\t2\t38.00\t[2, 0, 0, 0]\t-\t0.00\t2\t38.00\t[2, 0, 0]\t-\t0.00", "gBaseCount[A,C,G,T]"},
	}
	for _, tt := range tests {
		text := tableText(good1, tt.row, good2)

		recs, tr := readTable(t, text, Abort)
		var merr *MalformedRowError
		assert.True(t, errors.As(tr.Err(), &merr), "row %q: %v", tt.row, tr.Err())
		expect.EQ(t, merr.Line, 3)
		expect.EQ(t, merr.Column, tt.column)
		expect.EQ(t, merr.Source, "test.tsv")
		require.Equal(t, []PosType{5}, positions(recs))

		recs, tr = readTable(t, text, SkipAndCount)
		assert.NoError(t, tr.Err())
		expect.EQ(t, tr.Rejected(), 1)
		require.Equal(t, []PosType{5, 9}, positions(recs))
	}
}

func TestBadHeader(t *testing.T) {
	for _, text := range []string{
		"",
		"Region\tPosition\n",
		strings.Replace(tableHeader, "MeanQ", "MeanQuality", 1) + "\n",
	} {
		_, tr := readTable(t, text, SkipAndCount)
		var merr *MalformedRowError
		expect.True(t, errors.As(tr.Err(), &merr), "header %q", text)
	}
}
