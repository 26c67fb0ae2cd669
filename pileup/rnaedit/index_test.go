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
	"io/ioutil"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/grailbio/rnaedit/pileup"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func accumulate(recs []PositionRecord) *Accumulator {
	var acc Accumulator
	for i := range recs {
		acc.Add(&recs[i])
	}
	return &acc
}

func TestIndexValues(t *testing.T) {
	recs := []PositionRecord{
		{Region: "chr1", Pos: 1, Ref: pileup.BaseA, Profile: Profile{Coverage: 4, BaseCounts: BaseCounts{3, 0, 1, 0}}},
		{Region: "chr1", Pos: 2, Ref: pileup.BaseA, Profile: Profile{Coverage: 4, BaseCounts: BaseCounts{2, 0, 1, 1}}},
		{Region: "chr1", Pos: 3, Ref: pileup.BaseC, Profile: Profile{Coverage: 2, BaseCounts: BaseCounts{0, 1, 0, 1}}},
		{Region: "chr1", Pos: 4, Ref: pileup.BaseX, Profile: Profile{Coverage: 5, BaseCounts: BaseCounts{5, 0, 0, 0}}},
	}
	acc := accumulate(recs)
	expect.EQ(t, acc.Records, uint64(4))
	indices := acc.Finalize()
	assert.EQ(t, len(indices), 12)
	byLabel := make(map[string]EditingIndex)
	for _, e := range indices {
		byLabel[e.Label()] = e
	}
	expect.EQ(t, byLabel["AG"], EditingIndex{Ref: pileup.BaseA, Alt: pileup.BaseG, AltTotal: 2, Coverage: 8, Percent: Defined(25)})
	expect.EQ(t, byLabel["AT"], EditingIndex{Ref: pileup.BaseA, Alt: pileup.BaseT, AltTotal: 1, Coverage: 8, Percent: Defined(12.5)})
	expect.EQ(t, byLabel["AC"].Percent, Defined(0))
	expect.EQ(t, byLabel["CT"].Percent, Defined(50))
	// No G or T reference positions: undefined, not zero.
	expect.False(t, byLabel["GA"].Percent.Valid)
	expect.False(t, byLabel["TC"].Percent.Valid)
	expect.EQ(t, indices[0].Label(), "AC")
	expect.EQ(t, indices[11].Label(), "TG")

	var buf bytes.Buffer
	assert.NoError(t, WriteIndex(&buf, indices))
	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	assert.EQ(t, len(lines), 13)
	expect.EQ(t, string(lines[0]), "Substitution\tAltBases\tRefCoverage\tIndex")
	expect.EQ(t, string(lines[1]), "AC\t0\t8\t0.0000")
	expect.EQ(t, string(lines[2]), "AG\t2\t8\t25.0000")
	expect.EQ(t, string(lines[7]), "GA\t0\t0\t-")
}

func TestIndexPartitionCommutes(t *testing.T) {
	ref := newTestReference(t, testRefSeq, testRefSeq)
	opts := DefaultOpts
	opts.QualityThreshold = 10
	src := randomSource(rand.New(rand.NewSource(5)), len(testRefSeq), "chr1", "chr2")
	var recs []PositionRecord
	for _, region := range []string{"chr1", "chr2"} {
		recs = append(recs, scanAll(t, wholeRegion(region), src, ref, &opts)...)
	}
	assert.True(t, len(recs) > 10)
	whole := accumulate(recs)

	r := rand.New(rand.NewSource(6))
	for iter := 0; iter < 20; iter++ {
		// Split into random contiguous parts and merge them in random order.
		var cuts []int
		for i := 0; i < len(recs); i++ {
			if r.Intn(8) == 0 {
				cuts = append(cuts, i)
			}
		}
		cuts = append(cuts, len(recs))
		var parts []*Accumulator
		start := 0
		for _, cut := range cuts {
			parts = append(parts, accumulate(recs[start:cut]))
			start = cut
		}
		r.Shuffle(len(parts), func(i, j int) { parts[i], parts[j] = parts[j], parts[i] })
		var merged Accumulator
		for _, p := range parts {
			merged.Merge(p)
		}
		require.Equal(t, *whole, merged)
		require.Equal(t, whole.Finalize(), merged.Finalize())
	}
}

func TestComputeIndex(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	part1 := filepath.Join(tmpdir, "chr1.tsv")
	part2 := filepath.Join(tmpdir, "chr2.tsv.gz")
	assert.NoError(t, ioutil.WriteFile(part1, []byte(tableText(
		"chr1\t1\tA\t*\t4\t35.00\t[3,0,1,0]\tAG\t0.25\t-\t-\t-\t-\t-",
		"chr1\t2\tA\t*\t4\tbogus\t[3,0,1,0]\tAG\t0.25\t-\t-\t-\t-\t-",
	)), 0600))
	rec := PositionRecord{Region: "chr2", Pos: 7, Ref: pileup.BaseA,
		Profile: Profile{Coverage: 4, MeanQuality: Defined(33), BaseCounts: BaseCounts{2, 0, 2, 0},
			Substitutions: SubstitutionSet(0).Add(pileup.BaseA, pileup.BaseG), Frequency: Defined(0.5)}}
	assert.NoError(t, WriteTable(ctx, part2, 1, func(tw *TableWriter) error { return tw.Write(&rec) }))

	result, err := ComputeIndex(ctx, []string{part1, part2}, DefaultIndexOpts)
	assert.NoError(t, err)
	expect.EQ(t, result.Rejected, 1)
	expect.EQ(t, result.Acc.Records, uint64(2))
	expect.EQ(t, result.Acc.Coverage[pileup.BaseA], uint64(8))
	expect.EQ(t, result.Acc.Alt[pileup.BaseA][pileup.BaseG], uint64(3))

	_, err = ComputeIndex(ctx, []string{part1, part2}, IndexOpts{Malformed: Abort, Parallelism: 1})
	var merr *MalformedRowError
	assert.True(t, errors.As(err, &merr), "%v", err)
	expect.EQ(t, merr.Line, 3)
	expect.EQ(t, merr.Column, "MeanQ")
}
