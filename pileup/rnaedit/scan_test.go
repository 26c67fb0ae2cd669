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
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/grailbio/rnaedit/interval"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

// plainSource hides the CoverageSkipper implementation of a MemorySource.
type plainSource struct {
	m *MemorySource
}

func (p plainSource) ObservationsAt(region string, pos PosType) ([]Observation, error) {
	return p.m.ObservationsAt(region, pos)
}

func positions(recs []PositionRecord) []PosType {
	var result []PosType
	for _, rec := range recs {
		result = append(result, rec.Pos)
	}
	return result
}

func TestScannerSkipsUncovered(t *testing.T) {
	ref := newTestReference(t, testRefSeq)
	src := NewMemorySource()
	src.Add("chr1", 3, obs('G', 35), obs('A', 35))
	src.Add("chr1", 5, obs('A', 12))
	src.Add("chr1", 7, obs('G', 40))
	src.Add("chr1", 30, obs('C', 40))
	opts := DefaultOpts
	part := interval.Entry{RefName: "chr1", Start0: 0, End: 20}

	for _, s := range []ReadEvidenceSource{src, plainSource{src}} {
		recs := scanAll(t, part, s, ref, &opts)
		require.Equal(t, []PosType{3, 7}, positions(recs))
		expect.EQ(t, recs[0].Region, "chr1")
		expect.EQ(t, FormatRow(&recs[0]), "chr1\t3\tG\t*\t2\t35.00\t[1, 0, 1, 0]\tGA\t0.50\t-\t-\t-\t-\t-")
		expect.EQ(t, FormatRow(&recs[1]), "chr1\t7\tG\t*\t1\t40.00\t[0, 0, 1, 0]\t-\t0.00\t-\t-\t-\t-\t-")
	}
}

func TestPartitionInvariance(t *testing.T) {
	ref := newTestReference(t, testRefSeq)
	r := rand.New(rand.NewSource(2))
	src := randomSource(r, len(testRefSeq), "chr1")
	opts := DefaultOpts
	for iter := 0; iter < 200; iter++ {
		a := PosType(r.Intn(len(testRefSeq) + 1))
		c := a + PosType(r.Intn(len(testRefSeq)+1-int(a)))
		b := a + PosType(r.Intn(int(c-a)+1))
		whole := scanAll(t, interval.Entry{RefName: "chr1", Start0: a, End: c}, src, ref, &opts)
		left := scanAll(t, interval.Entry{RefName: "chr1", Start0: a, End: b}, src, ref, &opts)
		right := scanAll(t, interval.Entry{RefName: "chr1", Start0: b, End: c}, src, ref, &opts)
		require.Equal(t, len(whole), len(left)+len(right), "[%d, %d) split at %d", a, c, b)
		for i, rec := range append(left, right...) {
			require.Equal(t, whole[i], rec)
		}
		for _, rec := range whole {
			require.True(t, rec.Coverage > 0)
			require.Equal(t, rec.Coverage, rec.BaseCounts.Sum())
			require.True(t, rec.Pos > a && rec.Pos <= c)
		}
	}
}

func mustPositionSet(t *testing.T, bed string) *interval.PositionSet {
	s, err := interval.NewPositionSet(strings.NewReader(bed), interval.NewPositionSetOpts{})
	assert.NoError(t, err)
	return s
}

func TestScannerFilters(t *testing.T) {
	ref := newTestReference(t, testRefSeq)
	src := NewMemorySource()
	for pos := PosType(1); pos <= 20; pos++ {
		src.Add("chr1", pos, obs('A', 35), obs('G', 35), obs('G', 31), obs('C', 33))
	}
	part := interval.Entry{RefName: "chr1", Start0: 0, End: 20}

	opts := DefaultOpts
	opts.Targets = mustPositionSet(t, "chr1\t2\t6\nchr1\t10\t12\nchr2\t0\t5\n")
	opts.Excludes = mustPositionSet(t, "chr1\t3\t4\n")
	opts.SpliceSites = mustPositionSet(t, "chr1\t4\t5\n")
	opts.Homopolymers = mustPositionSet(t, "chr1\t10\t11\n")
	require.Equal(t, []PosType{3, 6, 12}, positions(scanAll(t, part, src, ref, &opts)))

	opts = DefaultOpts
	opts.MinDepth = 5
	expect.EQ(t, len(scanAll(t, part, src, ref, &opts)), 0)

	opts = DefaultOpts
	opts.MinMeanQuality = 34
	expect.EQ(t, len(scanAll(t, part, src, ref, &opts)), 0)

	// Non-reference counts are 3 under an A or C reference, 2 under G, 4
	// under T, and 0 under N.
	opts = DefaultOpts
	opts.MinEdits = 3
	recs := scanAll(t, part, src, ref, &opts)
	for _, rec := range recs {
		expect.True(t, rec.NonRef(rec.Ref) >= 3)
	}
	expect.EQ(t, len(recs), 14)

	// Every A/C/G/T reference position has a singleton non-reference base;
	// N positions have no substitutions at all.
	opts = DefaultOpts
	opts.MinEditsPerNucleotide = 2
	require.Equal(t, []PosType{9, 10}, positions(scanAll(t, part, src, ref, &opts)))
}

func TestScannerReferenceError(t *testing.T) {
	ref := newTestReference(t, "ACGTA")
	src := NewMemorySource()
	src.Add("chr1", 2, obs('C', 35))
	src.Add("chr1", 7, obs('C', 35))
	opts := DefaultOpts
	s := NewScanner(context.Background(), interval.Entry{RefName: "chr1", Start0: 0, End: 10}, src, ref, &opts)
	assert.True(t, s.Scan())
	expect.EQ(t, s.Record().Pos, PosType(2))
	assert.False(t, s.Scan())
	var rerr *ReferenceResolutionError
	assert.True(t, errors.As(s.Err(), &rerr))
	expect.EQ(t, rerr.Pos, PosType(7))
	expect.False(t, s.Scan())
}

func TestScannerCancel(t *testing.T) {
	ref := newTestReference(t, testRefSeq)
	src := NewMemorySource()
	src.Add("chr1", 2, obs('C', 35))
	opts := DefaultOpts
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewScanner(ctx, interval.Entry{RefName: "chr1", Start0: 0, End: 10}, src, ref, &opts)
	expect.False(t, s.Scan())
	expect.EQ(t, s.Err(), context.Canceled)
}
