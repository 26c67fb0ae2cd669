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
	"math/rand"
	"strings"
	"testing"

	"github.com/grailbio/rnaedit/encoding/fasta"
	"github.com/grailbio/rnaedit/interval"
	"github.com/grailbio/rnaedit/pileup"
	"github.com/grailbio/testutil/assert"
)

// Test helpers shared by the package's tests.

const testRefSeq = "ACGTACGTNNACGTACGTACGTACGTACGTACGTACGTACGTACGTACGTACGTACGTACGTACGT"

func newTestReference(t testing.TB, seqs ...string) ReferenceSequenceProvider {
	var sb strings.Builder
	for i, seq := range seqs {
		sb.WriteString(">chr")
		sb.WriteByte(byte('1' + i))
		sb.WriteByte('\n')
		sb.WriteString(seq)
		sb.WriteByte('\n')
	}
	fa, err := fasta.New(strings.NewReader(sb.String()), fasta.OptClean)
	assert.NoError(t, err)
	return FastaReference{Fa: fa}
}

func obs(base byte, qual byte) Observation {
	return Observation{Base: pileup.ASCIIToEnumTable[base], Qual: qual}
}

// randomSource populates every position in [1, length] of each region with
// zero to six random observations.
func randomSource(r *rand.Rand, length int, regions ...string) *MemorySource {
	src := NewMemorySource()
	for _, region := range regions {
		for pos := 1; pos <= length; pos++ {
			n := r.Intn(7)
			for i := 0; i < n; i++ {
				src.Add(region, PosType(pos), Observation{
					Base:   byte(r.Intn(pileup.NBaseEnum)),
					Qual:   byte(r.Intn(45)),
					Strand: pileup.StrandType(1 + r.Intn(2)),
				})
			}
		}
	}
	return src
}

// collect drains a RecordStream.
func collect(t testing.TB, s RecordStream) []PositionRecord {
	var recs []PositionRecord
	for s.Scan() {
		recs = append(recs, *s.Record())
	}
	assert.NoError(t, s.Err())
	return recs
}

func scanAll(t testing.TB, part interval.Entry, src ReadEvidenceSource, ref ReferenceSequenceProvider, opts *Opts) []PositionRecord {
	return collect(t, NewScanner(context.Background(), part, src, ref, opts))
}

// wholeRegion covers a testRefSeq-length region.
func wholeRegion(region string) interval.Entry {
	return interval.Entry{RefName: region, Start0: 0, End: PosType(len(testRefSeq))}
}
