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
	"sort"

	"github.com/grailbio/rnaedit/encoding/fasta"
	"github.com/grailbio/rnaedit/interval"
	"github.com/grailbio/rnaedit/pileup"
	"github.com/pkg/errors"
)

// Observation is one read base aligned to a position.
type Observation struct {
	// Base is pileup.BaseA..pileup.BaseX.
	Base byte
	// Qual is the raw (not +33) base quality.
	Qual byte
	// Strand is the transcript strand of the read, or pileup.StrandNone for
	// unstranded libraries.
	Strand pileup.StrandType
}

// ReadEvidenceSource supplies the read observations overlapping a position.
// Positions are 1-based, and successive calls for one region must have
// nondecreasing positions.  The returned slice is only valid until the next
// call.
type ReadEvidenceSource interface {
	ObservationsAt(region string, pos PosType) ([]Observation, error)
}

// CoverageSkipper is an optional ReadEvidenceSource extension which lets a
// scan jump over uncovered stretches.  NextCovered returns a 1-based
// position p >= pos such that no position in [pos, p) has observations, or
// ok == false if no position >= pos does.
type CoverageSkipper interface {
	NextCovered(region string, pos PosType) (p PosType, ok bool, err error)
}

// EvidenceOpener creates a ReadEvidenceSource for one sub-interval.  Each
// parallel worker opens its own source.  Sources that implement io.Closer are
// closed when the sub-interval scan ends.
type EvidenceOpener func(ctx context.Context, part interval.Entry) (ReadEvidenceSource, error)

// ReferenceSequenceProvider looks up reference bases.  Implementations must
// be safe for concurrent use.
type ReferenceSequenceProvider interface {
	// BaseAt returns the ASCII reference base at 1-based position pos, or an
	// error if the region is unknown or pos is out of bounds.
	BaseAt(region string, pos PosType) (byte, error)
}

// FastaReference adapts a fasta.Fasta into a ReferenceSequenceProvider.
type FastaReference struct {
	Fa fasta.Fasta
}

// BaseAt implements ReferenceSequenceProvider.
func (r FastaReference) BaseAt(region string, pos PosType) (byte, error) {
	if pos <= 0 {
		return 0, errors.Errorf("position %d out of range", pos)
	}
	return r.Fa.Base(region, uint64(pos-1))
}

// MemorySource is a ReadEvidenceSource backed by an in-memory map.  It is
// safe for concurrent readers once populated.
type MemorySource struct {
	obs    map[string]map[PosType][]Observation
	sorted map[string][]PosType
}

// NewMemorySource returns an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		obs:    make(map[string]map[PosType][]Observation),
		sorted: make(map[string][]PosType),
	}
}

// Add appends observations at (region, 1-based pos).
func (m *MemorySource) Add(region string, pos PosType, obs ...Observation) {
	regionObs := m.obs[region]
	if regionObs == nil {
		regionObs = make(map[PosType][]Observation)
		m.obs[region] = regionObs
	}
	if _, ok := regionObs[pos]; !ok {
		positions := m.sorted[region]
		i := sort.Search(len(positions), func(i int) bool { return positions[i] >= pos })
		positions = append(positions, 0)
		copy(positions[i+1:], positions[i:])
		positions[i] = pos
		m.sorted[region] = positions
	}
	regionObs[pos] = append(regionObs[pos], obs...)
}

// ObservationsAt implements ReadEvidenceSource.
func (m *MemorySource) ObservationsAt(region string, pos PosType) ([]Observation, error) {
	return m.obs[region][pos], nil
}

// NextCovered implements CoverageSkipper.
func (m *MemorySource) NextCovered(region string, pos PosType) (PosType, bool, error) {
	positions := m.sorted[region]
	i := sort.Search(len(positions), func(i int) bool { return positions[i] >= pos })
	if i == len(positions) {
		return 0, false, nil
	}
	return positions[i], true, nil
}

// Opener returns an EvidenceOpener that shares m across all workers.
func (m *MemorySource) Opener() EvidenceOpener {
	return func(context.Context, interval.Entry) (ReadEvidenceSource, error) {
		return m, nil
	}
}
