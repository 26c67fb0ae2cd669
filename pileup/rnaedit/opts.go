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
	"runtime"
	"sort"
	"strings"

	"github.com/grailbio/rnaedit/interval"
)

// FailurePolicy determines what happens to the other sub-interval workers
// when one of them fails.
type FailurePolicy int

const (
	// FailRun cancels all workers on the first sub-interval failure and
	// returns that failure.
	FailRun FailurePolicy = iota
	// ContinueOthers lets the remaining workers run to completion; the run
	// then returns a *PartialFailureError naming every failed sub-interval.
	ContinueOthers
)

// MalformedPolicy determines how a table consumer reacts to a row that cannot
// be parsed.
type MalformedPolicy int

const (
	// Abort stops the operation at the first malformed row.
	Abort MalformedPolicy = iota
	// SkipAndCount logs and drops the row, and continues.
	SkipAndCount
)

// ParseMalformedPolicy converts "abort" or "skip" to a MalformedPolicy.
func ParseMalformedPolicy(s string) (MalformedPolicy, bool) {
	switch s {
	case "abort":
		return Abort, true
	case "skip":
		return SkipAndCount, true
	}
	return Abort, false
}

// RegionOrder compares two region names, returning a negative number when a
// sorts before b, zero when they are equal, and a positive number otherwise.
// A nil RegionOrder means lexicographic order.
type RegionOrder func(a, b string) int

// Compare applies o, falling back to lexicographic order when o is nil.
func (o RegionOrder) Compare(a, b string) int {
	if o == nil {
		return strings.Compare(a, b)
	}
	return o(a, b)
}

// ContigOrder returns a RegionOrder that follows the given contig list (e.g.
// the order of a reference .fai).  Names missing from the list sort after all
// listed ones, lexicographically among themselves.
func ContigOrder(names []string) RegionOrder {
	rank := make(map[string]int, len(names))
	for i, name := range names {
		if _, ok := rank[name]; !ok {
			rank[name] = i
		}
	}
	return func(a, b string) int {
		ra, oka := rank[a]
		rb, okb := rank[b]
		switch {
		case oka && okb:
			return ra - rb
		case oka:
			return -1
		case okb:
			return 1
		}
		return strings.Compare(a, b)
	}
}

// SortRegions sorts names in place according to o.
func (o RegionOrder) SortRegions(names []string) {
	sort.SliceStable(names, func(i, j int) bool { return o.Compare(names[i], names[j]) < 0 })
}

// Opts controls profiling, scanning, and the parallel driver.
type Opts struct {
	// QualityThreshold is the minimum base quality of a qualifying
	// observation.
	QualityThreshold int
	// RegionOrder fixes the order of regions in tables.
	RegionOrder RegionOrder

	// Column checks.  A profiled position is dropped if it fails any of them.
	MinDepth              int
	MinMeanQuality        float64
	MinEdits              int
	MinEditsPerNucleotide int

	// Strandedness is the library type: 0 = unstranded, 1 = second-strand
	// (read 1 has the transcript's orientation), 2 = first-strand.
	Strandedness int
	// StrandConfidence is the fraction of qualifying observations that must
	// agree before a position is assigned to a strand.
	StrandConfidence float64
	// StrandCorrection drops observations that disagree with the called
	// strand before tallying.
	StrandCorrection bool

	// Read-level filters, applied by BAMSource.
	MinBasePos    int
	MaxBasePos    int
	MinReadLength int
	Mapq          int
	FlagExclude   int

	// Position lists.  Targets restricts the scan; the rest drop positions.
	Targets      *interval.PositionSet
	Excludes     *interval.PositionSet
	SpliceSites  *interval.PositionSet
	Homopolymers *interval.PositionSet

	Parallelism int
	// ChunkSize is the sub-interval length used for parallel decomposition.
	ChunkSize     int
	TempDir       string
	FailurePolicy FailurePolicy
}

// DefaultOpts holds the default options.
var DefaultOpts = Opts{
	QualityThreshold: 30,
	MinDepth:         1,
	StrandConfidence: 0.5,
	MinReadLength:    30,
	FlagExclude:      0xf04,
	ChunkSize:        10000000,
	FailurePolicy:    FailRun,
}

func (o *Opts) parallelism() int {
	if o.Parallelism <= 0 {
		return runtime.NumCPU()
	}
	return o.Parallelism
}
