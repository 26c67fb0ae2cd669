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
	"github.com/grailbio/rnaedit/interval"
	"github.com/grailbio/rnaedit/pileup"
)

// columnCheck returns the reason rec fails the configured column checks, or
// "" if it passes.
func (o *Opts) columnCheck(rec *PositionRecord) string {
	if int(rec.Coverage) < o.MinDepth {
		return "bad column: depth"
	}
	if o.MinMeanQuality > 0 && (!rec.MeanQuality.Valid || rec.MeanQuality.V < o.MinMeanQuality) {
		return "bad column: mean quality"
	}
	if o.MinEdits > 0 && int(rec.NonRef(rec.Ref)) < o.MinEdits {
		return "bad column: edits"
	}
	if o.MinEditsPerNucleotide > 0 && rec.Ref < pileup.NBase {
		for alt, n := range rec.BaseCounts {
			if byte(alt) != rec.Ref && n != 0 && int(n) < o.MinEditsPerNucleotide {
				return "bad column: edits per nucleotide"
			}
		}
	}
	return ""
}

// positionFilter applies the drop lists of an Opts to one region.  Queries
// must have nondecreasing positions.
type positionFilter struct {
	drops     []interval.Cursor
	dropNames []string
}

func newPositionFilter(opts *Opts, region string) *positionFilter {
	f := &positionFilter{}
	for _, d := range []struct {
		set  *interval.PositionSet
		name string
	}{
		{opts.Excludes, "listed exclusion"},
		{opts.SpliceSites, "splice site"},
		{opts.Homopolymers, "homopolymer"},
	} {
		if endpoints := d.set.Endpoints(region); len(endpoints) != 0 {
			f.drops = append(f.drops, interval.NewCursor(endpoints))
			f.dropNames = append(f.dropNames, d.name)
		}
	}
	return f
}

// dropReason returns why 0-based position pos0 must be skipped, or "".
func (f *positionFilter) dropReason(pos0 PosType) string {
	for i := range f.drops {
		if f.drops[i].Contains(pos0) {
			return f.dropNames[i]
		}
	}
	return ""
}

// scanEndpoints returns the interval-union a scan of part visits: part itself,
// intersected with the target list if there is one.
func scanEndpoints(part interval.Entry, opts *Opts) []PosType {
	if part.End <= part.Start0 {
		return nil
	}
	if opts.Targets == nil {
		return []PosType{part.Start0, part.End}
	}
	return interval.ClipEndpoints(opts.Targets.Endpoints(part.RefName), part.Start0, part.End)
}
