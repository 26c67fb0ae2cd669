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
	"github.com/grailbio/rnaedit/pileup"
)

// InferStrand calls the transcript strand of a position from the strands of
// its qualifying observations.  A strand is called when it has a strict
// majority that also reaches the confidence fraction; otherwise, and always
// for unstranded libraries, the result is pileup.StrandNone.
func InferStrand(obs []Observation, opts *Opts) pileup.StrandType {
	if opts.Strandedness == pileup.LibraryUnstranded {
		return pileup.StrandNone
	}
	var nFwd, nRev, n int
	for _, o := range obs {
		if int(o.Qual) < opts.QualityThreshold || o.Base >= pileup.NBase {
			continue
		}
		n++
		switch o.Strand {
		case pileup.StrandFwd:
			nFwd++
		case pileup.StrandRev:
			nRev++
		}
	}
	if n == 0 {
		return pileup.StrandNone
	}
	if nFwd > nRev && float64(nFwd)/float64(n) >= opts.StrandConfidence {
		return pileup.StrandFwd
	}
	if nRev > nFwd && float64(nRev)/float64(n) >= opts.StrandConfidence {
		return pileup.StrandRev
	}
	return pileup.StrandNone
}

// Profiler turns the observations at one position into a PositionRecord.  A
// Profiler is not safe for concurrent use; each scan owns one.
type Profiler struct {
	ref     ReferenceSequenceProvider
	opts    *Opts
	scratch []Observation
}

// NewProfiler returns a Profiler that looks up reference bases in ref.
func NewProfiler(ref ReferenceSequenceProvider, opts *Opts) *Profiler {
	return &Profiler{ref: ref, opts: opts}
}

// Profile builds the record for (region, pos).  ok is false when no
// observation qualifies.  A reference lookup failure is returned as a
// *ReferenceResolutionError.
func (p *Profiler) Profile(region string, pos PosType, obs []Observation) (rec PositionRecord, ok bool, err error) {
	refChar, err := p.ref.BaseAt(region, pos)
	if err != nil {
		return rec, false, &ReferenceResolutionError{Region: region, Pos: pos, Err: err}
	}
	ref := pileup.ASCIIToEnumTable[refChar]
	strand := InferStrand(obs, p.opts)
	if p.opts.StrandCorrection && strand != pileup.StrandNone {
		p.scratch = p.scratch[:0]
		for _, o := range obs {
			if o.Strand == strand {
				p.scratch = append(p.scratch, o)
			}
		}
		obs = p.scratch
	}
	rec, ok = NewPositionRecord(region, pos, ref, strand, obs, p.opts.QualityThreshold)
	return rec, ok, nil
}
