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

// PosType is the integer type used to represent genomic positions.
type PosType = pileup.PosType

// Ratio is a number that may be undefined, e.g. a mean over zero
// observations.  The zero value is undefined.
type Ratio struct {
	Valid bool
	V     float64
}

// Defined returns a valid Ratio with value v.
func Defined(v float64) Ratio {
	return Ratio{Valid: true, V: v}
}

// NewRatio returns num/denom, or an undefined Ratio when denom is zero.
func NewRatio(num, denom float64) Ratio {
	if denom == 0 {
		return Ratio{}
	}
	return Ratio{Valid: true, V: num / denom}
}

// BaseCounts holds counts of qualifying A, C, G, T observations, in that
// order.
type BaseCounts [pileup.NBase]uint32

// Sum returns the total count.
func (c BaseCounts) Sum() uint32 {
	return c[0] + c[1] + c[2] + c[3]
}

// SubstitutionSet is a set of directed substitutions (ref, alt), with ref and
// alt in pileup.BaseA..pileup.BaseT.  Bit (4*ref + alt) is set when the
// substitution is present.
type SubstitutionSet uint16

// Add returns s with (ref, alt) added.
func (s SubstitutionSet) Add(ref, alt byte) SubstitutionSet {
	return s | 1<<(uint(ref)*pileup.NBase+uint(alt))
}

// Has returns whether (ref, alt) is in s.
func (s SubstitutionSet) Has(ref, alt byte) bool {
	return s&(1<<(uint(ref)*pileup.NBase+uint(alt))) != 0
}

// Profile is the part of a PositionRecord derived from one set of reads.  A
// PositionRecord carries its own Profile, and optionally the Profile of the
// genomic (DNA) reads at the same position.
type Profile struct {
	// Coverage is the number of qualifying observations.  It always equals
	// BaseCounts.Sum().
	Coverage      uint32
	MeanQuality   Ratio
	BaseCounts    BaseCounts
	Substitutions SubstitutionSet
	// Frequency is the fraction of non-reference qualifying observations.
	// Undefined when the reference base is N.
	Frequency Ratio
}

// PositionRecord is the per-position profile emitted by a scan, and the unit
// row of every table.
type PositionRecord struct {
	Region string
	// Pos is 1-based.
	Pos PosType
	// Ref is pileup.BaseA..pileup.BaseT, or pileup.BaseX for N.
	Ref    byte
	Strand pileup.StrandType
	Profile
	// Genomic is nil until filled by annotation; it is never partially
	// populated.
	Genomic *Profile
}

// NewProfile tallies the qualifying observations at a position with
// reference base ref.  Observations below qualityThreshold, and observations
// whose base is not A/C/G/T, are ignored.  ok is false when no observation
// qualifies.
func NewProfile(ref byte, obs []Observation, qualityThreshold int) (p Profile, ok bool) {
	var qualSum uint64
	for _, o := range obs {
		if int(o.Qual) < qualityThreshold || o.Base >= pileup.NBase {
			continue
		}
		p.BaseCounts[o.Base]++
		qualSum += uint64(o.Qual)
	}
	p.Coverage = p.BaseCounts.Sum()
	if p.Coverage == 0 {
		return Profile{}, false
	}
	p.MeanQuality = Defined(float64(qualSum) / float64(p.Coverage))
	p.finishSubstitutions(ref)
	return p, true
}

// finishSubstitutions fills Substitutions and Frequency from BaseCounts.
func (p *Profile) finishSubstitutions(ref byte) {
	p.Substitutions = 0
	if ref >= pileup.NBase {
		p.Frequency = Ratio{}
		return
	}
	for alt, n := range p.BaseCounts {
		if byte(alt) != ref && n != 0 {
			p.Substitutions = p.Substitutions.Add(ref, byte(alt))
		}
	}
	p.Frequency = NewRatio(float64(p.Coverage-p.BaseCounts[ref]), float64(p.Coverage))
}

// NonRef returns the number of qualifying observations that differ from ref.
func (p *Profile) NonRef(ref byte) uint32 {
	if ref >= pileup.NBase {
		return 0
	}
	return p.Coverage - p.BaseCounts[ref]
}

// NewPositionRecord profiles one position.  It returns ok == false, and no
// record, when no observation qualifies.
func NewPositionRecord(region string, pos PosType, ref byte, strand pileup.StrandType, obs []Observation, qualityThreshold int) (rec PositionRecord, ok bool) {
	var p Profile
	if p, ok = NewProfile(ref, obs, qualityThreshold); !ok {
		return
	}
	rec = PositionRecord{
		Region:  region,
		Pos:     pos,
		Ref:     ref,
		Strand:  strand,
		Profile: p,
	}
	return
}
