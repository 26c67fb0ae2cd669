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

	gerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/rnaedit/pileup"
)

// Accumulator is the running state of an editing-index reduction.  For each
// reference base ref, Coverage[ref] is the total qualifying coverage of
// positions whose reference base is ref, and Alt[ref][alt] the total count of
// alt among them.  Accumulators built over disjoint inputs can be combined
// with Merge in any order.
type Accumulator struct {
	Alt      [pileup.NBase][pileup.NBase]uint64
	Coverage [pileup.NBase]uint64
	// Records is the number of records added; records with an N reference
	// base are counted but contribute nothing else.
	Records uint64
}

// Add folds one record into a.
func (a *Accumulator) Add(rec *PositionRecord) {
	a.Records++
	ref := rec.Ref
	if ref >= pileup.NBase {
		return
	}
	a.Coverage[ref] += uint64(rec.Coverage)
	for alt, n := range rec.BaseCounts {
		if byte(alt) != ref {
			a.Alt[ref][alt] += uint64(n)
		}
	}
}

// Merge adds b's totals into a.
func (a *Accumulator) Merge(b *Accumulator) {
	for ref := range a.Alt {
		a.Coverage[ref] += b.Coverage[ref]
		for alt := range a.Alt[ref] {
			a.Alt[ref][alt] += b.Alt[ref][alt]
		}
	}
	a.Records += b.Records
}

// EditingIndex is the finalized index of one directed substitution type.
type EditingIndex struct {
	Ref, Alt byte
	AltTotal uint64
	Coverage uint64
	// Percent is 100 * AltTotal / Coverage; undefined when Coverage is 0.
	Percent Ratio
}

// Label returns the two-letter substitution label, e.g. "AG".
func (e EditingIndex) Label() string {
	return string([]byte{pileup.EnumToASCIITable[e.Ref], pileup.EnumToASCIITable[e.Alt]})
}

// Finalize returns the indices of all 12 directed substitution types, ordered
// by reference then alternate base.
func (a *Accumulator) Finalize() []EditingIndex {
	result := make([]EditingIndex, 0, pileup.NBase*(pileup.NBase-1))
	for ref := byte(0); ref < pileup.NBase; ref++ {
		for alt := byte(0); alt < pileup.NBase; alt++ {
			if alt == ref {
				continue
			}
			result = append(result, EditingIndex{
				Ref:      ref,
				Alt:      alt,
				AltTotal: a.Alt[ref][alt],
				Coverage: a.Coverage[ref],
				Percent:  NewRatio(100*float64(a.Alt[ref][alt]), float64(a.Coverage[ref])),
			})
		}
	}
	return result
}

// AccumulateStream adds every record of s to a.
func (a *Accumulator) AccumulateStream(s RecordStream) error {
	for s.Scan() {
		a.Add(s.Record())
	}
	return s.Err()
}

// IndexOpts controls ComputeIndex.
type IndexOpts struct {
	// Malformed is the policy for unparsable rows.
	Malformed   MalformedPolicy
	Parallelism int
}

// DefaultIndexOpts holds the default index options.
var DefaultIndexOpts = IndexOpts{
	Malformed: SkipAndCount,
}

// IndexResult is the outcome of ComputeIndex.
type IndexResult struct {
	Acc      Accumulator
	Rejected int
}

// ComputeIndex reduces the given tables (e.g. per-chromosome parts of one
// RNA table) into a single Accumulator.  Tables are read in parallel, each
// into its own Accumulator, and merged at the end.
func ComputeIndex(ctx context.Context, paths []string, opts IndexOpts) (result IndexResult, err error) {
	accs := make([]Accumulator, len(paths))
	rejected := make([]int, len(paths))
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = len(paths)
	}
	var errs gerrors.Once
	errs.Set(traverse.Limit(parallelism).Each(len(paths), func(i int) (err error) {
		var t *TableReader
		if t, err = OpenTable(ctx, paths[i], opts.Malformed); err != nil {
			return
		}
		defer func() {
			if e := t.Close(); e != nil && err == nil {
				err = e
			}
		}()
		err = accs[i].AccumulateStream(t)
		rejected[i] = t.Rejected()
		return
	}))
	if err = errs.Err(); err != nil {
		return
	}
	for i := range accs {
		result.Acc.Merge(&accs[i])
		result.Rejected += rejected[i]
	}
	log.Printf("ComputeIndex: %d record(s) from %d table(s), %d malformed row(s) skipped", result.Acc.Records, len(paths), result.Rejected)
	return
}

// indexRow is one row of the index output.
type indexRow struct {
	Substitution string `tsv:"Substitution"`
	AltBases     int64  `tsv:"AltBases"`
	Coverage     int64  `tsv:"RefCoverage"`
	Index        string `tsv:"Index"`
}

// WriteIndex writes one row per substitution type.  Undefined indices are
// written as Blank.
func WriteIndex(w io.Writer, indices []EditingIndex) error {
	rw := tsv.NewRowWriter(w)
	for _, e := range indices {
		row := indexRow{
			Substitution: e.Label(),
			AltBases:     int64(e.AltTotal),
			Coverage:     int64(e.Coverage),
			Index:        Blank,
		}
		if e.Percent.Valid {
			row.Index = strconv.FormatFloat(e.Percent.V, 'f', 4, 64)
		}
		if err := rw.Write(&row); err != nil {
			return err
		}
	}
	return rw.Flush()
}
