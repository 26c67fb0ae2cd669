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

	"github.com/grailbio/base/log"
)

// AnnotateOpts controls Annotate.
type AnnotateOpts struct {
	// RegionOrder is the region order both tables are sorted by.
	RegionOrder RegionOrder
	// Malformed is the policy for unparsable rows in either table.
	Malformed   MalformedPolicy
	Parallelism int
}

// DefaultAnnotateOpts holds the default annotation options.
var DefaultAnnotateOpts = AnnotateOpts{
	Malformed: Abort,
}

// orderChecker verifies that a stream is sorted by (region, position):
// positions strictly increase within a region, regions follow the region
// order, and a region never reappears.
type orderChecker struct {
	source  string
	order   RegionOrder
	seen    map[string]bool
	prev    PositionRecord
	hasPrev bool
	n       int
}

func newOrderChecker(source string, order RegionOrder) *orderChecker {
	return &orderChecker{source: source, order: order, seen: make(map[string]bool)}
}

func (c *orderChecker) check(rec *PositionRecord) error {
	c.n++
	if c.hasPrev {
		var bad bool
		if rec.Region == c.prev.Region {
			bad = rec.Pos <= c.prev.Pos
		} else {
			bad = c.seen[rec.Region] || c.order.Compare(rec.Region, c.prev.Region) < 0
		}
		if bad {
			return &OrderingViolationError{
				Source:     c.source,
				Line:       c.n + 1,
				Region:     rec.Region,
				Pos:        rec.Pos,
				PrevRegion: c.prev.Region,
				PrevPos:    c.prev.Pos,
			}
		}
	}
	if !c.hasPrev || rec.Region != c.prev.Region {
		c.seen[rec.Region] = true
	}
	c.prev.Region, c.prev.Pos = rec.Region, rec.Pos
	c.hasPrev = true
	return nil
}

// compareKeys orders records by (region, position).
func compareKeys(order RegionOrder, a, b *PositionRecord) int {
	if a.Region != b.Region {
		return order.Compare(a.Region, b.Region)
	}
	switch {
	case a.Pos < b.Pos:
		return -1
	case a.Pos > b.Pos:
		return 1
	}
	return 0
}

// MergeStats summarizes a Merge call.
type MergeStats struct {
	RNARows     int
	GenomicRows int
	Matched     int
}

// Merge performs an ordered merge-join of an RNA stream against a genomic
// stream.  Every RNA record is passed to emit, in order; when a genomic
// record has the same (region, position) and the RNA record has no genomic
// profile yet, the genomic record's primary profile is attached first.
// Existing genomic profiles are never overwritten, and unmatched genomic
// records are dropped, though both streams are read to the end.  Out-of-order input on either side yields an
// *OrderingViolationError.
func Merge(rna, genomic RecordStream, rnaName, genomicName string, order RegionOrder, emit func(*PositionRecord) error) (stats MergeStats, err error) {
	rnaCheck := newOrderChecker(rnaName, order)
	gCheck := newOrderChecker(genomicName, order)
	var g *PositionRecord
	advance := func() error {
		if !genomic.Scan() {
			g = nil
			return genomic.Err()
		}
		g = genomic.Record()
		stats.GenomicRows++
		return gCheck.check(g)
	}
	if err = advance(); err != nil {
		return
	}
	for rna.Scan() {
		r := rna.Record()
		stats.RNARows++
		if err = rnaCheck.check(r); err != nil {
			return
		}
		for g != nil && compareKeys(order, g, r) < 0 {
			if err = advance(); err != nil {
				return
			}
		}
		if g != nil && compareKeys(order, g, r) == 0 {
			stats.Matched++
			if r.Genomic == nil {
				out := *r
				gp := g.Profile
				out.Genomic = &gp
				r = &out
			}
		}
		if err = emit(r); err != nil {
			return
		}
	}
	if err = rna.Err(); err != nil {
		return
	}
	// Trailing genomic rows are still parsed and order-checked.
	for g != nil {
		if err = advance(); err != nil {
			return
		}
	}
	return
}

// Annotate merges the genomic table at genomicPath into the RNA table at
// rnaPath, writing the result to outPath.
func Annotate(ctx context.Context, rnaPath, genomicPath, outPath string, opts AnnotateOpts) (err error) {
	var rna, genomic *TableReader
	if rna, err = OpenTable(ctx, rnaPath, opts.Malformed); err != nil {
		return
	}
	defer func() {
		if e := rna.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if genomic, err = OpenTable(ctx, genomicPath, opts.Malformed); err != nil {
		return
	}
	defer func() {
		if e := genomic.Close(); e != nil && err == nil {
			err = e
		}
	}()
	var stats MergeStats
	err = WriteTable(ctx, outPath, opts.Parallelism, func(tw *TableWriter) error {
		var e error
		stats, e = Merge(rna, genomic, rnaPath, genomicPath, opts.RegionOrder, tw.Write)
		return e
	})
	log.Printf("Annotate: %d RNA row(s), %d genomic row(s) read, %d matched", stats.RNARows, stats.GenomicRows, stats.Matched)
	if n := rna.Rejected() + genomic.Rejected(); n != 0 {
		log.Printf("Annotate: %d malformed row(s) skipped", n)
	}
	return
}
