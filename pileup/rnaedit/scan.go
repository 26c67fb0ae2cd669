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
	"github.com/grailbio/rnaedit/interval"
)

// ctxCheckInterval is the number of visited positions between context
// checks.
const ctxCheckInterval = 1024

// Scanner walks one sub-interval in increasing coordinate order, and lazily
// yields a PositionRecord for each position that has qualifying coverage and
// passes the configured filters.  A Scanner cannot be restarted.
//
//   s := NewScanner(ctx, part, src, ref, opts)
//   for s.Scan() {
//     rec := s.Record()
//     ...
//   }
//   if err := s.Err(); err != nil { ... }
type Scanner struct {
	ctx      context.Context
	part     interval.Entry
	src      ReadEvidenceSource
	skipper  CoverageSkipper
	profiler *Profiler
	opts     *Opts
	filter   *positionFilter
	us       interval.UnionScanner

	// [pos0, end0) is the unvisited part of the current interval, 0-based.
	pos0, end0 PosType
	rec        PositionRecord
	err        error
	done       bool

	nVisited int
	nEmitted int
}

// NewScanner creates a Scanner over part.  If src implements
// CoverageSkipper, uncovered stretches are skipped without calling
// ObservationsAt.
func NewScanner(ctx context.Context, part interval.Entry, src ReadEvidenceSource, ref ReferenceSequenceProvider, opts *Opts) *Scanner {
	s := &Scanner{
		ctx:      ctx,
		part:     part,
		src:      src,
		profiler: NewProfiler(ref, opts),
		opts:     opts,
		filter:   newPositionFilter(opts, part.RefName),
		us:       interval.NewUnionScanner(scanEndpoints(part, opts)),
	}
	s.skipper, _ = src.(CoverageSkipper)
	return s
}

// Scan advances to the next record.  It returns false at the end of the
// sub-interval or on error; check Err() afterwards.
func (s *Scanner) Scan() bool {
	if s.err != nil || s.done {
		return false
	}
	region := s.part.RefName
	for {
		if s.pos0 >= s.end0 {
			if !s.us.Scan(&s.pos0, &s.end0, interval.PosTypeMax) {
				s.done = true
				return false
			}
		}
		if s.nVisited%ctxCheckInterval == 0 {
			if s.err = s.ctx.Err(); s.err != nil {
				return false
			}
		}
		s.nVisited++
		pos := s.pos0 + 1
		if s.skipper != nil {
			next, ok, err := s.skipper.NextCovered(region, pos)
			if err != nil {
				s.err = err
				return false
			}
			if !ok {
				s.done = true
				return false
			}
			if next > pos {
				s.pos0 = next - 1
				continue
			}
		}
		s.pos0++
		if reason := s.filter.dropReason(pos - 1); reason != "" {
			log.Debug.Printf("%s:%d skipped: %s", region, pos, reason)
			continue
		}
		obs, err := s.src.ObservationsAt(region, pos)
		if err != nil {
			s.err = err
			return false
		}
		if len(obs) == 0 {
			continue
		}
		rec, ok, err := s.profiler.Profile(region, pos, obs)
		if err != nil {
			s.err = err
			return false
		}
		if !ok {
			log.Debug.Printf("%s:%d skipped: no qualifying reads", region, pos)
			continue
		}
		if reason := s.opts.columnCheck(&rec); reason != "" {
			log.Debug.Printf("%s:%d skipped: %s", region, pos, reason)
			continue
		}
		s.rec = rec
		s.nEmitted++
		return true
	}
}

// Record returns the current record.  It is overwritten by the next call to
// Scan.
func (s *Scanner) Record() *PositionRecord {
	return &s.rec
}

// Err returns the error that stopped the scan, if any.
func (s *Scanner) Err() error {
	return s.err
}

// Emitted returns the number of records yielded so far.
func (s *Scanner) Emitted() int {
	return s.nEmitted
}
