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
	"io/ioutil"
	"os"
	"strconv"

	gerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/rnaedit/interval"
)

func init() {
	recordiozstd.Init()
}

// scanPart scans a single sub-interval, appending its records to w.
func scanPart(ctx context.Context, part interval.Entry, open EvidenceOpener, ref ReferenceSequenceProvider, opts *Opts, w recordio.Writer) (err error) {
	var src ReadEvidenceSource
	if src, err = open(ctx, part); err != nil {
		return
	}
	if closer, ok := src.(io.Closer); ok {
		defer func() {
			if e := closer.Close(); e != nil && err == nil {
				err = e
			}
		}()
	}
	s := NewScanner(ctx, part, src, ref, opts)
	for s.Scan() {
		// The writer may marshal lazily, so it gets its own copy.
		rec := *s.Record()
		w.Append(&rec)
	}
	log.Debug.Printf("scanPart: %v: %d record(s)", part, s.Emitted())
	return s.Err()
}

// ScanParts scans the given disjoint sub-intervals in parallel, and passes
// every record to emit in sub-interval order (the order of parts), then
// coordinate order within each sub-interval.
//
// Each of the min(opts.Parallelism, len(parts)) jobs processes a contiguous
// run of parts and writes its records to a temporary recordio file; the files
// are replayed in job order once all jobs are done.
//
// A sub-interval failure is handled according to opts.FailurePolicy.  Under
// FailRun the remaining work is cancelled and the *IntervalFailure is
// returned; under ContinueOthers every other sub-interval is completed and a
// *PartialFailureError is returned.  In both cases records produced before
// the failure are still passed to emit.
func ScanParts(ctx context.Context, parts []interval.Entry, open EvidenceOpener, ref ReferenceSequenceProvider, opts *Opts, emit func(*PositionRecord) error) (err error) {
	nPart := len(parts)
	if nPart == 0 {
		return nil
	}
	parallelism := opts.parallelism()
	if parallelism > nPart {
		parallelism = nPart
	}
	if opts.TempDir != "" {
		if err = os.MkdirAll(opts.TempDir, 0755); err != nil {
			return
		}
	}
	tmpFiles := make([]*os.File, parallelism)
	defer func() {
		for _, f := range tmpFiles {
			if f != nil {
				if e := f.Close(); e != nil && err == nil {
					err = e
				}
				if e := os.Remove(f.Name()); e != nil && err == nil {
					err = e
				}
			}
		}
	}()
	for jobIdx := range tmpFiles {
		if tmpFiles[jobIdx], err = ioutil.TempFile(opts.TempDir, "rnaedit_tmp"+strconv.Itoa(jobIdx)+"_*.rio"); err != nil {
			return
		}
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	failures := make([]*IntervalFailure, nPart)
	var errs gerrors.Once
	log.Printf("ScanParts: starting main loop (%d sub-interval(s), %d job(s))", nPart, parallelism)
	errs.Set(traverse.Each(parallelism, func(jobIdx int) error {
		startIdx := (jobIdx * nPart) / parallelism
		endIdx := ((jobIdx + 1) * nPart) / parallelism
		w := recordio.NewWriter(tmpFiles[jobIdx], recordio.WriterOpts{
			Marshal:      marshalRecord,
			Transformers: []string{recordiozstd.Name},
		})
		for partIdx := startIdx; partIdx < endIdx; partIdx++ {
			e := scanPart(jobCtx, parts[partIdx], open, ref, opts, w)
			if e == nil {
				continue
			}
			failure := &IntervalFailure{Part: parts[partIdx], Err: e}
			failures[partIdx] = failure
			if opts.FailurePolicy == FailRun {
				errs.Set(failure)
				cancel()
				break
			}
			log.Error.Printf("ScanParts: %v", failure)
		}
		return w.Finish()
	}))
	log.Printf("ScanParts: main loop complete")

	// Replay in job order, even after a failure; the records are a valid
	// diagnostic artifact.
	for _, f := range tmpFiles {
		if e := replay(f, emit); e != nil {
			errs.Set(e)
			break
		}
	}
	if e := ctx.Err(); e != nil {
		return e
	}
	if err = errs.Err(); err != nil {
		return
	}
	var failed []*IntervalFailure
	for _, f := range failures {
		if f != nil {
			failed = append(failed, f)
		}
	}
	if len(failed) != 0 {
		return &PartialFailureError{Failures: failed}
	}
	return nil
}

func replay(f *os.File, emit func(*PositionRecord) error) (err error) {
	if _, err = f.Seek(0, 0); err != nil {
		return
	}
	scanner := recordio.NewScanner(f, recordio.ScannerOpts{
		Unmarshal: unmarshalRecord,
	})
	defer func() {
		if e := scanner.Finish(); e != nil && err == nil {
			err = e
		}
	}()
	for scanner.Scan() {
		if err = emit(scanner.Get().(*PositionRecord)); err != nil {
			return
		}
	}
	return scanner.Err()
}
