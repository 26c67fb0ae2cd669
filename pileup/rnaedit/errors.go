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
	"fmt"
	"strings"

	"github.com/grailbio/rnaedit/interval"
)

// ReferenceResolutionError is returned when the reference base for a
// position cannot be looked up.  It is fatal to the enclosing region scan.
type ReferenceResolutionError struct {
	Region string
	Pos    PosType // 1-based
	Err    error
}

func (e *ReferenceResolutionError) Error() string {
	return fmt.Sprintf("reference base unavailable at %s:%d: %v", e.Region, e.Pos, e.Err)
}

// Unwrap returns the underlying lookup error.
func (e *ReferenceResolutionError) Unwrap() error { return e.Err }

// OrderingViolationError is returned when a table is not sorted by (region,
// position).  Region and Pos identify the offending row; PrevRegion and
// PrevPos the row it was compared against.
type OrderingViolationError struct {
	Source     string
	Line       int
	Region     string
	Pos        PosType
	PrevRegion string
	PrevPos    PosType
}

func (e *OrderingViolationError) Error() string {
	return fmt.Sprintf("%s:%d: row %s:%d is out of order after %s:%d", e.Source, e.Line, e.Region, e.Pos, e.PrevRegion, e.PrevPos)
}

// MalformedRowError is returned for a table row that cannot be parsed into a
// PositionRecord.  Column is empty when the row as a whole is bad (e.g. wrong
// column count).
type MalformedRowError struct {
	Source string
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *MalformedRowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("%s:%d: malformed row: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("%s:%d: malformed %s value %q: %v", e.Source, e.Line, e.Column, e.Value, e.Err)
}

// Unwrap returns the underlying parse error.
func (e *MalformedRowError) Unwrap() error { return e.Err }

// IntervalFailure reports that scanning one sub-interval failed.  Records
// emitted for the sub-interval before the failure remain in the output.
type IntervalFailure struct {
	Part interval.Entry
	Err  error
}

func (e *IntervalFailure) Error() string {
	return fmt.Sprintf("scan of %v failed: %v", e.Part, e.Err)
}

// Unwrap returns the error that stopped the scan.
func (e *IntervalFailure) Unwrap() error { return e.Err }

// PartialFailureError is returned under ContinueOthers when at least one
// sub-interval failed.  Failures are in sub-interval order.
type PartialFailureError struct {
	Failures []*IntervalFailure
}

func (e *PartialFailureError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Part.String()
	}
	return fmt.Sprintf("%d sub-interval(s) failed (%s); first error: %v", len(e.Failures), strings.Join(parts, ", "), e.Failures[0].Err)
}
