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
	"blainsmith.com/go/seahash"
)

// RegionChecksum summarizes the rows of one region.  Digest is the wrapping
// sum of the seahash of each row's canonical rendering, so it does not depend
// on row order; two tables with the same rows per region have equal
// checksums.
type RegionChecksum struct {
	Region string
	Rows   int
	Digest uint64
}

// Checksum computes per-region checksums of s, in first-appearance order.
func Checksum(s RecordStream) ([]RegionChecksum, error) {
	var (
		result  []RegionChecksum
		index   = make(map[string]int)
		scratch []byte
	)
	for s.Scan() {
		rec := s.Record()
		i, ok := index[rec.Region]
		if !ok {
			i = len(result)
			index[rec.Region] = i
			result = append(result, RegionChecksum{Region: rec.Region})
		}
		scratch = AppendRow(scratch[:0], rec)
		result[i].Rows++
		result[i].Digest += seahash.Sum64(scratch)
	}
	return result, s.Err()
}
