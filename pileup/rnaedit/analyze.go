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
	"github.com/grailbio/rnaedit/encoding/fasta"
	"github.com/grailbio/rnaedit/interval"
	"github.com/pkg/errors"
)

// ScanIntervals returns the sub-intervals to scan.  With a region string
// (see interval.ParseRegionString) the result covers that region; otherwise
// it covers every reference sequence.  Regions are ordered by opts.RegionOrder
// and split into opts.ChunkSize pieces.
func ScanIntervals(fa fasta.Fasta, region string, opts *Opts) ([]interval.Entry, error) {
	var entries []interval.Entry
	if region != "" {
		entry, err := interval.ParseRegionString(region)
		if err != nil {
			return nil, err
		}
		seqLen, err := fa.Len(entry.RefName)
		if err != nil {
			return nil, errors.Wrapf(err, "region %s", region)
		}
		if PosType(seqLen) < entry.End {
			entry.End = PosType(seqLen)
		}
		if entry.Start0 >= entry.End {
			return nil, errors.Errorf("region %s is outside %s (length %d)", region, entry.RefName, seqLen)
		}
		entries = append(entries, entry)
	} else {
		names := append([]string(nil), fa.SeqNames()...)
		opts.RegionOrder.SortRegions(names)
		for _, name := range names {
			seqLen, err := fa.Len(name)
			if err != nil {
				return nil, err
			}
			if uint64(seqLen) >= uint64(interval.PosTypeMax) {
				return nil, errors.Errorf("sequence %s is too long (%d)", name, seqLen)
			}
			entries = append(entries, interval.Entry{RefName: name, End: PosType(seqLen)})
		}
	}
	return interval.PartitionAll(entries, PosType(opts.ChunkSize)), nil
}

// Analyze scans parts and writes the resulting table to outPath.
func Analyze(ctx context.Context, parts []interval.Entry, open EvidenceOpener, ref ReferenceSequenceProvider, outPath string, opts *Opts) error {
	var nRow int
	err := WriteTable(ctx, outPath, opts.parallelism(), func(tw *TableWriter) error {
		e := ScanParts(ctx, parts, open, ref, opts, tw.Write)
		nRow = tw.Rows()
		return e
	})
	log.Printf("Analyze: %d row(s) written to %s", nRow, outPath)
	return err
}
