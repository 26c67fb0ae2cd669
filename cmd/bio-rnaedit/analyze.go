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
package main

import (
	"context"
	"flag"
	"fmt"
	"runtime"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/rnaedit/encoding/fasta"
	"github.com/grailbio/rnaedit/interval"
	"github.com/grailbio/rnaedit/pileup"
	"github.com/grailbio/rnaedit/pileup/rnaedit"
)

type analyzeFlags struct {
	bamIndex    *string
	buildIndex  *bool
	faIndex     *string
	region      *string
	regionOrder *string

	qualityThreshold      *int
	minDepth              *int
	minMeanQuality        *float64
	minEdits              *int
	minEditsPerNucleotide *int

	strandedness     *int
	strandConfidence *float64
	strandCorrection *bool

	minBasePos    *int
	maxBasePos    *int
	minReadLength *int
	mapq          *int
	flagExclude   *int

	targets      *string
	excludes     *string
	spliceSites  *string
	homopolymers *string
	oneBased     *bool

	parallelism   *int
	chunkSize     *int
	tempDir       *string
	continueOnErr *bool
}

func registerAnalyzeFlags(fs *flag.FlagSet) analyzeFlags {
	d := rnaedit.DefaultOpts
	return analyzeFlags{
		bamIndex:    fs.String("index", "", "Input BAM index path. Defaults to bampath + .bai"),
		buildIndex:  fs.Bool("build-index", false, "Write the BAM index first if it does not exist"),
		faIndex:     fs.String("fasta-index", "", "FASTA .fai path. Defaults to fapath + .fai when that file exists; otherwise the whole FASTA is loaded into memory"),
		region:      fs.String("region", "", "Restrict the scan to <contig>:<1-based first pos>-<last pos>, or just <contig>"),
		regionOrder: fs.String("region-order", "lexical", "Region order of the output table: 'lexical', or 'reference' for FASTA order"),

		qualityThreshold:      fs.Int("min-base-qual", d.QualityThreshold, "Bases with quality below this are ignored"),
		minDepth:              fs.Int("min-depth", d.MinDepth, "Skip positions with fewer qualifying bases"),
		minMeanQuality:        fs.Float64("min-mean-qual", d.MinMeanQuality, "Skip positions whose mean qualifying base quality is lower"),
		minEdits:              fs.Int("min-edits", d.MinEdits, "Skip positions with fewer non-reference qualifying bases"),
		minEditsPerNucleotide: fs.Int("min-edits-per-nucleotide", d.MinEditsPerNucleotide, "Skip positions where any observed non-reference base has fewer qualifying bases"),

		strandedness:     fs.Int("strandedness", d.Strandedness, "Library type: 0 = unstranded, 1 = second-strand (read 1 is sense), 2 = first-strand (e.g. dUTP)"),
		strandConfidence: fs.Float64("strand-confidence", d.StrandConfidence, "Fraction of qualifying bases that must agree to assign a strand"),
		strandCorrection: fs.Bool("strand-correction", d.StrandCorrection, "Only count bases on the assigned strand"),

		minBasePos:    fs.Int("trim-start", d.MinBasePos, "Ignore this many bases at the start of each read"),
		maxBasePos:    fs.Int("trim-end", d.MaxBasePos, "Ignore this many bases at the end of each read"),
		minReadLength: fs.Int("min-read-len", d.MinReadLength, "Reads shorter than this are skipped"),
		mapq:          fs.Int("mapq", d.Mapq, "Reads with MAPQ below this level are skipped"),
		flagExclude:   fs.Int("flag-exclude", d.FlagExclude, "Reads with a FLAG bit intersecting this value are skipped"),

		targets:      fs.String("targets", "", "BED of positions to report; others are skipped"),
		excludes:     fs.String("excludes", "", "BED of positions to skip"),
		spliceSites:  fs.String("splice-sites", "", "BED of splice-site positions to skip"),
		homopolymers: fs.String("homopolymers", "", "BED of homopolymer positions to skip"),
		oneBased:     fs.Bool("one-based-lists", false, "Position lists use 1-based closed coordinates"),

		parallelism:   fs.Int("parallelism", 0, "Maximum number of simultaneous scan jobs; 0 = runtime.NumCPU()"),
		chunkSize:     fs.Int("chunk-size", d.ChunkSize, "Length of the sub-intervals regions are split into"),
		tempDir:       fs.String("temp-dir", "", "Directory to write temporary files to (default os.TempDir())"),
		continueOnErr: fs.Bool("continue-on-error", false, "Keep scanning other sub-intervals when one fails, and report all failures at the end"),
	}
}

func loadPositionSet(path string, opts interval.NewPositionSetOpts) (*interval.PositionSet, error) {
	if path == "" {
		return nil, nil
	}
	return interval.NewPositionSetFromPath(path, opts)
}

func (f analyzeFlags) opts() (opts rnaedit.Opts, err error) {
	opts = rnaedit.DefaultOpts
	opts.QualityThreshold = *f.qualityThreshold
	opts.MinDepth = *f.minDepth
	opts.MinMeanQuality = *f.minMeanQuality
	opts.MinEdits = *f.minEdits
	opts.MinEditsPerNucleotide = *f.minEditsPerNucleotide
	opts.Strandedness = *f.strandedness
	opts.StrandConfidence = *f.strandConfidence
	opts.StrandCorrection = *f.strandCorrection
	opts.MinBasePos = *f.minBasePos
	opts.MaxBasePos = *f.maxBasePos
	opts.MinReadLength = *f.minReadLength
	opts.Mapq = *f.mapq
	opts.FlagExclude = *f.flagExclude
	opts.Parallelism = *f.parallelism
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.NumCPU()
	}
	opts.ChunkSize = *f.chunkSize
	opts.TempDir = *f.tempDir
	if *f.continueOnErr {
		opts.FailurePolicy = rnaedit.ContinueOthers
	}
	if opts.Strandedness < pileup.LibraryUnstranded || opts.Strandedness > pileup.LibraryFirstStrand {
		return opts, fmt.Errorf("invalid -strandedness %d", opts.Strandedness)
	}
	if opts.StrandConfidence < 0 || opts.StrandConfidence > 1 {
		return opts, fmt.Errorf("-strand-confidence must be in [0, 1], got %v", opts.StrandConfidence)
	}
	if opts.ChunkSize <= 0 {
		return opts, fmt.Errorf("-chunk-size must be positive, got %d", opts.ChunkSize)
	}
	psOpts := interval.NewPositionSetOpts{OneBasedInput: *f.oneBased}
	if opts.Targets, err = loadPositionSet(*f.targets, psOpts); err != nil {
		return
	}
	if opts.Excludes, err = loadPositionSet(*f.excludes, psOpts); err != nil {
		return
	}
	if opts.SpliceSites, err = loadPositionSet(*f.spliceSites, psOpts); err != nil {
		return
	}
	opts.Homopolymers, err = loadPositionSet(*f.homopolymers, psOpts)
	return
}

// loadReference opens fapath, through its .fai index when one is available.
// The returned function closes the FASTA file.
func loadReference(ctx context.Context, fapath, faiPath string) (fa fasta.Fasta, closeFn func() error, err error) {
	if faiPath == "" {
		if _, e := file.Stat(ctx, fapath+".fai"); e == nil {
			faiPath = fapath + ".fai"
		}
	}
	if faiPath == "" {
		fa, err = pileup.LoadFa(ctx, fapath)
		return fa, func() error { return nil }, err
	}
	var faIn, faiIn file.File
	if faIn, err = file.Open(ctx, fapath); err != nil {
		return
	}
	if faiIn, err = file.Open(ctx, faiPath); err != nil {
		_ = faIn.Close(ctx)
		return
	}
	fa, err = fasta.NewIndexed(faIn.Reader(ctx), faiIn.Reader(ctx), fasta.OptClean)
	if e := faiIn.Close(ctx); e != nil && err == nil {
		err = e
	}
	if err != nil {
		_ = faIn.Close(ctx)
		return
	}
	log.Printf("loadReference: using index %s for %s", faiPath, fapath)
	return fa, func() error { return faIn.Close(ctx) }, nil
}

func runAnalyze(ctx context.Context, flags analyzeFlags, bamPath, faPath, outPath string) (err error) {
	var opts rnaedit.Opts
	if opts, err = flags.opts(); err != nil {
		return
	}
	var (
		fa      fasta.Fasta
		closeFa func() error
	)
	if fa, closeFa, err = loadReference(ctx, faPath, *flags.faIndex); err != nil {
		return
	}
	defer func() {
		if e := closeFa(); e != nil && err == nil {
			err = e
		}
	}()
	switch *flags.regionOrder {
	case "lexical":
	case "reference":
		opts.RegionOrder = rnaedit.ContigOrder(fa.SeqNames())
	default:
		return fmt.Errorf("unknown -region-order %q", *flags.regionOrder)
	}

	bamIndex := *flags.bamIndex
	if bamIndex == "" {
		bamIndex = bamPath + ".bai"
	}
	if *flags.buildIndex {
		if _, e := file.Stat(ctx, bamIndex); e != nil {
			if err = rnaedit.WriteBAMIndex(ctx, bamPath, bamIndex); err != nil {
				return
			}
		}
	}

	var parts []interval.Entry
	if parts, err = rnaedit.ScanIntervals(fa, *flags.region, &opts); err != nil {
		return
	}
	log.Printf("analyze: %d sub-interval(s), parallelism %d", len(parts), opts.Parallelism)
	return rnaedit.Analyze(ctx, parts, rnaedit.BAMOpener(bamPath, bamIndex, &opts), rnaedit.FastaReference{Fa: fa}, outPath, &opts)
}
