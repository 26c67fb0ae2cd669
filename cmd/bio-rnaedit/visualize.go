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

	"github.com/grailbio/rnaedit/pileup/rnaedit/visualize"
)

type visualizeFlags struct {
	plotType    *string
	output      *string
	config      *string
	minCoverage *int
	subsType    *string
	malformed   *string
}

func registerVisualizeFlags(fs *flag.FlagSet) visualizeFlags {
	return visualizeFlags{
		plotType: fs.String("plot-type", "histogram", "Plot to draw: 'histogram' of Frequency, or 'manhattan' of Frequency by position"),
		output:   fs.String("output", "output_plot", "Output path prefix; the format's extension is appended"),
		config: fs.String("config", "", `JSON file with plot settings: figsize ([width, height] inches), dpi,
title, bins, colors (["#rrggbb", ...]) and format (png, jpg, tiff, svg, pdf, eps)`),
		minCoverage: fs.Int("min-coverage", 0, "Only plot rows with Coverage-q30 at least this"),
		subsType:    fs.String("subs-type", "", "Only plot rows whose AllSubs lists this substitution, e.g. AG"),
		malformed:   fs.String("malformed", "abort", "Malformed row policy: 'abort' stops at the first bad row, 'skip' logs and drops it"),
	}
}

func runVisualize(ctx context.Context, flags visualizeFlags, inPath string) error {
	var (
		opts visualize.Opts
		err  error
	)
	if opts.Kind, err = visualize.ParseKind(*flags.plotType); err != nil {
		return err
	}
	if opts.Malformed, err = parsePolicy(*flags.malformed); err != nil {
		return err
	}
	if *flags.config != "" {
		if opts.Config, err = visualize.LoadConfig(ctx, *flags.config); err != nil {
			return err
		}
	}
	if *flags.minCoverage < 0 {
		return fmt.Errorf("-min-coverage must be nonnegative, got %d", *flags.minCoverage)
	}
	opts.Filter = visualize.Filter{MinCoverage: *flags.minCoverage, SubsType: *flags.subsType}
	_, err = visualize.Visualize(ctx, inPath, *flags.output, opts)
	return err
}
