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
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/rnaedit/pileup/rnaedit"
	"v.io/x/lib/cmdline"
)

func newCmdAnalyze() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "analyze",
		Short:    "Profile every covered reference position of a BAM file",
		ArgsName: "bampath fapath outpath",
	}
	flags := registerAnalyzeFlags(&cmd.Flags)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return fmt.Errorf("analyze takes bampath fapath outpath, but got %v", argv)
		}
		return runAnalyze(vcontext.Background(), flags, argv[0], argv[1], argv[2])
	})
	return cmd
}

func newCmdAnnotate() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "annotate",
		Short:    "Fill the genomic columns of an RNA table from a genomic table",
		ArgsName: "rnapath genomicpath outpath",
	}
	flags := registerAnnotateFlags(&cmd.Flags)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return fmt.Errorf("annotate takes rnapath genomicpath outpath, but got %v", argv)
		}
		return runAnnotate(vcontext.Background(), flags, argv[0], argv[1], argv[2])
	})
	return cmd
}

func newCmdIndex() *cmdline.Command {
	cmd := &cmdline.Command{
		Name: "index",
		Short: `Compute the editing index of each substitution type.
Multiple tables (e.g. per-chromosome parts of one run) are combined into one result`,
		ArgsName: "tablepath...",
	}
	flags := registerIndexFlags(&cmd.Flags)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return fmt.Errorf("index takes at least one table path")
		}
		return runIndex(vcontext.Background(), flags, argv, env.Stdout)
	})
	return cmd
}

func newCmdChecksum() *cmdline.Command {
	cmd := &cmdline.Command{
		Name: "checksum",
		Short: `Compute a checksum of a table.
The checksum is a JSON list with the row count and an order-independent digest of each region`,
		ArgsName: "tablepath",
	}
	malformed := cmd.Flags.String("malformed", "abort", "Malformed row policy: 'abort' or 'skip'")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("checksum takes a path, but got %v", argv)
		}
		policy, ok := rnaedit.ParseMalformedPolicy(*malformed)
		if !ok {
			return fmt.Errorf("unknown -malformed value %q", *malformed)
		}
		return runChecksum(vcontext.Background(), argv[0], policy, env.Stdout)
	})
	return cmd
}

func newCmdVisualize() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "visualize",
		Short:    "Plot the editing frequencies of a table",
		ArgsName: "tablepath",
	}
	flags := registerVisualizeFlags(&cmd.Flags)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("visualize takes a path, but got %v", argv)
		}
		return runVisualize(vcontext.Background(), flags, argv[0])
	})
	return cmd
}

func main() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "bio-rnaedit",
			Short:    "Tools for profiling RNA editing",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdAnalyze(),
				newCmdAnnotate(),
				newCmdIndex(),
				newCmdChecksum(),
				newCmdVisualize(),
			},
		})
}
