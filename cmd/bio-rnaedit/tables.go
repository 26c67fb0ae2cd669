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
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/rnaedit/pileup/rnaedit"
	"github.com/pkg/errors"
)

type annotateFlags struct {
	malformed   *string
	regionOrder *string
	parallelism *int
}

func registerAnnotateFlags(fs *flag.FlagSet) annotateFlags {
	return annotateFlags{
		malformed: fs.String("malformed", "abort", "Malformed row policy: 'abort' stops at the first bad row, 'skip' logs and drops it"),
		regionOrder: fs.String("region-order", "", `Comma-separated region names giving the order both tables are sorted
in; regions not listed sort lexicographically after them.  Empty means
lexicographic order`),
		parallelism: fs.Int("parallelism", 1, "Number of bgzip compression threads for .gz output"),
	}
}

func parsePolicy(s string) (rnaedit.MalformedPolicy, error) {
	policy, ok := rnaedit.ParseMalformedPolicy(s)
	if !ok {
		return policy, fmt.Errorf("unknown -malformed value %q", s)
	}
	return policy, nil
}

func runAnnotate(ctx context.Context, flags annotateFlags, rnaPath, genomicPath, outPath string) error {
	opts := rnaedit.DefaultAnnotateOpts
	var err error
	if opts.Malformed, err = parsePolicy(*flags.malformed); err != nil {
		return err
	}
	if *flags.regionOrder != "" {
		opts.RegionOrder = rnaedit.ContigOrder(splitList(*flags.regionOrder))
	}
	opts.Parallelism = *flags.parallelism
	return rnaedit.Annotate(ctx, rnaPath, genomicPath, outPath, opts)
}

type indexFlags struct {
	malformed   *string
	parallelism *int
}

func registerIndexFlags(fs *flag.FlagSet) indexFlags {
	return indexFlags{
		malformed:   fs.String("malformed", "skip", "Malformed row policy: 'abort' stops at the first bad row, 'skip' logs and drops it"),
		parallelism: fs.Int("parallelism", 0, "Maximum number of tables read at once; 0 = all"),
	}
}

func runIndex(ctx context.Context, flags indexFlags, paths []string, out io.Writer) error {
	opts := rnaedit.DefaultIndexOpts
	var err error
	if opts.Malformed, err = parsePolicy(*flags.malformed); err != nil {
		return err
	}
	opts.Parallelism = *flags.parallelism
	result, err := rnaedit.ComputeIndex(ctx, paths, opts)
	if err != nil {
		return err
	}
	return rnaedit.WriteIndex(out, result.Acc.Finalize())
}

func runChecksum(ctx context.Context, path string, policy rnaedit.MalformedPolicy, out io.Writer) (err error) {
	var t *rnaedit.TableReader
	if t, err = rnaedit.OpenTable(ctx, path, policy); err != nil {
		return
	}
	defer func() {
		if e := t.Close(); e != nil && err == nil {
			err = e
		}
	}()
	var csum []rnaedit.RegionChecksum
	if csum, err = rnaedit.Checksum(t); err != nil {
		return
	}
	if n := t.Rejected(); n != 0 {
		log.Printf("checksum: %d malformed row(s) of %s skipped", n, path)
	}
	js, err := json.MarshalIndent(csum, "", "  ")
	if err != nil {
		return errors.Wrap(err, "checksum")
	}
	_, err = fmt.Fprintln(out, string(js))
	return
}

func splitList(s string) []string {
	var result []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			result = append(result, name)
		}
	}
	return result
}
