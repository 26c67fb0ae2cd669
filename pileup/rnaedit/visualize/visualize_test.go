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
package visualize

import (
	"bytes"
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/rnaedit/pileup/rnaedit"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot"
)

var testRows = []string{
	"chr2\t10\tA\t*\t4\t36.00\t[2,0,2,0]\tAG\t0.50\t-\t-\t-\t-\t-",
	"chr2\t20\tA\t*\t2\t36.00\t[2,0,0,0]\t-\t0.00\t-\t-\t-\t-\t-",
	"chr2\t30\tT\t*\t10\t36.00\t[0,3,0,7]\tTC\t0.30\t-\t-\t-\t-\t-",
	"chr10\t5\tN\t*\t3\t36.00\t[1,0,2,0]\t-\t-\t-\t-\t-\t-\t-",
	"chr10\t8\tA\t+\t5\t36.00\t[1,0,4,0]\tAG\t0.80\t-\t-\t-\t-\t-",
}

func testTable(rows ...string) string {
	return strings.Join(rnaedit.Columns[:], "\t") + "\n" + strings.Join(rows, "\n") + "\n"
}

func collect(t *testing.T, f Filter) []Series {
	r := rnaedit.NewTableReader(strings.NewReader(testTable(testRows...)), "test.tsv", rnaedit.Abort)
	series, err := Collect(r, f)
	assert.NoError(t, err)
	return series
}

func TestCollect(t *testing.T) {
	require.Equal(t, []Series{
		{Region: "chr2", Positions: []rnaedit.PosType{10, 20, 30}, Frequency: []float64{0.5, 0, 0.3}},
		{Region: "chr10", Positions: []rnaedit.PosType{8}, Frequency: []float64{0.8}},
	}, collect(t, Filter{}))

	require.Equal(t, []Series{
		{Region: "chr2", Positions: []rnaedit.PosType{10, 30}, Frequency: []float64{0.5, 0.3}},
		{Region: "chr10", Positions: []rnaedit.PosType{8}, Frequency: []float64{0.8}},
	}, collect(t, Filter{MinCoverage: 4}))

	require.Equal(t, []Series{
		{Region: "chr2", Positions: []rnaedit.PosType{10}, Frequency: []float64{0.5}},
		{Region: "chr10", Positions: []rnaedit.PosType{8}, Frequency: []float64{0.8}},
	}, collect(t, Filter{SubsType: "ag"}))

	expect.EQ(t, len(collect(t, Filter{SubsType: "CT"})), 0)

	for _, bad := range []string{"A", "AGT", "AA", "AN"} {
		r := rnaedit.NewTableReader(strings.NewReader(testTable(testRows...)), "test.tsv", rnaedit.Abort)
		_, err := Collect(r, Filter{SubsType: bad})
		expect.True(t, err != nil, bad)
	}
}

func TestManhattanPoints(t *testing.T) {
	xys, ticks := manhattanPoints(collect(t, Filter{}))
	require.Equal(t, 2, len(xys))
	expect.EQ(t, xys[0][0].X, 10.0)
	expect.EQ(t, xys[0][2].X, 30.0)
	expect.EQ(t, xys[0][2].Y, 0.3)
	expect.EQ(t, xys[1][0].X, float64(30+regionGap+8))
	require.Equal(t, []plot.Tick{
		{Value: 20, Label: "chr2"},
		{Value: float64(30 + regionGap + 8), Label: "chr10"},
	}, ticks)
}

func TestParseColor(t *testing.T) {
	c, err := parseColor("#1f77b4")
	assert.NoError(t, err)
	r, g, b, a := c.RGBA()
	require.Equal(t, []uint32{0x1f, 0x77, 0xb4, 0xff}, []uint32{r >> 8, g >> 8, b >> 8, a >> 8})
	for _, bad := range []string{"1f77b4", "#1f77b", "#zzzzzz", "red"} {
		_, err = parseColor(bad)
		expect.True(t, err != nil, bad)
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("manhattan")
	assert.NoError(t, err)
	expect.EQ(t, k, Manhattan)
	k, err = ParseKind("histogram")
	assert.NoError(t, err)
	expect.EQ(t, k, Histogram)
	_, err = ParseKind("violin")
	expect.True(t, err != nil)
}

func TestVisualize(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	inPath := filepath.Join(tmpdir, "edits.tsv")
	assert.NoError(t, ioutil.WriteFile(inPath, []byte(testTable(testRows...)), 0600))

	out, err := Visualize(ctx, inPath, filepath.Join(tmpdir, "hist"), Opts{Kind: Histogram, Config: Config{FigSize: []float64{4, 3}, DPI: 72}})
	assert.NoError(t, err)
	expect.EQ(t, out, filepath.Join(tmpdir, "hist.png"))
	data, err := ioutil.ReadFile(out)
	assert.NoError(t, err)
	expect.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))

	configPath := filepath.Join(tmpdir, "config.json")
	assert.NoError(t, ioutil.WriteFile(configPath, []byte(`{"figsize": [6, 3], "title": "chr2 edits", "colors": ["#000000"], "format": "svg"}`), 0600))
	cfg, err := LoadConfig(ctx, configPath)
	assert.NoError(t, err)
	expect.EQ(t, cfg.Title, "chr2 edits")
	expect.EQ(t, cfg.Format, "svg")

	out, err = Visualize(ctx, inPath, filepath.Join(tmpdir, "manhattan"), Opts{Kind: Manhattan, Config: cfg})
	assert.NoError(t, err)
	expect.EQ(t, out, filepath.Join(tmpdir, "manhattan.svg"))
	data, err = ioutil.ReadFile(out)
	assert.NoError(t, err)
	expect.True(t, bytes.Contains(data, []byte("<svg")))

	// Nothing survives the filter.
	_, err = Visualize(ctx, inPath, filepath.Join(tmpdir, "empty"), Opts{Kind: Histogram, Filter: Filter{MinCoverage: 100}})
	expect.True(t, err != nil)

	assert.NoError(t, ioutil.WriteFile(configPath, []byte(`{"figsize": "big"}`), 0600))
	_, err = LoadConfig(ctx, configPath)
	expect.True(t, err != nil)
}
