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
// Package visualize draws summary plots of editing tables: a histogram of
// editing frequencies, and a Manhattan plot of frequency along the genome.
package visualize

import (
	"context"
	"encoding/json"
	"image/color"
	"io/ioutil"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/rnaedit/pileup"
	"github.com/grailbio/rnaedit/pileup/rnaedit"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Kind selects the plot to draw.
type Kind int

const (
	// Histogram plots the distribution of Frequency.
	Histogram Kind = iota
	// Manhattan plots Frequency against genomic position, one series per
	// region.
	Manhattan
)

// ParseKind parses "histogram" or "manhattan".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "histogram":
		return Histogram, nil
	case "manhattan":
		return Manhattan, nil
	}
	return Histogram, errors.Errorf("unsupported plot type %q (want histogram or manhattan)", s)
}

// regionGap separates consecutive regions on the Manhattan x axis.
const regionGap = 1000000

// Config holds the JSON-configurable plot settings.  Zero fields take the
// per-kind defaults.
type Config struct {
	// FigSize is the [width, height] of the figure, in inches.
	FigSize []float64 `json:"figsize"`
	DPI     int       `json:"dpi"`
	Title   string    `json:"title"`
	// Bins is the histogram bin count.
	Bins int `json:"bins"`
	// Colors are the Manhattan series colors as "#rrggbb", cycled over
	// regions.
	Colors []string `json:"colors"`
	// Format is the output file extension: png, jpg, tiff, svg, pdf or eps.
	Format string `json:"format"`
}

var defaultColors = []string{"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728"}

func (c Config) withDefaults(kind Kind) Config {
	if len(c.FigSize) != 2 {
		if kind == Manhattan {
			c.FigSize = []float64{12, 6}
		} else {
			c.FigSize = []float64{10, 6}
		}
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	if c.Title == "" {
		if kind == Manhattan {
			c.Title = "RNA Manhattan"
		} else {
			c.Title = "RNA editing frequency distribution"
		}
	}
	if c.Bins <= 0 {
		c.Bins = 50
	}
	if len(c.Colors) == 0 {
		c.Colors = defaultColors
	}
	if c.Format == "" {
		c.Format = "png"
	}
	c.Format = strings.ToLower(c.Format)
	return c
}

// LoadConfig reads a JSON Config from path.
func LoadConfig(ctx context.Context, path string) (cfg Config, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return
	}
	defer file.CloseAndReport(ctx, in, &err)
	data, err := ioutil.ReadAll(in.Reader(ctx))
	if err != nil {
		return
	}
	if err = json.Unmarshal(data, &cfg); err != nil {
		err = errors.Wrapf(err, "unable to read config file %s", path)
	}
	return
}

// Filter selects the records that are plotted.  Records with an undefined
// Frequency are never plotted.
type Filter struct {
	// MinCoverage is the minimum Coverage-q30.
	MinCoverage int
	// SubsType, when nonempty, is a substitution label such as "AG"; only
	// records listing it in AllSubs are kept.
	SubsType string
}

func (f Filter) matcher() (func(*rnaedit.PositionRecord) bool, error) {
	var ref, alt byte
	if f.SubsType != "" {
		s := strings.ToUpper(f.SubsType)
		if len(s) != 2 {
			return nil, errors.Errorf("invalid substitution type %q", f.SubsType)
		}
		ref, alt = pileup.ASCIIToEnumTable[s[0]], pileup.ASCIIToEnumTable[s[1]]
		if ref == pileup.BaseX || alt == pileup.BaseX || ref == alt {
			return nil, errors.Errorf("invalid substitution type %q", f.SubsType)
		}
	}
	return func(rec *rnaedit.PositionRecord) bool {
		if !rec.Frequency.Valid || int(rec.Coverage) < f.MinCoverage {
			return false
		}
		return f.SubsType == "" || rec.Substitutions.Has(ref, alt)
	}, nil
}

// Series holds the plotted points of one region.
type Series struct {
	Region    string
	Positions []rnaedit.PosType
	Frequency []float64
}

// Collect reads s, returning the filtered points grouped by region in
// first-appearance order.
func Collect(s rnaedit.RecordStream, f Filter) ([]Series, error) {
	keep, err := f.matcher()
	if err != nil {
		return nil, err
	}
	var (
		series []Series
		index  = make(map[string]int)
	)
	for s.Scan() {
		rec := s.Record()
		if !keep(rec) {
			continue
		}
		i, ok := index[rec.Region]
		if !ok {
			i = len(series)
			index[rec.Region] = i
			series = append(series, Series{Region: rec.Region})
		}
		series[i].Positions = append(series[i].Positions, rec.Pos)
		series[i].Frequency = append(series[i].Frequency, rec.Frequency.V)
	}
	return series, s.Err()
}

// NewHistogram returns a histogram of the frequencies in series.
func NewHistogram(series []Series, cfg Config) (*plot.Plot, error) {
	cfg = cfg.withDefaults(Histogram)
	var values plotter.Values
	for _, s := range series {
		values = append(values, s.Frequency...)
	}
	if len(values) == 0 {
		return nil, errors.New("no records to plot")
	}
	p, err := plot.New()
	if err != nil {
		return nil, err
	}
	h, err := plotter.NewHist(values, cfg.Bins)
	if err != nil {
		return nil, err
	}
	p.Add(h)
	p.Title.Text = cfg.Title
	p.X.Label.Text = "Frequency"
	p.Y.Label.Text = "Count"
	return p, nil
}

// manhattanPoints lays the series out along one axis: each region's points
// are offset by the running sum of the preceding regions' maximum position
// plus regionGap.  It returns one XYs per series and a tick per region at
// its mean position.
func manhattanPoints(series []Series) ([]plotter.XYs, []plot.Tick) {
	var (
		offset float64
		xys    = make([]plotter.XYs, len(series))
		ticks  = make([]plot.Tick, len(series))
	)
	for i, s := range series {
		var sum, max float64
		xys[i] = make(plotter.XYs, len(s.Positions))
		for j, pos := range s.Positions {
			x := float64(pos)
			sum += x
			if x > max {
				max = x
			}
			xys[i][j] = plotter.XY{X: x + offset, Y: s.Frequency[j]}
		}
		ticks[i] = plot.Tick{Value: offset + sum/float64(len(s.Positions)), Label: s.Region}
		offset += max + regionGap
	}
	return xys, ticks
}

// NewManhattan returns a Manhattan plot of the series, one color per region.
func NewManhattan(series []Series, cfg Config) (*plot.Plot, error) {
	cfg = cfg.withDefaults(Manhattan)
	if len(series) == 0 {
		return nil, errors.New("no records to plot")
	}
	colors := make([]color.Color, len(cfg.Colors))
	for i, c := range cfg.Colors {
		var err error
		if colors[i], err = parseColor(c); err != nil {
			return nil, err
		}
	}
	p, err := plot.New()
	if err != nil {
		return nil, err
	}
	xys, ticks := manhattanPoints(series)
	for i, pts := range xys {
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, errors.Wrapf(err, "region %s", series[i].Region)
		}
		sc.GlyphStyle.Color = colors[i%len(colors)]
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(2)
		p.Add(sc)
		p.Legend.Add(series[i].Region, sc)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i].Value < ticks[j].Value })
	p.X.Tick.Marker = plot.ConstantTicks(ticks)
	p.Title.Text = cfg.Title
	p.X.Label.Text = "Genomic position"
	p.Y.Label.Text = "Frequency"
	p.Y.Min, p.Y.Max = 0, 1
	p.Legend.Top = true
	return p, nil
}

// parseColor parses "#rrggbb".
func parseColor(s string) (color.Color, error) {
	if len(s) != 7 || s[0] != '#' {
		return nil, errors.Errorf("invalid color %q (want #rrggbb)", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return nil, errors.Errorf("invalid color %q (want #rrggbb)", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// newCanvas returns a canvas for format.  Raster formats are rendered at
// dpi.
func newCanvas(w, h vg.Length, format string, dpi int) (vg.CanvasWriterTo, error) {
	switch format {
	case "png":
		return vgimg.PngCanvas{Canvas: vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(dpi))}, nil
	case "jpg", "jpeg":
		return vgimg.JpegCanvas{Canvas: vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(dpi))}, nil
	case "tif", "tiff":
		return vgimg.TiffCanvas{Canvas: vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(dpi))}, nil
	}
	return draw.NewFormattedCanvas(w, h, format)
}

// Save renders p to path in cfg's format and size.
func Save(ctx context.Context, p *plot.Plot, path string, kind Kind, cfg Config) (err error) {
	cfg = cfg.withDefaults(kind)
	c, err := newCanvas(vg.Length(cfg.FigSize[0])*vg.Inch, vg.Length(cfg.FigSize[1])*vg.Inch, cfg.Format, cfg.DPI)
	if err != nil {
		return err
	}
	p.Draw(draw.New(c))
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	_, err = c.WriteTo(out.Writer(ctx))
	return
}

// Opts configures Visualize.
type Opts struct {
	Kind      Kind
	Filter    Filter
	Config    Config
	Malformed rnaedit.MalformedPolicy
}

// Visualize plots the table at inPath, writing outPrefix.<format>.  It
// returns the path written.
func Visualize(ctx context.Context, inPath, outPrefix string, opts Opts) (outPath string, err error) {
	in, err := rnaedit.OpenTable(ctx, inPath, opts.Malformed)
	if err != nil {
		return "", err
	}
	series, err := Collect(in, opts.Filter)
	if e := in.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return "", err
	}
	var p *plot.Plot
	switch opts.Kind {
	case Manhattan:
		p, err = NewManhattan(series, opts.Config)
	default:
		p, err = NewHistogram(series, opts.Config)
	}
	if err != nil {
		return "", errors.Wrapf(err, "plotting %s", inPath)
	}
	outPath = outPrefix + "." + opts.Config.withDefaults(opts.Kind).Format
	if err = Save(ctx, p, outPath, opts.Kind, opts.Config); err != nil {
		return "", err
	}
	n := 0
	for _, s := range series {
		n += len(s.Positions)
	}
	log.Printf("Visualize: plotted %d record(s) from %d region(s) to %s", n, len(series), outPath)
	return outPath, nil
}
