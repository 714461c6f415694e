package chart

import (
	"errors"
	"fmt"
	"io"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrNothingToDraw is returned when rendering an empty dataset.
var ErrNothingToDraw = errors.New("chart: nothing to draw")

// Format is an image output format.
type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"
)

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == SVG {
		return "image/svg+xml"
	}
	return "image/png"
}

// RenderOptions controls image size and axis layout.
type RenderOptions struct {
	Width    int
	Height   int
	MinY     float64
	MaxY     float64
	Location *time.Location // zone used for axis labels
}

// DefaultRenderOptions matches the 1024x768 canvas with a -10..40 ℃ axis.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Width:    1024,
		Height:   768,
		MinY:     -10,
		MaxY:     40,
		Location: time.UTC,
	}
}

// Render draws ds as a line chart with one colored series per device.
func Render(w io.Writer, ds Dataset, format Format, opts RenderOptions) error {
	if ds.Empty() {
		return ErrNothingToDraw
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	start, end := ds.Extent.Start, ds.Extent.End
	if !end.After(start) {
		// A single instant has no width; pad it so the axis is drawable.
		start = start.Add(-time.Second)
		end = end.Add(time.Second)
	}

	series := make([]gochart.Series, 0, len(ds.Series))
	for _, s := range ds.Series {
		col := drawing.Color{R: s.Color.R, G: s.Color.G, B: s.Color.B, A: 255}
		xs := make([]time.Time, len(s.Points))
		ys := make([]float64, len(s.Points))
		for i, p := range s.Points {
			xs[i] = p.Time
			ys[i] = p.Value
		}
		series = append(series, gochart.TimeSeries{
			Name:    s.Label,
			XValues: xs,
			YValues: ys,
			Style: gochart.Style{
				StrokeColor: col,
				StrokeWidth: 1,
				DotColor:    col,
				DotWidth:    2,
			},
		})
	}

	ch := gochart.Chart{
		Width:      opts.Width,
		Height:     opts.Height,
		Background: gochart.Style{Padding: gochart.Box{Top: 20, Left: 60, Right: 20, Bottom: 40}},
		XAxis: gochart.XAxis{
			Name:           "Time",
			Range:          &gochart.ContinuousRange{Min: float64(start.UnixNano()), Max: float64(end.UnixNano())},
			ValueFormatter: clockFormatter(loc),
		},
		YAxis: gochart.YAxis{
			Name:  "Temperature (℃)",
			Range: &gochart.ContinuousRange{Min: opts.MinY, Max: opts.MaxY},
		},
		Series: series,
	}
	ch.Elements = []gochart.Renderable{gochart.Legend(&ch)}

	var provider gochart.RendererProvider
	switch format {
	case PNG:
		provider = gochart.PNG
	case SVG:
		provider = gochart.SVG
	default:
		return fmt.Errorf("chart: unsupported format %q", format)
	}
	if err := ch.Render(provider, w); err != nil {
		return fmt.Errorf("render %s: %w", format, err)
	}
	return nil
}

// clockFormatter labels the time axis as HH:MM:SS.
func clockFormatter(loc *time.Location) gochart.ValueFormatter {
	return func(v interface{}) string {
		switch t := v.(type) {
		case float64:
			return time.Unix(0, int64(t)).In(loc).Format("15:04:05")
		case time.Time:
			return t.In(loc).Format("15:04:05")
		}
		return ""
	}
}
