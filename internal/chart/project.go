// Package chart reduces the series store into a renderer-agnostic dataset and
// provides an image renderer for it.
package chart

import (
	"time"

	"github.com/sweeney/temp-monitor/internal/series"
)

// Extent is the time span covered by all retained points.
type Extent struct {
	Start time.Time
	End   time.Time
}

// Series is one device's line: its label, color and points oldest first.
type Series struct {
	Label      string
	ColorIndex int
	Color      Color
	Points     []series.Point
}

// Dataset is everything a renderer needs to draw the chart.
// A nil Extent means there is nothing to draw.
type Dataset struct {
	Extent *Extent
	Series []Series
}

// Empty reports whether the dataset has nothing to draw.
func (d Dataset) Empty() bool {
	return d.Extent == nil
}

// Source is a read-only view of per-device buffers.
type Source interface {
	Each(fn func(b *series.Buffer))
}

// Projector builds datasets from a Source.
type Projector struct {
	palette Palette
}

// NewProjector creates a Projector. An empty palette selects DefaultPalette.
func NewProjector(palette Palette) *Projector {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	return &Projector{palette: palette}
}

// Palette returns the projector's palette.
func (p *Projector) Palette() Palette {
	return p.palette
}

// Project computes a fresh dataset. It never mutates src.
//
// The extent is the outer bound: the earliest first point and the latest last
// point over all non-empty series.
func (p *Projector) Project(src Source) Dataset {
	var ds Dataset
	var start, end time.Time
	found := false

	src.Each(func(b *series.Buffer) {
		first, ok := b.First()
		if !ok {
			return
		}
		last, _ := b.Last()

		if !found || first.Time.Before(start) {
			start = first.Time
		}
		if !found || last.Time.After(end) {
			end = last.Time
		}
		found = true

		ds.Series = append(ds.Series, Series{
			Label:      b.Key(),
			ColorIndex: b.ColorIndex(),
			Color:      p.palette.At(b.ColorIndex()),
			Points:     b.Points(),
		})
	})

	if found {
		ds.Extent = &Extent{Start: start, End: end}
	}
	return ds
}
