package chart

import (
	"encoding/json"
	"time"
)

// DatasetJSON is the JSON representation of a Dataset.
type DatasetJSON struct {
	TimeExtent *ExtentJSON  `json:"time_extent"`
	Series     []SeriesJSON `json:"series"`
}

// ExtentJSON is the JSON representation of an Extent.
type ExtentJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SeriesJSON is the JSON representation of one series.
type SeriesJSON struct {
	Label      string      `json:"label"`
	Color      string      `json:"color"`
	ColorName  string      `json:"color_name"`
	ColorIndex int         `json:"color_index"`
	Points     []PointJSON `json:"points"`
}

// PointJSON is a single timestamped value.
type PointJSON struct {
	Time  string  `json:"t"`
	Value float64 `json:"v"`
}

// ToJSON converts ds into its JSON shape. Series is never nil.
func ToJSON(ds Dataset) DatasetJSON {
	out := DatasetJSON{Series: make([]SeriesJSON, 0, len(ds.Series))}
	if ds.Extent != nil {
		out.TimeExtent = &ExtentJSON{
			Start: ds.Extent.Start.Format(time.RFC3339Nano),
			End:   ds.Extent.End.Format(time.RFC3339Nano),
		}
	}
	for _, s := range ds.Series {
		sj := SeriesJSON{
			Label:      s.Label,
			Color:      s.Color.Hex(),
			ColorName:  s.Color.Name,
			ColorIndex: s.ColorIndex,
			Points:     make([]PointJSON, len(s.Points)),
		}
		for i, p := range s.Points {
			sj.Points[i] = PointJSON{Time: p.Time.Format(time.RFC3339Nano), Value: p.Value}
		}
		out.Series = append(out.Series, sj)
	}
	return out
}

// FormatJSON returns the indented JSON form of ds.
func FormatJSON(ds Dataset) []byte {
	data, _ := json.MarshalIndent(ToJSON(ds), "", "  ")
	return data
}
