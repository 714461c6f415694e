package average

// Trend is the direction of change between two consecutive averages.
type Trend string

const (
	Warming Trend = "warming"
	Cooling Trend = "cooling"
)

// TrendOf compares two consecutive averages. Only a strict increase is
// warming; an unchanged average counts as cooling.
func TrendOf[T Number](prev, cur T) Trend {
	if cur > prev {
		return Warming
	}
	return Cooling
}

// Reading is the scalar view of a single value stream.
type Reading struct {
	Last    float64
	Average float64
	Trend   Trend
	Samples int
}

// Tracker feeds a stream of values through a MovingAverage and remembers the
// previous average so each sample yields a Reading.
type Tracker struct {
	avg     *MovingAverage[float64]
	reading Reading
}

// NewTracker creates a Tracker averaging over window samples.
func NewTracker(window int) *Tracker {
	return &Tracker{avg: New[float64](window)}
}

// Observe adds v and returns the updated reading. The first sample is
// compared against a zero average.
func (t *Tracker) Observe(v float64) Reading {
	prev := t.avg.Average()
	cur := t.avg.Add(v)
	t.reading = Reading{
		Last:    t.avg.Last(),
		Average: cur,
		Trend:   TrendOf(prev, cur),
		Samples: t.reading.Samples + 1,
	}
	return t.reading
}

// Reading returns the most recent reading; the zero Reading before any sample.
func (t *Tracker) Reading() Reading {
	return t.reading
}

// Window returns the averaging window size.
func (t *Tracker) Window() int {
	return t.avg.Cap()
}

// Reset discards all samples.
func (t *Tracker) Reset() {
	t.avg.Reset()
	t.reading = Reading{}
}
