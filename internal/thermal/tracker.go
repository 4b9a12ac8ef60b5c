package thermal

import "math"

// Tracker accumulates the readings of one sensor over a logging period.
// The zero value is not ready for use; call NewTracker.
type Tracker struct {
	current     int
	high        int
	low         int
	accumulator int
	samples     int
}

// Summary is the logged view of a Tracker.
type Summary struct {
	Current int
	High    int
	Low     int
	Mean    int
	Samples int
}

func NewTracker() *Tracker {
	t := &Tracker{}
	t.Reset()

	return t
}

// Reset prepares the tracker for a new logging period. The current
// reading survives so that threshold evaluation is unaffected.
func (t *Tracker) Reset() {
	t.high = math.MinInt
	t.low = math.MaxInt
	t.accumulator = 0
	t.samples = 0
}

func (t *Tracker) Update(reading int) {
	t.current = reading

	if reading > t.high {
		t.high = reading
	}
	if reading < t.low {
		t.low = reading
	}

	t.accumulator += reading
	t.samples++
}

func (t *Tracker) Current() int {
	return t.current
}

// Snapshot returns the period statistics. ok is false when no reading
// has been recorded since the last reset.
func (t *Tracker) Snapshot() (Summary, bool) {
	if t.samples == 0 {
		return Summary{Current: t.current}, false
	}

	return Summary{
		Current: t.current,
		High:    t.high,
		Low:     t.low,
		Mean:    (t.accumulator + t.samples/2) / t.samples,
		Samples: t.samples,
	}, true
}

func (t *Tracker) SnapshotAndReset() (Summary, bool) {
	s, ok := t.Snapshot()
	t.Reset()

	return s, ok
}
