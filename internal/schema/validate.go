package schema

import "fmt"

// SeriesError reports the first invariant a candidate series violates
// and where it was found.
type SeriesError struct {
	Index     int
	Invariant string
}

func (e *SeriesError) Error() string {
	return fmt.Sprintf("bar %d: %s", e.Index, e.Invariant)
}

// ValidateSeries checks a candidate series against the canonical invariants:
// high >= max(open, close) >= min(open, close) >= low >= 0, volume >= 0,
// timestamps strictly increasing with no duplicates. Pure; a nil return
// means the whole series passed.
func ValidateSeries(series []Bar) error {
	for i, b := range series {
		switch {
		case b.Low < 0:
			return &SeriesError{Index: i, Invariant: "low below zero"}
		case b.Volume < 0:
			return &SeriesError{Index: i, Invariant: "negative volume"}
		case b.High < b.Open || b.High < b.Close:
			return &SeriesError{Index: i, Invariant: "high below open/close"}
		case b.Low > b.Open || b.Low > b.Close:
			return &SeriesError{Index: i, Invariant: "low above open/close"}
		case b.Timestamp.IsZero():
			return &SeriesError{Index: i, Invariant: "zero timestamp"}
		}
		if i > 0 && !series[i-1].Timestamp.Before(b.Timestamp) {
			return &SeriesError{Index: i, Invariant: "timestamps not strictly increasing"}
		}
	}
	return nil
}
