package schema

import (
	"testing"
	"time"
)

func bar(ts time.Time, o, h, l, c, v float64) Bar {
	return Bar{
		Asset:     AssetIdentifier{Symbol: "AAPL", Class: ClassEquity},
		Timestamp: ts,
		Open:      o, High: h, Low: l, Close: c, Volume: v,
	}
}

func TestValidateSeries_Valid(t *testing.T) {
	t0 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	series := []Bar{
		bar(t0, 185.0, 186.2, 184.5, 185.9, 50_000_000),
		bar(t0.Add(24*time.Hour), 185.9, 187.0, 185.0, 186.5, 42_000_000),
	}
	if err := ValidateSeries(series); err != nil {
		t.Fatalf("expected valid series, got %v", err)
	}
	if err := ValidateSeries(nil); err != nil {
		t.Fatalf("empty series must pass, got %v", err)
	}
}

func TestValidateSeries_Invariants(t *testing.T) {
	t0 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name      string
		series    []Bar
		wantIndex int
	}{
		{"high below close", []Bar{bar(t0, 10, 9, 8, 9.5, 1)}, 0},
		{"low above open", []Bar{bar(t0, 10, 12, 11, 11.5, 1)}, 0},
		{"negative low", []Bar{bar(t0, 1, 2, -0.5, 1, 1)}, 0},
		{"negative volume", []Bar{bar(t0, 1, 2, 0.5, 1, -1)}, 0},
		{"zero timestamp", []Bar{bar(time.Time{}, 1, 2, 0.5, 1, 1)}, 0},
		{"duplicate timestamp", []Bar{bar(t0, 1, 2, 0.5, 1, 1), bar(t0, 1, 2, 0.5, 1, 1)}, 1},
		{"out of order", []Bar{bar(t0.Add(time.Hour), 1, 2, 0.5, 1, 1), bar(t0, 1, 2, 0.5, 1, 1)}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSeries(tc.series)
			if err == nil {
				t.Fatalf("expected violation, got nil")
			}
			serr, ok := err.(*SeriesError)
			if !ok {
				t.Fatalf("expected *SeriesError, got %T", err)
			}
			if serr.Index != tc.wantIndex {
				t.Fatalf("violation at bar %d, want %d (%s)", serr.Index, tc.wantIndex, serr.Invariant)
			}
		})
	}
}
