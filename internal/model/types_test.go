package model

import (
	"errors"
	"testing"
	"time"
)

func TestParseResolution(t *testing.T) {
	tests := []struct {
		input    string
		wantStep time.Duration
		wantErr  bool
	}{
		{"1m", time.Minute, false},
		{" 1H ", time.Hour, false},
		{"8h", 8 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"2h", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseResolution(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedResolution) {
					t.Errorf("ParseResolution(%q) error = %v, want ErrUnsupportedResolution", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseResolution(%q) failed: %v", tt.input, err)
			}
			if got.Step != tt.wantStep {
				t.Errorf("Step = %v, want %v", got.Step, tt.wantStep)
			}
		})
	}
}

func TestSupportedResolutions_Ordered(t *testing.T) {
	names := SupportedResolutions()
	if names[0] != "1m" || names[len(names)-1] != "1d" {
		t.Errorf("SupportedResolutions() = %v, want 1m first and 1d last", names)
	}
}

func TestResolution_Jittered(t *testing.T) {
	hour, _ := ParseResolution("1h")
	minute, _ := ParseResolution("1m")

	tests := []struct {
		name string
		res  Resolution
		ts   time.Time
		want bool
	}{
		{"minute aligned", minute, time.Date(2024, 1, 1, 10, 7, 0, 0, time.UTC), false},
		{"minute with seconds", minute, time.Date(2024, 1, 1, 10, 7, 30, 0, time.UTC), true},
		{"hour aligned", hour, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), false},
		{"hour with minutes", hour, time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC), true},
		{"hour with nanos", hour, time.Date(2024, 1, 1, 10, 0, 0, 5, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.Jittered(tt.ts); got != tt.want {
				t.Errorf("Jittered(%v) = %v, want %v", tt.ts, got, tt.want)
			}
		})
	}
}

func TestResolution_Align(t *testing.T) {
	five, _ := ParseResolution("5m")
	eight, _ := ParseResolution("8h")

	tests := []struct {
		name string
		res  Resolution
		ts   time.Time
		want time.Time
	}{
		{"5m drops seconds only", five, time.Date(2024, 1, 1, 0, 2, 30, 0, time.UTC), time.Date(2024, 1, 1, 0, 2, 0, 0, time.UTC)},
		{"5m on grid", five, time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC), time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)},
		{"8h drops minutes only", eight, time.Date(2024, 1, 1, 4, 0, 30, 0, time.UTC), time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC)},
		{"8h jitter on grid", eight, time.Date(2024, 1, 1, 16, 12, 0, 0, time.UTC), time.Date(2024, 1, 1, 16, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.Align(tt.ts); !got.Equal(tt.want) {
				t.Errorf("Align(%v) = %v, want %v", tt.ts, got, tt.want)
			}
		})
	}
}

func TestResolution_OnGrid(t *testing.T) {
	eight, _ := ParseResolution("8h")

	if !eight.OnGrid(time.Date(2024, 1, 1, 16, 0, 0, 0, time.UTC)) {
		t.Error("16:00 should be on the 8h grid")
	}
	if eight.OnGrid(time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC)) {
		t.Error("04:00 should not be on the 8h grid")
	}
	if got := len(eight.TimesOfDay()); got != 3 {
		t.Errorf("len(TimesOfDay()) = %d, want 3", got)
	}
}

func TestResolution_FloorAndExpected(t *testing.T) {
	four, _ := ParseResolution("4h")

	got := four.Floor(time.Date(2024, 3, 5, 7, 59, 59, 0, time.UTC))
	want := time.Date(2024, 3, 5, 4, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Floor() = %v, want %v", got, want)
	}

	start := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	if n := four.Expected(start, start.Add(24*time.Hour)); n != 7 {
		t.Errorf("Expected() = %d, want 7", n)
	}
	if n := four.Expected(start, start.Add(-time.Hour)); n != 0 {
		t.Errorf("Expected() with end before start = %d, want 0", n)
	}
}

func TestInstrument(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	inst := Instrument{Ticker: "BTC-USDT"}
	if inst.Symbol() != "BTC-USDT" {
		t.Errorf("Symbol() = %q, want ticker fallback", inst.Symbol())
	}
	inst.VenueSymbol = "BTCUSDT"
	if inst.Symbol() != "BTCUSDT" {
		t.Errorf("Symbol() = %q, want %q", inst.Symbol(), "BTCUSDT")
	}

	if inst.Delisted(now) {
		t.Error("instrument without DelistedAt should not be delisted")
	}
	inst.DelistedAt = now.Add(-time.Hour)
	if !inst.Delisted(now) {
		t.Error("instrument should be delisted")
	}
}

func TestRow_Gap(t *testing.T) {
	ts := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)
	r := Row{
		Ticker:       "ETH-USDT-SWAP",
		Close:        Float(10),
		Status:       StatusFinal,
		ContractType: ContractPerpetual,
	}

	gap := r.Gap(ts)
	if !gap.IsGap() {
		t.Error("gap row should have no numeric fields")
	}
	if gap.Ticker != r.Ticker || gap.Status != r.Status || gap.ContractType != r.ContractType {
		t.Errorf("gap row = %+v, want ticker and categoricals carried", gap)
	}
	if r.IsGap() {
		t.Error("row with Close set should not be a gap")
	}
}

func TestStats_Add(t *testing.T) {
	var total Stats
	total.Add(Stats{RowsIn: 10, RowsOut: 9, Duplicated: 1})
	total.Add(Stats{RowsIn: 5, RowsOut: 6, Missing: 1, Aligned: true})

	if total.RowsIn != 15 || total.RowsOut != 15 || total.Duplicated != 1 || total.Missing != 1 {
		t.Errorf("Add() = %+v", total)
	}
	if !total.Aligned {
		t.Error("Aligned should be sticky")
	}
}
