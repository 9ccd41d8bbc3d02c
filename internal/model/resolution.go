package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrUnsupportedResolution is returned for resolution names outside the table.
var ErrUnsupportedResolution = errors.New("unsupported resolution")

// Resolution is the nominal spacing between consecutive samples of a series.
type Resolution struct {
	Name      string
	Step      time.Duration
	Partition string // warehouse partitioning granularity
}

var supportedResolutions = map[string]Resolution{
	"1m":  {Name: "1m", Step: time.Minute, Partition: "hour"},
	"5m":  {Name: "5m", Step: 5 * time.Minute, Partition: "day"},
	"15m": {Name: "15m", Step: 15 * time.Minute, Partition: "day"},
	"30m": {Name: "30m", Step: 30 * time.Minute, Partition: "day"},
	"1h":  {Name: "1h", Step: time.Hour, Partition: "month"},
	"4h":  {Name: "4h", Step: 4 * time.Hour, Partition: "month"},
	"8h":  {Name: "8h", Step: 8 * time.Hour, Partition: "year"},
	"1d":  {Name: "1d", Step: 24 * time.Hour, Partition: "year"},
}

// ParseResolution returns the resolution for a name such as "1h".
func ParseResolution(input string) (Resolution, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	res, ok := supportedResolutions[key]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnsupportedResolution, input)
	}
	return res, nil
}

// SupportedResolutions returns all resolution names, shortest step first.
func SupportedResolutions() []string {
	names := make([]string, 0, len(supportedResolutions))
	for k := range supportedResolutions {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		return supportedResolutions[names[i]].Step < supportedResolutions[names[j]].Step
	})
	return names
}

func (r Resolution) String() string { return r.Name }

// Floor truncates t to the resolution boundary in UTC.
func (r Resolution) Floor(t time.Time) time.Time {
	return t.UTC().Truncate(r.Step)
}

// Align removes jitter from t: sub-minute parts for intraday resolutions,
// sub-hour parts for hourly and coarser. Unlike Floor it never snaps t onto
// the resolution grid, so an off-grid sample stays off-grid.
func (r Resolution) Align(t time.Time) time.Time {
	if r.Hourly() {
		return t.UTC().Truncate(time.Hour)
	}
	return t.UTC().Truncate(time.Minute)
}

// Hourly reports whether the resolution is one hour or coarser.
func (r Resolution) Hourly() bool {
	return r.Step >= time.Hour
}

// Jittered reports whether t has a component finer than the resolution allows:
// sub-minute for intraday resolutions, sub-hour for hourly and coarser.
func (r Resolution) Jittered(t time.Time) bool {
	t = t.UTC()
	if t.Second() != 0 || t.Nanosecond() != 0 {
		return true
	}
	return r.Hourly() && t.Minute() != 0
}

// OnGrid reports whether t falls on a time of day the resolution produces.
func (r Resolution) OnGrid(t time.Time) bool {
	t = t.UTC()
	sinceMidnight := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	return sinceMidnight%r.Step == 0
}

// TimesOfDay returns the expected offsets from midnight for the resolution.
func (r Resolution) TimesOfDay() []time.Duration {
	day := 24 * time.Hour
	out := make([]time.Duration, 0, day/r.Step)
	for d := time.Duration(0); d < day; d += r.Step {
		out = append(out, d)
	}
	return out
}

// Width returns the time span covered by n samples.
func (r Resolution) Width(n int) time.Duration {
	return time.Duration(n) * r.Step
}

// Expected returns the number of grid points in [start, end], both inclusive.
func (r Resolution) Expected(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start)/r.Step) + 1
}
