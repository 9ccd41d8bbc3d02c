package validate

import (
	"sort"

	"github.com/rickgao/market-backfill/internal/model"
)

// Validate groups rows by ticker and validates each series. Tickers keep the
// order of their first appearance. Data-quality defects are repaired, never
// returned as errors.
func Validate(rows []model.Row, res model.Resolution) ([]model.Row, []model.Stats) {
	var order []string
	groups := make(map[string][]model.Row)
	for _, r := range rows {
		if _, ok := groups[r.Ticker]; !ok {
			order = append(order, r.Ticker)
		}
		groups[r.Ticker] = append(groups[r.Ticker], r)
	}

	out := make([]model.Row, 0, len(rows))
	stats := make([]model.Stats, 0, len(order))
	for _, ticker := range order {
		series, st := ValidateSeries(groups[ticker], res)
		out = append(out, series...)
		stats = append(stats, st)
	}
	return out, stats
}

// ValidateSeries repairs one ticker's rows:
//  1. if any timestamp is finer than the resolution allows, align every timestamp
//  2. drop rows whose time of day is not on the resolution grid
//  3. sort by time and keep the first row of each timestamp, in input order
//  4. insert gap rows for missing grid points between the first and last row
//
// The input slice is not modified.
func ValidateSeries(rows []model.Row, res model.Resolution) ([]model.Row, model.Stats) {
	st := model.Stats{RowsIn: len(rows)}
	if len(rows) == 0 {
		return nil, st
	}
	st.Ticker = rows[0].Ticker

	series := make([]model.Row, len(rows))
	copy(series, rows)

	for _, r := range series {
		if res.Jittered(r.Time) {
			st.Aligned = true
			break
		}
	}
	if st.Aligned {
		for i := range series {
			series[i].Time = res.Align(series[i].Time)
		}
	}

	kept := series[:0]
	for _, r := range series {
		if !res.OnGrid(r.Time) {
			st.Anomalous++
			continue
		}
		r.Time = r.Time.UTC()
		kept = append(kept, r)
	}
	series = kept
	if len(series) == 0 {
		return nil, st
	}

	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Time.Before(series[j].Time)
	})

	unique := series[:1]
	for _, r := range series[1:] {
		if r.Time.Equal(unique[len(unique)-1].Time) {
			st.Duplicated++
			continue
		}
		unique = append(unique, r)
	}

	first, last := unique[0].Time, unique[len(unique)-1].Time
	out := make([]model.Row, 0, res.Expected(first, last))
	for i, r := range unique {
		if i > 0 {
			prev := out[len(out)-1]
			for t := prev.Time.Add(res.Step); t.Before(r.Time); t = t.Add(res.Step) {
				out = append(out, prev.Gap(t))
				st.Missing++
			}
		}
		out = append(out, r)
	}

	st.RowsOut = len(out)
	return out, st
}
