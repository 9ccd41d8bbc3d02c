package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/market-backfill/internal/model"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func res(t *testing.T, name string) model.Resolution {
	t.Helper()
	r, err := model.ParseResolution(name)
	require.NoError(t, err)
	return r
}

func row(ticker string, at time.Time, close float64) model.Row {
	return model.Row{
		Time:         at,
		Ticker:       ticker,
		Close:        model.Float(close),
		Status:       model.StatusFinal,
		ContractType: model.ContractSpot,
	}
}

func TestValidateSeries_FillsGaps(t *testing.T) {
	h := res(t, "1h")

	// T1..T10 with T3 and T7 missing.
	var rows []model.Row
	for i := 1; i <= 10; i++ {
		if i == 3 || i == 7 {
			continue
		}
		rows = append(rows, row("BTC-USD", t0.Add(time.Duration(i)*time.Hour), float64(i)))
	}

	out, st := ValidateSeries(rows, h)

	require.Len(t, out, 10)
	assert.Equal(t, 2, st.Missing)
	assert.Equal(t, 8, st.RowsIn)
	assert.Equal(t, 10, st.RowsOut)
	assert.False(t, st.Aligned)

	for i, r := range out {
		assert.True(t, r.Time.Equal(t0.Add(time.Duration(i+1)*time.Hour)), "row %d at %v", i, r.Time)
		assert.Equal(t, "BTC-USD", r.Ticker)
	}

	gapT3, gapT7 := out[2], out[6]
	assert.True(t, gapT3.IsGap())
	assert.True(t, gapT7.IsGap())
	assert.Nil(t, gapT3.Close)
	assert.Equal(t, model.StatusFinal, gapT3.Status, "categoricals forward-filled")
	assert.Equal(t, model.ContractSpot, gapT7.ContractType)
	assert.False(t, out[3].IsGap())
}

func TestValidateSeries_DropsAnomalousTimeOfDay(t *testing.T) {
	h8 := res(t, "8h")
	rows := []model.Row{
		row("BTC-USDT-SWAP", t0, 1),
		row("BTC-USDT-SWAP", t0.Add(4*time.Hour), 99),
		row("BTC-USDT-SWAP", t0.Add(8*time.Hour), 2),
		row("BTC-USDT-SWAP", t0.Add(16*time.Hour), 3),
	}

	out, st := ValidateSeries(rows, h8)

	require.Len(t, out, 3)
	assert.Equal(t, 1, st.Anomalous)
	assert.Equal(t, 0, st.Missing, "anomalous rows are dropped, not resampled")
	for _, r := range out {
		assert.NotEqual(t, 4, r.Time.Hour())
		assert.False(t, r.IsGap())
	}
}

func TestValidateSeries_AlignsJitteredTimestamps(t *testing.T) {
	h := res(t, "1h")
	rows := []model.Row{
		row("ETH-USD", t0.Add(37*time.Second), 1),
		row("ETH-USD", t0.Add(time.Hour), 2),
		row("ETH-USD", t0.Add(2*time.Hour+1500*time.Millisecond), 3),
	}

	out, st := ValidateSeries(rows, h)

	require.Len(t, out, 3)
	assert.True(t, st.Aligned)
	for i, r := range out {
		assert.True(t, r.Time.Equal(t0.Add(time.Duration(i)*time.Hour)))
		assert.Equal(t, time.UTC, r.Time.Location())
	}
	assert.Equal(t, 37*time.Second, rows[0].Time.Sub(t0), "input not modified")
}

func TestValidateSeries_SubHourOnHourlyIsJitter(t *testing.T) {
	h := res(t, "1h")
	rows := []model.Row{
		row("ETH-USD", t0.Add(30*time.Minute), 1),
		row("ETH-USD", t0.Add(time.Hour), 2),
	}

	out, st := ValidateSeries(rows, h)

	assert.True(t, st.Aligned)
	require.Len(t, out, 2)
	assert.True(t, out[0].Time.Equal(t0))
}

func TestValidateSeries_JitteredOffGridRowIsAnomalous(t *testing.T) {
	tests := []struct {
		name  string
		res   string
		rows  []model.Row
		times []time.Duration
	}{
		{
			name: "8h",
			res:  "8h",
			rows: []model.Row{
				row("BTC-USDT-SWAP", t0.Add(4*time.Hour+30*time.Second), 99),
				row("BTC-USDT-SWAP", t0, 1),
				row("BTC-USDT-SWAP", t0.Add(8*time.Hour), 2),
				row("BTC-USDT-SWAP", t0.Add(16*time.Hour), 3),
			},
			times: []time.Duration{0, 8 * time.Hour, 16 * time.Hour},
		},
		{
			name: "5m",
			res:  "5m",
			rows: []model.Row{
				row("BTC-USDT", t0.Add(2*time.Minute+30*time.Second), 99),
				row("BTC-USDT", t0, 1),
				row("BTC-USDT", t0.Add(5*time.Minute), 2),
			},
			times: []time.Duration{0, 5 * time.Minute},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, st := ValidateSeries(tt.rows, res(t, tt.res))

			assert.True(t, st.Aligned)
			assert.Equal(t, 1, st.Anomalous)
			assert.Zero(t, st.Duplicated)
			require.Len(t, out, len(tt.times))
			for i, r := range out {
				assert.True(t, r.Time.Equal(t0.Add(tt.times[i])), "row %d at %v", i, r.Time)
				assert.NotEqual(t, 99.0, *r.Close, "corrupt sample must not replace a real row")
			}
			assert.Equal(t, 1.0, *out[0].Close)
		})
	}
}

func TestValidateSeries_DedupeKeepsFirst(t *testing.T) {
	m := res(t, "1m")
	rows := []model.Row{
		row("SOL-USDT", t0.Add(2*time.Minute), 30),
		row("SOL-USDT", t0, 10),
		row("SOL-USDT", t0.Add(time.Minute), 20),
		row("SOL-USDT", t0, 11),
		row("SOL-USDT", t0.Add(2*time.Minute), 31),
	}

	out, st := ValidateSeries(rows, m)

	require.Len(t, out, 3)
	assert.Equal(t, 2, st.Duplicated)
	assert.Equal(t, 10.0, *out[0].Close)
	assert.Equal(t, 20.0, *out[1].Close)
	assert.Equal(t, 30.0, *out[2].Close)
}

func TestValidateSeries_Empty(t *testing.T) {
	out, st := ValidateSeries(nil, res(t, "1d"))
	assert.Empty(t, out)
	assert.Equal(t, model.Stats{}, st)
}

func TestValidate_GroupsByTicker(t *testing.T) {
	h := res(t, "1h")
	rows := []model.Row{
		row("BTC-USD", t0, 1),
		row("ETH-USD", t0, 10),
		row("BTC-USD", t0.Add(2*time.Hour), 3),
		row("ETH-USD", t0.Add(time.Hour), 11),
	}

	out, stats := Validate(rows, h)

	require.Len(t, stats, 2)
	assert.Equal(t, "BTC-USD", stats[0].Ticker)
	assert.Equal(t, 1, stats[0].Missing)
	assert.Equal(t, "ETH-USD", stats[1].Ticker)
	assert.Equal(t, 0, stats[1].Missing)

	require.Len(t, out, 5)
	assert.Equal(t, "BTC-USD", out[0].Ticker)
	assert.True(t, out[1].IsGap())
	assert.Equal(t, "ETH-USD", out[3].Ticker)
}

func TestValidateSeries_Idempotent(t *testing.T) {
	h := res(t, "1h")
	rows := []model.Row{
		row("BTC-USD", t0, 1),
		row("BTC-USD", t0.Add(3*time.Hour), 4),
		row("BTC-USD", t0, 2),
	}

	once, _ := ValidateSeries(rows, h)
	twice, st := ValidateSeries(once, h)

	assert.Equal(t, once, twice)
	assert.Zero(t, st.Missing)
	assert.Zero(t, st.Duplicated)
}
