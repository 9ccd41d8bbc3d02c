package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/market-backfill/internal/model"
)

// Canonical field names.
const (
	FieldStartTime    = "startTime"
	FieldOpen         = "open"
	FieldHigh         = "high"
	FieldLow          = "low"
	FieldClose        = "close"
	FieldVolume       = "volume"
	FieldTrades       = "trades"
	FieldRate         = "rate"
	FieldPrice        = "price"
	FieldStatus       = "status"
	FieldContractType = "contractType"
)

// RowError reports the first value of a page that could not be coerced.
type RowError struct {
	Index int
	Field string
	Value string
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: field %s: cannot convert %q: %v", e.Index, e.Field, e.Value, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Normalizer converts raw venue records into canonical rows.
type Normalizer struct {
	fields     map[string]string // venue field -> canonical field
	timeFormat model.TimeFormat
}

// New creates a normalizer for one venue endpoint. fields maps venue field
// names to canonical names; fields not in the map are dropped.
func New(fields map[string]string, timeFormat model.TimeFormat) *Normalizer {
	return &Normalizer{fields: fields, timeFormat: timeFormat}
}

// Decode normalizes a page. Any coercion failure fails the whole page.
func (n *Normalizer) Decode(inst model.Instrument, recs []model.RawRecord) ([]model.Row, error) {
	rows := make([]model.Row, 0, len(recs))
	for i, rec := range recs {
		row, err := n.decodeOne(rec)
		if err != nil {
			err.Index = i
			return nil, err
		}
		row.Ticker = inst.Ticker
		rows = append(rows, row)
	}
	return rows, nil
}

func (n *Normalizer) decodeOne(rec model.RawRecord) (model.Row, *RowError) {
	var row model.Row
	haveTime := false

	for venueField, value := range rec {
		field, ok := n.fields[venueField]
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		var err error
		switch field {
		case FieldStartTime:
			row.Time, err = ParseTime(value, n.timeFormat)
			haveTime = err == nil
		case FieldOpen:
			row.Open, err = parseFloat(value)
		case FieldHigh:
			row.High, err = parseFloat(value)
		case FieldLow:
			row.Low, err = parseFloat(value)
		case FieldClose:
			row.Close, err = parseFloat(value)
		case FieldVolume:
			row.Volume, err = parseFloat(value)
		case FieldRate:
			row.Rate, err = parseFloat(value)
		case FieldPrice:
			row.Price, err = parseFloat(value)
		case FieldTrades:
			row.Trades, err = parseInt(value)
		case FieldStatus:
			row.Status, err = ParseStatus(value)
		case FieldContractType:
			row.ContractType, err = ParseContractType(value)
		}
		if err != nil {
			return model.Row{}, &RowError{Field: field, Value: value, Err: err}
		}
	}

	if !haveTime {
		return model.Row{}, &RowError{Field: FieldStartTime, Err: fmt.Errorf("missing timestamp")}
	}
	return row, nil
}

// ParseTime converts a wire timestamp to UTC.
func ParseTime(value string, format model.TimeFormat) (time.Time, error) {
	switch format {
	case model.TimeEpochMillis:
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	case model.TimeEpochSeconds:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return time.Time{}, err
		}
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC(), nil
	case model.TimeISO8601:
		t, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			// Some venues omit the zone designator.
			if t2, err2 := time.Parse("2006-01-02T15:04:05.999999999", value); err2 == nil {
				return t2.UTC(), nil
			}
			return time.Time{}, err
		}
		return t.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unknown time format %q", format)
	}
}

// Empty numeric values are absent, not zero.
func parseFloat(value string) (*float64, error) {
	if value == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func parseInt(value string) (*int64, error) {
	if value == "" {
		return nil, nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		// Some venues report trade counts as decimals ("42.0").
		f, ferr := strconv.ParseFloat(value, 64)
		if ferr != nil || f != float64(int64(f)) {
			return nil, err
		}
		i = int64(f)
	}
	return &i, nil
}

var statusAliases = map[string]model.Status{
	"":        model.StatusNone,
	"1":       model.StatusFinal,
	"true":    model.StatusFinal,
	"final":   model.StatusFinal,
	"closed":  model.StatusFinal,
	"0":       model.StatusPartial,
	"false":   model.StatusPartial,
	"partial": model.StatusPartial,
	"open":    model.StatusPartial,
}

// ParseStatus maps a venue status value onto the bounded status set.
func ParseStatus(value string) (model.Status, error) {
	if s, ok := statusAliases[strings.ToLower(value)]; ok {
		return s, nil
	}
	return "", fmt.Errorf("unknown status")
}

var contractAliases = map[string]model.ContractType{
	"":                model.ContractNone,
	"perpetual":       model.ContractPerpetual,
	"swap":            model.ContractPerpetual,
	"delivery":        model.ContractDelivery,
	"futures":         model.ContractDelivery,
	"current_quarter": model.ContractDelivery,
	"next_quarter":    model.ContractDelivery,
	"spot":            model.ContractSpot,
	"index":           model.ContractIndex,
}

// ParseContractType maps a venue contract type onto the bounded set.
func ParseContractType(value string) (model.ContractType, error) {
	if c, ok := contractAliases[strings.ToLower(value)]; ok {
		return c, nil
	}
	return "", fmt.Errorf("unknown contract type")
}
