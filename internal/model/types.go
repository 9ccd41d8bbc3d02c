package model

import (
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Instruments
// -----------------------------------------------------------------------------

// Class is the instrument class as reported by the reference provider.
type Class string

const (
	ClassSpot      Class = "spot"
	ClassFuture    Class = "future"
	ClassPerpetual Class = "perpetual"
	ClassIndex     Class = "index"
)

// ParseClass validates an instrument class name.
func ParseClass(s string) (Class, error) {
	switch c := Class(s); c {
	case ClassSpot, ClassFuture, ClassPerpetual, ClassIndex:
		return c, nil
	}
	return "", fmt.Errorf("unknown instrument class %q", s)
}

// Instrument is an exchange-scoped tradable symbol.
type Instrument struct {
	Ticker      string    // Canonical ticker (e.g., "BTC-USDT-SWAP")
	VenueSymbol string    // Symbol sent on the wire (e.g., "BTCUSDT")
	Venue       string    // Venue identifier (e.g., "binance")
	Class       Class     // spot, future, perpetual, index
	Base        string    // Base asset as the venue names it
	Quote       string    // Quote asset as the venue names it
	ListedAt    time.Time // Zero if unknown
	DelistedAt  time.Time // Zero if still listed
}

// Symbol returns the wire symbol, falling back to the canonical ticker.
func (i Instrument) Symbol() string {
	if i.VenueSymbol != "" {
		return i.VenueSymbol
	}
	return i.Ticker
}

// Delisted reports whether the instrument stopped trading before now.
func (i Instrument) Delisted(now time.Time) bool {
	return !i.DelistedAt.IsZero() && i.DelistedAt.Before(now)
}

// -----------------------------------------------------------------------------
// Series
// -----------------------------------------------------------------------------

// Kind is the record kind of a series.
type Kind string

const (
	KindOHLCV   Kind = "ohlcv"
	KindFunding Kind = "funding"
)

// ParseKind validates a record kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindOHLCV, KindFunding:
		return k, nil
	}
	return "", fmt.Errorf("unknown record kind %q", s)
}

// Status is the bounded set of candle statuses.
type Status string

const (
	StatusNone    Status = ""
	StatusFinal   Status = "final"
	StatusPartial Status = "partial"
)

// ContractType is the bounded set of contract types.
type ContractType string

const (
	ContractNone      ContractType = ""
	ContractPerpetual ContractType = "perpetual"
	ContractDelivery  ContractType = "delivery"
	ContractSpot      ContractType = "spot"
	ContractIndex     ContractType = "index"
)

// Row is the canonical, venue-independent record.
type Row struct {
	Time   time.Time // startTime
	Ticker string

	// OHLCV fields
	Open   *float64
	High   *float64
	Low    *float64
	Close  *float64
	Volume *float64
	Trades *int64

	// Funding fields
	Rate  *float64
	Price *float64

	// Categorical fields
	Status       Status
	ContractType ContractType
}

// Gap returns a row at t that carries only the ticker and categorical fields of r.
func (r Row) Gap(t time.Time) Row {
	return Row{
		Time:         t,
		Ticker:       r.Ticker,
		Status:       r.Status,
		ContractType: r.ContractType,
	}
}

// IsGap reports whether every numeric field is absent.
func (r Row) IsGap() bool {
	return r.Open == nil && r.High == nil && r.Low == nil && r.Close == nil &&
		r.Volume == nil && r.Trades == nil && r.Rate == nil && r.Price == nil
}

// RawRecord is one record of a venue page, keyed by the venue's field names.
type RawRecord map[string]string

// TimeFormat is the wire encoding of a venue's timestamp field.
type TimeFormat string

const (
	TimeEpochMillis  TimeFormat = "epoch_ms"
	TimeEpochSeconds TimeFormat = "epoch_s"
	TimeISO8601      TimeFormat = "iso8601"
)

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int64) *int64 { return &v }

// -----------------------------------------------------------------------------
// Pagination
// -----------------------------------------------------------------------------

// Window bounds one page request. Both edges are inclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) String() string {
	return w.Start.Format(time.RFC3339) + " -> " + w.End.Format(time.RFC3339)
}

// Direction is the order in which a venue walks history.
type Direction int

const (
	// Backward walks from now toward the checkpoint.
	Backward Direction = iota
	// Forward walks from the checkpoint toward now.
	Forward
)

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

// EmptyPolicy says what an empty page means for a venue.
type EmptyPolicy int

const (
	// EmptyMeansQuiet treats an empty page as a quiet trading period.
	EmptyMeansQuiet EmptyPolicy = iota
	// EmptyMeansEnd treats an empty page as the start of history.
	EmptyMeansEnd
)

// -----------------------------------------------------------------------------
// Checkpoints and validation
// -----------------------------------------------------------------------------

// DefaultHistoryStart is the sentinel lower bound used when nothing is stored.
var DefaultHistoryStart = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

// Checkpoint summarises what is already stored for a ticker.
type Checkpoint struct {
	Ticker string
	Max    time.Time
	Min    time.Time
	Count  int64
	Found  bool // false for the "no history" sentinel
}

// Stats reports what the validator repaired in one ticker's series.
type Stats struct {
	Ticker     string
	RowsIn     int
	RowsOut    int
	Duplicated int
	Missing    int
	Anomalous  int
	Aligned    bool // timestamps were floored to the resolution
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.RowsIn += other.RowsIn
	s.RowsOut += other.RowsOut
	s.Duplicated += other.Duplicated
	s.Missing += other.Missing
	s.Anomalous += other.Anomalous
	s.Aligned = s.Aligned || other.Aligned
}
