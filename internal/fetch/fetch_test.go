package fetch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/rickgao/market-backfill/internal/model"
	"github.com/rickgao/market-backfill/internal/normalize"
	"github.com/rickgao/market-backfill/internal/venue"
)

var testFields = map[string]string{"t": normalize.FieldStartTime, "c": normalize.FieldClose}

type scriptedSource struct {
	errs  []error // one entry per call; nil means success
	calls int
}

func (s *scriptedSource) FetchPage(_ context.Context, _ model.Instrument, _ model.Window, _ int) ([]model.RawRecord, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return []model.RawRecord{{"t": "1704067200000", "c": "1.5"}}, nil
}

func newTestAdapter(src venue.Source, cfg Config) (*Adapter, *[]time.Duration) {
	a := New("test/ohlcv/spot", src, normalize.New(testFields, model.TimeEpochMillis), cfg, nil)
	var waits []time.Duration
	a.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return a, &waits
}

var (
	inst = model.Instrument{Ticker: "BTC-USD"}
	win  = model.Window{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
)

func TestFetch_FailTwiceThenSucceed(t *testing.T) {
	transient := errors.New("connection reset")
	src := &scriptedSource{errs: []error{transient, transient, nil}}
	a, waits := newTestAdapter(src, Config{MaxAttempts: 3, Backoff: time.Second})

	page, err := a.Fetch(context.Background(), inst, win, 100)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if src.calls != 3 {
		t.Errorf("calls = %d, want 3", src.calls)
	}
	if page.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", page.Attempts)
	}
	if len(page.Rows) != 1 || page.Rows[0].Ticker != "BTC-USD" {
		t.Errorf("Rows = %+v", page.Rows)
	}
	if len(*waits) != 2 || (*waits)[0] != time.Second || (*waits)[1] != time.Second {
		t.Errorf("waits = %v, want [1s 1s]", *waits)
	}
}

func TestFetch_LinearBackoff(t *testing.T) {
	transient := errors.New("503")
	src := &scriptedSource{errs: []error{transient, transient, nil}}
	a, waits := newTestAdapter(src, Config{MaxAttempts: 3, Backoff: time.Second, Linear: true})

	if _, err := a.Fetch(context.Background(), inst, win, 100); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(*waits) != 2 || (*waits)[0] != time.Second || (*waits)[1] != 2*time.Second {
		t.Errorf("waits = %v, want [1s 2s]", *waits)
	}
}

func TestFetch_SymbolNotFoundIsTerminal(t *testing.T) {
	notFound := fmt.Errorf("binance NOPEUSDT: %w", venue.ErrSymbolNotFound)
	src := &scriptedSource{errs: []error{notFound, nil}}
	a, waits := newTestAdapter(src, Config{MaxAttempts: 3, Backoff: time.Second})

	_, err := a.Fetch(context.Background(), inst, win, 100)
	if !errors.Is(err, venue.ErrSymbolNotFound) {
		t.Fatalf("err = %v, want ErrSymbolNotFound", err)
	}
	if src.calls != 1 {
		t.Errorf("calls = %d, want 1", src.calls)
	}
	if len(*waits) != 0 {
		t.Errorf("waits = %v, want none", *waits)
	}
}

func TestFetch_Exhausted(t *testing.T) {
	transient := errors.New("timeout")
	src := &scriptedSource{errs: []error{transient, transient, transient}}
	a, _ := newTestAdapter(src, Config{MaxAttempts: 3})

	_, err := a.Fetch(context.Background(), inst, win, 100)
	var exErr *ExhaustedError
	if !errors.As(err, &exErr) {
		t.Fatalf("err = %v, want *ExhaustedError", err)
	}
	if exErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exErr.Attempts)
	}
	if !errors.Is(err, transient) {
		t.Error("ExhaustedError should wrap the last error")
	}
	if src.calls != 3 {
		t.Errorf("calls = %d, want 3", src.calls)
	}
}

func TestFetch_DecodeFailureIsRetried(t *testing.T) {
	calls := 0
	src := venue.SourceFunc(func(context.Context, model.Instrument, model.Window, int) ([]model.RawRecord, error) {
		calls++
		if calls == 1 {
			return []model.RawRecord{{"t": "garbage"}}, nil
		}
		return []model.RawRecord{{"t": "1704067200000"}}, nil
	})
	a, _ := newTestAdapter(src, Config{MaxAttempts: 2})

	page, err := a.Fetch(context.Background(), inst, win, 100)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if calls != 2 || page.Attempts != 2 {
		t.Errorf("calls = %d, attempts = %d, want 2, 2", calls, page.Attempts)
	}
}

func TestFetch_CancelledDuringBackoff(t *testing.T) {
	src := &scriptedSource{errs: []error{errors.New("boom"), nil}}
	a := New("test", src, normalize.New(testFields, model.TimeEpochMillis), Config{MaxAttempts: 3, Backoff: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Fetch(ctx, inst, win, 100)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if src.calls != 1 {
		t.Errorf("calls = %d, want 1", src.calls)
	}
}

func TestFetch_Limiter(t *testing.T) {
	src := &scriptedSource{}
	a, _ := newTestAdapter(src, Config{MaxAttempts: 1, Limiter: rate.NewLimiter(rate.Inf, 1)})

	for i := 0; i < 5; i++ {
		if _, err := a.Fetch(context.Background(), inst, win, 100); err != nil {
			t.Fatalf("Fetch %d failed: %v", i, err)
		}
	}
	if src.calls != 5 {
		t.Errorf("calls = %d, want 5", src.calls)
	}
}
