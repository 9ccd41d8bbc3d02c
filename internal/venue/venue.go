package venue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/rickgao/market-backfill/internal/config"
	"github.com/rickgao/market-backfill/internal/model"
)

var (
	// ErrSymbolNotFound marks a venue response saying the symbol does not exist.
	// Retrying cannot help.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrUnknownVenue is returned for venue names with no implementation.
	ErrUnknownVenue = errors.New("unknown venue")

	// ErrUnsupported is returned for venue/kind/class/resolution combinations
	// a venue does not serve.
	ErrUnsupported = errors.New("unsupported by venue")
)

// Source fetches one page of raw records for an instrument.
//
// Backward sources page by the window end and return at most limit records at
// or before it. Forward sources return at most limit records inside the window.
type Source interface {
	FetchPage(ctx context.Context, inst model.Instrument, w model.Window, limit int) ([]model.RawRecord, error)
}

// SourceFunc is a function adapter for Source.
type SourceFunc func(ctx context.Context, inst model.Instrument, w model.Window, limit int) ([]model.RawRecord, error)

func (f SourceFunc) FetchPage(ctx context.Context, inst model.Instrument, w model.Window, limit int) ([]model.RawRecord, error) {
	return f(ctx, inst, w, limit)
}

// Capability is everything the paginator and normalizer need to know about a
// venue endpoint.
type Capability struct {
	Venue       string
	Kind        model.Kind
	Class       model.Class
	PageLimit   int
	Direction   model.Direction
	EmptyPolicy model.EmptyPolicy
	TimeFormat  model.TimeFormat
	Fields      map[string]string // venue field -> canonical field

	// Resolutions lists supported resolution names. Empty means any.
	Resolutions []string
}

// Name returns "venue/kind/class".
func (c Capability) Name() string {
	return c.Venue + "/" + string(c.Kind) + "/" + string(c.Class)
}

// Supports reports whether the capability serves a resolution.
func (c Capability) Supports(res model.Resolution) bool {
	if len(c.Resolutions) == 0 {
		return true
	}
	for _, name := range c.Resolutions {
		if name == res.Name {
			return true
		}
	}
	return false
}

type key struct {
	venue string
	kind  model.Kind
	class model.Class
}

var capabilities = map[key]Capability{}

func register(c Capability) {
	capabilities[key{c.Venue, c.Kind, c.Class}] = c
}

// Venues returns the names of all implemented venues.
func Venues() []string {
	seen := map[string]bool{}
	var names []string
	for k := range capabilities {
		if !seen[k.venue] {
			seen[k.venue] = true
			names = append(names, k.venue)
		}
	}
	sort.Strings(names)
	return names
}

// Lookup returns the capability for a venue endpoint.
func Lookup(venue string, kind model.Kind, class model.Class, res model.Resolution) (Capability, error) {
	venue = strings.ToLower(strings.TrimSpace(venue))
	known := false
	for k := range capabilities {
		if k.venue == venue {
			known = true
			break
		}
	}
	if !known {
		return Capability{}, fmt.Errorf("%w: %q", ErrUnknownVenue, venue)
	}

	c, ok := capabilities[key{venue, kind, class}]
	if !ok {
		return Capability{}, fmt.Errorf("%w: %s %s %s", ErrUnsupported, venue, kind, class)
	}
	if !c.Supports(res) {
		return Capability{}, fmt.Errorf("%w: %s resolution %s", ErrUnsupported, c.Name(), res)
	}
	return c, nil
}

// Registry builds venue sources from configuration.
type Registry struct {
	cfg    config.VenuesConfig
	logger *slog.Logger
}

// NewRegistry creates a registry over the configured venue endpoints.
func NewRegistry(cfg config.VenuesConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{cfg: cfg, logger: logger}
}

// Open resolves the capability for a job and builds its source.
func (r *Registry) Open(venue string, kind model.Kind, class model.Class, res model.Resolution) (Capability, Source, error) {
	c, err := Lookup(venue, kind, class, res)
	if err != nil {
		return Capability{}, nil, err
	}

	vc, _ := r.cfg.Venue(settingsName(c))
	logger := r.logger.With("venue", c.Name())
	hc := &http.Client{Timeout: vc.Timeout}

	var src Source
	switch c.Venue {
	case "binance":
		src = newBinanceSource(c, vc, hc, res)
	case "okx":
		src = newOKXSource(c, vc, hc, res, logger)
	case "dydx":
		src = newDYDXSource(c, vc, hc, res, logger)
	case "polygon":
		src, err = newPolygonSource(vc, hc, res)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownVenue, c.Venue)
	}
	if err != nil {
		return Capability{}, nil, err
	}
	return c, src, nil
}

// Settings returns the configuration block used for a capability.
func (r *Registry) Settings(c Capability) config.VenueConfig {
	vc, _ := r.cfg.Venue(settingsName(c))
	return vc
}

func settingsName(c Capability) string {
	if c.Venue == "binance" && c.Class != model.ClassSpot {
		return "binance_futures"
	}
	return c.Venue
}
