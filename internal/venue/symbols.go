package venue

import (
	"strings"

	"github.com/rickgao/market-backfill/internal/model"
)

const swapSuffix = "-SWAP"

// SplitTicker splits a canonical ticker into base and quote assets.
// "BTC-USDT-SWAP" -> ("BTC", "USDT"); "AAPL" -> ("AAPL", "").
func SplitTicker(ticker string) (base, quote string) {
	t := strings.TrimSuffix(ticker, swapSuffix)
	base, quote, _ = strings.Cut(t, "-")
	return base, quote
}

// Homogenise builds the canonical ticker for an instrument.
// Perpetuals carry a -SWAP suffix; everything else is BASE-QUOTE.
func Homogenise(class model.Class, base, quote string) string {
	t := base
	if quote != "" {
		t += "-" + quote
	}
	if class == model.ClassPerpetual {
		t += swapSuffix
	}
	return strings.ToUpper(t)
}

func assets(inst model.Instrument) (string, string) {
	if inst.Base != "" {
		return inst.Base, inst.Quote
	}
	return SplitTicker(inst.Ticker)
}

// binanceSymbol: BTC-USDT -> BTCUSDT.
func binanceSymbol(inst model.Instrument) string {
	if inst.VenueSymbol != "" {
		return inst.VenueSymbol
	}
	base, quote := assets(inst)
	return strings.ToUpper(base + quote)
}

// okxSymbol: perpetuals are BASE-QUOTE-SWAP, everything else BASE-QUOTE.
// OKX exchange symbols from the reference provider are not used directly.
func okxSymbol(inst model.Instrument) string {
	base, quote := assets(inst)
	s := strings.ToUpper(base + "-" + quote)
	if inst.Class == model.ClassPerpetual || inst.Class == model.ClassFuture {
		s += swapSuffix
	}
	return s
}

// dydxSymbol: BTC-USD.
func dydxSymbol(inst model.Instrument) string {
	if inst.VenueSymbol != "" {
		return inst.VenueSymbol
	}
	base, quote := assets(inst)
	return strings.ToUpper(base + "-" + quote)
}

// polygonSymbol: equities use the bare ticker.
func polygonSymbol(inst model.Instrument) string {
	if inst.VenueSymbol != "" {
		return inst.VenueSymbol
	}
	return strings.ToUpper(inst.Ticker)
}
