// Package venue implements the wire clients for each trading venue and the
// capability table that describes how each endpoint pages.
//
// Implemented endpoints:
//   - binance: spot klines, futures klines, futures funding (go-binance SDK)
//   - okx: perpetual and index candles, perpetual funding (REST + gjson)
//   - dydx: perpetual candles and hourly funding (REST + gjson)
//   - polygon: equity aggregates, forward paging (polygon client-go)
//
// Adding a venue means registering a Capability and a Source; the paginator
// is shared.
package venue
