package reference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rickgao/market-backfill/internal/api"
	"github.com/rickgao/market-backfill/internal/model"
)

const symbolsResponse = `[
	{"symbol_id":"BINANCEFTS_PERP_BTC_USDT","exchange_id":"BINANCEFTS","symbol_type":"PERPETUAL",
	 "asset_id_base":"BTC","asset_id_quote":"USDT","asset_id_base_exchange":"BTC","asset_id_quote_exchange":"USDT",
	 "symbol_id_exchange":"BTCUSDT","data_trade_start":"2019-09-08","data_trade_end":"2024-05-31T23:59:00.0000000Z"},
	{"symbol_id":"BINANCEFTS_PERP_SRM_USDT","exchange_id":"BINANCEFTS","symbol_type":"PERPETUAL",
	 "asset_id_base_exchange":"SRM","asset_id_quote_exchange":"USDT",
	 "symbol_id_exchange":"SRMUSDT","data_trade_start":"2020-09-01","data_trade_end":"2022-11-15T00:00:00.0000000Z"},
	{"symbol_id":"BINANCEFTS_PERP_BTC_USDT_DUP","exchange_id":"BINANCEFTS","symbol_type":"PERPETUAL",
	 "asset_id_base_exchange":"BTC","asset_id_quote_exchange":"USDT","symbol_id_exchange":"BTCUSDT_OLD"},
	{"symbol_id":"BINANCEFTS_FTS_BTC_USDT_240628","exchange_id":"BINANCEFTS","symbol_type":"FUTURES",
	 "asset_id_base_exchange":"BTC","asset_id_quote_exchange":"USDT","symbol_id_exchange":"BTCUSDT_240628"}
]`

func TestCoinAPI_ListInstruments(t *testing.T) {
	var gotPath, gotKey, gotFilter string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-CoinAPI-Key")
		gotFilter = r.URL.Query().Get("filter_symbol_type")
		w.Write([]byte(symbolsResponse))
	}))
	defer server.Close()

	client := api.NewClient("coinapi", server.URL, "secret", api.WithAPIKeyHeader("X-CoinAPI-Key"), api.WithRetries(0, 0))
	p := NewCoinAPI(client, 14*24*time.Hour, nil)
	p.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	got, err := p.ListInstruments(context.Background(), "BINANCEFTS", model.ClassPerpetual)
	if err != nil {
		t.Fatalf("ListInstruments failed: %v", err)
	}

	if gotPath != "/v1/symbols/BINANCEFTS" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("X-CoinAPI-Key = %q, want secret", gotKey)
	}
	if gotFilter != "PERPETUAL" {
		t.Errorf("filter_symbol_type = %q, want PERPETUAL", gotFilter)
	}

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (duplicates and other types dropped)", len(got))
	}

	btc := got[0]
	if btc.Ticker != "BTC-USDT-SWAP" || btc.VenueSymbol != "BTCUSDT" || btc.Base != "BTC" {
		t.Errorf("btc = %+v", btc)
	}
	if !btc.ListedAt.Equal(time.Date(2019, 9, 8, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ListedAt = %v", btc.ListedAt)
	}
	if !btc.DelistedAt.IsZero() {
		t.Errorf("recently traded symbol should not be delisted, got %v", btc.DelistedAt)
	}

	srm := got[1]
	want := time.Date(2022, 11, 15, 0, 0, 0, 0, time.UTC)
	if !srm.DelistedAt.Equal(want) {
		t.Errorf("DelistedAt = %v, want %v", srm.DelistedAt, want)
	}
}

func TestCoinAPI_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Invalid API key"}`))
	}))
	defer server.Close()

	client := api.NewClient("coinapi", server.URL, "bad", api.WithRetries(0, 0))
	_, err := NewCoinAPI(client, time.Hour, nil).ListInstruments(context.Background(), "OKEX", model.ClassIndex)
	if err == nil {
		t.Error("ListInstruments should fail on 401")
	}
}

func TestCoinAPI_UnknownClass(t *testing.T) {
	client := api.NewClient("coinapi", "http://unused", "")
	_, err := NewCoinAPI(client, time.Hour, nil).ListInstruments(context.Background(), "OKEX", model.Class("option"))
	if err == nil {
		t.Error("ListInstruments should reject unknown classes")
	}
}

func TestStatic(t *testing.T) {
	tests := []struct {
		name    string
		symbols []string
		class   model.Class
		want    []string
		wantErr bool
	}{
		{"spot pairs", []string{"eth-usdt", "BTC-USDT"}, model.ClassSpot, []string{"BTC-USDT", "ETH-USDT"}, false},
		{"perpetuals gain suffix", []string{"BTC-USDT", "BTC-USDT-SWAP"}, model.ClassPerpetual, []string{"BTC-USDT-SWAP"}, false},
		{"equities", []string{"AAPL", "MSFT"}, model.ClassSpot, []string{"AAPL", "MSFT"}, false},
		{"empty symbol", []string{"BTC-USDT", " "}, model.ClassSpot, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewStatic(tt.symbols).ListInstruments(context.Background(), "", tt.class)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ListInstruments() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Ticker != tt.want[i] {
					t.Errorf("got[%d] = %q, want %q", i, got[i].Ticker, tt.want[i])
				}
				if got[i].Class != tt.class {
					t.Errorf("got[%d].Class = %q", i, got[i].Class)
				}
			}
		})
	}
}
