package warehouse

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/market-backfill/internal/model"
)

var (
	ohlcvColumns   = []string{"ticker", "start_time", "open", "high", "low", "close", "volume", "trades", "status", "contract_type", "loaded_at"}
	fundingColumns = []string{"ticker", "start_time", "rate", "price", "contract_type", "loaded_at"}
)

func columns(kind model.Kind) []string {
	if kind == model.KindFunding {
		return fundingColumns
	}
	return ohlcvColumns
}

var columnTypes = map[string]string{
	"ticker":        "TEXT NOT NULL",
	"start_time":    "TIMESTAMPTZ NOT NULL",
	"open":          "DOUBLE PRECISION",
	"high":          "DOUBLE PRECISION",
	"low":           "DOUBLE PRECISION",
	"close":         "DOUBLE PRECISION",
	"volume":        "DOUBLE PRECISION",
	"trades":        "BIGINT",
	"rate":          "DOUBLE PRECISION",
	"price":         "DOUBLE PRECISION",
	"status":        "TEXT",
	"contract_type": "TEXT",
	"loaded_at":     "TIMESTAMPTZ NOT NULL DEFAULT now()",
}

// createTableSQL returns the statements that create a series table. Fine
// partitions (hour, day) get a BRIN index on start_time for range scans over
// large tables; every table gets a (ticker, start_time) index for the
// checkpoint query.
func createTableSQL(table string, kind model.Kind, res model.Resolution) []string {
	ident := Ident(table)
	name := ident[len(ident)-1]
	qualified := ident.Sanitize()

	cols := columns(kind)
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		defs = append(defs, "    "+c+" "+columnTypes[c])
	}

	stmts := []string{
		fmt.Sprintf("CREATE TABLE %s (\n%s\n)", qualified, strings.Join(defs, ",\n")),
		fmt.Sprintf("COMMENT ON TABLE %s IS %s", qualified, quoteLiteral("partition: "+res.Partition)),
		fmt.Sprintf("CREATE INDEX %s ON %s (ticker, start_time)",
			pgx.Identifier{name + "_ticker_time_idx"}.Sanitize(), qualified),
	}
	if res.Partition == "hour" || res.Partition == "day" {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX %s ON %s USING brin (start_time)",
			pgx.Identifier{name + "_time_brin"}.Sanitize(), qualified))
	}
	return stmts
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// copyValues returns the COPY values for a row in columns(kind) order. Gap
// rows load as NULLs.
func copyValues(kind model.Kind, r model.Row, loadedAt time.Time) []any {
	if kind == model.KindFunding {
		return []any{
			r.Ticker,
			r.Time.UTC(),
			r.Rate,
			r.Price,
			nullString(string(r.ContractType)),
			loadedAt,
		}
	}
	return []any{
		r.Ticker,
		r.Time.UTC(),
		r.Open,
		r.High,
		r.Low,
		r.Close,
		r.Volume,
		r.Trades,
		nullString(string(r.Status)),
		nullString(string(r.ContractType)),
		loadedAt,
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
