package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/market-backfill/internal/model"
)

// PostgreSQL error codes handled here.
const (
	codeDuplicateTable  = "42P07" // also raised for duplicate indexes
	codeDuplicateSchema = "42P06"
	codeUndefinedTable  = "42P01"
)

// LoadResult reports the outcome of one load.
type LoadResult struct {
	RowsLoaded int64
	// ErrorResult is set when the server rejected the load.
	ErrorResult error
}

// Loader appends rows to a table.
type Loader interface {
	Load(ctx context.Context, table string, rows []model.Row) (LoadResult, error)
}

// Store is the full warehouse surface used by a job.
type Store interface {
	Loader
	EnsureDataset(ctx context.Context, dataset string) error
	EnsureTable(ctx context.Context, table string, kind model.Kind, res model.Resolution) error
	LatestTimestamps(ctx context.Context, table string) (map[string]model.Checkpoint, error)
	Deduplicate(ctx context.Context, table string) (int64, error)
}

// DB is the subset of *pgxpool.Pool the warehouse uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// Postgres implements Store on a PostgreSQL database.
type Postgres struct {
	db     DB
	logger *slog.Logger
}

// New creates a warehouse over a connection pool.
func New(db DB, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, logger: logger}
}

// DatasetName returns the schema for a venue: "<dataset>_<venue>".
func DatasetName(dataset, venue string) string {
	return sanitize(dataset + "_" + venue)
}

// TableName returns the qualified table for a series:
// "<dataset>_<venue>.<kind>_<class>_<resolution>".
func TableName(dataset, venue string, kind model.Kind, class model.Class, res model.Resolution) string {
	return DatasetName(dataset, venue) + "." + sanitize(string(kind)+"_"+string(class)+"_"+res.Name)
}

// Ident splits a qualified table name into a pgx identifier.
func Ident(table string) pgx.Identifier {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}
	}
	return pgx.Identifier{table}
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, s)
}

// IsDuplicateObject reports whether err is an "already exists" error.
func IsDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeDuplicateTable || pgErr.Code == codeDuplicateSchema
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUndefinedTable
}

// EnsureDataset creates the schema. An existing schema is not an error.
func (p *Postgres) EnsureDataset(ctx context.Context, dataset string) error {
	_, err := p.db.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{dataset}.Sanitize())
	if IsDuplicateObject(err) {
		p.logger.Info("dataset already exists", "dataset", dataset)
		return nil
	}
	if err != nil {
		return fmt.Errorf("create dataset %s: %w", dataset, err)
	}
	p.logger.Info("dataset created", "dataset", dataset)
	return nil
}

// EnsureTable creates the table and its indexes. Existing objects are not an
// error.
func (p *Postgres) EnsureTable(ctx context.Context, table string, kind model.Kind, res model.Resolution) error {
	for _, stmt := range createTableSQL(table, kind, res) {
		_, err := p.db.Exec(ctx, stmt)
		if IsDuplicateObject(err) {
			p.logger.Debug("table object already exists", "table", table, "stmt", firstLine(stmt))
			continue
		}
		if err != nil {
			return fmt.Errorf("ensure table %s: %w", table, err)
		}
	}
	return nil
}

// Load appends rows with COPY. Rows are loaded as given; duplicates against
// existing rows are removed downstream by Deduplicate.
func (p *Postgres) Load(ctx context.Context, table string, rows []model.Row) (LoadResult, error) {
	if len(rows) == 0 {
		return LoadResult{}, nil
	}

	kind := KindOf(table)
	cols := columns(kind)
	loadedAt := time.Now().UTC()

	n, err := p.db.CopyFrom(ctx, Ident(table), cols, pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		return copyValues(kind, rows[i], loadedAt), nil
	}))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return LoadResult{RowsLoaded: n, ErrorResult: fmt.Errorf("%s: %s (%s)", table, pgErr.Message, pgErr.Code)}, nil
		}
		return LoadResult{RowsLoaded: n}, fmt.Errorf("copy into %s: %w", table, err)
	}
	return LoadResult{RowsLoaded: n}, nil
}

// LatestTimestamps returns max/min/count of start_time per ticker. A missing
// table has no checkpoints.
func (p *Postgres) LatestTimestamps(ctx context.Context, table string) (map[string]model.Checkpoint, error) {
	query := fmt.Sprintf(
		"SELECT ticker, max(start_time), min(start_time), count(*) FROM %s GROUP BY ticker",
		Ident(table).Sanitize(),
	)

	rows, err := p.db.Query(ctx, query)
	if err != nil {
		if isUndefinedTable(err) {
			return map[string]model.Checkpoint{}, nil
		}
		return nil, fmt.Errorf("query checkpoints %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]model.Checkpoint)
	for rows.Next() {
		var cp model.Checkpoint
		if err := rows.Scan(&cp.Ticker, &cp.Max, &cp.Min, &cp.Count); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp.Found = true
		cp.Max = cp.Max.UTC()
		cp.Min = cp.Min.UTC()
		out[cp.Ticker] = cp
	}
	if err := rows.Err(); err != nil {
		if isUndefinedTable(err) {
			return map[string]model.Checkpoint{}, nil
		}
		return nil, fmt.Errorf("query checkpoints %s: %w", table, err)
	}
	return out, nil
}

// Deduplicate keeps one row per (ticker, start_time), the first one loaded.
func (p *Postgres) Deduplicate(ctx context.Context, table string) (int64, error) {
	t := Ident(table).Sanitize()
	query := fmt.Sprintf(
		"DELETE FROM %s a USING %s b WHERE a.ticker = b.ticker AND a.start_time = b.start_time "+
			"AND (a.loaded_at, a.ctid) > (b.loaded_at, b.ctid)",
		t, t,
	)

	tag, err := p.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("deduplicate %s: %w", table, err)
	}
	p.logger.Info("table deduplicated", "table", table, "deleted", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// KindOf returns the record kind encoded in a table name.
func KindOf(table string) model.Kind {
	_, name, ok := strings.Cut(table, ".")
	if !ok {
		name = table
	}
	if strings.HasPrefix(name, string(model.KindFunding)+"_") {
		return model.KindFunding
	}
	return model.KindOHLCV
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
