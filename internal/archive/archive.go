package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rickgao/market-backfill/internal/config"
	"github.com/rickgao/market-backfill/internal/model"
)

const keyTimeFormat = "20060102T150405Z"

// ObjectStore is the subset of *minio.Client used by the archive.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, name string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archive writes chunks to one bucket.
type Archive struct {
	store  ObjectStore
	bucket string
	prefix string
	logger *slog.Logger
}

// New connects to the configured object store.
func New(cfg config.ArchiveConfig, logger *slog.Logger) (*Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return NewWithStore(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewWithStore creates an archive over an existing store.
func NewWithStore(store ObjectStore, bucket, prefix string, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{
		store:  store,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// EnsureBucket creates the bucket if it does not exist.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	ok, err := a.store.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if ok {
		return nil
	}
	if err := a.store.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	a.logger.Info("archive bucket created", "bucket", a.bucket)
	return nil
}

// Put uploads one chunk and returns its object key. rows must be ascending
// and belong to one ticker.
func (a *Archive) Put(ctx context.Context, table string, kind model.Kind, rows []model.Row) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	if err := Encode(&buf, kind, rows); err != nil {
		return "", fmt.Errorf("encode chunk: %w", err)
	}

	key := Key(a.prefix, table, rows[0].Ticker, rows[0].Time, rows[len(rows)-1].Time)
	_, err := a.store.PutObject(ctx, a.bucket, key, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType:     "text/csv",
		ContentEncoding: "gzip",
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}

	a.logger.Debug("chunk archived", "key", key, "rows", len(rows))
	return key, nil
}

// Key builds the object key for a chunk.
func Key(prefix, table, ticker string, first, last time.Time) string {
	name := first.UTC().Format(keyTimeFormat) + "_" + last.UTC().Format(keyTimeFormat) + ".csv.gz"
	return path.Join(prefix, table, ticker, name)
}

// Header returns the CSV header for a record kind.
func Header(kind model.Kind) []string {
	if kind == model.KindFunding {
		return []string{"start_time", "ticker", "rate", "price", "contract_type"}
	}
	return []string{"start_time", "ticker", "open", "high", "low", "close", "volume", "trades", "status", "contract_type"}
}

// Encode writes rows as gzipped CSV. Absent values are empty cells.
func Encode(w io.Writer, kind model.Kind, rows []model.Row) error {
	gz := gzip.NewWriter(w)
	cw := csv.NewWriter(gz)

	if err := cw.Write(Header(kind)); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(record(kind, r)); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return gz.Close()
}

func record(kind model.Kind, r model.Row) []string {
	ts := r.Time.UTC().Format(time.RFC3339)
	if kind == model.KindFunding {
		return []string{ts, r.Ticker, formatFloat(r.Rate), formatFloat(r.Price), string(r.ContractType)}
	}
	return []string{
		ts,
		r.Ticker,
		formatFloat(r.Open),
		formatFloat(r.High),
		formatFloat(r.Low),
		formatFloat(r.Close),
		formatFloat(r.Volume),
		formatInt(r.Trades),
		string(r.Status),
		string(r.ContractType),
	}
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
