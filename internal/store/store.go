package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	logx "pricewatch/pkg/logx"
)

// ErrNotFound is returned when a referenced product does not exist.
// Callers treat it as terminal, not as an error state.
var ErrNotFound = errors.New("store: not found")

// Config configures the store.
//
// Driver values:
//   - "memory" (or empty): in-process store
//   - "sqlite": single-file database at Path
//   - "postgres": pool connected via DSN
type Config struct {
	Driver      string
	Path        string        // sqlite only
	DSN         string        // postgres only
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the document-store client used by all jobs.
//
// The lifetime contract follows the process: open once at startup, share the
// handle, Close on shutdown.
type Store interface {
	// Products.
	InsertProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListActiveProducts(ctx context.Context) ([]Product, error)
	CountProducts(ctx context.Context) (total, active int, err error)

	// ApplyPriceCheck atomically sets CurrentPrice and LastChecked, appends
	// one PriceHistory point, and increments Metadata.PriceChecks.
	ApplyPriceCheck(ctx context.Context, id string, chk PriceCheck) error

	// MarkAlerted stamps the re-alert watermark.
	MarkAlerted(ctx context.Context, id string, at time.Time) error

	// Aggregations.
	PriceStats(ctx context.Context) (PriceStats, error)
	PlatformStats(ctx context.Context) ([]PlatformStat, error)

	// Retention.
	// TrimPriceHistory removes history entries strictly older than cutoff
	// across all products (bulk; per-document internally) and reports how
	// many products were modified.
	TrimPriceHistory(ctx context.Context, cutoff time.Time) (modified int, err error)

	// Snapshots (append-only).
	InsertSnapshot(ctx context.Context, snap Snapshot) error
	ListSnapshots(ctx context.Context) ([]Snapshot, error)
	DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (removed int, err error)

	Close() error
}

// Open initializes the configured store.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "pg":
		return openPostgres(ctx, cfg, log)
	default:
		return nil, errors.New("unknown store driver: " + driver)
	}
}

func newProductID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return "prd-" + hex.EncodeToString(b[:])
}
