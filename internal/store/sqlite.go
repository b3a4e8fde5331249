package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "pricewatch/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

var _ Store = (*sqliteStore)(nil)

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) InsertProduct(ctx context.Context, p *Product) error {
	if p == nil {
		return errors.New("sqlite: product is nil")
	}
	if p.ID == "" {
		p.ID = newProductID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products(id, name, url, platform, currency, is_active, current_price, target_price, last_checked, price_checks, views, alerted_at, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, p.URL, p.Platform, p.Currency, boolInt(p.IsActive),
		nullFloat(p.CurrentPrice), nullFloat(p.TargetPrice), nullTime(p.LastChecked),
		p.Metadata.PriceChecks, p.Metadata.Views, nullTime(p.AlertedAt),
		p.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, url, platform, currency, is_active, current_price, target_price, last_checked, price_checks, views, alerted_at, created_at
		 FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT price, at FROM price_history WHERE product_id = ? ORDER BY at`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var pt PricePoint
		var at string
		if err := rows.Scan(&pt.Price, &at); err != nil {
			return nil, err
		}
		pt.At, _ = time.Parse(time.RFC3339Nano, at)
		p.PriceHistory = append(p.PriceHistory, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *sqliteStore) ListActiveProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, url, platform, currency, is_active, current_price, target_price, last_checked, price_checks, views, alerted_at, created_at
		 FROM products WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountProducts(ctx context.Context) (int, int, error) {
	var total, active int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_active), 0) FROM products`).Scan(&total, &active)
	return total, active, err
}

func (s *sqliteStore) ApplyPriceCheck(ctx context.Context, id string, chk PriceCheck) error {
	if chk.At.IsZero() {
		chk.At = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	at := chk.At.UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(ctx,
		`UPDATE products SET current_price = ?, last_checked = ?, price_checks = price_checks + 1 WHERE id = ?`,
		chk.Price, at, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO price_history(product_id, price, at) VALUES(?,?,?)`,
		id, chk.Price, at); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) MarkAlerted(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET alerted_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) PriceStats(ctx context.Context) (PriceStats, error) {
	var st PriceStats
	var avg, min, max sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(current_price), AVG(current_price), MIN(current_price), MAX(current_price)
		 FROM products WHERE current_price IS NOT NULL`).
		Scan(&st.Count, &avg, &min, &max)
	if err != nil {
		return PriceStats{}, err
	}
	st.Avg = avg.Float64
	st.Min = min.Float64
	st.Max = max.Float64
	return st, nil
}

func (s *sqliteStore) PlatformStats(ctx context.Context) ([]PlatformStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT platform, COUNT(*),
		        COALESCE(AVG(current_price), 0), COALESCE(MIN(current_price), 0), COALESCE(MAX(current_price), 0)
		 FROM products GROUP BY platform ORDER BY COUNT(*) DESC, platform`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlatformStat
	for rows.Next() {
		var st PlatformStat
		if err := rows.Scan(&st.Platform, &st.Count, &st.AvgPrice, &st.MinPrice, &st.MaxPrice); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *sqliteStore) TrimPriceHistory(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	at := cutoff.UTC().Format(time.RFC3339Nano)
	var modified int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT product_id) FROM price_history WHERE at < ?`, at).Scan(&modified); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM price_history WHERE at < ?`, at); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return modified, nil
}

func (s *sqliteStore) InsertSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots(date, generated_at, total_products, active_products, avg_price, min_price, max_price)
		 VALUES(?,?,?,?,?,?,?)`,
		snap.Date.UTC().Format(time.RFC3339Nano), snap.GeneratedAt.UTC().Format(time.RFC3339Nano),
		snap.TotalProducts, snap.ActiveProducts, snap.AvgPrice, snap.MinPrice, snap.MaxPrice,
	)
	return err
}

func (s *sqliteStore) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, generated_at, total_products, active_products, avg_price, min_price, max_price
		 FROM snapshots ORDER BY date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var date, gen string
		if err := rows.Scan(&date, &gen, &snap.TotalProducts, &snap.ActiveProducts, &snap.AvgPrice, &snap.MinPrice, &snap.MaxPrice); err != nil {
			return nil, err
		}
		snap.Date, _ = time.Parse(time.RFC3339Nano, date)
		snap.GeneratedAt, _ = time.Parse(time.RFC3339Nano, gen)
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE date < ?`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*Product, error) {
	var p Product
	var isActive int
	var cur, tgt sql.NullFloat64
	var lastChecked, alertedAt sql.NullString
	var createdAt string
	err := row.Scan(&p.ID, &p.Name, &p.URL, &p.Platform, &p.Currency, &isActive,
		&cur, &tgt, &lastChecked, &p.Metadata.PriceChecks, &p.Metadata.Views, &alertedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	p.IsActive = isActive != 0
	if cur.Valid {
		v := cur.Float64
		p.CurrentPrice = &v
	}
	if tgt.Valid {
		v := tgt.Float64
		p.TargetPrice = &v
	}
	if lastChecked.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastChecked.String); err == nil {
			p.LastChecked = &t
		}
	}
	if alertedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, alertedAt.String); err == nil {
			p.AlertedAt = &t
		}
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &p, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(time.RFC3339Nano)
}
