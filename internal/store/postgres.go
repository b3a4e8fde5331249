package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	logx "pricewatch/pkg/logx"
)

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

var _ Store = (*postgresStore)(nil)

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	st := &postgresStore{pool: pool, log: log}
	if err := st.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return st, nil
}

func (s *postgresStore) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS products (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    url           TEXT NOT NULL DEFAULT '',
    platform      TEXT NOT NULL DEFAULT '',
    currency      TEXT NOT NULL DEFAULT '',
    is_active     BOOLEAN NOT NULL DEFAULT TRUE,
    current_price DOUBLE PRECISION,
    target_price  DOUBLE PRECISION,
    last_checked  TIMESTAMPTZ,
    price_checks  BIGINT NOT NULL DEFAULT 0,
    views         BIGINT NOT NULL DEFAULT 0,
    alerted_at    TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS price_history (
    id         BIGSERIAL PRIMARY KEY,
    product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
    price      DOUBLE PRECISION NOT NULL,
    at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_history_product_at ON price_history(product_id, at);
CREATE TABLE IF NOT EXISTS snapshots (
    id              BIGSERIAL PRIMARY KEY,
    date            TIMESTAMPTZ NOT NULL,
    generated_at    TIMESTAMPTZ NOT NULL,
    total_products  BIGINT NOT NULL,
    active_products BIGINT NOT NULL,
    avg_price       DOUBLE PRECISION NOT NULL,
    min_price       DOUBLE PRECISION NOT NULL,
    max_price       DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_date ON snapshots(date);
`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *postgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *postgresStore) InsertProduct(ctx context.Context, p *Product) error {
	if p == nil {
		return errors.New("postgres: product is nil")
	}
	if p.ID == "" {
		p.ID = newProductID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products(id, name, url, platform, currency, is_active, current_price, target_price, last_checked, price_checks, views, alerted_at, created_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		p.ID, p.Name, p.URL, p.Platform, p.Currency, p.IsActive,
		p.CurrentPrice, p.TargetPrice, p.LastChecked,
		p.Metadata.PriceChecks, p.Metadata.Views, p.AlertedAt, p.CreatedAt,
	)
	return err
}

func (s *postgresStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, url, platform, currency, is_active, current_price, target_price, last_checked, price_checks, views, alerted_at, created_at
		 FROM products WHERE id = $1`, id)
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.URL, &p.Platform, &p.Currency, &p.IsActive,
		&p.CurrentPrice, &p.TargetPrice, &p.LastChecked,
		&p.Metadata.PriceChecks, &p.Metadata.Views, &p.AlertedAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT price, at FROM price_history WHERE product_id = $1 ORDER BY at`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var pt PricePoint
		if err := rows.Scan(&pt.Price, &pt.At); err != nil {
			return nil, err
		}
		p.PriceHistory = append(p.PriceHistory, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *postgresStore) ListActiveProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, url, platform, currency, is_active, current_price, target_price, last_checked, price_checks, views, alerted_at, created_at
		 FROM products WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.URL, &p.Platform, &p.Currency, &p.IsActive,
			&p.CurrentPrice, &p.TargetPrice, &p.LastChecked,
			&p.Metadata.PriceChecks, &p.Metadata.Views, &p.AlertedAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *postgresStore) CountProducts(ctx context.Context) (int, int, error) {
	var total, active int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active) FROM products`).Scan(&total, &active)
	return total, active, err
}

func (s *postgresStore) ApplyPriceCheck(ctx context.Context, id string, chk PriceCheck) error {
	if chk.At.IsZero() {
		chk.At = time.Now()
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE products SET current_price = $1, last_checked = $2, price_checks = price_checks + 1 WHERE id = $3`,
		chk.Price, chk.At, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO price_history(product_id, price, at) VALUES($1,$2,$3)`,
		id, chk.Price, chk.At); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *postgresStore) MarkAlerted(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET alerted_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) PriceStats(ctx context.Context) (PriceStats, error) {
	var st PriceStats
	var avg, min, max *float64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(current_price), AVG(current_price), MIN(current_price), MAX(current_price)
		 FROM products WHERE current_price IS NOT NULL`).
		Scan(&st.Count, &avg, &min, &max)
	if err != nil {
		return PriceStats{}, err
	}
	if avg != nil {
		st.Avg = *avg
	}
	if min != nil {
		st.Min = *min
	}
	if max != nil {
		st.Max = *max
	}
	return st, nil
}

func (s *postgresStore) PlatformStats(ctx context.Context) ([]PlatformStat, error) {
	rows, err := s.pool.Query(ctx,
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

func (s *postgresStore) TrimPriceHistory(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var modified int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(DISTINCT product_id) FROM price_history WHERE at < $1`, cutoff).Scan(&modified); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM price_history WHERE at < $1`, cutoff); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return modified, nil
}

func (s *postgresStore) InsertSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO snapshots(date, generated_at, total_products, active_products, avg_price, min_price, max_price)
		 VALUES($1,$2,$3,$4,$5,$6,$7)`,
		snap.Date, snap.GeneratedAt, snap.TotalProducts, snap.ActiveProducts,
		snap.AvgPrice, snap.MinPrice, snap.MaxPrice,
	)
	return err
}

func (s *postgresStore) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT date, generated_at, total_products, active_products, avg_price, min_price, max_price
		 FROM snapshots ORDER BY date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.Date, &snap.GeneratedAt, &snap.TotalProducts, &snap.ActiveProducts,
			&snap.AvgPrice, &snap.MinPrice, &snap.MaxPrice); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *postgresStore) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM snapshots WHERE date < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
