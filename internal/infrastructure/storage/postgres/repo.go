package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"yfollow/internal/application/port"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS reconcile_reports (
  id BIGSERIAL PRIMARY KEY,
  account_id TEXT NOT NULL,
  ts_ms BIGINT NOT NULL,
  payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_account ON reconcile_reports(account_id);
CREATE INDEX IF NOT EXISTS idx_reports_ts ON reconcile_reports(ts_ms);

CREATE TABLE IF NOT EXISTS order_events (
  id BIGSERIAL PRIMARY KEY,
  account_id TEXT NOT NULL,
  ts_ms BIGINT NOT NULL,
  order_id BIGINT NOT NULL,
  stock_code TEXT NOT NULL,
  kind TEXT NOT NULL,
  payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_account ON order_events(account_id);
CREATE INDEX IF NOT EXISTS idx_events_ts ON order_events(ts_ms);
`)
	return err
}

func (r *Repo) InsertReconcileReport(ctx context.Context, accountID string, ts int64, payload string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reconcile_reports(account_id, ts_ms, payload) VALUES($1, $2, $3)`,
		accountID, ts, payload)
	return err
}

func (r *Repo) InsertOrderEvent(ctx context.Context, accountID string, ts int64, orderID int64, code, kind, payload string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO order_events(account_id, ts_ms, order_id, stock_code, kind, payload) VALUES($1, $2, $3, $4, $5, $6)`,
		accountID, ts, orderID, code, kind, payload)
	return err
}

func (r *Repo) UpsertAssetSnapshot(ctx context.Context, accountID string, totalAsset, cash, marketValue float64, ts int64) error {
	// latest snapshot lives in redis / sqlite; postgres keeps history only
	return nil
}

var _ port.Repository = (*Repo)(nil)
