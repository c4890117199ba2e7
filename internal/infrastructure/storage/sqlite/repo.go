package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"yfollow/internal/application/port"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) GetDB() *sql.DB {
	return r.db
}

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS reconcile_reports (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  account_id TEXT NOT NULL,
  ts_ms INTEGER NOT NULL,
  payload TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_account ON reconcile_reports(account_id);
CREATE INDEX IF NOT EXISTS idx_reports_ts ON reconcile_reports(ts_ms);

CREATE TABLE IF NOT EXISTS order_events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  account_id TEXT NOT NULL,
  ts_ms INTEGER NOT NULL,
  order_id INTEGER NOT NULL,
  stock_code TEXT NOT NULL,
  kind TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_account ON order_events(account_id);
CREATE INDEX IF NOT EXISTS idx_events_order ON order_events(order_id);
CREATE INDEX IF NOT EXISTS idx_events_ts ON order_events(ts_ms);

CREATE TABLE IF NOT EXISTS asset_snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  account_id TEXT NOT NULL,
  total_asset REAL NOT NULL,
  cash REAL NOT NULL,
  market_value REAL NOT NULL,
  ts_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  UNIQUE(account_id)
);
CREATE INDEX IF NOT EXISTS idx_assets_ts ON asset_snapshots(ts_ms);
`)
	return err
}

func (r *Repo) InsertReconcileReport(ctx context.Context, accountID string, ts int64, payload string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reconcile_reports(account_id, ts_ms, payload, created_at) VALUES(?, ?, ?, ?)`,
		accountID, ts, payload, ts)
	return err
}

func (r *Repo) InsertOrderEvent(ctx context.Context, accountID string, ts int64, orderID int64, code, kind, payload string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO order_events(account_id, ts_ms, order_id, stock_code, kind, payload, created_at) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		accountID, ts, orderID, code, kind, payload, ts)
	return err
}

func (r *Repo) UpsertAssetSnapshot(ctx context.Context, accountID string, totalAsset, cash, marketValue float64, ts int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO asset_snapshots(account_id, total_asset, cash, market_value, ts_ms, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
		total_asset=excluded.total_asset, cash=excluded.cash, market_value=excluded.market_value,
		ts_ms=excluded.ts_ms, updated_at=excluded.updated_at
	`, accountID, totalAsset, cash, marketValue, ts, ts, ts)
	return err
}

// ListOrderEvents 按时间倒序读取某账户的委托事件
func (r *Repo) ListOrderEvents(ctx context.Context, accountID string, limit int) ([]map[string]interface{}, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ts_ms, order_id, stock_code, kind, payload FROM order_events WHERE account_id=? ORDER BY ts_ms DESC LIMIT ?`,
		accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []map[string]interface{}
	for rows.Next() {
		var ts, orderID int64
		var code, kind, payload string
		if err := rows.Scan(&ts, &orderID, &code, &kind, &payload); err != nil {
			return nil, err
		}
		events = append(events, map[string]interface{}{
			"ts_ms":      ts,
			"order_id":   orderID,
			"stock_code": code,
			"kind":       kind,
			"payload":    payload,
		})
	}
	return events, rows.Err()
}

var _ port.Repository = (*Repo)(nil)
