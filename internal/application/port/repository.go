package port

import "context"

type Repository interface {
	// Reconcile report history
	InsertReconcileReport(ctx context.Context, accountID string, ts int64, payload string) error

	// Order lifecycle events (submissions, callbacks, reorders)
	InsertOrderEvent(ctx context.Context, accountID string, ts int64, orderID int64, code, kind, payload string) error

	// Latest asset snapshot per account
	UpsertAssetSnapshot(ctx context.Context, accountID string, totalAsset, cash, marketValue float64, ts int64) error

	// Connection management
	Close() error
}
