package composite

import (
	"context"

	"yfollow/internal/application/port"
)

type Repo struct {
	repos []port.Repository
}

func New(repos ...port.Repository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.Repository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) InsertReconcileReport(ctx context.Context, accountID string, ts int64, payload string) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.InsertReconcileReport(ctx, accountID, ts, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) InsertOrderEvent(ctx context.Context, accountID string, ts int64, orderID int64, code, kind, payload string) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.InsertOrderEvent(ctx, accountID, ts, orderID, code, kind, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) UpsertAssetSnapshot(ctx context.Context, accountID string, totalAsset, cash, marketValue float64, ts int64) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.UpsertAssetSnapshot(ctx, accountID, totalAsset, cash, marketValue, ts); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) Close() error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.Repository = (*Repo)(nil)
