package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"yfollow/internal/application/port"

	"github.com/redis/go-redis/v9"
)

type Repo struct {
	rdb         *redis.Client
	prefix      string
	ttl         time.Duration
	keyAssets   string // prefix + ":assets"
	eventStream string
	eventChan   string
}

type latestAsset struct {
	AccountID   string  `json:"account_id"`
	TotalAsset  float64 `json:"total_asset"`
	Cash        float64 `json:"cash"`
	MarketValue float64 `json:"market_value"`
	Ts          int64   `json:"ts"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, eventStream, eventChan string) *Repo {
	if strings.TrimSpace(eventStream) == "" {
		eventStream = prefix + ":order_events"
	}
	if strings.TrimSpace(eventChan) == "" {
		eventChan = prefix + ":order_events:pub"
	}
	return &Repo{
		rdb:         rdb,
		prefix:      prefix,
		ttl:         ttl,
		keyAssets:   prefix + ":assets",
		eventStream: eventStream,
		eventChan:   eventChan,
	}
}

func (r *Repo) InsertReconcileReport(ctx context.Context, accountID string, ts int64, payload string) error {
	// 只保留每个账户最近一次对账结果，供前端直接读取
	key := fmt.Sprintf("%s:reconcile:%s", r.prefix, accountID)
	pipe := r.rdb.Pipeline()
	pipe.Set(ctx, key, payload, 0)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) InsertOrderEvent(ctx context.Context, accountID string, ts int64, orderID int64, code, kind, payload string) error {
	// 1) Stream: XADD <stream> * ...
	_, err := r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.eventStream,
		Values: map[string]any{
			"ts_ms":      ts,
			"account_id": accountID,
			"order_id":   orderID,
			"stock_code": code,
			"kind":       kind,
			"payload":    payload,
		},
	}).Result()
	if err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <channel> json
	// 用最简单的 JSON，便于消费者
	msg := fmt.Sprintf(`{"ts_ms":%d,"account_id":"%s","order_id":%d,"stock_code":"%s","kind":"%s","payload":%q}`,
		ts, accountID, orderID, code, kind, payload)
	return r.rdb.Publish(ctx, r.eventChan, msg).Err()
}

func (r *Repo) UpsertAssetSnapshot(ctx context.Context, accountID string, totalAsset, cash, marketValue float64, ts int64) error {
	if totalAsset <= 0 {
		return nil
	}
	la := latestAsset{AccountID: accountID, TotalAsset: totalAsset, Cash: cash, MarketValue: marketValue, Ts: ts}
	b, _ := json.Marshal(la)

	// Hash: field = account_id -> json
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyAssets, accountID, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyAssets, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) Close() error { return nil }

var _ port.Repository = (*Repo)(nil)
