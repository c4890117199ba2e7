package storage

import (
	"context"
	"sync"

	"yfollow/internal/application/port"
)

// Nop 存储关闭时使用的空实现
type Nop struct{}

func (Nop) InsertReconcileReport(context.Context, string, int64, string) error { return nil }
func (Nop) InsertOrderEvent(context.Context, string, int64, int64, string, string, string) error {
	return nil
}
func (Nop) UpsertAssetSnapshot(context.Context, string, float64, float64, float64, int64) error {
	return nil
}
func (Nop) Close() error { return nil }

var _ port.Repository = Nop{}

// ReportRecord 对账报告记录
type ReportRecord struct {
	AccountID string
	Ts        int64
	Payload   string
}

// OrderEventRecord 委托事件记录
type OrderEventRecord struct {
	AccountID string
	Ts        int64
	OrderID   int64
	StockCode string
	Kind      string
	Payload   string
}

// InMemory 测试用内存实现
type InMemory struct {
	mu      sync.Mutex
	Reports []ReportRecord
	Events  []OrderEventRecord
	Assets  map[string]float64
}

func NewInMemory() *InMemory {
	return &InMemory{Assets: map[string]float64{}}
}

func (m *InMemory) InsertReconcileReport(_ context.Context, accountID string, ts int64, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reports = append(m.Reports, ReportRecord{AccountID: accountID, Ts: ts, Payload: payload})
	return nil
}

func (m *InMemory) InsertOrderEvent(_ context.Context, accountID string, ts int64, orderID int64, code, kind, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, OrderEventRecord{
		AccountID: accountID, Ts: ts, OrderID: orderID, StockCode: code, Kind: kind, Payload: payload,
	})
	return nil
}

func (m *InMemory) UpsertAssetSnapshot(_ context.Context, accountID string, totalAsset, _, _ float64, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Assets[accountID] = totalAsset
	return nil
}

func (m *InMemory) Close() error { return nil }

var _ port.Repository = (*InMemory)(nil)
