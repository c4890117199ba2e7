package port

import "yfollow/internal/domain"

// CallbackSink 接收交易客户端推送的异步回报。
// 回报线程归网关所有，实现不应阻塞。
type CallbackSink interface {
	OnStockOrder(order domain.Order)
	OnStockTrade(trade domain.Trade)
	OnOrderError(orderID int64, errID int, errMsg string)
	OnDisconnected()
}

// NopSink 丢弃所有回报
type NopSink struct{}

func (NopSink) OnStockOrder(domain.Order)       {}
func (NopSink) OnStockTrade(domain.Trade)       {}
func (NopSink) OnOrderError(int64, int, string) {}
func (NopSink) OnDisconnected()                 {}
