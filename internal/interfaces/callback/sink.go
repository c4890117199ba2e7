// Package callback 把交易客户端的异步回报落日志与存储
package callback

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"yfollow/internal/application/port"
	"yfollow/internal/domain"
)

type Sink struct {
	repo      port.Repository
	accountID string
}

func NewSink(repo port.Repository, accountID string) port.CallbackSink {
	return &Sink{repo: repo, accountID: accountID}
}

func (s *Sink) OnStockOrder(order domain.Order) {
	log.Info().
		Int64("order_id", order.OrderID).
		Str("code", order.StockCode).
		Str("side", order.Side.String()).
		Str("status", order.Status.String()).
		Int64("volume", order.OrderVolume).
		Int64("traded", order.TradedVolume).
		Msg("order callback")
	s.record(order.OrderID, order.StockCode, "order", order)
}

func (s *Sink) OnStockTrade(trade domain.Trade) {
	log.Info().
		Int64("order_id", trade.OrderID).
		Str("code", trade.StockCode).
		Str("side", trade.Side.String()).
		Int64("volume", trade.TradedVolume).
		Float64("price", trade.TradedPrice).
		Msg("trade callback")
	s.record(trade.OrderID, trade.StockCode, "trade", trade)
}

func (s *Sink) OnOrderError(orderID int64, code int, msg string) {
	log.Error().
		Int64("order_id", orderID).
		Int("error_code", code).
		Str("error", msg).
		Msg("order rejected")
	s.record(orderID, "", "order_error", map[string]any{"code": code, "msg": msg})
}

func (s *Sink) OnDisconnected() {
	log.Warn().Msg("trade client disconnected")
}

func (s *Sink) record(orderID int64, stockCode, kind string, payload any) {
	if s.repo == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.repo.InsertOrderEvent(ctx, s.accountID, time.Now().UnixMilli(),
		orderID, stockCode, kind, string(b)); err != nil {
		log.Warn().Err(err).Msg("callback event persist failed")
	}
}
