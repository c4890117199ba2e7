// Package executor 把最终交易计划转成对交易网关的异步委托。
// 同一计划内先卖后买；条目级错误只记日志不中断批次。
package executor

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"yfollow/internal/application/port"
	"yfollow/internal/application/tradeplan"
	"yfollow/internal/domain"
	"yfollow/internal/domain/stockcode"
	"yfollow/internal/infrastructure/metrics"
)

// Action 计划执行范围
type Action string

const (
	ActionSell Action = "sell"
	ActionBuy  Action = "buy"
	ActionAll  Action = "all"
)

type Executor struct {
	gw        port.Gateway
	repo      port.Repository
	accountID string
	grace     time.Duration // 卖出后等待回报刷新的间隔
	sleep     func(context.Context, time.Duration)
}

func New(gw port.Gateway, repo port.Repository, accountID string) *Executor {
	return &Executor{
		gw:        gw,
		repo:      repo,
		accountID: accountID,
		grace:     time.Second,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Execute 按 action 跑计划。all 时卖出阶段严格先于买入阶段。
func (e *Executor) Execute(ctx context.Context, plan *tradeplan.FinalPlan, action Action) error {
	if action == ActionSell || action == ActionAll {
		if err := e.ExecuteSells(ctx, plan); err != nil {
			return err
		}
		if action == ActionAll {
			e.sleep(ctx, e.grace)
		}
	}
	if action == ActionBuy || action == ActionAll {
		if err := e.ExecuteBuys(ctx, plan); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteSells 卖出阶段。重查持仓后按计划逐条提交。
func (e *Executor) ExecuteSells(ctx context.Context, plan *tradeplan.FinalPlan) error {
	if len(plan.Sell) == 0 {
		return nil
	}
	positions, err := e.gw.QueryPositions(ctx, e.accountID)
	if err != nil {
		return err
	}
	posByCode := map[string]domain.Position{}
	for _, p := range positions {
		posByCode[p.StockCode] = p
	}

	for _, entry := range plan.Sell {
		key, ok := stockcode.MatchInMap(entry.Code, posByCode)
		if !ok {
			log.Error().Str("code", entry.Code).Msg("sell entry not in live positions, skipped")
			continue
		}
		pos := posByCode[key]
		if pos.CanUseVolume <= 0 {
			log.Error().Str("code", entry.Code).Msg("no sellable volume, skipped")
			continue
		}

		lot := e.boardLot(ctx, entry.Code)
		volume := pos.CanUseVolume / lot * lot
		if entry.ActualLots > 0 && entry.ActualLots < volume {
			volume = entry.ActualLots / lot * lot
		}
		if volume <= 0 {
			log.Warn().Str("code", entry.Code).Msg("sellable volume below board lot, skipped")
			continue
		}

		price := e.sellPrice(ctx, key)
		if price <= 0 {
			log.Error().Str("code", entry.Code).Msg("no usable price, sell skipped")
			continue
		}

		seq, err := e.gw.OrderStockAsync(ctx, e.accountID, key, domain.SideSell, volume, price, "plan_sell", "")
		if err != nil {
			log.Error().Str("code", entry.Code).Err(err).Msg("sell submission failed")
			continue
		}
		metrics.OrdersSubmitted.WithLabelValues("sell").Inc()
		log.Info().Str("code", key).Int64("volume", volume).Float64("price", price).
			Int64("seq", seq).Msg("sell submitted")
		e.recordSubmit(ctx, key, "sell", volume, price, seq)
	}
	return nil
}

// ExecuteBuys 买入阶段。本地扣减现金防止循环内超买。
func (e *Executor) ExecuteBuys(ctx context.Context, plan *tradeplan.FinalPlan) error {
	if len(plan.Buy) == 0 {
		return nil
	}
	asset, err := e.gw.QueryAsset(ctx, e.accountID)
	if err != nil {
		return err
	}
	cash := asset.Cash

	for _, entry := range plan.Buy {
		if cash <= 0 {
			log.Warn().Msg("cash exhausted, remaining buys skipped")
			break
		}

		price := e.buyPrice(ctx, entry.Code)
		if price <= 0 {
			log.Error().Str("code", entry.Code).Msg("no usable price, buy skipped")
			continue
		}

		lot := e.boardLot(ctx, entry.Code)
		volume := int64(math.Floor(float64(entry.Amount)/price/float64(lot))) * lot
		if volume <= 0 {
			log.Warn().Str("code", entry.Code).Int64("amount", entry.Amount).
				Float64("price", price).Msg("target below one board lot, skipped")
			continue
		}

		seq, err := e.gw.OrderStockAsync(ctx, e.accountID, entry.Code, domain.SideBuy, volume, price, "plan_buy", "")
		if err != nil {
			log.Error().Str("code", entry.Code).Err(err).Msg("buy submission failed")
			continue
		}
		metrics.OrdersSubmitted.WithLabelValues("buy").Inc()
		cash -= float64(volume) * price
		log.Info().Str("code", entry.Code).Int64("volume", volume).Float64("price", price).
			Int64("seq", seq).Float64("cash_left", cash).Msg("buy submitted")
		e.recordSubmit(ctx, entry.Code, "buy", volume, price, seq)
	}
	return nil
}

// sellPrice 买一价优先，退而取最新价、卖一价
func (e *Executor) sellPrice(ctx context.Context, code string) float64 {
	tick, err := e.gw.GetTick(ctx, code)
	if err != nil {
		log.Error().Str("code", code).Err(err).Msg("tick fetch failed")
		return 0
	}
	return firstPositive(tick.BidPrice, tick.LastPrice, tick.AskPrice)
}

// buyPrice 卖一价优先，退而取最新价、买一价
func (e *Executor) buyPrice(ctx context.Context, code string) float64 {
	tick, err := e.gw.GetTick(ctx, code)
	if err != nil {
		log.Error().Str("code", code).Err(err).Msg("tick fetch failed")
		return 0
	}
	return firstPositive(tick.AskPrice, tick.LastPrice, tick.BidPrice)
}

func (e *Executor) boardLot(ctx context.Context, code string) int64 {
	detail, err := e.gw.GetInstrumentDetail(ctx, code)
	if err != nil || detail == nil {
		return domain.DefaultBoardLot
	}
	return detail.Lot()
}

func (e *Executor) recordSubmit(ctx context.Context, code, side string, volume int64, price float64, seq int64) {
	if e.repo == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{"side": side, "volume": volume, "price": price, "seq": seq})
	if err := e.repo.InsertOrderEvent(ctx, e.accountID, time.Now().UnixMilli(), seq, code, "submit", string(payload)); err != nil {
		log.Warn().Err(err).Msg("order event persist failed")
	}
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
