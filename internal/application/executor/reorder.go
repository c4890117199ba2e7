package executor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"yfollow/internal/application/port"
	"yfollow/internal/domain"
	"yfollow/internal/infrastructure/batchstate"
	"yfollow/internal/infrastructure/metrics"
)

// ReorderRemark 补单委托的固定备注
const ReorderRemark = "reorder_cancelled"

// Reorderer 撤单重报引擎：把窗口期内撤掉的委托余量
// 以小幅让价重新报出，同一原始委托当日至多重报一次。
type Reorderer struct {
	gw         port.Gateway
	repo       port.Repository
	store      *batchstate.ReorderStore
	accountID  string
	window     time.Duration
	tickOffset float64
	now        func() time.Time
}

func NewReorderer(gw port.Gateway, repo port.Repository, store *batchstate.ReorderStore,
	accountID string, window time.Duration, tickOffset int) *Reorderer {
	return &Reorderer{
		gw:         gw,
		repo:       repo,
		store:      store,
		accountID:  accountID,
		window:     window,
		tickOffset: float64(tickOffset),
		now:        time.Now,
	}
}

// Sweep 扫一遍今日委托并补单，返回补单笔数
func (r *Reorderer) Sweep(ctx context.Context) (int, error) {
	orders, err := r.gw.QueryOrders(ctx, r.accountID)
	if err != nil {
		return 0, err
	}

	now := r.now()
	count := 0
	for _, order := range orders {
		if order.Status != domain.StatusPartiallyCancelled && order.Status != domain.StatusCancelled {
			continue
		}
		placed := time.Unix(order.OrderTime, 0)
		if now.Sub(placed) > r.window {
			continue
		}

		done, err := r.store.Contains(now, order.OrderID)
		if err != nil {
			log.Error().Err(err).Msg("reorder record read failed")
			continue
		}
		if done {
			continue
		}

		lot := r.boardLot(ctx, order.StockCode)
		remaining := order.Remaining()
		if remaining < lot {
			continue
		}
		remaining = remaining / lot * lot

		price := r.adjustedPrice(ctx, order)
		if price <= 0 {
			log.Error().Str("code", order.StockCode).Msg("no usable price, reorder skipped")
			continue
		}

		seq, err := r.gw.OrderStockAsync(ctx, r.accountID, order.StockCode, order.Side,
			remaining, price, ReorderRemark, "reorder_"+order.StockCode)
		if err != nil {
			log.Error().Int64("order_id", order.OrderID).Err(err).Msg("reorder submission failed")
			continue
		}
		// 先发请求再记账：宁可漏记重试，不可记了没发
		if err := r.store.Add(now, order.OrderID); err != nil {
			log.Error().Int64("order_id", order.OrderID).Err(err).Msg("reorder record persist failed")
		}
		metrics.ReordersSubmitted.Inc()
		count++
		log.Info().Int64("order_id", order.OrderID).Str("code", order.StockCode).
			Int64("volume", remaining).Float64("price", price).Int64("seq", seq).
			Msg("cancelled remainder resubmitted")
		r.record(ctx, order, remaining, price, seq)
	}
	return count, nil
}

// adjustedPrice 买单让价向上、卖单让价向下各 tickOffset 个最小变动价位
func (r *Reorderer) adjustedPrice(ctx context.Context, order domain.Order) float64 {
	tick, err := r.gw.GetTick(ctx, order.StockCode)
	if err != nil || tick.LastPrice <= 0 {
		return 0
	}
	priceTick := 0.01
	if detail, err := r.gw.GetInstrumentDetail(ctx, order.StockCode); err == nil && detail.PriceTick > 0 {
		priceTick = detail.PriceTick
	}
	if order.Side == domain.SideBuy {
		return tick.LastPrice + r.tickOffset*priceTick
	}
	return tick.LastPrice - r.tickOffset*priceTick
}

func (r *Reorderer) boardLot(ctx context.Context, code string) int64 {
	detail, err := r.gw.GetInstrumentDetail(ctx, code)
	if err != nil || detail == nil {
		return domain.DefaultBoardLot
	}
	return detail.Lot()
}

func (r *Reorderer) record(ctx context.Context, order domain.Order, volume int64, price float64, seq int64) {
	if r.repo == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"original_order_id": order.OrderID,
		"side":              order.Side.String(),
		"volume":            volume,
		"price":             price,
		"seq":               seq,
	})
	if err := r.repo.InsertOrderEvent(ctx, r.accountID, r.now().UnixMilli(), order.OrderID,
		order.StockCode, "reorder", string(payload)); err != nil {
		log.Warn().Err(err).Msg("order event persist failed")
	}
}
