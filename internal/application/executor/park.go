package executor

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"

	"yfollow/internal/application/port"
	"yfollow/internal/domain"
	"yfollow/internal/domain/stockcode"
)

// Park 闲置资金停泊：盘初把大部分现金买入货币 ETF，
// 尾盘全部卖出，让隔夜资金吃利息。
type Park struct {
	gw           port.Gateway
	accountID    string
	code         string
	reserveRatio float64 // 保留现金比例
	remark       string
}

func NewPark(gw port.Gateway, accountID, code string, reserveRatio float64, remark string) *Park {
	return &Park{
		gw:           gw,
		accountID:    accountID,
		code:         code,
		reserveRatio: reserveRatio,
		remark:       remark,
	}
}

// Buy 按扣除保留比例后的现金买入停泊标的
func (p *Park) Buy(ctx context.Context) error {
	asset, err := p.gw.QueryAsset(ctx, p.accountID)
	if err != nil {
		return err
	}
	budget := asset.Cash * (1 - p.reserveRatio)
	if budget <= 0 {
		log.Info().Float64("cash", asset.Cash).Msg("no cash to park")
		return nil
	}

	tick, err := p.gw.GetTick(ctx, p.code)
	if err != nil {
		return err
	}
	price := firstPositive(tick.AskPrice, tick.LastPrice, tick.BidPrice)
	if price <= 0 {
		log.Error().Str("code", p.code).Msg("no usable price, park buy skipped")
		return nil
	}

	lot := domain.DefaultBoardLot
	if detail, err := p.gw.GetInstrumentDetail(ctx, p.code); err == nil {
		lot = detail.Lot()
	}
	volume := int64(math.Floor(budget/price/float64(lot))) * lot
	if volume <= 0 {
		log.Info().Float64("budget", budget).Msg("park budget below one board lot")
		return nil
	}

	seq, err := p.gw.OrderStockAsync(ctx, p.accountID, p.code, domain.SideBuy, volume, price, p.remark, "")
	if err != nil {
		return err
	}
	log.Info().Str("code", p.code).Int64("volume", volume).Float64("price", price).
		Int64("seq", seq).Msg("park buy submitted")
	return nil
}

// Sell 卖出停泊标的的全部可卖数量
func (p *Park) Sell(ctx context.Context) error {
	positions, err := p.gw.QueryPositions(ctx, p.accountID)
	if err != nil {
		return err
	}
	posByCode := map[string]domain.Position{}
	for _, pos := range positions {
		posByCode[pos.StockCode] = pos
	}
	key, ok := stockcode.MatchInMap(p.code, posByCode)
	if !ok {
		log.Info().Str("code", p.code).Msg("no parked position to sell")
		return nil
	}
	pos := posByCode[key]
	if pos.CanUseVolume <= 0 {
		log.Info().Str("code", p.code).Msg("parked position not sellable yet")
		return nil
	}

	tick, err := p.gw.GetTick(ctx, key)
	if err != nil {
		return err
	}
	price := firstPositive(tick.BidPrice, tick.LastPrice, tick.AskPrice)
	if price <= 0 {
		log.Error().Str("code", key).Msg("no usable price, park sell skipped")
		return nil
	}

	seq, err := p.gw.OrderStockAsync(ctx, p.accountID, key, domain.SideSell, pos.CanUseVolume, price, p.remark, "")
	if err != nil {
		return err
	}
	log.Info().Str("code", key).Int64("volume", pos.CanUseVolume).Float64("price", price).
		Int64("seq", seq).Msg("park sell submitted")
	return nil
}
