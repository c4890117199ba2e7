package executor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"yfollow/internal/application/port"
)

// LogPortfolio 打印资产与持仓概况，并把最新资产快照写入存储
func LogPortfolio(ctx context.Context, gw port.Gateway, repo port.Repository, accountID string) {
	asset, err := gw.QueryAsset(ctx, accountID)
	if err != nil {
		log.Error().Err(err).Msg("asset query failed")
		return
	}
	log.Info().
		Str("account", accountID).
		Float64("total_asset", asset.TotalAsset).
		Float64("cash", asset.Cash).
		Float64("market_value", asset.MarketValue).
		Msg("account asset")

	positions, err := gw.QueryPositions(ctx, accountID)
	if err != nil {
		log.Error().Err(err).Msg("positions query failed")
		return
	}
	for _, p := range positions {
		log.Info().
			Str("code", p.StockCode).
			Str("name", p.StockName).
			Int64("volume", p.Volume).
			Int64("can_use", p.CanUseVolume).
			Float64("market_value", p.MarketValue).
			Msg("position")
	}

	if repo != nil {
		if err := repo.UpsertAssetSnapshot(ctx, accountID, asset.TotalAsset, asset.Cash,
			asset.MarketValue, time.Now().UnixMilli()); err != nil {
			log.Warn().Err(err).Msg("asset snapshot persist failed")
		}
	}
}
