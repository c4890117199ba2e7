package executor

import (
	"context"

	"github.com/rs/zerolog/log"

	"yfollow/internal/application/port"
	"yfollow/internal/domain"
	"yfollow/internal/infrastructure/metrics"
)

// CancelWorkingOrders 撤掉全部在途委托（已报、部成），返回发起撤单笔数。
// 通常在补单扫描前跑一轮，把挂死的委托腾出来。
func CancelWorkingOrders(ctx context.Context, gw port.Gateway, accountID string) (int, error) {
	orders, err := gw.QueryOrders(ctx, accountID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, order := range orders {
		if order.Status != domain.StatusReported && order.Status != domain.StatusPartialFilled {
			continue
		}
		if order.SysID == "" {
			log.Warn().Int64("order_id", order.OrderID).Msg("working order has no sys id, cannot cancel")
			continue
		}
		if _, err := gw.CancelOrderAsync(ctx, accountID, order.SysID); err != nil {
			log.Error().Int64("order_id", order.OrderID).Err(err).Msg("cancel submission failed")
			continue
		}
		metrics.CancelsSubmitted.Inc()
		count++
		log.Info().Int64("order_id", order.OrderID).Str("code", order.StockCode).
			Str("status", order.Status.String()).Msg("cancel submitted")
	}
	return count, nil
}
