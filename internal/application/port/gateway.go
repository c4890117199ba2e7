package port

import (
	"context"

	"yfollow/internal/domain"
)

// Gateway 交易客户端能力集。
// 实现必须对并发调用安全；下单与撤单为异步接口，
// 返回请求序号，结果经由 CallbackSink 回报。
type Gateway interface {
	Connect(ctx context.Context) error

	QueryAsset(ctx context.Context, accountID string) (*domain.AssetSnapshot, error)
	QueryPositions(ctx context.Context, accountID string) ([]domain.Position, error)
	QueryOrders(ctx context.Context, accountID string) ([]domain.Order, error)

	GetTick(ctx context.Context, code string) (*domain.Tick, error)
	GetInstrumentDetail(ctx context.Context, code string) (*domain.InstrumentDetail, error)

	OrderStockAsync(ctx context.Context, accountID, code string, side domain.OrderSide,
		volume int64, price float64, remark, tag string) (int64, error)
	CancelOrderAsync(ctx context.Context, accountID, sysID string) (int64, error)

	Close() error
}
