package domain

// OrderSide 委托方向
type OrderSide int

const (
	SideBuy  OrderSide = 23
	SideSell OrderSide = 24
)

func (s OrderSide) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderStatus 委托状态码，与交易客户端保持一致
type OrderStatus int

const (
	StatusUnreported         OrderStatus = 48 // 未报
	StatusWaitReport         OrderStatus = 49 // 待报
	StatusReported           OrderStatus = 50 // 已报
	StatusReportedCancel     OrderStatus = 51 // 已报待撤
	StatusPartialCancel      OrderStatus = 52 // 部成待撤
	StatusPartiallyCancelled OrderStatus = 53 // 部撤
	StatusCancelled          OrderStatus = 54 // 已撤
	StatusPartialFilled      OrderStatus = 55 // 部成
	StatusFilled             OrderStatus = 56 // 已成
	StatusJunk               OrderStatus = 57 // 废单
)

var statusNames = map[OrderStatus]string{
	StatusUnreported:         "未报",
	StatusWaitReport:         "待报",
	StatusReported:           "已报",
	StatusReportedCancel:     "已报待撤",
	StatusPartialCancel:      "部成待撤",
	StatusPartiallyCancelled: "部撤",
	StatusCancelled:          "已撤",
	StatusPartialFilled:      "部成",
	StatusFilled:             "已成",
	StatusJunk:               "废单",
}

func (s OrderStatus) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "未知"
}

// Order 单笔委托快照，状态流转由券商驱动，本地只读
type Order struct {
	OrderID      int64       `json:"order_id"`
	SysID        string      `json:"sys_id"`
	OrderTime    int64       `json:"order_time"` // epoch seconds
	StockCode    string      `json:"stock_code"`
	Side         OrderSide   `json:"side"`
	OrderVolume  int64       `json:"order_volume"`
	TradedVolume int64       `json:"traded_volume"`
	Price        float64     `json:"price"`
	Status       OrderStatus `json:"status"`
	Remark       string      `json:"remark"`
}

// Remaining 未成交数量
func (o Order) Remaining() int64 {
	r := o.OrderVolume - o.TradedVolume
	if r < 0 {
		return 0
	}
	return r
}

// Trade 成交回报
type Trade struct {
	OrderID      int64     `json:"order_id"`
	StockCode    string    `json:"stock_code"`
	Side         OrderSide `json:"side"`
	TradedVolume int64     `json:"traded_volume"`
	TradedPrice  float64   `json:"traded_price"`
	TradeTime    int64     `json:"trade_time"`
}
