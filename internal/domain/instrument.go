package domain

// Tick 最新行情快照，只取定价所需字段
type Tick struct {
	StockCode string  `json:"stock_code"`
	LastPrice float64 `json:"last_price"`
	BidPrice  float64 `json:"bid_price"`
	AskPrice  float64 `json:"ask_price"`
	Ts        int64   `json:"ts"`
}

// InstrumentDetail 合约静态信息
type InstrumentDetail struct {
	StockCode string  `json:"stock_code"`
	BoardLot  int64   `json:"board_lot"`
	PriceTick float64 `json:"price_tick"`
}

// DefaultBoardLot 元数据缺失时的手数兜底
const DefaultBoardLot int64 = 100

// Lot 返回有效手数
func (d InstrumentDetail) Lot() int64 {
	if d.BoardLot > 0 {
		return d.BoardLot
	}
	return DefaultBoardLot
}
