package broker

import "yfollow/internal/domain"

// 交易客户端不同版本返回的字段名不一致：新版是小写下划线，
// 旧版带 m_ 匈牙利前缀。这里两套都解码，归一化后下游只见规范结构。

type wireAsset struct {
	TotalAsset  float64 `json:"total_asset"`
	Cash        float64 `json:"cash"`
	FrozenCash  float64 `json:"frozen_cash"`
	MarketValue float64 `json:"market_value"`

	MBalance         float64 `json:"m_dBalance"`
	MCash            float64 `json:"m_dCash"`
	MFrozenCash      float64 `json:"m_dFrozenCash"`
	MInstrumentValue float64 `json:"m_dInstrumentValue"`
}

func (w wireAsset) toDomain() domain.AssetSnapshot {
	return domain.AssetSnapshot{
		TotalAsset:  pick(w.TotalAsset, w.MBalance),
		Cash:        pick(w.Cash, w.MCash),
		FrozenCash:  pick(w.FrozenCash, w.MFrozenCash),
		MarketValue: pick(w.MarketValue, w.MInstrumentValue),
	}
}

type wirePosition struct {
	StockCode    string  `json:"stock_code"`
	StockName    string  `json:"stock_name"`
	Volume       int64   `json:"volume"`
	CanUseVolume int64   `json:"can_use_volume"`
	AvgPrice     float64 `json:"avg_price"`
	MarketValue  float64 `json:"market_value"`

	MInstrumentID    string  `json:"m_strInstrumentID"`
	MInstrumentName  string  `json:"m_strInstrumentName"`
	MVolume          int64   `json:"m_nVolume"`
	MCanUseVolume    int64   `json:"m_nCanUseVolume"`
	MOpenPrice       float64 `json:"m_dOpenPrice"`
	MInstrumentValue float64 `json:"m_dInstrumentValue"`
}

func (w wirePosition) toDomain() domain.Position {
	return domain.Position{
		StockCode:    pickStr(w.StockCode, w.MInstrumentID),
		StockName:    pickStr(w.StockName, w.MInstrumentName),
		Volume:       pickInt(w.Volume, w.MVolume),
		CanUseVolume: pickInt(w.CanUseVolume, w.MCanUseVolume),
		AvgPrice:     pick(w.AvgPrice, w.MOpenPrice),
		MarketValue:  pick(w.MarketValue, w.MInstrumentValue),
	}
}

type wireOrder struct {
	OrderID      int64   `json:"order_id"`
	SysID        string  `json:"order_sysid"`
	OrderTime    int64   `json:"order_time"`
	StockCode    string  `json:"stock_code"`
	OrderType    int     `json:"order_type"`
	OrderVolume  int64   `json:"order_volume"`
	TradedVolume int64   `json:"traded_volume"`
	Price        float64 `json:"price"`
	OrderStatus  int     `json:"order_status"`
	OrderRemark  string  `json:"order_remark"`
}

func (w wireOrder) toDomain() domain.Order {
	return domain.Order{
		OrderID:      w.OrderID,
		SysID:        w.SysID,
		OrderTime:    w.OrderTime,
		StockCode:    w.StockCode,
		Side:         domain.OrderSide(w.OrderType),
		OrderVolume:  w.OrderVolume,
		TradedVolume: w.TradedVolume,
		Price:        w.Price,
		Status:       domain.OrderStatus(w.OrderStatus),
		Remark:       w.OrderRemark,
	}
}

type wireTrade struct {
	OrderID      int64   `json:"order_id"`
	StockCode    string  `json:"stock_code"`
	OrderType    int     `json:"order_type"`
	TradedVolume int64   `json:"traded_volume"`
	TradedPrice  float64 `json:"traded_price"`
	TradeTime    int64   `json:"traded_time"`
}

func (w wireTrade) toDomain() domain.Trade {
	return domain.Trade{
		OrderID:      w.OrderID,
		StockCode:    w.StockCode,
		Side:         domain.OrderSide(w.OrderType),
		TradedVolume: w.TradedVolume,
		TradedPrice:  w.TradedPrice,
		TradeTime:    w.TradeTime,
	}
}

type wireTick struct {
	LastPrice float64   `json:"lastPrice"`
	BidPrices []float64 `json:"bidPrice"`
	AskPrices []float64 `json:"askPrice"`
	Time      int64     `json:"time"`
}

func (w wireTick) toDomain() domain.Tick {
	t := domain.Tick{LastPrice: w.LastPrice, Ts: w.Time}
	if len(w.BidPrices) > 0 {
		t.BidPrice = w.BidPrices[0]
	}
	if len(w.AskPrices) > 0 {
		t.AskPrice = w.AskPrices[0]
	}
	return t
}

func pick(a, b float64) float64 {
	if a != 0 {
		return a
	}
	return b
}

func pickStr(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func pickInt(a, b int64) int64 {
	if a != 0 {
		return a
	}
	return b
}
