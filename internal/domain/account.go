package domain

// AssetSnapshot 账户资产快照，由券商端返回并归一化后使用
type AssetSnapshot struct {
	AccountID   string  `json:"account_id"`
	TotalAsset  float64 `json:"total_asset"`
	Cash        float64 `json:"cash"`
	FrozenCash  float64 `json:"frozen_cash"`
	MarketValue float64 `json:"market_value"`
}

// Position 单只股票持仓
type Position struct {
	StockCode    string  `json:"stock_code"`
	StockName    string  `json:"stock_name"`
	Volume       int64   `json:"volume"`
	CanUseVolume int64   `json:"can_use_volume"`
	AvgPrice     float64 `json:"avg_price"`
	MarketValue  float64 `json:"market_value"`
}
