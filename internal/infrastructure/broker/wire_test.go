package broker

import (
	"encoding/json"
	"testing"
)

func TestWirePositionSnakeCase(t *testing.T) {
	raw := `{"stock_code":"600519.SH","stock_name":"贵州茅台","volume":400,"can_use_volume":300,"avg_price":1500.5,"market_value":600200}`
	var wp wirePosition
	if err := json.Unmarshal([]byte(raw), &wp); err != nil {
		t.Fatal(err)
	}
	p := wp.toDomain()
	if p.StockCode != "600519.SH" || p.Volume != 400 || p.CanUseVolume != 300 {
		t.Errorf("unexpected position: %+v", p)
	}
}

func TestWirePositionHungarian(t *testing.T) {
	raw := `{"m_strInstrumentID":"159949","m_strInstrumentName":"创业板50","m_nVolume":1000,"m_nCanUseVolume":1000,"m_dOpenPrice":1.1,"m_dInstrumentValue":1100}`
	var wp wirePosition
	if err := json.Unmarshal([]byte(raw), &wp); err != nil {
		t.Fatal(err)
	}
	p := wp.toDomain()
	if p.StockCode != "159949" || p.StockName != "创业板50" || p.CanUseVolume != 1000 || p.MarketValue != 1100 {
		t.Errorf("unexpected position: %+v", p)
	}
}

func TestWireAssetHungarian(t *testing.T) {
	raw := `{"m_dBalance":1000000,"m_dCash":300000,"m_dFrozenCash":0,"m_dInstrumentValue":700000}`
	var wa wireAsset
	if err := json.Unmarshal([]byte(raw), &wa); err != nil {
		t.Fatal(err)
	}
	a := wa.toDomain()
	if a.TotalAsset != 1000000 || a.Cash != 300000 || a.MarketValue != 700000 {
		t.Errorf("unexpected asset: %+v", a)
	}
}

func TestWireTickBidAskArrays(t *testing.T) {
	raw := `{"lastPrice":10.00,"bidPrice":[9.99,9.98],"askPrice":[10.01,10.02]}`
	var wt wireTick
	if err := json.Unmarshal([]byte(raw), &wt); err != nil {
		t.Fatal(err)
	}
	tick := wt.toDomain()
	if tick.LastPrice != 10.00 || tick.BidPrice != 9.99 || tick.AskPrice != 10.01 {
		t.Errorf("unexpected tick: %+v", tick)
	}
}
