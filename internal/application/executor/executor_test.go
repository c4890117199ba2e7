package executor

import (
	"context"
	"testing"
	"time"

	"yfollow/internal/application/tradeplan"
	"yfollow/internal/domain"
	"yfollow/internal/infrastructure/batchstate"
)

type submitted struct {
	Code   string
	Side   domain.OrderSide
	Volume int64
	Price  float64
	Remark string
	Tag    string
}

// fakeGateway 内存撮合桩，记录全部下单与撤单调用
type fakeGateway struct {
	asset     *domain.AssetSnapshot
	positions []domain.Position
	orders    []domain.Order
	ticks     map[string]domain.Tick
	details   map[string]domain.InstrumentDetail

	submits []submitted
	cancels []string
	seq     int64
}

func (f *fakeGateway) Connect(context.Context) error { return nil }
func (f *fakeGateway) Close() error                  { return nil }

func (f *fakeGateway) QueryAsset(context.Context, string) (*domain.AssetSnapshot, error) {
	return f.asset, nil
}

func (f *fakeGateway) QueryPositions(context.Context, string) ([]domain.Position, error) {
	return f.positions, nil
}

func (f *fakeGateway) QueryOrders(context.Context, string) ([]domain.Order, error) {
	return f.orders, nil
}

func (f *fakeGateway) GetTick(_ context.Context, code string) (*domain.Tick, error) {
	if t, ok := f.ticks[code]; ok {
		return &t, nil
	}
	return &domain.Tick{StockCode: code}, nil
}

func (f *fakeGateway) GetInstrumentDetail(_ context.Context, code string) (*domain.InstrumentDetail, error) {
	if d, ok := f.details[code]; ok {
		return &d, nil
	}
	return &domain.InstrumentDetail{StockCode: code, BoardLot: domain.DefaultBoardLot, PriceTick: 0.01}, nil
}

func (f *fakeGateway) OrderStockAsync(_ context.Context, _ string, code string, side domain.OrderSide,
	volume int64, price float64, remark, tag string) (int64, error) {
	f.seq++
	f.submits = append(f.submits, submitted{code, side, volume, price, remark, tag})
	return f.seq, nil
}

func (f *fakeGateway) CancelOrderAsync(_ context.Context, _ string, sysID string) (int64, error) {
	f.seq++
	f.cancels = append(f.cancels, sysID)
	return f.seq, nil
}

func TestExecuteSellThenBuyOrdering(t *testing.T) {
	gw := &fakeGateway{
		asset: &domain.AssetSnapshot{AccountID: "acct1", TotalAsset: 1000000, Cash: 500000},
		positions: []domain.Position{
			{StockCode: "600519.SH", Volume: 500, CanUseVolume: 500},
		},
		ticks: map[string]domain.Tick{
			"600519.SH": {StockCode: "600519.SH", LastPrice: 1500, BidPrice: 1499.9, AskPrice: 1500.1},
			"000001.SZ": {StockCode: "000001.SZ", LastPrice: 10, BidPrice: 9.99, AskPrice: 10.01},
		},
	}
	plan := &tradeplan.FinalPlan{
		Sell: []tradeplan.FinalSell{{Name: "贵州茅台", Code: "600519.SH", Lots: 500, ActualLots: 500}},
		Buy:  []tradeplan.FinalBuy{{Name: "平安银行", Code: "000001.SZ", Amount: 50000}},
	}

	exec := New(gw, nil, "acct1")
	exec.grace = 0
	if err := exec.Execute(context.Background(), plan, ActionAll); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(gw.submits) != 2 {
		t.Fatalf("submits = %d, want 2", len(gw.submits))
	}
	if gw.submits[0].Side != domain.SideSell || gw.submits[1].Side != domain.SideBuy {
		t.Fatalf("sell must precede buy, got %v then %v", gw.submits[0].Side, gw.submits[1].Side)
	}
	// 卖出用买一价，买入用卖一价
	if gw.submits[0].Price != 1499.9 {
		t.Fatalf("sell price = %v, want bid 1499.9", gw.submits[0].Price)
	}
	if gw.submits[1].Price != 10.01 {
		t.Fatalf("buy price = %v, want ask 10.01", gw.submits[1].Price)
	}
	// 50000 / 10.01 = 4995 股，取整到 4900
	if gw.submits[1].Volume != 4900 {
		t.Fatalf("buy volume = %d, want 4900", gw.submits[1].Volume)
	}
}

func TestExecuteSellsCapsAndSkips(t *testing.T) {
	gw := &fakeGateway{
		positions: []domain.Position{
			{StockCode: "600519.SH", Volume: 1000, CanUseVolume: 1000},
			{StockCode: "000002.SZ", Volume: 100, CanUseVolume: 0},
		},
		ticks: map[string]domain.Tick{
			"600519.SH": {LastPrice: 1500, BidPrice: 1499.9},
		},
	}
	plan := &tradeplan.FinalPlan{
		Sell: []tradeplan.FinalSell{
			{Name: "贵州茅台", Code: "600519.SH", Lots: 300, ActualLots: 300},
			{Name: "万科A", Code: "000002.SZ", Lots: 100, ActualLots: 100}, // 无可卖
			{Name: "不存在", Code: "300001.SZ", Lots: 100, ActualLots: 100}, // 无持仓
		},
	}

	exec := New(gw, nil, "acct1")
	if err := exec.ExecuteSells(context.Background(), plan); err != nil {
		t.Fatalf("sells: %v", err)
	}
	if len(gw.submits) != 1 {
		t.Fatalf("submits = %d, want 1", len(gw.submits))
	}
	if gw.submits[0].Volume != 300 {
		t.Fatalf("volume = %d, want capped 300", gw.submits[0].Volume)
	}
}

func TestExecuteSellsMatchesBareCode(t *testing.T) {
	// 计划里是裸代码，持仓里带后缀，仍要对得上
	gw := &fakeGateway{
		positions: []domain.Position{{StockCode: "159949.SZ", Volume: 5000, CanUseVolume: 5000}},
		ticks: map[string]domain.Tick{
			"159949.SZ": {LastPrice: 1.0, BidPrice: 0.999},
		},
	}
	plan := &tradeplan.FinalPlan{
		Sell: []tradeplan.FinalSell{{Name: "创业板50", Code: "159949", Lots: 5000, ActualLots: 5000}},
	}
	exec := New(gw, nil, "acct1")
	if err := exec.ExecuteSells(context.Background(), plan); err != nil {
		t.Fatalf("sells: %v", err)
	}
	if len(gw.submits) != 1 || gw.submits[0].Code != "159949.SZ" {
		t.Fatalf("submits = %+v, want one order on 159949.SZ", gw.submits)
	}
}

func TestExecuteBuysStopsWhenCashExhausted(t *testing.T) {
	gw := &fakeGateway{
		asset: &domain.AssetSnapshot{AccountID: "acct1", TotalAsset: 100000, Cash: 12000},
		ticks: map[string]domain.Tick{
			"000001.SZ": {LastPrice: 10, AskPrice: 10},
			"000002.SZ": {LastPrice: 20, AskPrice: 20},
		},
	}
	plan := &tradeplan.FinalPlan{
		Buy: []tradeplan.FinalBuy{
			{Name: "平安银行", Code: "000001.SZ", Amount: 12000},
			{Name: "万科A", Code: "000002.SZ", Amount: 12000},
		},
	}
	exec := New(gw, nil, "acct1")
	if err := exec.ExecuteBuys(context.Background(), plan); err != nil {
		t.Fatalf("buys: %v", err)
	}
	// 第一笔花光本地现金，第二笔应被跳过
	if len(gw.submits) != 1 {
		t.Fatalf("submits = %d, want 1", len(gw.submits))
	}
	if gw.submits[0].Volume != 1200 {
		t.Fatalf("volume = %d, want 1200", gw.submits[0].Volume)
	}
}

func TestExecuteBuysSkipsBelowOneLot(t *testing.T) {
	gw := &fakeGateway{
		asset: &domain.AssetSnapshot{AccountID: "acct1", TotalAsset: 100000, Cash: 100000},
		ticks: map[string]domain.Tick{
			"600519.SH": {LastPrice: 1500, AskPrice: 1500},
		},
	}
	plan := &tradeplan.FinalPlan{
		Buy: []tradeplan.FinalBuy{{Name: "贵州茅台", Code: "600519.SH", Amount: 100000}},
	}
	exec := New(gw, nil, "acct1")
	if err := exec.ExecuteBuys(context.Background(), plan); err != nil {
		t.Fatalf("buys: %v", err)
	}
	// 100000 / 1500 = 66 股，不足一手
	if len(gw.submits) != 0 {
		t.Fatalf("submits = %d, want 0", len(gw.submits))
	}
}

func TestReorderSweepResubmitsOnce(t *testing.T) {
	now := time.Now()
	gw := &fakeGateway{
		orders: []domain.Order{{
			OrderID:      101,
			SysID:        "S101",
			OrderTime:    now.Add(-3 * time.Minute).Unix(),
			StockCode:    "600519.SH",
			Side:         domain.SideBuy,
			OrderVolume:  1000,
			TradedVolume: 200,
			Status:       domain.StatusPartiallyCancelled,
		}},
		ticks: map[string]domain.Tick{
			"600519.SH": {LastPrice: 10.00},
		},
		details: map[string]domain.InstrumentDetail{
			"600519.SH": {StockCode: "600519.SH", BoardLot: 100, PriceTick: 0.01},
		},
	}
	store := batchstate.NewReorderStore(t.TempDir())
	r := NewReorderer(gw, nil, store, "acct1", 10*time.Minute, 2)
	r.now = func() time.Time { return now }

	n, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 || len(gw.submits) != 1 {
		t.Fatalf("resubmits = %d (%d calls), want 1", n, len(gw.submits))
	}
	got := gw.submits[0]
	if got.Volume != 800 {
		t.Fatalf("volume = %d, want remaining 800", got.Volume)
	}
	if got.Price != 10.02 {
		t.Fatalf("price = %v, want last + 2 ticks = 10.02", got.Price)
	}
	if got.Remark != ReorderRemark || got.Tag != "reorder_600519.SH" {
		t.Fatalf("remark/tag = %q/%q", got.Remark, got.Tag)
	}

	// 同日再次扫描不得重复补单
	n, err = r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if n != 0 || len(gw.submits) != 1 {
		t.Fatalf("second sweep resubmitted, submits = %d", len(gw.submits))
	}
}

func TestReorderSweepFilters(t *testing.T) {
	now := time.Now()
	gw := &fakeGateway{
		orders: []domain.Order{
			{ // 窗口外
				OrderID: 1, StockCode: "000001.SZ", Side: domain.SideBuy,
				OrderTime:   now.Add(-30 * time.Minute).Unix(),
				OrderVolume: 1000, TradedVolume: 0, Status: domain.StatusCancelled,
			},
			{ // 余量不足一手
				OrderID: 2, StockCode: "000002.SZ", Side: domain.SideSell,
				OrderTime:   now.Add(-1 * time.Minute).Unix(),
				OrderVolume: 100, TradedVolume: 40, Status: domain.StatusCancelled,
			},
			{ // 状态不在撤单集合
				OrderID: 3, StockCode: "000003.SZ", Side: domain.SideBuy,
				OrderTime:   now.Add(-1 * time.Minute).Unix(),
				OrderVolume: 1000, TradedVolume: 0, Status: domain.StatusFilled,
			},
		},
		ticks: map[string]domain.Tick{
			"000001.SZ": {LastPrice: 10}, "000002.SZ": {LastPrice: 10}, "000003.SZ": {LastPrice: 10},
		},
	}
	store := batchstate.NewReorderStore(t.TempDir())
	r := NewReorderer(gw, nil, store, "acct1", 10*time.Minute, 2)
	r.now = func() time.Time { return now }

	n, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 || len(gw.submits) != 0 {
		t.Fatalf("submits = %d, want none", len(gw.submits))
	}
}

func TestReorderSellAdjustsDown(t *testing.T) {
	now := time.Now()
	gw := &fakeGateway{
		orders: []domain.Order{{
			OrderID: 7, StockCode: "000001.SZ", Side: domain.SideSell,
			OrderTime:   now.Add(-time.Minute).Unix(),
			OrderVolume: 500, TradedVolume: 100, Status: domain.StatusCancelled,
		}},
		ticks: map[string]domain.Tick{"000001.SZ": {LastPrice: 10.00}},
		details: map[string]domain.InstrumentDetail{
			"000001.SZ": {BoardLot: 100, PriceTick: 0.01},
		},
	}
	store := batchstate.NewReorderStore(t.TempDir())
	r := NewReorderer(gw, nil, store, "acct1", 10*time.Minute, 2)
	r.now = func() time.Time { return now }

	if _, err := r.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(gw.submits) != 1 {
		t.Fatalf("submits = %d, want 1", len(gw.submits))
	}
	if gw.submits[0].Price != 9.98 {
		t.Fatalf("price = %v, want last - 2 ticks = 9.98", gw.submits[0].Price)
	}
	if gw.submits[0].Volume != 400 {
		t.Fatalf("volume = %d, want 400", gw.submits[0].Volume)
	}
}

func TestCancelWorkingOrders(t *testing.T) {
	gw := &fakeGateway{
		orders: []domain.Order{
			{OrderID: 1, SysID: "S1", Status: domain.StatusReported},
			{OrderID: 2, SysID: "S2", Status: domain.StatusPartialFilled},
			{OrderID: 3, SysID: "S3", Status: domain.StatusFilled},
			{OrderID: 4, SysID: "", Status: domain.StatusReported}, // 无 sysid
		},
	}
	n, err := CancelWorkingOrders(context.Background(), gw, "acct1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if n != 2 {
		t.Fatalf("cancelled = %d, want 2", n)
	}
	if len(gw.cancels) != 2 || gw.cancels[0] != "S1" || gw.cancels[1] != "S2" {
		t.Fatalf("cancels = %v", gw.cancels)
	}
}

func TestParkBuyKeepsReserve(t *testing.T) {
	gw := &fakeGateway{
		asset: &domain.AssetSnapshot{AccountID: "acct1", Cash: 100000},
		ticks: map[string]domain.Tick{
			"511880.SH": {LastPrice: 100.00, AskPrice: 100.00},
		},
	}
	p := NewPark(gw, "acct1", "511880.SH", 0.05, "auto_yinhuarili")
	if err := p.Buy(context.Background()); err != nil {
		t.Fatalf("park buy: %v", err)
	}
	if len(gw.submits) != 1 {
		t.Fatalf("submits = %d, want 1", len(gw.submits))
	}
	// 预算 95000, 100 元一股, 950 股取整到 900
	if gw.submits[0].Volume != 900 {
		t.Fatalf("volume = %d, want 900", gw.submits[0].Volume)
	}
	if gw.submits[0].Remark != "auto_yinhuarili" {
		t.Fatalf("remark = %q", gw.submits[0].Remark)
	}
}

func TestParkSellAll(t *testing.T) {
	gw := &fakeGateway{
		positions: []domain.Position{{StockCode: "511880.SH", Volume: 900, CanUseVolume: 900}},
		ticks: map[string]domain.Tick{
			"511880.SH": {LastPrice: 100.00, BidPrice: 99.99},
		},
	}
	p := NewPark(gw, "acct1", "511880.SH", 0.05, "auto_yinhuarili")
	if err := p.Sell(context.Background()); err != nil {
		t.Fatalf("park sell: %v", err)
	}
	if len(gw.submits) != 1 {
		t.Fatalf("submits = %d, want 1", len(gw.submits))
	}
	got := gw.submits[0]
	if got.Side != domain.SideSell || got.Volume != 900 || got.Price != 99.99 {
		t.Fatalf("submit = %+v", got)
	}
}

func TestParkSellNothingHeld(t *testing.T) {
	gw := &fakeGateway{}
	p := NewPark(gw, "acct1", "511880.SH", 0.05, "auto_yinhuarili")
	if err := p.Sell(context.Background()); err != nil {
		t.Fatalf("park sell: %v", err)
	}
	if len(gw.submits) != 0 {
		t.Fatalf("submits = %d, want 0", len(gw.submits))
	}
}
