package tradeplan

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"yfollow/internal/domain"
	"yfollow/internal/domain/stockcode"
)

func newResolver(t *testing.T, codeIndex string) *stockcode.Resolver {
	t.Helper()
	path := filepath.Join(t.TempDir(), "code_index.json")
	if err := os.WriteFile(path, []byte(codeIndex), 0o644); err != nil {
		t.Fatal(err)
	}
	r := stockcode.NewResolver()
	if err := r.LoadCodeIndex(path); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestParseOperationsAnnotated(t *testing.T) {
	resolver := newResolver(t, `{}`)
	sells, buys, err := ParseOperations(
		"卖出 银华日利(511880.SH)；买入 创业板50(159949) 40%",
		resolver, map[string]float64{"银华日利": 60})
	if err != nil {
		t.Fatal(err)
	}
	if len(sells) != 1 || len(buys) != 1 {
		t.Fatalf("got %d sells, %d buys", len(sells), len(buys))
	}
	if sells[0].Code != "511880.SH" || sells[0].Ratio != 60 {
		t.Errorf("sell wrong: %+v", sells[0])
	}
	if buys[0].Code != "159949.SZ" || buys[0].Ratio != 40 {
		t.Errorf("buy wrong: %+v", buys[0])
	}
	if buys[0].SampleAmount != 40.0/100*SampleTotalAsset {
		t.Errorf("sample amount wrong: %v", buys[0].SampleAmount)
	}
}

func TestParseOperationsResolvesMissingCode(t *testing.T) {
	resolver := newResolver(t, `{"159949":["创业板50"]}`)
	_, buys, err := ParseOperations("买入 创业板50 30%", resolver, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(buys) != 1 || buys[0].Code != "159949.SZ" {
		t.Fatalf("unexpected buys: %+v", buys)
	}
	// 比例片段不能留在名称里，否则名称解析必然落空
	if buys[0].Name != "创业板50" || buys[0].Ratio != 30 {
		t.Errorf("buy wrong: %+v", buys[0])
	}
}

func TestParseOperationsDefaultsToFullSlice(t *testing.T) {
	// 全仓调仓的典型写法不带比例：卖出项已不在公布持仓里，
	// 缺省必须按整个配置仓位处理而不是 0
	resolver := newResolver(t, `{}`)
	sells, buys, err := ParseOperations(
		"卖出 科创50(588000); 买入 日经ETF(513520)",
		resolver, map[string]float64{"日经ETF": 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(sells) != 1 || len(buys) != 1 {
		t.Fatalf("got %d sells, %d buys", len(sells), len(buys))
	}
	if sells[0].Code != "588000.SH" || sells[0].Ratio != 100 {
		t.Errorf("sell wrong: %+v", sells[0])
	}
	if buys[0].Code != "513520.SH" || buys[0].Ratio != 100 {
		t.Errorf("buy wrong: %+v", buys[0])
	}
	if sells[0].SampleAmount != SampleTotalAsset {
		t.Errorf("sample amount wrong: %v", sells[0].SampleAmount)
	}
}

func TestParseOperationsBuyWithoutCodeFails(t *testing.T) {
	resolver := newResolver(t, `{}`)
	if _, _, err := ParseOperations("买入 查无此股 30%", resolver, nil); err == nil {
		t.Fatal("expected hard error for unresolvable buy name")
	}
}

func TestParseOperationsSellWithoutCodeSkipped(t *testing.T) {
	resolver := newResolver(t, `{}`)
	sells, _, err := ParseOperations("卖出 查无此股", resolver, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(sells) != 0 {
		t.Fatalf("unresolvable sell should be skipped: %+v", sells)
	}
}

func TestWriteAndMergeDrafts(t *testing.T) {
	dir := t.TempDir()

	d1 := Draft{
		SellEntries: []Entry{{Name: "银华日利", Code: "511880.SH", Ratio: 60}},
		Meta:        Meta{BatchNo: 2, StrategyID: "26688"},
	}
	d2 := Draft{
		BuyEntries: []Entry{{Name: "创业板50", Code: "159949.SZ", Ratio: 40}},
		Meta:       Meta{BatchNo: 2, StrategyID: "30912"},
	}
	if _, err := WriteDraft(dir, d1); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteDraft(dir, d2); err != nil {
		t.Fatal(err)
	}
	// 其他批次的草稿不应被卷入
	if _, err := WriteDraft(dir, Draft{Meta: Meta{BatchNo: 3, StrategyID: "11111"}}); err != nil {
		t.Fatal(err)
	}

	path, merged, err := MergeBatch(context.Background(), dir, 2)
	if err != nil {
		t.Fatal(err)
	}

	if len(merged.SellEntries) != 1 || len(merged.BuyEntries) != 1 {
		t.Fatalf("merged entries wrong: %+v", merged)
	}
	if len(merged.Meta.MergedFrom) != 2 {
		t.Errorf("merged_from wrong: %v", merged.Meta.MergedFrom)
	}
	if merged.Meta.Empty {
		t.Error("merged draft should not be empty")
	}
	if !strings.Contains(filepath.Base(path), "merged_batch2") {
		t.Errorf("merged filename wrong: %s", path)
	}

	// 源文件应被归档
	left, _ := filepath.Glob(filepath.Join(dir, "yunfei_trade_plan_draft_batch2_*.json"))
	if len(left) != 0 {
		t.Errorf("sources not archived: %v", left)
	}
	archived, _ := filepath.Glob(filepath.Join(dir, "processed", "yunfei_trade_plan_draft_batch2_*.json"))
	if len(archived) != 2 {
		t.Errorf("expected 2 archived drafts, got %d", len(archived))
	}

	// 再次合并应得到空稿
	_, merged2, err := MergeBatch(context.Background(), dir, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !merged2.Meta.Empty {
		t.Error("second merge should be empty")
	}
}

func snapshot(total, cash float64) *domain.AssetSnapshot {
	return &domain.AssetSnapshot{TotalAsset: total, Cash: cash, MarketValue: total - cash}
}

func TestBuildFinalSellBranches(t *testing.T) {
	positions := []domain.Position{{
		StockCode: "600000.SH", StockName: "A",
		Volume: 1500, CanUseVolume: 1500, AvgPrice: 6.67, MarketValue: 10000,
	}}

	// ratio_mv = 30000/10000 = 3.0 > 1.2 → 清仓可卖部分
	merged := Draft{SellEntries: []Entry{{Name: "A", Code: "600000.SH", Ratio: 30}}}
	plan, err := BuildFinal(merged, snapshot(100000, 50000), positions, 1.0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Sell) != 1 || plan.Sell[0].ActualLots != 1500 {
		t.Fatalf("branch (b) wrong: %+v", plan.Sell)
	}
	if plan.Sell[0].Lots != LotsSentinel {
		t.Errorf("lots sentinel missing: %+v", plan.Sell[0])
	}

	// ratio_mv = 10000/10000 = 1.0 → 区间内同样清仓
	merged = Draft{SellEntries: []Entry{{Name: "A", Code: "600000.SH", Ratio: 10}}}
	plan, err = BuildFinal(merged, snapshot(100000, 50000), positions, 1.0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Sell[0].ActualLots != 1500 {
		t.Errorf("branch (a) wrong: %+v", plan.Sell)
	}

	// ratio_mv = 5000/10000 = 0.5 → 按成本估手数：ceil(5000/6.67/100)*100 = 800
	merged = Draft{SellEntries: []Entry{{Name: "A", Code: "600000.SH", Ratio: 5}}}
	plan, err = BuildFinal(merged, snapshot(100000, 50000), positions, 1.0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Sell[0].ActualLots != 800 {
		t.Errorf("branch (c) wrong: %+v", plan.Sell)
	}

	// avg_price = 0 且计划金额不足时条目报错跳过
	positions[0].AvgPrice = 0
	merged = Draft{SellEntries: []Entry{{Name: "A", Code: "600000.SH", Ratio: 5}}}
	plan, err = BuildFinal(merged, snapshot(100000, 50000), positions, 1.0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Sell) != 0 {
		t.Errorf("branch (d) should skip: %+v", plan.Sell)
	}
}

func TestBuildFinalBuySizing(t *testing.T) {
	merged := Draft{BuyEntries: []Entry{{Name: "B", Code: "159949.SZ", Ratio: 10}}}
	plan, err := BuildFinal(merged, snapshot(500000, 500000), nil, 1.0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Buy) != 1 || plan.Buy[0].Amount != 50000 {
		t.Fatalf("buy sizing wrong: %+v", plan.Buy)
	}
}

func TestBuildFinalOverlapDropped(t *testing.T) {
	merged := Draft{
		SellEntries: []Entry{{Name: "X", Code: "600000.SH", Ratio: 10}},
		BuyEntries:  []Entry{{Name: "X", Code: "600000.SH", Ratio: 10}},
	}
	positions := []domain.Position{{StockCode: "600000.SH", CanUseVolume: 1000, AvgPrice: 10, MarketValue: 10000}}
	plan, err := BuildFinal(merged, snapshot(100000, 100000), positions, 1.0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Sell) != 0 || len(plan.Buy) != 0 {
		t.Errorf("overlap should be dropped from both sides: %+v", plan)
	}
}

func TestBuildFinalMergesSameNameRatios(t *testing.T) {
	merged := Draft{BuyEntries: []Entry{
		{Name: "B", Code: "159949.SZ", Ratio: 10},
		{Name: "B", Code: "159949.SZ", Ratio: 5},
	}}
	plan, err := BuildFinal(merged, snapshot(100000, 100000), nil, 1.0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Buy) != 1 || plan.Buy[0].Amount != 15000 {
		t.Fatalf("ratio merge wrong: %+v", plan.Buy)
	}
}
