// Package reconcile 把外部策略公布的持仓比例折算成本账户的目标金额，
// 与券商实际持仓逐只对账。
package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"yfollow/internal/domain"
	"yfollow/internal/domain/stockcode"
)

const (
	GroupBoth          = "both"
	GroupYunfeiOnly    = "yunfei_only"
	GroupPositionsOnly = "positions_only"
)

const unknownName = "未知股票"

var ErrNoAssetSnapshot = errors.New("missing asset snapshot")

// Holding 一条公布持仓（已与配置匹配）
type Holding struct {
	Name   string
	Pct    float64
	HasPct bool
}

// MatchedStrategy 配置项与其命中的公布策略
type MatchedStrategy struct {
	StrategyID   string
	StrategyName string
	ConfigPct    float64 // [0,100]
	Holdings     []Holding
}

// DraftEntry 最终计划文件里的一条目标，pct 与金额二选一
type DraftEntry struct {
	Name   string
	Code   string
	Pct    *float64
	Amount *float64
}

// Input 一次对账的全部输入
type Input struct {
	AccountID  string
	TotalAsset float64
	Proportion float64 // (0,1]
	Strategies []MatchedStrategy
	Positions  []domain.Position
	Drafts     []DraftEntry
	// Drafts 里金额项的参考总资产，>0 时按比例折算到本账户
	DraftReferenceTotal float64
}

// Row 对账报告里的一行
type Row struct {
	StockCode          string          `json:"stock_code"`
	StockName          string          `json:"stock_name"`
	Group              string          `json:"group"`
	ExpectedMoney      decimal.Decimal `json:"expected_money"`
	CurrentMarketValue decimal.Decimal `json:"current_market_value"`
	DiffMoney          decimal.Decimal `json:"diff_money"`
	PercentDiff        float64         `json:"percent_diff"`
}

// Report 一次对账的产物
type Report struct {
	AccountID   string    `json:"account_id"`
	GeneratedAt time.Time `json:"generated_at"`
	TotalAsset  float64   `json:"total_asset"`
	Proportion  float64   `json:"proportion"`
	Rows        []Row     `json:"rows"`
}

type currentState struct {
	name string
	mv   decimal.Decimal
	raw  string // 券商返回的原始代码
}

// Build 生成对账报告。资产快照缺失是硬错误；持仓缺失按空仓处理。
func Build(in Input, resolver *stockcode.Resolver) (*Report, error) {
	if in.TotalAsset <= 0 {
		return nil, ErrNoAssetSnapshot
	}
	proportion := in.Proportion
	if proportion <= 0 || proportion > 1 {
		return nil, fmt.Errorf("proportion %v out of (0,1]", proportion)
	}

	total := decimal.NewFromFloat(in.TotalAsset)
	prop := decimal.NewFromFloat(proportion)
	hundred := decimal.NewFromInt(100)

	expectedByCode := map[string]decimal.Decimal{} // base6 → money
	expectedName := map[string]string{}            // base6 → 公布名称
	expectedByName := map[string]decimal.Decimal{} // 无法解析代码的名称

	addExpected := func(name string, money decimal.Decimal) {
		if code, ok := resolver.ResolveName(name); ok {
			base := stockcode.Base(code)
			expectedByCode[base] = expectedByCode[base].Add(money)
			if _, exists := expectedName[base]; !exists {
				expectedName[base] = name
			}
			return
		}
		expectedByName[name] = expectedByName[name].Add(money)
	}

	for _, st := range in.Strategies {
		cfgPct := decimal.NewFromFloat(st.ConfigPct).Div(hundred)
		for _, h := range st.Holdings {
			if h.Name == "空仓" || !h.HasPct {
				continue
			}
			money := decimal.NewFromFloat(h.Pct).Div(hundred).
				Mul(cfgPct).Mul(total).Mul(prop).Round(2)
			addExpected(h.Name, money)
		}
	}

	for _, d := range in.Drafts {
		var money decimal.Decimal
		switch {
		case d.Pct != nil:
			money = decimal.NewFromFloat(*d.Pct).Div(hundred).Mul(total).Mul(prop).Round(2)
		case d.Amount != nil && in.DraftReferenceTotal > 0:
			money = decimal.NewFromFloat(*d.Amount).
				Mul(total).Div(decimal.NewFromFloat(in.DraftReferenceTotal)).Round(2)
		case d.Amount != nil:
			money = decimal.NewFromFloat(*d.Amount).Mul(prop).Round(2)
		default:
			continue
		}
		name := d.Name
		if d.Code != "" {
			base := stockcode.Base(stockcode.Normalize(d.Code))
			expectedByCode[base] = expectedByCode[base].Add(money)
			if _, exists := expectedName[base]; !exists && name != "" {
				expectedName[base] = name
			}
			continue
		}
		addExpected(name, money)
	}

	current := map[string]*currentState{} // base6 → 状态
	for _, p := range in.Positions {
		base := stockcode.Base(stockcode.Normalize(p.StockCode))
		st, ok := current[base]
		if !ok {
			st = &currentState{name: p.StockName, raw: p.StockCode}
			current[base] = st
		}
		st.mv = st.mv.Add(decimal.NewFromFloat(p.MarketValue))
	}

	var rows []Row
	addRow := func(code, name, group string, expected, cur decimal.Decimal) {
		expected = expected.Round(2)
		cur = cur.Round(2)
		if expected.IsZero() && cur.IsZero() {
			return
		}
		diff := expected.Sub(cur)
		pct := 100.0
		if cur.IsPositive() {
			pct, _ = diff.Div(cur).Mul(decimal.NewFromInt(100)).Round(2).Float64()
		}
		rows = append(rows, Row{
			StockCode:          code,
			StockName:          name,
			Group:              group,
			ExpectedMoney:      expected,
			CurrentMarketValue: cur,
			DiffMoney:          diff,
			PercentDiff:        pct,
		})
	}

	for base, expected := range expectedByCode {
		cur, held := current[base]
		code := displayCode(base, cur)
		name := displayName(base, expectedName[base], cur, resolver)
		if held {
			addRow(code, name, GroupBoth, expected, cur.mv)
			delete(current, base)
		} else {
			addRow(code, name, GroupYunfeiOnly, expected, decimal.Zero)
		}
	}
	for name, expected := range expectedByName {
		addRow("", name, GroupYunfeiOnly, expected, decimal.Zero)
	}
	for base, cur := range current {
		code := displayCode(base, cur)
		name := displayName(base, "", cur, resolver)
		addRow(code, name, GroupPositionsOnly, decimal.Zero, cur.mv)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].DiffMoney.Abs().GreaterThan(rows[j].DiffMoney.Abs())
	})

	return &Report{
		AccountID:   in.AccountID,
		GeneratedAt: time.Now(),
		TotalAsset:  in.TotalAsset,
		Proportion:  proportion,
		Rows:        rows,
	}, nil
}

// displayCode 优先带市场后缀的写法
func displayCode(base string, cur *currentState) string {
	if cur != nil && strings.Contains(cur.raw, ".") {
		return strings.ToUpper(cur.raw)
	}
	return stockcode.Normalize(base)
}

// displayName 优先非数字且非占位的名称
func displayName(base, published string, cur *currentState, resolver *stockcode.Resolver) string {
	candidates := []string{}
	if cur != nil {
		candidates = append(candidates, cur.name)
	}
	candidates = append(candidates, published)
	for _, c := range candidates {
		if c != "" && c != unknownName && !isNumeric(c) {
			return c
		}
	}
	if name, ok := resolver.ResolveCode(base); ok {
		return name
	}
	return unknownName
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
