package tradeplan

import (
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"yfollow/internal/domain"
	"yfollow/internal/domain/stockcode"
)

// LotsSentinel 表示"全部可卖"的占位手数
const LotsSentinel int64 = 99999

// FinalSell 定型后的卖出条目
type FinalSell struct {
	Name       string `json:"name"`
	Code       string `json:"code"`
	Lots       int64  `json:"lots"`
	ActualLots int64  `json:"actual_lots"`
}

// FinalBuy 定型后的买入条目
type FinalBuy struct {
	Name   string `json:"name"`
	Code   string `json:"code"`
	Amount int64  `json:"amount"`
}

// FinalPlan 按账户资产定型的最终交易计划
type FinalPlan struct {
	Sell []FinalSell `json:"sell"`
	Buy  []FinalBuy  `json:"buy"`
	Meta Meta        `json:"meta"`
}

// LotFunc 查询合约手数；返回 0 时用默认手数
type LotFunc func(code string) int64

// BuildFinal 把合并稿折算成最终计划。
// 卖出数量按计划金额与实际市值的比值分档：
// 接近时清仓可卖部分；明显超出时也清仓并告警；
// 明显不足时按成本价估算手数，上限为可卖数量。
func BuildFinal(merged Draft, snapshot *domain.AssetSnapshot, positions []domain.Position,
	proportion float64, lotOf LotFunc) (*FinalPlan, error) {
	if snapshot == nil || snapshot.TotalAsset <= 0 {
		return nil, fmt.Errorf("missing asset snapshot")
	}

	sells := mergeByName(merged.SellEntries)
	buys := mergeByName(merged.BuyEntries)

	// 同名同时出现在买卖两侧说明上游解析有误，两侧都剔除
	for name := range sells {
		if _, clash := buys[name]; clash {
			log.Error().Str("name", name).Msg("name appears on both buy and sell side, dropped")
			delete(sells, name)
			delete(buys, name)
		}
	}

	posByCode := map[string]domain.Position{}
	for _, p := range positions {
		posByCode[p.StockCode] = p
	}

	lot := func(code string) int64 {
		if lotOf != nil {
			if l := lotOf(code); l > 0 {
				return l
			}
		}
		return domain.DefaultBoardLot
	}

	plan := &FinalPlan{Meta: Meta{
		BatchNo:    merged.Meta.BatchNo,
		CreatedAt:  time.Now().Format(time.RFC3339),
		MergedFrom: merged.Meta.MergedFrom,
	}}

	estProceeds := 0.0
	for _, e := range orderedEntries(merged.SellEntries, sells) {
		key, ok := stockcode.MatchInMap(e.Code, posByCode)
		if !ok {
			log.Error().Str("name", e.Name).Str("code", e.Code).Msg("sell target not in positions, skipped")
			continue
		}
		pos := posByCode[key]
		boardLot := lot(e.Code)
		if pos.MarketValue <= 0 {
			log.Error().Str("code", e.Code).Msg("sell target has zero market value, skipped")
			continue
		}

		stockOpMoney := snapshot.TotalAsset * proportion * e.Ratio / 100
		ratioMV := stockOpMoney / pos.MarketValue

		var actual int64
		switch {
		case ratioMV >= 0.8 && ratioMV <= 1.2:
			actual = floorLot(pos.CanUseVolume, boardLot)
		case ratioMV > 1.2:
			actual = floorLot(pos.CanUseVolume, boardLot)
			log.Warn().Str("code", e.Code).Float64("ratio_mv", ratioMV).
				Msg("plan money exceeds holding, selling all available")
		case pos.AvgPrice > 0:
			lots := int64(math.Ceil(stockOpMoney/pos.AvgPrice/float64(boardLot))) * boardLot
			if lots > pos.CanUseVolume {
				lots = pos.CanUseVolume
			}
			actual = floorLot(lots, boardLot)
		default:
			log.Error().Str("code", e.Code).Msg("avg price unavailable, sell skipped")
			continue
		}
		if actual <= 0 {
			log.Warn().Str("code", e.Code).Msg("sellable volume below board lot, skipped")
			continue
		}

		plan.Sell = append(plan.Sell, FinalSell{
			Name: e.Name, Code: e.Code, Lots: LotsSentinel, ActualLots: actual,
		})
		if pos.AvgPrice > 0 {
			estProceeds += pos.AvgPrice * float64(actual)
		} else {
			estProceeds += pos.MarketValue
		}
	}

	buyTotal := 0.0
	for _, e := range orderedEntries(merged.BuyEntries, buys) {
		amount := int64(math.Floor(snapshot.TotalAsset * proportion * e.Ratio / 100))
		if amount <= 0 {
			continue
		}
		plan.Buy = append(plan.Buy, FinalBuy{Name: e.Name, Code: e.Code, Amount: amount})
		buyTotal += float64(amount)
	}

	// 资金可行性只告警，计划照常产出
	if headroom := snapshot.Cash + estProceeds - buyTotal; headroom < 0 {
		log.Error().Float64("headroom", headroom).
			Msg("plan likely underfunded: buys exceed cash plus estimated sell proceeds")
	}

	return plan, nil
}

// mergeByName 同名条目比例求和
func mergeByName(entries []Entry) map[string]Entry {
	out := map[string]Entry{}
	for _, e := range entries {
		if cur, ok := out[e.Name]; ok {
			cur.Ratio += e.Ratio
			out[e.Name] = cur
		} else {
			out[e.Name] = e
		}
	}
	return out
}

// orderedEntries 按首次出现顺序返回合并结果
func orderedEntries(raw []Entry, merged map[string]Entry) []Entry {
	var out []Entry
	seen := map[string]bool{}
	for _, e := range raw {
		if seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		if m, ok := merged[e.Name]; ok {
			out = append(out, m)
		}
	}
	return out
}

func floorLot(v, lot int64) int64 {
	if lot <= 0 {
		lot = domain.DefaultBoardLot
	}
	return v / lot * lot
}

// WriteFinal 原子落盘最终计划
func WriteFinal(planDir string, plan *FinalPlan) (string, error) {
	name := fmt.Sprintf("yunfei_trade_plan_final_batch%d_%s.json",
		plan.Meta.BatchNo, time.Now().Format("20060102150405"))
	path := filepath.Join(planDir, name)
	if err := writeAtomic(path, plan); err != nil {
		return "", err
	}
	return path, nil
}
