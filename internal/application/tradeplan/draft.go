// Package tradeplan 负责交易计划的三级物化：
// 每策略草稿 → 每批次合并稿 → 按账户资产定型的最终计划。
package tradeplan

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"yfollow/internal/domain/stockcode"
)

// SampleTotalAsset 草稿里示例金额对应的参考总资产
const SampleTotalAsset = 680000.0

// Entry 草稿里的一条买卖目标
type Entry struct {
	Name         string  `json:"name"`
	Code         string  `json:"code"`
	Ratio        float64 `json:"ratio"`
	SampleAmount float64 `json:"sample_amount,omitempty"`
}

// Meta 草稿元信息
type Meta struct {
	BatchNo          int      `json:"batch_no"`
	StrategyID       string   `json:"strategy_id"`
	CreatedAt        string   `json:"created_at"`
	MergedFrom       []string `json:"merged_from,omitempty"`
	Empty            bool     `json:"empty,omitempty"`
	SampleTotalAsset float64  `json:"sample_total_asset,omitempty"`
}

// Draft 每策略（或合并后每批次）的交易草稿
type Draft struct {
	SellEntries []Entry `json:"sell_entries"`
	BuyEntries  []Entry `json:"buy_entries"`
	Meta        Meta    `json:"meta"`
}

var (
	opTokenRe = regexp.MustCompile(`(买入|卖出)\s*(.+)`)
	codeAnnRe = regexp.MustCompile(`[（(]([\w.]+)[)）]`)
	ratioRe   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	opSplitRe = regexp.MustCompile(`[;；]`)
)

// ParseOperations 解析操作文本生成草稿条目。
// 文本形如 "买入 创业板50(159949) 40%；卖出 银华日利(511880.SH)"。
// 缺少代码注记时按名称解析；买入条目解析不到代码是硬错误，
// 卖出条目解析不到只记日志跳过。
// 条目缺省比例时先查 ratioByName（策略公布持仓），
// 再缺省按整个配置仓位（100）操作，清仓卖出正是这种写法。
func ParseOperations(op string, resolver *stockcode.Resolver, ratioByName map[string]float64) (sells, buys []Entry, err error) {
	for _, token := range opSplitRe.Split(op, -1) {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		m := opTokenRe.FindStringSubmatch(token)
		if m == nil {
			continue
		}
		action, rest := m[1], strings.TrimSpace(m[2])

		code := ""
		name := rest
		if cm := codeAnnRe.FindStringSubmatchIndex(rest); cm != nil {
			code = rest[cm[2]:cm[3]]
			name = strings.TrimSpace(rest[:cm[0]])
		}

		// 比例片段不属于名称，解析后去掉
		name = strings.TrimSpace(ratioRe.ReplaceAllString(name, ""))

		ratio := 100.0
		if rm := ratioRe.FindStringSubmatch(rest); rm != nil {
			ratio, _ = strconv.ParseFloat(rm[1], 64)
		} else if r, ok := ratioByName[name]; ok {
			ratio = r
		}

		if code == "" {
			if resolved, ok := resolver.ResolveName(name); ok {
				code = resolved
			}
		}
		if code == "" {
			if action == "买入" {
				return nil, nil, fmt.Errorf("buy target %q has no resolvable code", name)
			}
			log.Error().Str("name", name).Msg("sell target has no resolvable code, skipped")
			continue
		}

		entry := Entry{
			Name:         name,
			Code:         stockcode.Normalize(code),
			Ratio:        ratio,
			SampleAmount: ratio / 100 * SampleTotalAsset,
		}
		if action == "买入" {
			buys = append(buys, entry)
		} else {
			sells = append(sells, entry)
		}
	}
	return sells, buys, nil
}

// DraftFileName 生成互不冲突的草稿文件名：
// 批次 + 策略 ID + 时间戳 + 随机短后缀
func DraftFileName(batchNo int, strategyID string) string {
	return fmt.Sprintf("yunfei_trade_plan_draft_batch%d_strategy%s_%s_%s.json",
		batchNo, strategyID, time.Now().Format("20060102150405"), uuid.NewString()[:8])
}

// WriteDraft 在 planDir 下原子写入一份草稿，返回完整路径
func WriteDraft(planDir string, draft Draft) (string, error) {
	if draft.Meta.CreatedAt == "" {
		draft.Meta.CreatedAt = time.Now().Format(time.RFC3339)
	}
	if draft.Meta.SampleTotalAsset == 0 {
		draft.Meta.SampleTotalAsset = SampleTotalAsset
	}
	path := filepath.Join(planDir, DraftFileName(draft.Meta.BatchNo, draft.Meta.StrategyID))
	if err := writeAtomic(path, draft); err != nil {
		return "", err
	}
	return path, nil
}
