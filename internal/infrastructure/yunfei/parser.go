package yunfei

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Holding 策略公布的单只持仓
type Holding struct {
	Name      string
	Pct       float64
	HasPct    bool
	ProfitStr string
	ProfitPct float64
}

// EmptySentinel 空仓哨兵名称
const EmptySentinel = "空仓"

// Action 操作文本分类结果
type Action string

const (
	ActionBuySell Action = "buy_sell"
	ActionHold    Action = "hold"
	ActionEmpty   Action = "empty"
	ActionUnknown Action = "unknown"
)

// StrategyItem 解析出的单条已跟策略
type StrategyItem struct {
	ShortID  int
	Title    string
	DetailID int
	Time     string // "YYYY-MM-DD HH:MM"
	OpText   string
	Action   Action
	Holdings []Holding
}

// Date 返回发布日期部分
func (it StrategyItem) Date() string {
	if len(it.Time) >= 10 {
		return it.Time[:10]
	}
	return ""
}

var (
	detailRe  = regexp.MustCompile(`c_detail\.aspx\?id=(\d+)`)
	timeRe    = regexp.MustCompile(`\[(\d{4}-\d{2}-\d{2} \d{2}:\d{2})\]`)
	shortIDRe = regexp.MustCompile(`^L(\d+)[:：]`)
	brTagRe   = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagRe     = regexp.MustCompile(`<[^>]+>`)
	profitRe  = regexp.MustCompile(`\[([+-]?\d+(?:\.\d+)?)%\]`)
	holdingRe = regexp.MustCompile(`^(.+?)[:：]\s*([+-]?\d+(?:\.\d+)?)\s*%$`)
	noiseRe   = regexp.MustCompile(`^持仓第\d+`)
	splitRe   = regexp.MustCompile(`[;；,，/]`)
)

// Parse 从已跟策略页面提取全部策略条目。
// 每个策略块是一张含 c_detail 链接的结果表。
func Parse(htmlText string) ([]StrategyItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil, err
	}

	var items []StrategyItem
	seen := map[int]bool{}

	doc.Find(`a[href*="c_detail.aspx?id="]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := detailRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		detailID, _ := strconv.Atoi(m[1])
		if seen[detailID] {
			return
		}

		block := a.Closest("table")
		if block.Length() == 0 {
			return
		}
		seen[detailID] = true

		item := StrategyItem{
			DetailID: detailID,
			Title:    strings.TrimSpace(a.Text()),
		}
		if sm := shortIDRe.FindStringSubmatch(item.Title); sm != nil {
			item.ShortID, _ = strconv.Atoi(sm[1])
		}

		blockText := block.Text()
		if tm := timeRe.FindStringSubmatch(blockText); tm != nil {
			item.Time = tm[1]
		}

		// 操作行由站点用 im="1" 标记
		item.OpText = strings.TrimSpace(block.Find(`[im="1"]`).First().Text())
		item.Action = ClassifyAction(item.OpText)

		// 持仓列表在 "目前持仓" 标题之后的 td.td_top 里
		if strings.Contains(blockText, "目前持仓") {
			cell := block.Find("td.td_top").First()
			if cell.Length() > 0 {
				if inner, err := cell.Html(); err == nil {
					item.Holdings = ParseHoldings(inner)
				}
			}
		}

		items = append(items, item)
	})

	return items, nil
}

// ClassifyAction 按关键字对操作文本分类
func ClassifyAction(op string) Action {
	op = strings.TrimSpace(op)
	for _, kw := range []string{"买入", "卖出", "换入", "换出", "调仓"} {
		if strings.Contains(op, kw) {
			return ActionBuySell
		}
	}
	if strings.Contains(op, "空仓") {
		return ActionEmpty
	}
	if strings.Contains(op, "继续持有") {
		return ActionHold
	}
	return ActionUnknown
}

// ParseHoldings 解析持仓单元格的内层 HTML。
// 先按 <br> 切段，每段先摘掉形如 [+1.23%] 的收益标注，
// 再按 ;；,，/ 细分并解析 name：pct% 对。
// 纯收益标注的碎片绝不会变成持仓；空仓哨兵原样保留。
func ParseHoldings(inner string) []Holding {
	var out []Holding
	type key struct {
		name   string
		pct    float64
		profit string
	}
	seen := map[key]bool{}

	add := func(h Holding) {
		k := key{h.Name, h.Pct, h.ProfitStr}
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, h)
	}

	for _, segment := range brTagRe.Split(inner, -1) {
		text := html.UnescapeString(tagRe.ReplaceAllString(segment, ""))
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		profitStr := ""
		profitPct := 0.0
		if pm := profitRe.FindStringSubmatch(text); pm != nil {
			profitStr = pm[1] + "%"
			profitPct, _ = strconv.ParseFloat(pm[1], 64)
			text = strings.TrimSpace(profitRe.ReplaceAllString(text, ""))
		}
		if text == "" {
			continue // 只剩收益标注的碎片
		}

		for _, piece := range splitRe.Split(text, -1) {
			piece = strings.TrimSpace(piece)
			if piece == "" || noiseRe.MatchString(piece) || strings.Contains(piece, "暂不调仓") {
				continue
			}
			if piece == EmptySentinel {
				add(Holding{Name: EmptySentinel})
				continue
			}
			hm := holdingRe.FindStringSubmatch(piece)
			if hm == nil {
				continue
			}
			pct, err := strconv.ParseFloat(hm[2], 64)
			if err != nil {
				continue
			}
			add(Holding{
				Name:      strings.TrimSpace(hm[1]),
				Pct:       pct,
				HasPct:    true,
				ProfitStr: profitStr,
				ProfitPct: profitPct,
			})
		}
	}
	return out
}
