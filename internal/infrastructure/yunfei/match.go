package yunfei

import (
	"regexp"
	"strconv"
	"strings"
)

var bracketRe = regexp.MustCompile(`[（(【]([^（）()【】]*)[)）】]`)

// MatchTitle 判断某条已跟策略是否对应配置的策略。
// 优先规则：页面标题以配置名称结尾（标题常带 L12345: 前缀）。
// 兜底规则：配置策略 ID 去掉末位后是页面 detail id 的前缀，
// 且两边名称的括号内容一致。
func MatchTitle(item StrategyItem, strategyID, strategyName string) bool {
	title := strings.TrimSpace(item.Title)
	name := strings.TrimSpace(strategyName)
	if name != "" && strings.HasSuffix(title, name) {
		return true
	}

	if len(strategyID) < 2 {
		return false
	}
	prefix := strategyID[:len(strategyID)-1]
	detail := strconv.Itoa(item.DetailID)
	if !strings.HasPrefix(detail, prefix) {
		return false
	}
	tb := bracketContent(title)
	nb := bracketContent(name)
	return tb != "" && tb == nb
}

func bracketContent(s string) string {
	if m := bracketRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
