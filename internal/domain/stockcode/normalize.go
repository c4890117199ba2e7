// Package stockcode 统一 A 股代码格式：6 位代码 + 市场后缀（SH/SZ）。
// 持仓、指数文件和策略页面对同一只股票可能使用不同写法，
// 所有比较前都先经过这里归一化。
package stockcode

import (
	"regexp"
	"strings"
)

var (
	suffixedRe = regexp.MustCompile(`^(\d{6})\.(SH|SZ)$`)
	bareRe     = regexp.MustCompile(`^\d{6}$`)
)

// Normalize 返回带后缀的规范形式。
// 已带后缀的输入只做大写处理；裸 6 位代码按首位数字推断市场
// （6/5/8/9 归上交所，其余归深交所）；无法识别的输入原样返回。
func Normalize(code string) string {
	c := strings.TrimSpace(code)
	upper := strings.ToUpper(c)
	if suffixedRe.MatchString(upper) {
		return upper
	}
	if bareRe.MatchString(c) {
		return c + inferSuffix(c)
	}
	return c
}

func inferSuffix(base string) string {
	switch base[0] {
	case '6', '5', '8', '9':
		return ".SH"
	default:
		return ".SZ"
	}
}

// Base 去掉市场后缀，返回 6 位基础代码
func Base(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if m := suffixedRe.FindStringSubmatch(c); m != nil {
		return m[1]
	}
	return strings.TrimSpace(code)
}

// Variants 返回按优先级排列的候选键列表，
// 用于在带不带后缀混用的字典里探测同一只股票。
// 首元素恒等于 Normalize(code)。
func Variants(code string) []string {
	c := strings.TrimSpace(code)
	upper := strings.ToUpper(c)

	if m := suffixedRe.FindStringSubmatch(upper); m != nil {
		base := m[1]
		return dedup([]string{upper, base + ".SH", base + ".SZ", base})
	}
	if bareRe.MatchString(c) {
		pref := inferSuffix(c)
		other := ".SZ"
		if pref == ".SZ" {
			other = ".SH"
		}
		return []string{c + pref, c + other, c}
	}
	return []string{c}
}

func dedup(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// MatchInMap 按 Variants 顺序探测 m，返回第一个命中的键
func MatchInMap[V any](code string, m map[string]V) (string, bool) {
	for _, v := range Variants(code) {
		if _, ok := m[v]; ok {
			return v, true
		}
	}
	return "", false
}
