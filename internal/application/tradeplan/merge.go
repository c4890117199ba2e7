package tradeplan

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// MergeBatch 把批次目录下的全部草稿合并为一份合并稿。
// 源文件读取时各自持锁；合并稿文件名嵌入内容哈希前 8 位；
// 源文件合并后改名归档到 processed/ 目录。
func MergeBatch(ctx context.Context, planDir string, batchNo int) (string, Draft, error) {
	merged := Draft{Meta: Meta{
		BatchNo:   batchNo,
		CreatedAt: time.Now().Format(time.RFC3339),
	}}

	pattern := fmt.Sprintf("yunfei_trade_plan_draft_batch%d_*.json", batchNo)
	paths, err := filepath.Glob(filepath.Join(planDir, pattern))
	if err != nil {
		return "", merged, err
	}
	var sources []string
	for _, p := range paths {
		base := filepath.Base(p)
		if strings.Contains(base, "merged") || strings.Contains(base, "final") {
			continue
		}
		sources = append(sources, p)
	}
	sort.Strings(sources)

	for _, src := range sources {
		draft, err := readDraftLocked(ctx, src)
		if err != nil {
			log.Error().Str("file", src).Err(err).Msg("draft read failed, skipped from merge")
			continue
		}
		merged.SellEntries = append(merged.SellEntries, draft.SellEntries...)
		merged.BuyEntries = append(merged.BuyEntries, draft.BuyEntries...)
		merged.Meta.MergedFrom = append(merged.Meta.MergedFrom, filepath.Base(src))
	}

	merged.Meta.Empty = len(merged.SellEntries) == 0 && len(merged.BuyEntries) == 0

	name := fmt.Sprintf("yunfei_trade_plan_merged_batch%d_%s_%s.json",
		batchNo, time.Now().Format("20060102150405"), contentHash(merged))
	path := filepath.Join(planDir, name)
	if err := writeAtomic(path, merged); err != nil {
		return "", merged, err
	}

	archiveDir := filepath.Join(planDir, "processed")
	if err := os.MkdirAll(archiveDir, 0o755); err == nil {
		for _, src := range sources {
			if err := os.Rename(src, filepath.Join(archiveDir, filepath.Base(src))); err != nil {
				log.Warn().Str("file", src).Err(err).Msg("draft archive failed")
			}
		}
	}

	return path, merged, nil
}

// contentHash 对合并稿的规范 JSON 取 sha1 前 8 位十六进制
func contentHash(d Draft) string {
	b, err := json.Marshal(d)
	if err != nil {
		return "00000000"
	}
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])[:8]
}
