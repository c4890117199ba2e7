package yunfei

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
)

// Fetch 结果的 warning 取值
const (
	WarnNone        = ""
	WarnLoginFailed = "login_failed"
	WarnNotLoggedIn = "not_logged_in"
	WarnRateLimited = "rate_limited"
)

// FetchResult 一次页面抓取的产物
type FetchResult struct {
	FetchedAt time.Time      `json:"fetched_at"`
	HTML      string         `json:"html,omitempty"`
	Warning   string         `json:"warning"`
	Items     []StrategyItem `json:"items"`
}

func (r FetchResult) OK() bool { return r.Warning == WarnNone }

// Fetcher 在会话之上加一层带 TTL 的文件缓存。
// 同机多账户进程共享同一用户的缓存文件，用文件锁串行化写入。
type Fetcher struct {
	session    *Session
	followPath string
	cacheDir   string
	cacheTTL   time.Duration
	saveRaw    bool
	cacheKey   string
}

func NewFetcher(session *Session, followPath, cacheDir string, cacheTTL time.Duration, saveRaw bool) *Fetcher {
	return &Fetcher{
		session:    session,
		followPath: followPath,
		cacheDir:   cacheDir,
		cacheTTL:   cacheTTL,
		saveRaw:    saveRaw,
		cacheKey:   session.username,
	}
}

// Fetch 抓取并解析已跟策略页。
// 缓存命中且未过期直接返回缓存；抓取失败时退回过期缓存并保留 warning。
func (f *Fetcher) Fetch(ctx context.Context) FetchResult {
	if cached, ok := f.loadCache(false); ok {
		return cached
	}
	return f.Refresh(ctx)
}

// Refresh 跳过新鲜缓存直接抓取，等待策略更新的轮询必须走这里，
// 否则轮到的是缓存里调仓前的旧页面。抓取失败仍退回过期缓存。
func (f *Fetcher) Refresh(ctx context.Context) FetchResult {
	result := f.fetchLive(ctx)
	if result.OK() {
		f.storeCache(result)
		return result
	}

	// 抓取失败：有过期缓存就用，warning 原样带出
	if stale, ok := f.loadCache(true); ok {
		log.Warn().Str("warning", result.Warning).Msg("fetch failed, falling back to stale cache")
		stale.Warning = result.Warning
		return stale
	}
	return result
}

func (f *Fetcher) fetchLive(ctx context.Context) FetchResult {
	result := FetchResult{FetchedAt: time.Now()}

	if !f.session.LoggedIn() {
		if err := f.session.Login(ctx); err != nil {
			result.Warning = WarnLoginFailed
			return result
		}
	}

	html, err := f.session.FetchProtected(ctx, f.followPath)
	result.HTML = html
	switch {
	case errors.Is(err, ErrRateLimited):
		result.Warning = WarnRateLimited
		return result
	case errors.Is(err, ErrLoginFailed):
		result.Warning = WarnNotLoggedIn
		return result
	case err != nil:
		result.Warning = "fetch_error:" + err.Error()
		return result
	}

	items, err := Parse(html)
	if err != nil {
		result.Warning = "parse_error:" + err.Error()
		return result
	}
	result.Items = items

	if f.saveRaw {
		f.saveRawHTML(result)
	}
	return result
}

func (f *Fetcher) cachePath() string {
	return filepath.Join(f.cacheDir, fmt.Sprintf("follow_cache_%s.json", f.cacheKey))
}

func (f *Fetcher) loadCache(allowStale bool) (FetchResult, bool) {
	if f.cacheDir == "" {
		return FetchResult{}, false
	}
	b, err := os.ReadFile(f.cachePath())
	if err != nil {
		return FetchResult{}, false
	}
	var cached FetchResult
	if err := json.Unmarshal(b, &cached); err != nil {
		return FetchResult{}, false
	}
	if !allowStale && time.Since(cached.FetchedAt) > f.cacheTTL {
		return FetchResult{}, false
	}
	return cached, true
}

func (f *Fetcher) storeCache(result FetchResult) {
	if f.cacheDir == "" {
		return
	}
	if err := os.MkdirAll(f.cacheDir, 0o755); err != nil {
		log.Warn().Err(err).Msg("cache dir create failed")
		return
	}

	lock := flock.New(f.cachePath() + ".lock")
	locked, err := lock.TryLock()
	if err != nil || !locked {
		return // 别的进程正在写，跳过
	}
	defer lock.Unlock()

	slim := result
	slim.HTML = "" // 缓存不落原始 HTML
	b, err := json.Marshal(slim)
	if err != nil {
		return
	}
	tmp := f.cachePath() + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, f.cachePath())
}

func (f *Fetcher) saveRawHTML(result FetchResult) {
	dir := filepath.Join(f.cacheDir, "raw")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	stamp := result.FetchedAt.Format("20060102_150405")
	_ = os.WriteFile(filepath.Join(dir, "b_follow_"+stamp+".html"), []byte(result.HTML), 0o644)
	if b, err := json.MarshalIndent(result.Items, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "b_follow_"+stamp+".json"), b, 0o644)
	}
}
