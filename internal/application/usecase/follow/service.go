// Package follow 是跟单批次的协调器：抓取已跟策略页，
// 为本批次命中的策略生成草稿，合并后折算成最终计划并执行，
// 全部策略当日更新后才落下幂等完成标记。
package follow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"yfollow/internal/application/executor"
	"yfollow/internal/application/port"
	"yfollow/internal/application/reconcile"
	"yfollow/internal/application/tradeplan"
	"yfollow/internal/domain"
	"yfollow/internal/domain/stockcode"
	"yfollow/internal/infrastructure/batchstate"
	"yfollow/internal/infrastructure/config"
	"yfollow/internal/infrastructure/metrics"
	"yfollow/internal/infrastructure/yunfei"
)

// PageFetcher 已跟策略页抓取能力，*yunfei.Fetcher 满足。
// Refresh 绕开新鲜缓存强制抓取。
type PageFetcher interface {
	Fetch(ctx context.Context) yunfei.FetchResult
	Refresh(ctx context.Context) yunfei.FetchResult
}

// SessionControl 站点会话控制能力，*yunfei.Session 满足
type SessionControl interface {
	LoggedIn() bool
	Login(ctx context.Context) error
	Reset()
}

type ServiceDeps struct {
	Gateway     port.Gateway
	Repo        port.Repository
	Fetcher     PageFetcher
	Session     SessionControl
	Resolver    *stockcode.Resolver
	Pending     *batchstate.PendingStore
	Executor    *executor.Executor
	Allocations []config.AllocationEntry
	AccountID   string
	DataDir     string
	PlanDir     string
	Proportion  float64
}

type Service struct {
	deps ServiceDeps

	loginAttempts int
	loginGap      time.Duration
	refetchGap    time.Duration
	sellBuyGap    time.Duration
	waitDeadline  time.Duration
	now           func() time.Time
	sleep         func(context.Context, time.Duration)

	mu        sync.Mutex
	processed map[string]bool // strategy_id|date，防止同一策略当日重复出草稿
}

func NewService(deps ServiceDeps) *Service {
	return &Service{
		deps:          deps,
		loginAttempts: 10,
		loginGap:      15 * time.Second,
		refetchGap:    20 * time.Second,
		sellBuyGap:    10 * time.Second,
		waitDeadline:  30 * time.Minute,
		now:           time.Now,
		sleep:         sleepCtx,
		processed:     map[string]bool{},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// matchedStrategy 配置项与其命中的页面条目
type matchedStrategy struct {
	cfg  config.AllocationEntry
	item *yunfei.StrategyItem
}

// RunBatch 跑一个批次。已完成批次直接跳过；
// 出错不落完成标记，下一次定时触发会整体重来。
func (s *Service) RunBatch(ctx context.Context, batchNo int) error {
	date := batchstate.Today()
	done, err := s.deps.Pending.Done(date, batchNo)
	if err != nil {
		return fmt.Errorf("pending record read: %w", err)
	}
	if done {
		log.Info().Int("batch", batchNo).Str("date", date).Msg("batch already done, skipped")
		return nil
	}

	var cfgs []config.AllocationEntry
	for _, a := range s.deps.Allocations {
		if a.BatchNo == batchNo {
			cfgs = append(cfgs, a)
		}
	}
	if len(cfgs) == 0 {
		log.Info().Int("batch", batchNo).Msg("no strategies configured for batch")
		return s.markDone(date, batchNo)
	}

	if err := s.ensureLogin(ctx); err != nil {
		return err
	}

	// 开盘时先留一份资产快照，抓取等待期间券商断线时兜底
	armed, err := s.deps.Gateway.QueryAsset(ctx, s.deps.AccountID)
	if err != nil {
		log.Warn().Err(err).Msg("armed snapshot query failed")
	}

	matched, allUpdated, err := s.awaitStrategies(ctx, cfgs, date, batchNo)
	if err != nil {
		return err
	}
	if !allUpdated {
		// 已出的草稿留在盘上，等全部策略更新后的下一次触发再合并执行
		log.Warn().Int("batch", batchNo).
			Msg("some strategies not updated today, batch left pending")
		return nil
	}

	if err := s.mergeAndExecute(ctx, batchNo, armed); err != nil {
		return err
	}

	s.reconcileAndPersist(ctx, matched)

	return s.markDone(date, batchNo)
}

func (s *Service) markDone(date string, batchNo int) error {
	if err := s.deps.Pending.MarkDone(date, batchNo); err != nil {
		return fmt.Errorf("pending record write: %w", err)
	}
	metrics.BatchesCompleted.WithLabelValues(fmt.Sprint(batchNo)).Inc()
	log.Info().Int("batch", batchNo).Str("date", date).Msg("batch marked done")
	return nil
}

// ensureLogin 反复尝试登录，间隔固定
func (s *Service) ensureLogin(ctx context.Context) error {
	if s.deps.Session.LoggedIn() {
		return nil
	}
	var lastErr error
	for i := 0; i < s.loginAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.deps.Session.Login(ctx); err != nil {
			lastErr = err
			log.Warn().Int("attempt", i+1).Err(err).Msg("login failed, retrying")
			s.sleep(ctx, s.loginGap)
			continue
		}
		return nil
	}
	return fmt.Errorf("login exhausted after %d attempts: %w", s.loginAttempts, lastErr)
}

// awaitStrategies 反复抓取直到本批次全部策略当日更新或超时。
// 每轮抓取后立即为已更新的策略出草稿，不等其余策略；
// 除首轮外强制绕开页面缓存重抓。返回命中映射与是否全部更新。
func (s *Service) awaitStrategies(ctx context.Context, cfgs []config.AllocationEntry,
	date string, batchNo int) ([]matchedStrategy, bool, error) {

	deadline := s.now().Add(s.waitDeadline)
	var matched []matchedStrategy
	for round := 0; ; round++ {
		var result yunfei.FetchResult
		if round == 0 {
			result = s.deps.Fetcher.Fetch(ctx)
		} else {
			result = s.deps.Fetcher.Refresh(ctx)
		}
		s.countFetch(result)
		if !result.OK() {
			s.handleFetchWarning(ctx, result.Warning)
		}

		matched = matchAll(cfgs, result.Items)
		if err := s.draftMatched(matched, date, batchNo); err != nil {
			return matched, false, err
		}

		stale := 0
		for _, m := range matched {
			if m.item == nil || m.item.Date() < date {
				stale++
			}
		}
		if stale == 0 {
			return matched, true, nil
		}
		if s.now().After(deadline) || ctx.Err() != nil {
			log.Warn().Int("stale", stale).Int("total", len(cfgs)).
				Msg("wait deadline reached with stale strategies")
			return matched, false, nil
		}
		log.Info().Int("stale", stale).Int("total", len(cfgs)).Msg("strategies not updated yet, waiting")
		s.sleep(ctx, s.refetchGap)
	}
}

func (s *Service) countFetch(result yunfei.FetchResult) {
	switch {
	case result.OK():
		metrics.FetchResults.WithLabelValues("ok").Inc()
	case len(result.Items) > 0:
		metrics.FetchResults.WithLabelValues("stale").Inc()
	default:
		metrics.FetchResults.WithLabelValues("error").Inc()
	}
}

// handleFetchWarning 会话级故障的恢复动作。
// TLS 类错误重置底层连接后重新登录。
func (s *Service) handleFetchWarning(ctx context.Context, warning string) {
	switch {
	case warning == yunfei.WarnNotLoggedIn || warning == yunfei.WarnLoginFailed:
		if err := s.ensureLogin(ctx); err != nil {
			log.Error().Err(err).Msg("relogin failed")
		}
	case strings.Contains(warning, "tls") || strings.Contains(warning, "connection reset"):
		log.Warn().Str("warning", warning).Msg("transport error, resetting session")
		s.deps.Session.Reset()
		if err := s.ensureLogin(ctx); err != nil {
			log.Error().Err(err).Msg("relogin after reset failed")
		}
	case warning == yunfei.WarnRateLimited:
		log.Warn().Msg("rate limited by site, backing off")
		s.sleep(ctx, s.refetchGap)
	}
}

func matchAll(cfgs []config.AllocationEntry, items []yunfei.StrategyItem) []matchedStrategy {
	matched := make([]matchedStrategy, 0, len(cfgs))
	for _, cfg := range cfgs {
		var hit *yunfei.StrategyItem
		for i := range items {
			if yunfei.MatchTitle(items[i], cfg.StrategyID, cfg.StrategyName) {
				hit = &items[i]
				break
			}
		}
		if hit == nil {
			log.Warn().Str("strategy", cfg.StrategyName).Msg("strategy not found on follow page")
		}
		matched = append(matched, matchedStrategy{cfg: cfg, item: hit})
	}
	return matched
}

// draftMatched 为当日更新且需要调仓的策略生成草稿。
// 同一策略同一天只出一次。
func (s *Service) draftMatched(matched []matchedStrategy, date string, batchNo int) error {
	for _, m := range matched {
		if m.item == nil || m.item.Date() != date {
			continue
		}
		key := m.cfg.StrategyID + "|" + date
		s.mu.Lock()
		seen := s.processed[key]
		if !seen {
			s.processed[key] = true
		}
		s.mu.Unlock()
		if seen {
			continue
		}

		if m.item.Action != yunfei.ActionBuySell {
			log.Info().Str("strategy", m.cfg.StrategyName).Str("action", string(m.item.Action)).
				Msg("no rebalance published, draft skipped")
			continue
		}

		ratioByName := map[string]float64{}
		for _, h := range m.item.Holdings {
			if h.HasPct {
				ratioByName[h.Name] = h.Pct
			}
		}
		sells, buys, err := tradeplan.ParseOperations(m.item.OpText, s.deps.Resolver, ratioByName)
		if err != nil {
			// 买入目标无法定码时放弃本策略草稿，留给下一次触发
			s.mu.Lock()
			delete(s.processed, key)
			s.mu.Unlock()
			return fmt.Errorf("operation parse for %s: %w", m.cfg.StrategyName, err)
		}

		draft := tradeplan.Draft{
			SellEntries: sells,
			BuyEntries:  buys,
			Meta: tradeplan.Meta{
				BatchNo:    batchNo,
				StrategyID: m.cfg.StrategyID,
			},
		}
		// 按本账户配置比例缩放策略比例与示例金额
		scale := m.cfg.ConfigPct / 100
		for i := range draft.SellEntries {
			draft.SellEntries[i].Ratio *= scale
			draft.SellEntries[i].SampleAmount *= scale
		}
		for i := range draft.BuyEntries {
			draft.BuyEntries[i].Ratio *= scale
			draft.BuyEntries[i].SampleAmount *= scale
		}

		path, err := tradeplan.WriteDraft(s.deps.PlanDir, draft)
		if err != nil {
			return fmt.Errorf("draft write for %s: %w", m.cfg.StrategyName, err)
		}
		log.Info().Str("strategy", m.cfg.StrategyName).Str("file", path).
			Int("sells", len(sells)).Int("buys", len(buys)).Msg("draft written")
	}
	return nil
}

// mergeAndExecute 合并本批次草稿，折算最终计划并先卖后买执行
func (s *Service) mergeAndExecute(ctx context.Context, batchNo int, armed *domain.AssetSnapshot) error {
	mergedPath, merged, err := tradeplan.MergeBatch(ctx, s.deps.PlanDir, batchNo)
	if err != nil {
		return fmt.Errorf("merge batch %d: %w", batchNo, err)
	}
	if merged.Meta.Empty {
		log.Info().Int("batch", batchNo).Msg("merged plan empty, nothing to execute")
		return nil
	}
	log.Info().Str("file", mergedPath).Int("sells", len(merged.SellEntries)).
		Int("buys", len(merged.BuyEntries)).Msg("batch merged")

	snapshot, err := s.deps.Gateway.QueryAsset(ctx, s.deps.AccountID)
	if err != nil || snapshot == nil || snapshot.TotalAsset <= 0 {
		if armed == nil {
			return fmt.Errorf("no usable asset snapshot: %w", err)
		}
		log.Warn().Err(err).Msg("fresh snapshot unavailable, using armed snapshot")
		snapshot = armed
	}
	positions, err := s.deps.Gateway.QueryPositions(ctx, s.deps.AccountID)
	if err != nil {
		return fmt.Errorf("positions query: %w", err)
	}

	lotOf := func(code string) int64 {
		detail, err := s.deps.Gateway.GetInstrumentDetail(ctx, code)
		if err != nil || detail == nil {
			return 0
		}
		return detail.BoardLot
	}
	plan, err := tradeplan.BuildFinal(merged, snapshot, positions, s.deps.Proportion, lotOf)
	if err != nil {
		return fmt.Errorf("final plan build: %w", err)
	}
	finalPath, err := tradeplan.WriteFinal(s.deps.PlanDir, plan)
	if err != nil {
		return fmt.Errorf("final plan write: %w", err)
	}
	log.Info().Str("file", finalPath).Int("sells", len(plan.Sell)).
		Int("buys", len(plan.Buy)).Msg("final plan written")

	// 先卖后买，中间留一段时间等卖出回报释放资金
	if err := s.deps.Executor.Execute(ctx, plan, executor.ActionSell); err != nil {
		return err
	}
	s.sleep(ctx, s.sellBuyGap)
	return s.deps.Executor.Execute(ctx, plan, executor.ActionBuy)
}

// reconcileAndPersist 出一份目标与实际持仓的对账报告。
// 对账失败只告警，不影响批次流程。
func (s *Service) reconcileAndPersist(ctx context.Context, matched []matchedStrategy) {
	asset, err := s.deps.Gateway.QueryAsset(ctx, s.deps.AccountID)
	if err != nil || asset == nil {
		log.Warn().Err(err).Msg("reconcile skipped, no asset snapshot")
		return
	}
	positions, err := s.deps.Gateway.QueryPositions(ctx, s.deps.AccountID)
	if err != nil {
		log.Warn().Err(err).Msg("reconcile skipped, positions query failed")
		return
	}

	in := reconcile.Input{
		AccountID:  s.deps.AccountID,
		TotalAsset: asset.TotalAsset,
		Proportion: s.deps.Proportion,
		Positions:  positions,
	}
	for _, m := range matched {
		if m.item == nil {
			continue
		}
		ms := reconcile.MatchedStrategy{
			StrategyID:   m.cfg.StrategyID,
			StrategyName: m.cfg.StrategyName,
			ConfigPct:    m.cfg.ConfigPct,
		}
		for _, h := range m.item.Holdings {
			ms.Holdings = append(ms.Holdings, reconcile.Holding{
				Name: h.Name, Pct: h.Pct, HasPct: h.HasPct,
			})
		}
		in.Strategies = append(in.Strategies, ms)
	}

	report, err := reconcile.Build(in, s.deps.Resolver)
	if err != nil {
		if !errors.Is(err, reconcile.ErrNoAssetSnapshot) {
			log.Warn().Err(err).Msg("reconcile build failed")
		}
		return
	}
	path, err := reconcile.WriteReport(s.deps.DataDir, report)
	if err != nil {
		log.Warn().Err(err).Msg("reconcile report write failed")
	} else {
		log.Info().Str("file", path).Int("rows", len(report.Rows)).Msg("reconcile report written")
	}

	if s.deps.Repo != nil {
		payload, err := json.Marshal(report)
		if err == nil {
			if err := s.deps.Repo.InsertReconcileReport(ctx, s.deps.AccountID,
				report.GeneratedAt.UnixMilli(), string(payload)); err != nil {
				log.Warn().Err(err).Msg("reconcile report persist failed")
			}
		}
	}
}
