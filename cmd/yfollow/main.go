package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"yfollow/internal/application/executor"
	"yfollow/internal/application/usecase/follow"
	"yfollow/internal/domain/stockcode"
	"yfollow/internal/infrastructure/batchstate"
	"yfollow/internal/infrastructure/broker"
	"yfollow/internal/infrastructure/config"
	"yfollow/internal/infrastructure/container"
	"yfollow/internal/infrastructure/logger"
	"yfollow/internal/infrastructure/metrics"
	"yfollow/internal/infrastructure/scheduler"
	"yfollow/internal/infrastructure/yunfei"
	"yfollow/internal/interfaces/callback"
)

func main() {
	var (
		configPath string
		account    string
		uiID       string
	)
	flag.StringVar(&configPath, "config", "configs/config.toml", "path to config.toml")
	flag.StringVar(&account, "a", "", "account alias (required)")
	flag.StringVar(&account, "account", "", "account alias (required)")
	flag.StringVar(&uiID, "ui-id", "", "trade client window id (optional)")
	flag.Parse()

	if account == "" {
		fmt.Fprintln(os.Stderr, "usage: yfollow -a <account> [-config configs/config.toml]")
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Setup(cfg.App.LogDir); err != nil {
		fmt.Fprintf(os.Stderr, "logger setup failed: %v\n", err)
		os.Exit(1)
	}

	env := config.LoadEnv()
	if env.SiteUsername == "" || env.SitePassword == "" {
		log.Fatal().Msg("YUNFEI_USERNAME / YUNFEI_PASSWORD not set")
	}

	dataDir := cfg.App.DataDir
	acct, err := config.LoadAccount(dataDir, account)
	if err != nil {
		log.Fatal().Err(err).Msg("load account config failed")
	}
	if env.TemplateAccountID != "" && env.TemplateAccountID != acct.AccountID {
		log.Warn().Str("expected", env.TemplateAccountID).Str("actual", acct.AccountID).
			Msg("account differs from expected template account")
	}

	allocations, err := config.LoadAllocations(dataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("load allocation config failed")
	}
	proportion, err := config.LoadProportion(dataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("load proportion failed")
	}

	resolver := stockcode.NewResolver()
	if err := resolver.LoadCodeIndex(filepath.Join(dataDir, "yunfei_ball", "code_index.json")); err != nil {
		log.Warn().Err(err).Msg("code index not loaded")
	}
	if err := resolver.LoadCoreMap(filepath.Join(dataDir, "core_parameters", "stocks", "core_stock_code.json")); err != nil {
		log.Warn().Err(err).Msg("core stock map not loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cont, err := container.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("container init failed")
	}
	defer cont.Close()
	repo := cont.Repository()

	sink := callback.NewSink(repo, acct.AccountID)
	bridge := broker.New(cfg.Broker.WsURL, time.Duration(cfg.Broker.TimeoutSec)*time.Second, sink)
	if err := bridge.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("trade client connect failed")
	}
	defer bridge.Close()

	session, err := yunfei.NewSession(cfg.Site.BaseURL, cfg.Site.LoginPath,
		env.SiteUsername, env.SitePassword, time.Duration(cfg.Site.TimeoutSec)*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("session init failed")
	}
	fetcher := yunfei.NewFetcher(session, cfg.Site.FollowPath, cfg.Site.CacheDir,
		time.Duration(cfg.Site.CacheTTLSec)*time.Second, env.SaveFetch)

	exec := executor.New(bridge, repo, acct.AccountID)
	svc := follow.NewService(follow.ServiceDeps{
		Gateway:     bridge,
		Repo:        repo,
		Fetcher:     fetcher,
		Session:     session,
		Resolver:    resolver,
		Pending:     batchstate.NewPendingStore(dataDir, acct.AccountID),
		Executor:    exec,
		Allocations: allocations,
		AccountID:   acct.AccountID,
		DataDir:     dataDir,
		PlanDir:     filepath.Join(dataDir, "yunfei_ball", "trade_plan"),
		Proportion:  proportion,
	})

	park := executor.NewPark(bridge, acct.AccountID, cfg.Park.Code, cfg.Park.ReserveRatio, cfg.Park.Remark)
	reorderer := executor.NewReorderer(bridge, repo, batchstate.NewReorderStore(dataDir),
		acct.AccountID, time.Duration(cfg.Reorder.WindowMin)*time.Minute, cfg.Reorder.TickOffset)

	sweep := func(ctx context.Context) {
		if _, err := executor.CancelWorkingOrders(ctx, bridge, acct.AccountID); err != nil {
			log.Error().Err(err).Msg("cancel sweep failed")
			return
		}
		if _, err := reorderer.Sweep(ctx); err != nil {
			log.Error().Err(err).Msg("reorder sweep failed")
		}
	}

	sched := scheduler.New()
	mustAdd := func(job scheduler.Job) {
		if err := sched.Add(job); err != nil {
			log.Fatal().Str("job", job.Name).Str("at", job.At).Err(err).Msg("bad schedule time")
		}
	}

	for i, at := range cfg.Schedule.BatchTimes {
		batchNo := i + 1
		mustAdd(scheduler.Job{
			Name: fmt.Sprintf("batch_%d", batchNo),
			At:   at,
			Run: func(ctx context.Context) {
				if err := svc.RunBatch(ctx, batchNo); err != nil {
					log.Error().Int("batch", batchNo).Err(err).Msg("batch run failed")
				}
			},
		})
	}

	sweepDelay := cfg.Schedule.SweepDelaySec
	mustAdd(scheduler.Job{Name: "park_buy", At: cfg.Schedule.ParkBuy, Run: func(ctx context.Context) {
		if err := park.Buy(ctx); err != nil {
			log.Error().Err(err).Msg("park buy failed")
		}
	}})
	mustAdd(scheduler.Job{Name: "park_buy_sweep", At: addSeconds(cfg.Schedule.ParkBuy, sweepDelay), Run: sweep})
	mustAdd(scheduler.Job{Name: "park_sell", At: cfg.Schedule.ParkSell, Run: func(ctx context.Context) {
		if err := park.Sell(ctx); err != nil {
			log.Error().Err(err).Msg("park sell failed")
		}
	}})
	mustAdd(scheduler.Job{Name: "park_sell_sweep", At: addSeconds(cfg.Schedule.ParkSell, sweepDelay), Run: sweep})

	for i, at := range cfg.Schedule.PrintTimes {
		mustAdd(scheduler.Job{
			Name: fmt.Sprintf("print_%d", i+1),
			At:   at,
			Run: func(ctx context.Context) {
				executor.LogPortfolio(ctx, bridge, repo, acct.AccountID)
			},
		})
	}

	metrics.Serve(cfg.App.MetricsAddr)
	sched.Start(ctx)

	log.Info().
		Str("account", acct.AccountID).
		Str("ui_id", uiID).
		Int("strategies", len(allocations)).
		Int("batches", len(cfg.Schedule.BatchTimes)).
		Msg("yfollow started")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	sched.Stop()
}

// addSeconds 把 hh:mm:ss 往后挪 n 秒
func addSeconds(at string, n int) string {
	t, err := time.Parse("15:04:05", at)
	if err != nil {
		return at
	}
	return t.Add(time.Duration(n) * time.Second).Format("15:04:05")
}
