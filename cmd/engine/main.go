package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	binanceapi "github.com/adshao/go-binance/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"propdesk/internal/broker"
	"propdesk/internal/config"
	cronrunner "propdesk/internal/cron"
	"propdesk/internal/db"
	"propdesk/internal/handler"
	"propdesk/internal/ingest"
	"propdesk/internal/logger"
	"propdesk/internal/metrics"
	"propdesk/internal/models"
	"propdesk/internal/notify"
	"propdesk/internal/quote"
	gormrepository "propdesk/internal/repository/gorm"
	"propdesk/internal/risk"
	"propdesk/internal/service"

	_ "propdesk/docs"
)

func main() {
	cfgPath := os.Getenv("PD_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := false
	if envOnlyRaw := os.Getenv("PD_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.Migrate(dbConn); err != nil {
		logger.Fatal("migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	settingsSvc := &service.SettingsService{Repo: store, Base: cfg}
	if err := settingsSvc.EnsureDefaults(context.Background()); err != nil {
		logger.Warn("init default switches failed", zap.Error(err))
	}

	gate := &risk.Gate{
		Cfg:       cfg.Risk,
		AccountID: cfg.App.AccountID,
		Repo:      store,
		Logger:    logger,
	}
	state, err := gate.EnsureState(context.Background())
	if err != nil {
		logger.Fatal("risk state init failed", zap.Error(err))
	}
	metrics.Equity.Set(state.Equity.InexactFloat64())
	metrics.DailyPnL.Set(state.DailyPnL.InexactFloat64())
	metrics.SetBool(metrics.TradingAllowed, state.TradingAllowed)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Quote provider: REST queries the book ticker on demand; stream keeps a
	// local cache fed by the combined websocket, subscribed to whatever
	// symbols currently have open positions or a pending backlog.
	var quotes quote.Quoter
	switch cfg.Quotes.Provider {
	case "stream":
		streamCache := quote.NewStreamCache(quote.StreamCacheOptions{
			URL:            cfg.Quotes.StreamURL,
			StaleAfter:     cfg.Quotes.StaleAfter,
			SymbolProvider: activeSymbols(store),
			Logger:         logger,
		})
		go func() {
			if err := streamCache.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("quote stream stopped", zap.Error(err))
			}
		}()
		quotes = streamCache
	default:
		quotes = quote.NewBinanceQuoter(binanceapi.NewClient("", ""))
	}

	var venue broker.Broker
	switch cfg.Broker.Mode {
	case "binance":
		venue = broker.NewBinance(cfg.Broker.Binance, logger)
	default:
		venue = broker.NewPaper(quotes, state.Equity, logger)
	}
	logger.Info("broker ready", zap.String("mode", cfg.Broker.Mode))

	notifier, err := notify.New(cfg.Telegram, func() bool {
		return settingsSvc.IsEnabled(context.Background(), service.SettingTelegramNotify, cfg.Telegram.Enabled)
	}, logger)
	if err != nil {
		logger.Warn("telegram notifier disabled", zap.Error(err))
	}

	var sources []ingest.Source
	if cfg.Telegram.Enabled && cfg.Telegram.Token != "" {
		tgSource, err := ingest.NewTelegramSource(cfg.Telegram, logger)
		if err != nil {
			logger.Warn("telegram source disabled", zap.Error(err))
		} else {
			tgSource.Start()
			defer tgSource.Stop()
			sources = append(sources, tgSource)
		}
	}

	locks := service.NewSymbolLocks()
	executor := &service.Executor{
		Repo:     store,
		Broker:   venue,
		Gate:     gate,
		Notifier: notifier,
		Logger:   logger,
		Timeout:  cfg.Broker.Timeout,
	}
	pipeline := &service.Pipeline{
		Repo:       store,
		Sources:    sources,
		Normalizer: &ingest.Normalizer{Repo: store, Logger: logger},
		Quotes:     quotes,
		Gate:       gate,
		Executor:   executor,
		Settings:   settingsSvc,
		Locks:      locks,
		Logger:     logger,
		Interval:   cfg.Pipeline.SignalPollInterval,
	}
	monitor := &service.Monitor{
		Repo:     store,
		Broker:   venue,
		Quotes:   quotes,
		Gate:     gate,
		Settings: settingsSvc,
		Notifier: notifier,
		Locks:    locks,
		Logger:   logger,
		Interval: cfg.Pipeline.MonitorInterval,
		Timeout:  cfg.Broker.Timeout,
	}
	dailyStats := &service.DailyStats{
		Repo:     store,
		Gate:     gate,
		Notifier: notifier,
		Logger:   logger,
	}

	go pipeline.Run(ctx)
	go monitor.Run(ctx)

	cronRunner := cronrunner.New(logger, ctx)
	_, err = cronRunner.Add(cfg.Cron.DailyReset, func(ctx context.Context) {
		if err := dailyStats.Report(ctx); err != nil {
			logger.Warn("daily report failed", zap.Error(err))
		}
		if err := gate.DailyReset(ctx); err != nil {
			logger.Warn("daily reset failed", zap.Error(err))
		}
	})
	if err != nil {
		logger.Warn("cron register daily reset failed", zap.Error(err))
	}
	_, err = cronRunner.Add(cfg.Cron.EquitySync, func(ctx context.Context) {
		equity, err := venue.AccountEquity(ctx)
		if err != nil {
			logger.Warn("broker equity fetch failed", zap.Error(err))
			return
		}
		if err := gate.SyncEquity(ctx, equity); err != nil {
			logger.Warn("equity sync failed", zap.Error(err))
		}
	})
	if err != nil {
		logger.Warn("cron register equity sync failed", zap.Error(err))
	}
	_, err = cronRunner.Add(cfg.Cron.StatsRollup, func(ctx context.Context) {
		if err := dailyStats.Rollup(ctx); err != nil {
			logger.Warn("stats rollup failed", zap.Error(err))
		}
	})
	if err != nil {
		logger.Warn("cron register stats rollup failed", zap.Error(err))
	}
	_, err = cronRunner.Add("@every 1m", func(ctx context.Context) {
		snap := settingsSvc.Take(ctx)
		if err := executor.Reconcile(ctx, snap.Trailing); err != nil {
			logger.Warn("order reconciliation failed", zap.Error(err))
		}
	})
	if err != nil {
		logger.Warn("cron register reconciler failed", zap.Error(err))
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(handler.CORSMiddleware())
	engine.Use(handler.AuthMiddleware(cfg.Server.AuthToken))

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	signalHandler := &handler.SignalHandler{Repo: store}
	signalHandler.Register(engine)
	tradeHandler := &handler.TradeHandler{Repo: store, Monitor: monitor, Logger: logger}
	tradeHandler.Register(engine)
	riskHandler := &handler.RiskHandler{Repo: store, Gate: gate, Logger: logger}
	riskHandler.Register(engine)
	settingsHandler := &handler.SettingsHandler{Repo: store, Settings: settingsSvc}
	settingsHandler.Register(engine)
	statsHandler := &handler.StatsHandler{Repo: store}
	statsHandler.Register(engine)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// activeSymbols feeds the stream cache the symbols that matter right now:
// everything with an open position plus the pending backlog.
func activeSymbols(store *gormrepository.Store) quote.SymbolProvider {
	return func(ctx context.Context) ([]string, error) {
		seen := make(map[string]struct{})
		var out []string
		open, err := store.ListOpenTrades(ctx)
		if err != nil {
			return nil, err
		}
		for _, t := range open {
			if _, ok := seen[t.Symbol]; !ok {
				seen[t.Symbol] = struct{}{}
				out = append(out, t.Symbol)
			}
		}
		pending, err := store.ListSignalsByStatus(ctx, models.SignalStatusPending, 100)
		if err != nil {
			return nil, err
		}
		for _, s := range pending {
			if _, ok := seen[s.Symbol]; !ok {
				seen[s.Symbol] = struct{}{}
				out = append(out, s.Symbol)
			}
		}
		return out, nil
	}
}
