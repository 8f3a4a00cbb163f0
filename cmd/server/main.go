package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SafeSignal/internal/alerts"
	"SafeSignal/internal/dispatch"
	handlers "SafeSignal/internal/handler"
	"SafeSignal/internal/match"
	"SafeSignal/internal/presence"
	"SafeSignal/internal/realtime"
	"SafeSignal/internal/session"
	"SafeSignal/internal/storage"
	"SafeSignal/pkg/cache"
	"SafeSignal/pkg/config"
	"SafeSignal/pkg/logger"
	"SafeSignal/pkg/metrics"
	"SafeSignal/pkg/middleware"
	"SafeSignal/pkg/notification"
	"SafeSignal/pkg/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}
	cfg := config.GlobalConfig

	logger.Init(cfg.Log)
	defer logger.Sync()

	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 派发幂等账本：单机 gocache，多实例 redis
	ledger, err := cache.NewCache(cache.Config{
		Type: cfg.CacheType,
		Redis: cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       int(cfg.RedisDB),
		},
	})
	if err != nil {
		logger.Error("cache init failed", zap.Error(err))
		os.Exit(1)
	}
	defer ledger.Close()

	// 数据库镜像可选；没配 DSN 时纯内存运行
	var archive *storage.Store
	if cfg.DBDriver != "" || cfg.DSN != "" {
		archive, err = storage.Open(cfg.DBDriver, cfg.DSN)
		if err != nil {
			logger.Error("storage open failed", zap.Error(err))
			os.Exit(1)
		}
	}

	m := metrics.NewMetrics()

	registryOpts := []presence.Option{presence.WithStaleWindow(cfg.StaleWindow())}
	if archive != nil {
		registryOpts = append(registryOpts, presence.WithPersister(archive))
	}
	registry := presence.NewRegistry(registryOpts...)
	matcher := match.NewMatcher(registry, cfg.ResponderSpeedKmh)

	var storeOpts []alerts.Option
	if archive != nil {
		storeOpts = append(storeOpts, alerts.WithPersister(archive))
	}
	store := alerts.NewStore(storeOpts...)

	hub := realtime.NewHub(store, realtime.WithObserver(m))

	var subsOpts []dispatch.SubscriptionOption
	if archive != nil {
		subsOpts = append(subsOpts, dispatch.WithSubscriptionPersister(archive))
	}
	subs := dispatch.NewSubscriptionStore(subsOpts...)

	// 推送服务商按配置选择，默认写日志的实现
	pusher := notification.NewPusher(notification.NewClient(cfg.PushProvider))
	dispatcher := dispatch.NewDispatcher(matcher, subs, pusher, ledger,
		dispatch.WithObserver(m),
		dispatch.WithRadius(cfg.MatchRadius()),
		dispatch.WithLedgerTTL(cfg.LedgerTTL()),
	)

	sessions := session.NewManager(store, hub)

	// 状态机每次迁移驱动实时广播与推送派发
	store.OnChange(dispatch.ChangeHook(dispatcher, hub))

	// 重启后回放：订阅与未终结警报从数据库恢复
	if archive != nil {
		restore(archive, subs, store)
	}

	sched := scheduler.New()
	defer sched.Stop()
	sched.EveryNow(cfg.SweepInterval(), scheduler.FuncJob(registry.Sweep))

	// 每天凌晨清理 30 天前的终态警报镜像
	if archive != nil {
		cr := scheduler.NewCron(nil)
		if _, err := cr.Add("0 3 * * *", scheduler.FuncJob(func(ctx context.Context) {
			n, err := archive.PurgeClosedBefore(ctx, time.Now().AddDate(0, 0, -30))
			if err != nil {
				logger.Warn("archive purge failed", zap.Error(err))
				return
			}
			logger.Info("archive purged", zap.Int64("removed", n))
		})); err != nil {
			logger.Warn("cron schedule failed", zap.Error(err))
		}
		cr.Start()
		defer cr.Stop()
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), m.GinMiddleware())

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := handlers.NewHandlers(store, registry, matcher, dispatcher, subs, sessions, hub, archive)
	engine.GET("/healthz", h.HealthCheck)

	// 创建警报的入口套限流和幂等窗口
	limiter, err := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate: cfg.EmergencyStartRate,
	}, nil)
	if err != nil {
		logger.Error("rate limiter init failed", zap.Error(err))
		os.Exit(1)
	}
	limiter.WithObserver(middleware.NewPrometheusObserver())

	h.Register(engine,
		limiter.Middleware(),
		middleware.IdempotencyMiddleware(middleware.IdempotencyConfig{Store: ledger}),
	)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: engine,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}

// restore 回放数据库镜像到内存权威状态
func restore(archive *storage.Store, subs *dispatch.SubscriptionStore, store *alerts.Store) {
	ctx := context.Background()

	if saved, err := archive.LoadSubscriptions(ctx); err == nil {
		for _, sub := range saved {
			if err := subs.Upsert(sub); err != nil {
				logger.Warn("skip bad subscription", zap.String("user_id", sub.UserID), zap.Error(err))
			}
		}
		logger.Info("subscriptions restored", zap.Int("count", len(saved)))
	} else {
		logger.Warn("subscription restore failed", zap.Error(err))
	}

	open, err := archive.LoadOpenAlerts(ctx)
	if err != nil {
		logger.Warn("alert restore failed", zap.Error(err))
		return
	}
	restored := store.Restore(open)
	logger.Info("open alerts restored", zap.Int("count", restored))
}
