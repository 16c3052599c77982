package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sha03112000/autohead/client"
	"github.com/sha03112000/autohead/internal/config"
	"github.com/sha03112000/autohead/internal/gateway"
	"github.com/sha03112000/autohead/internal/metrics"
	"github.com/sha03112000/autohead/internal/session"
	v1 "github.com/sha03112000/autohead/pkg/api/v1"
	"github.com/sha03112000/autohead/pkg/constraints"
	"github.com/sha03112000/autohead/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// maxSignIns bounds how often the console signs in again after a reset in
// one run.
const maxSignIns = 5

func main() {
	cfg := config.Load()

	logger.InitLogger(cfg.App.Environment)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("console failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := initStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := session.NewHub()
	gw := gateway.New(cfg.API.BaseURL, store,
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		gateway.WithHub(hub),
		gateway.WithObserver(metrics.NewPrometheusObserver()),
		gateway.WithRateLimit(cfg.Gateway.RequestsPerSecond, cfg.Gateway.Burst),
		gateway.WithRefreshCoalescing(cfg.Gateway.CoalesceRefresh),
	)
	cli := client.New(gw)

	sub := hub.Register(32)
	defer hub.Unregister(sub)
	expired := make(chan struct{}, 1)
	go watchSession(ctx, sub, expired)

	srv := &http.Server{
		Addr:    cfg.App.MetricsAddr,
		Handler: metricsRouter(gw),
	}
	go func() {
		logger.Info("metrics server starting", zap.String("addr", cfg.App.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	runErr := loop(ctx, cfg, cli, expired)

	logger.Info("shutting down console...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server forced to shutdown: %w", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	logger.Info("console exited properly")
	return nil
}

// loop signs in and polls the dashboard. A reset to anonymous ends the
// poll and sends the console back to sign-in.
func loop(ctx context.Context, cfg *config.Config, cli *client.AdminClient, expired <-chan struct{}) error {
	for attempt := 1; ; attempt++ {
		if err := signIn(ctx, cfg, cli); err != nil {
			return err
		}

		err := poll(ctx, cfg, cli, expired)
		if !errors.Is(err, client.ErrSessionExpired) {
			return err
		}
		if attempt >= maxSignIns {
			return fmt.Errorf("session keeps expiring after %d sign-ins: %w", attempt, err)
		}
		// A replay rejected after a good refresh leaves tokens stored.
		if err := dropSession(ctx, cli); err != nil {
			return err
		}
		logger.Warn("session expired, signing in again")
	}
}

// poll runs WatchDashboard until it fails or a reset event arrives.
func poll(ctx context.Context, cfg *config.Config, cli *client.AdminClient, expired <-chan struct{}) error {
	// Discard the signal left by the reset that ended the previous poll.
	select {
	case <-expired:
	default:
	}

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-expired:
			cancel()
		case <-pollCtx.Done():
		}
	}()

	err := cli.WatchDashboard(pollCtx, cfg.Console.PollInterval, logDashboard)
	if errors.Is(err, context.Canceled) && ctx.Err() == nil {
		return client.ErrSessionExpired
	}
	return err
}

func dropSession(ctx context.Context, cli *client.AdminClient) error {
	if cli.Gateway().State(ctx) == session.Anonymous {
		return nil
	}
	logger.Warn("dropping rejected session")
	if err := cli.Logout(ctx); err != nil {
		return fmt.Errorf("drop session: %w", err)
	}
	return nil
}

func signIn(ctx context.Context, cfg *config.Config, cli *client.AdminClient) error {
	if cli.Gateway().State(ctx) == session.Authenticated {
		logger.Info("resuming stored session")
		return nil
	}
	if cfg.Console.Username == "" {
		return errors.New("no stored session and console.username is not set")
	}

	res, err := cli.Login(ctx, cfg.Console.Username, cfg.Console.Password)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	fields := []zap.Field{zap.String("user", cfg.Console.Username), zap.Bool("superuser", res.IsSuperuser)}
	if exp, ok := session.AccessExpiry(res.Access); ok {
		fields = append(fields, zap.Time("access_expires_at", exp))
	}
	logger.Info("signed in", fields...)
	return nil
}

func watchSession(ctx context.Context, sub *session.Subscriber, expired chan<- struct{}) {
	for e := range sub.Events {
		switch e.State {
		case session.Anonymous:
			if e.Reason == constraints.ReasonLogout {
				logger.Info("signed out")
				continue
			}
			logger.Warn("session reset, returning to sign-in", zap.String("reason", e.Reason))
			select {
			case expired <- struct{}{}:
			default:
			}
		case session.Refreshing:
			logger.Debug("refreshing access token")
		case session.Authenticated:
			logger.Debug("session authenticated", zap.String("via", e.Reason))
		}
	}
	if ctx.Err() == nil {
		logger.Warn("session events closed, resets are now seen only through failed calls")
	}
}

func logDashboard(d *v1.Dashboard) {
	logger.Info("dashboard",
		zap.Int("products", d.TotalProducts),
		zap.Int("vendors", d.TotalVendors),
		zap.Int("low_stock", d.LowStock),
		zap.Int("bills", d.TotalBills),
		zap.String("sales_today", d.TotalSalesToday.String()),
		zap.String("monthly_revenue", d.MonthlyRevenue.String()))
	for _, p := range d.LowStockProducts {
		logger.Warn("low stock",
			zap.String("product", p.ProductName),
			zap.String("vendor", p.VendorName),
			zap.Int("stock", p.Stock))
	}
}

func metricsRouter(gw *gateway.Gateway) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "session": gw.State(c.Request.Context())})
	})
	return r
}

// -- Infrastructure Initializers --

func initStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	if cfg.Session.Store != config.StoreRedis {
		return session.NewMemoryStore(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("using redis session store", zap.String("addr", cfg.Redis.Addr))
	return session.NewRedisStore(rdb, cfg.Session.KeyPrefix, cfg.Session.TTL), func() { rdb.Close() }, nil
}
