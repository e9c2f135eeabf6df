package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	apphold "github.com/flashmart/reservation/internal/application/hold"
	appinv "github.com/flashmart/reservation/internal/application/inventory"
	apporder "github.com/flashmart/reservation/internal/application/order"
	appproduct "github.com/flashmart/reservation/internal/application/product"
	appsettlement "github.com/flashmart/reservation/internal/application/settlement"
	domhold "github.com/flashmart/reservation/internal/domain/hold"
	dominv "github.com/flashmart/reservation/internal/domain/inventory"
	domorder "github.com/flashmart/reservation/internal/domain/order"
	domwebhook "github.com/flashmart/reservation/internal/domain/webhook"
	"github.com/flashmart/reservation/internal/infrastructure/gormstore"
	"github.com/flashmart/reservation/internal/infrastructure/id"
	"github.com/flashmart/reservation/internal/infrastructure/memory"
	"github.com/flashmart/reservation/internal/infrastructure/memorycache"
	"github.com/flashmart/reservation/internal/infrastructure/rediscache"
	"github.com/flashmart/reservation/internal/infrastructure/scheduler"
	httptransport "github.com/flashmart/reservation/internal/presentation/http"
	"github.com/flashmart/reservation/internal/pkg/clock"
	"github.com/flashmart/reservation/internal/pkg/config"
	"github.com/flashmart/reservation/internal/pkg/keylock"
	"github.com/flashmart/reservation/internal/pkg/logging"
	"github.com/flashmart/reservation/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	baseLogger := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	clk := clock.NewSystem()
	idGen := id.NewUUIDGenerator()

	// One lock space per resource kind. Nested acquisitions always run
	// webhook -> order -> hold -> product.
	productLocks := keylock.New()
	holdLocks := keylock.New()
	orderLocks := keylock.New()
	webhookLocks := keylock.New()

	productRepo, holdRepo, orderRepo, webhookRepo := buildStore(cfg, baseLogger)
	cache := buildCache(cfg, clk, baseLogger)

	inventoryStore := appinv.NewStore(productRepo, productLocks)
	productService := appproduct.NewService(inventoryStore, cache, cfg.ProductInfoTTL, cfg.StockTTL)
	inventoryStore.SetCacheRefresher(productService)

	holdService := apphold.NewService(holdRepo, inventoryStore, holdLocks, nil, clk, idGen, m,
		apphold.WithTTL(cfg.HoldTTL))
	dispatcher := scheduler.New(holdService.Release, clk, baseLogger)
	holdService.SetScheduler(dispatcher)
	defer dispatcher.Stop()

	settlementService := appsettlement.NewService(
		webhookRepo, orderRepo, holdService, inventoryStore,
		webhookLocks, orderLocks, clk, m,
	)
	orderService := apporder.NewService(orderRepo, holdService, settlementService, clk, idGen, m)

	seedProducts(inventoryStore, baseLogger)

	handler := httptransport.NewHandler(holdService, orderService, settlementService, productService, baseLogger, m)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("http_server_start",
			zap.String("addr", server.Addr),
			zap.String("store", cfg.Store),
			zap.String("cache", cfg.Cache),
			zap.Duration("hold_ttl", cfg.HoldTTL),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Error("http_server_error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("http_server_shutdown_error", zap.Error(err))
	} else {
		baseLogger.Info("http_server_stopped")
	}
}

func buildStore(cfg config.Config, logger *zap.Logger) (dominv.Repository, domhold.Repository, domorder.Repository, domwebhook.Repository) {
	switch cfg.Store {
	case "mysql":
		db, err := gormstore.Open(cfg.MySQLDSN)
		if err != nil {
			logger.Fatal("mysql_open_failed", zap.Error(err))
		}
		return gormstore.NewProductRepository(db),
			gormstore.NewHoldRepository(db),
			gormstore.NewOrderRepository(db),
			gormstore.NewWebhookRepository(db)
	default:
		return memory.NewProductRepository(),
			memory.NewHoldRepository(),
			memory.NewOrderRepository(),
			memory.NewWebhookRepository()
	}
}

func buildCache(cfg config.Config, clk clock.Clock, logger *zap.Logger) appproduct.Cache {
	switch cfg.Cache {
	case "redis":
		c := rediscache.New(cfg.RedisAddr)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := c.Ping(pingCtx); err != nil {
			logger.Fatal("redis_ping_failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		return c
	default:
		return memorycache.New(clk)
	}
}

// seedProducts registers catalog entries listed in SEED_PRODUCTS, as
// comma-separated id:name:price:stock tuples. Mainly for the in-memory
// store, where nothing survives a restart.
func seedProducts(store *appinv.Store, logger *zap.Logger) {
	raw := os.Getenv("SEED_PRODUCTS")
	if raw == "" {
		return
	}
	ctx := context.Background()
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 4 {
			logger.Warn("seed_product_malformed", zap.String("entry", entry))
			continue
		}
		price, err1 := strconv.ParseInt(parts[2], 10, 64)
		stock, err2 := strconv.Atoi(parts[3])
		if err1 != nil || err2 != nil {
			logger.Warn("seed_product_malformed", zap.String("entry", entry))
			continue
		}
		p := &dominv.Product{ID: parts[0], Name: parts[1], Price: price, Available: stock}
		if err := store.Register(ctx, p); err != nil {
			logger.Warn("seed_product_failed", zap.String("id", p.ID), zap.Error(err))
			continue
		}
		logger.Info("seed_product_registered", zap.String("id", p.ID), zap.Int("stock", stock))
	}
}
