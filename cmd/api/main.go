package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"btcpaper/internal/auth"
	"btcpaper/internal/config"
	"btcpaper/internal/db"
	"btcpaper/internal/health"
	"btcpaper/internal/httpserver"
	"btcpaper/internal/ledger"
	"btcpaper/internal/logger"
	"btcpaper/internal/notify"
	"btcpaper/internal/pricefeed"
	"btcpaper/internal/store"
	"btcpaper/internal/users"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	zl, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer zl.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		st        store.Store
		pool      *pgxpool.Pool
		storeMode string
	)
	if cfg.DBConfigured() {
		pool, err = db.NewPool(ctx, cfg.DBDSN)
		if err != nil {
			zl.Fatal("database connect failed", zap.Error(err))
		}
		defer pool.Close()
		st = store.NewPostgres(pool)
		storeMode = "postgres"
	} else {
		st = store.NewMemory()
		storeMode = "memory"
		zl.Warn("DB_DSN not configured, running on in-memory store; data is lost on restart")
	}

	notifier := notify.NewService(st, zl)
	ledgerSvc := ledger.NewService(st, notifier, cfg.CheckShortMargin)
	usersSvc := users.NewService(st, notifier, zl)
	verifier := auth.NewVerifier(cfg.IdentityIssuer, []byte(cfg.IdentityJWTSecret))

	bus := pricefeed.NewBus()
	feed := pricefeed.NewService(cfg.PriceFeedURL, cfg.PricePollInterval, cfg.SeriesPollInterval, bus, zl)
	feed.Start(ctx)
	feedWS := pricefeed.NewWSHandler(feed, bus, cfg.WebSocketOrigin)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		LedgerHandler: ledger.NewHandler(ledgerSvc),
		UsersHandler:  users.NewHandler(usersSvc),
		NotifyHandler: notify.NewHandler(notifier),
		MarketHandler: pricefeed.NewHandler(feed, feedWS),
		HealthHandler: health.NewHandler(pool, time.Now().UTC(), storeMode),
		Verifier:      verifier,
		UsersService:  usersSvc,
		Log:           zl,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	zl.Info("server listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", storeMode))
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zl.Fatal("server error", zap.Error(err))
	}
}
