package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/clock"
	"github.com/iliyamo/qr-attendance/internal/config"
	"github.com/iliyamo/qr-attendance/internal/database"
	"github.com/iliyamo/qr-attendance/internal/handler"
	"github.com/iliyamo/qr-attendance/internal/logger"
	"github.com/iliyamo/qr-attendance/internal/middleware"
	"github.com/iliyamo/qr-attendance/internal/queue"
	"github.com/iliyamo/qr-attendance/internal/repository"
	"github.com/iliyamo/qr-attendance/internal/router"
	"github.com/iliyamo/qr-attendance/internal/service"
	"github.com/iliyamo/qr-attendance/internal/tokenstore"
)

func main() {
	dotEnvErr := config.LoadDotEnv()
	log, err := logger.New(config.Env())
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	if dotEnvErr != nil {
		log.Warn(".env not loaded", zap.Error(dotEnvErr))
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	attCfg := config.LoadAttendanceConfig()
	rlCfg := config.LoadRateLimitConfig()
	auditCfg := config.LoadAuditConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("mysql connect failed", zap.Error(err))
	}
	defer db.Close()
	if os.Getenv("DB_MIGRATE") == "true" {
		if err := database.Migrate(context.Background(), db); err != nil {
			log.Fatal("migrate failed", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	var rdb *redis.Client
	if attCfg.TokenStore == "redis" || rlCfg.Enabled {
		rdb = config.NewRedisClient()
	}
	if rdb != nil {
		defer rdb.Close()
	}

	var store tokenstore.Store
	if attCfg.TokenStore == "redis" && rdb != nil {
		store = tokenstore.NewRedis(rdb, attCfg.StorePrefix)
		log.Info("token store: redis", zap.String("prefix", attCfg.StorePrefix))
	} else {
		mem := tokenstore.NewMemory(clk)
		go sweepLoop(ctx, mem, log)
		store = mem
		log.Warn("token store: in-process memory; run a single instance only")
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	ledger := repository.NewAttendanceRepo(db, attCfg.Location)

	var audit service.AuditSink = service.NewLogAuditSink(log)
	if auditCfg.Sink == "amqp" {
		audit = service.NewAMQPAuditSink(auditCfg.AMQPURL, auditCfg.Queue, log).WithTimeout(auditCfg.PublishTimeout)
		if auditCfg.ConsumerEnabled {
			consumer := &queue.AuditConsumer{URL: auditCfg.AMQPURL, Queue: auditCfg.Queue, LogDir: auditCfg.LogDir, Log: log}
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("audit consumer stopped", zap.Error(err))
				}
			}()
		}
	}

	issuer := service.NewQrIssuer(store, attCfg, clk, log)
	guard := service.NewAttendanceGuard(issuer, store, ledger, audit, attCfg, clk, log)

	// A nil *redis.Client must reach the limiter as a nil interface.
	var scripter redis.Scripter
	if rdb != nil {
		scripter = rdb
	}
	scanLimit := middleware.NewTokenBucket(rlCfg, scripter, clk, log)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()

	roleGuard := router.Guard{JWTSecret: cfg.JWTSecret, Roles: users, Log: log}
	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, clk, log), cfg.JWTSecret)
	router.RegisterEmployee(e, handler.NewAttendanceHandler(guard, ledger, attCfg, clk, log), roleGuard, scanLimit)
	router.RegisterHR(e, handler.NewHRAttendanceHandler(guard, ledger, attCfg, clk, log), roleGuard)
	router.RegisterAdmin(e, handler.NewQrHandler(issuer, audit, attCfg, clk, log), roleGuard)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env),
			zap.String("tz", attCfg.Location.String()))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}
}

func sweepLoop(ctx context.Context, m *tokenstore.Memory, log *zap.Logger) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				log.Debug("token store swept", zap.Int("expired", n))
			}
		}
	}
}
