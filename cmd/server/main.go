package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/suPer8Hu/chat-capture/internal/adapter"
	"github.com/suPer8Hu/chat-capture/internal/chat"
	"github.com/suPer8Hu/chat-capture/internal/common"
	"github.com/suPer8Hu/chat-capture/internal/config"
	"github.com/suPer8Hu/chat-capture/internal/db"
	"github.com/suPer8Hu/chat-capture/internal/httpapi"
	"github.com/suPer8Hu/chat-capture/internal/httpapi/handlers"
	"github.com/suPer8Hu/chat-capture/internal/logger"
	"github.com/suPer8Hu/chat-capture/internal/metrics"
	"github.com/suPer8Hu/chat-capture/internal/platform"
	"github.com/suPer8Hu/chat-capture/internal/store/rabbitmq"
	"github.com/suPer8Hu/chat-capture/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}
	repo := chat.NewRepo(gdb)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	stores := func(uid uint64) adapter.Store { return repo.ForUser(uid) }
	if cfg.PersistMode == config.PersistRabbit {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Fatal("rabbit publisher", zap.Error(err))
		}
		defer pub.Close()
		stores = func(uid uint64) adapter.Store { return pub.ForUser(uid) }
	}

	var broadcaster chat.Broadcaster
	if cfg.RedisEnabled {
		rds := redisstore.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rds.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Fatal("redis ping", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer rds.Close()
		broadcaster = rds
	}

	sessions := chat.NewSessions(chat.Config{
		FlushInterval: cfg.FlushInterval,
		BatchTimeout:  cfg.BatchTimeout,
		EmitEvery:     cfg.EmitEvery,
	}, chat.Deps{
		Registry: platform.Default(),
		Reporter: common.NewLogReporter(log),
		Logger:   log,
		Recorder: m,
	}, stores, broadcaster)
	sessions.StartSweeper(cfg.SessionIdleTTL, time.Minute)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handlers.NewHandler(sessions, repo, log)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(cfg, h, reg, log),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("http server starting",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("persist_mode", cfg.PersistMode),
			zap.Bool("redis", cfg.RedisEnabled))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown", zap.Error(err))
	}
	// flush what the capture queues still hold
	sessions.CloseAll()
	log.Info("shutdown complete")
}
