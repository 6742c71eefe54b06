package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/chat-capture/internal/chat"
	"github.com/suPer8Hu/chat-capture/internal/config"
	"github.com/suPer8Hu/chat-capture/internal/db"
	"github.com/suPer8Hu/chat-capture/internal/logger"
	"github.com/suPer8Hu/chat-capture/internal/store/rabbitmq"
)

const reconnectDelay = 3 * time.Second

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

	consumer := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitURL,
		Queue:       cfg.RabbitQueue,
		Concurrency: cfg.WorkerConcurrency,
	}, repo.ApplyJob, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		err := consumer.Run(ctx)
		if ctx.Err() != nil {
			log.Info("worker stopped")
			return
		}
		log.Warn("consumer disconnected, reconnecting",
			zap.Duration("delay", reconnectDelay), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}
