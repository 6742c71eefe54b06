package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/suPer8Hu/chat-capture/internal/chat"
)

// Handler applies one job. A returned error schedules a retry until the
// attempts are used up; the job then goes to the dead-letter queue.
type Handler func(ctx context.Context, job chat.PersistJob) error

type ConsumerConfig struct {
	URL         string
	Queue       string
	Concurrency int
	MaxAttempts int
	RetryDelay  time.Duration
}

type Consumer struct {
	cfg    ConsumerConfig
	handle Handler
	log    *zap.Logger

	retryMu sync.Mutex
	retry   channel // set while Run is connected
}

func NewConsumer(cfg ConsumerConfig, handle Handler, log *zap.Logger) *Consumer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{cfg: cfg, handle: handle, log: log}
}

// Run consumes until ctx ends or the broker connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := declareTopology(ch, c.cfg.Queue); err != nil {
		return err
	}

	// strict concurrency control
	if err := ch.Qos(c.cfg.Concurrency, 0, false); err != nil {
		return err
	}

	msgs, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	c.retry = ch

	c.log.Info("consumer started",
		zap.String("queue", c.cfg.Queue),
		zap.Int("concurrency", c.cfg.Concurrency))

	// worker pool
	jobs := make(chan amqp.Delivery, c.cfg.Concurrency*2)

	var wg sync.WaitGroup
	wg.Add(c.cfg.Concurrency)
	for i := 0; i < c.cfg.Concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				c.process(ctx, workerID, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			c.log.Info("consumer shutting down")
			close(jobs)
			wg.Wait()
			return nil

		case d, ok := <-msgs:
			if !ok {
				close(jobs)
				wg.Wait()
				return errors.New("delivery channel closed")
			}
			jobs <- d
		}
	}
}

func (c *Consumer) process(ctx context.Context, workerID int, d amqp.Delivery) {
	log := c.log.With(zap.Int("worker", workerID), zap.String("message_id", d.MessageId))

	var job chat.PersistJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Warn("bad message", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	if err := job.Validate(); err != nil {
		log.Warn("bad job", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	err := c.handle(ctx, job)
	if err == nil {
		if err := d.Ack(false); err != nil {
			log.Warn("ack failed", zap.String("job", job.ID), zap.Error(err))
		}
		return
	}

	attempt := attemptOf(d.Headers)
	log.Warn("job failed",
		zap.String("job", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.Int("attempt", attempt),
		zap.Duration("cost", time.Since(start)),
		zap.Error(err))

	if attempt >= c.cfg.MaxAttempts || c.retry == nil {
		_ = d.Nack(false, false)
		return
	}
	if err := c.requeue(ctx, d, attempt+1); err != nil {
		log.Warn("retry publish failed", zap.String("job", job.ID), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// requeue parks the delivery on the retry queue; its TTL dead-letters it
// back to the main queue.
func (c *Consumer) requeue(ctx context.Context, d amqp.Delivery, attempt int) error {
	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	c.retryMu.Lock()
	defer c.retryMu.Unlock()
	return c.retry.PublishWithContext(cctx, "", retryQueue(c.cfg.Queue), false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Body:         d.Body,
		Timestamp:    time.Now(),
		Expiration:   strconv.FormatInt(c.cfg.RetryDelay.Milliseconds(), 10),
		Headers:      amqp.Table{attemptHeader: int32(attempt)},
	})
}

func attemptOf(h amqp.Table) int {
	switch v := h[attemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 1
}
