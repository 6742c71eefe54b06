package redisstore

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/suPer8Hu/chat-capture/internal/events"
)

const channelPrefix = "jaydai:events:"

// Store publishes session events on redis pub/sub so other processes (the
// extension bridge, dashboards) can follow a capture session.
type Store struct {
	rdb *redis.Client
}

func NewStore(addr, password string, db int) *Store {
	return New(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func Channel(sessionID string) string {
	return channelPrefix + sessionID
}

func (s *Store) Broadcast(ctx context.Context, sessionID string, ev events.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, Channel(sessionID), b).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
