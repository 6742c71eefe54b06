package redisstore

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/chat-capture/internal/chat"
	"github.com/suPer8Hu/chat-capture/internal/events"
)

var _ chat.Broadcaster = (*Store)(nil)

func TestChannel(t *testing.T) {
	assert.Equal(t, "jaydai:events:01HZX", Channel("01HZX"))
}

func TestBroadcast_DialFailure(t *testing.T) {
	errDial := errors.New("no route to redis")
	s := New(redis.NewClient(&redis.Options{
		Addr:       "redis.invalid:6379",
		MaxRetries: -1,
		Dialer: func(context.Context, string, string) (net.Conn, error) {
			return nil, errDial
		},
	}))
	defer s.Close()

	err := s.Broadcast(context.Background(), "s1", events.Event{
		Name:   events.ConversationChanged,
		Detail: events.ConversationChangedDetail{ConversationID: "c1"},
	})
	require.Error(t, err)
	assert.Error(t, s.Ping(context.Background()))
}
