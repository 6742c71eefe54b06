package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/suPer8Hu/chat-capture/internal/adapter"
	"github.com/suPer8Hu/chat-capture/internal/events"
	"github.com/suPer8Hu/chat-capture/internal/resolver"
)

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, sessionID string, ev events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sent == nil {
		b.sent = make(map[string][]string)
	}
	b.sent[sessionID] = append(b.sent[sessionID], ev.Name)
	return nil
}

func (b *recordingBroadcaster) names(sessionID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent[sessionID]...)
}

func TestSessions_Lifecycle(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	bc := &recordingBroadcaster{}
	m := NewSessions(Config{FlushInterval: 5 * time.Millisecond}, Deps{},
		func(uid uint64) adapter.Store { return repo.ForUser(uid) }, bc)

	id, svc, err := m.Open(1, "chatgpt.com", "https://chatgpt.com/c/abc-123")
	require.NoError(t, err)
	assert.Len(t, id, 26)
	assert.True(t, svc.Active())
	assert.Equal(t, "abc-123", svc.CurrentConversationID())
	assert.Equal(t, []string{events.ConversationChanged}, bc.names(id))

	got, err := m.Get(1, id)
	require.NoError(t, err)
	assert.Same(t, svc, got)

	_, err = m.Get(2, id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Close(2, id), ErrSessionNotFound)

	svc.Navigate(resolver.PopState, "https://chatgpt.com/c/def-456")
	assert.Equal(t, []string{events.ConversationChanged, events.ConversationChanged}, bc.names(id))

	require.NoError(t, m.Close(1, id))
	assert.Equal(t, 0, m.Len())
	_, err = m.Get(1, id)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// closed sessions no longer broadcast
	svc.Navigate(resolver.PopState, "https://chatgpt.com/c/0a0")
	assert.Len(t, bc.names(id), 2)
}

func TestSessions_UnknownHostAndCloseAll(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	m := NewSessions(Config{}, Deps{}, func(uid uint64) adapter.Store { return repo.ForUser(uid) }, nil)

	_, svc, err := m.Open(1, "news.example.org", "")
	require.NoError(t, err)
	assert.False(t, svc.Active())

	_, _, err = m.Open(1, "claude.ai", "")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	m.CloseAll()
	assert.Equal(t, 0, m.Len())
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestSessions_SweepClosesIdle(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewSessions(Config{FlushInterval: time.Hour}, Deps{}, func(uint64) adapter.Store { return brokenStore{} }, nil)
	m.now = func() time.Time { return now }
	defer m.CloseAll()

	busyID, busy, err := m.Open(1, "claude.ai", "https://claude.ai/chat/c1")
	require.NoError(t, err)
	idleID, idle, err := m.Open(1, "claude.ai", "https://claude.ai/chat/c2")
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	_, err = m.Get(1, busyID)
	require.NoError(t, err)

	now = now.Add(15 * time.Minute)
	assert.Equal(t, 1, m.sweep(30*time.Minute))

	_, err = m.Get(1, idleID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.True(t, idle.isClosed())
	assert.False(t, busy.isClosed())
	assert.Equal(t, 1, m.Len())
}

func TestSessions_SweeperStopsQueues(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := NewSessions(Config{FlushInterval: 5 * time.Millisecond}, Deps{}, func(uint64) adapter.Store { return brokenStore{} }, nil)
	_, svc, err := m.Open(1, "claude.ai", "https://claude.ai/new")
	require.NoError(t, err)

	// no conversation id yet: the queue keeps cycling until the session ends
	require.NoError(t, svc.Dispatch(context.Background(), events.ChatCompletion, events.Intercepted{
		URL:         "https://claude.ai/api/organizations/0a/completion",
		RequestBody: []byte(`{"prompt":"Hi"}`),
	}))
	require.Equal(t, 1, svc.PendingMessages())

	m.StartSweeper(20*time.Millisecond, 5*time.Millisecond)
	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, svc.isClosed())

	m.CloseAll()
	m.CloseAll()
}
