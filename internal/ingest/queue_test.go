package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/suPer8Hu/chat-capture/internal/common"
	"github.com/suPer8Hu/chat-capture/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStore struct {
	mu      sync.Mutex
	batches [][]models.MessageRecord
	err     error
}

func (s *fakeStore) SaveMessageBatch(_ context.Context, recs []models.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, recs)
	return s.err
}

func (s *fakeStore) calls() [][]models.MessageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]models.MessageRecord(nil), s.batches...)
}

type fakeSource struct {
	mu sync.Mutex
	id string
}

func (f *fakeSource) CurrentID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

func (f *fakeSource) set(id string) {
	f.mu.Lock()
	f.id = id
	f.mu.Unlock()
}

// manual returns a queue whose timer never fires during the test; cycles are
// driven by calling flush directly.
func manual(store Persister, src ConversationSource, opts ...Option) *Queue {
	return New(store, src, append([]Option{WithFlushInterval(time.Hour)}, opts...)...)
}

func msg(id, conv string) models.Message {
	return models.Message{MessageID: id, ConversationID: conv, Role: models.RoleUser, Content: "hi " + id}
}

func TestQueue_DeferredResolution(t *testing.T) {
	store := &fakeStore{}
	src := &fakeSource{}
	q := manual(store, src)
	defer q.Close()

	q.Enqueue(msg("x", ""))
	for i := 0; i < 3; i++ {
		q.flush(context.Background())
	}
	assert.Empty(t, store.calls())
	assert.Equal(t, 1, q.Len())

	src.set("c9")
	q.flush(context.Background())

	calls := store.calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 1)
	assert.Equal(t, "x", calls[0][0].MessageProviderID)
	assert.Equal(t, "c9", calls[0][0].ChatProviderID)

	q.flush(context.Background())
	assert.Len(t, store.calls(), 1)
}

func TestQueue_AtMostOnce(t *testing.T) {
	store := &fakeStore{}
	q := manual(store, &fakeSource{})
	defer q.Close()

	q.Enqueue(msg("x", ""))
	q.Enqueue(msg("x", ""))
	assert.Equal(t, 1, q.Len())

	q.Enqueue(msg("x", "c1"))
	q.Enqueue(msg("x", "c1"))
	q.Enqueue(msg("x", ""))
	q.flush(context.Background())

	q.Enqueue(msg("x", "c1"))
	q.flush(context.Background())

	calls := store.calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 1)
	assert.Equal(t, "c1", calls[0][0].ChatProviderID)
}

func TestQueue_PendingReplacementKeepsConversation(t *testing.T) {
	store := &fakeStore{}
	q := manual(store, &fakeSource{})
	defer q.Close()

	q.Enqueue(msg("a", ""))
	q.Enqueue(msg("b", ""))
	updated := msg("a", "")
	updated.Content = "longer content"
	q.Enqueue(updated)

	pending := q.pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].MessageID)
	assert.Equal(t, "longer content", pending[0].Content)
}

func TestQueue_BatchOrder(t *testing.T) {
	store := &fakeStore{}
	src := &fakeSource{}
	q := manual(store, src)
	defer q.Close()

	q.Enqueue(msg("1", "c"))
	q.Enqueue(msg("2", ""))
	q.Enqueue(msg("3", "c"))
	src.set("c")
	q.flush(context.Background())

	calls := store.calls()
	require.Len(t, calls, 1)
	var ids []string
	for _, r := range calls[0] {
		ids = append(ids, r.MessageProviderID)
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
}

func TestQueue_FailureReportedNotRetried(t *testing.T) {
	store := &fakeStore{err: errors.New("503")}
	rep := &common.MemoryReporter{}
	q := manual(store, &fakeSource{}, WithReporter(rep))
	defer q.Close()

	q.Enqueue(msg("x", "c1"))
	q.flush(context.Background())
	q.flush(context.Background())

	assert.Len(t, store.calls(), 1)
	assert.Equal(t, 0, q.Len())
	require.Len(t, rep.Errors(), 1)
	assert.Equal(t, common.CodeAPI, common.CodeOf(rep.Errors()[0]))

	// the id stays processed
	q.Enqueue(msg("x", "c1"))
	assert.Equal(t, 0, q.Len())
}

func TestQueue_TimerFlushesAndGoesIdle(t *testing.T) {
	store := &fakeStore{}
	q := New(store, &fakeSource{}, WithFlushInterval(5*time.Millisecond))
	defer q.Close()

	q.Enqueue(msg("x", "c1"))
	require.Eventually(t, func() bool { return len(store.calls()) == 1 }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return !q.running
	}, time.Second, 5*time.Millisecond)

	// a later enqueue restarts the loop
	q.Enqueue(msg("y", "c1"))
	require.Eventually(t, func() bool { return len(store.calls()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestQueue_CloseSendsReady(t *testing.T) {
	store := &fakeStore{}
	q := manual(store, &fakeSource{})

	q.Enqueue(msg("x", "c1"))
	q.Enqueue(msg("y", ""))
	q.Close()
	q.Close()

	calls := store.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "x", calls[0][0].MessageProviderID)

	q.Enqueue(msg("z", "c1"))
	assert.Equal(t, 1, q.Len())
}
