package ingest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/chat-capture/internal/common"
	"github.com/suPer8Hu/chat-capture/internal/models"
)

const (
	DefaultFlushInterval = 100 * time.Millisecond
	DefaultBatchTimeout  = 5 * time.Second
)

// Persister receives ready messages, one call per flush cycle.
type Persister interface {
	SaveMessageBatch(ctx context.Context, records []models.MessageRecord) error
}

// ConversationSource supplies the page's current conversation id for
// messages that were extracted before it was known.
type ConversationSource interface {
	CurrentID() string
}

type Recorder interface {
	Enqueued()
	Duplicate()
	Flushed(sent, pending int)
	BatchFailed()
}

type nopRecorder struct{}

func (nopRecorder) Enqueued()        {}
func (nopRecorder) Duplicate()       {}
func (nopRecorder) Flushed(int, int) {}
func (nopRecorder) BatchFailed()     {}

type Option func(*Queue)

func WithFlushInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.interval = d
		}
	}
}

func WithBatchTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.batchTimeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.log = l
		}
	}
}

func WithReporter(r common.Reporter) Option {
	return func(q *Queue) {
		if r != nil {
			q.reporter = r
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(q *Queue) {
		if r != nil {
			q.rec = r
		}
	}
}

// Queue batches extracted messages to a Persister. A message is handed over
// at most once per id, and only with a conversation id. Messages without one
// wait until the ConversationSource can supply it.
type Queue struct {
	store        Persister
	conv         ConversationSource
	reporter     common.Reporter
	log          *zap.Logger
	rec          Recorder
	interval     time.Duration
	batchTimeout time.Duration

	mu        sync.Mutex
	entries   []models.Message
	processed map[string]struct{}
	timer     *time.Timer
	running   bool // a cycle is scheduled or in flight
	closed    bool
	wg        sync.WaitGroup // one count per scheduled cycle
}

func New(store Persister, conv ConversationSource, opts ...Option) *Queue {
	q := &Queue{
		store:        store,
		conv:         conv,
		log:          zap.NewNop(),
		rec:          nopRecorder{},
		interval:     DefaultFlushInterval,
		batchTimeout: DefaultBatchTimeout,
		processed:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.reporter == nil {
		q.reporter = common.NewLogReporter(q.log)
	}
	return q
}

// Enqueue accepts a message for persistence. Ids already handed over are
// dropped; a still-pending copy with the same id is replaced in place.
func (q *Queue) Enqueue(m models.Message) {
	if m.MessageID == "" {
		m.MessageID = common.FallbackID(string(m.Role))
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if _, ok := q.processed[m.MessageID]; ok {
		q.rec.Duplicate()
		return
	}

	replaced := false
	for i := range q.entries {
		if q.entries[i].MessageID != m.MessageID {
			continue
		}
		if m.ConversationID == "" {
			m.ConversationID = q.entries[i].ConversationID
		}
		q.entries[i] = m
		replaced = true
		break
	}
	if !replaced {
		q.entries = append(q.entries, m)
		q.rec.Enqueued()
	}
	if m.ConversationID != "" {
		q.processed[m.MessageID] = struct{}{}
	}

	if !q.running {
		q.schedule()
	}
}

// Len is the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// pending returns a copy of the queued messages in order.
func (q *Queue) pending() []models.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.Message(nil), q.entries...)
}

// Close stops the flush loop, waits for an in-flight cycle and sends what is
// ready. Messages still without a conversation id are dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	if q.timer != nil && q.timer.Stop() {
		q.wg.Done()
	}
	q.mu.Unlock()

	q.wg.Wait()
	q.flush(context.Background())

	if n := q.Len(); n > 0 {
		q.log.Warn("dropping unresolved messages", zap.Int("count", n))
	}
}

// schedule arms the next cycle. Caller holds q.mu.
func (q *Queue) schedule() {
	q.running = true
	q.wg.Add(1)
	q.timer = time.AfterFunc(q.interval, q.tick)
}

func (q *Queue) tick() {
	defer q.wg.Done()
	q.flush(context.Background())

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.entries) == 0 {
		q.running = false
		return
	}
	q.schedule()
}

// flush runs one cycle: fill missing conversation ids, send the ready
// messages as one batch and keep the rest.
func (q *Queue) flush(ctx context.Context) {
	fallback := ""
	if q.conv != nil {
		fallback = q.conv.CurrentID()
	}

	q.mu.Lock()
	var ready, pending []models.Message
	for _, m := range q.entries {
		if m.ConversationID == "" {
			m.ConversationID = fallback
		}
		if m.ConversationID == "" {
			pending = append(pending, m)
			continue
		}
		q.processed[m.MessageID] = struct{}{}
		ready = append(ready, m)
	}
	q.entries = pending
	q.mu.Unlock()

	q.rec.Flushed(len(ready), len(pending))
	if len(ready) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, q.batchTimeout)
	defer cancel()
	if err := q.store.SaveMessageBatch(ctx, models.Records(ready)); err != nil {
		q.rec.BatchFailed()
		q.reporter.Capture(ctx, common.NewAppError(common.CodeAPI, "save message batch", err))
		return
	}
	q.log.Debug("message batch saved",
		zap.Int("sent", len(ready)),
		zap.Int("pending", len(pending)))
}
