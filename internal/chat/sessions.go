package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/chat-capture/internal/adapter"
	"github.com/suPer8Hu/chat-capture/internal/common"
	"github.com/suPer8Hu/chat-capture/internal/events"
	"github.com/suPer8Hu/chat-capture/internal/resolver"
)

var ErrSessionNotFound = errors.New("session not found")

// StoreFactory returns the persistence store of one user.
type StoreFactory func(userID uint64) adapter.Store

// Broadcaster fans a session's outbound events out of process.
type Broadcaster interface {
	Broadcast(ctx context.Context, sessionID string, ev events.Event) error
}

type session struct {
	userID   uint64
	svc      *Service
	cancel   func()
	lastSeen atomic.Int64 // unix nanos
}

func (s *session) touch(now time.Time) { s.lastSeen.Store(now.UnixNano()) }

func (s *session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

// Sessions owns the capture sessions of this process, keyed by ULID.
type Sessions struct {
	cfg         Config
	deps        Deps
	stores      StoreFactory
	broadcaster Broadcaster
	log         *zap.Logger
	now         func() time.Time

	mu   sync.RWMutex
	byID map[string]*session

	sweepMu   sync.Mutex
	sweepStop chan struct{}
	sweepDone chan struct{}
}

// NewSessions builds a manager. deps.Store is ignored; each session gets the
// store of its user from stores. broadcaster may be nil.
func NewSessions(cfg Config, deps Deps, stores StoreFactory, broadcaster Broadcaster) *Sessions {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Sessions{
		cfg:         cfg,
		deps:        deps,
		stores:      stores,
		broadcaster: broadcaster,
		log:         log,
		now:         time.Now,
		byID:        make(map[string]*session),
	}
}

// Open starts a session for the page at hostname and resolves its initial
// conversation id from href.
func (m *Sessions) Open(userID uint64, hostname, href string) (string, *Service, error) {
	id, err := common.NewULID()
	if err != nil {
		return "", nil, err
	}

	deps := m.deps
	deps.Store = m.stores(userID)
	deps.Logger = m.log.With(zap.String("session_id", id))
	svc := NewService(hostname, m.cfg, deps)

	sess := &session{userID: userID, svc: svc, cancel: func() {}}
	sess.touch(m.now())
	if m.broadcaster != nil && svc.Active() {
		sess.cancel = svc.Subscribe(func(ctx context.Context, ev events.Event) {
			if err := m.broadcaster.Broadcast(ctx, id, ev); err != nil {
				m.log.Warn("broadcast failed",
					zap.String("session_id", id),
					zap.String("event", ev.Name),
					zap.Error(err))
			}
		})
	}
	if href != "" {
		svc.Navigate(resolver.Initial, href)
	}

	m.mu.Lock()
	m.byID[id] = sess
	m.mu.Unlock()

	m.log.Info("capture session opened",
		zap.String("session_id", id),
		zap.Uint64("user_id", userID),
		zap.String("platform", svc.Platform()),
		zap.Bool("active", svc.Active()))
	return id, svc, nil
}

// Get returns the session if it exists and belongs to userID, and marks it
// active.
func (m *Sessions) Get(userID uint64, id string) (*Service, error) {
	m.mu.RLock()
	sess, ok := m.byID[id]
	m.mu.RUnlock()
	if !ok || sess.userID != userID {
		// hide existence
		return nil, ErrSessionNotFound
	}
	sess.touch(m.now())
	return sess.svc, nil
}

func (m *Sessions) Close(userID uint64, id string) error {
	m.mu.Lock()
	sess, ok := m.byID[id]
	if !ok || sess.userID != userID {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.byID, id)
	m.mu.Unlock()

	sess.cancel()
	sess.svc.Close()
	return nil
}

// StartSweeper closes sessions nobody touched for ttl, checking every
// interval. A page that goes away without closing its session would
// otherwise keep its queue alive for the life of the process. CloseAll
// stops the sweeper.
func (m *Sessions) StartSweeper(ttl, interval time.Duration) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 || interval > ttl {
		interval = ttl / 2
	}
	if interval <= 0 {
		interval = ttl
	}

	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()
	if m.sweepStop != nil {
		return
	}
	stop, done := make(chan struct{}), make(chan struct{})
	m.sweepStop, m.sweepDone = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if n := m.sweep(ttl); n > 0 {
					m.log.Info("idle capture sessions closed", zap.Int("count", n), zap.Duration("ttl", ttl))
				}
			}
		}
	}()
}

func (m *Sessions) stopSweeper() {
	m.sweepMu.Lock()
	stop, done := m.sweepStop, m.sweepDone
	m.sweepStop, m.sweepDone = nil, nil
	m.sweepMu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

// sweep closes the sessions idle for longer than ttl and returns how many.
func (m *Sessions) sweep(ttl time.Duration) int {
	now := m.now()
	var idle []*session

	m.mu.Lock()
	for id, sess := range m.byID {
		if sess.idleSince(now) > ttl {
			delete(m.byID, id)
			idle = append(idle, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range idle {
		sess.cancel()
		sess.svc.Close()
	}
	return len(idle)
}

// CloseAll stops the sweeper and tears every session down; used on shutdown.
func (m *Sessions) CloseAll() {
	m.stopSweeper()

	m.mu.Lock()
	all := m.byID
	m.byID = make(map[string]*session)
	m.mu.Unlock()

	for _, sess := range all {
		sess.cancel()
		sess.svc.Close()
	}
}

func (m *Sessions) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}
