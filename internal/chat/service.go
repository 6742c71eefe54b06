package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/chat-capture/internal/adapter"
	"github.com/suPer8Hu/chat-capture/internal/common"
	"github.com/suPer8Hu/chat-capture/internal/events"
	"github.com/suPer8Hu/chat-capture/internal/ingest"
	"github.com/suPer8Hu/chat-capture/internal/platform"
	"github.com/suPer8Hu/chat-capture/internal/resolver"
	"github.com/suPer8Hu/chat-capture/internal/stream"
)

var (
	ErrStreamingUnsupported = errors.New("platform does not stream responses")
	ErrUnknownEvent         = errors.New("unknown inbound event")
)

// Recorder is the metrics surface a session feeds.
type Recorder interface {
	stream.Recorder
	ingest.Recorder
	Inbound(event, platform string)
}

type Config struct {
	FlushInterval time.Duration
	BatchTimeout  time.Duration
	EmitEvery     int
}

type Deps struct {
	Registry *platform.Registry
	Store    adapter.Store
	Reporter common.Reporter
	Logger   *zap.Logger
	Recorder Recorder
}

// Service wires one page session: it owns the conversation id resolver, the
// platform adapter and the ingestion queue, and routes events between them
// over the session bus. A session on an unsupported host is inactive and
// ignores every inbound event.
type Service struct {
	cfg      *platform.Config
	adapter  adapter.Adapter
	bus      *events.Bus
	resolver *resolver.Resolver
	queue    *ingest.Queue
	rec      Recorder
	log      *zap.Logger

	mu     sync.Mutex
	unsubs []func()
	closed bool
}

func NewService(hostname string, cfg Config, deps Deps) *Service {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = common.NewLogReporter(log)
	}
	registry := deps.Registry
	if registry == nil {
		registry = platform.Default()
	}

	s := &Service{bus: events.NewBus(), rec: deps.Recorder, log: log}

	pcfg := registry.ByHostname(hostname)
	if pcfg == nil {
		log.Info("no platform for host, session inactive", zap.String("hostname", hostname))
		return s
	}
	if deps.Store == nil {
		reporter.Capture(context.Background(), common.NewAppError(common.CodeConfig, "capture session without store", nil))
		return s
	}
	s.log = log.With(zap.String("platform", pcfg.Name))
	s.resolver = resolver.New(pcfg, s.conversationChanged)

	adeps := adapter.Deps{
		Store:         deps.Store,
		Bus:           s.bus,
		Conversations: s.resolver,
		Reporter:      reporter,
		Prompts:       adapter.NewBusPromptWriter(s.bus, pcfg.Name),
		Logger:        log,
		EmitEvery:     cfg.EmitEvery,
	}
	qopts := []ingest.Option{
		ingest.WithFlushInterval(cfg.FlushInterval),
		ingest.WithBatchTimeout(cfg.BatchTimeout),
		ingest.WithLogger(s.log),
		ingest.WithReporter(reporter),
	}
	if deps.Recorder != nil {
		adeps.Recorder = deps.Recorder
		qopts = append(qopts, ingest.WithRecorder(deps.Recorder))
	}

	a, err := adapter.New(pcfg.Name, adeps)
	if err != nil {
		reporter.Capture(context.Background(), err)
		s.resolver = nil
		return s
	}
	s.cfg = pcfg
	s.adapter = a
	s.queue = ingest.New(deps.Store, s.resolver, qopts...)
	s.subscribe()
	return s
}

func (s *Service) subscribe() {
	a := s.adapter
	intercepted := func(h func(context.Context, events.Intercepted)) events.Handler {
		return func(ctx context.Context, ev events.Event) {
			if d, ok := ev.Detail.(events.Intercepted); ok {
				h(ctx, d)
			}
		}
	}
	s.unsubs = append(s.unsubs,
		s.bus.Subscribe(events.ChatCompletion, intercepted(a.HandleChatCompletion)),
		s.bus.Subscribe(events.ConversationList, intercepted(func(ctx context.Context, d events.Intercepted) {
			_ = a.HandleConversationList(ctx, d)
		})),
		s.bus.Subscribe(events.SpecificConversation, intercepted(func(ctx context.Context, d events.Intercepted) {
			_ = a.HandleSpecificConversation(ctx, d)
		})),
		s.bus.Subscribe(events.AssistantResponse, func(ctx context.Context, ev events.Event) {
			if snap, ok := ev.Detail.(stream.Snapshot); ok {
				a.HandleAssistantResponse(ctx, snap)
			}
		}),
		s.bus.Subscribe(events.MessageExtracted, s.onExtracted),
	)
}

func (s *Service) onExtracted(_ context.Context, ev events.Event) {
	d, ok := ev.Detail.(events.MessageExtractedDetail)
	if !ok {
		return
	}
	m := d.Message
	if m.ConversationID == "" {
		m.ConversationID = s.resolver.CurrentID()
	}
	s.queue.Enqueue(m)
}

func (s *Service) conversationChanged(id string) {
	s.log.Debug("conversation changed", zap.String("conversation_id", id))
	s.bus.Publish(context.Background(), events.Event{
		Name:     events.ConversationChanged,
		Platform: s.cfg.Name,
		Detail:   events.ConversationChangedDetail{ConversationID: id},
	})
}

func (s *Service) Active() bool { return s.adapter != nil }

// Platform is the detected platform name, "" when inactive.
func (s *Service) Platform() string {
	if s.cfg == nil {
		return ""
	}
	return s.cfg.Name
}

func (s *Service) CurrentConversationID() string {
	if !s.Active() {
		return ""
	}
	return s.resolver.CurrentID()
}

func (s *Service) Navigate(kind, href string) {
	if !s.Active() {
		return
	}
	s.resolver.Navigate(kind, href)
}

// Watch feeds href snapshots to the resolver until ctx ends or hrefs closes.
func (s *Service) Watch(ctx context.Context, hrefs <-chan string) {
	if !s.Active() {
		return
	}
	s.resolver.Watch(ctx, hrefs)
}

// Dispatch raises an intercepted request/response as the named inbound
// event.
func (s *Service) Dispatch(ctx context.Context, name string, ev events.Intercepted) error {
	if !s.Active() {
		return nil
	}
	switch name {
	case events.ChatCompletion, events.ConversationList, events.SpecificConversation:
	case events.UserInfo:
		// nothing in this layer consumes user info
		s.inbound(name)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	s.inbound(name)
	ev.Platform = s.cfg.Name
	s.bus.Publish(ctx, events.Event{Name: name, Platform: s.cfg.Name, Detail: ev})
	return nil
}

// DispatchAssistantResponse raises a snapshot reconstructed elsewhere.
func (s *Service) DispatchAssistantResponse(ctx context.Context, snap stream.Snapshot) {
	if !s.Active() {
		return
	}
	s.inbound(events.AssistantResponse)
	if snap.Platform == "" {
		snap.Platform = s.cfg.Name
	}
	s.bus.Publish(ctx, events.Event{Name: events.AssistantResponse, Platform: s.cfg.Name, Detail: snap})
}

// Capture classifies an intercepted exchange by URL and dispatches it. It
// returns the event name, "" when the URL is not one the platform cares
// about.
func (s *Service) Capture(ctx context.Context, ev events.Intercepted) (string, error) {
	if !s.Active() {
		return "", nil
	}
	name := s.cfg.Classify(ev.URL)
	if name == "" {
		return "", nil
	}
	return name, s.Dispatch(ctx, name, ev)
}

// ProcessStream reconstructs the assistant message from a raw streaming
// response body.
func (s *Service) ProcessStream(ctx context.Context, body io.Reader, requestBody json.RawMessage) error {
	if !s.Active() {
		return nil
	}
	if !s.adapter.SupportsStreaming() {
		return ErrStreamingUnsupported
	}
	return s.adapter.ProcessStreamingResponse(ctx, body, requestBody)
}

func (s *Service) InsertPrompt(ctx context.Context, content string) bool {
	if !s.Active() {
		return false
	}
	return s.adapter.InsertPrompt(ctx, content)
}

// Subscribe delivers the outbound events of this session to fn. The returned
// func cancels the subscription.
func (s *Service) Subscribe(fn events.Handler) func() {
	cancels := make([]func(), 0, len(events.Outbound))
	for _, name := range events.Outbound {
		cancels = append(cancels, s.bus.Subscribe(name, fn))
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

// PendingMessages is the number of messages still waiting for persistence.
func (s *Service) PendingMessages() int {
	if !s.Active() {
		return 0
	}
	return s.queue.Len()
}

// Close detaches the adapter and flushes what the queue can still send.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	if s.queue != nil {
		s.queue.Close()
	}
}

func (s *Service) inbound(name string) {
	if s.rec != nil {
		s.rec.Inbound(name, s.cfg.Name)
	}
}
