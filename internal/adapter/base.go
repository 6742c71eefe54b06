package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/chat-capture/internal/common"
	"github.com/suPer8Hu/chat-capture/internal/events"
	"github.com/suPer8Hu/chat-capture/internal/models"
	"github.com/suPer8Hu/chat-capture/internal/platform"
	"github.com/suPer8Hu/chat-capture/internal/stream"
)

// base carries what every provider adapter shares.
type base struct {
	cfg  *platform.Config
	deps Deps
	log  *zap.Logger
}

func newBase(cfg *platform.Config, deps Deps) base {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Reporter == nil {
		deps.Reporter = common.NewLogReporter(deps.Logger)
	}
	if deps.Bus == nil {
		deps.Bus = events.NewBus()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return base{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger.With(zap.String("platform", cfg.Name)),
	}
}

func (b *base) Name() string             { return b.cfg.Name }
func (b *base) Config() *platform.Config { return b.cfg }
func (b *base) now() time.Time           { return b.deps.Now() }

func (b *base) report(ctx context.Context, code common.ErrorCode, msg string, err error) error {
	appErr := common.NewAppError(code, b.cfg.DisplayName+": "+msg, err)
	b.deps.Reporter.Capture(ctx, appErr)
	return appErr
}

func (b *base) publish(ctx context.Context, name string, detail any) {
	b.deps.Bus.Publish(ctx, events.Event{Name: name, Platform: b.cfg.Name, Detail: detail})
}

func (b *base) extracted(ctx context.Context, m *models.Message) {
	if m == nil {
		return
	}
	b.publish(ctx, events.MessageExtracted, events.MessageExtractedDetail{Message: *m, Platform: b.cfg.Name})
}

func (b *base) currentConversation() string {
	if b.deps.Conversations == nil {
		return ""
	}
	return b.deps.Conversations.CurrentID()
}

func (b *base) pinConversation(id string) {
	if b.deps.Conversations != nil {
		b.deps.Conversations.SetFromResponse(id)
	}
}

func (b *base) saveChatList(ctx context.Context, chats []models.Conversation) error {
	if len(chats) == 0 {
		return nil
	}
	if b.deps.Store == nil {
		return nil
	}
	if err := b.deps.Store.SaveChatBatch(ctx, chats); err != nil {
		return b.report(ctx, common.CodeAPI, "save conversation list", err)
	}
	b.log.Debug("conversation list saved", zap.Int("count", len(chats)))
	return nil
}

// saveConversation persists a loaded conversation and its messages, pins the
// conversation id and announces it.
func (b *base) saveConversation(ctx context.Context, conv models.Conversation, msgs []models.Message) error {
	if b.deps.Store != nil {
		if err := b.deps.Store.SaveChat(ctx, conv); err != nil {
			return b.report(ctx, common.CodeAPI, "save conversation", err)
		}
		if err := b.deps.Store.SaveMessageBatch(ctx, models.Records(msgs)); err != nil {
			return b.report(ctx, common.CodeAPI, "save conversation messages", err)
		}
	}
	b.pinConversation(conv.ChatProviderID)
	b.publish(ctx, events.ConversationLoaded, events.ConversationLoadedDetail{Conversation: conv, Messages: msgs})
	return nil
}

// InsertPrompt hands the prompt to the page through the configured writer.
func (b *base) InsertPrompt(ctx context.Context, content string) bool {
	if content == "" || b.deps.Prompts == nil {
		return false
	}
	selector := b.cfg.Selectors.PromptInput
	if selector == "" {
		return false
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if err := b.deps.Prompts.WritePrompt(ctx, selector, content); err != nil {
		b.report(ctx, common.CodeInjection, "insert prompt", err)
		return false
	}
	return true
}

func (b *base) streamOptions(seed stream.Seed) stream.Options {
	return stream.Options{
		Platform:  b.cfg.Name,
		EmitEvery: b.deps.EmitEvery,
		Seed:      seed,
		Logger:    b.log,
		Recorder:  b.deps.Recorder,
	}
}

// emitAssistant forwards processor snapshots as assistant-response events.
func (b *base) emitAssistant(ctx context.Context, s stream.Snapshot) {
	b.publish(ctx, events.AssistantResponse, s)
}

func (b *base) streamFailed(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	return b.report(ctx, common.CodeNetwork, "read streaming response", err)
}

// noStreaming is embedded by providers that answer with a single JSON body.
type noStreaming struct{}

func (noStreaming) SupportsStreaming() bool { return false }

func (noStreaming) ProcessStreamingResponse(context.Context, io.Reader, json.RawMessage) error {
	return nil
}

// BusPromptWriter forwards prompts to the page as insert-prompt events.
type BusPromptWriter struct {
	bus      *events.Bus
	platform string
}

func NewBusPromptWriter(bus *events.Bus, platformName string) *BusPromptWriter {
	return &BusPromptWriter{bus: bus, platform: platformName}
}

func (w *BusPromptWriter) WritePrompt(ctx context.Context, selector, content string) error {
	if w.bus.Publish(ctx, events.Event{
		Name:     events.InsertPrompt,
		Platform: w.platform,
		Detail:   events.InsertPromptDetail{Selector: selector, Content: content},
	}) == 0 {
		return errors.New("no page listener for insert-prompt")
	}
	return nil
}
