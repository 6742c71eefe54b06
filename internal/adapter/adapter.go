package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/chat-capture/internal/common"
	"github.com/suPer8Hu/chat-capture/internal/events"
	"github.com/suPer8Hu/chat-capture/internal/models"
	"github.com/suPer8Hu/chat-capture/internal/platform"
	"github.com/suPer8Hu/chat-capture/internal/stream"
)

// Adapter converts one provider's wire formats into canonical messages.
// Handlers report their own failures; the returned error is informational.
type Adapter interface {
	Name() string
	Config() *platform.Config

	ExtractUserMessage(requestBody json.RawMessage, url string) *models.Message
	ExtractAssistantMessage(s stream.Snapshot) *models.Message
	ExtractConversation(body json.RawMessage) *models.Conversation
	ExtractMessagesFromConversation(body json.RawMessage) []models.Message

	HandleConversationList(ctx context.Context, ev events.Intercepted) error
	HandleSpecificConversation(ctx context.Context, ev events.Intercepted) error
	HandleChatCompletion(ctx context.Context, ev events.Intercepted)
	HandleAssistantResponse(ctx context.Context, s stream.Snapshot)

	InsertPrompt(ctx context.Context, content string) bool

	SupportsStreaming() bool
	ProcessStreamingResponse(ctx context.Context, body io.Reader, requestBody json.RawMessage) error
}

// Store is the persistence collaborator.
type Store interface {
	SaveChat(ctx context.Context, c models.Conversation) error
	SaveChatBatch(ctx context.Context, cs []models.Conversation) error
	SaveMessageBatch(ctx context.Context, records []models.MessageRecord) error
}

// Conversations is the page's conversation id resolver.
type Conversations interface {
	CurrentID() string
	SetFromResponse(id string)
}

// PromptWriter places text into the host page's prompt input.
type PromptWriter interface {
	WritePrompt(ctx context.Context, selector, content string) error
}

type Deps struct {
	Store         Store
	Bus           *events.Bus
	Conversations Conversations
	Reporter      common.Reporter
	Prompts       PromptWriter
	Logger        *zap.Logger
	Recorder      stream.Recorder
	EmitEvery     int
	Now           func() time.Time
}

// New returns the adapter for a platform name.
func New(name string, deps Deps) (Adapter, error) {
	switch name {
	case platform.ChatGPT:
		return NewChatGPT(deps), nil
	case platform.Claude:
		return NewClaude(deps), nil
	case platform.Mistral:
		return NewMistral(deps), nil
	case platform.Copilot:
		return NewCopilot(deps), nil
	}
	return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("no adapter for platform %q", name), nil)
}
