package events

import (
	"encoding/json"

	"github.com/suPer8Hu/chat-capture/internal/models"
)

// Inbound, raised by the transport interceptor.
const (
	ChatCompletion       = "jaydai:chat-completion"
	AssistantResponse    = "jaydai:assistant-response"
	ConversationList     = "jaydai:conversation-list"
	SpecificConversation = "jaydai:specific-conversation"
	UserInfo             = "jaydai:user-info"
)

// Outbound, consumed by the rest of the extension.
const (
	MessageExtracted    = "jaydai:message-extracted"
	ConversationLoaded  = "jaydai:conversation-loaded"
	ConversationChanged = "jaydai:conversation-changed"
	InsertPrompt        = "jaydai:insert-prompt"
)

// Outbound lists the events re-broadcast to page-side consumers.
var Outbound = []string{
	MessageExtracted,
	ConversationLoaded,
	ConversationChanged,
	AssistantResponse,
	InsertPrompt,
}

type Event struct {
	Name     string `json:"name"`
	Platform string `json:"platform,omitempty"`
	Detail   any    `json:"detail"`
}

// Intercepted carries a captured request/response pair in the provider's raw
// wire shape.
type Intercepted struct {
	Platform     string          `json:"platform"`
	URL          string          `json:"url,omitempty"`
	RequestBody  json.RawMessage `json:"requestBody,omitempty"`
	ResponseBody json.RawMessage `json:"responseBody,omitempty"`
}

type MessageExtractedDetail struct {
	Message  models.Message `json:"message"`
	Platform string         `json:"platform"`
}

type ConversationLoadedDetail struct {
	Conversation models.Conversation `json:"conversation"`
	Messages     []models.Message    `json:"messages"`
}

type ConversationChangedDetail struct {
	ConversationID string `json:"conversationId"`
}

type InsertPromptDetail struct {
	Selector string `json:"selector"`
	Content  string `json:"content"`
}
