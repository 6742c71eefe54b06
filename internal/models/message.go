package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is the canonical message extracted from a provider. ConversationID
// may be empty until the page's conversation id is resolved.
type Message struct {
	MessageID               string    `json:"messageId"`
	ConversationID          string    `json:"conversationId"`
	Content                 string    `json:"content"`
	Role                    Role      `json:"role"`
	Model                   string    `json:"model"`
	Timestamp               time.Time `json:"timestamp"`
	ParentMessageProviderID string    `json:"parentMessageProviderId,omitempty"`
	ThinkingTime            *float64  `json:"thinkingTime,omitempty"`
}

type Conversation struct {
	ChatProviderID string `json:"chat_provider_id"`
	Title          string `json:"title"`
	ProviderName   string `json:"provider_name"`
}

// MessageRecord is the persistence wire shape of a Message.
type MessageRecord struct {
	MessageProviderID       string `json:"message_provider_id"`
	ChatProviderID          string `json:"chat_provider_id"`
	Content                 string `json:"content"`
	Role                    string `json:"role"`
	Model                   string `json:"model"`
	CreatedAt               int64  `json:"created_at"` // unix ms
	ParentMessageProviderID string `json:"parent_message_provider_id,omitempty"`
}

func (m Message) Record() MessageRecord {
	model := m.Model
	if model == "" {
		model = "unknown"
	}
	var created int64
	if !m.Timestamp.IsZero() {
		created = m.Timestamp.UnixMilli()
	}
	return MessageRecord{
		MessageProviderID:       m.MessageID,
		ChatProviderID:          m.ConversationID,
		Content:                 m.Content,
		Role:                    string(m.Role),
		Model:                   model,
		CreatedAt:               created,
		ParentMessageProviderID: m.ParentMessageProviderID,
	}
}

func Records(msgs []Message) []MessageRecord {
	out := make([]MessageRecord, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Record())
	}
	return out
}
