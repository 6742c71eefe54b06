package adapter

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/suPer8Hu/chat-capture/internal/common"
	"github.com/suPer8Hu/chat-capture/internal/events"
	"github.com/suPer8Hu/chat-capture/internal/models"
	"github.com/suPer8Hu/chat-capture/internal/platform"
	"github.com/suPer8Hu/chat-capture/internal/stream"
)

var claudeConversationInURL = regexp.MustCompile(`/chat_conversations/([a-f0-9-]+)`)

// Claude answers with a single JSON body; there is no streaming path.
type Claude struct {
	base
	noStreaming
}

func NewClaude(deps Deps) *Claude {
	return &Claude{base: newBase(platform.ClaudeConfig(), deps)}
}

type claudeRequest struct {
	Prompt            string `json:"prompt"`
	ParentMessageUUID string `json:"parent_message_uuid"`
	ConversationID    string `json:"conversation_id"`
	Model             string `json:"model"`
}

type claudeConversation struct {
	UUID         string `json:"uuid"`
	Name         string `json:"name"`
	Model        string `json:"model"`
	ChatMessages []struct {
		UUID              string          `json:"uuid"`
		Sender            string          `json:"sender"`
		Content           json.RawMessage `json:"content"`
		Text              string          `json:"text"`
		CreatedAt         string          `json:"created_at"`
		Index             int             `json:"index"`
		ParentMessageUUID string          `json:"parent_message_uuid"`
	} `json:"chat_messages"`
}

type claudeChat struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

func (a *Claude) ExtractUserMessage(body json.RawMessage, url string) *models.Message {
	var req claudeRequest
	if !decode(body, &req) || req.Prompt == "" {
		return nil
	}
	convID := req.ConversationID
	if convID == "" {
		if m := claudeConversationInURL.FindStringSubmatch(url); len(m) > 1 {
			convID = m[1]
		}
	}
	return &models.Message{
		MessageID:               common.FallbackID("user"),
		ConversationID:          convID,
		Content:                 req.Prompt,
		Role:                    models.RoleUser,
		Model:                   firstNonEmpty(req.Model, "claude"),
		Timestamp:               a.now(),
		ParentMessageProviderID: req.ParentMessageUUID,
	}
}

func (a *Claude) ExtractAssistantMessage(s stream.Snapshot) *models.Message {
	if s.Content == "" {
		return nil
	}
	ts := a.now()
	if s.CreateTime > 0 {
		ts = unixSeconds(s.CreateTime)
	}
	return &models.Message{
		MessageID:               firstNonEmpty(s.MessageID, common.FallbackID("claude")),
		ConversationID:          s.ConversationID,
		Content:                 s.Content,
		Role:                    models.RoleAssistant,
		Model:                   firstNonEmpty(s.Model, "claude"),
		Timestamp:               ts,
		ParentMessageProviderID: s.ParentMessageID,
		ThinkingTime:            s.ThinkingTime,
	}
}

func (a *Claude) ExtractConversation(body json.RawMessage) *models.Conversation {
	var c claudeConversation
	if !decode(body, &c) || c.UUID == "" {
		return nil
	}
	return &models.Conversation{
		ChatProviderID: c.UUID,
		Title:          firstNonEmpty(c.Name, "Conversation"),
		ProviderName:   a.cfg.DisplayName,
	}
}

func (a *Claude) ExtractMessagesFromConversation(body json.RawMessage) []models.Message {
	var c claudeConversation
	if !decode(body, &c) {
		return nil
	}
	model := firstNonEmpty(c.Model, "claude")
	now := a.now()

	type indexed struct {
		msg   models.Message
		index int
	}
	out := make([]indexed, 0, len(c.ChatMessages))
	for _, m := range c.ChatMessages {
		role := m.Sender
		if role == "human" {
			role = string(models.RoleUser)
		}
		if role != string(models.RoleUser) && role != string(models.RoleAssistant) {
			continue
		}
		content := textOf(m.Content)
		if content == "" {
			content = m.Text
		}
		ts, ok := parseTimestamp(m.CreatedAt)
		if !ok {
			ts = now
		}
		out = append(out, indexed{
			index: m.Index,
			msg: models.Message{
				MessageID:               m.UUID,
				ConversationID:          c.UUID,
				Content:                 content,
				Role:                    models.Role(role),
				Model:                   model,
				Timestamp:               ts,
				ParentMessageProviderID: m.ParentMessageUUID,
			},
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].msg.Timestamp.Equal(out[j].msg.Timestamp) {
			return out[i].msg.Timestamp.Before(out[j].msg.Timestamp)
		}
		return out[i].index < out[j].index
	})

	msgs := make([]models.Message, len(out))
	for i := range out {
		msgs[i] = out[i].msg
	}
	return msgs
}

func (a *Claude) HandleConversationList(ctx context.Context, ev events.Intercepted) error {
	var list []claudeChat
	if !decode(ev.ResponseBody, &list) {
		return nil
	}
	chats := make([]models.Conversation, 0, len(list))
	for _, c := range list {
		if strings.TrimSpace(c.UUID) == "" {
			continue
		}
		chats = append(chats, models.Conversation{
			ChatProviderID: c.UUID,
			Title:          firstNonEmpty(c.Name, "Unnamed Conversation"),
			ProviderName:   a.cfg.DisplayName,
		})
	}
	return a.saveChatList(ctx, chats)
}

func (a *Claude) HandleSpecificConversation(ctx context.Context, ev events.Intercepted) error {
	conv := a.ExtractConversation(ev.ResponseBody)
	if conv == nil {
		a.log.Warn("conversation payload without uuid")
		return nil
	}
	msgs := a.ExtractMessagesFromConversation(ev.ResponseBody)
	if len(msgs) == 0 {
		return nil
	}
	return a.saveConversation(ctx, *conv, msgs)
}

func (a *Claude) HandleChatCompletion(ctx context.Context, ev events.Intercepted) {
	a.extracted(ctx, a.ExtractUserMessage(ev.RequestBody, ev.URL))
}

func (a *Claude) HandleAssistantResponse(ctx context.Context, s stream.Snapshot) {
	if !s.IsComplete || s.MessageID == "" || s.Content == "" {
		return
	}
	a.extracted(ctx, a.ExtractAssistantMessage(s))
}
