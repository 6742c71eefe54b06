package adapter

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/suPer8Hu/chat-capture/internal/common"
	"github.com/suPer8Hu/chat-capture/internal/events"
	"github.com/suPer8Hu/chat-capture/internal/models"
	"github.com/suPer8Hu/chat-capture/internal/platform"
	"github.com/suPer8Hu/chat-capture/internal/stream"
)

const clientCreatedRoot = "client-created-root"

type ChatGPT struct {
	base
}

func NewChatGPT(deps Deps) *ChatGPT {
	return &ChatGPT{base: newBase(platform.ChatGPTConfig(), deps)}
}

type gptRequest struct {
	Messages []struct {
		ID     string `json:"id"`
		Role   string `json:"role"`
		Author struct {
			Role string `json:"role"`
		} `json:"author"`
		Content    json.RawMessage `json:"content"`
		CreateTime float64         `json:"create_time"`
	} `json:"messages"`
	ConversationID  string `json:"conversation_id"`
	ParentMessageID string `json:"parent_message_id"`
	Model           string `json:"model"`
}

type gptConversation struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
	Mapping        map[string]struct {
		Parent  string `json:"parent"`
		Message *struct {
			Author struct {
				Role string `json:"role"`
			} `json:"author"`
			Content struct {
				ContentType string          `json:"content_type"`
				Parts       json.RawMessage `json:"parts"`
			} `json:"content"`
			CreateTime *float64 `json:"create_time"`
			Metadata   struct {
				ModelSlug string `json:"model_slug"`
			} `json:"metadata"`
		} `json:"message"`
	} `json:"mapping"`
}

type gptConversationList struct {
	Items []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"items"`
}

func (a *ChatGPT) ExtractUserMessage(body json.RawMessage, _ string) *models.Message {
	var req gptRequest
	if !decode(body, &req) {
		return nil
	}
	for _, m := range req.Messages {
		if m.Author.Role != string(models.RoleUser) && m.Role != string(models.RoleUser) {
			continue
		}
		content := textOf(m.Content)
		if content == "" {
			return nil
		}
		ts := a.now()
		if m.CreateTime > 0 {
			ts = unixSeconds(m.CreateTime)
		}
		return &models.Message{
			MessageID:               firstNonEmpty(m.ID, common.FallbackID("user")),
			ConversationID:          req.ConversationID,
			Content:                 content,
			Role:                    models.RoleUser,
			Model:                   firstNonEmpty(req.Model, "unknown"),
			Timestamp:               ts,
			ParentMessageProviderID: req.ParentMessageID,
		}
	}
	return nil
}

func (a *ChatGPT) ExtractAssistantMessage(s stream.Snapshot) *models.Message {
	if s.Content == "" {
		return nil
	}
	ts := a.now()
	if s.CreateTime > 0 {
		ts = unixSeconds(s.CreateTime)
	}
	return &models.Message{
		MessageID:               firstNonEmpty(s.MessageID, common.FallbackID("assistant")),
		ConversationID:          s.ConversationID,
		Content:                 s.Content,
		Role:                    models.RoleAssistant,
		Model:                   firstNonEmpty(s.Model, "unknown"),
		Timestamp:               ts,
		ParentMessageProviderID: s.ParentMessageID,
		ThinkingTime:            s.ThinkingTime,
	}
}

func (a *ChatGPT) ExtractConversation(body json.RawMessage) *models.Conversation {
	var c gptConversation
	if !decode(body, &c) || c.ConversationID == "" {
		return nil
	}
	return &models.Conversation{
		ChatProviderID: c.ConversationID,
		Title:          firstNonEmpty(c.Title, "Conversation"),
		ProviderName:   a.cfg.DisplayName,
	}
}

func (a *ChatGPT) ExtractMessagesFromConversation(body json.RawMessage) []models.Message {
	var c gptConversation
	if !decode(body, &c) {
		return nil
	}
	now := a.now()
	msgs := make([]models.Message, 0, len(c.Mapping))
	for id, node := range c.Mapping {
		if id == clientCreatedRoot || node.Message == nil {
			continue
		}
		role := models.Role(node.Message.Author.Role)
		if role != models.RoleUser && role != models.RoleAssistant {
			continue
		}
		content := ""
		if node.Message.Content.ContentType == "text" {
			content = textOf(node.Message.Content.Parts)
		}
		ts := now
		if node.Message.CreateTime != nil {
			ts = unixSeconds(*node.Message.CreateTime)
		}
		msgs = append(msgs, models.Message{
			MessageID:               id,
			ConversationID:          c.ConversationID,
			Content:                 content,
			Role:                    role,
			Model:                   firstNonEmpty(node.Message.Metadata.ModelSlug, "unknown"),
			Timestamp:               ts,
			ParentMessageProviderID: node.Parent,
		})
	}
	// mapping order is random; break timestamp ties by id
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].MessageID < msgs[j].MessageID
	})
	return msgs
}

func (a *ChatGPT) HandleConversationList(ctx context.Context, ev events.Intercepted) error {
	var list gptConversationList
	if !decode(ev.ResponseBody, &list) {
		return nil
	}
	chats := make([]models.Conversation, 0, len(list.Items))
	for _, it := range list.Items {
		if strings.TrimSpace(it.ID) == "" {
			continue
		}
		chats = append(chats, models.Conversation{
			ChatProviderID: it.ID,
			Title:          firstNonEmpty(it.Title, "Unnamed Conversation"),
			ProviderName:   a.cfg.DisplayName,
		})
	}
	return a.saveChatList(ctx, chats)
}

func (a *ChatGPT) HandleSpecificConversation(ctx context.Context, ev events.Intercepted) error {
	conv := a.ExtractConversation(ev.ResponseBody)
	if conv == nil {
		return nil
	}
	msgs := a.ExtractMessagesFromConversation(ev.ResponseBody)
	if len(msgs) == 0 {
		return nil
	}
	return a.saveConversation(ctx, *conv, msgs)
}

func (a *ChatGPT) HandleChatCompletion(ctx context.Context, ev events.Intercepted) {
	a.extracted(ctx, a.ExtractUserMessage(ev.RequestBody, ev.URL))
}

func (a *ChatGPT) HandleAssistantResponse(ctx context.Context, s stream.Snapshot) {
	if !s.IsComplete || s.MessageID == "" || s.Content == "" {
		return
	}
	// a new conversation only learns its id from the response
	a.pinConversation(s.ConversationID)
	a.extracted(ctx, a.ExtractAssistantMessage(s))
}

func (a *ChatGPT) SupportsStreaming() bool { return true }

func (a *ChatGPT) ProcessStreamingResponse(ctx context.Context, body io.Reader, requestBody json.RawMessage) error {
	p := stream.NewChatGPT(a.streamOptions(a.seed(requestBody)), a.emitAssistant)
	return a.streamFailed(ctx, p.Process(ctx, body))
}

func (a *ChatGPT) seed(requestBody json.RawMessage) stream.Seed {
	var req gptRequest
	if !decode(requestBody, &req) {
		return stream.Seed{}
	}
	seed := stream.Seed{ConversationID: req.ConversationID, Model: req.Model}
	for _, m := range req.Messages {
		if m.Author.Role == string(models.RoleUser) || m.Role == string(models.RoleUser) {
			seed.ParentMessageID = m.ID
			break
		}
	}
	return seed
}
