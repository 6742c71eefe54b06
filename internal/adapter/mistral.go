package adapter

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/suPer8Hu/chat-capture/internal/common"
	"github.com/suPer8Hu/chat-capture/internal/events"
	"github.com/suPer8Hu/chat-capture/internal/models"
	"github.com/suPer8Hu/chat-capture/internal/platform"
	"github.com/suPer8Hu/chat-capture/internal/stream"
)

const mistralStartMode = "start"

type Mistral struct {
	base
}

func NewMistral(deps Deps) *Mistral {
	return &Mistral{base: newBase(platform.MistralConfig(), deps)}
}

type mistralRequest struct {
	ChatID          string          `json:"chatId"`
	MessageID       string          `json:"messageId"`
	ParentMessageID string          `json:"parentMessageId"`
	Mode            string          `json:"mode"`
	Model           string          `json:"model"`
	MessageInput    json.RawMessage `json:"messageInput"`
	// first message of a conversation is wrapped under "0".json
	First *struct {
		JSON struct {
			ChatID          string          `json:"chatId"`
			MessageID       string          `json:"messageId"`
			ParentMessageID string          `json:"parentMessageId"`
			Content         json.RawMessage `json:"content"`
		} `json:"json"`
	} `json:"0"`
}

type mistralChat struct {
	ChatID string `json:"chatId"`
	Title  string `json:"title"`
}

func (r mistralRequest) resolved() (msgID, chatID, parentID, content string) {
	msgID, chatID, parentID = r.MessageID, r.ChatID, r.ParentMessageID
	if r.First != nil {
		j := r.First.JSON
		msgID = firstNonEmpty(j.MessageID, msgID)
		chatID = firstNonEmpty(j.ChatID, chatID)
		parentID = firstNonEmpty(j.ParentMessageID, parentID)
		content = textOf(j.Content)
	}
	if content == "" {
		content = textOf(r.MessageInput)
	}
	if r.Mode == mistralStartMode {
		parentID = mistralStartMode
	}
	return msgID, chatID, parentID, content
}

func (a *Mistral) ExtractUserMessage(body json.RawMessage, _ string) *models.Message {
	var req mistralRequest
	if !decode(body, &req) {
		return nil
	}
	msgID, chatID, parentID, content := req.resolved()
	if content == "" {
		return nil
	}
	return &models.Message{
		MessageID:               firstNonEmpty(msgID, common.FallbackID("user")),
		ConversationID:          chatID,
		Content:                 content,
		Role:                    models.RoleUser,
		Model:                   firstNonEmpty(req.Model, "mistral"),
		Timestamp:               a.now(),
		ParentMessageProviderID: parentID,
	}
}

// trimMistralContent strips the moderation verdict ("safe") that leads the
// token stream, and the "null" terminator when a page-side snapshot kept it.
func trimMistralContent(s string) string {
	rest, ok := strings.CutPrefix(s, "safe")
	if !ok {
		return s
	}
	return strings.TrimSuffix(rest, "null")
}

func (a *Mistral) ExtractAssistantMessage(s stream.Snapshot) *models.Message {
	content := trimMistralContent(s.Content)
	if content == "" {
		return nil
	}
	return &models.Message{
		MessageID:               firstNonEmpty(s.MessageID, common.FallbackID("mistral")),
		ConversationID:          s.ConversationID,
		Content:                 content,
		Role:                    models.RoleAssistant,
		Model:                   firstNonEmpty(s.Model, "mistral"),
		Timestamp:               a.now(),
		ParentMessageProviderID: s.ParentMessageID,
		ThinkingTime:            s.ThinkingTime,
	}
}

func (a *Mistral) ExtractConversation(body json.RawMessage) *models.Conversation {
	var c mistralChat
	if !decode(body, &c) || c.ChatID == "" {
		return nil
	}
	return &models.Conversation{
		ChatProviderID: c.ChatID,
		Title:          firstNonEmpty(c.Title, "Conversation"),
		ProviderName:   a.cfg.DisplayName,
	}
}

// Mistral's history payloads are not captured.
func (a *Mistral) ExtractMessagesFromConversation(json.RawMessage) []models.Message { return nil }

func (a *Mistral) HandleConversationList(context.Context, events.Intercepted) error { return nil }

func (a *Mistral) HandleSpecificConversation(context.Context, events.Intercepted) error { return nil }

func (a *Mistral) HandleChatCompletion(ctx context.Context, ev events.Intercepted) {
	a.extracted(ctx, a.ExtractUserMessage(ev.RequestBody, ev.URL))
}

func (a *Mistral) HandleAssistantResponse(ctx context.Context, s stream.Snapshot) {
	if !s.IsComplete {
		return
	}
	a.extracted(ctx, a.ExtractAssistantMessage(s))
}

func (a *Mistral) SupportsStreaming() bool { return true }

func (a *Mistral) ProcessStreamingResponse(ctx context.Context, body io.Reader, requestBody json.RawMessage) error {
	var seed stream.Seed
	var req mistralRequest
	if decode(requestBody, &req) {
		msgID, chatID, parentID, _ := req.resolved()
		seed = stream.Seed{
			ConversationID:  chatID,
			ParentMessageID: firstNonEmpty(msgID, parentID),
			Model:           firstNonEmpty(req.Model, "mistral"),
		}
	}
	p := stream.NewMistral(a.streamOptions(seed), a.emitAssistant)
	return a.streamFailed(ctx, p.Process(ctx, body))
}
