package adapter

import (
	"context"
	"encoding/json"

	"github.com/suPer8Hu/chat-capture/internal/events"
	"github.com/suPer8Hu/chat-capture/internal/models"
	"github.com/suPer8Hu/chat-capture/internal/platform"
	"github.com/suPer8Hu/chat-capture/internal/stream"
)

// Copilot only contributes conversation history; live turns are not
// extracted.
type Copilot struct {
	base
	noStreaming
}

func NewCopilot(deps Deps) *Copilot {
	return &Copilot{base: newBase(platform.CopilotConfig(), deps)}
}

type copilotResults struct {
	Results []struct {
		ID        string          `json:"id"`
		Type      string          `json:"type"`
		Title     string          `json:"title"`
		Author    string          `json:"author"`
		Content   json.RawMessage `json:"content"`
		CreatedAt string          `json:"createdAt"`
	} `json:"results"`
}

func (a *Copilot) ExtractUserMessage(json.RawMessage, string) *models.Message { return nil }

func (a *Copilot) ExtractAssistantMessage(stream.Snapshot) *models.Message { return nil }

func (a *Copilot) ExtractConversation(body json.RawMessage) *models.Conversation {
	return a.conversation(body, a.currentConversation())
}

func (a *Copilot) conversation(body json.RawMessage, convID string) *models.Conversation {
	var r copilotResults
	if !decode(body, &r) || r.Results == nil || convID == "" {
		return nil
	}
	title := ""
	if len(r.Results) > 0 {
		title = r.Results[0].Title
	}
	return &models.Conversation{
		ChatProviderID: convID,
		Title:          firstNonEmpty(title, "Conversation"),
		ProviderName:   a.cfg.DisplayName,
	}
}

func (a *Copilot) ExtractMessagesFromConversation(body json.RawMessage) []models.Message {
	return a.messages(body, a.currentConversation())
}

func (a *Copilot) messages(body json.RawMessage, convID string) []models.Message {
	var r copilotResults
	if !decode(body, &r) {
		return nil
	}
	now := a.now()
	msgs := make([]models.Message, 0, len(r.Results))
	for _, m := range r.Results {
		if m.ID == "" {
			continue
		}
		role := models.RoleAssistant
		if m.Author == "human" {
			role = models.RoleUser
		}
		ts, ok := parseTimestamp(m.CreatedAt)
		if !ok {
			ts = now
		}
		msgs = append(msgs, models.Message{
			MessageID:      m.ID,
			ConversationID: convID,
			Content:        textOf(m.Content),
			Role:           role,
			Model:          "copilot",
			Timestamp:      ts,
		})
	}
	return msgs
}

func (a *Copilot) HandleConversationList(ctx context.Context, ev events.Intercepted) error {
	var r copilotResults
	if !decode(ev.ResponseBody, &r) {
		return nil
	}
	chats := make([]models.Conversation, 0, len(r.Results))
	for _, c := range r.Results {
		if c.Type != "chat" || c.ID == "" {
			continue
		}
		chats = append(chats, models.Conversation{
			ChatProviderID: c.ID,
			Title:          firstNonEmpty(c.Title, "Conversation"),
			ProviderName:   a.cfg.DisplayName,
		})
	}
	return a.saveChatList(ctx, chats)
}

// HandleSpecificConversation uses the page's conversation id, falling back
// to the id in the history URL.
func (a *Copilot) HandleSpecificConversation(ctx context.Context, ev events.Intercepted) error {
	convID := a.currentConversation()
	if convID == "" {
		convID = a.conversationFromURL(ev.URL)
	}
	conv := a.conversation(ev.ResponseBody, convID)
	if conv == nil {
		return nil
	}
	return a.saveConversation(ctx, *conv, a.messages(ev.ResponseBody, convID))
}

func (a *Copilot) conversationFromURL(u string) string {
	re := a.cfg.Endpoints.SpecificConversation.Pattern
	if re == nil {
		return ""
	}
	if m := re.FindStringSubmatch(u); len(m) > 1 {
		return m[1]
	}
	return ""
}

func (a *Copilot) HandleChatCompletion(context.Context, events.Intercepted) {}

func (a *Copilot) HandleAssistantResponse(context.Context, stream.Snapshot) {}
