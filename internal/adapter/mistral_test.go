package adapter

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/chat-capture/internal/events"
	"github.com/suPer8Hu/chat-capture/internal/stream"
)

func TestMistral_ExtractUserMessage(t *testing.T) {
	a := NewMistral(newHarness().deps())

	body := `{"0":{"json":{"chatId":"chat-1","messageId":"u-1","content":[{"type":"text","text":"Salut"}]}}}`
	m := a.ExtractUserMessage([]byte(body), "")
	require.NotNil(t, m)
	assert.Equal(t, "u-1", m.MessageID)
	assert.Equal(t, "chat-1", m.ConversationID)
	assert.Equal(t, "Salut", m.Content)
	assert.Equal(t, "mistral", m.Model)

	m = a.ExtractUserMessage([]byte(`{"chatId":"chat-2","mode":"start","messageInput":"Hello"}`), "")
	require.NotNil(t, m)
	assert.Equal(t, "start", m.ParentMessageProviderID)
	assert.Equal(t, "Hello", m.Content)
	assert.True(t, strings.HasPrefix(m.MessageID, "user-"))

	m = a.ExtractUserMessage([]byte(`{"chatId":"c","parentMessageId":"p","messageInput":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}`), "")
	require.NotNil(t, m)
	assert.Equal(t, "a\nb", m.Content)
	assert.Equal(t, "p", m.ParentMessageProviderID)

	assert.Nil(t, a.ExtractUserMessage([]byte(`{"chatId":"c"}`), ""))
}

func TestMistral_TrimSafeNull(t *testing.T) {
	assert.Equal(t, "answer", trimMistralContent("safeanswernull"))
	assert.Equal(t, "Bonjour", trimMistralContent("safeBonjour"))
	assert.Equal(t, "", trimMistralContent("safe"))
	assert.Equal(t, "Ends in null", trimMistralContent("Ends in null"))
	assert.Equal(t, "plain", trimMistralContent("plain"))

	a := NewMistral(newHarness().deps())
	m := a.ExtractAssistantMessage(stream.Snapshot{Content: "safeHi!null", IsComplete: true})
	require.NotNil(t, m)
	assert.Equal(t, "Hi!", m.Content)
	assert.True(t, strings.HasPrefix(m.MessageID, "mistral-"))

	assert.Nil(t, a.ExtractAssistantMessage(stream.Snapshot{Content: "safenull"}))
}

func TestMistral_StreamingEndToEnd(t *testing.T) {
	h := newHarness()
	a := NewMistral(h.deps())
	h.route(a)

	req := []byte(`{"chatId":"chat-9","messageId":"u-9","model":"mistral-large"}`)
	body := "0:\"Bon\"\n0:\"jour\"\n1:null\n"
	require.NoError(t, a.ProcessStreamingResponse(context.Background(), strings.NewReader(body), req))

	got := h.named(events.MessageExtracted)
	require.Len(t, got, 1)
	m := got[0].Detail.(events.MessageExtractedDetail).Message
	assert.Equal(t, "Bonjour", m.Content)
	assert.Equal(t, "chat-9", m.ConversationID)
	assert.Equal(t, "u-9", m.ParentMessageProviderID)
	assert.Equal(t, "mistral-large", m.Model)
	assert.True(t, strings.HasPrefix(m.MessageID, "mistral-"))
}

func TestMistral_StreamingStripsSafeVerdict(t *testing.T) {
	h := newHarness()
	a := NewMistral(h.deps())
	h.route(a)

	req := []byte(`{"chatId":"chat-9","messageId":"u-9"}`)
	body := "f:\"safe\"\n0:\"Bon\"\n0:\"jour\"\n1:null\n"
	require.NoError(t, a.ProcessStreamingResponse(context.Background(), strings.NewReader(body), req))

	got := h.named(events.MessageExtracted)
	require.Len(t, got, 1)
	assert.Equal(t, "Bonjour", got[0].Detail.(events.MessageExtractedDetail).Message.Content)
}

func TestMistral_HistoryHandlersAreNoOps(t *testing.T) {
	h := newHarness()
	a := NewMistral(h.deps())

	require.NoError(t, a.HandleConversationList(context.Background(), events.Intercepted{ResponseBody: []byte(`[{"chatId":"x"}]`)}))
	require.NoError(t, a.HandleSpecificConversation(context.Background(), events.Intercepted{ResponseBody: []byte(`{}`)}))
	assert.Empty(t, h.store.lists)
	assert.Empty(t, h.store.chats)

	conv := a.ExtractConversation([]byte(`{"chatId":"c-5","title":"Titre"}`))
	require.NotNil(t, conv)
	assert.Equal(t, "Titre", conv.Title)
	assert.Equal(t, "Mistral", conv.ProviderName)
}
