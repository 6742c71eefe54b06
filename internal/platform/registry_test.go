package platform

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Detection(t *testing.T) {
	r := Default()

	cases := map[string]string{
		"chatgpt.com":           ChatGPT,
		"CHAT.OPENAI.COM":       ChatGPT,
		"claude.ai":             Claude,
		"chat.mistral.ai":       Mistral,
		"copilot.microsoft.com": Copilot,
	}
	for host, want := range cases {
		c := r.ByHostname(host)
		require.NotNil(t, c, host)
		assert.Equal(t, want, c.Name, host)
	}

	assert.Nil(t, r.ByHostname("example.com"))
	assert.Nil(t, r.ByHostname(""))
	assert.Equal(t, "Claude", r.ByName(" Claude ").DisplayName)
	assert.Nil(t, r.ByName("bard"))
}

func TestNewRegistry_DuplicateHostname(t *testing.T) {
	a := &Config{Name: "a", Hostnames: []string{"x.example"}}
	b := &Config{Name: "b", Hostnames: []string{"X.example"}}

	_, err := NewRegistry(a, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x.example")
}

func TestClassify(t *testing.T) {
	r := Default()
	gpt := r.ByName(ChatGPT)
	claude := r.ByName(Claude)

	cases := []struct {
		cfg  *Config
		url  string
		want string
	}{
		{gpt, "https://chatgpt.com/backend-api/conversation/6720a1b2-0000-4c4c-9d9d-aabbccddeeff", KindSpecificConversation},
		{gpt, "https://chatgpt.com/backend-api/conversations?offset=0&limit=28", KindConversationList},
		{gpt, "/backend-api/conversation", KindChatCompletion},
		{gpt, "/backend-api/me", KindUserInfo},
		{gpt, "/backend-api/settings", ""},
		{claude, "https://claude.ai/api/organizations/ab12/chat_conversations?limit=30", KindConversationList},
		{claude, "https://claude.ai/api/organizations/ab12/chat_conversations/cd34/completion", KindChatCompletion},
		{claude, "https://claude.ai/api/organizations/ab12/chat_conversations/cd34?tree=True", KindSpecificConversation},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.cfg.Classify(tc.url), tc.url)
	}

	var nilCfg *Config
	assert.Equal(t, "", nilCfg.Classify("/backend-api/conversation"))
}

func TestConversationIDFromURL(t *testing.T) {
	r := Default()

	u, _ := url.Parse("https://chatgpt.com/g/g-abc/c/67e1-aa")
	assert.Equal(t, "67e1-aa", r.ByName(ChatGPT).ConversationIDFromURL(u))

	u, _ = url.Parse("https://copilot.microsoft.com/?conversationId=xyz")
	assert.Equal(t, "xyz", r.ByName(Copilot).ConversationIDFromURL(u))

	u, _ = url.Parse("https://chatgpt.com/")
	assert.Equal(t, "", r.ByName(ChatGPT).ConversationIDFromURL(u))
}
