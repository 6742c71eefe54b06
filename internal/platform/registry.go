package platform

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	ChatGPT = "chatgpt"
	Claude  = "claude"
	Mistral = "mistral"
	Copilot = "copilot"
)

// Registry is an ordered, immutable list of platform configs.
type Registry struct {
	configs []*Config
}

// NewRegistry fails when two configs claim the same hostname.
func NewRegistry(cfgs ...*Config) (*Registry, error) {
	owner := make(map[string]string)
	for _, c := range cfgs {
		if c == nil || strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("platform config without name")
		}
		for _, h := range c.Hostnames {
			h = strings.ToLower(strings.TrimSpace(h))
			if prev, ok := owner[h]; ok {
				return nil, fmt.Errorf("hostname %q claimed by both %s and %s", h, prev, c.Name)
			}
			owner[h] = c.Name
		}
	}
	return &Registry{configs: append([]*Config(nil), cfgs...)}, nil
}

func (r *Registry) ByHostname(hostname string) *Config {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return nil
	}
	for _, c := range r.configs {
		for _, h := range c.Hostnames {
			if strings.EqualFold(h, hostname) {
				return c
			}
		}
	}
	return nil
}

func (r *Registry) ByName(name string) *Config {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, c := range r.configs {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (r *Registry) Configs() []*Config {
	return append([]*Config(nil), r.configs...)
}

func Default() *Registry {
	r, err := NewRegistry(ChatGPTConfig(), ClaudeConfig(), MistralConfig(), CopilotConfig())
	if err != nil {
		panic(err)
	}
	return r
}

func ChatGPTConfig() *Config {
	return &Config{
		Name:        ChatGPT,
		DisplayName: "ChatGPT",
		Hostnames:   []string{"chatgpt.com", "chat.openai.com"},
		Endpoints: Endpoints{
			UserInfo:             Contains("/backend-api/me"),
			ConversationList:     Contains("/backend-api/conversations"),
			ChatCompletion:       Contains("/backend-api/conversation"),
			SpecificConversation: Regexp(`/backend-api/conversation/([a-f0-9-]+)$`),
		},
		Selectors: Selectors{
			PromptInput:  "#prompt-textarea",
			SubmitButton: `button[data-testid="send-button"]`,
		},
		ConversationIDPatterns: []ConversationIDPattern{
			{URLPath: regexp.MustCompile(`^/c/([a-zA-Z0-9-]+)`)},
			{URLPath: regexp.MustCompile(`^/g/[^/]+/c/([a-zA-Z0-9-]+)`)},
		},
	}
}

func ClaudeConfig() *Config {
	return &Config{
		Name:        Claude,
		DisplayName: "Claude",
		Hostnames:   []string{"claude.ai"},
		Endpoints: Endpoints{
			UserInfo:             Contains("/api/user"),
			ConversationList:     Regexp(`/api/organizations/[a-f0-9-]+/chat_conversations(\?|$)`),
			ChatCompletion:       Regexp(`/api/organizations/[a-f0-9-]+/chat_conversations/[a-f0-9-]+/completion`),
			SpecificConversation: Regexp(`/api/organizations/[a-f0-9-]+/chat_conversations/([a-f0-9-]+)(\?|$)`),
		},
		Selectors: Selectors{
			PromptInput:  `div[contenteditable="true"].ProseMirror`,
			SubmitButton: `button[aria-label="Send message"]`,
		},
		ConversationIDPatterns: []ConversationIDPattern{
			{URLPath: regexp.MustCompile(`^/chat/([a-f0-9-]+)`)},
		},
	}
}

func MistralConfig() *Config {
	return &Config{
		Name:        Mistral,
		DisplayName: "Mistral",
		Hostnames:   []string{"chat.mistral.ai"},
		Endpoints: Endpoints{
			UserInfo:             Contains("/api/trpc/user.session"),
			ConversationList:     Contains("/api/trpc/chat.list"),
			ChatCompletion:       Contains("/api/chat"),
			SpecificConversation: Regexp(`/api/trpc/message\.all`),
		},
		Selectors: Selectors{
			PromptInput:  `textarea, div.ProseMirror[contenteditable="true"]`,
			SubmitButton: `button[type="submit"]`,
		},
		ConversationIDPatterns: []ConversationIDPattern{
			{URLPath: regexp.MustCompile(`^/chat/([a-zA-Z0-9-]+)`)},
		},
	}
}

func CopilotConfig() *Config {
	return &Config{
		Name:        Copilot,
		DisplayName: "Copilot",
		Hostnames:   []string{"copilot.microsoft.com"},
		Endpoints: Endpoints{
			UserInfo:             Contains("/c/api/user"),
			ConversationList:     Contains("/c/api/conversations"),
			ChatCompletion:       Contains("/c/api/conversations"),
			SpecificConversation: Regexp(`/c/api/conversations/([a-zA-Z0-9-]+)/history`),
		},
		Selectors: Selectors{
			PromptInput:  "textarea#userInput",
			SubmitButton: `button[data-testid="submit-button"]`,
		},
		ConversationIDPatterns: []ConversationIDPattern{
			{URLPath: regexp.MustCompile(`^/chats/([a-zA-Z0-9-]+)`)},
			{QueryParam: "conversationId"},
		},
	}
}
