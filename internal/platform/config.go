package platform

import (
	"net/url"
	"regexp"
	"strings"
)

// Matcher matches an intercepted request path either by substring or regexp.
type Matcher struct {
	Substring string
	Pattern   *regexp.Regexp
}

func Contains(s string) Matcher  { return Matcher{Substring: s} }
func Regexp(expr string) Matcher { return Matcher{Pattern: regexp.MustCompile(expr)} }

func (m Matcher) Match(path string) bool {
	if m.Pattern != nil {
		return m.Pattern.MatchString(path)
	}
	if m.Substring == "" {
		return false
	}
	return strings.Contains(path, m.Substring)
}

type Endpoints struct {
	UserInfo             Matcher
	ConversationList     Matcher
	ChatCompletion       Matcher
	SpecificConversation Matcher
}

type Selectors struct {
	PromptInput  string
	SubmitButton string
}

// ConversationIDPattern derives a conversation id from the page URL: URLPath
// capture group 1 against the path, or the value of QueryParam.
type ConversationIDPattern struct {
	URLPath    *regexp.Regexp
	QueryParam string
}

type Config struct {
	Name                   string
	DisplayName            string
	Hostnames              []string
	Endpoints              Endpoints
	Selectors              Selectors
	ConversationIDPatterns []ConversationIDPattern
}

const (
	KindUserInfo             = "jaydai:user-info"
	KindConversationList     = "jaydai:conversation-list"
	KindSpecificConversation = "jaydai:specific-conversation"
	KindChatCompletion       = "jaydai:chat-completion"
)

// Classify maps an intercepted request URL to the inbound event it should
// raise, or "" when the URL is not interesting. Specific conversation is
// checked first since its path usually contains the list/completion paths.
func (c *Config) Classify(rawURL string) string {
	if c == nil || rawURL == "" {
		return ""
	}
	path := rawURL
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return ""
		}
		path = u.EscapedPath()
		if u.RawQuery != "" {
			path += "?" + u.RawQuery
		}
	}

	switch {
	case c.Endpoints.SpecificConversation.Match(path):
		return KindSpecificConversation
	case c.Endpoints.UserInfo.Match(path):
		return KindUserInfo
	case c.Endpoints.ConversationList.Match(path):
		return KindConversationList
	case c.Endpoints.ChatCompletion.Match(path):
		return KindChatCompletion
	}
	return ""
}

// ConversationIDFromURL applies the patterns in order; first hit wins.
func (c *Config) ConversationIDFromURL(u *url.URL) string {
	if c == nil || u == nil {
		return ""
	}
	for _, p := range c.ConversationIDPatterns {
		if p.URLPath != nil {
			if m := p.URLPath.FindStringSubmatch(u.Path); len(m) > 1 && m[1] != "" {
				return m[1]
			}
		}
		if p.QueryParam != "" {
			if v := u.Query().Get(p.QueryParam); v != "" {
				return v
			}
		}
	}
	return ""
}
