package resolver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/suPer8Hu/chat-capture/internal/platform"
)

type changes struct {
	mu  sync.Mutex
	ids []string
}

func (c *changes) record(id string) {
	c.mu.Lock()
	c.ids = append(c.ids, id)
	c.mu.Unlock()
}

func (c *changes) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

func TestNavigate_DerivesFromPath(t *testing.T) {
	var ch changes
	r := New(platform.ChatGPTConfig(), ch.record)

	r.Navigate(Initial, "https://chatgpt.com/")
	assert.Equal(t, "", r.CurrentID())

	r.Navigate(PopState, "https://chatgpt.com/c/abc-1")
	assert.Equal(t, "abc-1", r.CurrentID())

	// same id again does not fire
	r.Navigate(HashChange, "https://chatgpt.com/c/abc-1#x")
	r.Navigate(Mutation, "https://chatgpt.com/g/g-x/c/abc-2")

	// no match keeps the current id
	r.Navigate(PopState, "https://chatgpt.com/settings")
	assert.Equal(t, "abc-2", r.CurrentID())
	assert.Equal(t, []string{"abc-1", "abc-2"}, ch.list())
}

func TestNavigate_MutationNeedsHrefChange(t *testing.T) {
	var ch changes
	r := New(platform.ChatGPTConfig(), ch.record)

	r.Navigate(Mutation, "https://chatgpt.com/c/one")
	r.SetFromResponse("two")
	r.Navigate(Mutation, "https://chatgpt.com/c/one")
	assert.Equal(t, "two", r.CurrentID())

	r.Navigate(Mutation, "https://chatgpt.com/c/three")
	assert.Equal(t, "three", r.CurrentID())
	assert.Equal(t, []string{"one", "two", "three"}, ch.list())
}

func TestSetFromResponse(t *testing.T) {
	var ch changes
	r := New(platform.ClaudeConfig(), ch.record)

	r.SetFromResponse("")
	assert.Equal(t, "", r.CurrentID())

	r.Navigate(Initial, "https://claude.ai/new")
	r.SetFromResponse("c9")
	r.SetFromResponse("c9")
	assert.Equal(t, "c9", r.CurrentID())

	// the pinned id survives a popstate on the same page
	r.Navigate(PopState, "https://claude.ai/new")
	assert.Equal(t, "c9", r.CurrentID())
	assert.Equal(t, []string{"c9"}, ch.list())
}

func TestQueryParamPattern(t *testing.T) {
	r := New(platform.CopilotConfig(), nil)
	r.Navigate(Initial, "https://copilot.microsoft.com/?conversationId=q-42")
	assert.Equal(t, "q-42", r.CurrentID())
}

func TestWatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	var ch changes
	r := New(platform.MistralConfig(), ch.record)
	hrefs := make(chan string)
	done := make(chan struct{})

	go func() {
		r.Watch(context.Background(), hrefs)
		close(done)
	}()
	hrefs <- "https://chat.mistral.ai/chat/m-1"
	hrefs <- "https://chat.mistral.ai/chat/m-1"
	hrefs <- "https://chat.mistral.ai/chat/m-2"
	close(hrefs)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not return after channel close")
	}
	require.Equal(t, []string{"m-1", "m-2"}, ch.list())
}

func TestWatch_ContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := New(platform.MistralConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Watch(ctx, make(chan string))
		close(done)
	}()
	cancel()
	<-done
}
