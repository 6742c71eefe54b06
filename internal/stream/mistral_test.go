package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runMistral(t *testing.T, body string, seed Seed) *collector {
	t.Helper()
	c := &collector{}
	p := NewMistral(Options{Platform: "mistral", Seed: seed}, c.emit)
	require.NoError(t, p.Process(context.Background(), strings.NewReader(body)))
	return c
}

func TestMistral_DataLines(t *testing.T) {
	body := strings.Join([]string{
		`data: {"messageId":"ms-1","token":"Bon"}`,
		``,
		`data: {"content":"jour"}`,
		`data: !`,
		`data: [DONE]`,
		`data: {"token":"ignored"}`,
	}, "\n")

	c := runMistral(t, body, Seed{ConversationID: "chat-7", ParentMessageID: "u-1"})
	require.Len(t, c.snaps, 1)
	s := c.snaps[0]
	assert.True(t, s.IsComplete)
	assert.Equal(t, "ms-1", s.MessageID)
	assert.Equal(t, "chat-7", s.ConversationID)
	assert.Equal(t, "u-1", s.ParentMessageID)
	assert.Equal(t, "Bonjour!", s.Content)
}

func TestMistral_KeyTokenLines(t *testing.T) {
	body := "0:\"Hello\"\n0:\" \\\"world\\\"\"\n0:plain\n1:null\n0:\"after\"\n"

	c := runMistral(t, body, Seed{})
	require.Len(t, c.snaps, 1)
	assert.Equal(t, `Hello "world"plain`, c.snaps[0].Content)
	assert.Equal(t, "", c.snaps[0].MessageID)
}

func TestMistral_SalvageOnEOFAndError(t *testing.T) {
	c := runMistral(t, "0:\"partial\"", Seed{})
	require.Len(t, c.terminal(), 1)
	assert.Equal(t, "partial", c.terminal()[0].Content)

	boom := errors.New("reset")
	c = &collector{}
	p := NewMistral(Options{Platform: "mistral"}, c.emit)
	err := p.Process(context.Background(), io.MultiReader(
		strings.NewReader("0:\"abc\"\n"),
		iotest.ErrReader(boom),
	))
	require.ErrorIs(t, err, boom)
	require.Len(t, c.terminal(), 1)
	assert.Equal(t, "abc", c.terminal()[0].Content)
}

func TestMistral_EmptyStreamEmitsNothing(t *testing.T) {
	c := runMistral(t, "data: [DONE]\n", Seed{})
	assert.Empty(t, c.snaps)
}
