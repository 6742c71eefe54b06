package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessageRecord(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_123)
	rec := Message{
		MessageID:               "m1",
		ConversationID:          "c1",
		Content:                 "hi",
		Role:                    RoleUser,
		Timestamp:               ts,
		ParentMessageProviderID: "p0",
	}.Record()

	assert.Equal(t, MessageRecord{
		MessageProviderID:       "m1",
		ChatProviderID:          "c1",
		Content:                 "hi",
		Role:                    "user",
		Model:                   "unknown",
		CreatedAt:               1_700_000_000_123,
		ParentMessageProviderID: "p0",
	}, rec)
}

func TestMessageRecord_ZeroTimestamp(t *testing.T) {
	rec := Message{MessageID: "m1", Model: "gpt-4o"}.Record()
	assert.Zero(t, rec.CreatedAt)
	assert.Equal(t, "gpt-4o", rec.Model)
}
