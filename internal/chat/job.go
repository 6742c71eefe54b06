package chat

import (
	"context"
	"fmt"

	"github.com/suPer8Hu/chat-capture/internal/models"
)

type JobKind string

const (
	JobSaveChat      JobKind = "save_chat"
	JobSaveChatBatch JobKind = "save_chat_batch"
	JobSaveMessages  JobKind = "save_messages"
)

// PersistJob is one deferred persistence call, published by capture sessions
// running with PERSIST_MODE=rabbit and applied by cmd/worker.
type PersistJob struct {
	ID     string  `json:"id"` // ULID
	Kind   JobKind `json:"kind"`
	UserID uint64  `json:"user_id"`

	Chat     *models.Conversation   `json:"chat,omitempty"`
	Chats    []models.Conversation  `json:"chats,omitempty"`
	Messages []models.MessageRecord `json:"messages,omitempty"`
}

func (j PersistJob) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job without id")
	}
	switch j.Kind {
	case JobSaveChat:
		if j.Chat == nil {
			return fmt.Errorf("job %s: save_chat without chat", j.ID)
		}
	case JobSaveChatBatch, JobSaveMessages:
	default:
		return fmt.Errorf("job %s: unknown kind %q", j.ID, j.Kind)
	}
	return nil
}

// ApplyJob runs a persistence job against the database. Re-applying a job is
// harmless: chats are upserted and known message ids are skipped.
func (r *Repo) ApplyJob(ctx context.Context, j PersistJob) error {
	if err := j.Validate(); err != nil {
		return err
	}
	switch j.Kind {
	case JobSaveChat:
		return r.SaveChat(ctx, j.UserID, *j.Chat)
	case JobSaveChatBatch:
		return r.SaveChatBatch(ctx, j.UserID, j.Chats)
	default:
		_, err := r.InsertMessages(ctx, j.UserID, j.Messages)
		return err
	}
}
