package rabbitmq

import (
	"context"

	"github.com/suPer8Hu/chat-capture/internal/chat"
	"github.com/suPer8Hu/chat-capture/internal/common"
	"github.com/suPer8Hu/chat-capture/internal/models"
)

// Store is the PERSIST_MODE=rabbit persistence path of one user: every call
// becomes a job for cmd/worker.
type Store struct {
	pub    *Publisher
	userID uint64
}

func (p *Publisher) ForUser(userID uint64) *Store {
	return &Store{pub: p, userID: userID}
}

func (s *Store) SaveChat(ctx context.Context, c models.Conversation) error {
	return s.publish(ctx, chat.PersistJob{Kind: chat.JobSaveChat, Chat: &c})
}

func (s *Store) SaveChatBatch(ctx context.Context, cs []models.Conversation) error {
	if len(cs) == 0 {
		return nil
	}
	return s.publish(ctx, chat.PersistJob{Kind: chat.JobSaveChatBatch, Chats: cs})
}

func (s *Store) SaveMessageBatch(ctx context.Context, recs []models.MessageRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return s.publish(ctx, chat.PersistJob{Kind: chat.JobSaveMessages, Messages: recs})
}

func (s *Store) publish(ctx context.Context, job chat.PersistJob) error {
	id, err := common.NewULID()
	if err != nil {
		return err
	}
	job.ID = id
	job.UserID = s.userID
	return s.pub.PublishJob(ctx, job)
}
