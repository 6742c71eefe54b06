package chat

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/suPer8Hu/chat-capture/internal/models"
)

// createdAt values above this are unix milliseconds, below it seconds.
const millisThreshold = 10_000_000_000

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func chatRow(userID uint64, c models.Conversation) Chat {
	title := c.Title
	if title == "" {
		title = "Conversation"
	}
	return Chat{
		UserID:         userID,
		ChatProviderID: c.ChatProviderID,
		Title:          title,
		ProviderName:   c.ProviderName,
	}
}

var chatUpsert = clause.OnConflict{
	Columns:   []clause.Column{{Name: "user_id"}, {Name: "chat_provider_id"}},
	DoUpdates: clause.AssignmentColumns([]string{"title", "provider_name", "updated_at"}),
}

// SaveChat inserts or refreshes one chat.
func (r *Repo) SaveChat(ctx context.Context, userID uint64, c models.Conversation) error {
	if c.ChatProviderID == "" {
		return nil
	}
	row := chatRow(userID, c)
	return r.db.WithContext(ctx).Clauses(chatUpsert).Create(&row).Error
}

// SaveChatBatch upserts a conversation list. The last entry wins when the
// list repeats an id.
func (r *Repo) SaveChatBatch(ctx context.Context, userID uint64, cs []models.Conversation) error {
	idx := make(map[string]int, len(cs))
	rows := make([]Chat, 0, len(cs))
	for _, c := range cs {
		if c.ChatProviderID == "" {
			continue
		}
		if i, ok := idx[c.ChatProviderID]; ok {
			rows[i] = chatRow(userID, c)
			continue
		}
		idx[c.ChatProviderID] = len(rows)
		rows = append(rows, chatRow(userID, c))
	}
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(chatUpsert).Create(&rows).Error
}

func recordTime(v int64) time.Time {
	switch {
	case v <= 0:
		return time.Now()
	case v > millisThreshold:
		return time.UnixMilli(v)
	default:
		return time.Unix(v, 0)
	}
}

// InsertMessages stores records whose provider id is new for the user and
// skips the rest. It returns the number of rows written.
func (r *Repo) InsertMessages(ctx context.Context, userID uint64, recs []models.MessageRecord) (int64, error) {
	rows := make([]Message, 0, len(recs))
	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		if rec.MessageProviderID == "" || rec.ChatProviderID == "" {
			continue
		}
		if _, dup := seen[rec.MessageProviderID]; dup {
			continue
		}
		seen[rec.MessageProviderID] = struct{}{}
		model := rec.Model
		if model == "" {
			model = "unknown"
		}
		rows = append(rows, Message{
			UserID:                  userID,
			MessageProviderID:       rec.MessageProviderID,
			ChatProviderID:          rec.ChatProviderID,
			Role:                    rec.Role,
			Content:                 rec.Content,
			Model:                   model,
			ParentMessageProviderID: rec.ParentMessageProviderID,
			CreatedAt:               recordTime(rec.CreatedAt),
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "message_provider_id"}},
			DoNothing: true,
		}).
		Create(&rows)
	return res.RowsAffected, res.Error
}

// ListChats returns the user's chats, most recently updated first.
func (r *Repo) ListChats(ctx context.Context, userID uint64, limit int) ([]Chat, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var chats []Chat
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&chats).Error; err != nil {
		return nil, err
	}
	return chats, nil
}

// ListMessages returns messages in DESC id order (newest -> oldest).
func (r *Repo) ListMessages(ctx context.Context, userID uint64, chatProviderID string, limit int, beforeID uint64) ([]Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND chat_provider_id = ?", userID, chatProviderID).
		Order("id DESC").
		Limit(limit)

	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}

	var msgs []Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// UserStore binds the repo to one user; it is the direct persistence path
// used by capture sessions.
type UserStore struct {
	repo   *Repo
	userID uint64
}

func (r *Repo) ForUser(userID uint64) *UserStore {
	return &UserStore{repo: r, userID: userID}
}

func (s *UserStore) SaveChat(ctx context.Context, c models.Conversation) error {
	return s.repo.SaveChat(ctx, s.userID, c)
}

func (s *UserStore) SaveChatBatch(ctx context.Context, cs []models.Conversation) error {
	return s.repo.SaveChatBatch(ctx, s.userID, cs)
}

func (s *UserStore) SaveMessageBatch(ctx context.Context, recs []models.MessageRecord) error {
	_, err := s.repo.InsertMessages(ctx, s.userID, recs)
	return err
}
