package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/suPer8Hu/chat-capture/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err, "open sqlite")
	require.NoError(t, db.AutoMigrate(&Chat{}, &Message{}), "automigrate")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestRepo_SaveChatBatchUpserts(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.SaveChatBatch(ctx, 1, []models.Conversation{
		{ChatProviderID: "c1", Title: "First", ProviderName: "ChatGPT"},
		{ChatProviderID: "c2", Title: "", ProviderName: "ChatGPT"},
		{ChatProviderID: "", Title: "skipped"},
		{ChatProviderID: "c1", Title: "First, renamed", ProviderName: "ChatGPT"},
	}))
	require.NoError(t, repo.SaveChat(ctx, 1, models.Conversation{ChatProviderID: "c2", Title: "Second", ProviderName: "ChatGPT"}))
	require.NoError(t, repo.SaveChat(ctx, 2, models.Conversation{ChatProviderID: "c1", Title: "Other user", ProviderName: "Claude"}))

	chats, err := repo.ListChats(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, chats, 2)

	titles := map[string]string{}
	for _, c := range chats {
		titles[c.ChatProviderID] = c.Title
	}
	assert.Equal(t, map[string]string{"c1": "First, renamed", "c2": "Second"}, titles)

	others, err := repo.ListChats(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, "Claude", others[0].ProviderName)
}

func TestRepo_InsertMessagesSkipsExisting(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	n, err := repo.InsertMessages(ctx, 1, []models.MessageRecord{
		{MessageProviderID: "m1", ChatProviderID: "c1", Content: "hi", Role: "user", CreatedAt: 1_700_000_000},
		{MessageProviderID: "m2", ChatProviderID: "c1", Content: "hello", Role: "assistant", Model: "gpt-4o", CreatedAt: 1_700_000_001_500},
		{MessageProviderID: "m3", ChatProviderID: "", Content: "no chat"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.InsertMessages(ctx, 1, []models.MessageRecord{
		{MessageProviderID: "m2", ChatProviderID: "c1", Content: "changed", Role: "assistant"},
		{MessageProviderID: "m4", ChatProviderID: "c1", Content: "new", Role: "user"},
		{MessageProviderID: "m4", ChatProviderID: "c1", Content: "dup in batch", Role: "user"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	msgs, err := repo.ListMessages(ctx, 1, "c1", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	// DESC by id
	assert.Equal(t, "m4", msgs[0].MessageProviderID)
	assert.Equal(t, "new", msgs[0].Content)
	assert.Equal(t, "m2", msgs[1].MessageProviderID)
	assert.Equal(t, "hello", msgs[1].Content)
	assert.Equal(t, "gpt-4o", msgs[1].Model)
	assert.Equal(t, int64(1_700_000_001_500), msgs[1].CreatedAt.UnixMilli())
	assert.Equal(t, "m1", msgs[2].MessageProviderID)
	assert.Equal(t, "unknown", msgs[2].Model)
	assert.Equal(t, int64(1_700_000_000), msgs[2].CreatedAt.Unix())

	older, err := repo.ListMessages(ctx, 1, "c1", 10, msgs[1].ID)
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, "m1", older[0].MessageProviderID)
}

func TestRecordTime(t *testing.T) {
	assert.Equal(t, time.Unix(1_700_000_000, 0), recordTime(1_700_000_000))
	assert.Equal(t, time.UnixMilli(1_700_000_000_123), recordTime(1_700_000_000_123))
	assert.WithinDuration(t, time.Now(), recordTime(0), time.Minute)
}

func TestRepo_ApplyJob(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	chat := models.Conversation{ChatProviderID: "c1", Title: "T", ProviderName: "Claude"}
	require.NoError(t, repo.ApplyJob(ctx, PersistJob{ID: "j1", Kind: JobSaveChat, UserID: 3, Chat: &chat}))

	job := PersistJob{ID: "j2", Kind: JobSaveMessages, UserID: 3, Messages: []models.MessageRecord{
		{MessageProviderID: "m1", ChatProviderID: "c1", Content: "x", Role: "user"},
	}}
	require.NoError(t, repo.ApplyJob(ctx, job))
	require.NoError(t, repo.ApplyJob(ctx, job), "re-applying is harmless")

	msgs, err := repo.ListMessages(ctx, 3, "c1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	assert.Error(t, repo.ApplyJob(ctx, PersistJob{ID: "j3", Kind: JobSaveChat, UserID: 3}))
	assert.Error(t, repo.ApplyJob(ctx, PersistJob{ID: "j4", Kind: "drop_tables"}))
	assert.Error(t, repo.ApplyJob(ctx, PersistJob{Kind: JobSaveMessages}))
}
