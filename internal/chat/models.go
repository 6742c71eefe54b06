package chat

import "time"

// Chat is a captured provider conversation, unique per user and provider id.
type Chat struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID         uint64    `gorm:"not null;index:uniq_chat_user_provider,unique,priority:1" json:"-"`
	ChatProviderID string    `gorm:"type:varchar(128);not null;index:uniq_chat_user_provider,unique,priority:2" json:"chat_provider_id"`
	Title          string    `gorm:"type:varchar(512);not null" json:"title"`
	ProviderName   string    `gorm:"type:varchar(32);not null" json:"provider_name"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Chat) TableName() string { return "captured_chats" }

type Message struct {
	ID                      uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID                  uint64    `gorm:"not null;index:uniq_msg_user_provider,unique,priority:1;index:idx_msg_user_chat,priority:1" json:"-"`
	MessageProviderID       string    `gorm:"type:varchar(128);not null;index:uniq_msg_user_provider,unique,priority:2" json:"message_provider_id"`
	ChatProviderID          string    `gorm:"type:varchar(128);not null;index:idx_msg_user_chat,priority:2" json:"chat_provider_id"`
	Role                    string    `gorm:"type:varchar(16);index;not null" json:"role"`
	Content                 string    `gorm:"type:text;not null" json:"content"`
	Model                   string    `gorm:"type:varchar(64);not null" json:"model"`
	ParentMessageProviderID string    `gorm:"type:varchar(128)" json:"parent_message_provider_id,omitempty"`
	CreatedAt               time.Time `json:"created_at"`
}

func (Message) TableName() string { return "captured_messages" }
