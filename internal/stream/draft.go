package stream

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/suPer8Hu/chat-capture/internal/models"
)

// ThinkingStep is one message of a multi-step turn. Only assistant steps feed
// the visible content.
type ThinkingStep struct {
	ID              string
	Role            string
	Content         string
	CreateTime      float64
	ParentMessageID string
	InitialText     string
	FinishedText    string
}

// Draft is the assistant message being rebuilt from one streaming response.
type Draft struct {
	MessageID       string
	ConversationID  string
	Model           string
	CreateTime      float64
	ParentMessageID string
	CurrentStep     int // -1 until the first step arrives
	Steps           []ThinkingStep

	content strings.Builder
	runes   int
}

func newDraft(seed Seed) *Draft {
	return &Draft{
		MessageID:       seed.MessageID,
		ConversationID:  seed.ConversationID,
		Model:           seed.Model,
		ParentMessageID: seed.ParentMessageID,
		CurrentStep:     -1,
	}
}

func (d *Draft) Content() string { return d.content.String() }

// Len is the visible content length in runes.
func (d *Draft) Len() int { return d.runes }

func (d *Draft) pushStep(s ThinkingStep) {
	d.Steps = append(d.Steps, s)
	d.CurrentStep = len(d.Steps) - 1
	if s.Role == string(models.RoleAssistant) {
		d.content.Reset()
		d.runes = 0
	}
}

func (d *Draft) current() *ThinkingStep {
	if d.CurrentStep < 0 || d.CurrentStep >= len(d.Steps) {
		return nil
	}
	return &d.Steps[d.CurrentStep]
}

// appendText adds text to the current step and reports whether visible
// content grew.
func (d *Draft) appendText(text string) bool {
	step := d.current()
	if step == nil || text == "" {
		return false
	}
	step.Content += text
	if step.Role != string(models.RoleAssistant) {
		return false
	}
	d.appendVisible(text)
	return true
}

func (d *Draft) appendVisible(text string) {
	d.content.WriteString(text)
	d.runes += utf8.RuneCountInString(text)
}

// showLastStep makes the last step's text visible when no assistant text is,
// so a turn made only of tool steps still carries content. It reports
// whether visible content changed.
func (d *Draft) showLastStep() bool {
	if d.runes > 0 || len(d.Steps) == 0 {
		return false
	}
	last := d.Steps[len(d.Steps)-1].Content
	if last == "" {
		return false
	}
	d.appendVisible(last)
	return true
}

// thinkingTime is the gap between the first step and the last assistant step,
// in seconds, when the turn had intermediate steps.
func (d *Draft) thinkingTime() *float64 {
	if len(d.Steps) < 2 {
		return nil
	}
	first := d.Steps[0].CreateTime
	for i := len(d.Steps) - 1; i > 0; i-- {
		s := d.Steps[i]
		if s.Role != string(models.RoleAssistant) {
			continue
		}
		if first <= 0 || s.CreateTime < first {
			return nil
		}
		t := s.CreateTime - first
		return &t
	}
	return nil
}

// Snapshot is an emitted copy of a draft.
type Snapshot struct {
	Platform        string   `json:"platform"`
	MessageID       string   `json:"messageId"`
	ConversationID  string   `json:"conversationId"`
	Model           string   `json:"model"`
	Content         string   `json:"content"`
	IsComplete      bool     `json:"isComplete"`
	CreateTime      float64  `json:"createTime,omitempty"`
	ParentMessageID string   `json:"parentMessageId,omitempty"`
	ThinkingTime    *float64 `json:"thinkingTime,omitempty"`
}

func (d *Draft) snapshot(platform string, complete bool) Snapshot {
	return Snapshot{
		Platform:        platform,
		MessageID:       d.MessageID,
		ConversationID:  d.ConversationID,
		Model:           d.Model,
		Content:         d.Content(),
		IsComplete:      complete,
		CreateTime:      d.CreateTime,
		ParentMessageID: d.ParentMessageID,
		ThinkingTime:    d.thinkingTime(),
	}
}

// EmitFunc receives every snapshot, in order, on the processing goroutine.
type EmitFunc func(ctx context.Context, s Snapshot)

// Seed carries what the outgoing request already tells us about the turn.
type Seed struct {
	MessageID       string
	ConversationID  string
	ParentMessageID string
	Model           string
}
