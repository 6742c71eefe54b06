package stream

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	doneSentinel       = "[DONE]"
	streamCompleteType = "message_stream_complete"
	contentPartPath    = "/message/content/parts/0"
	finishedTextPath   = "/message/metadata/finished_text"
	opAppend           = "append"
	opPatch            = "patch"
)

type FrameKind int

const (
	FrameIgnored FrameKind = iota
	FrameDone
	FrameStreamComplete
	FrameMessageCreate
	FrameAppend
	FramePatch
)

func (k FrameKind) String() string {
	switch k {
	case FrameDone:
		return "done"
	case FrameStreamComplete:
		return "stream_complete"
	case FrameMessageCreate:
		return "message_create"
	case FrameAppend:
		return "append"
	case FramePatch:
		return "patch"
	default:
		return "ignored"
	}
}

// Frame is a decoded ChatGPT patch envelope. Which fields are set depends on
// Kind.
type Frame struct {
	Kind           FrameKind
	ConversationID string
	Message        *CreatedMessage
	Text           string
	Patches        []PatchOp
}

type CreatedMessage struct {
	ID           string
	Role         string
	Model        string
	ParentID     string
	CreateTime   float64
	InitialText  string
	FinishedText string
}

type PatchOp struct {
	Path  string          `json:"p"`
	Op    string          `json:"o"`
	Value json.RawMessage `json:"v"`
}

// Text returns the op value when it is a JSON string.
func (op PatchOp) Text() (string, bool) {
	return rawString(op.Value)
}

type envelope struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	Op             string          `json:"o"`
	Path           string          `json:"p"`
	Value          json.RawMessage `json:"v"`
}

type createPayload struct {
	ConversationID string `json:"conversation_id"`
	Message        *struct {
		ID             string `json:"id"`
		ConversationID string `json:"conversation_id"`
		Author         struct {
			Role string `json:"role"`
		} `json:"author"`
		CreateTime *float64 `json:"create_time"`
		Metadata   struct {
			ModelSlug    string `json:"model_slug"`
			ParentID     string `json:"parent_id"`
			InitialText  string `json:"initial_text"`
			FinishedText string `json:"finished_text"`
		} `json:"metadata"`
	} `json:"message"`
}

// Decode classifies one SSE frame. Checks run in a fixed order: sentinel,
// stream complete, message creation, append, patch. A frame whose data is not
// valid JSON returns an error.
func Decode(b Block) (Frame, error) {
	data := strings.TrimSpace(b.Data)
	if data == doneSentinel {
		return Frame{Kind: FrameDone}, nil
	}
	if b.Event == streamCompleteType {
		f := Frame{Kind: FrameStreamComplete}
		var env envelope
		if json.Unmarshal([]byte(data), &env) == nil {
			f.ConversationID = env.ConversationID
		}
		return f, nil
	}
	if data == "" {
		return Frame{Kind: FrameIgnored}, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}

	if env.Type == streamCompleteType {
		return Frame{Kind: FrameStreamComplete, ConversationID: env.ConversationID}, nil
	}

	if msg, convID, ok := decodeCreate(env.Value); ok {
		if convID == "" {
			convID = env.ConversationID
		}
		return Frame{Kind: FrameMessageCreate, Message: msg, ConversationID: convID}, nil
	}

	if text, isString := rawString(env.Value); isString {
		if (env.Op == opAppend && env.Path == contentPartPath) || env.Op == "" {
			return Frame{Kind: FrameAppend, Text: text}, nil
		}
	}

	if env.Op == opPatch && isArray(env.Value) {
		var ops []PatchOp
		if err := json.Unmarshal(env.Value, &ops); err != nil {
			return Frame{}, fmt.Errorf("decode patch: %w", err)
		}
		return Frame{Kind: FramePatch, Patches: ops}, nil
	}

	return Frame{Kind: FrameIgnored}, nil
}

func decodeCreate(v json.RawMessage) (*CreatedMessage, string, bool) {
	if !isObject(v) {
		return nil, "", false
	}
	var p createPayload
	if err := json.Unmarshal(v, &p); err != nil || p.Message == nil {
		return nil, "", false
	}
	m := &CreatedMessage{
		ID:           p.Message.ID,
		Role:         p.Message.Author.Role,
		Model:        p.Message.Metadata.ModelSlug,
		ParentID:     p.Message.Metadata.ParentID,
		InitialText:  p.Message.Metadata.InitialText,
		FinishedText: p.Message.Metadata.FinishedText,
	}
	if p.Message.CreateTime != nil {
		m.CreateTime = *p.Message.CreateTime
	}
	convID := p.ConversationID
	if convID == "" {
		convID = p.Message.ConversationID
	}
	return m, convID, true
}

func rawString(v json.RawMessage) (string, bool) {
	v = trimJSON(v)
	if len(v) == 0 || v[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

func isObject(v json.RawMessage) bool {
	v = trimJSON(v)
	return len(v) > 0 && v[0] == '{'
}

func isArray(v json.RawMessage) bool {
	v = trimJSON(v)
	return len(v) > 0 && v[0] == '['
}

func trimJSON(v json.RawMessage) json.RawMessage {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\t' || v[0] == '\n' || v[0] == '\r') {
		v = v[1:]
	}
	return v
}
