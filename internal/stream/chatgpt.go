package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/suPer8Hu/chat-capture/internal/models"
)

// ChatGPT rebuilds an assistant message from a ChatGPT SSE response. A
// processor handles exactly one response.
type ChatGPT struct {
	*emitter
}

func NewChatGPT(opts Options, emit EmitFunc) *ChatGPT {
	return &ChatGPT{emitter: newEmitter(opts, emit, true)}
}

// Process consumes r until a terminal signal or EOF. On a read error or
// context cancellation the partial draft is salvaged and the error returned.
func (p *ChatGPT) Process(ctx context.Context, r io.Reader) error {
	log := p.opts.Logger
	br := NewBlockReader(r)
	for !p.done() {
		if err := ctx.Err(); err != nil {
			p.salvage(ctx, "context", err)
			return err
		}

		blk, err := br.Next()
		if errors.Is(err, io.EOF) {
			p.salvage(ctx, "eof", nil)
			return nil
		}
		if err != nil {
			p.salvage(ctx, "read", err)
			return fmt.Errorf("read chatgpt stream: %w", err)
		}

		frame, err := Decode(blk)
		if err != nil {
			p.opts.Recorder.Malformed(p.opts.Platform)
			log.Warn("skip malformed frame",
				zap.String("platform", p.opts.Platform),
				zap.String("event", blk.Event),
				zap.Error(err))
			continue
		}
		p.opts.Recorder.Frame(p.opts.Platform, frame.Kind.String())
		p.apply(ctx, frame)
	}
	return nil
}

func (p *ChatGPT) apply(ctx context.Context, f Frame) {
	switch f.Kind {
	case FrameDone:
		p.finish(ctx)

	case FrameStreamComplete:
		if f.ConversationID != "" {
			p.draft.ConversationID = f.ConversationID
		}
		p.finish(ctx)

	case FrameMessageCreate:
		p.create(f)

	case FrameAppend:
		if p.draft.appendText(f.Text) {
			p.progress(ctx)
		}

	case FramePatch:
		p.patch(ctx, f.Patches)
	}
}

func (p *ChatGPT) create(f Frame) {
	m := f.Message
	d := p.draft
	if m.ID != "" {
		d.MessageID = m.ID
	}
	if f.ConversationID != "" {
		d.ConversationID = f.ConversationID
	}
	if m.Model != "" {
		d.Model = m.Model
	}
	if m.CreateTime > 0 {
		d.CreateTime = m.CreateTime
	}
	if m.ParentID != "" {
		d.ParentMessageID = m.ParentID
	}

	d.pushStep(ThinkingStep{
		ID:              m.ID,
		Role:            m.Role,
		CreateTime:      m.CreateTime,
		ParentMessageID: m.ParentID,
		InitialText:     m.InitialText,
		FinishedText:    m.FinishedText,
	})
	if m.Role == string(models.RoleAssistant) {
		p.resetProgress()
	}
	p.state = stateAccumulating
}

// patch applies metadata ops before content ops so a finished_text arriving
// with the final append is recorded on the step first. A patch that leaves
// nothing visible falls back to the last step's text.
func (p *ChatGPT) patch(ctx context.Context, ops []PatchOp) {
	step := p.draft.current()
	if step == nil {
		return
	}
	for _, op := range ops {
		if op.Path != finishedTextPath {
			continue
		}
		if s, ok := op.Text(); ok {
			step.FinishedText = s
		}
	}

	grew := false
	for _, op := range ops {
		if op.Path != contentPartPath || op.Op != opAppend {
			continue
		}
		if s, ok := op.Text(); ok && p.draft.appendText(s) {
			grew = true
		}
	}
	if p.draft.showLastStep() {
		grew = true
	}
	if grew {
		p.progress(ctx)
	}
}
