package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/suPer8Hu/chat-capture/internal/models"
)

// Mistral rebuilds an assistant message from Mistral's line framed response.
// Two line shapes occur: "data: <json|[DONE]>" and "<key>:<token>", where a
// null token ends the turn.
type Mistral struct {
	*emitter
}

func NewMistral(opts Options, emit EmitFunc) *Mistral {
	p := &Mistral{emitter: newEmitter(opts, emit, false)}
	// Mistral sends no creation marker; content is visible from the first line.
	p.draft.pushStep(ThinkingStep{Role: string(models.RoleAssistant)})
	p.state = stateAccumulating
	return p
}

type mistralData struct {
	MessageID string `json:"messageId"`
	Token     string `json:"token"`
	Content   string `json:"content"`
}

func (p *Mistral) Process(ctx context.Context, r io.Reader) error {
	sc := NewLineScanner(r)
	for !p.done() {
		if err := ctx.Err(); err != nil {
			p.salvage(ctx, "context", err)
			return err
		}
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				p.salvage(ctx, "read", err)
				return fmt.Errorf("read mistral stream: %w", err)
			}
			p.salvage(ctx, "eof", nil)
			return nil
		}
		p.line(ctx, strings.TrimSpace(sc.Text()))
	}
	return nil
}

func (p *Mistral) line(ctx context.Context, line string) {
	if line == "" {
		return
	}
	if strings.HasPrefix(line, "data:") {
		p.data(ctx, strings.TrimSpace(line[len("data:"):]))
		return
	}

	i := strings.IndexByte(line, ':')
	if i <= 0 {
		p.opts.Recorder.Frame(p.opts.Platform, FrameIgnored.String())
		return
	}
	token := strings.TrimSpace(line[i+1:])
	if token == "null" {
		p.opts.Recorder.Frame(p.opts.Platform, FrameDone.String())
		p.finish(ctx)
		return
	}
	if len(token) >= 2 && token[0] == '"' && token[len(token)-1] == '"' {
		if s, err := strconv.Unquote(token); err == nil {
			token = s
		} else if err := json.Unmarshal([]byte(token), &s); err == nil {
			token = s
		} else {
			token = token[1 : len(token)-1]
		}
	}
	p.opts.Recorder.Frame(p.opts.Platform, FrameAppend.String())
	p.append(ctx, token)
}

func (p *Mistral) data(ctx context.Context, payload string) {
	if payload == doneSentinel {
		p.opts.Recorder.Frame(p.opts.Platform, FrameDone.String())
		p.finish(ctx)
		return
	}
	if !json.Valid([]byte(payload)) {
		p.opts.Recorder.Frame(p.opts.Platform, FrameAppend.String())
		p.append(ctx, payload)
		return
	}
	var d mistralData
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		// valid JSON but not an object of strings
		p.opts.Recorder.Malformed(p.opts.Platform)
		p.opts.Logger.Debug("skip mistral data line", zap.Error(err))
		return
	}
	p.opts.Recorder.Frame(p.opts.Platform, FrameAppend.String())
	if d.MessageID != "" {
		p.draft.MessageID = d.MessageID
	}
	p.append(ctx, d.Token+d.Content)
}

func (p *Mistral) append(ctx context.Context, text string) {
	if p.draft.appendText(text) {
		p.progress(ctx)
	}
}
