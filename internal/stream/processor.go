package stream

import (
	"context"

	"go.uber.org/zap"
)

const DefaultEmitEvery = 500

// Recorder observes processor activity. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Frame(platform, kind string)
	Malformed(platform string)
	Emitted(platform string, complete bool)
	Salvaged(platform string)
}

type nopRecorder struct{}

func (nopRecorder) Frame(string, string) {}
func (nopRecorder) Malformed(string)     {}
func (nopRecorder) Emitted(string, bool) {}
func (nopRecorder) Salvaged(string)      {}

type Options struct {
	Platform string

	// EmitEvery is the visible-content length, in runes, between
	// non-terminal snapshots. Zero means DefaultEmitEvery.
	EmitEvery int
	Seed      Seed
	Logger    *zap.Logger
	Recorder  Recorder
}

func (o Options) normalized() Options {
	if o.EmitEvery <= 0 {
		o.EmitEvery = DefaultEmitEvery
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	return o
}

type state int

const (
	stateIdle state = iota
	stateAccumulating
	stateDone
)

// emitter owns the draft lifecycle shared by all processors: periodic
// snapshots and the single terminal snapshot.
type emitter struct {
	opts       Options
	emit       EmitFunc
	draft      *Draft
	state      state
	lastBucket int
	requireID  bool // emit only once a message id is known
}

func newEmitter(opts Options, emit EmitFunc, requireID bool) *emitter {
	opts = opts.normalized()
	if emit == nil {
		emit = func(context.Context, Snapshot) {}
	}
	return &emitter{
		opts:      opts,
		emit:      emit,
		draft:     newDraft(opts.Seed),
		requireID: requireID,
	}
}

func (e *emitter) done() bool { return e.state == stateDone }

func (e *emitter) emittable() bool {
	if e.draft.Len() == 0 {
		return false
	}
	return !e.requireID || e.draft.MessageID != ""
}

// resetProgress restarts periodic counting after visible content was cleared.
func (e *emitter) resetProgress() { e.lastBucket = 0 }

// progress emits a non-terminal snapshot whenever visible content crosses a
// multiple of EmitEvery.
func (e *emitter) progress(ctx context.Context) {
	if e.state == stateDone || !e.emittable() {
		return
	}
	bucket := e.draft.Len() / e.opts.EmitEvery
	if bucket <= e.lastBucket {
		return
	}
	e.lastBucket = bucket
	e.emit(ctx, e.draft.snapshot(e.opts.Platform, false))
	e.opts.Recorder.Emitted(e.opts.Platform, false)
}

// finish moves to Done and emits the terminal snapshot once. It reports
// whether a snapshot was emitted.
func (e *emitter) finish(ctx context.Context) bool {
	if e.state == stateDone {
		return false
	}
	e.state = stateDone
	if !e.emittable() {
		return false
	}
	e.emit(ctx, e.draft.snapshot(e.opts.Platform, true))
	e.opts.Recorder.Emitted(e.opts.Platform, true)
	return true
}

// salvage finishes a stream that ended without a terminal signal. The
// snapshot is emitted even when ctx is already cancelled.
func (e *emitter) salvage(ctx context.Context, reason string, err error) {
	if e.state == stateDone {
		return
	}
	if e.finish(context.WithoutCancel(ctx)) {
		e.opts.Recorder.Salvaged(e.opts.Platform)
		e.opts.Logger.Info("salvaged partial response",
			zap.String("platform", e.opts.Platform),
			zap.String("reason", reason),
			zap.String("message_id", e.draft.MessageID),
			zap.Int("runes", e.draft.Len()),
			zap.Error(err))
	}
}
