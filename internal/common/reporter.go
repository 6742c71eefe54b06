package common

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Reporter is the centralized error-reporting collaborator.
type Reporter interface {
	Capture(ctx context.Context, err error)
}

type LogReporter struct {
	log *zap.Logger
}

func NewLogReporter(log *zap.Logger) *LogReporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogReporter{log: log}
}

func (r *LogReporter) Capture(_ context.Context, err error) {
	if err == nil {
		return
	}
	r.log.Error("captured error",
		zap.String("code", string(CodeOf(err))),
		zap.Error(err))
}

// MemoryReporter keeps captured errors; used by tests.
type MemoryReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *MemoryReporter) Capture(_ context.Context, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *MemoryReporter) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}
