package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/aretw0/stepwise/pkg/ports"
)

type loggingMiddleware struct {
	next   ports.ProgressStore
	logger *slog.Logger
}

// NewLoggingMiddleware logs every store call with its duration. Missing
// sessions are not reported as errors.
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next ports.ProgressStore) ports.ProgressStore {
		return &loggingMiddleware{next: next, logger: logger}
	}
}

func (m *loggingMiddleware) log(ctx context.Context, op, sessionID string, start time.Time, err error) {
	attrs := []any{"op", op, "session_id", sessionID, "duration", time.Since(start)}
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		m.logger.ErrorContext(ctx, "progress store failed", append(attrs, "err", err)...)
		return
	}
	m.logger.DebugContext(ctx, "progress store", attrs...)
}

func (m *loggingMiddleware) Save(ctx context.Context, progress *domain.Progress) error {
	start := time.Now()
	err := m.next.Save(ctx, progress)
	m.log(ctx, "save", progress.SessionID, start, err)
	return err
}

func (m *loggingMiddleware) Load(ctx context.Context, sessionID string) (*domain.Progress, error) {
	start := time.Now()
	progress, err := m.next.Load(ctx, sessionID)
	m.log(ctx, "load", sessionID, start, err)
	return progress, err
}

func (m *loggingMiddleware) Delete(ctx context.Context, sessionID string) error {
	start := time.Now()
	err := m.next.Delete(ctx, sessionID)
	m.log(ctx, "delete", sessionID, start, err)
	return err
}

func (m *loggingMiddleware) List(ctx context.Context) ([]string, error) {
	start := time.Now()
	ids, err := m.next.List(ctx)
	m.log(ctx, "list", "", start, err)
	return ids, err
}
