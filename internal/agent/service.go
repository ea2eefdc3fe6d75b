package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/gita-reflect/internal/domain"
	"github.com/ashureev/gita-reflect/internal/shared"
)

// New builds the responder selected by cfg.Provider.
func New(ctx context.Context, cfg Config) (Responder, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		r, err := NewGeminiResponder(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	case ProviderOpenAI:
		r, err := NewOpenAIResponder(cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, shared.InvalidInput("unknown AI provider %q", cfg.Provider)
	}
}

type timeoutResponder struct {
	next    Responder
	timeout time.Duration
}

// WithTimeout bounds every Respond call on r by d. An expired call fails
// with ProcessingFailed.
func WithTimeout(r Responder, d time.Duration) Responder {
	if d <= 0 {
		return r
	}
	return &timeoutResponder{next: r, timeout: d}
}

func (t *timeoutResponder) Name() string { return t.next.Name() }

func (t *timeoutResponder) Respond(ctx context.Context, history []domain.Message) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		reply *Reply
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := t.next.Respond(ctx, history)
		done <- result{reply, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, shared.ProcessingFailed(res.err)
		}
		return res.reply, nil
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("responder %s timed out after %s: %w", t.next.Name(), t.timeout, err)
		}
		return nil, shared.ProcessingFailed(err)
	}
}
