package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
)

type ErrorClassification struct {
	// Temporary marks failures a later call may not see: timeouts, 5xx, network errors.
	Temporary     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Executor runs collaborator calls exactly once, each operation behind its own
// circuit breaker. A nil *Executor runs calls without a breaker.
//
// Errors leave Execute already typed: temporary failures and open circuits carry
// domain.ErrTemporary, so callers can degrade without knowing the collaborator.
type Executor struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classify ErrorClassifier) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classify == nil {
		classify = ClassifyTransport
	}

	var err error
	if e == nil || !e.cfg.BreakerEnabled {
		err = fn(ctx)
	} else {
		_, err = e.breaker(op, classify).Execute(func() (struct{}, error) {
			return struct{}{}, fn(ctx)
		})
	}
	return settle(op, err, classify)
}

// settle marks err as domain.ErrTemporary when the caller may retry later.
func settle(operation string, err error, classify ErrorClassifier) error {
	switch {
	case err == nil, isCallerDone(err), domain.IsKind(err, domain.ErrTemporary):
		return err
	case IsCircuitOpen(err), classify(err).Temporary:
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func (e *Executor) breaker(operation string, classify ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[operation]; ok {
		return cb
	}
	cfg := e.cfg
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        operation,
		MaxRequests: cfg.BreakerHalfOpenMaxCalls,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= cfg.BreakerMinRequests &&
				float64(counts.TotalFailures) >= cfg.BreakerFailureRatio*float64(counts.Requests)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, from.String(), to.String())
			}
		},
	})
	e.breakers[operation] = cb
	return cb
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
