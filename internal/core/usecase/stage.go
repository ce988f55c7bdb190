package usecase

import (
	"context"
	"time"
)

type timeoutFunc func(context.Context) (context.Context, context.CancelFunc)

func withTimeout(d time.Duration) timeoutFunc {
	return func(ctx context.Context) (context.Context, context.CancelFunc) {
		if d <= 0 {
			return context.WithCancel(ctx)
		}
		return context.WithTimeout(ctx, d)
	}
}

// Stage names used in degradation reports, logs and metrics.
const (
	StageRoute       = "route"
	StagePrimary     = "primary_search"
	StageHypothesis  = "hypothesis"
	StageInterpreter = "interpreter"
	StageAlternates  = "alternate_search"
	StageHyDE        = "hypothetical_search"
	StageExplicit    = "explicit_articles"
	StageRerank      = "rerank"
	StageAssemble    = "assemble"
)

// StageObserver receives pipeline timings and soft failures.
type StageObserver interface {
	ObserveStage(stage, outcome string, elapsed time.Duration)
	ObserveDegraded(stage, reason string)
	ObserveResult(intent string, chunks int, generation uint64)
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, string, time.Duration) {}
func (noopObserver) ObserveDegraded(string, string)             {}
func (noopObserver) ObserveResult(string, int, uint64)          {}
