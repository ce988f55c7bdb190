package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/contract-retrieval/internal/core/ports"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/resilience"
)

var _ ports.ReindexQueue = (*Queue)(nil)

// Subjects names the two event streams. Ingested events are load-balanced across
// workers; reindexed events fan out to every API replica.
type Subjects struct {
	Ingested  string
	Reindexed string
}

func (s Subjects) withDefaults() Subjects {
	if s.Ingested == "" {
		s.Ingested = "contracts.ingested"
	}
	if s.Reindexed == "" {
		s.Reindexed = "contracts.reindexed"
	}
	return s
}

type Queue struct {
	conn     *nats.Conn
	subjects Subjects
	executor *resilience.Executor
	logger   *slog.Logger
}

// Options tunes the connection. Zero values pick defaults suited to a broker that
// may start after the service.
type Options struct {
	ConnectTimeout     time.Duration
	ReconnectWait      time.Duration
	MaxReconnects      int
	FailFastConnect    bool
	ResilienceExecutor *resilience.Executor
	Logger             *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 2 * time.Second
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 60
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func New(url string, subjects Subjects, options Options) (*Queue, error) {
	opts := options.withDefaults()
	logger := opts.Logger

	conn, err := nats.Connect(url,
		nats.Name("contract-retrieval"),
		nats.Timeout(opts.ConnectTimeout),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.RetryOnFailedConnect(!opts.FailFastConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subjects: subjects.withDefaults(),
		executor: opts.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishContractIngested(ctx context.Context, contractID string) error {
	return q.publish(ctx, q.subjects.Ingested, contractID)
}

func (q *Queue) PublishReindexed(ctx context.Context, contractID string) error {
	return q.publish(ctx, q.subjects.Reindexed, contractID)
}

// SubscribeContractIngested blocks until ctx is done. Exactly one worker of the
// queue group receives each event.
func (q *Queue) SubscribeContractIngested(ctx context.Context, handler func(context.Context, string) error) error {
	return q.subscribe(ctx, q.subjects.Ingested, "workers", handler)
}

// SubscribeReindexed blocks until ctx is done. Every subscriber receives each event.
func (q *Queue) SubscribeReindexed(ctx context.Context, handler func(context.Context, string) error) error {
	return q.subscribe(ctx, q.subjects.Reindexed, "", handler)
}

func (q *Queue) publish(ctx context.Context, subject, contractID string) error {
	return q.executor.Execute(ctx, "nats.publish", func(context.Context) error {
		if err := q.conn.Publish(subject, []byte(contractID)); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}, classifyNATSError)
}

func (q *Queue) subscribe(ctx context.Context, subject, group string, handler func(context.Context, string) error) error {
	cb := func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		contractID := string(msg.Data)
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, contractID); err != nil {
			q.logger.Error("queue_handler_failed", "subject", subject, "contract_id", contractID, "error", err)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if group != "" {
		sub, err = q.conn.QueueSubscribe(subject, group, cb)
	} else {
		sub, err = q.conn.Subscribe(subject, cb)
	}
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
