package httpadapter

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kirillkom/contract-retrieval/internal/observability/logging"
)

const requestIDHeader = "X-Request-Id"

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// withRequestID echoes or assigns X-Request-Id and puts a request-scoped logger in the context.
func withRequestID(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		ctx = logging.WithLogger(ctx, logger.With("http_request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func withAccessLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		level := slog.LevelInfo
		switch {
		case m.Code >= http.StatusInternalServerError:
			level = slog.LevelError
		case m.Code >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		client := r.RemoteAddr
		if host, _, err := net.SplitHostPort(client); err == nil {
			client = host
		}
		logger.Log(r.Context(), level, "http_request",
			"request_id", requestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"duration_ms", float64(m.Duration.Microseconds())/1000,
			"bytes", m.Written,
			"remote_addr", client,
			"user_agent", r.UserAgent(),
		)
	})
}

// gate sheds load in front of the API routes. The token bucket answers 429 with
// Retry-After; the in-flight cap makes callers wait up to queueWait for a slot and
// answers 503 after that.
type gate struct {
	limiter   *rate.Limiter
	slots     chan struct{}
	queueWait time.Duration

	onLimited func()
	onBusy    func()
}

func newGate(rps float64, burst, maxInFlight int, queueWait time.Duration) *gate {
	g := &gate{queueWait: queueWait, onLimited: func() {}, onBusy: func() {}}
	if rps > 0 {
		if burst <= 0 {
			burst = int(math.Ceil(rps))
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	if maxInFlight > 0 {
		g.slots = make(chan struct{}, maxInFlight)
	}
	return g
}

func (g *gate) wrap(next http.Handler) http.Handler {
	if g.limiter == nil && g.slots == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wait, ok := g.admitRate(); !ok {
			g.onLimited()
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(wait.Seconds())))))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		release, ok := g.acquire(r.Context())
		if !ok {
			if r.Context().Err() != nil {
				return
			}
			g.onBusy()
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "server overloaded")
			return
		}
		defer release()
		next.ServeHTTP(w, r)
	})
}

// admitRate takes a token without waiting. On refusal it returns the time until one frees up.
func (g *gate) admitRate() (time.Duration, bool) {
	if g.limiter == nil {
		return 0, true
	}
	res := g.limiter.Reserve()
	if !res.OK() {
		return time.Second, false
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return delay, false
	}
	return 0, true
}

func (g *gate) acquire(ctx context.Context) (func(), bool) {
	if g.slots == nil {
		return func() {}, true
	}
	timer := time.NewTimer(g.queueWait)
	defer timer.Stop()
	select {
	case g.slots <- struct{}{}:
		return func() { <-g.slots }, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}
