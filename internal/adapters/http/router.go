package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
	"github.com/kirillkom/contract-retrieval/internal/observability/logging"
)

const maxCorpusBytes = 64 << 20

type corpusUploader interface {
	Upload(ctx context.Context, contractID string, body io.Reader) (string, error)
}

type contractRefresher interface {
	Refresh(ctx context.Context, contractID string) error
}

type trafficMetrics interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
	RecordRejected(reason string)
}

// Deps are the collaborators served over HTTP. Nil optional deps disable their routes.
type Deps struct {
	Retriever ports.Retriever
	Router    ports.QueryRouter
	Corpora   ports.CorpusProvider
	Uploader  corpusUploader
	Refresher contractRefresher
	Metrics   trafficMetrics
	Logger    *slog.Logger
}

type Options struct {
	Service        string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	QueueWait      time.Duration
}

type Router struct {
	deps Deps
	opts Options
}

func NewRouter(deps Deps, opts Options) *Router {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.Service == "" {
		opts.Service = "api"
	}
	if opts.QueueWait <= 0 {
		opts.QueueWait = 100 * time.Millisecond
	}
	return &Router{deps: deps, opts: opts}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/retrieve", rt.retrieve)
	api.HandleFunc("POST /v1/route", rt.route)
	api.HandleFunc("GET /v1/contracts/{contract_id}", rt.contractInfo)
	if rt.deps.Uploader != nil {
		api.HandleFunc("PUT /v1/contracts/{contract_id}/corpus", rt.uploadCorpus)
	}
	if rt.deps.Refresher != nil {
		api.HandleFunc("POST /v1/contracts/{contract_id}/refresh", rt.refreshContract)
	}

	g := newGate(rt.opts.RateLimitRPS, rt.opts.RateLimitBurst, rt.opts.MaxInFlight, rt.opts.QueueWait)
	if m := rt.deps.Metrics; m != nil {
		g.onLimited = func() { m.RecordRejected("rate_limited") }
		g.onBusy = func() { m.RecordRejected("overloaded") }
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.deps.Metrics != nil {
		mux.Handle("GET /metrics", rt.deps.Metrics.Handler())
	}
	mux.Handle("/v1/", g.wrap(api))

	var handler http.Handler = mux
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware(handler)
	}
	return withRequestID(rt.deps.Logger, withAccessLog(rt.deps.Logger, handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": rt.opts.Service})
}

type retrieveRequest struct {
	Question   string       `json:"question"`
	ContractID string       `json:"contract_id"`
	Hints      domain.Hints `json:"hints"`
}

func (req retrieveRequest) validate() error {
	if strings.TrimSpace(req.Question) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate request", errors.New("question is required"))
	}
	if strings.TrimSpace(req.ContractID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate request", errors.New("contract_id is required"))
	}
	return nil
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRetrieveRequest(w, r)
	if !ok {
		return
	}
	result, err := rt.deps.Retriever.Retrieve(r.Context(), req.Question, req.ContractID, req.Hints)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRetrieveResponse(result))
}

func (rt *Router) route(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRetrieveRequest(w, r)
	if !ok {
		return
	}
	qc, intent, err := rt.deps.Router.Route(r.Context(), req.Question, req.ContractID, req.Hints)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routeResponse{Query: qc, Intent: intent, EscalationRequired: intent.RequiresEscalation})
}

func (rt *Router) contractInfo(w http.ResponseWriter, r *http.Request) {
	contractID := r.PathValue("contract_id")
	corpus, err := rt.deps.Corpora.Current(contractID)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contractResponse{
		ContractID: contractID,
		Generation: corpus.Generation(),
		Chunks:     corpus.Size(),
		Articles:   corpus.Articles(),
	})
}

func (rt *Router) uploadCorpus(w http.ResponseWriter, r *http.Request) {
	contractID := r.PathValue("contract_id")
	body := http.MaxBytesReader(w, r.Body, maxCorpusBytes)
	key, err := rt.deps.Uploader.Upload(r.Context(), contractID, body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "corpus file too large")
			return
		}
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"contract_id": contractID, "key": key, "status": "queued"})
}

func (rt *Router) refreshContract(w http.ResponseWriter, r *http.Request) {
	contractID := r.PathValue("contract_id")
	if err := rt.deps.Refresher.Refresh(r.Context(), contractID); err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	resp := map[string]any{"contract_id": contractID, "status": "refreshed"}
	if corpus, err := rt.deps.Corpora.Current(contractID); err == nil {
		resp["generation"] = corpus.Generation()
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeRetrieveRequest(w http.ResponseWriter, r *http.Request) (retrieveRequest, bool) {
	var req retrieveRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return req, false
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	logger := logging.FromContext(r.Context(), rt.deps.Logger)
	if status >= 500 {
		logger.Error("request_failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		logger.Warn("request_rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	if status == statusClientClosedRequest {
		w.WriteHeader(status)
		return
	}
	writeError(w, status, errorMessage(status, err))
}

// errorMessage hides internal error detail behind 5xx responses.
func errorMessage(status int, err error) string {
	if status >= 500 {
		return http.StatusText(status)
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
