package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/resilience"
)

var (
	_ ports.VectorIndex  = (*Client)(nil)
	_ ports.VectorWriter = (*Client)(nil)
)

// pointNamespace derives stable point IDs so re-indexing overwrites instead of duplicating.
var pointNamespace = uuid.MustParse("6f1c7c52-2f43-4c39-9d0e-52f6a1e0b7a4")

const upsertBatchSize = 128

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredVectorSize int
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// UpsertChunks replaces the contract's points with the given chunks.
func (c *Client) UpsertChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	contractID := chunks[0].ContractID
	dim := len(chunks[0].Embedding)
	if dim == 0 {
		return fmt.Errorf("chunk %s has no embedding", chunks[0].ID)
	}
	for _, ch := range chunks {
		if ch.ContractID != contractID {
			return fmt.Errorf("mixed contracts in one upsert: %s and %s", contractID, ch.ContractID)
		}
		if len(ch.Embedding) != dim {
			return fmt.Errorf("chunk %s embedding has %d dimensions, expected %d", ch.ID, len(ch.Embedding), dim)
		}
	}

	if err := c.ensureCollection(ctx, dim); err != nil {
		return err
	}
	if err := c.deleteContract(ctx, contractID); err != nil {
		return err
	}

	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))
		points := make([]point, 0, end-start)
		for _, ch := range chunks[start:end] {
			points = append(points, point{
				ID:     pointID(ch.ContractID, ch.ID),
				Vector: ch.Embedding,
				Payload: map[string]any{
					"contract_id": ch.ContractID,
					"chunk_id":    ch.ID,
					"article_num": ch.Article,
					"doc_type":    string(ch.DocType),
				},
			})
		}
		url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
		if err := c.send(ctx, http.MethodPut, url, map[string]any{"points": points}, nil, "upsert"); err != nil {
			return err
		}
	}
	return nil
}

// Search returns chunk IDs of the contract ordered by cosine similarity.
func (c *Client) Search(ctx context.Context, contractID string, vector []float32, limit int) ([]domain.ScoredChunk, error) {
	if len(vector) == 0 || limit <= 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": []string{"chunk_id"},
		"filter":       contractFilter(contractID),
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.send(ctx, http.MethodPost, url, reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.ScoredChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		id := getStringPayload(r.Payload, "chunk_id")
		if id == "" {
			continue
		}
		out = append(out, domain.ScoredChunk{ChunkID: id, Score: r.Score})
	}
	return out, nil
}

func (c *Client) deleteContract(ctx context.Context, contractID string) error {
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection)
	return c.send(ctx, http.MethodPost, url, map[string]any{"filter": contractFilter(contractID)}, nil, "delete")
}

// send issues one request behind the operation's circuit breaker. A nil out skips
// decoding the answer.
func (c *Client) send(ctx context.Context, method, url string, payload any, out any, op string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", op, err)
	}
	return c.executor.Execute(ctx, "qdrant."+op, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build %s request: %w", op, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant %s: %w", op, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusMultipleChoices {
			return resilience.ReadStatusError("qdrant", op, resp)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return domain.WrapError(domain.ErrMalformedResponse, "decode qdrant "+op, err)
		}
		return nil
	}, resilience.ClassifyTransport)
}

// ensureCollection creates the cosine collection once per vector size. An existing
// collection answers 409, which counts as success.
func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.ensuredVectorSize == vectorSize {
		return nil
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.send(ctx, http.MethodPut, url, map[string]any{
		"vectors": map[string]any{"size": vectorSize, "distance": "Cosine"},
	}, nil, "ensure_collection")
	var status *resilience.StatusError
	if err != nil && !(errors.As(err, &status) && status.StatusCode == http.StatusConflict) {
		return err
	}
	c.ensuredVectorSize = vectorSize
	return nil
}

func contractFilter(contractID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "contract_id", "match": map[string]any{"value": contractID}},
		},
	}
}

func pointID(contractID, chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(contractID+"/"+chunkID)).String()
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
