package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/resilience"
)

type Client struct {
	api        *genai.Client
	chatModel  string
	embedModel string
	executor   *resilience.Executor
}

func New(ctx context.Context, apiKey, chatModel, embedModel string, executor *resilience.Executor) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "gemini client", errors.New("api key is required"))
	}
	api, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{api: api, chatModel: chatModel, embedModel: embedModel, executor: executor}, nil
}

func (c *Client) Close() error {
	return c.api.Close()
}

// Complete implements ports.Completer.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	model := c.api.GenerativeModel(c.chatModel)
	model.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if strings.TrimSpace(req.System) != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	var resp *genai.GenerateContentResponse
	err := c.executor.Execute(ctx, "gemini.generate", func(ctx context.Context) error {
		var callErr error
		resp, callErr = model.GenerateContent(ctx, genai.Text(req.Prompt))
		return callErr
	}, classifyError)
	if err != nil {
		return "", err
	}
	text := responseText(resp)
	if text == "" {
		return "", domain.WrapError(domain.ErrMalformedResponse, "gemini generate", errors.New("empty response"))
	}
	return text, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	em := c.api.EmbeddingModel(c.embedModel)
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	var resp *genai.BatchEmbedContentsResponse
	err := c.executor.Execute(ctx, "gemini.embed", func(ctx context.Context) error {
		var callErr error
		resp, callErr = em.BatchEmbedContents(ctx, batch)
		return callErr
	}, classifyError)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, domain.WrapError(domain.ErrMalformedResponse, "gemini embed", fmt.Errorf("embedding count mismatch for %d inputs", len(texts)))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String())
}

// classifyError treats quota and server-side API errors as transient. Other API errors
// are the request's fault and leave the breaker alone.
func classifyError(err error) resilience.ErrorClassification {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		t := apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
		return resilience.ErrorClassification{Temporary: t, RecordFailure: t}
	}
	class := resilience.ClassifyTransport(err)
	if class.RecordFailure {
		// grpc and auth failures surface as plain errors.
		class.Temporary = true
	}
	return class
}
