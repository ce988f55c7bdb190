// Package mcpadapter exposes contract retrieval as Model Context Protocol tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
)

const (
	toolRetrieve = "retrieve_contract_context"
	toolRoute    = "route_question"
)

type Server struct {
	retriever ports.Retriever
	router    ports.QueryRouter
	logger    *slog.Logger
	mcp       *server.MCPServer
}

func NewServer(retriever ports.Retriever, router ports.QueryRouter, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		retriever: retriever,
		router:    router,
		logger:    logger,
		mcp:       server.NewMCPServer("contract-retrieval", version, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s
}

// MCP returns the underlying server for transport wiring.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio blocks serving the protocol over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// ServeHTTP blocks serving the streamable HTTP transport on addr.
func (s *Server) ServeHTTP(addr string) error {
	return server.NewStreamableHTTPServer(s.mcp).Start(addr)
}

func (s *Server) registerTools() {
	questionArgs := []mcp.ToolOption{
		mcp.WithString("question", mcp.Required(), mcp.Description("The worker's question in their own words")),
		mcp.WithString("contract_id", mcp.Required(), mcp.Description("Identifier of the labor contract to search")),
		mcp.WithString("classification", mcp.Description("Optional job classification, for example courtesy_clerk")),
		mcp.WithString("employment_status", mcp.Description("Optional employment status, for example part_time")),
	}

	s.mcp.AddTool(mcp.NewTool(toolRetrieve, append([]mcp.ToolOption{
		mcp.WithDescription("Find the contract sections that answer a worker's question, ranked by relevance."),
	}, questionArgs...)...), s.handleRetrieve)

	s.mcp.AddTool(mcp.NewTool(toolRoute, append([]mcp.ToolOption{
		mcp.WithDescription("Classify a question (wage, high stakes, or general contract) without searching."),
	}, questionArgs...)...), s.handleRoute)
}

type args struct {
	question   string
	contractID string
	hints      domain.Hints
}

func parseArgs(req mcp.CallToolRequest) (args, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return args{}, err
	}
	contractID, err := req.RequireString("contract_id")
	if err != nil {
		return args{}, err
	}
	return args{
		question:   question,
		contractID: contractID,
		hints: domain.Hints{
			Classification:   req.GetString("classification", ""),
			EmploymentStatus: req.GetString("employment_status", ""),
		},
	}, nil
}

type sectionOutput struct {
	ChunkID    string  `json:"chunk_id"`
	Citation   string  `json:"citation,omitempty"`
	Title      string  `json:"title,omitempty"`
	Content    string  `json:"content"`
	FinalScore float64 `json:"final_score"`
}

type retrieveOutput struct {
	ContractID         string                `json:"contract_id"`
	Generation         uint64                `json:"generation"`
	Intent             domain.Intent         `json:"intent"`
	EscalationRequired bool                  `json:"escalation_required"`
	Sections           []sectionOutput       `json:"sections"`
	Degraded           []domain.StageFailure `json:"degraded,omitempty"`
}

func (s *Server) handleRetrieve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, err := parseArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.retriever.Retrieve(ctx, a.question, a.contractID, a.hints)
	if err != nil {
		return s.toolError(toolRetrieve, err), nil
	}

	out := retrieveOutput{
		ContractID:         result.ContractID,
		Generation:         result.Generation,
		Intent:             result.Intent,
		EscalationRequired: result.EscalationRequired,
		Sections:           make([]sectionOutput, 0, len(result.Chunks)),
		Degraded:           result.Degraded,
	}
	for _, c := range result.Chunks {
		out.Sections = append(out.Sections, sectionOutput{
			ChunkID:    c.Chunk.ID,
			Citation:   c.Chunk.Citation,
			Title:      c.Chunk.Title,
			Content:    c.Chunk.DisplayText(),
			FinalScore: c.FinalScore,
		})
	}
	return jsonResult(out)
}

func (s *Server) handleRoute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, err := parseArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	qc, intent, err := s.router.Route(ctx, a.question, a.contractID, a.hints)
	if err != nil {
		return s.toolError(toolRoute, err), nil
	}
	return jsonResult(map[string]any{
		"expanded_query":      qc.ExpandedQuery,
		"intent":              intent,
		"escalation_required": intent.RequiresEscalation,
	})
}

func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn("mcp_tool_failed", "tool", tool, "error", err)
	switch {
	case domain.IsKind(err, domain.ErrUnknownContract):
		return mcp.NewToolResultError("unknown contract: " + err.Error())
	case domain.IsConfigError(err):
		return mcp.NewToolResultError("contract configuration error: " + err.Error())
	case domain.IsKind(err, domain.ErrInvalidInput):
		return mcp.NewToolResultError(err.Error())
	default:
		return mcp.NewToolResultError("retrieval failed")
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
