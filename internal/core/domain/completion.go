package domain

// CompletionRequest is one call to an LLM completion collaborator.
type CompletionRequest struct {
	System string
	Prompt string
	// JSON asks the collaborator for a structured JSON response.
	JSON bool
	// DisableReasoning asks for output without a reasoning preamble.
	DisableReasoning bool
	Temperature      float64
	MaxTokens        int
}
