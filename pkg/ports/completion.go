package ports

import "context"

// CompletionRequest is the payload sent to the completion service.
type CompletionRequest struct {
	APIKey string `json:"apiKey"`
	Prompt string `json:"prompt"`
	Suffix string `json:"suffix"`
}

// Candidate is one completion proposed by the service.
type Candidate struct {
	Text string `json:"text"`
}

// ExplainRequest is the payload sent to the explanation service.
type ExplainRequest struct {
	APIKey         string `json:"apiKey"`
	HoverSelection string `json:"hoverSelection"`
	Prompt         string `json:"prompt"`
}

// Completer produces inline code suggestions and plain-language explanations.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) ([]Candidate, error)
	Explain(ctx context.Context, req ExplainRequest) (string, error)
}
