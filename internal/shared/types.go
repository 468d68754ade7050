package shared

import "time"

// InboundEvent is the HTTP-style event handed over by the host for a single
// invocation.
type InboundEvent struct {
	Body            string            `json:"body"`
	Headers         map[string]string `json:"headers"`
	IsBase64Encoded bool              `json:"isBase64Encoded"`
}

// ExtractedPayload is what the pipeline forwards to the model.
type ExtractedPayload struct {
	Model      string
	SourceCode string
	Prompt     string
}

// OutboundResponse is the terminal artifact of an invocation.
type OutboundResponse struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

type Usage struct {
	InputTokens  uint64
	OutputTokens uint64
}

// InvocationRecord is the usage metadata kept for an invocation. It never
// carries prompts, source code or generated text.
type InvocationRecord struct {
	RequestID string
	Model     string
	Status    string
	ErrorCode string
	Usage     Usage
	// Cached is set when the result came from the result cache. Usage stays
	// zero since no tokens were spent.
	Cached    bool
	TotalTime time.Duration
	CreatedAt time.Time
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)
