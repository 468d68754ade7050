package shared

import "time"

// Bedrock / model defaults
const (
	DefaultRegion  = "ca-central-1"
	DefaultModelID = "anthropic.claude-3-haiku-20240307-v1:0"

	AnthropicVersion = "bedrock-2023-05-31"
	MaxTokens        = 4096
	Temperature      = 0.5

	// MaxModelIDLength matches the usage tables' model column.
	MaxModelIDLength = 255
	// OverrideModelLabel is the metrics label for request supplied models
	// outside the configured set.
	OverrideModelLabel = "override"

	DefaultPersona = "You are a senior software engineer reviewing code for a colleague. " +
		"Read the provided source code carefully and answer the request about it " +
		"with clear, accurate and actionable guidance."
)

// Sentinel defaults for missing request fields
const (
	DefaultSourceCode = "No source code provided"
	DefaultPrompt     = "No prompt provided"
)

// Request parsing
const (
	ContentTypeJSON      = "application/json"
	ContentTypeMultipart = "multipart/form-data"

	// MultipartMaxMemory is the in-memory budget for form parts before they
	// spill to temporary files.
	MultipartMaxMemory = 10 << 20
)

// HTTP status codes returned to the host
const (
	HTTPStatusOK            = 200
	HTTPStatusInternalError = 500
)

// Cache Configuration
const (
	CacheOperationTimeout = 2 * time.Second
	CacheKeyPrefix        = "claude-invocation:v1:result:"
)

// Usage bucket Configuration
const (
	UsageFlushInterval = 1 * time.Minute
	UsageFlushTimeout  = 30 * time.Second
	UsageMaxBuffered   = 500
)

const DefaultShutdownTimeout = 30 * time.Second
