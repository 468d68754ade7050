package shared

import "errors"

var (
	ErrMissingAuth         = errors.New("missing authorization header")
	ErrInvalidFormat       = errors.New("invalid authentication format")
	ErrInternalServerError = errors.New("internal server error")
)

// MetricsError labels the pipeline stage a failure came from. It is used for
// logs and metrics only, the error returned to callers is never wrapped in it.
type MetricsError struct {
	Msg  string
	Code string
}

func (m *MetricsError) Error() string {
	return m.String()
}

func (m *MetricsError) String() string {
	return m.Msg
}

var (
	ErrExtractPayload      = &MetricsError{Msg: "failed to extract request payload", Code: "extract_err"}
	ErrFailedModelReq      = &MetricsError{Msg: "failed to invoke model", Code: "model_invoke_err"}
	ErrFailedReadingResult = &MetricsError{Msg: "failed to read model response", Code: "model_response_err"}
	ErrPanic               = &MetricsError{Msg: "invocation panicked", Code: "panic"}
)
