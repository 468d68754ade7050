package invocation

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"claude-invocation/internal/shared"
)

const (
	responseKey = "response"
	errorKey    = "error"
)

func responseHeaders() map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "OPTIONS,POST",
		"Access-Control-Allow-Headers": "Content-Type",
		"Content-Type":                 shared.ContentTypeJSON,
	}
}

// Success wraps generated text as {"response": text} with status 200.
func Success(text string) *shared.OutboundResponse {
	return &shared.OutboundResponse{
		StatusCode: shared.HTTPStatusOK,
		Headers:    responseHeaders(),
		Body:       encodeBody(responseKey, text),
	}
}

// Failure wraps err as {"error": message} with status 500. Every failure
// kind maps to the same status.
func Failure(err error) *shared.OutboundResponse {
	message := shared.ErrInternalServerError.Error()
	if err != nil && err.Error() != "" {
		message = err.Error()
	}
	return &shared.OutboundResponse{
		StatusCode: shared.HTTPStatusInternalError,
		Headers:    responseHeaders(),
		Body:       encodeBody(errorKey, message),
	}
}

// encodeBody writes a single key object as `{"key": "value"}`, with a space
// after the colon and every character outside printable ASCII escaped as
// \uXXXX.
func encodeBody(key, value string) string {
	var sb strings.Builder
	sb.Grow(len(key) + len(value) + 8)
	sb.WriteString(`{"`)
	sb.WriteString(key)
	sb.WriteString(`": "`)
	writeASCIIString(&sb, value)
	sb.WriteString(`"}`)
	return sb.String()
}

func writeASCIIString(sb *strings.Builder, s string) {
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r < 0x7f:
				sb.WriteRune(r)
			case r > 0xffff:
				hi, lo := utf16.EncodeRune(r)
				fmt.Fprintf(sb, `\u%04x\u%04x`, hi, lo)
			default:
				fmt.Fprintf(sb, `\u%04x`, r)
			}
		}
	}
}
