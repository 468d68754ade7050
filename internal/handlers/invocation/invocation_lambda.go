package invocation

import (
	"context"
	"strings"

	"claude-invocation/internal/shared"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
)

// HandleAPIGateway is the Lambda entry point. It never returns an error, the
// failure is carried in the response instead.
func (ih *InvocationHandler) HandleAPIGateway(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	requestID := req.RequestContext.RequestID
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		requestID = lc.AwsRequestID
	}

	out := ih.Invoke(InvocationInput{
		Ctx:       ctx,
		RequestID: requestID,
		Event: shared.InboundEvent{
			Body:            req.Body,
			Headers:         mergeHeaders(req.Headers, req.MultiValueHeaders),
			IsBase64Encoded: req.IsBase64Encoded,
		},
	})

	return events.APIGatewayProxyResponse{
		StatusCode: out.StatusCode,
		Headers:    out.Headers,
		Body:       out.Body,
	}, nil
}

// mergeHeaders lower cases header names and fills in single value headers
// from the multi value form when the proxy only sent the latter.
func mergeHeaders(single map[string]string, multi map[string][]string) map[string]string {
	out := make(map[string]string, len(single)+len(multi))
	for k, v := range multi {
		if len(v) > 0 {
			out[strings.ToLower(k)] = v[0]
		}
	}
	for k, v := range single {
		out[strings.ToLower(k)] = v
	}
	return out
}
