package invocation

import (
	"context"
	"encoding/json"
	"fmt"

	"claude-invocation/internal/shared"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// QueryModel sends the payload to the model and returns the client output.
// Client errors are returned as they are, there are no retries and no
// timeout beyond ctx and the client's own defaults.
func (ih *InvocationHandler) QueryModel(ctx context.Context, payload *shared.ExtractedPayload) (*bedrockruntime.InvokeModelOutput, error) {
	body, err := json.Marshal(ih.BuildRequest(payload))
	if err != nil {
		return nil, fmt.Errorf("failed building request: %w", err)
	}

	out, err := ih.Client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(payload.Model),
		Body:        body,
		ContentType: aws.String(shared.ContentTypeJSON),
		Accept:      aws.String(shared.ContentTypeJSON),
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
