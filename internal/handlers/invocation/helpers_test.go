package invocation

import (
	"context"
	"encoding/json"
	"flag"
	"sync"
	"testing"

	"claude-invocation/internal/config"
	"claude-invocation/internal/shared"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"
)

type fakeClient struct {
	mu        sync.Mutex
	body      []byte
	err       error
	panicWith any
	calls     []*bedrockruntime.InvokeModelInput
}

func (f *fakeClient) InvokeModel(_ context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.mu.Lock()
	f.calls = append(f.calls, params)
	f.mu.Unlock()

	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeClient) lastCall() *bedrockruntime.InvokeModelInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []*shared.InvocationRecord
}

func (f *fakeRecorder) Record(rec *shared.InvocationRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
}

func testConfig(t *testing.T, args ...string) *config.Config {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := config.Register(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if err := config.Finalize(cfg, fs); err != nil {
		t.Fatalf("finalize config: %v", err)
	}
	return cfg
}

func newTestHandler(t *testing.T, client ModelClient, args ...string) *InvocationHandler {
	t.Helper()
	return NewInvocationHandler(client, testConfig(t, args...), zap.NewNop().Sugar())
}

func textResponse(text string) []byte {
	return []byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude","content":[{"type":"text","text":` +
		quote(text) + `}],"stop_reason":"end_turn","usage":{"input_tokens":12,"output_tokens":7}}`)
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
