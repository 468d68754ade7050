package invocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"claude-invocation/internal/metrics"
	"claude-invocation/internal/shared"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func decodeBody(t *testing.T, body string) map[string]string {
	t.Helper()
	var out map[string]string
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("body is not JSON: %v (%q)", err, body)
	}
	return out
}

func sentRequest(t *testing.T, client *fakeClient) MessagesRequest {
	t.Helper()
	call := client.lastCall()
	if call == nil {
		t.Fatal("model was not called")
	}
	var req MessagesRequest
	if err := json.Unmarshal(call.Body, &req); err != nil {
		t.Fatalf("sent body is not JSON: %v", err)
	}
	return req
}

func assertCORS(t *testing.T, headers map[string]string) {
	t.Helper()
	want := map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "OPTIONS,POST",
		"Access-Control-Allow-Headers": "Content-Type",
	}
	for k, v := range want {
		if headers[k] != v {
			t.Errorf("header %s = %q, want %q", k, headers[k], v)
		}
	}
}

func TestInvoke_Success(t *testing.T) {
	client := &fakeClient{body: []byte(`{"content":[{"type":"text","text":"This defines an empty function."}]}`)}
	ih := newTestHandler(t, client)

	res := ih.Invoke(InvocationInput{
		Ctx:   context.Background(),
		Event: jsonEvent(`{"source_code": "def f(): pass", "prompt": "Explain this"}`),
	})

	if res.StatusCode != 200 {
		t.Fatalf("status = %d, body %s", res.StatusCode, res.Body)
	}
	if res.Body != `{"response": "This defines an empty function."}` {
		t.Errorf("body = %s", res.Body)
	}
	if got := decodeBody(t, res.Body)["response"]; got != "This defines an empty function." {
		t.Errorf("response = %q", got)
	}
	assertCORS(t, res.Headers)

	call := client.lastCall()
	if aws.ToString(call.ModelId) != shared.DefaultModelID {
		t.Errorf("model id = %q", aws.ToString(call.ModelId))
	}
	if aws.ToString(call.ContentType) != shared.ContentTypeJSON {
		t.Errorf("content type = %q", aws.ToString(call.ContentType))
	}
}

func TestInvoke_DefaultsForwarded(t *testing.T) {
	client := &fakeClient{body: textResponse("ok")}
	ih := newTestHandler(t, client)

	res := ih.Invoke(InvocationInput{Event: jsonEvent(`{}`)})
	if res.StatusCode != 200 {
		t.Fatalf("status = %d, body %s", res.StatusCode, res.Body)
	}

	req := sentRequest(t, client)
	content := req.Messages[0].Content
	if content[0].Text != shared.DefaultPrompt {
		t.Errorf("prompt block = %q", content[0].Text)
	}
	if content[1].Text != shared.DefaultSourceCode {
		t.Errorf("source block = %q", content[1].Text)
	}
}

func TestInvoke_SourcePlacementDefaults(t *testing.T) {
	client := &fakeClient{body: textResponse("ok")}
	ih := newTestHandler(t, client, "-system-placement", "source")

	ih.Invoke(InvocationInput{Event: jsonEvent(`{}`)})

	req := sentRequest(t, client)
	if req.System != shared.DefaultSourceCode {
		t.Errorf("system = %q", req.System)
	}
	if req.Messages[0].Content[0].Text != shared.DefaultPrompt {
		t.Errorf("prompt = %q", req.Messages[0].Content[0].Text)
	}
}

func TestInvoke_RemoteFailure(t *testing.T) {
	client := &fakeClient{err: errors.New("ThrottlingException: Too many requests, please wait before trying again.")}
	ih := newTestHandler(t, client)

	res := ih.Invoke(InvocationInput{Event: jsonEvent(`{"prompt": "p"}`)})

	if res.StatusCode != 500 {
		t.Fatalf("status = %d", res.StatusCode)
	}
	msg := decodeBody(t, res.Body)["error"]
	if !strings.Contains(msg, "ThrottlingException") {
		t.Errorf("error = %q", msg)
	}
	assertCORS(t, res.Headers)
}

func TestInvoke_Failures(t *testing.T) {
	tests := []struct {
		name    string
		client  *fakeClient
		event   shared.InboundEvent
		wantErr string
		called  bool
	}{
		{
			name:    "invalid json",
			client:  &fakeClient{body: textResponse("ok")},
			event:   jsonEvent(`{"prompt":`),
			wantErr: "invalid JSON body",
		},
		{
			name:    "malformed multipart",
			client:  &fakeClient{body: textResponse("ok")},
			event:   shared.InboundEvent{Body: "garbage", Headers: map[string]string{"Content-Type": "multipart/form-data; boundary=X"}},
			wantErr: "failed to parse multipart body",
		},
		{
			name:    "response not json",
			client:  &fakeClient{body: []byte("<html>")},
			event:   jsonEvent(`{}`),
			wantErr: "invalid model response",
			called:  true,
		},
		{
			name:    "response without content",
			client:  &fakeClient{body: []byte(`{"id":"msg"}`)},
			event:   jsonEvent(`{}`),
			wantErr: "no content blocks",
			called:  true,
		},
		{
			name:    "empty content",
			client:  &fakeClient{body: []byte(`{"content":[]}`)},
			event:   jsonEvent(`{}`),
			wantErr: "no content blocks",
			called:  true,
		},
		{
			name:    "first block without text",
			client:  &fakeClient{body: []byte(`{"content":[{"type":"tool_use","id":"t1"}]}`)},
			event:   jsonEvent(`{}`),
			wantErr: `type "tool_use" has no text`,
			called:  true,
		},
		{
			name:    "client panic",
			client:  &fakeClient{panicWith: "boom"},
			event:   jsonEvent(`{}`),
			wantErr: "panic: boom",
			called:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ih := newTestHandler(t, tt.client)
			res := ih.Invoke(InvocationInput{Event: tt.event})

			if res.StatusCode != 500 {
				t.Fatalf("status = %d, body %s", res.StatusCode, res.Body)
			}
			msg := decodeBody(t, res.Body)["error"]
			if msg == "" || !strings.Contains(msg, tt.wantErr) {
				t.Errorf("error = %q, want %q", msg, tt.wantErr)
			}
			if called := tt.client.callCount() > 0; called != tt.called {
				t.Errorf("model called = %v, want %v", called, tt.called)
			}
			assertCORS(t, res.Headers)
		})
	}
}

func TestInvoke_Idempotent(t *testing.T) {
	client := &fakeClient{body: textResponse("same <answer> & more")}
	ih := newTestHandler(t, client)
	event := jsonEvent(`{"source_code": "x", "prompt": "y"}`)

	first := ih.Invoke(InvocationInput{Event: event})
	second := ih.Invoke(InvocationInput{Event: event})

	if first.Body != second.Body {
		t.Errorf("bodies differ: %s vs %s", first.Body, second.Body)
	}
	if !strings.Contains(first.Body, "<answer> & more") {
		t.Errorf("html characters should not be escaped: %s", first.Body)
	}
}

func TestInvoke_RecordsUsage(t *testing.T) {
	rec := &fakeRecorder{}

	ih := newTestHandler(t, &fakeClient{body: textResponse("ok")})
	ih.Usage = rec
	ih.Invoke(InvocationInput{RequestID: "req_1", Event: jsonEvent(`{}`)})

	failing := newTestHandler(t, &fakeClient{err: errors.New("AccessDeniedException")})
	failing.Usage = rec
	failing.Invoke(InvocationInput{RequestID: "req_2", Event: jsonEvent(`{}`)})

	if len(rec.records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(rec.records))
	}

	ok := rec.records[0]
	if ok.RequestID != "req_1" || ok.Status != shared.StatusSuccess {
		t.Errorf("unexpected success record %+v", ok)
	}
	if ok.Usage.InputTokens != 12 || ok.Usage.OutputTokens != 7 {
		t.Errorf("usage = %+v", ok.Usage)
	}
	if ok.TotalTime <= 0 {
		t.Error("total time should be set")
	}

	failed := rec.records[1]
	if failed.Status != shared.StatusError || failed.ErrorCode != shared.ErrFailedModelReq.Code {
		t.Errorf("unexpected failure record %+v", failed)
	}
}

func TestBuildRequest(t *testing.T) {
	payload := &shared.ExtractedPayload{Model: "m", SourceCode: "print(1)", Prompt: "review"}

	t.Run("persona", func(t *testing.T) {
		ih := newTestHandler(t, &fakeClient{}, "-persona", "You review code.")
		req := ih.BuildRequest(payload)

		if req.AnthropicVersion != "bedrock-2023-05-31" || req.MaxTokens != 4096 || req.Temperature != 0.5 {
			t.Errorf("unexpected constants %+v", req)
		}
		if req.System != "You review code." {
			t.Errorf("system = %q", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Fatalf("messages = %+v", req.Messages)
		}
		want := []ContentBlock{{Type: "text", Text: "review"}, {Type: "text", Text: "print(1)"}}
		got := req.Messages[0].Content
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Errorf("content = %+v, want %+v", got, want)
		}
	})

	t.Run("source", func(t *testing.T) {
		ih := newTestHandler(t, &fakeClient{}, "-system-placement", "source")
		req := ih.BuildRequest(payload)

		if req.System != "print(1)" {
			t.Errorf("system = %q", req.System)
		}
		got := req.Messages[0].Content
		if len(got) != 1 || got[0].Text != "review" {
			t.Errorf("content = %+v", got)
		}
	})
}

func TestBuildRequest_WireFormat(t *testing.T) {
	ih := newTestHandler(t, &fakeClient{}, "-system-placement", "source")
	body, err := json.Marshal(ih.BuildRequest(&shared.ExtractedPayload{SourceCode: "s", Prompt: "p"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"anthropic_version":"bedrock-2023-05-31","max_tokens":4096,"temperature":0.5,"system":"s",` +
		`"messages":[{"role":"user","content":[{"type":"text","text":"p"}]}]}`
	if string(body) != want {
		t.Errorf("body =\n%s\nwant\n%s", body, want)
	}
}

func TestFailure_EmptyMessage(t *testing.T) {
	res := Failure(errors.New(""))
	if got := decodeBody(t, res.Body)["error"]; got != shared.ErrInternalServerError.Error() {
		t.Errorf("error = %q", got)
	}

	res = Failure(nil)
	if got := decodeBody(t, res.Body)["error"]; got == "" {
		t.Error("error message should never be empty")
	}
}

func TestHandleAPIGateway(t *testing.T) {
	client := &fakeClient{body: textResponse("looks fine")}
	ih := newTestHandler(t, client)
	rec := &fakeRecorder{}
	ih.Usage = rec

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "aws-req-1"})
	event := multipartEvent(t, "X",
		formPart{name: "file", filename: "a.py", value: []byte("print(1)")},
		formPart{name: "prompt", value: []byte("review")},
	)

	res, err := ih.HandleAPIGateway(ctx, events.APIGatewayProxyRequest{
		Body:              event.Body,
		MultiValueHeaders: map[string][]string{"Content-Type": {event.Headers["content-type"]}},
	})
	if err != nil {
		t.Fatalf("handler should never return an error: %v", err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("status = %d, body %s", res.StatusCode, res.Body)
	}
	if got := decodeBody(t, res.Body)["response"]; got != "looks fine" {
		t.Errorf("response = %q", got)
	}
	assertCORS(t, res.Headers)

	req := sentRequest(t, client)
	if req.Messages[0].Content[1].Text != "print(1)" {
		t.Errorf("source block = %q", req.Messages[0].Content[1].Text)
	}
	if len(rec.records) != 1 || rec.records[0].RequestID != "aws-req-1" {
		t.Errorf("records = %+v", rec.records)
	}
}

func TestHandleAPIGateway_FailureIsNotAnError(t *testing.T) {
	ih := newTestHandler(t, &fakeClient{err: errors.New("ValidationException: invalid model identifier")})

	res, err := ih.HandleAPIGateway(context.Background(), events.APIGatewayProxyRequest{
		Body:    `{"prompt": "p"}`,
		Headers: map[string]string{"content-type": "application/json"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != 500 {
		t.Errorf("status = %d", res.StatusCode)
	}
	if !strings.Contains(decodeBody(t, res.Body)["error"], "invalid model identifier") {
		t.Errorf("body = %s", res.Body)
	}
}

func TestMergeHeaders(t *testing.T) {
	got := mergeHeaders(
		map[string]string{"Content-Type": "application/json"},
		map[string][]string{"content-type": {"text/plain"}, "X-Trace": {"a", "b"}, "Empty": {}},
	)
	if got["content-type"] != "application/json" {
		t.Errorf("single value header should win, got %q", got["content-type"])
	}
	if got["x-trace"] != "a" {
		t.Errorf("x-trace = %q", got["x-trace"])
	}
	if _, ok := got["empty"]; ok {
		t.Error("empty multi value header should be skipped")
	}
}

func TestInvoke_OverriddenModelsShareMetricLabel(t *testing.T) {
	ih := newTestHandler(t, &fakeClient{err: errors.New("ValidationException")}, "-allow-model-override")

	seriesBefore := testutil.CollectAndCount(metrics.InvocationDuration)
	overrideBefore := testutil.ToFloat64(metrics.InvocationCount.WithLabelValues(shared.OverrideModelLabel, shared.StatusError))

	for i := 0; i < 50; i++ {
		ih.Invoke(InvocationInput{Event: jsonEvent(fmt.Sprintf(`{"model": "caller-model-%d"}`, i))})
	}

	if grown := testutil.CollectAndCount(metrics.InvocationDuration) - seriesBefore; grown > 1 {
		t.Errorf("request models created %d new series, want at most 1", grown)
	}
	overrideAfter := testutil.ToFloat64(metrics.InvocationCount.WithLabelValues(shared.OverrideModelLabel, shared.StatusError))
	if overrideAfter-overrideBefore != 50 {
		t.Errorf("override label counted %v invocations, want 50", overrideAfter-overrideBefore)
	}
}

func TestInvoke_ListedModelKeepsItsLabel(t *testing.T) {
	const sonnet = "anthropic.claude-3-sonnet-20240229-v1:0"
	ih := newTestHandler(t, &fakeClient{body: textResponse("ok")}, "-allow-model-override", "-allowed-models", sonnet)

	before := testutil.ToFloat64(metrics.InvocationCount.WithLabelValues(sonnet, shared.StatusSuccess))
	ih.Invoke(InvocationInput{Event: jsonEvent(`{"model": "` + sonnet + `"}`)})

	if got := testutil.ToFloat64(metrics.InvocationCount.WithLabelValues(sonnet, shared.StatusSuccess)) - before; got != 1 {
		t.Errorf("listed model counted %v, want 1", got)
	}
}

func TestInvoke_OversizedModelRejected(t *testing.T) {
	client := &fakeClient{body: textResponse("ok")}
	rec := &fakeRecorder{}
	ih := newTestHandler(t, client, "-allow-model-override")
	ih.Usage = rec

	res := ih.Invoke(InvocationInput{Event: jsonEvent(`{"model": "` + strings.Repeat("x", 300) + `"}`)})

	if res.StatusCode != 500 {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if !strings.Contains(decodeBody(t, res.Body)["error"], "exceeds") {
		t.Errorf("body = %s", res.Body)
	}
	if client.callCount() != 0 {
		t.Error("model should not be called")
	}
	if len(rec.records) != 1 || rec.records[0].Model != shared.DefaultModelID {
		t.Errorf("record should carry the default model, got %+v", rec.records)
	}
}

func TestInvoke_CacheHitSpendsNoTokens(t *testing.T) {
	next := &fakeClient{body: textResponse("reviewed")}
	rec := &fakeRecorder{}
	ih := newTestHandler(t, next)
	ih.Client = NewCachingClient(next, newMemoryCache(), zap.NewNop().Sugar())
	ih.Usage = rec

	event := jsonEvent(`{"source_code": "x", "prompt": "tokens"}`)
	ih.Invoke(InvocationInput{Event: event})
	tokensBefore := testutil.ToFloat64(metrics.InputTokens.WithLabelValues(shared.DefaultModelID))
	second := ih.Invoke(InvocationInput{Event: event})

	if second.StatusCode != 200 {
		t.Fatalf("status = %d", second.StatusCode)
	}
	if len(rec.records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(rec.records))
	}
	miss, hit := rec.records[0], rec.records[1]
	if miss.Cached || miss.Usage.InputTokens != 12 {
		t.Errorf("first call should spend tokens, got %+v", miss)
	}
	if !hit.Cached || hit.Usage != (shared.Usage{}) {
		t.Errorf("cache hit should spend no tokens, got %+v", hit)
	}
	if got := testutil.ToFloat64(metrics.InputTokens.WithLabelValues(shared.DefaultModelID)); got != tokensBefore {
		t.Errorf("input tokens moved from %v to %v on a cache hit", tokensBefore, got)
	}
}

func TestResponseBodyFormat(t *testing.T) {
	tests := []struct {
		name string
		res  *shared.OutboundResponse
		want string
	}{
		{
			name: "plain",
			res:  Success("This defines an empty function."),
			want: `{"response": "This defines an empty function."}`,
		},
		{
			name: "quotes and control characters",
			res:  Success("say \"hi\"\n\tdone\\"),
			want: `{"response": "say \"hi\"\n\tdone\\"}`,
		},
		{
			name: "html left alone",
			res:  Success("<b>&</b>"),
			want: `{"response": "<b>&</b>"}`,
		},
		{
			name: "non ascii escaped",
			res:  Success("caf\u00e9 \u2192 \U0001F600"),
			want: `{"response": "caf\u00e9 \u2192 \ud83d\ude00"}`,
		},
		{
			name: "other control characters",
			res:  Success("a\x01b\x7f"),
			want: `{"response": "a\u0001b\u007f"}`,
		},
		{
			name: "error",
			res:  Failure(errors.New("ThrottlingException: slow down")),
			want: `{"error": "ThrottlingException: slow down"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.res.Body != tt.want {
				t.Errorf("body = %s, want %s", tt.res.Body, tt.want)
			}
			var decoded map[string]string
			if err := json.Unmarshal([]byte(tt.res.Body), &decoded); err != nil {
				t.Errorf("body is not valid JSON: %v", err)
			}
		})
	}
}
