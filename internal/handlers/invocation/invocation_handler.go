// Package invocation turns one inbound event into one outbound response by
// extracting the request payload, invoking the model and building the reply.
package invocation

import (
	"context"
	"fmt"
	"slices"
	"time"

	"claude-invocation/internal/config"
	"claude-invocation/internal/metrics"
	"claude-invocation/internal/shared"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"
)

// ModelClient is the part of the Bedrock runtime client the pipeline needs.
// *bedrockruntime.Client satisfies it.
type ModelClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// UsageRecorder receives usage metadata once per invocation.
type UsageRecorder interface {
	Record(rec *shared.InvocationRecord)
}

type InvocationHandler struct {
	Client ModelClient
	Usage  UsageRecorder
	Log    *zap.SugaredLogger

	modelID            string
	allowModelOverride bool
	allowedModels      []string
	placement          config.SystemPlacement
	parseMode          config.ParseMode
	persona            string
}

// NewInvocationHandler builds a handler around a process-wide client. The
// handler holds no per-invocation state and is safe for concurrent use.
func NewInvocationHandler(client ModelClient, cfg *config.Config, log *zap.SugaredLogger) *InvocationHandler {
	return &InvocationHandler{
		Client:             client,
		Log:                log,
		modelID:            cfg.ModelID,
		allowModelOverride: cfg.AllowModelOverride,
		allowedModels:      cfg.AllowedModels,
		placement:          cfg.SystemPlacement,
		parseMode:          cfg.ParseMode,
		persona:            cfg.Persona,
	}
}

type InvocationInput struct {
	Ctx       context.Context
	RequestID string
	Event     shared.InboundEvent

	// Log defaults to the handler logger
	Log *zap.SugaredLogger
}

// Invoke runs the pipeline. It always returns exactly one response: any
// error or panic along the way becomes a 500 response carrying the error
// message.
func (ih *InvocationHandler) Invoke(input InvocationInput) (res *shared.OutboundResponse) {
	start := time.Now()
	ctx := input.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	log := input.Log
	if log == nil {
		log = ih.Log
	}
	log = log.With("request_id", input.RequestID)

	rec := &shared.InvocationRecord{
		RequestID: input.RequestID,
		Model:     ih.modelID,
		Status:    shared.StatusSuccess,
		CreatedAt: start,
	}

	defer func() {
		if r := recover(); r != nil {
			res = ih.fail(log, rec, shared.ErrPanic, fmt.Errorf("panic: %v", r))
		}
		rec.TotalTime = time.Since(start)
		ih.finish(log, rec, res)
	}()

	log.Infow("Request",
		"content_type", shared.LowerKeys(input.Event.Headers)["content-type"],
		"body_bytes", len(input.Event.Body),
		"base64", input.Event.IsBase64Encoded,
	)
	log.Debugw("Request body", "body", input.Event.Body)

	payload, err := ih.Extract(input.Event)
	if err != nil {
		return ih.fail(log, rec, shared.ErrExtractPayload, err)
	}
	rec.Model = payload.Model

	out, err := ih.QueryModel(ctx, payload)
	if err != nil {
		return ih.fail(log, rec, shared.ErrFailedModelReq, err)
	}
	rec.Cached = FromCache(out)

	result, err := ParseResult(out.Body)
	if err != nil {
		return ih.fail(log, rec, shared.ErrFailedReadingResult, err)
	}
	if !rec.Cached {
		rec.Usage = shared.Usage{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
		}
	}

	text, err := result.FirstText()
	if err != nil {
		return ih.fail(log, rec, shared.ErrFailedReadingResult, err)
	}
	return Success(text)
}

func (ih *InvocationHandler) fail(log *zap.SugaredLogger, rec *shared.InvocationRecord, stage *shared.MetricsError, err error) *shared.OutboundResponse {
	rec.Status = shared.StatusError
	rec.ErrorCode = stage.Code
	log.Errorw("Can't invoke model",
		"model", rec.Model,
		"stage", stage.Code,
		"error", err,
	)
	metrics.ErrorCount.WithLabelValues(ih.modelLabel(rec.Model), stage.Code).Inc()
	return Failure(err)
}

func (ih *InvocationHandler) finish(log *zap.SugaredLogger, rec *shared.InvocationRecord, res *shared.OutboundResponse) {
	model := ih.modelLabel(rec.Model)
	metrics.InvocationCount.WithLabelValues(model, rec.Status).Inc()
	metrics.InvocationDuration.WithLabelValues(model, rec.Status).Observe(rec.TotalTime.Seconds())
	if rec.Usage.InputTokens > 0 || rec.Usage.OutputTokens > 0 {
		metrics.InputTokens.WithLabelValues(model).Add(float64(rec.Usage.InputTokens))
		metrics.OutputTokens.WithLabelValues(model).Add(float64(rec.Usage.OutputTokens))
	}
	if ih.Usage != nil {
		ih.Usage.Record(rec)
	}

	log.Infow("Response",
		"status_code", res.StatusCode,
		"model", rec.Model,
		"cached", rec.Cached,
		"duration", rec.TotalTime.String(),
	)
	log.Debugw("Response body", "body", res.Body)
}

// modelLabel keeps metric label values to the configured models. Anything
// else a request overrode to shares one label.
func (ih *InvocationHandler) modelLabel(model string) string {
	if model == ih.modelID || slices.Contains(ih.allowedModels, model) {
		return model
	}
	return shared.OverrideModelLabel
}
