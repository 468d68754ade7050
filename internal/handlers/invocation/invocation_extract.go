package invocation

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"slices"
	"strings"

	"claude-invocation/internal/config"
	"claude-invocation/internal/shared"
)

// requestFields holds the raw request fields. A nil field was not sent.
type requestFields struct {
	SourceCode *string `json:"source_code"`
	Prompt     *string `json:"prompt"`
	Model      *string `json:"model"`
}

// Extract pulls the model id, source code and prompt out of an event. Missing
// fields fall back to their defaults. Undecodable bodies are returned as
// errors.
func (ih *InvocationHandler) Extract(event shared.InboundEvent) (*shared.ExtractedPayload, error) {
	body := event.Body
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 body: %w", err)
		}
		body = string(decoded)
	}

	contentType := shared.LowerKeys(event.Headers)["content-type"]

	var (
		fields requestFields
		err    error
	)
	if ih.parseMode == config.ParseAuto && strings.Contains(strings.ToLower(contentType), shared.ContentTypeMultipart) {
		fields, err = parseMultipart(body, contentType)
	} else {
		fields, err = parseJSON(body)
	}
	if err != nil {
		return nil, err
	}

	payload := &shared.ExtractedPayload{
		Model:      ih.modelID,
		SourceCode: shared.DefaultSourceCode,
		Prompt:     shared.DefaultPrompt,
	}
	if fields.SourceCode != nil {
		payload.SourceCode = *fields.SourceCode
	}
	if fields.Prompt != nil {
		payload.Prompt = *fields.Prompt
	}
	if ih.allowModelOverride && fields.Model != nil && *fields.Model != "" {
		if err := ih.checkModel(*fields.Model); err != nil {
			return nil, err
		}
		payload.Model = *fields.Model
	}
	return payload, nil
}

// checkModel bounds a request supplied model id. With an allow list set only
// the default and listed models pass.
func (ih *InvocationHandler) checkModel(model string) error {
	if len(model) > shared.MaxModelIDLength {
		return fmt.Errorf("model id exceeds %d characters", shared.MaxModelIDLength)
	}
	if len(ih.allowedModels) > 0 && model != ih.modelID && !slices.Contains(ih.allowedModels, model) {
		return fmt.Errorf("model %q is not allowed", model)
	}
	return nil
}

func parseJSON(body string) (requestFields, error) {
	var fields *requestFields
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return requestFields{}, fmt.Errorf("invalid JSON body: %w", err)
	}
	if fields == nil {
		return requestFields{}, errors.New("invalid JSON body: expected an object, got null")
	}
	return *fields, nil
}

func parseMultipart(body, contentType string) (requestFields, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return requestFields{}, fmt.Errorf("invalid multipart content type: %w", err)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return requestFields{}, errors.New("multipart content type is missing a boundary")
	}

	form, err := multipart.NewReader(strings.NewReader(body), boundary).ReadForm(shared.MultipartMaxMemory)
	if err != nil {
		return requestFields{}, fmt.Errorf("failed to parse multipart body: %w", err)
	}
	defer func() {
		_ = form.RemoveAll()
	}()

	var fields requestFields
	if fields.SourceCode, err = formField(form, "file"); err != nil {
		return requestFields{}, err
	}
	if fields.Prompt, err = formField(form, "prompt"); err != nil {
		return requestFields{}, err
	}
	if fields.Model, err = formField(form, "model"); err != nil {
		return requestFields{}, err
	}
	return fields, nil
}

// formField returns a form field as text, whether it was sent as a file part
// or a plain value. Invalid UTF-8 is replaced rather than rejected.
func formField(form *multipart.Form, name string) (*string, error) {
	if files := form.File[name]; len(files) > 0 {
		f, err := files[0].Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open form file %q: %w", name, err)
		}
		defer func() {
			_ = f.Close()
		}()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read form file %q: %w", name, err)
		}
		text := strings.ToValidUTF8(string(data), "\uFFFD")
		return &text, nil
	}
	if values := form.Value[name]; len(values) > 0 {
		text := strings.ToValidUTF8(values[0], "\uFFFD")
		return &text, nil
	}
	return nil, nil
}
