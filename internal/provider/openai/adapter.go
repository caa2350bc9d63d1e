// Package openai provides an adapter for the OpenAI API using the official
// SDK. It implements the domain.Adapter interface and handles conversion
// between canonical parts and SDK content parts: text parts become text
// content, image parts become data-URL image content. Audio input is not
// offered by this adapter's chat surface and is rejected at encode time.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/vtuber-plan/purifly/internal/domain"
	"github.com/vtuber-plan/purifly/internal/observability"
)

// Adapter implements the domain.Adapter interface for OpenAI.
type Adapter struct {
	client       openai.Client
	id           string
	defaultModel string
}

// NewAdapter creates a new OpenAI adapter.
func NewAdapter(config Config) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		// The executor owns retries; double-retrying would skew backoff.
		option.WithMaxRetries(0),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}

	model := config.Model
	if model == "" {
		model = "gpt-4o"
	}

	return &Adapter{
		client:       openai.NewClient(opts...),
		id:           "openai",
		defaultModel: model,
	}, nil
}

// ID returns the provider identifier.
func (a *Adapter) ID() string {
	return a.id
}

// Capabilities returns the modalities this adapter accepts.
func (a *Adapter) Capabilities() []domain.Modality {
	return []domain.Modality{domain.ModalityText, domain.ModalityImage}
}

// Complete sends a request and returns the full response.
func (a *Adapter) Complete(ctx context.Context, req *domain.CanonicalRequest) (*domain.CanonicalResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	params, err := a.encode(req)
	if err != nil {
		return nil, err
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI API")

	start := time.Now()
	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		classified := a.classifySendError(ctx, err)
		logger.Error("OpenAI API call failed", observability.Error(classified))
		return nil, classified
	}

	logger.Debug("OpenAI API call succeeded",
		observability.Int("prompt_tokens", int(resp.Usage.PromptTokens)),
		observability.Int("completion_tokens", int(resp.Usage.CompletionTokens)),
	)

	return a.decode(resp, time.Since(start))
}

// Stream sends a request and returns a stream of chunks.
func (a *Adapter) Stream(ctx context.Context, req *domain.CanonicalRequest) (domain.ChunkStream, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	params, err := a.encode(req)
	if err != nil {
		return nil, err
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI streaming API")

	sdkStream := a.client.Chat.Completions.NewStreaming(ctx, params)
	out, producer := domain.NewStreamPipe(ctx)

	go func() {
		defer sdkStream.Close()
		defer logger.Debug("OpenAI stream completed")

		index := 0
		for sdkStream.Next() {
			sdkChunk := sdkStream.Current()
			chunk, ok := a.decodeChunk(sdkChunk, index)
			if !ok {
				continue
			}
			if err := producer.Send(chunk); err != nil {
				return
			}
			index++
			if chunk.Final {
				producer.Close()
				return
			}
		}

		if err := sdkStream.Err(); err != nil {
			producer.Fail(a.classifySendError(ctx, err))
			return
		}
		// The backend closed the stream without a finish reason; the
		// multiplexer reports this as an interruption.
		producer.Close()
	}()

	return out, nil
}

// encode converts the canonical request into SDK chat-completion params.
func (a *Adapter) encode(req *domain.CanonicalRequest) (openai.ChatCompletionNewParams, error) {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(req.Parts))
	for _, part := range req.Parts {
		switch part.Modality {
		case domain.ModalityText:
			parts = append(parts, openai.TextContentPart(part.Text))
		case domain.ModalityImage:
			url := fmt.Sprintf("data:%s;base64,%s", part.MIME, base64.StdEncoding.EncodeToString(part.Data))
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: url,
			}))
		default:
			return openai.ChatCompletionNewParams{}, &domain.UnsupportedModalityError{
				Provider: a.id,
				Modality: part.Modality,
			}
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(a.model(req)),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)},
	}

	if temperature, ok := floatParam(req.Params, "temperature"); ok {
		params.Temperature = openai.Float(temperature)
	}
	if maxTokens, ok := intParam(req.Params, "max_tokens"); ok {
		params.MaxTokens = openai.Int(maxTokens)
	}

	return params, nil
}

// decode converts the SDK response into canonical form.
func (a *Adapter) decode(resp *openai.ChatCompletion, latency time.Duration) (*domain.CanonicalResponse, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, &domain.MalformedResponseError{
			Provider: a.id,
			Cause:    errors.New("response contains no choices"),
		}
	}

	content := resp.Choices[0].Message.Content

	return &domain.CanonicalResponse{
		ID:       resp.ID,
		Provider: a.id,
		Payload: domain.Part{
			Modality: domain.ModalityText,
			Text:     content,
		},
		Usage: domain.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
			Bytes:            len(content),
		},
		LatencyMS:  latency.Milliseconds(),
		FinishTime: time.Now(),
	}, nil
}

// decodeChunk converts one SDK stream chunk into canonical form. Chunks
// without choices (usage-only frames) are skipped.
func (a *Adapter) decodeChunk(chunk openai.ChatCompletionChunk, index int) (domain.CanonicalChunk, bool) {
	if len(chunk.Choices) == 0 {
		return domain.CanonicalChunk{}, false
	}
	choice := chunk.Choices[0]
	return domain.CanonicalChunk{
		Index: index,
		Payload: domain.Part{
			Modality: domain.ModalityText,
			Text:     choice.Delta.Content,
		},
		Final: choice.FinishReason != "",
	}, true
}

// classifySendError maps SDK/network failures onto the pipeline's error
// taxonomy.
func (a *Adapter) classifySendError(ctx context.Context, err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &domain.ProviderError{
			Provider: a.id,
			Status:   apierr.StatusCode,
			Body:     apierr.Message,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		// The SDK's per-request timeout fired, not the caller's context.
		return &domain.TimeoutError{Cause: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &domain.TransportError{Cause: err}
}

func (a *Adapter) model(req *domain.CanonicalRequest) string {
	if m, ok := req.Params["model"].(string); ok && m != "" {
		return m
	}
	return a.defaultModel
}

func floatParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func intParam(params map[string]any, key string) (int64, bool) {
	switch v := params[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
