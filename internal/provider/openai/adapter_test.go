package openai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/require"

	"github.com/vtuber-plan/purifly/internal/domain"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	adapter, err := NewAdapter(Config{APIKey: "test-key"})
	require.NoError(t, err)
	return adapter
}

func TestNewAdapter_RequiresAPIKey(t *testing.T) {
	_, err := NewAdapter(Config{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "API key is required")
}

func TestNewAdapter_Identity(t *testing.T) {
	adapter := newTestAdapter(t)

	require.Equal(t, "openai", adapter.ID())
	require.Equal(t, []domain.Modality{domain.ModalityText, domain.ModalityImage}, adapter.Capabilities())
}

func TestEncode_TextAndImageParts(t *testing.T) {
	adapter := newTestAdapter(t)

	params, err := adapter.encode(&domain.CanonicalRequest{
		Parts: []domain.Part{
			{Modality: domain.ModalityText, Text: "what is in this picture"},
			{Modality: domain.ModalityImage, Data: []byte{0x89, 0x50}, MIME: "image/png"},
		},
	})

	require.NoError(t, err)
	require.Len(t, params.Messages, 1)
	require.Equal(t, openai.ChatModel("gpt-4o"), params.Model)
}

func TestEncode_RejectsAudioParts(t *testing.T) {
	adapter := newTestAdapter(t)

	_, err := adapter.encode(&domain.CanonicalRequest{
		Parts: []domain.Part{{Modality: domain.ModalityAudio, Data: []byte{0x1}, MIME: "audio/wav"}},
	})

	var unsupported *domain.UnsupportedModalityError
	require.ErrorAs(t, err, &unsupported)
	require.Equal(t, "openai", unsupported.Provider)
	require.Equal(t, domain.ModalityAudio, unsupported.Modality)
}

func TestEncode_GenerationParams(t *testing.T) {
	adapter := newTestAdapter(t)

	params, err := adapter.encode(&domain.CanonicalRequest{
		Parts: []domain.Part{{Modality: domain.ModalityText, Text: "hi"}},
		Params: map[string]any{
			"temperature": 0.5,
			// JSON-decoded numbers arrive as float64.
			"max_tokens": float64(128),
			"model":      "gpt-4o-mini",
		},
	})

	require.NoError(t, err)
	require.Equal(t, openai.Float(0.5), params.Temperature)
	require.Equal(t, openai.Int(128), params.MaxTokens)
	require.Equal(t, openai.ChatModel("gpt-4o-mini"), params.Model)
}

func TestEncode_OmitsUnsetParams(t *testing.T) {
	adapter := newTestAdapter(t)

	params, err := adapter.encode(&domain.CanonicalRequest{
		Parts: []domain.Part{{Modality: domain.ModalityText, Text: "hi"}},
	})

	require.NoError(t, err)
	require.False(t, params.Temperature.Valid())
	require.False(t, params.MaxTokens.Valid())
}

func TestDecode_Success(t *testing.T) {
	adapter := newTestAdapter(t)

	resp, err := adapter.decode(&openai.ChatCompletion{
		ID: "chatcmpl-123",
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "hello there"}},
		},
		Usage: openai.CompletionUsage{
			PromptTokens:     5,
			CompletionTokens: 2,
			TotalTokens:      7,
		},
	}, 40*time.Millisecond)

	require.NoError(t, err)
	require.Equal(t, "chatcmpl-123", resp.ID)
	require.Equal(t, "openai", resp.Provider)
	require.Equal(t, "hello there", resp.Payload.Text)
	require.Equal(t, 5, resp.Usage.PromptTokens)
	require.Equal(t, 7, resp.Usage.TotalTokens)
	require.Equal(t, int64(40), resp.LatencyMS)
}

func TestDecode_NoChoices(t *testing.T) {
	adapter := newTestAdapter(t)

	_, err := adapter.decode(&openai.ChatCompletion{ID: "chatcmpl-123"}, time.Millisecond)

	var malformed *domain.MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	require.Equal(t, "openai", malformed.Provider)
}

func TestDecodeChunk(t *testing.T) {
	adapter := newTestAdapter(t)

	chunk, ok := adapter.decodeChunk(openai.ChatCompletionChunk{
		Choices: []openai.ChatCompletionChunkChoice{
			{Delta: openai.ChatCompletionChunkChoiceDelta{Content: "hel"}},
		},
	}, 0)
	require.True(t, ok)
	require.Equal(t, 0, chunk.Index)
	require.Equal(t, "hel", chunk.Payload.Text)
	require.False(t, chunk.Final)

	final, ok := adapter.decodeChunk(openai.ChatCompletionChunk{
		Choices: []openai.ChatCompletionChunkChoice{
			{FinishReason: "stop"},
		},
	}, 1)
	require.True(t, ok)
	require.True(t, final.Final)

	_, ok = adapter.decodeChunk(openai.ChatCompletionChunk{}, 2)
	require.False(t, ok)
}

func TestClassifySendError(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	t.Run("should map API errors to provider errors", func(t *testing.T) {
		err := adapter.classifySendError(ctx, &openai.Error{StatusCode: 429, Message: "rate limited"})

		var provider *domain.ProviderError
		require.ErrorAs(t, err, &provider)
		require.Equal(t, 429, provider.Status)
		require.Equal(t, "rate limited", provider.Body)
	})

	t.Run("should map SDK timeouts to timeout errors", func(t *testing.T) {
		err := adapter.classifySendError(ctx, context.DeadlineExceeded)

		var timeout *domain.TimeoutError
		require.ErrorAs(t, err, &timeout)
	})

	t.Run("should pass caller cancellation through", func(t *testing.T) {
		canceled, cancel := context.WithCancel(context.Background())
		cancel()

		err := adapter.classifySendError(canceled, context.Canceled)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("should wrap everything else as transport errors", func(t *testing.T) {
		err := adapter.classifySendError(ctx, errors.New("connection refused"))

		var transport *domain.TransportError
		require.ErrorAs(t, err, &transport)
	})
}

func TestParamCoercion(t *testing.T) {
	params := map[string]any{
		"float":  0.7,
		"int":    42,
		"string": "nope",
	}

	f, ok := floatParam(params, "float")
	require.True(t, ok)
	require.Equal(t, 0.7, f)

	f, ok = floatParam(params, "int")
	require.True(t, ok)
	require.Equal(t, 42.0, f)

	_, ok = floatParam(params, "string")
	require.False(t, ok)

	_, ok = floatParam(params, "missing")
	require.False(t, ok)

	i, ok := intParam(params, "int")
	require.True(t, ok)
	require.Equal(t, int64(42), i)

	i, ok = intParam(params, "float")
	require.True(t, ok)
	require.Equal(t, int64(0), i)

	_, ok = intParam(params, "string")
	require.False(t, ok)
}
