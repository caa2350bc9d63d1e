// Package echo provides a testing adapter that echoes back input parts. It
// implements the domain.Adapter interface without making external API calls,
// providing deterministic responses for testing and development purposes.
// It accepts text and audio parts; image parts are rejected at encode time.
package echo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vtuber-plan/purifly/internal/domain"
	"github.com/vtuber-plan/purifly/internal/observability"
)

const (
	providerID = "echo"
	chunkDelay = 10 * time.Millisecond
)

// Adapter implements the domain.Adapter interface for echo testing.
type Adapter struct {
	id           string
	capabilities []domain.Modality
}

// NewAdapter creates a new echo adapter. No configuration is required as
// this adapter operates entirely in-memory.
func NewAdapter() *Adapter {
	return &Adapter{
		id:           providerID,
		capabilities: []domain.Modality{domain.ModalityText, domain.ModalityAudio},
	}
}

// ID returns the provider identifier.
func (a *Adapter) ID() string {
	return a.id
}

// Capabilities returns the modalities this adapter accepts.
func (a *Adapter) Capabilities() []domain.Modality {
	return a.capabilities
}

// wireRequest is the echo backend's "wire format": the rendered prompt.
type wireRequest struct {
	prompt string
}

// Complete sends a request and returns the echoed response.
func (a *Adapter) Complete(ctx context.Context, req *domain.CanonicalRequest) (*domain.CanonicalResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	wire, err := a.encode(req)
	if err != nil {
		return nil, err
	}

	logger := observability.FromContext(ctx)
	logger.Debug("echoing request")

	// send: no network to call; the echo backend answers with its input.
	content := wire.prompt
	tokens := countTokens(content)

	logger.Debug("echo completed",
		observability.Int("prompt_tokens", tokens),
		observability.Int("completion_tokens", tokens),
	)

	return a.decode(content, tokens), nil
}

// Stream sends a request and returns a stream of echo chunks, one word per
// chunk with a small delay between them.
func (a *Adapter) Stream(ctx context.Context, req *domain.CanonicalRequest) (domain.ChunkStream, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	wire, err := a.encode(req)
	if err != nil {
		return nil, err
	}

	logger := observability.FromContext(ctx)
	logger.Debug("streaming echo request")

	out, producer := domain.NewStreamPipe(ctx)

	go func() {
		words := strings.Fields(wire.prompt)
		if len(words) == 0 {
			_ = producer.Send(domain.CanonicalChunk{
				Index:   0,
				Payload: domain.Part{Modality: domain.ModalityText},
				Final:   true,
			})
			producer.Close()
			return
		}

		for i, word := range words {
			delta := word
			if i < len(words)-1 {
				delta += " "
			}
			chunk := domain.CanonicalChunk{
				Index:   i,
				Payload: domain.Part{Modality: domain.ModalityText, Text: delta},
				Final:   i == len(words)-1,
			}
			if err := producer.Send(chunk); err != nil {
				return
			}

			select {
			case <-time.After(chunkDelay):
			case <-producer.Done():
				return
			}
		}
		producer.Close()
	}()

	return out, nil
}

// encode renders the canonical request into the echo wire format. Image
// parts are outside this provider's capability set.
func (a *Adapter) encode(req *domain.CanonicalRequest) (wireRequest, error) {
	var builder strings.Builder
	for _, part := range req.Parts {
		switch part.Modality {
		case domain.ModalityText:
			builder.WriteString(part.Text)
			builder.WriteString("\n")
		case domain.ModalityAudio:
			fmt.Fprintf(&builder, "[audio %s %d bytes]\n", part.MIME, len(part.Data))
		default:
			return wireRequest{}, &domain.UnsupportedModalityError{
				Provider: a.id,
				Modality: part.Modality,
			}
		}
	}
	return wireRequest{prompt: strings.TrimSuffix(builder.String(), "\n")}, nil
}

// decode builds the canonical response from the echoed content.
func (a *Adapter) decode(content string, tokens int) *domain.CanonicalResponse {
	return &domain.CanonicalResponse{
		ID:       fmt.Sprintf("echo-%d", time.Now().UnixNano()),
		Provider: a.id,
		Payload: domain.Part{
			Modality: domain.ModalityText,
			Text:     content,
		},
		Usage: domain.Usage{
			PromptTokens:     tokens,
			CompletionTokens: tokens,
			TotalTokens:      tokens * 2,
			Bytes:            len(content),
		},
		FinishTime: time.Now(),
	}
}

// countTokens performs simple word-based token counting.
func countTokens(content string) int {
	if content == "" {
		return 0
	}
	return len(strings.Fields(content))
}
