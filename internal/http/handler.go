package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/vtuber-plan/purifly/internal/domain"
	"github.com/vtuber-plan/purifly/internal/observability"
)

// Handler handles HTTP requests.
type Handler struct {
	gateway  *domain.GatewayService
	registry domain.ProviderRegistry
	validate *validator.Validate
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(gateway *domain.GatewayService, registry domain.ProviderRegistry) *Handler {
	return &Handler{
		gateway:  gateway,
		registry: registry,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HandleGenerate processes multimodal generation requests.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req domain.CanonicalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	if req.Provider != "" {
		ctx = observability.WithProvider(ctx, req.Provider)
	}

	logger := observability.FromContext(ctx)
	logger.Info("generate request received",
		observability.Int("parts", len(req.Parts)),
		observability.String("provider", req.Provider),
		observability.Bool("stream", req.Stream),
	)

	if req.Stream {
		h.handleStream(w, r, &req)
		return
	}

	resp, _, err := h.gateway.Handle(ctx, &req)
	if err != nil {
		logger.Error("generate failed", observability.Error(err))
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	logger.Info("generate succeeded",
		observability.String("provider", resp.Provider),
		observability.Int("tokens", resp.Usage.TotalTokens),
		observability.Int64("latency_ms", resp.LatencyMS),
	)

	w.Header().Set("Content-Type", "application/json")
	if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr != nil {
		logger.Error("failed to encode response", observability.Error(encodeErr))
		http.Error(w, fmt.Sprintf("failed to encode response: %v", encodeErr), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request, req *domain.CanonicalRequest) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)
	logger.Info("stream request started")

	// Acquire the stream before committing to SSE, so routing and
	// exhaustion failures still answer with a plain error status.
	_, chunks, err := h.gateway.Handle(ctx, req)
	if err != nil {
		logger.Error("stream failed", observability.Error(err))
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	defer chunks.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for chunks.Next() {
		chunk := chunks.Current()

		data, err := json.Marshal(chunk)
		if err != nil {
			logger.Error("failed to encode chunk", observability.Error(err))
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", string(data))
		flusher.Flush()

		if chunk.Final {
			logger.Info("stream completed")
			break
		}
	}

	if err := chunks.Err(); err != nil {
		logger.Error("stream chunk error", observability.Error(err))
		// Send error as event; headers are already written.
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
		flusher.Flush()
	}
}

// HandleHealth reports the registry's provider health states.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	providers := h.registry.List(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"providers": providers,
	}); err != nil {
		// Already written status, can't change it, just log.
		return
	}
}

// statusFor maps the pipeline's structured error kinds onto HTTP statuses.
func statusFor(err error) int {
	var unsupported *domain.UnsupportedModalityError
	if errors.As(err, &unsupported) {
		return http.StatusBadRequest
	}
	var provider *domain.ProviderError
	if errors.As(err, &provider) {
		if provider.Status >= 400 && provider.Status < 500 {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	}
	var malformed *domain.MalformedResponseError
	if errors.As(err, &malformed) {
		return http.StatusBadGateway
	}
	switch {
	case errors.Is(err, domain.ErrNoCapableProvider),
		errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	}
	var exhausted *domain.AllAttemptsExhaustedError
	if errors.As(err, &exhausted) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
