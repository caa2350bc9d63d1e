package domain

import "time"

// Modality identifies the kind of payload a Part carries.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityAudio Modality = "audio"
)

// Part is one modality-tagged segment of a request or response payload.
// Text parts carry Text; image and audio parts carry Data plus a MIME tag.
type Part struct {
	Modality Modality `json:"modality" validate:"required,oneof=text image audio"`
	Text     string   `json:"text,omitempty"`
	Data     []byte   `json:"data,omitempty"`
	MIME     string   `json:"mime,omitempty"`
}

// CanonicalRequest is the unified multimodal request flowing through the
// pipeline. It is treated as immutable once constructed.
type CanonicalRequest struct {
	// Parts is the ordered payload sequence; never empty.
	Parts []Part `json:"parts" validate:"required,min=1,dive"`

	// Capabilities is an optional target-capability hint merged into the
	// requirement derived from the part modalities.
	Capabilities []Modality `json:"capabilities,omitempty" validate:"dive,oneof=text image audio"`

	// Params holds generation parameters (temperature, max output size, ...)
	// as an open key/value map.
	Params map[string]any `json:"params,omitempty"`

	// Provider is an optional explicit provider-id override.
	Provider string `json:"provider,omitempty"`

	Stream bool `json:"stream,omitempty"`
}

// Modalities derives the capability requirement for this request: the union
// of its part modalities and the target-capability hint, deduplicated in
// first-occurrence order so routing stays deterministic.
func (r *CanonicalRequest) Modalities() []Modality {
	seen := make(map[Modality]bool, 3)
	out := make([]Modality, 0, 3)
	for _, p := range r.Parts {
		if !seen[p.Modality] {
			seen[p.Modality] = true
			out = append(out, p.Modality)
		}
	}
	for _, m := range r.Capabilities {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// CanonicalResponse is the unified non-streaming response.
type CanonicalResponse struct {
	ID         string    `json:"id"`
	Provider   string    `json:"provider"`
	Payload    Part      `json:"payload"`
	Usage      Usage     `json:"usage"`
	LatencyMS  int64     `json:"latency_ms"`
	FinishTime time.Time `json:"finish_time"`
}

// Usage tracks token and byte consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	Bytes            int `json:"bytes,omitempty"`
}

// CanonicalChunk is one element of a streaming response. Indices are
// strictly increasing from zero; exactly the last chunk carries Final.
type CanonicalChunk struct {
	Index   int  `json:"index"`
	Payload Part `json:"payload"`
	Final   bool `json:"final"`
}

// HealthStatus is a provider's availability state.
type HealthStatus string

const (
	HealthHealthy     HealthStatus = "healthy"
	HealthDegraded    HealthStatus = "degraded"
	HealthUnavailable HealthStatus = "unavailable"
)

// ProviderDescriptor describes one configured backend. Descriptors are owned
// by the registry; health and failure counters change only through
// ReportOutcome.
type ProviderDescriptor struct {
	ID                  string       `json:"id"`
	Capabilities        []Modality   `json:"capabilities"`
	Health              HealthStatus `json:"health"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastFailure         time.Time    `json:"last_failure,omitempty"`
}

// Supports reports whether the descriptor's capability set is a superset of
// the given requirement.
func (d *ProviderDescriptor) Supports(require []Modality) bool {
	for _, m := range require {
		found := false
		for _, c := range d.Capabilities {
			if c == m {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
