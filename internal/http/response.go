package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/rentdesk/internal/apperror"
)

// Envelope is the response body used by every API endpoint.
type Envelope struct {
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	Data       any       `json:"data"`
	Metadata   any       `json:"metadata"`
	StatusCode int       `json:"statusCode"`
	Timestamp  time.Time `json:"timestamp"`
	Path       *string   `json:"path"`
}

// ErrorMetadata is the metadata attached to failed responses.
type ErrorMetadata struct {
	Error     apperror.Kind  `json:"error"`
	Field     string         `json:"field,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
}

// WriteData writes a successful envelope.
func WriteData(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	writeEnvelope(w, r, Envelope{
		Success:    true,
		Message:    message,
		Data:       data,
		StatusCode: status,
	})
}

// WriteDataWithMetadata writes a successful envelope carrying metadata, such as list counts.
func WriteDataWithMetadata(w http.ResponseWriter, r *http.Request, status int, message string, data, metadata any) {
	writeEnvelope(w, r, Envelope{
		Success:    true,
		Message:    message,
		Data:       data,
		Metadata:   metadata,
		StatusCode: status,
	})
}

// WriteError writes the error envelope for err. Unclassified errors are logged
// and reported as a generic internal error so no internals reach the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperror.As(err)
	status := ae.HTTPStatus()

	message := ae.Message
	if ae.Kind == apperror.KindInternal {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		message = "internal server error"
	} else if ae.Kind == apperror.KindPartialProvisioning {
		zerolog.Ctx(r.Context()).Error().Err(err).Interface("details", ae.Details).Msg("partial provisioning failure")
	}

	meta := ErrorMetadata{
		Error:     ae.Kind,
		Field:     ae.Field,
		RequestID: RequestIDFromContext(r.Context()),
	}
	if ae.Kind != apperror.KindInternal {
		meta.Details = ae.Details
	}

	writeEnvelope(w, r, Envelope{
		Success:    false,
		Message:    message,
		Metadata:   meta,
		StatusCode: status,
	})
}

func writeEnvelope(w http.ResponseWriter, r *http.Request, env Envelope) {
	env.Timestamp = time.Now().UTC()
	if r != nil && r.URL != nil {
		path := r.URL.Path
		env.Path = &path
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.StatusCode)

	if err := json.NewEncoder(w).Encode(env); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("failed to encode response")
	}
}
