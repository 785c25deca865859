package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"rawlabel/internal/logging"
	"rawlabel/internal/services"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

// writeError classifies err and writes the JSON error body. Server-side
// failures hide the cause from the client and log it instead.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := services.HTTPStatus(err)
	kind := services.Kind(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusGatewayTimeout {
		logging.WithContext(r.Context(), s.logger).Error("api handler failed",
			logging.String("path", r.URL.Path),
			logging.String(logging.FieldErrorKind, kind),
			logging.Error(err),
		)
		message = http.StatusText(status)
	}
	requestID, _ := services.RequestIDFromContext(r.Context())
	s.writeJSON(w, status, ErrorResponse{Error: message, Kind: kind, RequestID: requestID})
}

// decodeBody reads a bounded JSON body into dst, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body required", services.ErrInvalidInput)
		}
		return fmt.Errorf("%w: decode request body: %v", services.ErrInvalidInput, err)
	}
	return nil
}
