package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/maverickkhan/dental-clinic-assistant/internal/models"
	"github.com/maverickkhan/dental-clinic-assistant/internal/services"
)

const maxBodyBytes = 1 << 20

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func requestID(r *http.Request) string {
	if id := chimw.GetReqID(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: requestID(r),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: requestID(r),
		},
	}
}

// handleServiceError writes the error envelope. Every generation failure is
// a 500 whose code is the stable error kind.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", ve.Fields, r))
		return
	}

	var ue *services.UpstreamError
	if errors.As(err, &ue) {
		writeJSON(w, http.StatusInternalServerError, errorResp(string(ue.Kind), ue.Error(), r))
		return
	}

	writeJSON(w, http.StatusInternalServerError, errorResp(string(services.KindInternal), "An unexpected error occurred", r))
}

// readJSON reads a size-limited JSON body into v.
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &services.ValidationError{Fields: map[string]string{"body": "must be a valid JSON object"}}
	}
	return nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := readJSON(w, r, v); err != nil {
		return err
	}
	return services.Validate(v)
}
