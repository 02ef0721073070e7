package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"chatgate-backend/internal/middleware"
	"chatgate-backend/internal/models"
	"chatgate-backend/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get(middleware.RequestIDHeader),
		},
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *services.ValidationError
	var configErr *services.ConfigError

	switch {
	case errors.As(err, &validationErr):
		resp := errorResp("VALIDATION_ERROR", validationErr.Message, r)
		resp.Error.Fields = validationErr.Fields
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.As(err, &configErr):
		writeJSON(w, http.StatusInternalServerError, errorResp("CONFIG_ERROR", configErr.Message, r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
