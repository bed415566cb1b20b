package utils

import (
	"encoding/json"
	"errors"
	"net/http"
)

// HTTPStatus maps an error kind to a response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindBusinessRule:
		return http.StatusUnprocessableEntity
	case KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

type errorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// WriteError renders err as a JSON error body. Transient failures hide
// their cause from the client.
func WriteError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	body := errorBody{Code: KindOf(err).String(), Message: "temporary failure, please retry"}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != KindTransient {
		body.Message = appErr.Message
		body.Details = appErr.Details
	}
	WriteJSON(w, status, body)
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
