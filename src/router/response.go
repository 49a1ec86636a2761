package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/tick-analytics/src/models"
)

type errorResponse struct {
	Type string `json:"type"`
	Msg  string `json:"message"`
}

func NewErrorResponse(errType string, message string) *errorResponse {
	return &errorResponse{
		Type: errType,
		Msg:  message,
	}
}

func setResponse(response interface{}, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		return fmt.Errorf("setResponse: encode: %w", err)
	}

	return nil
}

func setErrorResponse(errType string, statusCode int, err error, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := NewErrorResponse(errType, err.Error())
	if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr != nil {
		return encodeErr
	}

	return nil
}

// statusFor maps domain errors onto http status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.RuleNotFoundErr), errors.Is(err, models.InsufficientDataErr):
		return http.StatusNotFound
	case errors.Is(err, models.InvalidRuleErr), errors.Is(err, models.UnknownMetricErr), errors.Is(err, models.UnknownConditionErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(errType string, err error, w http.ResponseWriter) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Errorf("%s: %v", errType, err)
	}

	setErrorResponse(errType, status, err, w)
}

func writeResponse(name string, response interface{}, w http.ResponseWriter) {
	if err := setResponse(response, w); err != nil {
		log.Errorf("%s: failed to set response: %v", name, err)
	}
}
