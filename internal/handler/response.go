package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/digital-banking/internal/models"
)

// errorBody is the JSON shape of every failed request
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps an error kind to its HTTP status
func statusOf(err error) int {
	switch {
	case errors.Is(err, models.ErrAccountNotFound),
		errors.Is(err, models.ErrCustomerNotFound),
		errors.Is(err, models.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransfer),
		errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInsufficientBalance),
		errors.Is(err, models.ErrCustomerHasAccounts),
		errors.Is(err, models.ErrAccountNotActive):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, models.ErrTokenExpired),
		errors.Is(err, models.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrInsufficientScope):
		return http.StatusForbidden
	case errors.Is(err, models.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	body := errorBody{
		Code:      models.ErrorCode(err),
		Message:   err.Error(),
		Retryable: models.IsRetryable(err),
	}
	switch code {
	case http.StatusInternalServerError:
		h.log.WithFields(logrus.Fields{"path": r.URL.Path, "error": err}).Error("Unhandled error")
		body.Message = "internal error"
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer realm="digital-banking"`)
	}
	writeJSON(w, code, body)
}
