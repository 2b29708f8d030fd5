package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"datamarket/native/common"
	"datamarket/native/market"
)

var errPrincipalRequired = errors.New("authenticated principal required")

// statusFor maps engine failures onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, market.ErrInvalidInput),
		errors.Is(err, market.ErrInvalidAmount),
		errors.Is(err, market.ErrInvalidPricingModel):
		return http.StatusBadRequest
	case errors.Is(err, market.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, market.ErrInsufficientPayment),
		errors.Is(err, market.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, market.ErrDatasetNotFound),
		errors.Is(err, market.ErrTokenNotFound),
		errors.Is(err, market.ErrStakeNotFound):
		return http.StatusNotFound
	case errors.Is(err, market.ErrDatasetNotActive),
		errors.Is(err, market.ErrInsufficientRewards):
		return http.StatusConflict
	case errors.Is(err, market.ErrAccessExpired),
		errors.Is(err, market.ErrAccessLimitReached):
		return http.StatusGone
	case errors.Is(err, common.ErrModulePaused):
		return http.StatusLocked
	case errors.Is(err, market.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, errPrincipalRequired):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if trimmed := strings.TrimSpace(err.Error()); trimmed != "" {
			message = trimmed
		}
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
