package upstream

import (
	"errors"
	"net/http"

	"github.com/noah-isme/promo-storefront/internal/common"
)

// AppError maps collaborator failures to API errors.
func AppError(err error) error {
	if err == nil {
		return nil
	}
	if common.IsAppError(err) {
		return err
	}
	if errors.Is(err, ErrUnavailable) {
		return common.NewAppError("UPSTREAM_UNAVAILABLE", "a required service is unavailable, please retry", http.StatusServiceUnavailable, err)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		message := statusErr.Message
		switch {
		case statusErr.Status == http.StatusNotFound:
			if message == "" {
				message = "resource not found"
			}
			return common.NewAppError("NOT_FOUND", message, http.StatusNotFound, err)
		case statusErr.Status == http.StatusUnauthorized:
			return common.NewAppError("UNAUTHORIZED", "missing or invalid token", http.StatusUnauthorized, err)
		case statusErr.Status == http.StatusForbidden:
			return common.NewAppError("FORBIDDEN", "forbidden", http.StatusForbidden, err)
		case statusErr.Status == http.StatusBadRequest || statusErr.Status == http.StatusUnprocessableEntity || statusErr.Status == http.StatusConflict:
			if message == "" {
				message = "request rejected"
			}
			return common.NewAppError("VALIDATION_ERROR", message, http.StatusBadRequest, err)
		}
	}
	return common.NewAppError("UPSTREAM_ERROR", "upstream service error", http.StatusBadGateway, err)
}
