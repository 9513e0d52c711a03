package service

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/poolpay/poolpay/internal/ledger"
	"github.com/poolpay/poolpay/internal/storage"
)

// httpStatus maps the ledger/storage error taxonomy to HTTP status codes.
// Conflict and Aborted both map to 409: the caller is expected to re-read
// and retry.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrInvalidState),
		errors.Is(err, storage.ErrConflict),
		errors.Is(err, storage.ErrAborted),
		errors.Is(err, storage.ErrDuplicateTransaction):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidMemberCount),
		errors.Is(err, ledger.ErrInvalidDecision):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error as a JSON payload with the mapped status.
func respondError(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{"error": err.Error()})
}
