package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/core"

	"ticket-marketplace/internal/status"
)

// httpStatus maps an error kind to the response code.
func httpStatus(kind status.Kind) int {
	switch kind {
	case status.KindNotFound:
		return http.StatusNotFound
	case status.KindForbidden, status.KindVendorFraud, status.KindInactiveUser:
		return http.StatusForbidden
	case status.KindInvalidCredential:
		return http.StatusUnauthorized
	case status.KindInvalidSignature, status.KindValidation, status.KindNotApproved, status.KindExpired:
		return http.StatusBadRequest
	case status.KindInvalidTransition, status.KindInsufficientInventory, status.KindAlreadyPaid:
		return http.StatusConflict
	case status.KindPaymentIncomplete:
		return http.StatusPaymentRequired
	}
	return http.StatusInternalServerError
}

func success(e *core.RequestEvent, code int, data any) error {
	return e.JSON(code, map[string]any{
		"status": "success",
		"data":   data,
	})
}

// fail writes err as a typed error response. Internal errors are logged
// and their details withheld from the client.
func fail(e *core.RequestEvent, err error) error {
	kind := status.KindOf(err)
	code := httpStatus(kind)

	message := err.Error()
	var se *status.Error
	if errors.As(err, &se) {
		message = se.Message
	}
	if kind == status.KindInternal {
		slog.Error("Request failed", "method", e.Request.Method, "path", e.Request.URL.Path, "error", err)
		message = "internal error"
	}

	return e.JSON(code, map[string]any{
		"status":  "error",
		"kind":    kind,
		"message": message,
	})
}
