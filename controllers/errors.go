package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lendshelf/app"
	"lendshelf/lending"
)

var kindStatus = map[lending.Kind]int{
	lending.KindNotAuthenticated:      http.StatusUnauthorized,
	lending.KindNotAuthorized:         http.StatusForbidden,
	lending.KindNotFound:              http.StatusNotFound,
	lending.KindSelfLoan:              http.StatusUnprocessableEntity,
	lending.KindItemOwnershipMismatch: http.StatusUnprocessableEntity,
	lending.KindInvalidArgument:       http.StatusBadRequest,
	lending.KindAlreadyActive:         http.StatusConflict,
	lending.KindInvalidTransition:     http.StatusConflict,
	lending.KindStaleState:            http.StatusConflict,
	lending.KindDuplicateRequest:      http.StatusConflict,
	lending.KindUnavailable:           http.StatusServiceUnavailable,
	lending.KindInternal:              http.StatusInternalServerError,
}

func statusFor(kind lending.Kind) int {
	if code, ok := kindStatus[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// writeError renders a lending error as {"error": kind, "message": ...}.
// Internal details never reach the client.
func writeError(c *gin.Context, err error) {
	kind := lending.KindOf(err)
	code := statusFor(kind)

	msg := kind.String()
	var le *lending.Error
	if errors.As(err, &le) && le.Msg != "" {
		msg = le.Msg
	}
	if kind == lending.KindInternal {
		msg = "internal error"
	}
	if kind == lending.KindUnavailable {
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(code, app.H{"error": kind.String(), "message": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, app.H{"error": lending.KindInvalidArgument.String(), "message": msg})
}
