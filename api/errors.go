package api

import (
	"errors"
	"net/http"

	"github.com/Domenick1991/ticketbari/internal/auth"
	"github.com/Domenick1991/ticketbari/internal/domain"
	"github.com/gin-gonic/gin"
)

const codeUnauthorized = "unauthorized"

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

var codeStatus = map[string]int{
	domain.CodeInvalidTransition:     http.StatusConflict,
	domain.CodeMutationInFlight:      http.StatusConflict,
	domain.CodeNotEligible:           http.StatusConflict,
	domain.CodeInsufficientInventory: http.StatusUnprocessableEntity,
	domain.CodeExpired:               http.StatusGone,
	domain.CodeNotFound:              http.StatusNotFound,
	domain.CodeForbidden:             http.StatusForbidden,
	domain.CodeValidation:            http.StatusBadRequest,
	domain.CodeUnreachable:           http.StatusServiceUnavailable,
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, auth.ErrInvalidToken) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: codeUnauthorized, Error: err.Error()})
		return
	}

	code := domain.ErrorCode(err)
	status, ok := codeStatus[code]
	if !ok {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Code: domain.CodeInternal, Error: "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, errorResponse{Code: code, Error: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Code: domain.CodeValidation, Error: err.Error()})
}
