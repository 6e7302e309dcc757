package handler

import (
	"errors"
	"net/http"

	"stockledger/internal/logger"
	"stockledger/internal/repository"
	"stockledger/internal/service"
	"stockledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// errorKind maps an engine error onto an HTTP status and a stable code.
// Business rule violations are 422; malformed requests never reach the engine and get 400.
type errorKind struct {
	target error
	status int
	code   string
}

var errorKinds = []errorKind{
	{service.ErrValidation, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
	{service.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{service.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{service.ErrInsufficientStock, http.StatusUnprocessableEntity, "INSUFFICIENT_STOCK"},
	{service.ErrExcessReturn, http.StatusUnprocessableEntity, "EXCESS_RETURN"},
	{service.ErrOverReceive, http.StatusUnprocessableEntity, "OVER_RECEIVE"},
	{service.ErrAlreadyApproved, http.StatusUnprocessableEntity, "ALREADY_APPROVED"},
	{service.ErrInvalidTransition, http.StatusUnprocessableEntity, "INVALID_TRANSITION"},
	{service.ErrBusy, http.StatusConflict, "BUSY"},
}

func respondError(c *gin.Context, log *logrus.Logger, funcName string, err error) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			c.JSON(k.status, response.Problem(k.status, k.code, err.Error(), errorDetails(err)))
			return
		}
	}
	if repository.IsRetryable(err) {
		c.JSON(http.StatusConflict, response.Problem(http.StatusConflict, "RETRY", "Concurrent update, please retry", nil))
		return
	}

	logger.LogError(log, "handler", funcName, "unhandled error", gin.H{"path": c.FullPath()}, err)
	c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Internal server error"))
}

// errorDetails exposes the structured fields of typed errors to clients
func errorDetails(err error) interface{} {
	var (
		short   *service.InsufficientStockError
		excess  *service.ExcessReturnError
		over    *service.OverReceiveError
		invalid *service.ValidationError
	)
	switch {
	case errors.As(err, &short):
		return gin.H{
			"product_id": short.ProductID,
			"branch_id":  short.BranchID,
			"requested":  short.Requested,
			"available":  short.Available,
		}
	case errors.As(err, &excess):
		return gin.H{"issue_line_id": excess.IssueLineID, "requested": excess.Requested, "remaining": excess.Remaining}
	case errors.As(err, &over):
		return gin.H{"order_line_id": over.OrderLineID, "requested": over.Requested, "remaining": over.Remaining}
	case errors.As(err, &invalid):
		return gin.H{"field": invalid.Field}
	}
	return nil
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.Problem(http.StatusBadRequest, "VALIDATION_ERROR", msg, nil))
}
