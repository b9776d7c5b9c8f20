package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/invora/internal/catalog/domain"
	customerdomain "github.com/smallbiznis/invora/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/invora/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/invora/internal/payment/domain"
	recurringdomain "github.com/smallbiznis/invora/internal/recurring/domain"
	"github.com/smallbiznis/invora/internal/schedule"
	"gorm.io/gorm"
)

var ErrInvalidRequest = errors.New("invalid_request")

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware translates domain errors collected on the gin
// context into HTTP responses. Handlers report errors through
// AbortWithError and never write error bodies themselves.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, recurringdomain.ErrDefinitionNotFound),
		errors.Is(err, customerdomain.ErrCustomerNotFound),
		errors.Is(err, catalogdomain.ErrItemNotFound),
		errors.Is(err, catalogdomain.ErrTaxNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	}
	return false
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrInvoiceHasPayments),
		errors.Is(err, invoicedomain.ErrInvoiceCompleted),
		errors.Is(err, recurringdomain.ErrDefinitionCompleted):
		return true
	}
	return false
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, invoicedomain.ErrNoLineItems),
		errors.Is(err, invoicedomain.ErrInvalidQuantity),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrOverpayment),
		errors.Is(err, paymentdomain.ErrNegativePayment),
		errors.Is(err, recurringdomain.ErrNoItems),
		errors.Is(err, recurringdomain.ErrInvalidQuantity),
		errors.Is(err, recurringdomain.ErrInvalidStatus),
		errors.Is(err, recurringdomain.ErrInvalidEndDate),
		errors.Is(err, schedule.ErrInvalidAnchor):
		return true
	}
	return false
}
