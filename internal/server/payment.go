package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/invora/internal/payment/domain"
)

type recordPaymentRequest struct {
	Amount    int64      `json:"amount"`
	Method    string     `json:"method,omitempty"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	Reference string     `json:"reference,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

func (s *Server) RecordPayment(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	invoiceID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.paymentSvc.Record(c.Request.Context(), paymentdomain.RecordPaymentRequest{
		OwnerID:   owner,
		InvoiceID: invoiceID,
		Amount:    req.Amount,
		Method:    req.Method,
		PaidAt:    req.PaidAt,
		Reference: req.Reference,
		Notes:     req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPayments(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	invoiceID, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.paymentSvc.ListByInvoice(c.Request.Context(), owner, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updatePaymentRequest struct {
	Amount    *int64     `json:"amount,omitempty"`
	Method    *string    `json:"method,omitempty"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	Reference *string    `json:"reference,omitempty"`
	Notes     *string    `json:"notes,omitempty"`
}

func (s *Server) UpdatePayment(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	paymentID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.paymentSvc.Update(c.Request.Context(), paymentdomain.UpdatePaymentRequest{
		OwnerID:   owner,
		PaymentID: paymentID,
		Amount:    req.Amount,
		Method:    req.Method,
		PaidAt:    req.PaidAt,
		Reference: req.Reference,
		Notes:     req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeletePayment(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	paymentID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.paymentSvc.Delete(c.Request.Context(), owner, paymentID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
