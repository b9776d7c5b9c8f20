package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/invora/internal/delivery"
	invoicedomain "github.com/smallbiznis/invora/internal/invoice/domain"
)

type invoiceLineRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int64  `json:"quantity"`
}

type createInvoiceRequest struct {
	CustomerID string               `json:"customer_id"`
	TaxRateID  *string              `json:"tax_rate_id,omitempty"`
	DueAt      time.Time            `json:"due_at"`
	Notes      string               `json:"notes,omitempty"`
	Lines      []invoiceLineRequest `json:"lines"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	customerID, err := parseID(req.CustomerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	taxRateID, err := parseOptionalID(req.TaxRateID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	lines := make([]invoicedomain.LineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		itemID, err := parseID(line.ItemID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		lines = append(lines, invoicedomain.LineInput{ItemID: itemID, Quantity: line.Quantity})
	}

	resp, err := s.invoiceSvc.Create(c.Request.Context(), invoicedomain.CreateInvoiceRequest{
		OwnerID:    owner,
		CustomerID: customerID,
		TaxRateID:  taxRateID,
		DueAt:      req.DueAt,
		Notes:      req.Notes,
		Lines:      lines,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListInvoices(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	req := invoicedomain.ListInvoiceRequest{OwnerID: owner}
	if raw := c.Query("status"); raw != "" {
		status := invoicedomain.InvoiceStatus(raw)
		if !status.Valid() {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.Status = &status
	}
	if raw := c.Query("payment_status"); raw != "" {
		paymentStatus := invoicedomain.PaymentStatus(raw)
		req.PaymentStatus = &paymentStatus
	}
	if raw := c.Query("customer_id"); raw != "" {
		customerID, err := parseID(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		req.CustomerID = &customerID
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetInvoice(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.invoiceSvc.Get(c.Request.Context(), owner, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type sendInvoiceRequest struct {
	Subject string `json:"subject,omitempty"`
	Message string `json:"message,omitempty"`
}

// SendInvoice queues the invoice email. Delivery happens asynchronously;
// the invoice flips to SENT once the provider accepts the message.
func (s *Server) SendInvoice(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req sendInvoiceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}

	// Ownership check before touching the queue.
	if _, err := s.invoiceSvc.Get(c.Request.Context(), owner, id); err != nil {
		AbortWithError(c, err)
		return
	}

	task := delivery.Task{
		InvoiceID: id,
		Subject:   req.Subject,
		Message:   req.Message,
	}
	if err := s.queue.Enqueue(c.Request.Context(), task); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "queued"})
}

func (s *Server) MarkInvoiceViewed(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.invoiceSvc.MarkViewed(c.Request.Context(), owner, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) RejectInvoice(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.invoiceSvc.Reject(c.Request.Context(), owner, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.invoiceSvc.Delete(c.Request.Context(), owner, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
