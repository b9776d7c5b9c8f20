package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	recurringdomain "github.com/smallbiznis/invora/internal/recurring/domain"
	"github.com/smallbiznis/invora/internal/schedule"
)

type definitionItemRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int64  `json:"quantity"`
}

type createDefinitionRequest struct {
	CustomerID   string                  `json:"customer_id"`
	Name         string                  `json:"name"`
	Frequency    string                  `json:"frequency"`
	StartDate    time.Time               `json:"start_date"`
	EndDate      *time.Time              `json:"end_date,omitempty"`
	DayOfMonth   *int                    `json:"day_of_month,omitempty"`
	DayOfWeek    *int                    `json:"day_of_week,omitempty"`
	DueAfterDays int                     `json:"due_after_days,omitempty"`
	TaxRateID    *string                 `json:"tax_rate_id,omitempty"`
	Notes        string                  `json:"notes,omitempty"`
	Items        []definitionItemRequest `json:"items"`
}

func parseItemInputs(items []definitionItemRequest) ([]recurringdomain.ItemInput, error) {
	inputs := make([]recurringdomain.ItemInput, 0, len(items))
	for _, item := range items {
		itemID, err := parseID(item.ItemID)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, recurringdomain.ItemInput{ItemID: itemID, Quantity: item.Quantity})
	}
	return inputs, nil
}

func parseOptionalID(raw *string) (*snowflake.ID, error) {
	if raw == nil {
		return nil, nil
	}
	id, err := parseID(*raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (s *Server) CreateRecurringDefinition(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	var req createDefinitionRequest
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
	items, err := parseItemInputs(req.Items)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.recurringSvc.Create(c.Request.Context(), recurringdomain.CreateDefinitionRequest{
		OwnerID:      owner,
		CustomerID:   customerID,
		Name:         req.Name,
		Frequency:    schedule.Frequency(req.Frequency),
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		DayOfMonth:   req.DayOfMonth,
		DayOfWeek:    req.DayOfWeek,
		DueAfterDays: req.DueAfterDays,
		TaxRateID:    taxRateID,
		Notes:        req.Notes,
		Items:        items,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListRecurringDefinitions(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	req := recurringdomain.ListDefinitionRequest{OwnerID: owner}
	if raw := c.Query("status"); raw != "" {
		status := recurringdomain.DefinitionStatus(raw)
		if !status.Valid() {
			AbortWithError(c, recurringdomain.ErrInvalidStatus)
			return
		}
		req.Status = &status
	}
	if raw := c.Query("customer_id"); raw != "" {
		customerID, err := parseID(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		req.CustomerID = &customerID
	}

	resp, err := s.recurringSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetRecurringDefinition(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.recurringSvc.Get(c.Request.Context(), owner, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateDefinitionRequest struct {
	Name         *string                 `json:"name,omitempty"`
	Frequency    *string                 `json:"frequency,omitempty"`
	StartDate    *time.Time              `json:"start_date,omitempty"`
	EndDate      *time.Time              `json:"end_date,omitempty"`
	ClearEndDate bool                    `json:"clear_end_date,omitempty"`
	DayOfMonth   *int                    `json:"day_of_month,omitempty"`
	DayOfWeek    *int                    `json:"day_of_week,omitempty"`
	DueAfterDays *int                    `json:"due_after_days,omitempty"`
	TaxRateID    *string                 `json:"tax_rate_id,omitempty"`
	Notes        *string                 `json:"notes,omitempty"`
	Items        []definitionItemRequest `json:"items,omitempty"`
}

func (s *Server) UpdateRecurringDefinition(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updateDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	update := recurringdomain.UpdateDefinitionRequest{
		OwnerID:      owner,
		DefinitionID: id,
		Name:         req.Name,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		ClearEndDate: req.ClearEndDate,
		DayOfMonth:   req.DayOfMonth,
		DayOfWeek:    req.DayOfWeek,
		DueAfterDays: req.DueAfterDays,
		Notes:        req.Notes,
	}
	if req.Frequency != nil {
		freq := schedule.Frequency(*req.Frequency)
		update.Frequency = &freq
	}
	taxRateID, err := parseOptionalID(req.TaxRateID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	update.TaxRateID = taxRateID
	if req.Items != nil {
		items, err := parseItemInputs(req.Items)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		update.Items = items
	}

	resp, err := s.recurringSvc.Update(c.Request.Context(), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateDefinitionStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) UpdateRecurringDefinitionStatus(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updateDefinitionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.recurringSvc.UpdateStatus(c.Request.Context(), owner, id, recurringdomain.DefinitionStatus(req.Status)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) DeleteRecurringDefinition(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.recurringSvc.Delete(c.Request.Context(), owner, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// TriggerGeneration runs a generation scan on demand, outside the
// regular interval.
func (s *Server) TriggerGeneration(c *gin.Context) {
	if err := s.gen.RunOnce(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
