package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/tracker-api/internal/domain/repository"
	"github.com/yourusername/tracker-api/internal/middleware"
	"github.com/yourusername/tracker-api/internal/service"
)

// ExpenseHandler exposes owner-scoped expense CRUD and summaries under
// /api/expenses.
type ExpenseHandler struct {
	expenseService *service.ExpenseService
}

func NewExpenseHandler(expenseService *service.ExpenseService) *ExpenseHandler {
	return &ExpenseHandler{expenseService: expenseService}
}

type createExpenseRequest struct {
	Amount   float64 `json:"amount" binding:"required"`
	Category string  `json:"category" binding:"required"`
	Note     string  `json:"note"`
	SpentAt  string  `json:"spent_at"`
}

type updateExpenseRequest struct {
	Amount   *float64 `json:"amount"`
	Category *string  `json:"category"`
	Note     *string  `json:"note"`
	SpentAt  *string  `json:"spent_at"`
}

// Create handles POST /api/expenses.
func (h *ExpenseHandler) Create(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "token_missing"})
		return
	}

	var req createExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "validation_error"})
		return
	}

	spentAt, ok := parseDateField(c, req.SpentAt)
	if !ok {
		return
	}

	expense, err := h.expenseService.Create(userID, service.CreateExpenseInput{
		Amount:   req.Amount,
		Category: req.Category,
		Note:     req.Note,
		SpentAt:  spentAt,
	})
	if err != nil {
		renderResourceError(c, err, "expense")
		return
	}
	c.JSON(http.StatusCreated, expense)
}

// List handles GET /api/expenses with category and half-open date filters.
func (h *ExpenseHandler) List(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "token_missing"})
		return
	}

	filter, ok := h.parseFilter(c)
	if !ok {
		return
	}
	page, limit := parsePaging(c)
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	expenses, total, err := h.expenseService.List(userID, filter)
	if err != nil {
		renderResourceError(c, err, "expense")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"expenses": expenses,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

// Get handles GET /api/expenses/:id.
func (h *ExpenseHandler) Get(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "token_missing"})
		return
	}

	expense, err := h.expenseService.Get(userID, middleware.UintParam(c, "expenseID"))
	if err != nil {
		renderResourceError(c, err, "expense")
		return
	}
	c.JSON(http.StatusOK, expense)
}

// Update handles PATCH /api/expenses/:id.
func (h *ExpenseHandler) Update(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "token_missing"})
		return
	}

	var req updateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "validation_error"})
		return
	}

	input := service.UpdateExpenseInput{
		Amount:   req.Amount,
		Category: req.Category,
		Note:     req.Note,
	}
	if req.SpentAt != nil {
		spentAt, ok := parseDateField(c, *req.SpentAt)
		if !ok {
			return
		}
		input.SpentAt = &spentAt
	}

	expense, err := h.expenseService.Update(userID, middleware.UintParam(c, "expenseID"), input)
	if err != nil {
		renderResourceError(c, err, "expense")
		return
	}
	c.JSON(http.StatusOK, expense)
}

// Delete handles DELETE /api/expenses/:id.
func (h *ExpenseHandler) Delete(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "token_missing"})
		return
	}

	if err := h.expenseService.Delete(userID, middleware.UintParam(c, "expenseID")); err != nil {
		renderResourceError(c, err, "expense")
		return
	}
	c.Status(http.StatusNoContent)
}

// Summary handles GET /api/expenses/summary.
func (h *ExpenseHandler) Summary(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "token_missing"})
		return
	}

	filter, ok := h.parseFilter(c)
	if !ok {
		return
	}

	summary, err := h.expenseService.Summarize(userID, filter)
	if err != nil {
		renderResourceError(c, err, "expense")
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *ExpenseHandler) parseFilter(c *gin.Context) (repository.ExpenseFilter, bool) {
	filter := repository.ExpenseFilter{Category: c.Query("category")}

	if raw := c.Query("date_start"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date_start must be YYYY-MM-DD", "error_type": "validation_error"})
			return filter, false
		}
		filter.DateStart = &parsed
	}
	if raw := c.Query("date_end"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date_end must be YYYY-MM-DD", "error_type": "validation_error"})
			return filter, false
		}
		filter.DateEnd = &parsed
	}
	return filter, true
}

func parseDateField(c *gin.Context, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "spent_at must be YYYY-MM-DD", "error_type": "validation_error"})
		return time.Time{}, false
	}
	return parsed, true
}
