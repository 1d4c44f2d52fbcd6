package repository

import (
	"time"

	"github.com/yourusername/tracker-api/internal/domain/entity"
)

// ExpenseFilter narrows expense listings. Date bounds are half-open:
// DateStart inclusive, DateEnd exclusive.
type ExpenseFilter struct {
	Category  string
	DateStart *time.Time
	DateEnd   *time.Time
	Limit     int
	Offset    int
}

// ExpenseSummary aggregates expenses for a period.
type ExpenseSummary struct {
	Total      float64            `json:"total"`
	ByCategory map[string]float64 `json:"by_category"`
	Count      int64              `json:"count"`
}

// ExpenseRepository defines owner-scoped persistence operations for expenses.
type ExpenseRepository interface {
	Create(expense *entity.Expense) error
	GetByID(userID, expenseID uint) (*entity.Expense, error)
	List(userID uint, filter ExpenseFilter) ([]entity.Expense, int64, error)
	Update(expense *entity.Expense) error
	Delete(userID, expenseID uint) error
	Summarize(userID uint, filter ExpenseFilter) (*ExpenseSummary, error)
}
