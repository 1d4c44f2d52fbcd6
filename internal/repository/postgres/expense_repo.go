package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yourusername/tracker-api/internal/domain/entity"
	"github.com/yourusername/tracker-api/internal/domain/repository"
	apperrors "github.com/yourusername/tracker-api/internal/pkg/errors"
)

// ExpenseRepo implements repository.ExpenseRepository.
type ExpenseRepo struct {
	db *gorm.DB
}

func NewExpenseRepo(db *gorm.DB) *ExpenseRepo {
	return &ExpenseRepo{db: db}
}

func (r *ExpenseRepo) Create(expense *entity.Expense) error {
	return r.db.Create(expense).Error
}

func (r *ExpenseRepo) GetByID(userID, expenseID uint) (*entity.Expense, error) {
	var expense entity.Expense
	err := r.db.Where("id = ? AND user_id = ?", expenseID, userID).First(&expense).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return &expense, nil
}

func (r *ExpenseRepo) List(userID uint, filter repository.ExpenseFilter) ([]entity.Expense, int64, error) {
	query := r.filtered(userID, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count expenses: %w", err)
	}

	var expenses []entity.Expense
	err := query.
		Order("spent_at DESC, id DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&expenses).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list expenses: %w", err)
	}
	return expenses, total, nil
}

func (r *ExpenseRepo) Update(expense *entity.Expense) error {
	result := r.db.Model(&entity.Expense{}).
		Where("id = ? AND user_id = ?", expense.ID, expense.UserID).
		Select("amount", "category", "note", "spent_at").
		Updates(expense)
	if result.Error != nil {
		return fmt.Errorf("failed to update expense: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *ExpenseRepo) Delete(userID, expenseID uint) error {
	result := r.db.Where("id = ? AND user_id = ?", expenseID, userID).Delete(&entity.Expense{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete expense: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Summarize aggregates totals for the filtered period in one grouped query.
func (r *ExpenseRepo) Summarize(userID uint, filter repository.ExpenseFilter) (*repository.ExpenseSummary, error) {
	type categoryRow struct {
		Category string
		Sum      float64
		Count    int64
	}

	var rows []categoryRow
	err := r.filtered(userID, filter).
		Select("category, SUM(amount) AS sum, COUNT(*) AS count").
		Group("category").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarize expenses: %w", err)
	}

	summary := &repository.ExpenseSummary{ByCategory: make(map[string]float64, len(rows))}
	for _, row := range rows {
		summary.ByCategory[row.Category] = row.Sum
		summary.Total += row.Sum
		summary.Count += row.Count
	}
	return summary, nil
}

func (r *ExpenseRepo) filtered(userID uint, filter repository.ExpenseFilter) *gorm.DB {
	query := r.db.Model(&entity.Expense{}).Where("user_id = ?", userID)
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.DateStart != nil {
		query = query.Where("spent_at >= ?", *filter.DateStart)
	}
	if filter.DateEnd != nil {
		query = query.Where("spent_at < ?", *filter.DateEnd)
	}
	return query
}
