package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/yourusername/tracker-api/internal/domain/entity"
	"github.com/yourusername/tracker-api/internal/domain/repository"
	apperrors "github.com/yourusername/tracker-api/internal/pkg/errors"
)

// CreateExpenseInput holds validated expense creation fields.
type CreateExpenseInput struct {
	Amount   float64
	Category string
	Note     string
	SpentAt  time.Time
}

// UpdateExpenseInput holds optional expense update fields; nil means
// unchanged.
type UpdateExpenseInput struct {
	Amount   *float64
	Category *string
	Note     *string
	SpentAt  *time.Time
}

// ExpenseService implements expense rules on top of the repository.
type ExpenseService struct {
	expenseRepo repository.ExpenseRepository
}

func NewExpenseService(expenseRepo repository.ExpenseRepository) *ExpenseService {
	return &ExpenseService{expenseRepo: expenseRepo}
}

func (s *ExpenseService) Create(userID uint, input CreateExpenseInput) (*entity.Expense, error) {
	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", apperrors.ErrValidation)
	}
	category := strings.TrimSpace(strings.ToLower(input.Category))
	if category == "" {
		return nil, fmt.Errorf("%w: category is required", apperrors.ErrValidation)
	}
	spentAt := input.SpentAt
	if spentAt.IsZero() {
		spentAt = time.Now()
	}

	expense := &entity.Expense{
		UserID:   userID,
		Amount:   input.Amount,
		Category: category,
		Note:     strings.TrimSpace(input.Note),
		SpentAt:  spentAt,
	}
	if err := s.expenseRepo.Create(expense); err != nil {
		return nil, fmt.Errorf("failed to create expense: %w", err)
	}
	return expense, nil
}

func (s *ExpenseService) Get(userID, expenseID uint) (*entity.Expense, error) {
	return s.expenseRepo.GetByID(userID, expenseID)
}

func (s *ExpenseService) List(userID uint, filter repository.ExpenseFilter) ([]entity.Expense, int64, error) {
	if err := validateDateRange(filter); err != nil {
		return nil, 0, err
	}
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)
	return s.expenseRepo.List(userID, filter)
}

func (s *ExpenseService) Update(userID, expenseID uint, input UpdateExpenseInput) (*entity.Expense, error) {
	expense, err := s.expenseRepo.GetByID(userID, expenseID)
	if err != nil {
		return nil, err
	}

	if input.Amount != nil {
		if *input.Amount <= 0 {
			return nil, fmt.Errorf("%w: amount must be positive", apperrors.ErrValidation)
		}
		expense.Amount = *input.Amount
	}
	if input.Category != nil {
		category := strings.TrimSpace(strings.ToLower(*input.Category))
		if category == "" {
			return nil, fmt.Errorf("%w: category cannot be empty", apperrors.ErrValidation)
		}
		expense.Category = category
	}
	if input.Note != nil {
		expense.Note = strings.TrimSpace(*input.Note)
	}
	if input.SpentAt != nil && !input.SpentAt.IsZero() {
		expense.SpentAt = *input.SpentAt
	}

	if err := s.expenseRepo.Update(expense); err != nil {
		return nil, err
	}
	return expense, nil
}

func (s *ExpenseService) Delete(userID, expenseID uint) error {
	return s.expenseRepo.Delete(userID, expenseID)
}

func (s *ExpenseService) Summarize(userID uint, filter repository.ExpenseFilter) (*repository.ExpenseSummary, error) {
	if err := validateDateRange(filter); err != nil {
		return nil, err
	}
	return s.expenseRepo.Summarize(userID, filter)
}

func validateDateRange(filter repository.ExpenseFilter) error {
	if filter.DateStart != nil && filter.DateEnd != nil && !filter.DateEnd.After(*filter.DateStart) {
		return fmt.Errorf("%w: date_end must be after date_start", apperrors.ErrValidation)
	}
	return nil
}
