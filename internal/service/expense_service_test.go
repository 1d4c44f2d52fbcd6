package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/tracker-api/internal/domain/entity"
	"github.com/yourusername/tracker-api/internal/domain/repository"
	apperrors "github.com/yourusername/tracker-api/internal/pkg/errors"
)

type MockExpenseRepository struct {
	mock.Mock
}

func (m *MockExpenseRepository) Create(expense *entity.Expense) error {
	args := m.Called(expense)
	return args.Error(0)
}

func (m *MockExpenseRepository) GetByID(userID, expenseID uint) (*entity.Expense, error) {
	args := m.Called(userID, expenseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Expense), args.Error(1)
}

func (m *MockExpenseRepository) List(userID uint, filter repository.ExpenseFilter) ([]entity.Expense, int64, error) {
	args := m.Called(userID, filter)
	return args.Get(0).([]entity.Expense), args.Get(1).(int64), args.Error(2)
}

func (m *MockExpenseRepository) Update(expense *entity.Expense) error {
	args := m.Called(expense)
	return args.Error(0)
}

func (m *MockExpenseRepository) Delete(userID, expenseID uint) error {
	args := m.Called(userID, expenseID)
	return args.Error(0)
}

func (m *MockExpenseRepository) Summarize(userID uint, filter repository.ExpenseFilter) (*repository.ExpenseSummary, error) {
	args := m.Called(userID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ExpenseSummary), args.Error(1)
}

func TestExpenseCreate_NormalizesCategory(t *testing.T) {
	repo := new(MockExpenseRepository)
	svc := NewExpenseService(repo)

	repo.On("Create", mock.AnythingOfType("*entity.Expense")).Return(nil)

	expense, err := svc.Create(1, CreateExpenseInput{
		Amount:   12.50,
		Category: "  Groceries ",
		Note:     " weekly shop ",
	})
	require.NoError(t, err)
	assert.Equal(t, "groceries", expense.Category)
	assert.Equal(t, "weekly shop", expense.Note)
	assert.False(t, expense.SpentAt.IsZero())
}

func TestExpenseCreate_Validation(t *testing.T) {
	repo := new(MockExpenseRepository)
	svc := NewExpenseService(repo)

	_, err := svc.Create(1, CreateExpenseInput{Amount: 0, Category: "food"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.Create(1, CreateExpenseInput{Amount: -3, Category: "food"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.Create(1, CreateExpenseInput{Amount: 5, Category: "  "})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	repo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestExpenseList_RejectsInvertedDateRange(t *testing.T) {
	repo := new(MockExpenseRepository)
	svc := NewExpenseService(repo)

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -7)

	_, _, err := svc.List(1, repository.ExpenseFilter{DateStart: &start, DateEnd: &end})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.Summarize(1, repository.ExpenseFilter{DateStart: &start, DateEnd: &end})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	repo.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "Summarize", mock.Anything, mock.Anything)
}

func TestExpenseSummarize_PassesFilterThrough(t *testing.T) {
	repo := new(MockExpenseRepository)
	svc := NewExpenseService(repo)

	summary := &repository.ExpenseSummary{
		Total:      42.5,
		ByCategory: map[string]float64{"food": 30, "transport": 12.5},
		Count:      3,
	}
	filter := repository.ExpenseFilter{Category: "food"}
	repo.On("Summarize", uint(1), filter).Return(summary, nil)

	got, err := svc.Summarize(1, filter)
	require.NoError(t, err)
	assert.Equal(t, summary, got)
}

func TestExpenseUpdate_OtherOwnerLooksMissing(t *testing.T) {
	repo := new(MockExpenseRepository)
	svc := NewExpenseService(repo)

	repo.On("GetByID", uint(2), uint(7)).Return(nil, apperrors.ErrNotFound)

	amount := 9.99
	_, err := svc.Update(2, 7, UpdateExpenseInput{Amount: &amount})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	repo.AssertNotCalled(t, "Update", mock.Anything)
}
