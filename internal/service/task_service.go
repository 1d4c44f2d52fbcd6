package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/yourusername/tracker-api/internal/domain/entity"
	"github.com/yourusername/tracker-api/internal/domain/repository"
	apperrors "github.com/yourusername/tracker-api/internal/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateTaskInput holds validated task creation fields.
type CreateTaskInput struct {
	Title       string
	Description string
	Priority    string
}

// UpdateTaskInput holds optional task update fields; nil means unchanged.
type UpdateTaskInput struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
}

// TaskService implements task rules on top of the repository: value
// validation, completion timestamps and paging defaults.
type TaskService struct {
	taskRepo repository.TaskRepository
}

func NewTaskService(taskRepo repository.TaskRepository) *TaskService {
	return &TaskService{taskRepo: taskRepo}
}

func (s *TaskService) Create(userID uint, input CreateTaskInput) (*entity.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", apperrors.ErrValidation)
	}
	priority := input.Priority
	if priority == "" {
		priority = entity.TaskPriorityMedium
	}
	if !entity.ValidTaskPriority(priority) {
		return nil, fmt.Errorf("%w: invalid priority %q", apperrors.ErrValidation, priority)
	}

	task := &entity.Task{
		UserID:      userID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      entity.TaskStatusTodo,
		Priority:    priority,
	}
	if err := s.taskRepo.Create(task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return task, nil
}

func (s *TaskService) Get(userID, taskID uint) (*entity.Task, error) {
	return s.taskRepo.GetByID(userID, taskID)
}

func (s *TaskService) List(userID uint, filter repository.TaskFilter) ([]entity.Task, int64, error) {
	if filter.Status != "" && !entity.ValidTaskStatus(filter.Status) {
		return nil, 0, fmt.Errorf("%w: invalid status %q", apperrors.ErrValidation, filter.Status)
	}
	if filter.Priority != "" && !entity.ValidTaskPriority(filter.Priority) {
		return nil, 0, fmt.Errorf("%w: invalid priority %q", apperrors.ErrValidation, filter.Priority)
	}
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)
	return s.taskRepo.List(userID, filter)
}

// Update applies the given fields. Moving into completed stamps
// CompletedAt; moving out of it clears the stamp.
func (s *TaskService) Update(userID, taskID uint, input UpdateTaskInput) (*entity.Task, error) {
	task, err := s.taskRepo.GetByID(userID, taskID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", apperrors.ErrValidation)
		}
		task.Title = title
	}
	if input.Description != nil {
		task.Description = strings.TrimSpace(*input.Description)
	}
	if input.Priority != nil {
		if !entity.ValidTaskPriority(*input.Priority) {
			return nil, fmt.Errorf("%w: invalid priority %q", apperrors.ErrValidation, *input.Priority)
		}
		task.Priority = *input.Priority
	}
	if input.Status != nil {
		if !entity.ValidTaskStatus(*input.Status) {
			return nil, fmt.Errorf("%w: invalid status %q", apperrors.ErrValidation, *input.Status)
		}
		if *input.Status == entity.TaskStatusCompleted && task.Status != entity.TaskStatusCompleted {
			now := time.Now()
			task.CompletedAt = &now
		}
		if *input.Status != entity.TaskStatusCompleted {
			task.CompletedAt = nil
		}
		task.Status = *input.Status
	}

	if err := s.taskRepo.Update(task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) Delete(userID, taskID uint) error {
	return s.taskRepo.Delete(userID, taskID)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
