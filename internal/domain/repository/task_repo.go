package repository

import (
	"github.com/yourusername/tracker-api/internal/domain/entity"
)

// TaskFilter narrows task listings. Zero values mean "no filter".
type TaskFilter struct {
	Status   string
	Priority string
	// Search matches title or description, case-insensitive substring.
	Search string
	Limit  int
	Offset int
}

// TaskRepository defines owner-scoped persistence operations for tasks.
type TaskRepository interface {
	Create(task *entity.Task) error
	GetByID(userID, taskID uint) (*entity.Task, error)
	List(userID uint, filter TaskFilter) ([]entity.Task, int64, error)
	Update(task *entity.Task) error
	Delete(userID, taskID uint) error
}
