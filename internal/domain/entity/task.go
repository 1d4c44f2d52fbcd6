package entity

import "time"

// Task statuses and priorities accepted by the API.
const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"

	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
)

// Task is an owner-scoped todo item. Every query filters by UserID; a task
// belonging to another user is indistinguishable from a missing one.
type Task struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;index" json:"-"`
	Title       string     `gorm:"size:200;not null" json:"title"`
	Description string     `gorm:"type:text;not null;default:''" json:"description"`
	Status      string     `gorm:"size:20;not null;default:'todo';index" json:"status"`
	Priority    string     `gorm:"size:10;not null;default:'medium'" json:"priority"`
	CompletedAt *time.Time `gorm:"type:timestamp" json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidTaskStatus reports whether s is an accepted task status.
func ValidTaskStatus(s string) bool {
	return s == TaskStatusTodo || s == TaskStatusInProgress || s == TaskStatusCompleted
}

// ValidTaskPriority reports whether p is an accepted task priority.
func ValidTaskPriority(p string) bool {
	return p == TaskPriorityLow || p == TaskPriorityMedium || p == TaskPriorityHigh
}

func (Task) TableName() string {
	return "tasks"
}
