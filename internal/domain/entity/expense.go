package entity

import "time"

// Expense is an owner-scoped spending record. Amount is stored in the
// account currency; SpentAt carries the date the money was spent, which
// may differ from CreatedAt.
type Expense struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	UserID   uint      `gorm:"not null;index" json:"-"`
	Amount   float64   `gorm:"type:numeric(12,2);not null" json:"amount"`
	Category string    `gorm:"size:50;not null;index" json:"category"`
	Note     string    `gorm:"size:255;not null;default:''" json:"note"`
	SpentAt  time.Time `gorm:"type:date;not null;index" json:"spent_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Expense) TableName() string {
	return "expenses"
}
