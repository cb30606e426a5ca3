package student

import "time"

// Student describes a person who can hold subscriptions and attend classes
type Student struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"not null;index"`
	Email     string    `json:"email" gorm:"uniqueIndex"` // Student's email address
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
}
