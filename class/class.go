package class

import "time"

// Level is the difficulty grade a class is taught at
type Level string

// Defining the class levels offered by the studio
const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// Valid reports whether l is one of the defined levels
func (l Level) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	default:
		return false
	}
}

// Class defines a recurring course students subscribe to
type Class struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	Name         string    `json:"name" gorm:"not null;index"`
	InstructorID string    `json:"instructorId" gorm:"index"`
	Level        Level     `json:"level" gorm:"not null"`
	Capacity     int       `json:"capacity" gorm:"not null;default:0"` // Zero means unlimited
	CreatedAt    time.Time `json:"createdAt"`
}

func (Class) TableName() string {
	return "classes"
}
