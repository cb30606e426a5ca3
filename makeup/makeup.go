package makeup

import (
	"errors"
	"fmt"
	"time"

	"github.com/zllovesuki/studio/spec"
)

// Status is the stage of a makeup class request
type Status string

// Defining the makeup request stages
const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCompleted:
		return true
	default:
		return false
	}
}

// ErrNotFound is returned when no makeup request exists with the requested id
var ErrNotFound = errors.New("makeup class not found")

// StateError reports a decision that the request's current stage does not allow
type StateError struct {
	Op     string
	Status Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s makeup class in %q state", e.Op, e.Status)
}

// MakeupClass is a student's request to attend another class meeting in place of a missed one
type MakeupClass struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	StudentID       string    `json:"studentId" gorm:"not null;index"`
	OriginalClassID string    `json:"originalClassId" gorm:"not null"`
	OriginalDate    spec.Date `json:"originalDate" gorm:"not null"`
	MakeupClassID   string    `json:"makeupClassId" gorm:"not null;index"`
	MakeupDate      spec.Date `json:"makeupDate" gorm:"not null"`
	Status          Status    `json:"status" gorm:"not null;index"`
	Reason          string    `json:"reason" gorm:"not null"`
	AttendanceID    *string   `json:"attendanceId"` // Set once completed
	CreatedAt       time.Time `json:"createdAt" gorm:"index"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (MakeupClass) TableName() string {
	return "makeup_classes"
}

func (m *MakeupClass) approve(now time.Time) error {
	if m.Status != StatusPending {
		return &StateError{Op: "approve", Status: m.Status}
	}
	m.Status = StatusApproved
	m.UpdatedAt = now
	return nil
}

// reject is allowed until the makeup class has been attended
func (m *MakeupClass) reject(now time.Time) error {
	if m.Status != StatusPending && m.Status != StatusApproved {
		return &StateError{Op: "reject", Status: m.Status}
	}
	m.Status = StatusRejected
	m.UpdatedAt = now
	return nil
}

func (m *MakeupClass) complete(now time.Time) error {
	if m.Status != StatusApproved {
		return &StateError{Op: "complete", Status: m.Status}
	}
	m.Status = StatusCompleted
	m.UpdatedAt = now
	return nil
}
