package attendance

import (
	"time"

	"github.com/zllovesuki/studio/spec"
)

// Status is the outcome recorded for a student at one class meeting
type Status string

// Defining the attendance statuses
const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusExcused Status = "excused"
	StatusMakeup  Status = "makeup"
)

// Valid reports whether s is one of the defined statuses
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused, StatusMakeup:
		return true
	default:
		return false
	}
}

// Consumes reports whether the status uses up one class of a counts subscription
func (s Status) Consumes() bool {
	switch s {
	case StatusPresent, StatusLate, StatusMakeup:
		return true
	default:
		return false
	}
}

// Attendance is the record of one student at one class on one date
type Attendance struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	StudentID      string    `json:"studentId" gorm:"not null;uniqueIndex:idx_daily_attendance"`
	ClassID        string    `json:"classId" gorm:"not null;uniqueIndex:idx_daily_attendance;index"`
	Date           spec.Date `json:"date" gorm:"not null;uniqueIndex:idx_daily_attendance"`
	Status         Status    `json:"status" gorm:"not null"`
	Memo           string    `json:"memo"`
	SubscriptionID *string   `json:"subscriptionId" gorm:"index"`         // The subscription covering this attendance, if any
	Charged        bool      `json:"charged" gorm:"not null;default:false"` // A class of SubscriptionID was consumed for this record
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (Attendance) TableName() string {
	return "attendance"
}

// Stats summarizes attendance records by status
type Stats struct {
	Total   int64 `json:"totalClasses"`
	Present int64 `json:"presentCount"`
	Late    int64 `json:"lateCount"`
	Absent  int64 `json:"absentCount"`
	Excused int64 `json:"excusedCount"`
	Makeup  int64 `json:"makeupCount"`
	// AttendanceRate is the percentage of records that consumed a class
	AttendanceRate float64 `json:"attendanceRate"`
}

func (s *Stats) add(status Status, count int64) {
	s.Total += count
	switch status {
	case StatusPresent:
		s.Present += count
	case StatusLate:
		s.Late += count
	case StatusAbsent:
		s.Absent += count
	case StatusExcused:
		s.Excused += count
	case StatusMakeup:
		s.Makeup += count
	}
}

func (s *Stats) computeRate() {
	if s.Total == 0 {
		s.AttendanceRate = 0
		return
	}
	s.AttendanceRate = float64(s.Present+s.Late+s.Makeup) / float64(s.Total) * 100
}
