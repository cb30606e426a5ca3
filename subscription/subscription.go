package subscription

import (
	"time"

	"github.com/zllovesuki/studio/spec"

	"github.com/shopspring/decimal"
)

// Subscription describes a student's entitlement to attend a specific class
type Subscription struct {
	ID               string          `json:"id" gorm:"primaryKey"`
	StudentID        string          `json:"studentId" gorm:"not null;index"`
	ClassID          string          `json:"classId" gorm:"not null;index"`
	Type             Type            `json:"subscriptionType" gorm:"not null"`
	Status           Status          `json:"status" gorm:"not null;index"`
	StartDate        spec.Date       `json:"startDate" gorm:"not null"`
	EndDate          spec.Date       `json:"endDate" gorm:"not null;index"`
	TotalClasses     *int            `json:"totalClasses"`     // Only set for TypeCounts
	RemainingClasses *int            `json:"remainingClasses"` // Decremented by consuming attendance. Only set for TypeCounts
	PricePaid        decimal.Decimal `json:"pricePaid" gorm:"type:numeric(12,2);not null;default:0"`
	PaymentMethod    string          `json:"paymentMethod"`
	Pauses           []Pause         `json:"pauses,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time       `json:"createdAt" gorm:"index"`
	UpdatedAt        time.Time       `json:"updatedAt"`

	DaysRemaining *int `json:"daysRemaining,omitempty" gorm:"-"`
}

// Pause is an immutable record of a suspension interval
type Pause struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	SubscriptionID string    `json:"subscriptionId" gorm:"not null;index"`
	StartDate      spec.Date `json:"startDate" gorm:"not null"`
	EndDate        spec.Date `json:"endDate" gorm:"not null"`
	Reason         string    `json:"reason"`
	Seq            int       `json:"seq" gorm:"not null;default:0"` // Orders the pauses of one subscription, starting at 1
	CreatedAt      time.Time `json:"createdAt" gorm:"index"`
}

func (Pause) TableName() string {
	return "subscription_pauses"
}

// Days returns the length of the pause interval in days
func (p *Pause) Days() int {
	return p.StartDate.DaysUntil(p.EndDate)
}

// computeDaysRemaining populates DaysRemaining for active subscriptions
func (s *Subscription) computeDaysRemaining(today spec.Date) {
	if s.Status != StatusActive {
		s.DaysRemaining = nil
		return
	}
	d := today.DaysUntil(s.EndDate)
	s.DaysRemaining = &d
}

func (s *Subscription) event(kind spec.EventKind, at time.Time) *spec.Event {
	e := &spec.Event{
		Kind:           kind,
		SubscriptionID: s.ID,
		StudentID:      s.StudentID,
		ClassID:        s.ClassID,
		Status:         string(s.Status),
		EndDate:        s.EndDate,
		OccurredAt:     at,
	}
	if s.RemainingClasses != nil {
		remaining := *s.RemainingClasses
		e.RemainingClasses = &remaining
	}
	return e
}
