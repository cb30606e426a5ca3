package subscription

import (
	"fmt"
	"strings"
	"time"

	"github.com/zllovesuki/studio/spec"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateOption contains the purchase details of a new subscription
type CreateOption struct {
	StudentID        string
	ClassID          string
	Type             Type
	StartDate        spec.Date
	EndDate          spec.Date
	TotalClasses     *int
	RemainingClasses *int // Defaults to TotalClasses when nil or zero
	PricePaid        decimal.Decimal
	PaymentMethod    string
}

// PauseOption contains the pause interval requested for a subscription
type PauseOption struct {
	StartDate spec.Date
	EndDate   spec.Date
	Reason    string
}

func validateRange(field string, start, end spec.Date) error {
	if start.IsZero() {
		return invalid(field+".startDate", "is required")
	}
	if end.IsZero() {
		return invalid(field+".endDate", "is required")
	}
	if !end.After(start) {
		return invalid(field+".endDate", "must be after startDate")
	}
	if !end.InRange() {
		return invalid(field+".endDate", "must not be after "+spec.MaxDate.String())
	}
	return nil
}

// shiftEndDate moves the end date by days, refusing dates that cannot be stored
func (s *Subscription) shiftEndDate(days int) error {
	end := s.EndDate.AddDays(days)
	if !end.InRange() {
		return invalid("endDate", "must not be after "+spec.MaxDate.String())
	}
	s.EndDate = end
	return nil
}

// Validate checks the purchase details without touching any state
func (o *CreateOption) Validate() error {
	if strings.TrimSpace(o.StudentID) == "" {
		return invalid("studentId", "is required")
	}
	if strings.TrimSpace(o.ClassID) == "" {
		return invalid("classId", "is required")
	}
	if !o.Type.Valid() {
		return invalid("subscriptionType", "must be one of days, counts")
	}
	if err := validateRange("subscription", o.StartDate, o.EndDate); err != nil {
		return err
	}
	if o.PricePaid.IsNegative() {
		return invalid("pricePaid", "must not be negative")
	}
	switch o.Type {
	case TypeCounts:
		if o.TotalClasses == nil || *o.TotalClasses <= 0 {
			return invalid("totalClasses", "is required and must be positive for counts subscriptions")
		}
		if o.RemainingClasses != nil && (*o.RemainingClasses < 0 || *o.RemainingClasses > *o.TotalClasses) {
			return invalid("remainingClasses", "must be between 0 and totalClasses")
		}
	case TypeDays:
		if o.TotalClasses != nil || o.RemainingClasses != nil {
			return invalid("totalClasses", "must be empty for days subscriptions")
		}
	}
	return nil
}

// newSubscription builds an active subscription from validated purchase details
func newSubscription(opt CreateOption, now time.Time) (*Subscription, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	sub := &Subscription{
		ID:            uuid.New().String(),
		StudentID:     opt.StudentID,
		ClassID:       opt.ClassID,
		Type:          opt.Type,
		Status:        StatusActive,
		StartDate:     opt.StartDate,
		EndDate:       opt.EndDate,
		PricePaid:     opt.PricePaid,
		PaymentMethod: opt.PaymentMethod,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if opt.Type == TypeCounts {
		total := *opt.TotalClasses
		remaining := total
		if opt.RemainingClasses != nil && *opt.RemainingClasses > 0 {
			remaining = *opt.RemainingClasses
		}
		sub.TotalClasses = &total
		sub.RemainingClasses = &remaining
	}
	return sub, nil
}

// pause moves an active subscription into paused and returns the pause record to append.
// The end date is left alone, the shift happens on resume.
func (s *Subscription) pause(opt PauseOption, now time.Time) (*Pause, error) {
	if err := validateRange("pause", opt.StartDate, opt.EndDate); err != nil {
		return nil, err
	}
	if s.Status != StatusActive {
		return nil, &StateError{Op: "pause", Status: s.Status}
	}
	p := &Pause{
		ID:             uuid.New().String(),
		SubscriptionID: s.ID,
		StartDate:      opt.StartDate,
		EndDate:        opt.EndDate,
		Reason:         opt.Reason,
		CreatedAt:      now,
	}
	s.Status = StatusPaused
	s.UpdatedAt = now
	return p, nil
}

// resume shifts the end date by the span of the latest pause and reactivates the subscription
func (s *Subscription) resume(latest *Pause, now time.Time) error {
	if s.Status != StatusPaused {
		return &StateError{Op: "resume", Status: s.Status}
	}
	if latest == nil {
		return &StateError{Op: "resume", Status: s.Status, Reason: "no pause record found"}
	}
	if err := s.shiftEndDate(latest.Days()); err != nil {
		return err
	}
	s.Status = StatusActive
	s.UpdatedAt = now
	return nil
}

func validateExtendDays(days int) error {
	if days <= 0 {
		return invalid("days", "must be positive")
	}
	if days > spec.MaxExtendDays {
		return invalid("days", fmt.Sprintf("must not exceed %d", spec.MaxExtendDays))
	}
	return nil
}

// extend pushes the end date forward by days. Status is unchanged.
func (s *Subscription) extend(days int, now time.Time) error {
	if err := validateExtendDays(days); err != nil {
		return err
	}
	if s.Status.Terminal() {
		return &StateError{Op: "extend", Status: s.Status}
	}
	if err := s.shiftEndDate(days); err != nil {
		return err
	}
	s.UpdatedAt = now
	return nil
}

func (s *Subscription) cancel(now time.Time) error {
	if s.Status.Terminal() {
		return &StateError{Op: "cancel", Status: s.Status}
	}
	s.Status = StatusCancelled
	s.UpdatedAt = now
	return nil
}

// consume records one attended class. Days subscriptions are not metered and report false.
// Reaching zero remaining classes expires the subscription.
func (s *Subscription) consume(now time.Time) (bool, error) {
	if s.Status != StatusActive {
		return false, &StateError{Op: "consume", Status: s.Status}
	}
	if s.Type != TypeCounts {
		return false, nil
	}
	if s.RemainingClasses == nil || *s.RemainingClasses <= 0 {
		return false, &StateError{Op: "consume", Status: s.Status, Reason: "no remaining classes"}
	}
	remaining := *s.RemainingClasses - 1
	s.RemainingClasses = &remaining
	if remaining == 0 {
		s.Status = StatusExpired
	}
	s.UpdatedAt = now
	return true, nil
}

// expireAsOf expires an active subscription whose end date is before asOf
func (s *Subscription) expireAsOf(asOf spec.Date, now time.Time) bool {
	if s.Status != StatusActive || !s.EndDate.Before(asOf) {
		return false
	}
	s.Status = StatusExpired
	s.UpdatedAt = now
	return true
}
