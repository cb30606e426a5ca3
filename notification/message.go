package notification

import (
	"fmt"

	"github.com/zllovesuki/studio/spec"
)

func subscriptionLink(id string) string {
	return "/subscriptions/" + id
}

// ExpiryReminder builds the reminder sent days before a subscription ends.
// Reminders are deduped per subscription and end date, so an extension earns a new one.
func ExpiryReminder(subscriptionID, studentID, className string, endDate spec.Date, days int) NotifyOption {
	return NotifyOption{
		UserID:    studentID,
		Kind:      KindSubscriptionExpiry,
		Title:     "Subscription expiring soon",
		Message:   fmt.Sprintf("Your subscription for %s expires in %d days, on %s.", className, days, endDate),
		Link:      subscriptionLink(subscriptionID),
		DedupeKey: fmt.Sprintf("expiry:%s:%s", subscriptionID, endDate),
	}
}

// FromEvent builds the notification for a subscription event. It reports false for
// events students are not notified about.
func FromEvent(e *spec.Event, className string) (NotifyOption, bool) {
	opt := NotifyOption{
		UserID:    e.StudentID,
		Link:      subscriptionLink(e.SubscriptionID),
		DedupeKey: fmt.Sprintf("event:%s:%s:%d", e.Kind, e.SubscriptionID, e.OccurredAt.UnixNano()),
	}
	switch e.Kind {
	case spec.EventPaused:
		opt.Kind = KindPauseStatus
		opt.Title = "Subscription paused"
		opt.Message = fmt.Sprintf("Your subscription for %s has been paused.", className)
	case spec.EventResumed:
		opt.Kind = KindPauseStatus
		opt.Title = "Subscription resumed"
		opt.Message = fmt.Sprintf("Your subscription for %s has been resumed and now ends on %s.", className, e.EndDate)
	case spec.EventExtended:
		opt.Kind = KindSubscriptionExpiry
		opt.Title = "Subscription extended"
		opt.Message = fmt.Sprintf("Your subscription for %s has been extended until %s.", className, e.EndDate)
	case spec.EventExpired:
		opt.Kind = KindSubscriptionExpiry
		opt.Title = "Subscription expired"
		opt.Message = fmt.Sprintf("Your subscription for %s has expired.", className)
	default:
		return NotifyOption{}, false
	}
	return opt, true
}

// MakeupUpdate builds the notification sent when staff decide on or complete a makeup class request
func MakeupUpdate(makeupID, studentID, status, className string, makeupDate spec.Date) NotifyOption {
	opt := NotifyOption{
		UserID:    studentID,
		Kind:      KindMakeupStatus,
		Link:      "/makeups/" + makeupID,
		DedupeKey: fmt.Sprintf("makeup:%s:%s", makeupID, status),
	}
	switch status {
	case "approved":
		opt.Title = "Makeup class approved"
		opt.Message = fmt.Sprintf("Your makeup class for %s on %s has been approved.", className, makeupDate)
	case "rejected":
		opt.Title = "Makeup class rejected"
		opt.Message = fmt.Sprintf("Your makeup class request for %s on %s has been rejected.", className, makeupDate)
	default:
		opt.Title = "Makeup class completed"
		opt.Message = fmt.Sprintf("Your makeup class for %s on %s has been recorded.", className, makeupDate)
	}
	return opt
}
