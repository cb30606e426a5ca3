package spec

import "time"

// EventKind identifies what happened to a subscription
type EventKind string

// Defining the subscription events published on the broker
const (
	EventCreated   EventKind = "subscription.created"
	EventPaused    EventKind = "subscription.paused"
	EventResumed   EventKind = "subscription.resumed"
	EventExtended  EventKind = "subscription.extended"
	EventCancelled EventKind = "subscription.cancelled"
	EventExpired   EventKind = "subscription.expired"
	EventConsumed  EventKind = "subscription.consumed"
)

// Event is the envelope sent over the message broker after a subscription transition
type Event struct {
	Kind             EventKind `json:"kind"`
	SubscriptionID   string    `json:"subscriptionId"`
	StudentID        string    `json:"studentId"`
	ClassID          string    `json:"classId"`
	Status           string    `json:"status"`
	EndDate          Date      `json:"endDate"`
	RemainingClasses *int      `json:"remainingClasses,omitempty"`
	OccurredAt       time.Time `json:"occurredAt"`
}
