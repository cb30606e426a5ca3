package subscription

// Type is the custom type to define how an entitlement is metered
type Type string

// Defining the subscription types
const (
	TypeDays   Type = "days"
	TypeCounts Type = "counts"
)

// Valid reports whether t is a known subscription type
func (t Type) Valid() bool {
	return t == TypeDays || t == TypeCounts
}

// Status is the custom type to define the current state of a subscription
//
// Valid transitions:
// Active -> Paused -> Active (repeatable, end date shifts on resume)
// Active/Paused -> Cancelled
// Active -> Expired (end date passed, or counts consumed)
// Expired and Cancelled are terminal
type Status string

// Defining different Status for a Subscription
const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s
func (s Status) Terminal() bool {
	return s == StatusExpired || s == StatusCancelled
}
