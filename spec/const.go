package spec

import "time"

// Define constants shared by the API and the background tasks
const (
	DefaultSweepInterval time.Duration = time.Hour * 24

	// ExpiringSoonDays is the window used by the "expiring soon" subscription filter
	ExpiringSoonDays int = 30
	// ExpiryReminderDays is how many days before end date a student is reminded
	ExpiryReminderDays int = 7
	// MaxExtendDays bounds a single extension
	MaxExtendDays int = 3650
)

type TaskType string

const (
	SubscriptionTask TaskType = "subscription"
	NotificationTask TaskType = "notification"
)
