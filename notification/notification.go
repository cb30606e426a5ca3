package notification

import "time"

// Kind is the category of a notification
type Kind string

// Defining the notification kinds
const (
	KindSubscriptionExpiry Kind = "subscription_expiry"
	KindClassReminder      Kind = "class_reminder"
	KindMakeupStatus       Kind = "makeup_status"
	KindPauseStatus        Kind = "pause_status"
	KindAnnouncement       Kind = "announcement"
	KindAttendance         Kind = "attendance"
)

// Valid reports whether k is one of the defined kinds
func (k Kind) Valid() bool {
	switch k {
	case KindSubscriptionExpiry, KindClassReminder, KindMakeupStatus,
		KindPauseStatus, KindAnnouncement, KindAttendance:
		return true
	default:
		return false
	}
}

// Notification is a message delivered to a user's inbox
type Notification struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"userId" gorm:"not null;index"`
	Kind      Kind      `json:"notificationType" gorm:"not null"`
	Title     string    `json:"title" gorm:"size:200;not null"`
	Message   string    `json:"message" gorm:"not null"`
	Read      bool      `json:"read" gorm:"not null;default:false;index"`
	Link      string    `json:"link" gorm:"size:200"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
}

// Preference holds the opt-in flags of one user. Users without a stored row get DefaultPreference.
type Preference struct {
	UserID             string    `json:"userId" gorm:"primaryKey"`
	SubscriptionExpiry bool      `json:"subscriptionExpiry"`
	ClassReminder      bool      `json:"classReminder"`
	MakeupStatus       bool      `json:"makeupStatus"`
	PauseStatus        bool      `json:"pauseStatus"`
	Announcement       bool      `json:"announcement"`
	Attendance         bool      `json:"attendance"`
	// EmailNotifications is stored for the mail delivery service. Notify does not read it.
	EmailNotifications bool      `json:"emailNotifications"`
	PushNotifications  bool      `json:"pushNotifications"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func (Preference) TableName() string {
	return "notification_preferences"
}

// DefaultPreference returns the preference of a user who never changed it: everything enabled
func DefaultPreference(userID string) *Preference {
	return &Preference{
		UserID:             userID,
		SubscriptionExpiry: true,
		ClassReminder:      true,
		MakeupStatus:       true,
		PauseStatus:        true,
		Announcement:       true,
		Attendance:         true,
		EmailNotifications: true,
		PushNotifications:  true,
	}
}

// Allows reports whether the user opted in to notifications of kind k
func (p *Preference) Allows(k Kind) bool {
	switch k {
	case KindSubscriptionExpiry:
		return p.SubscriptionExpiry
	case KindClassReminder:
		return p.ClassReminder
	case KindMakeupStatus:
		return p.MakeupStatus
	case KindPauseStatus:
		return p.PauseStatus
	case KindAnnouncement:
		return p.Announcement
	case KindAttendance:
		return p.Attendance
	default:
		return false
	}
}
