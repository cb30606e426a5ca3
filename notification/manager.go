package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	dedupePrefix     = "notification:dedupe:"
	channelPrefix    = "notifications:"
	defaultDedupeTTL = time.Hour * 24 * 8
)

// ErrNotFound is returned when the notification does not exist or belongs to another user
var ErrNotFound = errors.New("notification not found")

// Channel returns the Redis pub/sub channel real-time notifications of userID are sent to
func Channel(userID string) string {
	return channelPrefix + userID
}

// ManagerOptions contains the dependencies of a notification Manager
type ManagerOptions struct {
	DB     *gorm.DB
	Logger *zap.Logger
	Redis  redis.UniversalClient // Optional. Enables dedupe keys and real-time publishing
	// DedupeTTL is how long a dedupe key suppresses repeats. Defaults to 8 days.
	DedupeTTL time.Duration
}

// Manager handles storing and delivering notifications
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for notifications
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.DedupeTTL <= 0 {
		option.DedupeTTL = defaultDedupeTTL
	}
	if err := option.DB.AutoMigrate(&Notification{}, &Preference{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize notification.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// NotifyOption describes a notification to deliver
type NotifyOption struct {
	UserID  string
	Kind    Kind
	Title   string
	Message string
	Link    string
	// DedupeKey, when set, delivers the notification at most once per DedupeTTL
	DedupeKey string
}

// Notify stores and publishes a notification. It returns nil without error when the
// recipient opted out of the kind or the dedupe key was already used.
func (m *Manager) Notify(ctx context.Context, opt NotifyOption) (*Notification, error) {
	if strings.TrimSpace(opt.UserID) == "" {
		return nil, fmt.Errorf("empty UserID is invalid")
	}
	if !opt.Kind.Valid() {
		return nil, fmt.Errorf("notification kind %q is invalid", opt.Kind)
	}

	logger := m.Logger.With(
		zap.String("UserID", opt.UserID),
		zap.String("Kind", string(opt.Kind)),
	)

	pref, err := m.GetPreference(ctx, opt.UserID)
	if err != nil {
		return nil, err
	}
	if !pref.Allows(opt.Kind) {
		logger.Debug("Notification suppressed by preference")
		return nil, nil
	}

	if opt.DedupeKey != "" && m.Redis != nil {
		first, err := m.Redis.SetNX(ctx, dedupePrefix+opt.DedupeKey, "1", m.DedupeTTL).Result()
		if err != nil {
			return nil, extErrors.Wrap(err, "Cannot set notification dedupe key")
		}
		if !first {
			logger.Debug("Notification already delivered",
				zap.String("DedupeKey", opt.DedupeKey),
			)
			return nil, nil
		}
	}

	n := &Notification{
		ID:        uuid.New().String(),
		UserID:    opt.UserID,
		Kind:      opt.Kind,
		Title:     opt.Title,
		Message:   opt.Message,
		Link:      opt.Link,
		CreatedAt: time.Now().UTC(),
	}
	if res := m.DB.WithContext(ctx).Create(n); res.Error != nil {
		logger.Error("Database returned error",
			zap.Error(res.Error),
		)
		if opt.DedupeKey != "" && m.Redis != nil {
			// allow a retry to deliver it
			m.Redis.Del(ctx, dedupePrefix+opt.DedupeKey)
		}
		return nil, extErrors.Wrap(res.Error, "Cannot create notification")
	}

	if m.Redis != nil && pref.PushNotifications {
		m.publish(ctx, logger, n)
	}
	return n, nil
}

func (m *Manager) publish(ctx context.Context, logger *zap.Logger, n *Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		logger.Error("Cannot encode notification", zap.Error(err))
		return
	}
	if err := m.Redis.Publish(ctx, Channel(n.UserID), payload).Err(); err != nil {
		logger.Error("Unable to publish notification",
			zap.String("NotificationID", n.ID),
			zap.Error(err),
		)
	}
}

// ListOption filters the notifications returned by List
type ListOption struct {
	UserID     string
	UnreadOnly bool
	Limit      int
}

// List returns the notifications of a user, newest first
func (m *Manager) List(ctx context.Context, opt ListOption) ([]Notification, error) {
	query := m.DB.WithContext(ctx).
		Where("user_id = ?", opt.UserID).
		Order("created_at desc")
	if opt.UnreadOnly {
		query = query.Where("read = ?", false)
	}
	if opt.Limit > 0 {
		query = query.Limit(opt.Limit)
	}

	results := make([]Notification, 0, 1)
	if res := query.Find(&results); res.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(res.Error),
		)
		return nil, extErrors.Wrap(res.Error, "Cannot list notifications")
	}
	return results, nil
}

// MarkRead marks one notification of the user as read
func (m *Manager) MarkRead(ctx context.Context, userID, notificationID string) (*Notification, error) {
	var n Notification
	res := m.DB.WithContext(ctx).First(&n, "id = ? AND user_id = ?", notificationID, userID)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if res.Error != nil {
		return nil, extErrors.Wrap(res.Error, "Cannot get notification")
	}
	if n.Read {
		return &n, nil
	}
	if res := m.DB.WithContext(ctx).Model(&n).Update("read", true); res.Error != nil {
		return nil, extErrors.Wrap(res.Error, "Cannot mark notification as read")
	}
	n.Read = true
	return &n, nil
}

// MarkAllRead marks every unread notification of the user as read and returns how many changed
func (m *Manager) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res := m.DB.WithContext(ctx).
		Model(&Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	if res.Error != nil {
		return 0, extErrors.Wrap(res.Error, "Cannot mark notifications as read")
	}
	return res.RowsAffected, nil
}

// UnreadCount returns the number of unread notifications of the user
func (m *Manager) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	res := m.DB.WithContext(ctx).
		Model(&Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count)
	if res.Error != nil {
		return 0, extErrors.Wrap(res.Error, "Cannot count unread notifications")
	}
	return count, nil
}

// GetPreference returns the stored preference of the user, or DefaultPreference
func (m *Manager) GetPreference(ctx context.Context, userID string) (*Preference, error) {
	var pref Preference
	res := m.DB.WithContext(ctx).First(&pref, "user_id = ?", userID)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return DefaultPreference(userID), nil
	}
	if res.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(res.Error),
		)
		return nil, extErrors.Wrap(res.Error, "Cannot get notification preference")
	}
	return &pref, nil
}

// UpdatePreference stores the preference of pref.UserID, replacing any previous one
func (m *Manager) UpdatePreference(ctx context.Context, pref *Preference) (*Preference, error) {
	if strings.TrimSpace(pref.UserID) == "" {
		return nil, fmt.Errorf("empty UserID is invalid")
	}
	pref.UpdatedAt = time.Now().UTC()
	res := m.DB.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(pref)
	if res.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(res.Error),
		)
		return nil, extErrors.Wrap(res.Error, "Cannot update notification preference")
	}
	return pref, nil
}
