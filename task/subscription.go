package task

import (
	"context"
	"fmt"
	"time"

	"github.com/zllovesuki/studio/class"
	"github.com/zllovesuki/studio/notification"
	"github.com/zllovesuki/studio/spec"
	"github.com/zllovesuki/studio/subscription"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// SubscriptionOptions contains the dependencies of SubscriptionTask
type SubscriptionOptions struct {
	SubscriptionManager *subscription.Manager
	NotificationManager *notification.Manager
	ClassManager        *class.Manager
	Logger              *zap.Logger

	Interval     time.Duration // Defaults to spec.DefaultSweepInterval
	ReminderDays int           // Defaults to spec.ExpiryReminderDays
}

// SubscriptionTask periodically expires lapsed subscriptions and reminds students of upcoming expiry
type SubscriptionTask struct {
	SubscriptionOptions
}

// NewSubscriptionTask returns a SubscriptionTask ready to Run
func NewSubscriptionTask(option SubscriptionOptions) (*SubscriptionTask, error) {
	if option.SubscriptionManager == nil {
		return nil, fmt.Errorf("nil SubscriptionManager is invalid")
	}
	if option.NotificationManager == nil {
		return nil, fmt.Errorf("nil NotificationManager is invalid")
	}
	if option.ClassManager == nil {
		return nil, fmt.Errorf("nil ClassManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.Interval <= 0 {
		option.Interval = spec.DefaultSweepInterval
	}
	if option.ReminderDays <= 0 {
		option.ReminderDays = spec.ExpiryReminderDays
	}
	return &SubscriptionTask{
		SubscriptionOptions: option,
	}, nil
}

// SweepResult reports what one RunOnce did
type SweepResult struct {
	Expired  int
	Reminded int
}

// RunOnce expires every active subscription that ended before today, then sends
// reminders for those ending ReminderDays from today
func (t *SubscriptionTask) RunOnce(ctx context.Context) (*SweepResult, error) {
	today := t.SubscriptionManager.Today()
	logger := t.Logger.With(zap.String("Today", today.String()))

	result := &SweepResult{}

	expired, err := t.SubscriptionManager.ExpireByDate(ctx, today)
	result.Expired = len(expired)
	if err != nil {
		return result, extErrors.Wrap(err, "Cannot expire subscriptions")
	}

	reminderDate := today.AddDays(t.ReminderDays)
	expiring, err := t.SubscriptionManager.ExpiringOn(ctx, reminderDate)
	if err != nil {
		return result, extErrors.Wrap(err, "Cannot find expiring subscriptions")
	}

	classNames := make(map[string]string)
	for _, sub := range expiring {
		name, ok := classNames[sub.ClassID]
		if !ok {
			name = t.className(ctx, sub.ClassID)
			classNames[sub.ClassID] = name
		}
		n, err := t.NotificationManager.Notify(ctx, notification.ExpiryReminder(sub.ID, sub.StudentID, name, sub.EndDate, t.ReminderDays))
		if err != nil {
			logger.Error("Unable to send expiry reminder",
				zap.String("SubscriptionID", sub.ID),
				zap.Error(err),
			)
			continue
		}
		if n != nil {
			result.Reminded++
		}
	}

	logger.Info("Subscription sweep completed",
		zap.Int("Expired", result.Expired),
		zap.Int("Reminded", result.Reminded),
	)
	return result, nil
}

func (t *SubscriptionTask) className(ctx context.Context, classID string) string {
	c, err := t.ClassManager.GetByID(ctx, classID)
	if err != nil || c == nil {
		return "your class"
	}
	return c.Name
}

// Run calls RunOnce immediately and then on every Interval until ctx is done
func (t *SubscriptionTask) Run(ctx context.Context) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	t.Logger.Info("Subscription task started",
		zap.Duration("Interval", t.Interval),
	)

	for {
		if _, err := t.RunOnce(ctx); err != nil {
			t.Logger.Error("Subscription sweep failed",
				zap.Error(err),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
