package task

import (
	"context"
	"fmt"

	"github.com/zllovesuki/studio/class"
	"github.com/zllovesuki/studio/notification"
	"github.com/zllovesuki/studio/spec"
	"github.com/zllovesuki/studio/spec/broker"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// NotificationOptions contains the dependencies of NotificationTask
type NotificationOptions struct {
	Consumer            broker.Consumer
	NotificationManager *notification.Manager
	ClassManager        *class.Manager
	Logger              *zap.Logger
}

// NotificationTask turns subscription events into student notifications
type NotificationTask struct {
	NotificationOptions
}

// NewNotificationTask returns a NotificationTask ready to HandleEvents
func NewNotificationTask(option NotificationOptions) (*NotificationTask, error) {
	if option.Consumer == nil {
		return nil, fmt.Errorf("nil Consumer is invalid")
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
	return &NotificationTask{
		NotificationOptions: option,
	}, nil
}

// HandleEvent delivers the notification for one event, if students are notified about it
func (t *NotificationTask) HandleEvent(ctx context.Context, e *spec.Event) error {
	className := "your class"
	c, err := t.ClassManager.GetByID(ctx, e.ClassID)
	if err != nil {
		return extErrors.Wrap(err, "Cannot get class of subscription event")
	}
	if c != nil {
		className = c.Name
	}

	opt, ok := notification.FromEvent(e, className)
	if !ok {
		return nil
	}
	if _, err := t.NotificationManager.Notify(ctx, opt); err != nil {
		return extErrors.Wrap(err, "Cannot notify student")
	}
	return nil
}

// HandleEvents consumes events from the broker until ctx is done
func (t *NotificationTask) HandleEvents(ctx context.Context) error {
	eChan, err := t.Consumer.ReceiveEvents(ctx)
	if err != nil {
		return extErrors.Wrap(err, "Cannot get subscription event channel")
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-eChan:
				if !ok {
					return
				}
				if err := t.HandleEvent(ctx, e); err != nil {
					t.Logger.Error("Cannot handle subscription event",
						zap.String("Kind", string(e.Kind)),
						zap.String("SubscriptionID", e.SubscriptionID),
						zap.Error(err),
					)
				}
			}
		}
	}()
	return nil
}
