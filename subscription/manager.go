package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zllovesuki/studio/db"
	"github.com/zllovesuki/studio/spec"
	"github.com/zllovesuki/studio/spec/broker"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultSweepConcurrency = 4

// ManagerOptions contains the dependencies of a subscription Manager
type ManagerOptions struct {
	DB       *gorm.DB
	Logger   *zap.Logger
	Producer broker.Producer  // Optional. Receives an event after every committed transition
	Clock    func() time.Time // Optional. Defaults to time.Now

	// SweepConcurrency bounds how many subscriptions ExpireByDate transitions in parallel
	SweepConcurrency int
}

// Manager handles the database operations and lifecycle transitions of subscriptions
type Manager struct {
	ManagerOptions
	// inTx is set when bound to an outer transaction; events are then left to the caller
	inTx bool
}

// NewManager returns a new Manager for subscriptions
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.Producer == nil {
		option.Producer = broker.NopProducer{}
	}
	if option.Clock == nil {
		option.Clock = time.Now
	}
	if option.SweepConcurrency <= 0 {
		option.SweepConcurrency = defaultSweepConcurrency
	}
	if err := option.DB.AutoMigrate(&Subscription{}, &Pause{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize subscription.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// WithTx returns a Manager whose operations run inside tx. Events are not published by the
// returned Manager since tx may still roll back; use PublishEvent after commit.
func (m *Manager) WithTx(tx *gorm.DB) *Manager {
	bound := *m
	bound.DB = tx
	bound.inTx = true
	return &bound
}

func (m *Manager) now() time.Time {
	return m.Clock().UTC()
}

// Today returns the current calendar date according to the Manager's clock
func (m *Manager) Today() spec.Date {
	return spec.Today(m.now())
}

// PublishEvent sends the event describing sub's current state. Failures are logged, not returned,
// since the transition has already been committed.
func (m *Manager) PublishEvent(ctx context.Context, sub *Subscription, kind spec.EventKind) {
	if sub == nil {
		return
	}
	if err := m.Producer.PublishEvent(ctx, sub.event(kind, m.now())); err != nil {
		m.Logger.Error("Unable to publish subscription event",
			zap.String("SubscriptionID", sub.ID),
			zap.String("Kind", string(kind)),
			zap.Error(err),
		)
	}
}

func (m *Manager) publish(ctx context.Context, sub *Subscription, kind spec.EventKind) {
	if m.inTx {
		return
	}
	m.PublishEvent(ctx, sub, kind)
}

// Create validates the purchase details and stores a new active subscription
func (m *Manager) Create(ctx context.Context, opt CreateOption) (*Subscription, error) {
	sub, err := newSubscription(opt, m.now())
	if err != nil {
		return nil, err
	}
	result := m.DB.WithContext(ctx).Create(sub)
	if result.Error != nil {
		m.Logger.Error("Unable to create new subscription in database",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create subscription")
	}
	sub.computeDaysRemaining(m.Today())
	m.publish(ctx, sub, spec.EventCreated)
	return sub, nil
}

// GetOption specifies which subscription to return
type GetOption struct {
	SubscriptionID string
	WithPauses     bool
}

// Get returns the subscription with the given id, or ErrNotFound
func (m *Manager) Get(ctx context.Context, opt GetOption) (*Subscription, error) {
	if len(opt.SubscriptionID) == 0 {
		return nil, fmt.Errorf("GetOption.SubscriptionID is required")
	}
	var sub Subscription
	query := m.DB.WithContext(ctx)
	if opt.WithPauses {
		query = query.Preload("Pauses", orderPauses)
	}
	result := query.First(&sub, "id = ?", opt.SubscriptionID)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}

	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get subscription by id")
	}

	sub.computeDaysRemaining(m.Today())
	return &sub, nil
}

// orderPauses sorts pauses by their sequence within the subscription. Rows stored before
// seq was assigned share seq 0 and fall back to created_at.
func orderPauses(tx *gorm.DB) *gorm.DB {
	return tx.Order("seq asc").Order("created_at asc")
}

// ListOption filters the subscriptions returned by List. Zero values do not filter.
type ListOption struct {
	Status       Status
	ClassID      string
	StudentID    string
	ExpiringSoon bool   // Active subscriptions ending within spec.ExpiringSoonDays
	Search       string // Case-insensitive match on student name or class name
	Before       time.Time
	Limit        int
	WithPauses   bool
}

// List returns subscriptions matching opt, newest first
func (m *Manager) List(ctx context.Context, opt ListOption) ([]Subscription, error) {
	baseQuery := m.DB.WithContext(ctx).
		Model(&Subscription{}).
		Select("subscriptions.*").
		Order("subscriptions.created_at desc")

	if opt.Status != "" {
		baseQuery = baseQuery.Where("subscriptions.status = ?", opt.Status)
	}
	if opt.ClassID != "" {
		baseQuery = baseQuery.Where("subscriptions.class_id = ?", opt.ClassID)
	}
	if opt.StudentID != "" {
		baseQuery = baseQuery.Where("subscriptions.student_id = ?", opt.StudentID)
	}
	if opt.ExpiringSoon {
		horizon := m.Today().AddDays(spec.ExpiringSoonDays)
		baseQuery = baseQuery.
			Where("subscriptions.status = ?", StatusActive).
			Where("subscriptions.end_date <= ?", horizon)
	}
	if search := strings.TrimSpace(opt.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		baseQuery = baseQuery.
			Joins("JOIN students ON students.id = subscriptions.student_id").
			Joins("JOIN classes ON classes.id = subscriptions.class_id").
			Where("(LOWER(students.name) LIKE ? OR LOWER(classes.name) LIKE ?)", pattern, pattern)
	}
	if !opt.Before.IsZero() {
		baseQuery = baseQuery.Where("subscriptions.created_at < ?", opt.Before)
	}
	if opt.Limit > 0 {
		baseQuery = baseQuery.Limit(opt.Limit)
	}
	if opt.WithPauses {
		baseQuery = baseQuery.Preload("Pauses", orderPauses)
	}

	results := make([]Subscription, 0, 1)
	result := baseQuery.Find(&results)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot list subscriptions")
	}

	today := m.Today()
	for i := range results {
		results[i].computeDaysRemaining(today)
	}
	return results, nil
}

// ListPauses returns the pause history of a subscription in creation order
func (m *Manager) ListPauses(ctx context.Context, subscriptionID string) ([]Pause, error) {
	var count int64
	if err := m.DB.WithContext(ctx).Model(&Subscription{}).Where("id = ?", subscriptionID).Count(&count).Error; err != nil {
		return nil, extErrors.Wrap(err, "Cannot look up subscription")
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	pauses := make([]Pause, 0, 1)
	result := orderPauses(m.DB.WithContext(ctx)).
		Where("subscription_id = ?", subscriptionID).
		Find(&pauses)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot list subscription pauses")
	}
	return pauses, nil
}

// lambdaUpdateFunc runs with the subscription row locked. Returning shouldSave commits current.
type lambdaUpdateFunc func(tx *gorm.DB, current *Subscription) (shouldSave bool, err error)

// lambdaUpdate will perform a transactional read-modify-write on one subscription.
// The selected Subscription is locked with FOR UPDATE; concurrent transitions on the same
// subscription serialize. It returns the new state if the lambda signals shouldSave, otherwise nil.
func (m *Manager) lambdaUpdate(ctx context.Context, id string, lambda lambdaUpdateFunc) (*Subscription, error) {
	var desired *Subscription
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current Subscription
		lookupRes := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&current, "id = ?", id)
		if errors.Is(lookupRes.Error, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if lookupRes.Error != nil {
			return extErrors.Wrap(lookupRes.Error, "Cannot lock subscription")
		}
		shouldSave, err := lambda(tx, &current)
		if err != nil {
			return err
		}
		if !shouldSave {
			return nil
		}
		if saveRes := tx.Save(&current); saveRes.Error != nil {
			return extErrors.Wrap(saveRes.Error, "Cannot save subscription")
		}
		desired = &current
		return nil
	}, db.TxOptions(m.DB))
	if err != nil {
		if !IsValidation(err) && !IsState(err) && !errors.Is(err, ErrNotFound) {
			m.Logger.Error("Subscription transaction failed",
				zap.String("SubscriptionID", id),
				zap.Error(err),
			)
		}
		return nil, err
	}
	if desired != nil {
		desired.computeDaysRemaining(m.Today())
	}
	return desired, nil
}

// Pause suspends an active subscription and appends the pause to its history
func (m *Manager) Pause(ctx context.Context, subscriptionID string, opt PauseOption) (*Pause, error) {
	var created *Pause
	sub, err := m.lambdaUpdate(ctx, subscriptionID, func(tx *gorm.DB, current *Subscription) (bool, error) {
		p, err := current.pause(opt, m.now())
		if err != nil {
			return false, err
		}
		var lastSeq int
		if res := tx.Model(&Pause{}).
			Where("subscription_id = ?", current.ID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&lastSeq); res.Error != nil {
			return false, extErrors.Wrap(res.Error, "Cannot get subscription pause sequence")
		}
		p.Seq = lastSeq + 1
		if res := tx.Create(p); res.Error != nil {
			return false, extErrors.Wrap(res.Error, "Cannot create subscription pause")
		}
		created = p
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, sub, spec.EventPaused)
	return created, nil
}

// Resume reactivates a paused subscription, shifting its end date by the latest pause span
func (m *Manager) Resume(ctx context.Context, subscriptionID string) (*Subscription, error) {
	sub, err := m.lambdaUpdate(ctx, subscriptionID, func(tx *gorm.DB, current *Subscription) (bool, error) {
		var latest *Pause
		var p Pause
		res := orderPausesDesc(tx).Where("subscription_id = ?", current.ID).First(&p)
		switch {
		case res.Error == nil:
			latest = &p
		case errors.Is(res.Error, gorm.ErrRecordNotFound):
		default:
			return false, extErrors.Wrap(res.Error, "Cannot get latest subscription pause")
		}
		if err := current.resume(latest, m.now()); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, sub, spec.EventResumed)
	return sub, nil
}

func orderPausesDesc(tx *gorm.DB) *gorm.DB {
	return tx.Order("seq desc").Order("created_at desc")
}

// Extend pushes the end date of a subscription forward by days
func (m *Manager) Extend(ctx context.Context, subscriptionID string, days int) (*Subscription, error) {
	if err := validateExtendDays(days); err != nil {
		return nil, err
	}
	sub, err := m.lambdaUpdate(ctx, subscriptionID, func(tx *gorm.DB, current *Subscription) (bool, error) {
		if err := current.extend(days, m.now()); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, sub, spec.EventExtended)
	return sub, nil
}

// Cancel moves an active or paused subscription into the terminal cancelled state
func (m *Manager) Cancel(ctx context.Context, subscriptionID string) (*Subscription, error) {
	sub, err := m.lambdaUpdate(ctx, subscriptionID, func(tx *gorm.DB, current *Subscription) (bool, error) {
		if err := current.cancel(m.now()); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, sub, spec.EventCancelled)
	return sub, nil
}

// ConsumeResult describes what ConsumeAttendance did
type ConsumeResult struct {
	// Subscription covering the attendance, nil if the student has none for the class on that date
	Subscription *Subscription
	// Consumed is true when a counts subscription was decremented
	Consumed bool
}

// ConsumeAttendance finds the active subscription of the student for the class covering the given
// date (earliest end date first) and, for counts subscriptions, consumes one class.
func (m *Manager) ConsumeAttendance(ctx context.Context, studentID, classID string, on spec.Date) (*ConsumeResult, error) {
	var candidate Subscription
	lookupRes := m.DB.WithContext(ctx).
		Where("student_id = ? AND class_id = ?", studentID, classID).
		Where("status = ?", StatusActive).
		Where("start_date <= ? AND end_date >= ?", on, on).
		Order("end_date asc").
		Order("created_at asc").
		First(&candidate)
	if errors.Is(lookupRes.Error, gorm.ErrRecordNotFound) {
		return &ConsumeResult{}, nil
	}
	if lookupRes.Error != nil {
		return nil, extErrors.Wrap(lookupRes.Error, "Cannot find covering subscription")
	}

	sub, err := m.lambdaUpdate(ctx, candidate.ID, func(tx *gorm.DB, current *Subscription) (bool, error) {
		return current.consume(m.now())
	})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		// not metered
		candidate.computeDaysRemaining(m.Today())
		return &ConsumeResult{Subscription: &candidate}, nil
	}
	m.publish(ctx, sub, spec.EventConsumed)
	if sub.Status == StatusExpired {
		m.publish(ctx, sub, spec.EventExpired)
	}
	return &ConsumeResult{Subscription: sub, Consumed: true}, nil
}

// ExpiringOn returns the active subscriptions whose last day is day
func (m *Manager) ExpiringOn(ctx context.Context, day spec.Date) ([]Subscription, error) {
	results := make([]Subscription, 0, 1)
	result := m.DB.WithContext(ctx).
		Where("status = ? AND end_date = ?", StatusActive, day).
		Order("created_at asc").
		Find(&results)
	if result.Error != nil {
		return nil, extErrors.Wrap(result.Error, "Cannot list expiring subscriptions")
	}
	return results, nil
}

// ExpireByDate expires every active subscription whose end date is before asOf and returns the
// subscriptions it transitioned. Running it again with the same asOf changes nothing.
func (m *Manager) ExpireByDate(ctx context.Context, asOf spec.Date) ([]Subscription, error) {
	var ids []string
	lookupRes := m.DB.WithContext(ctx).
		Model(&Subscription{}).
		Where("status = ? AND end_date < ?", StatusActive, asOf).
		Pluck("id", &ids)
	if lookupRes.Error != nil {
		return nil, extErrors.Wrap(lookupRes.Error, "Cannot find subscriptions to expire")
	}

	var mu sync.Mutex
	expired := make([]Subscription, 0, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.SweepConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			sub, err := m.lambdaUpdate(gctx, id, func(tx *gorm.DB, current *Subscription) (bool, error) {
				// re-checked under lock, another transition may have won
				return current.expireAsOf(asOf, m.now()), nil
			})
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return extErrors.Wrapf(err, "Cannot expire subscription %s", id)
			}
			if sub == nil {
				return nil
			}
			m.publish(gctx, sub, spec.EventExpired)
			mu.Lock()
			expired = append(expired, *sub)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return expired, err
	}
	return expired, nil
}
