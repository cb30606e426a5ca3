package makeup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zllovesuki/studio/attendance"
	"github.com/zllovesuki/studio/class"
	"github.com/zllovesuki/studio/notification"
	"github.com/zllovesuki/studio/spec"
	"github.com/zllovesuki/studio/subscription"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ManagerOptions contains the dependencies of a makeup Manager
type ManagerOptions struct {
	DB                  *gorm.DB
	Logger              *zap.Logger
	AttendanceManager   *attendance.Manager
	ClassManager        *class.Manager
	NotificationManager *notification.Manager
}

// Manager handles makeup class requests and records the attended makeup
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for makeup classes
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.AttendanceManager == nil {
		return nil, fmt.Errorf("nil AttendanceManager is invalid")
	}
	if option.ClassManager == nil {
		return nil, fmt.Errorf("nil ClassManager is invalid")
	}
	if option.NotificationManager == nil {
		return nil, fmt.Errorf("nil NotificationManager is invalid")
	}
	if err := option.DB.AutoMigrate(&MakeupClass{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize makeup.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// RequestOption describes the missed class meeting and the one attended instead
type RequestOption struct {
	StudentID       string
	OriginalClassID string
	OriginalDate    spec.Date
	MakeupClassID   string
	MakeupDate      spec.Date
	Reason          string
}

func invalid(field, reason string) error {
	return &subscription.ValidationError{Field: field, Reason: reason}
}

func (o *RequestOption) validate() error {
	switch {
	case strings.TrimSpace(o.StudentID) == "":
		return invalid("studentId", "is required")
	case strings.TrimSpace(o.OriginalClassID) == "":
		return invalid("originalClassId", "is required")
	case strings.TrimSpace(o.MakeupClassID) == "":
		return invalid("makeupClassId", "is required")
	case o.OriginalDate.IsZero():
		return invalid("originalDate", "is required")
	case o.MakeupDate.IsZero():
		return invalid("makeupDate", "is required")
	case strings.TrimSpace(o.Reason) == "":
		return invalid("reason", "is required")
	}
	return nil
}

func (m *Manager) requireClass(ctx context.Context, field, id string) error {
	c, err := m.ClassManager.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return invalid(field, "class does not exist")
	}
	return nil
}

// Request stores a pending makeup class request
func (m *Manager) Request(ctx context.Context, opt RequestOption) (*MakeupClass, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	if err := m.requireClass(ctx, "originalClassId", opt.OriginalClassID); err != nil {
		return nil, err
	}
	if err := m.requireClass(ctx, "makeupClassId", opt.MakeupClassID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	mk := &MakeupClass{
		ID:              uuid.New().String(),
		StudentID:       opt.StudentID,
		OriginalClassID: opt.OriginalClassID,
		OriginalDate:    opt.OriginalDate,
		MakeupClassID:   opt.MakeupClassID,
		MakeupDate:      opt.MakeupDate,
		Status:          StatusPending,
		Reason:          strings.TrimSpace(opt.Reason),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if res := m.DB.WithContext(ctx).Create(mk); res.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(res.Error),
		)
		return nil, extErrors.Wrap(res.Error, "Cannot create makeup class")
	}
	return mk, nil
}

// Get returns the makeup request by id
func (m *Manager) Get(ctx context.Context, id string) (*MakeupClass, error) {
	var mk MakeupClass
	res := m.DB.WithContext(ctx).First(&mk, "id = ?", id)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if res.Error != nil {
		return nil, extErrors.Wrap(res.Error, "Cannot get makeup class")
	}
	return &mk, nil
}

// ListOption filters the makeup requests returned by List. From and To together match requests
// whose original or makeup date falls within the range.
type ListOption struct {
	Status    Status
	StudentID string
	From      spec.Date
	To        spec.Date
}

// List returns makeup requests, newest first
func (m *Manager) List(ctx context.Context, opt ListOption) ([]MakeupClass, error) {
	query := m.DB.WithContext(ctx).Model(&MakeupClass{}).Order("created_at desc")
	if opt.Status != "" {
		query = query.Where("status = ?", opt.Status)
	}
	if opt.StudentID != "" {
		query = query.Where("student_id = ?", opt.StudentID)
	}
	if !opt.From.IsZero() && !opt.To.IsZero() {
		query = query.Where("((original_date BETWEEN ? AND ?) OR (makeup_date BETWEEN ? AND ?))",
			opt.From, opt.To, opt.From, opt.To)
	}

	results := make([]MakeupClass, 0, 1)
	if res := query.Find(&results); res.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(res.Error),
		)
		return nil, extErrors.Wrap(res.Error, "Cannot list makeup classes")
	}
	return results, nil
}

// transition runs lambda with the makeup request locked and saves it when lambda succeeds
func (m *Manager) transition(ctx context.Context, id string, lambda func(tx *gorm.DB, current *MakeupClass) error) (*MakeupClass, error) {
	var current MakeupClass
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, "id = ?", id)
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if res.Error != nil {
			return extErrors.Wrap(res.Error, "Cannot lock makeup class")
		}
		if err := lambda(tx, &current); err != nil {
			return err
		}
		if res := tx.Save(&current); res.Error != nil {
			return extErrors.Wrap(res.Error, "Cannot save makeup class")
		}
		return nil
	})
	if err != nil {
		var sErr *StateError
		if !errors.As(err, &sErr) && !errors.Is(err, ErrNotFound) && !errors.Is(err, attendance.ErrDuplicate) && !subscription.IsState(err) {
			m.Logger.Error("Makeup class transaction failed",
				zap.String("MakeupID", id),
				zap.Error(err),
			)
		}
		return nil, err
	}
	return &current, nil
}

// Approve accepts a pending request
func (m *Manager) Approve(ctx context.Context, id string) (*MakeupClass, error) {
	mk, err := m.transition(ctx, id, func(tx *gorm.DB, current *MakeupClass) error {
		return current.approve(time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}
	m.notify(ctx, mk)
	return mk, nil
}

// Reject declines a pending or approved request
func (m *Manager) Reject(ctx context.Context, id string) (*MakeupClass, error) {
	mk, err := m.transition(ctx, id, func(tx *gorm.DB, current *MakeupClass) error {
		return current.reject(time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}
	m.notify(ctx, mk)
	return mk, nil
}

// CompleteResult is the completed request and the makeup attendance recorded for it
type CompleteResult struct {
	MakeupClass *MakeupClass             `json:"makeupClass"`
	Attendance  *attendance.RecordResult `json:"attendance"`
}

// Complete marks an approved request as attended and records a makeup attendance for the
// makeup class, charging the covering subscription, in the same transaction
func (m *Manager) Complete(ctx context.Context, id string) (*CompleteResult, error) {
	var charge *attendance.RecordResult
	mk, err := m.transition(ctx, id, func(tx *gorm.DB, current *MakeupClass) error {
		if err := current.complete(time.Now().UTC()); err != nil {
			return err
		}
		res, err := m.AttendanceManager.WithTx(tx).Record(ctx, attendance.RecordOption{
			StudentID: current.StudentID,
			ClassID:   current.MakeupClassID,
			Date:      current.MakeupDate,
			Status:    attendance.StatusMakeup,
			Memo:      "makeup for " + current.OriginalDate.String(),
		})
		if err != nil {
			return err
		}
		attendanceID := res.Attendance.ID
		current.AttendanceID = &attendanceID
		charge = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.AttendanceManager.PublishCharge(ctx, charge)
	m.notify(ctx, mk)
	return &CompleteResult{
		MakeupClass: mk,
		Attendance:  charge,
	}, nil
}

// notify tells the student about the decision. Failures are logged, the transition is committed.
func (m *Manager) notify(ctx context.Context, mk *MakeupClass) {
	className := "your class"
	if c, err := m.ClassManager.GetByID(ctx, mk.MakeupClassID); err == nil && c != nil {
		className = c.Name
	}
	opt := notification.MakeupUpdate(mk.ID, mk.StudentID, string(mk.Status), className, mk.MakeupDate)
	if _, err := m.NotificationManager.Notify(ctx, opt); err != nil {
		m.Logger.Error("Unable to notify makeup class update",
			zap.String("MakeupID", mk.ID),
			zap.Error(err),
		)
	}
}
