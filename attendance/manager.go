package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zllovesuki/studio/spec"
	"github.com/zllovesuki/studio/subscription"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrDuplicate is returned when the student already has an attendance record for the class on that date
	ErrDuplicate = errors.New("attendance already recorded for this date")
	// ErrNotFound is returned when no attendance record exists with the requested id
	ErrNotFound = errors.New("attendance not found")
)

// ManagerOptions contains the dependencies of an attendance Manager
type ManagerOptions struct {
	DB                  *gorm.DB
	Logger              *zap.Logger
	SubscriptionManager *subscription.Manager
}

// Manager handles the database operations relating to Attendance
type Manager struct {
	ManagerOptions
	inTx bool
}

// NewManager returns a new Manager for attendance
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.SubscriptionManager == nil {
		return nil, fmt.Errorf("nil SubscriptionManager is invalid")
	}
	if err := option.DB.AutoMigrate(&Attendance{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize attendance.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// WithTx returns a Manager whose operations run inside tx. Subscription events are left to
// the caller, who sends them with PublishCharge after commit.
func (m *Manager) WithTx(tx *gorm.DB) *Manager {
	bound := *m
	bound.DB = tx
	bound.inTx = true
	return &bound
}

// RecordOption contains one attendance entry
type RecordOption struct {
	StudentID string
	ClassID   string
	Date      spec.Date
	Status    Status
	Memo      string
}

func validateStatus(status Status) error {
	if !status.Valid() {
		return &subscription.ValidationError{Field: "status", Reason: "must be one of present, absent, late, excused, makeup"}
	}
	return nil
}

func (o *RecordOption) validate() error {
	if strings.TrimSpace(o.StudentID) == "" {
		return &subscription.ValidationError{Field: "studentId", Reason: "is required"}
	}
	if strings.TrimSpace(o.ClassID) == "" {
		return &subscription.ValidationError{Field: "classId", Reason: "is required"}
	}
	if o.Date.IsZero() {
		return &subscription.ValidationError{Field: "date", Reason: "is required"}
	}
	return validateStatus(o.Status)
}

// RecordResult is the stored attendance together with the subscription it was charged to
type RecordResult struct {
	Attendance   *Attendance                `json:"attendance"`
	Subscription *subscription.Subscription `json:"subscription,omitempty"`
	Consumed     bool                       `json:"consumed"`
}

// charge consumes a class of the covering subscription when the record's status consumes one
// and it has not been charged yet. Records are never refunded.
func (m *Manager) charge(ctx context.Context, tx *gorm.DB, record *Attendance, result *RecordResult) error {
	if !record.Status.Consumes() || record.Charged {
		return nil
	}
	consumeRes, err := m.SubscriptionManager.WithTx(tx).ConsumeAttendance(ctx, record.StudentID, record.ClassID, record.Date)
	if err != nil {
		return err
	}
	if consumeRes.Subscription == nil {
		return nil
	}
	subID := consumeRes.Subscription.ID
	record.SubscriptionID = &subID
	record.Charged = consumeRes.Consumed
	result.Subscription = consumeRes.Subscription
	result.Consumed = consumeRes.Consumed
	return nil
}

// PublishCharge sends the subscription events of a committed charge
func (m *Manager) PublishCharge(ctx context.Context, result *RecordResult) {
	if result == nil || !result.Consumed {
		return
	}
	m.SubscriptionManager.PublishEvent(ctx, result.Subscription, spec.EventConsumed)
	if result.Subscription.Status == subscription.StatusExpired {
		m.SubscriptionManager.PublishEvent(ctx, result.Subscription, spec.EventExpired)
	}
}

func (m *Manager) publishCharge(ctx context.Context, result *RecordResult) {
	if m.inTx {
		return
	}
	m.PublishCharge(ctx, result)
}

func (m *Manager) logFailure(logger *zap.Logger, msg string, err error) {
	if errors.Is(err, ErrDuplicate) || errors.Is(err, ErrNotFound) || subscription.IsState(err) || subscription.IsValidation(err) {
		return
	}
	logger.Error(msg, zap.Error(err))
}

// Record stores an attendance entry. Statuses that consume a class decrement the covering
// counts subscription in the same transaction.
func (m *Manager) Record(ctx context.Context, opt RecordOption) (*RecordResult, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}

	logger := m.Logger.With(
		zap.String("StudentID", opt.StudentID),
		zap.String("ClassID", opt.ClassID),
		zap.String("Date", opt.Date.String()),
	)

	now := time.Now().UTC()
	result := &RecordResult{}
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := &Attendance{
			ID:        uuid.New().String(),
			StudentID: opt.StudentID,
			ClassID:   opt.ClassID,
			Date:      opt.Date,
			Status:    opt.Status,
			Memo:      opt.Memo,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := m.charge(ctx, tx, record, result); err != nil {
			return err
		}
		// the daily unique index decides between concurrent writers
		res := tx.Create(record)
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		if res.Error != nil {
			return extErrors.Wrap(res.Error, "Cannot create attendance")
		}
		result.Attendance = record
		return nil
	})
	if err != nil {
		m.logFailure(logger, "Unable to record attendance", err)
		return nil, err
	}

	m.publishCharge(ctx, result)
	return result, nil
}

// UpdateOption changes the outcome of an existing record
type UpdateOption struct {
	Status Status
	Memo   string
}

func (m *Manager) update(ctx context.Context, locate func(tx *gorm.DB) *gorm.DB, opt UpdateOption) (*RecordResult, error) {
	if err := validateStatus(opt.Status); err != nil {
		return nil, err
	}
	result := &RecordResult{}
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record Attendance
		res := locate(tx.Clauses(clause.Locking{Strength: "UPDATE"})).First(&record)
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if res.Error != nil {
			return extErrors.Wrap(res.Error, "Cannot lock attendance")
		}
		record.Status = opt.Status
		record.Memo = opt.Memo
		record.UpdatedAt = time.Now().UTC()
		if err := m.charge(ctx, tx, &record, result); err != nil {
			return err
		}
		if res := tx.Save(&record); res.Error != nil {
			return extErrors.Wrap(res.Error, "Cannot update attendance")
		}
		result.Attendance = &record
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.publishCharge(ctx, result)
	return result, nil
}

// Update changes the status and memo of a record. Moving an uncharged record to a consuming
// status charges the covering subscription; moving away from one does not refund it.
func (m *Manager) Update(ctx context.Context, id string, opt UpdateOption) (*RecordResult, error) {
	result, err := m.update(ctx, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id = ?", id)
	}, opt)
	if err != nil {
		m.logFailure(m.Logger.With(zap.String("AttendanceID", id)), "Unable to update attendance", err)
	}
	return result, err
}

// BulkEntry is the outcome of one student in a bulk recording. Status defaults to absent.
type BulkEntry struct {
	StudentID string `json:"studentId" validate:"required"`
	Status    Status `json:"status" validate:"omitempty,oneof=present absent late excused makeup"`
	Memo      string `json:"memo" validate:"max=1000"`
}

// BulkOption records one class meeting for many students
type BulkOption struct {
	ClassID string
	Date    spec.Date
	Entries []BulkEntry
}

// BulkError reports an entry that could not be stored
type BulkError struct {
	StudentID string `json:"studentId"`
	Error     string `json:"error"`
}

// BulkResult lists what RecordBulk created, updated and rejected
type BulkResult struct {
	Created []RecordResult `json:"created"`
	Updated []RecordResult `json:"updated"`
	Errors  []BulkError    `json:"errors"`
}

// RecordBulk creates or updates the record of every entry for the class meeting. Entries are
// stored independently; a failing entry is reported in Errors and does not stop the others.
func (m *Manager) RecordBulk(ctx context.Context, opt BulkOption) (*BulkResult, error) {
	if strings.TrimSpace(opt.ClassID) == "" {
		return nil, &subscription.ValidationError{Field: "classId", Reason: "is required"}
	}
	if opt.Date.IsZero() {
		return nil, &subscription.ValidationError{Field: "date", Reason: "is required"}
	}

	result := &BulkResult{
		Created: make([]RecordResult, 0, len(opt.Entries)),
		Updated: make([]RecordResult, 0),
		Errors:  make([]BulkError, 0),
	}
	for _, entry := range opt.Entries {
		if entry.Status == "" {
			entry.Status = StatusAbsent
		}
		created, res, err := m.upsert(ctx, RecordOption{
			StudentID: entry.StudentID,
			ClassID:   opt.ClassID,
			Date:      opt.Date,
			Status:    entry.Status,
			Memo:      entry.Memo,
		})
		switch {
		case err != nil:
			result.Errors = append(result.Errors, BulkError{StudentID: entry.StudentID, Error: err.Error()})
		case created:
			result.Created = append(result.Created, *res)
		default:
			result.Updated = append(result.Updated, *res)
		}
	}
	return result, nil
}

func (m *Manager) upsert(ctx context.Context, opt RecordOption) (bool, *RecordResult, error) {
	res, err := m.Record(ctx, opt)
	if !errors.Is(err, ErrDuplicate) {
		return err == nil, res, err
	}
	res, err = m.update(ctx, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("student_id = ? AND class_id = ? AND date = ?", opt.StudentID, opt.ClassID, opt.Date)
	}, UpdateOption{Status: opt.Status, Memo: opt.Memo})
	return false, res, err
}

// Get returns the attendance record by id
func (m *Manager) Get(ctx context.Context, id string) (*Attendance, error) {
	var record Attendance
	res := m.DB.WithContext(ctx).First(&record, "id = ?", id)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if res.Error != nil {
		return nil, extErrors.Wrap(res.Error, "Cannot get attendance")
	}
	return &record, nil
}

// ListOption filters the attendance records returned by List. Zero values do not filter.
type ListOption struct {
	StudentID string
	ClassID   string
	From      spec.Date
	To        spec.Date
	Status    Status
}

func (o *ListOption) apply(query *gorm.DB) *gorm.DB {
	if o.StudentID != "" {
		query = query.Where("student_id = ?", o.StudentID)
	}
	if o.ClassID != "" {
		query = query.Where("class_id = ?", o.ClassID)
	}
	if !o.From.IsZero() {
		query = query.Where("date >= ?", o.From)
	}
	if !o.To.IsZero() {
		query = query.Where("date <= ?", o.To)
	}
	if o.Status != "" {
		query = query.Where("status = ?", o.Status)
	}
	return query
}

// List returns attendance records, most recent date first
func (m *Manager) List(ctx context.Context, opt ListOption) ([]Attendance, error) {
	query := opt.apply(m.DB.WithContext(ctx).Model(&Attendance{})).
		Order("date desc").
		Order("created_at desc")

	results := make([]Attendance, 0, 1)
	if res := query.Find(&results); res.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(res.Error),
		)
		return nil, extErrors.Wrap(res.Error, "Cannot list attendance")
	}
	return results, nil
}

// Stats counts the attendance records matching opt by status
func (m *Manager) Stats(ctx context.Context, opt ListOption) (*Stats, error) {
	type row struct {
		Status Status
		Count  int64
	}
	var rows []row
	res := opt.apply(m.DB.WithContext(ctx).Model(&Attendance{})).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows)
	if res.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(res.Error),
		)
		return nil, extErrors.Wrap(res.Error, "Cannot compute attendance stats")
	}

	stats := &Stats{}
	for _, r := range rows {
		stats.add(r.Status, r.Count)
	}
	stats.computeRate()
	return stats, nil
}
