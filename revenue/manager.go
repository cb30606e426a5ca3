package revenue

import (
	"context"
	"fmt"
	"time"

	"github.com/zllovesuki/studio/subscription"

	extErrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sumPrice    = "COALESCE(SUM(subscriptions.price_paid), 0)"
	countActive = "COUNT(CASE WHEN subscriptions.status = 'active' THEN 1 END)"
)

// Manager computes revenue statistics over recorded subscriptions
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for revenue statistics
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if db == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

func (m *Manager) subscriptions(ctx context.Context, r Range) *gorm.DB {
	return r.apply(m.db.WithContext(ctx).Model(&subscription.Subscription{}))
}

// Summary returns the revenue of every subscription purchased within r
func (m *Manager) Summary(ctx context.Context, r Range) (*Summary, error) {
	var totals struct {
		Revenue decimal.Decimal
		Total   int64
		Active  int64
		Average decimal.Decimal
	}
	res := m.subscriptions(ctx, r).
		Select(sumPrice + " AS revenue, COUNT(*) AS total, " + countActive + " AS active, COALESCE(AVG(subscriptions.price_paid), 0) AS average").
		Scan(&totals)
	if res.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(res.Error),
		)
		return nil, extErrors.Wrap(res.Error, "Cannot compute revenue summary")
	}

	byType := make([]TypeRevenue, 0, 2)
	res = m.subscriptions(ctx, r).
		Select("subscriptions.type AS type, " + sumPrice + " AS revenue, COUNT(*) AS count").
		Group("subscriptions.type").
		Order("type asc").
		Scan(&byType)
	if res.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(res.Error),
		)
		return nil, extErrors.Wrap(res.Error, "Cannot compute revenue by subscription type")
	}

	return &Summary{
		TotalRevenue:        totals.Revenue,
		TotalSubscriptions:  totals.Total,
		ActiveSubscriptions: totals.Active,
		AveragePrice:        totals.Average.Round(2),
		ByType:              byType,
	}, nil
}

// ByClass returns the revenue of one class within r, with a per-day breakdown
func (m *Manager) ByClass(ctx context.Context, classID string, r Range) (*ClassRevenue, error) {
	if len(classID) == 0 {
		return nil, fmt.Errorf("empty classID is invalid")
	}

	var totals struct {
		Revenue decimal.Decimal
		Total   int64
		Active  int64
	}
	res := m.subscriptions(ctx, r).
		Where("subscriptions.class_id = ?", classID).
		Select(sumPrice + " AS revenue, COUNT(*) AS total, " + countActive + " AS active").
		Scan(&totals)
	if res.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(res.Error),
		)
		return nil, extErrors.Wrap(res.Error, "Cannot compute class revenue")
	}

	daily := make([]DailyRevenue, 0, 1)
	res = m.subscriptions(ctx, r).
		Where("subscriptions.class_id = ?", classID).
		Select("DATE(subscriptions.created_at) AS date, " + sumPrice + " AS revenue, COUNT(*) AS subscriptions").
		Group("DATE(subscriptions.created_at)").
		Order("date asc").
		Scan(&daily)
	if res.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(res.Error),
		)
		return nil, extErrors.Wrap(res.Error, "Cannot compute daily class revenue")
	}

	return &ClassRevenue{
		ClassID:             classID,
		TotalRevenue:        totals.Revenue,
		TotalSubscriptions:  totals.Total,
		ActiveSubscriptions: totals.Active,
		Daily:               daily,
	}, nil
}

// monthOf is the dialect specific expression truncating the purchase time to YYYY-MM
func (m *Manager) monthOf() string {
	if m.db.Dialector.Name() == "postgres" {
		return "to_char(subscriptions.created_at, 'YYYY-MM')"
	}
	return "strftime('%Y-%m', subscriptions.created_at)"
}

// MonthlyOption selects the purchases included by Monthly. Year zero includes every year,
// Month zero every month of Year. Month is ignored without Year.
type MonthlyOption struct {
	Year  int
	Month time.Month
}

func (o MonthlyOption) Range() (Range, error) {
	if o.Year == 0 {
		return Range{}, nil
	}
	if o.Year < 1 || o.Year > 9999 {
		return Range{}, fmt.Errorf("year %d is invalid", o.Year)
	}
	if o.Month == 0 {
		from := time.Date(o.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return Range{From: from, To: from.AddDate(1, 0, 0).Add(-time.Nanosecond)}, nil
	}
	if o.Month < time.January || o.Month > time.December {
		return Range{}, fmt.Errorf("month %d is invalid", o.Month)
	}
	from := time.Date(o.Year, o.Month, 1, 0, 0, 0, 0, time.UTC)
	return Range{From: from, To: from.AddDate(0, 1, 0).Add(-time.Nanosecond)}, nil
}

// Monthly returns the revenue per purchase month, oldest month first
func (m *Manager) Monthly(ctx context.Context, opt MonthlyOption) ([]MonthlyRevenue, error) {
	r, err := opt.Range()
	if err != nil {
		return nil, err
	}
	month := m.monthOf()
	results := make([]MonthlyRevenue, 0, 12)
	res := m.subscriptions(ctx, r).
		Select(month + " AS month, " + sumPrice + " AS revenue, COUNT(*) AS subscriptions").
		Group(month).
		Order("month asc").
		Scan(&results)
	if res.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(res.Error),
		)
		return nil, extErrors.Wrap(res.Error, "Cannot compute monthly revenue")
	}
	return results, nil
}

// ByInstructor returns the revenue of every class taught by the instructor within r,
// highest earning class first
func (m *Manager) ByInstructor(ctx context.Context, instructorID string, r Range) (*InstructorRevenue, error) {
	if len(instructorID) == 0 {
		return nil, fmt.Errorf("empty instructorID is invalid")
	}
	taught := func() *gorm.DB {
		return m.subscriptions(ctx, r).
			Joins("JOIN classes ON classes.id = subscriptions.class_id").
			Where("classes.instructor_id = ?", instructorID)
	}

	var totals struct {
		Revenue decimal.Decimal
		Total   int64
		Classes int64
	}
	res := taught().
		Select(sumPrice + " AS revenue, COUNT(*) AS total, COUNT(DISTINCT subscriptions.class_id) AS classes").
		Scan(&totals)
	if res.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(res.Error),
		)
		return nil, extErrors.Wrap(res.Error, "Cannot compute instructor revenue")
	}

	classes := make([]ClassShare, 0, 1)
	res = taught().
		Select("subscriptions.class_id AS class_id, classes.name AS class_name, " + sumPrice + " AS revenue, COUNT(*) AS subscriptions").
		Group("subscriptions.class_id, classes.name").
		Order("revenue desc").
		Order("class_name asc").
		Scan(&classes)
	if res.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(res.Error),
		)
		return nil, extErrors.Wrap(res.Error, "Cannot compute instructor revenue by class")
	}

	return &InstructorRevenue{
		InstructorID:       instructorID,
		TotalRevenue:       totals.Revenue,
		TotalSubscriptions: totals.Total,
		TotalClasses:       totals.Classes,
		Classes:            classes,
	}, nil
}
