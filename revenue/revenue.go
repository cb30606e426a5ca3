package revenue

import (
	"time"

	"github.com/zllovesuki/studio/spec"
	"github.com/zllovesuki/studio/subscription"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Range bounds the purchase time of the subscriptions included. Zero values are open ends.
type Range struct {
	From time.Time
	To   time.Time
}

func (r Range) apply(query *gorm.DB) *gorm.DB {
	if !r.From.IsZero() {
		query = query.Where("subscriptions.created_at >= ?", r.From)
	}
	if !r.To.IsZero() {
		query = query.Where("subscriptions.created_at <= ?", r.To)
	}
	return query
}

// TypeRevenue is the revenue of one subscription type
type TypeRevenue struct {
	Type    subscription.Type `json:"subscriptionType"`
	Revenue decimal.Decimal   `json:"revenue"`
	Count   int64             `json:"count"`
}

// Summary is the revenue over all classes
type Summary struct {
	TotalRevenue        decimal.Decimal `json:"totalRevenue"`
	TotalSubscriptions  int64           `json:"totalSubscriptions"`
	ActiveSubscriptions int64           `json:"activeSubscriptions"`
	AveragePrice        decimal.Decimal `json:"avgPrice"`
	ByType              []TypeRevenue   `json:"subscriptionTypes"`
}

// DailyRevenue is the revenue of subscriptions purchased on one date
type DailyRevenue struct {
	Date          spec.Date       `json:"date"`
	Revenue       decimal.Decimal `json:"revenue"`
	Subscriptions int64           `json:"subscriptions"`
}

// ClassRevenue is the revenue of one class
type ClassRevenue struct {
	ClassID             string          `json:"classId"`
	TotalRevenue        decimal.Decimal `json:"totalRevenue"`
	TotalSubscriptions  int64           `json:"totalSubscriptions"`
	ActiveSubscriptions int64           `json:"activeSubscriptions"`
	Daily               []DailyRevenue  `json:"dailyData"`
}

// MonthlyRevenue is the revenue of subscriptions purchased in one calendar month
type MonthlyRevenue struct {
	Month         string          `json:"month"` // YYYY-MM
	Revenue       decimal.Decimal `json:"revenue"`
	Subscriptions int64           `json:"subscriptions"`
}

// ClassShare is the revenue of one class of an instructor
type ClassShare struct {
	ClassID       string          `json:"classId"`
	ClassName     string          `json:"className"`
	Revenue       decimal.Decimal `json:"revenue"`
	Subscriptions int64           `json:"subscriptions"`
}

// InstructorRevenue is the revenue of the classes taught by one instructor
type InstructorRevenue struct {
	InstructorID       string          `json:"instructorId"`
	TotalRevenue       decimal.Decimal `json:"totalRevenue"`
	TotalSubscriptions int64           `json:"totalSubscriptions"`
	TotalClasses       int64           `json:"totalClasses"`
	Classes            []ClassShare    `json:"classData"`
}
