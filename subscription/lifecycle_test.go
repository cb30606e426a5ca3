package subscription

import (
	"testing"
	"time"

	"github.com/zllovesuki/studio/spec"

	"github.com/shopspring/decimal"
	"gotest.tools/assert"
)

var testNow = time.Date(2024, time.January, 5, 9, 0, 0, 0, time.UTC)

func intPtr(v int) *int {
	return &v
}

func daysOption(start, end string) CreateOption {
	return CreateOption{
		StudentID:     "student-1",
		ClassID:       "class-1",
		Type:          TypeDays,
		StartDate:     spec.MustParseDate(start),
		EndDate:       spec.MustParseDate(end),
		PricePaid:     decimal.RequireFromString("120000"),
		PaymentMethod: "card",
	}
}

func countsOption(total, remaining *int) CreateOption {
	opt := daysOption("2024-01-01", "2024-03-01")
	opt.Type = TypeCounts
	opt.TotalClasses = total
	opt.RemainingClasses = remaining
	return opt
}

func activeDays(t *testing.T, start, end string) *Subscription {
	sub, err := newSubscription(daysOption(start, end), testNow)
	assert.NilError(t, err)
	return sub
}

func pauseOption(start, end string) PauseOption {
	return PauseOption{
		StartDate: spec.MustParseDate(start),
		EndDate:   spec.MustParseDate(end),
		Reason:    "travel",
	}
}

func TestCreateDays(t *testing.T) {
	sub := activeDays(t, "2024-01-01", "2024-02-01")
	assert.Equal(t, sub.Status, StatusActive)
	assert.Assert(t, sub.EndDate.After(sub.StartDate))
	assert.Assert(t, sub.TotalClasses == nil)
	assert.Assert(t, sub.RemainingClasses == nil)
	assert.Assert(t, sub.ID != "")
}

func TestCreateRejectsInvertedRange(t *testing.T) {
	for _, tc := range []struct {
		name       string
		start, end string
	}{
		{"equal", "2024-01-01", "2024-01-01"},
		{"inverted", "2024-02-01", "2024-01-01"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newSubscription(daysOption(tc.start, tc.end), testNow)
			assert.Assert(t, IsValidation(err))
		})
	}
}

func TestCreateRequiresDates(t *testing.T) {
	opt := daysOption("2024-01-01", "2024-02-01")
	opt.EndDate = spec.Date{}
	_, err := newSubscription(opt, testNow)
	assert.Assert(t, IsValidation(err))
}

func TestCreateCountsWithoutTotal(t *testing.T) {
	_, err := newSubscription(countsOption(nil, nil), testNow)
	assert.Assert(t, IsValidation(err))

	_, err = newSubscription(countsOption(intPtr(0), nil), testNow)
	assert.Assert(t, IsValidation(err))
}

func TestCreateCountsDefaultsRemaining(t *testing.T) {
	sub, err := newSubscription(countsOption(intPtr(10), nil), testNow)
	assert.NilError(t, err)
	assert.Equal(t, *sub.TotalClasses, 10)
	assert.Equal(t, *sub.RemainingClasses, 10)

	sub, err = newSubscription(countsOption(intPtr(10), intPtr(0)), testNow)
	assert.NilError(t, err)
	assert.Equal(t, *sub.RemainingClasses, 10)

	sub, err = newSubscription(countsOption(intPtr(10), intPtr(4)), testNow)
	assert.NilError(t, err)
	assert.Equal(t, *sub.RemainingClasses, 4)
}

func TestCreateCountsRemainingAboveTotal(t *testing.T) {
	_, err := newSubscription(countsOption(intPtr(10), intPtr(11)), testNow)
	assert.Assert(t, IsValidation(err))
}

func TestCreateDaysWithCounts(t *testing.T) {
	opt := daysOption("2024-01-01", "2024-02-01")
	opt.TotalClasses = intPtr(5)
	_, err := newSubscription(opt, testNow)
	assert.Assert(t, IsValidation(err))
}

func TestCreateRejectsNegativePrice(t *testing.T) {
	opt := daysOption("2024-01-01", "2024-02-01")
	opt.PricePaid = decimal.NewFromInt(-1)
	_, err := newSubscription(opt, testNow)
	assert.Assert(t, IsValidation(err))
}

func TestPauseLeavesEndDate(t *testing.T) {
	sub := activeDays(t, "2024-01-01", "2024-02-01")
	p, err := sub.pause(pauseOption("2024-01-10", "2024-01-20"), testNow)
	assert.NilError(t, err)
	assert.Equal(t, sub.Status, StatusPaused)
	assert.Equal(t, sub.EndDate.String(), "2024-02-01")
	assert.Equal(t, p.SubscriptionID, sub.ID)
	assert.Equal(t, p.Days(), 10)
}

func TestPauseRequiresActive(t *testing.T) {
	for _, status := range []Status{StatusPaused, StatusExpired, StatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			sub := activeDays(t, "2024-01-01", "2024-02-01")
			sub.Status = status
			_, err := sub.pause(pauseOption("2024-01-10", "2024-01-20"), testNow)
			assert.Assert(t, IsState(err))
			assert.Equal(t, sub.Status, status)
		})
	}
}

func TestPauseValidatesBeforeState(t *testing.T) {
	sub := activeDays(t, "2024-01-01", "2024-02-01")
	sub.Status = StatusExpired
	_, err := sub.pause(pauseOption("2024-01-20", "2024-01-10"), testNow)
	assert.Assert(t, IsValidation(err))
}

func TestResumeShiftsEndDate(t *testing.T) {
	sub := activeDays(t, "2024-01-01", "2024-02-01")
	p, err := sub.pause(pauseOption("2024-01-10", "2024-01-20"), testNow)
	assert.NilError(t, err)

	assert.NilError(t, sub.resume(p, testNow))
	assert.Equal(t, sub.Status, StatusActive)
	assert.Equal(t, sub.EndDate.String(), "2024-02-11")
}

func TestResumeAccumulatesAcrossPauses(t *testing.T) {
	sub := activeDays(t, "2024-01-01", "2024-02-01")

	p, err := sub.pause(pauseOption("2024-01-05", "2024-01-10"), testNow)
	assert.NilError(t, err)
	assert.NilError(t, sub.resume(p, testNow))

	p, err = sub.pause(pauseOption("2024-01-15", "2024-01-18"), testNow)
	assert.NilError(t, err)
	assert.NilError(t, sub.resume(p, testNow))

	assert.Equal(t, sub.EndDate.String(), "2024-02-09")
}

func TestResumeRequiresPaused(t *testing.T) {
	sub := activeDays(t, "2024-01-01", "2024-02-01")
	p := &Pause{StartDate: spec.MustParseDate("2024-01-10"), EndDate: spec.MustParseDate("2024-01-20")}
	err := sub.resume(p, testNow)
	assert.Assert(t, IsState(err))
	assert.Equal(t, sub.EndDate.String(), "2024-02-01")
}

func TestResumeWithoutPause(t *testing.T) {
	sub := activeDays(t, "2024-01-01", "2024-02-01")
	sub.Status = StatusPaused
	err := sub.resume(nil, testNow)
	assert.Assert(t, IsState(err))
	assert.Equal(t, sub.Status, StatusPaused)
}

func TestExtend(t *testing.T) {
	sub := activeDays(t, "2024-01-01", "2024-03-01")
	assert.NilError(t, sub.extend(15, testNow))
	assert.Equal(t, sub.EndDate.String(), "2024-03-16")
	assert.Equal(t, sub.Status, StatusActive)
}

func TestExtendPausedKeepsStatus(t *testing.T) {
	sub := activeDays(t, "2024-01-01", "2024-03-01")
	sub.Status = StatusPaused
	assert.NilError(t, sub.extend(1, testNow))
	assert.Equal(t, sub.Status, StatusPaused)
	assert.Equal(t, sub.EndDate.String(), "2024-03-02")
}

func TestExtendRejectsNonPositiveDays(t *testing.T) {
	sub := activeDays(t, "2024-01-01", "2024-03-01")
	assert.Assert(t, IsValidation(sub.extend(0, testNow)))
	assert.Assert(t, IsValidation(sub.extend(-3, testNow)))
	assert.Equal(t, sub.EndDate.String(), "2024-03-01")
}

func TestExtendTerminal(t *testing.T) {
	sub := activeDays(t, "2024-01-01", "2024-03-01")
	sub.Status = StatusExpired
	assert.Assert(t, IsState(sub.extend(5, testNow)))
}

func TestCancel(t *testing.T) {
	sub := activeDays(t, "2024-01-01", "2024-03-01")
	assert.NilError(t, sub.cancel(testNow))
	assert.Equal(t, sub.Status, StatusCancelled)
	assert.Assert(t, IsState(sub.cancel(testNow)))

	sub = activeDays(t, "2024-01-01", "2024-03-01")
	sub.Status = StatusExpired
	assert.Assert(t, IsState(sub.cancel(testNow)))
}

func TestConsumeToZeroExpires(t *testing.T) {
	sub, err := newSubscription(countsOption(intPtr(2), nil), testNow)
	assert.NilError(t, err)

	consumed, err := sub.consume(testNow)
	assert.NilError(t, err)
	assert.Assert(t, consumed)
	assert.Equal(t, *sub.RemainingClasses, 1)
	assert.Equal(t, sub.Status, StatusActive)

	consumed, err = sub.consume(testNow)
	assert.NilError(t, err)
	assert.Assert(t, consumed)
	assert.Equal(t, *sub.RemainingClasses, 0)
	assert.Equal(t, sub.Status, StatusExpired)

	_, err = sub.consume(testNow)
	assert.Assert(t, IsState(err))
	assert.Equal(t, *sub.RemainingClasses, 0)
}

func TestConsumeDaysIsNotMetered(t *testing.T) {
	sub := activeDays(t, "2024-01-01", "2024-03-01")
	consumed, err := sub.consume(testNow)
	assert.NilError(t, err)
	assert.Assert(t, !consumed)
	assert.Equal(t, sub.Status, StatusActive)
}

func TestConsumePaused(t *testing.T) {
	sub, err := newSubscription(countsOption(intPtr(2), nil), testNow)
	assert.NilError(t, err)
	sub.Status = StatusPaused
	_, err = sub.consume(testNow)
	assert.Assert(t, IsState(err))
	assert.Equal(t, *sub.RemainingClasses, 2)
}

func TestExpireAsOf(t *testing.T) {
	asOf := spec.MustParseDate("2024-02-01")

	sub := activeDays(t, "2024-01-01", "2024-01-31")
	assert.Assert(t, sub.expireAsOf(asOf, testNow))
	assert.Equal(t, sub.Status, StatusExpired)
	assert.Assert(t, !sub.expireAsOf(asOf, testNow))

	// last day is still usable
	sub = activeDays(t, "2024-01-01", "2024-02-01")
	assert.Assert(t, !sub.expireAsOf(asOf, testNow))

	sub = activeDays(t, "2024-01-01", "2024-01-15")
	sub.Status = StatusPaused
	assert.Assert(t, !sub.expireAsOf(asOf, testNow))
	assert.Equal(t, sub.Status, StatusPaused)
}

func TestDaysRemaining(t *testing.T) {
	sub := activeDays(t, "2024-01-01", "2024-01-31")
	sub.computeDaysRemaining(spec.MustParseDate("2024-01-21"))
	assert.Equal(t, *sub.DaysRemaining, 10)

	sub.Status = StatusCancelled
	sub.computeDaysRemaining(spec.MustParseDate("2024-01-21"))
	assert.Assert(t, sub.DaysRemaining == nil)
}

func TestCreateRejectsEndAfterMaxDate(t *testing.T) {
	opt := daysOption("9999-01-01", "9999-12-31")
	_, err := newSubscription(opt, testNow)
	assert.NilError(t, err)

	opt.EndDate = spec.MaxDate.AddDays(1)
	_, err = newSubscription(opt, testNow)
	assert.Assert(t, IsValidation(err))
}

func TestExtendBoundsDays(t *testing.T) {
	sub := activeDays(t, "2024-01-01", "2024-03-01")
	assert.Assert(t, IsValidation(sub.extend(spec.MaxExtendDays+1, testNow)))
	assert.Equal(t, sub.EndDate.String(), "2024-03-01")

	assert.NilError(t, sub.extend(spec.MaxExtendDays, testNow))
	assert.Equal(t, sub.EndDate.String(), spec.MustParseDate("2024-03-01").AddDays(spec.MaxExtendDays).String())
}

func TestExtendPastMaxDate(t *testing.T) {
	sub := activeDays(t, "9999-01-01", "9999-12-25")
	assert.Assert(t, IsValidation(sub.extend(10, testNow)))
	assert.Equal(t, sub.EndDate.String(), "9999-12-25")

	assert.NilError(t, sub.extend(6, testNow))
	assert.Equal(t, sub.EndDate.String(), "9999-12-31")
	assert.Assert(t, IsValidation(sub.extend(1, testNow)))
}

func TestResumePastMaxDate(t *testing.T) {
	sub := activeDays(t, "9999-01-01", "9999-12-25")
	p, err := sub.pause(pauseOption("9999-12-01", "9999-12-20"), testNow)
	assert.NilError(t, err)

	assert.Assert(t, IsValidation(sub.resume(p, testNow)))
	assert.Equal(t, sub.Status, StatusPaused)
	assert.Equal(t, sub.EndDate.String(), "9999-12-25")
}
