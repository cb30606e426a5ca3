package makeup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zllovesuki/studio/attendance"
	"github.com/zllovesuki/studio/class"
	"github.com/zllovesuki/studio/db"
	"github.com/zllovesuki/studio/notification"
	"github.com/zllovesuki/studio/spec"
	"github.com/zllovesuki/studio/subscription"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gotest.tools/assert"
)

type testEnv struct {
	subs          *subscription.Manager
	attendance    *attendance.Manager
	notifications *notification.Manager
	manager       *Manager
	original      *class.Class
	makeup        *class.Class
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	gormDB, err := db.New(db.Options{
		URI:    "sqlite://" + filepath.Join(t.TempDir(), "test.db"),
		Logger: zap.NewNop(),
	})
	assert.NilError(t, err)
	t.Cleanup(func() {
		if pool, err := gormDB.DB(); err == nil {
			pool.Close()
		}
	})

	classes, err := class.NewManager(zap.NewNop(), gormDB)
	assert.NilError(t, err)
	original, err := classes.Create(ctx, class.CreateOption{Name: "Ballet I"})
	assert.NilError(t, err)
	makeup, err := classes.Create(ctx, class.CreateOption{Name: "Ballet II"})
	assert.NilError(t, err)

	subs, err := subscription.NewManager(subscription.ManagerOptions{
		DB:     gormDB,
		Logger: zap.NewNop(),
		Clock: func() time.Time {
			return time.Date(2024, time.January, 5, 9, 0, 0, 0, time.UTC)
		},
	})
	assert.NilError(t, err)

	attendanceManager, err := attendance.NewManager(attendance.ManagerOptions{
		DB:                  gormDB,
		Logger:              zap.NewNop(),
		SubscriptionManager: subs,
	})
	assert.NilError(t, err)

	notifications, err := notification.NewManager(notification.ManagerOptions{
		DB:     gormDB,
		Logger: zap.NewNop(),
	})
	assert.NilError(t, err)

	m, err := NewManager(ManagerOptions{
		DB:                  gormDB,
		Logger:              zap.NewNop(),
		AttendanceManager:   attendanceManager,
		ClassManager:        classes,
		NotificationManager: notifications,
	})
	assert.NilError(t, err)

	return &testEnv{
		subs:          subs,
		attendance:    attendanceManager,
		notifications: notifications,
		manager:       m,
		original:      original,
		makeup:        makeup,
	}
}

// countsSubscription covers the makeup class for student-1
func (env *testEnv) countsSubscription(t *testing.T, total int) *subscription.Subscription {
	t.Helper()
	sub, err := env.subs.Create(context.Background(), subscription.CreateOption{
		StudentID:    "student-1",
		ClassID:      env.makeup.ID,
		Type:         subscription.TypeCounts,
		StartDate:    spec.MustParseDate("2024-01-01"),
		EndDate:      spec.MustParseDate("2024-03-01"),
		TotalClasses: &total,
		PricePaid:    decimal.NewFromInt(100000),
	})
	assert.NilError(t, err)
	return sub
}

func (env *testEnv) request(t *testing.T) *MakeupClass {
	t.Helper()
	mk, err := env.manager.Request(context.Background(), RequestOption{
		StudentID:       "student-1",
		OriginalClassID: env.original.ID,
		OriginalDate:    spec.MustParseDate("2024-01-08"),
		MakeupClassID:   env.makeup.ID,
		MakeupDate:      spec.MustParseDate("2024-01-10"),
		Reason:          "family trip",
	})
	assert.NilError(t, err)
	return mk
}

func (env *testEnv) makeupNotifications(t *testing.T) []notification.Notification {
	t.Helper()
	all, err := env.notifications.List(context.Background(), notification.ListOption{UserID: "student-1"})
	assert.NilError(t, err)
	makeups := make([]notification.Notification, 0, len(all))
	for _, n := range all {
		if n.Kind == notification.KindMakeupStatus {
			makeups = append(makeups, n)
		}
	}
	return makeups
}

func TestRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	mk := env.request(t)
	assert.Equal(t, mk.Status, StatusPending)
	assert.Assert(t, mk.AttendanceID == nil)

	stored, err := env.manager.Get(ctx, mk.ID)
	assert.NilError(t, err)
	assert.Equal(t, stored.Reason, "family trip")
	assert.Equal(t, stored.MakeupDate.String(), "2024-01-10")

	_, err = env.manager.Get(ctx, "missing")
	assert.Equal(t, err, ErrNotFound)
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	valid := RequestOption{
		StudentID:       "student-1",
		OriginalClassID: env.original.ID,
		OriginalDate:    spec.MustParseDate("2024-01-08"),
		MakeupClassID:   env.makeup.ID,
		MakeupDate:      spec.MustParseDate("2024-01-10"),
		Reason:          "sick",
	}

	for name, mutate := range map[string]func(o *RequestOption){
		"missing student":     func(o *RequestOption) { o.StudentID = "" },
		"missing reason":      func(o *RequestOption) { o.Reason = "  " },
		"missing makeup date": func(o *RequestOption) { o.MakeupDate = spec.Date{} },
		"unknown class":       func(o *RequestOption) { o.MakeupClassID = "class-404" },
	} {
		opt := valid
		mutate(&opt)
		_, err := env.manager.Request(ctx, opt)
		assert.Assert(t, subscription.IsValidation(err), name)
	}
}

func TestApproveAndComplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.countsSubscription(t, 4)
	mk := env.request(t)

	_, err := env.manager.Complete(ctx, mk.ID)
	var sErr *StateError
	assert.Assert(t, errors.As(err, &sErr))
	assert.Equal(t, sErr.Status, StatusPending)

	approved, err := env.manager.Approve(ctx, mk.ID)
	assert.NilError(t, err)
	assert.Equal(t, approved.Status, StatusApproved)

	_, err = env.manager.Approve(ctx, mk.ID)
	assert.Assert(t, errors.As(err, &sErr))

	res, err := env.manager.Complete(ctx, mk.ID)
	assert.NilError(t, err)
	assert.Equal(t, res.MakeupClass.Status, StatusCompleted)
	assert.Assert(t, res.MakeupClass.AttendanceID != nil)
	assert.Assert(t, res.Attendance.Consumed)
	assert.Equal(t, res.Attendance.Attendance.Status, attendance.StatusMakeup)
	assert.Equal(t, res.Attendance.Attendance.ClassID, env.makeup.ID)
	assert.Equal(t, res.Attendance.Attendance.Date.String(), "2024-01-10")
	assert.Equal(t, res.Attendance.Attendance.Memo, "makeup for 2024-01-08")

	reloaded, err := env.subs.Get(ctx, subscription.GetOption{SubscriptionID: sub.ID})
	assert.NilError(t, err)
	assert.Equal(t, *reloaded.RemainingClasses, 3)

	record, err := env.attendance.Get(ctx, *res.MakeupClass.AttendanceID)
	assert.NilError(t, err)
	assert.Assert(t, record.Charged)

	_, err = env.manager.Reject(ctx, mk.ID)
	assert.Assert(t, errors.As(err, &sErr))
	assert.Equal(t, sErr.Status, StatusCompleted)

	sent := env.makeupNotifications(t)
	assert.Equal(t, len(sent), 2)
	assert.Equal(t, sent[0].Link, "/makeups/"+mk.ID)
	assert.Assert(t, strings.Contains(sent[0].Message, "Ballet II"))
}

func TestCompleteRollsBackOnDuplicateAttendance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.countsSubscription(t, 4)
	mk := env.request(t)

	_, err := env.attendance.Record(ctx, attendance.RecordOption{
		StudentID: "student-1",
		ClassID:   env.makeup.ID,
		Date:      spec.MustParseDate("2024-01-10"),
		Status:    attendance.StatusPresent,
	})
	assert.NilError(t, err)

	_, err = env.manager.Approve(ctx, mk.ID)
	assert.NilError(t, err)

	_, err = env.manager.Complete(ctx, mk.ID)
	assert.Equal(t, err, attendance.ErrDuplicate)

	stored, err := env.manager.Get(ctx, mk.ID)
	assert.NilError(t, err)
	assert.Equal(t, stored.Status, StatusApproved)
	assert.Assert(t, stored.AttendanceID == nil)

	reloaded, err := env.subs.Get(ctx, subscription.GetOption{SubscriptionID: sub.ID})
	assert.NilError(t, err)
	assert.Equal(t, *reloaded.RemainingClasses, 3)
}

func TestReject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pending := env.request(t)
	rejected, err := env.manager.Reject(ctx, pending.ID)
	assert.NilError(t, err)
	assert.Equal(t, rejected.Status, StatusRejected)

	approved := env.request(t)
	_, err = env.manager.Approve(ctx, approved.ID)
	assert.NilError(t, err)
	rejected, err = env.manager.Reject(ctx, approved.ID)
	assert.NilError(t, err)
	assert.Equal(t, rejected.Status, StatusRejected)

	var sErr *StateError
	_, err = env.manager.Approve(ctx, rejected.ID)
	assert.Assert(t, errors.As(err, &sErr))

	_, err = env.manager.Reject(ctx, "missing")
	assert.Equal(t, err, ErrNotFound)

	sent := env.makeupNotifications(t)
	assert.Equal(t, len(sent), 3)
	for _, n := range sent {
		assert.Assert(t, n.Title != "")
	}
}

func TestNotifyRespectsPreference(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pref := notification.DefaultPreference("student-1")
	pref.MakeupStatus = false
	_, err := env.notifications.UpdatePreference(ctx, pref)
	assert.NilError(t, err)

	mk := env.request(t)
	_, err = env.manager.Approve(ctx, mk.ID)
	assert.NilError(t, err)
	assert.Equal(t, len(env.makeupNotifications(t)), 0)
}

func TestList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.request(t)
	_, err := env.manager.Request(ctx, RequestOption{
		StudentID:       "student-2",
		OriginalClassID: env.original.ID,
		OriginalDate:    spec.MustParseDate("2024-02-01"),
		MakeupClassID:   env.makeup.ID,
		MakeupDate:      spec.MustParseDate("2024-02-03"),
		Reason:          "exam",
	})
	assert.NilError(t, err)
	_, err = env.manager.Approve(ctx, first.ID)
	assert.NilError(t, err)

	all, err := env.manager.List(ctx, ListOption{})
	assert.NilError(t, err)
	assert.Equal(t, len(all), 2)

	approved, err := env.manager.List(ctx, ListOption{Status: StatusApproved})
	assert.NilError(t, err)
	assert.Equal(t, len(approved), 1)
	assert.Equal(t, approved[0].ID, first.ID)

	byStudent, err := env.manager.List(ctx, ListOption{StudentID: "student-2"})
	assert.NilError(t, err)
	assert.Equal(t, len(byStudent), 1)

	// matches on the makeup date only
	ranged, err := env.manager.List(ctx, ListOption{From: spec.MustParseDate("2024-01-09"), To: spec.MustParseDate("2024-01-31")})
	assert.NilError(t, err)
	assert.Equal(t, len(ranged), 1)
	assert.Equal(t, ranged[0].ID, first.ID)

	// matches on the original date only
	ranged, err = env.manager.List(ctx, ListOption{From: spec.MustParseDate("2024-02-01"), To: spec.MustParseDate("2024-02-01")})
	assert.NilError(t, err)
	assert.Equal(t, len(ranged), 1)
	assert.Equal(t, ranged[0].StudentID, "student-2")
}

func TestService(t *testing.T) {
	env := newTestEnv(t)
	env.countsSubscription(t, 2)

	svc, err := NewService(ServiceOptions{MakeupManager: env.manager, Logger: zap.NewNop()})
	assert.NilError(t, err)
	handler := svc.Router()

	send := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			assert.NilError(t, json.NewEncoder(&buf).Encode(body))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
		return rec
	}

	rec := send(http.MethodPost, "/", map[string]string{
		"studentId":       "student-1",
		"originalClassId": env.original.ID,
		"originalDate":    "2024-01-08",
		"makeupClassId":   env.makeup.ID,
		"makeupDate":      "2024-01-10",
		"reason":          "recital rehearsal",
	})
	assert.Equal(t, rec.Code, http.StatusCreated)
	var mk MakeupClass
	assert.NilError(t, json.NewDecoder(rec.Body).Decode(&mk))
	assert.Equal(t, mk.Status, StatusPending)

	rec = send(http.MethodPost, "/", map[string]string{
		"studentId":     "student-1",
		"makeupClassId": env.makeup.ID,
	})
	assert.Equal(t, rec.Code, http.StatusBadRequest)

	rec = send(http.MethodPost, "/"+mk.ID+"/complete", nil)
	assert.Equal(t, rec.Code, http.StatusConflict)

	rec = send(http.MethodPost, "/"+mk.ID+"/approve", nil)
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = send(http.MethodPost, "/"+mk.ID+"/complete", nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	var res CompleteResult
	assert.NilError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, res.MakeupClass.Status, StatusCompleted)
	assert.Equal(t, *res.Attendance.Subscription.RemainingClasses, 1)

	rec = send(http.MethodGet, "/"+mk.ID, nil)
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = send(http.MethodGet, "/missing", nil)
	assert.Equal(t, rec.Code, http.StatusNotFound)

	rec = send(http.MethodGet, "/?status=completed", nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	var list []MakeupClass
	assert.NilError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, len(list), 1)

	rec = send(http.MethodGet, "/?status=lost", nil)
	assert.Equal(t, rec.Code, http.StatusBadRequest)

	rec = send(http.MethodGet, "/?from=soon", nil)
	assert.Equal(t, rec.Code, http.StatusBadRequest)
}
