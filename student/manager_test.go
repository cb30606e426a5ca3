package student

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/zllovesuki/studio/db"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gotest.tools/assert"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
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
	return gormDB
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(zap.NewNop(), newTestDB(t))
	assert.NilError(t, err)
	return m
}

func TestManagerCreate(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	stu, err := m.Create(ctx, CreateOption{Name: " Alice Kim ", Email: "Alice@Example.com", Phone: "010-1234-5678"})
	assert.NilError(t, err)
	assert.Equal(t, stu.Name, "Alice Kim")
	assert.Equal(t, stu.Email, "alice@example.com")

	byID, err := m.GetByID(ctx, stu.ID)
	assert.NilError(t, err)
	assert.Equal(t, byID.Email, "alice@example.com")

	byEmail, err := m.GetByEmail(ctx, "ALICE@example.com")
	assert.NilError(t, err)
	assert.Equal(t, byEmail.ID, stu.ID)

	_, err = m.Create(ctx, CreateOption{Name: "Other", Email: "alice@example.com"})
	assert.Equal(t, err, ErrDuplicateEmail)
}

func TestManagerCreateConcurrentSameEmail(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Create(ctx, CreateOption{Name: "Bob", Email: "bob@example.com"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.Equal(t, err, ErrDuplicateEmail)
	}
	assert.Equal(t, created, 1)
}

func TestManagerGetMissing(t *testing.T) {
	m := newTestManager(t)

	stu, err := m.GetByID(context.Background(), "missing")
	assert.NilError(t, err)
	assert.Assert(t, stu == nil)

	stu, err = m.GetByEmail(context.Background(), "nobody@example.com")
	assert.NilError(t, err)
	assert.Assert(t, stu == nil)
}

func TestManagerList(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for _, name := range []string{"Carol", "alice", "Bob"} {
		_, err := m.Create(ctx, CreateOption{Name: name, Email: name + "@example.com"})
		assert.NilError(t, err)
	}

	all, err := m.List(ctx, ListOption{})
	assert.NilError(t, err)
	assert.Equal(t, len(all), 3)

	found, err := m.List(ctx, ListOption{Search: "BOB"})
	assert.NilError(t, err)
	assert.Equal(t, len(found), 1)
	assert.Equal(t, found[0].Name, "Bob")

	limited, err := m.List(ctx, ListOption{Limit: 2})
	assert.NilError(t, err)
	assert.Equal(t, len(limited), 2)
}

func TestServiceCreate(t *testing.T) {
	m := newTestManager(t)
	svc, err := NewService(Options{StudentManager: m, Logger: zap.NewNop()})
	assert.NilError(t, err)
	handler := svc.Router()

	post := func(body string) int {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body)))
		return rec.Code
	}

	assert.Equal(t, post(`{"name":"Alice","email":"alice@example.com"}`), http.StatusCreated)
	assert.Equal(t, post(`{"name":"Alice","email":"alice@example.com"}`), http.StatusConflict)
	assert.Equal(t, post(`{"name":"Bob","email":"not-an-email"}`), http.StatusBadRequest)
	assert.Equal(t, post(`{"name":`), http.StatusBadRequest)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, rec.Code, http.StatusNotFound)
}
