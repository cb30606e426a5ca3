package class

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manager handles the database operations relating to Classes
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for classes
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if db == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if err := db.AutoMigrate(&Class{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize class.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// CreateOption contains the details of a new class
type CreateOption struct {
	Name         string
	InstructorID string
	Level        Level
	Capacity     int
}

// Create will store a new class. Level defaults to beginner.
func (m *Manager) Create(ctx context.Context, opt CreateOption) (*Class, error) {
	name := strings.TrimSpace(opt.Name)
	if name == "" {
		return nil, fmt.Errorf("empty class name is invalid")
	}
	if opt.Level == "" {
		opt.Level = LevelBeginner
	}
	if !opt.Level.Valid() {
		return nil, fmt.Errorf("class level %q is invalid", opt.Level)
	}
	if opt.Capacity < 0 {
		return nil, fmt.Errorf("negative class capacity is invalid")
	}

	c := &Class{
		ID:           uuid.New().String(),
		Name:         name,
		InstructorID: opt.InstructorID,
		Level:        opt.Level,
		Capacity:     opt.Capacity,
		CreatedAt:    time.Now().UTC(),
	}
	result := m.db.WithContext(ctx).Create(c)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create a new Class")
	}
	return c, nil
}

// GetByID will try to return the class in the database by id
func (m *Manager) GetByID(ctx context.Context, id string) (*Class, error) {
	var c Class

	result := m.db.WithContext(ctx).First(&c, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get class by id")
	}

	return &c, nil
}

// ListOption filters the classes returned by List
type ListOption struct {
	InstructorID string
	Level        Level
}

// List returns classes ordered by name
func (m *Manager) List(ctx context.Context, opt ListOption) ([]Class, error) {
	query := m.db.WithContext(ctx).Order("name asc")
	if opt.InstructorID != "" {
		query = query.Where("instructor_id = ?", opt.InstructorID)
	}
	if opt.Level != "" {
		query = query.Where("level = ?", opt.Level)
	}

	results := make([]Class, 0, 1)
	result := query.Find(&results)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot list classes")
	}
	return results, nil
}
