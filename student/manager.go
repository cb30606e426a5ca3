package student

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

// ErrDuplicateEmail is returned when another student is registered with the same email
var ErrDuplicateEmail = errors.New("email is already registered")

// Manager handles the database operations relating to Students
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for students
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if db == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if err := db.AutoMigrate(&Student{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize student.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// CreateOption contains the profile of a new student
type CreateOption struct {
	Name  string
	Email string
	Phone string
}

// Create will register a new student in the database
func (m *Manager) Create(ctx context.Context, opt CreateOption) (*Student, error) {
	email := strings.ToLower(strings.TrimSpace(opt.Email))
	existing, err := m.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateEmail
	}

	newStudent := &Student{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(opt.Name),
		Email:     email,
		Phone:     opt.Phone,
		CreatedAt: time.Now().UTC(),
	}

	result := m.db.WithContext(ctx).Create(newStudent)
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return nil, ErrDuplicateEmail
	}
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create a new Student")
	}

	return newStudent, nil
}

// GetByID will try to return the student in the database by id
func (m *Manager) GetByID(ctx context.Context, id string) (*Student, error) {
	var stu Student

	result := m.db.WithContext(ctx).First(&stu, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get student by id")
	}

	return &stu, nil
}

// GetByEmail will try to return the student in the database by email address
func (m *Manager) GetByEmail(ctx context.Context, email string) (*Student, error) {
	var stu Student

	result := m.db.WithContext(ctx).First(&stu, "email = ?", strings.ToLower(email))

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get student by email")
	}

	return &stu, nil
}

// ListOption filters the students returned by List
type ListOption struct {
	Search string // Case-insensitive match on name or email
	Limit  int
}

// List returns students ordered by name
func (m *Manager) List(ctx context.Context, opt ListOption) ([]Student, error) {
	query := m.db.WithContext(ctx).Order("name asc")
	if search := strings.TrimSpace(opt.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("(LOWER(name) LIKE ? OR LOWER(email) LIKE ?)", pattern, pattern)
	}
	if opt.Limit > 0 {
		query = query.Limit(opt.Limit)
	}

	results := make([]Student, 0, 1)
	result := query.Find(&results)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot list students")
	}
	return results, nil
}
