package student

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	resp "github.com/zllovesuki/studio/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// Options contains the configuration for Service router
type Options struct {
	StudentManager *Manager
	Logger         *zap.Logger
}

// Service is the student API router
type Service struct {
	Options
}

// CreateRequest is the model of staff request to register a student
type CreateRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"omitempty,max=20"`
}

// NewService will create an instance of the student API router
func NewService(option Options) (*Service, error) {
	if option.StudentManager == nil {
		return nil, fmt.Errorf("nil StudentManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		Options: option,
	}, nil
}

func (s *Service) createStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrFromValidator(err))
		return
	}

	logger := s.Logger.With(zap.String("email", req.Email))

	stu, err := s.StudentManager.Create(r.Context(), CreateOption{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if errors.Is(err, ErrDuplicateEmail) {
		resp.WriteError(w, r, resp.ErrConflict().AddMessages(err.Error()))
		return
	}
	if err != nil {
		logger.Error("Unable to create Student",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	resp.WriteStatus(w, r, http.StatusCreated, stu)
}

func (s *Service) getStudent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	stu, err := s.StudentManager.GetByID(r.Context(), id)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if stu == nil {
		resp.WriteError(w, r, resp.ErrNotFound())
		return
	}
	resp.WriteResponse(w, r, stu)
}

func (s *Service) listStudents(w http.ResponseWriter, r *http.Request) {
	opt := ListOption{
		Search: r.URL.Query().Get("search"),
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 0 {
			resp.WriteError(w, r, resp.ErrValidation("invalid limit"))
			return
		}
		opt.Limit = limit
	}
	results, err := s.StudentManager.List(r.Context(), opt)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of students"))
		return
	}
	resp.WriteResponse(w, r, results)
}

// Router will return the routes under student API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listStudents)
	r.Post("/", s.createStudent)
	r.Get("/{id}", s.getStudent)

	return r
}
