package class

import (
	"encoding/json"
	"fmt"
	"net/http"

	resp "github.com/zllovesuki/studio/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	ClassManager *Manager
	Logger       *zap.Logger
}

// Service is the class API router
type Service struct {
	ServiceOptions
}

// CreateRequest is the model of staff request to open a class
type CreateRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	InstructorID string `json:"instructorId"`
	Level        Level  `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	Capacity     int    `json:"capacity" validate:"gte=0"`
}

// NewService will create an instance of the class API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.ClassManager == nil {
		return nil, fmt.Errorf("nil ClassManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

func (s *Service) createClass(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrFromValidator(err))
		return
	}

	c, err := s.ClassManager.Create(r.Context(), CreateOption{
		Name:         req.Name,
		InstructorID: req.InstructorID,
		Level:        req.Level,
		Capacity:     req.Capacity,
	})
	if err != nil {
		s.Logger.Error("Unable to create Class",
			zap.String("Name", req.Name),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	resp.WriteStatus(w, r, http.StatusCreated, c)
}

func (s *Service) getClass(w http.ResponseWriter, r *http.Request) {
	c, err := s.ClassManager.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if c == nil {
		resp.WriteError(w, r, resp.ErrNotFound())
		return
	}
	resp.WriteResponse(w, r, c)
}

func (s *Service) listClasses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	results, err := s.ClassManager.List(r.Context(), ListOption{
		InstructorID: q.Get("instructorId"),
		Level:        Level(q.Get("level")),
	})
	if err != nil {
		s.Logger.Error("Unable to list classes",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of classes"))
		return
	}
	resp.WriteResponse(w, r, results)
}

// Router will return the routes under class API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listClasses)
	r.Post("/", s.createClass)
	r.Get("/{id}", s.getClass)

	return r
}
