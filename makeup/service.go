package makeup

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/zllovesuki/studio/attendance"
	resp "github.com/zllovesuki/studio/response"
	"github.com/zllovesuki/studio/spec"
	"github.com/zllovesuki/studio/subscription"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	MakeupManager *Manager
	Logger        *zap.Logger
}

// Service is the makeup class API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the makeup class API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.MakeupManager == nil {
		return nil, fmt.Errorf("nil MakeupManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// CreateRequest is the model of a request to attend a makeup class
type CreateRequest struct {
	StudentID       string    `json:"studentId" validate:"required"`
	OriginalClassID string    `json:"originalClassId" validate:"required"`
	OriginalDate    spec.Date `json:"originalDate"`
	MakeupClassID   string    `json:"makeupClassId" validate:"required"`
	MakeupDate      spec.Date `json:"makeupDate"`
	Reason          string    `json:"reason" validate:"required,max=1000"`
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var sErr *StateError
	var subErr *subscription.StateError
	switch {
	case subscription.IsValidation(err):
		resp.WriteError(w, r, resp.ErrValidation(err.Error()))
	case errors.Is(err, ErrNotFound):
		resp.WriteError(w, r, resp.ErrNotFound())
	case errors.As(err, &sErr):
		resp.WriteError(w, r, resp.ErrConflict().AddMessages(sErr.Error()))
	case errors.Is(err, attendance.ErrDuplicate):
		resp.WriteError(w, r, resp.ErrConflict().AddMessages(err.Error()))
	case errors.As(err, &subErr):
		resp.WriteError(w, r, resp.ErrConflict().AddMessages(subErr.Error()))
	default:
		resp.WriteError(w, r, resp.ErrUnexpected())
	}
}

func (s *Service) listMakeups(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opt := ListOption{
		Status:    Status(q.Get("status")),
		StudentID: q.Get("studentId"),
	}
	if opt.Status != "" && !opt.Status.Valid() {
		resp.WriteError(w, r, resp.ErrValidation("invalid status"))
		return
	}
	if f := q.Get("from"); f != "" {
		from, err := spec.ParseDate(f)
		if err != nil {
			resp.WriteError(w, r, resp.ErrValidation("invalid from"))
			return
		}
		opt.From = from
	}
	if t := q.Get("to"); t != "" {
		to, err := spec.ParseDate(t)
		if err != nil {
			resp.WriteError(w, r, resp.ErrValidation("invalid to"))
			return
		}
		opt.To = to
	}

	results, err := s.MakeupManager.List(r.Context(), opt)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of makeup classes"))
		return
	}
	resp.WriteResponse(w, r, results)
}

func (s *Service) requestMakeup(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrFromValidator(err))
		return
	}

	mk, err := s.MakeupManager.Request(r.Context(), RequestOption{
		StudentID:       req.StudentID,
		OriginalClassID: req.OriginalClassID,
		OriginalDate:    req.OriginalDate,
		MakeupClassID:   req.MakeupClassID,
		MakeupDate:      req.MakeupDate,
		Reason:          req.Reason,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp.WriteStatus(w, r, http.StatusCreated, mk)
}

func (s *Service) getMakeup(w http.ResponseWriter, r *http.Request) {
	mk, err := s.MakeupManager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp.WriteResponse(w, r, mk)
}

func (s *Service) approveMakeup(w http.ResponseWriter, r *http.Request) {
	mk, err := s.MakeupManager.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp.WriteResponse(w, r, mk)
}

func (s *Service) rejectMakeup(w http.ResponseWriter, r *http.Request) {
	mk, err := s.MakeupManager.Reject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp.WriteResponse(w, r, mk)
}

func (s *Service) completeMakeup(w http.ResponseWriter, r *http.Request) {
	result, err := s.MakeupManager.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp.WriteResponse(w, r, result)
}

// Router will return the routes under makeup class API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listMakeups)
	r.Post("/", s.requestMakeup)

	r.Get("/{id}", s.getMakeup)
	r.Post("/{id}/approve", s.approveMakeup)
	r.Post("/{id}/reject", s.rejectMakeup)
	r.Post("/{id}/complete", s.completeMakeup)

	return r
}
