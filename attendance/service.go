package attendance

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

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
	AttendanceManager *Manager
	Logger            *zap.Logger
}

// Service is the attendance API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the attendance API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.AttendanceManager == nil {
		return nil, fmt.Errorf("nil AttendanceManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// RecordRequest is the model of staff request to take attendance
type RecordRequest struct {
	StudentID string    `json:"studentId" validate:"required"`
	ClassID   string    `json:"classId" validate:"required"`
	Date      spec.Date `json:"date"`
	Status    Status    `json:"status" validate:"required,oneof=present absent late excused makeup"`
	Memo      string    `json:"memo" validate:"max=1000"`
}

func parseListOption(r *http.Request) (ListOption, error) {
	q := r.URL.Query()
	opt := ListOption{
		StudentID: q.Get("studentId"),
		ClassID:   q.Get("classId"),
		Status:    Status(q.Get("status")),
	}
	if opt.Status != "" && !opt.Status.Valid() {
		return opt, fmt.Errorf("invalid status")
	}
	if f := q.Get("from"); f != "" {
		from, err := spec.ParseDate(f)
		if err != nil {
			return opt, fmt.Errorf("invalid from")
		}
		opt.From = from
	}
	if t := q.Get("to"); t != "" {
		to, err := spec.ParseDate(t)
		if err != nil {
			return opt, fmt.Errorf("invalid to")
		}
		opt.To = to
	}
	return opt, nil
}

func (s *Service) recordAttendance(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrFromValidator(err))
		return
	}

	result, err := s.AttendanceManager.Record(r.Context(), RecordOption{
		StudentID: req.StudentID,
		ClassID:   req.ClassID,
		Date:      req.Date,
		Status:    req.Status,
		Memo:      req.Memo,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp.WriteStatus(w, r, http.StatusCreated, result)
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var sErr *subscription.StateError
	switch {
	case subscription.IsValidation(err):
		resp.WriteError(w, r, resp.ErrValidation(err.Error()))
	case errors.Is(err, ErrNotFound):
		resp.WriteError(w, r, resp.ErrNotFound())
	case errors.Is(err, ErrDuplicate):
		resp.WriteError(w, r, resp.ErrConflict().AddMessages(err.Error()))
	case errors.As(err, &sErr):
		resp.WriteError(w, r, resp.ErrConflict().AddMessages(sErr.Error()))
	default:
		resp.WriteError(w, r, resp.ErrUnexpected())
	}
}

// UpdateRequest is the model of staff request to correct an attendance record
type UpdateRequest struct {
	Status Status `json:"status" validate:"required,oneof=present absent late excused makeup"`
	Memo   string `json:"memo" validate:"max=1000"`
}

func (s *Service) updateAttendance(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrFromValidator(err))
		return
	}
	result, err := s.AttendanceManager.Update(r.Context(), chi.URLParam(r, "id"), UpdateOption{
		Status: req.Status,
		Memo:   req.Memo,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp.WriteResponse(w, r, result)
}

func (s *Service) getAttendance(w http.ResponseWriter, r *http.Request) {
	record, err := s.AttendanceManager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp.WriteResponse(w, r, record)
}

// BulkRequest is the model of staff request to take attendance of a whole class meeting
type BulkRequest struct {
	ClassID string      `json:"classId" validate:"required"`
	Date    spec.Date   `json:"date"`
	Entries []BulkEntry `json:"entries" validate:"required,min=1,dive"`
}

func (s *Service) recordBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrFromValidator(err))
		return
	}
	result, err := s.AttendanceManager.RecordBulk(r.Context(), BulkOption{
		ClassID: req.ClassID,
		Date:    req.Date,
		Entries: req.Entries,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp.WriteResponse(w, r, result)
}

func (s *Service) listAttendance(w http.ResponseWriter, r *http.Request) {
	opt, err := parseListOption(r)
	if err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err.Error()))
		return
	}
	results, err := s.AttendanceManager.List(r.Context(), opt)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of attendance"))
		return
	}
	resp.WriteResponse(w, r, results)
}

func (s *Service) attendanceStats(w http.ResponseWriter, r *http.Request) {
	opt, err := parseListOption(r)
	if err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err.Error()))
		return
	}
	stats, err := s.AttendanceManager.Stats(r.Context(), opt)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot compute attendance stats"))
		return
	}
	resp.WriteResponse(w, r, stats)
}

// Router will return the routes under attendance API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listAttendance)
	r.Post("/", s.recordAttendance)
	r.Get("/stats", s.attendanceStats)
	r.Post("/bulk", s.recordBulk)
	r.Get("/{id}", s.getAttendance)
	r.Put("/{id}", s.updateAttendance)

	return r
}
