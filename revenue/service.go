package revenue

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	resp "github.com/zllovesuki/studio/response"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	RevenueManager *Manager
	Logger         *zap.Logger
}

// Service is the revenue statistics API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the revenue API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.RevenueManager == nil {
		return nil, fmt.Errorf("nil RevenueManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

func parseRange(r *http.Request) (Range, error) {
	var rng Range
	q := r.URL.Query()
	if f := q.Get("from"); f != "" {
		from, err := time.Parse(time.RFC3339, f)
		if err != nil {
			return rng, fmt.Errorf("invalid from")
		}
		rng.From = from
	}
	if t := q.Get("to"); t != "" {
		to, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return rng, fmt.Errorf("invalid to")
		}
		rng.To = to
	}
	return rng, nil
}

func (s *Service) summary(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err.Error()))
		return
	}
	result, err := s.RevenueManager.Summary(r.Context(), rng)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot compute revenue summary"))
		return
	}
	resp.WriteResponse(w, r, result)
}

func (s *Service) byClass(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err.Error()))
		return
	}
	result, err := s.RevenueManager.ByClass(r.Context(), chi.URLParam(r, "classId"), rng)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot compute class revenue"))
		return
	}
	resp.WriteResponse(w, r, result)
}

func (s *Service) monthly(w http.ResponseWriter, r *http.Request) {
	var opt MonthlyOption
	q := r.URL.Query()
	if y := q.Get("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			resp.WriteError(w, r, resp.ErrValidation("invalid year"))
			return
		}
		opt.Year = year
	}
	if m := q.Get("month"); m != "" {
		month, err := strconv.Atoi(m)
		if err != nil {
			resp.WriteError(w, r, resp.ErrValidation("invalid month"))
			return
		}
		opt.Month = time.Month(month)
	}
	if _, err := opt.Range(); err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err.Error()))
		return
	}
	result, err := s.RevenueManager.Monthly(r.Context(), opt)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot compute monthly revenue"))
		return
	}
	resp.WriteResponse(w, r, result)
}

func (s *Service) byInstructor(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err.Error()))
		return
	}
	result, err := s.RevenueManager.ByInstructor(r.Context(), chi.URLParam(r, "instructorId"), rng)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot compute instructor revenue"))
		return
	}
	resp.WriteResponse(w, r, result)
}

// Router will return the routes under revenue API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.summary)
	r.Get("/monthly", s.monthly)
	r.Get("/classes/{classId}", s.byClass)
	r.Get("/instructors/{instructorId}", s.byInstructor)

	return r
}
