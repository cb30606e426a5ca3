package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/zllovesuki/studio/class"
	resp "github.com/zllovesuki/studio/response"
	"github.com/zllovesuki/studio/spec"
	"github.com/zllovesuki/studio/student"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	SubscriptionManager *Manager
	StudentManager      *student.Manager
	ClassManager        *class.Manager
	Logger              *zap.Logger
}

// Service is the subscription API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the subscription API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.SubscriptionManager == nil {
		return nil, fmt.Errorf("nil SubscriptionManager is invalid")
	}
	if option.StudentManager == nil {
		return nil, fmt.Errorf("nil StudentManager is invalid")
	}
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

// CreateRequest is the model of staff request to record a purchased subscription
type CreateRequest struct {
	StudentID        string          `json:"studentId" validate:"required"`
	ClassID          string          `json:"classId" validate:"required"`
	SubscriptionType Type            `json:"subscriptionType" validate:"required,oneof=days counts"`
	StartDate        spec.Date       `json:"startDate"`
	EndDate          spec.Date       `json:"endDate"`
	TotalClasses     *int            `json:"totalClasses" validate:"omitempty,gt=0"`
	RemainingClasses *int            `json:"remainingClasses" validate:"omitempty,gte=0"`
	PricePaid        decimal.Decimal `json:"pricePaid"`
	PaymentMethod    string          `json:"paymentMethod" validate:"omitempty,max=20"`
}

// PauseRequest is the model of staff request to pause a subscription
type PauseRequest struct {
	StartDate spec.Date `json:"startDate"`
	EndDate   spec.Date `json:"endDate"`
	Reason    string    `json:"reason" validate:"max=500"`
}

// ExtendRequest is the model of staff request to extend a subscription
type ExtendRequest struct {
	Days int `json:"days"`
}

// writeDomainError maps lifecycle errors to API errors
func (s *Service) writeDomainError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var vErr *ValidationError
	var sErr *StateError
	switch {
	case errors.As(err, &vErr):
		resp.WriteError(w, r, resp.ErrValidation(vErr.Error()))
	case errors.As(err, &sErr):
		resp.WriteError(w, r, resp.ErrConflict().AddMessages(sErr.Error()))
	case errors.Is(err, ErrNotFound):
		resp.WriteError(w, r, resp.ErrNotFound())
	default:
		logger.Error("Unable to process subscription request",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
	}
}

func (s *Service) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opt := ListOption{
		ClassID:   q.Get("classId"),
		StudentID: q.Get("studentId"),
		Search:    q.Get("search"),
	}
	if status := q.Get("status"); status != "" {
		opt.Status = Status(status)
		if !opt.Status.Valid() {
			resp.WriteError(w, r, resp.ErrValidation("invalid status"))
			return
		}
	}
	if e := q.Get("expiringSoon"); e != "" {
		expiring, err := strconv.ParseBool(e)
		if err != nil {
			resp.WriteError(w, r, resp.ErrValidation("invalid expiringSoon"))
			return
		}
		opt.ExpiringSoon = expiring
	}
	if b := q.Get("before"); b != "" {
		before, err := time.Parse(time.RFC3339Nano, b)
		if err != nil {
			resp.WriteError(w, r, resp.ErrValidation("invalid before"))
			return
		}
		opt.Before = before
	}
	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 0 {
			resp.WriteError(w, r, resp.ErrValidation("invalid limit"))
			return
		}
		opt.Limit = limit
	}

	results, err := s.SubscriptionManager.List(r.Context(), opt)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of subscriptions"))
		return
	}
	resp.WriteResponse(w, r, results)
}

func (s *Service) createSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrFromValidator(err))
		return
	}

	logger := s.Logger.With(
		zap.String("StudentID", req.StudentID),
		zap.String("ClassID", req.ClassID),
	)

	stu, err := s.StudentManager.GetByID(ctx, req.StudentID)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if stu == nil {
		resp.WriteError(w, r, resp.ErrValidation("invalid studentId: student does not exist"))
		return
	}
	c, err := s.ClassManager.GetByID(ctx, req.ClassID)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if c == nil {
		resp.WriteError(w, r, resp.ErrValidation("invalid classId: class does not exist"))
		return
	}

	sub, err := s.SubscriptionManager.Create(ctx, CreateOption{
		StudentID:        req.StudentID,
		ClassID:          req.ClassID,
		Type:             req.SubscriptionType,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		TotalClasses:     req.TotalClasses,
		RemainingClasses: req.RemainingClasses,
		PricePaid:        req.PricePaid,
		PaymentMethod:    req.PaymentMethod,
	})
	if err != nil {
		s.writeDomainError(w, r, logger, err)
		return
	}

	logger.Info("Subscription created",
		zap.String("SubscriptionID", sub.ID),
	)
	resp.WriteStatus(w, r, http.StatusCreated, sub)
}

func (s *Service) getSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sub, err := s.SubscriptionManager.Get(r.Context(), GetOption{
		SubscriptionID: id,
		WithPauses:     true,
	})
	if err != nil {
		s.writeDomainError(w, r, s.Logger.With(zap.String("SubscriptionID", id)), err)
		return
	}
	resp.WriteResponse(w, r, sub)
}

func (s *Service) listPauses(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pauses, err := s.SubscriptionManager.ListPauses(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, s.Logger.With(zap.String("SubscriptionID", id)), err)
		return
	}
	resp.WriteResponse(w, r, pauses)
}

func (s *Service) pauseSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger := s.Logger.With(zap.String("SubscriptionID", id))

	var req PauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrFromValidator(err))
		return
	}

	pause, err := s.SubscriptionManager.Pause(r.Context(), id, PauseOption{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Reason:    req.Reason,
	})
	if err != nil {
		s.writeDomainError(w, r, logger, err)
		return
	}
	resp.WriteStatus(w, r, http.StatusCreated, pause)
}

func (s *Service) resumeSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sub, err := s.SubscriptionManager.Resume(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, s.Logger.With(zap.String("SubscriptionID", id)), err)
		return
	}
	resp.WriteResponse(w, r, sub)
}

func (s *Service) extendSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger := s.Logger.With(zap.String("SubscriptionID", id))

	var req ExtendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}

	sub, err := s.SubscriptionManager.Extend(r.Context(), id, req.Days)
	if err != nil {
		s.writeDomainError(w, r, logger, err)
		return
	}
	resp.WriteResponse(w, r, sub)
}

func (s *Service) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sub, err := s.SubscriptionManager.Cancel(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, s.Logger.With(zap.String("SubscriptionID", id)), err)
		return
	}
	resp.WriteResponse(w, r, sub)
}

// Router will return the routes under subscription API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listSubscriptions)
	r.Post("/", s.createSubscription)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", s.getSubscription)
		r.Get("/pauses", s.listPauses)
		r.Post("/pause", s.pauseSubscription)
		r.Post("/resume", s.resumeSubscription)
		r.Post("/extend", s.extendSubscription)
		r.Post("/cancel", s.cancelSubscription)
	})

	return r
}
