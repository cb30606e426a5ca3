package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/zllovesuki/studio/auth"
	resp "github.com/zllovesuki/studio/response"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	NotificationManager *Manager
	Logger              *zap.Logger
}

// Service is the notification API router for the authenticated user
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the notification API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.NotificationManager == nil {
		return nil, fmt.Errorf("nil NotificationManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

func (s *Service) listNotifications(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())

	opt := ListOption{
		UserID: claims.ID,
	}
	if u := r.URL.Query().Get("unread"); u != "" {
		unread, err := strconv.ParseBool(u)
		if err != nil {
			resp.WriteError(w, r, resp.ErrValidation("invalid unread"))
			return
		}
		opt.UnreadOnly = unread
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 0 {
			resp.WriteError(w, r, resp.ErrValidation("invalid limit"))
			return
		}
		opt.Limit = limit
	}

	results, err := s.NotificationManager.List(r.Context(), opt)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of notifications"))
		return
	}
	resp.WriteResponse(w, r, results)
}

func (s *Service) unreadCount(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())

	count, err := s.NotificationManager.UnreadCount(r.Context(), claims.ID)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, struct {
		Count int64 `json:"count"`
	}{
		Count: count,
	})
}

func (s *Service) markRead(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())

	n, err := s.NotificationManager.MarkRead(r.Context(), claims.ID, chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		resp.WriteError(w, r, resp.ErrNotFound())
		return
	}
	if err != nil {
		s.Logger.Error("Unable to mark notification as read",
			zap.String("UserID", claims.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, n)
}

func (s *Service) markAllRead(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())

	updated, err := s.NotificationManager.MarkAllRead(r.Context(), claims.ID)
	if err != nil {
		s.Logger.Error("Unable to mark notifications as read",
			zap.String("UserID", claims.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, struct {
		Updated int64 `json:"updated"`
	}{
		Updated: updated,
	})
}

func (s *Service) getPreference(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())

	pref, err := s.NotificationManager.GetPreference(r.Context(), claims.ID)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, pref)
}

func (s *Service) updatePreference(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())

	var pref Preference
	if err := json.NewDecoder(r.Body).Decode(&pref); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	// users can only change their own preference
	pref.UserID = claims.ID

	updated, err := s.NotificationManager.UpdatePreference(r.Context(), &pref)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, updated)
}

// Router will return the routes under notification API. Requests must carry Claims.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listNotifications)
	r.Get("/unread-count", s.unreadCount)
	r.Post("/read-all", s.markAllRead)
	r.Post("/{id}/read", s.markRead)
	r.Get("/preferences", s.getPreference)
	r.Put("/preferences", s.updatePreference)

	return r
}
