package portal_api

import (
	"context"
	"errors"
	"net/http"

	"smec-portal/internal/api"
	"smec-portal/internal/auth"
	"smec-portal/internal/catalog"
	"smec-portal/internal/logger"
	"smec-portal/internal/models"
	"smec-portal/internal/registration"
	"smec-portal/internal/session"
	tickets "smec-portal/internal/tickets/service"
	"smec-portal/internal/tickets/template"
	"smec-portal/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Authenticator interface {
	Login(ctx context.Context, creds models.Credentials) (*models.AuthResult, error)
	AdminLogin(ctx context.Context, creds models.Credentials) (*models.AuthResult, error)
	Signup(ctx context.Context, req models.SignupRequest) error
}

type Handler struct {
	Auth      Authenticator
	Purchaser registration.Purchaser
	Sessions  *session.Store
	Catalog   *catalog.Accessor
	Dashboard *tickets.Dashboard
	Passes    *template.TicketPDFGenerator
	Cue       registration.Cue
	Lock      registration.Locker
	Forms     *FormRegistry
	Routes    auth.Routes // buyer login and home
	Admin     auth.Routes // admin login and home
	Logger    *logger.Logger
}

// RegisterRoutes mounts the portal API and the guarded admin views.
func (h *Handler) RegisterRoutes(r chi.Router) {
	if h.Forms == nil {
		h.Forms = NewFormRegistry()
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/admin/login", h.AdminLogin)
		r.Post("/signup", h.Signup)
		r.Post("/logout", h.Logout)
		r.Get("/session", h.Session)
		r.Get("/session/stream", h.SessionStream)

		r.Get("/events", h.ListEvents)
		r.Get("/events/{eventId}", h.GetEvent)
		r.Post("/events/{eventId}/register", h.Register)

		r.Get("/dashboard", h.GetDashboard)
		r.Get("/tickets/{ticketId}/pass", h.DownloadPass)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(h.Sessions, models.RoleAdmin, h.Admin))
		r.Get("/admin/dashboard", h.AdminDashboard)
	})
}

func (h *Handler) formDeps() registration.Deps {
	return registration.Deps{
		Sessions:  h.Sessions,
		Purchaser: h.Purchaser,
		Events:    h.Catalog,
		Cue:       h.Cue,
		Lock:      h.Lock,
		Logger:    h.Logger,
	}
}

// writeFailure maps the error taxonomy onto status codes.
func writeFailure(w http.ResponseWriter, err error, fallback string) {
	var roster *models.RosterError
	switch {
	case errors.As(err, &roster):
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponseWithData(models.ErrIncompleteRoster.Error(), err.Error(), roster.Fields))
	case errors.Is(err, models.ErrUnauthenticated):
		utils.WriteError(w, http.StatusUnauthorized, "Please log in to continue", err.Error())
	case errors.Is(err, models.ErrUnauthorized):
		utils.WriteError(w, http.StatusForbidden, "Access Denied", err.Error())
	case errors.Is(err, models.ErrSoldOut):
		utils.WriteError(w, http.StatusConflict, "Sold Out", err.Error())
	case errors.Is(err, models.ErrSubmissionInFlight):
		utils.WriteError(w, http.StatusConflict, "Registration already in progress", err.Error())
	case errors.Is(err, models.ErrMissingEvent):
		utils.WriteError(w, http.StatusUnprocessableEntity, "Cannot download ticket of a deleted event", err.Error())
	case errors.Is(err, catalog.ErrEventNotFound):
		utils.WriteError(w, http.StatusNotFound, "Event Not Found", err.Error())
	case errors.Is(err, models.ErrRemoteFailure):
		utils.WriteError(w, http.StatusBadGateway, api.Message(err, fallback), err.Error())
	default:
		utils.WriteError(w, http.StatusInternalServerError, fallback, err.Error())
	}
}
