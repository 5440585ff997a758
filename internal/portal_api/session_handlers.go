package portal_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"smec-portal/internal/api"
	"smec-portal/internal/models"
	"smec-portal/internal/utils"
)

type sessionView struct {
	Authenticated bool         `json:"authenticated"`
	IsAdmin       bool         `json:"isAdmin"`
	User          *models.User `json:"user,omitempty"`
}

func viewOf(s *models.Session) sessionView {
	if s == nil {
		return sessionView{}
	}
	user := s.User
	return sessionView{Authenticated: true, IsAdmin: s.HasRole(models.RoleAdmin), User: &user}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.Auth.Login, api.DefaultLoginMessage, h.Routes.Home)
}

func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.Auth.AdminLogin, api.DefaultAdminLoginMessage, "/admin/dashboard")
}

type loginFunc func(ctx context.Context, creds models.Credentials) (*models.AuthResult, error)

func (h *Handler) login(w http.ResponseWriter, r *http.Request, do loginFunc, fallback, next string) {
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	result, err := do(r.Context(), creds)
	if err != nil {
		h.Logger.Warn("AUTH", fmt.Sprintf("Login failed for %s: %v", creds.Email, err))
		utils.WriteError(w, http.StatusUnauthorized, api.Message(err, fallback), err.Error())
		return
	}

	h.Dashboard.Reset()
	if err := h.Sessions.Login(r.Context(), *result); err != nil {
		h.Logger.Error("AUTH", fmt.Sprintf("Failed to persist session: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, fallback, err.Error())
		return
	}

	utils.WriteSuccess(w, http.StatusOK, fmt.Sprintf("Welcome Back %s!", result.User.FullName), map[string]any{
		"user":     result.User,
		"redirect": next,
	})
}

type signupBody struct {
	models.SignupRequest
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var body signupBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(body.Email) == "" || body.Password == "" {
		utils.WriteError(w, http.StatusBadRequest, "Email and password are required", "")
		return
	}
	if body.ConfirmPassword != "" && body.ConfirmPassword != body.Password {
		utils.WriteError(w, http.StatusBadRequest, "Passwords do not match.", "")
		return
	}

	if err := h.Auth.Signup(r.Context(), body.SignupRequest); err != nil {
		status := http.StatusBadGateway
		var remote *api.RemoteError
		if errors.As(err, &remote) && remote.Status >= 400 && remote.Status < 500 {
			status = remote.Status
		}
		utils.WriteError(w, status, api.Message(err, api.DefaultSignupMessage), err.Error())
		return
	}

	utils.WriteSuccess(w, http.StatusCreated, "Account created", map[string]string{"redirect": h.Routes.Login})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.Sessions.Logout(r.Context())
	h.Dashboard.Reset()
	utils.WriteSuccess(w, http.StatusOK, "Logged out", nil)
}

func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	utils.WriteSuccess(w, http.StatusOK, "Session", viewOf(h.Sessions.Current(r.Context())))
}

// SessionStream pushes a session event on connect and on every transition.
func (h *Handler) SessionStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteError(w, http.StatusInternalServerError, "Streaming unsupported", "")
		return
	}

	// the stream outlives the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	updates := h.Sessions.Subscribe(ctx)

	if err := writeSessionEvent(w, viewOf(h.Sessions.Current(ctx))); err != nil {
		return
	}
	flusher.Flush()
	h.Logger.Debug("SSE", "Client connected to session stream")

	for {
		select {
		case s, ok := <-updates:
			if !ok {
				return
			}
			if err := writeSessionEvent(w, viewOf(s)); err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to write session event: %v", err))
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", "Client disconnected from session stream")
			return
		}
	}
}

func writeSessionEvent(w http.ResponseWriter, v sessionView) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: session\ndata: %s\n\n", data)
	return err
}
