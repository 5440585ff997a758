package auth

import (
	"context"
	"net/http"

	"smec-portal/internal/models"
)

type Routes struct {
	Login string
	Home  string
}

type Decision struct {
	Allow    bool
	Redirect string
}

// Guard decides access to a view that requires role. It is a pure function
// and must be evaluated on every navigation.
func Guard(session *models.Session, required models.Role, routes Routes) Decision {
	if session == nil {
		return Decision{Redirect: routes.Login}
	}
	if !session.HasRole(required) {
		return Decision{Redirect: routes.Home}
	}
	return Decision{Allow: true}
}

// Err maps a decision onto the error taxonomy.
func (d Decision) Err(routes Routes) error {
	switch {
	case d.Allow:
		return nil
	case d.Redirect == routes.Login:
		return models.ErrUnauthenticated
	default:
		return models.ErrUnauthorized
	}
}

type SessionSource interface {
	Current(ctx context.Context) *models.Session
}

// RequireRole guards chi routes. The session is read per request.
func RequireRole(sessions SessionSource, required models.Role, routes Routes) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := Guard(sessions.Current(r.Context()), required, routes)
			if !decision.Allow {
				http.Redirect(w, r, decision.Redirect, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
