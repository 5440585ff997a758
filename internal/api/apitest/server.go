// Package apitest provides an in-process fake of the festival backend.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"smec-portal/internal/auth"
	"smec-portal/internal/models"

	"github.com/go-chi/chi/v5"
)

type account struct {
	password string
	user     models.User
}

// Server is a fake backend. Tokens are "token-<userID>".
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	accounts  map[string]account
	events    []models.Event
	tickets   map[string][]models.Ticket
	purchases []models.PurchaseRequest
	calls     map[string]int
	headers   []http.Header

	// PurchaseGate, when set, is received from before a purchase is applied.
	PurchaseGate chan struct{}
	failures map[string]failure
}

type failure struct {
	status  int
	message string
}

func NewServer() *Server {
	s := &Server{
		accounts: make(map[string]account),
		tickets:  make(map[string][]models.Ticket),
		calls:    make(map[string]int),
		failures: make(map[string]failure),
	}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/user/login", s.login(false))
		r.Post("/user/admin-login", s.login(true))
		r.Post("/user/sign-up", s.signup)
		r.Get("/events/all", s.allEvents)
		r.Post("/events/buy-ticket", s.buyTicket)
		r.Get("/events/my-tickets", s.myTickets)
	})

	s.Server = httptest.NewServer(s.track(r))
	return s
}

func TokenFor(userID string) string {
	return "token-" + userID
}

func (s *Server) AddUser(user models.User, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[user.Email] = account{password: password, user: user}
}

func (s *Server) SetEvents(events ...models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append([]models.Event(nil), events...)
}

func (s *Server) SetTickets(userID string, tickets ...models.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[userID] = append([]models.Ticket(nil), tickets...)
}

// Fail makes every request to path answer with status until Recover.
func (s *Server) Fail(path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = failure{status: status, message: message}
}

func (s *Server) Recover(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, path)
}

// Calls returns how many requests hit path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

func (s *Server) Purchases() []models.PurchaseRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PurchaseRequest(nil), s.purchases...)
}

// Headers returns the headers of every request received so far.
func (s *Server) Headers() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.headers...)
}

func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		s.headers = append(s.headers, r.Header.Clone())
		f, failing := s.failures[r.URL.Path]
		s.mu.Unlock()

		if failing {
			writeJSON(w, f.status, map[string]any{"success": false, "message": f.message})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) login(admin bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds models.Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid body"})
			return
		}

		s.mu.Lock()
		acc, ok := s.accounts[creds.Email]
		s.mu.Unlock()

		if !ok || acc.password != creds.Password {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Incorrect email or password"})
			return
		}
		if admin && acc.user.Role != models.RoleAdmin {
			writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "message": "Access Denied"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": TokenFor(acc.user.ID), "user": acc.user})
	}
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[req.Email]; exists {
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "message": "User already exists"})
		return
	}
	user := models.User{
		ID:          fmt.Sprintf("u%d", len(s.accounts)+1),
		FullName:    req.FullName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Role:        req.Role,
	}
	s.accounts[req.Email] = account{password: req.Password, user: user}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "Account created"})
}

func (s *Server) allEvents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	events := append([]models.Event(nil), s.events...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "events": events})
}

func (s *Server) buyTicket(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authorize(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Not authorized"})
		return
	}

	var req models.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid body"})
		return
	}

	if s.PurchaseGate != nil {
		<-s.PurchaseGate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchases = append(s.purchases, req)

	for i := range s.events {
		ev := &s.events[i]
		if ev.ID != req.EventID {
			continue
		}
		if ev.Remaining() <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Event is sold out"})
			return
		}
		ev.SoldTickets++
		snapshot := *ev
		ticket := models.Ticket{
			ID:           fmt.Sprintf("t%d", len(s.purchases)),
			SerialNumber: fmt.Sprintf("SMEC-%04d", len(s.purchases)),
			PricePaid:    ev.Price,
			TeamMembers:  req.TeamMembers,
			Event:        &snapshot,
		}
		s.tickets[userID] = append(s.tickets[userID], ticket)
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "ticket": ticket})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Event not found"})
}

func (s *Server) myTickets(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authorize(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Token expired"})
		return
	}
	s.mu.Lock()
	tickets := append([]models.Ticket{}, s.tickets[userID]...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tickets": tickets})
}

func (s *Server) authorize(r *http.Request) (string, bool) {
	token, err := auth.ExtractTokenFromRequest(r)
	if err != nil || !strings.HasPrefix(token, "token-") {
		return "", false
	}
	return strings.TrimPrefix(token, "token-"), true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
