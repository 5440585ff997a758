package tickets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"smec-portal/internal/api"
	"smec-portal/internal/logger"
	"smec-portal/internal/models"
)

type TicketFetcher interface {
	MyTickets(ctx context.Context, token string) ([]models.Ticket, error)
}

// LocalStore holds reconciled copies of the user's tickets.
type LocalStore interface {
	Reconcile(ctx context.Context, userID string, tickets []models.Ticket) error
	ListByUser(ctx context.Context, userID string) ([]models.Ticket, error)
	GetByID(ctx context.Context, userID, ticketID string) (*models.Ticket, error)
}

// Invalidator drops a session the server rejected.
type Invalidator interface {
	Logout(ctx context.Context)
}

// TicketView is a ticket with its status as of the view's clock.
type TicketView struct {
	models.Ticket
	Status models.PassStatus `json:"status"`
}

type View struct {
	Tickets []TicketView          `json:"tickets"`
	Stats   models.AggregateStats `json:"stats"`
}

// Dashboard aggregates the signed-in user's tickets.
type Dashboard struct {
	API         TicketFetcher
	Store       LocalStore // optional
	Invalidator Invalidator
	Logger      *logger.Logger

	mu      sync.Mutex
	owner   string // user ID the loaded tickets belong to
	tickets []models.Ticket
	closed  bool
}

func NewDashboard(fetcher TicketFetcher, store LocalStore, invalidator Invalidator, log *logger.Logger) *Dashboard {
	return &Dashboard{API: fetcher, Store: store, Invalidator: invalidator, Logger: log}
}

// Load fetches the user's tickets and keeps those whose event still exists.
func (d *Dashboard) Load(ctx context.Context, session *models.Session) ([]models.Ticket, error) {
	if session == nil {
		return nil, models.ErrUnauthenticated
	}

	fetched, err := d.API.MyTickets(ctx, session.Token)
	if err != nil {
		if api.IsUnauthorized(err) {
			d.Logger.LogSession("rejected", "server rejected token, logging out")
			d.mu.Lock()
			if !d.closed {
				d.owner, d.tickets = "", nil
			}
			d.mu.Unlock()
			if d.Invalidator != nil {
				d.Invalidator.Logout(ctx)
			}
			return nil, models.ErrUnauthenticated
		}
		d.Logger.Error("DASHBOARD", fmt.Sprintf("Failed to fetch tickets: %v", err))
		return nil, fmt.Errorf("failed to fetch tickets: %w", err)
	}

	valid := ValidTickets(fetched)

	if d.Store != nil {
		if err := d.Store.Reconcile(ctx, session.User.ID, valid); err != nil {
			d.Logger.Warn("DASHBOARD", fmt.Sprintf("Failed to reconcile local tickets: %v", err))
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return valid, nil
	}
	d.owner, d.tickets = session.User.ID, valid
	return append([]models.Ticket(nil), valid...), nil
}

// ValidTickets drops tickets whose event was deleted.
func ValidTickets(tickets []models.Ticket) []models.Ticket {
	valid := make([]models.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.HasEvent() {
			valid = append(valid, t)
		}
	}
	return valid
}

// Stats is pure. Active counts events strictly after now.
func Stats(valid []models.Ticket, now time.Time) models.AggregateStats {
	var stats models.AggregateStats
	for _, t := range valid {
		stats.TotalSpent += t.PricePaid
		stats.TotalMembers += len(t.TeamMembers)
		if t.Event != nil && t.Event.Date.After(now) {
			stats.ActiveTickets++
		}
	}
	return stats
}

func Status(ticket models.Ticket, now time.Time) models.PassStatus {
	return ticket.StatusAt(now)
}

func (d *Dashboard) Tickets() []models.Ticket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.Ticket(nil), d.tickets...)
}

// View recomputes statuses and stats against now.
func (d *Dashboard) View(now time.Time) View {
	return BuildView(d.Tickets(), now)
}

func BuildView(tickets []models.Ticket, now time.Time) View {
	views := make([]TicketView, len(tickets))
	for i, t := range tickets {
		views[i] = TicketView{Ticket: t, Status: Status(t, now)}
	}
	return View{Tickets: views, Stats: Stats(tickets, now)}
}

// Find looks a ticket up in the collection loaded for userID. Tickets loaded
// for any other user are never returned.
func (d *Dashboard) Find(userID, ticketID string) (*models.Ticket, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if userID == "" || userID != d.owner {
		return nil, false
	}
	for i := range d.tickets {
		if d.tickets[i].ID == ticketID {
			t := d.tickets[i]
			return &t, true
		}
	}
	return nil, false
}

// Cached returns the last reconciled collection from the local store.
func (d *Dashboard) Cached(ctx context.Context, userID string) ([]models.Ticket, error) {
	if d.Store == nil {
		return nil, fmt.Errorf("no local ticket store configured")
	}
	return d.Store.ListByUser(ctx, userID)
}

// CachedTicket looks a ticket up in the local store.
func (d *Dashboard) CachedTicket(ctx context.Context, userID, ticketID string) (*models.Ticket, error) {
	if d.Store == nil {
		return nil, fmt.Errorf("no local ticket store configured")
	}
	return d.Store.GetByID(ctx, userID, ticketID)
}

// Reset drops the loaded collection. Called on every session change.
func (d *Dashboard) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owner, d.tickets = "", nil
}

// Close stops later Load results from being applied.
func (d *Dashboard) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
}
