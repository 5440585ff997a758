package models

import "time"

type TeamMember struct {
	FullName       string `json:"fullName"`
	UniversityName string `json:"universityName"`
}

// Ticket as reported by my-tickets. Event is nil once the parent event has
// been deleted server-side.
type Ticket struct {
	ID           string       `json:"_id"`
	SerialNumber string       `json:"serialNumber"`
	PricePaid    float64      `json:"pricePaid"`
	TeamMembers  []TeamMember `json:"teamMembers"`
	Event        *Event       `json:"event"`
}

func (t *Ticket) HasEvent() bool {
	return t.Event != nil
}

type PassStatus string

const (
	PassActive    PassStatus = "ACTIVE PASS"
	PassCompleted PassStatus = "COMPLETED"
)

// StatusAt classifies the ticket against now. It must be called on every
// render; the result is never stored.
func (t *Ticket) StatusAt(now time.Time) PassStatus {
	if t.Event != nil && t.Event.Date.Before(now) {
		return PassCompleted
	}
	return PassActive
}

type PurchaseRequest struct {
	EventID      string       `json:"eventId"`
	DiscountCode *string      `json:"discountCode"`
	TeamMembers  []TeamMember `json:"teamMembers"`
}

type AggregateStats struct {
	ActiveTickets int     `json:"activeTickets"`
	TotalSpent    float64 `json:"totalSpent"`
	TotalMembers  int     `json:"totalMembers"`
}
