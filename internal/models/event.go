package models

import (
	"fmt"
	"time"
)

// LowStockThreshold marks events with fewer remaining slots as running out.
const LowStockThreshold = 5

type Event struct {
	ID           string    `json:"_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Date         time.Time `json:"date"`
	Time         string    `json:"time"`
	Location     string    `json:"location"`
	Category     string    `json:"category"`
	Price        float64   `json:"price"`
	TeamSize     int       `json:"teamSize"`
	TotalTickets int       `json:"totalTickets"`
	SoldTickets  int       `json:"soldTickets"`
	Image        string    `json:"image,omitempty"`
}

// Remaining is the server-reported stock. It is never recomputed from
// anything but totalTickets and soldTickets.
func (e *Event) Remaining() int {
	return e.TotalTickets - e.SoldTickets
}

func (e *Event) IsSoldOut() bool {
	return e.Remaining() <= 0
}

func (e *Event) IsLowStock() bool {
	r := e.Remaining()
	return r > 0 && r < LowStockThreshold
}

// StockLabel is the badge text shown next to an event, empty when stock is fine.
func (e *Event) StockLabel() string {
	switch {
	case e.IsSoldOut():
		return "Sold Out"
	case e.IsLowStock():
		return fmt.Sprintf("Only %d left!", e.Remaining())
	default:
		return ""
	}
}

// FormatLabel describes the competition format on the event page.
func (e *Event) FormatLabel() string {
	if e.TeamSize == 1 {
		return "Solo Competition"
	}
	return fmt.Sprintf("Team of %d", e.TeamSize)
}

// EntryLabel is the short form used on event cards.
func (e *Event) EntryLabel() string {
	if e.TeamSize > 1 {
		return fmt.Sprintf("%d Player Team", e.TeamSize)
	}
	return "Solo Entry"
}

// FindEvent searches events by id. The catalog API has no per-id endpoint.
func FindEvent(events []Event, id string) (*Event, bool) {
	for i := range events {
		if events[i].ID == id {
			ev := events[i]
			return &ev, true
		}
	}
	return nil, false
}
