package db

import (
	"time"

	"smec-portal/internal/models"

	"github.com/uptrace/bun"
)

// LocalTicket is the on-disk copy of a ticket with its event flattened in.
type LocalTicket struct {
	bun.BaseModel `bun:"table:local_tickets"`

	ID           string              `bun:"id,pk"`
	UserID       string              `bun:"user_id,notnull"`
	SerialNumber string              `bun:"serial_number,notnull"`
	PricePaid    float64             `bun:"price_paid"`
	TeamMembers  []models.TeamMember `bun:"team_members,type:json"`

	EventID       string    `bun:"event_id,notnull"`
	EventTitle    string    `bun:"event_title"`
	EventDate     time.Time `bun:"event_date"`
	EventTime     string    `bun:"event_time"`
	EventLocation string    `bun:"event_location"`
	EventCategory string    `bun:"event_category"`
	EventPrice    float64   `bun:"event_price"`
	TeamSize      int       `bun:"team_size"`

	SyncedAt time.Time `bun:"synced_at,notnull"`
}

func FromTicket(userID string, t models.Ticket, syncedAt time.Time) LocalTicket {
	lt := LocalTicket{
		ID:           t.ID,
		UserID:       userID,
		SerialNumber: t.SerialNumber,
		PricePaid:    t.PricePaid,
		TeamMembers:  t.TeamMembers,
		SyncedAt:     syncedAt,
	}
	if t.Event != nil {
		lt.EventID = t.Event.ID
		lt.EventTitle = t.Event.Title
		lt.EventDate = t.Event.Date
		lt.EventTime = t.Event.Time
		lt.EventLocation = t.Event.Location
		lt.EventCategory = t.Event.Category
		lt.EventPrice = t.Event.Price
		lt.TeamSize = t.Event.TeamSize
	}
	return lt
}

func (lt LocalTicket) ToTicket() models.Ticket {
	return models.Ticket{
		ID:           lt.ID,
		SerialNumber: lt.SerialNumber,
		PricePaid:    lt.PricePaid,
		TeamMembers:  lt.TeamMembers,
		Event: &models.Event{
			ID:       lt.EventID,
			Title:    lt.EventTitle,
			Date:     lt.EventDate,
			Time:     lt.EventTime,
			Location: lt.EventLocation,
			Category: lt.EventCategory,
			Price:    lt.EventPrice,
			TeamSize: lt.TeamSize,
		},
	}
}
