package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"smec-portal/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var ErrTicketNotFound = errors.New("ticket not found")

type DB struct {
	Bun *bun.DB
}

// Open opens (or creates) the sqlite file at path and ensures the schema.
func Open(ctx context.Context, path string) (*DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}
	sqldb.SetMaxOpenConns(1)

	d := &DB{Bun: bun.NewDB(sqldb, sqlitedialect.New())}
	if err := d.CreateSchema(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) CreateSchema(ctx context.Context) error {
	_, err := d.Bun.NewCreateTable().
		Model((*LocalTicket)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create local_tickets table: %w", err)
	}
	return nil
}

func (d *DB) Close() error {
	return d.Bun.Close()
}

// Reconcile makes the user's rows equal to tickets. Rows for tickets the
// server no longer reports are deleted.
func (d *DB) Reconcile(ctx context.Context, userID string, tickets []models.Ticket) error {
	now := time.Now().UTC()
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		del := tx.NewDelete().
			Model((*LocalTicket)(nil)).
			Where("user_id = ?", userID)
		if len(tickets) > 0 {
			ids := make([]string, len(tickets))
			for i, t := range tickets {
				ids[i] = t.ID
			}
			del = del.Where("id NOT IN (?)", bun.In(ids))
		}
		if _, err := del.Exec(ctx); err != nil {
			return fmt.Errorf("failed to prune local tickets: %w", err)
		}

		if len(tickets) == 0 {
			return nil
		}
		rows := make([]LocalTicket, len(tickets))
		for i, t := range tickets {
			rows[i] = FromTicket(userID, t, now)
		}
		_, err := tx.NewInsert().
			Model(&rows).
			On("CONFLICT (id) DO UPDATE").
			Set("user_id = EXCLUDED.user_id").
			Set("serial_number = EXCLUDED.serial_number").
			Set("price_paid = EXCLUDED.price_paid").
			Set("team_members = EXCLUDED.team_members").
			Set("event_id = EXCLUDED.event_id").
			Set("event_title = EXCLUDED.event_title").
			Set("event_date = EXCLUDED.event_date").
			Set("event_time = EXCLUDED.event_time").
			Set("event_location = EXCLUDED.event_location").
			Set("event_category = EXCLUDED.event_category").
			Set("event_price = EXCLUDED.event_price").
			Set("team_size = EXCLUDED.team_size").
			Set("synced_at = EXCLUDED.synced_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert local tickets: %w", err)
		}
		return nil
	})
}

func (d *DB) ListByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	var rows []LocalTicket
	err := d.Bun.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Order("event_date ASC", "serial_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list local tickets: %w", err)
	}

	tickets := make([]models.Ticket, len(rows))
	for i, r := range rows {
		tickets[i] = r.ToTicket()
	}
	return tickets, nil
}

func (d *DB) GetByID(ctx context.Context, userID, ticketID string) (*models.Ticket, error) {
	var row LocalTicket
	err := d.Bun.NewSelect().
		Model(&row).
		Where("id = ?", ticketID).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket %s: %w", ticketID, ErrTicketNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load local ticket: %w", err)
	}
	t := row.ToTicket()
	return &t, nil
}

// CountByUser returns how many tickets are held locally for the user.
func (d *DB) CountByUser(ctx context.Context, userID string) (int, error) {
	count, err := d.Bun.NewSelect().
		Model((*LocalTicket)(nil)).
		Where("user_id = ?", userID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count local tickets: %w", err)
	}
	return count, nil
}
