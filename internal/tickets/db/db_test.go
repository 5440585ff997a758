package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"smec-portal/internal/models"
	"smec-portal/internal/tickets/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	d := &db.DB{Bun: bun.NewDB(sqldb, sqlitedialect.New())}
	require.NoError(t, d.CreateSchema(context.Background()))
	t.Cleanup(func() {
		_, _ = d.Bun.NewDropTable().Model((*db.LocalTicket)(nil)).IfExists().Exec(context.Background())
		_ = d.Close()
	})
	return d
}

func ticket(id, eventID string, date time.Time) models.Ticket {
	return models.Ticket{
		ID:           id,
		SerialNumber: "SMEC-" + id,
		PricePaid:    25,
		TeamMembers:  []models.TeamMember{{FullName: "Ada", UniversityName: "MIT"}},
		Event:        &models.Event{ID: eventID, Title: "Event " + eventID, Date: date, Location: "Hall", TeamSize: 1},
	}
}

func TestReconcileUpsertsAndPrunes(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, d.Reconcile(ctx, "u1", []models.Ticket{ticket("t1", "e1", date), ticket("t2", "e2", date.Add(24*time.Hour))}))
	require.NoError(t, d.Reconcile(ctx, "u2", []models.Ticket{ticket("t9", "e1", date)}))

	got, err := d.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID)
	assert.Equal(t, []models.TeamMember{{FullName: "Ada", UniversityName: "MIT"}}, got[0].TeamMembers)
	assert.True(t, date.Equal(got[0].Event.Date))

	// t1's event was deleted server-side; t2 got renamed
	renamed := ticket("t2", "e2", date)
	renamed.Event.Title = "Renamed"
	require.NoError(t, d.Reconcile(ctx, "u1", []models.Ticket{renamed}))

	got, err = d.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Renamed", got[0].Event.Title)

	count, err := d.CountByUser(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReconcileEmptyClearsUser(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.Reconcile(ctx, "u1", []models.Ticket{ticket("t1", "e1", time.Now())}))
	require.NoError(t, d.Reconcile(ctx, "u1", nil))

	count, err := d.CountByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGetByIDScopedToUser(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.Reconcile(ctx, "u1", []models.Ticket{ticket("t1", "e1", time.Now())}))

	got, err := d.GetByID(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "SMEC-t1", got.SerialNumber)

	_, err = d.GetByID(ctx, "u2", "t1")
	assert.ErrorIs(t, err, db.ErrTicketNotFound)
}
