package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"smec-portal/internal/api/apitest"
	"smec-portal/internal/catalog"
	"smec-portal/internal/config"
	"smec-portal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliHarness struct {
	backend *apitest.Server
	cfg     *config.Config
	passes  string
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	backend := apitest.NewServer()
	t.Cleanup(backend.Close)
	backend.AddUser(models.User{ID: "b1", FullName: "Bea", Email: "bea@x.io", Role: models.RoleBuyer}, "pw")
	backend.SetEvents(
		models.Event{ID: "e1", Title: "Valorant", Category: "E-Games", TeamSize: 2, TotalTickets: 4, SoldTickets: 3,
			Date: time.Now().Add(72 * time.Hour), Time: "10:00 AM", Location: "Arena"},
		models.Event{ID: "e2", Title: "Hackathon", Category: "Geeks", TeamSize: 1, TotalTickets: 10},
	)

	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.API.BaseURL = backend.URL
	cfg.API.PurchaseURL = backend.URL
	cfg.API.Timeout = 5 * time.Second
	cfg.Session.Backend = "file"
	cfg.Session.Dir = filepath.Join(dir, "session")
	cfg.Database.Path = filepath.Join(dir, "smec.db")
	cfg.Pass.OutputDir = filepath.Join(dir, "passes")
	return &cliHarness{backend: backend, cfg: cfg, passes: cfg.Pass.OutputDir}
}

func (h *cliHarness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, h.cfg, stdio{In: strings.NewReader(stdin), Out: &out, Err: io.Discard})
	return out.String(), err
}

func TestParseMember(t *testing.T) {
	m, err := parseMember("Ada Lovelace|SMEC")
	require.NoError(t, err)
	assert.Equal(t, models.TeamMember{FullName: "Ada Lovelace", UniversityName: "SMEC"}, m)

	_, err = parseMember("Ada Lovelace")
	assert.Error(t, err)
}

func TestUsageAndUnknownCommand(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run(t, "")
	require.NoError(t, err)
	assert.Contains(t, out, "register")
	assert.Contains(t, out, "watch")

	_, err = h.run(t, "", "fly")
	assert.ErrorContains(t, err, `unknown command "fly"`)
}

func TestLoginPersistsAcrossRuns(t *testing.T) {
	h := newCLIHarness(t)

	_, err := h.run(t, "", "login", "--email", "bea@x.io", "--password", "nope")
	assert.EqualError(t, err, "Incorrect email or password")

	out, err := h.run(t, "pw\n", "login", "--email", "bea@x.io")
	require.NoError(t, err)
	assert.Contains(t, out, "Welcome Back Bea!")

	out, err = h.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Bea <bea@x.io> (buyer)")

	_, err = h.run(t, "", "logout")
	require.NoError(t, err)
	out, err = h.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")
}

func TestEventsByCategory(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run(t, "", "events", "--category", "Geeks")
	require.NoError(t, err)
	assert.Contains(t, out, "Hackathon")
	assert.NotContains(t, out, "Valorant")

	out, err = h.run(t, "", "event", "e1")
	require.NoError(t, err)
	assert.Contains(t, out, "Slots:    1 of 4 left")

	_, err = h.run(t, "", "event", "missing")
	assert.ErrorIs(t, err, catalog.ErrEventNotFound)
}

func TestRegisterTicketsAndPass(t *testing.T) {
	h := newCLIHarness(t)

	_, err := h.run(t, "", "register", "e1", "--member", "Ada|SMEC", "--member", "Alan|SMEC")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)

	_, err = h.run(t, "", "login", "--email", "bea@x.io", "--password", "pw")
	require.NoError(t, err)

	_, err = h.run(t, "", "register", "e1", "--member", "Ada|SMEC")
	assert.ErrorContains(t, err, "needs exactly 2 member(s), got 1")
	assert.Empty(t, h.backend.Purchases())

	out, err := h.run(t, "", "register", "e1", "--member", "Ada|SMEC", "--member", "Alan|SMEC", "--discount", " EARLY ")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered Successfully!")
	assert.Contains(t, out, "SMEC-0001")

	purchases := h.backend.Purchases()
	require.Len(t, purchases, 1)
	require.NotNil(t, purchases[0].DiscountCode)
	assert.Equal(t, "EARLY", *purchases[0].DiscountCode)

	_, err = h.run(t, "", "register", "e1", "--member", "Ada|SMEC", "--member", "Alan|SMEC")
	assert.ErrorIs(t, err, models.ErrSoldOut)

	out, err = h.run(t, "", "tickets")
	require.NoError(t, err)
	assert.Contains(t, out, "Active: 1")
	assert.Contains(t, out, "SMEC-0001")

	out, err = h.run(t, "", "tickets", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "SMEC-0001")

	out, err = h.run(t, "", "pass", "t1")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved ")

	entries, err := os.ReadDir(h.passes)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(h.passes, entries[0].Name()))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	_, err = h.run(t, "", "pass", "nope")
	assert.ErrorContains(t, err, "ticket nope not found")
}

func TestWatchRequiresOrganizer(t *testing.T) {
	h := newCLIHarness(t)
	_, err := h.run(t, "", "watch")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestRegisterFlushesCueBeforeExit(t *testing.T) {
	h := newCLIHarness(t)
	_, err := h.run(t, "", "login", "--email", "bea@x.io", "--password", "pw")
	require.NoError(t, err)

	var out, errOut bytes.Buffer
	err = run(context.Background(),
		[]string{"register", "e2", "--member", "Ada|SMEC"},
		h.cfg, stdio{In: strings.NewReader(""), Out: &out, Err: &errOut})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Registered Successfully!")
	// the bell was rung and flushed before run returned
	assert.Contains(t, errOut.String(), "\a")
}
