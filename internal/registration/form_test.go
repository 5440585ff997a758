package registration_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"smec-portal/internal/api"
	"smec-portal/internal/api/apitest"
	"smec-portal/internal/catalog"
	"smec-portal/internal/logger"
	"smec-portal/internal/models"
	"smec-portal/internal/registration"
	regredis "smec-portal/internal/registration/redis"
	"smec-portal/internal/session"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPurchaser is a mock implementation of the Purchaser interface
type MockPurchaser struct {
	mock.Mock
}

func (m *MockPurchaser) BuyTicket(ctx context.Context, token string, req models.PurchaseRequest) (*models.Ticket, error) {
	args := m.Called(ctx, token, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

type staticSessions struct {
	session *models.Session
}

func (s staticSessions) Current(context.Context) *models.Session {
	return s.session
}

var (
	buyer  = &models.Session{Token: "tok", User: models.User{ID: "u1", Role: models.RoleBuyer}}
	squads = models.Event{ID: "e1", Title: "Valorant", TeamSize: 3, TotalTickets: 10, SoldTickets: 2}
	quiet  = logger.NewConsoleLogger(io.Discard)
)

func fill(t *testing.T, f *registration.Form, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.Edit(i, registration.FieldFullName, "Player"))
		require.NoError(t, f.Edit(i, registration.FieldUniversityName, "MIT"))
	}
}

func TestRosterHasTeamSizeIndependentEntries(t *testing.T) {
	f := registration.NewForm(squads, registration.Deps{})
	require.Len(t, f.State().Roster, 3)

	require.NoError(t, f.Edit(1, registration.FieldFullName, "Ada"))
	roster := f.State().Roster
	assert.Equal(t, "", roster[0].FullName)
	assert.Equal(t, "Ada", roster[1].FullName)
	assert.Equal(t, "", roster[2].FullName)

	// Snapshots do not alias internal state
	roster[0].FullName = "mutated"
	assert.Equal(t, "", f.State().Roster[0].FullName)
}

func TestEditRejectsBadInput(t *testing.T) {
	f := registration.NewForm(squads, registration.Deps{})
	assert.ErrorIs(t, f.Edit(-1, registration.FieldFullName, "x"), registration.ErrIndexOutOfRange)
	assert.ErrorIs(t, f.Edit(3, registration.FieldFullName, "x"), registration.ErrIndexOutOfRange)
	assert.ErrorIs(t, f.Edit(0, "email", "x"), registration.ErrUnknownField)
}

func TestValidateListsMissingFields(t *testing.T) {
	f := registration.NewForm(squads, registration.Deps{})
	fill(t, f, 3)
	assert.NoError(t, f.Validate())

	require.NoError(t, f.Edit(2, registration.FieldUniversityName, "   "))
	err := f.Validate()
	assert.ErrorIs(t, err, models.ErrIncompleteRoster)

	var roster *models.RosterError
	require.True(t, errors.As(err, &roster))
	assert.Equal(t, []models.FieldError{{Index: 2, Field: registration.FieldUniversityName}}, roster.Fields)
}

func TestResetReplacesRoster(t *testing.T) {
	f := registration.NewForm(squads, registration.Deps{})
	fill(t, f, 3)
	f.SetDiscountCode("promo")

	solo := models.Event{ID: "e2", TeamSize: 1, TotalTickets: 1}
	f.Reset(solo)
	state := f.State()
	assert.Len(t, state.Roster, 1)
	assert.Equal(t, "", state.Roster[0].FullName)
	assert.Equal(t, "", state.DiscountCode)
	assert.Equal(t, registration.StatusIdle, state.Status)
}

func TestNormalizeDiscount(t *testing.T) {
	assert.Nil(t, registration.NormalizeDiscount(""))
	assert.Nil(t, registration.NormalizeDiscount("   "))
	code := registration.NormalizeDiscount(" smec10 ")
	require.NotNil(t, code)
	assert.Equal(t, "SMEC10", *code)
}

func TestSubmitPreconditions(t *testing.T) {
	purchaser := new(MockPurchaser)
	ctx := context.Background()

	anon := registration.NewForm(squads, registration.Deps{Sessions: staticSessions{}, Purchaser: purchaser})
	fill(t, anon, 3)
	_, err := anon.Submit(ctx)
	assert.ErrorIs(t, err, models.ErrUnauthenticated)

	incomplete := registration.NewForm(squads, registration.Deps{Sessions: staticSessions{buyer}, Purchaser: purchaser})
	_, err = incomplete.Submit(ctx)
	assert.ErrorIs(t, err, models.ErrIncompleteRoster)

	soldOut := squads
	soldOut.SoldTickets = soldOut.TotalTickets
	full := registration.NewForm(soldOut, registration.Deps{Sessions: staticSessions{buyer}, Purchaser: purchaser})
	fill(t, full, 3)
	assert.False(t, full.CanSubmit())
	_, err = full.Submit(ctx)
	assert.ErrorIs(t, err, models.ErrSoldOut)

	purchaser.AssertNotCalled(t, "BuyTicket", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitSuccessSendsNormalizedPayload(t *testing.T) {
	purchaser := new(MockPurchaser)
	ticket := &models.Ticket{ID: "t1", SerialNumber: "SMEC-1"}
	purchaser.On("BuyTicket", mock.Anything, "tok", mock.MatchedBy(func(req models.PurchaseRequest) bool {
		return req.EventID == "e1" && req.DiscountCode != nil && *req.DiscountCode == "EARLY" && len(req.TeamMembers) == 3
	})).Return(ticket, nil).Once()

	f := registration.NewForm(squads, registration.Deps{Sessions: staticSessions{buyer}, Purchaser: purchaser, Logger: quiet})
	fill(t, f, 3)
	f.SetDiscountCode(" early ")

	got, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ticket, got)

	state := f.State()
	assert.Equal(t, registration.StatusSucceeded, state.Status)
	assert.Len(t, state.Roster, 3)
	assert.Equal(t, "", state.Roster[0].FullName)
	assert.Equal(t, "", state.DiscountCode)
	purchaser.AssertExpectations(t)
}

func TestSubmitFailureKeepsRoster(t *testing.T) {
	purchaser := new(MockPurchaser)
	purchaser.On("BuyTicket", mock.Anything, "tok", mock.Anything).
		Return(nil, &api.RemoteError{Status: 400, Message: "Invalid discount code"}).Once()
	purchaser.On("BuyTicket", mock.Anything, "tok", mock.Anything).
		Return(nil, &api.RemoteError{Status: 500}).Once()

	f := registration.NewForm(squads, registration.Deps{Sessions: staticSessions{buyer}, Purchaser: purchaser, Logger: quiet})
	fill(t, f, 3)

	_, err := f.Submit(context.Background())
	assert.ErrorIs(t, err, models.ErrRemoteFailure)
	state := f.State()
	assert.Equal(t, registration.StatusFailed, state.Status)
	assert.Equal(t, "Invalid discount code", state.Reason)
	assert.Equal(t, "Player", state.Roster[0].FullName)
	assert.True(t, state.CanSubmit)

	_, err = f.Submit(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "Registration Failed", f.State().Reason)
}

func TestDoubleSubmitIssuesOneRequest(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	purchaser := new(MockPurchaser)
	purchaser.On("BuyTicket", mock.Anything, "tok", mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(&models.Ticket{ID: "t1"}, nil).Once()

	f := registration.NewForm(squads, registration.Deps{Sessions: staticSessions{buyer}, Purchaser: purchaser, Logger: quiet})
	fill(t, f, 3)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.Submit(context.Background())
		assert.NoError(t, err)
	}()

	<-entered
	assert.Equal(t, registration.StatusSubmitting, f.State().Status)
	assert.False(t, f.CanSubmit())
	_, err := f.Submit(context.Background())
	assert.ErrorIs(t, err, models.ErrSubmissionInFlight)

	close(release)
	wg.Wait()
	purchaser.AssertNumberOfCalls(t, "BuyTicket", 1)
}

func TestCloseDropsLateResult(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	purchaser := new(MockPurchaser)
	purchaser.On("BuyTicket", mock.Anything, "tok", mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(&models.Ticket{ID: "t1"}, nil).Once()

	f := registration.NewForm(squads, registration.Deps{Sessions: staticSessions{buyer}, Purchaser: purchaser, Logger: quiet})
	fill(t, f, 3)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.Submit(context.Background())
	}()

	<-entered
	f.Close()
	close(release)
	<-done

	state := f.State()
	assert.Equal(t, registration.StatusSubmitting, state.Status)
	assert.Nil(t, state.Ticket)
}

type blockingCue struct {
	started chan struct{}
}

func (c blockingCue) Play(ctx context.Context, event models.Event) error {
	close(c.started)
	select {}
}

func TestCueIsNeverAwaited(t *testing.T) {
	purchaser := new(MockPurchaser)
	purchaser.On("BuyTicket", mock.Anything, "tok", mock.Anything).Return(&models.Ticket{ID: "t1"}, nil)

	cue := blockingCue{started: make(chan struct{})}
	f := registration.NewForm(squads, registration.Deps{Sessions: staticSessions{buyer}, Purchaser: purchaser, Cue: cue, Logger: quiet})
	fill(t, f, 3)

	done := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("submit waited on the cue")
	}
	<-cue.started
}

func TestLastSlotSellsOutEndToEnd(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	srv.SetEvents(models.Event{ID: "e1", Title: "Chess", TeamSize: 1, TotalTickets: 5, SoldTickets: 4})

	ctx := context.Background()
	client := api.NewClient(srv.URL, "", time.Second, quiet)
	events := catalog.NewAccessor(client, quiet)
	require.NoError(t, events.Refresh(ctx))

	store := session.NewStore(session.NewMemoryStorage(), session.WithLogger(quiet))
	require.NoError(t, store.Login(ctx, models.AuthResult{Token: apitest.TokenFor("u1"), User: models.User{ID: "u1"}}))

	ev, ok := events.Find("e1")
	require.True(t, ok)
	assert.Equal(t, 1, ev.Remaining())

	f := registration.NewForm(*ev, registration.Deps{Sessions: store, Purchaser: client, Events: events, Logger: quiet})
	fill(t, f, 1)
	_, err := f.Submit(ctx)
	require.NoError(t, err)

	state := f.State()
	assert.Equal(t, 0, state.Remaining)
	assert.False(t, state.CanSubmit)

	fill(t, f, 1)
	_, err = f.Submit(ctx)
	assert.ErrorIs(t, err, models.ErrSoldOut)
	assert.Equal(t, 1, srv.Calls("/api/events/buy-ticket"))
}

func TestSubmissionLockSharedAcrossForms(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	lock := regredis.NewSubmissionLock(client, "smec", time.Minute, quiet)

	purchaser := &MockPurchaser{}
	purchaser.On("BuyTicket", mock.Anything, "tok", mock.Anything).
		Return(&models.Ticket{ID: "t1"}, nil).Once()
	deps := registration.Deps{Sessions: staticSessions{buyer}, Purchaser: purchaser, Lock: lock, Logger: quiet}

	// Another process is mid-purchase for the same user and event
	held, err := lock.Acquire(context.Background(), "u1", "e1", "other-process")
	require.NoError(t, err)
	require.True(t, held)

	f := registration.NewForm(squads, deps)
	fill(t, f, 3)
	_, err = f.Submit(context.Background())
	assert.ErrorIs(t, err, models.ErrSubmissionInFlight)
	assert.Equal(t, registration.StatusIdle, f.State().Status)
	purchaser.AssertNotCalled(t, "BuyTicket", mock.Anything, mock.Anything, mock.Anything)

	require.NoError(t, lock.Release(context.Background(), "u1", "e1", "other-process"))

	ticket, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t1", ticket.ID)

	stillHeld, err := lock.Held(context.Background(), "u1", "e1")
	require.NoError(t, err)
	assert.False(t, stillHeld, "lock is released after the purchase")
	purchaser.AssertExpectations(t)
}

func TestUnreachableLockDoesNotBlockSubmit(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: time.Second})
	t.Cleanup(func() { client.Close() })

	purchaser := &MockPurchaser{}
	purchaser.On("BuyTicket", mock.Anything, "tok", mock.Anything).
		Return(&models.Ticket{ID: "t1"}, nil).Once()

	f := registration.NewForm(squads, registration.Deps{
		Sessions:  staticSessions{buyer},
		Purchaser: purchaser,
		Lock:      regredis.NewSubmissionLock(client, "smec", time.Minute, quiet),
		Logger:    quiet,
	})
	fill(t, f, 3)

	_, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, registration.StatusSucceeded, f.State().Status)
	purchaser.AssertExpectations(t)
}

type slowLock struct {
	entered chan struct{}
	proceed chan struct{}
}

func (l *slowLock) Acquire(ctx context.Context, userID, eventID, owner string) (bool, error) {
	close(l.entered)
	<-l.proceed
	return true, nil
}

func (l *slowLock) Release(ctx context.Context, userID, eventID, owner string) error {
	return nil
}

func TestSlowLockDoesNotBlockFormReads(t *testing.T) {
	purchaser := new(MockPurchaser)
	purchaser.On("BuyTicket", mock.Anything, "tok", mock.Anything).Return(&models.Ticket{ID: "t1"}, nil).Once()

	lock := &slowLock{entered: make(chan struct{}), proceed: make(chan struct{})}
	f := registration.NewForm(squads, registration.Deps{Sessions: staticSessions{buyer}, Purchaser: purchaser, Lock: lock, Logger: quiet})
	fill(t, f, 3)

	done := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background())
		done <- err
	}()
	<-lock.entered

	read := make(chan registration.State, 1)
	go func() { read <- f.State() }()
	select {
	case state := <-read:
		assert.Equal(t, registration.StatusSubmitting, state.Status)
		assert.False(t, state.CanSubmit)
	case <-time.After(time.Second):
		t.Fatal("State blocked behind the lock backend")
	}

	_, err := f.Submit(context.Background())
	assert.ErrorIs(t, err, models.ErrSubmissionInFlight)

	close(lock.proceed)
	require.NoError(t, <-done)
	assert.Equal(t, registration.StatusSucceeded, f.State().Status)
	purchaser.AssertExpectations(t)
}

func TestRejectedPreconditionRestoresState(t *testing.T) {
	purchaser := new(MockPurchaser)
	purchaser.On("BuyTicket", mock.Anything, "tok", mock.Anything).Return(nil, errors.New("boom")).Once()

	f := registration.NewForm(squads, registration.Deps{Sessions: staticSessions{buyer}, Purchaser: purchaser, Logger: quiet})
	fill(t, f, 3)
	_, err := f.Submit(context.Background())
	require.Error(t, err)
	failed := f.State()
	require.Equal(t, registration.StatusFailed, failed.Status)

	require.NoError(t, f.Edit(0, registration.FieldFullName, ""))
	_, err = f.Submit(context.Background())
	assert.ErrorIs(t, err, models.ErrIncompleteRoster)

	state := f.State()
	assert.Equal(t, registration.StatusFailed, state.Status)
	assert.Equal(t, failed.Reason, state.Reason)
	purchaser.AssertExpectations(t)
}

type recordingCue struct {
	mu     sync.Mutex
	played []string
}

func (c *recordingCue) Play(ctx context.Context, event models.Event) error {
	time.Sleep(20 * time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.played = append(c.played, event.ID)
	return nil
}

func TestFlushCuesWaitsForStartedCues(t *testing.T) {
	purchaser := new(MockPurchaser)
	purchaser.On("BuyTicket", mock.Anything, "tok", mock.Anything).Return(&models.Ticket{ID: "t1"}, nil)

	cue := &recordingCue{}
	f := registration.NewForm(squads, registration.Deps{Sessions: staticSessions{buyer}, Purchaser: purchaser, Cue: cue, Logger: quiet})
	fill(t, f, 3)
	_, err := f.Submit(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.FlushCues(context.Background()))
	cue.mu.Lock()
	assert.Equal(t, []string{"e1"}, cue.played)
	cue.mu.Unlock()

	stuck := registration.NewForm(squads, registration.Deps{Sessions: staticSessions{buyer}, Purchaser: purchaser,
		Cue: blockingCue{started: make(chan struct{})}, Logger: quiet})
	fill(t, stuck, 3)
	_, err = stuck.Submit(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, stuck.FlushCues(ctx), context.DeadlineExceeded)
}
