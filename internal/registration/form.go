package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"smec-portal/internal/api"
	"smec-portal/internal/auth"
	"smec-portal/internal/logger"
	"smec-portal/internal/models"

	"github.com/google/uuid"
)

const (
	FieldFullName       = "fullName"
	FieldUniversityName = "universityName"
)

var (
	ErrIndexOutOfRange = errors.New("team member index out of range")
	ErrUnknownField    = errors.New("unknown team member field")
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Purchaser issues one purchase request.
type Purchaser interface {
	BuyTicket(ctx context.Context, token string, req models.PurchaseRequest) (*models.Ticket, error)
}

// Locker serializes submissions of one user for one event across processes.
type Locker interface {
	Acquire(ctx context.Context, userID, eventID, owner string) (bool, error)
	Release(ctx context.Context, userID, eventID, owner string) error
}

// EventRefresher reloads stock after a successful purchase.
type EventRefresher interface {
	Refresh(ctx context.Context) error
	Find(id string) (*models.Event, bool)
}

type Deps struct {
	Sessions  auth.SessionSource
	Purchaser Purchaser
	Events    EventRefresher // optional
	Cue       Cue            // optional
	Lock      Locker         // optional
	Logger    *logger.Logger
}

// State is a snapshot of the form.
type State struct {
	EventID      string              `json:"eventId"`
	Status       Status              `json:"status"`
	Reason       string              `json:"reason,omitempty"`
	Roster       []models.TeamMember `json:"teamMembers"`
	DiscountCode string              `json:"discountCode"`
	Remaining    int                 `json:"remaining"`
	CanSubmit    bool                `json:"canSubmit"`
	Ticket       *models.Ticket      `json:"ticket,omitempty"`
}

// Form is the registration form of one event. All transitions happen under mu.
type Form struct {
	deps Deps

	mu       sync.Mutex
	event    models.Event
	roster   []models.TeamMember
	discount string
	status   Status
	reason   string
	ticket   *models.Ticket
	closed   bool

	cues sync.WaitGroup
}

func NewForm(event models.Event, deps Deps) *Form {
	f := &Form{deps: deps}
	f.Reset(event)
	return f
}

// Reset replaces the roster wholesale with teamSize fresh entries.
func (f *Form) Reset(event models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.event = event
	f.roster = freshRoster(event.TeamSize)
	f.discount = ""
	f.status = StatusIdle
	f.reason = ""
	f.ticket = nil
}

func freshRoster(size int) []models.TeamMember {
	if size < 0 {
		size = 0
	}
	return make([]models.TeamMember, size)
}

// UpdateEvent swaps in fresher event data without touching the roster.
func (f *Form) UpdateEvent(event models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if event.ID != f.event.ID || event.TeamSize != f.event.TeamSize {
		return
	}
	f.event = event
}

func (f *Form) Edit(index int, field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if index < 0 || index >= len(f.roster) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	switch field {
	case FieldFullName:
		f.roster[index].FullName = value
	case FieldUniversityName:
		f.roster[index].UniversityName = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return nil
}

func (f *Form) SetDiscountCode(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discount = code
}

func (f *Form) Validate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return validate(f.roster)
}

func validate(roster []models.TeamMember) error {
	var fields []models.FieldError
	for i, m := range roster {
		if strings.TrimSpace(m.FullName) == "" {
			fields = append(fields, models.FieldError{Index: i, Field: FieldFullName})
		}
		if strings.TrimSpace(m.UniversityName) == "" {
			fields = append(fields, models.FieldError{Index: i, Field: FieldUniversityName})
		}
	}
	if len(fields) > 0 {
		return &models.RosterError{Fields: fields}
	}
	return nil
}

// CanSubmit reports whether the submit control is enabled.
func (f *Form) CanSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canSubmit()
}

func (f *Form) canSubmit() bool {
	return f.status != StatusSubmitting && f.event.Remaining() > 0
}

func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return State{
		EventID:      f.event.ID,
		Status:       f.status,
		Reason:       f.reason,
		Roster:       append([]models.TeamMember(nil), f.roster...),
		DiscountCode: f.discount,
		Remaining:    f.event.Remaining(),
		CanSubmit:    f.canSubmit(),
		Ticket:       f.ticket,
	}
}

// Close marks the form as gone. In-flight results arriving later are dropped.
func (f *Form) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// NormalizeDiscount trims and upper-cases a code. Empty becomes nil.
func NormalizeDiscount(code string) *string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	return &code
}

// Submit validates and issues exactly one purchase request. The form is
// marked submitting before any I/O so mu is never held across a call out.
func (f *Form) Submit(ctx context.Context) (*models.Ticket, error) {
	f.mu.Lock()
	if f.status == StatusSubmitting {
		f.mu.Unlock()
		return nil, models.ErrSubmissionInFlight
	}
	prevStatus, prevReason := f.status, f.reason
	f.status = StatusSubmitting
	event := f.event
	roster := append([]models.TeamMember(nil), f.roster...)
	discount := f.discount
	f.mu.Unlock()

	// abort restores the state a rejected precondition found.
	abort := func(err error) (*models.Ticket, error) {
		f.mu.Lock()
		if !f.closed && f.status == StatusSubmitting {
			f.status, f.reason = prevStatus, prevReason
		}
		f.mu.Unlock()
		return nil, err
	}

	session := f.deps.Sessions.Current(ctx)
	if session == nil {
		return abort(models.ErrUnauthenticated)
	}
	if err := validate(roster); err != nil {
		return abort(err)
	}
	if event.IsSoldOut() {
		return abort(models.ErrSoldOut)
	}

	owner := uuid.NewString()
	locked, err := f.acquire(ctx, session.User.ID, event.ID, owner)
	if err != nil {
		return abort(err)
	}
	if locked {
		defer f.release(ctx, session.User.ID, event.ID, owner)
	}

	req := models.PurchaseRequest{
		EventID:      event.ID,
		DiscountCode: NormalizeDiscount(discount),
		TeamMembers:  roster,
	}
	f.mu.Lock()
	f.playCue(ctx, event)
	f.reason = ""
	f.mu.Unlock()

	f.deps.Logger.LogRegistration("submit", event.ID, fmt.Sprintf("registering team of %d", len(req.TeamMembers)))
	ticket, err := f.deps.Purchaser.BuyTicket(ctx, session.Token, req)

	if err == nil && f.deps.Events != nil {
		if rerr := f.deps.Events.Refresh(ctx); rerr != nil {
			f.deps.Logger.Warn("REGISTRATION", fmt.Sprintf("Failed to refresh stock after purchase: %v", rerr))
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		f.deps.Logger.Debug("REGISTRATION", "form closed before purchase completed, result dropped")
		return ticket, err
	}

	if err != nil {
		f.status = StatusFailed
		f.reason = api.Message(err, api.DefaultPurchaseMessage)
		f.deps.Logger.LogRegistration("failed", event.ID, f.reason)
		return nil, err
	}

	f.status = StatusSucceeded
	f.ticket = ticket
	f.roster = freshRoster(event.TeamSize)
	f.discount = ""
	if f.deps.Events != nil {
		if fresh, ok := f.deps.Events.Find(event.ID); ok && fresh.TeamSize == f.event.TeamSize {
			f.event = *fresh
		}
	}
	f.deps.Logger.LogRegistration("succeeded", event.ID, "Registered Successfully!")
	return ticket, nil
}

// acquire takes the cross-process lock. An unreachable lock backend only
// logs; the form's own status still guards this process.
func (f *Form) acquire(ctx context.Context, userID, eventID, owner string) (bool, error) {
	if f.deps.Lock == nil {
		return false, nil
	}
	ok, err := f.deps.Lock.Acquire(ctx, userID, eventID, owner)
	if err != nil {
		f.deps.Logger.Warn("REGISTRATION", fmt.Sprintf("Submission lock unavailable: %v", err))
		return false, nil
	}
	if !ok {
		return false, models.ErrSubmissionInFlight
	}
	return true, nil
}

func (f *Form) release(ctx context.Context, userID, eventID, owner string) {
	if err := f.deps.Lock.Release(context.WithoutCancel(ctx), userID, eventID, owner); err != nil {
		f.deps.Logger.Warn("REGISTRATION", fmt.Sprintf("Failed to release submission lock: %v", err))
	}
}

// playCue starts the cue without waiting for it. Must hold mu.
func (f *Form) playCue(ctx context.Context, event models.Event) {
	if f.deps.Cue == nil {
		return
	}
	cue := f.deps.Cue
	log := f.deps.Logger
	f.cues.Add(1)
	go func() {
		defer f.cues.Done()
		if err := cue.Play(context.WithoutCancel(ctx), event); err != nil {
			log.Warn("REGISTRATION", fmt.Sprintf("Purchase cue failed: %v", err))
		}
	}()
}

// FlushCues waits until every cue started so far has finished or ctx ends.
// Submit never waits on cues; short-lived callers use this before tearing
// down what the cues publish through.
func (f *Form) FlushCues(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.cues.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
