package catalog

import (
	"context"
	"fmt"
	"sync"

	"smec-portal/internal/logger"
	"smec-portal/internal/models"
)

// EventSource fetches the full event listing.
type EventSource interface {
	Events(ctx context.Context) ([]models.Event, error)
}

// Accessor caches the last successful listing. There is no per-id endpoint,
// lookups search the cached collection.
type Accessor struct {
	source EventSource
	log    *logger.Logger

	mu     sync.RWMutex
	events []models.Event
	loaded bool
}

func NewAccessor(source EventSource, log *logger.Logger) *Accessor {
	return &Accessor{source: source, log: log}
}

// Refresh fetches all events once. On failure the previous collection is kept.
func (a *Accessor) Refresh(ctx context.Context) error {
	events, err := a.source.Events(ctx)
	if err != nil {
		a.log.Warn("CATALOG", fmt.Sprintf("Failed to refresh events: %v", err))
		return fmt.Errorf("failed to fetch events: %w", err)
	}

	a.mu.Lock()
	a.events = events
	a.loaded = true
	a.mu.Unlock()

	a.log.Debug("CATALOG", fmt.Sprintf("Loaded %d events", len(events)))
	return nil
}

// Loaded reports whether a refresh has ever succeeded.
func (a *Accessor) Loaded() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loaded
}

func (a *Accessor) Events() []models.Event {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]models.Event(nil), a.events...)
}

func (a *Accessor) Find(id string) (*models.Event, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return models.FindEvent(a.events, id)
}

// ByCategory filters by display label. An empty label returns everything.
// Known categories match case-insensitively, anything else matches verbatim.
func (a *Accessor) ByCategory(label string) []models.Event {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if label == "" {
		return append([]models.Event(nil), a.events...)
	}
	want := models.ParseCategory(label)
	var out []models.Event
	for _, ev := range a.events {
		if want != models.CategoryDefault && models.ParseCategory(ev.Category) == want {
			out = append(out, ev)
		} else if want == models.CategoryDefault && ev.Category == label {
			out = append(out, ev)
		}
	}
	return out
}

// Get refreshes when nothing is cached yet and then looks up id.
func (a *Accessor) Get(ctx context.Context, id string) (*models.Event, error) {
	if !a.Loaded() {
		if err := a.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	ev, ok := a.Find(id)
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, ErrEventNotFound)
	}
	return ev, nil
}
