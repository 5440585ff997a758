package portal_api

import (
	"sync"

	"smec-portal/internal/models"
	"smec-portal/internal/registration"
)

// FormRegistry keeps one registration form per event.
type FormRegistry struct {
	mu    sync.Mutex
	forms map[string]*registration.Form
}

func NewFormRegistry() *FormRegistry {
	return &FormRegistry{forms: make(map[string]*registration.Form)}
}

// Get returns the event's form, replacing it when the team size changed.
func (r *FormRegistry) Get(event models.Event, deps registration.Deps) *registration.Form {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.forms[event.ID]; ok {
		if len(f.State().Roster) == event.TeamSize {
			f.UpdateEvent(event)
			return f
		}
		f.Close()
	}
	f := registration.NewForm(event, deps)
	r.forms[event.ID] = f
	return f
}

func (r *FormRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, f := range r.forms {
		f.Close()
		delete(r.forms, id)
	}
}
