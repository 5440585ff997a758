package portal_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"smec-portal/internal/models"
	"smec-portal/internal/registration"
	"smec-portal/internal/utils"

	"github.com/go-chi/chi/v5"
)

type eventCard struct {
	models.Event
	Remaining   int                  `json:"remaining"`
	SoldOut     bool                 `json:"soldOut"`
	StockLabel  string               `json:"stockLabel,omitempty"`
	EntryLabel  string               `json:"entryLabel"`
	FormatLabel string               `json:"formatLabel"`
	Style       models.CategoryStyle `json:"style"`
}

func cardOf(ev models.Event) eventCard {
	return eventCard{
		Event:       ev,
		Remaining:   ev.Remaining(),
		SoldOut:     ev.IsSoldOut(),
		StockLabel:  ev.StockLabel(),
		EntryLabel:  ev.EntryLabel(),
		FormatLabel: ev.FormatLabel(),
		Style:       models.StyleFor(ev.Category),
	}
}

// refreshCatalog refreshes the catalog. Stale data is served when a refresh
// fails after an earlier success.
func (h *Handler) refreshCatalog(w http.ResponseWriter, r *http.Request) bool {
	if err := h.Catalog.Refresh(r.Context()); err != nil {
		if h.Catalog.Loaded() {
			h.Logger.Warn("CATALOG", "Serving cached events after failed refresh")
			return true
		}
		writeFailure(w, err, "Failed to load events")
		return false
	}
	return true
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if !h.refreshCatalog(w, r) {
		return
	}

	events := h.Catalog.ByCategory(r.URL.Query().Get("category"))
	cards := make([]eventCard, len(events))
	for i, ev := range events {
		cards[i] = cardOf(ev)
	}
	utils.WriteSuccess(w, http.StatusOK, "Events", map[string]any{
		"events":     cards,
		"categories": models.Categories(),
	})
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	if !h.refreshCatalog(w, r) {
		return
	}

	ev, ok := h.Catalog.Find(chi.URLParam(r, "eventId"))
	if !ok {
		utils.WriteError(w, http.StatusNotFound, "Event Not Found", "")
		return
	}

	form := h.Forms.Get(*ev, h.formDeps())
	utils.WriteSuccess(w, http.StatusOK, "Event", map[string]any{
		"event": cardOf(*ev),
		"form":  form.State(),
	})
}

type registerBody struct {
	TeamMembers  []models.TeamMember `json:"teamMembers"`
	DiscountCode string              `json:"discountCode"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if !h.refreshCatalog(w, r) {
		return
	}
	eventID := chi.URLParam(r, "eventId")
	ev, ok := h.Catalog.Find(eventID)
	if !ok {
		utils.WriteError(w, http.StatusNotFound, "Event Not Found", "")
		return
	}

	form := h.Forms.Get(*ev, h.formDeps())
	if form.State().Status == registration.StatusSubmitting {
		writeFailure(w, models.ErrSubmissionInFlight, "")
		return
	}
	if len(body.TeamMembers) != ev.TeamSize {
		utils.WriteError(w, http.StatusBadRequest,
			fmt.Sprintf("Expected %d team members, got %d", ev.TeamSize, len(body.TeamMembers)), "")
		return
	}
	for i, m := range body.TeamMembers {
		if err := form.Edit(i, registration.FieldFullName, m.FullName); err != nil {
			utils.WriteError(w, http.StatusBadRequest, "Invalid team member", err.Error())
			return
		}
		if err := form.Edit(i, registration.FieldUniversityName, m.UniversityName); err != nil {
			utils.WriteError(w, http.StatusBadRequest, "Invalid team member", err.Error())
			return
		}
	}
	form.SetDiscountCode(body.DiscountCode)

	ticket, err := form.Submit(r.Context())
	if err != nil {
		h.Logger.LogRegistration("rejected", eventID, err.Error())
		writeFailure(w, err, "Registration Failed")
		return
	}

	utils.WriteSuccess(w, http.StatusCreated, "Registered Successfully!", map[string]any{
		"ticket":   ticket,
		"form":     form.State(),
		"redirect": "/dashboard",
	})
}
