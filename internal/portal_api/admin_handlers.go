package portal_api

import (
	"net/http"

	"smec-portal/internal/utils"
)

type eventStock struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	Sold      int    `json:"sold"`
	Total     int    `json:"total"`
	Remaining int    `json:"remaining"`
}

type adminOverview struct {
	Events      []eventStock `json:"events"`
	TotalSold   int          `json:"totalSold"`
	TotalSlots  int          `json:"totalSlots"`
	SoldOut     int          `json:"soldOut"`
	RunningLow  int          `json:"runningLow"`
	CatalogLive bool         `json:"catalogLive"`
}

// AdminDashboard summarizes stock across the catalog. Only reachable for
// admin sessions.
func (h *Handler) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	live := h.Catalog.Refresh(r.Context()) == nil
	if !live && !h.Catalog.Loaded() {
		utils.WriteError(w, http.StatusBadGateway, "Failed to load events", "")
		return
	}

	overview := adminOverview{CatalogLive: live}
	for _, ev := range h.Catalog.Events() {
		overview.Events = append(overview.Events, eventStock{
			ID:        ev.ID,
			Title:     ev.Title,
			Category:  ev.Category,
			Sold:      ev.SoldTickets,
			Total:     ev.TotalTickets,
			Remaining: ev.Remaining(),
		})
		overview.TotalSold += ev.SoldTickets
		overview.TotalSlots += ev.TotalTickets
		if ev.IsSoldOut() {
			overview.SoldOut++
		} else if ev.IsLowStock() {
			overview.RunningLow++
		}
	}
	utils.WriteSuccess(w, http.StatusOK, "Admin dashboard", overview)
}
