package portal_api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"smec-portal/internal/models"
	"smec-portal/internal/tickets/db"
	tickets "smec-portal/internal/tickets/service"
	"smec-portal/internal/utils"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	s := h.Sessions.Current(r.Context())
	list, err := h.Dashboard.Load(r.Context(), s)
	if err != nil {
		writeFailure(w, err, "Failed to load tickets")
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Dashboard", tickets.BuildView(list, time.Now()))
}

// DownloadPass renders the pass of a loaded ticket, falling back to the
// local store for tickets not yet loaded in this process.
func (h *Handler) DownloadPass(w http.ResponseWriter, r *http.Request) {
	s := h.Sessions.Current(r.Context())
	if s == nil {
		writeFailure(w, models.ErrUnauthenticated, "")
		return
	}

	ticketID := chi.URLParam(r, "ticketId")
	ticket, ok := h.Dashboard.Find(s.User.ID, ticketID)
	if !ok && h.Dashboard.Store != nil {
		cached, err := h.Dashboard.CachedTicket(r.Context(), s.User.ID, ticketID)
		switch {
		case errors.Is(err, db.ErrTicketNotFound):
			// not held locally either
		case err != nil:
			writeFailure(w, err, "Failed to load ticket")
			return
		default:
			ticket, ok = cached, true
		}
	}
	if !ok {
		utils.WriteError(w, http.StatusNotFound, "Ticket not found", ticketID)
		return
	}

	artifact, err := h.Passes.Render(*ticket)
	if err != nil {
		h.Logger.Error("PASS", fmt.Sprintf("Failed to render pass for %s: %v", ticketID, err))
		writeFailure(w, err, "Failed to generate pass")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.FileName()))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(artifact.Data); err != nil {
		h.Logger.Error("PASS", fmt.Sprintf("Failed to write pass: %v", err))
	}
}
