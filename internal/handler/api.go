package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jmr-leaderboard/internal/domain"
)

// GetRankingPage returns a global ranking page as JSON.
// Query: player (optional), page.
func (h *Handler) GetRankingPage(w http.ResponseWriter, r *http.Request) {
	mode, err := domain.ParseMode(chi.URLParam(r, "mode"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidMode)
		return
	}

	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 0 {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		page = p
	}

	view, err := h.service.GetGlobalRanking(r.Context(), mode, r.URL.Query().Get("player"), page)
	if err != nil {
		h.logger.Error("failed to get ranking page", "mode", mode, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, view)
}

// GetPlayerRankings returns a player's personal list for a mode as JSON
func (h *Handler) GetPlayerRankings(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	mode, err := domain.ParseMode(chi.URLParam(r, "mode"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidMode)
		return
	}

	rows, err := h.service.GetPersonalRanking(r.Context(), playerID, mode)
	if err != nil {
		h.logger.Error("failed to get player rankings", "player_id", playerID, "mode", mode, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, rows)
}
