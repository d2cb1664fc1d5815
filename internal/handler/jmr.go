package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/jmr-leaderboard/internal/domain"
	"github.com/jmr-leaderboard/internal/storage"
)

const (
	// entryFailed is the GameEntry body the client reads as an auth error.
	entryFailed = "1"
	// firstPageView asks for page zero of the global board.
	firstPageView = "-1"
	// personalView selects the personal list when an id is given.
	personalView = "0"
	replayField  = "fileName"
)

// statusFor maps a core error onto an HTTP status
func statusFor(err error) int {
	switch {
	case domain.IsValidationError(err):
		return http.StatusBadRequest
	case domain.IsNotFoundError(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Index answers the client's connection probe
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// GameEntry authenticates a player, registering unknown ids when allowed.
// Params: id, pass, ver.
func (h *Handler) GameEntry(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("id")

	err := h.auth.GameEntry(r.Context(), id, q.Get("pass"))
	switch {
	case err == nil:
		h.writeText(w, http.StatusOK, "")
	case errors.Is(err, domain.ErrWrongPassword),
		errors.Is(err, domain.ErrRegistrationOff),
		errors.Is(err, domain.ErrInvalidRequest):
		h.logger.Info("game entry refused", "player_id", id, "reason", err)
		h.writeText(w, http.StatusOK, entryFailed)
	default:
		h.logger.Error("game entry failed", "player_id", id, "error", err)
		h.writeText(w, http.StatusOK, entryFailed)
	}
}

// GetMessage returns the main menu message
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	h.writeText(w, http.StatusOK, string(h.messages.Text()))
}

// GetName is requested by the client but carries no data
func (h *Handler) GetName(w http.ResponseWriter, r *http.Request) {
	h.writeText(w, http.StatusOK, "")
}

// GetRanking returns a personal or global ranking view.
// Params: id, mode, view.
func (h *Handler) GetRanking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, view := q.Get("id"), q.Get("view")

	mode, err := domain.ParseMode(q.Get("mode"))
	if err != nil {
		h.writeText(w, http.StatusBadRequest, "")
		return
	}

	if id != "" && view == personalView {
		rows, err := h.service.GetPersonalRanking(r.Context(), id, mode)
		if err != nil {
			h.logger.Error("failed to get personal ranking", "player_id", id, "mode", mode, "error", err)
			h.writeText(w, statusFor(err), "")
			return
		}
		h.writeText(w, http.StatusOK, encodeRows(rows))
		return
	}

	page, err := parseView(view)
	if err != nil {
		h.writeText(w, http.StatusBadRequest, "")
		return
	}

	result, err := h.service.GetGlobalRanking(r.Context(), mode, id, page)
	if err != nil {
		h.logger.Error("failed to get global ranking", "mode", mode, "error", err)
		h.writeText(w, statusFor(err), "")
		return
	}
	h.writeText(w, http.StatusOK, encodeRows(result.Rows))
}

func parseView(view string) (int, error) {
	if view == "" || view == firstPageView {
		return 0, nil
	}
	page, err := strconv.Atoi(view)
	if err != nil || page < 0 {
		return 0, fmt.Errorf("%w: view %q", domain.ErrInvalidRequest, view)
	}
	return page, nil
}

// GetReplay sends the replay of a ranking record as an attachment.
// Params: id.
func (h *Handler) GetReplay(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")

	replay, err := h.artifacts.Open(r.Context(), id)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("failed to open replay", "record_id", id, "error", err)
		}
		h.writeText(w, status, "")
		return
	}
	defer replay.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".rep"))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, replay); err != nil {
		h.logger.Warn("failed to send replay", "record_id", id, "error", err)
	}
}

// ScoreEntry records a finished run and its replay upload.
// Params: id, mode, score, jewel, level, class, time; multipart field fileName.
func (h *Handler) ScoreEntry(w http.ResponseWriter, r *http.Request) {
	sub, err := parseSubmission(r)
	if err != nil {
		h.writeText(w, http.StatusBadRequest, "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	staged, err := h.stageReplay(r)
	if err != nil {
		h.logger.Warn("failed to receive replay", "player_id", sub.PlayerID, "error", err)
		h.writeText(w, statusFor(err), "")
		return
	}

	result, err := h.service.SubmitScore(r.Context(), sub, staged)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("failed to submit score", "player_id", sub.PlayerID, "mode", sub.Mode, "error", err)
		}
		h.writeText(w, status, "")
		return
	}

	h.logger.Info("score entry",
		"player_id", sub.PlayerID,
		"mode", sub.Mode,
		"score", sub.Score,
		"outcome", result.Outcome,
		"record_id", result.RecordID,
		"personal_stored", result.PersonalStored,
	)
	h.writeText(w, http.StatusOK, "")
}

// stageReplay copies the uploaded replay, if any, into the artifact store
func (h *Handler) stageReplay(r *http.Request) (storage.TempHandle, error) {
	file, _, err := r.FormFile(replayField)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("%w: reading upload: %v", domain.ErrInvalidRequest, err)
	}
	defer file.Close()

	return h.artifacts.Stage(r.Context(), file)
}

func parseSubmission(r *http.Request) (domain.ScoreSubmission, error) {
	q := r.URL.Query()

	mode, err := domain.ParseMode(q.Get("mode"))
	if err != nil {
		return domain.ScoreSubmission{}, err
	}

	sub := domain.ScoreSubmission{PlayerID: q.Get("id")}
	sub.Mode = mode

	fields := []struct {
		name     string
		dst      *int64
		required bool
	}{
		{"score", &sub.Score, true},
		{"jewel", &sub.Jewel, false},
		{"level", &sub.Level, false},
		{"class", &sub.Class, false},
		{"time", &sub.Time, false},
	}
	for _, f := range fields {
		raw := q.Get(f.name)
		if raw == "" && !f.required {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.ScoreSubmission{}, fmt.Errorf("%w: %s %q", domain.ErrInvalidRequest, f.name, raw)
		}
		*f.dst = v
	}

	return sub, sub.Validate()
}
