package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/examdesk/examdesk/internal/grading"
	"github.com/examdesk/examdesk/internal/model"
)

func (h *Handler) handleAutoMark(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	awarded, err := h.engine.AutoMark(id)
	if err != nil {
		if errors.Is(err, grading.ErrLocked) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Info("auto-marked candidate", "candidate_id", id, "awarded", awarded)
	writeJSON(w, http.StatusOK, map[string]int{"awarded": awarded})
}

// handleApplyGrades takes a grader's mark sheet for one candidate and locks
// the result. Keys are answer ids; values are the entered marks fields.
func (h *Handler) handleApplyGrades(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	user := model.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Marks map[string]string `json:"marks"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	submitted := make(map[int64]string, len(req.Marks))
	for key, value := range req.Marks {
		answerID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid answer id "+key)
			return
		}
		submitted[answerID] = value
	}

	changed, err := h.engine.ApplyMarks(id, submitted, user.ID)
	if err != nil {
		if errors.Is(err, grading.ErrLocked) {
			writeError(w, http.StatusConflict, "candidate results are already locked")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Info("grades applied", "candidate_id", id, "grader_id", user.ID, "changed", changed)
	writeJSON(w, http.StatusOK, map[string]int{"changed": changed})
}

func (h *Handler) handleCandidateSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	totals, complete, err := h.engine.Summary(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	answers, err := h.store.ListAnswerDetails(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totals":             totals,
		"all_marks_assigned": complete,
		"answers":            answers,
	})
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	info, err := h.store.GetExamInfo()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	candidates, err := h.store.ExportAllCandidates()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.ResultsExport{
		ExamID:     info.ExamID,
		Date:       info.Date,
		Candidates: candidates,
	})
}
