// Package handler exposes the JSON HTTP API: paper and question management,
// session generation, answer capture and grading.
package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/examdesk/examdesk/internal/generator"
	"github.com/examdesk/examdesk/internal/grading"
	"github.com/examdesk/examdesk/internal/model"
	"github.com/examdesk/examdesk/internal/quota"
	"github.com/examdesk/examdesk/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store         *store.Store
	generator     *generator.Generator
	engine        *grading.Engine
	cfg           *quota.Config
	secureCookies bool
}

// New creates a new Handler.
func New(s *store.Store, g *generator.Generator, e *grading.Engine, cfg *quota.Config, secureCookies bool) *Handler {
	return &Handler{store: s, generator: g, engine: e, cfg: cfg, secureCookies: secureCookies}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/logout", h.handleLogout)

		r.Get("/questions", h.handleListQuestions)
		r.Get("/questions/{id}", h.handleGetQuestion)
		r.Get("/papers", h.handleListPapers)
		r.Get("/papers/{id}", h.handleGetPaper)
		r.Get("/papers/{id}/questions", h.handleListPaperQuestions)
		r.Get("/sessions", h.handleListSessions)
		r.Get("/sessions/{id}", h.handleGetSession)
		r.Get("/candidates", h.handleListCandidates)
		r.Get("/candidates/{id}", h.handleGetCandidate)
		r.Get("/candidates/{id}/summary", h.handleCandidateSummary)
		r.Get("/candidates/{id}/papers/{paperID}/answers", h.handleListAnswers)
		r.Get("/results", h.handleResults)

		r.Post("/sessions", h.handleGenerateSession)
		r.Post("/sessions/{id}/complete", h.handleCompleteSession)
		r.Post("/candidates/{id}/papers/{paperID}/answers", h.handleSubmitAnswers)
		r.Post("/candidates/{id}/automark", h.handleAutoMark)
		r.Post("/candidates/{id}/grades", h.handleApplyGrades)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))
			r.Post("/questions", h.handleCreateQuestion)
			r.Put("/questions/{id}", h.handleUpdateQuestion)
			r.Put("/questions/{id}/active", h.handleSetQuestionActive)
			r.Delete("/questions/{id}", h.handleDeleteQuestion)
			r.Post("/papers", h.handleSavePaper)
			r.Put("/papers/{id}", h.handleSavePaper)
			r.Delete("/papers/{id}", h.handleDeletePaper)
			r.Post("/papers/{id}/questions", h.handleLinkQuestion)
			r.Delete("/papers/{id}/questions/{questionID}", h.handleUnlinkQuestion)
			r.Put("/candidates/{id}/marks", h.handleSetCandidateMarks)
			r.Post("/import", h.handleImport)
			r.Get("/users", h.handleListUsers)
			r.Post("/users", h.handleCreateUser)
			r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// urlID parses the named chi URL parameter as an int64, or writes a 400.
func urlID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	part := r.URL.Query().Get("part")
	trade := r.URL.Query().Get("trade")

	var (
		questions []model.Question
		err       error
	)
	if part != "" {
		if !model.ValidPart(part) {
			writeError(w, http.StatusBadRequest, "invalid part "+part)
			return
		}
		questions, err = h.store.ListActiveQuestionsByPart(model.Part(part), quota.NormalizeTrade(trade))
	} else {
		questions, err = h.store.ListQuestions()
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	q, err := h.store.GetQuestion(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "question not found")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var q model.Question
	if !decodeBody(w, r, &q) {
		return
	}
	if q.Text == "" || !model.ValidPart(string(q.Part)) {
		writeError(w, http.StatusBadRequest, "text and a valid part are required")
		return
	}
	q.Trade = quota.NormalizeTrade(q.Trade)
	q.Active = true
	id, err := h.store.InsertQuestion(q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	q.ID = id
	writeJSON(w, http.StatusCreated, q)
}

func (h *Handler) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var q model.Question
	if !decodeBody(w, r, &q) {
		return
	}
	if q.Text == "" || !model.ValidPart(string(q.Part)) {
		writeError(w, http.StatusBadRequest, "text and a valid part are required")
		return
	}
	q.ID = id
	q.Trade = quota.NormalizeTrade(q.Trade)
	if err := h.store.UpdateQuestion(q); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// handleSetQuestionActive retires or restores a question without deleting
// it, the safe path for questions already referenced by papers.
func (h *Handler) handleSetQuestionActive(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.store.SetQuestionActive(id, req.Active); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteQuestion(id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListPapers(w http.ResponseWriter, r *http.Request) {
	papers, err := h.store.ListPapers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, papers)
}

func (h *Handler) handleGetPaper(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.store.GetPaper(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "paper not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleSavePaper serves both POST /papers and PUT /papers/{id}. IsCommon
// and the trade are derived from the paper type on save, whatever the
// client sent.
func (h *Handler) handleSavePaper(w http.ResponseWriter, r *http.Request) {
	var p model.QuestionPaper
	if !decodeBody(w, r, &p) {
		return
	}
	if p.PaperType != model.PaperPrimary && p.PaperType != model.PaperSecondary {
		writeError(w, http.StatusBadRequest, "paper_type must be Primary or Secondary")
		return
	}
	if err := quota.Quota(p.PartQuota).Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p.Trade = quota.NormalizeTrade(p.Trade)
	if idStr := chi.URLParam(r, "id"); idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}
		p.ID = id
	}
	status := http.StatusOK
	if p.ID == 0 {
		status = http.StatusCreated
	}
	if err := h.store.SavePaper(&p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, status, p)
}

func (h *Handler) handleDeletePaper(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeletePaper(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListPaperQuestions(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	questions, err := h.store.ListPaperQuestions(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) handleLinkQuestion(w http.ResponseWriter, r *http.Request) {
	paperID, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		QuestionID int64 `json:"question_id"`
		Order      int   `json:"order"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.store.AddPaperQuestion(paperID, req.QuestionID, req.Order); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUnlinkQuestion(w http.ResponseWriter, r *http.Request) {
	paperID, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	questionID, ok := urlID(w, r, "questionID")
	if !ok {
		return
	}
	if err := h.store.RemovePaperQuestion(paperID, questionID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	sess, err := h.store.GetSession(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	questions, err := h.store.ListSessionQuestions(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":   sess,
		"questions": questions,
	})
}

func (h *Handler) handleGenerateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CandidateID int64  `json:"candidate_id"`
		PaperID     int64  `json:"paper_id"`
		Trade       string `json:"trade"`
		Shuffle     bool   `json:"shuffle"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	sess, err := h.generator.Generate(req.CandidateID, req.PaperID, req.Trade, req.Shuffle)
	if err != nil {
		var shortage *generator.ShortageError
		if errors.As(err, &shortage) {
			writeError(w, http.StatusUnprocessableEntity, shortage.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Info("session generated",
		"session_id", sess.ID, "candidate_id", req.CandidateID,
		"paper_id", req.PaperID, "questions", sess.TotalQuestions)
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.store.GetSession(id); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := h.store.CompleteSession(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmitAnswers captures a batch of answers for a candidate on a
// paper. Each pair upserts independently; the response is a single count.
func (h *Handler) handleSubmitAnswers(w http.ResponseWriter, r *http.Request) {
	candidateID, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	paperID, ok := urlID(w, r, "paperID")
	if !ok {
		return
	}
	var req struct {
		Answers []struct {
			QuestionID int64  `json:"question_id"`
			Answer     string `json:"answer"`
		} `json:"answers"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	saved := 0
	for _, a := range req.Answers {
		err := h.store.UpsertCandidateAnswer(model.CandidateAnswer{
			CandidateID: candidateID,
			PaperID:     paperID,
			QuestionID:  a.QuestionID,
			Answer:      a.Answer,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		saved++
	}
	writeJSON(w, http.StatusOK, map[string]int{"saved": saved})
}

func (h *Handler) handleListAnswers(w http.ResponseWriter, r *http.Request) {
	candidateID, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	paperID, ok := urlID(w, r, "paperID")
	if !ok {
		return
	}
	paper, err := h.store.GetPaper(paperID)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "paper not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	answers, err := h.store.ListCandidateAnswers(candidateID, paperID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"effective_category": paper.Category(),
		"answers":            answers,
	})
}

func (h *Handler) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.store.ListCandidates()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, candidates)
}

func (h *Handler) handleGetCandidate(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.store.GetCandidate(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "candidate not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleSetCandidateMarks records viva/practical marks, checked against the
// candidate's trade caps.
func (h *Handler) handleSetCandidateMarks(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.store.GetCandidate(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "candidate not found")
		return
	}

	var req struct {
		Viva1      int `json:"viva_1"`
		Viva2      int `json:"viva_2"`
		Practical1 int `json:"practical_1"`
		Practical2 int `json:"practical_2"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.cfg.ValidateCandidateMarks(c.Trade, req.Viva1, req.Viva2, req.Practical1, req.Practical2); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.SetCandidateMarks(id, req.Viva1, req.Viva2, req.Practical1, req.Practical2); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
