package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/examdesk/examdesk/internal/generator"
	"github.com/examdesk/examdesk/internal/grading"
	"github.com/examdesk/examdesk/internal/model"
	"github.com/examdesk/examdesk/internal/quota"
	"github.com/examdesk/examdesk/internal/store"
)

func newTestHandler(t *testing.T) (*Handler, *store.Store) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	cfg := quota.Default()
	g := generator.New(s, cfg, rand.New(rand.NewPCG(1, 1)))
	return New(s, g, grading.New(s), cfg, false), s
}

func paramRequest(method, target string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestListAnswersEffectiveCategory(t *testing.T) {
	h, s := newTestHandler(t)

	candID, _, err := s.UpsertCandidate(model.Candidate{EnrolmentNo: "EN-1", Name: "Asha"})
	if err != nil {
		t.Fatalf("UpsertCandidate: %v", err)
	}

	common := model.QuestionPaper{PaperType: model.PaperSecondary, DurationMinutes: 60, Active: true}
	if err := s.SavePaper(&common); err != nil {
		t.Fatalf("SavePaper common: %v", err)
	}
	primary := model.QuestionPaper{PaperType: model.PaperPrimary, Trade: "OCC", DurationMinutes: 60, Active: true}
	if err := s.SavePaper(&primary); err != nil {
		t.Fatalf("SavePaper primary: %v", err)
	}

	for paperID, want := range map[int64]model.Category{
		common.ID:  model.CategorySecondary,
		primary.ID: model.CategoryPrimary,
	} {
		if err := s.UpsertCandidateAnswer(model.CandidateAnswer{
			CandidateID: candID, PaperID: paperID, QuestionID: 1, Answer: "a",
		}); err != nil {
			t.Fatalf("UpsertCandidateAnswer: %v", err)
		}

		rec := httptest.NewRecorder()
		h.handleListAnswers(rec, paramRequest(http.MethodGet, "/", map[string]string{
			"id":      fmt.Sprint(candID),
			"paperID": fmt.Sprint(paperID),
		}))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
		}
		var resp struct {
			EffectiveCategory model.Category          `json:"effective_category"`
			Answers           []model.CandidateAnswer `json:"answers"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.EffectiveCategory != want {
			t.Errorf("paper %d: effective_category = %q, want %q", paperID, resp.EffectiveCategory, want)
		}
		if len(resp.Answers) != 1 {
			t.Errorf("paper %d: expected 1 answer, got %d", paperID, len(resp.Answers))
		}
	}

	// An unknown paper is a 404, not an empty listing.
	rec := httptest.NewRecorder()
	h.handleListAnswers(rec, paramRequest(http.MethodGet, "/", map[string]string{
		"id": fmt.Sprint(candID), "paperID": "9999",
	}))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown paper status = %d", rec.Code)
	}
}
