package generator

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/examdesk/examdesk/internal/model"
	"github.com/examdesk/examdesk/internal/quota"
	"github.com/examdesk/examdesk/internal/store"
)

func newTestGenerator(t *testing.T, seed uint64) (*Generator, *store.Store) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	g := New(s, quota.Default(), rand.New(rand.NewPCG(seed, seed)))
	return g, s
}

func addQuestions(t *testing.T, s *store.Store, n int, part model.Part, trade string) []int64 {
	t.Helper()
	ids := make([]int64, n)
	for i := range ids {
		id, err := s.InsertQuestion(model.Question{
			Text:     string(part) + " question " + string(rune('a'+i)),
			Part:     part,
			MaxMarks: 1,
			Trade:    trade,
			Active:   true,
		})
		if err != nil {
			t.Fatalf("InsertQuestion: %v", err)
		}
		ids[i] = id
	}
	return ids
}

func addCandidate(t *testing.T, s *store.Store, enrolmentNo, trade string) int64 {
	t.Helper()
	id, _, err := s.UpsertCandidate(model.Candidate{EnrolmentNo: enrolmentNo, Name: "n", Trade: trade})
	if err != nil {
		t.Fatalf("UpsertCandidate: %v", err)
	}
	return id
}

func TestGenerateCommonPaper(t *testing.T) {
	g, s := newTestGenerator(t, 1)

	paper := &model.QuestionPaper{
		PaperType:       model.PaperSecondary,
		DurationMinutes: 120,
		PartQuota:       map[string]int{"A": 2, "C": 1},
		Active:          true,
	}
	if err := s.SavePaper(paper); err != nil {
		t.Fatalf("SavePaper: %v", err)
	}

	linkedA := addQuestions(t, s, 3, model.PartA, "")
	linkedC := addQuestions(t, s, 2, model.PartC, "")
	// Unlinked questions must never appear in a common-paper draw.
	addQuestions(t, s, 5, model.PartA, "")
	for i, id := range append(linkedA, linkedC...) {
		if err := s.AddPaperQuestion(paper.ID, id, i); err != nil {
			t.Fatalf("AddPaperQuestion: %v", err)
		}
	}

	cand := addCandidate(t, s, "EN-1", "ELECTRICIAN")
	sess, err := g.Generate(cand, paper.ID, "ELECTRICIAN", false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sess.TotalQuestions != 3 {
		t.Fatalf("expected 3 questions, got %d", sess.TotalQuestions)
	}
	if sess.Trade != "" {
		t.Fatalf("common session must carry no trade, got %q", sess.Trade)
	}

	linked := map[int64]bool{}
	for _, id := range append(linkedA, linkedC...) {
		linked[id] = true
	}
	eqs, err := s.ListExamQuestions(sess.ID)
	if err != nil {
		t.Fatalf("ListExamQuestions: %v", err)
	}
	seen := map[int64]bool{}
	for i, eq := range eqs {
		if !linked[eq.QuestionID] {
			t.Fatalf("question %d drawn from outside the paper pool", eq.QuestionID)
		}
		if seen[eq.QuestionID] {
			t.Fatalf("question %d drawn twice", eq.QuestionID)
		}
		seen[eq.QuestionID] = true
		if eq.Order != i+1 {
			t.Fatalf("order index not monotonic: %+v", eq)
		}
	}
}

func TestGenerateCommonShortageIsFatal(t *testing.T) {
	g, s := newTestGenerator(t, 1)

	paper := &model.QuestionPaper{
		PaperType: model.PaperSecondary,
		PartQuota: map[string]int{"A": 5},
		Active:    true,
	}
	if err := s.SavePaper(paper); err != nil {
		t.Fatalf("SavePaper: %v", err)
	}
	// Plenty of global questions, but only two linked to the paper.
	global := addQuestions(t, s, 10, model.PartA, "")
	for i := 0; i < 2; i++ {
		if err := s.AddPaperQuestion(paper.ID, global[i], i); err != nil {
			t.Fatalf("AddPaperQuestion: %v", err)
		}
	}

	cand := addCandidate(t, s, "EN-2", "")
	_, err := g.Generate(cand, paper.ID, "", false)
	var shortage *ShortageError
	if !errors.As(err, &shortage) {
		t.Fatalf("expected ShortageError, got %v", err)
	}
	if shortage.Part != model.PartA || shortage.Want != 5 || shortage.Have != 2 {
		t.Fatalf("unexpected shortage detail: %+v", shortage)
	}

	// Nothing may have been persisted.
	n, _ := s.SessionCount()
	if n != 0 {
		t.Fatalf("shortage leaked %d session(s)", n)
	}
	eq, _ := s.ExamQuestionCount()
	if eq != 0 {
		t.Fatalf("shortage leaked %d exam question(s)", eq)
	}
}

func TestGeneratePrimaryTradeFallback(t *testing.T) {
	g, s := newTestGenerator(t, 7)

	paper := &model.QuestionPaper{
		PaperType: model.PaperPrimary,
		Trade:     "PLUMBER",
		PartQuota: map[string]int{"A": 4},
		Active:    true,
	}
	if err := s.SavePaper(paper); err != nil {
		t.Fatalf("SavePaper: %v", err)
	}

	// Only two trade-tagged questions; the rest must come from the open pool.
	addQuestions(t, s, 2, model.PartA, "PLUMBER")
	addQuestions(t, s, 6, model.PartA, "")

	cand := addCandidate(t, s, "EN-3", "PLUMBER")
	sess, err := g.Generate(cand, paper.ID, "", false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sess.TotalQuestions != 4 {
		t.Fatalf("expected 4 questions after fallback, got %d", sess.TotalQuestions)
	}
	if sess.Trade != "PLUMBER" {
		t.Fatalf("session trade not taken from paper: %q", sess.Trade)
	}
}

func TestGeneratePrimaryFallbackStillShort(t *testing.T) {
	g, s := newTestGenerator(t, 7)

	paper := &model.QuestionPaper{
		PaperType: model.PaperPrimary,
		Trade:     "PLUMBER",
		PartQuota: map[string]int{"A": 4},
		Active:    true,
	}
	if err := s.SavePaper(paper); err != nil {
		t.Fatalf("SavePaper: %v", err)
	}
	addQuestions(t, s, 3, model.PartA, "")

	cand := addCandidate(t, s, "EN-4", "PLUMBER")
	_, err := g.Generate(cand, paper.ID, "", false)
	var shortage *ShortageError
	if !errors.As(err, &shortage) {
		t.Fatalf("expected ShortageError, got %v", err)
	}
}

func TestGenerateUsesTradeQuota(t *testing.T) {
	g, s := newTestGenerator(t, 3)

	// No per-paper override: an OCC paper gets the extended trade quota.
	paper := &model.QuestionPaper{
		PaperType: model.PaperPrimary,
		Trade:     "OCC",
		Active:    true,
	}
	if err := s.SavePaper(paper); err != nil {
		t.Fatalf("SavePaper: %v", err)
	}
	want := quota.Default().ForTrade("OCC")
	for _, code := range want.Parts() {
		if n := want[code]; n > 0 {
			addQuestions(t, s, n+2, model.Part(code), "")
		}
	}

	cand := addCandidate(t, s, "EN-5", "OCC")
	sess, err := g.Generate(cand, paper.ID, "", false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sess.TotalQuestions != want.Total() {
		t.Fatalf("expected %d questions, got %d", want.Total(), sess.TotalQuestions)
	}
}

func TestGenerateDeterministicUnderSeed(t *testing.T) {
	draw := func(seed uint64) []int64 {
		g, s := newTestGenerator(t, seed)
		paper := &model.QuestionPaper{
			PaperType: model.PaperPrimary,
			Trade:     "WELDER",
			PartQuota: map[string]int{"A": 3},
			Active:    true,
		}
		if err := s.SavePaper(paper); err != nil {
			t.Fatalf("SavePaper: %v", err)
		}
		addQuestions(t, s, 10, model.PartA, "")
		cand := addCandidate(t, s, "EN-6", "WELDER")
		sess, err := g.Generate(cand, paper.ID, "", true)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		eqs, err := s.ListExamQuestions(sess.ID)
		if err != nil {
			t.Fatalf("ListExamQuestions: %v", err)
		}
		ids := make([]int64, len(eqs))
		for i, eq := range eqs {
			ids[i] = eq.QuestionID
		}
		return ids
	}

	a, b := draw(42), draw(42)
	if len(a) != len(b) {
		t.Fatalf("draw sizes differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced different draws: %v vs %v", a, b)
		}
	}
}
