package grading

import (
	"errors"
	"strconv"
	"testing"

	"github.com/examdesk/examdesk/internal/model"
	"github.com/examdesk/examdesk/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

func addCandidate(t *testing.T, s *store.Store, enrolmentNo string) int64 {
	t.Helper()
	id, _, err := s.UpsertCandidate(model.Candidate{EnrolmentNo: enrolmentNo, Name: "n"})
	if err != nil {
		t.Fatalf("UpsertCandidate: %v", err)
	}
	return id
}

func addGrader(t *testing.T, s *store.Store) int64 {
	t.Helper()
	id, err := s.CreateUser(model.User{Username: "grader", PasswordHash: "x", Role: model.UserRoleGrader, Active: true})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return id
}

// addAnswer inserts a question and one grading record against it, returning
// the answer id.
func addAnswer(t *testing.T, s *store.Store, candidateID int64, part model.Part, key string, max float64, given string) int64 {
	t.Helper()
	qID, err := s.InsertQuestion(model.Question{
		Text:          "q " + string(part) + " " + key + " " + strconv.FormatInt(candidateID, 10) + given,
		Part:          part,
		MaxMarks:      max,
		CorrectAnswer: key,
		Active:        true,
	})
	if err != nil {
		t.Fatalf("InsertQuestion: %v", err)
	}
	aID, err := s.CreateAnswer(model.Answer{
		CandidateID: candidateID,
		QuestionID:  qID,
		Category:    model.CategoryPrimary,
		Answer:      given,
	})
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	return aID
}

func marksOf(t *testing.T, s *store.Store, candidateID, answerID int64) *float64 {
	t.Helper()
	details, err := s.ListAnswerDetails(candidateID)
	if err != nil {
		t.Fatalf("ListAnswerDetails: %v", err)
	}
	for _, d := range details {
		if d.AnswerID == answerID {
			return d.MarksObt
		}
	}
	t.Fatalf("answer %d not found", answerID)
	return nil
}

func TestAutoMark(t *testing.T) {
	e, s := newTestEngine(t)
	cand := addCandidate(t, s, "EN-1")

	match := addAnswer(t, s, cand, model.PartA, "Ampere", 2, "  ampere ")
	multi := addAnswer(t, s, cand, model.PartF, "true, yes", 1, "YES")
	miss := addAnswer(t, s, cand, model.PartA, "volt", 2, "watt")
	blank := addAnswer(t, s, cand, model.PartF, "true", 1, "")
	freeText := addAnswer(t, s, cand, model.PartC, "anything", 5, "anything")

	n, err := e.AutoMark(cand)
	if err != nil {
		t.Fatalf("AutoMark: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 awards, got %d", n)
	}

	if m := marksOf(t, s, cand, match); m == nil || *m != 2 {
		t.Fatalf("case-insensitive match not awarded: %v", m)
	}
	if m := marksOf(t, s, cand, multi); m == nil || *m != 1 {
		t.Fatalf("multi-key match not awarded: %v", m)
	}
	for name, id := range map[string]int64{"mismatch": miss, "blank": blank, "free-text": freeText} {
		if m := marksOf(t, s, cand, id); m != nil {
			t.Fatalf("%s answer wrongly awarded: %v", name, *m)
		}
	}
}

func TestAutoMarkIdempotentAndNonDestructive(t *testing.T) {
	e, s := newTestEngine(t)
	cand := addCandidate(t, s, "EN-2")

	aID := addAnswer(t, s, cand, model.PartA, "ohm", 2, "ohm")
	// A grader already lowered this award; a rerun must not restore max.
	half := 1.0
	if err := s.UpdateAnswerMarks(aID, &half); err != nil {
		t.Fatalf("UpdateAnswerMarks: %v", err)
	}

	n, err := e.AutoMark(cand)
	if err != nil {
		t.Fatalf("AutoMark: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no awards, got %d", n)
	}
	if m := marksOf(t, s, cand, aID); m == nil || *m != 1 {
		t.Fatalf("manual award overwritten: %v", m)
	}

	// A zero award is treated as unset and re-awarded.
	zero := 0.0
	if err := s.UpdateAnswerMarks(aID, &zero); err != nil {
		t.Fatalf("UpdateAnswerMarks: %v", err)
	}
	n, err = e.AutoMark(cand)
	if err != nil {
		t.Fatalf("AutoMark rerun: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected zero mark to be re-awarded, got %d", n)
	}
}

func TestApplyMarks(t *testing.T) {
	e, s := newTestEngine(t)
	cand := addCandidate(t, s, "EN-3")
	grader := addGrader(t, s)

	scored := addAnswer(t, s, cand, model.PartC, "", 5, "a real attempt")
	cleared := addAnswer(t, s, cand, model.PartD, "", 2, "something")
	overMax := addAnswer(t, s, cand, model.PartE, "", 10, "long answer")
	garbage := addAnswer(t, s, cand, model.PartC, "", 5, "another attempt")
	blankFree := addAnswer(t, s, cand, model.PartC, "", 5, "   ")
	// Blank free-text answer with an imported award, absent from the
	// submission; a partial grading pass must leave it alone.
	untouched := addAnswer(t, s, cand, model.PartE, "", 5, " ")

	// Pre-set marks on the ones we expect to be cleared, skipped or kept.
	two := 2.0
	for _, id := range []int64{cleared, overMax, garbage, blankFree, untouched} {
		if err := s.UpdateAnswerMarks(id, &two); err != nil {
			t.Fatalf("UpdateAnswerMarks: %v", err)
		}
	}

	n, err := e.ApplyMarks(cand, map[int64]string{
		scored:    "4",
		cleared:   "",
		overMax:   "11",  // above max, skipped
		garbage:   "two", // not a number, skipped
		blankFree: "5",   // blank answer, cleared no matter what
	}, grader)
	if err != nil {
		t.Fatalf("ApplyMarks: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 changes, got %d", n)
	}

	if m := marksOf(t, s, cand, scored); m == nil || *m != 4 {
		t.Fatalf("valid award not applied: %v", m)
	}
	if m := marksOf(t, s, cand, cleared); m != nil {
		t.Fatalf("empty field did not clear marks: %v", *m)
	}
	if m := marksOf(t, s, cand, overMax); m == nil || *m != 2 {
		t.Fatalf("out-of-range value not skipped: %v", m)
	}
	if m := marksOf(t, s, cand, garbage); m == nil || *m != 2 {
		t.Fatalf("non-numeric value not skipped: %v", m)
	}
	if m := marksOf(t, s, cand, blankFree); m != nil {
		t.Fatalf("blank free-text answer kept marks: %v", *m)
	}
	if m := marksOf(t, s, cand, untouched); m == nil || *m != 2 {
		t.Fatalf("unsubmitted answer was touched: %v", m)
	}

	c, _ := s.GetCandidate(cand)
	if !c.IsChecked || c.CheckedBy == nil || *c.CheckedBy != grader {
		t.Fatalf("candidate not locked after grading: %+v", c)
	}
}

func TestGradingRefusesLockedCandidate(t *testing.T) {
	e, s := newTestEngine(t)
	cand := addCandidate(t, s, "EN-4")
	grader := addGrader(t, s)

	aID := addAnswer(t, s, cand, model.PartC, "", 5, "attempt")
	if _, err := e.ApplyMarks(cand, map[int64]string{aID: "3"}, grader); err != nil {
		t.Fatalf("ApplyMarks: %v", err)
	}

	if _, err := e.ApplyMarks(cand, map[int64]string{aID: "5"}, grader); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked on regrade, got %v", err)
	}
	if _, err := e.AutoMark(cand); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked on automark, got %v", err)
	}
	if m := marksOf(t, s, cand, aID); m == nil || *m != 3 {
		t.Fatalf("locked marks changed: %v", m)
	}
}

func TestSummary(t *testing.T) {
	e, s := newTestEngine(t)
	cand := addCandidate(t, s, "EN-5")

	a1 := addAnswer(t, s, cand, model.PartA, "x", 2, "x")
	a2 := addAnswer(t, s, cand, model.PartC, "", 5, "essay")
	// One answer in the secondary exam, against its own question.
	secQ, err := s.InsertQuestion(model.Question{Text: "sec q", Part: model.PartF, MaxMarks: 1, Active: true})
	if err != nil {
		t.Fatalf("InsertQuestion: %v", err)
	}
	sec, err := s.CreateAnswer(model.Answer{CandidateID: cand, QuestionID: secQ, Category: model.CategorySecondary, Answer: "y"})
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}

	two, three, one := 2.0, 3.0, 1.0
	s.UpdateAnswerMarks(a1, &two)
	s.UpdateAnswerMarks(a2, &three)
	s.UpdateAnswerMarks(sec, &one)
	if err := s.SetCandidateMarks(cand, 5, 4, 20, 18); err != nil {
		t.Fatalf("SetCandidateMarks: %v", err)
	}

	totals, complete, err := e.Summary(cand)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if totals.PrimaryTotal != 5 || totals.SecondaryTotal != 1 {
		t.Fatalf("category totals wrong: %+v", totals)
	}
	if totals.GrandTotal != 5+1+5+4+20+18 {
		t.Fatalf("grand total wrong: %v", totals.GrandTotal)
	}
	if !complete {
		t.Fatal("expected all marks assigned")
	}

	// Clearing one award flips the advisory flag.
	if err := s.UpdateAnswerMarks(a1, nil); err != nil {
		t.Fatalf("UpdateAnswerMarks: %v", err)
	}
	_, complete, err = e.Summary(cand)
	if err != nil {
		t.Fatalf("Summary again: %v", err)
	}
	if complete {
		t.Fatal("expected pending marks to be reported")
	}
}
