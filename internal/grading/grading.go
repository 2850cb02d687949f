// Package grading marks candidate answers: automatic key matching for
// objective parts, manual awards with a one-way lock, and totals.
package grading

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/examdesk/examdesk/internal/model"
	"github.com/examdesk/examdesk/internal/store"
)

// ErrLocked is returned when grading is attempted on a candidate whose
// results were already finalized. The lock never reopens.
var ErrLocked = errors.New("candidate results are locked")

// Engine runs grading operations over the store.
type Engine struct {
	store *store.Store
}

func New(st *store.Store) *Engine {
	return &Engine{store: st}
}

// AutoMark awards full marks on objective answers (parts A, B and F) that
// match the question's key. Both sides are compared trimmed and lowercased;
// a key may list several accepted answers separated by commas. An answer
// already carrying a nonzero award is left alone, so the operation is
// idempotent and never downgrades a manual decision. All awards land in one
// transaction that respects the candidate lock. Returns the number of
// answers awarded.
func (e *Engine) AutoMark(candidateID int64) (int, error) {
	cand, err := e.store.GetCandidate(candidateID)
	if err != nil {
		return 0, fmt.Errorf("get candidate %d: %w", candidateID, err)
	}
	if cand == nil {
		return 0, fmt.Errorf("candidate %d not found", candidateID)
	}
	if cand.IsChecked {
		return 0, ErrLocked
	}

	details, err := e.store.ListAnswerDetails(candidateID)
	if err != nil {
		return 0, fmt.Errorf("list answers: %w", err)
	}

	var updates []store.MarkUpdate
	for _, d := range details {
		if !d.Part.Objective() || d.CorrectAnswer == "" {
			continue
		}
		if d.MarksObt != nil && *d.MarksObt != 0 {
			continue
		}
		if !keyMatches(d.CorrectAnswer, d.Answer) {
			continue
		}
		marks := d.MaxMarks
		updates = append(updates, store.MarkUpdate{AnswerID: d.AnswerID, Marks: &marks})
	}

	awarded, applied, err := e.store.AwardMarks(candidateID, updates)
	if err != nil {
		return awarded, fmt.Errorf("award marks: %w", err)
	}
	if !applied {
		return 0, ErrLocked
	}
	return awarded, nil
}

// keyMatches reports whether the given answer equals any accepted answer in
// the comma-separated key, ignoring case and surrounding whitespace.
func keyMatches(key, given string) bool {
	given = strings.ToLower(strings.TrimSpace(given))
	if given == "" {
		return false
	}
	for _, accepted := range strings.Split(key, ",") {
		if strings.ToLower(strings.TrimSpace(accepted)) == given {
			return true
		}
	}
	return false
}

// ApplyMarks applies a grader's manual decisions and locks the candidate.
// submitted maps answer id to the entered marks field: an empty string
// clears the award, an integer within [0, max_marks] sets it, anything else
// is skipped. A blank free-text answer (parts C, D, E) with a submitted
// field has its marks cleared whatever the field says; answers absent from
// submitted are never touched. The lock and every mark write
// happen in one transaction; if another grader locked the candidate first,
// nothing is written and ErrLocked is returned. Returns the number of
// answers whose marks changed.
func (e *Engine) ApplyMarks(candidateID int64, submitted map[int64]string, graderID int64) (int, error) {
	cand, err := e.store.GetCandidate(candidateID)
	if err != nil {
		return 0, fmt.Errorf("get candidate %d: %w", candidateID, err)
	}
	if cand == nil {
		return 0, fmt.Errorf("candidate %d not found", candidateID)
	}
	if cand.IsChecked {
		return 0, ErrLocked
	}

	details, err := e.store.ListAnswerDetails(candidateID)
	if err != nil {
		return 0, fmt.Errorf("list answers: %w", err)
	}

	var updates []store.MarkUpdate
	for _, d := range details {
		raw, ok := submitted[d.AnswerID]
		if !ok {
			continue
		}
		if d.Part.FreeText() && strings.TrimSpace(d.Answer) == "" {
			updates = append(updates, store.MarkUpdate{AnswerID: d.AnswerID})
			continue
		}
		if strings.TrimSpace(raw) == "" {
			updates = append(updates, store.MarkUpdate{AnswerID: d.AnswerID})
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 0 || float64(n) > d.MaxMarks {
			continue
		}
		marks := float64(n)
		updates = append(updates, store.MarkUpdate{AnswerID: d.AnswerID, Marks: &marks})
	}

	locked, err := e.store.FinalizeMarks(candidateID, graderID, updates)
	if err != nil {
		return 0, fmt.Errorf("finalize marks: %w", err)
	}
	if !locked {
		return 0, ErrLocked
	}
	return len(updates), nil
}

// Summary returns the candidate's aggregated totals and whether every
// answer already carries a nonzero award.
func (e *Engine) Summary(candidateID int64) (model.Totals, bool, error) {
	cand, err := e.store.GetCandidate(candidateID)
	if err != nil {
		return model.Totals{}, false, fmt.Errorf("get candidate %d: %w", candidateID, err)
	}
	if cand == nil {
		return model.Totals{}, false, fmt.Errorf("candidate %d not found", candidateID)
	}
	totals, err := e.store.CandidateTotals(cand)
	if err != nil {
		return model.Totals{}, false, err
	}
	complete, err := e.store.AllMarksAssigned(candidateID)
	if err != nil {
		return model.Totals{}, false, err
	}
	return totals, complete, nil
}
