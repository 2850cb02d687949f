package store

import (
	"fmt"

	"github.com/examdesk/examdesk/internal/model"
)

// CandidateTotals sums awarded marks per category and adds the hands-on
// scores. Unmarked answers contribute nothing.
func (s *Store) CandidateTotals(c *model.Candidate) (model.Totals, error) {
	var t model.Totals
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(CASE WHEN category = ? THEN marks_obt ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN category = ? THEN marks_obt ELSE 0 END), 0)
		 FROM answers WHERE candidate_id = ?`,
		model.CategoryPrimary, model.CategorySecondary, c.ID,
	).Scan(&t.PrimaryTotal, &t.SecondaryTotal)
	if err != nil {
		return t, fmt.Errorf("sum marks: %w", err)
	}
	t.Viva1 = c.Viva1
	t.Viva2 = c.Viva2
	t.Practical1 = c.Practical1
	t.Practical2 = c.Practical2
	t.GrandTotal = t.PrimaryTotal + t.SecondaryTotal +
		float64(t.Viva1+t.Viva2+t.Practical1+t.Practical2)
	return t, nil
}

// AllMarksAssigned reports whether every grading record for the candidate
// carries a non-null, non-zero mark.
func (s *Store) AllMarksAssigned(candidateID int64) (bool, error) {
	var pending int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM answers WHERE candidate_id = ? AND (marks_obt IS NULL OR marks_obt = 0)`,
		candidateID,
	).Scan(&pending)
	if err != nil {
		return false, err
	}
	return pending == 0, nil
}

// ExportAllCandidates builds export-ready results for every candidate.
func (s *Store) ExportAllCandidates() ([]model.CandidateResult, error) {
	candidates, err := s.ListCandidates()
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	graderNames := make(map[int64]string)

	var results []model.CandidateResult
	for i := range candidates {
		c := &candidates[i]

		totals, err := s.CandidateTotals(c)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.EnrolmentNo, err)
		}
		complete, err := s.AllMarksAssigned(c.ID)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.EnrolmentNo, err)
		}
		details, err := s.ListAnswerDetails(c.ID)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.EnrolmentNo, err)
		}

		var checkedBy string
		if c.CheckedBy != nil {
			name, ok := graderNames[*c.CheckedBy]
			if !ok {
				user, err := s.GetUserByID(*c.CheckedBy)
				if err != nil {
					return nil, fmt.Errorf("get user %d: %w", *c.CheckedBy, err)
				}
				if user != nil {
					name = user.Username
				}
				graderNames[*c.CheckedBy] = name
			}
			checkedBy = name
		}

		results = append(results, model.CandidateResult{
			EnrolmentNo:      c.EnrolmentNo,
			Name:             c.Name,
			Center:           c.Center,
			Trade:            c.Trade,
			Totals:           totals,
			AllMarksAssigned: complete,
			IsChecked:        c.IsChecked,
			CheckedBy:        checkedBy,
			CheckedAt:        c.CheckedAt,
			Answers:          details,
		})
	}

	return results, nil
}
