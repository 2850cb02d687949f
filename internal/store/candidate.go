package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/examdesk/examdesk/internal/model"
)

const candidateCols = `id, enrolment_no, name, center, trade, father_name, dob, district, state,
	viva_1, viva_2, practical_1, practical_2, is_checked, checked_by, checked_at, created_at`

func scanCandidate(row interface{ Scan(...any) error }) (*model.Candidate, error) {
	var c model.Candidate
	err := row.Scan(&c.ID, &c.EnrolmentNo, &c.Name, &c.Center, &c.Trade, &c.FatherName,
		&c.DOB, &c.District, &c.State,
		&c.Viva1, &c.Viva2, &c.Practical1, &c.Practical2,
		&c.IsChecked, &c.CheckedBy, &c.CheckedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertCandidate creates or refreshes a candidate keyed on enrolment
// number. Blank incoming fields never overwrite stored values, so a sparse
// sheet cannot erase registration data. Returns the candidate id and
// whether a new row was created.
func (s *Store) UpsertCandidate(c model.Candidate) (int64, bool, error) {
	existing, err := s.GetCandidateByEnrolmentNo(c.EnrolmentNo)
	if err != nil {
		return 0, false, err
	}
	if existing == nil {
		res, err := s.db.Exec(
			`INSERT INTO candidates (enrolment_no, name, center, trade, father_name, dob, district, state, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.EnrolmentNo, c.Name, c.Center, c.Trade, c.FatherName, c.DOB, c.District, c.State, time.Now(),
		)
		if err != nil {
			return 0, false, fmt.Errorf("insert candidate: %w", err)
		}
		id, err := res.LastInsertId()
		return id, true, err
	}

	keep := func(incoming, current string) string {
		if incoming == "" {
			return current
		}
		return incoming
	}
	_, err = s.db.Exec(
		`UPDATE candidates SET name = ?, center = ?, trade = ?, father_name = ?, dob = ?, district = ?, state = ? WHERE id = ?`,
		keep(c.Name, existing.Name), keep(c.Center, existing.Center), keep(c.Trade, existing.Trade),
		keep(c.FatherName, existing.FatherName), keep(c.DOB, existing.DOB),
		keep(c.District, existing.District), keep(c.State, existing.State), existing.ID,
	)
	if err != nil {
		return 0, false, fmt.Errorf("update candidate: %w", err)
	}
	return existing.ID, false, nil
}

func (s *Store) GetCandidate(id int64) (*model.Candidate, error) {
	c, err := scanCandidate(s.db.QueryRow(
		`SELECT `+candidateCols+` FROM candidates WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *Store) GetCandidateByEnrolmentNo(enrolmentNo string) (*model.Candidate, error) {
	c, err := scanCandidate(s.db.QueryRow(
		`SELECT `+candidateCols+` FROM candidates WHERE enrolment_no = ?`, enrolmentNo))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *Store) ListCandidates() ([]model.Candidate, error) {
	rows, err := s.db.Query(`SELECT ` + candidateCols + ` FROM candidates ORDER BY enrolment_no`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var candidates []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, *c)
	}
	return candidates, rows.Err()
}

// SetCandidateMarks records the hands-on assessment scores entered by an
// assessor. Range checks against the trade's limits happen in the handler.
func (s *Store) SetCandidateMarks(id int64, viva1, viva2, practical1, practical2 int) error {
	_, err := s.db.Exec(
		`UPDATE candidates SET viva_1 = ?, viva_2 = ?, practical_1 = ?, practical_2 = ? WHERE id = ?`,
		viva1, viva2, practical1, practical2, id,
	)
	return err
}

func (s *Store) CandidateCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM candidates`).Scan(&n)
	return n, err
}
