package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/examdesk/examdesk/internal/model"
)

// ImportIntake loads scanned answer-sheet rows in one transaction.
// Candidates are upserted by enrolment number, questions are matched by
// exact text (created on first sight, refreshed otherwise), and a grading
// record is inserted for every row, duplicates included.
func (s *Store) ImportIntake(rows []model.IntakeRow) (model.IntakeSummary, error) {
	var sum model.IntakeSummary

	tx, err := s.db.Begin()
	if err != nil {
		return sum, err
	}
	defer tx.Rollback()

	candidateIDs := map[string]int64{}
	questionIDs := map[string]int64{}

	for i, r := range rows {
		if r.EnrolmentNo == "" {
			return sum, fmt.Errorf("row %d: missing enrolment number", i+1)
		}

		candID, ok := candidateIDs[r.EnrolmentNo]
		if !ok {
			candID, err = upsertIntakeCandidate(tx, r, &sum)
			if err != nil {
				return sum, fmt.Errorf("row %d: %w", i+1, err)
			}
			candidateIDs[r.EnrolmentNo] = candID
		}

		qID, ok := questionIDs[r.QuestionText]
		if !ok {
			qID, err = upsertIntakeQuestion(tx, r, &sum)
			if err != nil {
				return sum, fmt.Errorf("row %d: %w", i+1, err)
			}
			questionIDs[r.QuestionText] = qID
		}

		category := model.CategoryPrimary
		if strings.EqualFold(strings.TrimSpace(r.ExamType), "secondary") {
			category = model.CategorySecondary
		}
		var marks *float64
		if r.MarksObt != 0 {
			m := r.MarksObt
			marks = &m
		}
		if _, err := tx.Exec(
			`INSERT INTO answers (candidate_id, question_id, category, answer, marks_obt)
			 VALUES (?, ?, ?, ?, ?)`,
			candID, qID, category, r.Answer, marks,
		); err != nil {
			return sum, fmt.Errorf("row %d: insert answer: %w", i+1, err)
		}
		sum.AnswersCreated++
	}

	return sum, tx.Commit()
}

func upsertIntakeCandidate(tx *sql.Tx, r model.IntakeRow, sum *model.IntakeSummary) (int64, error) {
	var id int64
	var name, center, trade, father, dob, district, state string
	var viva1, viva2, prac1, prac2 int
	err := tx.QueryRow(
		`SELECT id, name, center, trade, father_name, dob, district, state,
		        viva_1, viva_2, practical_1, practical_2
		 FROM candidates WHERE enrolment_no = ?`,
		r.EnrolmentNo,
	).Scan(&id, &name, &center, &trade, &father, &dob, &district, &state, &viva1, &viva2, &prac1, &prac2)
	if err == nil {
		keep := func(incoming, current string) string {
			if incoming == "" {
				return current
			}
			return incoming
		}
		keepN := func(incoming, current int) int {
			if incoming == 0 {
				return current
			}
			return incoming
		}
		_, err = tx.Exec(
			`UPDATE candidates SET name = ?, center = ?, trade = ?, father_name = ?, dob = ?, district = ?, state = ?,
			        viva_1 = ?, viva_2 = ?, practical_1 = ?, practical_2 = ?
			 WHERE id = ?`,
			keep(r.Name, name), keep(r.Center, center), keep(r.Trade, trade),
			keep(r.FatherName, father), keep(r.DOB, dob), keep(r.District, district), keep(r.State, state),
			keepN(r.Viva1, viva1), keepN(r.Viva2, viva2), keepN(r.Practical1, prac1), keepN(r.Practical2, prac2),
			id,
		)
		if err != nil {
			return 0, fmt.Errorf("update candidate: %w", err)
		}
		sum.CandidatesUpdated++
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup candidate: %w", err)
	}
	res, err := tx.Exec(
		`INSERT INTO candidates (enrolment_no, name, center, trade, father_name, dob, district, state,
		        viva_1, viva_2, practical_1, practical_2, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.EnrolmentNo, r.Name, r.Center, r.Trade, r.FatherName, r.DOB, r.District, r.State,
		r.Viva1, r.Viva2, r.Practical1, r.Practical2, time.Now(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert candidate: %w", err)
	}
	sum.CandidatesCreated++
	return res.LastInsertId()
}

func upsertIntakeQuestion(tx *sql.Tx, r model.IntakeRow, sum *model.IntakeSummary) (int64, error) {
	correct := strings.TrimSpace(r.CorrectAnswer)
	if strings.EqualFold(correct, "null") {
		correct = ""
	}
	part := r.Part
	if !model.ValidPart(part) {
		part = string(model.PartC)
	}

	var id int64
	err := tx.QueryRow(`SELECT id FROM questions WHERE text = ?`, r.QuestionText).Scan(&id)
	if err == nil {
		_, err = tx.Exec(
			`UPDATE questions SET correct_answer = ?, max_marks = ?, part = ? WHERE id = ?`,
			correct, r.MaxMarks, part, id,
		)
		if err != nil {
			return 0, fmt.Errorf("update question: %w", err)
		}
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup question: %w", err)
	}
	res, err := tx.Exec(
		`INSERT INTO questions (text, part, max_marks, options, correct_answer, trade, active, created_at)
		 VALUES (?, ?, ?, '', ?, '', 1, ?)`,
		r.QuestionText, part, r.MaxMarks, correct, time.Now(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}
	sum.QuestionsCreated++
	return res.LastInsertId()
}
