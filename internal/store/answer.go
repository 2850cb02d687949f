package store

import (
	"time"

	"github.com/examdesk/examdesk/internal/model"
)

// UpsertCandidateAnswer records a candidate's response, keyed on
// (candidate, paper, question). A re-submission overwrites the previous
// answer instead of duplicating it.
func (s *Store) UpsertCandidateAnswer(a model.CandidateAnswer) error {
	_, err := s.db.Exec(
		`INSERT INTO candidate_answers (candidate_id, paper_id, question_id, answer, submitted_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(candidate_id, paper_id, question_id) DO UPDATE SET answer = ?, submitted_at = ?`,
		a.CandidateID, a.PaperID, a.QuestionID, a.Answer, time.Now(), a.Answer, time.Now(),
	)
	return err
}

// ListCandidateAnswers returns a candidate's captured responses for a paper.
func (s *Store) ListCandidateAnswers(candidateID, paperID int64) ([]model.CandidateAnswer, error) {
	rows, err := s.db.Query(
		`SELECT id, candidate_id, paper_id, question_id, answer, submitted_at
		 FROM candidate_answers WHERE candidate_id = ? AND paper_id = ? ORDER BY id`,
		candidateID, paperID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.CandidateAnswer
	for rows.Next() {
		var a model.CandidateAnswer
		if err := rows.Scan(&a.ID, &a.CandidateID, &a.PaperID, &a.QuestionID, &a.Answer, &a.SubmittedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// CreateAnswer inserts a grading record. Duplicates per (candidate,
// question) are deliberately allowed: intake preserves repeated sheet rows.
func (s *Store) CreateAnswer(a model.Answer) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO answers (candidate_id, question_id, category, answer, marks_obt)
		 VALUES (?, ?, ?, ?, ?)`,
		a.CandidateID, a.QuestionID, a.Category, a.Answer, a.MarksObt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateAnswerMarks sets or clears (nil) the awarded marks on one grading
// record.
func (s *Store) UpdateAnswerMarks(answerID int64, marks *float64) error {
	_, err := s.db.Exec(`UPDATE answers SET marks_obt = ? WHERE id = ?`, marks, answerID)
	return err
}

// ListAnswerDetails returns every grading record for a candidate joined
// with its question, the working set for auto-marking, manual grading and
// export.
func (s *Store) ListAnswerDetails(candidateID int64) ([]model.AnswerDetail, error) {
	rows, err := s.db.Query(
		`SELECT a.id, a.question_id, q.text, q.part, q.correct_answer, q.max_marks, a.category, a.answer, a.marks_obt
		 FROM answers a
		 JOIN questions q ON q.id = a.question_id
		 WHERE a.candidate_id = ?
		 ORDER BY a.id`, candidateID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var details []model.AnswerDetail
	for rows.Next() {
		var d model.AnswerDetail
		if err := rows.Scan(&d.AnswerID, &d.QuestionID, &d.QuestionText, &d.Part,
			&d.CorrectAnswer, &d.MaxMarks, &d.Category, &d.Answer, &d.MarksObt); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

// MarkUpdate is one grading decision: set marks, or clear them when Marks
// is nil.
type MarkUpdate struct {
	AnswerID int64
	Marks    *float64
}

// FinalizeMarks applies manual grading decisions and locks the candidate in
// a single transaction. The lock transition is a conditional update on
// is_checked, so of two concurrent submissions exactly one wins; the loser
// observes zero affected rows and gets locked=false with no rows touched.
func (s *Store) FinalizeMarks(candidateID, graderID int64, updates []MarkUpdate) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE candidates SET is_checked = 1, checked_by = ?, checked_at = ? WHERE id = ? AND is_checked = 0`,
		graderID, time.Now(), candidateID,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	for _, u := range updates {
		if _, err := tx.Exec(
			`UPDATE answers SET marks_obt = ? WHERE id = ? AND candidate_id = ?`,
			u.Marks, u.AnswerID, candidateID,
		); err != nil {
			return false, err
		}
	}
	return true, tx.Commit()
}

// AwardMarks writes auto-mark awards in a single transaction. Each write is
// guarded on is_checked = 0 so a lock landing between the caller's check and
// this call cannot have its answers mutated; a locked candidate yields
// applied=false with nothing written.
func (s *Store) AwardMarks(candidateID int64, updates []MarkUpdate) (int, bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	var checked bool
	if err := tx.QueryRow(
		`SELECT is_checked FROM candidates WHERE id = ?`, candidateID,
	).Scan(&checked); err != nil {
		return 0, false, err
	}
	if checked {
		return 0, false, nil
	}

	awarded := 0
	for _, u := range updates {
		res, err := tx.Exec(
			`UPDATE answers SET marks_obt = ?
			 WHERE id = ? AND candidate_id = ?
			   AND (SELECT is_checked FROM candidates WHERE id = answers.candidate_id) = 0`,
			u.Marks, u.AnswerID, candidateID,
		)
		if err != nil {
			return awarded, false, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return awarded, false, err
		}
		awarded += int(n)
	}
	return awarded, true, tx.Commit()
}
