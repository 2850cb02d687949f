package store

import (
	"time"

	"github.com/examdesk/examdesk/internal/model"
)

// CreateSession persists a generated exam session together with its full
// ExamQuestion set in one transaction: either the session and every drawn
// question commit, or nothing does. Order indexes are assigned 1..n in the
// order the IDs are given; total_questions is recomputed from the persisted
// rows before commit.
func (s *Store) CreateSession(sess model.ExamSession, questionIDs []int64) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO exam_sessions (paper_id, candidate_id, trade, started_at, duration_minutes, total_questions)
		 VALUES (?, ?, ?, ?, ?, 0)`,
		sess.PaperID, sess.CandidateID, sess.Trade, sess.StartedAt, sess.DurationMinutes,
	)
	if err != nil {
		return 0, err
	}
	sessionID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, qID := range questionIDs {
		_, err := tx.Exec(
			`INSERT INTO exam_questions (session_id, question_id, ord) VALUES (?, ?, ?)`,
			sessionID, qID, i+1,
		)
		if err != nil {
			return 0, err
		}
	}

	var total int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM exam_questions WHERE session_id = ?`, sessionID).Scan(&total); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(`UPDATE exam_sessions SET total_questions = ? WHERE id = ?`, total, sessionID); err != nil {
		return 0, err
	}

	return sessionID, tx.Commit()
}

const sessionCols = `id, paper_id, candidate_id, trade, started_at, completed_at, duration_minutes, total_questions, score`

func scanSession(row interface{ Scan(...any) error }) (model.ExamSession, error) {
	var sess model.ExamSession
	err := row.Scan(&sess.ID, &sess.PaperID, &sess.CandidateID, &sess.Trade,
		&sess.StartedAt, &sess.CompletedAt, &sess.DurationMinutes, &sess.TotalQuestions, &sess.Score)
	return sess, err
}

// GetSession returns a session by ID.
func (s *Store) GetSession(id int64) (model.ExamSession, error) {
	return scanSession(s.db.QueryRow(`SELECT `+sessionCols+` FROM exam_sessions WHERE id = ?`, id))
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions() ([]model.ExamSession, error) {
	rows, err := s.db.Query(`SELECT ` + sessionCols + ` FROM exam_sessions ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.ExamSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// SessionCount returns the number of sessions in the database.
func (s *Store) SessionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM exam_sessions`).Scan(&count)
	return count, err
}

// ExamQuestionCount returns the total number of exam question rows.
func (s *Store) ExamQuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM exam_questions`).Scan(&count)
	return count, err
}

// ListExamQuestions returns a session's materialized question links in draw
// order.
func (s *Store) ListExamQuestions(sessionID int64) ([]model.ExamQuestion, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, question_id, ord FROM exam_questions WHERE session_id = ? ORDER BY ord, id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var eqs []model.ExamQuestion
	for rows.Next() {
		var eq model.ExamQuestion
		if err := rows.Scan(&eq.ID, &eq.SessionID, &eq.QuestionID, &eq.Order); err != nil {
			return nil, err
		}
		eqs = append(eqs, eq)
	}
	return eqs, rows.Err()
}

// ListSessionQuestions returns the full questions for a session in draw
// order, for presenting the exam to the candidate.
func (s *Store) ListSessionQuestions(sessionID int64) ([]model.Question, error) {
	return s.queryQuestions(
		`SELECT q.id, q.text, q.part, q.max_marks, q.options, q.correct_answer, q.trade, q.active, q.created_at
		 FROM questions q
		 JOIN exam_questions eq ON eq.question_id = q.id
		 WHERE eq.session_id = ?
		 ORDER BY eq.ord, eq.id`, sessionID,
	)
}

// CompleteSession stamps the session's completion time.
func (s *Store) CompleteSession(id int64) error {
	_, err := s.db.Exec(`UPDATE exam_sessions SET completed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}
