package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/examdesk/examdesk/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		part TEXT NOT NULL DEFAULT 'A',
		max_marks REAL NOT NULL DEFAULT 1,
		options TEXT NOT NULL DEFAULT '',
		correct_answer TEXT NOT NULL DEFAULT '',
		trade TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS question_papers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		paper_type TEXT NOT NULL DEFAULT 'Primary',
		is_common INTEGER NOT NULL DEFAULT 0,
		trade TEXT NOT NULL DEFAULT '',
		duration_minutes INTEGER NOT NULL DEFAULT 180,
		part_quota TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS paper_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		paper_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		ord INTEGER NOT NULL DEFAULT 0,
		UNIQUE (paper_id, question_id),
		FOREIGN KEY (paper_id) REFERENCES question_papers(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS exam_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		paper_id INTEGER NOT NULL,
		candidate_id INTEGER NOT NULL,
		trade TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		total_questions INTEGER NOT NULL DEFAULT 0,
		score REAL,
		FOREIGN KEY (paper_id) REFERENCES question_papers(id),
		FOREIGN KEY (candidate_id) REFERENCES candidates(id)
	);

	CREATE TABLE IF NOT EXISTS exam_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		ord INTEGER NOT NULL DEFAULT 0,
		UNIQUE (session_id, question_id),
		FOREIGN KEY (session_id) REFERENCES exam_sessions(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS candidate_answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		candidate_id INTEGER NOT NULL,
		paper_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		answer TEXT NOT NULL DEFAULT '',
		submitted_at DATETIME NOT NULL,
		UNIQUE (candidate_id, paper_id, question_id),
		FOREIGN KEY (candidate_id) REFERENCES candidates(id),
		FOREIGN KEY (paper_id) REFERENCES question_papers(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		candidate_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		category TEXT NOT NULL DEFAULT 'primary',
		answer TEXT NOT NULL DEFAULT '',
		marks_obt REAL,
		FOREIGN KEY (candidate_id) REFERENCES candidates(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS candidates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		enrolment_no TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		center TEXT NOT NULL DEFAULT '',
		trade TEXT NOT NULL DEFAULT '',
		father_name TEXT NOT NULL DEFAULT '',
		dob TEXT NOT NULL DEFAULT '',
		district TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		viva_1 INTEGER NOT NULL DEFAULT 0,
		viva_2 INTEGER NOT NULL DEFAULT 0,
		practical_1 INTEGER NOT NULL DEFAULT 0,
		practical_2 INTEGER NOT NULL DEFAULT 0,
		is_checked INTEGER NOT NULL DEFAULT 0,
		checked_by INTEGER,
		checked_at DATETIME,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (checked_by) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'grader',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS exam_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const questionCols = `id, text, part, max_marks, options, correct_answer, trade, active, created_at`

func scanQuestion(row interface{ Scan(...any) error }) (model.Question, error) {
	var q model.Question
	err := row.Scan(&q.ID, &q.Text, &q.Part, &q.MaxMarks, &q.Options, &q.CorrectAnswer, &q.Trade, &q.Active, &q.CreatedAt)
	return q, err
}

// InsertQuestion stores a question.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO questions (text, part, max_marks, options, correct_answer, trade, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.Text, q.Part, q.MaxMarks, q.Options, q.CorrectAnswer, q.Trade, q.Active, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateQuestion rewrites a question's editable fields.
func (s *Store) UpdateQuestion(q model.Question) error {
	_, err := s.db.Exec(
		`UPDATE questions SET text = ?, part = ?, max_marks = ?, options = ?, correct_answer = ?, trade = ?, active = ?
		 WHERE id = ?`,
		q.Text, q.Part, q.MaxMarks, q.Options, q.CorrectAnswer, q.Trade, q.Active, q.ID,
	)
	return err
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	return scanQuestion(s.db.QueryRow(
		`SELECT `+questionCols+` FROM questions WHERE id = ?`, id,
	))
}

// ListQuestions returns all questions, newest first.
func (s *Store) ListQuestions() ([]model.Question, error) {
	return s.queryQuestions(`SELECT ` + questionCols + ` FROM questions ORDER BY created_at DESC, id DESC`)
}

// ListActiveQuestionsByPart returns the active question pool for a part.
// A non-empty trade narrows the pool to that trade's questions.
func (s *Store) ListActiveQuestionsByPart(part model.Part, trade string) ([]model.Question, error) {
	query := `SELECT ` + questionCols + ` FROM questions WHERE active = 1 AND part = ?`
	args := []any{part}
	if trade != "" {
		query += ` AND trade = ?`
		args = append(args, trade)
	}
	return s.queryQuestions(query, args...)
}

// SetQuestionActive flips a question's active flag (soft retirement).
func (s *Store) SetQuestionActive(id int64, active bool) error {
	_, err := s.db.Exec(`UPDATE questions SET active = ? WHERE id = ?`, active, id)
	return err
}

// DeleteQuestion hard-deletes a question. It refuses while any paper still
// references the question; retire with SetQuestionActive instead.
func (s *Store) DeleteQuestion(id int64) error {
	var refs int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM paper_questions WHERE question_id = ?`, id).Scan(&refs); err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf("question %d is referenced by %d paper(s)", id, refs)
	}
	_, err := s.db.Exec(`DELETE FROM questions WHERE id = ?`, id)
	return err
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

func (s *Store) queryQuestions(query string, args ...any) ([]model.Question, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
