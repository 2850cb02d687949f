package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/examdesk/examdesk/internal/model"
)

// SavePaper inserts or updates a question paper. Commonality is derived here
// on every save, not only on creation: a Secondary paper is forced common
// with no trade, a Primary paper is never common. Callers cannot override
// either field.
func (s *Store) SavePaper(p *model.QuestionPaper) error {
	if p.PaperType == model.PaperSecondary {
		p.IsCommon = true
		p.Trade = ""
	} else {
		p.IsCommon = false
	}

	quotaJSON := ""
	if len(p.PartQuota) > 0 {
		b, err := json.Marshal(p.PartQuota)
		if err != nil {
			return fmt.Errorf("marshal part quota: %w", err)
		}
		quotaJSON = string(b)
	}

	if p.ID == 0 {
		p.CreatedAt = time.Now()
		res, err := s.db.Exec(
			`INSERT INTO question_papers (paper_type, is_common, trade, duration_minutes, part_quota, active, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.PaperType, p.IsCommon, p.Trade, p.DurationMinutes, quotaJSON, p.Active, p.CreatedAt,
		)
		if err != nil {
			return err
		}
		p.ID, err = res.LastInsertId()
		return err
	}

	_, err := s.db.Exec(
		`UPDATE question_papers SET paper_type = ?, is_common = ?, trade = ?, duration_minutes = ?, part_quota = ?, active = ?
		 WHERE id = ?`,
		p.PaperType, p.IsCommon, p.Trade, p.DurationMinutes, quotaJSON, p.Active, p.ID,
	)
	return err
}

const paperCols = `id, paper_type, is_common, trade, duration_minutes, part_quota, active, created_at`

func scanPaper(row interface{ Scan(...any) error }) (model.QuestionPaper, error) {
	var p model.QuestionPaper
	var quotaJSON string
	err := row.Scan(&p.ID, &p.PaperType, &p.IsCommon, &p.Trade, &p.DurationMinutes, &quotaJSON, &p.Active, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	if quotaJSON != "" {
		if err := json.Unmarshal([]byte(quotaJSON), &p.PartQuota); err != nil {
			return p, fmt.Errorf("unmarshal part quota for paper %d: %w", p.ID, err)
		}
	}
	return p, nil
}

// GetPaper returns a paper by ID.
func (s *Store) GetPaper(id int64) (model.QuestionPaper, error) {
	return scanPaper(s.db.QueryRow(`SELECT `+paperCols+` FROM question_papers WHERE id = ?`, id))
}

// ListPapers returns all papers, newest first.
func (s *Store) ListPapers() ([]model.QuestionPaper, error) {
	rows, err := s.db.Query(`SELECT ` + paperCols + ` FROM question_papers ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var papers []model.QuestionPaper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, p)
	}
	return papers, rows.Err()
}

// AddPaperQuestion links a question into a paper's pool at the given order.
// The (paper, question) pair is unique; re-adding fails.
func (s *Store) AddPaperQuestion(paperID, questionID int64, order int) error {
	_, err := s.db.Exec(
		`INSERT INTO paper_questions (paper_id, question_id, ord) VALUES (?, ?, ?)`,
		paperID, questionID, order,
	)
	return err
}

// RemovePaperQuestion detaches a question from a paper's pool.
func (s *Store) RemovePaperQuestion(paperID, questionID int64) error {
	_, err := s.db.Exec(
		`DELETE FROM paper_questions WHERE paper_id = ? AND question_id = ?`, paperID, questionID,
	)
	return err
}

// ListPaperQuestions returns the paper's pool in its defined order.
func (s *Store) ListPaperQuestions(paperID int64) ([]model.Question, error) {
	return s.queryQuestions(
		`SELECT q.id, q.text, q.part, q.max_marks, q.options, q.correct_answer, q.trade, q.active, q.created_at
		 FROM questions q
		 JOIN paper_questions pq ON pq.question_id = q.id
		 WHERE pq.paper_id = ?
		 ORDER BY pq.ord, pq.id`, paperID,
	)
}

// ListPaperQuestionsByPart returns the active questions of one part linked
// to a specific paper. Common papers draw exclusively from this pool.
func (s *Store) ListPaperQuestionsByPart(paperID int64, part model.Part) ([]model.Question, error) {
	return s.queryQuestions(
		`SELECT q.id, q.text, q.part, q.max_marks, q.options, q.correct_answer, q.trade, q.active, q.created_at
		 FROM questions q
		 JOIN paper_questions pq ON pq.question_id = q.id
		 WHERE pq.paper_id = ? AND q.active = 1 AND q.part = ?
		 ORDER BY pq.ord, pq.id`, paperID, part,
	)
}

// countOtherPaperRefs counts paper links to a question from papers other
// than the one being deleted.
func (s *Store) countOtherPaperRefs(questionID, excludePaperID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM paper_questions WHERE question_id = ? AND paper_id != ?`,
		questionID, excludePaperID,
	).Scan(&count)
	return count, err
}

// DeletePaper removes a paper in two phases. First every question linked to
// the paper is reference-counted against other papers: questions this paper
// exclusively owns are hard-deleted, shared ones are only detached. Failures
// deleting an individual orphan are logged and do not block the deletion.
// The join rows and the paper itself are then removed in one transaction.
func (s *Store) DeletePaper(paperID int64) error {
	rows, err := s.db.Query(
		`SELECT DISTINCT question_id FROM paper_questions WHERE paper_id = ?`, paperID,
	)
	if err != nil {
		return err
	}
	var linked []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		linked = append(linked, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, qid := range linked {
		refs, err := s.countOtherPaperRefs(qid, paperID)
		if err != nil {
			slog.Warn("orphan check failed, keeping question", "question_id", qid, "error", err)
			continue
		}
		if refs > 0 {
			continue
		}
		if _, err := s.db.Exec(`DELETE FROM questions WHERE id = ?`, qid); err != nil {
			slog.Warn("failed to delete orphaned question", "question_id", qid, "error", err)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM paper_questions WHERE paper_id = ?`, paperID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM question_papers WHERE id = ?`, paperID); err != nil {
		return err
	}
	return tx.Commit()
}
