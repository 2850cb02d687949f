package model

import "time"

// ExamInfo identifies the exam cycle an export belongs to. Stored as
// metadata rows so the values survive restarts.
type ExamInfo struct {
	ExamID string `json:"exam_id"`
	Date   string `json:"date"`
}

// ResultsExport is the top-level JSON structure for result export.
type ResultsExport struct {
	ExamID     string            `json:"exam_id"`
	Date       string            `json:"date"`
	Candidates []CandidateResult `json:"candidates"`
}

// CandidateResult holds one candidate's aggregated results plus full
// per-answer detail for export.
type CandidateResult struct {
	EnrolmentNo      string         `json:"enrolment_no"`
	Name             string         `json:"name"`
	Center           string         `json:"center,omitempty"`
	Trade            string         `json:"trade,omitempty"`
	Totals           Totals         `json:"totals"`
	AllMarksAssigned bool           `json:"all_marks_assigned"`
	IsChecked        bool           `json:"is_checked"`
	CheckedBy        string         `json:"checked_by,omitempty"`
	CheckedAt        *time.Time     `json:"checked_at,omitempty"`
	Answers          []AnswerDetail `json:"answers"`
}

// Totals aggregates a candidate's marks. PrimaryTotal and SecondaryTotal are
// sums of awarded marks over that category's answers (unset counted as zero).
// GrandTotal adds the four admin-entered viva/practical components.
type Totals struct {
	PrimaryTotal   float64 `json:"primary_total"`
	SecondaryTotal float64 `json:"secondary_total"`
	Viva1          int     `json:"viva_1"`
	Viva2          int     `json:"viva_2"`
	Practical1     int     `json:"practical_1"`
	Practical2     int     `json:"practical_2"`
	GrandTotal     float64 `json:"grand_total"`
}

// AnswerDetail joins a grading record with its question for grading and
// export: everything a grader or a marks-statement sheet needs per answer.
type AnswerDetail struct {
	AnswerID      int64    `json:"answer_id"`
	QuestionID    int64    `json:"question_id"`
	QuestionText  string   `json:"question_text"`
	Part          Part     `json:"part"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
	MaxMarks      float64  `json:"max_marks"`
	Category      Category `json:"category"`
	Answer        string   `json:"answer"`
	MarksObt      *float64 `json:"marks_obt,omitempty"`
}
