package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleGrader can grade answers and lock candidate results.
	UserRoleGrader UserRole = "grader"
	// UserRoleAdmin has full access, including paper and question management.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user (grader or administrator). Users supply the
// acting identity stamped into checked_by when grades are finalized.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Part classifies a question's answer format.
type Part string

const (
	PartA Part = "A" // MCQ, single choice
	PartB Part = "B" // MCQ, multiple choice
	PartC Part = "C" // short answer
	PartD Part = "D" // fill in the blanks
	PartE Part = "E" // long answer
	PartF Part = "F" // true/false
)

// AllParts lists the valid part codes in display order.
var AllParts = []Part{PartA, PartB, PartC, PartD, PartE, PartF}

// ValidPart reports whether code is one of the six part codes.
func ValidPart(code string) bool {
	for _, p := range AllParts {
		if Part(code) == p {
			return true
		}
	}
	return false
}

// Objective reports whether answers for this part can be auto-marked by
// matching against the question's accepted answers (A, B and F).
func (p Part) Objective() bool {
	return p == PartA || p == PartB || p == PartF
}

// FreeText reports whether this part takes a free-text response that must be
// graded manually (C, D and E).
func (p Part) FreeText() bool {
	return p == PartC || p == PartD || p == PartE
}

// PaperType classifies a question paper.
type PaperType string

const (
	PaperPrimary   PaperType = "Primary"
	PaperSecondary PaperType = "Secondary"
)

// Category labels which exam a graded answer belongs to.
type Category string

const (
	CategoryPrimary   Category = "primary"
	CategorySecondary Category = "secondary"
)

// Question is a single pool question tagged by part and optional trade.
type Question struct {
	ID            int64     `json:"id"`
	Text          string    `json:"text"`
	Part          Part      `json:"part"`
	MaxMarks      float64   `json:"max_marks"`
	Options       string    `json:"options,omitempty"`
	CorrectAnswer string    `json:"correct_answer,omitempty"`
	Trade         string    `json:"trade,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// QuestionPaper defines a paper. IsCommon is derived from PaperType on every
// save and is never accepted from callers: a Secondary paper is always
// common and carries no trade.
type QuestionPaper struct {
	ID              int64          `json:"id"`
	PaperType       PaperType      `json:"paper_type"`
	IsCommon        bool           `json:"is_common"`
	Trade           string         `json:"trade,omitempty"`
	DurationMinutes int            `json:"duration_minutes"`
	PartQuota       map[string]int `json:"part_quota,omitempty"`
	Active          bool           `json:"active"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Category returns the grading category of answers written against this
// paper: secondary when common, primary otherwise.
func (p QuestionPaper) Category() Category {
	if p.IsCommon {
		return CategorySecondary
	}
	return CategoryPrimary
}

// PaperQuestion links a question into a paper's pool with a display order.
// Unique per (paper, question).
type PaperQuestion struct {
	ID         int64 `json:"id"`
	PaperID    int64 `json:"paper_id"`
	QuestionID int64 `json:"question_id"`
	Order      int   `json:"order"`
}

// ExamSession is one generation event for a candidate. The trade is captured
// at generation time even if the paper's trade changes later.
type ExamSession struct {
	ID              int64      `json:"id"`
	PaperID         int64      `json:"paper_id"`
	CandidateID     int64      `json:"candidate_id"`
	Trade           string     `json:"trade,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	TotalQuestions  int        `json:"total_questions"`
	Score           *float64   `json:"score,omitempty"`
}

// ExamQuestion is the materialized draw for one session: the questions
// actually presented to the candidate, in order. Unique per
// (session, question); distinct from PaperQuestion, which is the pool.
type ExamQuestion struct {
	ID         int64 `json:"id"`
	SessionID  int64 `json:"session_id"`
	QuestionID int64 `json:"question_id"`
	Order      int   `json:"order"`
}

// CandidateAnswer records a candidate's submitted response for one
// (candidate, paper, question) triple. Re-submission overwrites.
type CandidateAnswer struct {
	ID          int64     `json:"id"`
	CandidateID int64     `json:"candidate_id"`
	PaperID     int64     `json:"paper_id"`
	QuestionID  int64     `json:"question_id"`
	Answer      string    `json:"answer"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Answer is the grading-facing record: created at intake, mutated by the
// grading engine, never deleted by it. MarksObt is nil until awarded.
type Answer struct {
	ID          int64    `json:"id"`
	CandidateID int64    `json:"candidate_id"`
	QuestionID  int64    `json:"question_id"`
	Category    Category `json:"category"`
	Answer      string   `json:"answer"`
	MarksObt    *float64 `json:"marks_obt,omitempty"`
}

// Candidate holds identity, trade affiliation, admin-entered viva/practical
// marks (1 = primary exam, 2 = secondary exam) and the grading lock state.
// Once IsChecked is set the grading engine refuses further mutation.
type Candidate struct {
	ID          int64      `json:"id"`
	EnrolmentNo string     `json:"enrolment_no"`
	Name        string     `json:"name"`
	Center      string     `json:"center,omitempty"`
	Trade       string     `json:"trade,omitempty"`
	FatherName  string     `json:"father_name,omitempty"`
	DOB         string     `json:"dob,omitempty"`
	District    string     `json:"district,omitempty"`
	State       string     `json:"state,omitempty"`
	Viva1       int        `json:"viva_1"`
	Viva2       int        `json:"viva_2"`
	Practical1  int        `json:"practical_1"`
	Practical2  int        `json:"practical_2"`
	IsChecked   bool       `json:"is_checked"`
	CheckedBy   *int64     `json:"checked_by,omitempty"`
	CheckedAt   *time.Time `json:"checked_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IntakeRow is one normalized row from a bulk import: candidate identity,
// the question as it appeared on the answer sheet, and the written answer.
type IntakeRow struct {
	EnrolmentNo string
	Name        string
	Center      string
	Trade       string
	FatherName  string
	DOB         string
	District    string
	State       string
	Viva1       int
	Viva2       int
	Practical1  int
	Practical2  int

	ExamType      string
	QuestionText  string
	CorrectAnswer string
	MaxMarks      float64
	Part          string
	Answer        string
	MarksObt      float64
}

// IntakeSummary reports what one bulk import created or updated.
type IntakeSummary struct {
	CandidatesCreated int `json:"candidates_created"`
	CandidatesUpdated int `json:"candidates_updated"`
	QuestionsCreated  int `json:"questions_created"`
	AnswersCreated    int `json:"answers_created"`
}
