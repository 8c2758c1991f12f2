package session

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrActiveQuestionExists is returned when a second question would become
// active for the same session.
var ErrActiveQuestionExists = errors.New("session already has an active question")

// ErrQuestionResolved is returned when a terminal question is mutated again.
var ErrQuestionResolved = errors.New("question already resolved")

// Difficulty of an interview question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// difficultySequence is the fixed per-session round order. Every interview
// asks exactly these difficulties, in this order.
var difficultySequence = []Difficulty{
	DifficultyEasy, DifficultyEasy,
	DifficultyMedium, DifficultyMedium,
	DifficultyHard, DifficultyHard,
}

// TotalRounds is the number of question/answer rounds per interview.
const TotalRounds = 6

// DifficultyAt returns the difficulty of the given 0-based round.
func DifficultyAt(round int) Difficulty {
	return difficultySequence[round]
}

// TimerSeconds returns the fixed answer window for a difficulty.
func TimerSeconds(d Difficulty) int {
	switch d {
	case DifficultyEasy:
		return 20
	case DifficultyMedium:
		return 60
	case DifficultyHard:
		return 120
	}
	return 0
}

// CandidateStatus tracks a candidate through the interview lifecycle.
type CandidateStatus string

const (
	CandidateNew          CandidateStatus = "new"
	CandidateCollecting   CandidateStatus = "collecting_info"
	CandidateInterviewing CandidateStatus = "interviewing"
	CandidatePaused       CandidateStatus = "paused"
	CandidateCompleted    CandidateStatus = "completed"
)

// SessionStatus tracks an interview session through its lifecycle.
type SessionStatus string

const (
	SessionNotStarted SessionStatus = "not_started"
	SessionCollecting SessionStatus = "collecting_info"
	SessionInProgress SessionStatus = "in_progress"
	SessionPaused     SessionStatus = "paused"
	SessionCompleted  SessionStatus = "completed"
)

// QuestionStatus is the question state machine. Questions are created
// directly into active; answered and skipped are terminal.
type QuestionStatus string

const (
	QuestionPending  QuestionStatus = "pending"
	QuestionActive   QuestionStatus = "active"
	QuestionAnswered QuestionStatus = "answered"
	QuestionSkipped  QuestionStatus = "skipped"
)

// Role of a chat message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// ResumeMetadata describes an uploaded resume and its extracted text.
type ResumeMetadata struct {
	FileName   string
	FileType   string
	Size       int64
	UploadedAt time.Time
	ParsedText string
}

// Candidate is one interviewee. Contact fields are empty until collected
// from chat or resume extraction; they are fill-only after that.
type Candidate struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	Role         string
	Status       CandidateStatus
	Score        *int // final rounded 0-100 score, set on completion
	Summary      string
	Resume       *ResumeMetadata
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastActiveAt time.Time
}

// Evaluation is the score/feedback pair produced by the grading service.
type Evaluation struct {
	Score     int
	Reasoning string
}

// Question is one timed round within a session.
type Question struct {
	ID               string
	SessionID        string
	Order            int // 0-based position in the difficulty sequence
	Difficulty       Difficulty
	Prompt           string
	Guidance         string // generator's answer guidance, fed to evaluation
	TimerSeconds     int
	RemainingSeconds int
	Status           QuestionStatus
	Answer           string
	AnsweredAt       *time.Time
	Evaluation       *Evaluation
	AskedAt          time.Time
}

// Resolved reports whether the question reached a terminal state.
func (q Question) Resolved() bool {
	return q.Status == QuestionAnswered || q.Status == QuestionSkipped
}

// Session is one interview: an ordered question list and at most one
// active question at a time.
type Session struct {
	ID                string
	CandidateID       string
	Status            SessionStatus
	QuestionIDs       []string // append-only presentation order
	CurrentQuestionID string   // empty when no question is live
	StartedAt         *time.Time
	CompletedAt       *time.Time
	UpdatedAt         time.Time
}

// MessageMeta is free-form annotation on a transcript entry.
type MessageMeta struct {
	Type       string     `json:"type,omitempty"` // question, evaluation, summary, error
	QuestionID string     `json:"questionId,omitempty"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
	Score      *int       `json:"score,omitempty"`
	FinalScore *int       `json:"finalScore,omitempty"`
	Guidance   string     `json:"recommendedAnswer,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Message is one transcript entry. The transcript is the sole human-readable
// record of everything that happened in a session.
type Message struct {
	ID        string
	SessionID string
	Role      Role
	Content   string
	CreatedAt time.Time
	Meta      MessageMeta
}
