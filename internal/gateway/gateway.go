// Package gateway defines the LLM operations the interview engine consumes:
// question generation, answer evaluation, and final summarization.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/crispai/crisp/internal/session"
)

// ErrMalformedResponse is returned when the service output cannot be parsed
// into a well-formed result. The engine fails closed on it: no partial or
// guessed values are substituted.
var ErrMalformedResponse = errors.New("malformed LLM response")

// CandidateProfile is the slice of candidate data the generator and
// summarizer are allowed to see. It never includes prior answers or scores.
type CandidateProfile struct {
	ID         string
	Name       string
	Email      string
	Phone      string
	Role       string
	ResumeText string
}

// AskedQuestion is a previously asked prompt, passed to the generator so it
// avoids repeating itself. Deliberately excludes answers and evaluations.
type AskedQuestion struct {
	Prompt     string
	Difficulty session.Difficulty
}

// QuestionResult is a freshly generated question plus guidance describing
// what a good answer covers.
type QuestionResult struct {
	Question string
	Guidance string
}

// EvaluationQuestion is the question context for grading an answer.
type EvaluationQuestion struct {
	Prompt     string
	Difficulty session.Difficulty
	Guidance   string
}

// EvaluationResult is the grading outcome. Score is clamped to 0-100.
type EvaluationResult struct {
	Score    int
	Feedback string
}

// SummaryQuestion is one round's full record for the summarizer.
type SummaryQuestion struct {
	Prompt     string
	Difficulty session.Difficulty
	Answer     string
	Evaluation *session.Evaluation
}

// SummaryResult is the final interview write-up.
type SummaryResult struct {
	Summary     string
	GeneratedAt time.Time
}

// Gateway is the external collaborator contract. Implementations may fail
// or time out; the engine propagates whatever failure or duration they
// exhibit and applies no retry of its own.
type Gateway interface {
	GenerateQuestion(ctx context.Context, difficulty session.Difficulty, candidate CandidateProfile, previous []AskedQuestion) (QuestionResult, error)
	EvaluateAnswer(ctx context.Context, question EvaluationQuestion, answer string) (EvaluationResult, error)
	Summarize(ctx context.Context, candidate CandidateProfile, questions []SummaryQuestion) (SummaryResult, error)
}
