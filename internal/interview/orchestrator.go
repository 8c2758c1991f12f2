// Package interview implements the orchestration engine: the state machine
// that drives a session from creation through six timed question/answer
// rounds to completion.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crispai/crisp/internal/gateway"
	"github.com/crispai/crisp/internal/resume"
	"github.com/crispai/crisp/internal/session"
)

// ErrNoActiveQuestion is returned when SubmitAnswer is issued against a
// session that has no live question.
var ErrNoActiveQuestion = errors.New("no active question")

// User-visible failure notices, appended to the transcript as system
// messages when a gateway call fails.
const (
	msgQuestionFailed   = "We hit a snag while generating the question. Please try again in a moment."
	msgEvaluationFailed = "Failed to score that answer. The interview will continue without a score for it."
	msgNextFailed       = "Unable to fetch the next question right now. Please retry in a moment."
	msgSummaryFailed    = "The interview is complete, but the final summary could not be generated."
	msgAlreadyComplete  = "This interview is already complete. Feel free to review the summary above."
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Orchestrator coordinates the session state store with the LLM gateway.
// All state mutations happen through its commands; commands for the same
// session are serialized by a per-session mutex, so each command observes
// stable state across awaited gateway calls. Sessions are independent, so
// there is no cross-session locking.
type Orchestrator struct {
	store  *session.Store
	gw     gateway.Gateway
	clock  Clock
	logger *slog.Logger

	mu            sync.Mutex             // guards locks and autoSubmitted
	locks         map[string]*sync.Mutex // per-session command mutexes
	autoSubmitted map[string]struct{}    // question ids already auto-submitted on expiry
}

// New creates an Orchestrator over the given store and gateway.
func New(store *session.Store, gw gateway.Gateway) *Orchestrator {
	return NewWithClock(store, gw, realClock{})
}

// NewWithClock creates an Orchestrator with a custom clock (for testing).
func NewWithClock(store *session.Store, gw gateway.Gateway, clock Clock) *Orchestrator {
	return &Orchestrator{
		store:         store,
		gw:            gw,
		clock:         clock,
		logger:        slog.Default(),
		locks:         make(map[string]*sync.Mutex),
		autoSubmitted: make(map[string]struct{}),
	}
}

// sessionLock returns the mutex serializing commands for one session.
func (o *Orchestrator) sessionLock(sessionID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[sessionID] = l
	}
	return l
}

// markAutoSubmitted records the timeout submission for a question and
// reports whether this caller claimed it. The record is shared across
// sessions, so it is guarded by o.mu rather than the per-session lock.
func (o *Orchestrator) markAutoSubmitted(questionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, done := o.autoSubmitted[questionID]; done {
		return false
	}
	o.autoSubmitted[questionID] = struct{}{}
	return true
}

// releaseIfCompleted drops a completed session's bookkeeping: its command
// mutex and its questions' auto-submit records. Called after the session
// lock is released. A late command recreates the mutex on demand and only
// observes terminal state.
func (o *Orchestrator) releaseIfCompleted(sessionID string) {
	sess, err := o.store.Session(sessionID)
	if err != nil || sess.Status != session.SessionCompleted {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.locks, sessionID)
	for _, id := range sess.QuestionIDs {
		delete(o.autoSubmitted, id)
	}
}

// CreateSession creates a candidate and their interview session. Contact
// fields may be empty; the intake path collects whatever is missing.
func (o *Orchestrator) CreateSession(name, email, phone, role string) (session.Session, error) {
	now := o.clock.Now()
	cand := session.Candidate{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		Phone:        phone,
		Role:         role,
		Status:       session.CandidateNew,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActiveAt: now,
	}
	if err := o.store.AddCandidate(cand); err != nil {
		return session.Session{}, err
	}

	sess := session.Session{
		ID:          uuid.New().String(),
		CandidateID: cand.ID,
		Status:      session.SessionNotStarted,
		UpdatedAt:   now,
	}
	if err := o.store.AddSession(sess); err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

// StartInterview moves a session into progress and asks the first (or next)
// question. Invoking it when six questions already exist is a no-op. On a
// generation failure the session stays in progress with no current question,
// so the caller may retry.
func (o *Orchestrator) StartInterview(ctx context.Context, sessionID string) error {
	l := o.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()
	return o.startInterviewLocked(ctx, sessionID)
}

func (o *Orchestrator) startInterviewLocked(ctx context.Context, sessionID string) error {
	sess, err := o.store.Session(sessionID)
	if err != nil {
		return err
	}
	cand, err := o.store.Candidate(sess.CandidateID)
	if err != nil {
		return err
	}

	if sess.Status == session.SessionCompleted {
		return nil
	}
	if len(sess.QuestionIDs) >= session.TotalRounds {
		return nil
	}
	if sess.CurrentQuestionID != "" {
		// A question is already live; nothing to start.
		return nil
	}

	now := o.clock.Now()
	if err := o.store.SetSessionStatus(sessionID, session.SessionInProgress, now); err != nil {
		return err
	}
	if err := o.store.MarkStarted(sessionID, now); err != nil {
		return err
	}
	if err := o.store.SetCandidateStatus(cand.ID, session.CandidateInterviewing, now); err != nil {
		return err
	}

	return o.askQuestion(ctx, sessionID, cand, len(sess.QuestionIDs), msgQuestionFailed)
}

// askQuestion generates and activates the question for the given round.
// The generator sees the candidate profile and prior prompts only, never
// its own grading history.
func (o *Orchestrator) askQuestion(ctx context.Context, sessionID string, cand session.Candidate, round int, failureNotice string) error {
	difficulty := session.DifficultyAt(round)

	asked, err := o.store.SessionQuestions(sessionID)
	if err != nil {
		return err
	}
	previous := make([]gateway.AskedQuestion, len(asked))
	for i, q := range asked {
		previous[i] = gateway.AskedQuestion{Prompt: q.Prompt, Difficulty: q.Difficulty}
	}

	result, err := o.gw.GenerateQuestion(ctx, difficulty, profileOf(cand), previous)
	if err != nil {
		o.appendMessage(sessionID, session.RoleSystem, failureNotice, session.MessageMeta{
			Type:  "error",
			Error: err.Error(),
		})
		return fmt.Errorf("generating question for round %d: %w", round, err)
	}

	now := o.clock.Now()
	q := session.Question{
		ID:               uuid.New().String(),
		SessionID:        sessionID,
		Order:            round,
		Difficulty:       difficulty,
		Prompt:           result.Question,
		Guidance:         result.Guidance,
		TimerSeconds:     session.TimerSeconds(difficulty),
		RemainingSeconds: session.TimerSeconds(difficulty),
		Status:           session.QuestionActive,
		AskedAt:          now,
	}
	if err := o.store.AddQuestion(q); err != nil {
		return err
	}
	if err := o.store.SetCurrentQuestion(sessionID, q.ID, now); err != nil {
		return err
	}

	o.appendMessage(sessionID, session.RoleAssistant, result.Question, session.MessageMeta{
		Type:       "question",
		QuestionID: q.ID,
		Difficulty: difficulty,
		Guidance:   result.Guidance,
	})
	return nil
}

// SubmitAnswer resolves the live question with the given answer, grades it,
// and either asks the next question or completes the interview after the
// sixth round. Submitting against an already-resolved question is a no-op.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, sessionID, answer string) error {
	l := o.sessionLock(sessionID)
	l.Lock()
	err := o.submitAnswerLocked(ctx, sessionID, answer)
	l.Unlock()
	o.releaseIfCompleted(sessionID)
	return err
}

func (o *Orchestrator) submitAnswerLocked(ctx context.Context, sessionID, answer string) error {
	sess, err := o.store.Session(sessionID)
	if err != nil {
		return err
	}
	cand, err := o.store.Candidate(sess.CandidateID)
	if err != nil {
		return err
	}
	if sess.CurrentQuestionID == "" {
		return fmt.Errorf("session %s: %w", sessionID, ErrNoActiveQuestion)
	}
	q, err := o.store.Question(sess.CurrentQuestionID)
	if err != nil {
		return err
	}
	if q.Status != session.QuestionActive {
		return nil
	}

	now := o.clock.Now()
	o.appendMessage(sessionID, session.RoleUser, answer, session.MessageMeta{
		QuestionID: q.ID,
	})

	status := session.QuestionAnswered
	if strings.TrimSpace(answer) == "" {
		status = session.QuestionSkipped
	}
	if err := o.store.ResolveQuestion(q.ID, answer, status, now); err != nil {
		if errors.Is(err, session.ErrQuestionResolved) {
			// A concurrent submission won the race; this one is a no-op.
			return nil
		}
		return err
	}
	// The resolved question must not linger as the session's current
	// question while gateway calls are in flight.
	if err := o.store.SetCurrentQuestion(sessionID, "", now); err != nil {
		return err
	}

	eval, err := o.gw.EvaluateAnswer(ctx, gateway.EvaluationQuestion{
		Prompt:     q.Prompt,
		Difficulty: q.Difficulty,
		Guidance:   q.Guidance,
	}, answer)
	if err != nil {
		// Grading failures degrade gracefully: the question keeps no score
		// and contributes 0 to the average.
		o.logger.Warn("answer evaluation failed", "session_id", sessionID, "question_id", q.ID, "error", err)
		o.appendMessage(sessionID, session.RoleSystem, msgEvaluationFailed, session.MessageMeta{
			Type:       "error",
			QuestionID: q.ID,
			Error:      err.Error(),
		})
	} else {
		if err := o.store.AttachEvaluation(q.ID, session.Evaluation{Score: eval.Score, Reasoning: eval.Feedback}); err != nil {
			return err
		}
		score := eval.Score
		o.appendMessage(sessionID, session.RoleAssistant, eval.Feedback, session.MessageMeta{
			Type:       "evaluation",
			QuestionID: q.ID,
			Score:      &score,
		})
	}

	remaining := session.TotalRounds - (q.Order + 1)
	if remaining <= 0 {
		return o.completeInterview(ctx, sessionID, cand)
	}
	return o.askQuestion(ctx, sessionID, cand, q.Order+1, msgNextFailed)
}

// completeInterview summarizes all six rounds, stores the final score, and
// closes the session. A summarization failure is recorded in the transcript
// but still completes the interview so the session never gets stuck.
func (o *Orchestrator) completeInterview(ctx context.Context, sessionID string, cand session.Candidate) error {
	questions, err := o.store.SessionQuestions(sessionID)
	if err != nil {
		return err
	}

	sum := 0
	summaryQuestions := make([]gateway.SummaryQuestion, len(questions))
	for i, q := range questions {
		if q.Evaluation != nil {
			sum += q.Evaluation.Score
		}
		summaryQuestions[i] = gateway.SummaryQuestion{
			Prompt:     q.Prompt,
			Difficulty: q.Difficulty,
			Answer:     q.Answer,
			Evaluation: q.Evaluation,
		}
	}
	averageScore := int(math.Round(float64(sum) / float64(session.TotalRounds)))

	summaryText := ""
	completedAt := o.clock.Now()
	summary, err := o.gw.Summarize(ctx, profileOf(cand), summaryQuestions)
	if err != nil {
		o.logger.Warn("interview summarization failed", "session_id", sessionID, "error", err)
		o.appendMessage(sessionID, session.RoleSystem, msgSummaryFailed, session.MessageMeta{
			Type:  "error",
			Error: err.Error(),
		})
	} else {
		summaryText = summary.Summary
		completedAt = summary.GeneratedAt
	}

	if err := o.store.SetSessionStatus(sessionID, session.SessionCompleted, completedAt); err != nil {
		return err
	}
	if err := o.store.SetCandidateStatus(cand.ID, session.CandidateCompleted, completedAt); err != nil {
		return err
	}
	if err := o.store.SetCandidateScore(cand.ID, averageScore, summaryText, completedAt); err != nil {
		return err
	}

	if summaryText != "" {
		final := averageScore
		o.appendMessage(sessionID, session.RoleAssistant, summaryText, session.MessageMeta{
			Type:       "summary",
			FinalScore: &final,
		})
	}
	return nil
}

// Tick advances the live question's countdown by one second. It is a no-op
// unless the session is in progress with an active question that has time
// left. When the countdown reaches zero the engine submits an empty answer
// through the normal submission path, exactly once per question.
func (o *Orchestrator) Tick(ctx context.Context, sessionID string) error {
	l := o.sessionLock(sessionID)
	l.Lock()
	err := o.tickLocked(ctx, sessionID)
	l.Unlock()
	o.releaseIfCompleted(sessionID)
	return err
}

func (o *Orchestrator) tickLocked(ctx context.Context, sessionID string) error {
	sess, err := o.store.Session(sessionID)
	if err != nil {
		return err
	}
	if sess.Status != session.SessionInProgress || sess.CurrentQuestionID == "" {
		return nil
	}
	q, err := o.store.Question(sess.CurrentQuestionID)
	if err != nil {
		return err
	}
	if q.Status != session.QuestionActive {
		return nil
	}

	remaining := q.RemainingSeconds
	if remaining > 0 {
		remaining, err = o.store.DecrementTimer(q.ID)
		if err != nil {
			return err
		}
	}
	if remaining > 0 {
		return nil
	}

	if !o.markAutoSubmitted(q.ID) {
		return nil
	}
	return o.submitAnswerLocked(ctx, sessionID, "")
}

// HandleChatTurn handles free-text chat input. While a question is live it
// is an answer submission; otherwise it feeds the intake path that collects
// the candidate's contact details and resume before starting the interview.
func (o *Orchestrator) HandleChatTurn(ctx context.Context, sessionID, message string, resumeMeta *session.ResumeMetadata) error {
	l := o.sessionLock(sessionID)
	l.Lock()
	err := o.chatTurnLocked(ctx, sessionID, message, resumeMeta)
	l.Unlock()
	o.releaseIfCompleted(sessionID)
	return err
}

func (o *Orchestrator) chatTurnLocked(ctx context.Context, sessionID, message string, resumeMeta *session.ResumeMetadata) error {
	sess, err := o.store.Session(sessionID)
	if err != nil {
		return err
	}
	cand, err := o.store.Candidate(sess.CandidateID)
	if err != nil {
		return err
	}

	trimmed := strings.TrimSpace(message)

	if sess.CurrentQuestionID != "" && sess.Status == session.SessionInProgress {
		return o.submitAnswerLocked(ctx, sessionID, trimmed)
	}

	now := o.clock.Now()
	if trimmed != "" {
		o.appendMessage(sessionID, session.RoleUser, trimmed, session.MessageMeta{})

		contact := resume.ExtractContactDetails(trimmed)
		if err := o.store.FillContact(cand.ID, contact.Name, contact.Email, contact.Phone, now); err != nil {
			return err
		}
	}

	if resumeMeta != nil && (cand.Resume == nil || cand.Resume.ParsedText == "") {
		if err := o.store.AttachResume(cand.ID, *resumeMeta, now); err != nil {
			return err
		}
	}

	cand, err = o.store.Candidate(cand.ID)
	if err != nil {
		return err
	}
	missing := missingFields(cand)
	if len(missing) > 0 {
		if sess.Status == session.SessionNotStarted {
			if err := o.store.SetSessionStatus(sessionID, session.SessionCollecting, now); err != nil {
				return err
			}
			if err := o.store.SetCandidateStatus(cand.ID, session.CandidateCollecting, now); err != nil {
				return err
			}
		}
		o.appendMessage(sessionID, session.RoleAssistant,
			fmt.Sprintf("Thanks! I still need your %s before we start. Please provide them here.", strings.Join(missing, ", ")),
			session.MessageMeta{})
		return nil
	}

	switch {
	case sess.Status == session.SessionCompleted:
		if err := o.store.SetCandidateStatus(cand.ID, session.CandidateCompleted, now); err != nil {
			return err
		}
		o.appendMessage(sessionID, session.RoleAssistant, msgAlreadyComplete, session.MessageMeta{})
		return nil
	case len(sess.QuestionIDs) == 0 || sess.Status != session.SessionInProgress:
		return o.startInterviewLocked(ctx, sessionID)
	default:
		return nil
	}
}

// missingFields returns the intake fields the candidate has not provided
// yet, in prompt order.
func missingFields(cand session.Candidate) []string {
	var missing []string
	if cand.Name == "" {
		missing = append(missing, "name")
	}
	if cand.Email == "" {
		missing = append(missing, "email")
	}
	if cand.Phone == "" {
		missing = append(missing, "phone")
	}
	if cand.Resume == nil || cand.Resume.ParsedText == "" {
		missing = append(missing, "resume")
	}
	return missing
}

func profileOf(cand session.Candidate) gateway.CandidateProfile {
	p := gateway.CandidateProfile{
		ID:    cand.ID,
		Name:  cand.Name,
		Email: cand.Email,
		Phone: cand.Phone,
		Role:  cand.Role,
	}
	if cand.Resume != nil {
		p.ResumeText = cand.Resume.ParsedText
	}
	return p
}

// appendMessage appends a transcript entry. Append failures are logged
// rather than propagated: the transcript is advisory and a failed append
// must not corrupt the command that triggered it.
func (o *Orchestrator) appendMessage(sessionID string, role session.Role, content string, meta session.MessageMeta) {
	m := session.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: o.clock.Now(),
		Meta:      meta,
	}
	if err := o.store.AppendMessage(m); err != nil {
		o.logger.Error("appending chat message failed", "session_id", sessionID, "error", err)
	}
}
