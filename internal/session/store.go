package session

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store holds the normalized interview tables: candidates, sessions,
// questions, and per-session transcripts, all keyed by id. Cross-entity
// navigation is by id lookup only; the store hands out copies so callers
// cannot mutate shared state behind its back.
//
// The store does no I/O. Durability is layered on top by the archive.
type Store struct {
	mu         sync.RWMutex
	candidates map[string]*Candidate
	sessions   map[string]*Session
	questions  map[string]*Question
	threads    map[string][]Message // sessionID -> append-only transcript
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		candidates: make(map[string]*Candidate),
		sessions:   make(map[string]*Session),
		questions:  make(map[string]*Question),
		threads:    make(map[string][]Message),
	}
}

// --- Candidates ---

// AddCandidate inserts a candidate. The id must be unused.
func (s *Store) AddCandidate(c Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.candidates[c.ID]; ok {
		return fmt.Errorf("candidate %s already exists", c.ID)
	}
	cp := copyCandidate(&c)
	s.candidates[c.ID] = &cp
	return nil
}

// Candidate returns the candidate by id.
func (s *Store) Candidate(id string) (Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[id]
	if !ok {
		return Candidate{}, fmt.Errorf("candidate %s: %w", id, ErrNotFound)
	}
	return copyCandidate(c), nil
}

// Candidates returns all candidates, most recently updated first.
func (s *Store) Candidates() []Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		out = append(out, copyCandidate(c))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// SetCandidateStatus updates a candidate's status and activity timestamps.
func (s *Store) SetCandidateStatus(id string, status CandidateStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		return fmt.Errorf("candidate %s: %w", id, ErrNotFound)
	}
	c.Status = status
	c.UpdatedAt = now
	c.LastActiveAt = now
	return nil
}

// SetCandidateScore records the final score and summary.
func (s *Store) SetCandidateScore(id string, score int, summary string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		return fmt.Errorf("candidate %s: %w", id, ErrNotFound)
	}
	sc := clampScore(score)
	c.Score = &sc
	if summary != "" {
		c.Summary = summary
	}
	c.UpdatedAt = now
	return nil
}

// FillContact fills only the contact fields that are still empty. Known
// values are never overwritten, even if extraction later disagrees.
func (s *Store) FillContact(id, name, email, phone string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		return fmt.Errorf("candidate %s: %w", id, ErrNotFound)
	}
	changed := false
	if c.Name == "" && name != "" {
		c.Name = name
		changed = true
	}
	if c.Email == "" && email != "" {
		c.Email = email
		changed = true
	}
	if c.Phone == "" && phone != "" {
		c.Phone = phone
		changed = true
	}
	if changed {
		c.UpdatedAt = now
	}
	return nil
}

// AttachResume sets the candidate's resume metadata.
func (s *Store) AttachResume(id string, resume ResumeMetadata, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		return fmt.Errorf("candidate %s: %w", id, ErrNotFound)
	}
	r := resume
	c.Resume = &r
	c.UpdatedAt = now
	return nil
}

// --- Sessions ---

// AddSession inserts a session. The id must be unused and the candidate
// must exist.
func (s *Store) AddSession(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("session %s already exists", sess.ID)
	}
	if _, ok := s.candidates[sess.CandidateID]; !ok {
		return fmt.Errorf("candidate %s: %w", sess.CandidateID, ErrNotFound)
	}
	cp := copySession(&sess)
	s.sessions[sess.ID] = &cp
	return nil
}

// Session returns the session by id.
func (s *Store) Session(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return copySession(sess), nil
}

// Sessions returns all sessions, most recently updated first.
func (s *Store) Sessions() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, copySession(sess))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// SetSessionStatus updates a session's status. Completion also stamps
// CompletedAt.
func (s *Store) SetSessionStatus(id string, status SessionStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	sess.Status = status
	sess.UpdatedAt = now
	if status == SessionCompleted {
		t := now
		sess.CompletedAt = &t
	}
	return nil
}

// MarkStarted stamps StartedAt if it is not already set.
func (s *Store) MarkStarted(id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if sess.StartedAt == nil {
		t := now
		sess.StartedAt = &t
		sess.UpdatedAt = now
	}
	return nil
}

// SetCurrentQuestion points the session at a live question, or clears the
// pointer when questionID is empty. A non-empty id must reference an active
// question belonging to this session.
func (s *Store) SetCurrentQuestion(sessionID, questionID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if questionID != "" {
		q, ok := s.questions[questionID]
		if !ok {
			return fmt.Errorf("question %s: %w", questionID, ErrNotFound)
		}
		if q.SessionID != sessionID {
			return fmt.Errorf("question %s belongs to session %s, not %s", questionID, q.SessionID, sessionID)
		}
		if q.Status != QuestionActive {
			return fmt.Errorf("question %s is %s, not active", questionID, q.Status)
		}
	}
	sess.CurrentQuestionID = questionID
	sess.UpdatedAt = now
	return nil
}

// --- Questions ---

// AddQuestion creates a question as active and appends it to its session's
// question list. At most one question per session may be active; the order
// must be the next slot in the sequence.
func (s *Store) AddQuestion(q Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[q.ID]; ok {
		return fmt.Errorf("question %s already exists", q.ID)
	}
	sess, ok := s.sessions[q.SessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", q.SessionID, ErrNotFound)
	}
	if q.Status != QuestionActive {
		return fmt.Errorf("question %s must be created active, got %s", q.ID, q.Status)
	}
	for _, id := range sess.QuestionIDs {
		if prev, ok := s.questions[id]; ok && prev.Status == QuestionActive {
			return fmt.Errorf("question %s: %w", id, ErrActiveQuestionExists)
		}
	}
	if q.Order != len(sess.QuestionIDs) {
		return fmt.Errorf("question order %d does not match next slot %d", q.Order, len(sess.QuestionIDs))
	}
	cp := copyQuestion(&q)
	s.questions[q.ID] = &cp
	sess.QuestionIDs = append(sess.QuestionIDs, q.ID)
	sess.UpdatedAt = q.AskedAt
	return nil
}

// Question returns the question by id.
func (s *Store) Question(id string) (Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return Question{}, fmt.Errorf("question %s: %w", id, ErrNotFound)
	}
	return copyQuestion(q), nil
}

// SessionQuestions returns a session's questions in presentation order.
func (s *Store) SessionQuestions(sessionID string) ([]Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	out := make([]Question, 0, len(sess.QuestionIDs))
	for _, id := range sess.QuestionIDs {
		if q, ok := s.questions[id]; ok {
			out = append(out, copyQuestion(q))
		}
	}
	return out, nil
}

// ResolveQuestion moves an active question to a terminal state and records
// the raw answer. Resolving an already-terminal question fails with
// ErrQuestionResolved so racing submissions cannot double-resolve.
func (s *Store) ResolveQuestion(id, answer string, status QuestionStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return fmt.Errorf("question %s: %w", id, ErrNotFound)
	}
	if status != QuestionAnswered && status != QuestionSkipped {
		return fmt.Errorf("invalid terminal status %s", status)
	}
	if q.Status != QuestionActive {
		return fmt.Errorf("question %s: %w", id, ErrQuestionResolved)
	}
	q.Answer = answer
	t := now
	q.AnsweredAt = &t
	q.Status = status
	return nil
}

// AttachEvaluation records the grading result, clamping the score to 0-100.
func (s *Store) AttachEvaluation(id string, eval Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return fmt.Errorf("question %s: %w", id, ErrNotFound)
	}
	eval.Score = clampScore(eval.Score)
	q.Evaluation = &eval
	return nil
}

// DecrementTimer reduces an active question's remaining time by one second,
// never below zero. It returns the remaining seconds after the decrement.
func (s *Store) DecrementTimer(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return 0, fmt.Errorf("question %s: %w", id, ErrNotFound)
	}
	if q.Status == QuestionActive && q.RemainingSeconds > 0 {
		q.RemainingSeconds--
	}
	return q.RemainingSeconds, nil
}

// SetRemainingSeconds restores a timer value (used when rehydrating a
// session from the archive).
func (s *Store) SetRemainingSeconds(id string, remaining int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return fmt.Errorf("question %s: %w", id, ErrNotFound)
	}
	if remaining < 0 {
		remaining = 0
	}
	q.RemainingSeconds = remaining
	return nil
}

// --- Transcript ---

// AppendMessage appends a message to its session's transcript.
func (s *Store) AppendMessage(m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[m.SessionID]; !ok {
		return fmt.Errorf("session %s: %w", m.SessionID, ErrNotFound)
	}
	s.threads[m.SessionID] = append(s.threads[m.SessionID], m)
	return nil
}

// Thread returns a copy of a session's transcript in append order.
func (s *Store) Thread(sessionID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.threads[sessionID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// ClearThread removes a session's transcript. This is an administrative
// operation; nothing in the interview flow calls it.
func (s *Store) ClearThread(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, sessionID)
}

// Load installs records wholesale, bypassing the command invariants. It is
// used once at boot when rehydrating state from the archive; records are
// trusted to have been valid when persisted.
func (s *Store) Load(candidates []Candidate, sessions []Session, questions []Question, messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range candidates {
		cp := copyCandidate(&candidates[i])
		s.candidates[cp.ID] = &cp
	}
	for i := range sessions {
		cp := copySession(&sessions[i])
		s.sessions[cp.ID] = &cp
	}
	for i := range questions {
		cp := copyQuestion(&questions[i])
		s.questions[cp.ID] = &cp
	}
	for _, m := range messages {
		s.threads[m.SessionID] = append(s.threads[m.SessionID], m)
	}
}

// --- Derived reads ---

// OpenSessions returns ids of sessions that are in progress with a live
// question, i.e. the sessions the timer driver should tick.
func (s *Store) OpenSessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, sess := range s.sessions {
		if sess.Status == SessionInProgress && sess.CurrentQuestionID != "" {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func copyCandidate(c *Candidate) Candidate {
	cp := *c
	if c.Score != nil {
		v := *c.Score
		cp.Score = &v
	}
	if c.Resume != nil {
		r := *c.Resume
		cp.Resume = &r
	}
	return cp
}

func copySession(sess *Session) Session {
	cp := *sess
	cp.QuestionIDs = make([]string, len(sess.QuestionIDs))
	copy(cp.QuestionIDs, sess.QuestionIDs)
	if sess.StartedAt != nil {
		t := *sess.StartedAt
		cp.StartedAt = &t
	}
	if sess.CompletedAt != nil {
		t := *sess.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}

func copyQuestion(q *Question) Question {
	cp := *q
	if q.AnsweredAt != nil {
		t := *q.AnsweredAt
		cp.AnsweredAt = &t
	}
	if q.Evaluation != nil {
		e := *q.Evaluation
		cp.Evaluation = &e
	}
	return cp
}
