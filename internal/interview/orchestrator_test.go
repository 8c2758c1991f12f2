package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/crispai/crisp/internal/gateway"
	"github.com/crispai/crisp/internal/session"
)

// fakeGateway is a scripted Gateway for engine tests.
type fakeGateway struct {
	mu      sync.Mutex
	genErr  error
	evalErr error
	sumErr  error

	genCount    int
	evalAnswers []string
	scores      []int // per-round scores; defaults to 50 when exhausted
	summary     string
}

func (f *fakeGateway) GenerateQuestion(ctx context.Context, difficulty session.Difficulty, candidate gateway.CandidateProfile, previous []gateway.AskedQuestion) (gateway.QuestionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.genErr != nil {
		return gateway.QuestionResult{}, f.genErr
	}
	f.genCount++
	return gateway.QuestionResult{
		Question: fmt.Sprintf("Question %d (%s)", f.genCount, difficulty),
		Guidance: "cover the key points",
	}, nil
}

func (f *fakeGateway) EvaluateAnswer(ctx context.Context, question gateway.EvaluationQuestion, answer string) (gateway.EvaluationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.evalErr != nil {
		return gateway.EvaluationResult{}, f.evalErr
	}
	f.evalAnswers = append(f.evalAnswers, answer)
	score := 50
	if n := len(f.evalAnswers) - 1; n < len(f.scores) {
		score = f.scores[n]
	}
	return gateway.EvaluationResult{Score: score, Feedback: "decent answer"}, nil
}

func (f *fakeGateway) Summarize(ctx context.Context, candidate gateway.CandidateProfile, questions []gateway.SummaryQuestion) (gateway.SummaryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sumErr != nil {
		return gateway.SummaryResult{}, f.sumErr
	}
	summary := f.summary
	if summary == "" {
		summary = "Solid candidate overall."
	}
	return gateway.SummaryResult{Summary: summary, GeneratedAt: time.Now().UTC()}, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newTestOrchestrator(t *testing.T, gw gateway.Gateway) (*Orchestrator, *session.Store, session.Session) {
	t.Helper()
	store := session.NewStore()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	orch := NewWithClock(store, gw, clock)
	sess, err := orch.CreateSession("Ada Lovelace", "ada@example.com", "+1 415 555 0100", "Full-stack Engineer")
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	return orch, store, sess
}

func activeQuestion(t *testing.T, store *session.Store, sessionID string) session.Question {
	t.Helper()
	sess, err := store.Session(sessionID)
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	if sess.CurrentQuestionID == "" {
		t.Fatal("no current question")
	}
	q, err := store.Question(sess.CurrentQuestionID)
	if err != nil {
		t.Fatalf("loading question: %v", err)
	}
	return q
}

func TestStartInterviewAsksFirstQuestion(t *testing.T) {
	gw := &fakeGateway{}
	orch, store, sess := newTestOrchestrator(t, gw)

	if err := orch.StartInterview(context.Background(), sess.ID); err != nil {
		t.Fatalf("StartInterview: %v", err)
	}

	got, _ := store.Session(sess.ID)
	if got.Status != session.SessionInProgress {
		t.Errorf("session status = %s, want in_progress", got.Status)
	}
	if got.StartedAt == nil {
		t.Error("StartedAt not stamped")
	}

	q := activeQuestion(t, store, sess.ID)
	if q.Order != 0 {
		t.Errorf("order = %d, want 0", q.Order)
	}
	if q.Difficulty != session.DifficultyEasy {
		t.Errorf("difficulty = %s, want easy", q.Difficulty)
	}
	if q.TimerSeconds != 20 || q.RemainingSeconds != 20 {
		t.Errorf("timer = %d/%d, want 20/20", q.RemainingSeconds, q.TimerSeconds)
	}

	cand, _ := store.Candidate(sess.CandidateID)
	if cand.Status != session.CandidateInterviewing {
		t.Errorf("candidate status = %s, want interviewing", cand.Status)
	}

	thread := store.Thread(sess.ID)
	if len(thread) != 1 {
		t.Fatalf("thread length = %d, want 1", len(thread))
	}
	if thread[0].Role != session.RoleAssistant || thread[0].Meta.Type != "question" {
		t.Errorf("unexpected first message: role=%s type=%s", thread[0].Role, thread[0].Meta.Type)
	}
	if thread[0].Meta.Guidance == "" {
		t.Error("question message missing guidance meta")
	}
}

func TestStartInterviewNoopWhileQuestionLive(t *testing.T) {
	gw := &fakeGateway{}
	orch, store, sess := newTestOrchestrator(t, gw)

	ctx := context.Background()
	if err := orch.StartInterview(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	if err := orch.StartInterview(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Session(sess.ID)
	if len(got.QuestionIDs) != 1 {
		t.Errorf("question count = %d, want 1", len(got.QuestionIDs))
	}
	if gw.genCount != 1 {
		t.Errorf("generator calls = %d, want 1", gw.genCount)
	}
}

func TestFullInterviewSequence(t *testing.T) {
	gw := &fakeGateway{scores: []int{80, 70, 60, 90, 50, 100}}
	orch, store, sess := newTestOrchestrator(t, gw)

	ctx := context.Background()
	if err := orch.StartInterview(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < session.TotalRounds; i++ {
		if err := orch.SubmitAnswer(ctx, sess.ID, fmt.Sprintf("answer %d", i)); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}

	questions, _ := store.SessionQuestions(sess.ID)
	if len(questions) != session.TotalRounds {
		t.Fatalf("question count = %d, want %d", len(questions), session.TotalRounds)
	}

	wantDifficulty := []session.Difficulty{"easy", "easy", "medium", "medium", "hard", "hard"}
	wantTimer := []int{20, 20, 60, 60, 120, 120}
	for i, q := range questions {
		if q.Order != i {
			t.Errorf("question %d order = %d", i, q.Order)
		}
		if q.Difficulty != wantDifficulty[i] {
			t.Errorf("question %d difficulty = %s, want %s", i, q.Difficulty, wantDifficulty[i])
		}
		if q.TimerSeconds != wantTimer[i] {
			t.Errorf("question %d timer = %d, want %d", i, q.TimerSeconds, wantTimer[i])
		}
		if q.Status != session.QuestionAnswered {
			t.Errorf("question %d status = %s, want answered", i, q.Status)
		}
	}

	got, _ := store.Session(sess.ID)
	if got.Status != session.SessionCompleted {
		t.Errorf("session status = %s, want completed", got.Status)
	}
	if got.CurrentQuestionID != "" {
		t.Error("current question not cleared on completion")
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}

	cand, _ := store.Candidate(sess.CandidateID)
	if cand.Status != session.CandidateCompleted {
		t.Errorf("candidate status = %s, want completed", cand.Status)
	}
	if cand.Score == nil || *cand.Score != 75 {
		t.Errorf("final score = %v, want 75", cand.Score)
	}
	if cand.Summary == "" {
		t.Error("summary not recorded")
	}

	thread := store.Thread(sess.ID)
	last := thread[len(thread)-1]
	if last.Meta.Type != "summary" {
		t.Errorf("last message type = %s, want summary", last.Meta.Type)
	}
	if last.Meta.FinalScore == nil || *last.Meta.FinalScore != 75 {
		t.Errorf("final score meta = %v, want 75", last.Meta.FinalScore)
	}
}

func TestSeventhStartIsNoop(t *testing.T) {
	gw := &fakeGateway{}
	orch, store, sess := newTestOrchestrator(t, gw)

	ctx := context.Background()
	orch.StartInterview(ctx, sess.ID)
	for i := 0; i < session.TotalRounds; i++ {
		orch.SubmitAnswer(ctx, sess.ID, "answer")
	}

	if err := orch.StartInterview(ctx, sess.ID); err != nil {
		t.Fatalf("StartInterview after completion: %v", err)
	}
	got, _ := store.Session(sess.ID)
	if len(got.QuestionIDs) != session.TotalRounds {
		t.Errorf("question count = %d, want %d", len(got.QuestionIDs), session.TotalRounds)
	}
}

func TestWhitespaceAnswerSkips(t *testing.T) {
	gw := &fakeGateway{}
	orch, store, sess := newTestOrchestrator(t, gw)

	ctx := context.Background()
	orch.StartInterview(ctx, sess.ID)
	first := activeQuestion(t, store, sess.ID)

	if err := orch.SubmitAnswer(ctx, sess.ID, "   \n\t "); err != nil {
		t.Fatal(err)
	}

	q, _ := store.Question(first.ID)
	if q.Status != session.QuestionSkipped {
		t.Errorf("status = %s, want skipped", q.Status)
	}
	// A skipped answer is still graded.
	if len(gw.evalAnswers) != 1 {
		t.Errorf("evaluation calls = %d, want 1", len(gw.evalAnswers))
	}
}

func TestSubmitWithoutActiveQuestion(t *testing.T) {
	gw := &fakeGateway{}
	orch, _, sess := newTestOrchestrator(t, gw)

	err := orch.SubmitAnswer(context.Background(), sess.ID, "hello")
	if !errors.Is(err, ErrNoActiveQuestion) {
		t.Errorf("error = %v, want ErrNoActiveQuestion", err)
	}
}

func TestEvaluationFailureDegrades(t *testing.T) {
	gw := &fakeGateway{evalErr: errors.New("model unavailable")}
	orch, store, sess := newTestOrchestrator(t, gw)

	ctx := context.Background()
	orch.StartInterview(ctx, sess.ID)
	first := activeQuestion(t, store, sess.ID)

	if err := orch.SubmitAnswer(ctx, sess.ID, "my answer"); err != nil {
		t.Fatalf("SubmitAnswer should not fail on evaluation error: %v", err)
	}

	q, _ := store.Question(first.ID)
	if q.Status != session.QuestionAnswered {
		t.Errorf("status = %s, want answered", q.Status)
	}
	if q.Evaluation != nil {
		t.Error("evaluation attached despite grading failure")
	}

	// The interview moves on to the next question.
	next := activeQuestion(t, store, sess.ID)
	if next.Order != 1 {
		t.Errorf("next order = %d, want 1", next.Order)
	}
}

func TestUnscoredQuestionsCountZero(t *testing.T) {
	gw := &fakeGateway{scores: []int{100, 100, 100, 100, 100, 100}}
	orch, store, sess := newTestOrchestrator(t, gw)

	ctx := context.Background()
	orch.StartInterview(ctx, sess.ID)
	// Fail grading for the first three rounds.
	gw.evalErr = errors.New("model unavailable")
	for i := 0; i < 3; i++ {
		orch.SubmitAnswer(ctx, sess.ID, "answer")
	}
	gw.evalErr = nil
	for i := 0; i < 3; i++ {
		orch.SubmitAnswer(ctx, sess.ID, "answer")
	}

	cand, _ := store.Candidate(sess.CandidateID)
	// Three rounds at 100, three unscored: 300/6 = 50.
	if cand.Score == nil || *cand.Score != 50 {
		t.Errorf("final score = %v, want 50", cand.Score)
	}
}

func TestGenerationFailureLeavesRetryableState(t *testing.T) {
	gw := &fakeGateway{genErr: errors.New("upstream 500")}
	orch, store, sess := newTestOrchestrator(t, gw)

	ctx := context.Background()
	err := orch.StartInterview(ctx, sess.ID)
	if err == nil {
		t.Fatal("expected generation error")
	}

	got, _ := store.Session(sess.ID)
	if got.Status != session.SessionInProgress {
		t.Errorf("session status = %s, want in_progress", got.Status)
	}
	if got.CurrentQuestionID != "" {
		t.Error("current question set despite generation failure")
	}

	thread := store.Thread(sess.ID)
	if len(thread) != 1 || thread[0].Role != session.RoleSystem || thread[0].Meta.Type != "error" {
		t.Fatalf("expected a single system error message, got %+v", thread)
	}

	// Retry succeeds once the gateway recovers.
	gw.genErr = nil
	if err := orch.StartInterview(ctx, sess.ID); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if q := activeQuestion(t, store, sess.ID); q.Order != 0 {
		t.Errorf("retry order = %d, want 0", q.Order)
	}
}

func TestNextQuestionFailureClearsCurrent(t *testing.T) {
	gw := &fakeGateway{}
	orch, store, sess := newTestOrchestrator(t, gw)

	ctx := context.Background()
	orch.StartInterview(ctx, sess.ID)

	gw.genErr = errors.New("upstream 500")
	err := orch.SubmitAnswer(ctx, sess.ID, "answer")
	if err == nil {
		t.Fatal("expected generation error")
	}

	got, _ := store.Session(sess.ID)
	if got.CurrentQuestionID != "" {
		t.Error("resolved question left as current after generation failure")
	}

	gw.genErr = nil
	if err := orch.StartInterview(ctx, sess.ID); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if q := activeQuestion(t, store, sess.ID); q.Order != 1 {
		t.Errorf("retry order = %d, want 1", q.Order)
	}
}

func TestSummaryFailureStillCompletes(t *testing.T) {
	gw := &fakeGateway{sumErr: errors.New("model unavailable")}
	orch, store, sess := newTestOrchestrator(t, gw)

	ctx := context.Background()
	orch.StartInterview(ctx, sess.ID)
	for i := 0; i < session.TotalRounds; i++ {
		if err := orch.SubmitAnswer(ctx, sess.ID, "answer"); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}

	got, _ := store.Session(sess.ID)
	if got.Status != session.SessionCompleted {
		t.Errorf("session status = %s, want completed", got.Status)
	}
	cand, _ := store.Candidate(sess.CandidateID)
	if cand.Score == nil {
		t.Error("score missing despite completed interview")
	}
	if cand.Summary != "" {
		t.Errorf("summary = %q, want empty on summarization failure", cand.Summary)
	}
}

func TestTickCountdownAndAutoSubmit(t *testing.T) {
	gw := &fakeGateway{}
	orch, store, sess := newTestOrchestrator(t, gw)

	ctx := context.Background()
	orch.StartInterview(ctx, sess.ID)
	first := activeQuestion(t, store, sess.ID)

	for i := 0; i < 19; i++ {
		if err := orch.Tick(ctx, sess.ID); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	q, _ := store.Question(first.ID)
	if q.RemainingSeconds != 1 {
		t.Fatalf("remaining = %d, want 1", q.RemainingSeconds)
	}
	if q.Status != session.QuestionActive {
		t.Fatalf("status = %s, want active", q.Status)
	}

	// The 20th tick expires the timer and auto-submits an empty answer.
	if err := orch.Tick(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}

	q, _ = store.Question(first.ID)
	if q.Status != session.QuestionSkipped {
		t.Errorf("status = %s, want skipped", q.Status)
	}
	if q.Answer != "" {
		t.Errorf("answer = %q, want empty", q.Answer)
	}

	next := activeQuestion(t, store, sess.ID)
	if next.Order != 1 {
		t.Errorf("next order = %d, want 1", next.Order)
	}
	if next.RemainingSeconds != 20 {
		t.Errorf("next remaining = %d, want fresh 20", next.RemainingSeconds)
	}
}

func TestTickWithoutActiveQuestionIsNoop(t *testing.T) {
	gw := &fakeGateway{}
	orch, store, sess := newTestOrchestrator(t, gw)

	if err := orch.Tick(context.Background(), sess.ID); err != nil {
		t.Fatalf("tick on idle session: %v", err)
	}
	got, _ := store.Session(sess.ID)
	if len(got.QuestionIDs) != 0 {
		t.Error("tick created questions")
	}
}

func TestConcurrentExpiryAcrossSessions(t *testing.T) {
	gw := &fakeGateway{}
	store := session.NewStore()
	orch := NewWithClock(store, gw, &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)})

	ctx := context.Background()
	const sessions = 8
	ids := make([]string, sessions)
	firsts := make([]string, sessions)
	for i := range ids {
		sess, err := orch.CreateSession(fmt.Sprintf("Candidate %d", i), fmt.Sprintf("c%d@example.com", i), "+1 415 555 0100", "Full-stack Engineer")
		if err != nil {
			t.Fatal(err)
		}
		if err := orch.StartInterview(ctx, sess.ID); err != nil {
			t.Fatal(err)
		}
		ids[i] = sess.ID
		firsts[i] = activeQuestion(t, store, sess.ID).ID
		for tick := 0; tick < 19; tick++ {
			if err := orch.Tick(ctx, sess.ID); err != nil {
				t.Fatalf("session %d tick %d: %v", i, tick, err)
			}
		}
	}

	// Every first-round timer is one second from expiring. Fire two driver
	// passes over all sessions at once; each question must be auto-submitted
	// exactly once no matter how the ticks interleave.
	var wg sync.WaitGroup
	for _, id := range ids {
		for pass := 0; pass < 2; pass++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if err := orch.Tick(ctx, id); err != nil {
					t.Errorf("tick %s: %v", id, err)
				}
			}(id)
		}
	}
	wg.Wait()

	for i, id := range ids {
		q, _ := store.Question(firsts[i])
		if q.Status != session.QuestionSkipped {
			t.Errorf("session %d: first question status = %s, want skipped", i, q.Status)
		}
		if q.Answer != "" {
			t.Errorf("session %d: answer = %q, want empty", i, q.Answer)
		}
		next := activeQuestion(t, store, id)
		if next.Order != 1 {
			t.Errorf("session %d: active order = %d, want 1", i, next.Order)
		}
	}
	if len(gw.evalAnswers) != sessions {
		t.Errorf("evaluations = %d, want one per session", len(gw.evalAnswers))
	}
}

func TestCompletionReleasesSessionBookkeeping(t *testing.T) {
	gw := &fakeGateway{}
	orch, store, sess := newTestOrchestrator(t, gw)

	ctx := context.Background()
	orch.StartInterview(ctx, sess.ID)

	// Let round one expire so the timeout record is populated, then answer
	// the rest normally.
	for i := 0; i < 20; i++ {
		if err := orch.Tick(ctx, sess.ID); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	for i := 1; i < session.TotalRounds; i++ {
		if err := orch.SubmitAnswer(ctx, sess.ID, "answer"); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}

	got, _ := store.Session(sess.ID)
	if got.Status != session.SessionCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}

	orch.mu.Lock()
	defer orch.mu.Unlock()
	if _, ok := orch.locks[sess.ID]; ok {
		t.Error("completed session still holds a command mutex")
	}
	for _, id := range got.QuestionIDs {
		if _, ok := orch.autoSubmitted[id]; ok {
			t.Errorf("question %s still recorded as auto-submitted", id)
		}
	}
}

func TestChatDelegatesToAnswerWhileLive(t *testing.T) {
	gw := &fakeGateway{}
	orch, store, sess := newTestOrchestrator(t, gw)

	ctx := context.Background()
	orch.StartInterview(ctx, sess.ID)
	first := activeQuestion(t, store, sess.ID)

	if err := orch.HandleChatTurn(ctx, sess.ID, "my chat answer", nil); err != nil {
		t.Fatal(err)
	}

	q, _ := store.Question(first.ID)
	if q.Status != session.QuestionAnswered {
		t.Errorf("status = %s, want answered", q.Status)
	}
	if q.Answer != "my chat answer" {
		t.Errorf("answer = %q", q.Answer)
	}
}

func TestChatIntakeCollectsContact(t *testing.T) {
	gw := &fakeGateway{}
	store := session.NewStore()
	orch := NewWithClock(store, gw, &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)})
	sess, err := orch.CreateSession("", "", "", "Full-stack Engineer")
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := orch.HandleChatTurn(ctx, sess.ID, "you can reach me at ada@example.com or +1 (415) 555-0100", nil); err != nil {
		t.Fatal(err)
	}

	cand, _ := store.Candidate(sess.CandidateID)
	if cand.Email != "ada@example.com" {
		t.Errorf("email = %q", cand.Email)
	}
	if cand.Phone == "" {
		t.Error("phone not extracted")
	}
	if cand.Name != "" {
		t.Errorf("name = %q, want still empty", cand.Name)
	}
	if cand.Status != session.CandidateCollecting {
		t.Errorf("candidate status = %s, want collecting_info", cand.Status)
	}
	if got, _ := store.Session(sess.ID); got.Status != session.SessionCollecting {
		t.Errorf("session status = %s, want collecting_info", got.Status)
	}

	// The engine prompts for exactly what is still missing.
	thread := store.Thread(sess.ID)
	last := thread[len(thread)-1]
	if last.Role != session.RoleAssistant {
		t.Fatalf("last role = %s, want assistant", last.Role)
	}
	for _, want := range []string{"name", "resume"} {
		if !strings.Contains(last.Content, want) {
			t.Errorf("prompt %q missing %q", last.Content, want)
		}
	}
	for _, banned := range []string{"email", "phone"} {
		if strings.Contains(last.Content, banned) {
			t.Errorf("prompt %q mentions already-known %q", last.Content, banned)
		}
	}
	if gw.genCount != 0 {
		t.Error("interview started before intake complete")
	}
}

func TestChatIntakeStartsWhenComplete(t *testing.T) {
	gw := &fakeGateway{}
	store := session.NewStore()
	orch := NewWithClock(store, gw, &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)})
	sess, err := orch.CreateSession("", "", "", "Full-stack Engineer")
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	orch.HandleChatTurn(ctx, sess.ID, "Name: Ada Lovelace\nEmail ada@example.com phone +1 (415) 555-0100", nil)

	meta := &session.ResumeMetadata{
		FileName:   "resume.pdf",
		Size:       1024,
		UploadedAt: time.Now().UTC(),
		ParsedText: "Ten years of React and Node.js.",
	}
	if err := orch.HandleChatTurn(ctx, sess.ID, "", meta); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Session(sess.ID)
	if got.Status != session.SessionInProgress {
		t.Errorf("session status = %s, want in_progress", got.Status)
	}
	if q := activeQuestion(t, store, sess.ID); q.Order != 0 {
		t.Errorf("order = %d, want 0", q.Order)
	}
}

func TestChatIntakeDoesNotOverwriteContact(t *testing.T) {
	gw := &fakeGateway{}
	orch, store, sess := newTestOrchestrator(t, gw)

	ctx := context.Background()
	if err := orch.HandleChatTurn(ctx, sess.ID, "Name: Someone Else\nwrongmail@example.org", nil); err != nil {
		t.Fatal(err)
	}

	cand, _ := store.Candidate(sess.CandidateID)
	if cand.Name != "Ada Lovelace" {
		t.Errorf("name overwritten: %q", cand.Name)
	}
	if cand.Email != "ada@example.com" {
		t.Errorf("email overwritten: %q", cand.Email)
	}
}

func TestChatAfterCompletion(t *testing.T) {
	gw := &fakeGateway{}
	orch, store, sess := newTestOrchestrator(t, gw)

	ctx := context.Background()
	// Attach a resume so intake is complete, then finish the interview.
	orch.HandleChatTurn(ctx, sess.ID, "", &session.ResumeMetadata{FileName: "r.pdf", ParsedText: "resume text"})
	for i := 0; i < session.TotalRounds; i++ {
		if err := orch.SubmitAnswer(ctx, sess.ID, "answer"); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}

	before := len(store.Thread(sess.ID))
	if err := orch.HandleChatTurn(ctx, sess.ID, "hello again", nil); err != nil {
		t.Fatal(err)
	}

	thread := store.Thread(sess.ID)
	last := thread[len(thread)-1]
	if last.Role != session.RoleAssistant || !strings.Contains(last.Content, "complete") {
		t.Errorf("unexpected completed-session reply: %q", last.Content)
	}
	if len(thread) != before+2 { // user message + assistant reply
		t.Errorf("thread grew by %d, want 2", len(thread)-before)
	}
	got, _ := store.Session(sess.ID)
	if len(got.QuestionIDs) != session.TotalRounds {
		t.Error("chat after completion created questions")
	}
}
