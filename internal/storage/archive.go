// Package storage persists interview state to SQLite so a restarted server
// can pick up where it left off. The in-memory store stays authoritative at
// runtime; the archive is written through after every command and read once
// at boot.
package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/crispai/crisp/internal/session"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Archive wraps the SQLite database holding the durable interview record.
type Archive struct {
	db *sql.DB
}

// Open opens (or creates) the archive in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Archive, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "crisp.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return a, nil
}

// Close closes the underlying database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't
// been run yet.
func (a *Archive) migrate() error {
	if _, err := a.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := a.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := a.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (a *Archive) AppliedMigrations() ([]int, error) {
	rows, err := a.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Writes ---

// SaveCandidate upserts a candidate row.
func (a *Archive) SaveCandidate(c session.Candidate) error {
	var resumeName, resumeType, resumeText string
	var resumeSize int64
	var resumeUploaded sql.NullString
	if c.Resume != nil {
		resumeName = c.Resume.FileName
		resumeType = c.Resume.FileType
		resumeSize = c.Resume.Size
		resumeText = c.Resume.ParsedText
		resumeUploaded = timeVal(&c.Resume.UploadedAt)
	}
	_, err := a.db.Exec(`
		INSERT INTO candidates (id, name, email, phone, role, status, score, summary,
			resume_file_name, resume_file_type, resume_size, resume_uploaded_at, resume_text,
			created_at, updated_at, last_active_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, email = excluded.email, phone = excluded.phone,
			role = excluded.role, status = excluded.status, score = excluded.score,
			summary = excluded.summary, resume_file_name = excluded.resume_file_name,
			resume_file_type = excluded.resume_file_type, resume_size = excluded.resume_size,
			resume_uploaded_at = excluded.resume_uploaded_at, resume_text = excluded.resume_text,
			updated_at = excluded.updated_at, last_active_at = excluded.last_active_at`,
		c.ID, c.Name, c.Email, c.Phone, c.Role, string(c.Status), intPtr(c.Score), c.Summary,
		resumeName, resumeType, resumeSize, resumeUploaded, resumeText,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt), formatTime(c.LastActiveAt),
	)
	return err
}

// SaveSession upserts a session row. Question membership lives in the
// questions table, keyed by (session_id, ord).
func (a *Archive) SaveSession(sess session.Session) error {
	_, err := a.db.Exec(`
		INSERT INTO sessions (id, candidate_id, status, current_question_id, started_at, completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status, current_question_id = excluded.current_question_id,
			started_at = excluded.started_at, completed_at = excluded.completed_at,
			updated_at = excluded.updated_at`,
		sess.ID, sess.CandidateID, string(sess.Status), sess.CurrentQuestionID,
		timeVal(sess.StartedAt), timeVal(sess.CompletedAt), formatTime(sess.UpdatedAt),
	)
	return err
}

// SaveQuestion upserts a question row.
func (a *Archive) SaveQuestion(q session.Question) error {
	var evalScore sql.NullInt64
	evalReasoning := ""
	if q.Evaluation != nil {
		evalScore = sql.NullInt64{Int64: int64(q.Evaluation.Score), Valid: true}
		evalReasoning = q.Evaluation.Reasoning
	}
	_, err := a.db.Exec(`
		INSERT INTO questions (id, session_id, ord, difficulty, prompt, guidance,
			timer_seconds, remaining_seconds, status, answer, answered_at,
			eval_score, eval_reasoning, asked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			remaining_seconds = excluded.remaining_seconds, status = excluded.status,
			answer = excluded.answer, answered_at = excluded.answered_at,
			eval_score = excluded.eval_score, eval_reasoning = excluded.eval_reasoning`,
		q.ID, q.SessionID, q.Order, string(q.Difficulty), q.Prompt, q.Guidance,
		q.TimerSeconds, q.RemainingSeconds, string(q.Status), q.Answer, timeVal(q.AnsweredAt),
		evalScore, evalReasoning, formatTime(q.AskedAt),
	)
	return err
}

// SaveMessage inserts a transcript entry. Messages are append-only, so a
// replayed id is ignored.
func (a *Archive) SaveMessage(m session.Message) error {
	meta, err := json.Marshal(m.Meta)
	if err != nil {
		return fmt.Errorf("marshaling message meta: %w", err)
	}
	_, err = a.db.Exec(`
		INSERT OR IGNORE INTO messages (id, session_id, role, content, created_at, meta)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, string(m.Role), m.Content, formatTime(m.CreatedAt), string(meta),
	)
	return err
}

// DeleteThread removes a session's persisted transcript.
func (a *Archive) DeleteThread(sessionID string) error {
	_, err := a.db.Exec("DELETE FROM messages WHERE session_id = ?", sessionID)
	return err
}

// PersistSession writes the session, its candidate, its questions, and its
// transcript through to the archive. Called after each engine command.
func (a *Archive) PersistSession(st *session.Store, sessionID string) error {
	sess, err := st.Session(sessionID)
	if err != nil {
		return err
	}
	cand, err := st.Candidate(sess.CandidateID)
	if err != nil {
		return err
	}
	questions, err := st.SessionQuestions(sessionID)
	if err != nil {
		return err
	}

	if err := a.SaveCandidate(cand); err != nil {
		return fmt.Errorf("saving candidate: %w", err)
	}
	if err := a.SaveSession(sess); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	for _, q := range questions {
		if err := a.SaveQuestion(q); err != nil {
			return fmt.Errorf("saving question %s: %w", q.ID, err)
		}
	}
	for _, m := range st.Thread(sessionID) {
		if err := a.SaveMessage(m); err != nil {
			return fmt.Errorf("saving message %s: %w", m.ID, err)
		}
	}
	return nil
}

// --- Reads ---

// Restore loads the full archive into the given store. Sessions that were
// in progress resume with their persisted countdowns.
func (a *Archive) Restore(st *session.Store) error {
	candidates, err := a.loadCandidates()
	if err != nil {
		return fmt.Errorf("loading candidates: %w", err)
	}
	questions, err := a.loadQuestions()
	if err != nil {
		return fmt.Errorf("loading questions: %w", err)
	}
	sessions, err := a.loadSessions(questions)
	if err != nil {
		return fmt.Errorf("loading sessions: %w", err)
	}
	messages, err := a.loadMessages()
	if err != nil {
		return fmt.Errorf("loading messages: %w", err)
	}
	st.Load(candidates, sessions, questions, messages)
	return nil
}

func (a *Archive) loadCandidates() ([]session.Candidate, error) {
	rows, err := a.db.Query(`
		SELECT id, name, email, phone, role, status, score, summary,
			resume_file_name, resume_file_type, resume_size, resume_uploaded_at, resume_text,
			created_at, updated_at, last_active_at
		FROM candidates`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Candidate
	for rows.Next() {
		var c session.Candidate
		var status, createdAt, updatedAt, lastActiveAt string
		var score sql.NullInt64
		var resumeName, resumeType, resumeText string
		var resumeSize int64
		var resumeUploaded sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Role, &status, &score, &c.Summary,
			&resumeName, &resumeType, &resumeSize, &resumeUploaded, &resumeText,
			&createdAt, &updatedAt, &lastActiveAt); err != nil {
			return nil, err
		}
		c.Status = session.CandidateStatus(status)
		if score.Valid {
			v := int(score.Int64)
			c.Score = &v
		}
		if resumeName != "" || resumeText != "" {
			c.Resume = &session.ResumeMetadata{
				FileName:   resumeName,
				FileType:   resumeType,
				Size:       resumeSize,
				ParsedText: resumeText,
			}
			if t, ok := parseNullTime(resumeUploaded); ok {
				c.Resume.UploadedAt = t
			}
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		if c.LastActiveAt, err = parseTime(lastActiveAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (a *Archive) loadSessions(questions []session.Question) ([]session.Session, error) {
	// Question membership is rebuilt from the questions table in round order.
	byOrder := make(map[string][]session.Question)
	for _, q := range questions {
		byOrder[q.SessionID] = append(byOrder[q.SessionID], q)
	}
	for _, qs := range byOrder {
		sort.Slice(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })
	}

	rows, err := a.db.Query(`
		SELECT id, candidate_id, status, current_question_id, started_at, completed_at, updated_at
		FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Session
	for rows.Next() {
		var sess session.Session
		var status, updatedAt string
		var startedAt, completedAt sql.NullString
		if err := rows.Scan(&sess.ID, &sess.CandidateID, &status, &sess.CurrentQuestionID,
			&startedAt, &completedAt, &updatedAt); err != nil {
			return nil, err
		}
		sess.Status = session.SessionStatus(status)
		if t, ok := parseNullTime(startedAt); ok {
			sess.StartedAt = &t
		}
		if t, ok := parseNullTime(completedAt); ok {
			sess.CompletedAt = &t
		}
		if sess.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		for _, q := range byOrder[sess.ID] {
			sess.QuestionIDs = append(sess.QuestionIDs, q.ID)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (a *Archive) loadQuestions() ([]session.Question, error) {
	rows, err := a.db.Query(`
		SELECT id, session_id, ord, difficulty, prompt, guidance,
			timer_seconds, remaining_seconds, status, answer, answered_at,
			eval_score, eval_reasoning, asked_at
		FROM questions ORDER BY session_id, ord`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Question
	for rows.Next() {
		var q session.Question
		var difficulty, status, askedAt string
		var answeredAt sql.NullString
		var evalScore sql.NullInt64
		var evalReasoning string
		if err := rows.Scan(&q.ID, &q.SessionID, &q.Order, &difficulty, &q.Prompt, &q.Guidance,
			&q.TimerSeconds, &q.RemainingSeconds, &status, &q.Answer, &answeredAt,
			&evalScore, &evalReasoning, &askedAt); err != nil {
			return nil, err
		}
		q.Difficulty = session.Difficulty(difficulty)
		q.Status = session.QuestionStatus(status)
		if t, ok := parseNullTime(answeredAt); ok {
			q.AnsweredAt = &t
		}
		if evalScore.Valid {
			q.Evaluation = &session.Evaluation{Score: int(evalScore.Int64), Reasoning: evalReasoning}
		}
		if q.AskedAt, err = parseTime(askedAt); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (a *Archive) loadMessages() ([]session.Message, error) {
	rows, err := a.db.Query(`
		SELECT id, session_id, role, content, created_at, meta
		FROM messages ORDER BY session_id, created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Message
	for rows.Next() {
		var m session.Message
		var role, createdAt, meta string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &createdAt, &meta); err != nil {
			return nil, err
		}
		m.Role = session.Role(role)
		if err := json.Unmarshal([]byte(meta), &m.Meta); err != nil {
			return nil, fmt.Errorf("unmarshaling meta for message %s: %w", m.ID, err)
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Time and null helpers ---

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func timeVal(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (time.Time, bool) {
	if !s.Valid {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func intPtr(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
