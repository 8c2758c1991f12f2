package api

import (
	"time"

	"github.com/crispai/crisp/internal/session"
)

// JSON views returned by the REST layer. Field names match what the chat
// and dashboard clients expect.

type candidateJSON struct {
	ID           string          `json:"id"`
	Name         string          `json:"name,omitempty"`
	Email        string          `json:"email,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	Role         string          `json:"role,omitempty"`
	Status       string          `json:"status"`
	Score        *int            `json:"score,omitempty"`
	Summary      string          `json:"summary,omitempty"`
	Resume       *resumeJSON     `json:"resume,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	LastActiveAt time.Time       `json:"lastActiveAt"`
}

type resumeJSON struct {
	FileName   string    `json:"fileName"`
	FileType   string    `json:"fileType,omitempty"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type evaluationJSON struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning,omitempty"`
}

type questionJSON struct {
	ID               string          `json:"id"`
	Order            int             `json:"order"`
	Difficulty       string          `json:"difficulty"`
	Prompt           string          `json:"prompt"`
	Guidance         string          `json:"recommendedAnswer,omitempty"`
	TimerSeconds     int             `json:"timerSeconds"`
	RemainingSeconds int             `json:"remainingSeconds"`
	Status           string          `json:"status"`
	Answer           string          `json:"answer,omitempty"`
	Evaluation       *evaluationJSON `json:"evaluation,omitempty"`
	AskedAt          time.Time       `json:"askedAt"`
	AnsweredAt       *time.Time      `json:"answeredAt,omitempty"`
}

type sessionJSON struct {
	ID                string         `json:"id"`
	CandidateID       string         `json:"candidateId"`
	Status            string         `json:"status"`
	CurrentQuestionID string         `json:"currentQuestionId,omitempty"`
	Questions         []questionJSON `json:"questions"`
	Candidate         *candidateJSON `json:"candidate,omitempty"`
	StartedAt         *time.Time     `json:"startedAt,omitempty"`
	CompletedAt       *time.Time     `json:"completedAt,omitempty"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

type messageJSON struct {
	ID        string              `json:"id"`
	Role      string              `json:"role"`
	Content   string              `json:"content"`
	CreatedAt time.Time           `json:"createdAt"`
	Meta      session.MessageMeta `json:"meta,omitempty"`
}

func candidateView(c session.Candidate) candidateJSON {
	v := candidateJSON{
		ID:           c.ID,
		Name:         c.Name,
		Email:        c.Email,
		Phone:        c.Phone,
		Role:         c.Role,
		Status:       string(c.Status),
		Score:        c.Score,
		Summary:      c.Summary,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		LastActiveAt: c.LastActiveAt,
	}
	if c.Resume != nil {
		v.Resume = &resumeJSON{
			FileName:   c.Resume.FileName,
			FileType:   c.Resume.FileType,
			Size:       c.Resume.Size,
			UploadedAt: c.Resume.UploadedAt,
		}
	}
	return v
}

func questionView(q session.Question) questionJSON {
	v := questionJSON{
		ID:               q.ID,
		Order:            q.Order,
		Difficulty:       string(q.Difficulty),
		Prompt:           q.Prompt,
		Guidance:         q.Guidance,
		TimerSeconds:     q.TimerSeconds,
		RemainingSeconds: q.RemainingSeconds,
		Status:           string(q.Status),
		Answer:           q.Answer,
		AskedAt:          q.AskedAt,
		AnsweredAt:       q.AnsweredAt,
	}
	if q.Evaluation != nil {
		v.Evaluation = &evaluationJSON{Score: q.Evaluation.Score, Reasoning: q.Evaluation.Reasoning}
	}
	return v
}

func sessionView(st *session.Store, sess session.Session) sessionJSON {
	v := sessionJSON{
		ID:                sess.ID,
		CandidateID:       sess.CandidateID,
		Status:            string(sess.Status),
		CurrentQuestionID: sess.CurrentQuestionID,
		Questions:         []questionJSON{},
		StartedAt:         sess.StartedAt,
		CompletedAt:       sess.CompletedAt,
		UpdatedAt:         sess.UpdatedAt,
	}
	if questions, err := st.SessionQuestions(sess.ID); err == nil {
		for _, q := range questions {
			v.Questions = append(v.Questions, questionView(q))
		}
	}
	if c, err := st.Candidate(sess.CandidateID); err == nil {
		cv := candidateView(c)
		v.Candidate = &cv
	}
	return v
}

func transcriptView(msgs []session.Message) []messageJSON {
	out := make([]messageJSON, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageJSON{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
			Meta:      m.Meta,
		})
	}
	return out
}
