package gateway

import (
	"fmt"
	"strings"

	"github.com/crispai/crisp/internal/session"
)

const questionSystemPrompt = `You are Crisp, a senior full-stack interviewer hiring for a React + Node.js position.
Ask one question at a time.
Return strictly JSON with fields: question (string), answer_guidance (string explaining ideal answer and key points).
Do not add commentary outside JSON.`

const evaluationSystemPrompt = `You are Crisp, an expert technical interviewer for React + Node.js roles.
Evaluate answers on a 0-100 scale. Return JSON with fields: score (number), feedback (string with concise coaching).
Focus on technical depth, correctness, and clarity.`

const summarySystemPrompt = `You are Crisp, summarizing a technical interview. Produce JSON with fields: summary (3-4 sentences) and overall_score (0-100).
In the summary mention strengths, gaps, and hiring recommendation.`

func buildQuestionPrompt(difficulty session.Difficulty, candidate CandidateProfile, previous []AskedQuestion) string {
	var profile []string
	if candidate.Name != "" {
		profile = append(profile, "Name: "+candidate.Name)
	}
	if candidate.Role != "" {
		profile = append(profile, "Role: "+candidate.Role)
	}
	profileDetails := strings.Join(profile, "\n")
	if profileDetails == "" {
		profileDetails = "Unknown"
	}

	var asked []string
	for i, q := range previous {
		asked = append(asked, fmt.Sprintf("%d. (%s) %s", i+1, q.Difficulty, q.Prompt))
	}
	askedText := strings.Join(asked, "\n")
	if askedText == "" {
		askedText = "None"
	}

	return fmt.Sprintf(`Generate a %s difficulty interview question for a React + Node.js candidate.
Candidate profile:
%s

Previously asked questions:
%s

The question should be rigorous yet focused. Provide guidance for evaluating answers.`,
		difficulty, profileDetails, askedText)
}

func buildEvaluationPrompt(question EvaluationQuestion, answer string) string {
	guidance := question.Guidance
	if guidance == "" {
		guidance = "(not provided)"
	}
	if answer == "" {
		answer = "(No answer provided)"
	}
	return fmt.Sprintf(`Interview question: %s
Difficulty: %s
Expected guidance: %s

Candidate answer:
%s`, question.Prompt, question.Difficulty, guidance, answer)
}

func buildSummaryPrompt(candidate CandidateProfile, questions []SummaryQuestion) string {
	var rounds []string
	for i, q := range questions {
		score := 0
		feedback := ""
		if q.Evaluation != nil {
			score = q.Evaluation.Score
			feedback = q.Evaluation.Reasoning
		}
		answer := q.Answer
		if answer == "" {
			answer = "(blank)"
		}
		rounds = append(rounds, fmt.Sprintf("%d. Q: %s\n   Difficulty: %s\n   Candidate answer: %s\n   Score: %d\n   Feedback: %s",
			i+1, q.Prompt, q.Difficulty, answer, score, feedback))
	}

	name := candidate.Name
	if name == "" {
		name = "Unknown"
	}
	return fmt.Sprintf("Candidate: %s\nInterview timeline summary:\n%s", name, strings.Join(rounds, "\n\n"))
}
