package session

import (
	"time"

	"github.com/google/uuid"
)

// Question is one prompt with labeled options. The correct label lives in
// the session answer key, never on the question itself, so questions are
// safe to serve to participants as-is.
type Question struct {
	ID      int               `json:"id"`
	Prompt  string            `json:"prompt"`
	Options map[string]string `json:"options"`
}

// QuestionSet is the payload a question source produces for one session.
type QuestionSet struct {
	Questions []Question     `json:"questions"`
	AnswerKey map[int]string `json:"answer_key"`
}

// AnswerInput is one submitted answer. Submissions arrive as a sequence of
// these and are validated structurally before any grading happens.
type AnswerInput struct {
	QuestionID     int    `json:"question_id"`
	SelectedOption string `json:"selected_option"`
}

// CompletionRecord marks one participant as having submitted. Position is
// 0 until ranking runs at close.
type CompletionRecord struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	Label         string    `json:"label"`
	Score         int       `json:"score"`
	Position      int       `json:"position"`
}

// Session is one quiz instance. Closed transitions exactly once, false to
// true, and never reverts. Version increments on every applied update and
// backs the optimistic concurrency checks in the stores.
type Session struct {
	Code      string             `json:"code"`
	Title     string             `json:"title"`
	OwnerID   uuid.UUID          `json:"owner_id"`
	Questions []Question         `json:"questions"`
	AnswerKey map[int]string     `json:"answer_key"`
	Joined    []uuid.UUID        `json:"joined"`
	Completed []CompletionRecord `json:"completed"`
	Closed    bool               `json:"closed"`
	Version   int64              `json:"version"`
	CreatedAt time.Time          `json:"created_at"`
}

// HasJoined reports whether the participant is already a member.
func (s *Session) HasJoined(participantID uuid.UUID) bool {
	for _, id := range s.Joined {
		if id == participantID {
			return true
		}
	}
	return false
}

// CompletionFor returns the participant's completion record, or nil if the
// participant has not completed the session.
func (s *Session) CompletionFor(participantID uuid.UUID) *CompletionRecord {
	for i := range s.Completed {
		if s.Completed[i].ParticipantID == participantID {
			return &s.Completed[i]
		}
	}
	return nil
}

// Result is one participant's graded submission, immutable once written.
// Retried submissions may produce several results for the same participant;
// the session completion record keeps the leaderboard at one entry each.
type Result struct {
	ID             uuid.UUID     `json:"id"`
	SessionCode    string        `json:"session_code"`
	ParticipantID  uuid.UUID     `json:"participant_id"`
	Label          string        `json:"label"`
	Score          int           `json:"score"`
	TotalQuestions int           `json:"total_questions"`
	Points         int           `json:"points"`
	ElapsedSeconds int           `json:"elapsed_seconds"`
	Answers        []AnswerInput `json:"answers"`
	SubmittedAt    time.Time     `json:"submitted_at"`
}
