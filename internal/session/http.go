package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quizroom/quizroom/internal/identity"
	"github.com/quizroom/quizroom/internal/session/scoring"
	httperrors "github.com/quizroom/quizroom/pkg/http/errors"
)

// HTTPHandlers provides REST endpoints for session operations.
type HTTPHandlers struct {
	service *Service
	logger  zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for session endpoints.
func NewHTTPHandlers(service *Service, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		service: service,
		logger:  logger.With().Str("component", "session_http").Logger(),
	}
}

// CreateSessionRequest is the payload for POST /v1/sessions.
type CreateSessionRequest struct {
	Title         string `json:"title"`
	QuestionCount int    `json:"question_count"`
}

// SubmitAnswersRequest is the payload for POST /v1/sessions/{code}/answers.
// Timestamps are Unix milliseconds; zero means unknown.
type SubmitAnswersRequest struct {
	Answers    []AnswerInput `json:"answers"`
	StartedAt  int64         `json:"started_at"`
	FinishedAt int64         `json:"finished_at"`
}

type createSessionResponse struct {
	SessionCode   string    `json:"session_code"`
	Title         string    `json:"title"`
	QuestionCount int       `json:"question_count"`
	CreatedAt     time.Time `json:"created_at"`
}

type joinSessionResponse struct {
	SessionCode string `json:"session_code"`
	Joined      bool   `json:"joined"`
}

type boardEntry struct {
	Label    string `json:"label"`
	Score    int    `json:"score"`
	Position int    `json:"position"`
}

type publicSessionResponse struct {
	SessionCode  string       `json:"session_code"`
	Title        string       `json:"title"`
	Closed       bool         `json:"closed"`
	CreatedAt    time.Time    `json:"created_at"`
	Questions    []Question   `json:"questions"`
	Participants int          `json:"participants"`
	Leaderboard  []boardEntry `json:"leaderboard"`
}

type closeSessionResponse struct {
	SessionCode      string       `json:"session_code"`
	Closed           bool         `json:"closed"`
	AlreadyClosed    bool         `json:"already_closed"`
	RankingPersisted bool         `json:"ranking_persisted"`
	Leaderboard      []boardEntry `json:"leaderboard"`
}

type completionView struct {
	ParticipantID string `json:"participant_id"`
	Label         string `json:"label"`
	Score         int    `json:"score"`
	Position      int    `json:"position"`
}

type sessionInfoResponse struct {
	SessionCode string           `json:"session_code"`
	Title       string           `json:"title"`
	OwnerID     string           `json:"owner_id"`
	Closed      bool             `json:"closed"`
	CreatedAt   time.Time        `json:"created_at"`
	Questions   []Question       `json:"questions"`
	AnswerKey   map[int]string   `json:"answer_key"`
	Joined      []string         `json:"joined"`
	Completed   []completionView `json:"completed"`
}

type resultView struct {
	ResultID       string        `json:"result_id"`
	ParticipantID  string        `json:"participant_id"`
	Label          string        `json:"label"`
	Score          int           `json:"score"`
	TotalQuestions int           `json:"total_questions"`
	Points         int           `json:"points"`
	ElapsedSeconds int           `json:"elapsed_seconds"`
	Answers        []AnswerInput `json:"answers"`
	SubmittedAt    time.Time     `json:"submitted_at"`
}

type analysisResponse struct {
	Session sessionInfoResponse `json:"session"`
	Results []resultView        `json:"results"`
}

// CreateSession handles POST /v1/sessions
func (h *HTTPHandlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	if req.Title == "" {
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "title is required", "title")
		return
	}

	sess, err := h.service.Create(r.Context(), caller, req.Title, req.QuestionCount)
	if err != nil {
		h.respondServiceError(w, r, err, "session creation failed")
		return
	}

	respondJSON(w, http.StatusCreated, createSessionResponse{
		SessionCode:   sess.Code,
		Title:         sess.Title,
		QuestionCount: len(sess.Questions),
		CreatedAt:     sess.CreatedAt,
	})
}

// JoinSession handles POST /v1/sessions/{code}/join
func (h *HTTPHandlers) JoinSession(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}

	code := r.PathValue("code")
	if err := h.service.Join(r.Context(), code, caller); err != nil {
		h.respondServiceError(w, r, err, "join failed")
		return
	}

	respondJSON(w, http.StatusOK, joinSessionResponse{SessionCode: code, Joined: true})
}

// SubmitAnswers handles POST /v1/sessions/{code}/answers
func (h *HTTPHandlers) SubmitAnswers(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}

	var req SubmitAnswersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeMalformedAnswers, "Answers payload is malformed")
		return
	}

	code := r.PathValue("code")
	summary, err := h.service.SubmitAnswers(r.Context(), code, caller, req.Answers, req.StartedAt, req.FinishedAt)
	if err != nil {
		h.respondServiceError(w, r, err, "submit failed")
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// GetSession handles GET /v1/sessions/{code}. The response is the
// participant-facing view and never carries the answer key.
func (h *HTTPHandlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.PublicView(r.Context(), r.PathValue("code"))
	if err != nil {
		h.respondServiceError(w, r, err, "session fetch failed")
		return
	}

	respondJSON(w, http.StatusOK, publicSessionResponse{
		SessionCode:  sess.Code,
		Title:        sess.Title,
		Closed:       sess.Closed,
		CreatedAt:    sess.CreatedAt,
		Questions:    sess.Questions,
		Participants: len(sess.Joined),
		Leaderboard:  toBoard(sess.Completed),
	})
}

// CloseSession handles POST /v1/sessions/{code}/close
func (h *HTTPHandlers) CloseSession(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}

	out, err := h.service.Close(r.Context(), r.PathValue("code"), caller)
	if err != nil {
		h.respondServiceError(w, r, err, "close failed")
		return
	}

	respondJSON(w, http.StatusOK, closeSessionResponse{
		SessionCode:      out.Session.Code,
		Closed:           true,
		AlreadyClosed:    out.AlreadyClosed,
		RankingPersisted: out.RankingPersisted,
		Leaderboard:      toBoard(out.Session.Completed),
	})
}

// GetInfo handles GET /v1/sessions/{code}/info. Owner only.
func (h *HTTPHandlers) GetInfo(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}

	sess, err := h.service.Info(r.Context(), r.PathValue("code"), caller)
	if err != nil {
		h.respondServiceError(w, r, err, "info fetch failed")
		return
	}

	respondJSON(w, http.StatusOK, toInfoResponse(sess))
}

// GetAnalysis handles GET /v1/sessions/{code}/analysis. Owner only; the
// response includes every stored result with raw submitted answers.
func (h *HTTPHandlers) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}

	sess, results, err := h.service.Analysis(r.Context(), r.PathValue("code"), caller)
	if err != nil {
		h.respondServiceError(w, r, err, "analysis fetch failed")
		return
	}

	views := make([]resultView, len(results))
	for i, res := range results {
		views[i] = resultView{
			ResultID:       res.ID.String(),
			ParticipantID:  res.ParticipantID.String(),
			Label:          res.Label,
			Score:          res.Score,
			TotalQuestions: res.TotalQuestions,
			Points:         res.Points,
			ElapsedSeconds: res.ElapsedSeconds,
			Answers:        res.Answers,
			SubmittedAt:    res.SubmittedAt,
		}
	}

	respondJSON(w, http.StatusOK, analysisResponse{
		Session: toInfoResponse(sess),
		Results: views,
	})
}

func (h *HTTPHandlers) respondServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeSessionNotFound, "Session not found")
	case errors.Is(err, ErrClosed):
		httperrors.RespondConflict(w, httperrors.ErrCodeSessionClosed, "Session is closed")
	case errors.Is(err, ErrConflict):
		httperrors.RespondConflict(w, httperrors.ErrCodeConflict, "Session was modified concurrently, retry")
	case errors.Is(err, ErrMalformedAnswers), errors.Is(err, scoring.ErrMalformedInput):
		httperrors.RespondBadRequest(w, httperrors.ErrCodeMalformedAnswers, "Answers payload is malformed")
	case errors.Is(err, scoring.ErrNoQuestions):
		httperrors.RespondBadRequest(w, httperrors.ErrCodeNoQuestions, "Session has no questions to grade")
	case errors.Is(err, ErrContentRejected):
		httperrors.RespondBadRequest(w, httperrors.ErrCodeContentRejected, "Topic was rejected by the question generator")
	case errors.Is(err, ErrUpstreamTimeout):
		httperrors.RespondGatewayTimeout(w, httperrors.ErrCodeUpstreamTimeout, "Question generator timed out")
	case errors.Is(err, ErrGeneratorUnavailable):
		httperrors.RespondBadGateway(w, httperrors.ErrCodeGeneratorUnavailable, "Question generator is unavailable")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg(msg)
		httperrors.RespondInternalError(w, "Internal server error")
	}
}

func toBoard(records []CompletionRecord) []boardEntry {
	board := make([]boardEntry, len(records))
	for i, rec := range records {
		board[i] = boardEntry{Label: rec.Label, Score: rec.Score, Position: rec.Position}
	}
	return board
}

func toInfoResponse(sess *Session) sessionInfoResponse {
	joined := make([]string, len(sess.Joined))
	for i, id := range sess.Joined {
		joined[i] = id.String()
	}

	completed := make([]completionView, len(sess.Completed))
	for i, rec := range sess.Completed {
		completed[i] = completionView{
			ParticipantID: rec.ParticipantID.String(),
			Label:         rec.Label,
			Score:         rec.Score,
			Position:      rec.Position,
		}
	}

	return sessionInfoResponse{
		SessionCode: sess.Code,
		Title:       sess.Title,
		OwnerID:     sess.OwnerID.String(),
		Closed:      sess.Closed,
		CreatedAt:   sess.CreatedAt,
		Questions:   sess.Questions,
		AnswerKey:   sess.AnswerKey,
		Joined:      joined,
		Completed:   completed,
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
