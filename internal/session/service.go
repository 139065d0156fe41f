package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quizroom/quizroom/internal/identity"
	"github.com/quizroom/quizroom/internal/leaderboard"
	"github.com/quizroom/quizroom/internal/session/scoring"
)

// QuestionSource produces a question set for a topic. Implementations must
// reject invalid or unsafe topics with ErrContentRejected before anything
// is persisted, and report unreachable or malformed upstreams with
// ErrGeneratorUnavailable or ErrUpstreamTimeout.
type QuestionSource interface {
	Generate(ctx context.Context, topic string, count int) (*QuestionSet, error)
}

// casAttempts bounds every optimistic-update retry loop. Exhausting it
// surfaces ErrConflict rather than retrying forever.
const casAttempts = 3

// codeAttempts bounds retries on session code collisions at insert.
const codeAttempts = 5

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
)

// Service owns session state transitions and enforces the rules around
// them. All mutation goes through conditional store updates; the service
// holds no per-session locks.
type Service struct {
	sessions SessionStore
	results  ResultStore
	source   QuestionSource
	engine   *scoring.Engine
	logger   zerolog.Logger

	defaultQuestionCount int
	maxQuestionCount     int
}

// ServiceOptions configures the session service.
type ServiceOptions struct {
	ScoringConfig        scoring.Config
	DefaultQuestionCount int
	MaxQuestionCount     int
}

// NewService creates a session service with all dependencies.
func NewService(sessions SessionStore, results ResultStore, source QuestionSource, opts ServiceOptions, logger zerolog.Logger) *Service {
	scoringCfg := opts.ScoringConfig
	if scoringCfg.PointsPerCorrect == 0 {
		scoringCfg = scoring.DefaultConfig()
	}
	if opts.DefaultQuestionCount <= 0 {
		opts.DefaultQuestionCount = 5
	}
	if opts.MaxQuestionCount <= 0 {
		opts.MaxQuestionCount = 15
	}

	return &Service{
		sessions:             sessions,
		results:              results,
		source:               source,
		engine:               scoring.NewEngine(scoringCfg),
		logger:               logger,
		defaultQuestionCount: opts.DefaultQuestionCount,
		maxQuestionCount:     opts.MaxQuestionCount,
	}
}

// Create generates a question set for the topic and persists a new open
// session owned by the caller. Generator failures leave no session behind.
func (s *Service) Create(ctx context.Context, owner identity.Identity, title string, questionCount int) (*Session, error) {
	if questionCount <= 0 {
		questionCount = s.defaultQuestionCount
	}
	if questionCount > s.maxQuestionCount {
		questionCount = s.maxQuestionCount
	}

	set, err := s.source.Generate(ctx, title, questionCount)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		Title:     title,
		OwnerID:   owner.ID,
		Questions: set.Questions,
		AnswerKey: set.AnswerKey,
		Joined:    []uuid.UUID{},
		Completed: []CompletionRecord{},
		Closed:    false,
		Version:   1,
		CreatedAt: time.Now().UTC(),
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		sess.Code = generateCode()
		err = s.sessions.Insert(ctx, sess)
		if err == nil {
			s.logger.Info().
				Str("session_code", sess.Code).
				Str("owner_id", owner.ID.String()).
				Int("questions", len(sess.Questions)).
				Msg("session created")
			return sess, nil
		}
		if !errors.Is(err, ErrAlreadyExists) {
			return nil, fmt.Errorf("insert session: %w", err)
		}
	}
	return nil, fmt.Errorf("allocate session code: %w", ErrConflict)
}

// Join adds the caller to the session's participants. Joining twice is a
// no-op, never an error. Concurrent joins are serialized through the
// store's conditional update so no membership is lost.
func (s *Service) Join(ctx context.Context, code string, caller identity.Identity) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		sess, err := s.sessions.Get(ctx, code)
		if err != nil {
			return err
		}
		if sess.Closed {
			return ErrClosed
		}
		if sess.HasJoined(caller.ID) {
			return nil
		}

		joined := make([]uuid.UUID, 0, len(sess.Joined)+1)
		joined = append(joined, sess.Joined...)
		joined = append(joined, caller.ID)

		open := true
		_, err = s.sessions.UpdateWhere(ctx, code, Predicate{Version: &sess.Version, Open: &open}, Patch{Joined: &joined})
		if err == nil {
			s.logger.Info().
				Str("session_code", code).
				Str("participant_id", caller.ID.String()).
				Msg("participant joined")
			return nil
		}
		if !errors.Is(err, ErrNoMatch) {
			return fmt.Errorf("update session: %w", err)
		}
		// Lost the race or the session closed under us; re-read and retry.
	}
	return ErrConflict
}

// SubmitAnswers grades a submission, persists the result, and records the
// caller's completion at most once. Repeated submissions produce repeated
// result rows but never a second leaderboard entry; the first recorded
// score stands. The graded summary is returned either way.
//
// startedAt and finishedAt are Unix milliseconds supplied by the client;
// zero values mean elapsed time is unknown and score as 0 seconds.
func (s *Service) SubmitAnswers(ctx context.Context, code string, caller identity.Identity, answers []AnswerInput, startedAt, finishedAt int64) (*scoring.Summary, error) {
	sess, err := s.sessions.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if sess.Closed {
		return nil, ErrClosed
	}

	submitted, err := answerMap(answers)
	if err != nil {
		return nil, err
	}

	elapsed := elapsedSeconds(startedAt, finishedAt)
	summary, err := s.engine.Score(submitted, sess.AnswerKey, elapsed)
	if err != nil {
		return nil, err
	}

	label := displayLabel(caller)
	res := &Result{
		ID:             uuid.New(),
		SessionCode:    code,
		ParticipantID:  caller.ID,
		Label:          label,
		Score:          summary.CorrectCount,
		TotalQuestions: summary.TotalQuestions,
		Points:         summary.Points,
		ElapsedSeconds: elapsed,
		Answers:        answers,
		SubmittedAt:    time.Now().UTC(),
	}
	if err := s.results.Insert(ctx, res); err != nil {
		return nil, fmt.Errorf("insert result: %w", err)
	}

	if err := s.recordCompletion(ctx, sess, caller.ID, label, summary.CorrectCount); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("session_code", code).
		Str("participant_id", caller.ID.String()).
		Int("score", summary.CorrectCount).
		Int("total", summary.TotalQuestions).
		Int("elapsed_seconds", elapsed).
		Msg("answers submitted")

	return &summary, nil
}

// recordCompletion appends a completion record unless the participant
// already has one. The append is conditional on the session still being
// open; if closure wins that race the persisted result stands and the
// leaderboard simply no longer accepts entries.
func (s *Service) recordCompletion(ctx context.Context, sess *Session, participantID uuid.UUID, label string, score int) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		if sess.CompletionFor(participantID) != nil {
			return nil
		}

		completed := make([]CompletionRecord, 0, len(sess.Completed)+1)
		completed = append(completed, sess.Completed...)
		completed = append(completed, CompletionRecord{
			ParticipantID: participantID,
			Label:         label,
			Score:         score,
			Position:      0,
		})

		open := true
		_, err := s.sessions.UpdateWhere(ctx, sess.Code, Predicate{Version: &sess.Version, Open: &open}, Patch{Completed: &completed})
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNoMatch) {
			return fmt.Errorf("record completion: %w", err)
		}

		sess, err = s.sessions.Get(ctx, sess.Code)
		if err != nil {
			return err
		}
		if sess.Closed {
			s.logger.Warn().
				Str("session_code", sess.Code).
				Str("participant_id", participantID.String()).
				Msg("session closed during submit, completion not recorded")
			return nil
		}
	}
	return ErrConflict
}

// CloseOutcome reports what a close call did. RankingPersisted is false
// when closure succeeded but the ranked board could not be written; the
// closed flag stands and ranking is retried on a later close call.
type CloseOutcome struct {
	Session          *Session
	AlreadyClosed    bool
	RankingPersisted bool
}

// Close transitions the session to closed and ranks the leaderboard.
// Only the owner may close; a mismatched caller reads as ErrNotFound so
// non-owners cannot probe for session existence. Closing an already-closed
// session succeeds without touching assigned positions.
func (s *Service) Close(ctx context.Context, code string, caller identity.Identity) (*CloseOutcome, error) {
	return s.close(ctx, code, &caller.ID)
}

// ForceClose closes a session under system authority, bypassing the
// ownership check. Used by the expiry sweeper.
func (s *Service) ForceClose(ctx context.Context, code string) (*CloseOutcome, error) {
	return s.close(ctx, code, nil)
}

func (s *Service) close(ctx context.Context, code string, owner *uuid.UUID) (*CloseOutcome, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		sess, err := s.sessions.Get(ctx, code)
		if err != nil {
			return nil, err
		}
		if owner != nil && sess.OwnerID != *owner {
			return nil, ErrNotFound
		}
		if sess.Closed {
			return s.finishClose(ctx, sess, true), nil
		}

		open := true
		closed := true
		updated, err := s.sessions.UpdateWhere(ctx, code, Predicate{Version: &sess.Version, Open: &open}, Patch{Closed: &closed})
		if err == nil {
			s.logger.Info().
				Str("session_code", code).
				Bool("swept", owner == nil).
				Int("completed", len(updated.Completed)).
				Msg("session closed")
			return s.finishClose(ctx, updated, false), nil
		}
		if !errors.Is(err, ErrNoMatch) {
			return nil, fmt.Errorf("close session: %w", err)
		}
		// Re-read: a concurrent closer means idempotent success, a
		// concurrent join or submit just means retry.
	}
	return nil, ErrConflict
}

// finishClose ranks the board after the closed flag is durable. Ranking
// failure is reported, not rolled back: re-ranking is idempotent and safe
// to run again, reversing closure is not.
func (s *Service) finishClose(ctx context.Context, sess *Session, alreadyClosed bool) *CloseOutcome {
	out := &CloseOutcome{Session: sess, AlreadyClosed: alreadyClosed, RankingPersisted: true}
	if len(sess.Completed) == 0 {
		return out
	}
	if alreadyClosed && boardRanked(sess.Completed) {
		return out
	}

	ranked, err := s.persistRanking(ctx, sess)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("session_code", sess.Code).
			Msg("leaderboard ranking not persisted")
		out.RankingPersisted = false
		return out
	}
	out.Session = ranked
	return out
}

func (s *Service) persistRanking(ctx context.Context, sess *Session) (*Session, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		ranked := rankCompletions(sess.Completed)
		updated, err := s.sessions.UpdateWhere(ctx, sess.Code, Predicate{Version: &sess.Version}, Patch{Completed: &ranked})
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, ErrNoMatch) {
			return nil, err
		}

		sess, err = s.sessions.Get(ctx, sess.Code)
		if err != nil {
			return nil, err
		}
		if boardRanked(sess.Completed) {
			// A concurrent closer already ranked the board.
			return sess, nil
		}
	}
	return nil, ErrConflict
}

// PublicView returns the session for participant-facing reads. Callers of
// this projection must never expose the answer key.
func (s *Service) PublicView(ctx context.Context, code string) (*Session, error) {
	return s.sessions.Get(ctx, code)
}

// Info returns the full session for its owner, answer key included.
// Ownership mismatch reads as ErrNotFound.
func (s *Service) Info(ctx context.Context, code string, caller identity.Identity) (*Session, error) {
	sess, err := s.sessions.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if sess.OwnerID != caller.ID {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Analysis returns the owner's session along with every stored result,
// raw submitted answers included.
func (s *Service) Analysis(ctx context.Context, code string, caller identity.Identity) (*Session, []Result, error) {
	sess, err := s.Info(ctx, code, caller)
	if err != nil {
		return nil, nil, err
	}
	results, err := s.results.BySession(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("load results: %w", err)
	}
	return sess, results, nil
}

// ExpiredOpen lists open sessions created before the cutoff.
func (s *Service) ExpiredOpen(ctx context.Context, cutoff time.Time) ([]string, error) {
	return s.sessions.ExpiredOpen(ctx, cutoff)
}

func rankCompletions(records []CompletionRecord) []CompletionRecord {
	entries := make([]leaderboard.Entry, len(records))
	for i, r := range records {
		entries[i] = leaderboard.Entry{
			ParticipantID: r.ParticipantID,
			Label:         r.Label,
			Score:         r.Score,
		}
	}

	ranked := leaderboard.Rank(entries)
	out := make([]CompletionRecord, len(ranked))
	for i, e := range ranked {
		out[i] = CompletionRecord{
			ParticipantID: e.ParticipantID,
			Label:         e.Label,
			Score:         e.Score,
			Position:      e.Position,
		}
	}
	return out
}

func boardRanked(records []CompletionRecord) bool {
	for _, r := range records {
		if r.Position == 0 {
			return false
		}
	}
	return true
}

// answerMap converts the submitted sequence to a question-id keyed map,
// rejecting structurally invalid entries. Duplicate question ids keep the
// last answer.
func answerMap(answers []AnswerInput) (map[int]string, error) {
	m := make(map[int]string, len(answers))
	for _, a := range answers {
		if a.QuestionID <= 0 || a.SelectedOption == "" {
			return nil, ErrMalformedAnswers
		}
		m[a.QuestionID] = a.SelectedOption
	}
	return m, nil
}

// elapsedSeconds computes floor((finishedAt-startedAt)/1000) clamped at 0.
// Missing timestamps score as zero elapsed time.
func elapsedSeconds(startedAt, finishedAt int64) int {
	if startedAt == 0 || finishedAt == 0 {
		return 0
	}
	if finishedAt <= startedAt {
		return 0
	}
	return int((finishedAt - startedAt) / 1000)
}

func displayLabel(caller identity.Identity) string {
	if caller.Name != "" {
		return caller.Name
	}
	return caller.Mail
}

func generateCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}
