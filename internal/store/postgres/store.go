// Package postgres backs the session and result stores with Postgres.
// Collection-valued fields live in JSONB columns; conditional updates
// compile the predicate into the UPDATE's WHERE clause so patch and check
// are one atomic statement.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quizroom/quizroom/internal/session"
)

const pgUniqueViolation = "23505"

const sessionColumns = "code, title, owner_id, questions, answer_key, joined, completed, closed, version, created_at"

// SessionStore is the Postgres implementation of the session store.
type SessionStore struct {
	pool *pgxpool.Pool
}

var _ session.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a session store backed by a pgx pool.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) Get(ctx context.Context, code string) (*session.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE code = $1`, code)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) Insert(ctx context.Context, sess *session.Session) error {
	questions, answerKey, joined, completed, err := marshalCollections(sess)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sess.Code, sess.Title, sess.OwnerID, questions, answerKey, joined, completed,
		sess.Closed, sess.Version, sess.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return session.ErrAlreadyExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// UpdateWhere compiles the predicate into the WHERE clause and the patch
// into the SET clause of a single UPDATE, so the check and the change are
// atomic. Zero rows updated means the record is absent or the predicate
// no longer holds.
func (s *SessionStore) UpdateWhere(ctx context.Context, code string, pred session.Predicate, patch session.Patch) (*session.Session, error) {
	set := []string{"version = version + 1"}
	where := []string{"code = $1"}
	args := []interface{}{code}

	next := func() int { return len(args) + 1 }

	if patch.Joined != nil {
		data, err := json.Marshal(*patch.Joined)
		if err != nil {
			return nil, fmt.Errorf("marshal joined: %w", err)
		}
		set = append(set, fmt.Sprintf("joined = $%d", next()))
		args = append(args, data)
	}
	if patch.Completed != nil {
		data, err := json.Marshal(*patch.Completed)
		if err != nil {
			return nil, fmt.Errorf("marshal completed: %w", err)
		}
		set = append(set, fmt.Sprintf("completed = $%d", next()))
		args = append(args, data)
	}
	if patch.Closed != nil {
		set = append(set, fmt.Sprintf("closed = $%d", next()))
		args = append(args, *patch.Closed)
	}

	if pred.Version != nil {
		where = append(where, fmt.Sprintf("version = $%d", next()))
		args = append(args, *pred.Version)
	}
	if pred.Open != nil {
		where = append(where, fmt.Sprintf("closed = $%d", next()))
		args = append(args, !*pred.Open)
	}
	if pred.OwnerID != nil {
		where = append(where, fmt.Sprintf("owner_id = $%d", next()))
		args = append(args, *pred.OwnerID)
	}

	query := `UPDATE sessions SET ` + strings.Join(set, ", ") +
		` WHERE ` + strings.Join(where, " AND ") +
		` RETURNING ` + sessionColumns

	row := s.pool.QueryRow(ctx, query, args...)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNoMatch
	}
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) ExpiredOpen(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code FROM sessions
		WHERE closed = FALSE AND created_at < $1
		ORDER BY created_at`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan session code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	return codes, nil
}

func marshalCollections(sess *session.Session) (questions, answerKey, joined, completed []byte, err error) {
	if questions, err = json.Marshal(sess.Questions); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal questions: %w", err)
	}
	if answerKey, err = json.Marshal(sess.AnswerKey); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal answer key: %w", err)
	}
	if joined, err = json.Marshal(sess.Joined); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal joined: %w", err)
	}
	if completed, err = json.Marshal(sess.Completed); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal completed: %w", err)
	}
	return questions, answerKey, joined, completed, nil
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var sess session.Session
	var questions, answerKey, joined, completed []byte
	if err := row.Scan(
		&sess.Code, &sess.Title, &sess.OwnerID,
		&questions, &answerKey, &joined, &completed,
		&sess.Closed, &sess.Version, &sess.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(questions, &sess.Questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	if err := json.Unmarshal(answerKey, &sess.AnswerKey); err != nil {
		return nil, fmt.Errorf("unmarshal answer key: %w", err)
	}
	if err := json.Unmarshal(joined, &sess.Joined); err != nil {
		return nil, fmt.Errorf("unmarshal joined: %w", err)
	}
	if err := json.Unmarshal(completed, &sess.Completed); err != nil {
		return nil, fmt.Errorf("unmarshal completed: %w", err)
	}
	return &sess, nil
}

// ResultStore is the Postgres implementation of the result store.
type ResultStore struct {
	pool *pgxpool.Pool
}

var _ session.ResultStore = (*ResultStore)(nil)

// NewResultStore creates a result store backed by a pgx pool.
func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) Insert(ctx context.Context, res *session.Result) error {
	answers, err := json.Marshal(res.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO results (result_id, session_code, participant_id, label, score,
			total_questions, points, elapsed_seconds, answers, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		res.ID, res.SessionCode, res.ParticipantID, res.Label, res.Score,
		res.TotalQuestions, res.Points, res.ElapsedSeconds, answers, res.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *ResultStore) BySession(ctx context.Context, code string) ([]session.Result, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT result_id, session_code, participant_id, label, score,
			total_questions, points, elapsed_seconds, answers, submitted_at
		FROM results
		WHERE session_code = $1
		ORDER BY submitted_at, result_id`, code)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []session.Result
	for rows.Next() {
		var res session.Result
		var answers []byte
		if err := rows.Scan(
			&res.ID, &res.SessionCode, &res.ParticipantID, &res.Label, &res.Score,
			&res.TotalQuestions, &res.Points, &res.ElapsedSeconds, &answers, &res.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal(answers, &res.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return results, nil
}
