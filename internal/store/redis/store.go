// Package redis backs the session and result stores with Redis. Records
// are JSON values; conditional updates swap the record through a Lua
// script guarded by a version key, so a patch never lands on state the
// predicate was not checked against.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizroom/quizroom/internal/session"
)

const openSetKey = "sessions:open"

// insertScript claims the session key and registers it in the open set.
// Returns 0 when the code is already taken.
var insertScript = redis.NewScript(`
if redis.call('setnx', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('set', KEYS[2], ARGV[2])
redis.call('zadd', KEYS[3], ARGV[3], ARGV[4])
return 1
`)

// casScript swaps the record only while the version key still holds the
// value the predicate was evaluated against. ARGV[4] drops the code from
// the open set when the patch closes the session.
var casScript = redis.NewScript(`
if redis.call('get', KEYS[2]) ~= ARGV[1] then
	return 0
end
redis.call('set', KEYS[1], ARGV[2])
redis.call('set', KEYS[2], ARGV[3])
if ARGV[4] == '1' then
	redis.call('zrem', KEYS[3], ARGV[5])
end
return 1
`)

// SessionStore is the Redis implementation of the session store.
type SessionStore struct {
	client *redis.Client
	logger zerolog.Logger
}

var _ session.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a session store backed by Redis.
func NewSessionStore(client *redis.Client, logger zerolog.Logger) *SessionStore {
	return &SessionStore{
		client: client,
		logger: logger.With().Str("component", "redis_session_store").Logger(),
	}
}

func (s *SessionStore) Get(ctx context.Context, code string) (*session.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(code)).Bytes()
	if err == redis.Nil {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) Insert(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ok, err := insertScript.Run(ctx, s.client,
		[]string{sessionKey(sess.Code), versionKey(sess.Code), openSetKey},
		data,
		strconv.FormatInt(sess.Version, 10),
		sess.CreatedAt.Unix(),
		sess.Code,
	).Int()
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if ok == 0 {
		return session.ErrAlreadyExists
	}
	return nil
}

func (s *SessionStore) UpdateWhere(ctx context.Context, code string, pred session.Predicate, patch session.Patch) (*session.Session, error) {
	sess, err := s.Get(ctx, code)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, session.ErrNoMatch
		}
		return nil, err
	}
	if !matches(sess, pred) {
		return nil, session.ErrNoMatch
	}

	readVersion := sess.Version
	updated := *sess
	if patch.Joined != nil {
		updated.Joined = *patch.Joined
	}
	if patch.Completed != nil {
		updated.Completed = *patch.Completed
	}
	if patch.Closed != nil {
		updated.Closed = *patch.Closed
	}
	updated.Version = readVersion + 1

	data, err := json.Marshal(&updated)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}

	closing := "0"
	if updated.Closed {
		closing = "1"
	}

	ok, err := casScript.Run(ctx, s.client,
		[]string{sessionKey(code), versionKey(code), openSetKey},
		strconv.FormatInt(readVersion, 10),
		data,
		strconv.FormatInt(updated.Version, 10),
		closing,
		code,
	).Int()
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	if ok == 0 {
		// The record moved between our read and the swap.
		return nil, session.ErrNoMatch
	}
	return &updated, nil
}

func (s *SessionStore) ExpiredOpen(ctx context.Context, cutoff time.Time) ([]string, error) {
	codes, err := s.client.ZRangeByScore(ctx, openSetKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	return codes, nil
}

func matches(sess *session.Session, pred session.Predicate) bool {
	if pred.Version != nil && sess.Version != *pred.Version {
		return false
	}
	if pred.Open != nil && sess.Closed == *pred.Open {
		return false
	}
	if pred.OwnerID != nil && sess.OwnerID != *pred.OwnerID {
		return false
	}
	return true
}

func sessionKey(code string) string {
	return "session:" + code
}

func versionKey(code string) string {
	return "session:ver:" + code
}

// ResultStore is the Redis implementation of the result store. Results
// live in a list per session, append-only.
type ResultStore struct {
	client *redis.Client
	logger zerolog.Logger
}

var _ session.ResultStore = (*ResultStore)(nil)

// NewResultStore creates a result store backed by Redis.
func NewResultStore(client *redis.Client, logger zerolog.Logger) *ResultStore {
	return &ResultStore{
		client: client,
		logger: logger.With().Str("component", "redis_result_store").Logger(),
	}
}

func (s *ResultStore) Insert(ctx context.Context, res *session.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := s.client.RPush(ctx, resultsKey(res.SessionCode), data).Err(); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *ResultStore) BySession(ctx context.Context, code string) ([]session.Result, error) {
	raw, err := s.client.LRange(ctx, resultsKey(code), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	results := make([]session.Result, 0, len(raw))
	for _, item := range raw {
		var res session.Result
		if err := json.Unmarshal([]byte(item), &res); err != nil {
			s.logger.Warn().Err(err).Str("session_code", code).Msg("skip corrupted result")
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func resultsKey(code string) string {
	return "session:results:" + code
}
