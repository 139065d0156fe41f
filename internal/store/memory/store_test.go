package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizroom/quizroom/internal/session"
)

func newTestSession(code string) *session.Session {
	return &session.Session{
		Code:    code,
		Title:   "Capitals",
		OwnerID: uuid.New(),
		Questions: []session.Question{
			{ID: 1, Prompt: "Capital of France?", Options: map[string]string{"A": "Paris", "B": "Lyon"}},
		},
		AnswerKey: map[int]string{1: "A"},
		Joined:    []uuid.UUID{},
		Completed: []session.CompletionRecord{},
		Version:   1,
		CreatedAt: time.Now().UTC(),
	}
}

func TestSessionStoreGetUnknown(t *testing.T) {
	store := NewSessionStore()

	_, err := store.Get(context.Background(), "NOPE42")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestSessionStoreInsertAndGet(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newTestSession("AAAA22")))

	got, err := store.Get(ctx, "AAAA22")
	require.NoError(t, err)
	assert.Equal(t, "Capitals", got.Title)
	assert.Equal(t, int64(1), got.Version)
	assert.False(t, got.Closed)
}

func TestSessionStoreInsertDuplicateCode(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newTestSession("AAAA22")))
	err := store.Insert(ctx, newTestSession("AAAA22"))
	assert.ErrorIs(t, err, session.ErrAlreadyExists)
}

func TestSessionStoreGetReturnsCopy(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, newTestSession("AAAA22")))

	got, err := store.Get(ctx, "AAAA22")
	require.NoError(t, err)
	got.Title = "mutated"
	got.AnswerKey[1] = "B"
	got.Questions[0].Options["A"] = "mutated"

	fresh, err := store.Get(ctx, "AAAA22")
	require.NoError(t, err)
	assert.Equal(t, "Capitals", fresh.Title)
	assert.Equal(t, "A", fresh.AnswerKey[1])
	assert.Equal(t, "Paris", fresh.Questions[0].Options["A"])
}

func TestSessionStoreUpdateWhereVersionMismatch(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, newTestSession("AAAA22")))

	staleVersion := int64(99)
	closed := true
	_, err := store.UpdateWhere(ctx, "AAAA22", session.Predicate{Version: &staleVersion}, session.Patch{Closed: &closed})
	assert.ErrorIs(t, err, session.ErrNoMatch)

	got, err := store.Get(ctx, "AAAA22")
	require.NoError(t, err)
	assert.False(t, got.Closed, "failed predicate must not apply the patch")
}

func TestSessionStoreUpdateWhereBumpsVersion(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, newTestSession("AAAA22")))

	version := int64(1)
	joined := []uuid.UUID{uuid.New()}
	updated, err := store.UpdateWhere(ctx, "AAAA22", session.Predicate{Version: &version}, session.Patch{Joined: &joined})
	require.NoError(t, err)

	assert.Equal(t, int64(2), updated.Version)
	assert.Len(t, updated.Joined, 1)
}

func TestSessionStoreUpdateWhereOpenPredicate(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, newTestSession("AAAA22")))

	open := true
	closed := true
	_, err := store.UpdateWhere(ctx, "AAAA22", session.Predicate{Open: &open}, session.Patch{Closed: &closed})
	require.NoError(t, err)

	// The session is closed now, so an open-only predicate must miss.
	joined := []uuid.UUID{uuid.New()}
	_, err = store.UpdateWhere(ctx, "AAAA22", session.Predicate{Open: &open}, session.Patch{Joined: &joined})
	assert.ErrorIs(t, err, session.ErrNoMatch)
}

func TestSessionStoreUpdateWhereOwnerPredicate(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	sess := newTestSession("AAAA22")
	require.NoError(t, store.Insert(ctx, sess))

	stranger := uuid.New()
	closed := true
	_, err := store.UpdateWhere(ctx, "AAAA22", session.Predicate{OwnerID: &stranger}, session.Patch{Closed: &closed})
	assert.ErrorIs(t, err, session.ErrNoMatch)

	owner := sess.OwnerID
	_, err = store.UpdateWhere(ctx, "AAAA22", session.Predicate{OwnerID: &owner}, session.Patch{Closed: &closed})
	assert.NoError(t, err)
}

func TestSessionStoreExpiredOpen(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	old := newTestSession("OLDAA2")
	old.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, store.Insert(ctx, old))

	oldClosed := newTestSession("OLDBB2")
	oldClosed.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	oldClosed.Closed = true
	require.NoError(t, store.Insert(ctx, oldClosed))

	fresh := newTestSession("NEWAA2")
	require.NoError(t, store.Insert(ctx, fresh))

	codes, err := store.ExpiredOpen(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"OLDAA2"}, codes)
}

func TestResultStoreInsertAndList(t *testing.T) {
	store := NewResultStore()
	ctx := context.Background()

	first := &session.Result{
		ID:            uuid.New(),
		SessionCode:   "AAAA22",
		ParticipantID: uuid.New(),
		Label:         "alice",
		Score:         2,
		Answers:       []session.AnswerInput{{QuestionID: 1, SelectedOption: "A"}},
		SubmittedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.Insert(ctx, first))
	require.NoError(t, store.Insert(ctx, &session.Result{ID: uuid.New(), SessionCode: "AAAA22", Label: "bob"}))
	require.NoError(t, store.Insert(ctx, &session.Result{ID: uuid.New(), SessionCode: "BBBB22", Label: "carol"}))

	results, err := store.BySession(ctx, "AAAA22")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "alice", results[0].Label)
	assert.Equal(t, "bob", results[1].Label)

	other, err := store.BySession(ctx, "CCCC22")
	require.NoError(t, err)
	assert.Empty(t, other)
}
