package leaderboard

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRankOrdersByScoreDescending(t *testing.T) {
	entries := []Entry{
		{ParticipantID: uuid.New(), Label: "low", Score: 1},
		{ParticipantID: uuid.New(), Label: "high", Score: 9},
		{ParticipantID: uuid.New(), Label: "mid", Score: 5},
	}

	ranked := Rank(entries)

	assert.Equal(t, "high", ranked[0].Label)
	assert.Equal(t, 1, ranked[0].Position)
	assert.Equal(t, "mid", ranked[1].Label)
	assert.Equal(t, 2, ranked[1].Position)
	assert.Equal(t, "low", ranked[2].Label)
	assert.Equal(t, 3, ranked[2].Position)
}

func TestRankStableOnTies(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	c := uuid.New()

	ranked := Rank([]Entry{
		{ParticipantID: a, Label: "A", Score: 5},
		{ParticipantID: b, Label: "B", Score: 5},
		{ParticipantID: c, Label: "C", Score: 3},
	})

	// B never jumps ahead of A despite the equal score.
	assert.Equal(t, a, ranked[0].ParticipantID)
	assert.Equal(t, 1, ranked[0].Position)
	assert.Equal(t, b, ranked[1].ParticipantID)
	assert.Equal(t, 2, ranked[1].Position)
	assert.Equal(t, c, ranked[2].ParticipantID)
	assert.Equal(t, 3, ranked[2].Position)
}

func TestRankIdempotent(t *testing.T) {
	entries := []Entry{
		{ParticipantID: uuid.New(), Label: "A", Score: 7},
		{ParticipantID: uuid.New(), Label: "B", Score: 7},
		{ParticipantID: uuid.New(), Label: "C", Score: 2},
		{ParticipantID: uuid.New(), Label: "D", Score: 11},
	}

	once := Rank(entries)
	twice := Rank(once)

	assert.Equal(t, once, twice)
}

func TestRankEmpty(t *testing.T) {
	assert.Empty(t, Rank(nil))
	assert.Empty(t, Rank([]Entry{}))
}

func TestRankDoesNotMutateInput(t *testing.T) {
	entries := []Entry{
		{ParticipantID: uuid.New(), Label: "A", Score: 1},
		{ParticipantID: uuid.New(), Label: "B", Score: 9},
	}

	Rank(entries)

	assert.Equal(t, 0, entries[0].Position)
	assert.Equal(t, "A", entries[0].Label)
}
