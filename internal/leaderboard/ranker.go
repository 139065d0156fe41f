package leaderboard

import (
	"sort"

	"github.com/google/uuid"
)

// Entry is one completed participant on a board (kept free of session
// types to avoid an import cycle).
type Entry struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	Label         string    `json:"label"`
	Score         int       `json:"score"`
	Position      int       `json:"position"`
}

// Rank orders entries by score descending and assigns 1-based positions.
// The sort is stable, so ties keep their original relative order and
// ranking an already-ranked board reproduces the same positions. The input
// slice is not modified. Empty input yields empty output.
func Rank(entries []Entry) []Entry {
	ranked := make([]Entry, len(entries))
	copy(ranked, entries)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	for i := range ranked {
		ranked[i].Position = i + 1
	}
	return ranked
}
