package scoring

import (
	"errors"
	"math"
)

// Config holds configurable scoring constants (defaults match requirements).
type Config struct {
	PointsPerCorrect int // default: 10
	MaxTimeBonus     int // default: 50
	BonusWindowSec   int // default: 300 (bonus reaches 0 at this elapsed time)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		PointsPerCorrect: 10,
		MaxTimeBonus:     50,
		BonusWindowSec:   300,
	}
}

var (
	// ErrNoQuestions means the answer key is empty, so there is nothing to
	// grade against.
	ErrNoQuestions = errors.New("answer key has no questions")
	// ErrMalformedInput means a question id in either mapping is not a
	// valid identifier.
	ErrMalformedInput = errors.New("malformed scoring input")
)

// Summary is the outcome of grading one submission.
type Summary struct {
	CorrectCount   int `json:"correct_count"`
	TotalQuestions int `json:"total_questions"`
	Percentage     int `json:"percentage"`
	Points         int `json:"points"`

	// TimeBonus and BonusPoints are advisory output only. They are
	// reported to the caller but never persisted and never used for
	// ranking. BonusPoints is the percentage plus the time bonus.
	TimeBonus   int `json:"time_bonus"`
	BonusPoints int `json:"bonus_points"`
}

// Engine grades submissions against an answer key.
type Engine struct {
	config Config
}

// NewEngine creates a scoring engine with the provided config.
func NewEngine(config Config) *Engine {
	return &Engine{config: config}
}

// Score grades submitted answers against the answer key.
//
// Total question count comes from the key, not the submission, so partial
// or padded submissions cannot inflate the denominator. Question ids
// present in only one mapping are simply not counted. Elapsed time feeds
// the advisory time bonus and nothing else.
func (e *Engine) Score(submitted map[int]string, answerKey map[int]string, elapsedSeconds int) (Summary, error) {
	total := len(answerKey)
	if total == 0 {
		return Summary{}, ErrNoQuestions
	}
	for id := range answerKey {
		if id <= 0 {
			return Summary{}, ErrMalformedInput
		}
	}
	for id := range submitted {
		if id <= 0 {
			return Summary{}, ErrMalformedInput
		}
	}

	correct := 0
	for id, want := range answerKey {
		if got, ok := submitted[id]; ok && got == want {
			correct++
		}
	}

	percentage := int(math.Round(float64(correct) / float64(total) * 100))
	bonus := e.timeBonus(correct, elapsedSeconds)

	return Summary{
		CorrectCount:   correct,
		TotalQuestions: total,
		Percentage:     percentage,
		Points:         correct * e.config.PointsPerCorrect,
		TimeBonus:      bonus,
		BonusPoints:    percentage + bonus,
	}, nil
}

// timeBonus decays linearly from the max at instant submission to 0 at the
// bonus window.
func (e *Engine) timeBonus(correctCount, elapsedSeconds int) int {
	if correctCount == 0 || e.config.BonusWindowSec <= 0 {
		return 0
	}

	ratio := float64(e.config.BonusWindowSec-elapsedSeconds) / float64(e.config.BonusWindowSec)
	if ratio > 1.0 {
		ratio = 1.0
	}
	if ratio < 0.0 {
		ratio = 0.0
	}
	return int(float64(e.config.MaxTimeBonus) * ratio)
}
