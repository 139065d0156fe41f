// Package generator adapts the external question generator service to the
// session question source port. Payloads are validated here, so nothing
// malformed ever reaches a store.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quizroom/quizroom/internal/session"
)

// Config holds connection details for the generator service.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client calls the generator over HTTP.
type Client struct {
	httpClient  *http.Client
	config      Config
	logger      zerolog.Logger
	generateURL string
}

var _ session.QuestionSource = (*Client)(nil)

// NewClient creates a generator client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	base := strings.TrimSuffix(cfg.URL, "/")

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		config:      cfg,
		logger:      logger.With().Str("component", "question_generator").Logger(),
		generateURL: base + "/generate",
	}
}

// Generate synchronously requests a question set for the topic.
func (g *Client) Generate(ctx context.Context, topic string, count int) (*session.QuestionSet, error) {
	if g.config.URL == "" {
		return nil, fmt.Errorf("%w: endpoint not configured", session.ErrGeneratorUnavailable)
	}

	body, err := json.Marshal(generateRequest{Topic: topic, Count: count})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.generateURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", session.ErrUpstreamTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", session.ErrGeneratorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", session.ErrGeneratorUnavailable, resp.StatusCode)
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", session.ErrGeneratorUnavailable, err)
	}

	if !genResp.Valid {
		return nil, session.ErrContentRejected
	}

	set, err := toQuestionSet(&genResp)
	if err != nil {
		return nil, err
	}

	g.logger.Debug().
		Str("topic", topic).
		Int("questions", len(set.Questions)).
		Msg("question set generated")
	return set, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// toQuestionSet validates the generator payload: unique positive question
// ids, non-empty prompts and options, and an answer key whose domain is
// exactly the question id set with labels drawn from each question's
// options.
func toQuestionSet(resp *generateResponse) (*session.QuestionSet, error) {
	if len(resp.Questions) == 0 {
		return nil, fmt.Errorf("%w: empty question set", session.ErrGeneratorUnavailable)
	}
	if len(resp.AnswerKey) != len(resp.Questions) {
		return nil, fmt.Errorf("%w: answer key covers %d of %d questions", session.ErrGeneratorUnavailable, len(resp.AnswerKey), len(resp.Questions))
	}

	questions := make([]session.Question, len(resp.Questions))
	seen := make(map[int]bool, len(resp.Questions))
	for i, q := range resp.Questions {
		if q.ID <= 0 || q.Prompt == "" || len(q.Options) == 0 {
			return nil, fmt.Errorf("%w: question %d missing required fields", session.ErrGeneratorUnavailable, q.ID)
		}
		if seen[q.ID] {
			return nil, fmt.Errorf("%w: duplicate question id %d", session.ErrGeneratorUnavailable, q.ID)
		}
		seen[q.ID] = true

		label, ok := resp.AnswerKey[q.ID]
		if !ok {
			return nil, fmt.Errorf("%w: no answer for question %d", session.ErrGeneratorUnavailable, q.ID)
		}
		if _, ok := q.Options[label]; !ok {
			return nil, fmt.Errorf("%w: answer %q not among options for question %d", session.ErrGeneratorUnavailable, label, q.ID)
		}

		questions[i] = session.Question{ID: q.ID, Prompt: q.Prompt, Options: q.Options}
	}

	answerKey := make(map[int]string, len(resp.AnswerKey))
	for id, label := range resp.AnswerKey {
		answerKey[id] = label
	}

	return &session.QuestionSet{Questions: questions, AnswerKey: answerKey}, nil
}

type generateRequest struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

type wireQuestion struct {
	ID      int               `json:"id"`
	Prompt  string            `json:"prompt"`
	Options map[string]string `json:"options"`
}

type generateResponse struct {
	Valid     bool           `json:"valid"`
	Questions []wireQuestion `json:"questions"`
	AnswerKey map[int]string `json:"answer_key"`
}
