package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizroom/quizroom/internal/session"
)

func validPayload() generateResponse {
	return generateResponse{
		Valid: true,
		Questions: []wireQuestion{
			{ID: 1, Prompt: "Capital of France?", Options: map[string]string{"A": "Paris", "B": "Lyon"}},
			{ID: 2, Prompt: "2 + 2?", Options: map[string]string{"A": "3", "B": "4"}},
		},
		AnswerKey: map[int]string{1: "A", 2: "B"},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{URL: srv.URL, APIKey: "test-key"}, zerolog.Nop())
}

func TestGenerateReturnsValidatedSet(t *testing.T) {
	var gotAuth string
	var gotReq generateRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		assert.NoError(t, json.NewEncoder(w).Encode(validPayload()))
	})

	set, err := client.Generate(context.Background(), "geography", 2)
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, generateRequest{Topic: "geography", Count: 2}, gotReq)
	assert.Len(t, set.Questions, 2)
	assert.Equal(t, "A", set.AnswerKey[1])
	assert.Equal(t, "B", set.AnswerKey[2])
}

func TestGenerateRejectedContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewEncoder(w).Encode(generateResponse{Valid: false}))
	})

	_, err := client.Generate(context.Background(), "forbidden topic", 2)
	assert.ErrorIs(t, err, session.ErrContentRejected)
}

func TestGenerateUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Generate(context.Background(), "geography", 2)
	assert.ErrorIs(t, err, session.ErrGeneratorUnavailable)
}

func TestGenerateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{URL: srv.URL, Timeout: 20 * time.Millisecond}, zerolog.Nop())

	_, err := client.Generate(context.Background(), "geography", 2)
	assert.ErrorIs(t, err, session.ErrUpstreamTimeout)
}

func TestGenerateMalformedPayloads(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*generateResponse)
	}{
		{"empty question set", func(r *generateResponse) {
			r.Questions = nil
			r.AnswerKey = nil
		}},
		{"missing answer", func(r *generateResponse) {
			delete(r.AnswerKey, 2)
		}},
		{"answer outside question set", func(r *generateResponse) {
			delete(r.AnswerKey, 2)
			r.AnswerKey[99] = "A"
		}},
		{"answer not among options", func(r *generateResponse) {
			r.AnswerKey[1] = "Z"
		}},
		{"duplicate question id", func(r *generateResponse) {
			r.Questions[1].ID = 1
			delete(r.AnswerKey, 2)
			r.AnswerKey[1] = "A"
		}},
		{"non-positive question id", func(r *generateResponse) {
			r.Questions[0].ID = 0
		}},
		{"empty prompt", func(r *generateResponse) {
			r.Questions[0].Prompt = ""
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := validPayload()
			tc.mutate(&payload)
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.NoError(t, json.NewEncoder(w).Encode(payload))
			})

			_, err := client.Generate(context.Background(), "geography", 2)
			assert.ErrorIs(t, err, session.ErrGeneratorUnavailable)
		})
	}
}

type countingSource struct {
	mu    sync.Mutex
	calls int
	set   *session.QuestionSet
	err   error
}

func (s *countingSource) Generate(context.Context, string, int) (*session.QuestionSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.set, s.err
}

func (s *countingSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return NewCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
}

func TestCachedSourceServesFromCache(t *testing.T) {
	upstream := &countingSource{set: &session.QuestionSet{
		Questions: []session.Question{{ID: 1, Prompt: "Q", Options: map[string]string{"A": "yes"}}},
		AnswerKey: map[int]string{1: "A"},
	}}
	source := NewCachedSource(upstream, newTestCache(t), zerolog.Nop())

	first, err := source.Generate(context.Background(), "history", 1)
	require.NoError(t, err)

	second, err := source.Generate(context.Background(), "history", 1)
	require.NoError(t, err)

	assert.Equal(t, 1, upstream.Calls(), "second call should hit the cache")
	assert.Equal(t, first, second)
}

func TestCachedSourceDistinguishesCounts(t *testing.T) {
	upstream := &countingSource{set: &session.QuestionSet{
		Questions: []session.Question{{ID: 1, Prompt: "Q", Options: map[string]string{"A": "yes"}}},
		AnswerKey: map[int]string{1: "A"},
	}}
	source := NewCachedSource(upstream, newTestCache(t), zerolog.Nop())

	_, err := source.Generate(context.Background(), "history", 1)
	require.NoError(t, err)
	_, err = source.Generate(context.Background(), "history", 5)
	require.NoError(t, err)

	assert.Equal(t, 2, upstream.Calls())
}

func TestCachedSourceDoesNotCacheFailures(t *testing.T) {
	upstream := &countingSource{err: errors.New("generator down")}
	source := NewCachedSource(upstream, newTestCache(t), zerolog.Nop())

	_, err := source.Generate(context.Background(), "history", 1)
	assert.Error(t, err)
	_, err = source.Generate(context.Background(), "history", 1)
	assert.Error(t, err)

	assert.Equal(t, 2, upstream.Calls(), "failures should not be cached")
}
