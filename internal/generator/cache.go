package generator

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/quizroom/quizroom/internal/session"
)

const defaultCacheTTL = 5 * time.Minute

// Cache keeps generated question sets in Redis so repeated creates for the
// same topic and count skip the upstream call.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a question set cache. A non-positive ttl falls back to
// the default.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached set for the topic and count, or nil when absent.
func (c *Cache) Get(ctx context.Context, topic string, count int) (*session.QuestionSet, error) {
	data, err := c.client.Get(ctx, cacheKey(topic, count)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var set session.QuestionSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// Set stores the question set under the topic and count.
func (c *Cache) Set(ctx context.Context, topic string, count int, set *session.QuestionSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(topic, count), data, c.ttl).Err()
}

func cacheKey(topic string, count int) string {
	return strings.Join([]string{"questionset", topic, strconv.Itoa(count)}, ":")
}

// CachedSource serves question sets from the cache before falling back to
// the underlying source. Concurrent misses for the same topic and count
// collapse into a single upstream call.
type CachedSource struct {
	source session.QuestionSource
	cache  *Cache
	logger zerolog.Logger
	group  singleflight.Group
}

var _ session.QuestionSource = (*CachedSource)(nil)

// NewCachedSource wraps the source with the cache.
func NewCachedSource(source session.QuestionSource, cache *Cache, logger zerolog.Logger) *CachedSource {
	return &CachedSource{
		source: source,
		cache:  cache,
		logger: logger.With().Str("component", "question_cache").Logger(),
	}
}

// Generate checks the cache first. Cache failures degrade to an upstream
// call rather than failing the request.
func (c *CachedSource) Generate(ctx context.Context, topic string, count int) (*session.QuestionSet, error) {
	set, err := c.cache.Get(ctx, topic, count)
	if err != nil {
		c.logger.Warn().Err(err).Str("topic", topic).Msg("question cache read failed")
	} else if set != nil {
		c.logger.Debug().Str("topic", topic).Msg("question cache hit")
		return set, nil
	}

	v, err, _ := c.group.Do(cacheKey(topic, count), func() (interface{}, error) {
		generated, err := c.source.Generate(ctx, topic, count)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(ctx, topic, count, generated); err != nil {
			c.logger.Warn().Err(err).Str("topic", topic).Msg("question cache write failed")
		}
		return generated, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session.QuestionSet), nil
}
