package imagery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
)

// ErrNoCandidates is returned by Pick when the pool is empty.
var ErrNoCandidates = errors.New("no candidate images")

// UsageCache spreads category pool images across listings. Pick never returns
// an image already shown for the category until every candidate has been
// shown once, then starts a new round.
type UsageCache interface {
	Pick(ctx context.Context, category domain.Category, candidates []string) (string, error)
	Reset(ctx context.Context, category domain.Category) error
}

// MemoryUsageCache keeps the shown sets in process memory.
type MemoryUsageCache struct {
	mu    sync.Mutex
	shown map[domain.Category]map[string]struct{}
}

func NewMemoryUsageCache() *MemoryUsageCache {
	return &MemoryUsageCache{shown: make(map[domain.Category]map[string]struct{})}
}

func (c *MemoryUsageCache) Pick(_ context.Context, category domain.Category, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.shown[category]
	if !ok {
		set = make(map[string]struct{})
		c.shown[category] = set
	}
	for _, cand := range candidates {
		if _, seen := set[cand]; !seen {
			set[cand] = struct{}{}
			return cand, nil
		}
	}

	// Round exhausted.
	set = map[string]struct{}{candidates[0]: {}}
	c.shown[category] = set
	return candidates[0], nil
}

func (c *MemoryUsageCache) Reset(_ context.Context, category domain.Category) error {
	c.mu.Lock()
	delete(c.shown, category)
	c.mu.Unlock()
	return nil
}

// RedisUsageCache shares the shown sets between server instances. Each
// category is a Redis set that expires after ttl of inactivity.
type RedisUsageCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisUsageCache(client redis.Cmdable, ttl time.Duration) *RedisUsageCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisUsageCache{client: client, ttl: ttl}
}

func usageKey(category domain.Category) string {
	slug := category.Slug()
	if slug == "" {
		slug = "_none"
	}
	return "imagery:shown:" + slug
}

// pickScript picks the first candidate not in the set, starting a new round
// when all are members. ARGV[1] is the TTL in milliseconds.
var pickScript = redis.NewScript(`
for i = 2, #ARGV do
	if redis.call("sismember", KEYS[1], ARGV[i]) == 0 then
		redis.call("sadd", KEYS[1], ARGV[i])
		redis.call("pexpire", KEYS[1], ARGV[1])
		return ARGV[i]
	end
end
redis.call("del", KEYS[1])
redis.call("sadd", KEYS[1], ARGV[2])
redis.call("pexpire", KEYS[1], ARGV[1])
return ARGV[2]
`)

func (c *RedisUsageCache) Pick(ctx context.Context, category domain.Category, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}
	args := make([]interface{}, 0, len(candidates)+1)
	args = append(args, c.ttl.Milliseconds())
	for _, cand := range candidates {
		args = append(args, cand)
	}
	picked, err := pickScript.Run(ctx, c.client, []string{usageKey(category)}, args...).Text()
	if err != nil {
		return "", fmt.Errorf("pick category image: %w", err)
	}
	return picked, nil
}

func (c *RedisUsageCache) Reset(ctx context.Context, category domain.Category) error {
	if err := c.client.Del(ctx, usageKey(category)).Err(); err != nil {
		return fmt.Errorf("reset usage for %s: %w", category, err)
	}
	return nil
}
