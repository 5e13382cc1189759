// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aetflow/aet-backend/internal/models"
	"github.com/aetflow/aet-backend/internal/notifier"
)

const (
	keyPrefix         = "aet:candidates:"
	indexPrefix       = keyPrefix + "index:"
	generationPrefix  = keyPrefix + "gen:"
	globalGeneration  = generationPrefix + "all"
	scanBatch         = 200
	invalidateTimeout = 2 * time.Second
)

// Connect initializes a Redis client from a redis:// URL or host:port.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// CandidateCache stores FindCandidates results per state and plate set.
// Each state keeps an index set of its keys so one state can be dropped
// without scanning the keyspace, and a generation counter bumped on every
// invalidation so a result read before the bump is never written back.
type CandidateCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Entry
}

func NewCandidateCache(client *redis.Client, ttl time.Duration, logger *logrus.Entry) *CandidateCache {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &CandidateCache{
		client: client,
		ttl:    ttl,
		logger: logger.WithField("component", "cache.candidates"),
	}
}

func candidateKey(state models.StateCode, plates []string) string {
	sorted := append([]string(nil), plates...)
	sort.Strings(sorted)
	return keyPrefix + string(state) + ":" + strings.Join(sorted, ",")
}

func indexKey(state models.StateCode) string {
	return indexPrefix + string(state)
}

func generationKey(state models.StateCode) string {
	return generationPrefix + string(state)
}

var errStaleGeneration = errors.New("candidate cache generation changed")

type generationReader interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// readGeneration sums the state counter and the global one. Both only grow,
// so any invalidation moves the sum.
func readGeneration(ctx context.Context, r generationReader, state models.StateCode) (int64, error) {
	values, err := r.MGet(ctx, generationKey(state), globalGeneration).Result()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, v := range values {
		if v == nil {
			continue
		}
		raw, ok := v.(string)
		if !ok {
			return 0, fmt.Errorf("unexpected generation value %T", v)
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse generation: %w", err)
		}
		total += n
	}
	return total, nil
}

// Get reports ok=false on a miss.
func (c *CandidateCache) Get(ctx context.Context, state models.StateCode, plates []string) ([]models.IssuedLicense, bool, error) {
	raw, err := c.client.Get(ctx, candidateKey(state, plates)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var licenses []models.IssuedLicense
	if err := json.Unmarshal(raw, &licenses); err != nil {
		return nil, false, fmt.Errorf("decode cached candidates: %w", err)
	}
	if licenses == nil {
		licenses = []models.IssuedLicense{}
	}
	return licenses, true, nil
}

// Generation must be read before the store lookup whose result is passed to
// Set.
func (c *CandidateCache) Generation(ctx context.Context, state models.StateCode) (int64, error) {
	return readGeneration(ctx, c.client, state)
}

// Set stores licenses unless state was invalidated since generation was
// read. A skipped write is not an error.
func (c *CandidateCache) Set(ctx context.Context, state models.StateCode, plates []string, licenses []models.IssuedLicense, generation int64) error {
	raw, err := json.Marshal(licenses)
	if err != nil {
		return err
	}

	key := candidateKey(state, plates)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, state)
		if err != nil {
			return err
		}
		if current != generation {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, c.ttl)
			pipe.SAdd(ctx, indexKey(state), key)
			pipe.Expire(ctx, indexKey(state), c.ttl)
			return nil
		})
		return err
	}, generationKey(state), globalGeneration)

	if errors.Is(err, errStaleGeneration) || errors.Is(err, redis.TxFailedErr) {
		c.logger.WithField("state", state).Debug("Candidates invalidated during lookup, not caching")
		return nil
	}
	return err
}

// InvalidateState drops every cached entry of state.
func (c *CandidateCache) InvalidateState(ctx context.Context, state models.StateCode) error {
	if err := c.client.Incr(ctx, generationKey(state)).Err(); err != nil {
		return err
	}
	index := indexKey(state)
	keys, err := c.client.SMembers(ctx, index).Result()
	if err != nil {
		return err
	}
	return c.client.Del(ctx, append(keys, index)...).Err()
}

// InvalidateAll drops every cached entry of every state.
func (c *CandidateCache) InvalidateAll(ctx context.Context) error {
	if err := c.client.Incr(ctx, globalGeneration).Err(); err != nil {
		return err
	}

	var cursor uint64
	for {
		scanned, next, err := c.client.Scan(ctx, cursor, keyPrefix+"*", scanBatch).Result()
		if err != nil {
			return err
		}
		keys := scanned[:0]
		for _, key := range scanned {
			if !strings.HasPrefix(key, generationPrefix) {
				keys = append(keys, key)
			}
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Subscribe invalidates on every change event: the event's state when it has
// one, everything otherwise.
func (c *CandidateCache) Subscribe(n *notifier.Notifier) func() {
	return n.OnChange(func(event notifier.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
		defer cancel()

		var err error
		if event.Data.State != "" {
			err = c.InvalidateState(ctx, event.Data.State)
		} else {
			err = c.InvalidateAll(ctx)
		}
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"type":  event.Type,
				"state": event.Data.State,
			}).Warn("Candidate cache invalidation failed")
		}
	})
}
