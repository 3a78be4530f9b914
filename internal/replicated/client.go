// Package replicated presents a single-key-space view over a group's
// instance list. Replication is leaderless and best-effort: writes fan out
// to every instance of a group concurrently, reads are served by one
// instance chosen at random. There is no consensus protocol; stale reads of
// a recently written key are tolerated by design.
package replicated

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/school-platform/attendance-service/internal/loggingclient"
	"github.com/school-platform/attendance-service/internal/observability"
	"github.com/school-platform/attendance-service/internal/pool"
	"github.com/school-platform/attendance-service/internal/store"
)

// Client implements the replicated cache operations on top of an
// InstancePool.
type Client struct {
	pool    *pool.InstancePool
	logger  *loggingclient.Client
	metrics *observability.Metrics
}

// New creates a replicated cache client.
func New(p *pool.InstancePool, logger *loggingclient.Client, metrics *observability.Metrics) *Client {
	if logger == nil {
		logger = loggingclient.NewNoop()
	}
	return &Client{
		pool:    p,
		logger:  logger,
		metrics: metrics,
	}
}

// Get reads a key from one randomly chosen instance of the group.
// Returns store.ErrNotFound when the key is absent on that instance.
func (c *Client) Get(ctx context.Context, group store.Group, key string) ([]byte, error) {
	instance, idx, err := c.pool.Random(group)
	if err != nil {
		return nil, err
	}

	value, err := instance.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, store.ErrNotFound
		}
		c.logger.Warn(ctx, "replicated get failed",
			loggingclient.String("group", group.String()),
			loggingclient.Int("instance", idx),
			loggingclient.Error(err),
		)
		return nil, store.WrapError(store.ErrUnavailable, "get failed", err)
	}
	return value, nil
}

// Set writes a key to every instance of the group concurrently. With
// FanOutStrict the first instance error fails the whole write; with
// FanOutBestEffort instance errors are logged and swallowed. ttl <= 0 means
// no expiration.
func (c *Client) Set(ctx context.Context, group store.Group, key string, value []byte, ttl time.Duration, mode store.FanOutMode) error {
	errs, err := c.fanOut(ctx, group, func(ctx context.Context, instance *redis.Client) error {
		return instance.Set(ctx, key, value, normalizeTTL(ttl)).Err()
	})
	if err != nil {
		return err
	}
	return c.resolveFanOut(ctx, group, key, "set", mode, errs)
}

// SetIfAbsent writes a key via SETNX on every instance of the group
// concurrently, the store's native conditional write. It returns the number
// of instances that created the key. Zero created with no errors means every
// instance already held the key. Mode semantics match Set.
func (c *Client) SetIfAbsent(ctx context.Context, group store.Group, key string, value []byte, ttl time.Duration, mode store.FanOutMode) (int, error) {
	instances, err := c.pool.Instances(group)
	if err != nil {
		return 0, err
	}

	created := make([]bool, len(instances))
	errs := make([]error, len(instances))

	var wg sync.WaitGroup
	for i, instance := range instances {
		wg.Add(1)
		go func(i int, instance *redis.Client) {
			defer wg.Done()
			ok, err := instance.SetNX(ctx, key, value, normalizeTTL(ttl)).Result()
			created[i] = ok
			errs[i] = err
		}(i, instance)
	}
	wg.Wait()

	count := 0
	for _, ok := range created {
		if ok {
			count++
		}
	}

	if err := c.resolveFanOut(ctx, group, key, "setnx", mode, errs); err != nil {
		return count, err
	}
	return count, nil
}

// Delete removes a key from one randomly chosen instance. Intended for the
// final step of the tombstone-then-delete pattern; it does not fan out.
func (c *Client) Delete(ctx context.Context, group store.Group, key string) (int64, error) {
	instance, _, err := c.pool.Random(group)
	if err != nil {
		return 0, err
	}

	count, err := instance.Del(ctx, key).Result()
	if err != nil {
		return 0, store.WrapError(store.ErrUnavailable, "delete failed", err)
	}
	return count, nil
}

// Exists checks key presence on one randomly chosen instance.
func (c *Client) Exists(ctx context.Context, group store.Group, key string) (bool, error) {
	instance, _, err := c.pool.Random(group)
	if err != nil {
		return false, err
	}

	n, err := instance.Exists(ctx, key).Result()
	if err != nil {
		return false, store.WrapError(store.ErrUnavailable, "exists failed", err)
	}
	return n > 0, nil
}

// TTL returns the remaining TTL of a key on one randomly chosen instance.
func (c *Client) TTL(ctx context.Context, group store.Group, key string) (time.Duration, error) {
	instance, _, err := c.pool.Random(group)
	if err != nil {
		return 0, err
	}

	ttl, err := instance.TTL(ctx, key).Result()
	if err != nil {
		return 0, store.WrapError(store.ErrUnavailable, "ttl failed", err)
	}
	return ttl, nil
}

// Ping checks connectivity of one randomly chosen instance of the group.
func (c *Client) Ping(ctx context.Context, group store.Group) error {
	instance, _, err := c.pool.Random(group)
	if err != nil {
		return err
	}
	if err := instance.Ping(ctx).Err(); err != nil {
		return store.WrapError(store.ErrUnavailable, "ping failed", err)
	}
	return nil
}

// Keys runs a pattern search on every instance of the group and unions the
// result sets. Individual instance failures are tolerated: the result is
// marked Partial and still carries the keys of the instances that responded.
func (c *Client) Keys(ctx context.Context, group store.Group, pattern string) (store.KeysResult, error) {
	instances, err := c.pool.Instances(group)
	if err != nil {
		return store.KeysResult{}, err
	}

	results := make([][]string, len(instances))
	errs := make([]error, len(instances))

	var wg sync.WaitGroup
	for i, instance := range instances {
		wg.Add(1)
		go func(i int, instance *redis.Client) {
			defer wg.Done()
			results[i], errs[i] = instance.Keys(ctx, pattern).Result()
		}(i, instance)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	out := store.KeysResult{}
	failed := 0
	for i, keys := range results {
		if errs[i] != nil {
			failed++
			c.logger.Warn(ctx, "keys scan failed on instance",
				loggingclient.String("group", group.String()),
				loggingclient.Int("instance", i),
				loggingclient.Error(errs[i]),
			)
			continue
		}
		for _, k := range keys {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				out.Keys = append(out.Keys, k)
			}
		}
	}

	if failed == len(instances) {
		return store.KeysResult{}, store.WrapError(store.ErrUnavailable, "keys scan failed on every instance", errs[0])
	}
	out.Partial = failed > 0
	return out, nil
}

// InstanceRead is the result of reading one key on one instance of a group.
type InstanceRead struct {
	Value  []byte
	Absent bool
	Err    error
}

// ReadAll reads a key from every instance of the group concurrently and
// returns one result per configured instance, in instance order.
func (c *Client) ReadAll(ctx context.Context, group store.Group, key string) ([]InstanceRead, error) {
	instances, err := c.pool.Instances(group)
	if err != nil {
		return nil, err
	}

	reads := make([]InstanceRead, len(instances))
	var wg sync.WaitGroup
	for i, instance := range instances {
		wg.Add(1)
		go func(i int, instance *redis.Client) {
			defer wg.Done()
			value, err := instance.Get(ctx, key).Bytes()
			if err == redis.Nil {
				reads[i] = InstanceRead{Absent: true}
				return
			}
			reads[i] = InstanceRead{Value: value, Err: err}
		}(i, instance)
	}
	wg.Wait()
	return reads, nil
}

// CheckConsistency reads the same key from every instance of the group and
// compares the successfully read values by structural equality. Absence on a
// responding instance counts as a read of "absent" and participates in the
// comparison; instances that failed to respond only reduce
// RespondingInstances. Diagnostic only; never used on a write path.
func (c *Client) CheckConsistency(ctx context.Context, group store.Group, key string) (store.ConsistencyReport, error) {
	reads, err := c.ReadAll(ctx, group, key)
	if err != nil {
		return store.ConsistencyReport{}, err
	}

	report := store.ConsistencyReport{
		IsConsistent:        true,
		ConfiguredInstances: len(reads),
	}
	var refValue []byte
	refAbsent := false
	haveReference := false
	for _, r := range reads {
		if r.Err != nil {
			continue
		}
		report.RespondingInstances++
		if r.Absent {
			report.Values = append(report.Values, nil)
		} else {
			value := string(r.Value)
			report.Values = append(report.Values, &value)
		}
		if !haveReference {
			refValue, refAbsent = r.Value, r.Absent
			haveReference = true
			continue
		}
		if r.Absent != refAbsent || !bytes.Equal(refValue, r.Value) {
			report.IsConsistent = false
		}
	}

	if report.RespondingInstances == 0 {
		return report, store.WrapError(store.ErrUnavailable, "no instance responded to consistency check", nil)
	}

	if c.metrics != nil && !report.IsConsistent {
		c.metrics.ConsistencyMismatchTotal.WithLabelValues(group.String()).Inc()
	}
	return report, nil
}

// Increment increments a counter on one randomly chosen instance, then fans
// out a plain set of the resulting value to the whole group as an explicit
// repair step: increment cannot be fanned out atomically. The repair write
// is best-effort and preserves the source instance's remaining TTL.
func (c *Client) Increment(ctx context.Context, group store.Group, key string) (int64, error) {
	instance, _, err := c.pool.Random(group)
	if err != nil {
		return 0, err
	}

	value, err := instance.Incr(ctx, key).Result()
	if err != nil {
		return 0, store.WrapError(store.ErrUnavailable, "increment failed", err)
	}

	ttl, err := instance.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = 0
	}

	encoded := []byte(strconv.FormatInt(value, 10))
	if err := c.Set(ctx, group, key, encoded, ttl, store.FanOutBestEffort); err != nil {
		c.logger.Warn(ctx, "increment repair fan-out failed",
			loggingclient.String("group", group.String()),
			loggingclient.String("key", key),
			loggingclient.Error(err),
		)
	}
	return value, nil
}

// Expire applies a TTL to a key on every instance of the group.
func (c *Client) Expire(ctx context.Context, group store.Group, key string, ttl time.Duration, mode store.FanOutMode) error {
	errs, err := c.fanOut(ctx, group, func(ctx context.Context, instance *redis.Client) error {
		return instance.Expire(ctx, key, ttl).Err()
	})
	if err != nil {
		return err
	}
	return c.resolveFanOut(ctx, group, key, "expire", mode, errs)
}

// InstanceCount returns the number of instances configured for a group.
func (c *Client) InstanceCount(group store.Group) int {
	return c.pool.Size(group)
}

// fanOut runs op against every instance of the group concurrently and
// returns the per-instance errors.
func (c *Client) fanOut(ctx context.Context, group store.Group, op func(context.Context, *redis.Client) error) ([]error, error) {
	instances, err := c.pool.Instances(group)
	if err != nil {
		return nil, err
	}

	errs := make([]error, len(instances))
	var wg sync.WaitGroup
	for i, instance := range instances {
		wg.Add(1)
		go func(i int, instance *redis.Client) {
			defer wg.Done()
			errs[i] = op(ctx, instance)
		}(i, instance)
	}
	wg.Wait()
	return errs, nil
}

// resolveFanOut applies the call site's failure mode to per-instance errors.
func (c *Client) resolveFanOut(ctx context.Context, group store.Group, key, op string, mode store.FanOutMode, errs []error) error {
	for i, err := range errs {
		if err == nil {
			continue
		}
		if c.metrics != nil {
			c.metrics.FanOutFailureTotal.WithLabelValues(group.String(), op).Inc()
		}
		if mode == store.FanOutStrict {
			return store.WrapError(store.ErrUnavailable, "fan-out write failed", err)
		}
		c.logger.Warn(ctx, "fan-out write failed on instance, continuing",
			loggingclient.String("group", group.String()),
			loggingclient.String("key", key),
			loggingclient.String("op", op),
			loggingclient.Int("instance", i),
			loggingclient.Error(err),
		)
	}
	return nil
}

// normalizeTTL maps non-positive TTLs to "no expiration" for go-redis.
func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}
