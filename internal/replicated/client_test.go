package replicated

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/school-platform/attendance-service/internal/pool"
	"github.com/school-platform/attendance-service/internal/store"
)

type clientEnv struct {
	servers []*miniredis.Miniredis
	client  *Client
}

// newClientEnv backs the staff group with n independent in-process instances.
func newClientEnv(t *testing.T, n int) *clientEnv {
	t.Helper()

	servers := make([]*miniredis.Miniredis, 0, n)
	clients := make([]*redis.Client, 0, n)
	for i := 0; i < n; i++ {
		srv := miniredis.RunT(t)
		servers = append(servers, srv)
		clients = append(clients, redis.NewClient(&redis.Options{Addr: srv.Addr()}))
	}

	p := pool.NewFromClients(map[store.Group][]*redis.Client{
		store.GroupStaff: clients,
	})
	return &clientEnv{servers: servers, client: New(p, nil, nil)}
}

func TestSetFansOutToEveryInstance(t *testing.T) {
	env := newClientEnv(t, 3)

	err := env.client.Set(context.Background(), store.GroupStaff, "k", []byte("v"), time.Minute, store.FanOutStrict)
	require.NoError(t, err)

	for i, srv := range env.servers {
		value, err := srv.Get("k")
		require.NoError(t, err, "instance %d", i)
		assert.Equal(t, "v", value)
		assert.Equal(t, time.Minute, srv.TTL("k"))
	}
}

func TestSetWithoutTTLDoesNotExpire(t *testing.T) {
	env := newClientEnv(t, 2)

	require.NoError(t, env.client.Set(context.Background(), store.GroupStaff, "k", []byte("v"), 0, store.FanOutStrict))
	for _, srv := range env.servers {
		assert.Equal(t, time.Duration(0), srv.TTL("k"))
	}
}

func TestGetReadsOneInstance(t *testing.T) {
	env := newClientEnv(t, 3)
	for _, srv := range env.servers {
		require.NoError(t, srv.Set("k", "v"))
	}

	value, err := env.client.Get(context.Background(), store.GroupStaff, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)
}

func TestGetAbsentKeyIsNotFound(t *testing.T) {
	env := newClientEnv(t, 2)

	_, err := env.client.Get(context.Background(), store.GroupStaff, "missing")
	assert.True(t, store.IsNotFound(err))
}

func TestGetUnknownGroupIsConfigError(t *testing.T) {
	env := newClientEnv(t, 1)

	_, err := env.client.Get(context.Background(), store.GroupReports, "k")
	assert.True(t, store.IsConfig(err))
}

func TestSetIfAbsentCountsCreations(t *testing.T) {
	env := newClientEnv(t, 3)
	ctx := context.Background()

	// One instance already holds the key; SETNX creates on the other two.
	require.NoError(t, env.servers[0].Set("k", "old"))

	created, err := env.client.SetIfAbsent(ctx, store.GroupStaff, "k", []byte("new"), time.Minute, store.FanOutStrict)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	// The pre-existing instance keeps its value.
	value, err := env.servers[0].Get("k")
	require.NoError(t, err)
	assert.Equal(t, "old", value)

	// A full repeat creates nowhere.
	created, err = env.client.SetIfAbsent(ctx, store.GroupStaff, "k", []byte("newer"), time.Minute, store.FanOutStrict)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestDeleteRemovesFromOneInstance(t *testing.T) {
	env := newClientEnv(t, 1)
	require.NoError(t, env.servers[0].Set("k", "v"))

	count, err := env.client.Delete(context.Background(), store.GroupStaff, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = env.servers[0].Get("k")
	assert.ErrorIs(t, err, miniredis.ErrKeyNotFound)
}

func TestExistsAndTTL(t *testing.T) {
	env := newClientEnv(t, 1)
	ctx := context.Background()

	ok, err := env.client.Exists(ctx, store.GroupStaff, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, env.client.Set(ctx, store.GroupStaff, "k", []byte("v"), time.Minute, store.FanOutStrict))

	ok, err = env.client.Exists(ctx, store.GroupStaff, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := env.client.TTL(ctx, store.GroupStaff, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)
}

func TestKeysUnionsAcrossInstances(t *testing.T) {
	env := newClientEnv(t, 3)
	require.NoError(t, env.servers[0].Set("2024-03-11:a", "1"))
	require.NoError(t, env.servers[1].Set("2024-03-11:b", "1"))
	require.NoError(t, env.servers[2].Set("2024-03-11:a", "1")) // duplicate
	require.NoError(t, env.servers[2].Set("other", "1"))

	result, err := env.client.Keys(context.Background(), store.GroupStaff, "2024-03-11:*")
	require.NoError(t, err)
	assert.False(t, result.Partial)
	assert.ElementsMatch(t, []string{"2024-03-11:a", "2024-03-11:b"}, result.Keys)
}

func TestKeysToleratesInstanceFailure(t *testing.T) {
	env := newClientEnv(t, 3)
	require.NoError(t, env.servers[0].Set("k:a", "1"))
	require.NoError(t, env.servers[1].Set("k:b", "1"))
	env.servers[2].Close()

	result, err := env.client.Keys(context.Background(), store.GroupStaff, "k:*")
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.ElementsMatch(t, []string{"k:a", "k:b"}, result.Keys)
}

func TestKeysFailsWhenNoInstanceResponds(t *testing.T) {
	env := newClientEnv(t, 2)
	for _, srv := range env.servers {
		srv.Close()
	}

	_, err := env.client.Keys(context.Background(), store.GroupStaff, "*")
	assert.True(t, store.IsStoreUnavailable(err))
}

func TestFanOutStrictFailsOnDeadInstance(t *testing.T) {
	env := newClientEnv(t, 3)
	env.servers[1].Close()

	err := env.client.Set(context.Background(), store.GroupStaff, "k", []byte("v"), 0, store.FanOutStrict)
	assert.True(t, store.IsStoreUnavailable(err))
}

func TestFanOutBestEffortSwallowsDeadInstance(t *testing.T) {
	env := newClientEnv(t, 3)
	env.servers[1].Close()

	err := env.client.Set(context.Background(), store.GroupStaff, "k", []byte("v"), 0, store.FanOutBestEffort)
	require.NoError(t, err)

	// The live instances still got the write.
	for _, i := range []int{0, 2} {
		value, err := env.servers[i].Get("k")
		require.NoError(t, err)
		assert.Equal(t, "v", value)
	}
}

func TestCheckConsistency(t *testing.T) {
	t.Run("consistent", func(t *testing.T) {
		env := newClientEnv(t, 3)
		for _, srv := range env.servers {
			require.NoError(t, srv.Set("k", "v"))
		}

		report, err := env.client.CheckConsistency(context.Background(), store.GroupStaff, "k")
		require.NoError(t, err)
		assert.True(t, report.IsConsistent)
		assert.Equal(t, 3, report.RespondingInstances)
		assert.Equal(t, 3, report.ConfiguredInstances)
		v := "v"
		assert.Equal(t, []*string{&v, &v, &v}, report.Values)
	})

	t.Run("mismatched value", func(t *testing.T) {
		env := newClientEnv(t, 2)
		require.NoError(t, env.servers[0].Set("k", "v1"))
		require.NoError(t, env.servers[1].Set("k", "v2"))

		report, err := env.client.CheckConsistency(context.Background(), store.GroupStaff, "k")
		require.NoError(t, err)
		assert.False(t, report.IsConsistent)
	})

	t.Run("absence on one instance is a mismatch", func(t *testing.T) {
		env := newClientEnv(t, 2)
		require.NoError(t, env.servers[0].Set("k", "v"))

		report, err := env.client.CheckConsistency(context.Background(), store.GroupStaff, "k")
		require.NoError(t, err)
		assert.False(t, report.IsConsistent)
		assert.Equal(t, 2, report.RespondingInstances)
		v := "v"
		assert.Equal(t, []*string{&v, nil}, report.Values)
	})

	t.Run("absent key differs from stored empty string", func(t *testing.T) {
		env := newClientEnv(t, 2)
		require.NoError(t, env.servers[0].Set("k", ""))

		report, err := env.client.CheckConsistency(context.Background(), store.GroupStaff, "k")
		require.NoError(t, err)
		assert.False(t, report.IsConsistent)
		empty := ""
		assert.Equal(t, []*string{&empty, nil}, report.Values)
	})

	t.Run("dead instance only reduces responders", func(t *testing.T) {
		env := newClientEnv(t, 3)
		require.NoError(t, env.servers[0].Set("k", "v"))
		require.NoError(t, env.servers[1].Set("k", "v"))
		env.servers[2].Close()

		report, err := env.client.CheckConsistency(context.Background(), store.GroupStaff, "k")
		require.NoError(t, err)
		assert.True(t, report.IsConsistent)
		assert.Equal(t, 2, report.RespondingInstances)
		assert.Equal(t, 3, report.ConfiguredInstances)
	})

	t.Run("no responder is an error", func(t *testing.T) {
		env := newClientEnv(t, 2)
		for _, srv := range env.servers {
			srv.Close()
		}

		_, err := env.client.CheckConsistency(context.Background(), store.GroupStaff, "k")
		assert.True(t, store.IsStoreUnavailable(err))
	})
}

func TestIncrementRepairsAllInstances(t *testing.T) {
	env := newClientEnv(t, 3)
	ctx := context.Background()

	value, err := env.client.Increment(ctx, store.GroupStaff, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)

	value, err = env.client.Increment(ctx, store.GroupStaff, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(2), value)

	// The repair fan-out makes the counter visible everywhere.
	for _, srv := range env.servers {
		got, err := srv.Get("counter")
		require.NoError(t, err)
		assert.Equal(t, "2", got)
	}
}

func TestExpireFansOut(t *testing.T) {
	env := newClientEnv(t, 2)
	ctx := context.Background()
	for _, srv := range env.servers {
		require.NoError(t, srv.Set("k", "v"))
	}

	require.NoError(t, env.client.Expire(ctx, store.GroupStaff, "k", time.Minute, store.FanOutStrict))
	for _, srv := range env.servers {
		assert.Equal(t, time.Minute, srv.TTL("k"))
	}
}

func TestPing(t *testing.T) {
	env := newClientEnv(t, 1)
	require.NoError(t, env.client.Ping(context.Background(), store.GroupStaff))

	env.servers[0].Close()
	assert.True(t, store.IsStoreUnavailable(env.client.Ping(context.Background(), store.GroupStaff)))
}

func TestInstanceCount(t *testing.T) {
	env := newClientEnv(t, 3)
	assert.Equal(t, 3, env.client.InstanceCount(store.GroupStaff))
	assert.Equal(t, 0, env.client.InstanceCount(store.GroupReports))
}
