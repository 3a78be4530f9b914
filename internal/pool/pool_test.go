package pool

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/school-platform/attendance-service/internal/config"
	"github.com/school-platform/attendance-service/internal/store"
)

func TestNewBuildsClientsPerURL(t *testing.T) {
	staff1 := miniredis.RunT(t)
	staff2 := miniredis.RunT(t)
	primary := miniredis.RunT(t)

	p, err := New(config.GroupsConfig{
		URLs: map[store.Group][]string{
			store.GroupStaff:   {"redis://" + staff1.Addr(), "redis://" + staff2.Addr()},
			store.GroupPrimary: {"redis://" + primary.Addr()},
		},
		PoolSize:    4,
		DialTimeout: time.Second,
	}, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 2, p.Size(store.GroupStaff))
	assert.Equal(t, 1, p.Size(store.GroupPrimary))
	assert.Equal(t, 0, p.Size(store.GroupSecondary))
}

func TestNewRejectsEmptyGroup(t *testing.T) {
	_, err := New(config.GroupsConfig{
		URLs: map[store.Group][]string{
			store.GroupStaff: {},
		},
	}, nil)
	assert.True(t, store.IsConfig(err))
}

func TestNewRejectsInvalidURL(t *testing.T) {
	_, err := New(config.GroupsConfig{
		URLs: map[store.Group][]string{
			store.GroupStaff: {"not a url"},
		},
	}, nil)
	assert.True(t, store.IsConfig(err))
}

func TestInstancesUnknownGroup(t *testing.T) {
	p := NewFromClients(map[store.Group][]*redis.Client{})

	_, err := p.Instances(store.GroupStaff)
	assert.True(t, store.IsConfig(err))

	_, _, err = p.Random(store.GroupStaff)
	assert.True(t, store.IsConfig(err))
}

func TestRandomStaysInBounds(t *testing.T) {
	srv := miniredis.RunT(t)
	clients := []*redis.Client{
		redis.NewClient(&redis.Options{Addr: srv.Addr()}),
		redis.NewClient(&redis.Options{Addr: srv.Addr()}),
		redis.NewClient(&redis.Options{Addr: srv.Addr()}),
	}
	p := NewFromClients(map[store.Group][]*redis.Client{store.GroupStaff: clients})

	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		instance, idx, err := p.Random(store.GroupStaff)
		require.NoError(t, err)
		require.NotNil(t, instance)
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, len(clients))
		assert.Same(t, clients[idx], instance)
		seen[idx] = true
	}
	// 200 uniform draws over 3 instances hit every index in practice.
	assert.Len(t, seen, len(clients))
}

func TestClose(t *testing.T) {
	srv := miniredis.RunT(t)
	p := NewFromClients(map[store.Group][]*redis.Client{
		store.GroupStaff: {redis.NewClient(&redis.Options{Addr: srv.Addr()})},
	})
	assert.NoError(t, p.Close())
}
