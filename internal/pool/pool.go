// Package pool owns the long-lived store connections for every instance
// group. Connections are built once at process start and shared by all
// requests for the process lifetime.
package pool

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/school-platform/attendance-service/internal/config"
	"github.com/school-platform/attendance-service/internal/loggingclient"
	"github.com/school-platform/attendance-service/internal/store"
)

// InstancePool holds, per group, the ordered list of live connections.
type InstancePool struct {
	mu        sync.RWMutex
	instances map[store.Group][]*redis.Client
	logger    *loggingclient.Client
}

// New builds one client per configured URL in every group. A group with zero
// configured instances is a configuration error and fails construction.
func New(cfg config.GroupsConfig, logger *loggingclient.Client) (*InstancePool, error) {
	if logger == nil {
		logger = loggingclient.NewNoop()
	}

	instances := make(map[store.Group][]*redis.Client, len(cfg.URLs))
	for group, urls := range cfg.URLs {
		if len(urls) == 0 {
			return nil, store.WrapError(store.ErrBadConfig,
				fmt.Sprintf("group %q has no configured instances", group), nil)
		}
		clients := make([]*redis.Client, 0, len(urls))
		for _, url := range urls {
			opts, err := redis.ParseURL(url)
			if err != nil {
				return nil, store.WrapError(store.ErrBadConfig,
					fmt.Sprintf("group %q has an invalid instance URL", group), err)
			}
			opts.PoolSize = cfg.PoolSize
			opts.DialTimeout = cfg.DialTimeout
			opts.ReadTimeout = cfg.ReadTimeout
			opts.WriteTimeout = cfg.WriteTimeout
			clients = append(clients, redis.NewClient(opts))
		}
		instances[group] = clients
	}

	logger.Info(context.Background(), "instance pool constructed",
		loggingclient.Int("groups", len(instances)),
	)

	return &InstancePool{
		instances: instances,
		logger:    logger,
	}, nil
}

// NewFromClients builds a pool around pre-built clients, used by tests.
func NewFromClients(instances map[store.Group][]*redis.Client) *InstancePool {
	return &InstancePool{
		instances: instances,
		logger:    loggingclient.NewNoop(),
	}
}

// Instances returns the ordered connection list for a group. Every defined
// group is non-empty; an unknown or empty group is a configuration error.
func (p *InstancePool) Instances(group store.Group) ([]*redis.Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	clients, ok := p.instances[group]
	if !ok || len(clients) == 0 {
		return nil, store.WrapError(store.ErrBadConfig,
			fmt.Sprintf("group %q has no configured instances", group), nil)
	}
	return clients, nil
}

// Random returns one instance of the group chosen uniformly at random,
// together with its index. Selection is independent per call; there is no
// session affinity.
func (p *InstancePool) Random(group store.Group) (*redis.Client, int, error) {
	clients, err := p.Instances(group)
	if err != nil {
		return nil, 0, err
	}
	i := rand.Intn(len(clients))
	return clients[i], i, nil
}

// Size returns the number of instances configured for a group.
func (p *InstancePool) Size(group store.Group) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.instances[group])
}

// Close closes every connection in every group.
func (p *InstancePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, clients := range p.instances {
		for _, c := range clients {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
