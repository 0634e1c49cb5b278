package timer

import (
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jonboulle/clockwork"
)

const defaultShardCount = 32

// RegistryConfig describes how a Registry creates and stores groups.
type RegistryConfig struct {
	Clock Clock
	// ShardCount is the number of independently locked maps. Ids are spread
	// across shards by xxhash, so first touches of different ids rarely
	// contend.
	ShardCount int
	// Listener, if set, is attached to every group the registry creates.
	Listener ChangeListener
}

// Registry maps group ids to their state. Groups are created on first
// reference and only removed by Sweep.
type Registry struct {
	clock    Clock
	listener ChangeListener
	shards   []*registryShard
}

type registryShard struct {
	mu     sync.Mutex
	groups map[string]*Group
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = defaultShardCount
	}

	shards := make([]*registryShard, cfg.ShardCount)
	for i := range shards {
		shards[i] = &registryShard{groups: make(map[string]*Group)}
	}
	return &Registry{
		clock:    cfg.Clock,
		listener: cfg.Listener,
		shards:   shards,
	}
}

func (r *Registry) shardFor(id string) *registryShard {
	return r.shards[xxhash.Sum64String(id)%uint64(len(r.shards))]
}

// GetOrCreate returns the group for id, creating an empty one if needed.
// Concurrent first touches of the same id receive the same instance.
func (r *Registry) GetOrCreate(id string) *Group {
	shard := r.shardFor(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if g, ok := shard.groups[id]; ok {
		return g
	}
	g := newGroup(id, r.clock, r.listener)
	shard.groups[id] = g
	return g
}

// Get returns the group for id without creating it.
func (r *Registry) Get(id string) (*Group, bool) {
	shard := r.shardFor(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	g, ok := shard.groups[id]
	return g, ok
}

// Len returns the number of live groups.
func (r *Registry) Len() int {
	n := 0
	for _, shard := range r.shards {
		shard.mu.Lock()
		n += len(shard.groups)
		shard.mu.Unlock()
	}
	return n
}

// Sweep removes every group whose last change is before cutoff and returns
// the removed ids. Callers still holding a removed *Group keep a working,
// detached instance.
func (r *Registry) Sweep(cutoff time.Time) []string {
	var evicted []string
	for _, shard := range r.shards {
		shard.mu.Lock()
		for id, g := range shard.groups {
			if g.UpdatedAt().Before(cutoff) {
				delete(shard.groups, id)
				evicted = append(evicted, id)
			}
		}
		shard.mu.Unlock()
	}
	sort.Strings(evicted)
	return evicted
}
