package timer

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

// ChangeListener is told about every committed mutation, after the group lock
// has been released. Calls for the same group may arrive out of order under
// concurrent writers; Snapshot.Version orders them.
type ChangeListener interface {
	GroupChanged(snap Snapshot)
}

// Snapshot is an immutable copy of a group's state at one version.
type Snapshot struct {
	GroupID   string
	Status    TimerStatus
	StartTime time.Time
	StopTime  time.Time
	UpdatedAt time.Time
	Version   uint64
	Segments  []Segment
}

// Group is the reconciled timer state for one group id.
//
// A single mutex guards every field. Each committed mutation bumps version by
// one and closes the current changed channel, waking all long-poll waiters.
type Group struct {
	id       string
	clock    Clock
	listener ChangeListener

	mu        sync.Mutex
	status    TimerStatus
	startTime time.Time
	stopTime  time.Time
	ledger    Ledger
	version   uint64
	updatedAt time.Time
	changed   chan struct{}
}

// NewGroup creates an empty, stopped group.
func NewGroup(id string, clock Clock) *Group {
	return newGroup(id, clock, nil)
}

func newGroup(id string, clock Clock, listener ChangeListener) *Group {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Group{
		id:        id,
		clock:     clock,
		listener:  listener,
		status:    StatusStopped,
		updatedAt: clock.Now().Truncate(time.Millisecond),
		changed:   make(chan struct{}),
	}
}

// ID returns the group id.
func (g *Group) ID() string {
	return g.id
}

// Snapshot returns a copy of the current state.
func (g *Group) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

// Version returns the current update version.
func (g *Group) Version() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.version
}

// UpdatedAt returns the time of the last committed mutation, or the creation
// time for a group that was never mutated.
func (g *Group) UpdatedAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.updatedAt
}

// Start marks the group as running from t. A group that is already running
// only moves its start forward, so concurrent starts converge on the latest.
func (g *Group) Start(t time.Time) Snapshot {
	snap, _ := g.apply("start", func() error {
		if g.status == StatusRunning {
			if t.After(g.startTime) {
				g.startTime = t
			}
			return nil
		}
		g.status = StatusRunning
		g.startTime = t
		g.ledger.Invalidate()
		return nil
	})
	return snap
}

// Stop ends the current run at t and records the final segment. A group that
// is already stopped only moves its stop backward, so the first reported
// finish wins.
func (g *Group) Stop(t time.Time) Snapshot {
	snap, _ := g.apply("stop", func() error {
		if g.status == StatusStopped {
			if g.stopTime.IsZero() || t.Before(g.stopTime) {
				g.stopTime = t
			}
			return nil
		}
		g.status = StatusStopped
		g.stopTime = t
		// FirstUnset is always within [0, Len], so Record cannot fail here.
		return g.ledger.Record(g.ledger.FirstUnset(), t, "", g.startTime)
	})
	return snap
}

// Prepare arms the group for a fresh run without dropping best records.
func (g *Group) Prepare() Snapshot {
	snap, _ := g.apply("prepare", func() error {
		g.status = StatusPrepared
		g.ledger.Invalidate()
		return nil
	})
	return snap
}

// Reset returns the group to stopped with both times set to now.
func (g *Group) Reset() Snapshot {
	snap, _ := g.apply("reset", func() error {
		now := g.clock.Now()
		g.status = StatusStopped
		g.startTime = now
		g.stopTime = now
		g.ledger.Invalidate()
		return nil
	})
	return snap
}

// RecordSegment stores a lap crossing. It fails with ErrSegmentIndexOutOfRange
// when index is past the end of the sequence; a rejected call does not bump
// the version.
func (g *Group) RecordSegment(index int, t time.Time, name string) (Snapshot, error) {
	return g.apply("segment", func() error {
		return g.ledger.Record(index, t, name, g.startTime)
	})
}

// ClearSegments drops every segment and its history.
func (g *Group) ClearSegments() Snapshot {
	snap, _ := g.apply("clear_segments", func() error {
		g.ledger.Clear()
		return nil
	})
	return snap
}

// WaitForChange returns as soon as the group's version differs from known.
// If the caller is already stale it returns immediately; otherwise it blocks
// until the next committed mutation or until ctx is done, in which case it
// returns ctx.Err() and no snapshot.
func (g *Group) WaitForChange(ctx context.Context, known uint64) (Snapshot, error) {
	return g.wait(ctx, func() bool { return g.version != known })
}

// WaitForChangeSince is WaitForChange for callers that track the last update
// time instead of the version.
func (g *Group) WaitForChangeSince(ctx context.Context, since time.Time) (Snapshot, error) {
	return g.wait(ctx, func() bool { return g.updatedAt.After(since) })
}

// wait evaluates stale under the lock, then blocks on the changed channel
// without holding it.
func (g *Group) wait(ctx context.Context, stale func() bool) (Snapshot, error) {
	g.mu.Lock()
	if stale() {
		snap := g.snapshotLocked()
		g.mu.Unlock()
		return snap, nil
	}
	changed := g.changed
	g.mu.Unlock()

	select {
	case <-changed:
		return g.Snapshot(), nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// apply runs fn under the lock and, if it succeeds, commits a new version.
// Waiters and the listener are notified after the lock is released.
func (g *Group) apply(op string, fn func() error) (Snapshot, error) {
	g.mu.Lock()
	if err := fn(); err != nil {
		g.mu.Unlock()
		log.Debug().Err(err).Str("group_id", g.id).Str("op", op).Msg("mutation rejected")
		return Snapshot{}, err
	}
	g.version++
	g.updatedAt = nextUpdatedAt(g.updatedAt, g.clock.Now())
	changed := g.changed
	g.changed = make(chan struct{})
	snap := g.snapshotLocked()
	g.mu.Unlock()

	close(changed)

	log.Debug().
		Str("group_id", g.id).
		Str("op", op).
		Str("status", snap.Status.String()).
		Uint64("update_id", snap.Version).
		Msg("group updated")

	if g.listener != nil {
		g.listener.GroupChanged(snap)
	}
	return snap, nil
}

// nextUpdatedAt keeps updatedAt at the millisecond precision clients see on
// the wire and strictly increasing, so an echoed update_time only matches the
// version it was read from.
func nextUpdatedAt(prev, now time.Time) time.Time {
	now = now.Truncate(time.Millisecond)
	if !now.After(prev) {
		return prev.Add(time.Millisecond)
	}
	return now
}

func (g *Group) snapshotLocked() Snapshot {
	return Snapshot{
		GroupID:   g.id,
		Status:    g.status,
		StartTime: g.startTime,
		StopTime:  g.stopTime,
		UpdatedAt: g.updatedAt,
		Version:   g.version,
		Segments:  g.ledger.Segments(),
	}
}
