package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestRegistryGetOrCreateReturnsSameGroup(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	a := r.GetOrCreate("alpha")
	b := r.GetOrCreate("alpha")
	if a != b {
		t.Fatal("GetOrCreate returned different instances for the same id")
	}
	if c := r.GetOrCreate("bravo"); c == a {
		t.Fatal("different ids share a group")
	}
	if n := r.Len(); n != 2 {
		t.Fatalf("Len = %d, want 2", n)
	}
}

func TestRegistryConcurrentFirstTouch(t *testing.T) {
	r := NewRegistry(RegistryConfig{ShardCount: 4})
	const callers = 64

	var wg sync.WaitGroup
	groups := make([]*Group, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			groups[i] = r.GetOrCreate("contended")
		}(i)
	}
	close(start)
	wg.Wait()

	for i, g := range groups {
		if g != groups[0] {
			t.Fatalf("caller %d got a different instance", i)
		}
	}
	if n := r.Len(); n != 1 {
		t.Fatalf("Len = %d, want 1", n)
	}
}

func TestRegistryGetDoesNotCreate(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	if _, ok := r.Get("ghost"); ok {
		t.Fatal("Get found a group that was never created")
	}
	if r.Len() != 0 {
		t.Fatal("Get created a group")
	}
}

func TestRegistryAttachesListener(t *testing.T) {
	listener := &recordingListener{}
	r := NewRegistry(RegistryConfig{Listener: listener})
	r.GetOrCreate("alpha").Prepare()
	if got := listener.versions(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("listener versions = %v, want [1]", got)
	}
}

func TestRegistrySweep(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(RegistryConfig{Clock: clock})

	stale := r.GetOrCreate("stale")
	clock.Advance(2 * time.Hour)
	r.GetOrCreate("fresh")

	evicted := r.Sweep(clock.Now().Add(-time.Hour))
	if len(evicted) != 1 || evicted[0] != "stale" {
		t.Fatalf("evicted = %v, want [stale]", evicted)
	}
	if _, ok := r.Get("stale"); ok {
		t.Fatal("stale group still registered")
	}
	if _, ok := r.Get("fresh"); !ok {
		t.Fatal("fresh group evicted")
	}

	// The detached instance keeps working for holders of the old pointer.
	stale.Start(clock.Now())
	if v := stale.Version(); v != 1 {
		t.Fatalf("detached group version = %d, want 1", v)
	}
	if again := r.GetOrCreate("stale"); again == stale || again.Version() != 0 {
		t.Fatal("re-touching an evicted id should create a fresh group")
	}
}
