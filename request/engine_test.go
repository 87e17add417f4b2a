package request

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memStore struct {
	mu   sync.Mutex
	reqs map[string]*Request
}

func newMemStore() *memStore {
	return &memStore{reqs: make(map[string]*Request)}
}

func (s *memStore) Save(_ context.Context, r *Request, expected Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reqs[r.ID]
	switch {
	case !ok && expected != "":
		return ErrNotFound
	case ok && cur.Status != expected:
		return ErrConflict
	}
	s.reqs[r.ID] = r.Clone()
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reqs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

type failingStore struct{ err error }

func (s failingStore) Save(context.Context, *Request, Status) error { return s.err }

func fixedClock() func() time.Time {
	return func() time.Time { return testNow }
}

func TestEngineLifecycle(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store, WithClock(fixedClock()))
	ctx := context.Background()

	r, err := e.Create(ctx, Fields{"user_id": "u1", "bags": 2})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !r.CreatedAt.Equal(testNow) {
		t.Errorf("Create: clock not used, got %v", r.CreatedAt)
	}
	if r, err = e.Accept(ctx, r, "c1", nil); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if r, err = e.Start(ctx, r); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if r, err = e.Complete(ctx, r, Evidence{Photos: []string{"p.jpg"}}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := store.reqs[r.ID].Status; got != StatusCompleted {
		t.Errorf("store: want completed, got %q", got)
	}
	if _, err := e.Cancel(ctx, r, "too late"); err == nil {
		t.Errorf("Cancel after completion: expected error")
	}
}

func TestEngineConcurrentAccept(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store)
	ctx := context.Background()

	r, err := e.FromLegacy(ctx, Fields{"name": "Ama", "lat": 5.6, "lng": -0.2, "bags": 1.0})
	if err != nil {
		t.Fatal(err)
	}

	collectors := []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7", "c8"}
	results := make([]error, len(collectors))
	var wg sync.WaitGroup
	for i, c := range collectors {
		wg.Add(1)
		go func(i int, c string) {
			defer wg.Done()
			_, results[i] = e.Accept(ctx, r, c, nil)
		}(i, c)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		var ite *InvalidTransitionError
		if !errors.As(err, &ite) {
			t.Errorf("concurrent accept: want InvalidTransitionError for loser, got %v", err)
			continue
		}
		if ite.Current != StatusAccepted {
			t.Errorf("concurrent accept: loser should see stored status accepted, got %q", ite.Current)
		}
	}
	if wins != 1 {
		t.Errorf("concurrent accept: want exactly one winner, got %d", wins)
	}
	stored := store.reqs[r.ID]
	if len(stored.ChainOfCustody) != 1 {
		t.Errorf("concurrent accept: want 1 custody entry, got %d", len(stored.ChainOfCustody))
	}
}

func TestEngineStoreErrors(t *testing.T) {
	ctx := context.Background()
	r := pendingRequest()

	e := NewEngine(failingStore{err: ErrConflict})
	got, err := e.Accept(ctx, r, "c1", nil)
	var ite *InvalidTransitionError
	if got != nil || !errors.As(err, &ite) {
		t.Errorf("conflicting store: want nil and InvalidTransitionError, got %v, %v", got, err)
	} else if ite.Current != StatusPending {
		t.Errorf("conflicting store without reads: want observed status, got %q", ite.Current)
	}

	boom := errors.New("disk full")
	e = NewEngine(failingStore{err: boom})
	got, err = e.Accept(ctx, r, "c1", nil)
	if !errors.Is(err, ErrPersist) || !errors.Is(err, boom) {
		t.Errorf("failing store: want ErrPersist wrapping cause, got %v", err)
	}
	if got == nil || got.Status != StatusAccepted {
		t.Errorf("failing store: want the mutated request returned, got %+v", got)
	}
}

func TestEngineWithoutStore(t *testing.T) {
	e := NewEngine(nil)
	r, err := e.Create(context.Background(), Fields{})
	if err != nil || r == nil {
		t.Fatalf("Create without store: %v", err)
	}
	if _, err := e.Start(context.Background(), r); err == nil {
		t.Errorf("Start on pending: expected error")
	}
}
