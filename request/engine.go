package request

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
)

// Store persists requests. expected is the status the caller last observed,
// empty for a request that has never been saved. Implementations return an
// error matching ErrConflict when the stored status differs.
type Store interface {
	Save(ctx context.Context, r *Request, expected Status) error
}

// Getter is implemented by stores that can read a request back. The engine
// uses it to report the stored status after a lost update race.
type Getter interface {
	Get(ctx context.Context, id string) (*Request, error)
}

// Engine applies lifecycle transitions and hands the results to a Store.
// It never retries a save.
type Engine struct {
	store Store
	now   func() time.Time
}

type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an engine saving to store. A nil store keeps everything
// in memory.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{store: store, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create builds a new request from partial data and saves it.
func (e *Engine) Create(ctx context.Context, partial Fields) (*Request, error) {
	r := create(partial, e.now())
	return e.save(ctx, r, "", ActionCreate)
}

// FromLegacy migrates a legacy shaped request and saves it.
func (e *Engine) FromLegacy(ctx context.Context, old Fields) (*Request, error) {
	r := fromLegacy(old, e.now())
	return e.save(ctx, r, "", ActionCreate)
}

func (e *Engine) Accept(ctx context.Context, r *Request, collectorID string, location *Coordinates) (*Request, error) {
	out, err := Accept(r, collectorID, location, e.now())
	if err != nil {
		return nil, err
	}
	return e.save(ctx, out, r.Status, ActionAccept)
}

func (e *Engine) Start(ctx context.Context, r *Request) (*Request, error) {
	out, err := Start(r, e.now())
	if err != nil {
		return nil, err
	}
	return e.save(ctx, out, r.Status, ActionStart)
}

func (e *Engine) Complete(ctx context.Context, r *Request, ev Evidence) (*Request, error) {
	out, err := Complete(r, ev, e.now())
	if err != nil {
		return nil, err
	}
	return e.save(ctx, out, r.Status, ActionComplete)
}

func (e *Engine) Cancel(ctx context.Context, r *Request, reason string) (*Request, error) {
	out, err := Cancel(r, reason, e.now())
	if err != nil {
		return nil, err
	}
	return e.save(ctx, out, r.Status, ActionCancel)
}

func (e *Engine) Dispose(ctx context.Context, r *Request, facilityID, notes string) (*Request, error) {
	out, err := Dispose(r, facilityID, notes, e.now())
	if err != nil {
		return nil, err
	}
	return e.save(ctx, out, r.Status, ActionDispose)
}

// ActionCreate labels saves of new requests. It is not a transition.
const ActionCreate Action = "create"

// save persists r. A conflict means another writer moved the request first
// and is reported as an invalid transition. Other failures are returned
// together with r: the mutation stands in memory and the store decides how
// to mark it for sync.
func (e *Engine) save(ctx context.Context, r *Request, expected Status, a Action) (*Request, error) {
	if e.store == nil {
		return r, nil
	}
	err := e.store.Save(ctx, r, expected)
	if err == nil {
		return r, nil
	}
	if errors.Is(err, ErrConflict) {
		log.WithFields(log.Fields{"id": r.ID, "action": a}).Warnf("Lost update race: %v", err)
		return nil, &InvalidTransitionError{Current: e.storedStatus(ctx, r.ID, expected), Action: a, Reason: ErrConflict.Error()}
	}
	log.WithFields(log.Fields{"id": r.ID, "action": a}).Errorf("Failed to save request: %v", err)
	return r, fmt.Errorf("%w: %w", ErrPersist, err)
}

// storedStatus returns the status the store holds for id, or fallback when
// the store cannot say.
func (e *Engine) storedStatus(ctx context.Context, id string, fallback Status) Status {
	g, ok := e.store.(Getter)
	if !ok {
		return fallback
	}
	stored, err := g.Get(ctx, id)
	if err != nil || stored == nil {
		log.WithField("id", id).Warnf("Failed to read back request after conflict: %v", err)
		return fallback
	}
	return stored.Status
}
