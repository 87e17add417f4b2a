package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"

	"trashdrop/cache"
	"trashdrop/db"
	"trashdrop/metrics"
	"trashdrop/request"
)

// Remote is the shared store, db.Store in production.
type Remote interface {
	Save(ctx context.Context, r *request.Request, expected request.Status) error
	Get(ctx context.Context, id string) (*request.Request, error)
	List(ctx context.Context, f db.Filter) ([]*request.Request, error)
}

// Local is the on-device cache, cache.Cache in production.
type Local interface {
	Put(ctx context.Context, r *request.Request, sync request.SyncStatus, base request.Status) error
	CompareAndPut(ctx context.Context, r *request.Request, expected request.Status, sync request.SyncStatus) error
	Get(ctx context.Context, id string) (*cache.Entry, error)
	List(ctx context.Context, f db.Filter) ([]*request.Request, error)
	ListBySync(ctx context.Context, sync request.SyncStatus) ([]*cache.Entry, error)
	MarkSync(ctx context.Context, id string, sync request.SyncStatus, base request.Status) error
}

// How many remote requests a reconciliation pass pulls into the cache.
const pullLimit = 500

// Store writes locally first and pushes to the remote store on a best-effort
// basis. It implements request.Store. A nil remote makes the cache the
// system of record.
type Store struct {
	local  Local
	remote Remote
}

func New(local Local, remote Remote) *Store {
	return &Store{local: local, remote: remote}
}

// Save applies a compare-and-swap against the cached copy, then pushes. An
// unreachable remote leaves the entry pending and is not an error; a remote
// conflict is.
func (s *Store) Save(ctx context.Context, r *request.Request, expected request.Status) error {
	base := expected
	if expected != "" {
		if e, err := s.local.Get(ctx, r.ID); err == nil {
			base = e.BaseStatus
		}
	}

	err := s.local.CompareAndPut(ctx, r, expected, request.SyncPending)
	if errors.Is(err, request.ErrNotFound) {
		// Known to the caller but never cached.
		err = s.local.Put(ctx, r, request.SyncPending, expected)
	}
	if err != nil {
		return err
	}

	if s.remote == nil {
		return s.local.MarkSync(ctx, r.ID, request.SyncSynced, r.Status)
	}
	return s.push(ctx, r, base)
}

func (s *Store) push(ctx context.Context, r *request.Request, base request.Status) error {
	out := r.Clone()
	out.SyncStatus = request.SyncSynced
	err := s.remote.Save(ctx, out, base)
	switch {
	case err == nil:
		metrics.SyncTotal.WithLabelValues("synced").Inc()
		return s.local.MarkSync(ctx, r.ID, request.SyncSynced, r.Status)
	case errors.Is(err, request.ErrConflict):
		metrics.SyncTotal.WithLabelValues("conflict").Inc()
		log.WithFields(log.Fields{"id": r.ID, "base": base}).Warn("Remote store rejected request, taking remote copy")
		if rerr := s.resolve(ctx, r.ID); rerr != nil {
			log.Errorf("Failed to resolve conflict for %s: %v", r.ID, rerr)
		}
		return request.ErrConflict
	default:
		metrics.SyncTotal.WithLabelValues("offline").Inc()
		log.WithField("id", r.ID).Warnf("Remote store unavailable, keeping request pending: %v", err)
		return nil
	}
}

// resolve replaces the cached copy with the remote one. If that fails the
// entry is left marked as conflicting for the next pass.
func (s *Store) resolve(ctx context.Context, id string) error {
	remote, err := s.remote.Get(ctx, id)
	if err != nil {
		if merr := s.local.MarkSync(ctx, id, request.SyncConflict, ""); merr != nil {
			log.Errorf("Failed to mark %s as conflicting: %v", id, merr)
		}
		return err
	}
	return s.local.Put(ctx, remote, request.SyncSynced, remote.Status)
}

// Get reads the cache, falling back to the remote store on a miss.
func (s *Store) Get(ctx context.Context, id string) (*request.Request, error) {
	e, err := s.local.Get(ctx, id)
	if err == nil {
		return e.Request, nil
	}
	if !errors.Is(err, request.ErrNotFound) || s.remote == nil {
		return nil, err
	}
	r, err := s.remote.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.local.Put(ctx, r, request.SyncSynced, r.Status); err != nil {
		log.Warnf("Failed to cache request %s: %v", id, err)
	}
	return r, nil
}

// List reads the cache, falling back to the remote store when the cache has
// nothing matching.
func (s *Store) List(ctx context.Context, f db.Filter) ([]*request.Request, error) {
	reqs, err := s.local.List(ctx, f)
	if err != nil {
		log.Warnf("Cache list failed: %v", err)
	}
	if len(reqs) > 0 || s.remote == nil {
		return reqs, err
	}
	remote, rerr := s.remote.List(ctx, f)
	if rerr != nil {
		if err != nil {
			return nil, err
		}
		log.Warnf("Remote list failed: %v", rerr)
		return reqs, nil
	}
	for _, r := range remote {
		if err := s.local.Put(ctx, r, request.SyncSynced, r.Status); err != nil {
			log.Warnf("Failed to cache request %s: %v", r.ID, err)
		}
	}
	return remote, nil
}

// Report summarizes a reconciliation pass.
type Report struct {
	Pushed   int
	Resolved int
	Pulled   int
	Pending  int
}

// Reconcile pushes pending entries, resolves conflicts with the remote copy
// and refreshes synced entries from the remote store. It stops at the first
// push that fails for a reason other than a conflict, since the remote is
// then most likely down.
func (s *Store) Reconcile(ctx context.Context) (Report, error) {
	var rep Report
	if s.remote == nil {
		return rep, nil
	}
	defer metrics.SyncLastRunSeconds.Set(metrics.NowUnixSeconds())

	pending, err := s.local.ListBySync(ctx, request.SyncPending)
	if err != nil {
		return rep, err
	}
	rep.Pending = len(pending)
	for _, e := range pending {
		out := e.Request.Clone()
		out.SyncStatus = request.SyncSynced
		err := s.remote.Save(ctx, out, e.BaseStatus)
		switch {
		case err == nil:
			metrics.SyncTotal.WithLabelValues("synced").Inc()
			if err := s.local.MarkSync(ctx, e.Request.ID, request.SyncSynced, e.Request.Status); err != nil {
				return rep, err
			}
			rep.Pushed++
			rep.Pending--
		case errors.Is(err, request.ErrConflict):
			metrics.SyncTotal.WithLabelValues("conflict").Inc()
			if err := s.resolve(ctx, e.Request.ID); err == nil {
				rep.Resolved++
				rep.Pending--
			}
		default:
			metrics.SyncTotal.WithLabelValues("offline").Inc()
			metrics.SyncPending.Set(float64(rep.Pending))
			return rep, fmt.Errorf("push %s: %w", e.Request.ID, err)
		}
	}
	metrics.SyncPending.Set(float64(rep.Pending))

	conflicts, err := s.local.ListBySync(ctx, request.SyncConflict)
	if err != nil {
		return rep, err
	}
	for _, e := range conflicts {
		if err := s.resolve(ctx, e.Request.ID); err != nil {
			return rep, fmt.Errorf("resolve %s: %w", e.Request.ID, err)
		}
		rep.Resolved++
	}

	remote, err := s.remote.List(ctx, db.Filter{Limit: pullLimit})
	if err != nil {
		return rep, err
	}
	for _, r := range remote {
		e, err := s.local.Get(ctx, r.ID)
		if err == nil && e.SyncStatus != request.SyncSynced {
			continue
		}
		if err := s.local.Put(ctx, r, request.SyncSynced, r.Status); err != nil {
			return rep, err
		}
		rep.Pulled++
	}
	return rep, nil
}

// Run reconciles every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if s.remote == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rep, err := s.Reconcile(ctx)
			if err != nil {
				log.Warnf("Reconciliation stopped early: %v", err)
			}
			if rep.Pushed+rep.Resolved > 0 || rep.Pending > 0 {
				log.Infof("Reconciled: pushed=%d resolved=%d pulled=%d pending=%d", rep.Pushed, rep.Resolved, rep.Pulled, rep.Pending)
			}
		}
	}
}
