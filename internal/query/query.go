// Package query answers "what is the state of this queue" uniformly across
// every backend kind. Reads are never retried; backend failures surface as
// *store.BackendError.
package query

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"jobdeck/internal/store"
)

// ErrUnknownNamespace is returned for a namespace no backend is registered under.
var ErrUnknownNamespace = errors.New("unknown namespace")

// Facade routes reads and enqueues to the backend registered for a namespace.
type Facade struct {
	backends map[string]store.Backend
	names    []string
}

// New indexes backends by namespace. Two backends may not share a namespace.
func New(backends ...store.Backend) (*Facade, error) {
	f := &Facade{backends: make(map[string]store.Backend, len(backends))}
	for _, b := range backends {
		ns := b.Namespace()
		if _, dup := f.backends[ns]; dup {
			return nil, fmt.Errorf("namespace %q registered twice", ns)
		}
		f.backends[ns] = b
		f.names = append(f.names, ns)
	}
	sort.Strings(f.names)
	return f, nil
}

// Namespaces lists registered namespaces in lexical order.
func (f *Facade) Namespaces() []string {
	return slices.Clone(f.names)
}

// Backend returns the backend serving ns.
func (f *Facade) Backend(ns string) (store.Backend, error) {
	b, ok := f.backends[ns]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNamespace, ns)
	}
	return b, nil
}

// Stats returns a fresh snapshot of ns.
func (f *Facade) Stats(ctx context.Context, ns string) (store.Stat, error) {
	b, err := f.Backend(ns)
	if err != nil {
		return store.Stat{}, err
	}
	return b.Stats(ctx)
}

// ListJobs returns one 1-indexed page of jobs in state. Out-of-range pages are empty.
func (f *Facade) ListJobs(ctx context.Context, ns string, state store.JobState, page int) (store.JobPage, error) {
	b, err := f.Backend(ns)
	if err != nil {
		return store.JobPage{}, err
	}
	return b.ListJobs(ctx, state, page)
}

// ListWorkers returns the live worker roster of ns.
func (f *Facade) ListWorkers(ctx context.Context, ns string) ([]store.Worker, error) {
	b, err := f.Backend(ns)
	if err != nil {
		return nil, err
	}
	return b.ListWorkers(ctx)
}

// Push enqueues a job into ns.
func (f *Facade) Push(ctx context.Context, ns string, req store.PushRequest) (*store.Job, error) {
	b, err := f.Backend(ns)
	if err != nil {
		return nil, err
	}
	return b.Push(ctx, req)
}

// Get fetches one job of ns.
func (f *Facade) Get(ctx context.Context, ns, id string) (*store.Job, error) {
	b, err := f.Backend(ns)
	if err != nil {
		return nil, err
	}
	return b.FetchByID(ctx, id)
}

// Overview is the stats plus one listing page of a namespace.
type Overview struct {
	Stats store.Stat
	Page  store.JobPage
}

// Overview reads stats and a listing page. The two reads are separate snapshots.
func (f *Facade) Overview(ctx context.Context, ns string, state store.JobState, page int) (Overview, error) {
	b, err := f.Backend(ns)
	if err != nil {
		return Overview{}, err
	}
	stats, err := b.Stats(ctx)
	if err != nil {
		return Overview{}, err
	}
	jobs, err := b.ListJobs(ctx, state, page)
	if err != nil {
		return Overview{}, err
	}
	return Overview{Stats: stats, Page: jobs}, nil
}
