// AngelaMos | 2026
// mirror.go

// Package mirror is the client-held view of the funnel. A Mirror
// hydrates once from the server, then applies merge-updates as
// transition responses and SSE frames arrive. Fetch failures resolve
// to the last-known-good view, or the VISITOR default before any
// hydration succeeds.
package mirror

import (
	"context"
	"log/slog"
	"reflect"
	"sync"

	"github.com/angelamos/tenfold/internal/funnel"
)

// StateFetcher loads the authoritative snapshot; in-process callers
// hand the engine straight in, remote clients an HTTP adapter.
type StateFetcher interface {
	Snapshot(ctx context.Context, authID string) (*funnel.Snapshot, error)
}

// Transition is what listeners receive: the state the mirror left, the
// state it entered, and the merged document. From equals To for
// metadata-only updates and for the catch-up delivery on Subscribe.
type Transition struct {
	From     funnel.State
	To       funnel.State
	Metadata funnel.Metadata
}

// Listener observes state changes. Listeners run synchronously inside
// Update, so by the time Update returns every listener has seen the
// new view.
type Listener func(t Transition)

type View struct {
	State    funnel.State
	Metadata funnel.Metadata
}

func visitorView() View {
	metadata := funnel.Metadata{}
	metadata.StampAllowedTransitions(funnel.StateVisitor)
	return View{State: funnel.StateVisitor, Metadata: metadata}
}

type Mirror struct {
	fetcher StateFetcher
	logger  *slog.Logger

	mu        sync.RWMutex
	view      View
	hydrated  bool
	listeners []Listener
}

func New(fetcher StateFetcher, logger *slog.Logger) *Mirror {
	return &Mirror{
		fetcher: fetcher,
		logger:  logger,
		view:    visitorView(),
	}
}

// Init hydrates the mirror from the server. A failed fetch keeps the
// current view (VISITOR on first call) and reports hydrated=false so
// the caller can retry; it never surfaces as an error view.
func (m *Mirror) Init(ctx context.Context, authID string) bool {
	snapshot, err := m.fetcher.Snapshot(ctx, authID)
	if err != nil {
		m.logger.Warn("mirror hydration failed, keeping current view",
			"auth_id", authID,
			"error", err,
		)
		return false
	}

	m.apply(View{State: snapshot.State, Metadata: snapshot.Metadata.Clone()})

	m.mu.Lock()
	m.hydrated = true
	m.mu.Unlock()

	return true
}

// Update merges a server-sent view into the mirror. The metadata merge
// follows the server's rule: field-wise within a namespace, omitted
// keys kept. Listeners fire only when the view actually changed.
func (m *Mirror) Update(state funnel.State, patch funnel.Metadata) {
	m.mu.Lock()
	from := m.view.State
	merged := m.view.Metadata.Merge(patch)
	changed := state != from || !metadataEqual(m.view.Metadata, merged)
	m.view = View{State: state, Metadata: merged}
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	if !changed {
		return
	}

	m.notify(listeners, Transition{From: from, To: state, Metadata: merged})
}

// Subscribe registers a listener and immediately delivers the current
// view, so a late subscriber never misses the state it attached at.
func (m *Mirror) Subscribe(listener Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, listener)
	current := m.view
	m.mu.Unlock()

	listener(Transition{
		From:     current.State,
		To:       current.State,
		Metadata: current.Metadata,
	})
}

func (m *Mirror) Current() View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return View{State: m.view.State, Metadata: m.view.Metadata.Clone()}
}

func (m *Mirror) Hydrated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hydrated
}

// Reset drops the mirror back to the anonymous VISITOR view, used on
// sign-out.
func (m *Mirror) Reset() {
	m.mu.Lock()
	from := m.view.State
	m.view = visitorView()
	m.hydrated = false
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	current := m.view
	m.mu.Unlock()

	m.notify(listeners, Transition{
		From:     from,
		To:       current.State,
		Metadata: current.Metadata,
	})
}

func (m *Mirror) apply(next View) {
	m.mu.Lock()
	from := m.view.State
	m.view = next
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	m.notify(listeners, Transition{
		From:     from,
		To:       next.State,
		Metadata: next.Metadata,
	})
}

func (m *Mirror) notify(listeners []Listener, t Transition) {
	for _, listener := range listeners {
		listener(t)
	}
}

// metadataEqual compares documents structurally; values can hold
// nested maps and slices (allowed_transitions), so DeepEqual is the
// only honest comparison.
func metadataEqual(a, b funnel.Metadata) bool {
	return reflect.DeepEqual(map[string]any(a), map[string]any(b))
}
