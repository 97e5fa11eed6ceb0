// Package reactive implements the InverseSpecificationEngine (spec.md
// §5): a process-wide registry of (specification, callback) listeners
// driving incremental re-evaluation when new facts are saved. A
// listener is registered against one invert.Inverse (a specification
// rooted at a single given label plus the add/remove operation that
// label's inversion carries) and is notified once per newly-saved fact
// whose type matches that given.
package reactive

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/sigilrun/sigilgraph/pkg/fact"
	"github.com/sigilrun/sigilgraph/pkg/spec/invert"
	"github.com/sigilrun/sigilgraph/pkg/spec/run"
)

// Callback receives the results produced by re-running a listener's
// inverse specification with a newly-saved fact bound to its given, and
// the operation (Add/Remove) that inversion determined. Callback I/O may
// suspend; the engine invokes callbacks for a given notification in
// registration order and waits for each to return before invoking the
// next, so a subscriber's ordering guarantee (spec.md §5 "callbacks are
// invoked in registration order") holds even when callbacks block.
type Callback func(ctx context.Context, results []run.Result, op invert.Operation) error

// listener is one registered entry. seq fixes registration order
// independent of the registry map's iteration order.
type listener struct {
	token      uuid.UUID
	subscriber string
	givenType  string
	inverse    invert.Inverse
	callback   Callback
	seq        uint64
}

// Engine is the InverseSpecificationEngine: a mutex-protected listener
// registry, matching the teacher's registry/engine shape (compliance/csr's
// InMemoryCSR Register/Unregister, authz.Engine's RWMutex-guarded map) but
// keyed by opaque uuid.UUID tokens rather than string ids, since
// deregistration here is driven by the caller holding a token rather than
// by a known name.
type Engine struct {
	mu        sync.RWMutex
	listeners map[uuid.UUID]*listener
	bySubject map[string]map[uuid.UUID]struct{}
	nextSeq   uint64
}

// NewEngine returns an empty Engine.
func NewEngine() *Engine {
	return &Engine{
		listeners: make(map[uuid.UUID]*listener),
		bySubject: make(map[string]map[uuid.UUID]struct{}),
	}
}

// Register adds a listener for inv under subscriber's ownership and
// returns an opaque deregistration token. subscriber identifies the
// connection or session that owns the token, so Release can remove every
// token it holds at once on disconnect (spec.md §5: "on disconnect the
// core removes every registered token for that subscriber
// deterministically").
func (e *Engine) Register(subscriber string, inv invert.Inverse, cb Callback) uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()

	token := uuid.New()
	e.nextSeq++
	l := &listener{
		token:      token,
		subscriber: subscriber,
		givenType:  inv.Specification.Given[0].Type,
		inverse:    inv,
		callback:   cb,
		seq:        e.nextSeq,
	}
	e.listeners[token] = l
	if e.bySubject[subscriber] == nil {
		e.bySubject[subscriber] = make(map[uuid.UUID]struct{})
	}
	e.bySubject[subscriber][token] = struct{}{}
	return token
}

// Deregister removes a single token, a no-op if it's already gone.
func (e *Engine) Deregister(token uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remove(token)
}

// Release removes every token subscriber currently holds, in response
// to that subscriber disconnecting.
func (e *Engine) Release(subscriber string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for token := range e.bySubject[subscriber] {
		e.remove(token)
	}
	delete(e.bySubject, subscriber)
}

// remove deletes token from both indexes; callers hold e.mu.
func (e *Engine) remove(token uuid.UUID) {
	l, ok := e.listeners[token]
	if !ok {
		return
	}
	delete(e.listeners, token)
	if set := e.bySubject[l.subscriber]; set != nil {
		delete(set, token)
	}
}

// NotifySaved evaluates every listener whose given type matches f's type
// against source with f bound to that given, invoking each callback in
// registration order. A callback error aborts the remaining callbacks
// for this notification and is returned to the caller; earlier callbacks
// have already run and are not rolled back, matching the cooperative,
// non-transactional scheduling model of spec.md §5.
func (e *Engine) NotifySaved(ctx context.Context, source run.FactSource, f *fact.Fact) error {
	matched := e.matching(f.Type)

	runner := run.New(source)
	for _, l := range matched {
		results, err := runner.Read(ctx, l.inverse.Specification, []fact.Reference{f.Reference()})
		if err != nil {
			return err
		}
		if err := l.callback(ctx, results, l.inverse.Operation); err != nil {
			return err
		}
	}
	return nil
}

// matching returns every currently-registered listener whose given type
// equals typeName, ordered by registration sequence.
func (e *Engine) matching(typeName string) []*listener {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []*listener
	for _, l := range e.listeners {
		if l.givenType == typeName {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Count reports how many listeners are currently registered, for
// diagnostics and tests.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}
