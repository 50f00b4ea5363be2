// Package hooks implements the typed event bus for the Strata backend. Two
// registries share one shape: actions are fire-and-forget notifications
// dispatched in parallel by default, filters are sequential pipelines that
// thread a data map through every handler.
//
// Handlers run in priority order, highest first; ties are broken by a global
// registration index so equal-priority handlers keep FIFO order. Emits read a
// snapshot of the handler list taken at dispatch start, so registering or
// removing handlers during an in-flight emit is safe.
package hooks

import (
	"context"
	"reflect"
	"sort"
	"sync"
)

// Named priority levels.
const (
	PriorityLow      = 10
	PriorityNormal   = 50
	PriorityHigh     = 100
	PriorityCritical = 1000
)

// Error strategies for dispatch.
const (
	// StrategyContinue runs every handler and collects errors. Actions run
	// in parallel; a failing filter is skipped with its input preserved.
	StrategyContinue = "continue"

	// StrategyStop aborts at the first failing handler and surfaces its
	// error to the caller. Actions run sequentially under this strategy.
	StrategyStop = "stop"
)

// Payload is the context map handed to action handlers and threaded through
// filter chains.
type Payload map[string]interface{}

// Clone returns a shallow copy. Handlers that modify a payload should clone
// first so concurrent handlers never share writes.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ActionFunc is a fire-and-forget event handler.
type ActionFunc func(ctx context.Context, event string, payload Payload) error

// FilterFunc transforms a payload and returns the value handed to the next
// handler in the chain.
type FilterFunc func(ctx context.Context, event string, data Payload) (Payload, error)

// Options configure a handler registration.
type Options struct {
	// Priority orders dispatch, highest first. Zero means PriorityNormal.
	Priority int

	// Once removes the handler after its first execution.
	Once bool
}

// EmitOptions configure one dispatch.
type EmitOptions struct {
	// Strategy is StrategyContinue (default) or StrategyStop.
	Strategy string
}

// Result reports one dispatch: how many handlers ran and which failed.
type Result struct {
	Executed int
	Errors   []error
}

// Err returns the first collected error, or nil. Under StrategyStop this is
// the error that aborted the dispatch.
func (r Result) Err() error {
	if len(r.Errors) > 0 {
		return r.Errors[0]
	}
	return nil
}

const (
	kindAction = iota
	kindFilter
)

type handler struct {
	kind     int
	priority int
	index    uint64
	once     bool
	action   ActionFunc
	filter   FilterFunc
	// fn is the registered callback's pointer, used by Off to remove every
	// registration of the same function.
	fn uintptr
}

// Registry holds action and filter handlers per event name.
type Registry struct {
	mu        sync.RWMutex
	actions   map[string][]*handler
	filters   map[string][]*handler
	nextIndex uint64
}

// NewRegistry creates an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string][]*handler),
		filters: make(map[string][]*handler),
	}
}

// On registers an action handler and returns its unsubscribe closure.
func (r *Registry) On(event string, fn ActionFunc, opts Options) func() {
	h := &handler{
		kind:     kindAction,
		priority: normalizePriority(opts.Priority),
		once:     opts.Once,
		action:   fn,
		fn:       reflect.ValueOf(fn).Pointer(),
	}
	r.insert(r.actions, event, h)
	return func() { r.remove(r.actions, event, h) }
}

// AddFilter registers a filter handler and returns its unsubscribe closure.
func (r *Registry) AddFilter(event string, fn FilterFunc, opts Options) func() {
	h := &handler{
		kind:     kindFilter,
		priority: normalizePriority(opts.Priority),
		once:     opts.Once,
		filter:   fn,
		fn:       reflect.ValueOf(fn).Pointer(),
	}
	r.insert(r.filters, event, h)
	return func() { r.remove(r.filters, event, h) }
}

// Off removes every action handler for event whose callback is the given
// function. Repeated registrations of one callback are all dropped, so a
// plugin that registered the same function several times cannot leak copies.
func (r *Registry) Off(event string, fn ActionFunc) {
	r.removeByFn(r.actions, event, reflect.ValueOf(fn).Pointer())
}

// RemoveFilter removes every filter handler for event with the given callback.
func (r *Registry) RemoveFilter(event string, fn FilterFunc) {
	r.removeByFn(r.filters, event, reflect.ValueOf(fn).Pointer())
}

// Clear drops every registered handler.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = make(map[string][]*handler)
	r.filters = make(map[string][]*handler)
}

// HandlerCount reports registered action and filter counts for an event.
func (r *Registry) HandlerCount(event string) (actions, filters int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions[event]), len(r.filters[event])
}

// Emit dispatches an event to its action handlers.
//
// StrategyContinue runs all handlers concurrently and collects their errors;
// nothing is raised and every handler runs exactly once. StrategyStop runs
// sequentially in dispatch order and aborts at the first error, which becomes
// Result.Err().
//
// Once-handlers are removed after the whole dispatch completes, never during
// it, so a concurrent emit can never observe a half-pruned handler list.
func (r *Registry) Emit(ctx context.Context, event string, payload Payload, opts EmitOptions) Result {
	snapshot := r.snapshot(r.actions, event)
	if len(snapshot) == 0 {
		return Result{}
	}

	result := Result{}
	var executed []*handler

	if opts.Strategy == StrategyStop {
		for _, h := range snapshot {
			executed = append(executed, h)
			result.Executed++
			if err := h.action(ctx, event, payload); err != nil {
				result.Errors = append(result.Errors, err)
				break
			}
		}
	} else {
		var (
			wg   sync.WaitGroup
			emu  sync.Mutex
			errs []error
		)
		for _, h := range snapshot {
			executed = append(executed, h)
			result.Executed++
			wg.Add(1)
			go func(h *handler) {
				defer wg.Done()
				if err := h.action(ctx, event, payload); err != nil {
					emu.Lock()
					errs = append(errs, err)
					emu.Unlock()
				}
			}(h)
		}
		wg.Wait()
		result.Errors = errs
	}

	r.pruneOnce(r.actions, event, executed)
	return result
}

// Filter threads data through the filter chain for an event. Each handler's
// return value feeds the next. Under StrategyStop a failing handler aborts
// the chain; under StrategyContinue it is skipped and the data it received is
// passed on unchanged.
func (r *Registry) Filter(ctx context.Context, event string, data Payload, opts EmitOptions) (Payload, Result) {
	snapshot := r.snapshot(r.filters, event)
	if len(snapshot) == 0 {
		return data, Result{}
	}

	result := Result{}
	var executed []*handler

	current := data
	for _, h := range snapshot {
		executed = append(executed, h)
		result.Executed++
		next, err := h.filter(ctx, event, current)
		if err != nil {
			result.Errors = append(result.Errors, err)
			if opts.Strategy == StrategyStop {
				break
			}
			continue
		}
		current = next
	}

	r.pruneOnce(r.filters, event, executed)
	return current, result
}

func normalizePriority(p int) int {
	if p == 0 {
		return PriorityNormal
	}
	return p
}

func (r *Registry) insert(m map[string][]*handler, event string, h *handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h.index = r.nextIndex
	r.nextIndex++

	list := append(m[event], h)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority > list[j].priority
		}
		return list[i].index < list[j].index
	})
	m[event] = list
}

// snapshot copies the handler list so dispatch never holds the lock while
// handlers run.
func (r *Registry) snapshot(m map[string][]*handler, event string) []*handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := m[event]
	if len(list) == 0 {
		return nil
	}
	out := make([]*handler, len(list))
	copy(out, list)
	return out
}

func (r *Registry) remove(m map[string][]*handler, event string, target *handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := m[event]
	for i, h := range list {
		if h == target {
			m[event] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (r *Registry) removeByFn(m map[string][]*handler, event string, fn uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := m[event][:0]
	for _, h := range m[event] {
		if h.fn != fn {
			list = append(list, h)
		}
	}
	m[event] = list
}

// pruneOnce removes the once-handlers among the executed set after dispatch.
func (r *Registry) pruneOnce(m map[string][]*handler, event string, executed []*handler) {
	var once []*handler
	for _, h := range executed {
		if h.once {
			once = append(once, h)
		}
	}
	if len(once) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	list := m[event][:0]
	for _, h := range m[event] {
		pruned := false
		for _, o := range once {
			if h == o {
				pruned = true
				break
			}
		}
		if !pruned {
			list = append(list, h)
		}
	}
	m[event] = list
}
