package ows

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/constellation-sdi/constellation/internal/metrics"
)

// WorkerStatus summarizes a registered worker.
type WorkerStatus struct {
	Specification Specification `json:"specification"`
	ID            string        `json:"id"`
	State         string        `json:"state"`
	Versions      []string      `json:"versions"`
	Error         string        `json:"error,omitempty"`
}

// Engine is the registry of running workers, keyed by specification then
// instance id. It owns the capabilities cache the workers share.
type Engine struct {
	mu      sync.RWMutex
	workers map[Specification]map[string]*Worker
	cache   *CapabilitiesCache
}

// NewEngine creates an empty registry.
func NewEngine() *Engine {
	return &Engine{
		workers: make(map[Specification]map[string]*Worker),
		cache:   NewCapabilitiesCache(),
	}
}

// Cache returns the shared capabilities cache.
func (e *Engine) Cache() *CapabilitiesCache {
	return e.cache
}

// NewWorker constructs a worker on the shared cache and registers it.
func (e *Engine) NewWorker(cfg WorkerConfig) *Worker {
	w := NewWorker(cfg, e.cache)
	e.Register(w)
	return w
}

// Register adds w to the workers of its specification, replacing a worker
// with the same id. Other workers of the specification are kept.
func (e *Engine) Register(w *Worker) {
	e.mu.Lock()
	instances, ok := e.workers[w.spec]
	if !ok {
		instances = make(map[string]*Worker)
		e.workers[w.spec] = instances
	}
	previous := instances[w.id]
	instances[w.id] = w
	e.mu.Unlock()

	if previous != nil && previous != w {
		previous.Destroy()
	}
	e.updateGauge(w.spec)
}

// SetWorkers replaces every worker of spec. Replaced workers are destroyed.
func (e *Engine) SetWorkers(spec Specification, workers []*Worker) {
	next := make(map[string]*Worker, len(workers))
	for _, w := range workers {
		next[w.id] = w
	}

	e.mu.Lock()
	previous := e.workers[spec]
	e.workers[spec] = next
	e.mu.Unlock()

	for id, w := range previous {
		if next[id] != w {
			w.Destroy()
		}
	}
	e.updateGauge(spec)
}

// Get returns the worker of spec with id.
func (e *Engine) Get(spec Specification, id string) (*Worker, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, ok := e.workers[spec][id]
	return w, ok
}

// Exists reports whether a worker of spec with id is registered.
func (e *Engine) Exists(spec Specification, id string) bool {
	_, ok := e.Get(spec, id)
	return ok
}

// Specifications returns the specifications with at least one worker.
func (e *Engine) Specifications() []Specification {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Specification, 0, len(e.workers))
	for spec, instances := range e.workers {
		if len(instances) > 0 {
			out = append(out, spec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Instances returns the workers of spec ordered by id.
func (e *Engine) Instances(spec Specification) []*Worker {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*Worker, 0, len(e.workers[spec]))
	for _, w := range e.workers[spec] {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// DestroyAll destroys every worker of spec and forgets them.
func (e *Engine) DestroyAll(spec Specification) {
	e.mu.Lock()
	instances := e.workers[spec]
	delete(e.workers, spec)
	e.mu.Unlock()

	for _, w := range instances {
		w.Destroy()
	}
	e.updateGauge(spec)
	slog.Info("workers_destroyed",
		slog.String("specification", string(spec)),
		slog.Int("count", len(instances)))
}

// Shutdown destroys and removes one worker. It reports whether the worker
// was registered.
func (e *Engine) Shutdown(spec Specification, id string) bool {
	e.mu.Lock()
	w, ok := e.workers[spec][id]
	if ok {
		delete(e.workers[spec], id)
	}
	e.mu.Unlock()

	if !ok {
		return false
	}
	w.Destroy()
	e.updateGauge(spec)
	return true
}

// Close destroys every worker.
func (e *Engine) Close() {
	for _, spec := range e.Specifications() {
		e.DestroyAll(spec)
	}
}

// Status lists every worker ordered by specification and id.
func (e *Engine) Status() []WorkerStatus {
	var out []WorkerStatus
	for _, spec := range e.Specifications() {
		for _, w := range e.Instances(spec) {
			st := WorkerStatus{
				Specification: spec,
				ID:            w.id,
				State:         w.State().String(),
			}
			for _, v := range w.versions {
				st.Versions = append(st.Versions, v.String())
			}
			if err := w.StartError(); err != nil {
				st.Error = err.Error()
			}
			out = append(out, st)
		}
	}
	return out
}

func (e *Engine) updateGauge(spec Specification) {
	counts := map[State]int{}
	for _, w := range e.Instances(spec) {
		counts[w.State()]++
	}
	for _, s := range []State{StateNotStarted, StateStarted, StateError} {
		metrics.Workers.WithLabelValues(string(spec), s.String()).Set(float64(counts[s]))
	}
}
