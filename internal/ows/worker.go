package ows

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	sdierrors "github.com/constellation-sdi/constellation/internal/errors"
	"github.com/constellation-sdi/constellation/internal/metrics"
)

// State is the lifecycle state of a worker.
type State int

const (
	// StateNotStarted is a worker that was destroyed or never started.
	StateNotStarted State = iota
	// StateStarted is a worker serving requests.
	StateStarted
	// StateError is a worker whose configuration failed.
	StateError
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateError:
		return "error"
	default:
		return "not_started"
	}
}

// Renderer produces the capabilities document of a worker for a version and
// language.
type Renderer func(ctx context.Context, w *Worker, version Version, language string) (*Capabilities, error)

// WorkerConfig configures one service instance.
type WorkerConfig struct {
	Specification Specification
	ID            string
	// Versions restricts and orders the supported versions. Empty means
	// every version of the specification.
	Versions []string
	// CacheCapabilities enables caching of rendered capabilities.
	CacheCapabilities bool
	// ContextFile is the YAML service description. A configured file that
	// is missing or invalid puts the worker in the error state.
	ContextFile string
	Languages   []string
	// Renderer defaults to DefaultRenderer.
	Renderer Renderer
	// Clock defaults to time.Now. The update sequence is its Unix
	// millisecond value.
	Clock func() time.Time
}

// CapabilitiesRequest carries the negotiation parameters of a
// GetCapabilities request.
type CapabilitiesRequest struct {
	Version        string
	Language       string
	UpdateSequence string
	ServiceURL     string
}

// Worker is one running instance of a service.
type Worker struct {
	spec              Specification
	id                string
	versions          []Version
	languages         []string
	cacheCapabilities bool
	context           ServiceContext
	renderer          Renderer
	clock             func() time.Time
	cache             *CapabilitiesCache
	group             singleflight.Group

	mu             sync.RWMutex
	state          State
	startError     error
	updateSequence int64
	// refreshes counts update sequence refreshes. A render that started
	// before a refresh is returned to its callers but never cached.
	refreshes uint64
}

// NewWorker constructs a worker. Configuration failures do not fail the
// call: the worker is returned in StateError with the cause recorded.
func NewWorker(cfg WorkerConfig, cache *CapabilitiesCache) *Worker {
	if cache == nil {
		cache = NewCapabilitiesCache()
	}
	w := &Worker{
		spec:              cfg.Specification,
		id:                cfg.ID,
		languages:         append([]string(nil), cfg.Languages...),
		cacheCapabilities: cfg.CacheCapabilities,
		renderer:          cfg.Renderer,
		clock:             cfg.Clock,
		cache:             cache,
		context:           ServiceContext{Title: cfg.ID},
	}
	if w.renderer == nil {
		w.renderer = DefaultRenderer
	}
	if w.clock == nil {
		w.clock = time.Now
	}
	w.updateSequence = w.clock().UnixMilli()

	if err := w.configure(cfg); err != nil {
		w.state = StateError
		w.startError = err
		slog.Error("worker_start_failed",
			slog.String("specification", string(w.spec)),
			slog.String("id", w.id),
			slog.String("error", err.Error()))
		return w
	}
	w.state = StateStarted
	slog.Info("worker_started",
		slog.String("specification", string(w.spec)),
		slog.String("id", w.id),
		slog.String("versions", joinVersions(w.versions)))
	return w
}

func (w *Worker) configure(cfg WorkerConfig) error {
	if _, ok := registry[cfg.Specification]; !ok {
		return sdierrors.ConfigError(fmt.Sprintf("unknown specification %q", cfg.Specification), nil)
	}
	if cfg.ID == "" {
		return sdierrors.ConfigError("service id is empty", nil)
	}

	all := cfg.Specification.Versions()
	if len(cfg.Versions) == 0 {
		w.versions = all
	} else {
		for _, number := range cfg.Versions {
			v, ok := findVersion(all, number)
			if !ok {
				return sdierrors.ConfigError(
					fmt.Sprintf("version %q is not defined by %s", number, cfg.Specification), nil)
			}
			w.versions = append(w.versions, v)
		}
	}

	if cfg.ContextFile != "" {
		sc, err := LoadServiceContext(cfg.ContextFile)
		if err != nil {
			return sdierrors.New(sdierrors.ErrCodeContextMissing, "service context file is missing or invalid", err).
				WithDetail("path", cfg.ContextFile)
		}
		if sc.Title == "" {
			sc.Title = cfg.ID
		}
		w.context = *sc
	}
	return nil
}

// Specification returns the service standard.
func (w *Worker) Specification() Specification {
	return w.spec
}

// ID returns the instance identifier.
func (w *Worker) ID() string {
	return w.id
}

// Versions returns the supported versions, preferred first.
func (w *Worker) Versions() []Version {
	return append([]Version(nil), w.versions...)
}

// Languages returns the supported languages, default first.
func (w *Worker) Languages() []string {
	return append([]string(nil), w.languages...)
}

// Context returns the service description.
func (w *Worker) Context() ServiceContext {
	return w.context
}

// CachesCapabilities reports whether rendered capabilities are cached.
func (w *Worker) CachesCapabilities() bool {
	return w.cacheCapabilities
}

// State returns the lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// IsStarted reports whether the worker serves requests.
func (w *Worker) IsStarted() bool {
	return w.State() == StateStarted
}

// StartError returns the recorded configuration failure.
func (w *Worker) StartError() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.startError
}

// Fail moves a worker to the error state with cause recorded. Front ends
// use it when a collaborator the worker depends on (its index, its record
// source) cannot be set up.
func (w *Worker) Fail(cause error) {
	w.mu.Lock()
	w.state = StateError
	w.startError = cause
	w.mu.Unlock()

	slog.Error("worker_start_failed",
		slog.String("specification", string(w.spec)),
		slog.String("id", w.id),
		slog.String("error", cause.Error()))
}

// CheckStarted fails with NoApplicableCode when the worker does not serve
// requests. The error carries the recorded cause.
func (w *Worker) CheckStarted() error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.state == StateStarted {
		return nil
	}
	msg := "The service is not running"
	if w.startError != nil {
		msg += ": " + w.startError.Error()
	}
	return sdierrors.New(sdierrors.CodeNoApplicableCode, msg, w.startError).
		WithDetail("service", string(w.spec)+"/"+w.id)
}

// GetVersionFromNumber returns the supported version with that exact number.
func (w *Worker) GetVersionFromNumber(number string) (Version, bool) {
	return findVersion(w.versions, number)
}

// GetBestVersion negotiates the version to answer with. An exact match wins;
// an empty request gets the first version; a request newer than the first
// version is clamped to it and one older than the last version is clamped
// to the last. Anything else gets the first version.
func (w *Worker) GetBestVersion(number string) Version {
	if len(w.versions) == 0 {
		return Version{}
	}
	if v, ok := w.GetVersionFromNumber(number); ok {
		return v
	}
	first, last := w.versions[0], w.versions[len(w.versions)-1]
	if strings.TrimSpace(number) == "" {
		return first
	}
	requested, err := ParseVersion(number)
	if err != nil {
		return first
	}
	if requested.Compare(first) > 0 {
		return first
	}
	if requested.Compare(last) < 0 {
		return last
	}
	return first
}

// CheckVersionSupported fails when number is not a supported version. In a
// GetCapabilities request the failure is a negotiation failure; in any other
// operation the parameter is invalid.
func (w *Worker) CheckVersionSupported(number string, getCapabilities bool) error {
	if _, ok := w.GetVersionFromNumber(number); ok {
		return nil
	}
	msg := fmt.Sprintf("version %q is not supported by this %s service (supported: %s)",
		number, w.spec, joinVersions(w.versions))
	if getCapabilities {
		return sdierrors.ServiceException(sdierrors.CodeVersionNegotiationFailed, msg, "acceptVersions")
	}
	return sdierrors.ServiceException(sdierrors.CodeInvalidParameterValue, msg, "version")
}

// UpdateSequence returns the current update sequence.
func (w *Worker) UpdateSequence() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.updateSequence
}

// RefreshUpdateSequence moves the update sequence to the current time and
// drops the cached capabilities of the specification.
func (w *Worker) RefreshUpdateSequence() int64 {
	w.mu.Lock()
	w.updateSequence = w.clock().UnixMilli()
	w.refreshes++
	seq := w.updateSequence
	w.mu.Unlock()

	w.ClearCapabilitiesCache()
	return seq
}

// ReturnUpdateSequenceDocument compares a client update sequence with the
// current one. It returns true when the client is up to date, false when the
// document must be rendered, and fails when the client claims a future
// sequence or sends a non-numeric one.
func (w *Worker) ReturnUpdateSequenceDocument(sequence string) (bool, error) {
	sequence = strings.TrimSpace(sequence)
	if sequence == "" {
		return false, nil
	}
	n, err := strconv.ParseInt(sequence, 10, 64)
	if err != nil {
		return false, sdierrors.ServiceException(sdierrors.CodeInvalidParameterValue,
			fmt.Sprintf("update sequence %q is not a number", sequence), "updateSequence")
	}
	current := w.UpdateSequence()
	switch {
	case n == current:
		return true, nil
	case n > current:
		return false, sdierrors.ServiceException(sdierrors.CodeInvalidUpdateSequence,
			fmt.Sprintf("update sequence %d is newer than the current one", n), "updateSequence")
	default:
		return false, nil
	}
}

// GetCapabilitiesFromCache returns the cached document with serviceURL
// applied.
func (w *Worker) GetCapabilitiesFromCache(version, language, serviceURL string) (*Capabilities, bool) {
	caps, ok := w.cache.Get(CacheKey(w.spec, w.id, version, language), serviceURL)
	result := "miss"
	if ok {
		result = "hit"
	}
	metrics.CapabilitiesCacheRequestsTotal.WithLabelValues(string(w.spec), result).Inc()
	return caps, ok
}

// PutCapabilitiesInCache stores caps when the worker caches capabilities.
func (w *Worker) PutCapabilitiesInCache(version, language string, caps *Capabilities) {
	if !w.cacheCapabilities {
		return
	}
	w.cache.Put(CacheKey(w.spec, w.id, version, language), caps)
}

func (w *Worker) refreshCount() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.refreshes
}

// putIfCurrent caches caps unless the update sequence was refreshed since
// refreshes was read. The read lock keeps a refresh from slipping between
// the check and the put; the refresh clears the cache after it.
func (w *Worker) putIfCurrent(refreshes uint64, version, language string, caps *Capabilities) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.refreshes != refreshes {
		return false
	}
	w.PutCapabilitiesInCache(version, language, caps)
	return true
}

// ClearCapabilitiesCache drops the cached documents of the specification.
func (w *Worker) ClearCapabilitiesCache() {
	if n := w.cache.Clear(w.spec); n > 0 {
		slog.Debug("capabilities_cache_cleared",
			slog.String("specification", string(w.spec)),
			slog.Int("entries", n))
	}
}

// Capabilities answers a GetCapabilities request: it negotiates the version
// and language, honors the update sequence, and renders through the cache.
// Concurrent renders of the same document are collapsed.
func (w *Worker) Capabilities(ctx context.Context, req CapabilitiesRequest) (*Capabilities, error) {
	if err := w.CheckStarted(); err != nil {
		return nil, err
	}

	version := w.GetBestVersion(req.Version)
	language := w.negotiateLanguage(req.Language)

	upToDate, err := w.ReturnUpdateSequenceDocument(req.UpdateSequence)
	if err != nil {
		return nil, err
	}
	if upToDate {
		return &Capabilities{
			Specification:  w.spec,
			ServiceID:      w.id,
			Version:        version.String(),
			Language:       language,
			ServiceURL:     req.ServiceURL,
			UpdateSequence: strconv.FormatInt(w.UpdateSequence(), 10),
			Unchanged:      true,
		}, nil
	}

	if caps, ok := w.GetCapabilitiesFromCache(version.String(), language, req.ServiceURL); ok {
		return caps, nil
	}

	refreshes := w.refreshCount()
	key := CacheKey(w.spec, w.id, version.String(), language) + "#" + strconv.FormatUint(refreshes, 10)
	v, err, _ := w.group.Do(key, func() (interface{}, error) {
		caps, err := w.renderer(ctx, w, version, language)
		if err != nil {
			return nil, err
		}
		if !w.putIfCurrent(refreshes, version.String(), language, caps) {
			slog.Debug("capabilities_render_outdated",
				slog.String("specification", string(w.spec)),
				slog.String("id", w.id))
		}
		return caps, nil
	})
	if err != nil {
		return nil, err
	}
	out := v.(*Capabilities).clone()
	if req.ServiceURL != "" {
		out.ServiceURL = req.ServiceURL
	}
	return out, nil
}

func (w *Worker) negotiateLanguage(requested string) string {
	if len(w.languages) == 0 {
		return ""
	}
	for _, l := range w.languages {
		if strings.EqualFold(l, requested) {
			return l
		}
	}
	return w.languages[0]
}

// Destroy stops the worker and drops the cached capabilities of its
// specification.
func (w *Worker) Destroy() {
	w.mu.Lock()
	w.state = StateNotStarted
	w.refreshes++
	w.mu.Unlock()

	w.ClearCapabilitiesCache()

	slog.Info("worker_destroyed",
		slog.String("specification", string(w.spec)),
		slog.String("id", w.id))
}

// DefaultRenderer builds a capabilities document from the worker's
// configuration alone.
func DefaultRenderer(_ context.Context, w *Worker, version Version, language string) (*Capabilities, error) {
	return &Capabilities{
		Specification:  w.spec,
		ServiceID:      w.id,
		Version:        version.String(),
		Language:       language,
		UpdateSequence: strconv.FormatInt(w.UpdateSequence(), 10),
		Service:        w.context,
		Operations:     w.spec.Operations(),
		Languages:      w.Languages(),
	}, nil
}

func findVersion(versions []Version, number string) (Version, bool) {
	number = strings.TrimSpace(number)
	for _, v := range versions {
		if v.String() == number {
			return v, true
		}
	}
	return Version{}, false
}

func joinVersions(versions []Version) string {
	parts := make([]string, len(versions))
	for i, v := range versions {
		parts[i] = v.String()
	}
	return strings.Join(parts, ",")
}
