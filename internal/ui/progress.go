package ui

import (
	"sync"
	"time"
)

// ProgressTracker accumulates build progress across catalogs.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu sync.RWMutex

	stage        Stage
	catalog      string
	catalogIndex int
	catalogs     int
	current      int
	total        int
	key          string

	// done counts records of finished catalogs.
	done int

	start    time.Time
	errors   []ErrorEvent
	warnings []ErrorEvent

	// lastETA smooths the estimate between updates.
	lastETA time.Duration
	now     func() time.Time
}

// ProgressStats is a snapshot of the tracker.
type ProgressStats struct {
	Stage        Stage
	Catalog      string
	CatalogIndex int
	Catalogs     int
	Current      int
	Total        int
	Key          string
	// Progress is the fraction of the current catalog done, 0.0 to 1.0.
	Progress float64
	// Records counts records processed in all catalogs.
	Records    int
	Rate       float64
	ETA        time.Duration
	ErrorCount int
	WarnCount  int
}

// NewProgressTracker creates a tracker starting now.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	return &ProgressTracker{stage: StageCatalogs, start: now(), now: now}
}

// Apply folds an event into the tracker.
func (p *ProgressTracker) Apply(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.Stage != p.stage {
		p.lastETA = 0
	}
	p.stage = event.Stage
	if event.Catalogs > 0 {
		p.catalogs = event.Catalogs
	}
	if event.Stage != StageRecords {
		return
	}

	if event.Catalog != p.catalog || event.CatalogIndex != p.catalogIndex {
		p.done += p.current
		p.catalog = event.Catalog
		p.catalogIndex = event.CatalogIndex
		p.lastETA = 0
	}
	p.current = event.Current
	p.total = event.Total
	if event.Key != "" {
		p.key = event.Key
	}
}

// AddError records an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings = append(p.warnings, event)
	} else {
		p.errors = append(p.errors, event)
	}
}

// Stats returns a snapshot. It takes the write lock because the ETA
// estimate is smoothed against the previous one.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	progress := 0.0
	if p.total > 0 {
		progress = float64(p.current) / float64(p.total)
		if progress > 1.0 {
			progress = 1.0
		}
	}

	records := p.done + p.current
	rate := 0.0
	if elapsed := p.now().Sub(p.start).Seconds(); elapsed > 0 {
		rate = float64(records) / elapsed
	}

	return ProgressStats{
		Stage:        p.stage,
		Catalog:      p.catalog,
		CatalogIndex: p.catalogIndex,
		Catalogs:     p.catalogs,
		Current:      p.current,
		Total:        p.total,
		Key:          p.key,
		Progress:     progress,
		Records:      records,
		Rate:         rate,
		ETA:          p.eta(rate),
		ErrorCount:   len(p.errors),
		WarnCount:    len(p.warnings),
	}
}

// Elapsed returns the time since the tracker started.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.now().Sub(p.start)
}

const etaSmoothingFactor = 0.3

// eta estimates the time left in the current catalog. Must hold the lock.
func (p *ProgressTracker) eta(rate float64) time.Duration {
	if rate <= 0 || p.total == 0 || p.current >= p.total {
		return 0
	}
	raw := time.Duration(float64(p.total-p.current) / rate * float64(time.Second))
	if p.lastETA == 0 {
		p.lastETA = raw
		return raw
	}
	smoothed := time.Duration(etaSmoothingFactor*float64(raw) + (1-etaSmoothingFactor)*float64(p.lastETA))
	p.lastETA = smoothed
	return smoothed
}

// Errors returns the recorded errors.
func (p *ProgressTracker) Errors() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]ErrorEvent(nil), p.errors...)
}

// Warnings returns the recorded warnings.
func (p *ProgressTracker) Warnings() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]ErrorEvent(nil), p.warnings...)
}
