// Package server exposes the registered services over HTTP.
//
// Routes:
//
//	GET  /health
//	GET  /metrics
//	GET  /api/v1/services
//	GET  /api/v1/{spec}/{id}/capabilities?version=&language=&updateSequence=
//	GET  /api/v1/csw/{id}/records?q=&bbox=&sort=&limit=&offset=&<term>=
//	POST /api/v1/csw/{id}/rebuild
//
// Errors are answered as JSON exception reports.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/constellation-sdi/constellation/internal/csw"
	sdierrors "github.com/constellation-sdi/constellation/internal/errors"
	"github.com/constellation-sdi/constellation/internal/metrics"
	"github.com/constellation-sdi/constellation/internal/ows"
	"github.com/constellation-sdi/constellation/internal/search"
	"github.com/constellation-sdi/constellation/pkg/version"
)

// Server routes HTTP requests to the engine and the catalog services.
type Server struct {
	engine *ows.Engine

	mu       sync.RWMutex
	catalogs map[string]*csw.Service
}

// New creates a server over engine. Catalog services answer the record
// routes; every registered worker answers capabilities.
func New(engine *ows.Engine, catalogs ...*csw.Service) *Server {
	s := &Server{engine: engine, catalogs: make(map[string]*csw.Service)}
	for _, c := range catalogs {
		s.catalogs[c.ID()] = c
	}
	return s
}

// SetCatalogs replaces the catalog services, after a configuration reload.
func (s *Server) SetCatalogs(catalogs ...*csw.Service) {
	m := make(map[string]*csw.Service, len(catalogs))
	for _, c := range catalogs {
		m[c.ID()] = c
	}
	s.mu.Lock()
	s.catalogs = m
	s.mu.Unlock()
}

func (s *Server) catalog(id string) (*csw.Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.catalogs[id]
	return c, ok
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(requestLog)
	r.Use(metrics.Middleware())
	r.Use(chimiddleware.SetHeader("Server", version.ServerHeader()))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/services", s.services)
		r.Get("/{spec}/{id}/capabilities", s.capabilities)
		r.Get("/csw/{id}/records", s.records)
		r.Post("/csw/{id}/rebuild", s.rebuild)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, sdierrors.ExceptionReport{
			Code:    sdierrors.CodeOperationNotSupported,
			Message: "no such route",
		})
	})
	return r
}

type healthResponse struct {
	Status   string         `json:"status"`
	Services map[string]int `json:"services"`
}

// health is degraded when a registered worker failed to start.
func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "healthy", Services: map[string]int{}}
	for _, st := range s.engine.Status() {
		resp.Services[st.State]++
		if st.State == ows.StateError.String() {
			resp.Status = "degraded"
		}
	}
	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) services(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) capabilities(w http.ResponseWriter, r *http.Request) {
	spec, err := ows.ParseSpecification(chi.URLParam(r, "spec"))
	if err != nil {
		writeError(w, sdierrors.ServiceException(sdierrors.CodeInvalidParameterValue, err.Error(), "service"))
		return
	}
	worker, ok := s.engine.Get(spec, chi.URLParam(r, "id"))
	if !ok {
		writeError(w, notFound(string(spec)+"/"+chi.URLParam(r, "id")))
		return
	}

	q := r.URL.Query()
	caps, err := worker.Capabilities(r.Context(), ows.CapabilitiesRequest{
		Version:        q.Get("version"),
		Language:       q.Get("language"),
		UpdateSequence: q.Get("updateSequence"),
		ServiceURL:     serviceURL(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, caps)
}

// reserved lists the record query parameters that are not queryable terms.
var reserved = map[string]bool{"q": true, "bbox": true, "sort": true, "limit": true, "offset": true}

func (s *Server) records(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.catalog(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, notFound("CSW/"+chi.URLParam(r, "id")))
		return
	}

	query, err := parseQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := svc.Search(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseQuery(r *http.Request) (search.Query, error) {
	q := r.URL.Query()
	query := search.Query{AnyText: q.Get("q")}

	if v := q.Get("bbox"); v != "" {
		box, err := search.ParseBBox(v)
		if err != nil {
			return query, sdierrors.ServiceException(sdierrors.CodeInvalidParameterValue, err.Error(), "bbox")
		}
		query.BBox = box
	}
	if v := q.Get("sort"); v != "" {
		query.Sort = strings.Split(v, ",")
	}
	for _, name := range []string{"limit", "offset"} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return query, sdierrors.ServiceException(sdierrors.CodeInvalidParameterValue,
				name+" must be an integer", name)
		}
		if name == "limit" {
			query.Limit = n
		} else {
			query.Offset = n
		}
	}

	names := make([]string, 0, len(q))
	for name := range q {
		if !reserved[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if query.Terms == nil {
			query.Terms = make(map[string]string, len(names))
		}
		query.Terms[name] = q.Get(name)
	}
	return query, nil
}

type rebuildResponse struct {
	Catalogs   int     `json:"catalogs"`
	Indexed    int     `json:"indexed"`
	Failed     int     `json:"failed"`
	DurationMS float64 `json:"duration_ms"`
}

func (s *Server) rebuild(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.catalog(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, notFound("CSW/"+chi.URLParam(r, "id")))
		return
	}
	// the build outlives a disconnecting client
	stats, err := svc.Rebuild(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rebuildResponse{
		Catalogs:   stats.Catalogs,
		Indexed:    stats.Indexed,
		Failed:     stats.Failed,
		DurationMS: float64(stats.Duration.Microseconds()) / 1000,
	})
}

func serviceURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.Path
}

func notFound(service string) error {
	return sdierrors.ServiceException(sdierrors.CodeInvalidParameterValue,
		"no service "+service+" is registered", "id")
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch sdierrors.GetCode(err) {
	case sdierrors.CodeOperationNotSupported:
		return http.StatusNotImplemented
	case sdierrors.CodeNoApplicableCode:
		return http.StatusServiceUnavailable
	case sdierrors.ErrCodeIndexLocked:
		return http.StatusConflict
	}
	switch sdierrors.GetCategory(err) {
	case sdierrors.CategoryProtocol, sdierrors.CategoryValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			slog.Int("status", status),
			slog.String("error", err.Error()))
	}
	writeJSON(w, status, sdierrors.Report(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// jsonRecoverer answers panics with a JSON exception report.
func jsonRecoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				slog.Error("panic_recovered",
					slog.Any("panic", rvr),
					slog.String("path", r.URL.Path))
				writeJSON(w, http.StatusInternalServerError, sdierrors.ExceptionReport{
					Code:    sdierrors.CodeNoApplicableCode,
					Message: "internal error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestLog emits one log line per request and echoes the request id.
func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := chimiddleware.GetReqID(r.Context())
		if requestID != "" {
			w.Header().Set("X-Request-ID", requestID)
		}

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		slog.Info("http_request",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)))
	})
}
