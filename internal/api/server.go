// Package api serves the dispatcher over HTTP: tracker listings, data-only
// dispatches and cache maintenance.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/trackreport/internal/cache"
	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/dispatch"
	"github.com/banshee-data/trackreport/internal/httputil"
	"github.com/banshee-data/trackreport/internal/monitoring"
	"github.com/banshee-data/trackreport/internal/params"
	"github.com/banshee-data/trackreport/internal/render"
	"github.com/banshee-data/trackreport/internal/tracker"
	"github.com/banshee-data/trackreport/internal/version"
	"github.com/banshee-data/trackreport/internal/workerpool"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	d    *dispatch.Dispatcher
	deps dispatch.Deps
}

// NewServer serves d. deps must be the registries and cache d was built
// with.
func NewServer(d *dispatch.Dispatcher, deps dispatch.Deps) *Server {
	return &Server{d: d, deps: deps}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// adminRouter is implemented by caches that expose debug pages.
type adminRouter interface {
	AttachAdminRoutes(mux *http.ServeMux) error
}

func (s *Server) ServeMux() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/trackers", s.listTrackers)
	mux.HandleFunc("/api/transformers", s.listTransformers)
	mux.HandleFunc("/api/renderers", s.listRenderers)
	mux.HandleFunc("/api/data", s.showData)
	mux.HandleFunc("/api/cache", s.showCache)
	mux.HandleFunc("/api/cache/entries", s.listCacheEntries)
	mux.HandleFunc("/api/cache/invalidate", s.invalidateCache)
	mux.HandleFunc("/api/version", s.showVersion)
	if a, ok := s.deps.Cache.(adminRouter); ok {
		if err := a.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

type trackerInfo struct {
	Identity    string   `json:"identity"`
	Kind        string   `json:"kind"`
	Description string   `json:"description,omitempty"`
	Options     []string `json:"options,omitempty"`
	Library     bool     `json:"library,omitempty"`
}

func (s *Server) listTrackers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	entries := s.deps.Trackers.Entries()
	out := make([]trackerInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, trackerInfo{
			Identity:    e.Identity.String(),
			Kind:        e.Kind.String(),
			Description: e.Description,
			Options:     e.Options,
			Library:     e.Identity.Module == tracker.LibraryModule,
		})
	}
	httputil.WriteJSONOK(w, out)
}

type stageInfo struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Options        []string `json:"options,omitempty"`
	DisplayOptions []string `json:"display_options,omitempty"`
}

func (s *Server) listTransformers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	var out []stageInfo
	for _, e := range s.deps.Transformers.Entries() {
		out = append(out, stageInfo{Name: e.Name, Description: e.Description, Options: e.Options})
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) listRenderers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	var out []stageInfo
	for _, e := range s.deps.Renderers.Entries() {
		out = append(out, stageInfo{
			Name:           e.Name,
			Description:    e.Description,
			Options:        params.Union([]string{render.OptGroupBy}, e.RenderOptions),
			DisplayOptions: e.DisplayOptions,
		})
	}
	httputil.WriteJSONOK(w, out)
}

type dataResponse struct {
	Tracker   string          `json:"tracker"`
	CacheHit  bool            `json:"cache_hit"`
	Removed   int             `json:"removed,omitempty"`
	ElapsedMS float64         `json:"elapsed_ms"`
	Data      *datatree.Tree  `json:"data"`
	Results   []render.Result `json:"results,omitempty"`
}

// showData dispatches one tracker. Query parameters: tracker, tracks,
// slices, option (repeatable key[=value]), transform (repeatable, in
// order) and renderer.
func (s *Server) showData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	name := strings.TrimSpace(q.Get("tracker"))
	if name == "" {
		httputil.BadRequest(w, "missing 'tracker' parameter")
		return
	}
	opts, err := params.ParseOptions(q["option"])
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	out, err := s.d.Dispatch(r.Context(), dispatch.Request{
		Tracker:      name,
		Tracks:       params.ParseSet(q.Get("tracks")),
		Slices:       params.ParseSet(q.Get("slices")),
		Options:      opts,
		Transformers: q["transform"],
		Renderer:     q.Get("renderer"),
	})
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	httputil.WriteJSONOK(w, dataResponse{
		Tracker:   out.Identity.String(),
		CacheHit:  out.CacheHit,
		Removed:   out.Removed,
		ElapsedMS: float64(out.Elapsed.Nanoseconds()) / 1e6,
		Data:      out.Tree,
		Results:   out.Results,
	})
}

func (s *Server) showCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	summary, err := s.deps.Cache.Summary(r.Context())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if summary == nil {
		summary = []cache.IdentitySummary{}
	}
	httputil.WriteJSONOK(w, summary)
}

func (s *Server) listCacheEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	e, ok := s.resolve(w, r)
	if !ok {
		return
	}
	infos, err := s.deps.Cache.Entries(r.Context(), e.Identity.String())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if infos == nil {
		infos = []cache.EntryInfo{}
	}
	httputil.WriteJSONOK(w, infos)
}

func (s *Server) invalidateCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	e, ok := s.resolve(w, r)
	if !ok {
		return
	}
	n, err := s.d.Invalidate(r.Context(), e.Identity)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"tracker": e.Identity.String(), "removed": n})
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (tracker.Entry, bool) {
	name := strings.TrimSpace(r.URL.Query().Get("tracker"))
	if name == "" {
		httputil.BadRequest(w, "missing 'tracker' parameter")
		return tracker.Entry{}, false
	}
	e, err := s.deps.Trackers.Resolve(name)
	if err != nil {
		writeDispatchError(w, err)
		return tracker.Entry{}, false
	}
	return e, true
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

func writeDispatchError(w http.ResponseWriter, err error) {
	kind := dispatch.ErrorKind(err)
	httputil.WriteDispatchError(w, statusFor(kind), string(kind), string(dispatch.StageOf(err)), unwrapStage(err))
}

// unwrapStage drops the stage prefix; the stage has its own field.
func unwrapStage(err error) error {
	var se *dispatch.StageError
	if errors.As(err, &se) {
		return se.Err
	}
	return err
}

func statusFor(kind workerpool.Kind) int {
	switch kind {
	case workerpool.KindUnknownTracker:
		return http.StatusNotFound
	case workerpool.KindConfiguration:
		return http.StatusBadRequest
	case workerpool.KindDataUnavailable, workerpool.KindTransform:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
