package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cordoba-data/program-dashboard/internal/catalog"
	"github.com/cordoba-data/program-dashboard/internal/history"
	"github.com/cordoba-data/program-dashboard/internal/middleware"
	"github.com/cordoba-data/program-dashboard/internal/views"
)

// RunLister lists recent catalogue builds. *history.Store satisfies it.
type RunLister interface {
	RecentRuns(ctx context.Context, limit int) ([]history.Run, error)
}

// Server serves the dashboard API.
type Server struct {
	configErr error
	sessions  *Sessions
	views     *views.Builder
	feedback  http.Handler
	runs      RunLister
	log       *zap.Logger
}

// Options configures a Server. Build is required unless ConfigErr is set.
type Options struct {
	Build       BuildFunc
	ConfigErr   error
	Views       *views.Builder
	Feedback    http.Handler
	Runs        RunLister
	SessionIdle time.Duration
	Log         *zap.Logger
}

// NewServer creates a Server.
func NewServer(o Options) *Server {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.Views == nil {
		o.Views = views.NewBuilder()
	}
	return &Server{
		configErr: o.ConfigErr,
		sessions:  NewSessions(o.Build, o.SessionIdle),
		views:     o.Views,
		feedback:  o.Feedback,
		runs:      o.Runs,
		log:       o.Log.Named("dashboard"),
	}
}

// Configured reports whether the data source configuration is valid.
func (s *Server) Configured() bool { return s.configErr == nil }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// addServerTiming appends kv pairs as name;dur=ms.
func addServerTiming(w http.ResponseWriter, kv ...[2]string) {
	if len(kv) == 0 {
		return
	}
	parts := make([]string, len(kv))
	for i, p := range kv {
		parts[i] = fmt.Sprintf("%s;dur=%s", p[0], p[1])
	}
	w.Header().Add("Server-Timing", strings.Join(parts, ", "))
}

func ms(d time.Duration) string {
	return strconv.FormatFloat(float64(d.Microseconds())/1000, 'f', 1, 64)
}

type errorResponse struct {
	Error      string `json:"error"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, diagnostic string) {
	writeJSON(w, status, errorResponse{Error: msg, Diagnostic: diagnostic})
}

// unconfigured answers every data request with the single diagnostic panel.
func (s *Server) unconfigured(w http.ResponseWriter) bool {
	if s.configErr == nil {
		return false
	}
	writeError(w, http.StatusServiceUnavailable, "dashboard is not configured", s.configErr.Error())
	return true
}

func (s *Server) sessionCatalogue(w http.ResponseWriter, r *http.Request, refresh bool) (*catalog.Catalogue, bool) {
	id, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "missing session", "")
		return nil, false
	}
	var (
		cat *catalog.Catalogue
		err error
	)
	if refresh {
		cat, err = s.sessions.Refresh(r.Context(), id)
	} else {
		cat, err = s.sessions.Catalogue(r.Context(), id)
	}
	if err != nil {
		s.log.Info("catalogue build abandoned", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "catalogue build cancelled", "")
		return nil, false
	}
	return cat, true
}

// Health reports liveness and whether the data source is configured.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "configured": s.Configured()})
}

type catalogueResponse struct {
	RunID    uuid.UUID       `json:"runId"`
	Entries  []catalog.Entry `json:"entries"`
	Warnings []string        `json:"warnings"`
}

func newCatalogueResponse(cat *catalog.Catalogue) catalogueResponse {
	entries := cat.Entries()
	if entries == nil {
		entries = []catalog.Entry{}
	}
	warnings := cat.Warnings()
	if warnings == nil {
		warnings = []string{}
	}
	return catalogueResponse{RunID: cat.RunID, Entries: entries, Warnings: warnings}
}

func (s *Server) CatalogueHandler(w http.ResponseWriter, r *http.Request) {
	if s.unconfigured(w) {
		return
	}
	cat, ok := s.sessionCatalogue(w, r, false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newCatalogueResponse(cat))
}

func (s *Server) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if s.unconfigured(w) {
		return
	}
	cat, ok := s.sessionCatalogue(w, r, true)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newCatalogueResponse(cat))
}

func (s *Server) ViewHandler(w http.ResponseWriter, r *http.Request) {
	p, err := views.ParseProgram(chi.URLParam(r, "program"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error(), "")
		return
	}
	if s.unconfigured(w) {
		return
	}
	start := time.Now()
	cat, ok := s.sessionCatalogue(w, r, false)
	if !ok {
		return
	}
	loaded := time.Now()
	v, err := s.views.Build(cat, p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not build view", "")
		return
	}
	addServerTiming(w,
		[2]string{"catalogue", ms(loaded.Sub(start))},
		[2]string{"view", ms(time.Since(loaded))})
	writeJSON(w, http.StatusOK, v)
}

const defaultRunLimit = 20

func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "history is disabled", "")
		return
	}
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v), "")
			return
		}
		limit = n
	}
	runs, err := s.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.log.Warn("list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list runs", "")
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}
