package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/dshills/addonhost/internal/addon"
	"github.com/dshills/addonhost/internal/notify"
)

// Manager is the part of the addon manager the server drives.
type Manager interface {
	Records() []addon.Info
	Record(path string) (addon.Info, bool)
	PathForSignature(sig uint32) (string, bool)
	Request(path string, v addon.Verb) error
	CheckForUpdate(path string) error
	SetPreference(path string, p addon.Preference, value bool) error
	Rescan()
}

// Notices is the notice queue the server exposes.
type Notices interface {
	Pending() []notify.Notice
	Dismiss(key string) bool
}

// Server is the control HTTP server.
type Server struct {
	manager  Manager
	notices  Notices
	gatherer prometheus.Gatherer
	log      *logrus.Entry
	router   *mux.Router

	srv      *http.Server
	listener net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithNotices exposes a notice queue.
func WithNotices(n Notices) Option {
	return func(s *Server) {
		s.notices = n
	}
}

// WithGatherer serves metrics from g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// New creates a server for m.
func New(m Manager, opts ...Option) *Server {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	s := &Server{
		manager: m,
		log:     logrus.NewEntry(l),
		router:  mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/addons", s.listAddons).Methods(http.MethodGet)
	r.HandleFunc("/addons/{signature}", s.getAddon).Methods(http.MethodGet)
	r.HandleFunc("/addons/{signature}", s.setPreferences).Methods(http.MethodPatch)
	r.HandleFunc("/addons/{signature}/{action}", s.requestAction).Methods(http.MethodPost)
	r.HandleFunc("/rescan", s.rescan).Methods(http.MethodPost)
	if s.notices != nil {
		r.HandleFunc("/notifications", s.listNotices).Methods(http.MethodGet)
		r.HandleFunc("/notifications/{key}", s.dismissNotice).Methods(http.MethodDelete)
	}
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.Use(s.logRequests)
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background. It returns the bound
// address, which differs from addr when addr uses port 0.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("control server listen %s: %w", addr, err)
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("control server stopped")
		}
	}()
	s.log.WithField("addr", ln.Addr().String()).Info("control server listening")
	return ln.Addr().String(), nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("control request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, addon.ErrNoProvider):
		status = http.StatusBadRequest
	case errors.Is(err, addon.ErrNotTracked):
		status = http.StatusNotFound
	case errors.Is(err, addon.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, addon.ErrShuttingDown):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
