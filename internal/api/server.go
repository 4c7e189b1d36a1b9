package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.io/razzkumar/maildev/internal/config"
	"github.io/razzkumar/maildev/internal/gate"
	"github.io/razzkumar/maildev/internal/session"
	"github.io/razzkumar/maildev/internal/sse"
	"github.io/razzkumar/maildev/internal/store"
	webassets "github.io/razzkumar/maildev/web"
)

// Store is the record store behind the API.
type Store interface {
	List(ctx context.Context) ([]store.Email, error)
	Get(ctx context.Context, id string) (store.Email, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	Attachment(ctx context.Context, id, filename string) (string, io.ReadCloser, error)
	Raw(ctx context.Context, id string) (io.ReadCloser, error)
}

// Relayer forwards a stored message to a real SMTP server.
type Relayer interface {
	Enabled() bool
	Host() string
	Relay(ctx context.Context, from string, to []string, message io.Reader) error
}

// Loader imports messages from the mail directory.
type Loader interface {
	LoadDirectory(ctx context.Context) (int, error)
}

// Deps are the collaborators of the server. Sessions and Loader may be nil.
type Deps struct {
	Store    Store
	Relayer  Relayer
	Loader   Loader
	Sessions *session.Manager
	Hub      *sse.Hub
}

type Server struct {
	cfg      config.Config
	version  string
	prefix   string
	store    Store
	relayer  Relayer
	loader   Loader
	sessions *session.Manager
	hub      *sse.Hub
	logger   *slog.Logger
	handler  http.Handler
	staticFS fs.FS
	staticOK bool
}

func NewServer(cfg config.Config, version string, deps Deps, logger *slog.Logger) *Server {
	staticFS, err := webassets.Dist()
	staticOK := err == nil
	if err != nil {
		logger.Warn("ui assets not embedded", "error", err)
	}
	prefix := config.NormalizeBasePath(cfg.BasePath)
	if prefix == "/" {
		prefix = ""
	}
	server := &Server{
		cfg:      cfg,
		version:  version,
		prefix:   prefix,
		store:    deps.Store,
		relayer:  deps.Relayer,
		loader:   deps.Loader,
		sessions: deps.Sessions,
		hub:      deps.Hub,
		logger:   logger,
		staticFS: staticFS,
		staticOK: staticOK,
	}

	root := mux.NewRouter()
	root.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r := root
	if prefix != "" {
		r = root.PathPrefix(prefix).Subrouter()
	}
	r.Handle("/email", gzhttp.GzipHandler(http.HandlerFunc(server.handleListEmails))).Methods(http.MethodGet)
	r.HandleFunc("/email/read-all", server.handleReadAll).Methods(http.MethodPatch)
	r.HandleFunc("/email/all", server.handleDeleteAll).Methods(http.MethodDelete)
	r.HandleFunc("/email/{id}", server.handleGetEmail).Methods(http.MethodGet)
	r.HandleFunc("/email/{id}", server.handleDeleteEmail).Methods(http.MethodDelete)
	r.HandleFunc("/email/{id}/html", server.handleEmailHTML).Methods(http.MethodGet)
	r.HandleFunc("/email/{id}/attachment/{filename}", server.handleAttachment).Methods(http.MethodGet)
	r.HandleFunc("/email/{id}/download", server.handleDownload).Methods(http.MethodGet)
	r.HandleFunc("/email/{id}/source", server.handleSource).Methods(http.MethodGet)
	r.HandleFunc("/email/{id}/relay", server.handleRelay).Methods(http.MethodPost)
	r.HandleFunc("/email/{id}/relay/{relayTo}", server.handleRelay).Methods(http.MethodPost)
	r.HandleFunc("/config", server.handleConfig).Methods(http.MethodGet)
	r.HandleFunc("/welcome", server.handleWelcome).Methods(http.MethodGet)
	r.HandleFunc("/set-filter", server.handleSetFilter).Methods(http.MethodPost)
	r.HandleFunc("/clear-filter", server.handleClearFilter).Methods(http.MethodPost)
	r.HandleFunc("/healthz", server.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/reloadMailsFromDirectory", server.handleReload).Methods(http.MethodGet)
	r.HandleFunc("/events", server.handleStream).Methods(http.MethodGet)
	r.PathPrefix("/").HandlerFunc(server.serveStatic).Methods(http.MethodGet, http.MethodHead)

	filterGate := gate.New(prefix+"/email", server.filterValues, logger)
	server.handler = filterGate.Middleware(root)
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// rootPath is the URL of the UI index under the base path.
func (s *Server) rootPath() string {
	return s.prefix + "/"
}

func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	if !s.staticOK {
		s.respondText(w, http.StatusNotFound, "UI not available.")
		return
	}

	cleaned := strings.TrimPrefix(path.Clean(strings.TrimPrefix(r.URL.Path, s.prefix)), "/")
	if cleaned == "" || cleaned == "." {
		cleaned = "index.html"
	}

	if strings.HasPrefix(cleaned, "assets/") {
		if s.serveEmbeddedFile(w, r, cleaned) {
			return
		}
		http.NotFound(w, r)
		return
	}

	if s.serveEmbeddedFile(w, r, cleaned) {
		return
	}

	if s.serveEmbeddedFile(w, r, "index.html") {
		return
	}

	s.respondText(w, http.StatusNotFound, "UI not available.")
}

func (s *Server) serveEmbeddedFile(w http.ResponseWriter, r *http.Request, name string) bool {
	file, err := s.staticFS.Open(name)
	if err != nil {
		return false
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		return false
	}

	if seeker, ok := file.(io.ReadSeeker); ok {
		http.ServeContent(w, r, info.Name(), info.ModTime(), seeker)
		return true
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return false
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), bytes.NewReader(data))
	return true
}

func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	page, err := webassets.Welcome()
	if err != nil {
		s.logger.Error("read welcome page", "error", err)
		s.respondText(w, http.StatusNotFound, "welcome page not available")
		return
	}
	http.ServeContent(w, r, "welcome.html", time.Time{}, bytes.NewReader(page))
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	session, cookies := s.filterValues(w, r)
	s.respondJSON(w, http.StatusOK, map[string]any{
		"version":           s.version,
		"smtpPort":          s.cfg.SMTPPort,
		"isOutgoingEnabled": s.relayer.Enabled(),
		"outgoingHost":      s.relayer.Host(),
		"filterFrom":        gate.Persisted(session, cookies),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, true)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.loader == nil {
		s.respondJSON(w, http.StatusOK, true)
		return
	}
	loaded, err := s.loader.LoadDirectory(r.Context())
	if err != nil {
		s.logger.Error("reload mail directory", "error", err)
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("reloaded mail directory", "loaded", loaded)
	s.respondJSON(w, http.StatusOK, true)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(payload)
			flusher.Flush()
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		}
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) respondText(w http.ResponseWriter, status int, payload string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}
