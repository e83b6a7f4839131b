// Package server hosts the recipebox HTTP API and the push channel that
// streams upload progress to browsers.
//
// A browser opens /ws, sends {"type":"register","clientId":...} and gets a
// register_confirm back. Uploads to /api/recipes/from-image carry the same id
// in a header; every stage transition of that job is pushed to the matching
// connection through the Registry, and the HTTP response reports whether all
// of them were delivered.
package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/recipebox/recipebox/config"
	"github.com/recipebox/recipebox/errors"
	"github.com/recipebox/recipebox/logger"
	"github.com/recipebox/recipebox/pipeline"
	"github.com/recipebox/recipebox/recipes"
)

// Prober reports whether the AI service is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// RecipeStore creates and reads recipes.
type RecipeStore interface {
	pipeline.RecipeStore
	Get(ctx context.Context, id int64, userID string) (*recipes.Recipe, error)
}

// Deps are the collaborators a Server drives.
type Deps struct {
	Verifier  pipeline.Verifier
	Extractor pipeline.Extractor
	Cropper   pipeline.Cropper // nil disables cropping
	Store     RecipeStore
	Prober    Prober        // nil skips the upload preflight probe
	Auth      Authenticator // nil means BearerAuth
}

// Server is the recipebox HTTP server.
type Server struct {
	cfg          *config.Config
	registry     *Registry
	broadcaster  *Broadcaster
	orchestrator *pipeline.Orchestrator
	store        RecipeStore
	prober       Prober
	auth         Authenticator
	upgrader     websocket.Upgrader
	logger       *zap.SugaredLogger

	mu         sync.Mutex
	clients    map[*Client]struct{}
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	state  atomic.Int32
}

// New wires a server. The registry is created here and shared by the
// WebSocket handler and the upload orchestrator.
func New(cfg *config.Config, deps Deps, log *zap.SugaredLogger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: nil config")
	}
	if deps.Verifier == nil || deps.Extractor == nil || deps.Store == nil {
		return nil, errors.New("server: verifier, extractor and store are required")
	}
	log = logger.OrNop(log).With(logger.FieldComponent, "server")

	s := &Server{
		cfg:     cfg,
		store:   deps.Store,
		prober:  deps.Prober,
		auth:    deps.Auth,
		logger:  log,
		clients: make(map[*Client]struct{}),
	}
	if s.auth == nil {
		s.auth = BearerAuth{}
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.upgrader = s.newUpgrader()

	s.registry = NewRegistry(log.With(logger.FieldComponent, "registry"))
	s.broadcaster = NewBroadcaster(s.registry, log)
	s.orchestrator = pipeline.New(
		s.broadcaster,
		deps.Verifier,
		deps.Extractor,
		deps.Cropper,
		deps.Store,
		pipeline.Options{
			CropTimeout:       time.Duration(cfg.Vision.CropTimeoutSeconds) * time.Second,
			CoverMaxDimension: cfg.Recipes.CoverMaxDimension,
		},
		log.With(logger.FieldComponent, "pipeline"),
	)
	return s, nil
}

// Registry returns the push connection registry.
func (s *Server) Registry() *Registry { return s.registry }

// Handler returns the routed HTTP handler. Routes are registered without
// method patterns so the CORS middleware sees OPTIONS requests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.corsMiddleware(s.HandleWebSocket))
	mux.HandleFunc("/api/recipes/from-image", s.corsMiddleware(s.HandleUploadImage))
	mux.HandleFunc("/api/recipes/{id}", s.corsMiddleware(s.HandleGetRecipe))
	mux.HandleFunc("/healthz", s.corsMiddleware(s.HandleHealth))
	return s.logRequests(mux)
}

func (s *Server) addClient(c *Client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Debugw("Push connection opened", "conn_id", c.id, logger.FieldCount, n)
}

// removeClient reaps a closed connection and its registry entry.
func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	delete(s.clients, c)
	n := len(s.clients)
	s.mu.Unlock()

	if id := c.ClientID(); id != "" {
		s.registry.Unregister(id, c)
	}
	c.close()
	s.logger.Debugw("Push connection closed", "conn_id", c.id, logger.FieldClientID, c.ClientID(), logger.FieldCount, n)
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
