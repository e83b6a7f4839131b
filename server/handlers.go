package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/recipebox/recipebox/errors"
	"github.com/recipebox/recipebox/logger"
	"github.com/recipebox/recipebox/pipeline"
	"github.com/recipebox/recipebox/progress"
	"github.com/recipebox/recipebox/version"
)

// HandleWebSocket upgrades a browser to a push connection.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.getState() != ServerStateRunning {
		writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}
	if max := s.cfg.WebSocket.MaxClients; max > 0 && s.clientCount() >= max {
		s.logger.Warnw("Rejecting push connection, limit reached", logger.FieldCount, max)
		writeError(w, http.StatusServiceUnavailable, "Too many connections")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warnw("WebSocket upgrade failed", logger.FieldError, err, "origin", r.Header.Get("Origin"))
		return
	}

	buf := s.cfg.WebSocket.SendBuffer
	if buf <= 0 {
		buf = 64
	}
	c := &Client{
		server: s,
		conn:   conn,
		send:   make(chan []byte, buf),
		id:     uuid.NewString(),
	}
	s.addClient(c)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		c.writePump()
	}()
	go func() {
		defer s.wg.Done()
		c.readPump()
	}()
}

// HandleUploadImage runs an image-to-recipe job (POST) or reports whether
// the AI service is available (HEAD).
func (s *Server) HandleUploadImage(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost, http.MethodHead) {
		return
	}
	if r.Method == http.MethodHead {
		s.handleUploadPreflight(w, r)
		return
	}

	start := time.Now()
	clientID := strings.TrimSpace(r.Header.Get(s.cfg.Server.ClientIDHeader))
	ctx := logger.WithRequestID(r.Context(), uuid.NewString())
	ctx = logger.WithClientID(ctx, clientID)
	log := logger.FromContext(ctx, s.logger)

	userID, err := s.auth.Authenticate(r)
	if err != nil {
		log.Infow("Upload rejected, unauthenticated", logger.FieldError, err)
		s.respondUpload(w, log, nil, &pipeline.StageError{
			Stage:   progress.StageUploading,
			Message: pipeline.MsgUnauthorized,
			Err:     errors.Mark(err, errors.ErrUnauthorized),
		})
		return
	}
	ctx = logger.WithUserID(ctx, userID)

	image, err := readImage(w, r, s.cfg.Server.MaxUploadBytes)
	if err != nil {
		log.Infow("Upload rejected", logger.FieldError, err)
		s.respondUpload(w, log, nil, &pipeline.StageError{
			Stage:   progress.StageUploading,
			Message: err.Error(),
			Err:     err,
		})
		return
	}

	log.Infow("Upload received", logger.FieldSize, len(image))
	res, err := s.orchestrator.Run(ctx, pipeline.Job{
		ClientID: clientID,
		UserID:   userID,
		Image:    image,
	})
	status := s.respondUpload(w, log, res, err)
	log.Infow("Upload finished",
		logger.FieldStatus, status,
		logger.FieldDelivered, res.Delivered,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
}

// respondUpload writes the upload body and returns the status sent.
func (s *Server) respondUpload(w http.ResponseWriter, log *zap.SugaredLogger, res *pipeline.Result, err error) int {
	status, body := pipeline.NewResponse(res, err)
	if werr := writeJSON(w, status, body); werr != nil {
		log.Warnw("Failed to write upload response", logger.FieldError, werr)
	}
	return status
}

func (s *Server) handleUploadPreflight(w http.ResponseWriter, r *http.Request) {
	if s.prober == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), preflightTimeout)
	defer cancel()
	if err := s.prober.Ping(ctx); err != nil {
		s.logger.Warnw("AI service preflight failed", logger.FieldError, err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleGetRecipe returns one of the caller's recipes.
func (s *Server) HandleGetRecipe(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}
	userID, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, pipeline.MsgUnauthorized)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid recipe id")
		return
	}

	rec, err := s.store.Get(r.Context(), id, userID)
	switch {
	case errors.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Recipe not found")
		return
	case err != nil:
		s.logger.Errorw("Failed to load recipe", logger.FieldRecipeID, id, logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Failed to load recipe")
		return
	}
	_ = writeJSON(w, http.StatusOK, rec)
}

// HandleHealth reports liveness and push-channel counters.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	info := version.Get()
	state := s.getState()
	resp := HealthResponse{
		Status:     "ok",
		State:      state.String(),
		Version:    info.Version,
		Commit:     info.Short(),
		Clients:    s.clientCount(),
		Registered: s.registry.Len(),
		Drops:      s.registry.Drops(),
	}
	code := http.StatusOK
	if state != ServerStateRunning {
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	_ = writeJSON(w, code, resp)
}
