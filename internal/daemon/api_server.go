package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"steamfetch/internal/api"
	"steamfetch/internal/config"
	"steamfetch/internal/faults"
	"steamfetch/internal/logging"
	"steamfetch/internal/queue"
	"steamfetch/internal/steamcmd"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api bind address required")
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.WithComponent(logger, "api"),
		daemon: d,
	}

	token := cfg.Paths.APIToken
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/queue", authMiddleware(token, srv.handleQueue))
	mux.HandleFunc("/api/queue/", authMiddleware(token, srv.handleQueueItem))
	mux.HandleFunc("/api/history", authMiddleware(token, srv.handleHistory))
	mux.HandleFunc("/api/library", authMiddleware(token, srv.handleLibrary))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobs := s.daemon.manager.Snapshot()
		s.writeJSON(w, http.StatusOK, api.QueueListResponse{Jobs: api.FromJobs(jobs, time.Now())})
	case http.MethodPost:
		s.handleEnqueue(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	}
}

func (s *apiServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var body api.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	req := queue.EnqueueRequest{
		Identifier: body.Identifier,
		Title:      body.Title,
		AuthMode:   queue.AuthMode(body.AuthMode),
		Platform:   body.Platform,
		Validate:   body.Validate,
	}
	if body.Username != "" || body.Password != "" || body.GuardCode != "" {
		req.AuthMode = queue.AuthCredentialed
		req.Credentials = &steamcmd.Credentials{
			Username:  body.Username,
			Password:  body.Password,
			GuardCode: body.GuardCode,
		}
	}

	job, err := s.daemon.manager.Enqueue(req)
	if err != nil {
		s.writeFaultError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.JobResponse{Job: api.FromJob(job, time.Now())})
}

func (s *apiServer) handleQueueItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/queue/")
	if rest == "" {
		s.writeError(w, http.StatusNotFound, "job not found", string(faults.NotFound))
		return
	}

	if id, found := strings.CutSuffix(rest, "/guard"); found {
		s.handleGuardCode(w, r, id)
		return
	}
	if strings.Contains(rest, "/") {
		s.writeError(w, http.StatusNotFound, "job not found", string(faults.NotFound))
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, ok := s.daemon.manager.Get(rest)
		if !ok {
			s.writeError(w, http.StatusNotFound, "job not found", string(faults.NotFound))
			return
		}
		s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job, time.Now())})
	case http.MethodDelete:
		if err := s.daemon.manager.Cancel(rest); err != nil {
			s.writeFaultError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, struct{}{})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	}
}

func (s *apiServer) handleGuardCode(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	var body api.GuardCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if err := s.daemon.manager.SubmitGuardCode(id, body.Code); err != nil {
		s.writeFaultError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct{}{})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		entries, err := s.daemon.store.List(r.Context(), limit)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error(), "")
			return
		}
		s.writeJSON(w, http.StatusOK, api.HistoryResponse{Entries: entries})
	case http.MethodDelete:
		var states []queue.State
		for _, raw := range strings.Split(r.URL.Query().Get("state"), ",") {
			if trimmed := strings.TrimSpace(raw); trimmed != "" {
				states = append(states, queue.State(trimmed))
			}
		}
		deleted, err := s.daemon.store.Clear(r.Context(), states...)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error(), "")
			return
		}
		s.writeJSON(w, http.StatusOK, api.ClearHistoryResponse{Deleted: deleted})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	}
}

func (s *apiServer) handleLibrary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	games, err := s.daemon.scanner.List()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	s.writeJSON(w, http.StatusOK, api.LibraryResponse{Games: games})
}

// writeFaultError maps the failure taxonomy onto HTTP status codes.
func (s *apiServer) writeFaultError(w http.ResponseWriter, err error) {
	reason, _ := faults.ReasonOf(err)
	status := http.StatusInternalServerError
	switch reason {
	case faults.InvalidIdentifier, faults.AuthRequired:
		status = http.StatusBadRequest
	case faults.NotFound:
		status = http.StatusNotFound
	case faults.QueueFull:
		status = http.StatusTooManyRequests
	case faults.DependencyMissing:
		status = http.StatusServiceUnavailable
	}
	s.writeError(w, status, err.Error(), string(reason))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response failed", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message, reason string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Reason: reason})
}
