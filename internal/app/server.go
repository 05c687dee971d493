// Package app wires the HTTP surface: agent processing, thread management,
// and the per-thread file content endpoints.
package app

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	cronv3 "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"agentgate/internal/auth"
	"agentgate/internal/config"
	"agentgate/internal/contentstore"
	"agentgate/internal/domain"
	"agentgate/internal/observability"
	"agentgate/internal/repo"
	"agentgate/internal/runner"
	"agentgate/internal/tools"
	"agentgate/internal/workflow"
)

const version = "0.1.0"

type Server struct {
	cfg      config.Config
	log      zerolog.Logger
	store    *repo.Store
	files    *contentstore.Store
	registry *tools.Registry
	runner   *runner.Runner
	graph    *workflow.Graph

	retention *cronv3.Cron
	closeOnce sync.Once
}

func NewServer(cfg config.Config, log zerolog.Logger) (*Server, error) {
	store, err := repo.NewStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	files := contentstore.NewStore()
	var filesClient contentstore.Client
	if cfg.FileStoreURL != "" {
		// External mode: the tools read the remote content store, so
		// files must be ingested through that service. This process's
		// /process-file keeps serving the in-process store only.
		filesClient = contentstore.NewHTTPClient(cfg.FileStoreURL)
		log.Warn().
			Str("url", cfg.FileStoreURL).
			Msg("file tools read the external content store; uploads to this process are not visible to them")
	} else {
		filesClient = contentstore.NewLocalClient(files)
	}

	registry := tools.NewRegistry(log, filesClient)
	rn := runner.New()
	srv := &Server{
		cfg:      cfg,
		log:      log,
		store:    store,
		files:    files,
		registry: registry,
		runner:   rn,
		graph:    workflow.New(log, rn, registry, auth.New(log), newRepoCheckpointer(store)),
	}
	srv.startRetentionSweep()
	return srv, nil
}

func (s *Server) Close() {
	s.closeOnce.Do(func() {
		if s.retention != nil {
			<-s.retention.Stop().Done()
		}
	})
}

// startRetentionSweep expires old content store entries on a cron schedule.
// Without a TTL the store keeps entries for the process lifetime.
func (s *Server) startRetentionSweep() {
	if s.cfg.FileTTL <= 0 {
		return
	}
	c := cronv3.New()
	_, err := c.AddFunc(s.cfg.FileSweepSchedule, func() {
		pruned := s.files.PruneOlderThan(time.Now().Add(-s.cfg.FileTTL))
		if pruned > 0 {
			s.log.Info().Int("pruned", pruned).Msg("expired content store entries")
		}
	})
	if err != nil {
		s.log.Warn().Err(err).Str("schedule", s.cfg.FileSweepSchedule).Msg("invalid file sweep schedule, retention disabled")
		return
	}
	c.Start()
	s.retention = c
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(observability.RequestID)
	r.Use(observability.Logging(s.log))
	r.Use(cors)

	r.Get("/version", s.handleVersion)
	r.Get("/healthz", s.handleHealthz)

	r.Post("/agent/process", s.processAgent)
	r.Get("/agent/stream", s.streamAgent)

	r.Route("/threads", func(r chi.Router) {
		r.Get("/", s.listThreads)
		r.Post("/", s.createThread)
		r.Get("/{thread_id}", s.getThread)
		r.Delete("/{thread_id}", s.deleteThread)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Get("/providers", s.listProviders)
		r.Put("/providers/{provider_id}", s.configureProvider)
		r.Get("/models/active", s.getActiveModel)
		r.Put("/models/active", s.setActiveModel)
	})

	r.Post("/process-file", s.processFile)
	r.Get("/files/{thread_id}", s.listFiles)
	r.Get("/file/{thread_id}/{file_id}", s.getFile)
	r.Delete("/file/{thread_id}/{file_id}", s.deleteFile)

	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Request-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) listThreads(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	out := make([]domain.ThreadSpec, 0)
	s.store.Read(func(state *repo.State) {
		for _, spec := range state.Threads {
			if userID != "" && spec.UserID != userID {
				continue
			}
			out = append(out, spec)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createThread(w http.ResponseWriter, r *http.Request) {
	var req domain.ThreadSpec
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Name == "" {
		req.Name = "New Thread"
	}
	if req.Meta == nil {
		req.Meta = map[string]interface{}{}
	}
	now := nowISO()
	req.CreatedAt = now
	req.UpdatedAt = now
	if err := s.store.Write(func(state *repo.State) error {
		state.Threads[req.ID] = req
		if _, ok := state.Histories[req.ID]; !ok {
			state.Histories[req.ID] = []domain.Message{}
		}
		return nil
	}); err != nil {
		writeErr(w, http.StatusInternalServerError, "store_error", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type threadView struct {
	Thread   domain.ThreadSpec `json:"thread"`
	Messages []domain.Message  `json:"messages"`
}

func (s *Server) getThread(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "thread_id")
	var view threadView
	found := false
	s.store.Read(func(state *repo.State) {
		if spec, ok := state.Threads[id]; ok {
			found = true
			view = threadView{Thread: spec, Messages: state.Histories[id]}
		}
	})
	if !found {
		writeErr(w, http.StatusNotFound, "not_found", "thread not found", map[string]string{"thread_id": id})
		return
	}
	if view.Messages == nil {
		view.Messages = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) deleteThread(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "thread_id")
	deleted := false
	if err := s.store.Write(func(state *repo.State) error {
		if _, ok := state.Threads[id]; ok {
			deleted = true
			delete(state.Threads, id)
			delete(state.Histories, id)
			delete(state.Identities, id)
			delete(state.Proverbs, id)
		}
		return nil
	}); err != nil {
		writeErr(w, http.StatusInternalServerError, "store_error", err.Error(), nil)
		return
	}
	if !deleted {
		writeErr(w, http.StatusNotFound, "not_found", "thread not found", nil)
		return
	}
	s.files.DeleteThread(id)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErr(w http.ResponseWriter, code int, errCode, message string, details interface{}) {
	writeJSON(w, code, domain.APIErrorBody{Error: domain.APIError{Code: errCode, Message: message, Details: details}})
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
