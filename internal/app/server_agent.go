package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"agentgate/internal/domain"
	"agentgate/internal/provider"
	"agentgate/internal/repo"
	"agentgate/internal/runner"
	"agentgate/internal/workflow"
)

type agentProcessRequest struct {
	ThreadID      string                  `json:"thread_id"`
	Message       string                  `json:"message"`
	Authorization string                  `json:"authorization,omitempty"`
	ClientTools   []domain.ToolDefinition `json:"client_tools,omitempty"`
	Stream        bool                    `json:"stream,omitempty"`
}

type agentProcessResponse struct {
	ThreadID string              `json:"thread_id"`
	Reply    string              `json:"reply"`
	Events   []domain.AgentEvent `json:"events,omitempty"`
}

func (s *Server) processAgent(w http.ResponseWriter, r *http.Request) {
	var req agentProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.ThreadID) == "" {
		writeErr(w, http.StatusBadRequest, "invalid_request", "thread_id is required", nil)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeErr(w, http.StatusBadRequest, "invalid_request", "message is required", nil)
		return
	}
	if req.Authorization == "" {
		req.Authorization = r.Header.Get("Authorization")
	}

	generateConfig, err := s.resolveGenerateConfig()
	if err != nil {
		writeErr(w, http.StatusBadRequest, "provider_not_configured", err.Error(), nil)
		return
	}

	streaming := req.Stream
	var flusher http.Flusher
	streamStarted := false
	if streaming {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		var ok bool
		flusher, ok = w.(http.Flusher)
		if !ok {
			writeErr(w, http.StatusInternalServerError, "stream_not_supported", "streaming not supported", nil)
			return
		}
	}

	streamFail := func(status int, code, message string) {
		if !streaming || !streamStarted {
			writeErr(w, status, code, message, nil)
			return
		}
		payload, _ := json.Marshal(domain.AgentEvent{
			Type: domain.EventError,
			Meta: map[string]interface{}{"code": code, "message": message},
		})
		_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}

	events := make([]domain.AgentEvent, 0, 12)
	emit := func(event domain.AgentEvent) {
		events = append(events, event)
		if !streaming {
			return
		}
		payload, _ := json.Marshal(event)
		_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		streamStarted = true
	}

	result, err := s.graph.RunCycle(r.Context(), workflow.CycleInput{
		ThreadID:    req.ThreadID,
		Credential:  req.Authorization,
		Message:     req.Message,
		ClientTools: req.ClientTools,
		Generate:    generateConfig,
	}, emit)
	if err != nil {
		status, code, message := mapRunnerError(err)
		streamFail(status, code, message)
		return
	}

	s.touchThread(req.ThreadID, req.Message)

	if !streaming {
		writeJSON(w, http.StatusOK, agentProcessResponse{
			ThreadID: req.ThreadID,
			Reply:    result.Reply,
			Events:   events,
		})
		return
	}
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// touchThread backfills the thread record so histories written by the
// workflow always have a listed thread, and names fresh threads from the
// first user message.
func (s *Server) touchThread(threadID, firstMessage string) {
	_ = s.store.Write(func(state *repo.State) error {
		spec, ok := state.Threads[threadID]
		if !ok {
			now := nowISO()
			spec = domain.ThreadSpec{
				ID:        threadID,
				Name:      "New Thread",
				Meta:      map[string]interface{}{},
				CreatedAt: now,
			}
		}
		spec.UpdatedAt = nowISO()
		if spec.Name == "New Thread" {
			if first := strings.TrimSpace(firstMessage); first != "" {
				runes := []rune(first)
				if len(runes) > 20 {
					spec.Name = string(runes[:20])
				} else {
					spec.Name = first
				}
			}
		}
		state.Threads[threadID] = spec
		return nil
	})
}

var agentStreamUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// streamAgent serves turn-cycles over a websocket: each client text frame
// is one process request, and the cycle's events stream back as JSON frames
// on the same connection.
func (s *Server) streamAgent(w http.ResponseWriter, r *http.Request) {
	conn, err := agentStreamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(event domain.AgentEvent) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(event)
	}

	for {
		var req agentProcessRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn().Err(err).Msg("agent stream closed unexpectedly")
			}
			return
		}
		if strings.TrimSpace(req.ThreadID) == "" || strings.TrimSpace(req.Message) == "" {
			_ = send(domain.AgentEvent{
				Type: domain.EventError,
				Meta: map[string]interface{}{"code": "invalid_request", "message": "thread_id and message are required"},
			})
			continue
		}
		if req.Authorization == "" {
			req.Authorization = r.Header.Get("Authorization")
		}

		generateConfig, err := s.resolveGenerateConfig()
		if err != nil {
			_ = send(domain.AgentEvent{
				Type: domain.EventError,
				Meta: map[string]interface{}{"code": "provider_not_configured", "message": err.Error()},
			})
			continue
		}

		_, err = s.graph.RunCycle(r.Context(), workflow.CycleInput{
			ThreadID:    req.ThreadID,
			Credential:  req.Authorization,
			Message:     req.Message,
			ClientTools: req.ClientTools,
			Generate:    generateConfig,
		}, func(event domain.AgentEvent) {
			_ = send(event)
		})
		if err != nil {
			_, code, message := mapRunnerError(err)
			_ = send(domain.AgentEvent{
				Type: domain.EventError,
				Meta: map[string]interface{}{"code": code, "message": message},
			})
			continue
		}
		s.touchThread(req.ThreadID, req.Message)
	}
}

// resolveGenerateConfig turns the persisted active model slot plus provider
// settings into a runner config. An unset slot falls back to the demo
// provider so a fresh install answers without credentials.
func (s *Server) resolveGenerateConfig() (runner.GenerateConfig, error) {
	var active domain.ModelSlotConfig
	var setting repo.ProviderSetting
	s.store.Read(func(state *repo.State) {
		active = state.ActiveLLM
		active.ProviderID = provider.NormalizeID(active.ProviderID)
		setting = state.Providers[active.ProviderID]
	})

	if active.ProviderID == "" || strings.TrimSpace(active.Model) == "" {
		return runner.GenerateConfig{
			ProviderID: runner.ProviderDemo,
			Model:      "demo-chat",
			AdapterID:  provider.AdapterDemo,
		}, nil
	}
	if setting.Enabled != nil && !*setting.Enabled {
		return runner.GenerateConfig{}, fmt.Errorf("active provider %q is disabled", active.ProviderID)
	}

	spec := provider.Lookup(active.ProviderID)
	return runner.GenerateConfig{
		ProviderID: active.ProviderID,
		Model:      active.Model,
		APIKey:     resolveProviderAPIKey(spec, setting),
		BaseURL:    resolveProviderBaseURL(spec, setting),
		AdapterID:  spec.Adapter,
		Headers:    sanitizeStringMap(setting.Headers),
		TimeoutMS:  setting.TimeoutMS,
	}, nil
}

func resolveProviderAPIKey(spec provider.Spec, setting repo.ProviderSetting) string {
	if key := strings.TrimSpace(setting.APIKey); key != "" {
		return key
	}
	if spec.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(spec.APIKeyEnv))
}

func resolveProviderBaseURL(spec provider.Spec, setting repo.ProviderSetting) string {
	if baseURL := strings.TrimSpace(setting.BaseURL); baseURL != "" {
		return baseURL
	}
	return spec.DefaultBaseURL
}

func sanitizeStringMap(in map[string]string) map[string]string {
	out := map[string]string{}
	for key, value := range in {
		k := strings.TrimSpace(key)
		v := strings.TrimSpace(value)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func mapRunnerError(err error) (status int, code string, message string) {
	var runnerErr *runner.RunnerError
	if errors.As(err, &runnerErr) {
		switch runnerErr.Code {
		case runner.ErrorCodeProviderNotConfigured, runner.ErrorCodeProviderNotSupported:
			return http.StatusBadRequest, runnerErr.Code, runnerErr.Message
		case runner.ErrorCodeProviderRequestFailed, runner.ErrorCodeProviderInvalidReply:
			return http.StatusBadGateway, runnerErr.Code, runnerErr.Message
		}
	}
	var invalid *runner.InvalidToolCallError
	if errors.As(err, &invalid) {
		return http.StatusBadGateway, "provider_invalid_reply", invalid.Error()
	}
	return http.StatusInternalServerError, "agent_error", err.Error()
}

// repoCheckpointer persists workflow state through the JSON store and
// serializes cycles per thread.
type repoCheckpointer struct {
	store *repo.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newRepoCheckpointer(store *repo.Store) *repoCheckpointer {
	return &repoCheckpointer{
		store: store,
		locks: map[string]*sync.Mutex{},
	}
}

func (c *repoCheckpointer) Lock(threadID string) func() {
	c.mu.Lock()
	lock, ok := c.locks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[threadID] = lock
	}
	c.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (c *repoCheckpointer) Load(threadID string) (workflow.State, error) {
	state := workflow.State{ThreadID: threadID, Identity: domain.AnonymousIdentity()}
	c.store.Read(func(st *repo.State) {
		state.Messages = append([]domain.Message(nil), st.Histories[threadID]...)
		if identity, ok := st.Identities[threadID]; ok {
			state.Identity = identity
		}
		state.Proverbs = append([]string(nil), st.Proverbs[threadID]...)
	})
	return state, nil
}

func (c *repoCheckpointer) Save(threadID string, state workflow.State) error {
	return c.store.Write(func(st *repo.State) error {
		st.Histories[threadID] = append([]domain.Message(nil), state.Messages...)
		st.Identities[threadID] = state.Identity
		if len(state.Proverbs) > 0 {
			st.Proverbs[threadID] = append([]string(nil), state.Proverbs...)
		}
		return nil
	})
}
