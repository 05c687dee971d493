package app

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"agentgate/internal/domain"
	"agentgate/internal/provider"
	"agentgate/internal/repo"
)

// providerView is the admin-facing shape of a provider setting. Keys are
// never echoed back, only whether one is stored.
type providerView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Builtin   bool   `json:"builtin"`
	Enabled   bool   `json:"enabled"`
	HasAPIKey bool   `json:"has_api_key"`
	BaseURL   string `json:"base_url,omitempty"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

func makeProviderView(id string, setting repo.ProviderSetting) providerView {
	spec := provider.Lookup(id)
	name := spec.Name
	if name == "" {
		name = id
	}
	return providerView{
		ID:        id,
		Name:      name,
		Builtin:   provider.IsBuiltin(id),
		Enabled:   setting.Enabled == nil || *setting.Enabled,
		HasAPIKey: strings.TrimSpace(setting.APIKey) != "",
		BaseURL:   setting.BaseURL,
		TimeoutMS: setting.TimeoutMS,
	}
}

func (s *Server) listProviders(w http.ResponseWriter, _ *http.Request) {
	out := make([]providerView, 0)
	s.store.Read(func(state *repo.State) {
		for id, setting := range state.Providers {
			out = append(out, makeProviderView(id, setting))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) configureProvider(w http.ResponseWriter, r *http.Request) {
	id := provider.NormalizeID(chi.URLParam(r, "provider_id"))
	if id == "" {
		writeErr(w, http.StatusBadRequest, "invalid_request", "provider_id is required", nil)
		return
	}

	var body struct {
		APIKey    *string            `json:"api_key"`
		BaseURL   *string            `json:"base_url"`
		Enabled   *bool              `json:"enabled"`
		Headers   *map[string]string `json:"headers"`
		TimeoutMS *int               `json:"timeout_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body", nil)
		return
	}
	if body.TimeoutMS != nil && *body.TimeoutMS < 0 {
		writeErr(w, http.StatusBadRequest, "invalid_request", "timeout_ms must not be negative", nil)
		return
	}

	var updated repo.ProviderSetting
	if err := s.store.Write(func(state *repo.State) error {
		setting := state.Providers[id]
		if body.APIKey != nil {
			setting.APIKey = strings.TrimSpace(*body.APIKey)
		}
		if body.BaseURL != nil {
			setting.BaseURL = strings.TrimRight(strings.TrimSpace(*body.BaseURL), "/")
		}
		if body.Enabled != nil {
			enabled := *body.Enabled
			setting.Enabled = &enabled
		} else if setting.Enabled == nil {
			enabled := true
			setting.Enabled = &enabled
		}
		if body.Headers != nil {
			setting.Headers = sanitizeStringMap(*body.Headers)
		} else if setting.Headers == nil {
			setting.Headers = map[string]string{}
		}
		if body.TimeoutMS != nil {
			setting.TimeoutMS = *body.TimeoutMS
		}
		state.Providers[id] = setting
		updated = setting
		return nil
	}); err != nil {
		writeErr(w, http.StatusInternalServerError, "store_error", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, makeProviderView(id, updated))
}

func (s *Server) getActiveModel(w http.ResponseWriter, _ *http.Request) {
	var active domain.ModelSlotConfig
	s.store.Read(func(state *repo.State) {
		active = state.ActiveLLM
	})
	writeJSON(w, http.StatusOK, active)
}

func (s *Server) setActiveModel(w http.ResponseWriter, r *http.Request) {
	var body domain.ModelSlotConfig
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body", nil)
		return
	}
	body.ProviderID = provider.NormalizeID(body.ProviderID)
	body.Model = strings.TrimSpace(body.Model)
	if body.ProviderID == "" || body.Model == "" {
		writeErr(w, http.StatusBadRequest, "invalid_request", "provider_id and model are required", nil)
		return
	}

	disabled := false
	if err := s.store.Write(func(state *repo.State) error {
		if setting, ok := state.Providers[body.ProviderID]; ok && setting.Enabled != nil && !*setting.Enabled {
			disabled = true
			return nil
		}
		state.ActiveLLM = body
		return nil
	}); err != nil {
		writeErr(w, http.StatusInternalServerError, "store_error", err.Error(), nil)
		return
	}
	if disabled {
		writeErr(w, http.StatusBadRequest, "provider_disabled", "provider is disabled", nil)
		return
	}
	writeJSON(w, http.StatusOK, body)
}
