// Package repo persists gateway state as a single JSON document on disk.
// One file keeps inspection and backup trivial; the workload is a handful
// of conversations, not a database problem.
package repo

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"agentgate/internal/domain"
)

type ProviderSetting struct {
	APIKey    string            `json:"api_key"`
	BaseURL   string            `json:"base_url"`
	Enabled   *bool             `json:"enabled,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	TimeoutMS int               `json:"timeout_ms,omitempty"`
}

// State is the full persisted document. Histories, Identities and Proverbs
// are keyed by thread id and together form the durable conversation state.
type State struct {
	Threads    map[string]domain.ThreadSpec `json:"threads"`
	Histories  map[string][]domain.Message  `json:"histories"`
	Identities map[string]domain.Identity   `json:"identities"`
	Proverbs   map[string][]string          `json:"proverbs"`
	Providers  map[string]ProviderSetting   `json:"providers"`
	ActiveLLM  domain.ModelSlotConfig       `json:"active_llm"`
}

type Store struct {
	mu        sync.RWMutex
	state     State
	stateFile string
}

func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		stateFile: filepath.Join(dataDir, "state.json"),
		state:     defaultState(),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func defaultState() State {
	return State{
		Threads:    map[string]domain.ThreadSpec{},
		Histories:  map[string][]domain.Message{},
		Identities: map[string]domain.Identity{},
		Proverbs:   map[string][]string{},
		Providers: map[string]ProviderSetting{
			"demo":   defaultProviderSetting(),
			"openai": defaultProviderSetting(),
		},
		ActiveLLM: domain.ModelSlotConfig{ProviderID: "demo", Model: "demo-chat"},
	}
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.stateFile)
	if errors.Is(err, os.ErrNotExist) {
		return s.saveLocked()
	}
	if err != nil {
		return err
	}
	var state State
	if err := json.Unmarshal(b, &state); err != nil {
		return err
	}
	if state.Threads == nil {
		state.Threads = map[string]domain.ThreadSpec{}
	}
	if state.Histories == nil {
		state.Histories = map[string][]domain.Message{}
	}
	if state.Identities == nil {
		state.Identities = map[string]domain.Identity{}
	}
	if state.Proverbs == nil {
		state.Proverbs = map[string][]string{}
	}
	if state.Providers == nil {
		state.Providers = map[string]ProviderSetting{}
	}
	if _, ok := state.Providers["demo"]; !ok {
		state.Providers["demo"] = defaultProviderSetting()
	}
	if _, ok := state.Providers["openai"]; !ok {
		state.Providers["openai"] = defaultProviderSetting()
	}
	for id, setting := range state.Providers {
		if setting.Enabled == nil {
			enabled := true
			setting.Enabled = &enabled
		}
		if setting.Headers == nil {
			setting.Headers = map[string]string{}
		}
		state.Providers[id] = setting
	}
	if state.ActiveLLM.ProviderID == "" {
		state.ActiveLLM.ProviderID = "demo"
	}
	if state.ActiveLLM.Model == "" {
		state.ActiveLLM.Model = "demo-chat"
	}
	s.state = state
	return nil
}

func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	b, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.stateFile, b, 0o644)
}

func (s *Store) Read(fn func(state *State)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.state)
}

func (s *Store) Write(fn func(state *State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(&s.state); err != nil {
		return err
	}
	return s.saveLocked()
}

func defaultProviderSetting() ProviderSetting {
	enabled := true
	return ProviderSetting{
		Enabled: &enabled,
		Headers: map[string]string{},
	}
}
