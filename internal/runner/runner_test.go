package runner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"agentgate/internal/domain"
	"agentgate/internal/provider"
)

func TestDemoAdapterEchoesUserMessages(t *testing.T) {
	t.Parallel()

	r := New()
	turn, err := r.GenerateTurn(context.Background(), TurnInput{
		System: "You are a helpful assistant.",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "hello world"},
		},
	}, GenerateConfig{ProviderID: ProviderDemo}, nil)
	if err != nil {
		t.Fatalf("generate turn failed: %v", err)
	}
	if turn.Text != "Echo: hello world" {
		t.Fatalf("unexpected reply: %q", turn.Text)
	}
}

func TestOpenAICompatibleTurnDisablesParallelToolCalls(t *testing.T) {
	t.Parallel()

	var captured openAIChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request failed: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"done"}}]}`))
	}))
	defer srv.Close()

	r := New()
	tools := []domain.ToolDefinition{{
		Name:        "list_uploaded_files",
		Description: "list files",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"thread_id": map[string]interface{}{"type": "string"}},
		},
	}}
	turn, err := r.GenerateTurn(context.Background(), TurnInput{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "list my files"}},
	}, GenerateConfig{
		ProviderID: ProviderOpenAI,
		AdapterID:  provider.AdapterOpenAICompatible,
		Model:      "gpt-4o",
		APIKey:     "sk-test",
		BaseURL:    srv.URL,
	}, tools)
	if err != nil {
		t.Fatalf("generate turn failed: %v", err)
	}
	if turn.Text != "done" {
		t.Fatalf("unexpected reply: %q", turn.Text)
	}
	if captured.ParallelToolCalls == nil || *captured.ParallelToolCalls {
		t.Fatalf("expected parallel_tool_calls=false, got=%v", captured.ParallelToolCalls)
	}
	if len(captured.Tools) != 1 || captured.Tools[0].Function.Name != "list_uploaded_files" {
		t.Fatalf("unexpected tools payload: %+v", captured.Tools)
	}
}

func TestOpenAICompatibleTurnOmitsParallelFlagWithoutTools(t *testing.T) {
	t.Parallel()

	var captured openAIChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi"}}]}`))
	}))
	defer srv.Close()

	r := New()
	_, err := r.GenerateTurn(context.Background(), TurnInput{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	}, GenerateConfig{
		ProviderID: ProviderOpenAI,
		Model:      "gpt-4o",
		APIKey:     "sk-test",
		BaseURL:    srv.URL,
	}, nil)
	if err != nil {
		t.Fatalf("generate turn failed: %v", err)
	}
	if captured.ParallelToolCalls != nil {
		t.Fatalf("parallel_tool_calls should be omitted without tools")
	}
}

func TestOpenAICompatibleTurnParsesToolCalls(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":null,"tool_calls":[
			{"id":"call_abc","type":"function","function":{"name":"get_weather","arguments":"{\"location\":\"Lisbon\"}"}}
		]}}]}`))
	}))
	defer srv.Close()

	r := New()
	turn, err := r.GenerateTurn(context.Background(), TurnInput{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "weather in lisbon?"}},
	}, GenerateConfig{
		ProviderID: ProviderOpenAI,
		Model:      "gpt-4o",
		APIKey:     "sk-test",
		BaseURL:    srv.URL,
	}, nil)
	if err != nil {
		t.Fatalf("generate turn failed: %v", err)
	}
	if len(turn.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got=%d", len(turn.ToolCalls))
	}
	call := turn.ToolCalls[0]
	if call.ID != "call_abc" || call.Name != "get_weather" {
		t.Fatalf("unexpected call: %+v", call)
	}
	if call.Arguments["location"] != "Lisbon" {
		t.Fatalf("unexpected arguments: %+v", call.Arguments)
	}
}

func TestOpenAICompatibleTurnInvalidArguments(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{broken"}}
		]}}]}`))
	}))
	defer srv.Close()

	r := New()
	_, err := r.GenerateTurn(context.Background(), TurnInput{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	}, GenerateConfig{
		ProviderID: ProviderOpenAI,
		Model:      "gpt-4o",
		APIKey:     "sk-test",
		BaseURL:    srv.URL,
	}, nil)
	var invalid *InvalidToolCallError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidToolCallError, got=%v", err)
	}
	if invalid.Name != "get_weather" {
		t.Fatalf("unexpected tool name: %s", invalid.Name)
	}
}

func TestOpenAICompatibleTurnProviderFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := New()
	_, err := r.GenerateTurn(context.Background(), TurnInput{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	}, GenerateConfig{
		ProviderID: ProviderOpenAI,
		Model:      "gpt-4o",
		APIKey:     "sk-test",
		BaseURL:    srv.URL,
	}, nil)
	var runnerErr *RunnerError
	if !errors.As(err, &runnerErr) || runnerErr.Code != ErrorCodeProviderRequestFailed {
		t.Fatalf("expected provider_request_failed, got=%v", err)
	}
}

func TestOpenAICompatibleTurnMissingConfig(t *testing.T) {
	t.Parallel()

	r := New()
	_, err := r.GenerateTurn(context.Background(), TurnInput{}, GenerateConfig{
		ProviderID: ProviderOpenAI,
		Model:      "gpt-4o",
	}, nil)
	var runnerErr *RunnerError
	if !errors.As(err, &runnerErr) || runnerErr.Code != ErrorCodeProviderNotConfigured {
		t.Fatalf("expected provider_not_configured, got=%v", err)
	}

	_, err = r.GenerateTurn(context.Background(), TurnInput{}, GenerateConfig{
		ProviderID: "openai",
		APIKey:     "sk-test",
	}, nil)
	if !errors.As(err, &runnerErr) || runnerErr.Code != ErrorCodeProviderNotConfigured {
		t.Fatalf("expected provider_not_configured for missing model, got=%v", err)
	}
}

func TestGenerateTurnStreamAggregatesDeltas(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			"[DONE]",
		}
		for _, chunk := range chunks {
			_, _ = w.Write([]byte("data: " + chunk + "\n\n"))
		}
	}))
	defer srv.Close()

	var deltas []string
	r := New()
	turn, err := r.GenerateTurnStream(context.Background(), TurnInput{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	}, GenerateConfig{
		ProviderID: ProviderOpenAI,
		Model:      "gpt-4o",
		APIKey:     "sk-test",
		BaseURL:    srv.URL,
	}, nil, func(delta string) {
		deltas = append(deltas, delta)
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if turn.Text != "Hello" {
		t.Fatalf("unexpected text: %q", turn.Text)
	}
	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas, got=%d", len(deltas))
	}
}

func TestToOpenAIMessagesRoundTrip(t *testing.T) {
	t.Parallel()

	messages := toOpenAIMessages(TurnInput{
		System: "sys",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "list files"},
			{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{
				ID:        "call_1",
				Name:      "list_uploaded_files",
				Arguments: map[string]interface{}{"thread_id": "t1"},
			}}},
			{Role: domain.RoleTool, Content: "2 files", ToolCallID: "call_1", Name: "list_uploaded_files"},
		},
	})
	if len(messages) != 4 {
		t.Fatalf("expected 4 wire messages, got=%d", len(messages))
	}
	if messages[0].Role != domain.RoleSystem {
		t.Fatalf("expected system message first, got=%s", messages[0].Role)
	}
	if len(messages[2].ToolCalls) != 1 || messages[2].ToolCalls[0].Function.Name != "list_uploaded_files" {
		t.Fatalf("unexpected assistant tool calls: %+v", messages[2].ToolCalls)
	}
	if messages[3].ToolCallID != "call_1" {
		t.Fatalf("tool result must carry tool_call_id, got=%+v", messages[3])
	}
}
