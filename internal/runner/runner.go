// Package runner is the language-model capability boundary: given a system
// instruction, a message history and a tool set, produce either a final
// assistant message or a set of tool invocation requests.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"agentgate/internal/domain"
	"agentgate/internal/provider"
)

const (
	ProviderDemo   = "demo"
	ProviderOpenAI = "openai"

	defaultOpenAIBaseURL = "https://api.openai.com/v1"

	ErrorCodeProviderNotConfigured = "provider_not_configured"
	ErrorCodeProviderNotSupported  = "provider_not_supported"
	ErrorCodeProviderRequestFailed = "provider_request_failed"
	ErrorCodeProviderInvalidReply  = "provider_invalid_reply"
)

type RunnerError struct {
	Code    string
	Message string
	Err     error
}

func (e *RunnerError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func (e *RunnerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type InvalidToolCallError struct {
	Index        int
	CallID       string
	Name         string
	ArgumentsRaw string
	Err          error
}

func (e *InvalidToolCallError) Error() string {
	if e == nil {
		return ""
	}
	detail := "invalid arguments"
	if e.Err != nil {
		detail = e.Err.Error()
	}
	if name := strings.TrimSpace(e.Name); name != "" {
		return fmt.Sprintf("provider tool call %q has invalid arguments: %s", name, detail)
	}
	return fmt.Sprintf("provider tool call[%d] has invalid arguments: %s", e.Index, detail)
}

func (e *InvalidToolCallError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type GenerateConfig struct {
	ProviderID string
	Model      string
	APIKey     string
	BaseURL    string
	AdapterID  string
	Headers    map[string]string
	TimeoutMS  int

	// ParallelToolCalls is forwarded to the provider when tools are
	// attached. The workflow leaves it false so tool effects stay
	// strictly ordered within a cycle; flip it only if the dispatcher
	// is made safe for concurrent calls.
	ParallelToolCalls bool
}

// TurnInput is one model invocation: the per-cycle system instruction plus
// the full message history.
type TurnInput struct {
	System   string
	Messages []domain.Message
}

// TurnResult is what the model produced: final text, tool requests, or both.
type TurnResult struct {
	Text      string
	ToolCalls []domain.ToolCall
}

type ProviderAdapter interface {
	ID() string
	GenerateTurn(ctx context.Context, in TurnInput, cfg GenerateConfig, tools []domain.ToolDefinition, runner *Runner) (TurnResult, error)
}

type StreamProviderAdapter interface {
	ProviderAdapter
	GenerateTurnStream(ctx context.Context, in TurnInput, cfg GenerateConfig, tools []domain.ToolDefinition, runner *Runner, onDelta func(string)) (TurnResult, error)
}

type Runner struct {
	httpClient *http.Client
	adapters   map[string]ProviderAdapter
}

func New() *Runner {
	return NewWithHTTPClient(&http.Client{Timeout: 60 * time.Second})
}

func NewWithHTTPClient(client *http.Client) *Runner {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	r := &Runner{
		httpClient: client,
		adapters:   map[string]ProviderAdapter{},
	}
	r.registerAdapter(&demoAdapter{})
	r.registerAdapter(&openAICompatibleAdapter{})
	return r
}

func (r *Runner) registerAdapter(adapter ProviderAdapter) {
	if adapter == nil {
		return
	}
	id := strings.TrimSpace(adapter.ID())
	if id == "" {
		return
	}
	r.adapters[id] = adapter
}

func (r *Runner) resolveAdapter(cfg GenerateConfig) (ProviderAdapter, error) {
	providerID := strings.ToLower(strings.TrimSpace(cfg.ProviderID))
	if providerID == "" {
		providerID = ProviderDemo
	}
	adapterID := strings.TrimSpace(cfg.AdapterID)
	if adapterID == "" {
		adapterID = defaultAdapterForProvider(providerID)
	}
	if adapterID == "" {
		return nil, &RunnerError{
			Code:    ErrorCodeProviderNotSupported,
			Message: fmt.Sprintf("provider %q is not supported", providerID),
		}
	}
	if adapterID != provider.AdapterDemo && strings.TrimSpace(cfg.Model) == "" {
		return nil, &RunnerError{Code: ErrorCodeProviderNotConfigured, Message: "model is required for active provider"}
	}
	adapter, ok := r.adapters[adapterID]
	if !ok {
		return nil, &RunnerError{
			Code:    ErrorCodeProviderNotSupported,
			Message: fmt.Sprintf("adapter %q is not supported", adapterID),
		}
	}
	return adapter, nil
}

// GenerateTurn invokes the model exactly once. No retries: a capability
// failure surfaces to the caller as a cycle-ending error.
func (r *Runner) GenerateTurn(ctx context.Context, in TurnInput, cfg GenerateConfig, tools []domain.ToolDefinition) (TurnResult, error) {
	adapter, err := r.resolveAdapter(cfg)
	if err != nil {
		return TurnResult{}, err
	}
	return adapter.GenerateTurn(ctx, in, cfg, tools, r)
}

func (r *Runner) GenerateTurnStream(
	ctx context.Context,
	in TurnInput,
	cfg GenerateConfig,
	tools []domain.ToolDefinition,
	onDelta func(string),
) (TurnResult, error) {
	adapter, err := r.resolveAdapter(cfg)
	if err != nil {
		return TurnResult{}, err
	}
	if streamAdapter, ok := adapter.(StreamProviderAdapter); ok {
		return streamAdapter.GenerateTurnStream(ctx, in, cfg, tools, r, onDelta)
	}
	turn, err := adapter.GenerateTurn(ctx, in, cfg, tools, r)
	if err != nil {
		return TurnResult{}, err
	}
	if onDelta != nil && turn.Text != "" {
		onDelta(turn.Text)
	}
	return turn, nil
}

type demoAdapter struct{}

func (a *demoAdapter) ID() string {
	return provider.AdapterDemo
}

func (a *demoAdapter) GenerateTurn(_ context.Context, in TurnInput, _ GenerateConfig, _ []domain.ToolDefinition, _ *Runner) (TurnResult, error) {
	return TurnResult{Text: generateDemoReply(in)}, nil
}

func generateDemoReply(in TurnInput) string {
	parts := make([]string, 0, len(in.Messages))
	for _, msg := range in.Messages {
		if msg.Role != domain.RoleUser {
			continue
		}
		if text := strings.TrimSpace(msg.Content); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "Echo: (empty input)"
	}
	return "Echo: " + strings.Join(parts, " ")
}

type openAICompatibleAdapter struct{}

func (a *openAICompatibleAdapter) ID() string {
	return provider.AdapterOpenAICompatible
}

func (a *openAICompatibleAdapter) GenerateTurn(ctx context.Context, in TurnInput, cfg GenerateConfig, tools []domain.ToolDefinition, runner *Runner) (TurnResult, error) {
	return runner.generateOpenAICompatibleTurn(ctx, in, cfg, tools)
}

func (a *openAICompatibleAdapter) GenerateTurnStream(
	ctx context.Context,
	in TurnInput,
	cfg GenerateConfig,
	tools []domain.ToolDefinition,
	runner *Runner,
	onDelta func(string),
) (TurnResult, error) {
	return runner.generateOpenAICompatibleTurnStream(ctx, in, cfg, tools, onDelta)
}

func defaultAdapterForProvider(providerID string) string {
	switch providerID {
	case "", ProviderDemo:
		return provider.AdapterDemo
	case ProviderOpenAI:
		return provider.AdapterOpenAICompatible
	default:
		return ""
	}
}

func (r *Runner) prepareRequest(in TurnInput, cfg GenerateConfig, tools []domain.ToolDefinition, stream bool) (openAIChatRequest, error) {
	payload := openAIChatRequest{
		Model:    cfg.Model,
		Messages: toOpenAIMessages(in),
		Tools:    toOpenAITools(tools),
		Stream:   stream,
	}
	if len(payload.Tools) > 0 {
		// serialized tool emission unless explicitly re-enabled
		parallel := cfg.ParallelToolCalls
		payload.ParallelToolCalls = &parallel
	}
	return payload, nil
}

func (r *Runner) generateOpenAICompatibleTurn(ctx context.Context, in TurnInput, cfg GenerateConfig, tools []domain.ToolDefinition) (TurnResult, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return TurnResult{}, &RunnerError{Code: ErrorCodeProviderNotConfigured, Message: "provider api_key is required"}
	}

	payload, err := r.prepareRequest(in, cfg, tools, false)
	if err != nil {
		return TurnResult{}, err
	}
	respBody, status, err := r.postChatCompletions(ctx, cfg, payload, "")
	if err != nil {
		return TurnResult{}, err
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return TurnResult{}, &RunnerError{
			Code:    ErrorCodeProviderRequestFailed,
			Message: fmt.Sprintf("provider returned status %d", status),
		}
	}

	var completion openAIChatResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return TurnResult{}, &RunnerError{
			Code:    ErrorCodeProviderInvalidReply,
			Message: "provider response is not valid json",
			Err:     err,
		}
	}
	if len(completion.Choices) == 0 {
		return TurnResult{}, &RunnerError{
			Code:    ErrorCodeProviderInvalidReply,
			Message: "provider response has no choices",
		}
	}

	message := completion.Choices[0].Message
	text := strings.TrimSpace(extractOpenAIContent(message.Content))
	toolCalls, err := parseOpenAIToolCalls(message.ToolCalls)
	if err != nil {
		return TurnResult{}, &RunnerError{
			Code:    ErrorCodeProviderInvalidReply,
			Message: err.Error(),
			Err:     err,
		}
	}
	if text == "" && len(toolCalls) == 0 {
		return TurnResult{}, &RunnerError{
			Code:    ErrorCodeProviderInvalidReply,
			Message: "provider response has empty content",
		}
	}
	return TurnResult{Text: text, ToolCalls: toolCalls}, nil
}

func (r *Runner) generateOpenAICompatibleTurnStream(
	ctx context.Context,
	in TurnInput,
	cfg GenerateConfig,
	tools []domain.ToolDefinition,
	onDelta func(string),
) (TurnResult, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return TurnResult{}, &RunnerError{Code: ErrorCodeProviderNotConfigured, Message: "provider api_key is required"}
	}

	payload, err := r.prepareRequest(in, cfg, tools, true)
	if err != nil {
		return TurnResult{}, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return TurnResult{}, &RunnerError{
			Code:    ErrorCodeProviderRequestFailed,
			Message: "failed to encode provider request",
			Err:     err,
		}
	}

	requestCtx := ctx
	cancel := func() {}
	if cfg.TimeoutMS > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutMS)*time.Millisecond)
	}
	defer cancel()

	httpReq, err := r.newChatRequest(requestCtx, cfg, body)
	if err != nil {
		return TurnResult{}, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return TurnResult{}, &RunnerError{
			Code:    ErrorCodeProviderRequestFailed,
			Message: "provider request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
		return TurnResult{}, &RunnerError{
			Code:    ErrorCodeProviderRequestFailed,
			Message: fmt.Sprintf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
		}
	}

	var replyBuilder strings.Builder
	toolCalls := map[int]*openAIToolCall{}
	processData := func(data string) error {
		if data == "[DONE]" {
			return nil
		}
		var chunk openAIChatStreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("provider stream chunk is not valid json: %w", err)
		}
		for _, choice := range chunk.Choices {
			delta := extractOpenAIDeltaContent(choice.Delta.Content)
			if delta != "" {
				replyBuilder.WriteString(delta)
				if onDelta != nil {
					onDelta(delta)
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				idx := tc.Index
				if idx < 0 {
					idx = 0
				}
				current, ok := toolCalls[idx]
				if !ok {
					current = &openAIToolCall{}
					toolCalls[idx] = current
				}
				if strings.TrimSpace(tc.ID) != "" {
					current.ID = strings.TrimSpace(tc.ID)
				}
				if strings.TrimSpace(tc.Type) != "" {
					current.Type = strings.TrimSpace(tc.Type)
				}
				if strings.TrimSpace(tc.Function.Name) != "" {
					current.Function.Name = strings.TrimSpace(tc.Function.Name)
				}
				if tc.Function.Arguments != "" {
					current.Function.Arguments += tc.Function.Arguments
				}
			}
		}
		return nil
	}

	if err := consumeSSEData(resp.Body, processData); err != nil {
		return TurnResult{}, &RunnerError{
			Code:    ErrorCodeProviderInvalidReply,
			Message: "provider stream response is invalid",
			Err:     err,
		}
	}

	orderedIndexes := make([]int, 0, len(toolCalls))
	for idx := range toolCalls {
		orderedIndexes = append(orderedIndexes, idx)
	}
	sort.Ints(orderedIndexes)
	aggregated := make([]openAIToolCall, 0, len(orderedIndexes))
	for _, idx := range orderedIndexes {
		if tc := toolCalls[idx]; tc != nil {
			aggregated = append(aggregated, *tc)
		}
	}

	parsedToolCalls, err := parseOpenAIToolCalls(aggregated)
	if err != nil {
		return TurnResult{}, &RunnerError{
			Code:    ErrorCodeProviderInvalidReply,
			Message: err.Error(),
			Err:     err,
		}
	}

	reply := replyBuilder.String()
	if strings.TrimSpace(reply) == "" && len(parsedToolCalls) == 0 {
		return TurnResult{}, &RunnerError{
			Code:    ErrorCodeProviderInvalidReply,
			Message: "provider response has empty content",
		}
	}
	return TurnResult{Text: reply, ToolCalls: parsedToolCalls}, nil
}

func (r *Runner) postChatCompletions(ctx context.Context, cfg GenerateConfig, payload openAIChatRequest, accept string) ([]byte, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, &RunnerError{
			Code:    ErrorCodeProviderRequestFailed,
			Message: "failed to encode provider request",
			Err:     err,
		}
	}

	requestCtx := ctx
	cancel := func() {}
	if cfg.TimeoutMS > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutMS)*time.Millisecond)
	}
	defer cancel()

	httpReq, err := r.newChatRequest(requestCtx, cfg, body)
	if err != nil {
		return nil, 0, err
	}
	if accept != "" {
		httpReq.Header.Set("Accept", accept)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, &RunnerError{
			Code:    ErrorCodeProviderRequestFailed,
			Message: "provider request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return nil, 0, &RunnerError{
			Code:    ErrorCodeProviderRequestFailed,
			Message: "failed to read provider response",
			Err:     err,
		}
	}
	return respBody, resp.StatusCode, nil
}

func (r *Runner) newChatRequest(ctx context.Context, cfg GenerateConfig, body []byte) (*http.Request, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &RunnerError{
			Code:    ErrorCodeProviderRequestFailed,
			Message: "failed to create provider request",
			Err:     err,
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(cfg.APIKey))
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range cfg.Headers {
		k := strings.TrimSpace(key)
		v := strings.TrimSpace(value)
		if k == "" || v == "" {
			continue
		}
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

type openAIChatRequest struct {
	Model             string                 `json:"model"`
	Messages          []openAIMessage        `json:"messages"`
	Tools             []openAIToolDefinition `json:"tools,omitempty"`
	ParallelToolCalls *bool                  `json:"parallel_tool_calls,omitempty"`
	Stream            bool                   `json:"stream,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    interface{}      `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openAIToolDefinition struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type openAIToolCall struct {
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function openAIFunctionCall `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content   json.RawMessage  `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIChatStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content   json.RawMessage        `json:"content"`
			ToolCalls []openAIStreamToolCall `json:"tool_calls,omitempty"`
		} `json:"delta"`
	} `json:"choices"`
}

type openAIStreamToolCall struct {
	Index    int                `json:"index"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function openAIFunctionCall `json:"function"`
}

func toOpenAIMessages(in TurnInput) []openAIMessage {
	out := make([]openAIMessage, 0, len(in.Messages)+1)
	if system := strings.TrimSpace(in.System); system != "" {
		out = append(out, openAIMessage{Role: domain.RoleSystem, Content: system})
	}
	for _, msg := range in.Messages {
		role := normalizeRole(msg.Role)
		content := strings.TrimSpace(msg.Content)

		switch role {
		case domain.RoleAssistant:
			item := openAIMessage{Role: role}
			if content != "" {
				item.Content = content
			}
			if len(msg.ToolCalls) > 0 {
				item.ToolCalls = toOpenAIToolCalls(msg.ToolCalls)
			}
			if item.Content == nil && len(item.ToolCalls) == 0 {
				continue
			}
			out = append(out, item)
		case domain.RoleTool:
			out = append(out, openAIMessage{
				Role:       role,
				Content:    content,
				ToolCallID: msg.ToolCallID,
				Name:       msg.Name,
			})
		default:
			if content == "" {
				continue
			}
			out = append(out, openAIMessage{Role: role, Content: content})
		}
	}
	return out
}

func toOpenAIToolCalls(calls []domain.ToolCall) []openAIToolCall {
	out := make([]openAIToolCall, 0, len(calls))
	for _, call := range calls {
		if strings.TrimSpace(call.Name) == "" {
			continue
		}
		args, err := json.Marshal(call.Arguments)
		if err != nil || len(args) == 0 {
			args = []byte("{}")
		}
		out = append(out, openAIToolCall{
			ID:   call.ID,
			Type: "function",
			Function: openAIFunctionCall{
				Name:      call.Name,
				Arguments: string(args),
			},
		})
	}
	return out
}

func toOpenAITools(tools []domain.ToolDefinition) []openAIToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openAIToolDefinition, 0, len(tools))
	for _, item := range tools {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			continue
		}
		out = append(out, openAIToolDefinition{
			Type: "function",
			Function: openAIToolFunction{
				Name:        name,
				Description: strings.TrimSpace(item.Description),
				Parameters:  normalizeToolParameters(item.Parameters),
			},
		})
	}
	return out
}

func parseOpenAIToolCalls(in []openAIToolCall) ([]domain.ToolCall, error) {
	if len(in) == 0 {
		return nil, nil
	}
	calls := make([]domain.ToolCall, 0, len(in))
	for i, item := range in {
		name := strings.TrimSpace(item.Function.Name)
		if name == "" {
			return nil, fmt.Errorf("provider tool call[%d] name is empty", i)
		}
		callID := strings.TrimSpace(item.ID)
		if callID == "" {
			callID = fmt.Sprintf("call_%d", i+1)
		}
		argumentsRaw := strings.TrimSpace(item.Function.Arguments)
		if argumentsRaw == "" {
			argumentsRaw = "{}"
		}
		var arguments map[string]interface{}
		if err := json.Unmarshal([]byte(argumentsRaw), &arguments); err != nil {
			return nil, &InvalidToolCallError{
				Index:        i,
				CallID:       callID,
				Name:         name,
				ArgumentsRaw: argumentsRaw,
				Err:          err,
			}
		}
		if arguments == nil {
			arguments = map[string]interface{}{}
		}
		calls = append(calls, domain.ToolCall{ID: callID, Name: name, Arguments: arguments})
	}
	return calls, nil
}

func normalizeToolParameters(in map[string]interface{}) map[string]interface{} {
	fallback := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": true,
	}
	if len(in) == 0 {
		return fallback
	}
	buf, err := json.Marshal(in)
	if err != nil {
		return fallback
	}
	var out map[string]interface{}
	if err := json.Unmarshal(buf, &out); err != nil {
		return fallback
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	return out
}

func normalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case domain.RoleSystem, domain.RoleAssistant, domain.RoleUser, domain.RoleTool:
		return strings.ToLower(strings.TrimSpace(role))
	default:
		return domain.RoleUser
	}
}

func extractOpenAIContent(raw json.RawMessage) string {
	var direct string
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct
	}
	var arr []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &arr); err == nil {
		parts := make([]string, 0, len(arr))
		for _, item := range arr {
			if item.Type != "text" {
				continue
			}
			if text := strings.TrimSpace(item.Text); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

func extractOpenAIDeltaContent(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var direct string
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct
	}
	var arr []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &arr); err == nil {
		var out strings.Builder
		for _, item := range arr {
			if item.Type != "text" || item.Text == "" {
				continue
			}
			out.WriteString(item.Text)
		}
		return out.String()
	}
	return ""
}

func consumeSSEData(reader io.Reader, onData func(string) error) error {
	if reader == nil {
		return errors.New("stream reader is nil")
	}
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	dataLines := make([]string, 0, 4)
	flushBlock := func() error {
		if len(dataLines) == 0 {
			return nil
		}
		payload := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]
		if onData == nil {
			return nil
		}
		return onData(payload)
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			if err := flushBlock(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flushBlock()
}
