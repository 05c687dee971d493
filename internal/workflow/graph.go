// Package workflow runs the agent turn-cycle: authenticate, generate, and
// loop through tool dispatch until the model produces a terminal reply.
// State is checkpointed after every node so a crash never loses a step that
// already happened; there is no rollback.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agentgate/internal/domain"
	"agentgate/internal/runner"
)

// State is the durable per-thread conversation record. Identity is owned by
// the auth node and overwritten at the start of every cycle; messages are
// append-only within a cycle.
type State struct {
	ThreadID string           `json:"thread_id"`
	Messages []domain.Message `json:"messages"`
	Identity domain.Identity  `json:"identity"`
	Proverbs []string         `json:"proverbs,omitempty"`
}

// ModelClient is the language model capability the chat node invokes.
// runner.Runner satisfies it; tests script it.
type ModelClient interface {
	GenerateTurnStream(
		ctx context.Context,
		in runner.TurnInput,
		cfg runner.GenerateConfig,
		tools []domain.ToolDefinition,
		onDelta func(string),
	) (runner.TurnResult, error)
}

// ToolRuntime is the backend tool registry plus its sequential dispatcher.
type ToolRuntime interface {
	Definitions() []domain.ToolDefinition
	IsBackendTool(name string) bool
	Dispatch(ctx context.Context, calls []domain.ToolCall) []domain.ToolResult
}

// IdentityResolver turns an inbound credential into an identity. It never
// fails; undecodable credentials resolve to the anonymous identity.
type IdentityResolver interface {
	Resolve(credential string) domain.Identity
}

// Checkpointer persists conversation state between cycles. Lock serializes
// cycles per thread and returns the unlock func.
type Checkpointer interface {
	Lock(threadID string) func()
	Load(threadID string) (State, error)
	Save(threadID string, state State) error
}

// CycleInput is one inbound user turn.
type CycleInput struct {
	ThreadID    string
	Credential  string
	Message     string
	ClientTools []domain.ToolDefinition
	Generate    runner.GenerateConfig
}

// CycleResult is the terminal outcome of a cycle.
type CycleResult struct {
	Reply string
	State State
	Steps int
}

type Graph struct {
	log           zerolog.Logger
	model         ModelClient
	tools         ToolRuntime
	auth          IdentityResolver
	checkpoints   Checkpointer
	maxToolRounds int
}

func New(log zerolog.Logger, model ModelClient, tools ToolRuntime, auth IdentityResolver, checkpoints Checkpointer) *Graph {
	return &Graph{
		log:           log,
		model:         model,
		tools:         tools,
		auth:          auth,
		checkpoints:   checkpoints,
		maxToolRounds: 8,
	}
}

// RunCycle drives one full turn-cycle for a thread. Node order is fixed:
// auth once, then chat, then tool dispatch and back to chat for as long as
// the model keeps requesting backend tools. Every emitted event reflects a
// step that has already been checkpointed.
func (g *Graph) RunCycle(ctx context.Context, in CycleInput, emit func(domain.AgentEvent)) (CycleResult, error) {
	if emit == nil {
		emit = func(domain.AgentEvent) {}
	}
	threadID := strings.TrimSpace(in.ThreadID)
	if threadID == "" {
		return CycleResult{}, fmt.Errorf("thread id is required")
	}

	unlock := g.checkpoints.Lock(threadID)
	defer unlock()

	state, err := g.checkpoints.Load(threadID)
	if err != nil {
		return CycleResult{}, fmt.Errorf("load thread state: %w", err)
	}
	state.ThreadID = threadID

	if message := strings.TrimSpace(in.Message); message != "" {
		state.Messages = append(state.Messages, newMessage(domain.RoleUser, message))
	}
	emit(domain.AgentEvent{Type: domain.EventStart, Meta: map[string]interface{}{"thread_id": threadID}})

	// Auth node. Identity is recomputed every cycle and the gate below is
	// evaluated exactly once, not per tool invocation.
	state.Identity = g.auth.Resolve(in.Credential)
	if err := g.checkpoints.Save(threadID, state); err != nil {
		return CycleResult{}, fmt.Errorf("save thread state: %w", err)
	}
	g.log.Info().
		Str("thread_id", threadID).
		Str("user_id", state.Identity.UserID).
		Bool("authenticated", state.Identity.Authenticated()).
		Msg("identity resolved")

	effective := append([]domain.ToolDefinition(nil), in.ClientTools...)
	if state.Identity.Authenticated() {
		effective = append(effective, g.tools.Definitions()...)
	}
	system := systemPrompt(state.Identity, threadID, state.Proverbs, hasFileTools(effective))

	step := 0
	for {
		step++
		turn, err := g.model.GenerateTurnStream(ctx, runner.TurnInput{
			System:   system,
			Messages: state.Messages,
		}, in.Generate, effective, func(delta string) {
			emit(domain.AgentEvent{Type: domain.EventDelta, Step: step, Delta: delta})
		})
		if err != nil {
			return CycleResult{}, err
		}

		assistant := newMessage(domain.RoleAssistant, turn.Text)
		assistant.ToolCalls = turn.ToolCalls
		state.Messages = append(state.Messages, assistant)
		if err := g.checkpoints.Save(threadID, state); err != nil {
			return CycleResult{}, fmt.Errorf("save thread state: %w", err)
		}

		if !g.routesToTools(turn.ToolCalls) {
			emit(domain.AgentEvent{Type: domain.EventReply, Step: step, Reply: turn.Text})
			emit(domain.AgentEvent{Type: domain.EventDone, Step: step})
			return CycleResult{Reply: turn.Text, State: state, Steps: step}, nil
		}
		if step > g.maxToolRounds {
			return CycleResult{}, fmt.Errorf("tool loop exceeded %d rounds for thread %s", g.maxToolRounds, threadID)
		}

		// Tool node. All requested calls run sequentially; failures come
		// back as textual results so the next chat turn can react to them.
		for _, call := range turn.ToolCalls {
			emit(domain.AgentEvent{Type: domain.EventToolCall, Step: step, ToolCall: &domain.AgentToolCallPayload{
				CallID: call.ID,
				Name:   call.Name,
				Input:  call.Arguments,
			}})
		}
		results := g.tools.Dispatch(ctx, turn.ToolCalls)
		for _, result := range results {
			emit(domain.AgentEvent{Type: domain.EventToolResult, Step: step, ToolResult: &domain.AgentToolResultPayload{
				CallID:  result.CallID,
				Name:    result.Name,
				OK:      result.OK,
				Summary: summarize(result.Text),
			}})
			toolMessage := newMessage(domain.RoleTool, result.Text)
			toolMessage.ToolCallID = result.CallID
			toolMessage.Name = result.Name
			state.Messages = append(state.Messages, toolMessage)
		}
		if err := g.checkpoints.Save(threadID, state); err != nil {
			return CycleResult{}, fmt.Errorf("save thread state: %w", err)
		}
	}
}

// routesToTools applies the branch rule: continue when at least one
// requested call names a backend tool, otherwise the turn is terminal and
// client-only tool calls are left for the caller to resolve.
func (g *Graph) routesToTools(calls []domain.ToolCall) bool {
	for _, call := range calls {
		if g.tools.IsBackendTool(call.Name) {
			return true
		}
	}
	return false
}

func hasFileTools(tools []domain.ToolDefinition) bool {
	for _, tool := range tools {
		if tool.Name == "list_uploaded_files" || tool.Name == "get_file_content" {
			return true
		}
	}
	return false
}

func newMessage(role, content string) domain.Message {
	return domain.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func summarize(text string) string {
	const limit = 200
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
