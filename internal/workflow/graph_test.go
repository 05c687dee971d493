package workflow

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"agentgate/internal/contentstore"
	"agentgate/internal/domain"
	"agentgate/internal/runner"
	"agentgate/internal/tools"
)

type scriptedModel struct {
	turns    []runner.TurnResult
	inputs   []runner.TurnInput
	toolSets [][]domain.ToolDefinition
}

func (m *scriptedModel) GenerateTurnStream(
	_ context.Context,
	in runner.TurnInput,
	_ runner.GenerateConfig,
	toolDefs []domain.ToolDefinition,
	onDelta func(string),
) (runner.TurnResult, error) {
	m.inputs = append(m.inputs, in)
	m.toolSets = append(m.toolSets, toolDefs)
	idx := len(m.inputs) - 1
	if idx >= len(m.turns) {
		return runner.TurnResult{}, fmt.Errorf("unexpected model call %d", idx+1)
	}
	turn := m.turns[idx]
	if turn.Text != "" && onDelta != nil {
		onDelta(turn.Text)
	}
	return turn, nil
}

type staticIdentity struct {
	identity domain.Identity
}

func (s staticIdentity) Resolve(string) domain.Identity {
	return s.identity
}

func newTestGraph(model ModelClient, identity domain.Identity, store *contentstore.Store) (*Graph, *MemoryCheckpointer) {
	if store == nil {
		store = contentstore.NewStore()
	}
	registry := tools.NewRegistry(zerolog.Nop(), contentstore.NewLocalClient(store))
	checkpoints := NewMemoryCheckpointer()
	graph := New(zerolog.Nop(), model, registry, staticIdentity{identity: identity}, checkpoints)
	return graph, checkpoints
}

func collectEvents(events *[]domain.AgentEvent) func(domain.AgentEvent) {
	return func(event domain.AgentEvent) {
		*events = append(*events, event)
	}
}

func TestAnonymousIdentityCycleEndsWithoutBackendTools(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{turns: []runner.TurnResult{
		{Text: "You are not signed in, so I cannot tell who you are."},
	}}
	graph, _ := newTestGraph(model, domain.AnonymousIdentity(), nil)

	var events []domain.AgentEvent
	result, err := graph.RunCycle(context.Background(), CycleInput{
		ThreadID: "t-anon",
		Message:  "who am I?",
	}, collectEvents(&events))
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if result.Steps != 1 {
		t.Fatalf("expected a single chat step, got=%d", result.Steps)
	}
	if !strings.Contains(result.Reply, "not signed in") {
		t.Fatalf("unexpected reply: %q", result.Reply)
	}
	if len(model.toolSets[0]) != 0 {
		t.Fatalf("anonymous cycle must offer no backend tools, got=%v", model.toolSets[0])
	}
	if !strings.Contains(model.inputs[0].System, "The user is not authenticated") {
		t.Fatalf("system prompt missing unauthenticated notice: %q", model.inputs[0].System)
	}
	last := events[len(events)-1]
	if last.Type != domain.EventDone {
		t.Fatalf("expected done event last, got=%s", last.Type)
	}
}

func TestAuthenticatedListWithEmptyStore(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{turns: []runner.TurnResult{
		{ToolCalls: []domain.ToolCall{{
			ID:        "call_1",
			Name:      "list_uploaded_files",
			Arguments: map[string]interface{}{"thread_id": "t1"},
		}}},
		{Text: "You have no files uploaded yet."},
	}}
	identity := domain.Identity{UserID: "u1", Name: "Ana"}
	graph, _ := newTestGraph(model, identity, nil)

	result, err := graph.RunCycle(context.Background(), CycleInput{
		ThreadID: "t1",
		Message:  "list my files",
	}, nil)
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if result.Steps != 2 {
		t.Fatalf("expected 2 chat steps, got=%d", result.Steps)
	}
	if result.Reply != "You have no files uploaded yet." {
		t.Fatalf("unexpected reply: %q", result.Reply)
	}

	if len(model.toolSets[0]) != 3 {
		t.Fatalf("authenticated cycle must offer backend tools, got=%v", model.toolSets[0])
	}
	if !strings.Contains(model.inputs[0].System, "The current user is Ana (ID: u1") {
		t.Fatalf("system prompt missing identity context: %q", model.inputs[0].System)
	}

	second := model.inputs[1].Messages
	toolMessage := second[len(second)-1]
	if toolMessage.Role != domain.RoleTool || toolMessage.ToolCallID != "call_1" {
		t.Fatalf("second call must see the tool result, got=%+v", toolMessage)
	}
	if toolMessage.Content != "No files are currently uploaded." {
		t.Fatalf("unexpected tool result: %q", toolMessage.Content)
	}
}

func TestAuthenticatedPDFRetrievalSequence(t *testing.T) {
	t.Parallel()

	store := contentstore.NewStore()
	store.Put("t1", domain.FileRecord{
		FileID:    "f1",
		Filename:  "report.pdf",
		FileType:  domain.FileTypePDF,
		PageCount: 3,
		Text:      "Quarterly revenue grew",
	})

	model := &scriptedModel{turns: []runner.TurnResult{
		{ToolCalls: []domain.ToolCall{{
			ID:        "call_1",
			Name:      "list_uploaded_files",
			Arguments: map[string]interface{}{"thread_id": "t1"},
		}}},
		{ToolCalls: []domain.ToolCall{{
			ID:        "call_2",
			Name:      "get_file_content",
			Arguments: map[string]interface{}{"thread_id": "t1", "file_id": "f1"},
		}}},
		{Text: "The report says: Quarterly revenue grew."},
	}}
	identity := domain.Identity{UserID: "u1", Name: "Ana"}
	graph, _ := newTestGraph(model, identity, store)

	var events []domain.AgentEvent
	result, err := graph.RunCycle(context.Background(), CycleInput{
		ThreadID: "t1",
		Message:  "what does my report say?",
	}, collectEvents(&events))
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if result.Steps != 3 {
		t.Fatalf("expected 3 chat steps, got=%d", result.Steps)
	}
	if !strings.Contains(result.Reply, "Quarterly revenue grew") {
		t.Fatalf("final reply must incorporate extracted text, got=%q", result.Reply)
	}

	listResult := model.inputs[1].Messages[len(model.inputs[1].Messages)-1]
	if !strings.Contains(listResult.Content, `"file_id":"f1"`) {
		t.Fatalf("list result must expose file id, got=%q", listResult.Content)
	}
	contentResult := model.inputs[2].Messages[len(model.inputs[2].Messages)-1]
	if !strings.HasPrefix(contentResult.Content, "PDF Content Retrieved:") ||
		!strings.Contains(contentResult.Content, "- Total Pages: 3") {
		t.Fatalf("unexpected content result: %q", contentResult.Content)
	}

	var toolCalls, toolResults int
	for _, event := range events {
		switch event.Type {
		case domain.EventToolCall:
			toolCalls++
		case domain.EventToolResult:
			toolResults++
		}
	}
	if toolCalls != 2 || toolResults != 2 {
		t.Fatalf("expected 2 tool call/result event pairs, got=%d/%d", toolCalls, toolResults)
	}
}

func TestMissingFileIsRecoverable(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{turns: []runner.TurnResult{
		{ToolCalls: []domain.ToolCall{{
			ID:        "call_1",
			Name:      "get_file_content",
			Arguments: map[string]interface{}{"thread_id": "t1", "file_id": "f-gone"},
		}}},
		{Text: "That file is gone. Please upload it again."},
	}}
	identity := domain.Identity{UserID: "u1"}
	graph, _ := newTestGraph(model, identity, nil)

	result, err := graph.RunCycle(context.Background(), CycleInput{
		ThreadID: "t1",
		Message:  "read file f-gone",
	}, nil)
	if err != nil {
		t.Fatalf("missing file must not fail the cycle: %v", err)
	}
	if result.Steps != 2 {
		t.Fatalf("expected 2 chat steps, got=%d", result.Steps)
	}

	toolMessage := model.inputs[1].Messages[len(model.inputs[1].Messages)-1]
	if !strings.Contains(toolMessage.Content, "might have been deleted or the session expired") {
		t.Fatalf("unexpected tool result: %q", toolMessage.Content)
	}
}

func TestClientOnlyToolCallsAreTerminal(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{turns: []runner.TurnResult{
		{Text: "Changing the theme now.", ToolCalls: []domain.ToolCall{{
			ID:        "call_1",
			Name:      "set_theme",
			Arguments: map[string]interface{}{"theme": "dark"},
		}}},
	}}
	identity := domain.Identity{UserID: "u1"}
	graph, _ := newTestGraph(model, identity, nil)

	clientTool := domain.ToolDefinition{Name: "set_theme"}
	result, err := graph.RunCycle(context.Background(), CycleInput{
		ThreadID:    "t1",
		Message:     "switch to dark mode",
		ClientTools: []domain.ToolDefinition{clientTool},
	}, nil)
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if result.Steps != 1 {
		t.Fatalf("client-only tool calls must end the cycle, got steps=%d", result.Steps)
	}
	last := result.State.Messages[len(result.State.Messages)-1]
	if last.Role != domain.RoleAssistant || len(last.ToolCalls) != 1 {
		t.Fatalf("assistant message with the client tool call must stay in history, got=%+v", last)
	}
}

func TestHistoryPersistsAcrossCycles(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{turns: []runner.TurnResult{
		{Text: "Hi Ana."},
		{Text: "As I said, hi."},
	}}
	identity := domain.Identity{UserID: "u1", Name: "Ana"}
	graph, checkpoints := newTestGraph(model, identity, nil)

	if _, err := graph.RunCycle(context.Background(), CycleInput{ThreadID: "t1", Message: "hello"}, nil); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	if _, err := graph.RunCycle(context.Background(), CycleInput{ThreadID: "t1", Message: "hello again"}, nil); err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}

	state, err := checkpoints.Load("t1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(state.Messages) != 4 {
		t.Fatalf("expected 4 persisted messages, got=%d", len(state.Messages))
	}
	if len(model.inputs[1].Messages) != 3 {
		t.Fatalf("second cycle must replay prior history, got=%d messages", len(model.inputs[1].Messages))
	}
}

func TestSummarizeCutsOnRuneBoundary(t *testing.T) {
	t.Parallel()

	short := "all good"
	if got := summarize(short); got != short {
		t.Fatalf("short text must pass through, got=%q", got)
	}

	// Three-byte runes put byte 200 mid-sequence.
	long := strings.Repeat("世", 100)
	got := summarize(long)
	if !utf8.ValidString(got) {
		t.Fatalf("summary contains a split rune: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("truncated summary must carry an ellipsis: %q", got)
	}
	if len(got) > 203 {
		t.Fatalf("summary too long: %d bytes", len(got))
	}
}

func TestRunCycleRequiresThreadID(t *testing.T) {
	t.Parallel()

	graph, _ := newTestGraph(&scriptedModel{}, domain.AnonymousIdentity(), nil)
	if _, err := graph.RunCycle(context.Background(), CycleInput{Message: "hi"}, nil); err == nil {
		t.Fatalf("expected error for missing thread id")
	}
}
