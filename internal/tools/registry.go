// Package tools holds the backend tool registry and the dispatcher that
// executes model-requested tool calls. Backend tools are the ones gated
// behind a non-anonymous identity; client-declared tools never pass
// through here.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"agentgate/internal/contentstore"
	"agentgate/internal/domain"
)

// Tool pairs a model-facing definition with its executable body.
type Tool struct {
	Definition domain.ToolDefinition
	Run        func(ctx context.Context, args map[string]interface{}) (string, error)
}

type Registry struct {
	log   zerolog.Logger
	order []string
	tools map[string]Tool
}

// NewRegistry builds the fixed backend tool set: weather lookup plus the
// two file tools reading from the content store client.
func NewRegistry(log zerolog.Logger, files contentstore.Client) *Registry {
	r := &Registry{
		log:   log,
		tools: map[string]Tool{},
	}
	r.register(weatherTool())
	r.register(listUploadedFilesTool(files))
	r.register(getFileContentTool(files))
	return r
}

func (r *Registry) register(tool Tool) {
	name := strings.TrimSpace(tool.Definition.Name)
	if name == "" || tool.Run == nil {
		return
	}
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
}

// Definitions returns the backend tool contracts in registration order.
func (r *Registry) Definitions() []domain.ToolDefinition {
	out := make([]domain.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Definition)
	}
	return out
}

// IsBackendTool reports whether a tool name belongs to the gated backend
// set. The turn controller uses this to route between TOOL and END.
func (r *Registry) IsBackendTool(name string) bool {
	_, ok := r.tools[strings.TrimSpace(name)]
	return ok
}

// Dispatch executes the requested calls sequentially, in request order.
// Failures never escape: unknown tools and handler errors become textual
// results correlated to their call id so the model can react to them.
func (r *Registry) Dispatch(ctx context.Context, calls []domain.ToolCall) []domain.ToolResult {
	results := make([]domain.ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, r.dispatchOne(ctx, call))
	}
	return results
}

func (r *Registry) dispatchOne(ctx context.Context, call domain.ToolCall) domain.ToolResult {
	result := domain.ToolResult{CallID: call.ID, Name: call.Name}

	tool, ok := r.tools[strings.TrimSpace(call.Name)]
	if !ok {
		result.Text = fmt.Sprintf("Error: tool %q is not available.", call.Name)
		r.log.Warn().Str("tool", call.Name).Str("call_id", call.ID).Msg("unknown tool requested")
		return result
	}

	text, err := tool.Run(ctx, call.Arguments)
	if err != nil {
		result.Text = fmt.Sprintf("Error executing tool %s: %v", call.Name, err)
		r.log.Warn().Err(err).Str("tool", call.Name).Str("call_id", call.ID).Msg("tool execution failed")
		return result
	}

	result.Text = text
	result.OK = true
	r.log.Debug().Str("tool", call.Name).Str("call_id", call.ID).Msg("tool executed")
	return result
}

func stringArg(args map[string]interface{}, key string) string {
	if args == nil {
		return ""
	}
	value, ok := args[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
