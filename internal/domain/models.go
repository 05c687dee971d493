package domain

type APIErrorBody struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// AnonymousUserID is the user id assigned when no credential resolves.
const AnonymousUserID = "anonymous"

// Identity is the per-cycle user record resolved by the authenticator.
// It is recomputed at the start of every turn-cycle and owned exclusively
// by the auth node.
type Identity struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

func AnonymousIdentity() Identity {
	return Identity{UserID: AnonymousUserID}
}

// Authenticated reports whether backend tools are available for this identity.
// The gate is evaluated once per turn-cycle, not per tool invocation.
func (i Identity) Authenticated() bool {
	return i.UserID != AnonymousUserID
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a model-requested tool invocation. Every call is matched
// against exactly one tool result, correlated by ID.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Message is one entry of a conversation history. Histories are append-only
// within a turn-cycle; entries are never reordered or deleted.
type Message struct {
	ID         string     `json:"id,omitempty"`
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	CreatedAt  string     `json:"created_at,omitempty"`
}

// ToolDefinition declares a callable capability offered to the model.
// Parameters holds a JSON-schema object in decoded form.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ToolResult is the textual outcome of one dispatched tool call. Failures
// are carried here as text, never as errors, so the model can react to them
// narratively on the next turn.
type ToolResult struct {
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Text   string `json:"text"`
	OK     bool   `json:"ok"`
}

const (
	FileTypePDF   = "pdf"
	FileTypeExcel = "excel"
	FileTypeText  = "text"
)

// FileMetadata is the listing view of a content store entry.
type FileMetadata struct {
	FileID     string `json:"file_id"`
	Filename   string `json:"filename"`
	FileType   string `json:"file_type"`
	PageCount  int    `json:"page_count,omitempty"`
	SheetCount int    `json:"sheet_count,omitempty"`
	TotalRows  int    `json:"total_rows,omitempty"`
}

// FileRecord is a full content store entry including extracted text.
type FileRecord struct {
	FileID     string `json:"file_id"`
	Filename   string `json:"filename"`
	Text       string `json:"text"`
	FileType   string `json:"file_type"`
	PageCount  int    `json:"page_count,omitempty"`
	SheetCount int    `json:"sheet_count,omitempty"`
	TotalRows  int    `json:"total_rows,omitempty"`
	UploadedAt string `json:"uploaded_at,omitempty"`
}

func (r FileRecord) Metadata() FileMetadata {
	return FileMetadata{
		FileID:     r.FileID,
		Filename:   r.Filename,
		FileType:   r.FileType,
		PageCount:  r.PageCount,
		SheetCount: r.SheetCount,
		TotalRows:  r.TotalRows,
	}
}

// ThreadSpec is the durable descriptor of a conversation thread.
type ThreadSpec struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	UserID    string                 `json:"user_id,omitempty"`
	CreatedAt string                 `json:"created_at"`
	UpdatedAt string                 `json:"updated_at"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

type AgentToolCallPayload struct {
	CallID string                 `json:"call_id,omitempty"`
	Name   string                 `json:"name"`
	Input  map[string]interface{} `json:"input"`
}

type AgentToolResultPayload struct {
	CallID  string `json:"call_id,omitempty"`
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Summary string `json:"summary"`
}

// AgentEvent is one observable step of a turn-cycle, emitted over SSE or
// the event websocket while the cycle runs.
type AgentEvent struct {
	Type       string                  `json:"type"`
	Step       int                     `json:"step,omitempty"`
	Delta      string                  `json:"delta,omitempty"`
	Reply      string                  `json:"reply,omitempty"`
	ToolCall   *AgentToolCallPayload   `json:"tool_call,omitempty"`
	ToolResult *AgentToolResultPayload `json:"tool_result,omitempty"`
	Meta       map[string]interface{}  `json:"meta,omitempty"`
}

type ModelSlotConfig struct {
	ProviderID string `json:"provider_id"`
	Model      string `json:"model"`
}
