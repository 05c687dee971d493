package domain

// Agent event types emitted while a turn-cycle runs.
const (
	EventStart      = "start"
	EventDelta      = "delta"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventReply      = "reply"
	EventDone       = "done"
	EventError      = "error"
)
