package model

// ToolFailureKind enumerates the ways a tool invocation can fail.
type ToolFailureKind string

const (
	ToolFailureExecution  ToolFailureKind = "EXECUTION_FAILED"
	ToolFailurePolicy     ToolFailureKind = "POLICY_DENIED"
	ToolFailureValidation ToolFailureKind = "VALIDATION_FAILED"
	ToolFailureTimeout    ToolFailureKind = "TIMEOUT"
	ToolFailureNotFound   ToolFailureKind = "NOT_FOUND"
)

// ToolResult is the tagged success/failure outcome of executing a tool.
type ToolResult struct {
	ok      bool
	Output  string
	Kind    ToolFailureKind
	Message string
}

// ToolSuccess builds a successful ToolResult.
func ToolSuccess(output string) ToolResult {
	return ToolResult{ok: true, Output: output}
}

// ToolFailure builds a failed ToolResult of the given kind.
func ToolFailure(kind ToolFailureKind, message string) ToolResult {
	return ToolResult{ok: false, Kind: kind, Message: message}
}

// IsSuccess reports whether the result represents success.
func (r ToolResult) IsSuccess() bool { return r.ok }

// Text returns the output on success or the failure message otherwise,
// suitable for rendering into a tool-role message's content.
func (r ToolResult) Text() string {
	if r.ok {
		return r.Output
	}
	return r.Message
}

// ToolExecutionOutcome is the full result of attempting one tool call,
// including outcomes the loop itself synthesizes rather than the executor
// (policy denials, confirmation refusals, guardrail stops).
type ToolExecutionOutcome struct {
	ToolCallID     string
	ToolName       string
	Result         ToolResult
	MessageContent string
	Synthetic      bool
	Metadata       map[string]any
}

// SyntheticOutcome builds a loop-produced outcome for a tool call that was
// never handed to the executor.
func SyntheticOutcome(call ToolCall, kind ToolFailureKind, message string) ToolExecutionOutcome {
	return ToolExecutionOutcome{
		ToolCallID:     call.ID,
		ToolName:       call.Name,
		Result:         ToolFailure(kind, message),
		MessageContent: message,
		Synthetic:      true,
	}
}

// SyntheticSuccess builds a loop-produced successful outcome (used for
// plan-mode interception and control-tool acknowledgements), tagged with the
// given metadata marker (e.g. {"planned": true}).
func SyntheticSuccess(call ToolCall, messageContent string, metadata map[string]any) ToolExecutionOutcome {
	return ToolExecutionOutcome{
		ToolCallID:     call.ID,
		ToolName:       call.Name,
		Result:         ToolSuccess(messageContent),
		MessageContent: messageContent,
		Synthetic:      true,
		Metadata:       metadata,
	}
}
