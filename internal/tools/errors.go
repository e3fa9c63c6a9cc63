package tools

import "fmt"

// ErrToolUnavailable is returned when a tool call names a tool that is
// not registered.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("Tool not found: %s", e.ToolName)
}

// ErrInvalidArguments is returned when call arguments fail the tool's
// parameter schema.
type ErrInvalidArguments struct {
	ToolName string
	Detail   string
}

// Error implements the error interface.
func (e *ErrInvalidArguments) Error() string {
	return fmt.Sprintf("Invalid arguments for %s: %s", e.ToolName, e.Detail)
}
