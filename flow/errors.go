package flow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies known orchestration error conditions.
type ErrorCode string

const (
	// Configuration errors: the run never starts.
	CodeUnknownBackend     ErrorCode = "UNKNOWN_BACKEND"
	CodeUnknownStrategy    ErrorCode = "UNKNOWN_STRATEGY"
	CodeUnsupportedPart    ErrorCode = "UNSUPPORTED_PART"
	CodeUnsupportedDialect ErrorCode = "UNSUPPORTED_DIALECT"
	CodeEmptySources       ErrorCode = "EMPTY_SOURCES"
	CodeInvalidDesign      ErrorCode = "INVALID_DESIGN"
	CodeInvalidOptions     ErrorCode = "INVALID_OPTIONS"
	CodeDirCollision       ErrorCode = "DIRECTORY_COLLISION"

	// Tool errors: the backend process failed or was stopped.
	CodeNonZeroExit ErrorCode = "NON_ZERO_EXIT"
	CodeSpawnFailed ErrorCode = "SPAWN_FAILED"
	CodeFileRead    ErrorCode = "FILE_READ"
	CodeTimeout     ErrorCode = "TIMEOUT"
	CodeCancelled   ErrorCode = "CANCELLED"
	CodeReportParse ErrorCode = "REPORT_PARSE"
)

// ConfigurationError reports bad or unsupported input. Never retried;
// surfaced before any subprocess is launched.
type ConfigurationError struct {
	Code    ErrorCode
	Message string
	Meta    map[string]any
}

func NewConfigurationError(code ErrorCode, message string) *ConfigurationError {
	return &ConfigurationError{Code: code, Message: message, Meta: map[string]any{}}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error [%s]: %s", e.Code, e.Message)
}

// WithMeta attaches a metadata entry and returns the error for chaining.
func (e *ConfigurationError) WithMeta(key string, value any) *ConfigurationError {
	e.Meta[key] = value
	return e
}

// ToolError reports a failed backend invocation: non-zero exit, a fatal
// file-read inside the tool, a timeout, or cancellation. Carries the captured
// diagnostic tail so callers can see what the tool printed last.
type ToolError struct {
	Code        ErrorCode
	Message     string
	ExitCode    int
	Diagnostics []string
	Meta        map[string]any
	cause       error
}

func NewToolError(code ErrorCode, message string) *ToolError {
	return &ToolError{Code: code, Message: message, Meta: map[string]any{}}
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("tool error [%s]: %s", e.Code, e.Message)
	if len(e.Diagnostics) > 0 {
		msg += "\n  " + strings.Join(e.Diagnostics, "\n  ")
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.cause
}

// WithCause records the underlying error for errors.Is / errors.As.
func (e *ToolError) WithCause(err error) *ToolError {
	e.cause = err
	return e
}

// WithExitCode records the subprocess exit status.
func (e *ToolError) WithExitCode(code int) *ToolError {
	e.ExitCode = code
	return e
}

// WithDiagnostics attaches the captured output tail.
func (e *ToolError) WithDiagnostics(lines []string) *ToolError {
	e.Diagnostics = lines
	return e
}

// WithMeta attaches a metadata entry and returns the error for chaining.
func (e *ToolError) WithMeta(key string, value any) *ToolError {
	e.Meta[key] = value
	return e
}

// AsConfigurationError unwraps err into a *ConfigurationError, if it is one.
func AsConfigurationError(err error) (*ConfigurationError, bool) {
	var ce *ConfigurationError
	ok := errors.As(err, &ce)
	return ce, ok
}

// AsToolError unwraps err into a *ToolError, if it is one.
func AsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	ok := errors.As(err, &te)
	return te, ok
}
