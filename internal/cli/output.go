package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for latch commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Failed scenarios, invalid rules, diverged replay
	ExitCommandError = 2 // Bad paths, missing database, unreadable input
)

// ErrorCode identifies a failure in the JSON envelope.
type ErrorCode string

const (
	CodeLoadFailed       ErrorCode = "E_LOAD_FAILED"       // rules directory did not load
	CodeValidationFailed ErrorCode = "E_VALIDATION_FAILED" // rules loaded but are invalid
	CodeCompileFailed    ErrorCode = "E_COMPILE_FAILED"    // rules could not be compiled
	CodeReplayFailed     ErrorCode = "E_REPLAY_FAILED"     // a session could not be replayed at all
	CodeNondeterministic ErrorCode = "E_NONDETERMINISTIC"  // a replayed session diverged
	CodeTestFailed       ErrorCode = "E_TEST_FAILED"       // one or more scenarios failed
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Errors that carry none exit with ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or as a JSON envelope.
// Diagnostics go to ErrWriter so they never interleave with JSON on Writer.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope every command emits with --format json.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error half of the envelope. Details holds the command's
// result payload (a ReplayReport, TestResult, ...) or, for load and compile
// failures, the individual error messages.
type CLIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code ErrorCode, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err under code and returns it as an ExitError with exit.
// The envelope message is the top-level error; joined errors are listed
// one per entry in Details.
func (f *OutputFormatter) Fail(code ErrorCode, exit int, message string, err error) error {
	if ferr := f.Error(code, err.Error(), errorMessages(err)); ferr != nil {
		return ferr
	}
	return WrapExitError(exit, message, err)
}

// VerboseLog writes a diagnostic line when --verbose is set.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// errorMessages flattens errors.Join trees into their leaf messages.
func errorMessages(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, errorMessages(e)...)
		}
		return out
	}
	return []string{err.Error()}
}
