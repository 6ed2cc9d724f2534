package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit codes of modbussim. main passes them to atexit.Exit.
const (
	ExitSuccess      = 0 // Clean stop, valid config, passing scenarios
	ExitFailure      = 1 // Rules or settings rejected, simulation stopped on a rule error
	ExitCommandError = 2 // Command error (config not found, port in use, journal unreadable)
)

// Error codes shared by all commands. Rule violations use the E2xx codes
// from the rules package.
const (
	ErrCodeNotFound        = "E005"
	ErrCodeLoadFailed      = "E004"
	ErrCodeInvalidSettings = "E008"
	ErrCodeJournal         = "E009"
	ErrCodeTestFailed      = "E010"
)

// ExitError carries the exit code a command wants main to use.
type ExitError struct {
	Code    int // ExitFailure or ExitCommandError
	Message string
	Err     error // cause, may be nil
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

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to a lower-level error, such as a
// journal or scenario failure.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps a command error to the process exit code. Errors that
// carry no ExitError (cobra flag errors, for one) exit with ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter renders command results as text for operators or as a
// JSON envelope for scripts driving the simulator.
type OutputFormatter struct {
	Format    string // "text" or "json"
	Writer    io.Writer
	ErrWriter io.Writer // --verbose progress; Writer when nil
	Verbose   bool
}

// CLIResponse is the envelope of every --format json document.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
	RunID  string    `json:"run_id,omitempty"` // journal run, when one was opened
}

// CLIError is the error half of the envelope. Code is one of the E0xx
// codes above or a rule violation code (E201-E204).
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success prints data, or wraps it in an "ok" envelope for JSON.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error prints "Error [code]: message" on Writer, or an "error" envelope
// for JSON. Details are shown in text mode only with --verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog prints a progress line when --verbose is set. It goes to
// ErrWriter so a JSON document on Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the writer for diagnostics.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
