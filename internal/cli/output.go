package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit codes. A failed check (payload rejected, nothing to
// generate) is distinguishable from a command that could not run at all.
const (
	ExitFailure      = 1
	ExitCommandError = 2
)

// ExitError is returned by commands that have already reported their error.
// main exits with Code and prints nothing further.
type ExitError struct {
	Code    int
	ErrCode string // E0xx/E2xx code shown to the user
	Message string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrCode, e.Message)
}

// GetExitCode returns the exit code carried by err, or ExitFailure when
// err was not reported by a command.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or as a CLIResponse.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose diagnostics, defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope every command writes in json mode.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error half of a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (f *OutputFormatter) json() bool { return f.Format == "json" }

// Success reports data. In text mode lines replace data when given.
func (f *OutputFormatter) Success(data any, lines ...string) error {
	if f.json() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	if len(lines) == 0 {
		lines = []string{fmt.Sprint(data)}
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(f.Writer, line); err != nil {
			return err
		}
	}
	return nil
}

// Error reports a coded error. Text mode prints details only when verbose,
// one line per element when details is a string list.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.json() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "✗ %s %s\n", code, message)
	if !f.Verbose || details == nil {
		return nil
	}
	if list, ok := details.([]string); ok {
		for _, d := range list {
			fmt.Fprintf(f.Writer, "  - %s\n", d)
		}
		return nil
	}
	fmt.Fprintf(f.Writer, "  %v\n", details)
	return nil
}

// VerboseLog writes a diagnostic line when verbose. It never goes to
// Writer in json mode unless no ErrWriter is set.
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
