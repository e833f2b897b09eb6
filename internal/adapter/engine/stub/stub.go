// Package stub provides a deterministic in-process execution engine for
// tests and local development. It echoes the trimmed test input as stdout,
// never times out, and never raises runtime errors unless told to.
package stub

import (
	"context"
	"strings"
	"time"

	"github.com/optimusrun/optimus/internal/domain"
)

// Engine is the echo engine. The zero value passes every echo-style test in
// a fixed 5ms. The override sets steer individual inputs into timeout or
// runtime-error outcomes, and Fail forces an engine-level error.
type Engine struct {
	// Fail, when set, is returned as an infrastructure error on every call.
	Fail error
	// TimeoutInputs flags inputs whose execution should report a timeout.
	TimeoutInputs map[string]bool
	// CrashInputs flags inputs whose execution should report a runtime error.
	CrashInputs map[string]bool
	// OnExecute, when set, runs before each call. Tests use it to flip the
	// cancellation flag between test cases.
	OnExecute func(input string)
}

// New returns a plain echo engine.
func New() *Engine { return &Engine{} }

// Execute implements domain.ExecutionEngine.
func (e *Engine) Execute(_ context.Context, _ domain.Language, _ string, input string, _ time.Duration) (domain.TestExecutionOutput, error) {
	if e.OnExecute != nil {
		e.OnExecute(input)
	}
	if e.Fail != nil {
		return domain.TestExecutionOutput{}, e.Fail
	}
	if e.TimeoutInputs[input] {
		return domain.TestExecutionOutput{
			Stderr:          "execution timed out",
			ExecutionTimeMS: 5,
			TimedOut:        true,
		}, nil
	}
	if e.CrashInputs[input] {
		return domain.TestExecutionOutput{
			Stderr:          "runtime error: crashed",
			ExecutionTimeMS: 5,
			RuntimeError:    true,
		}, nil
	}
	return domain.TestExecutionOutput{
		Stdout:          strings.TrimSpace(input),
		ExecutionTimeMS: 5,
	}, nil
}
