// Package engine selects an execution engine implementation by name.
package engine

import (
	"fmt"

	"github.com/optimusrun/optimus/internal/adapter/engine/docker"
	"github.com/optimusrun/optimus/internal/adapter/engine/stub"
	"github.com/optimusrun/optimus/internal/config"
	"github.com/optimusrun/optimus/internal/domain"
)

// New builds the engine named by kind. "docker" runs jobs in sandboxed
// containers, "stub" echoes inputs for local development and tests.
func New(kind string, registry *config.Registry) (domain.ExecutionEngine, error) {
	switch kind {
	case "docker":
		return docker.New(registry)
	case "stub":
		return stub.New(), nil
	default:
		return nil, fmt.Errorf("op=engine.New: unknown engine %q", kind)
	}
}
