// Package docker implements the sandboxed execution engine on the Docker
// API. Each test case runs in a fresh, network-disabled, resource-capped
// container whose entrypoint is the language-specific runner script baked
// into the image.
package docker

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/optimusrun/optimus/internal/config"
	"github.com/optimusrun/optimus/internal/domain"
)

// Engine-level pre-flight bounds. These are deliberately looser than the
// front-end's validation limits; exceeding them is an infrastructure error,
// never a runtime error of the submitted code.
const (
	maxSourceBytes = 1 << 20  // 1 MiB
	maxInputBytes  = 10 << 20 // 10 MiB
)

const (
	envSourceCode = "SOURCE_CODE"
	envTestInput  = "TEST_INPUT"
	workspaceDir  = "/code"
)

// Engine executes test cases in single-use containers.
type Engine struct {
	cli      client.APIClient
	registry *config.Registry

	mu     sync.Mutex
	pulled map[string]bool
}

// New connects to the local Docker daemon using the standard environment
// configuration.
func New(registry *config.Registry) (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("op=docker.New: %w", err)
	}
	return NewWithClient(cli, registry), nil
}

// NewWithClient wires an engine over an existing API client.
func NewWithClient(cli client.APIClient, registry *config.Registry) *Engine {
	return &Engine{cli: cli, registry: registry, pulled: make(map[string]bool)}
}

// PrePull fetches the images for the given languages ahead of the first
// job. Best-effort: failures are logged and retried lazily on demand.
func (e *Engine) PrePull(ctx context.Context, langs []domain.Language) {
	for _, lang := range langs {
		spec, err := e.registry.Lookup(lang)
		if err != nil {
			continue
		}
		if err := e.ensureImage(ctx, spec.Image); err != nil {
			slog.Warn("image pre-pull failed",
				slog.String("language", lang.String()),
				slog.String("image", spec.Image),
				slog.Any("error", err))
		}
	}
}

// Execute implements domain.ExecutionEngine. The per-test timeout is
// enforced by an external timer: if it fires first, the container is killed
// and the output reports timed_out with empty stdout.
func (e *Engine) Execute(ctx context.Context, lang domain.Language, sourceCode, input string, timeout time.Duration) (domain.TestExecutionOutput, error) {
	if len(sourceCode) > maxSourceBytes {
		return domain.TestExecutionOutput{}, fmt.Errorf("op=docker.Execute: source exceeds %d bytes", maxSourceBytes)
	}
	if len(input) > maxInputBytes {
		return domain.TestExecutionOutput{}, fmt.Errorf("op=docker.Execute: input exceeds %d bytes", maxInputBytes)
	}
	spec, err := e.registry.Lookup(lang)
	if err != nil {
		return domain.TestExecutionOutput{}, err
	}
	if err := e.ensureImage(ctx, spec.Image); err != nil {
		return domain.TestExecutionOutput{}, err
	}

	// Source and input travel base64-encoded in env vars so that embedded
	// newlines and non-ASCII bytes survive without quoting hazards. The
	// runner script inside the image decodes them.
	cfg := &container.Config{
		Image: spec.Image,
		Env: []string{
			envSourceCode + "=" + base64.StdEncoding.EncodeToString([]byte(sourceCode)),
			envTestInput + "=" + base64.StdEncoding.EncodeToString([]byte(input)),
		},
		WorkingDir:      workspaceDir,
		NetworkDisabled: true,
	}
	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:   spec.MemoryLimitMB * 1024 * 1024,
			NanoCPUs: int64(spec.CPULimit * 1e9),
		},
	}

	created, err := e.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return domain.TestExecutionOutput{}, fmt.Errorf("op=docker.Execute: create: %w", err)
	}
	id := created.ID
	// Cleanup is owned by this invocation and runs on every exit path,
	// including timeout and panic. Background context: removal must proceed
	// even when the caller's context is already done.
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.cli.ContainerRemove(removeCtx, id, container.RemoveOptions{Force: true}); err != nil {
			slog.Warn("container remove failed", slog.String("container_id", id), slog.Any("error", err))
		}
	}()

	start := time.Now()
	if err := e.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return domain.TestExecutionOutput{}, fmt.Errorf("op=docker.Execute: start: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	waitCh, errCh := e.cli.ContainerWait(waitCtx, id, container.WaitConditionNotRunning)

	var exitCode int64
	select {
	case status := <-waitCh:
		exitCode = status.StatusCode
	case err := <-errCh:
		elapsed := uint64(time.Since(start).Milliseconds())
		if waitCtx.Err() != nil && ctx.Err() == nil {
			// The external timer fired first: kill the sandbox hard.
			killCtx, killCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer killCancel()
			if err := e.cli.ContainerKill(killCtx, id, "KILL"); err != nil {
				slog.Warn("container kill failed", slog.String("container_id", id), slog.Any("error", err))
			}
			return domain.TestExecutionOutput{
				Stderr:          fmt.Sprintf("execution timed out after %dms", timeout.Milliseconds()),
				ExecutionTimeMS: elapsed,
				TimedOut:        true,
			}, nil
		}
		return domain.TestExecutionOutput{}, fmt.Errorf("op=docker.Execute: wait: %w", err)
	}
	elapsed := uint64(time.Since(start).Milliseconds())

	stdout, stderr, err := e.collectLogs(ctx, id)
	if err != nil {
		return domain.TestExecutionOutput{}, fmt.Errorf("op=docker.Execute: logs: %w", err)
	}

	out := domain.TestExecutionOutput{
		Stdout:          stdout,
		Stderr:          stderr,
		ExecutionTimeMS: elapsed,
	}
	if exitCode != 0 {
		out.RuntimeError = true
		out.Stderr = annotateExit(stderr, exitCode)
	}
	return out, nil
}

// annotateExit appends a classification marker while preserving the raw
// stderr stream.
func annotateExit(stderr string, exitCode int64) string {
	var marker string
	switch exitCode {
	case 137:
		marker = fmt.Sprintf("[exit %d] killed: OOM/memory limit exceeded", exitCode)
	case 139:
		marker = fmt.Sprintf("[exit %d] segmentation fault", exitCode)
	default:
		marker = fmt.Sprintf("[exit %d] process exited with a non-zero status", exitCode)
	}
	if stderr == "" {
		return marker
	}
	return stderr + "\n" + marker
}

func (e *Engine) collectLogs(ctx context.Context, id string) (string, string, error) {
	rc, err := e.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer func() { _ = rc.Close() }()
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return "", "", err
	}
	return stdout.String(), stderr.String(), nil
}

// ensureImage probes the local image cache and pulls synchronously on miss,
// retrying transient pull failures with exponential backoff.
func (e *Engine) ensureImage(ctx context.Context, ref string) error {
	e.mu.Lock()
	ok := e.pulled[ref]
	e.mu.Unlock()
	if ok {
		return nil
	}

	if _, _, err := e.cli.ImageInspectWithRaw(ctx, ref); err == nil {
		e.markPulled(ref)
		return nil
	} else if !client.IsErrNotFound(err) {
		return fmt.Errorf("op=docker.ensureImage: inspect %s: %w", ref, err)
	}

	pull := func() error {
		rc, err := e.cli.ImagePull(ctx, ref, image.PullOptions{})
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()
		// The pull completes only once the progress stream is drained.
		_, err = io.Copy(io.Discard, rc)
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(pull, bo); err != nil {
		return fmt.Errorf("op=docker.ensureImage: pull %s: %w", ref, err)
	}
	if _, _, err := e.cli.ImageInspectWithRaw(ctx, ref); err != nil {
		return fmt.Errorf("op=docker.ensureImage: inspect after pull %s: %w", ref, err)
	}
	e.markPulled(ref)
	return nil
}

func (e *Engine) markPulled(ref string) {
	e.mu.Lock()
	e.pulled[ref] = true
	e.mu.Unlock()
}
