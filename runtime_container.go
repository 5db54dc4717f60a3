package vigil

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path"
	"strconv"
	"strings"
)

// ContainerRuntime executes everything inside a pre-existing container via
// `podman exec` (or `docker exec`). The container is expected to be running
// with the agent workspace mounted at workdir; the runtime never creates or
// destroys containers.
type ContainerRuntime struct {
	engine    string // "podman" or "docker"
	container string
	workdir   string
	logger    *slog.Logger
}

var _ Runtime = (*ContainerRuntime)(nil)

// ContainerOption configures a ContainerRuntime.
type ContainerOption func(*ContainerRuntime)

// WithContainerWorkdir overrides the default /workspace working directory.
func WithContainerWorkdir(dir string) ContainerOption {
	return func(r *ContainerRuntime) { r.workdir = dir }
}

// WithContainerLogger sets the logger. Defaults to a no-op logger.
func WithContainerLogger(l *slog.Logger) ContainerOption {
	return func(r *ContainerRuntime) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewContainerRuntime creates a runtime backed by a running container.
func NewContainerRuntime(engine, container string, opts ...ContainerOption) *ContainerRuntime {
	if engine == "" {
		engine = "podman"
	}
	r := &ContainerRuntime{
		engine:    engine,
		container: container,
		workdir:   "/workspace",
		logger:    nopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ping verifies the container is up by running a trivial command.
func (r *ContainerRuntime) Ping(ctx context.Context) error {
	_, _, code, err := r.exec(ctx, "true", nil)
	if err != nil {
		return fmt.Errorf("container %s not reachable via %s: %w", r.container, r.engine, err)
	}
	if code != 0 {
		return fmt.Errorf("container %s not reachable via %s: exit code %d", r.container, r.engine, code)
	}
	return nil
}

// exec runs a bash command inside the container. stdin, when non-nil, is
// piped to the command. Returns stdout, stderr and the exit code; err is
// only set when the exec itself could not run.
func (r *ContainerRuntime) exec(ctx context.Context, command string, stdin []byte) (string, string, int, error) {
	args := []string{"exec"}
	if stdin != nil {
		args = append(args, "-i")
	}
	args = append(args, "-w", r.workdir, r.container, "bash", "-l", "-c", command)

	cmd := exec.CommandContext(ctx, r.engine, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	code := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
		err = nil
	}
	r.logger.Debug("container exec",
		slog.String("command", command),
		slog.Int("exit_code", code))
	return stdout.String(), stderr.String(), code, err
}

func (r *ContainerRuntime) Execute(ctx context.Context, command string) map[string]any {
	stdout, stderr, code, err := r.exec(ctx, command, nil)
	if err != nil {
		return errorResult("Failed to execute command: %v", err)
	}
	return execResult(stdout, stderr, code)
}

func (r *ContainerRuntime) ReadFile(ctx context.Context, filename string, startLine, numLines int) map[string]any {
	if numLines <= 0 {
		numLines = defaultReadLines
	}
	if startLine < 1 {
		startLine = 1
	}
	quoted := shellQuote(filename)

	// Total line count first, so the caller knows how much is left.
	out, stderr, code, err := r.exec(ctx, fmt.Sprintf("sed -n '$=' %s", quoted), nil)
	if err != nil {
		return errorResult("Failed to read file %s: %v", filename, err)
	}
	if code != 0 {
		return errorResult("Failed to read file %s: %s", filename, strings.TrimSpace(stderr))
	}
	total, _ := strconv.Atoi(strings.TrimSpace(out))

	end := startLine + numLines - 1
	if end > total {
		end = total
	}
	page := ""
	if startLine <= total {
		out, stderr, code, err = r.exec(ctx, fmt.Sprintf("sed -n '%d,%dp' %s", startLine, end, quoted), nil)
		if err != nil {
			return errorResult("Failed to read file %s: %v", filename, err)
		}
		if code != 0 {
			return errorResult("Failed to read file %s: %s", filename, strings.TrimSpace(stderr))
		}
		page = strings.TrimSuffix(out, "\n")
	} else {
		end = startLine - 1
	}
	return readResult(filename, page, startLine, end, total)
}

func (r *ContainerRuntime) WriteFile(ctx context.Context, filename, content string) map[string]any {
	quoted := shellQuote(filename)
	dir := path.Dir(filename)
	// Content goes through base64 on stdin so quoting never corrupts it.
	command := fmt.Sprintf("mkdir -p %s && base64 -d > %s", shellQuote(dir), quoted)
	encoded := base64.StdEncoding.EncodeToString([]byte(content))

	_, stderr, code, err := r.exec(ctx, command, []byte(encoded))
	if err != nil {
		return errorResult("Failed to write file %s: %v", filename, err)
	}
	if code != 0 {
		return errorResult("Failed to write file %s: %s", filename, strings.TrimSpace(stderr))
	}
	return successResult("Content saved to " + filename)
}

func (r *ContainerRuntime) EditFile(ctx context.Context, filename string, edits []FileEdit) map[string]any {
	raw, err := r.ReadFileInternal(ctx, filename)
	if err != nil {
		return errorResult("Failed to read file %s: %v", filename, err)
	}
	edited, errRes := applyEdits(filename, string(raw), edits)
	if errRes != nil {
		return errRes
	}
	if res := r.WriteFile(ctx, filename, edited); res["status"] != "success" {
		return res
	}
	return successResult("Successfully edited " + filename)
}

func (r *ContainerRuntime) ReadFileInternal(ctx context.Context, filename string) ([]byte, error) {
	out, stderr, code, err := r.exec(ctx, fmt.Sprintf("base64 %s", shellQuote(filename)), nil)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	if code != 0 {
		return nil, fmt.Errorf("read %s: %s", filename, strings.TrimSpace(stderr))
	}
	// base64(1) wraps lines; strip all whitespace before decoding.
	compact := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, out)
	return base64.StdEncoding.DecodeString(compact)
}

// shellQuote single-quotes a string for safe interpolation into bash -c.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
