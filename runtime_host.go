package vigil

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// HostRuntime runs commands directly on the host with the workspace as the
// working directory. Intended for development and tests; production
// deployments should prefer ContainerRuntime for isolation.
type HostRuntime struct {
	workdir string
	logger  *slog.Logger
}

var _ Runtime = (*HostRuntime)(nil)

// NewHostRuntime creates a runtime rooted at workdir. The directory is
// created if missing.
func NewHostRuntime(workdir string, logger *slog.Logger) (*HostRuntime, error) {
	if logger == nil {
		logger = nopLogger()
	}
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return nil, err
	}
	return &HostRuntime{workdir: workdir, logger: logger}, nil
}

// resolve joins a tool-supplied path onto the workspace root. Absolute
// paths are used as-is so the agent can inspect the wider host when running
// unconfined.
func (r *HostRuntime) resolve(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(r.workdir, filename)
}

func (r *HostRuntime) Execute(ctx context.Context, command string) map[string]any {
	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = r.workdir
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
	if err != nil {
		return errorResult("Failed to execute command: %v", err)
	}
	r.logger.Debug("host exec", slog.String("command", command), slog.Int("exit_code", code))
	return execResult(stdout.String(), stderr.String(), code)
}

func (r *HostRuntime) ReadFile(ctx context.Context, filename string, startLine, numLines int) map[string]any {
	raw, err := os.ReadFile(r.resolve(filename))
	if err != nil {
		return errorResult("Failed to read file %s: %v", filename, err)
	}
	if startLine < 1 {
		startLine = 1
	}
	page, end, total := readPage(string(raw), startLine, numLines)
	return readResult(filename, page, startLine, end, total)
}

func (r *HostRuntime) WriteFile(ctx context.Context, filename, content string) map[string]any {
	full := r.resolve(filename)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errorResult("Failed to write file %s: %v", filename, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return errorResult("Failed to write file %s: %v", filename, err)
	}
	return successResult("Content saved to " + filename)
}

func (r *HostRuntime) EditFile(ctx context.Context, filename string, edits []FileEdit) map[string]any {
	full := r.resolve(filename)
	raw, err := os.ReadFile(full)
	if err != nil {
		return errorResult("Failed to read file %s: %v", filename, err)
	}
	edited, errRes := applyEdits(filename, string(raw), edits)
	if errRes != nil {
		return errRes
	}
	if err := os.WriteFile(full, []byte(edited), 0o644); err != nil {
		return errorResult("Failed to write file %s: %v", filename, err)
	}
	return successResult("Successfully edited " + filename)
}

func (r *HostRuntime) ReadFileInternal(ctx context.Context, filename string) ([]byte, error) {
	return os.ReadFile(r.resolve(filename))
}
