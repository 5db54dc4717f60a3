package vigil

import (
	"context"
	"fmt"
	"strings"
)

// Runtime executes commands and manipulates files inside the agent's
// workspace. ContainerRuntime targets a long-running podman/docker
// container; HostRuntime runs directly on the host for development.
//
// All methods except ReadFileInternal return tool-result maps so handler
// wiring is a straight passthrough.
type Runtime interface {
	// Execute runs a shell command in the workspace.
	Execute(ctx context.Context, command string) map[string]any

	// ReadFile reads a slice of a text file by line numbers. startLine is
	// 1-based; numLines <= 0 means a default page of 200 lines.
	ReadFile(ctx context.Context, filename string, startLine, numLines int) map[string]any

	// WriteFile creates or overwrites a file, creating parent directories.
	WriteFile(ctx context.Context, filename, content string) map[string]any

	// EditFile applies search/replace edits sequentially in memory and
	// writes the result back in one pass. All-or-nothing: if any edit
	// fails to match uniquely, the file is left untouched.
	EditFile(ctx context.Context, filename string, edits []FileEdit) map[string]any

	// ReadFileInternal reads a whole file as raw bytes, bypassing the
	// tool-result envelope. Used for outbound image transfer.
	ReadFileInternal(ctx context.Context, filename string) ([]byte, error)
}

// Output caps keep tool results small enough for the LLM context window.
const (
	maxOutputBytes   = 5000
	defaultReadLines = 200
)

func truncateOutput(s, notice string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + "\n" + notice
}

func execResult(stdout, stderr string, exitCode int) map[string]any {
	status := "success"
	if exitCode != 0 {
		status = "error"
	}
	return map[string]any{
		"status":     status,
		"stdout":     truncateOutput(stdout, "(truncated: output is too long)"),
		"stderr":     truncateOutput(stderr, "(truncated: error is too long)"),
		"returncode": exitCode,
	}
}

func errorResult(format string, args ...any) map[string]any {
	return map[string]any{"status": "error", "message": fmt.Sprintf(format, args...)}
}

func successResult(message string) map[string]any {
	return map[string]any{"status": "success", "message": message}
}

// FileEdit is one search/replace operation for EditFile.
type FileEdit struct {
	Search  string
	Replace string
}

// applyEdits performs the search/replace operations on content in order.
// It is all-or-nothing: zero matches and multiple matches are both errors
// and no partial edit is ever produced.
func applyEdits(filename, content string, edits []FileEdit) (string, map[string]any) {
	for _, e := range edits {
		switch strings.Count(content, e.Search) {
		case 0:
			return "", errorResult(
				"Could not find exact match in %s for search block\n\n%s\n\nEnsure your SEARCH block is a literal copy of the file content. The file is left unmodified.",
				filename, e.Search)
		case 1:
			content = strings.Replace(content, e.Search, e.Replace, 1)
		default:
			return "", errorResult(
				"Multiple occurrences of search block found in %s. Please include more surrounding context to make it unique.",
				filename)
		}
	}
	return content, nil
}

// readPage slices a file's content by line numbers and reports the page
// bounds alongside the total line count.
func readPage(content string, startLine, numLines int) (page string, end, total int) {
	lines := strings.Split(content, "\n")
	total = len(lines)
	if numLines <= 0 {
		numLines = defaultReadLines
	}
	if startLine < 1 {
		startLine = 1
	}
	if startLine > total {
		return "", startLine - 1, total
	}
	end = startLine + numLines - 1
	if end > total {
		end = total
	}
	return strings.Join(lines[startLine-1:end], "\n"), end, total
}

func readResult(filename, page string, startLine, end, total int) map[string]any {
	return map[string]any{
		"status":         "success",
		"filename":       filename,
		"content":        page,
		"start_line":     startLine,
		"returned_lines": end,
		"total_lines":    total,
	}
}
