package vigil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestApplyEditsSingleMatch(t *testing.T) {
	content := "alpha\nbeta\ngamma\n"
	edited, errRes := applyEdits("f.txt", content, []FileEdit{{Search: "beta", Replace: "BETA"}})
	if errRes != nil {
		t.Fatalf("unexpected error result: %v", errRes)
	}
	if edited != "alpha\nBETA\ngamma\n" {
		t.Errorf("edited = %q", edited)
	}
}

func TestApplyEditsSequential(t *testing.T) {
	content := "one two"
	edits := []FileEdit{
		{Search: "one", Replace: "1"},
		{Search: "1 two", Replace: "1 2"},
	}
	edited, errRes := applyEdits("f.txt", content, edits)
	if errRes != nil {
		t.Fatalf("unexpected error result: %v", errRes)
	}
	if edited != "1 2" {
		t.Errorf("edited = %q, want %q", edited, "1 2")
	}
}

func TestApplyEditsNoMatch(t *testing.T) {
	_, errRes := applyEdits("f.txt", "hello", []FileEdit{{Search: "missing", Replace: "x"}})
	if errRes == nil {
		t.Fatal("expected error result")
	}
	msg, _ := errRes["message"].(string)
	if !strings.Contains(msg, "Could not find exact match in f.txt") {
		t.Errorf("message = %q", msg)
	}
	if !strings.Contains(msg, "The file is left unmodified.") {
		t.Errorf("message missing unmodified notice: %q", msg)
	}
}

func TestApplyEditsMultipleMatches(t *testing.T) {
	_, errRes := applyEdits("f.txt", "dup dup", []FileEdit{{Search: "dup", Replace: "x"}})
	if errRes == nil {
		t.Fatal("expected error result")
	}
	msg, _ := errRes["message"].(string)
	if !strings.Contains(msg, "Multiple occurrences of search block found in f.txt") {
		t.Errorf("message = %q", msg)
	}
}

func TestApplyEditsAllOrNothing(t *testing.T) {
	// Second edit fails, so the whole batch reports an error.
	edits := []FileEdit{
		{Search: "a", Replace: "x"},
		{Search: "missing", Replace: "y"},
	}
	_, errRes := applyEdits("f.txt", "a b", edits)
	if errRes == nil {
		t.Fatal("expected error result")
	}
}

func TestReadPage(t *testing.T) {
	content := "l1\nl2\nl3\nl4\nl5"

	page, end, total := readPage(content, 2, 2)
	if page != "l2\nl3" || end != 3 || total != 5 {
		t.Errorf("readPage(2,2) = %q, %d, %d", page, end, total)
	}

	// Past the end of file.
	page, _, total = readPage(content, 10, 2)
	if page != "" || total != 5 {
		t.Errorf("readPage past EOF = %q, total %d", page, total)
	}

	// numLines <= 0 falls back to the default page size.
	page, end, _ = readPage(content, 1, 0)
	if page != content || end != 5 {
		t.Errorf("readPage default = %q, end %d", page, end)
	}
}

func TestTruncateOutput(t *testing.T) {
	small := "short"
	if got := truncateOutput(small, "(truncated: output is too long)"); got != small {
		t.Errorf("short output modified: %q", got)
	}

	big := strings.Repeat("x", maxOutputBytes+100)
	got := truncateOutput(big, "(truncated: output is too long)")
	if !strings.HasSuffix(got, "\n(truncated: output is too long)") {
		t.Errorf("missing truncation notice: %q", got[len(got)-50:])
	}
	if len(got) != maxOutputBytes+len("\n(truncated: output is too long)") {
		t.Errorf("truncated length = %d", len(got))
	}
}

func TestExecResultStatus(t *testing.T) {
	res := execResult("out", "err", 0)
	if res["status"] != "success" || res["returncode"] != 0 {
		t.Errorf("zero exit: %v", res)
	}
	res = execResult("", "boom", 2)
	if res["status"] != "error" || res["returncode"] != 2 {
		t.Errorf("nonzero exit: %v", res)
	}
}

func TestHostRuntimeFileCycle(t *testing.T) {
	dir := t.TempDir()
	rt, err := NewHostRuntime(dir, nil)
	if err != nil {
		t.Fatalf("NewHostRuntime: %v", err)
	}
	ctx := context.Background()

	res := rt.WriteFile(ctx, "notes/today.md", "first\nsecond\nthird")
	if res["status"] != "success" {
		t.Fatalf("WriteFile: %v", res)
	}
	if res["message"] != "Content saved to notes/today.md" {
		t.Errorf("WriteFile message = %q", res["message"])
	}

	res = rt.ReadFile(ctx, "notes/today.md", 2, 1)
	if res["status"] != "success" || res["content"] != "second" {
		t.Fatalf("ReadFile: %v", res)
	}
	if res["start_line"] != 2 || res["returned_lines"] != 2 || res["total_lines"] != 3 {
		t.Errorf("ReadFile bounds: %v", res)
	}

	res = rt.EditFile(ctx, "notes/today.md", []FileEdit{{Search: "second", Replace: "2nd"}})
	if res["status"] != "success" {
		t.Fatalf("EditFile: %v", res)
	}
	if res["message"] != "Successfully edited notes/today.md" {
		t.Errorf("EditFile message = %q", res["message"])
	}

	raw, err := rt.ReadFileInternal(ctx, "notes/today.md")
	if err != nil {
		t.Fatalf("ReadFileInternal: %v", err)
	}
	if string(raw) != "first\n2nd\nthird" {
		t.Errorf("file content = %q", raw)
	}

	// Failed edit leaves the file untouched.
	res = rt.EditFile(ctx, "notes/today.md", []FileEdit{{Search: "nope", Replace: "x"}})
	if res["status"] != "error" {
		t.Fatalf("EditFile expected error: %v", res)
	}
	raw, _ = os.ReadFile(filepath.Join(dir, "notes", "today.md"))
	if string(raw) != "first\n2nd\nthird" {
		t.Errorf("file modified by failed edit: %q", raw)
	}
}

func TestHostRuntimeExecute(t *testing.T) {
	rt, err := NewHostRuntime(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewHostRuntime: %v", err)
	}

	res := rt.Execute(context.Background(), "echo hello; echo oops >&2; exit 3")
	if res["status"] != "error" || res["returncode"] != 3 {
		t.Fatalf("Execute: %v", res)
	}
	if !strings.Contains(res["stdout"].(string), "hello") {
		t.Errorf("stdout = %q", res["stdout"])
	}
	if !strings.Contains(res["stderr"].(string), "oops") {
		t.Errorf("stderr = %q", res["stderr"])
	}
}

func TestHostRuntimeReadMissingFile(t *testing.T) {
	rt, err := NewHostRuntime(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewHostRuntime: %v", err)
	}
	res := rt.ReadFile(context.Background(), "ghost.txt", 1, 10)
	if res["status"] != "error" {
		t.Errorf("expected error: %v", res)
	}
}
