// Package hosttools declares the host-provided tool surface an embedding
// environment exposes to the orchestrator: file read/write/list, reformat,
// tab management, diff review, and diagnostics. Only the interfaces live
// here; every concrete implementation belongs to the host.
package hosttools

import (
	"context"
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Severity filters GetDiagnostics results.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityHint    Severity = "hint"
)

// Diagnostic is one host-reported finding for a file.
type Diagnostic struct {
	Path     string
	Line     int
	Column   int
	Severity Severity
	Message  string
}

// FileReader reads a file from the host workspace.
type FileReader interface {
	ReadFile(ctx context.Context, path string) (string, error)
}

// FileWriter writes a file in the host workspace.
type FileWriter interface {
	WriteFile(ctx context.Context, path, content string) error
}

// FileLister lists files under a directory in the host workspace.
type FileLister interface {
	ListFiles(ctx context.Context, path string) ([]string, error)
}

// Formatter reformats a file using the host's configured formatter.
type Formatter interface {
	ReformatFile(ctx context.Context, path string) error
}

// TabOpener manages the host editor's open-tab state.
type TabOpener interface {
	OpenFile(ctx context.Context, path string) error
	OpenFiles(ctx context.Context, paths []string) error
	CloseTab(ctx context.Context, path string) error
	ListOpenFiles(ctx context.Context) ([]string, error)
}

// DiffResolution is the user's decision on a presented diff.
type DiffResolution string

const (
	DiffAccepted DiffResolution = "accepted"
	DiffRejected DiffResolution = "rejected"
)

// DiffPresenter opens an accept/reject diff view in the host editor.
type DiffPresenter interface {
	OpenDiff(ctx context.Context, path, before, after string) (DiffResolution, error)
}

// DiagnosticsProvider returns host-reported diagnostics, optionally filtered
// by severity. An empty severity means "every severity".
type DiagnosticsProvider interface {
	GetDiagnostics(ctx context.Context, path string, severity Severity) ([]Diagnostic, error)
}

// Surface aggregates every host-provided capability. A real embedding
// environment implements this; the orchestrator core never does.
type Surface interface {
	FileReader
	FileWriter
	FileLister
	Formatter
	TabOpener
	DiffPresenter
	DiagnosticsProvider
}

// UnifiedDiff renders a unified diff of before/after for path, for use by a
// DiffPresenter implementation satisfying the openDiff contract, e.g. a
// host renders hosttools.UnifiedDiff(before, after, path) before asking the
// user to accept or reject it.
func UnifiedDiff(before, after, path string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	patches := dmp.PatchMake(before, diffs)
	text := dmp.PatchToText(patches)
	if text == "" {
		return fmt.Sprintf("--- a/%s\n+++ b/%s\n(no line-level diff available)\n", path, path)
	}
	return fmt.Sprintf("--- a/%s\n+++ b/%s\n%s", path, path, text)
}
