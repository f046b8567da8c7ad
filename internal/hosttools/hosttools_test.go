package hosttools

import (
	"context"
	"strings"
	"testing"
)

func TestUnifiedDiffEmptyWhenIdentical(t *testing.T) {
	if got := UnifiedDiff("same", "same", "a.go"); got != "" {
		t.Fatalf("expected empty diff for identical content, got %q", got)
	}
}

func TestUnifiedDiffIncludesFileHeaders(t *testing.T) {
	got := UnifiedDiff("line one\n", "line one\nline two\n", "pkg/a.go")
	if !strings.Contains(got, "--- a/pkg/a.go") || !strings.Contains(got, "+++ b/pkg/a.go") {
		t.Fatalf("expected unified diff file headers, got %q", got)
	}
}

// fakeHost pins the Surface contract: an embedding environment must be able
// to satisfy every capability with ordinary context-taking methods.
type fakeHost struct{}

var _ Surface = fakeHost{}

func (fakeHost) ReadFile(context.Context, string) (string, error)    { return "", nil }
func (fakeHost) WriteFile(context.Context, string, string) error     { return nil }
func (fakeHost) ListFiles(context.Context, string) ([]string, error) { return nil, nil }
func (fakeHost) ReformatFile(context.Context, string) error          { return nil }
func (fakeHost) OpenFile(context.Context, string) error              { return nil }
func (fakeHost) OpenFiles(context.Context, []string) error           { return nil }
func (fakeHost) CloseTab(context.Context, string) error              { return nil }
func (fakeHost) ListOpenFiles(context.Context) ([]string, error)     { return nil, nil }
func (fakeHost) OpenDiff(context.Context, string, string, string) (DiffResolution, error) {
	return DiffAccepted, nil
}
func (fakeHost) GetDiagnostics(context.Context, string, Severity) ([]Diagnostic, error) {
	return nil, nil
}

func TestFakeHostOpenDiffDefaultsToAccepted(t *testing.T) {
	res, err := fakeHost{}.OpenDiff(context.Background(), "a.go", "x", "y")
	if err != nil || res != DiffAccepted {
		t.Fatalf("unexpected resolution: %v %v", res, err)
	}
}
