package supervisor

import (
	"strings"
	"testing"

	"github.com/arcway-dev/orchestra/internal/logging"
)

func TestFrameReaderSplitsNewlineDelimitedObjects(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":1,"result":{}}` + "\n" + `{"jsonrpc":"2.0","method":"session/update","params":{}}` + "\n"
	var got []string
	r := NewFrameReader(logging.Nop)
	if err := r.Run(strings.NewReader(input), func(raw []byte) { got = append(got, string(raw)) }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 frames, got %d: %v", len(got), got)
	}
}

func TestFrameReaderDegradedBraceMatching(t *testing.T) {
	concatenated := `{"jsonrpc":"2.0","id":1,"result":{"a":1}}{"jsonrpc":"2.0","id":2,"result":{"b":2}}` + "\n"
	var got []string
	r := NewFrameReader(logging.Nop)
	if err := r.Run(strings.NewReader(concatenated), func(raw []byte) { got = append(got, string(raw)) }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 frames recovered from concatenated line, got %d: %v", len(got), got)
	}
}

func TestFrameReaderSkipsUnparsableLines(t *testing.T) {
	input := "not json at all\n" + `{"jsonrpc":"2.0","id":1,"result":{}}` + "\n"
	var got []string
	r := NewFrameReader(logging.Nop)
	if err := r.Run(strings.NewReader(input), func(raw []byte) { got = append(got, string(raw)) }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 recovered frame, got %d: %v", len(got), got)
	}
}

func TestSplitBalancedObjectsIgnoresBracesInStrings(t *testing.T) {
	line := []byte(`{"jsonrpc":"2.0","id":1,"result":{"text":"a { b } c"}}`)
	objects := splitBalancedObjects(line)
	if len(objects) != 1 {
		t.Fatalf("expected 1 object, got %d", len(objects))
	}
}
