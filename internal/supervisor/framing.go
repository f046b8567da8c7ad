package supervisor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/arcway-dev/orchestra/internal/logging"
)

// FrameHandler receives one decoded JSON-RPC payload at a time, in arrival
// order. raw is the exact bytes that were parsed, useful for diagnostics.
type FrameHandler func(raw []byte)

// FrameReader accumulates a child's stdout and splits it into individual
// JSON-RPC objects, falling back to brace-matching when a line concatenates
// more than one object without a newline separator.
type FrameReader struct {
	logger logging.Logger
}

// NewFrameReader returns a FrameReader.
func NewFrameReader(logger logging.Logger) *FrameReader {
	return &FrameReader{logger: logging.OrNop(logger)}
}

// Run reads from r line by line until EOF or ctx-driven closure, invoking
// handle once per decoded JSON object found on each line.
func (f *FrameReader) Run(r io.Reader, handle FrameHandler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if json.Valid(line) {
			handle(append([]byte(nil), line...))
			continue
		}
		objects := splitBalancedObjects(line)
		if len(objects) == 0 {
			f.logger.Warn("supervisor: dropping unparsable frame: %s", truncate(line, 200))
			continue
		}
		for _, obj := range objects {
			handle(obj)
		}
	}
	return scanner.Err()
}

// splitBalancedObjects scans line for a sequence of balanced-brace JSON
// objects, tolerating agents that write multiple objects without a
// newline between them. Objects that fail to validate are skipped.
func splitBalancedObjects(line []byte) [][]byte {
	var out [][]byte
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, b := range line {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					candidate := line[start : i+1]
					if json.Valid(candidate) {
						out = append(out, append([]byte(nil), candidate...))
					}
					start = -1
				}
			}
		}
	}
	return out
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
