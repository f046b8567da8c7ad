package supervisor

import (
	"context"
	"os"

	"github.com/arcway-dev/orchestra/internal/jsonrpc"
)

// LocalFSHostResponder answers inbound requests a child agent makes
// mid-turn against the local filesystem: permission grants are always
// approved, file reads/writes hit the local filesystem, and terminal
// operations are stubbed to an empty result.
type LocalFSHostResponder struct{}

// NewLocalFSHostResponder returns a HostResponder backed by the local
// filesystem.
func NewLocalFSHostResponder() *LocalFSHostResponder {
	return &LocalFSHostResponder{}
}

// Handle dispatches req to the appropriate stub based on its method.
func (r *LocalFSHostResponder) Handle(_ context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	switch req.Method {
	case "session/request_permission":
		return jsonrpc.NewResponse(req.ID, map[string]any{"outcome": "approved"})
	case "fs/read_text_file":
		return r.readFile(req)
	case "fs/write_text_file":
		return r.writeFile(req)
	case "terminal/create", "terminal/output", "terminal/release", "terminal/wait_for_exit", "terminal/kill":
		return jsonrpc.NewResponse(req.ID, map[string]any{})
	default:
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.MethodNotFound, "method not supported", req.Method)
	}
}

func (r *LocalFSHostResponder) readFile(req *jsonrpc.Request) *jsonrpc.Response {
	path, _ := req.Params["path"].(string)
	data, err := os.ReadFile(path)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, -32000, err.Error(), nil)
	}
	return jsonrpc.NewResponse(req.ID, map[string]any{"content": string(data)})
}

func (r *LocalFSHostResponder) writeFile(req *jsonrpc.Request) *jsonrpc.Response {
	path, _ := req.Params["path"].(string)
	content, _ := req.Params["content"].(string)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, -32000, err.Error(), nil)
	}
	return jsonrpc.NewResponse(req.ID, map[string]any{})
}
