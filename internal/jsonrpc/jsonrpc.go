// Package jsonrpc implements JSON-RPC 2.0 request/response/notification
// framing for the agent-process supervisor and its remote transport
// variant.
package jsonrpc

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// JSONRPCVersion is the protocol version string every message carries.
const JSONRPCVersion = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e == nil {
		return "jsonrpc: nil error"
	}
	if e.Data != nil {
		return fmt.Sprintf("JSON-RPC error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// Request is a JSON-RPC request or notification (Method set, ID nil for a
// notification).
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id,omitempty"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// IsNotification reports whether this request carries no id and therefore
// expects no reply.
func (r *Request) IsNotification() bool {
	return r == nil || r.ID == nil
}

// Response is a JSON-RPC response (exactly one of Result/Error is set).
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// IsError reports whether this response carries an error object.
func (r *Response) IsError() bool {
	return r != nil && r.Error != nil
}

// NewRequest constructs a request with the given id, method, and params.
func NewRequest(id any, method string, params map[string]any) *Request {
	return &Request{JSONRPC: JSONRPCVersion, ID: id, Method: method, Params: params}
}

// NewNotification constructs a request with no id.
func NewNotification(method string, params map[string]any) *Request {
	return &Request{JSONRPC: JSONRPCVersion, Method: method, Params: params}
}

// NewResponse constructs a successful response.
func NewResponse(id any, result any) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

// NewErrorResponse constructs an error response.
func NewErrorResponse(id any, code int, message string, data any) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message, Data: data}}
}

// Marshal encodes any request/response/notification value to JSON.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// UnmarshalRequest decodes a JSON-RPC request or notification.
func UnmarshalRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &RPCError{Code: ParseError, Message: err.Error()}
	}
	if req.JSONRPC != "" && req.JSONRPC != JSONRPCVersion {
		return nil, &RPCError{Code: InvalidRequest, Message: fmt.Sprintf("unsupported jsonrpc version %q", req.JSONRPC)}
	}
	return &req, nil
}

// UnmarshalResponse decodes a JSON-RPC response.
func UnmarshalResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &RPCError{Code: ParseError, Message: err.Error()}
	}
	if resp.JSONRPC != "" && resp.JSONRPC != JSONRPCVersion {
		return nil, &RPCError{Code: InvalidRequest, Message: fmt.Sprintf("unsupported jsonrpc version %q", resp.JSONRPC)}
	}
	return &resp, nil
}

// RequestIDGenerator produces sequential integer request ids.
type RequestIDGenerator struct {
	counter atomic.Int64
}

// NewRequestIDGenerator returns a generator starting at 1.
func NewRequestIDGenerator() *RequestIDGenerator {
	return &RequestIDGenerator{}
}

// Next returns the next sequential id.
func (g *RequestIDGenerator) Next() int64 {
	return g.counter.Add(1)
}
