package jsonrpc

import "testing"

func TestRequestIDGenerator(t *testing.T) {
	gen := NewRequestIDGenerator()

	id1 := gen.Next()
	id2 := gen.Next()
	id3 := gen.Next()

	if id1 != 1 {
		t.Errorf("expected first id to be 1, got %d", id1)
	}
	if id2 != 2 {
		t.Errorf("expected second id to be 2, got %d", id2)
	}
	if id3 != 3 {
		t.Errorf("expected third id to be 3, got %d", id3)
	}
}

func TestNewRequest(t *testing.T) {
	req := NewRequest(1, "test_method", map[string]any{"param1": "value1"})

	if req.JSONRPC != JSONRPCVersion {
		t.Errorf("expected jsonrpc version %s, got %s", JSONRPCVersion, req.JSONRPC)
	}
	if req.ID != 1 {
		t.Errorf("expected id 1, got %v", req.ID)
	}
	if req.Method != "test_method" {
		t.Errorf("expected method test_method, got %s", req.Method)
	}
	if req.Params["param1"] != "value1" {
		t.Errorf("expected param1=value1, got %v", req.Params["param1"])
	}
}

func TestNewNotification(t *testing.T) {
	notif := NewNotification("test_notification", map[string]any{"data": "test"})

	if notif.JSONRPC != JSONRPCVersion {
		t.Errorf("expected jsonrpc version %s, got %s", JSONRPCVersion, notif.JSONRPC)
	}
	if notif.Method != "test_notification" {
		t.Errorf("expected method test_notification, got %s", notif.Method)
	}
	if !notif.IsNotification() {
		t.Error("expected notification without id to report IsNotification() == true")
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse(1, map[string]any{"result": "success"})

	if resp.Error != nil {
		t.Errorf("expected no error, got %v", resp.Error)
	}
	if resp.IsError() {
		t.Error("expected IsError() to return false")
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(1, InvalidParams, "Invalid parameters", "param1 is required")

	if resp.Error == nil {
		t.Fatal("expected error, got nil")
	}
	if resp.Error.Code != InvalidParams {
		t.Errorf("expected error code %d, got %d", InvalidParams, resp.Error.Code)
	}
	if !resp.IsError() {
		t.Error("expected IsError() to return true")
	}
}

func TestRPCError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *RPCError
		expected string
	}{
		{
			name:     "error without data",
			err:      &RPCError{Code: ParseError, Message: "Parse failed"},
			expected: "JSON-RPC error -32700: Parse failed",
		},
		{
			name:     "error with data",
			err:      &RPCError{Code: InvalidRequest, Message: "Invalid request", Data: "missing method"},
			expected: "JSON-RPC error -32600: Invalid request (data: missing method)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestMarshalUnmarshal(t *testing.T) {
	req := NewRequest(42, "test_method", map[string]any{"key": "value"})

	data, err := Marshal(req)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	parsed, err := UnmarshalRequest(data)
	if err != nil {
		t.Fatalf("failed to unmarshal request: %v", err)
	}
	if parsed.Method != req.Method {
		t.Errorf("expected method %s, got %s", req.Method, parsed.Method)
	}
	parsedID, ok := parsed.ID.(float64)
	if !ok || parsedID != 42.0 {
		t.Errorf("expected id 42 as float64, got %v (%T)", parsed.ID, parsed.ID)
	}

	resp := NewResponse(42, map[string]any{"status": "ok"})
	data, err = Marshal(resp)
	if err != nil {
		t.Fatalf("failed to marshal response: %v", err)
	}
	parsedResp, err := UnmarshalResponse(data)
	if err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	parsedRespID, ok := parsedResp.ID.(float64)
	if !ok || parsedRespID != 42.0 {
		t.Errorf("expected id 42 as float64, got %v (%T)", parsedResp.ID, parsedResp.ID)
	}
}

func TestUnmarshalInvalidJSON(t *testing.T) {
	_, err := UnmarshalResponse([]byte("not valid json"))
	if err == nil {
		t.Error("expected error for invalid json")
	}
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Errorf("expected *RPCError, got %T", err)
	}
	if rpcErr.Code != ParseError {
		t.Errorf("expected ParseError code, got %d", rpcErr.Code)
	}
}

func TestUnmarshalInvalidVersion(t *testing.T) {
	invalidResp := `{"jsonrpc":"1.0","id":1,"result":"test"}`

	_, err := UnmarshalResponse([]byte(invalidResp))
	if err == nil {
		t.Error("expected error for invalid version")
	}
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Errorf("expected *RPCError, got %T", err)
	}
	if rpcErr.Code != InvalidRequest {
		t.Errorf("expected InvalidRequest code, got %d", rpcErr.Code)
	}
}

func TestRequest_IsNotification(t *testing.T) {
	req := NewRequest(1, "test", nil)
	if req.IsNotification() {
		t.Error("expected request with id to not be a notification")
	}
	req.ID = nil
	if !req.IsNotification() {
		t.Error("expected request without id to be a notification")
	}
}
