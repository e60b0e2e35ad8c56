package mcp

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeToolError      = -32000
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (r rpcRequest) ok(result any) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: r.ID, Result: result}
}

func (r rpcRequest) fail(code int, msg string, data any) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: r.ID, Error: &rpcError{Code: code, Message: msg, Data: data}}
}

// decodeRequest accepts a missing "jsonrpc" member; anything other than 2.0
// is rejected.
func decodeRequest(body []byte) (req rpcRequest, err error) {
	if err = json.Unmarshal(body, &req); err != nil {
		return req, err
	}
	switch {
	case req.JSONRPC != "" && req.JSONRPC != "2.0":
		err = fmt.Errorf("unsupported jsonrpc version %q", req.JSONRPC)
	case req.Method == "":
		err = fmt.Errorf("missing method")
	}
	return req, err
}
