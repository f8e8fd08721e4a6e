package rpcserver

import (
	"encoding/json"
	"fmt"
)

// jsonrpcVersion is the protocol version stamped on every response.
const jsonrpcVersion = "2.0"

// Request is a JSON-RPC 2.0 request as received on POST /rpc. ID is kept
// as a raw message rather than decoded to a concrete type so it can be
// echoed back byte-for-byte in the response regardless of whether the
// caller used a string or a number id — adapted from
// nugget-thane-ai-agent's internal/mcp/jsonrpc.go Request/Response pair,
// which fixes ID at int64 because its only caller is this project's own
// MCP client; a JSON-RPC *server* fielding arbitrary callers cannot
// assume that.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result or Error is
// set in a well-formed response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC 2.0 error codes, used for parse/shape failures that
// happen before a method even gets a chance to run. Method-level
// failures (agent not found, bad params) use codeApplicationError: the
// core spec's error taxonomy (§7) treats validation errors as method
// errors, not protocol errors, and does not mandate distinct codes per
// failure kind.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeApplicationError = -32000
)

func result(id json.RawMessage, v any) Response {
	return Response{JSONRPC: jsonrpcVersion, ID: id, Result: v}
}

func errorResponse(id json.RawMessage, code int, message string) Response {
	return Response{JSONRPC: jsonrpcVersion, ID: id, Error: &RPCError{Code: code, Message: message}}
}
