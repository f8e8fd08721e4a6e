package rpcserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/batalabs/nexus3d/internal/registry"
)

// handleRPC decodes one JSON-RPC 2.0 request, dispatches it to the
// matching method, and writes exactly one response. Batched requests
// are not supported — the core spec's method table (§6) describes a
// single request/response exchange per call.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, errorResponse(nil, codeParseError, "invalid JSON-RPC request"))
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonrpcVersion {
		writeJSON(w, http.StatusOK, errorResponse(req.ID, codeInvalidRequest, "unsupported jsonrpc version"))
		return
	}

	// Every method requires the bearer credential except detect, per §6.
	if req.Method != "detect" && !s.checkAuth(r) {
		writeJSON(w, http.StatusOK, errorResponse(req.ID, codeApplicationError, "unauthorized"))
		return
	}

	resp := s.dispatch(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Method {
	case "detect":
		return result(req.ID, map[string]any{"ok": true, "port": s.port})
	case "create":
		return s.rpcCreate(ctx, req)
	case "destroy":
		return s.rpcDestroy(req)
	case "list":
		return result(req.ID, s.reg.List())
	case "send":
		return s.rpcSend(ctx, req)
	case "cancel":
		return s.rpcCancel(req)
	case "status":
		return s.rpcStatus(req)
	case "compact":
		return s.rpcCompact(req)
	case "shutdown":
		resp := result(req.ID, map[string]bool{"ok": true})
		go s.triggerShutdown()
		return resp
	default:
		return errorResponse(req.ID, codeMethodNotFound, "unknown method: "+req.Method)
	}
}

func decodeParams[T any](req Request) (T, bool) {
	var p T
	if len(req.Params) == 0 {
		return p, true
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return p, false
	}
	return p, true
}

type createParams struct {
	AgentID           string   `json:"agent_id"`
	Preset            string   `json:"preset"`
	Cwd               string   `json:"cwd"`
	AllowedWritePaths []string `json:"allowed_write_paths"`
	Model             string   `json:"model"`
	InitialMessage    string   `json:"initial_message"`
	Timeout           float64  `json:"timeout"`
}

func (s *Server) rpcCreate(ctx context.Context, req Request) Response {
	p, ok := decodeParams[createParams](req)
	if !ok {
		return errorResponse(req.ID, codeInvalidParams, "invalid create params")
	}
	summary, err := s.reg.Create(ctx, registry.CreateRequest{
		AgentID:           p.AgentID,
		Preset:            registry.Preset(p.Preset),
		Cwd:               p.Cwd,
		AllowedWritePaths: p.AllowedWritePaths,
		Model:             p.Model,
		InitialMessage:    p.InitialMessage,
		Timeout:           durationSeconds(p.Timeout),
	})
	if err != nil {
		return errorResponse(req.ID, codeApplicationError, err.Error())
	}
	return result(req.ID, summary)
}

type agentIDParams struct {
	AgentID string `json:"agent_id"`
}

func (s *Server) rpcDestroy(req Request) Response {
	p, ok := decodeParams[agentIDParams](req)
	if !ok {
		return errorResponse(req.ID, codeInvalidParams, "invalid destroy params")
	}
	if err := s.reg.Destroy(p.AgentID); err != nil {
		return errorResponse(req.ID, codeApplicationError, err.Error())
	}
	return result(req.ID, map[string]bool{"ok": true})
}

type sendParams struct {
	AgentID string  `json:"agent_id"`
	Content string  `json:"content"`
	Timeout float64 `json:"timeout"`
}

func (s *Server) rpcSend(ctx context.Context, req Request) Response {
	p, ok := decodeParams[sendParams](req)
	if !ok {
		return errorResponse(req.ID, codeInvalidParams, "invalid send params")
	}
	reply, err := s.reg.Send(ctx, p.AgentID, p.Content, durationSeconds(p.Timeout))
	if err != nil {
		return errorResponse(req.ID, codeApplicationError, err.Error())
	}
	return result(req.ID, map[string]string{"message": reply})
}

type cancelParams struct {
	AgentID   string `json:"agent_id"`
	RequestID string `json:"request_id"`
}

func (s *Server) rpcCancel(req Request) Response {
	p, ok := decodeParams[cancelParams](req)
	if !ok {
		return errorResponse(req.ID, codeInvalidParams, "invalid cancel params")
	}
	if err := s.reg.Cancel(p.AgentID, p.RequestID); err != nil {
		return errorResponse(req.ID, codeApplicationError, err.Error())
	}
	return result(req.ID, map[string]bool{"ok": true})
}

func (s *Server) rpcStatus(req Request) Response {
	p, ok := decodeParams[agentIDParams](req)
	if !ok {
		return errorResponse(req.ID, codeInvalidParams, "invalid status params")
	}
	status, err := s.reg.Status(p.AgentID)
	if err != nil {
		return errorResponse(req.ID, codeApplicationError, err.Error())
	}
	return result(req.ID, status)
}

func (s *Server) rpcCompact(req Request) Response {
	p, ok := decodeParams[agentIDParams](req)
	if !ok {
		return errorResponse(req.ID, codeInvalidParams, "invalid compact params")
	}
	status, compacted, err := s.reg.Compact(p.AgentID)
	if err != nil {
		return errorResponse(req.ID, codeApplicationError, err.Error())
	}
	return result(req.ID, map[string]any{
		"input_tokens":  status.InputTokens,
		"output_tokens": status.OutputTokens,
		"compacted":     compacted,
	})
}

func durationSeconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
