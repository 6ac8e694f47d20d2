package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ragcore/internal/agent"
	"ragcore/internal/apperr"
	"ragcore/internal/health"
	"ragcore/internal/metadatastore"
	"ragcore/internal/ollamaadmin"
)

const protocolVersion = "2024-11-05"

// Server dispatches JSON-RPC requests against the tool registry, the
// metadata store, the health registry, and the Ollama admin client. It is
// transport-agnostic: stdio.go and sse.go each drive it with bytes read
// from their respective framing.
type Server struct {
	Tools  *agent.Registry
	Store  *metadatastore.Store
	Health *health.Registry
	Ollama *ollamaadmin.Client
}

var staticResources = []struct {
	URI, Name, Description string
}{
	{"resource://knowledge/collections", "collections", "All knowledge base collections"},
	{"resource://system/health", "health", "Component health status"},
	{"resource://system/models", "models", "Installed and available models"},
}

var resourceTemplates = []struct {
	Template, Name, Description string
}{
	{"resource://knowledge/{collectionId}/documents", "collection-documents", "Documents in a collection"},
	{"resource://knowledge/{collectionId}/document/{documentId}", "document", "A single document's metadata"},
	{"resource://knowledge/{collectionId}/stats", "collection-stats", "A collection's counts and status"},
}

// Dispatch handles one JSON-RPC request and returns its response. It never
// returns a transport-level error: malformed input is reported as a
// JSON-RPC error response, per the protocol.
func (s *Server) Dispatch(ctx context.Context, req Request) Response {
	if req.JSONRPC != jsonrpcVersion {
		return errorResponse(req.ID, codeInvalidRequest, "jsonrpc must be \"2.0\"")
	}
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "resources/list":
		return s.handleResourcesList(req)
	case "resources/templates/list":
		return s.handleResourceTemplatesList(req)
	case "resources/read":
		return s.handleResourcesRead(ctx, req)
	default:
		return errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
	}
}

func (s *Server) handleInitialize(req Request) Response {
	return resultResponse(req.ID, map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools":     map[string]any{"listChanged": false},
			"resources": map[string]any{"subscribe": false, "listChanged": false},
		},
		"serverInfo": map[string]any{"name": "ragcore", "version": "1.0.0"},
	})
}

func (s *Server) handleToolsList(req Request) Response {
	specs := s.Tools.Specs()
	out := make([]map[string]any, 0, len(specs))
	for _, spec := range specs {
		out = append(out, map[string]any{
			"name":        spec.Name,
			"description": spec.Description,
			"inputSchema": spec.Parameters,
		})
	}
	return resultResponse(req.ID, map[string]any{"tools": out})
}

func (s *Server) handleToolsCall(ctx context.Context, req Request) Response {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return errorResponse(req.ID, codeInvalidParams, "tools/call requires a tool name")
	}

	result, err := s.Tools.Call(ctx, params.Name, params.Arguments)
	if err != nil && strings.Contains(err.Error(), "unknown tool") {
		return errorResponse(req.ID, codeInvalidParams, err.Error())
	}

	text, isError := toolResultText(result, err)
	return resultResponse(req.ID, toolCallResult{
		Content: []toolContent{{Type: "text", Text: text}},
		IsError: isError,
	})
}

func toolResultText(result any, err error) (string, bool) {
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error()), true
	}
	b, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return fmt.Sprintf(`{"error":%q}`, marshalErr.Error()), true
	}
	return string(b), false
}

func (s *Server) handleResourcesList(req Request) Response {
	out := make([]map[string]any, 0, len(staticResources))
	for _, r := range staticResources {
		out = append(out, map[string]any{
			"uri": r.URI, "name": r.Name, "description": r.Description, "mimeType": "application/json",
		})
	}
	return resultResponse(req.ID, map[string]any{"resources": out})
}

func (s *Server) handleResourceTemplatesList(req Request) Response {
	out := make([]map[string]any, 0, len(resourceTemplates))
	for _, t := range resourceTemplates {
		out = append(out, map[string]any{
			"uriTemplate": t.Template, "name": t.Name, "description": t.Description, "mimeType": "application/json",
		})
	}
	return resultResponse(req.ID, map[string]any{"resourceTemplates": out})
}

func (s *Server) handleResourcesRead(ctx context.Context, req Request) Response {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
		return errorResponse(req.ID, codeInvalidParams, "resources/read requires a uri")
	}

	payload, err := s.readResource(ctx, params.URI)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return errorResponse(req.ID, codeResourceNotFound, err.Error())
		}
		return errorResponse(req.ID, codeInternal, err.Error())
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return errorResponse(req.ID, codeInternal, err.Error())
	}
	return resultResponse(req.ID, map[string]any{
		"contents": []resourceContent{{URI: params.URI, MimeType: "application/json", Text: string(b)}},
	})
}
