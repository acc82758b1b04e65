package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/common/logger"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/paycontext"
)

const maxMessageBytes = 4 << 20

// Server speaks newline-delimited JSON-RPC 2.0 over a reader/writer pair,
// normally stdin and stdout. Logs must go elsewhere.
type Server struct {
	reader           *paycontext.Reader
	resourcesEnabled bool

	writeMu sync.Mutex
}

type Config struct {
	// ResourcesEnabled advertises the payment-context resource and tool.
	ResourcesEnabled bool
}

func NewServer(reader *paycontext.Reader, cfg Config) *Server {
	return &Server{
		reader:           reader,
		resourcesEnabled: cfg.ResourcesEnabled,
	}
}

// Serve handles requests from in until EOF or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "paywatch.mcp"})

	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxMessageBytes)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	slog.InfoContext(ctx, "mcp server running on stdio", "resources_enabled", s.resourcesEnabled)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("reading mcp input: %w", err)
			}
			return nil
		case line := <-lines:
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			if resp := s.HandleMessage(ctx, line); resp != nil {
				if err := s.write(out, resp); err != nil {
					return err
				}
			}
		}
	}
}

func (s *Server) write(out io.Writer, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding mcp response: %w", err)
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("writing mcp response: %w", err)
	}
	return nil
}

// HandleMessage processes one raw JSON-RPC message. It returns nil for notifications.
func (s *Server) HandleMessage(ctx context.Context, raw []byte) (resp *Response) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		slog.WarnContext(ctx, "mcp parse error", "error", err)
		return errorResponse(nil, CodeParseError, "Parse error")
	}

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in mcp handler", "panic", r, "method", req.Method)
			resp = errorResponse(req.ID, CodeInternalError, "Internal error")
		}
	}()

	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "Invalid Request")
	}

	result, rpcErr := s.dispatch(ctx, &req)
	if req.IsNotification() {
		return nil
	}
	if rpcErr != nil {
		return &Response{JSONRPC: jsonRPCVersion, ID: req.ID, Error: rpcErr}
	}
	if result == nil {
		result = struct{}{}
	}
	return &Response{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result}
}

func (s *Server) dispatch(ctx context.Context, req *Request) (any, *Error) {
	switch req.Method {
	case "initialize":
		return s.initialize(), nil
	case "notifications/initialized", "notifications/cancelled":
		return nil, nil
	case "ping":
		return struct{}{}, nil
	case "tools/list":
		return s.listTools(), nil
	case "tools/call":
		return s.handleCallTool(ctx, req.Params)
	case "resources/list":
		if !s.resourcesEnabled {
			return nil, &Error{Code: CodeMethodNotFound, Message: "Method not found"}
		}
		return s.listResources(), nil
	case "resources/read":
		if !s.resourcesEnabled {
			return nil, &Error{Code: CodeMethodNotFound, Message: "Method not found"}
		}
		return s.readResource(req.Params)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: "Method not found"}
	}
}

func (s *Server) initialize() InitializeResult {
	caps := ServerCapabilities{Tools: &struct{}{}}
	if s.resourcesEnabled {
		caps.Resources = &struct{}{}
	}
	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      ServerInfo{Name: ServerName, Version: ServerVersion},
		Capabilities:    caps,
	}
}

func (s *Server) listTools() ListToolsResult {
	if !s.resourcesEnabled {
		return ListToolsResult{Tools: []Tool{}}
	}
	return ListToolsResult{Tools: toolDefinitions()}
}

func (s *Server) handleCallTool(ctx context.Context, raw json.RawMessage) (any, *Error) {
	var params CallToolParams
	if err := json.Unmarshal(raw, &params); err != nil || params.Name == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "Invalid params"}
	}
	if !s.resourcesEnabled {
		return nil, &Error{Code: CodeInvalidParams, Message: "Unknown tool: " + params.Name}
	}

	result, err := s.callTool(params.Name, params.Arguments)
	if errors.Is(err, errUnknownTool) {
		return nil, &Error{Code: CodeInvalidParams, Message: "Unknown tool: " + params.Name}
	}
	if err != nil {
		slog.ErrorContext(ctx, "mcp tool call failed", "error", err, "tool", params.Name)
		return toolError(err), nil
	}
	return result, nil
}

func (s *Server) listResources() ListResourcesResult {
	return ListResourcesResult{Resources: []ResourceDescriptor{{
		URI:         paycontext.ResourceURI,
		Name:        paycontext.ResourceName,
		Description: paycontext.ResourceDescription,
		MimeType:    paycontext.ResourceMimeType,
	}}}
}

func (s *Server) readResource(raw json.RawMessage) (any, *Error) {
	var params ReadResourceParams
	if err := json.Unmarshal(raw, &params); err != nil || params.URI == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "Invalid params"}
	}
	if params.URI != paycontext.ResourceURI {
		return nil, &Error{Code: CodeResourceNotFound, Message: "Unknown resource: " + params.URI}
	}

	text, err := json.MarshalIndent(s.reader.Resource(), "", "  ")
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: "Internal error"}
	}

	return ReadResourceResult{Contents: []ResourceContent{{
		URI:      params.URI,
		MimeType: paycontext.ResourceMimeType,
		Text:     string(text),
	}}}, nil
}

func errorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
}
