package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/model"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/paycontext"
)

const PaymentContextTool = "get_payment_context"

var errUnknownTool = errors.New("unknown tool")

// PaymentContextArgs are the arguments of get_payment_context.
type PaymentContextArgs struct {
	Status string `json:"status,omitempty" jsonschema:"description=Only return events with this status (e.g. failed or refunded)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=10,description=Maximum number of events to return"`
}

type PaymentContextResult struct {
	Events  []model.PaymentEvent `json:"events"`
	Count   int                  `json:"count"`
	Summary paycontext.Summary   `json:"summary"`
}

func inputSchema(v any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(v)
}

func toolDefinitions() []Tool {
	return []Tool{
		{
			Name:        PaymentContextTool,
			Description: "Recent Lemon Squeezy payment events (newest first) recorded from webhooks and failed-payment polling.",
			InputSchema: inputSchema(&PaymentContextArgs{}),
		},
	}
}

// callTool dispatches a tool call. Argument problems are reported as tool
// errors, unknown tools as errUnknownTool.
func (s *Server) callTool(name string, rawArgs json.RawMessage) (CallToolResult, error) {
	switch name {
	case PaymentContextTool:
		args, err := decodeArgs(rawArgs)
		if err != nil {
			return toolError(err), nil
		}
		return s.paymentContext(args)
	default:
		return CallToolResult{}, fmt.Errorf("%w: %s", errUnknownTool, name)
	}
}

func decodeArgs(raw json.RawMessage) (PaymentContextArgs, error) {
	var args PaymentContextArgs
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return args, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&args); err != nil {
		return args, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.Limit != 0 && (args.Limit < 1 || args.Limit > model.MaxContextEvents) {
		return args, fmt.Errorf("limit must be between 1 and %d", model.MaxContextEvents)
	}
	return args, nil
}

func (s *Server) paymentContext(args PaymentContextArgs) (CallToolResult, error) {
	events := s.reader.Query(args.Status, args.Limit)
	result := PaymentContextResult{
		Events:  events,
		Count:   len(events),
		Summary: s.reader.Resource().Summary,
	}

	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return CallToolResult{}, fmt.Errorf("encoding payment context: %w", err)
	}
	return CallToolResult{Content: []ToolContent{{Type: "text", Text: string(text)}}}, nil
}

func toolError(err error) CallToolResult {
	return CallToolResult{
		Content: []ToolContent{{Type: "text", Text: "Error: " + err.Error()}},
		IsError: true,
	}
}
