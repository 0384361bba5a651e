// Package mcp exposes the crop advisory flows as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"cropguide/backend/internal/agronomy"
	"cropguide/backend/internal/auth"
	"cropguide/backend/internal/flow"
	"cropguide/backend/internal/schema"
	"cropguide/backend/internal/services"
)

type Server struct {
	mcpServer *server.MCPServer
	service   *services.AdvisorService
}

func NewServer(service *services.AdvisorService, version string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"CropGuide",
			version,
			server.WithToolCapabilities(true),
		),
		service: service,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	for _, f := range s.service.Flows() {
		def := f.Definition()
		s.mcpServer.AddTool(newTool(def.Name, def.Description, def.Input), s.handleFlow(def.Name))
	}
	s.mcpServer.AddTool(
		newTool(agronomy.FarmAnalysisName,
			"Analyze the growth of every crop on a farm and suggest crops for its land.",
			agronomy.FarmShape),
		s.handleFarmAnalysis,
	)
}

// newTool declares a tool whose arguments mirror shape.
func newTool(name, description string, shape *schema.Shape) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(description)}
	for _, f := range shape.Fields {
		opts = append(opts, toolArgument(f))
	}
	return mcp.NewTool(name, opts...)
}

func toolArgument(f schema.Field) mcp.ToolOption {
	props := []mcp.PropertyOption{mcp.Description(f.Description)}
	if f.Required {
		props = append(props, mcp.Required())
	}

	switch f.Kind {
	case schema.KindNumber, schema.KindInteger:
		if f.Minimum != nil {
			props = append(props, mcp.Min(*f.Minimum))
		}
		if f.Maximum != nil {
			props = append(props, mcp.Max(*f.Maximum))
		}
		return mcp.WithNumber(f.Name, props...)
	case schema.KindBoolean:
		return mcp.WithBoolean(f.Name, props...)
	case schema.KindObject:
		js := f.JSONSchema()
		if properties, ok := js["properties"].(map[string]any); ok {
			props = append(props, mcp.Properties(properties))
		}
		return mcp.WithObject(f.Name, props...)
	case schema.KindArray:
		if f.Items != nil {
			props = append(props, mcp.Items(f.Items.JSONSchema()))
		}
		return mcp.WithArray(f.Name, props...)
	default:
		if len(f.Enum) > 0 {
			props = append(props, mcp.Enum(f.Enum...))
		}
		if f.MinLength != nil {
			props = append(props, mcp.MinLength(*f.MinLength))
		}
		return mcp.WithString(f.Name, props...)
	}
}

func (s *Server) handleFlow(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		farmerID, _ := auth.FarmerIDFromContext(ctx)
		out, err := s.service.RunFlow(ctx, farmerID, name, request.GetArguments())
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(out)
	}
}

func (s *Server) handleFarmAnalysis(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError("Invalid arguments"), nil
	}
	var details agronomy.FarmDetails
	if err := json.Unmarshal(raw, &details); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
	}

	farmerID, _ := auth.FarmerIDFromContext(ctx)
	report, err := s.service.AnalyzeFarm(ctx, farmerID, details)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(report)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// toolError reports a flow failure to the calling agent. Validation failures
// list the offending fields so the agent can correct its arguments.
func toolError(err error) *mcp.CallToolResult {
	var (
		inErr  *flow.InputValidationError
		outErr *flow.OutputValidationError
	)
	switch {
	case errors.As(err, &inErr):
		return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %s", violations(inErr.Err)))
	case errors.As(err, &outErr):
		return mcp.NewToolResultError(fmt.Sprintf("The model returned an unusable answer: %s", violations(outErr.Err)))
	case errors.Is(err, context.DeadlineExceeded):
		return mcp.NewToolResultError("The model did not answer in time")
	}
	if stage, ok := flow.StageOf(err); ok {
		return mcp.NewToolResultError(fmt.Sprintf("Failed while %s: %v", stage, err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("Failed: %v", err))
}

func violations(err *schema.ValidationError) string {
	if err == nil {
		return "unknown"
	}
	parts := make([]string, 0, len(err.Violations))
	for _, v := range err.Violations {
		if v.Path == "" {
			parts = append(parts, v.Message)
			continue
		}
		parts = append(parts, v.Path+": "+v.Message)
	}
	return strings.Join(parts, "; ")
}

// MountHTTPHandlers serves the streamable HTTP transport at /mcp and the SSE
// transport at /mcp/sse and /mcp/message.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	mux.Handle("/mcp", server.NewStreamableHTTPServer(mcpServer, server.WithStateLess(true)))

	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))
	mux.Handle("/mcp/sse", withoutWriteDeadline(sseServer))
	mux.Handle("/mcp/message", sseServer)
}

// withoutWriteDeadline lifts the server write timeout for event streams.
func withoutWriteDeadline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
		next.ServeHTTP(w, r)
	})
}
