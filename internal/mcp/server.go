// Package mcp exposes read-only monitoring tools over the Model Context
// Protocol. The tools observe execution state; every mutation goes through
// the HTTP surface and its auth.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"taskforge/backend/internal/repository"
	"taskforge/backend/internal/services"
)

type Server struct {
	mcpServer *server.MCPServer
	repo      repository.Store
}

func NewServer(repo repository.Store) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"TaskForge Monitor",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		repo: repo,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"execution_status",
			mcp.WithDescription("Inspect the current state of an execution"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("The ID of the execution")),
		),
		s.handleExecutionStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"milestone_progress",
			mcp.WithDescription("Report milestone completion for an execution"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("The ID of the execution")),
		),
		s.handleMilestoneProgress,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_open_work_units",
			mcp.WithDescription("List work units currently open for claims"),
		),
		s.handleListOpenWorkUnits,
	)
}

func stringArg(request mcp.CallToolRequest, name string) (string, bool) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return "", false
	}
	value, ok := args[name].(string)
	return value, ok && value != ""
}

func (s *Server) handleExecutionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := stringArg(request, "execution_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}

	exec, err := s.repo.GetExecution(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load execution: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(exec)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleMilestoneProgress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := stringArg(request, "execution_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}

	milestones, err := s.repo.ListMilestones(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load milestones: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(services.Progress(milestones))
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleListOpenWorkUnits(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	units, err := s.repo.ListOpenWorkUnits(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list work units: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(units)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
