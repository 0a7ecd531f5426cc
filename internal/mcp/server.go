package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"approval-flow/backend/internal/services"
	"approval-flow/backend/pkg/models"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type Server struct {
	mcpServer *server.MCPServer
	flows     *services.FlowService
}

func NewServer(flows *services.FlowService) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Approval Flow",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		flows: flows,
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
			"list_flows",
			mcp.WithDescription("List approval flow instances"),
			mcp.WithString("filter", mcp.Description("Filter: all, in_progress or finalized")),
		),
		s.handleListFlows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"flow_detail",
			mcp.WithDescription("Get one flow with its stages, current stage and movement history"),
			mcp.WithString("instance_id", mcp.Required(), mcp.Description("The ID of the flow instance")),
		),
		s.handleFlowDetail,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"instantiate_flow",
			mcp.WithDescription("Clone a template into a running approval flow"),
			mcp.WithString("template_id", mcp.Required(), mcp.Description("The ID of the template to clone")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Name for the new flow")),
		),
		s.handleInstantiateFlow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"transition_flow",
			mcp.WithDescription("Advance or retreat one stage of a flow"),
			mcp.WithString("instance_id", mcp.Required(), mcp.Description("The ID of the flow instance")),
			mcp.WithString("stage_id", mcp.Required(), mcp.Description("The ID of the stage to act on")),
			mcp.WithString("action", mcp.Required(), mcp.Description("advance or retreat")),
			mcp.WithString("comment", mcp.Description("Free-text comment recorded on the movement")),
		),
		s.handleTransitionFlow,
	)
}

func (s *Server) handleListFlows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	filter, _ := args["filter"].(string)

	instances, err := s.flows.List(ctx, models.InstanceFilter(filter))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list flows: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(instances)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleFlowDetail(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	instanceID, ok := args["instance_id"].(string)
	if !ok || instanceID == "" {
		return mcp.NewToolResultError("Missing required parameter: instance_id"), nil
	}

	detail, err := s.flows.GetDetail(ctx, instanceID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load flow: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(detail)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleInstantiateFlow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	templateID, ok := args["template_id"].(string)
	if !ok || templateID == "" {
		return mcp.NewToolResultError("Missing required parameter: template_id"), nil
	}
	name, ok := args["name"].(string)
	if !ok || name == "" {
		return mcp.NewToolResultError("Missing required parameter: name"), nil
	}

	instance, err := s.flows.Instantiate(ctx, templateID, name, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to instantiate: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(instance)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleTransitionFlow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	instanceID, ok := args["instance_id"].(string)
	if !ok || instanceID == "" {
		return mcp.NewToolResultError("Missing required parameter: instance_id"), nil
	}
	stageID, ok := args["stage_id"].(string)
	if !ok || stageID == "" {
		return mcp.NewToolResultError("Missing required parameter: stage_id"), nil
	}
	action, ok := args["action"].(string)
	if !ok || action == "" {
		return mcp.NewToolResultError("Missing required parameter: action"), nil
	}
	comment, _ := args["comment"].(string)

	result, err := s.flows.Transition(ctx, instanceID, stageID, action, nil, comment)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to transition: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
