package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"

	"github.com/momento-app/momento-graph/pkg/graph"
	"github.com/momento-app/momento-graph/util"
)

// RegisterMemoryTools exposes the ingestion service over MCP. The tools are
// thin shells: all extraction and graph logic stays in the service.
func RegisterMemoryTools(s *server.MCPServer, service *graph.IngestionService) {
	ingestTool := mcp.NewTool("memory_ingest",
		mcp.WithDescription("Store a free-text memory entry. Entities and relations are extracted asynchronously and added to the memory graph. Returns the entry ID and its processing status."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The memory text to ingest"),
		),
		mcp.WithString("format",
			mcp.Description("Content format: text (default), markdown, or html"),
		),
	)
	s.AddTool(ingestTool, util.ErrorGuard(makeIngestHandler(service)))

	searchTool := mcp.NewTool("memory_search",
		mcp.WithDescription("Search entities in the memory graph by name or summary substring. Returns matching entities with their kinds and summaries."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default 20)"),
		),
	)
	s.AddTool(searchTool, util.ErrorGuard(makeSearchHandler(service)))

	getEntityTool := mcp.NewTool("memory_get_entity",
		mcp.WithDescription("Fetch one entity from the memory graph by ID, including every relation it participates in."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Entity ID"),
		),
	)
	s.AddTool(getEntityTool, util.ErrorGuard(makeGetEntityHandler(service)))
}

func makeIngestHandler(service *graph.IngestionService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.Params.Arguments
		text, ok := args["text"].(string)
		if !ok {
			return mcp.NewToolResultError("text must be a string"), nil
		}
		format, _ := args["format"].(string)

		entry, err := service.IngestEntry(ctx, text, graph.ContentFormat(format))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("ingest failed: %v", err)), nil
		}
		return jsonResult(map[string]any{"id": entry.ID, "status": entry.Status})
	}
}

func makeSearchHandler(service *graph.IngestionService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.Params.Arguments
		query, ok := args["query"].(string)
		if !ok {
			return mcp.NewToolResultError("query must be a string"), nil
		}
		limit := 20
		if raw, ok := args["limit"].(float64); ok && raw > 0 {
			limit = int(raw)
		}

		entities, err := service.SearchText(ctx, query, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return jsonResult(map[string]any{"entities": entities})
	}
}

func makeGetEntityHandler(service *graph.IngestionService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.Params.Arguments
		id, ok := args["id"].(string)
		if !ok {
			return mcp.NewToolResultError("id must be a string"), nil
		}

		entity, err := service.GetEntity(ctx, id)
		if errors.Is(err, graph.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("entity %s not found", id)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
		}
		relations, err := service.ListRelations(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("relation lookup failed: %v", err)), nil
		}
		return jsonResult(map[string]any{"entity": entity, "relations": relations})
	}
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
