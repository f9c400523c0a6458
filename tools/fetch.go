package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/momento-app/momento-graph/pkg/graph"
	"github.com/momento-app/momento-graph/services"
	"github.com/momento-app/momento-graph/util"
)

// Pages can be large; cap what gets pulled into a single entry.
const maxFetchBytes = 2 << 20

// RegisterFetchTool exposes URL ingestion: fetch a page and feed its content
// through the same pipeline as hand-written entries.
func RegisterFetchTool(s *server.MCPServer, service *graph.IngestionService) {
	tool := mcp.NewTool("memory_ingest_url",
		mcp.WithDescription("Fetches content from an HTTP/HTTPS URL and stores it as a memory entry. HTML is converted to markdown before extraction. Returns the entry ID and its processing status."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The complete HTTP/HTTPS URL to fetch content from (e.g., https://example.com)"),
		),
	)

	s.AddTool(tool, util.ErrorGuard(makeFetchHandler(service)))
}

func makeFetchHandler(service *graph.IngestionService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, ok := request.Params.Arguments["url"].(string)
		if !ok {
			return mcp.NewToolResultError("url must be a string"), nil
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid URL: %s", err)), nil
		}
		resp, err := services.DefaultHttpClient().Do(req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to fetch URL: %s", err)), nil
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return mcp.NewToolResultError(fmt.Sprintf("fetch returned status %d", resp.StatusCode)), nil
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response body: %s", err)), nil
		}

		entry, err := service.IngestEntry(ctx, string(body), graph.FormatHTML)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("ingest failed: %v", err)), nil
		}
		return jsonResult(map[string]any{"id": entry.ID, "status": entry.Status, "source_url": url})
	}
}
