package demo

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type adviceSlip struct {
	Slip struct {
		ID     int    `json:"id"`
		Advice string `json:"advice"`
	} `json:"slip"`
}

func newAdvice(o options) *server.MCPServer {
	s := server.NewMCPServer("advice", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("getAdvice", mcp.WithDescription("Get a random piece of advice")),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var slip adviceSlip
			if err := getJSON(ctx, o.httpClient, strings.TrimSuffix(o.adviceURL, "/")+"/advice", &slip); err != nil {
				return mcp.NewToolResultErrorf("could not fetch advice: %v", err), nil
			}
			return mcp.NewToolResultText("🗣️ Advice: " + slip.Slip.Advice), nil
		},
	)
	return s
}
