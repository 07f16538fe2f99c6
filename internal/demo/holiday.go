package demo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type publicHoliday struct {
	Date      string `json:"date"`
	LocalName string `json:"localName"`
	Name      string `json:"name"`
}

func newHoliday(o options) *server.MCPServer {
	s := server.NewMCPServer("holiday", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("isPublicHoliday",
			mcp.WithDescription("Check whether a date is a federal public holiday"),
			mcp.WithString("date", mcp.Required(), mcp.Description("Date in yyyy-MM-dd format")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			raw := strings.TrimSpace(req.GetString("date", ""))
			day, err := time.Parse(time.DateOnly, raw)
			if err != nil {
				return mcp.NewToolResultText("❌ Invalid date (yyyy-MM-dd)."), nil
			}

			url := fmt.Sprintf("%s/api/v3/PublicHolidays/%d/%s", strings.TrimSuffix(o.holidayURL, "/"), day.Year(), o.country)
			var holidays []publicHoliday
			if err := getJSON(ctx, o.httpClient, url, &holidays); err != nil {
				return mcp.NewToolResultErrorf("could not fetch holidays: %v", err), nil
			}

			date := day.Format(time.DateOnly)
			for _, h := range holidays {
				if h.Date == date {
					return mcp.NewToolResultText(fmt.Sprintf("🎉 %s is %s (%s).", date, h.LocalName, h.Name)), nil
				}
			}
			return mcp.NewToolResultText(fmt.Sprintf("ℹ️ %s is not a federal holiday.", date)), nil
		},
	)
	return s
}
