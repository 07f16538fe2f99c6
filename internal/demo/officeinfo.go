package demo

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const generalOffice = "General Information Center: Mon–Fri 9:00–17:00, 123 Main St Gnd, (555)000-0000"

var offices = map[string]string{
	LabelDriversLicense: "Driver’s License Office: Mon–Fri 8:00–16:30, 456 Elm St, (555)123-4567",
	LabelPublicWorks:    "Public Works Dept: Mon–Fri 7:00–15:00, 789 Oak Ave, (555)234-5678",
	LabelPropertyTax:    "Property Tax Office: Mon–Fri 9:00–17:00, 101 Pine Blvd Rm 105, (555)345-6789",
	LabelPassport:       "Passport Services: Mon–Fri 8:00–17:00, 123 Main St Rm 101, (555)678-9012",
}

// Office returns the office details for a department label. Unknown labels
// get the general information center.
func Office(label string) string {
	if details, ok := offices[label]; ok {
		return details
	}
	return generalOffice
}

func newOfficeInfo(options) *server.MCPServer {
	s := server.NewMCPServer("officeinfo", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("officeInfo",
			mcp.WithDescription("Opening hours, address and phone number of the office handling a department label"),
			mcp.WithString("label", mcp.Required(), mcp.Description("Department label returned by the classifier")),
		),
		func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			label, err := req.RequireString("label")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(Office(label)), nil
		},
	)

	s.AddTool(
		mcp.NewTool("echo",
			mcp.WithDescription("Echo a message back"),
			mcp.WithString("message", mcp.Required()),
		),
		func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			msg, err := req.RequireString("message")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText("Echo: " + msg), nil
		},
	)
	return s
}
