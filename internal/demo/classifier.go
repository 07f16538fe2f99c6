package demo

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Department labels.
const (
	LabelDriversLicense = "Driver's License"
	LabelPublicWorks    = "Public Works"
	LabelPropertyTax    = "Property Tax"
	LabelPassport       = "Passport Services"
	LabelOther          = "Other"
)

// Labels lists the department labels in classification order.
var Labels = []string{LabelDriversLicense, LabelPublicWorks, LabelPropertyTax, LabelPassport, LabelOther}

var keywords = []struct {
	label string
	words []string
}{
	{LabelPassport, []string{"passport", "visa"}},
	{LabelDriversLicense, []string{"driver", "license", "licence", "dmv", "learner's permit", "road test"}},
	{LabelPropertyTax, []string{"property tax", "tax bill", "assessment", "appraisal", "tax"}},
	{LabelPublicWorks, []string{"pothole", "street", "road", "sidewalk", "trash", "garbage", "sewer", "water main", "streetlight"}},
}

// Classify maps an inquiry to a department label by keyword.
func Classify(text string) string {
	text = strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	for _, k := range keywords {
		for _, w := range k.words {
			if strings.Contains(text, w) {
				return k.label
			}
		}
	}
	return LabelOther
}

// ClassificationPrompt is the instruction a model follows to label an
// inquiry itself.
func ClassificationPrompt(inquiry string) string {
	return fmt.Sprintf(`Classify the following citizen inquiry into exactly one of these categories:
- %s

Reply with the category name only, no punctuation or explanation.

Inquiry: %s`, strings.Join(Labels, "\n- "), inquiry)
}

func newClassifier(options) *server.MCPServer {
	s := server.NewMCPServer("classifier", version,
		server.WithToolCapabilities(false),
		server.WithPromptCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Classifies citizen inquiries into department labels."),
	)

	s.AddTool(
		mcp.NewTool("classify",
			mcp.WithDescription("Classify a citizen inquiry into one department label: "+strings.Join(Labels, ", ")),
			mcp.WithString("text", mcp.Required(), mcp.Description("The citizen's inquiry")),
		),
		func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			text, err := req.RequireString("text")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(Classify(text)), nil
		},
	)

	s.AddPrompt(
		mcp.NewPrompt("classificationPrompt",
			mcp.WithPromptDescription("Instruction asking a model to label a citizen inquiry"),
			mcp.WithArgument("inquiry", mcp.RequiredArgument(), mcp.ArgumentDescription("The citizen's inquiry")),
		),
		func(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			inquiry := req.Params.Arguments["inquiry"]
			if strings.TrimSpace(inquiry) == "" {
				return nil, fmt.Errorf("inquiry is required")
			}
			return mcp.NewGetPromptResult(
				"Department classification",
				[]mcp.PromptMessage{
					mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(ClassificationPrompt(inquiry))),
				},
			), nil
		},
	)
	return s
}
