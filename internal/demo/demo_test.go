package demo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	for in, label := range map[string]string{
		"How do I renew my driver's license?":      LabelDriversLicense,
		"How do I renew my driver’s license?":      LabelDriversLicense,
		"There is a pothole on my street":          LabelPublicWorks,
		"When is my property tax bill due?":        LabelPropertyTax,
		"I lost my passport":                       LabelPassport,
		"Can you recommend a good pizza place?":    LabelOther,
		"I need a visa and my license is expiring": LabelPassport,
	} {
		t.Run(in, func(t *testing.T) {
			require.Equal(t, label, Classify(in))
		})
	}
}

func TestOffice(t *testing.T) {
	require.Equal(t, "Driver’s License Office: Mon–Fri 8:00–16:30, 456 Elm St, (555)123-4567", Office(LabelDriversLicense))
	require.Equal(t, generalOffice, Office("Other"))
	require.Equal(t, generalOffice, Office("Unknown"))
}

func TestTodoList(t *testing.T) {
	var l TodoList
	require.Equal(t, "📝 No tasks found.", l.List())
	require.Equal(t, "❌ Task text cannot be empty.", l.Add("  "))
	require.Equal(t, "✅ Added: Buy milk", l.Add("Buy milk"))
	require.Equal(t, "✅ Added: Call the DMV", l.Add("Call the DMV"))
	require.Equal(t, "📝 Tasks:\n• Buy milk\n• Call the DMV", l.List())
	require.Equal(t, "🗑️ Removed: Call the DMV", l.Remove("dmv"))
	require.Equal(t, "❌ Task not found: taxes", l.Remove("taxes"))
	require.Equal(t, "🗑️ Removed: Buy milk", l.Remove("Buy milk"))
	require.Equal(t, "📝 No tasks found.", l.List())
}

func TestNew(t *testing.T) {
	require.Equal(t, []string{Advice, Classifier, Holiday, OfficeInfo, Todo}, Names())

	_, err := New("nope")
	require.ErrorContains(t, err, "unknown built-in provider")
}

func TestProvidersOverMCP(t *testing.T) {
	ctx := context.Background()

	t.Run("classifier tool and prompt", func(t *testing.T) {
		cli := connect(t, Classifier)

		require.Equal(t, LabelDriversLicense, callText(t, cli, "classify", map[string]any{"text": "renew my driver's license"}))

		req := mcp.GetPromptRequest{}
		req.Params.Name = "classificationPrompt"
		req.Params.Arguments = map[string]string{"inquiry": "pothole"}
		res, err := cli.GetPrompt(ctx, req)
		require.NoError(t, err)
		require.Len(t, res.Messages, 1)
		text, ok := res.Messages[0].Content.(mcp.TextContent)
		require.True(t, ok)
		require.Contains(t, text.Text, "Inquiry: pothole")
		require.Contains(t, text.Text, LabelPassport)
	})

	t.Run("officeinfo", func(t *testing.T) {
		cli := connect(t, OfficeInfo)
		require.Equal(t, Office(LabelPassport), callText(t, cli, "officeInfo", map[string]any{"label": LabelPassport}))
		require.Equal(t, "Echo: hi", callText(t, cli, "echo", map[string]any{"message": "hi"}))
	})

	t.Run("todo state is per instance", func(t *testing.T) {
		a := connect(t, Todo)
		b := connect(t, Todo)
		require.Equal(t, "✅ Added: file taxes", callText(t, a, "addTask", map[string]any{"task": "file taxes"}))
		require.Equal(t, "📝 Tasks:\n• file taxes", callText(t, a, "listTasks", nil))
		require.Equal(t, "📝 No tasks found.", callText(t, b, "listTasks", nil))
	})

	t.Run("advice", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/advice", r.URL.Path)
			fmt.Fprint(w, `{"slip": {"id": 1, "advice": "Drink water."}}`)
		}))
		t.Cleanup(srv.Close)

		cli := connect(t, Advice, WithAdviceURL(srv.URL), WithHTTPClient(srv.Client()))
		require.Equal(t, "🗣️ Advice: Drink water.", callText(t, cli, "getAdvice", nil))
	})

	t.Run("holiday", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/v3/PublicHolidays/2025/US", r.URL.Path)
			fmt.Fprint(w, `[{"date": "2025-07-04", "localName": "Independence Day", "name": "Independence Day"}]`)
		}))
		t.Cleanup(srv.Close)

		cli := connect(t, Holiday, WithHolidayURL(srv.URL), WithHTTPClient(srv.Client()))
		require.Equal(t, "🎉 2025-07-04 is Independence Day (Independence Day).", callText(t, cli, "isPublicHoliday", map[string]any{"date": "2025-07-04"}))
		require.Equal(t, "ℹ️ 2025-07-05 is not a federal holiday.", callText(t, cli, "isPublicHoliday", map[string]any{"date": "2025-07-05"}))
		require.Equal(t, "❌ Invalid date (yyyy-MM-dd).", callText(t, cli, "isPublicHoliday", map[string]any{"date": "07/04/2025"}))
	})

	t.Run("upstream failure is a tool error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		}))
		t.Cleanup(srv.Close)

		cli := connect(t, Advice, WithAdviceURL(srv.URL))
		req := mcp.CallToolRequest{}
		req.Params.Name = "getAdvice"
		res, err := cli.CallTool(ctx, req)
		require.NoError(t, err)
		require.True(t, res.IsError)
	})
}

func connect(t *testing.T, name string, opts ...Option) *client.Client {
	t.Helper()
	s, err := New(name, opts...)
	require.NoError(t, err)
	return inProcess(t, s)
}

func inProcess(t *testing.T, s *server.MCPServer) *client.Client {
	t.Helper()
	cli, err := client.NewInProcessClient(s)
	require.NoError(t, err)
	require.NoError(t, cli.Start(context.Background()))
	_, err = cli.Initialize(context.Background(), mcp.InitializeRequest{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	return cli
}

func callText(t *testing.T, cli *client.Client, name string, args map[string]any) string {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := cli.CallTool(context.Background(), req)
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}
