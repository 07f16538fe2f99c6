package demo

import (
	"context"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// TodoList is an in-memory task list owned by one provider instance.
type TodoList struct {
	mu    sync.Mutex
	tasks []string
}

// Add appends a task.
func (l *TodoList) Add(task string) string {
	task = strings.TrimSpace(task)
	if task == "" {
		return "❌ Task text cannot be empty."
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks = append(l.tasks, task)
	return "✅ Added: " + task
}

// List renders all tasks.
func (l *TodoList) List() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tasks) == 0 {
		return "📝 No tasks found."
	}
	var sb strings.Builder
	sb.WriteString("📝 Tasks:")
	for _, task := range l.tasks {
		sb.WriteString("\n• ")
		sb.WriteString(task)
	}
	return sb.String()
}

// Remove deletes the first task equal to task, falling back to the first
// task containing it, case-insensitively.
func (l *TodoList) Remove(task string) string {
	task = strings.TrimSpace(task)
	if task == "" {
		return "❌ Task text cannot be empty."
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i, t := range l.tasks {
		if t == task {
			idx = i
			break
		}
	}
	if idx < 0 {
		needle := strings.ToLower(task)
		for i, t := range l.tasks {
			if strings.Contains(strings.ToLower(t), needle) {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return "❌ Task not found: " + task
	}
	removed := l.tasks[idx]
	l.tasks = append(l.tasks[:idx], l.tasks[idx+1:]...)
	return "🗑️ Removed: " + removed
}

func newTodo(options) *server.MCPServer {
	s := server.NewMCPServer("todo", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	list := &TodoList{}

	s.AddTool(
		mcp.NewTool("addTask",
			mcp.WithDescription("Add a task to the to-do list"),
			mcp.WithString("task", mcp.Required(), mcp.Description("Task text")),
		),
		func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(list.Add(req.GetString("task", ""))), nil
		},
	)
	s.AddTool(
		mcp.NewTool("listTasks", mcp.WithDescription("List all tasks on the to-do list")),
		func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(list.List()), nil
		},
	)
	s.AddTool(
		mcp.NewTool("removeTask",
			mcp.WithDescription("Remove a task by its text or a fragment of it"),
			mcp.WithString("task", mcp.Required(), mcp.Description("Task text or fragment")),
		),
		func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(list.Remove(req.GetString("task", ""))), nil
		},
	)
	return s
}
