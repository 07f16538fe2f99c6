package proto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConversationString(t *testing.T) {
	convo := Conversation{
		{Role: RoleSystem, Content: "route"},
		{Role: RoleUser, Content: "renew license"},
		{Role: RoleAssistant, Content: ""},
		{
			Role:     RoleFunctionResult,
			Content:  "Driver's License",
			ToolCall: &ToolCall{ID: "1", Function: Function{Name: "classify"}},
		},
		{Role: RoleAssistant, Content: "Go to 456 Elm St"},
	}
	require.Equal(t,
		"**System**: route\n\n"+
			"**Prompt**: renew license\n\n"+
			"> Ran: `classify`\n\n**Result**: Driver's License\n\n"+
			"**Assistant**: Go to 456 Elm St\n\n",
		convo.String(),
	)
}
