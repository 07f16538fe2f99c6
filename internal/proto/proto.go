// Package proto holds the conversation turn types shared by sessions, the
// function bridge and the reasoning service.
package proto

import (
	"fmt"
	"strings"
	"time"
)

// Role is the author of a conversation turn.
type Role string

// Roles.
const (
	RoleSystem         Role = "system"
	RoleUser           Role = "user"
	RoleAssistant      Role = "assistant"
	RoleFunctionResult Role = "function"
)

// WarningMarker prefixes replies that stand in for a failure.
const WarningMarker = "⚠️"

// Function is the capability selected by the reasoning service and its raw
// JSON arguments.
type Function struct {
	Name      string `json:"name"`
	Arguments []byte `json:"arguments"`
}

// ToolCall is a single function call requested by the reasoning service.
type ToolCall struct {
	ID       string   `json:"id"`
	Function Function `json:"function"`
	IsError  bool     `json:"isError,omitempty"`
}

// Message is a conversation turn. Turns are append-only; Seq orders them
// within one history.
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	Seq     int64     `json:"seq"`
	Time    time.Time `json:"time"`

	// ToolCall is set on function result turns and names the call the
	// content answers.
	ToolCall *ToolCall `json:"toolCall,omitempty"`
}

// Conversation is an ordered list of turns.
type Conversation []Message

func (cc Conversation) String() string {
	var sb strings.Builder
	for _, msg := range cc {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case RoleSystem:
			sb.WriteString("**System**: ")
		case RoleUser:
			sb.WriteString("**Prompt**: ")
		case RoleAssistant:
			sb.WriteString("**Assistant**: ")
		case RoleFunctionResult:
			if msg.ToolCall != nil {
				fmt.Fprintf(&sb, "> Ran: `%s`\n\n", msg.ToolCall.Function.Name)
			}
			sb.WriteString("**Result**: ")
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
