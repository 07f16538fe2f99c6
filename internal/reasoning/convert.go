package reasoning

import (
	"errors"

	"charm.land/fantasy"

	"github.com/dotcommander/capmux/internal/capability"
	"github.com/dotcommander/capmux/internal/proto"
)

// toFantasyPrompt converts the history. Function result turns carry the
// call they answer, so the assistant call is rebuilt in front of each one.
func toFantasyPrompt(input []proto.Message) fantasy.Prompt {
	messages := make([]fantasy.Message, 0, len(input))

	for _, msg := range input {
		switch msg.Role {
		case proto.RoleSystem:
			messages = append(messages, fantasy.Message{
				Role: fantasy.MessageRoleSystem,
				Content: []fantasy.MessagePart{
					fantasy.TextPart{Text: msg.Content},
				},
			})
		case proto.RoleUser:
			messages = append(messages, fantasy.Message{
				Role: fantasy.MessageRoleUser,
				Content: []fantasy.MessagePart{
					fantasy.TextPart{Text: msg.Content},
				},
			})
		case proto.RoleAssistant:
			if msg.Content == "" {
				continue
			}
			messages = append(messages, fantasy.Message{
				Role: fantasy.MessageRoleAssistant,
				Content: []fantasy.MessagePart{
					fantasy.TextPart{Text: msg.Content},
				},
			})
		case proto.RoleFunctionResult:
			call := msg.ToolCall
			if call == nil {
				continue
			}
			args := string(call.Function.Arguments)
			if args == "" {
				args = "{}"
			}
			messages = append(messages, fantasy.Message{
				Role: fantasy.MessageRoleAssistant,
				Content: []fantasy.MessagePart{
					fantasy.ToolCallPart{
						ToolCallID:       call.ID,
						ToolName:         call.Function.Name,
						Input:            args,
						ProviderExecuted: false,
					},
				},
			})

			var output fantasy.ToolResultOutputContent
			if call.IsError {
				output = fantasy.ToolResultOutputContentError{Error: errors.New(msg.Content)}
			} else {
				output = fantasy.ToolResultOutputContentText{Text: msg.Content}
			}
			messages = append(messages, fantasy.Message{
				Role: fantasy.MessageRoleTool,
				Content: []fantasy.MessagePart{
					fantasy.ToolResultPart{
						ToolCallID: call.ID,
						Output:     output,
					},
				},
			})
		}
	}

	return messages
}

func toFantasyTools(descs []capability.Descriptor) []fantasy.Tool {
	tools := make([]fantasy.Tool, 0, len(descs))
	for _, d := range descs {
		tools = append(tools, fantasy.FunctionTool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema(),
		})
	}
	return tools
}

func toolChoiceFor(descs []capability.Descriptor) *fantasy.ToolChoice {
	if len(descs) == 0 {
		return nil
	}
	choice := fantasy.ToolChoiceAuto
	return &choice
}

func toolCall(part fantasy.StreamPart) proto.ToolCall {
	return proto.ToolCall{
		ID: part.ID,
		Function: proto.Function{
			Name:      part.ToolCallName,
			Arguments: []byte(part.ToolCallInput),
		},
	}
}
