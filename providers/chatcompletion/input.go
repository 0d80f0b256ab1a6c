package chatcompletion

import (
	"github.com/inspirepan/cadagent"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

// BuildParams converts a completion request to OpenAI chat completion params.
// The model is left for the caller to set.
func BuildParams(req cadagent.CompletionRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{}

	for _, msg := range req.Messages {
		switch m := msg.(type) {
		case cadagent.SystemMessage:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Text))
		case cadagent.UserMessage:
			params.Messages = append(params.Messages, convertUserMessage(m))
		case cadagent.AssistantMessage:
			params.Messages = append(params.Messages, convertAssistantMessage(m))
		case cadagent.ToolResultMessage:
			params.Messages = append(params.Messages, openai.ToolMessage(m.Content(), m.CallID))
		}
	}

	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, convertToolSpec(tool))
	}

	// tool_choice and parallel_tool_calls are only valid alongside tools.
	if len(params.Tools) > 0 {
		params.ToolChoice = convertToolChoice(req.ToolChoice)
		params.ParallelToolCalls = openai.Bool(req.ParallelToolCalls)
	}

	return params
}

func convertToolChoice(choice cadagent.ToolChoice) openai.ChatCompletionToolChoiceOptionUnionParam {
	if name, ok := choice.Forced(); ok {
		return openai.ChatCompletionToolChoiceOptionUnionParam{
			OfFunctionToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: name},
			},
		}
	}
	if choice == "" {
		choice = cadagent.ToolChoiceAuto
	}
	return openai.ChatCompletionToolChoiceOptionUnionParam{
		OfAuto: openai.String(string(choice)),
	}
}

func convertUserMessage(m cadagent.UserMessage) openai.ChatCompletionMessageParamUnion {
	var parts []openai.ChatCompletionContentPartUnionParam

	for _, part := range m.Parts {
		switch p := part.(type) {
		case cadagent.TextPart:
			parts = append(parts, openai.TextContentPart(p.Text))
		case cadagent.ImagePart:
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL:    p.DataURL(),
				Detail: "high",
			}))
		}
	}

	if len(parts) == 0 {
		parts = append(parts, openai.TextContentPart(""))
	}

	return openai.UserMessage(parts)
}

func convertAssistantMessage(m cadagent.AssistantMessage) openai.ChatCompletionMessageParamUnion {
	msg := openai.ChatCompletionAssistantMessageParam{}

	if text := m.Text(); text != "" {
		msg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(text),
		}
	}

	for _, call := range m.ToolCalls() {
		args := string(call.ArgsJSON)
		if args == "" {
			args = "{}"
		}
		msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: call.CallID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.Name,
					Arguments: args,
				},
			},
		})
	}

	return openai.ChatCompletionMessageParamUnion{OfAssistant: &msg}
}

func convertToolSpec(spec cadagent.ToolSpec) openai.ChatCompletionToolUnionParam {
	return openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
		Name:        spec.Name,
		Description: openai.String(spec.Description),
		Parameters:  shared.FunctionParameters(spec.Parameters),
	})
}
