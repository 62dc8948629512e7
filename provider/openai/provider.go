package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyphalabs/quorum/pkg/jsonx"
	"github.com/hyphalabs/quorum/provider"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const DefaultModel = "gpt-4o-mini"

// Provider implements provider.Provider on top of the OpenAI chat
// completions API.
type Provider struct {
	client *openai.Client
	model  string
}

// New creates a provider for the given model name. Request options are
// passed through to the underlying client, so credentials and base URLs
// follow the SDK's usual configuration (including OPENAI_API_KEY).
func New(model string, options ...option.RequestOption) *Provider {
	if model == "" {
		model = DefaultModel
	}
	return &Provider{
		client: openai.NewClient(options...),
		model:  model,
	}
}

func (p *Provider) Complete(ctx context.Context, params provider.CompletionParams) (provider.Completion, error) {
	chatParams, err := p.buildRequest(&params)
	if err != nil {
		return provider.Completion{}, fmt.Errorf("failed to build request: %w", err)
	}

	chat, err := p.client.Chat.Completions.New(ctx, chatParams)
	if err != nil {
		return provider.Completion{}, err
	}
	if len(chat.Choices) == 0 {
		return provider.Completion{}, fmt.Errorf("no choices in completion response")
	}

	choice := chat.Choices[0].Message
	completion := provider.Completion{
		Content:    choice.Content,
		TokensUsed: int(chat.Usage.TotalTokens),
	}
	for _, tc := range choice.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, provider.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return completion, nil
}

func (p *Provider) buildRequest(params *provider.CompletionParams) (openai.ChatCompletionNewParams, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(params.Messages)+1)
	msgs = append(msgs, openai.SystemMessage(params.RenderInstructions()))
	for _, m := range params.Messages {
		switch m.Role {
		case provider.RoleAssistant:
			am := openai.ChatCompletionAssistantMessageParam{
				Role: openai.F(openai.ChatCompletionAssistantMessageParamRoleAssistant),
			}
			am.Content.Value = append(am.Content.Value, openai.TextPart(m.Content))
			msgs = append(msgs, am)
		default:
			msgs = append(msgs, openai.UserMessageParts(openai.TextPart(m.Content)))
		}
	}

	tools := make([]openai.ChatCompletionToolParam, len(params.Tools))
	for i, t := range params.Tools {
		jv, err := jsonx.ToDynamicJSON(t.ToSchema())
		if err != nil {
			return openai.ChatCompletionNewParams{}, fmt.Errorf("failed to render schema for tool %s: %w", t.Name, err)
		}

		def := openai.FunctionDefinitionParam{
			Name:       openai.String(t.Name),
			Parameters: openai.F(shared.FunctionParameters(jv)),
		}
		if strings.TrimSpace(t.Description) != "" {
			def.Description = openai.String(t.Description)
		}
		tools[i] = openai.ChatCompletionToolParam{
			Type:     openai.F(openai.ChatCompletionToolTypeFunction),
			Function: openai.F(def),
		}
	}

	oaiParams := openai.ChatCompletionNewParams{
		Messages:    openai.F(msgs),
		Model:       openai.F(p.model),
		N:           openai.Int(1),
		Temperature: openai.Float(params.Temperature),
	}
	if params.MaxOutputTokens > 0 {
		oaiParams.MaxTokens = openai.Int(int64(params.MaxOutputTokens))
	}
	if len(tools) > 0 {
		oaiParams.Tools = openai.F(tools)
		oaiParams.ParallelToolCalls = openai.Bool(true)
	}
	return oaiParams, nil
}
