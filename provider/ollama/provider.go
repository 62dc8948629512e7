// Package ollama implements the provider interface against a local Ollama
// server, for running the coordinator fully offline.
package ollama

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/hyphalabs/quorum/provider"
	ollama "github.com/ollama/ollama/api"
)

const DefaultModel = "qwen2.5:3b"

// Provider implements provider.Provider using the Ollama chat API. Function
// calling support varies by model; tool calls reported by the server are
// passed through, but tool schemas are not advertised since most local
// models ignore them.
type Provider struct {
	client *ollama.Client
	model  string
}

// New creates a provider for the given model, connecting to the server
// named by OLLAMA_HOST (default localhost:11434).
func New(model string) (*Provider, error) {
	if model == "" {
		model = DefaultModel
	}
	client, err := ollama.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("could not create ollama client: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

func (p *Provider) Complete(ctx context.Context, params provider.CompletionParams) (provider.Completion, error) {
	msgs := make([]ollama.Message, 0, len(params.Messages)+1)
	msgs = append(msgs, ollama.Message{Role: "system", Content: params.RenderInstructions()})
	for _, m := range params.Messages {
		msgs = append(msgs, ollama.Message{Role: string(m.Role), Content: m.Content})
	}

	if len(params.Tools) > 0 {
		slog.Debug("ollama provider does not advertise tool schemas",
			slog.Int("tools", len(params.Tools)),
			slog.String("model", p.model))
	}

	stream := false
	req := &ollama.ChatRequest{
		Model:    p.model,
		Messages: msgs,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": params.Temperature,
		},
	}
	if params.MaxOutputTokens > 0 {
		req.Options["num_predict"] = params.MaxOutputTokens
	}

	var completion provider.Completion
	err := p.client.Chat(ctx, req, func(res ollama.ChatResponse) error {
		completion.Content += res.Message.Content
		completion.TokensUsed += res.Metrics.PromptEvalCount + res.Metrics.EvalCount
		for _, tc := range res.Message.ToolCalls {
			args, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				return err
			}
			completion.ToolCalls = append(completion.ToolCalls, provider.ToolCall{
				Name:      tc.Function.Name,
				Arguments: string(args),
			})
		}
		return nil
	})
	if err != nil {
		return provider.Completion{}, fmt.Errorf("ollama chat failed: %w", err)
	}
	return completion, nil
}
