package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"smartchat/internal/config"
	"smartchat/internal/models"
)

// Responder produces the assistant's reply to a user message given the prior
// conversation. Implementations must be safe for concurrent use.
type Responder interface {
	Reply(ctx context.Context, history []*models.Message, text string) (string, error)
}

const systemPrompt = `You are 'Maddy', an AI assistant for supply chain analysis. Your primary focus is on:
1. Supply chain analysis and optimization
2. Root cause analysis (RCA)
3. Predictive quality analysis (PQA)
4. Data summarization and forecasting
5. Machine learning insights

Always maintain a professional tone while being helpful and precise in your responses.
Focus on providing actionable insights and clear explanations.`

// OpenAIResponder calls an OpenAI-compatible chat completion endpoint.
type OpenAIResponder struct {
	client *openai.Client
	model  string
}

// NewOpenAIResponder builds a responder from config. BaseURL may point at any
// OpenAI-compatible server.
func NewOpenAIResponder(cfg config.AIConfig) (*OpenAIResponder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ai api key required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIResponder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

func (r *OpenAIResponder) Reply(ctx context.Context, history []*models.Message, text string) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Sender == models.SenderAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    r.model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// LocalResponder answers without any upstream dependency. It backs tests and
// keyless development setups.
type LocalResponder struct{}

func (LocalResponder) Reply(_ context.Context, _ []*models.Message, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty message")
	}
	return fmt.Sprintf("I received your query: %q. Connect an AI provider to get full analysis.", text), nil
}

// NewResponder picks the OpenAI responder when an API key is configured and
// the local one otherwise.
func NewResponder(cfg config.AIConfig) (Responder, error) {
	if cfg.APIKey == "" {
		return LocalResponder{}, nil
	}
	return NewOpenAIResponder(cfg)
}
