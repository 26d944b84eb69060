package llm

import (
	"context"
	"fmt"
	"net/http"

	"menreiki/app/config"
	"menreiki/app/service/history"

	"github.com/sashabaranov/go-openai"
)

var _ Completer = (*OpenAI)(nil)

type OpenAI struct {
	client     *openai.Client
	model      string
	candidates int
}

func NewOpenAI(cfg config.OpenAI) *OpenAI {
	clientConfig := openai.DefaultConfig(cfg.Token)

	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout,
	}

	return &OpenAI{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		candidates: cfg.Candidates,
	}
}

func (c *OpenAI) Complete(ctx context.Context, messages []history.Turn) ([]string, error) {
	request := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	if c.candidates > 1 {
		request.N = c.candidates
	}

	for _, msg := range messages {
		request.Messages = append(request.Messages, openai.ChatCompletionMessage{
			Role:    openAIRole(msg.Role),
			Content: msg.Content,
		})
	}

	response, err := c.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	result := make([]string, 0, len(response.Choices))
	for _, choice := range response.Choices {
		result = append(result, choice.Message.Content)
	}

	return result, nil
}

func openAIRole(role history.Role) string {
	switch role {
	case history.RoleSystem:
		return openai.ChatMessageRoleSystem
	case history.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
