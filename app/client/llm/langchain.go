package llm

import (
	"context"
	"fmt"
	"net/http"

	"menreiki/app/config"
	"menreiki/app/service/history"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

var _ Completer = (*LangChain)(nil)

// LangChain talks to any OpenAI-compatible endpoint through langchaingo.
type LangChain struct {
	model      llms.Model
	candidates int
}

func NewLangChain(cfg config.OpenAI) (*LangChain, error) {
	opts := []lcopenai.Option{
		lcopenai.WithToken(cfg.Token),
		lcopenai.WithModel(cfg.Model),
		lcopenai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		lcopenai.WithCallback(LogCallbackHandler{}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(cfg.BaseURL))
	}

	model, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create langchain client: %w", err)
	}

	return &LangChain{
		model:      model,
		candidates: cfg.Candidates,
	}, nil
}

func (c *LangChain) Complete(ctx context.Context, messages []history.Turn) ([]string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		content = append(content, llms.TextParts(langChainRole(msg.Role), msg.Content))
	}

	var callOpts []llms.CallOption
	if c.candidates > 1 {
		callOpts = append(callOpts, llms.WithN(c.candidates))
	}

	response, err := c.model.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	result := make([]string, 0, len(response.Choices))
	for _, choice := range response.Choices {
		if choice == nil {
			result = append(result, "")
			continue
		}

		result = append(result, choice.Content)
	}

	return result, nil
}

func langChainRole(role history.Role) llms.ChatMessageType {
	switch role {
	case history.RoleSystem:
		return llms.ChatMessageTypeSystem
	case history.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
