package llm

import (
	"context"
	"fmt"

	"menreiki/app/config"
	"menreiki/app/service/history"

	"github.com/samber/do"
)

const (
	DriverOpenAI    = "openai"
	DriverLangChain = "langchain"
)

// Completer turns an ordered message list into candidate reply texts.
// A candidate without content is reported as an empty string.
type Completer interface {
	Complete(ctx context.Context, messages []history.Turn) ([]string, error)
}

func New(di *do.Injector) (Completer, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewFromConfig(cfg.OpenAI)
}

func NewFromConfig(cfg config.OpenAI) (Completer, error) {
	switch cfg.Driver {
	case DriverOpenAI, "":
		return NewOpenAI(cfg), nil
	case DriverLangChain:
		return NewLangChain(cfg)
	default:
		return nil, fmt.Errorf("unknown completion driver %q", cfg.Driver)
	}
}
