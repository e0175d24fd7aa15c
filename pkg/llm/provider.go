package llm

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/mistral"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultOllamaURL = "http://localhost:11434"

// newModel builds the chat model for the configured provider.
func newModel(config ChatConfig) (llms.Model, error) {
	logger := log.WithFields(logrus.Fields{
		"provider": config.Provider,
		"model":    config.Model,
	})
	logger.Debug("Creating chat model")

	var model llms.Model
	var err error

	switch strings.ToLower(config.Provider) {
	case "anthropic":
		model, err = createAnthropicClient(config)
	case "openai":
		model, err = createOpenAIClient(config)
	case "mistral":
		model, err = createMistralClient(config)
	case "ollama":
		model, err = createOllamaClient(config)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}

	if err != nil {
		logger.WithError(err).Error("Failed to create chat model")
		return nil, fmt.Errorf("error creating %s client: %w", config.Provider, err)
	}
	return model, nil
}

func createAnthropicClient(config ChatConfig) (llms.Model, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is not set")
	}
	opts := []anthropic.Option{
		anthropic.WithModel(config.Model),
		anthropic.WithToken(config.APIKey),
		anthropic.WithHTTPClient(httpClient(config)),
	}
	if config.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(config.BaseURL))
	}
	return anthropic.New(opts...)
}

func createOpenAIClient(config ChatConfig) (llms.Model, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is not set")
	}
	opts := []openai.Option{
		openai.WithModel(config.Model),
		openai.WithToken(config.APIKey),
		openai.WithHTTPClient(httpClient(config)),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}
	return openai.New(opts...)
}

func createMistralClient(config ChatConfig) (llms.Model, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Mistral API key is not set")
	}
	opts := []mistral.Option{
		mistral.WithModel(config.Model),
		mistral.WithAPIKey(config.APIKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, mistral.WithEndpoint(config.BaseURL))
	}
	return mistral.New(opts...)
}

func createOllamaClient(config ChatConfig) (llms.Model, error) {
	host := config.BaseURL
	if host == "" {
		host = defaultOllamaURL
	}
	return ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(host),
		ollama.WithHTTPClient(httpClient(config)),
	)
}

func httpClient(config ChatConfig) *http.Client {
	if config.HTTPClient != nil {
		return config.HTTPClient
	}
	return http.DefaultClient
}
