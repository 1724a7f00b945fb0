package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"github.com/schoolfeedback/feedbackd/internal/config"
	"github.com/schoolfeedback/feedbackd/pkg/logger"
	"google.golang.org/genai"
)

// Classifier sends one feedback text to a language model together with
// ClassificationPrompt and returns the raw text of the first completion.
type Classifier interface {
	Classify(ctx context.Context, feedback string) (string, error)
	Provider() string
}

// NewClassifier validates cfg and builds the classifier for cfg.Provider.
// A missing API key is reported as *config.MissingSecretError.
func NewClassifier(cfg *config.LLMConfig) (Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	model := cfg.ResolvedModel()
	switch cfg.Provider {
	case "azure":
		// Azure requires BaseURL format: https://{resource-name}.openai.azure.com
		// and uses the model field as deployment name
		azureCfg := openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		return &openAIClassifier{
			provider:  "azure",
			client:    openai.NewClientWithConfig(azureCfg),
			model:     model,
			maxTokens: cfg.MaxTokens,
		}, nil
	case "anthropic":
		opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
		return &anthropicClassifier{
			client:    anthropic.NewClient(opts...),
			model:     model,
			maxTokens: cfg.MaxTokens,
		}, nil
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid Ollama base URL: %w", err)
		}
		return &ollamaClassifier{
			client:    api.NewClient(u, http.DefaultClient),
			model:     model,
			maxTokens: cfg.MaxTokens,
		}, nil
	case "gemini":
		return &geminiClassifier{
			apiKey:    cfg.APIKey,
			baseURL:   cfg.BaseURL,
			model:     model,
			maxTokens: cfg.MaxTokens,
		}, nil
	default:
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		return &openAIClassifier{
			provider:  "openai",
			client:    openai.NewClientWithConfig(clientCfg),
			model:     model,
			maxTokens: cfg.MaxTokens,
		}, nil
	}
}

// openAIClassifier handles OpenAI, OpenAI-compatible endpoints and Azure
type openAIClassifier struct {
	provider  string
	client    *openai.Client
	model     string
	maxTokens int
}

func (c *openAIClassifier) Provider() string { return c.provider }

func (c *openAIClassifier) Classify(ctx context.Context, feedback string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: ClassificationPrompt},
			{Role: openai.ChatMessageRoleUser, Content: feedback},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s API error: %w", config.ProviderName(c.provider), err)
	}

	if len(resp.Choices) == 0 {
		logger.Warnf("[LLM] %s returned no choices", c.provider)
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type anthropicClassifier struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

func (c *anthropicClassifier) Provider() string { return "anthropic" }

func (c *anthropicClassifier) Classify(ctx context.Context, feedback string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: ClassificationPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(feedback)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(content.String()), nil
}

type ollamaClassifier struct {
	client    *api.Client
	model     string
	maxTokens int
}

func (c *ollamaClassifier) Provider() string { return "ollama" }

func (c *ollamaClassifier) Classify(ctx context.Context, feedback string) (string, error) {
	var content strings.Builder
	err := c.client.Chat(ctx, &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{Role: "system", Content: ClassificationPrompt},
			{Role: "user", Content: feedback},
		},
		Options: map[string]interface{}{
			"num_predict": c.maxTokens,
		},
	}, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("Ollama API error: %w", err)
	}
	return strings.TrimSpace(content.String()), nil
}

// geminiClassifier creates its client per call; genai needs a context to
// build one.
type geminiClassifier struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
}

func (c *geminiClassifier) Provider() string { return "gemini" }

func (c *geminiClassifier) Classify(ctx context.Context, feedback string) (string, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.baseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return "", fmt.Errorf("Gemini client error: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, c.model, genai.Text(feedback), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(ClassificationPrompt, genai.RoleUser),
		MaxOutputTokens:   int32(c.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}
