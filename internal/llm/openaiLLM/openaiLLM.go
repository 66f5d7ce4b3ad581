package openaiLLM

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/akolanti/BidExtract/internal/llm"
	"github.com/akolanti/BidExtract/pkg/logger_i"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const providerName = "openai"

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

type llmClient struct {
	client openai.Client
	model  string
	logger *logger_i.Logger
}

// New builds an OpenAI-compatible chat provider. SDK retries are disabled;
// the extraction client owns the retry policy.
func New(cfg Config) (llm.Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai API key is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &llmClient{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: logger_i.NewLogger("llm_openai"),
	}, nil
}

func (c *llmClient) Name() string {
	return providerName
}

func (c *llmClient) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	params := openai.ChatCompletionNewParams{
		Messages:    buildMessages(req.System, req.User),
		Model:       openai.ChatModel(model),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxOutputTokens))
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Completion{}, classify(err)
	}

	out := extractCompletion(resp)
	c.logger.WithContext(ctx).Debug("llm.extract.response", "model", out.Model, "tokens", out.TotalTokens, "finish", out.FinishReason)
	if out.FinishReason == "content_filter" {
		return out, &llm.APIError{Provider: providerName, StatusCode: http.StatusUnprocessableEntity, Err: errors.New("completion blocked by content filter")}
	}
	return out, nil
}

func (c *llmClient) Ping(ctx context.Context) error {
	if _, err := c.client.Models.Get(ctx, c.model); err != nil {
		return classify(err)
	}
	return nil
}

func buildMessages(system, user string) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if s := strings.TrimSpace(system); s != "" {
		messages = append(messages, openai.SystemMessage(s))
	}
	messages = append(messages, openai.UserMessage(user))
	return messages
}

func extractCompletion(resp *openai.ChatCompletion) llm.Completion {
	if resp == nil {
		return llm.Completion{}
	}
	out := llm.Completion{
		Model:            resp.Model,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	if len(resp.Choices) > 0 {
		out.Text = strings.TrimSpace(resp.Choices[0].Message.Content)
		out.FinishReason = string(resp.Choices[0].FinishReason)
	}
	return out
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return llm.FromStatus(providerName, apiErr.StatusCode, header, errors.New(msg))
	}
	return llm.Classify(providerName, err)
}
