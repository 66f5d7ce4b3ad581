package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/akolanti/BidExtract/internal/llm"
	"github.com/akolanti/BidExtract/pkg/logger_i"
	"google.golang.org/genai"
)

const providerName = "gemini"

type llmClient struct {
	client    *genai.Client
	modelName string
	logger    *logger_i.Logger
}

func NewGeminiClient(ctx context.Context, apikey string, modelName string, httpClient *http.Client) (llm.Provider, error) {
	logger := logger_i.NewLogger("llm_gemini")
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apikey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		logger.Error("Error creating Gemini client:", "error", err)
		return nil, err
	}
	logger.Info("Gemini client created", "model", modelName)
	return &llmClient{client: c, modelName: modelName, logger: logger}, nil
}

func (c *llmClient) Name() string {
	return providerName
}

func (c *llmClient) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	model := req.Model
	if model == "" {
		model = c.modelName
	}

	contentConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if s := strings.TrimSpace(req.System); s != "" {
		contentConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: s}},
		}
	}
	if req.MaxOutputTokens > 0 {
		contentConfig.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	if req.JSON {
		contentConfig.ResponseMIMEType = "application/json"
	}

	result, err := c.client.Models.GenerateContent(ctx, model, genai.Text(req.User), contentConfig)
	if err != nil {
		return llm.Completion{}, classify(err)
	}
	if result == nil {
		return llm.Completion{}, &llm.APIError{Provider: providerName, Transient: true, Err: errors.New("empty response")}
	}

	out := llm.Completion{Text: strings.TrimSpace(result.Text()), Model: model}
	if result.UsageMetadata != nil {
		out.PromptTokens = int(result.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(result.UsageMetadata.CandidatesTokenCount)
		out.TotalTokens = int(result.UsageMetadata.TotalTokenCount)
	}
	if len(result.Candidates) > 0 {
		out.FinishReason = string(result.Candidates[0].FinishReason)
	}
	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		return out, &llm.APIError{Provider: providerName, StatusCode: http.StatusUnprocessableEntity,
			Err: errors.New("prompt blocked: " + string(result.PromptFeedback.BlockReason))}
	}
	c.logger.WithContext(ctx).Debug("llm.extract.response", "model", model, "tokens", out.TotalTokens, "finish", out.FinishReason)
	return out, nil
}

func (c *llmClient) Ping(ctx context.Context) error {
	if _, err := c.client.Models.Get(ctx, c.modelName, nil); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llm.FromStatus(providerName, apiErr.Code, nil, errors.New(apiErr.Message))
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return llm.FromStatus(providerName, apiErrPtr.Code, nil, errors.New(apiErrPtr.Message))
	}
	return llm.Classify(providerName, err)
}
