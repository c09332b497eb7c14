package inference

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/responsa-ai/responsa/pkg/config"
	"github.com/responsa-ai/responsa/pkg/fault"
	"github.com/responsa-ai/responsa/pkg/models"
)

// OpenAI talks to any OpenAI-compatible chat completion API. It also
// serves embeddings for the semantic retrieval index.
type OpenAI struct {
	client         *openai.Client
	model          string
	maxTokens      int
	temperature    float32
	embeddingModel string
}

// embedBatchSize bounds inputs per embeddings call, matching the API's
// documented maximum.
const embedBatchSize = 2048

func newOpenAI(cfg config.InferenceConfig) *OpenAI {
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAI{
		client:      openai.NewClientWithConfig(cc),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// WithEmbeddingModel sets the model used by Embed.
func (p *OpenAI) WithEmbeddingModel(model string) *OpenAI {
	p.embeddingModel = model
	return p
}

// Complete implements Provider.
func (p *OpenAI) Complete(ctx context.Context, system, user string) (*Result, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		return nil, classifyOpenAIError("inference.complete", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fault.New(fault.KindInference, "inference.complete", "provider returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, fault.New(fault.KindInference, "inference.complete", "provider returned empty content")
	}
	return &Result{
		Text: text,
		Usage: models.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Probe implements Provider with a models listing, the cheapest
// authenticated call the API offers.
func (p *OpenAI) Probe(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return classifyOpenAIError("inference.probe", err)
	}
	return nil
}

// Embed returns one vector per input text, batching as needed. Order
// follows the input.
func (p *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	model := p.embeddingModel
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: texts[start:end],
			Model: openai.EmbeddingModel(model),
		})
		if err != nil {
			return nil, classifyOpenAIError("inference.embed", err)
		}
		if len(resp.Data) != end-start {
			return nil, fault.Newf(fault.KindInference, "inference.embed",
				"provider returned %d embeddings for %d inputs", len(resp.Data), end-start)
		}
		for _, d := range resp.Data {
			out = append(out, d.Embedding)
		}
	}
	return out, nil
}

// Model implements Provider.
func (p *OpenAI) Model() string { return p.model }

// Name implements Provider.
func (p *OpenAI) Name() string { return "openai" }

// classifyOpenAIError separates unusable-output conditions (bad
// credentials, rejected request, unknown model) from transport and
// availability failures.
func classifyOpenAIError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if isRefusalStatus(apiErr.HTTPStatusCode) {
			return fault.Wrap(fault.KindInference, op, err)
		}
		return fault.Wrap(fault.KindUpstream, op, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && isRefusalStatus(reqErr.HTTPStatusCode) {
		return fault.Wrap(fault.KindInference, op, err)
	}
	return fault.Wrap(fault.KindUpstream, op, err)
}

// isRefusalStatus reports statuses where the provider answered but
// refused: retrying will not help, so they are inference errors rather
// than availability problems.
func isRefusalStatus(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}
