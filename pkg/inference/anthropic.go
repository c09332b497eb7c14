package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/responsa-ai/responsa/pkg/config"
	"github.com/responsa-ai/responsa/pkg/fault"
	"github.com/responsa-ai/responsa/pkg/models"
)

const (
	defaultAnthropicURL = "https://api.anthropic.com"
	anthropicVersion    = "2023-06-01"
)

// Anthropic talks to the Anthropic Messages API.
type Anthropic struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float32
	client      *http.Client
}

func newAnthropic(cfg config.InferenceConfig) *Anthropic {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}
	return &Anthropic{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

// Complete implements Provider.
func (p *Anthropic) Complete(ctx context.Context, system, user string) (*Result, error) {
	payload := models.AnthropicRequest{
		Model:     p.model,
		System:    system,
		Messages:  []models.ChatMessage{{Role: "user", Content: user}},
		MaxTokens: p.maxTokens,
	}
	if p.temperature > 0 {
		payload.Temperature = &p.temperature
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fault.Wrap(fault.KindInference, "inference.complete", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fault.Wrap(fault.KindUpstream, "inference.complete", err)
	}
	p.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.KindUpstream, "inference.complete", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.statusError("inference.complete", resp)
	}

	var ar models.AnthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fault.Wrap(fault.KindInference, "inference.complete", err)
	}

	var sb strings.Builder
	for _, block := range ar.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, fault.New(fault.KindInference, "inference.complete", "provider returned no text content")
	}

	result := &Result{Text: text}
	if ar.Usage != nil {
		result.Usage = *ar.Usage.ToUsage()
	}
	return result, nil
}

// Probe implements Provider with a single-model listing.
func (p *Anthropic) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/models?limit=1", nil)
	if err != nil {
		return fault.Wrap(fault.KindUpstream, "inference.probe", err)
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return fault.Wrap(fault.KindUpstream, "inference.probe", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return p.statusError("inference.probe", resp)
	}
	return nil
}

// Model implements Provider.
func (p *Anthropic) Model() string { return p.model }

// Name implements Provider.
func (p *Anthropic) Name() string { return "anthropic" }

func (p *Anthropic) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Accept", "application/json")
}

// statusError reads the provider's error envelope and classifies the
// status: refusals are inference errors, availability problems are
// upstream.
func (p *Anthropic) statusError(op string, resp *http.Response) error {
	detail := fmt.Sprintf("HTTP %d from provider", resp.StatusCode)
	var ae models.AnthropicError
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&ae); err == nil && ae.Error.Message != "" {
		detail = fmt.Sprintf("HTTP %d from provider: %s", resp.StatusCode, ae.Error.Message)
	}
	kind := fault.KindUpstream
	if isRefusalStatus(resp.StatusCode) {
		kind = fault.KindInference
	}
	return fault.New(kind, op, detail)
}
