package inference

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/clypser/finance-bot/internal/domain"
	"google.golang.org/genai"
)

var recordSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"amount":   {Type: genai.TypeNumber},
		"currency": {Type: genai.TypeString},
		"category": {Type: genai.TypeString},
		"type": {
			Type: genai.TypeString,
			Enum: []string{
				string(domain.MovementExpense),
				string(domain.MovementIncome),
				string(domain.MovementDebtGiven),
				string(domain.MovementDebtReceived),
			},
		},
	},
	Required: requiredKeys,
}

// GeminiProvider sends structured-output requests to the Gemini API.
// One client is kept per endpoint and reused across requests.
type GeminiProvider struct {
	apiKey     string
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGeminiProvider creates a provider. proxyURL, when not empty, routes all
// provider traffic through that HTTP proxy.
func NewGeminiProvider(apiKey, proxyURL string) (*GeminiProvider, error) {
	p := &GeminiProvider{
		apiKey:  apiKey,
		clients: make(map[string]*genai.Client),
	}

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("NewGeminiProvider: parse proxy url: %w", err)
		}
		p.httpClient = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(u)},
		}
	}

	return p, nil
}

// Generate implements Provider.
func (p *GeminiProvider) Generate(ctx context.Context, c Candidate, prompt string) (string, error) {
	client, err := p.client(ctx, c.Endpoint)
	if err != nil {
		return "", err
	}

	resp, err := client.Models.GenerateContent(ctx, c.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   recordSchema,
		Temperature:      genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("Generate: generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("Generate: empty response from model")
	}
	return text, nil
}

func (p *GeminiProvider) client(ctx context.Context, endpoint string) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[endpoint]; ok {
		return c, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     p.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if endpoint != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: endpoint}
	}

	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("client: create genai client: %w", err)
	}
	p.clients[endpoint] = c
	return c, nil
}
