package litellm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/yungbote/graphrag-gateway/internal/gateway/config"
	"github.com/yungbote/graphrag-gateway/internal/gateway/engine"
	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
)

const backendName = "litellm"

// Engine talks to a LiteLLM proxy (or any OpenAI-compatible server) through go-openai.
type Engine struct {
	client  *openai.Client
	timeout time.Duration
}

func New(cfg config.EngineConfig) (*Engine, error) {
	return NewWithHTTPClient(cfg, nil)
}

// NewWithHTTPClient is intended for tests; it avoids network access by using a custom RoundTripper.
func NewWithHTTPClient(cfg config.EngineConfig, httpClient *http.Client) (*Engine, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("litellm: base_url required")
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		// The proxy may run without auth; go-openai still sends a bearer header.
		apiKey = "sk-local"
	}

	oc := openai.DefaultConfig(apiKey)
	oc.BaseURL = baseURL
	if httpClient == nil {
		httpClient = &http.Client{Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}}
	}
	oc.HTTPClient = httpClient

	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Engine{client: openai.NewClientWithConfig(oc), timeout: timeout}, nil
}

var _ engine.Engine = (*Engine)(nil)

func (e *Engine) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: inputs,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, classify("embed", err)
	}

	out := make([][]float32, len(inputs))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			// Some servers omit indices but keep ordering.
			idx = i
		}
		if idx < len(out) {
			out[idx] = d.Embedding
		}
	}
	for i := range out {
		if len(out[i]) == 0 {
			return nil, ports.NewBackendError(backendName, "embed", ports.KindMalformed, 0,
				fmt.Errorf("embeddings missing index=%d (model=%s)", i, model))
		}
	}
	return out, nil
}

func (e *Engine) GenerateText(ctx context.Context, model string, messages []ports.Message, opts engine.GenerateOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: temperature(opts.Temperature),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if opts.ForceJSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify("chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// temperature keeps an explicit zero on the wire; go-openai drops 0 through omitempty.
func temperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func classify(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ports.Classify(backendName, op, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ports.Classify(backendName, op, reqErr.HTTPStatusCode, err)
	}
	return ports.Classify(backendName, op, 0, err)
}
