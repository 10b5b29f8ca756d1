// Package service implements the retrying, concurrency-bounded
// chat-completion client used by the research pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"

	"github.com/brightleads/dmengine/internal/apperr"
	"github.com/brightleads/dmengine/internal/config"
	"github.com/brightleads/dmengine/internal/platform/retry"
	"github.com/brightleads/dmengine/modules/llm/model"
)

// LLMService wraps an OpenAI-compatible chat-completions endpoint with a
// process-wide in-flight semaphore, exponential-backoff retries, and usage
// accounting.
type LLMService struct {
	client      *openai.Client
	sem         *semaphore.Weighted
	modelName   string
	temperature float32
	maxRetries  int
	retryBase   time.Duration
	useJSONMode bool
}

// NewLLMService builds an LLMService from configuration.
func NewLLMService(cfg config.LLMConfig) *LLMService {
	oaiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaiCfg.BaseURL = cfg.BaseURL
	}
	oaiCfg.HTTPClient = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: newOpenRouterHeaderTransport(cfg, http.DefaultTransport),
	}

	return &LLMService{
		client:      openai.NewClientWithConfig(oaiCfg),
		sem:         semaphore.NewWeighted(int64(cfg.Concurrency)),
		modelName:   cfg.Model,
		temperature: float32(cfg.Temperature),
		maxRetries:  cfg.MaxRetries,
		retryBase:   time.Duration(cfg.RetryBaseSeconds * float64(time.Second)),
		useJSONMode: cfg.UseJSONResponseFormat,
	}
}

// openRouterHeaderTransport injects OpenRouter's recommended attribution
// headers when the configured base URL targets openrouter.ai.
type openRouterHeaderTransport struct {
	enabled bool
	site    string
	app     string
	base    http.RoundTripper
}

func newOpenRouterHeaderTransport(cfg config.LLMConfig, base http.RoundTripper) http.RoundTripper {
	return &openRouterHeaderTransport{
		enabled: strings.Contains(cfg.BaseURL, "openrouter.ai"),
		site:    cfg.OpenRouterSiteURL,
		app:     cfg.OpenRouterAppName,
		base:    base,
	}
}

func (t *openRouterHeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.enabled {
		if t.site != "" {
			req.Header.Set("HTTP-Referer", t.site)
		}
		if t.app != "" {
			req.Header.Set("X-Title", t.app)
		}
	}
	return t.base.RoundTrip(req)
}

// Chat sends messages to the provider, retrying on transient failures and
// falling back once from JSON-object mode if the provider rejects it.
func (s *LLMService) Chat(ctx context.Context, messages []model.Message, jsonMode bool, purpose string) (*model.ChatResult, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	wantJSON := jsonMode && s.useJSONMode
	oaiMessages := toOpenAIMessages(messages)

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries+1; attempt++ {
		req := openai.ChatCompletionRequest{
			Model:       s.modelName,
			Messages:    oaiMessages,
			Temperature: s.temperature,
		}
		if wantJSON {
			req.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			}
		}

		resp, err := s.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return nil, &apperr.ProviderError{Provider: "llm", Err: fmt.Errorf("%s: empty choices", purpose)}
			}
			text := resp.Choices[0].Message.Content
			usage := usageFromResponse(resp.Usage, messages, text)
			return &model.ChatResult{Text: text, Usage: usage}, nil
		}
		lastErr = err

		status, body := statusAndBody(err)

		if status == http.StatusPaymentRequired {
			return nil, &apperr.ProviderDisabled{Reason: "insufficient credits"}
		}

		if status == http.StatusBadRequest && wantJSON && strings.Contains(strings.ToLower(body), "response_format") {
			wantJSON = false
			continue
		}

		if status > 0 && !retry.RetryableStatus(status) {
			snippet := body
			if len(snippet) > 500 {
				snippet = snippet[:500]
			}
			return nil, &apperr.ProviderError{Provider: "llm", StatusCode: status, Body: snippet}
		}

		if attempt > s.maxRetries {
			break
		}

		sleep := retry.Backoff(attempt, s.retryBase, 250*time.Millisecond, 15*time.Second)
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	status, body := statusAndBody(lastErr)
	snippet := body
	if len(snippet) > 500 {
		snippet = snippet[:500]
	}
	return nil, &apperr.ProviderError{Provider: "llm", StatusCode: status, Body: snippet, Err: lastErr}
}

func toOpenAIMessages(in []model.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(in))
	for i, m := range in {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// usageFromResponse prefers provider-reported usage; it falls back to a
// character-count estimate when the provider omits usage entirely.
func usageFromResponse(u openai.Usage, messages []model.Message, completion string) model.Usage {
	if u.TotalTokens > 0 || u.PromptTokens > 0 || u.CompletionTokens > 0 {
		return model.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	var promptChars int
	for _, m := range messages {
		promptChars += len(m.Content)
	}
	pt := estimateTokens(promptChars)
	ct := estimateTokens(len(completion))
	return model.Usage{PromptTokens: pt, CompletionTokens: ct, TotalTokens: pt + ct}
}

func estimateTokens(chars int) int {
	return int(math.Max(1, math.Ceil(float64(chars)/4)))
}

// statusAndBody extracts the HTTP status code and error body from the two
// error shapes go-openai returns: *openai.APIError (parsed error payload)
// and *openai.RequestError (transport-level or unparseable response).
func statusAndBody(err error) (int, string) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, apiErr.Message
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := ""
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return reqErr.HTTPStatusCode, msg
	}
	return 0, err.Error()
}
