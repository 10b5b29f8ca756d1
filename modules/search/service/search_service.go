// Package service implements the rate-limited search provider client.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/brightleads/dmengine/internal/apperr"
	"github.com/brightleads/dmengine/internal/config"
	"github.com/brightleads/dmengine/modules/search/model"
)

// SearchService is a rate-limited HTTP client for a Google-proxy search
// provider (e.g. Serper).
type SearchService struct {
	httpClient *http.Client
	limiter    *slidingWindowLimiter
	apiKey     string
	endpoint   string
	numDef     int
}

// NewSearchService builds a SearchService from configuration.
func NewSearchService(cfg config.SearchConfig) *SearchService {
	return &SearchService{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    newSlidingWindowLimiter(cfg.QPS),
		apiKey:     cfg.APIKey,
		endpoint:   cfg.Endpoint,
		numDef:     cfg.NumDef,
	}
}

type wireRequest struct {
	Q           string `json:"q"`
	GL          string `json:"gl,omitempty"`
	HL          string `json:"hl,omitempty"`
	Num         int    `json:"num,omitempty"`
	Page        int    `json:"page,omitempty"`
	TBS         string `json:"tbs,omitempty"`
	Autocorrect *bool  `json:"autocorrect,omitempty"`
}

// Search executes req against the search provider after waiting for a slot
// in the sliding-window rate limiter. Responses with status 400 or above
// and transport failures surface as *apperr.ProviderError.
func (s *SearchService) Search(ctx context.Context, req model.Request) (*model.Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("search: query must not be empty")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	num := req.Num
	if num == 0 {
		num = s.numDef
	}

	body, err := json.Marshal(wireRequest{
		Q:           req.Query,
		GL:          req.GL,
		HL:          req.HL,
		Num:         num,
		Page:        req.Page,
		TBS:         req.TBS,
		Autocorrect: req.Autocorrect,
	})
	if err != nil {
		return nil, fmt.Errorf("search: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-KEY", s.apiKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, &apperr.ProviderError{Provider: "search", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &apperr.ProviderError{Provider: "search", Err: err}
	}

	if resp.StatusCode >= 400 {
		snippet := respBody
		if len(snippet) > 500 {
			snippet = snippet[:500]
		}
		return nil, &apperr.ProviderError{Provider: "search", StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	var raw model.RawResponse
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, &apperr.ProviderError{Provider: "search", Err: fmt.Errorf("decode response: %w", err)}
	}

	result := raw.Trim(req.MaxOrganic, req.MaxPAA)
	return result, nil
}
