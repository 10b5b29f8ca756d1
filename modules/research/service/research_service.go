// Package service implements the plan -> search -> extract research
// pipeline: it plans queries, fans them out through the search client,
// and asks the LLM client to extract structured decision-maker contacts
// from the combined evidence.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/brightleads/dmengine/internal/apperr"
	llmmodel "github.com/brightleads/dmengine/modules/llm/model"
	llmservice "github.com/brightleads/dmengine/modules/llm/service"
	"github.com/brightleads/dmengine/modules/research/model"
	"github.com/brightleads/dmengine/modules/research/ports"
	searchmodel "github.com/brightleads/dmengine/modules/search/model"
)

// ResearchService drives the plan/search/extract state machine.
type ResearchService struct {
	search ports.SearchClient
	llm    ports.LLMClient
	cache  *ttlCache
}

// NewResearchService builds a ResearchService backed by the given search
// and LLM clients, with an in-process TTL result cache.
func NewResearchService(search ports.SearchClient, llm ports.LLMClient, cacheMaxItems int, cacheTTL time.Duration) *ResearchService {
	return &ResearchService{search: search, llm: llm, cache: newTTLCache(cacheMaxItems, cacheTTL)}
}

// Research runs the plan -> search -> extract pipeline for one company,
// returning extracted candidate people plus a trace of everything the
// pipeline did.
func (s *ResearchService) Research(ctx context.Context, in model.Input) (*model.Result, error) {
	namespace := "enrich_company:"
	if in.ParseMode == model.ParseModePeople {
		namespace = "process_company:"
	}
	key, err := CacheKey(namespace, in)
	if err != nil {
		return nil, fmt.Errorf("research: cache key: %w", err)
	}
	if cached, ok := s.cache.get(key); ok {
		return &cached, nil
	}

	queries, planMessages, planText, planUsage, err := s.plan(ctx, in)
	if err != nil {
		return nil, err
	}

	serperResults, serperQueries, serperCalls, serperTimestamp := s.executeSearches(ctx, in, queries)

	finalMessages, finalText, finalUsage, people, company, err := s.extract(ctx, in, serperResults)
	if err != nil {
		return nil, err
	}

	backfillCompany(people, company)
	if in.ParseMode == model.ParseModePeople {
		defaultEmails := extractEmails(serializeForEmailScan(serperResults))
		for i := range people {
			if len(people[i].EmailsFound) == 0 {
				people[i].EmailsFound = defaultEmails
			}
		}
	}

	now := time.Now()
	llmCalls := 1
	if in.ParseMode == model.ParseModeCompany {
		llmCalls = 2
	}

	trace := model.Trace{
		LLMInput: model.LLMInputTrace{
			PlanMessages:  planMessages,
			FinalMessages: finalMessages,
		},
		SerperQueries:       serperQueries,
		SerperCalls:         serperCalls,
		LLMCalls:            llmCalls,
		LLMCallTimestamp:    &now,
		SerperCallTimestamp: serperTimestamp,
		LLMUsage: model.LLMUsageTrace{
			Plan:  planUsage,
			Final: finalUsage,
		},
		LLMOutput: model.LLMOutputTrace{
			PlanText:  planText,
			FinalText: finalText,
		},
	}

	result := model.Result{People: people, Trace: trace}
	s.cache.set(key, result)
	return &result, nil
}

// plan returns the queries to execute, plus planner observability fields
// (empty for parse_mode="people", which never calls the LLM).
func (s *ResearchService) plan(ctx context.Context, in model.Input) ([]plannedQuery, []llmmodel.Message, string, *llmmodel.Usage, error) {
	if in.ParseMode == model.ParseModePeople {
		return []plannedQuery{synthesizePeopleQuery(in)}, nil, "", nil, nil
	}

	messages := buildPlannerMessages(in)
	result, err := s.llm.Chat(ctx, messages, true, "plan")
	if err != nil {
		return nil, messages, "", nil, err
	}

	var parsed plannerResponse
	if !llmservice.ExtractJSON(result.Text, &parsed) {
		return nil, messages, result.Text, &result.Usage, &apperr.MalformedLLMResponse{Raw: result.Text}
	}

	queries := parsed.Queries
	if len(queries) > in.MaxSearchCalls {
		queries = queries[:in.MaxSearchCalls]
	}
	for i := range queries {
		queries[i].Q = strings.TrimSpace(stripPhrase(queries[i].Q))
	}
	return queries, messages, result.Text, &result.Usage, nil
}

func (s *ResearchService) executeSearches(ctx context.Context, in model.Input, queries []plannedQuery) ([]model.SerperQueryResult, []string, int, *time.Time) {
	maxOrganic, maxPAA := 4, 0
	if in.DeepSearch {
		maxOrganic, maxPAA = 8, 6
	}

	var (
		serperResults   []model.SerperQueryResult
		serperQueries   []string
		serperCalls     int
		firstSuccessAt  *time.Time
	)

	for _, q := range queries {
		serperQueries = append(serperQueries, q.Q)
		req := searchmodel.Request{
			Query: q.Q, GL: q.GL, HL: q.HL, Num: q.Num, Page: q.Page,
			MaxOrganic: maxOrganic, MaxPAA: maxPAA,
		}
		serperCalls++
		res, err := s.search.Search(ctx, req)
		if err != nil {
			serperResults = append(serperResults, model.SerperQueryResult{
				Q: q.Q, Result: map[string]string{"error": err.Error()},
			})
			continue
		}
		if firstSuccessAt == nil {
			now := time.Now()
			firstSuccessAt = &now
		}
		stripped := stripDecisionMakerPhrase(res)
		serperResults = append(serperResults, model.SerperQueryResult{Q: q.Q, Result: stripped})
	}

	return serperResults, serperQueries, serperCalls, firstSuccessAt
}

func (s *ResearchService) extract(ctx context.Context, in model.Input, serperResults []model.SerperQueryResult) ([]llmmodel.Message, string, llmmodel.Usage, []model.Person, model.Company, error) {
	payload := extractionPayload{
		Company:       in.Company,
		Location:      in.Location,
		MapsURL:       in.MapsURL,
		Website:       in.Website,
		CompanyType:   in.CompanyType,
		Platforms:     in.Platforms,
		RoleKeywords:  in.RoleKeywords,
		SerperResults: serperResults,
		QueryTemplates: platformQueryTemplates,
	}
	if in.ParseMode == model.ParseModePeople {
		payload.DefaultEmails = extractEmails(serializeForEmailScan(serperResults))
	}

	userBody, err := json.Marshal(payload)
	if err != nil {
		return nil, "", llmmodel.Usage{}, nil, model.Company{}, fmt.Errorf("research: encode extraction payload: %w", err)
	}

	messages := []llmmodel.Message{
		{Role: "system", Content: extractorSystemPrompt},
		{Role: "user", Content: string(userBody)},
	}

	result, err := s.llm.Chat(ctx, messages, true, "extract")
	if err != nil {
		return messages, "", llmmodel.Usage{}, nil, model.Company{}, err
	}

	people, company, ok := coerceExtraction(result.Text)
	if !ok {
		return messages, result.Text, result.Usage, nil, model.Company{}, &apperr.MalformedLLMResponse{Raw: result.Text}
	}
	return messages, result.Text, result.Usage, people, company, nil
}

type extractionPayload struct {
	Company        string                      `json:"company"`
	Location       string                      `json:"location"`
	MapsURL        string                      `json:"maps_url,omitempty"`
	Website        string                      `json:"website,omitempty"`
	CompanyType    string                      `json:"company_type,omitempty"`
	Platforms      []string                    `json:"platforms,omitempty"`
	RoleKeywords   []string                    `json:"role_keywords,omitempty"`
	SerperResults  []model.SerperQueryResult   `json:"serper_results"`
	QueryTemplates map[string]string           `json:"platform_query_templates,omitempty"`
	DefaultEmails  []string                    `json:"default_emails,omitempty"`
}

func backfillCompany(people []model.Person, company model.Company) {
	for i := range people {
		if people[i].CompanyWeb == "" {
			people[i].CompanyWeb = company.Website
		}
		if people[i].CompanyType == "" {
			people[i].CompanyType = company.Type
		}
		if people[i].CompanyAddr == "" {
			people[i].CompanyAddr = company.Address
		}
		if people[i].GMapsRating == nil {
			people[i].GMapsRating = company.GMapsRating
		}
		if people[i].GMapsReviews == nil {
			people[i].GMapsReviews = company.GMapsReviews
		}
	}
}

func serializeForEmailScan(results []model.SerperQueryResult) string {
	b, err := json.Marshal(results)
	if err != nil {
		return ""
	}
	return string(b)
}
