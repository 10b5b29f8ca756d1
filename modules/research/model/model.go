// Package model defines the inputs, outputs, and trace shapes of the
// plan-search-extract research pipeline.
package model

import (
	"time"

	llmmodel "github.com/brightleads/dmengine/modules/llm/model"
)

// ParseMode selects the planning strategy: "people" synthesizes a single
// deterministic query from role keywords; "company" asks the LLM to plan.
type ParseMode string

const (
	ParseModePeople  ParseMode = "people"
	ParseModeCompany ParseMode = "company"
)

// Input is the full shape hashed for cache keying; every field that
// influences the research outcome must live here.
type Input struct {
	Company        string    `json:"company"`
	Location       string    `json:"location"`
	MapsURL        string    `json:"maps_url,omitempty"`
	Website        string    `json:"website,omitempty"`
	CompanyType    string    `json:"company_type,omitempty"`
	Platforms      []string  `json:"platforms,omitempty"`
	MaxPeople      int       `json:"max_people"`
	DeepSearch     bool      `json:"deep_search"`
	RoleKeywords   []string  `json:"role_keywords,omitempty"`
	MaxSearchCalls int       `json:"max_search_calls"`
	ParseMode      ParseMode `json:"parse_mode"`
}

// Person is a single extracted candidate contact.
type Person struct {
	Name          string
	Title         string
	Platform      string
	ProfileURL    string
	EmailsFound   []string
	Confidence    string
	CompanyWeb    string
	CompanyType   string
	CompanyAddr   string
	GMapsRating   *float64
	GMapsReviews  *int
}

// SerperQueryResult pairs one executed query with its (possibly error)
// result, serialized into the extractor payload and the persisted trace.
type SerperQueryResult struct {
	Q      string `json:"q"`
	Result any    `json:"result"`
}

// Trace is the structured record of everything the pipeline did, persisted
// per DecisionMaker for debuggability.
type Trace struct {
	LLMInput            LLMInputTrace       `json:"llm_input"`
	SerperQueries       []string            `json:"serper_queries"`
	SerperCalls         int                 `json:"serper_calls"`
	LLMCalls            int                 `json:"llm_calls"`
	LLMCallTimestamp    *time.Time          `json:"llm_call_timestamp,omitempty"`
	SerperCallTimestamp *time.Time          `json:"serper_call_timestamp,omitempty"`
	LLMUsage            LLMUsageTrace       `json:"llm_usage"`
	LLMOutput           LLMOutputTrace      `json:"llm_output"`
}

// LLMInputTrace captures the exact message sequences sent to the LLM.
type LLMInputTrace struct {
	PlanMessages  []llmmodel.Message `json:"plan_messages,omitempty"`
	FinalMessages []llmmodel.Message `json:"final_messages"`
}

// LLMUsageTrace captures token usage per LLM call within the pipeline.
type LLMUsageTrace struct {
	Plan  *llmmodel.Usage `json:"plan,omitempty"`
	Final llmmodel.Usage  `json:"final"`
}

// LLMOutputTrace captures the raw textual LLM outputs.
type LLMOutputTrace struct {
	PlanText  string `json:"plan_text,omitempty"`
	FinalText string `json:"final_text"`
}

// Company carries the back-fill fields the extractor may return alongside
// people.
type Company struct {
	Website      string   `json:"company_website,omitempty"`
	Type         string   `json:"company_type,omitempty"`
	Address      string   `json:"company_address,omitempty"`
	GMapsRating  *float64 `json:"gmaps_rating,omitempty"`
	GMapsReviews *int     `json:"gmaps_reviews,omitempty"`
}

// Result is the pipeline's output: validated candidate people plus the
// trace used for persistence and debugging.
type Result struct {
	People []Person
	Trace  Trace
}
