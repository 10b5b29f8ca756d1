package service

import (
	"fmt"
	"net/url"
	"strings"

	llmmodel "github.com/brightleads/dmengine/modules/llm/model"
	"github.com/brightleads/dmengine/modules/research/model"
	"github.com/brightleads/dmengine/modules/rules"
)

// plannedQuery is one query produced by either the planner LLM call or the
// deterministic people-mode synthesizer.
type plannedQuery struct {
	Q    string `json:"q"`
	GL   string `json:"gl,omitempty"`
	HL   string `json:"hl,omitempty"`
	Num  int    `json:"num,omitempty"`
	Page int    `json:"page,omitempty"`
}

type plannerResponse struct {
	Queries []plannedQuery `json:"queries"`
	Notes   string         `json:"notes,omitempty"`
}

// synthesizePeopleQuery builds the single deterministic query used for
// parse_mode="people", skipping the LLM planner entirely.
func synthesizePeopleQuery(in model.Input) plannedQuery {
	keywords := in.RoleKeywords
	if len(keywords) == 0 {
		keywords = rules.DecisionMakerQueryKeywords()
	}
	if len(keywords) > 5 {
		keywords = keywords[:5]
	}
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = quoteIfNeeded(k)
	}
	orClause := "(" + strings.Join(quoted, " OR ") + ")"
	q := fmt.Sprintf(`("%s") AND %s AND "%s"`, in.Company, orClause, in.Location)

	if in.DeepSearch {
		if hint := deepSearchHint(in); hint != "" {
			q = fmt.Sprintf("%s OR (%s)", q, hint)
		}
	}
	return plannedQuery{Q: q}
}

func deepSearchHint(in model.Input) string {
	var parts []string
	if host := websiteHost(in.Website); host != "" {
		parts = append(parts, fmt.Sprintf("%q", host))
	}
	if in.Location != "" {
		parts = append(parts, fmt.Sprintf("%q", in.Location))
	}
	if in.CompanyType != "" {
		parts = append(parts, fmt.Sprintf("%q", in.CompanyType))
	}
	return strings.Join(parts, " OR ")
}

func websiteHost(website string) string {
	website = strings.TrimSpace(website)
	if website == "" {
		return ""
	}
	candidate := website
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}

func quoteIfNeeded(s string) string {
	if strings.HasPrefix(s, `"`) {
		return s
	}
	return `"` + s + `"`
}

// buildPlannerMessages constructs the planner LLM call for
// parse_mode="company".
func buildPlannerMessages(in model.Input) []llmmodel.Message {
	system := fmt.Sprintf(plannerSystemPrompt, in.MaxSearchCalls)
	user := fmt.Sprintf(
		"company=%q location=%q maps_url=%q website=%q company_type=%q platforms=%v max_queries=%d",
		in.Company, in.Location, in.MapsURL, in.Website, in.CompanyType, in.Platforms, in.MaxSearchCalls,
	)
	return []llmmodel.Message{{Role: "system", Content: system}, {Role: "user", Content: user}}
}
