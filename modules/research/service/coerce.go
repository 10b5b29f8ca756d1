package service

import (
	"encoding/json"
	"strconv"
	"strings"

	llmservice "github.com/brightleads/dmengine/modules/llm/service"
	"github.com/brightleads/dmengine/modules/research/model"
)

// coerceExtraction turns the extractor's raw text into an ordered sequence
// of people plus the back-fill company object, accepting any of the three
// documented response shapes: {people:[...]}, [...], or {results:[...]}.
func coerceExtraction(raw string) ([]model.Person, model.Company, bool) {
	trimmed := strings.TrimSpace(raw)

	var items []any
	var companyRaw map[string]any

	if strings.HasPrefix(trimmed, "[") {
		var arr []any
		if json.Unmarshal([]byte(trimmed), &arr) == nil {
			items = arr
		} else if start, end := strings.Index(trimmed, "["), strings.LastIndex(trimmed, "]"); start >= 0 && end > start {
			if json.Unmarshal([]byte(trimmed[start:end+1]), &arr) == nil {
				items = arr
			}
		}
	} else {
		var obj map[string]any
		if llmservice.ExtractJSON(raw, &obj) {
			if v, ok := obj["people"].([]any); ok {
				items = v
			} else if v, ok := obj["results"].([]any); ok {
				items = v
			}
			if c, ok := obj["company"].(map[string]any); ok {
				companyRaw = c
			}
		}
	}

	if items == nil {
		return nil, model.Company{}, false
	}

	people := make([]model.Person, 0, len(items))
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		people = append(people, personFromMap(obj))
	}

	return people, companyFromMap(companyRaw), true
}

func personFromMap(m map[string]any) model.Person {
	p := model.Person{
		Name:       stringField(m, "name"),
		Title:      stringField(m, "title"),
		Platform:   stringField(m, "platform"),
		ProfileURL: stringField(m, "profile_url"),
		Confidence: stringField(m, "confidence"),
	}
	p.EmailsFound = stringSliceField(m, "emails_found")
	p.CompanyWeb = stringField(m, "company_website")
	p.CompanyType = stringField(m, "company_type")
	p.CompanyAddr = stringField(m, "company_address")
	if v, ok := floatField(m, "gmaps_rating"); ok {
		p.GMapsRating = &v
	}
	if v, ok := intField(m, "gmaps_reviews"); ok {
		p.GMapsReviews = &v
	}
	return p
}

func companyFromMap(m map[string]any) model.Company {
	if m == nil {
		return model.Company{}
	}
	c := model.Company{
		Website: stringField(m, "company_website"),
		Type:    stringField(m, "company_type"),
		Address: stringField(m, "company_address"),
	}
	if v, ok := floatField(m, "gmaps_rating"); ok {
		c.GMapsRating = &v
	}
	if v, ok := intField(m, "gmaps_reviews"); ok {
		c.GMapsReviews = &v
	}
	return c
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func stringSliceField(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.ToLower(strings.TrimSpace(s)))
			}
		}
		return out
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []string{strings.ToLower(strings.TrimSpace(t))}
	default:
		return nil
	}
}

func floatField(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func intField(m map[string]any, key string) (int, bool) {
	f, ok := floatField(m, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}
