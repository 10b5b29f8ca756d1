package service

import (
	"regexp"

	searchmodel "github.com/brightleads/dmengine/modules/search/model"
)

var decisionMakerPhraseRe = regexp.MustCompile(`(?i)decision[-\s]?makers?`)

func stripPhrase(s string) string {
	return decisionMakerPhraseRe.ReplaceAllString(s, "")
}

// stripDecisionMakerPhrase removes the literal "decision maker(s)" phrase
// from every text field of a search result before it is handed to the
// extractor, so the model's evidence never contains the giveaway term the
// planner is separately forbidden from generating.
func stripDecisionMakerPhrase(r *searchmodel.Result) *searchmodel.Result {
	if r == nil {
		return nil
	}
	out := &searchmodel.Result{Credits: r.Credits}
	if r.KnowledgeGraph != nil {
		kg := *r.KnowledgeGraph
		kg.Title = stripPhrase(kg.Title)
		kg.Description = stripPhrase(kg.Description)
		kg.Address = stripPhrase(kg.Address)
		out.KnowledgeGraph = &kg
	}
	out.Organic = make([]searchmodel.Organic, len(r.Organic))
	for i, o := range r.Organic {
		out.Organic[i] = searchmodel.Organic{
			Title:   stripPhrase(o.Title),
			Link:    o.Link,
			Snippet: stripPhrase(o.Snippet),
		}
	}
	out.PeopleAlsoAsk = make([]searchmodel.PeopleAlsoAsk, len(r.PeopleAlsoAsk))
	for i, p := range r.PeopleAlsoAsk {
		out.PeopleAlsoAsk[i] = searchmodel.PeopleAlsoAsk{
			Question: stripPhrase(p.Question),
			Snippet:  stripPhrase(p.Snippet),
			Title:    stripPhrase(p.Title),
			Link:     p.Link,
		}
	}
	return out
}
