// Package rules classifies candidate job titles as decision-maker titles
// and expands seniority/department hints into search-query keywords.
package rules

import (
	"regexp"
	"strings"
)

var negativePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bassistant\b`),
	regexp.MustCompile(`(?i)\bintern\b`),
	regexp.MustCompile(`(?i)\bcoordinator\b`),
	regexp.MustCompile(`(?i)\breceptionist\b`),
	regexp.MustCompile(`(?i)\bclerk\b`),
	regexp.MustCompile(`(?i)\btechnician\b`),
	regexp.MustCompile(`(?i)\bsupport\b`),
	regexp.MustCompile(`(?i)\bcustomer\s+service\b`),
	regexp.MustCompile(`(?i)\brepresentative\b`),
	regexp.MustCompile(`(?i)\bspecialist\b`),
	regexp.MustCompile(`(?i)\bassociate\b`),
	regexp.MustCompile(`(?i)\bstaff\b`),
}

type positivePattern struct {
	keyword string
	re      *regexp.Regexp
}

// positivePatterns is fixed priority order: first match wins.
var positivePatterns = []positivePattern{
	{"CEO", regexp.MustCompile(`(?i)\bCEO\b|\bChief\s+Executive\s+Officer\b`)},
	{"COO", regexp.MustCompile(`(?i)\bCOO\b|\bChief\s+Operating\s+Officer\b`)},
	{"CFO", regexp.MustCompile(`(?i)\bCFO\b|\bChief\s+Financial\s+Officer\b`)},
	{"CTO", regexp.MustCompile(`(?i)\bCTO\b|\bChief\s+Technology\s+Officer\b`)},
	{"CIO", regexp.MustCompile(`(?i)\bCIO\b|\bChief\s+Information\s+Officer\b`)},
	{"CMO", regexp.MustCompile(`(?i)\bCMO\b|\bChief\s+Marketing\s+Officer\b`)},
	{"Chief", regexp.MustCompile(`(?i)\bChief\b`)},
	{"Founder", regexp.MustCompile(`(?i)\bco[- ]?founder\b|\bfounder\b`)},
	{"Owner", regexp.MustCompile(`(?i)\bowner\b`)},
	{"President", regexp.MustCompile(`(?i)\bpresident\b`)},
	{"Managing Director", regexp.MustCompile(`(?i)\bmanaging\s+director\b`)},
	{"General Manager", regexp.MustCompile(`(?i)\bgeneral\s+manager\b`)},
	{"Senior Head", regexp.MustCompile(`(?i)\bsenior\s+head\b`)},
	{"Head", regexp.MustCompile(`(?i)\bhead\b|\bhead\s+of\b`)},
	{"Senior Director", regexp.MustCompile(`(?i)\bsenior\s+director\b`)},
	{"Director", regexp.MustCompile(`(?i)\bdirector\b`)},
	{"Senior Vice President", regexp.MustCompile(`(?i)\bsenior\s+vice\s+president\b|\bSVP\b`)},
	{"Vice President", regexp.MustCompile(`(?i)\bvice\s+president\b|\bVP\b`)},
	{"Chairman", regexp.MustCompile(`(?i)\bchairman\b|\bchair\b`)},
	{"Managing Partner", regexp.MustCompile(`(?i)\bmanaging\s+partner\b`)},
	{"Managing Member", regexp.MustCompile(`(?i)\bmanaging\s+member\b`)},
	{"Partner", regexp.MustCompile(`(?i)\bpartner\b`)},
	{"Principal", regexp.MustCompile(`(?i)\bprincipal\b`)},
}

// IsDecisionMakerTitle runs the two-pass classifier: a negative-pattern
// reject, then the fixed-priority positive pattern scan.
func IsDecisionMakerTitle(title string) (bool, string) {
	t := strings.TrimSpace(title)
	if t == "" {
		return false, ""
	}
	for _, re := range negativePatterns {
		if re.MatchString(t) {
			return false, ""
		}
	}
	for _, p := range positivePatterns {
		if p.re.MatchString(t) {
			return true, p.keyword
		}
	}
	return false, ""
}

// TitleMatchesKeywords reports whether title survives the negative
// pattern gate and contains any of keywords as a case-insensitive substring.
func TitleMatchesKeywords(title string, keywords []string) bool {
	t := strings.TrimSpace(title)
	if t == "" {
		return false
	}
	for _, re := range negativePatterns {
		if re.MatchString(t) {
			return false
		}
	}
	kw := nonEmptyTrimmed(keywords)
	if len(kw) == 0 {
		return false
	}
	tl := strings.ToLower(t)
	for _, k := range kw {
		if strings.Contains(tl, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// DecisionMakerQueryKeywords is the default ordered keyword list used to
// build search queries and as the fallback for BuildQueryKeywords.
func DecisionMakerQueryKeywords() []string {
	return []string{
		"CEO",
		"Founder",
		`"Co-Founder"`,
		"Owner",
		"President",
		`"Managing Director"`,
		`"General Manager"`,
		`"Senior Head"`,
		`"Head of"`,
		`"Senior Director"`,
		"Director",
		`"Senior Vice President"`,
		`"Vice President"`,
		"SVP",
		"VP",
		"COO",
		"CFO",
		"CTO",
		"CIO",
		"CMO",
		"Partner",
		"Principal",
		`"Managing Partner"`,
		`"Managing Member"`,
		"Chairman",
	}
}

// BuildQueryKeywords expands seniority/department hints into quoted role
// phrases, de-duplicated case-insensitively, falling back to the default
// keyword list when the cross-product is empty.
func BuildQueryKeywords(seniorities, departments []string) []string {
	sNorm := dedupePreserveOrder(nonEmptyTrimmed(seniorities))
	dNorm := dedupePreserveOrder(nonEmptyTrimmed(departments))

	if len(sNorm) == 0 && len(dNorm) == 0 {
		return DecisionMakerQueryKeywords()
	}

	out := []string{
		"CEO", "Founder", `"Co-Founder"`, "Owner", "President",
		`"Managing Director"`, `"General Manager"`,
	}
	out = append(out, sNorm...)

	seniorityBase := sNorm
	if len(seniorityBase) == 0 {
		seniorityBase = []string{"Head", "Director", "VP", "SVP", "Vice President", "Senior Vice President"}
	}
	for _, s := range seniorityBase {
		for _, d := range dNorm {
			out = append(out, `"`+s+" "+d+`"`)
			out = append(out, `"`+s+" of "+d+`"`)
		}
	}

	deduped := dedupePreserveOrder(out)
	if len(deduped) == 0 {
		return DecisionMakerQueryKeywords()
	}
	return deduped
}

func nonEmptyTrimmed(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func dedupePreserveOrder(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}
