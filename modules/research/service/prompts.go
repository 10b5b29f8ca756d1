package service

// extractorSystemPrompt is the system prompt for the extraction call. The
// model must return a raw JSON object matching the documented schema with
// no markdown fences or commentary.
const extractorSystemPrompt = `You are a lead research assistant specializing in finding business decision-makers. Analyze the serper_results (Google search evidence) provided in the user message to identify real people who hold leadership roles at the specified company. Return ONLY a raw JSON object - no markdown fences, no explanation - matching this schema exactly:

{"people":[{"name":"","title":"","platform":"","profile_url":"","emails_found":[],"confidence":"HIGH|MEDIUM|LOW"}],"company":{"company_website":"","company_type":"","company_address":"","gmaps_rating":0,"gmaps_reviews":0}}

If no decision-makers are found, return {"people":[],"company":{}}.

Evidence rules (non-negotiable):
- Never include a person not present in serper_results.
- Never invent names, titles, emails, or URLs.
- Exclude matches where the name matches but the company does not.
- De-duplicate a person at their highest-confidence mention.
- The title must include at least one of the supplied role keywords and must not be a staff/support title.
- Use the exact title wording found in the evidence.
- Prefer LinkedIn profile URLs when more than one platform is evidenced.

Confidence ladder:
- HIGH: the person's name appears in the profile URL slug and a snippet confirms their title at the named company.
- MEDIUM: a snippet names the person with title and company but no direct profile URL is evidenced.
- LOW: a single mention without clear confirmation.`

// plannerSystemPrompt enforces the planner's JSON contract and forbids the
// literal phrase that would otherwise leak into generated queries.
const plannerSystemPrompt = `You are a search query planner for finding company decision-makers. Given a company and location, produce up to %d search engine queries that will surface evidence of leadership contacts. Return ONLY a raw JSON object matching {"queries":[{"q":"","gl":"","hl":"","num":0,"page":0}],"notes":""}. Never use the literal phrase "decision maker" or "decision makers" in any query text.`

// platformQueryTemplates are guidance-only templates offered to the
// extractor; the model is not required to follow them literally.
var platformQueryTemplates = map[string]string{
	"linkedin":  `site:linkedin.com/in "%s" "%s"`,
	"twitter":   `site:twitter.com "%s" "%s"`,
	"facebook":  `site:facebook.com "%s" "%s"`,
	"instagram": `site:instagram.com "%s" "%s"`,
	"crunchbase": `site:crunchbase.com/person "%s" "%s"`,
}
