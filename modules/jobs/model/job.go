// Package model defines the Job and DecisionMaker shapes the Runner
// drives from queued through a terminal status.
package model

import "time"

// Status is a job's position in the state machine: queued -> processing ->
// one of {completed, failed, cancelled}.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether s admits no further mutation.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StopReason records why a job stopped short of exhausting its rows.
type StopReason string

const (
	StopReasonNone             StopReason = ""
	StopReasonCreditsExhausted StopReason = "credits_exhausted"
	StopReasonMissingUser      StopReason = "missing_user"
	StopReasonCompanyError     StopReason = "company_error"
)

// ColumnMappings maps the job's semantic keys onto the uploaded table's
// column headers.
type ColumnMappings struct {
	CompanyName   string `json:"company_name"`
	Location      string `json:"location"`
	GoogleMapsURL string `json:"google_maps_url,omitempty"`
	Website       string `json:"website,omitempty"`
	Industry      string `json:"industry,omitempty"`
	City          string `json:"city,omitempty"`
	Country       string `json:"country,omitempty"`
}

// Options carries the user's per-job research preferences.
type Options struct {
	DeepSearch bool     `json:"deep_search"`
	JobTitles  []string `json:"job_titles,omitempty"`
}

// Job is the unit of work submitted by a user: an uploaded table of
// companies to be researched row by row.
type Job struct {
	ID                  string
	UserID              string
	SupportID           string
	Filename            string
	Status              Status
	TotalCompanies      int
	ProcessedCompanies  int
	DecisionMakersFound int
	CreditsSpent        int
	StopReason          StopReason
	ColumnMappings      ColumnMappings
	CompaniesData       []map[string]string
	SelectedPlatforms   []string
	Options             Options

	LLMCallsStarted     int
	LLMCallsSucceeded   int
	SerperCalls         int
	LLMPromptTokens     int
	LLMCompletionTokens int
	LLMTotalTokens      int
	LLMCostUSD          float64
	SerperCostUSD       float64
	TotalCostUSD        float64
	CostPerContactUSD   float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Confidence is the evidence-strength ladder assigned to an extracted
// candidate contact.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// DecisionMaker is a validated contact row belonging to a job.
type DecisionMaker struct {
	ID     int64
	JobID  string
	UserID string

	CompanyName    string
	CompanyType    string
	CompanyCity    string
	CompanyCountry string
	CompanyWebsite string
	CompanyAddress string
	GMapsRating    *float64
	GMapsReviews   *int

	Name        string
	Title       string
	Platform    string
	ProfileURL  string
	EmailsFound string
	Confidence  Confidence

	UploadedCompanyData string
	LLMInput            string
	SerperQueries       string
	LLMOutput           string
	LLMCallTimestamp    *time.Time
	SerperCallTimestamp *time.Time
}

// JobDTO is the externally-visible job summary.
type JobDTO struct {
	ID                  string     `json:"id"`
	SupportID           string     `json:"support_id"`
	Filename            string     `json:"filename"`
	Status              Status     `json:"status"`
	TotalCompanies      int        `json:"total_companies"`
	ProcessedCompanies  int        `json:"processed_companies"`
	DecisionMakersFound int        `json:"decision_makers_found"`
	CreditsSpent        int        `json:"credits_spent"`
	StopReason          StopReason `json:"stop_reason,omitempty"`
	TotalCostUSD        float64    `json:"total_cost_usd"`
	CostPerContactUSD   float64    `json:"cost_per_contact_usd"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// ExportSnapshot is the durable artifact written to export storage once a
// job reaches a terminal status: the job's summary alongside every
// DecisionMaker row it produced, research and LLM traces included.
type ExportSnapshot struct {
	Job            *JobDTO          `json:"job"`
	DecisionMakers []*DecisionMaker `json:"decision_makers"`
}

// ToDTO projects Job onto its externally-visible summary.
func (j *Job) ToDTO() *JobDTO {
	return &JobDTO{
		ID:                  j.ID,
		SupportID:           j.SupportID,
		Filename:            j.Filename,
		Status:              j.Status,
		TotalCompanies:      j.TotalCompanies,
		ProcessedCompanies:  j.ProcessedCompanies,
		DecisionMakersFound: j.DecisionMakersFound,
		CreditsSpent:        j.CreditsSpent,
		StopReason:          j.StopReason,
		TotalCostUSD:        j.TotalCostUSD,
		CostPerContactUSD:   j.CostPerContactUSD,
		CreatedAt:           j.CreatedAt,
		UpdatedAt:           j.UpdatedAt,
	}
}
