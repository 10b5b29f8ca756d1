// Package repository implements the Job Runner's persistence boundary on
// top of pgx: job lifecycle transitions guarded by a WHERE on the current
// status, and per-batch commits that insert DecisionMaker rows alongside
// the job's advancing counters in one transaction.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/brightleads/dmengine/modules/jobs/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JobRepository implements ports.JobRepository.
type JobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository.
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *model.Job) error {
	job.ID = uuid.New().String()
	job.SupportID = strings.ToUpper(uuid.New().String()[:8])
	job.Status = model.StatusQueued
	job.TotalCompanies = len(job.CompaniesData)
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	columnMappings, err := json.Marshal(job.ColumnMappings)
	if err != nil {
		return err
	}
	companiesData, err := json.Marshal(job.CompaniesData)
	if err != nil {
		return err
	}
	selectedPlatforms, err := json.Marshal(job.SelectedPlatforms)
	if err != nil {
		return err
	}
	options, err := json.Marshal(job.Options)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO jobs (
			id, user_id, support_id, filename, status, total_companies,
			column_mappings, companies_data, selected_platforms, options,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, job.ID, job.UserID, job.SupportID, job.Filename, job.Status, job.TotalCompanies,
		columnMappings, companiesData, selectedPlatforms, options, job.CreatedAt, job.UpdatedAt)
	return err
}

const selectJobColumns = `
	id, user_id, support_id, filename, status, total_companies, processed_companies,
	decision_makers_found, credits_spent, stop_reason, column_mappings, companies_data,
	selected_platforms, options, llm_calls_started, llm_calls_succeeded, serper_calls,
	llm_prompt_tokens, llm_completion_tokens, llm_total_tokens, llm_cost_usd,
	serper_cost_usd, total_cost_usd, cost_per_contact_usd, created_at, updated_at
`

func scanJob(row pgx.Row) (*model.Job, error) {
	j := &model.Job{}
	var columnMappings, companiesData, selectedPlatforms, options []byte
	err := row.Scan(
		&j.ID, &j.UserID, &j.SupportID, &j.Filename, &j.Status, &j.TotalCompanies, &j.ProcessedCompanies,
		&j.DecisionMakersFound, &j.CreditsSpent, &j.StopReason, &columnMappings, &companiesData,
		&selectedPlatforms, &options, &j.LLMCallsStarted, &j.LLMCallsSucceeded, &j.SerperCalls,
		&j.LLMPromptTokens, &j.LLMCompletionTokens, &j.LLMTotalTokens, &j.LLMCostUSD,
		&j.SerperCostUSD, &j.TotalCostUSD, &j.CostPerContactUSD, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(columnMappings, &j.ColumnMappings); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(companiesData, &j.CompaniesData); err != nil {
		return nil, err
	}
	if len(selectedPlatforms) > 0 {
		if err := json.Unmarshal(selectedPlatforms, &j.SelectedPlatforms); err != nil {
			return nil, err
		}
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &j.Options); err != nil {
			return nil, err
		}
	}
	return j, nil
}

func (r *JobRepository) GetByID(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := scanJob(r.pool.QueryRow(ctx, `SELECT `+selectJobColumns+` FROM jobs WHERE id = $1`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrJobNotFound
	}
	return job, err
}

func (r *JobRepository) GetForUser(ctx context.Context, userID, jobID string) (*model.Job, error) {
	job, err := scanJob(r.pool.QueryRow(ctx, `SELECT `+selectJobColumns+` FROM jobs WHERE id = $1 AND user_id = $2`, jobID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrJobNotFound
	}
	return job, err
}

func (r *JobRepository) List(ctx context.Context, userID string, limit, offset int, status string) ([]*model.JobDTO, int, error) {
	whereClause := "user_id = $1"
	args := []any{userID}
	if status != "" && status != "all" {
		whereClause += " AND status = $2"
		args = append(args, status)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM jobs WHERE ` + whereClause
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limitPos := len(args) + 1
	offsetPos := len(args) + 2
	args = append(args, limit, offset)
	query := `
		SELECT id, support_id, filename, status, total_companies, processed_companies,
			decision_makers_found, credits_spent, stop_reason, total_cost_usd,
			cost_per_contact_usd, created_at, updated_at
		FROM jobs WHERE ` + whereClause + `
		ORDER BY created_at DESC
		LIMIT $` + strconv.Itoa(limitPos) + ` OFFSET $` + strconv.Itoa(offsetPos)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []*model.JobDTO
	for rows.Next() {
		dto := &model.JobDTO{}
		if err := rows.Scan(
			&dto.ID, &dto.SupportID, &dto.Filename, &dto.Status, &dto.TotalCompanies, &dto.ProcessedCompanies,
			&dto.DecisionMakersFound, &dto.CreditsSpent, &dto.StopReason, &dto.TotalCostUSD,
			&dto.CostPerContactUSD, &dto.CreatedAt, &dto.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, dto)
	}
	return jobs, total, rows.Err()
}

func (r *JobRepository) GetStatus(ctx context.Context, jobID string) (model.Status, error) {
	var status model.Status
	err := r.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, jobID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", model.ErrJobNotFound
	}
	return status, err
}

func (r *JobRepository) MarkProcessing(ctx context.Context, jobID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3
	`, jobID, model.StatusProcessing, model.StatusQueued)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAlreadyTerminal
	}
	return nil
}

func (r *JobRepository) RequestCancellation(ctx context.Context, userID, jobID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status NOT IN ($4, $5, $6)
	`, jobID, userID, model.StatusCancelled, model.StatusCompleted, model.StatusFailed, model.StatusCancelled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAlreadyTerminal
	}
	return nil
}

// CommitBatch inserts every DecisionMaker row from one batch and advances
// the job's counters and cost fields in a single transaction. Status is
// never touched here; the caller owns the state machine.
func (r *JobRepository) CommitBatch(ctx context.Context, job *model.Job, decisionMakers []*model.DecisionMaker) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, dm := range decisionMakers {
		if _, err := tx.Exec(ctx, `
			INSERT INTO decision_makers (
				job_id, user_id, company_name, company_type, company_city, company_country,
				company_website, company_address, gmaps_rating, gmaps_reviews, name, title,
				platform, profile_url, emails_found, confidence_score, uploaded_company_data,
				llm_input, serper_queries, llm_output, llm_call_timestamp, serper_call_timestamp
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		`, dm.JobID, dm.UserID, dm.CompanyName, dm.CompanyType, dm.CompanyCity, dm.CompanyCountry,
			dm.CompanyWebsite, dm.CompanyAddress, dm.GMapsRating, dm.GMapsReviews, dm.Name, dm.Title,
			dm.Platform, dm.ProfileURL, dm.EmailsFound, dm.Confidence, dm.UploadedCompanyData,
			dm.LLMInput, dm.SerperQueries, dm.LLMOutput, dm.LLMCallTimestamp, dm.SerperCallTimestamp,
		); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE jobs SET
			processed_companies = $2, decision_makers_found = $3, credits_spent = $4,
			llm_calls_started = $5, llm_calls_succeeded = $6, serper_calls = $7,
			llm_prompt_tokens = $8, llm_completion_tokens = $9, llm_total_tokens = $10,
			llm_cost_usd = $11, serper_cost_usd = $12, total_cost_usd = $13,
			cost_per_contact_usd = $14, updated_at = NOW()
		WHERE id = $1
	`, job.ID, job.ProcessedCompanies, job.DecisionMakersFound, job.CreditsSpent,
		job.LLMCallsStarted, job.LLMCallsSucceeded, job.SerperCalls,
		job.LLMPromptTokens, job.LLMCompletionTokens, job.LLMTotalTokens,
		job.LLMCostUSD, job.SerperCostUSD, job.TotalCostUSD, job.CostPerContactUSD)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *JobRepository) Finalize(ctx context.Context, jobID string, status model.Status, reason model.StopReason) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, stop_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($4, $5, $6)
	`, jobID, status, reason, model.StatusCompleted, model.StatusFailed, model.StatusCancelled)
	return err
}

const selectDecisionMakerColumns = `
	id, job_id, user_id, company_name, company_type, company_city, company_country,
	company_website, company_address, gmaps_rating, gmaps_reviews, name, title,
	platform, profile_url, emails_found, confidence_score, uploaded_company_data,
	llm_input, serper_queries, llm_output, llm_call_timestamp, serper_call_timestamp
`

func (r *JobRepository) ListDecisionMakers(ctx context.Context, jobID string) ([]*model.DecisionMaker, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+selectDecisionMakerColumns+` FROM decision_makers WHERE job_id = $1 ORDER BY id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.DecisionMaker
	for rows.Next() {
		dm := &model.DecisionMaker{}
		if err := rows.Scan(
			&dm.ID, &dm.JobID, &dm.UserID, &dm.CompanyName, &dm.CompanyType, &dm.CompanyCity, &dm.CompanyCountry,
			&dm.CompanyWebsite, &dm.CompanyAddress, &dm.GMapsRating, &dm.GMapsReviews, &dm.Name, &dm.Title,
			&dm.Platform, &dm.ProfileURL, &dm.EmailsFound, &dm.Confidence, &dm.UploadedCompanyData,
			&dm.LLMInput, &dm.SerperQueries, &dm.LLMOutput, &dm.LLMCallTimestamp, &dm.SerperCallTimestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, dm)
	}
	return out, rows.Err()
}
