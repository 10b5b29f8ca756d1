// Package service implements the Job Runner: a bounded-concurrency,
// cancellable per-row pipeline over an uploaded table of companies, with
// partial-failure handling, token/cost accounting, and mid-run credit
// enforcement.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/brightleads/dmengine/internal/apperr"
	"github.com/brightleads/dmengine/internal/config"
	"github.com/brightleads/dmengine/internal/platform/logger"
	"github.com/brightleads/dmengine/modules/costs"
	"github.com/brightleads/dmengine/modules/jobs/model"
	"github.com/brightleads/dmengine/modules/jobs/ports"
	"github.com/brightleads/dmengine/modules/normalize"
	researchmodel "github.com/brightleads/dmengine/modules/research/model"
	"github.com/brightleads/dmengine/modules/rules"
	usersmodel "github.com/brightleads/dmengine/modules/users/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var placeholderNames = map[string]bool{
	"unknown": true, "n/a": true, "na": true, "-": true,
	"john doe": true, "jane doe": true,
}

var hallucinatedProfiles = []string{
	"linkedin.com/in/johndoe",
	"linkedin.com/in/janedoe",
}

// JobRunner drives the state machine described for the Job Runner
// component: queued -> processing -> {completed, failed, cancelled}.
type JobRunner struct {
	repo       ports.JobRepository
	researcher ports.Researcher
	credits    ports.CreditSpender
	users      ports.UserLookup
	export     ports.ExportWriter
	mail       ports.CompletionNotifier
	errors     ports.ErrorReporter
	cache      ports.JobSummaryCache
	log        *logger.Logger

	runnerCfg         config.JobRunnerConfig
	llmCfg            config.LLMConfig
	creditsPerCompany int
	serperCostPer1k   float64
}

// NewJobRunner builds a JobRunner. export, mail, errors, and cache may be
// nil — each is a best-effort side effect, never load-bearing for the
// state machine.
func NewJobRunner(
	repo ports.JobRepository,
	researcher ports.Researcher,
	credits ports.CreditSpender,
	users ports.UserLookup,
	export ports.ExportWriter,
	mail ports.CompletionNotifier,
	errors ports.ErrorReporter,
	cache ports.JobSummaryCache,
	log *logger.Logger,
	runnerCfg config.JobRunnerConfig,
	llmCfg config.LLMConfig,
	creditsPerCompany int,
	serperCostPer1k float64,
) *JobRunner {
	return &JobRunner{
		repo: repo, researcher: researcher, credits: credits, users: users,
		export: export, mail: mail, errors: errors, cache: cache, log: log,
		runnerCfg: runnerCfg, llmCfg: llmCfg,
		creditsPerCompany: creditsPerCompany, serperCostPer1k: serperCostPer1k,
	}
}

// Submit validates and persists a freshly uploaded job in status queued.
func (r *JobRunner) Submit(ctx context.Context, userID string, req *model.SubmitJobRequest) (*model.Job, error) {
	if len(req.Rows) == 0 {
		return nil, model.ErrNoRows
	}
	job := &model.Job{
		UserID:            userID,
		Filename:          req.Filename,
		ColumnMappings:    req.ColumnMappings,
		CompaniesData:     req.Rows,
		SelectedPlatforms: req.SelectedPlatforms,
		Options:           req.Options,
	}
	if err := r.repo.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// GetForUser returns a job scoped to its owner.
func (r *JobRunner) GetForUser(ctx context.Context, userID, jobID string) (*model.Job, error) {
	return r.repo.GetForUser(ctx, userID, jobID)
}

// List returns a page of job summaries for a user.
func (r *JobRunner) List(ctx context.Context, userID string, limit, offset int, status string) ([]*model.JobDTO, int, error) {
	return r.repo.List(ctx, userID, limit, offset, status)
}

// Cancel requests cancellation of a non-terminal job owned by userID.
func (r *JobRunner) Cancel(ctx context.Context, userID, jobID string) error {
	return r.repo.RequestCancellation(ctx, userID, jobID)
}

// ExportDownloadURL returns a time-limited link to the job's exported
// result artifact, written once the job reaches a terminal status.
func (r *JobRunner) ExportDownloadURL(ctx context.Context, userID, jobID string) (string, error) {
	job, err := r.repo.GetForUser(ctx, userID, jobID)
	if err != nil {
		return "", err
	}
	if !job.Status.IsTerminal() {
		return "", model.ErrJobNotFinished
	}
	if r.export == nil {
		return "", ports.ErrExportUnavailable
	}
	return r.export.GeneratePresignedDownloadURL(ctx, exportKey(job.ID), 15*time.Minute)
}

func exportKey(jobID string) string {
	return "jobs/" + jobID + "/result.json"
}

// Run executes the per-row pipeline for jobID to completion, cancellation,
// or failure. It is meant to be launched in its own goroutine immediately
// after Submit; the caller does not block on it.
func (r *JobRunner) Run(ctx context.Context, jobID string) {
	log := r.log.WithAction("job_runner.run")

	job, err := r.repo.GetByID(ctx, jobID)
	if err != nil {
		log.Error("load job", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if job.Status == model.StatusCancelled {
		return
	}

	if _, err := r.users.GetByID(ctx, job.UserID); err != nil {
		if errors.Is(err, usersmodel.ErrUserNotFound) {
			_ = r.repo.Finalize(ctx, jobID, model.StatusFailed, model.StopReasonMissingUser)
			return
		}
		r.reportError(err, jobID)
		_ = r.repo.Finalize(ctx, jobID, model.StatusFailed, model.StopReasonCompanyError)
		return
	}

	if err := r.repo.MarkProcessing(ctx, jobID); err != nil {
		return
	}

	concurrency := r.runnerCfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	rows := job.CompaniesData
	finalStatus := model.StatusCompleted
	finalReason := model.StopReasonNone

batches:
	for start := 0; start < len(rows); start += concurrency {
		status, err := r.repo.GetStatus(ctx, jobID)
		if err != nil {
			r.reportError(err, jobID)
			finalStatus, finalReason = model.StatusFailed, model.StopReasonCompanyError
			break batches
		}
		if status == model.StatusCancelled {
			return
		}

		end := start + concurrency
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		outcomes, err := r.researchBatch(ctx, job, batch)
		if err != nil {
			r.reportError(err, jobID)
			finalStatus, finalReason = model.StatusFailed, model.StopReasonCompanyError
			break batches
		}

		decisionMakers, creditsExhausted, err := r.applyOutcomes(ctx, job, outcomes, start)
		if err != nil {
			r.reportError(err, jobID)
			finalStatus, finalReason = model.StatusFailed, model.StopReasonCompanyError
			break batches
		}

		if err := r.repo.CommitBatch(ctx, job, decisionMakers); err != nil {
			r.reportError(err, jobID)
			finalStatus, finalReason = model.StatusFailed, model.StopReasonCompanyError
			break batches
		}
		if r.cache != nil {
			r.cache.InvalidateJobSummary(ctx, job.UserID, job.ID)
		}

		if creditsExhausted {
			finalStatus, finalReason = model.StatusCompleted, model.StopReasonCreditsExhausted
			break batches
		}
	}

	if err := r.repo.Finalize(ctx, jobID, finalStatus, finalReason); err != nil {
		log.Error("finalize job", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if r.cache != nil {
		r.cache.InvalidateJobSummary(ctx, job.UserID, job.ID)
	}

	r.onFinished(ctx, job, finalStatus)
}

// rowOutcome is one row's research result plus the resolved identity used
// to decide whether it is spend-worthy.
type rowOutcome struct {
	resolved   normalize.ResolvedCompany
	rawRow     map[string]string
	result     *researchmodel.Result
	researched bool
}

// researchBatch runs §4.C concurrently across a batch's rows — the
// suspension points are outbound HTTP calls, so the batch is where the
// Runner's bounded parallelism is realized. Any research error other than a
// malformed LLM response or a disabled provider aborts the whole job per the
// row-exception transition.
func (r *JobRunner) researchBatch(ctx context.Context, job *model.Job, batch []map[string]string) ([]rowOutcome, error) {
	outcomes := make([]rowOutcome, len(batch))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	mappings := normalize.ColumnMappings{
		CompanyName:   job.ColumnMappings.CompanyName,
		Location:      job.ColumnMappings.Location,
		GoogleMapsURL: job.ColumnMappings.GoogleMapsURL,
		Website:       job.ColumnMappings.Website,
		Industry:      job.ColumnMappings.Industry,
		City:          job.ColumnMappings.City,
		Country:       job.ColumnMappings.Country,
	}

	for i, row := range batch {
		i, row := i, row
		g.Go(func() error {
			resolved := normalize.NormalizeRow(row, mappings)
			outcome := rowOutcome{resolved: resolved, rawRow: row}
			if resolved.CompanyName == "" {
				mu.Lock()
				outcomes[i] = outcome
				mu.Unlock()
				return nil
			}

			roleKeywords := job.Options.JobTitles
			if len(roleKeywords) == 0 {
				roleKeywords = rules.DecisionMakerQueryKeywords()
			}
			if len(roleKeywords) > 5 {
				roleKeywords = roleKeywords[:5]
			}

			var platforms []string
			if job.Options.DeepSearch {
				platforms = withLinkedInFirst(job.SelectedPlatforms)
			}

			maxPeople := r.runnerCfg.MaxPeopleDefault
			if maxPeople < 1 {
				maxPeople = 1
			}
			if maxPeople > 100 {
				maxPeople = 100
			}

			in := researchmodel.Input{
				Company:        resolved.CompanyName,
				Location:       resolved.LocationHint,
				Website:        resolved.CompanyWebsite,
				CompanyType:    resolved.CompanyType,
				Platforms:      platforms,
				MaxPeople:      maxPeople,
				DeepSearch:     job.Options.DeepSearch,
				RoleKeywords:   roleKeywords,
				MaxSearchCalls: 3,
				ParseMode:      researchmodel.ParseModePeople,
			}

			result, err := r.researcher.Research(gctx, in)
			if err != nil {
				var malformed *apperr.MalformedLLMResponse
				var disabled *apperr.ProviderDisabled
				if errors.As(err, &malformed) || errors.As(err, &disabled) {
					// row yields zero results; trace not available, Runner continues.
					mu.Lock()
					outcomes[i] = outcome
					mu.Unlock()
					return nil
				}
				return err
			}

			outcome.result = result
			outcome.researched = true
			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// applyOutcomes walks a batch's research outcomes in row order, validating
// candidates, accumulating job counters, and spending credits once per
// usable row. startIndex is the row's absolute offset into the job's
// uploaded table, used to give every spend a row-unique source so the
// ledger's per-(user,source) uniqueness constraint never rejects a
// second, equally valid spend in the same job. It stops at the first row
// whose spend raises InsufficientCredits — that row, and everything after
// it, is neither counted into processed_companies nor persisted, matching
// the per-row pipeline's "break out of outer loop" transition. Any other
// error from Spend aborts the whole batch so the Runner can fail the job
// instead of silently dropping a paid-for row.
func (r *JobRunner) applyOutcomes(ctx context.Context, job *model.Job, outcomes []rowOutcome, startIndex int) ([]*model.DecisionMaker, bool, error) {
	var decisionMakers []*model.DecisionMaker
	creditsExhausted := false

	for i, outcome := range outcomes {
		if !outcome.researched || outcome.result == nil {
			job.ProcessedCompanies++
			continue
		}

		trace := outcome.result.Trace
		job.LLMCallsStarted += trace.LLMCalls
		job.LLMCallsSucceeded += trace.LLMCalls
		job.SerperCalls += trace.SerperCalls
		job.LLMPromptTokens += trace.LLMUsage.Final.PromptTokens
		job.LLMCompletionTokens += trace.LLMUsage.Final.CompletionTokens
		job.LLMTotalTokens += trace.LLMUsage.Final.TotalTokens
		if trace.LLMUsage.Plan != nil {
			job.LLMPromptTokens += trace.LLMUsage.Plan.PromptTokens
			job.LLMCompletionTokens += trace.LLMUsage.Plan.CompletionTokens
			job.LLMTotalTokens += trace.LLMUsage.Plan.TotalTokens
		}

		valid := validCandidates(outcome.result.People, job.Options.JobTitles)
		if len(valid) == 0 {
			job.ProcessedCompanies++
			continue
		}

		source := fmt.Sprintf("job:%s:%d", job.ID, startIndex+i)
		_, err := r.credits.Spend(ctx, job.UserID, r.creditsPerCompany, job.ID, source, time.Now())
		if err != nil {
			var insufficient *apperr.InsufficientCredits
			if errors.As(err, &insufficient) {
				creditsExhausted = true
				break
			}
			return decisionMakers, false, fmt.Errorf("spend credits for row %d of job %s: %w", startIndex+i, job.ID, err)
		}
		job.CreditsSpent += r.creditsPerCompany

		for _, person := range valid {
			decisionMakers = append(decisionMakers, buildDecisionMaker(job, outcome, person, trace))
		}
		job.DecisionMakersFound += len(valid)
		job.ProcessedCompanies++
	}

	fields := costs.Compute(
		job.LLMPromptTokens, job.LLMCompletionTokens, job.SerperCalls, job.DecisionMakersFound,
		r.llmCfg.InputCostPerM, r.llmCfg.OutputCostPerM, r.serperCostPer1k,
	)
	job.LLMCostUSD = fields.LLMCostUSD
	job.SerperCostUSD = fields.SerperCostUSD
	job.TotalCostUSD = fields.TotalCostUSD
	job.CostPerContactUSD = fields.CostPerContactUSD

	return decisionMakers, creditsExhausted, nil
}

func validCandidates(people []researchmodel.Person, jobTitles []string) []researchmodel.Person {
	var out []researchmodel.Person
	for _, p := range people {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" || placeholderNames[name] {
			continue
		}
		profile := strings.ToLower(p.ProfileURL)
		hallucinated := false
		for _, bad := range hallucinatedProfiles {
			if strings.Contains(profile, bad) {
				hallucinated = true
				break
			}
		}
		if hallucinated {
			continue
		}
		if len(jobTitles) > 0 {
			if !rules.TitleMatchesKeywords(p.Title, jobTitles) {
				continue
			}
		} else if ok, _ := rules.IsDecisionMakerTitle(p.Title); !ok {
			continue
		}
		out = append(out, p)
	}
	return out
}

func buildDecisionMaker(job *model.Job, outcome rowOutcome, person researchmodel.Person, trace researchmodel.Trace) *model.DecisionMaker {
	resolved := outcome.resolved
	companyWebsite := normalize.ResolveForSave(resolved.CompanyWebsite, person.CompanyWeb, "")
	companyType := normalize.ResolveForSave(resolved.CompanyType, person.CompanyType, "")
	companyAddress := normalize.ResolveForSave(resolved.CompanyAddress, person.CompanyAddr, "")

	emails := dedupeLowerCapped(person.EmailsFound, 25)

	uploaded, _ := json.Marshal(outcome.rawRow)
	llmInput, _ := json.Marshal(trace.LLMInput)
	serperQueries, _ := json.Marshal(trace.SerperQueries)
	llmOutput, _ := json.Marshal(trace.LLMOutput)

	return &model.DecisionMaker{
		JobID:          job.ID,
		UserID:         job.UserID,
		CompanyName:    resolved.CompanyName,
		CompanyType:    companyType,
		CompanyCity:    resolved.CompanyCity,
		CompanyCountry: resolved.CompanyCountry,
		CompanyWebsite: companyWebsite,
		CompanyAddress: companyAddress,
		GMapsRating:    person.GMapsRating,
		GMapsReviews:   person.GMapsReviews,

		Name:        person.Name,
		Title:       person.Title,
		Platform:    person.Platform,
		ProfileURL:  person.ProfileURL,
		EmailsFound: strings.Join(emails, ","),
		Confidence:  model.Confidence(person.Confidence),

		UploadedCompanyData: string(uploaded),
		LLMInput:            string(llmInput),
		SerperQueries:       string(serperQueries),
		LLMOutput:           string(llmOutput),
		LLMCallTimestamp:    trace.LLMCallTimestamp,
		SerperCallTimestamp: trace.SerperCallTimestamp,
	}
}

func dedupeLowerCapped(in []string, cap int) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		l := strings.ToLower(strings.TrimSpace(e))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
		if len(out) >= cap {
			break
		}
	}
	return out
}

func withLinkedInFirst(platforms []string) []string {
	out := []string{"linkedin"}
	for _, p := range platforms {
		if strings.EqualFold(p, "linkedin") {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (r *JobRunner) reportError(err error, jobID string) {
	r.log.WithAction("job_runner.run").Error("row pipeline error", zap.String("job_id", jobID), zap.Error(err))
	if r.errors != nil {
		r.errors.CaptureError(err, map[string]string{"job_id": jobID})
	}
}

// onFinished fires the best-effort side effects once a job reaches a
// terminal status: export artifact write and completion email. Neither
// failure affects the already-committed job state.
func (r *JobRunner) onFinished(ctx context.Context, job *model.Job, status model.Status) {
	log := r.log.WithAction("job_runner.finished")

	if r.export != nil {
		decisionMakers, err := r.repo.ListDecisionMakers(ctx, job.ID)
		if err != nil {
			log.Warn("load decision makers for export", zap.String("job_id", job.ID), zap.Error(err))
		} else {
			snapshot := &model.ExportSnapshot{Job: job.ToDTO(), DecisionMakers: decisionMakers}
			if err := r.export.PutJSON(ctx, exportKey(job.ID), snapshot); err != nil {
				log.Warn("export job result", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}

	if r.mail != nil && status == model.StatusCompleted {
		user, err := r.users.GetByID(ctx, job.UserID)
		if err == nil {
			if err := r.mail.SendJobCompletion(ctx, user.Email, job.ID, job.DecisionMakersFound); err != nil {
				log.Warn("send completion email", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}
}
