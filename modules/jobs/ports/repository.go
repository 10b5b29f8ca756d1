package ports

import (
	"context"

	"github.com/brightleads/dmengine/modules/jobs/model"
)

// JobRepository defines the interface for job data access. Every method
// that can observe or mutate status is safe to call concurrently with the
// Runner: status transitions are enforced with a WHERE clause on the
// current status, never a blind UPDATE.
type JobRepository interface {
	// Create persists a freshly submitted job in status queued.
	Create(ctx context.Context, job *model.Job) error

	// GetByID loads a job without user scoping, for internal Runner use.
	GetByID(ctx context.Context, jobID string) (*model.Job, error)

	// GetForUser loads a job scoped to its owner, for the HTTP surface.
	GetForUser(ctx context.Context, userID, jobID string) (*model.Job, error)

	// List returns a page of job summaries for a user.
	List(ctx context.Context, userID string, limit, offset int, status string) ([]*model.JobDTO, int, error)

	// GetStatus is a lightweight poll used at batch boundaries to detect an
	// externally requested cancellation.
	GetStatus(ctx context.Context, jobID string) (model.Status, error)

	// MarkProcessing transitions queued -> processing. Returns
	// model.ErrAlreadyTerminal if the job is no longer queued (e.g. it was
	// already cancelled before pickup).
	MarkProcessing(ctx context.Context, jobID string) error

	// RequestCancellation transitions a non-terminal job to cancelled.
	// Returns model.ErrAlreadyTerminal if it is already in a terminal
	// status.
	RequestCancellation(ctx context.Context, userID, jobID string) error

	// CommitBatch persists one batch's DecisionMaker rows and advances the
	// job's counters and cost fields, all within one transaction. It never
	// touches status.
	CommitBatch(ctx context.Context, job *model.Job, decisionMakers []*model.DecisionMaker) error

	// Finalize transitions a non-terminal job to a terminal status with the
	// given stop reason. A job already in a terminal status is left as it is.
	Finalize(ctx context.Context, jobID string, status model.Status, reason model.StopReason) error

	// ListDecisionMakers returns every DecisionMaker row persisted for a
	// job, in insertion order, for building the terminal export snapshot.
	ListDecisionMakers(ctx context.Context, jobID string) ([]*model.DecisionMaker, error)
}
