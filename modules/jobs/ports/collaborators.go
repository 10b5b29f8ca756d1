package ports

import (
	"context"
	"time"

	creditservice "github.com/brightleads/dmengine/modules/credits/service"
	researchmodel "github.com/brightleads/dmengine/modules/research/model"
	usersmodel "github.com/brightleads/dmengine/modules/users/model"
)

// ErrExportUnavailable is returned when no ExportWriter was wired (no S3
// configuration), distinguishing that state from a download key that
// genuinely does not exist.
var ErrExportUnavailable = errNotConfigured("export storage not configured")

type errNotConfigured string

func (e errNotConfigured) Error() string { return string(e) }

// Researcher is the subset of the research pipeline the Runner drives per
// row; *research/service.ResearchService satisfies it directly.
type Researcher interface {
	Research(ctx context.Context, in researchmodel.Input) (*researchmodel.Result, error)
}

// CreditSpender is the subset of the credit engine the Runner drives per
// processed row; *credits/service.CreditEngine satisfies it directly.
type CreditSpender interface {
	Spend(ctx context.Context, userID string, amount int, jobID, source string, now time.Time) (*creditservice.SpendResult, error)
}

// UserLookup resolves the stable user id carried on a job to a user
// record, letting the Runner detect a deleted/missing account before
// spending any credits; *users/repository.UserRepository satisfies it
// directly.
type UserLookup interface {
	GetByID(ctx context.Context, userID string) (*usersmodel.User, error)
}

// ExportWriter persists a job's completed result set to durable storage
// once the Runner finishes, keyed by job id, and hands back time-limited
// download links for it; *storage.S3Client satisfies it directly.
type ExportWriter interface {
	PutJSON(ctx context.Context, key string, v any) error
	GeneratePresignedDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// CompletionNotifier sends the job-completion email.
type CompletionNotifier interface {
	SendJobCompletion(ctx context.Context, toEmail, jobID string, decisionMakersFound int) error
}

// ErrorReporter captures unexpected Runner failures for offline triage.
type ErrorReporter interface {
	CaptureError(err error, tags map[string]string)
}

// JobSummaryCache is a short-TTL read-through cache of serialized JobDTO
// payloads, keyed by owner and job id, invalidated on every batch commit
// and on finalize; *internal/platform/redis.Client satisfies it directly.
// A cache miss or error is never load-bearing — callers always fall back
// to the system of record.
type JobSummaryCache interface {
	GetJobSummary(ctx context.Context, userID, jobID string) ([]byte, bool)
	SetJobSummary(ctx context.Context, userID, jobID string, payload []byte, ttl time.Duration)
	InvalidateJobSummary(ctx context.Context, userID, jobID string)
}
