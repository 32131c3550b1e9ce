package usecase

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	obsmetrics "github.com/fairyhunter13/ai-jd-matcher/internal/adapter/observability"
	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/internal/service/scoring"
)

// StatusQueued is reported for accepted asynchronous analyses.
const StatusQueued = "queued"

// Submission acknowledges an asynchronous analysis. The job id is derived
// from the JD text, so callers can poll the result before a worker has
// picked the request up.
type Submission struct {
	SubmissionID string `json:"submission_id"`
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
}

// SubmitService validates analyses and hands them to the queue.
type SubmitService struct {
	Queue       domain.AnalysisQueue
	DefaultTopN int
	newID       func() string
}

// NewSubmitService constructs a SubmitService.
func NewSubmitService(q domain.AnalysisQueue, defaultTopN int) SubmitService {
	return SubmitService{Queue: q, DefaultTopN: defaultTopN, newID: uuid.NewString}
}

// Submit normalizes req, assigns a submission id and enqueues it.
func (s SubmitService) Submit(ctx domain.Context, req domain.AnalyzeRequest) (Submission, error) {
	req, err := NormalizeRequest(req, s.DefaultTopN)
	if err != nil {
		return Submission{}, err
	}
	newID := s.newID
	if newID == nil {
		newID = uuid.NewString
	}
	req.SubmissionID = newID()
	if _, err := s.Queue.EnqueueAnalysis(ctx, req); err != nil {
		slog.Error("analysis enqueue failed", slog.String("submission_id", req.SubmissionID), slog.Any("error", err))
		return Submission{}, fmt.Errorf("op=submit.enqueue: %w", err)
	}
	obsmetrics.EnqueueAnalysis()
	return Submission{
		SubmissionID: req.SubmissionID,
		JobID:        scoring.JobID(scoring.JDHash(req.JDText)),
		Status:       StatusQueued,
	}, nil
}
