package usecase

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// ResultService provides read access to stored analysis reports.
type ResultService struct {
	Analyses domain.AnalysisRepository
}

// NewResultService constructs a ResultService with the given repository.
func NewResultService(a domain.AnalysisRepository) ResultService {
	return ResultService{Analyses: a}
}

// Get returns the latest report of a job id.
func (s ResultService) Get(ctx domain.Context, jobID string) (domain.AnalysisReport, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return domain.AnalysisReport{}, fmt.Errorf("%w: job_id required", domain.ErrInvalidArgument)
	}
	rep, err := s.Analyses.GetReport(ctx, jobID)
	if err != nil {
		slog.Debug("analysis report lookup failed", slog.String("job_id", jobID), slog.Any("error", err))
		return domain.AnalysisReport{}, err
	}
	return rep, nil
}

// List returns the most recent analyses, newest first. A zero limit means
// the default page size.
func (s ResultService) List(ctx domain.Context, limit int) ([]domain.AnalysisSummary, error) {
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	if limit < 1 || limit > maxHistoryLimit {
		return nil, fmt.Errorf("%w: limit must be within 1..%d", domain.ErrInvalidArgument, maxHistoryLimit)
	}
	return s.Analyses.List(ctx, limit)
}
