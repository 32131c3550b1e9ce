package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/ai/stub"
	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
)

const cloudJD = "Cloud Platform Engineer\nWe need AWS and Kubernetes with 5 years experience."

func alice() domain.Resume {
	return domain.Resume{
		ID: "r-a", Name: "Alice", Role: "Platform Engineer", ExperienceYears: 9,
		Skills: []string{"AWS", "Kubernetes"}, RawText: "Ran Kubernetes clusters on AWS for payments.",
		SourceType: "upload",
	}
}

func bob() domain.Resume {
	return domain.Resume{
		ID: "r-b", Name: "Bob", Role: "Support Analyst", ExperienceYears: 1,
		Skills: []string{"Excel"}, RawText: "Helpdesk tickets and reporting.",
		SourceType: "upload",
	}
}

type resumeRepo struct {
	resumes []domain.Resume
	err     error
	filters []domain.ResumeFilter
}

func (r *resumeRepo) ListCandidates(_ domain.Context, f domain.ResumeFilter) ([]domain.Resume, error) {
	r.filters = append(r.filters, f)
	return r.resumes, r.err
}

type analysesRepo struct {
	mu        sync.Mutex
	ensured   []domain.Analysis
	updated   []domain.Analysis
	reports   map[string]domain.AnalysisReport
	ensureErr error
	updateErr error
	saveErr   error
}

func newAnalysesRepo() *analysesRepo {
	return &analysesRepo{reports: map[string]domain.AnalysisReport{}}
}

func (r *analysesRepo) Ensure(_ domain.Context, a domain.Analysis) (domain.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ensureErr != nil {
		return domain.Analysis{}, r.ensureErr
	}
	r.ensured = append(r.ensured, a)
	return a, nil
}

func (r *analysesRepo) UpdateRequirements(_ domain.Context, a domain.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, a)
	return r.updateErr
}

func (r *analysesRepo) SaveReport(_ domain.Context, jobID string, rep domain.AnalysisReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.reports[jobID] = rep
	return nil
}

func (r *analysesRepo) GetReport(_ domain.Context, jobID string) (domain.AnalysisReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[jobID]
	if !ok {
		return domain.AnalysisReport{}, domain.ErrNotFound
	}
	return rep, nil
}

func (r *analysesRepo) List(_ domain.Context, limit int) ([]domain.AnalysisSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.AnalysisSummary{}
	for id, rep := range r.reports {
		if len(out) == limit {
			break
		}
		out = append(out, domain.AnalysisSummary{JobID: id, Role: rep.JDRole, ResultCount: len(rep.Results)})
	}
	return out, nil
}

// countingLLM wraps the stub client, counts calls per prompt kind and can
// fail evidence prompts that contain a marker.
type countingLLM struct {
	inner        *stub.Client
	structure    atomic.Int32
	evidence     atomic.Int32
	failEvidence string
	delay        time.Duration
	inFlight     atomic.Int32
	maxInFlight  atomic.Int32
}

func newCountingLLM() *countingLLM { return &countingLLM{inner: stub.New()} }

func (c *countingLLM) ChatJSON(ctx domain.Context, sys, user string, maxTokens int) (string, error) {
	if strings.HasPrefix(user, "Dimension library:") {
		c.structure.Add(1)
		return c.inner.ChatJSON(ctx, sys, user, maxTokens)
	}
	c.evidence.Add(1)
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		m := c.maxInFlight.Load()
		if n <= m || c.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.failEvidence != "" && strings.Contains(user, c.failEvidence) {
		return "", errors.New("upstream 503")
	}
	return c.inner.ChatJSON(ctx, sys, user, maxTokens)
}

type mockLLM struct{ mock.Mock }

func (m *mockLLM) ChatJSON(ctx domain.Context, sys, user string, maxTokens int) (string, error) {
	args := m.Called(ctx, sys, user, maxTokens)
	return args.String(0), args.Error(1)
}

// flakyCache fails every lookup or store while delegating the rest.
type flakyCache struct {
	domain.MatchCache
	lookupErr error
	storeErr  error
	stores    atomic.Int32
}

func (f *flakyCache) LookupMany(ctx domain.Context, h string, ids []string) (map[string]domain.MatchResult, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.MatchCache.LookupMany(ctx, h, ids)
}

func (f *flakyCache) Store(ctx domain.Context, m domain.MatchResult) error {
	f.stores.Add(1)
	if f.storeErr != nil {
		return f.storeErr
	}
	return f.MatchCache.Store(ctx, m)
}

type fakeQueue struct {
	mock.Mock
}

func (q *fakeQueue) EnqueueAnalysis(ctx domain.Context, req domain.AnalyzeRequest) (string, error) {
	args := q.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func ctxTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
