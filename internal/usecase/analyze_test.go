package usecase_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/cache/memory"
	"github.com/fairyhunter13/ai-jd-matcher/internal/dimension"
	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/internal/service/extraction"
	"github.com/fairyhunter13/ai-jd-matcher/internal/service/prefilter"
	"github.com/fairyhunter13/ai-jd-matcher/internal/service/scoring"
	"github.com/fairyhunter13/ai-jd-matcher/internal/usecase"
)

type fixture struct {
	llm      *countingLLM
	resumes  *resumeRepo
	analyses *analysesRepo
	cache    *memory.MatchCache
	svc      *usecase.AnalyzeService
}

func newFixture(resumes ...domain.Resume) *fixture {
	f := &fixture{
		llm:      newCountingLLM(),
		resumes:  &resumeRepo{resumes: resumes},
		analyses: newAnalysesRepo(),
		cache:    memory.New(),
	}
	f.svc = usecase.NewAnalyzeService(f.resumes, f.analyses, f.cache, extraction.New(f.llm, dimension.Default()), usecase.AnalyzeOptions{
		Concurrency: 3,
		Prefilter:   prefilter.DefaultOptions(),
		DefaultTopN: 10,
	})
	return f
}

func TestAnalyze_EndToEnd(t *testing.T) {
	ctx, cancel := ctxTimeout()
	defer cancel()
	f := newFixture(bob(), alice())

	rep, err := f.svc.Analyze(ctx, domain.AnalyzeRequest{JDText: cloudJD, MinScore: 10, SourceTypes: []string{"upload"}})
	require.NoError(t, err)

	jdHash := scoring.JDHash(cloudJD)
	assert.Equal(t, jdHash, rep.JDHash)
	assert.Equal(t, scoring.JobID(jdHash), rep.JobID)
	assert.Equal(t, "Cloud Platform Engineer", rep.JDRole)
	assert.Equal(t, "Manual Entry", rep.JDFilename)
	assert.Equal(t, domain.EngineVersion, rep.EngineVersion)
	assert.Equal(t, 2, rep.TotalResumesAnalyzed)
	assert.Equal(t, 2, rep.Shortlisted)
	assert.Equal(t, []domain.ResumeFilter{{SourceTypes: []string{"upload"}}}, f.resumes.filters)

	require.Len(t, rep.Dimensions, 3)
	assert.Equal(t, domain.DimensionWeight{DimensionID: "experience_seniority", Label: "Experience & Seniority", Weight: 33, Priority: domain.PriorityMust}, rep.Dimensions[0])
	assert.Equal(t, domain.DimensionID("cloud_architecture"), rep.Dimensions[2].DimensionID)
	assert.Equal(t, 34, rep.Dimensions[2].Weight)
	assert.Equal(t, domain.JDRequirements{MinExperienceYears: 5, RequiredSkills: []string{"AWS", "Kubernetes"}, PreferredSkills: []string{}}, rep.Requirements)

	weights := domain.Weights{"experience_seniority": 33, "core_technical_skills": 33, "cloud_architecture": 34}
	assert.Equal(t, scoring.StructureHash(jdHash, weights), rep.StructureHash)

	require.Len(t, rep.Results, 2)
	a, b := rep.Results[0], rep.Results[1]
	assert.Equal(t, "r-a", a.ResumeID)
	assert.Equal(t, "Alice", a.Candidate)
	assert.Equal(t, 91, a.TotalScore)
	assert.GreaterOrEqual(t, a.TotalScore, 80)
	assert.Equal(t, domain.Breakdown{"experience_seniority": 30, "core_technical_skills": 30, "cloud_architecture": 31}, a.ScoreBreakdown)
	assert.Equal(t, []string{"AWS", "Kubernetes"}, a.MatchedSkills)
	assert.Empty(t, a.MissingSkills)
	assert.Equal(t, []string{"AWS", "Kubernetes"}, a.EvidenceSkills)
	assert.Contains(t, a.Explanation, "Scored 91/100")
	assert.False(t, a.Cached)
	assert.False(t, a.Fallback)

	assert.Equal(t, "r-b", b.ResumeID)
	assert.Equal(t, 24, b.TotalScore)
	assert.Equal(t, 0, b.ScoreBreakdown["cloud_architecture"])
	assert.Equal(t, []string{"AWS", "Kubernetes"}, b.MissingSkills)
	assert.Contains(t, b.Explanation, "Main gap is AWS")

	assert.Equal(t, "Alice is the stronger match for this JD.", rep.Recommendation)
	assert.Equal(t, int32(1), f.llm.structure.Load())
	assert.Equal(t, int32(2), f.llm.evidence.Load())
	assert.Equal(t, 2, f.cache.Len())

	require.Len(t, f.analyses.updated, 1)
	assert.Equal(t, "Cloud Platform Engineer", f.analyses.updated[0].Role)
	assert.Equal(t, []string{"AWS", "Kubernetes"}, f.analyses.updated[0].Keywords)
	saved, err := f.analyses.GetReport(ctx, rep.JobID)
	require.NoError(t, err)
	assert.Equal(t, rep.Results, saved.Results)
}

func TestAnalyze_SecondRunUsesCache(t *testing.T) {
	ctx, cancel := ctxTimeout()
	defer cancel()
	f := newFixture(alice(), bob())

	first, err := f.svc.Analyze(ctx, domain.AnalyzeRequest{JDText: cloudJD})
	require.NoError(t, err)
	second, err := f.svc.Analyze(ctx, domain.AnalyzeRequest{JDText: "  Cloud Platform Engineer\n\nWe need AWS and Kubernetes   with 5 years experience. "})
	require.NoError(t, err)

	assert.Equal(t, first.StructureHash, second.StructureHash)
	assert.Equal(t, int32(2), f.llm.structure.Load())
	assert.Equal(t, int32(2), f.llm.evidence.Load())
	require.Len(t, second.Results, 2)
	for i := range second.Results {
		assert.True(t, second.Results[i].Cached)
		assert.Equal(t, first.Results[i].TotalScore, second.Results[i].TotalScore)
		assert.Equal(t, first.Results[i].Explanation, second.Results[i].Explanation)
	}
}

func TestAnalyze_EvidenceFailureFallsBackToKeywordScore(t *testing.T) {
	ctx, cancel := ctxTimeout()
	defer cancel()
	f := newFixture(alice(), bob())
	f.llm.failEvidence = "Helpdesk"

	rep, err := f.svc.Analyze(ctx, domain.AnalyzeRequest{JDText: cloudJD, MinScore: 0})
	require.NoError(t, err)
	require.Len(t, rep.Results, 2)

	assert.Equal(t, 91, rep.Results[0].TotalScore)
	b := rep.Results[1]
	assert.True(t, b.Fallback)
	assert.Equal(t, 2, b.TotalScore)
	assert.Empty(t, b.ScoreBreakdown)
	assert.NotNil(t, b.EvidenceSkills)
	assert.Contains(t, b.Explanation, "Main gap is AWS")
	assert.Equal(t, 1, f.cache.Len(), "fallback results are not cached")
}

func TestAnalyze_MinScoreFallsBackToTopN(t *testing.T) {
	ctx, cancel := ctxTimeout()
	defer cancel()
	f := newFixture(alice(), bob())

	rep, err := f.svc.Analyze(ctx, domain.AnalyzeRequest{JDText: cloudJD, MinScore: 95, TopN: 1})
	require.NoError(t, err)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, "r-a", rep.Results[0].ResumeID)
	assert.Equal(t, "Alice is the stronger match for this JD.", rep.Recommendation)
}

func TestAnalyze_EmptyPool(t *testing.T) {
	ctx, cancel := ctxTimeout()
	defer cancel()
	f := newFixture()

	rep, err := f.svc.Analyze(ctx, domain.AnalyzeRequest{JDText: cloudJD})
	require.NoError(t, err)
	assert.Empty(t, rep.Results)
	assert.NotNil(t, rep.Results)
	assert.Equal(t, "No suitable candidates found for this JD.", rep.Recommendation)
	assert.Equal(t, int32(0), f.llm.evidence.Load())
}

func TestAnalyze_ConfigurationErrorIsFatal(t *testing.T) {
	ctx, cancel := ctxTimeout()
	defer cancel()
	llm := &mockLLM{}
	llm.On("ChatJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", fmt.Errorf("%w: LLM_API_KEY missing", domain.ErrConfiguration)).Once()
	resumes := &resumeRepo{resumes: []domain.Resume{alice()}}
	analyses := newAnalysesRepo()
	svc := usecase.NewAnalyzeService(resumes, analyses, memory.New(), extraction.New(llm, dimension.Default()), usecase.AnalyzeOptions{})

	_, err := svc.Analyze(ctx, domain.AnalyzeRequest{JDText: cloudJD})
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.False(t, errors.Is(err, domain.ErrExtractionFailed))
	assert.Empty(t, resumes.filters)
	assert.Empty(t, analyses.reports)
	llm.AssertExpectations(t)
}

func TestAnalyze_UnknownDimensionIsExtractionFailure(t *testing.T) {
	ctx, cancel := ctxTimeout()
	defer cancel()
	llm := &mockLLM{}
	llm.On("ChatJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(`{"jd_role":"x","min_experience_years":1,"selected_dimensions":[{"dimension_id":"quantum_computing","priority":"MUST","required_skills":[],"preferred_skills":[]}]}`, nil)
	resumes := &resumeRepo{resumes: []domain.Resume{alice()}}
	svc := usecase.NewAnalyzeService(resumes, nil, memory.New(), extraction.New(llm, dimension.Default()), usecase.AnalyzeOptions{})

	_, err := svc.Analyze(ctx, domain.AnalyzeRequest{JDText: cloudJD})
	require.ErrorIs(t, err, domain.ErrExtractionFailed)
	assert.Empty(t, resumes.filters)
}

func TestAnalyze_InvalidRequests(t *testing.T) {
	ctx, cancel := ctxTimeout()
	defer cancel()
	f := newFixture(alice())

	tests := []domain.AnalyzeRequest{
		{JDText: "  \n\t "},
		{JDText: cloudJD, MinScore: -1},
		{JDText: cloudJD, MinScore: 101},
		{JDText: cloudJD, TopN: 51},
		{JDText: cloudJD, TopN: -2},
	}
	for _, req := range tests {
		_, err := f.svc.Analyze(ctx, req)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, "%+v", req)
	}
	assert.Equal(t, int32(0), f.llm.structure.Load())
}

func TestAnalyze_CacheFailuresDegrade(t *testing.T) {
	ctx, cancel := ctxTimeout()
	defer cancel()
	f := newFixture(alice(), bob())
	cache := &flakyCache{MatchCache: memory.New(), lookupErr: errors.New("db down"), storeErr: errors.New("duplicate key")}
	f.svc.Cache = cache

	rep, err := f.svc.Analyze(ctx, domain.AnalyzeRequest{JDText: cloudJD})
	require.NoError(t, err)
	require.Len(t, rep.Results, 2)
	assert.Equal(t, 91, rep.Results[0].TotalScore)
	assert.Equal(t, int32(2), cache.stores.Load())
}

func TestAnalyze_RepositoryFailures(t *testing.T) {
	ctx, cancel := ctxTimeout()
	defer cancel()

	f := newFixture(alice())
	f.analyses.ensureErr = errors.New("conn refused")
	_, err := f.svc.Analyze(ctx, domain.AnalyzeRequest{JDText: cloudJD})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=analyze.ensure")

	f = newFixture(alice())
	f.resumes.err = errors.New("timeout")
	_, err = f.svc.Analyze(ctx, domain.AnalyzeRequest{JDText: cloudJD})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=analyze.list_candidates")

	f = newFixture(alice())
	f.analyses.updateErr = domain.ErrNotFound
	f.analyses.saveErr = errors.New("disk full")
	rep, err := f.svc.Analyze(ctx, domain.AnalyzeRequest{JDText: cloudJD})
	require.NoError(t, err)
	assert.Len(t, rep.Results, 1)
}

func TestAnalyze_BoundsConcurrentEvidenceCalls(t *testing.T) {
	ctx, cancel := ctxTimeout()
	defer cancel()
	var pool []domain.Resume
	for i := 0; i < 8; i++ {
		r := alice()
		r.ID = fmt.Sprintf("r-%02d", i)
		pool = append(pool, r)
	}
	f := newFixture(pool...)
	f.llm.delay = 20 * time.Millisecond
	f.svc = usecase.NewAnalyzeService(f.resumes, nil, f.cache, extraction.New(f.llm, dimension.Default()), usecase.AnalyzeOptions{Concurrency: 2})

	rep, err := f.svc.Analyze(ctx, domain.AnalyzeRequest{JDText: cloudJD})
	require.NoError(t, err)
	assert.Len(t, rep.Results, 8)
	assert.Equal(t, int32(8), f.llm.evidence.Load())
	assert.LessOrEqual(t, f.llm.maxInFlight.Load(), int32(2))
	for i, r := range rep.Results {
		assert.Equal(t, fmt.Sprintf("r-%02d", i), r.ResumeID, "ties are ordered by resume id")
	}
}

func TestRank(t *testing.T) {
	in := []domain.CandidateResult{
		{ResumeID: "c", TotalScore: 40},
		{ResumeID: "a", TotalScore: 70},
		{ResumeID: "b", TotalScore: 70},
		{ResumeID: "d", TotalScore: 5},
	}
	tests := []struct {
		name     string
		minScore int
		topN     int
		want     []string
	}{
		{"filters below min", 10, 10, []string{"a", "b", "c"}},
		{"truncates", 0, 2, []string{"a", "b"}},
		{"none pass keeps best", 90, 2, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := usecase.Rank(in, tt.minScore, tt.topN)
			ids := make([]string, len(got))
			for i, r := range got {
				ids[i] = r.ResumeID
			}
			assert.Equal(t, tt.want, ids)
		})
	}
	assert.Equal(t, "c", in[0].ResumeID, "input is not reordered")
}

func TestNormalizeRequest_Defaults(t *testing.T) {
	req, err := usecase.NormalizeRequest(domain.AnalyzeRequest{JDText: "SRE\x00 role", JDFilename: ""}, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, req.TopN)
	assert.Equal(t, "Manual Entry", req.JDFilename)
	assert.NotContains(t, req.JDText, "\x00")
}
