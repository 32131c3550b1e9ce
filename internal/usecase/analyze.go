// Package usecase contains application business logic services.
package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	obsmetrics "github.com/fairyhunter13/ai-jd-matcher/internal/adapter/observability"
	"github.com/fairyhunter13/ai-jd-matcher/internal/config"
	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/internal/observability"
	"github.com/fairyhunter13/ai-jd-matcher/internal/service/extraction"
	"github.com/fairyhunter13/ai-jd-matcher/internal/service/prefilter"
	"github.com/fairyhunter13/ai-jd-matcher/internal/service/scoring"
	"github.com/fairyhunter13/ai-jd-matcher/pkg/textx"
)

const (
	maxTopN          = 50
	unknownCandidate = "Unknown Candidate"
	defaultJDName    = "Manual Entry"
)

// AnalyzeOptions tunes one AnalyzeService.
type AnalyzeOptions struct {
	// Concurrency bounds outstanding evidence calls.
	Concurrency int
	Prefilter   prefilter.Options
	DefaultTopN int
}

// AnalyzeOptionsFromConfig maps the engine settings of cfg.
func AnalyzeOptionsFromConfig(cfg config.Config) AnalyzeOptions {
	shortlistCap, relaxThreshold, relaxCap := cfg.PrefilterLimits()
	return AnalyzeOptions{
		Concurrency: cfg.EngineConcurrency,
		Prefilter: prefilter.Options{
			MinScore:       cfg.DefaultMinScore,
			ShortlistCap:   shortlistCap,
			RelaxThreshold: relaxThreshold,
			RelaxCap:       relaxCap,
		},
		DefaultTopN: cfg.DefaultTopN,
	}
}

// AnalyzeService runs one job description against the resume pool: structure
// extraction, Phase-1 shortlist, cached or fresh evidence scoring and result
// assembly.
type AnalyzeService struct {
	Resumes  domain.ResumeRepository
	Analyses domain.AnalysisRepository
	Cache    domain.MatchCache
	Engine   *extraction.Extractor
	opts     AnalyzeOptions
	now      func() time.Time
}

// NewAnalyzeService constructs an AnalyzeService. analyses may be nil when no
// history is kept (CLI runs).
func NewAnalyzeService(r domain.ResumeRepository, a domain.AnalysisRepository, c domain.MatchCache, e *extraction.Extractor, opts AnalyzeOptions) *AnalyzeService {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.DefaultTopN <= 0 {
		opts.DefaultTopN = 10
	}
	return &AnalyzeService{Resumes: r, Analyses: a, Cache: c, Engine: e, opts: opts, now: func() time.Time { return time.Now().UTC() }}
}

// NormalizeRequest sanitizes the JD text and applies defaults and bounds.
func NormalizeRequest(req domain.AnalyzeRequest, defaultTopN int) (domain.AnalyzeRequest, error) {
	req.JDText = textx.SanitizeText(req.JDText)
	if textx.CollapseWhitespace(req.JDText) == "" {
		return req, fmt.Errorf("%w: please provide either a JD file or JD text", domain.ErrInvalidArgument)
	}
	if req.MinScore < 0 || req.MinScore > 100 {
		return req, fmt.Errorf("%w: min_score must be within 0..100", domain.ErrInvalidArgument)
	}
	if req.TopN == 0 {
		req.TopN = defaultTopN
	}
	if req.TopN < 1 || req.TopN > maxTopN {
		return req, fmt.Errorf("%w: top_n must be within 1..%d", domain.ErrInvalidArgument, maxTopN)
	}
	if req.JDFilename == "" {
		req.JDFilename = defaultJDName
	}
	return req, nil
}

// scored is the outcome of one shortlisted resume.
type scored struct {
	result domain.CandidateResult
	// fresh is set when the result was computed now and may be cached.
	fresh *domain.MatchResult
}

// Analyze runs the full pipeline. Only configuration and extraction failures
// (and failures to read the resume pool) are returned; per-resume evidence
// failures degrade to the Phase-1 keyword score and cache or history writes
// are best-effort.
func (s *AnalyzeService) Analyze(ctx domain.Context, req domain.AnalyzeRequest) (domain.AnalysisReport, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "AnalyzeService.Analyze")
	defer span.End()
	start := time.Now()

	report, err := s.analyze(ctx, req)
	if err != nil {
		span.RecordError(err)
		obsmetrics.ObserveAnalysis("error", time.Since(start))
		return domain.AnalysisReport{}, err
	}
	obsmetrics.ObserveAnalysis("ok", time.Since(start))
	return report, nil
}

func (s *AnalyzeService) analyze(ctx domain.Context, req domain.AnalyzeRequest) (domain.AnalysisReport, error) {
	req, err := NormalizeRequest(req, s.opts.DefaultTopN)
	if err != nil {
		return domain.AnalysisReport{}, err
	}

	jdHash := scoring.JDHash(req.JDText)
	ctx, lg := observability.WithLogAttrs(ctx, slog.String("jd_hash", jdHash))
	canonical := domain.Analysis{
		JobID:       scoring.JobID(jdHash),
		JDHash:      jdHash,
		Filename:    req.JDFilename,
		Text:        req.JDText,
		SubmittedBy: req.SubmittedBy,
	}
	if s.Analyses != nil {
		stored, err := s.Analyses.Ensure(ctx, canonical)
		if err != nil {
			return domain.AnalysisReport{}, fmt.Errorf("op=analyze.ensure: %w", err)
		}
		canonical.JobID = stored.JobID
	}

	structure, err := s.Engine.ExtractStructure(ctx, req.JDText)
	if err != nil {
		lg.Error("jd structure extraction failed", slog.Any("error", err))
		return domain.AnalysisReport{}, err
	}
	flat := prefilter.RequirementsFromStructure(structure)

	canonical.Role = structure.Role
	canonical.MinExperienceYears = structure.MinExperienceYears
	canonical.RequiredSkills = flat.RequiredSkills
	canonical.PreferredSkills = flat.PreferredSkills
	canonical.Keywords = flat.Keywords
	if s.Analyses != nil {
		if err := s.Analyses.UpdateRequirements(ctx, canonical); err != nil {
			lg.Warn("jd requirements update failed", slog.Any("error", err))
		}
	}

	weights := scoring.AssignWeights(structure.IDs())
	structureHash := scoring.StructureHash(jdHash, weights)
	ctx, lg = observability.WithLogAttrs(ctx, slog.String("structure_hash", structureHash[:8]))
	trace := otel.Tracer("usecase")
	_, span := trace.Start(ctx, "AnalyzeService.shortlist")
	span.SetAttributes(attribute.String("jd.structure_hash", structureHash), attribute.Int("jd.dimensions", len(weights)))
	lg.Info("jd structure resolved", slog.String("role", structure.Role), slog.Any("weights", weights))

	resumes, err := s.Resumes.ListCandidates(ctx, domain.ResumeFilter{SourceTypes: req.SourceTypes})
	if err != nil {
		span.End()
		return domain.AnalysisReport{}, fmt.Errorf("op=analyze.list_candidates: %w", err)
	}
	opts := s.opts.Prefilter
	opts.MinScore = req.MinScore
	shortlist := prefilter.Shortlist(flat, resumes, opts)
	span.SetAttributes(attribute.Int("prefilter.evaluated", shortlist.Evaluated), attribute.Int("prefilter.shortlisted", len(shortlist.Candidates)))
	span.End()
	if shortlist.Relaxed {
		obsmetrics.PrefilterRelaxed()
		lg.Info("prefilter relaxed", slog.Int("passed", shortlist.Passed), slog.Int("kept", len(shortlist.Candidates)))
	}

	ids := make([]string, len(shortlist.Candidates))
	for i, c := range shortlist.Candidates {
		ids[i] = c.Resume.ID
	}
	cached, err := s.Cache.LookupMany(ctx, structureHash, ids)
	if err != nil {
		lg.Warn("match cache lookup failed, scoring every candidate", slog.Any("error", err))
		cached = nil
	}
	lg.Debug("match cache lookup", slog.Int("hits", len(cached)), slog.Int("shortlisted", len(ids)))

	run := scoringRun{
		structure:     structure,
		flat:          flat,
		weights:       weights,
		labels:        s.Engine.Library().Labels(),
		structureHash: structureHash,
		jobID:         canonical.JobID,
	}
	out := make([]scored, len(shortlist.Candidates))
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, c := range shortlist.Candidates {
		if m, ok := cached[c.Resume.ID]; ok {
			out[i] = scored{result: cachedResult(c.Resume, m)}
			continue
		}
		g.Go(func() error {
			out[i] = s.scoreOne(ctx, run, c)
			return nil
		})
	}
	_ = g.Wait()

	results := make([]domain.CandidateResult, 0, len(out))
	for _, o := range out {
		results = append(results, o.result)
		if o.fresh == nil {
			continue
		}
		if err := s.Cache.Store(ctx, *o.fresh); err != nil {
			obsmetrics.CacheWriteFailed()
			lg.Warn("match cache write failed", slog.String("resume_id", o.fresh.ResumeID), slog.Any("error", errors.Join(domain.ErrCacheWriteFailed, err)))
		}
	}

	report := domain.AnalysisReport{
		JobID:                canonical.JobID,
		JDHash:               jdHash,
		StructureHash:        structureHash,
		JDRole:               structure.Role,
		JDFilename:           req.JDFilename,
		EngineVersion:        domain.EngineVersion,
		TotalResumesAnalyzed: len(resumes),
		Shortlisted:          len(shortlist.Candidates),
		Results:              Rank(results, req.MinScore, req.TopN),
		Dimensions:           dimensionWeights(structure, weights, run.labels),
		Requirements: domain.JDRequirements{
			MinExperienceYears: structure.MinExperienceYears,
			RequiredSkills:     nonNil(flat.RequiredSkills),
			PreferredSkills:    nonNil(flat.PreferredSkills),
		},
		CreatedAt: s.now(),
	}
	report.Recommendation = scoring.Recommendation(report.Results)

	if s.Analyses != nil {
		if err := s.Analyses.SaveReport(ctx, report.JobID, report); err != nil {
			lg.Warn("analysis report save failed", slog.Any("error", err))
		}
	}
	lg.Info("analysis completed",
		slog.Int("resumes", report.TotalResumesAnalyzed),
		slog.Int("shortlisted", report.Shortlisted),
		slog.Int("results", len(report.Results)),
		slog.Int("cache_hits", len(cached)))
	return report, nil
}

type scoringRun struct {
	structure     domain.JDStructure
	flat          prefilter.Requirements
	weights       domain.Weights
	labels        map[domain.DimensionID]string
	structureHash string
	jobID         string
}

// scoreOne computes a fresh result. Evidence failures fall back to the
// Phase-1 keyword score and are never cached.
func (s *AnalyzeService) scoreOne(ctx domain.Context, run scoringRun, c prefilter.Candidate) scored {
	matched, missing := scoring.MatchSkills(run.flat.RequiredSkills, c.Skills)
	base := candidateBase(c.Resume)
	base.MatchedSkills = matched
	base.MissingSkills = missing

	ev, err := s.Engine.ExtractEvidence(ctx, extraction.EvidenceInput{Resume: c.Resume, Skills: c.Skills, Dimensions: run.structure.Dimensions})
	if err != nil {
		obsmetrics.EvidenceFallback()
		observability.LoggerFromContext(ctx).Warn("evidence extraction failed, using keyword score",
			slog.String("resume_id", c.Resume.ID), slog.Int("keyword_score", c.Score), slog.Any("error", err))
		base.TotalScore = c.Score
		base.ScoreBreakdown = domain.Breakdown{}
		base.EvidenceSkills = []string{}
		base.Explanation = scoring.Explain(c.Score, base.ScoreBreakdown, run.labels, matched, missing)
		base.Fallback = true
		return scored{result: base}
	}

	breakdown, total := scoring.Score(ev.Confidences(), run.weights)
	base.TotalScore = total
	base.ScoreBreakdown = breakdown
	base.EvidenceSkills = nonNil(scoring.EvidenceSkills(ev))
	base.Explanation = scoring.Explain(total, breakdown, run.labels, matched, missing)
	obsmetrics.ObserveScore(total)

	labels := make(map[domain.DimensionID]string, len(run.weights))
	for id := range run.weights {
		labels[id] = run.labels[id]
	}
	fresh := domain.MatchResult{
		StructureHash:   run.structureHash,
		ResumeID:        c.Resume.ID,
		JobID:           run.jobID,
		EngineVersion:   domain.EngineVersion,
		JDRole:          run.structure.Role,
		TotalScore:      total,
		Weights:         run.weights,
		Breakdown:       breakdown,
		DimensionLabels: labels,
		MatchedSkills:   matched,
		MissingSkills:   missing,
		EvidenceSkills:  base.EvidenceSkills,
		Explanation:     base.Explanation,
		CreatedAt:       s.now(),
	}
	return scored{result: base, fresh: &fresh}
}

func candidateBase(r domain.Resume) domain.CandidateResult {
	name := textx.CollapseWhitespace(r.Name)
	if name == "" {
		name = unknownCandidate
	}
	return domain.CandidateResult{
		ResumeID:        r.ID,
		Candidate:       name,
		Role:            r.Role,
		ExperienceYears: r.ExperienceYears,
		SourceType:      r.SourceType,
	}
}

func cachedResult(r domain.Resume, m domain.MatchResult) domain.CandidateResult {
	out := candidateBase(r)
	out.TotalScore = m.TotalScore
	out.ScoreBreakdown = m.Breakdown
	out.MatchedSkills = nonNil(m.MatchedSkills)
	out.MissingSkills = nonNil(m.MissingSkills)
	out.EvidenceSkills = nonNil(m.EvidenceSkills)
	out.Explanation = m.Explanation
	out.Cached = true
	return out
}

// Rank orders results by score descending then resume id, keeps those at or
// above minScore and truncates to topN. When nothing reaches minScore the
// best topN are returned anyway.
func Rank(results []domain.CandidateResult, minScore, topN int) []domain.CandidateResult {
	sorted := make([]domain.CandidateResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TotalScore != sorted[j].TotalScore {
			return sorted[i].TotalScore > sorted[j].TotalScore
		}
		return sorted[i].ResumeID < sorted[j].ResumeID
	})

	kept := make([]domain.CandidateResult, 0, len(sorted))
	for _, r := range sorted {
		if r.TotalScore >= minScore {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		kept = sorted
	}
	if topN > 0 && len(kept) > topN {
		kept = kept[:topN]
	}
	return kept
}

func dimensionWeights(s domain.JDStructure, w domain.Weights, labels map[domain.DimensionID]string) []domain.DimensionWeight {
	out := make([]domain.DimensionWeight, 0, len(s.Dimensions))
	for _, d := range s.Dimensions {
		label := labels[d.ID]
		if label == "" {
			label = string(d.ID)
		}
		out = append(out, domain.DimensionWeight{DimensionID: d.ID, Label: label, Weight: w[d.ID], Priority: d.Priority})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
