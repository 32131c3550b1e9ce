// Package domain holds the entities, enums, error taxonomy and ports of the
// JD-to-resume matching engine.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrInternal          = errors.New("internal error")

	// ErrConfiguration is fatal for a whole analysis (e.g. LLM credentials missing).
	ErrConfiguration = errors.New("configuration error")
	// ErrExtractionFailed aborts an analysis before any resume is scored.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrUnknownDimension is reported when an extractor references an id outside the library.
	ErrUnknownDimension = errors.New("unknown dimension")
	// ErrEvidenceFailed is recovered per resume with a keyword-only score.
	ErrEvidenceFailed = errors.New("evidence failed")
	// ErrCacheWriteFailed is logged and ignored.
	ErrCacheWriteFailed = errors.New("cache write failed")
)

// EngineVersion tags every persisted match result. Bump it whenever the
// multiplier table, the weighting rule or the result shape changes.
const EngineVersion = "v2.4"

// Resume is the engine's view of a stored resume.
type Resume struct {
	ID              string
	Name            string
	Role            string
	ExperienceYears float64
	Skills          []string
	TechnicalSkills []string
	AllSkills       []string
	Summary         string
	RawText         string
	SourceType      string
	CreatedAt       time.Time
}

// ResumeFilter narrows the candidate pool.
type ResumeFilter struct {
	SourceTypes []string
}

// MatchResult is one cache entry, identified by (StructureHash, ResumeID, EngineVersion).
// Rows are never updated in place.
type MatchResult struct {
	StructureHash   string
	ResumeID        string
	JobID           string
	EngineVersion   string
	JDRole          string
	TotalScore      int
	Weights         Weights
	Breakdown       Breakdown
	DimensionLabels map[DimensionID]string
	MatchedSkills   []string
	MissingSkills   []string
	EvidenceSkills  []string
	Explanation     string
	CreatedAt       time.Time
}

// CandidateResult is one ranked entry of an analysis report.
type CandidateResult struct {
	ResumeID        string    `json:"resume_id"`
	Candidate       string    `json:"candidate"`
	TotalScore      int       `json:"total_score"`
	ScoreBreakdown  Breakdown `json:"score_breakdown"`
	MatchedSkills   []string  `json:"matched_skills"`
	MissingSkills   []string  `json:"missing_skills"`
	EvidenceSkills  []string  `json:"evidence_skills"`
	Explanation     string    `json:"explanation"`
	Role            string    `json:"role,omitempty"`
	ExperienceYears float64   `json:"experience_years"`
	SourceType      string    `json:"source_type,omitempty"`
	Cached          bool      `json:"cached"`
	Fallback        bool      `json:"fallback"`
}

// DimensionWeight describes one selected dimension in a report.
type DimensionWeight struct {
	DimensionID DimensionID `json:"dimension_id"`
	Label       string      `json:"label"`
	Weight      int         `json:"weight"`
	Priority    Priority    `json:"priority"`
}

// JDRequirements is the flattened requirement set of a job description.
type JDRequirements struct {
	MinExperienceYears float64  `json:"min_experience_years"`
	RequiredSkills     []string `json:"required_skills"`
	PreferredSkills    []string `json:"preferred_skills"`
}

// AnalysisReport is the full response of one analysis request.
type AnalysisReport struct {
	JobID                string            `json:"job_id"`
	JDHash               string            `json:"jd_hash"`
	StructureHash        string            `json:"structure_hash"`
	JDRole               string            `json:"jd_role"`
	JDFilename           string            `json:"jd_filename"`
	EngineVersion        string            `json:"engine_version"`
	TotalResumesAnalyzed int               `json:"total_resumes_analyzed"`
	Shortlisted          int               `json:"shortlisted"`
	Results              []CandidateResult `json:"results"`
	Recommendation       string            `json:"recommendation"`
	Dimensions           []DimensionWeight `json:"dimensions"`
	Requirements         JDRequirements    `json:"jd_requirements"`
	CreatedAt            time.Time         `json:"created_at"`
}

// Analysis is the canonical record of one job description, keyed by JDHash.
type Analysis struct {
	JobID              string
	JDHash             string
	Filename           string
	Text               string
	Role               string
	MinExperienceYears float64
	RequiredSkills     []string
	PreferredSkills    []string
	Keywords           []string
	SubmittedBy        string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AnalysisSummary is a row of the analysis history.
type AnalysisSummary struct {
	JobID       string    `json:"job_id"`
	JDHash      string    `json:"jd_hash"`
	Role        string    `json:"jd_role"`
	Filename    string    `json:"jd_filename"`
	ResultCount int       `json:"result_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AnalyzeRequest is the input of one analysis, also used as the async queue payload.
type AnalyzeRequest struct {
	SubmissionID string   `json:"submission_id,omitempty"`
	JDText       string   `json:"jd_text"`
	JDFilename   string   `json:"jd_filename,omitempty"`
	MinScore     int      `json:"min_score"`
	TopN         int      `json:"top_n"`
	SourceTypes  []string `json:"source_types,omitempty"`
	SubmittedBy  string   `json:"submitted_by,omitempty"`
}

// Ports

// LLMClient sends one system/user prompt pair and returns the raw JSON text.
type LLMClient interface {
	ChatJSON(ctx Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// MatchCache persists scored (structure, resume) pairs. Lookups only return
// rows whose engine version equals EngineVersion.
type MatchCache interface {
	Lookup(ctx Context, structureHash, resumeID string) (MatchResult, bool, error)
	LookupMany(ctx Context, structureHash string, resumeIDs []string) (map[string]MatchResult, error)
	Store(ctx Context, r MatchResult) error
}

// ResumeRepository provides the candidate pool.
type ResumeRepository interface {
	ListCandidates(ctx Context, f ResumeFilter) ([]Resume, error)
}

// AnalysisRepository stores canonical job descriptions and their latest reports.
type AnalysisRepository interface {
	Ensure(ctx Context, a Analysis) (Analysis, error)
	UpdateRequirements(ctx Context, a Analysis) error
	SaveReport(ctx Context, jobID string, report AnalysisReport) error
	GetReport(ctx Context, jobID string) (AnalysisReport, error)
	List(ctx Context, limit int) ([]AnalysisSummary, error)
}

// TextExtractor turns an uploaded document into plain text.
type TextExtractor interface {
	ExtractBytes(ctx Context, fileName string, data []byte) (string, error)
}

// AnalysisQueue publishes analyses for asynchronous processing.
type AnalysisQueue interface {
	EnqueueAnalysis(ctx Context, req AnalyzeRequest) (string, error)
}

// Context aliases the standard context so ports read uniformly.
type Context = context.Context
