package domain

import (
	"fmt"
	"strings"
)

// DimensionID identifies a dimension of the library. Ids are stable and are
// used as keys of weights, breakdowns and cache blobs.
type DimensionID string

// Anchor dimensions are present in every job description structure.
const (
	DimensionExperienceSeniority DimensionID = "experience_seniority"
	DimensionCoreTechnicalSkills DimensionID = "core_technical_skills"
)

// AnchorDimensions returns the anchors in the order they are placed at the front of a structure.
func AnchorDimensions() []DimensionID {
	return []DimensionID{DimensionExperienceSeniority, DimensionCoreTechnicalSkills}
}

// Dimension is one axis of job fit. SeedSkills are hints for extraction and never scored.
type Dimension struct {
	ID         DimensionID `yaml:"id" json:"id"`
	Label      string      `yaml:"label" json:"label"`
	Definition string      `yaml:"definition" json:"definition"`
	SeedSkills []string    `yaml:"seed_skills" json:"seed_skills"`
}

// Priority is the relative importance the extractor assigned to a dimension.
// It is informational only; weighting ignores it.
type Priority string

const (
	PriorityMust   Priority = "MUST"
	PriorityShould Priority = "SHOULD"
	PriorityNice   Priority = "NICE"
)

// ParsePriority maps free text to a Priority, defaulting to SHOULD.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToUpper(strings.TrimSpace(s))) {
	case PriorityMust:
		return PriorityMust
	case PriorityNice:
		return PriorityNice
	default:
		return PriorityShould
	}
}

// Confidence is the closed set of labels the evidence extractor may return.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// Confidences lists every valid label.
func Confidences() []Confidence {
	return []Confidence{ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceNone}
}

// ParseConfidence accepts exactly one of the four labels (case-insensitive).
func ParseConfidence(s string) (Confidence, error) {
	c := Confidence(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceNone:
		return c, nil
	}
	return "", fmt.Errorf("%w: confidence %q", ErrSchemaInvalid, s)
}

// SelectedDimension is one dimension chosen for a job description.
type SelectedDimension struct {
	ID               DimensionID `json:"dimension_id"`
	Priority         Priority    `json:"priority"`
	RequiredSkills   []string    `json:"required_skills"`
	PreferredSkills  []string    `json:"preferred_skills"`
	EvidenceSnippets []string    `json:"evidence_snippets,omitempty"`
}

// JDStructure is the validated scoring schema of one job description.
type JDStructure struct {
	Role               string              `json:"jd_role"`
	MinExperienceYears float64             `json:"min_experience_years"`
	Dimensions         []SelectedDimension `json:"selected_dimensions"`
}

// IDs returns the selected dimension ids in structure order.
func (s JDStructure) IDs() []DimensionID {
	out := make([]DimensionID, 0, len(s.Dimensions))
	for _, d := range s.Dimensions {
		out = append(out, d.ID)
	}
	return out
}

// Weights maps each selected dimension to its integer share of 100 points.
type Weights map[DimensionID]int

// Sum returns the total of all weights.
func (w Weights) Sum() int {
	total := 0
	for _, v := range w {
		total += v
	}
	return total
}

// Breakdown maps each dimension to its integer point contribution.
type Breakdown map[DimensionID]int

// DimensionEvidence is the evidence record for one (resume, dimension) pair.
type DimensionEvidence struct {
	Confidence     Confidence `json:"confidence"`
	EvidenceSkills []string   `json:"evidence_skills"`
	EvidenceText   string     `json:"evidence_text,omitempty"`
}

// ResumeEvidence holds the evidence of one resume keyed by dimension.
type ResumeEvidence map[DimensionID]DimensionEvidence

// Confidences extracts the confidence label per dimension.
func (e ResumeEvidence) Confidences() map[DimensionID]Confidence {
	out := make(map[DimensionID]Confidence, len(e))
	for id, ev := range e {
		out[id] = ev.Confidence
	}
	return out
}
