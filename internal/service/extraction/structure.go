package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/internal/service/scoring"
	"github.com/fairyhunter13/ai-jd-matcher/pkg/textx"
)

type rawStructure struct {
	Role               string         `json:"jd_role"`
	MinExperienceYears *float64       `json:"min_experience_years"`
	Dimensions         []rawDimension `json:"selected_dimensions"`
}

type rawDimension struct {
	ID               string   `json:"dimension_id"`
	Priority         string   `json:"priority"`
	RequiredSkills   []string `json:"required_skills"`
	PreferredSkills  []string `json:"preferred_skills"`
	EvidenceSnippets []string `json:"evidence_snippets"`
}

// ExtractStructure asks the LLM to select dimensions for a job description
// and returns the validated structure: anchors first, unique ids, at most
// the configured number of dimensions and clean skill lists. Any transport,
// parse or vocabulary failure is ErrExtractionFailed; missing LLM
// configuration is returned as ErrConfiguration.
func (e *Extractor) ExtractStructure(ctx domain.Context, jdText string) (domain.JDStructure, error) {
	ctx, span := otel.Tracer("extraction").Start(ctx, "extraction.ExtractStructure")
	defer span.End()

	if strings.TrimSpace(jdText) == "" {
		return domain.JDStructure{}, fmt.Errorf("op=extraction.ExtractStructure: %w: empty job description", domain.ErrInvalidArgument)
	}
	user, err := e.structureUserPrompt(jdText)
	if err != nil {
		return domain.JDStructure{}, fmt.Errorf("op=extraction.ExtractStructure: %w: %w", domain.ErrExtractionFailed, err)
	}

	raw, err := e.llm.ChatJSON(ctx, structureSystemPrompt, user, e.maxTokens)
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			return domain.JDStructure{}, fmt.Errorf("op=extraction.ExtractStructure: %w", err)
		}
		return domain.JDStructure{}, fmt.Errorf("op=extraction.ExtractStructure: %w: %w", domain.ErrExtractionFailed, err)
	}

	s, err := e.ParseStructure(raw)
	if err != nil {
		slog.Warn("jd structure rejected", slog.Any("error", err), slog.Int("response_length", len(raw)))
		return domain.JDStructure{}, err
	}
	span.SetAttributes(
		attribute.Int("extraction.dimensions", len(s.Dimensions)),
		attribute.String("extraction.role", s.Role),
	)
	return s, nil
}

// ParseStructure validates a raw structure response against the schema and
// the library and normalizes it.
func (e *Extractor) ParseStructure(raw string) (domain.JDStructure, error) {
	if err := validateJSON(structureJSONSchema, raw); err != nil {
		return domain.JDStructure{}, fmt.Errorf("op=extraction.ParseStructure: %w: %w", domain.ErrExtractionFailed, err)
	}
	var rs rawStructure
	if err := json.Unmarshal([]byte(raw), &rs); err != nil {
		return domain.JDStructure{}, fmt.Errorf("op=extraction.ParseStructure: %w: %w", domain.ErrExtractionFailed, err)
	}

	ids := make([]domain.DimensionID, 0, len(rs.Dimensions))
	for _, d := range rs.Dimensions {
		ids = append(ids, domain.DimensionID(strings.TrimSpace(d.ID)))
	}
	if err := e.lib.Validate(ids); err != nil {
		return domain.JDStructure{}, fmt.Errorf("op=extraction.ParseStructure: %w: %w", domain.ErrExtractionFailed, err)
	}

	selected := make([]domain.SelectedDimension, 0, len(rs.Dimensions))
	for i, d := range rs.Dimensions {
		selected = append(selected, domain.SelectedDimension{
			ID:               ids[i],
			Priority:         domain.ParsePriority(d.Priority),
			RequiredSkills:   d.RequiredSkills,
			PreferredSkills:  d.PreferredSkills,
			EvidenceSnippets: d.EvidenceSnippets,
		})
	}

	// null means the JD states no minimum.
	var minYears float64
	if rs.MinExperienceYears != nil && *rs.MinExperienceYears > 0 {
		minYears = *rs.MinExperienceYears
	}
	return domain.JDStructure{
		Role:               textx.CollapseWhitespace(rs.Role),
		MinExperienceYears: minYears,
		Dimensions:         NormalizeDimensions(selected, e.maxDimensions),
	}, nil
}

// NormalizeDimensions places the anchor dimensions first (adding them when
// absent), drops repeated ids keeping the first occurrence, truncates to
// limit and cleans every skill list.
func NormalizeDimensions(selected []domain.SelectedDimension, limit int) []domain.SelectedDimension {
	anchors := domain.AnchorDimensions()
	if limit < len(anchors) {
		limit = len(anchors)
	}

	byID := make(map[domain.DimensionID]domain.SelectedDimension, len(selected))
	order := make([]domain.DimensionID, 0, len(selected))
	for _, d := range selected {
		if _, seen := byID[d.ID]; seen {
			continue
		}
		byID[d.ID] = d
		order = append(order, d.ID)
	}

	out := make([]domain.SelectedDimension, 0, limit)
	isAnchor := make(map[domain.DimensionID]bool, len(anchors))
	for _, id := range anchors {
		isAnchor[id] = true
		d, ok := byID[id]
		if !ok {
			d = domain.SelectedDimension{ID: id, Priority: domain.PriorityMust}
		}
		out = append(out, d)
	}
	for _, id := range order {
		if len(out) == limit {
			break
		}
		if !isAnchor[id] {
			out = append(out, byID[id])
		}
	}

	for i := range out {
		out[i].RequiredSkills = nonNil(scoring.DedupeSkills(out[i].RequiredSkills))
		out[i].PreferredSkills = nonNil(withoutSkills(scoring.DedupeSkills(out[i].PreferredSkills), out[i].RequiredSkills))
		out[i].EvidenceSnippets = scoring.DedupeSkills(out[i].EvidenceSnippets)
		if out[i].Priority == "" {
			out[i].Priority = domain.PriorityShould
		}
	}
	return out
}

func withoutSkills(list, exclude []string) []string {
	drop := make(map[string]struct{}, len(exclude))
	for _, s := range exclude {
		drop[strings.ToLower(s)] = struct{}{}
	}
	var out []string
	for _, s := range list {
		if _, ok := drop[strings.ToLower(s)]; !ok {
			out = append(out, s)
		}
	}
	return out
}
