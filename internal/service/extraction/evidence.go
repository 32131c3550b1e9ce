package extraction

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/internal/service/scoring"
	"github.com/fairyhunter13/ai-jd-matcher/pkg/textx"
)

const maxEvidenceTextRunes = 300

// EvidenceInput is one resume and the dimensions it is judged against.
// Skills is the resume's canonical skill set.
type EvidenceInput struct {
	Resume     domain.Resume
	Skills     []string
	Dimensions []domain.SelectedDimension
}

type rawEvidence struct {
	ByDimension map[string]struct {
		Confidence     string   `json:"confidence"`
		EvidenceSkills []string `json:"evidence_skills"`
		EvidenceText   string   `json:"evidence_text"`
	} `json:"evidence_by_dimension"`
}

// ExtractEvidence asks the LLM for one confidence label per requested
// dimension. Any failure, including a missing or extra dimension or a label
// outside the closed set, is ErrEvidenceFailed for this resume only.
func (e *Extractor) ExtractEvidence(ctx domain.Context, in EvidenceInput) (domain.ResumeEvidence, error) {
	ctx, span := otel.Tracer("extraction").Start(ctx, "extraction.ExtractEvidence")
	defer span.End()
	span.SetAttributes(attribute.String("resume.id", in.Resume.ID))

	if len(in.Dimensions) == 0 {
		return domain.ResumeEvidence{}, nil
	}
	user, err := e.evidenceUserPrompt(in)
	if err != nil {
		return nil, fmt.Errorf("op=extraction.ExtractEvidence: %w: %w", domain.ErrEvidenceFailed, err)
	}
	raw, err := e.llm.ChatJSON(ctx, evidenceSystemPrompt, user, e.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("op=extraction.ExtractEvidence: %w: %w", domain.ErrEvidenceFailed, err)
	}
	ids := make([]domain.DimensionID, 0, len(in.Dimensions))
	for _, d := range in.Dimensions {
		ids = append(ids, d.ID)
	}
	return ParseEvidence(raw, ids)
}

// ParseEvidence validates a raw evidence response for exactly the given
// dimension ids.
func ParseEvidence(raw string, ids []domain.DimensionID) (domain.ResumeEvidence, error) {
	fail := func(err error) (domain.ResumeEvidence, error) {
		return nil, fmt.Errorf("op=extraction.ParseEvidence: %w: %w", domain.ErrEvidenceFailed, err)
	}
	if err := validateJSON(evidenceJSONSchema, raw); err != nil {
		return fail(err)
	}
	var re rawEvidence
	if err := json.Unmarshal([]byte(raw), &re); err != nil {
		return fail(err)
	}

	want := make(map[domain.DimensionID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var extra []string
	for k := range re.ByDimension {
		if !want[domain.DimensionID(strings.TrimSpace(k))] {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fail(fmt.Errorf("%w: unexpected dimensions %s", domain.ErrSchemaInvalid, strings.Join(extra, ", ")))
	}

	byID := make(map[domain.DimensionID]string, len(re.ByDimension))
	for k := range re.ByDimension {
		byID[domain.DimensionID(strings.TrimSpace(k))] = k
	}
	out := make(domain.ResumeEvidence, len(ids))
	for _, id := range ids {
		key, ok := byID[id]
		if !ok {
			return fail(fmt.Errorf("%w: missing dimension %s", domain.ErrSchemaInvalid, id))
		}
		item := re.ByDimension[key]
		c, err := domain.ParseConfidence(item.Confidence)
		if err != nil {
			return fail(fmt.Errorf("dimension %s: %w", id, err))
		}
		out[id] = domain.DimensionEvidence{
			Confidence:     c,
			EvidenceSkills: nonNil(scoring.DedupeSkills(item.EvidenceSkills)),
			EvidenceText:   textx.Truncate(textx.CollapseWhitespace(item.EvidenceText), maxEvidenceTextRunes),
		}
	}
	return out, nil
}
