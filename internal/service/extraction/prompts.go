package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
)

const structureSystemPrompt = `You are a constrained classifier for job descriptions.
Select between 3 and 8 scoring dimensions for the job description, using ONLY dimension ids from the provided library.
For each selected dimension list the concrete required skills and preferred skills the job description states, a priority (MUST, SHOULD or NICE) and optionally short evidence snippets quoted from the text.
Also report the role title and the minimum years of experience (0 when not stated).

Respond with ONLY a JSON object of this shape:
{
  "jd_role": "string",
  "min_experience_years": number,
  "selected_dimensions": [
    {
      "dimension_id": "id from the library",
      "priority": "MUST|SHOULD|NICE",
      "required_skills": ["skill", ...],
      "preferred_skills": ["skill", ...],
      "evidence_snippets": ["quote", ...]
    }
  ]
}
Never invent dimension ids. Never add fields. No explanations.`

const evidenceSystemPrompt = `You are a constrained classifier for resumes.
For EVERY dimension in the request, judge how strongly the resume supports it and answer with exactly one confidence label: high, medium, low or none.
Never output numbers or scores. List the resume skills that support the label as evidence_skills and optionally one short evidence_text.

Respond with ONLY a JSON object of this shape:
{
  "evidence_by_dimension": {
    "<dimension_id>": {
      "confidence": "high|medium|low|none",
      "evidence_skills": ["skill", ...],
      "evidence_text": "string"
    }
  }
}
Include every requested dimension id exactly once and no other ids. Never add fields. No explanations.`

type libraryEntry struct {
	ID         domain.DimensionID `json:"id"`
	Label      string             `json:"label"`
	Definition string             `json:"definition"`
	SeedSkills []string           `json:"seed_skills,omitempty"`
}

func (e *Extractor) structureUserPrompt(jdText string) (string, error) {
	dims := e.lib.List()
	entries := make([]libraryEntry, 0, len(dims))
	for _, d := range dims {
		entries = append(entries, libraryEntry{ID: d.ID, Label: d.Label, Definition: d.Definition, SeedSkills: d.SeedSkills})
	}
	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Dimension library:\n")
	b.Write(payload)
	b.WriteString("\n\nJob description:\n")
	b.WriteString(e.trim(jdText, e.promptBudget))
	return b.String(), nil
}

type evidenceDimension struct {
	ID              domain.DimensionID `json:"dimension_id"`
	Label           string             `json:"label"`
	Definition      string             `json:"definition"`
	RequiredSkills  []string           `json:"required_skills"`
	PreferredSkills []string           `json:"preferred_skills"`
}

func (e *Extractor) evidenceUserPrompt(in EvidenceInput) (string, error) {
	dims := make([]evidenceDimension, 0, len(in.Dimensions))
	for _, sd := range in.Dimensions {
		d, _ := e.lib.Get(sd.ID)
		dims = append(dims, evidenceDimension{
			ID:              sd.ID,
			Label:           e.lib.Label(sd.ID),
			Definition:      d.Definition,
			RequiredSkills:  nonNil(sd.RequiredSkills),
			PreferredSkills: nonNil(sd.PreferredSkills),
		})
	}
	payload, err := json.MarshalIndent(dims, "", "  ")
	if err != nil {
		return "", err
	}

	r := in.Resume
	text := r.RawText
	if strings.TrimSpace(text) == "" {
		text = r.Summary
	}

	var b strings.Builder
	b.WriteString("Dimensions:\n")
	b.Write(payload)
	b.WriteString("\n\nResume:\n")
	fmt.Fprintf(&b, "Role: %s\n", r.Role)
	fmt.Fprintf(&b, "Experience years: %g\n", r.ExperienceYears)
	fmt.Fprintf(&b, "Skills: %s\n", strings.Join(in.Skills, ", "))
	if r.Summary != "" && text != r.Summary {
		fmt.Fprintf(&b, "Summary: %s\n", r.Summary)
	}
	b.WriteString("Text:\n")
	b.WriteString(e.trim(text, e.promptBudget))
	return b.String(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
