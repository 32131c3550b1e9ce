// Package stub provides a deterministic, offline LLM client for local runs
// and tests. It answers the structure and evidence prompts with plain
// substring matching, so identical inputs always produce identical JSON.
package stub

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/pkg/textx"
)

const (
	structureHeader = "Dimension library:\n"
	structureSplit  = "\n\nJob description:\n"
	evidenceHeader  = "Dimensions:\n"
	evidenceSplit   = "\n\nResume:\n"
)

var yearsPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*\+?\s*(?:years|yrs)`)

// Client implements domain.LLMClient without any network access.
type Client struct{}

// New returns a stub client.
func New() *Client { return &Client{} }

// ChatJSON recognizes the prompt by its header and returns a schema valid answer.
func (c *Client) ChatJSON(ctx domain.Context, _ string, userPrompt string, _ int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch {
	case strings.HasPrefix(userPrompt, structureHeader):
		return structure(userPrompt)
	case strings.HasPrefix(userPrompt, evidenceHeader):
		return evidence(userPrompt)
	default:
		return "", fmt.Errorf("op=stub.ChatJSON: %w: unrecognized prompt", domain.ErrInvalidArgument)
	}
}

type libraryEntry struct {
	ID         string   `json:"id"`
	SeedSkills []string `json:"seed_skills"`
}

type selected struct {
	DimensionID     string   `json:"dimension_id"`
	Priority        string   `json:"priority"`
	RequiredSkills  []string `json:"required_skills"`
	PreferredSkills []string `json:"preferred_skills"`
}

func split(prompt, header, sep string) (string, string, error) {
	body := strings.TrimPrefix(prompt, header)
	i := strings.Index(body, sep)
	if i < 0 {
		return "", "", fmt.Errorf("op=stub.split: %w: missing %q", domain.ErrInvalidArgument, strings.TrimSpace(sep))
	}
	return body[:i], body[i+len(sep):], nil
}

func structure(prompt string) (string, error) {
	payload, jd, err := split(prompt, structureHeader, structureSplit)
	if err != nil {
		return "", err
	}
	var lib []libraryEntry
	if err := json.Unmarshal([]byte(payload), &lib); err != nil {
		return "", fmt.Errorf("op=stub.structure: %w", err)
	}
	text := strings.ToLower(jd)

	var dims []selected
	for _, e := range lib {
		hits := mentioned(text, e.SeedSkills)
		anchor := e.ID == string(domain.DimensionExperienceSeniority) || e.ID == string(domain.DimensionCoreTechnicalSkills)
		if len(hits) == 0 && !anchor {
			continue
		}
		priority := "SHOULD"
		if anchor || len(hits) >= 3 {
			priority = "MUST"
		}
		req, pref := hits, []string{}
		if len(hits) > 3 {
			req, pref = hits[:3], hits[3:]
		}
		dims = append(dims, selected{DimensionID: e.ID, Priority: priority, RequiredSkills: req, PreferredSkills: pref})
	}

	out := map[string]any{
		"jd_role":              role(jd),
		"min_experience_years": minYears(jd),
		"selected_dimensions":  dims,
	}
	b, err := json.Marshal(out)
	return string(b), err
}

func evidence(prompt string) (string, error) {
	payload, resume, err := split(prompt, evidenceHeader, evidenceSplit)
	if err != nil {
		return "", err
	}
	var dims []selected
	if err := json.Unmarshal([]byte(payload), &dims); err != nil {
		return "", fmt.Errorf("op=stub.evidence: %w", err)
	}
	text := strings.ToLower(resume)
	years := resumeYears(resume)

	out := make(map[string]any, len(dims))
	for _, d := range dims {
		wanted := append(append([]string{}, d.RequiredSkills...), d.PreferredSkills...)
		hits := mentioned(text, wanted)
		var conf domain.Confidence
		if len(wanted) == 0 {
			conf = byYears(years)
		} else {
			conf = byRatio(len(hits), len(wanted))
		}
		out[d.DimensionID] = map[string]any{
			"confidence":      string(conf),
			"evidence_skills": hits,
			"evidence_text":   fmt.Sprintf("%d of %d listed skills found", len(hits), len(wanted)),
		}
	}
	b, err := json.Marshal(map[string]any{"evidence_by_dimension": out})
	return string(b), err
}

func mentioned(text string, skills []string) []string {
	hits := []string{}
	seen := map[string]struct{}{}
	for _, s := range skills {
		key := strings.ToLower(textx.CollapseWhitespace(s))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		if containsTerm(text, key) {
			seen[key] = struct{}{}
			hits = append(hits, s)
		}
	}
	sort.Strings(hits)
	return hits
}

// containsTerm matches key only where it is not glued to other word characters,
// so "go" does not match "good".
func containsTerm(text, key string) bool {
	for from := 0; ; {
		i := strings.Index(text[from:], key)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(key)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		from = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '+' || b == '#'
}

func byRatio(hits, total int) domain.Confidence {
	r := float64(hits) / float64(total)
	switch {
	case r >= 0.75:
		return domain.ConfidenceHigh
	case r >= 0.4:
		return domain.ConfidenceMedium
	case hits > 0:
		return domain.ConfidenceLow
	default:
		return domain.ConfidenceNone
	}
}

func byYears(years float64) domain.Confidence {
	switch {
	case years >= 8:
		return domain.ConfidenceHigh
	case years >= 4:
		return domain.ConfidenceMedium
	case years >= 1:
		return domain.ConfidenceLow
	default:
		return domain.ConfidenceNone
	}
}

func role(jd string) string {
	for _, line := range strings.Split(jd, "\n") {
		if l := textx.CollapseWhitespace(line); l != "" {
			return textx.Truncate(l, 80)
		}
	}
	return ""
}

func minYears(jd string) float64 {
	m := yearsPattern.FindStringSubmatch(jd)
	if m == nil {
		return 0
	}
	v, _ := strconv.ParseFloat(m[1], 64)
	return v
}

func resumeYears(resume string) float64 {
	for _, line := range strings.Split(resume, "\n") {
		if rest, ok := strings.CutPrefix(line, "Experience years: "); ok {
			v, _ := strconv.ParseFloat(strings.TrimSpace(rest), 64)
			return v
		}
	}
	return 0
}
