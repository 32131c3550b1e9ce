package scoring

import (
	"sort"
	"strings"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/pkg/textx"
)

// NormalizeSkill trims, collapses inner whitespace and lowercases a skill.
func NormalizeSkill(s string) string {
	return strings.ToLower(textx.CollapseWhitespace(s))
}

// NormalizeSkills returns the sorted set of normalized, non-empty skills.
func NormalizeSkills(skills ...[]string) []string {
	set := make(map[string]struct{})
	for _, list := range skills {
		for _, s := range list {
			if n := NormalizeSkill(s); n != "" {
				set[n] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// CanonicalResumeSkills is the normalized union of every structured skill
// field a resume carries. Comma separated entries are split.
func CanonicalResumeSkills(r domain.Resume) []string {
	return NormalizeSkills(splitCommas(r.Skills), splitCommas(r.TechnicalSkills), splitCommas(r.AllSkills))
}

func splitCommas(list []string) []string {
	var out []string
	for _, s := range list {
		out = append(out, strings.Split(s, ",")...)
	}
	return out
}

// DedupeSkills trims skills and drops case-insensitive duplicates, keeping the
// first occurrence and its casing.
func DedupeSkills(skills ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range skills {
		for _, s := range list {
			s = textx.CollapseWhitespace(s)
			if s == "" {
				continue
			}
			key := strings.ToLower(s)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// MatchSkills splits the JD's required skills into those present in the
// resume's canonical skill set and those absent. Both lists are ordered by
// normalized form and keep the JD's casing.
func MatchSkills(jdRequired, resumeCanonical []string) (matched, missing []string) {
	original := make(map[string]string, len(jdRequired))
	for _, s := range jdRequired {
		n := NormalizeSkill(s)
		if n == "" {
			continue
		}
		if _, ok := original[n]; !ok {
			original[n] = textx.CollapseWhitespace(s)
		}
	}
	have := make(map[string]struct{}, len(resumeCanonical))
	for _, s := range resumeCanonical {
		have[NormalizeSkill(s)] = struct{}{}
	}

	keys := make([]string, 0, len(original))
	for k := range original {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	matched = make([]string, 0, len(keys))
	missing = make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := have[k]; ok {
			matched = append(matched, original[k])
		} else {
			missing = append(missing, original[k])
		}
	}
	return matched, missing
}

// EvidenceSkills flattens the display-only evidence skills of every
// dimension, deduplicated case-insensitively and ordered by normalized form.
func EvidenceSkills(ev domain.ResumeEvidence) []string {
	ids := make([]domain.DimensionID, 0, len(ev))
	for id := range ev {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	original := make(map[string]string)
	for _, id := range ids {
		for _, s := range ev[id].EvidenceSkills {
			raw := textx.CollapseWhitespace(s)
			if raw == "" {
				continue
			}
			key := strings.ToLower(raw)
			if _, ok := original[key]; !ok {
				original[key] = raw
			}
		}
	}
	keys := make([]string, 0, len(original))
	for k := range original {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, original[k])
	}
	return out
}
