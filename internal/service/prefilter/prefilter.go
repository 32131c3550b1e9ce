// Package prefilter implements the Phase-1 shortlist: a cheap keyword and
// experience score computed for every resume before any LLM call is made.
package prefilter

import (
	"math"
	"sort"
	"strings"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/internal/service/scoring"
)

// Phase-1 term weights.
const (
	weightRequired   = 0.5
	weightPreferred  = 0.2
	weightKeywords   = 0.2
	weightExperience = 0.1
)

// Requirements is the flattened view of a job description used by Phase 1.
type Requirements struct {
	MinExperienceYears float64
	RequiredSkills     []string
	PreferredSkills    []string
	Keywords           []string
}

// RequirementsFromStructure flattens the skills of every selected dimension.
// Lists are deduplicated case-insensitively in first-seen order; preferred
// skills that are also required are dropped and keywords are required
// followed by preferred.
func RequirementsFromStructure(s domain.JDStructure) Requirements {
	var required, preferred []string
	for _, d := range s.Dimensions {
		required = append(required, d.RequiredSkills...)
		preferred = append(preferred, d.PreferredSkills...)
	}
	required = scoring.DedupeSkills(required)
	isRequired := make(map[string]bool, len(required))
	for _, r := range required {
		isRequired[strings.ToLower(r)] = true
	}
	var pref []string
	for _, p := range scoring.DedupeSkills(preferred) {
		if !isRequired[strings.ToLower(p)] {
			pref = append(pref, p)
		}
	}
	return Requirements{
		MinExperienceYears: s.MinExperienceYears,
		RequiredSkills:     required,
		PreferredSkills:    pref,
		Keywords:           scoring.DedupeSkills(required, pref),
	}
}

// Options bounds the shortlist.
type Options struct {
	MinScore       int
	ShortlistCap   int
	RelaxThreshold int
	RelaxCap       int
}

// DefaultOptions returns the production cutoffs.
func DefaultOptions() Options {
	return Options{MinScore: 10, ShortlistCap: 25, RelaxThreshold: 5, RelaxCap: 15}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinScore < 0 {
		o.MinScore = 0
	}
	if o.ShortlistCap <= 0 {
		o.ShortlistCap = d.ShortlistCap
	}
	if o.RelaxThreshold < 0 {
		o.RelaxThreshold = d.RelaxThreshold
	}
	if o.RelaxCap <= 0 {
		o.RelaxCap = d.RelaxCap
	}
	return o
}

// Candidate is one scored resume.
type Candidate struct {
	Resume          domain.Resume
	Score           int
	Skills          []string
	MeetsExperience bool
}

// Result is the outcome of Shortlist.
type Result struct {
	Candidates []Candidate
	// Evaluated is the size of the input pool.
	Evaluated int
	// Passed counts candidates that met both the experience filter and MinScore.
	Passed  int
	Relaxed bool
}

// KeywordScore returns the Phase-1 score in [0, 100] of one resume whose
// canonical skills are given.
func KeywordScore(req Requirements, r domain.Resume, canonical []string) int {
	have := make(map[string]struct{}, len(canonical))
	for _, s := range canonical {
		have[s] = struct{}{}
	}

	score := weightRequired*overlap(req.RequiredSkills, have) +
		weightPreferred*overlap(req.PreferredSkills, have) +
		weightKeywords*textHits(req.Keywords, r) +
		weightExperience*experienceFit(req.MinExperienceYears, r.ExperienceYears)

	pts := int(math.Round(score * 100))
	switch {
	case pts < 0:
		return 0
	case pts > 100:
		return 100
	}
	return pts
}

// Shortlist scores every resume and returns the ordered, bounded candidate
// set. Candidates below the minimum experience are excluded unless fewer than
// RelaxThreshold candidates pass, in which case the whole pool is ranked and
// the top RelaxCap are kept.
func Shortlist(req Requirements, resumes []domain.Resume, opts Options) Result {
	opts = opts.withDefaults()

	all := make([]Candidate, 0, len(resumes))
	for _, r := range resumes {
		canonical := scoring.CanonicalResumeSkills(r)
		all = append(all, Candidate{
			Resume:          r,
			Score:           KeywordScore(req, r, canonical),
			Skills:          canonical,
			MeetsExperience: req.MinExperienceYears <= 0 || r.ExperienceYears >= req.MinExperienceYears,
		})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].Resume.ID < all[j].Resume.ID
	})

	passed := make([]Candidate, 0, len(all))
	for _, c := range all {
		if c.MeetsExperience && c.Score >= opts.MinScore {
			passed = append(passed, c)
		}
	}

	res := Result{Evaluated: len(all), Passed: len(passed)}
	if len(passed) < opts.RelaxThreshold {
		res.Relaxed = true
		res.Candidates = head(all, opts.RelaxCap)
		return res
	}
	res.Candidates = head(passed, opts.ShortlistCap)
	return res
}

func head(c []Candidate, n int) []Candidate {
	if len(c) > n {
		return c[:n]
	}
	return c
}

func overlap(skills []string, have map[string]struct{}) float64 {
	want := scoring.NormalizeSkills(skills)
	if len(want) == 0 {
		return 0
	}
	hits := 0
	for _, s := range want {
		if _, ok := have[s]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(want))
}

func textHits(keywords []string, r domain.Resume) float64 {
	want := scoring.NormalizeSkills(keywords)
	if len(want) == 0 {
		return 0
	}
	text := " " + tokenize(strings.Join([]string{r.Role, r.Summary, r.RawText}, " ")) + " "
	hits := 0
	for _, k := range want {
		if t := tokenize(k); t != "" && strings.Contains(text, " "+t+" ") {
			hits++
		}
	}
	return float64(hits) / float64(len(want))
}

func experienceFit(minYears, years float64) float64 {
	if minYears <= 0 {
		return 1
	}
	if years <= 0 {
		return 0
	}
	return math.Min(1, years/minYears)
}

// tokenize lowercases s, splits it on runes that cannot be part of a skill
// token and trims sentence punctuation from token edges.
func tokenize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == '+', r == '#', r == '.', r == '/', r == '-':
			return r
		case r > 127:
			return r
		}
		return ' '
	}, s)
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, ".-/"); f != "" {
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}
