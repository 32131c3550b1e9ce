package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
)

const (
	explainTopDimensions  = 2
	explainMatchedSkills  = 3
	recommendationMargin  = 3
	fallbackStrengthLabel = "key areas"
)

type dimScore struct {
	id    domain.DimensionID
	score int
}

func sortedScores(b domain.Breakdown) []dimScore {
	out := make([]dimScore, 0, len(b))
	for id, s := range b {
		out = append(out, dimScore{id: id, score: s})
	}
	return out
}

// TopDimensions returns up to n dimensions by score descending; equal scores
// are ordered by dimension id descending.
func TopDimensions(b domain.Breakdown, n int) []domain.DimensionID {
	items := sortedScores(b)
	sort.Slice(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].id > items[j].id
	})
	if n > len(items) {
		n = len(items)
	}
	out := make([]domain.DimensionID, 0, n)
	for _, it := range items[:n] {
		out = append(out, it.id)
	}
	return out
}

// LowestDimension returns the lowest scoring dimension, ties by dimension id.
func LowestDimension(b domain.Breakdown) (domain.DimensionID, bool) {
	items := sortedScores(b)
	if len(items) == 0 {
		return "", false
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score < items[j].score
		}
		return items[i].id < items[j].id
	})
	return items[0].id, true
}

// Explain renders the two-sentence explanation of a score. The first
// sentence names the strongest dimensions and up to three matched skills; the
// second names the first missing skill, else the weakest dimension, else
// states that no gap was found.
func Explain(total int, b domain.Breakdown, labels map[domain.DimensionID]string, matched, missing []string) string {
	label := func(id domain.DimensionID) string {
		if l, ok := labels[id]; ok && l != "" {
			return l
		}
		return string(id)
	}

	top := TopDimensions(b, explainTopDimensions)
	names := make([]string, 0, len(top))
	for _, id := range top {
		if l := label(id); l != "" {
			names = append(names, l)
		}
	}
	strengths := strings.Join(names, " and ")
	if strengths == "" {
		strengths = fallbackStrengthLabel
	}

	matchedPart := ""
	if len(matched) > 0 {
		n := len(matched)
		if n > explainMatchedSkills {
			n = explainMatchedSkills
		}
		matchedPart = fmt.Sprintf(" (matched: %s)", strings.Join(matched[:n], ", "))
	}
	first := fmt.Sprintf("Scored %d/100 with strongest alignment in %s%s.", total, strengths, matchedPart)

	var second string
	switch low, ok := LowestDimension(b); {
	case len(missing) > 0:
		second = fmt.Sprintf("Main gap is %s; improving this could raise the fit for the role.", missing[0])
	case ok:
		second = fmt.Sprintf("Main gap is weaker alignment in %s; more direct evidence could improve the score.", label(low))
	default:
		second = "No major gaps detected from the available resume evidence."
	}
	return first + " " + second
}

// Recommendation summarizes a ranked result list in one sentence.
func Recommendation(results []domain.CandidateResult) string {
	if len(results) == 0 {
		return "No suitable candidates found for this JD."
	}
	if len(results) >= 2 && absInt(results[0].TotalScore-results[1].TotalScore) <= recommendationMargin {
		return "Both candidates are comparable; role focus should decide."
	}
	return fmt.Sprintf("%s is the stronger match for this JD.", results[0].Candidate)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
