package prefilter_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/internal/service/prefilter"
	"github.com/fairyhunter13/ai-jd-matcher/internal/service/scoring"
)

func cloudReq() prefilter.Requirements {
	return prefilter.Requirements{
		MinExperienceYears: 5,
		RequiredSkills:     []string{"AWS", "Kubernetes"},
		Keywords:           []string{"AWS", "Kubernetes"},
	}
}

func TestKeywordScore_Terms(t *testing.T) {
	req := prefilter.Requirements{
		MinExperienceYears: 4,
		RequiredSkills:     []string{"Go", "PostgreSQL"},
		PreferredSkills:    []string{"Kafka", "Redis"},
		Keywords:           []string{"Go", "PostgreSQL", "Kafka", "Redis"},
	}
	r := domain.Resume{
		ID:              "r1",
		ExperienceYears: 2,
		Skills:          []string{"go", "Kafka"},
		RawText:         "Built services in Go. Good at postgresql.",
	}
	// 0.5*0.5 + 0.2*0.5 + 0.2*0.5 + 0.1*0.5 = 0.5
	assert.Equal(t, 50, prefilter.KeywordScore(req, r, scoring.CanonicalResumeSkills(r)))
}

func TestKeywordScore_NoRequirements(t *testing.T) {
	r := domain.Resume{ID: "r1", ExperienceYears: 3}
	assert.Equal(t, 10, prefilter.KeywordScore(prefilter.Requirements{}, r, nil))
}

func TestKeywordScore_TokenBoundaries(t *testing.T) {
	req := prefilter.Requirements{Keywords: []string{"Go", "C++", "Node.js"}}
	r := domain.Resume{RawText: "Good golang engineer with C++ and Node.js."}
	// "go" does not match "good" or "golang"; 2 of 3 keywords hit.
	assert.Equal(t, 23, prefilter.KeywordScore(req, r, nil))
}

func TestShortlist_EndToEndScenario(t *testing.T) {
	a := domain.Resume{ID: "A", ExperienceYears: 6, Skills: []string{"AWS", "Kubernetes"}, RawText: "Ran Kubernetes on AWS for six years."}
	b := domain.Resume{ID: "B", ExperienceYears: 1, Skills: []string{"Excel"}, RawText: "Office administration."}

	res := prefilter.Shortlist(cloudReq(), []domain.Resume{b, a}, prefilter.DefaultOptions())
	require.Len(t, res.Candidates, 2)
	assert.True(t, res.Relaxed, "fewer than five candidates pass, so the filter is relaxed")
	assert.Equal(t, 1, res.Passed)
	assert.Equal(t, 2, res.Evaluated)
	assert.Equal(t, "A", res.Candidates[0].Resume.ID)
	assert.Equal(t, 80, res.Candidates[0].Score)
	assert.True(t, res.Candidates[0].MeetsExperience)
	assert.Equal(t, "B", res.Candidates[1].Resume.ID)
	assert.False(t, res.Candidates[1].MeetsExperience)
	assert.Equal(t, 2, res.Candidates[1].Score)
}

func pool(n int, years float64) []domain.Resume {
	out := make([]domain.Resume, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Resume{
			ID:              fmt.Sprintf("r%02d", i),
			ExperienceYears: years,
			Skills:          []string{"AWS", "Kubernetes"},
		})
	}
	return out
}

func TestShortlist_HardExperienceFilter(t *testing.T) {
	resumes := append(pool(6, 7), domain.Resume{ID: "junior", ExperienceYears: 1, Skills: []string{"AWS", "Kubernetes"}})

	res := prefilter.Shortlist(cloudReq(), resumes, prefilter.DefaultOptions())
	assert.False(t, res.Relaxed)
	assert.Equal(t, 6, res.Passed)
	require.Len(t, res.Candidates, 6)
	for _, c := range res.Candidates {
		assert.NotEqual(t, "junior", c.Resume.ID)
	}
	assert.Equal(t, "r00", res.Candidates[0].Resume.ID, "equal scores are ordered by resume id")
}

func TestShortlist_Caps(t *testing.T) {
	res := prefilter.Shortlist(cloudReq(), pool(40, 8), prefilter.DefaultOptions())
	assert.False(t, res.Relaxed)
	assert.Len(t, res.Candidates, 25)

	relaxed := prefilter.Shortlist(cloudReq(), pool(40, 1), prefilter.DefaultOptions())
	assert.True(t, relaxed.Relaxed)
	assert.Len(t, relaxed.Candidates, 15)

	custom := prefilter.Shortlist(cloudReq(), pool(40, 1), prefilter.Options{RelaxThreshold: 5, RelaxCap: 3})
	assert.Len(t, custom.Candidates, 3)
}

func TestShortlist_MinScoreCountsAsFilter(t *testing.T) {
	opts := prefilter.DefaultOptions()
	opts.MinScore = 90
	res := prefilter.Shortlist(cloudReq(), pool(10, 8), opts)
	// Every candidate scores 60 (no raw text hits), below the bar.
	assert.Equal(t, 0, res.Passed)
	assert.True(t, res.Relaxed)
	assert.Len(t, res.Candidates, 10)
	assert.Equal(t, 60, res.Candidates[0].Score)
}

func TestShortlist_Empty(t *testing.T) {
	res := prefilter.Shortlist(cloudReq(), nil, prefilter.DefaultOptions())
	assert.Empty(t, res.Candidates)
	assert.Equal(t, 0, res.Evaluated)
}

func TestRequirementsFromStructure(t *testing.T) {
	s := domain.JDStructure{
		MinExperienceYears: 5,
		Dimensions: []domain.SelectedDimension{
			{ID: domain.DimensionExperienceSeniority},
			{ID: domain.DimensionCoreTechnicalSkills, RequiredSkills: []string{"AWS", "Kubernetes"}, PreferredSkills: []string{"Helm", "aws"}},
			{ID: "cloud_architecture", RequiredSkills: []string{"kubernetes", "Terraform"}, PreferredSkills: []string{"helm", "Istio"}},
		},
	}
	req := prefilter.RequirementsFromStructure(s)
	assert.Equal(t, 5.0, req.MinExperienceYears)
	assert.Equal(t, []string{"AWS", "Kubernetes", "Terraform"}, req.RequiredSkills)
	assert.Equal(t, []string{"Helm", "Istio"}, req.PreferredSkills)
	assert.Equal(t, []string{"AWS", "Kubernetes", "Terraform", "Helm", "Istio"}, req.Keywords)
}
