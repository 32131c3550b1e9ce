package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
)

// resumeRecord is one entry of a resume file.
type resumeRecord struct {
	ID              string   `json:"id" validate:"required,max=128"`
	Name            string   `json:"name"`
	Role            string   `json:"role"`
	ExperienceYears float64  `json:"experience_years" validate:"gte=0,lte=80"`
	Skills          []string `json:"skills"`
	TechnicalSkills []string `json:"technical_skills"`
	AllSkills       []string `json:"all_skills"`
	Summary         string   `json:"summary"`
	RawText         string   `json:"raw_text"`
	SourceType      string   `json:"source_type"`
}

func (r resumeRecord) toDomain() domain.Resume {
	return domain.Resume{
		ID:              strings.TrimSpace(r.ID),
		Name:            r.Name,
		Role:            r.Role,
		ExperienceYears: r.ExperienceYears,
		Skills:          r.Skills,
		TechnicalSkills: r.TechnicalSkills,
		AllSkills:       r.AllSkills,
		Summary:         r.Summary,
		RawText:         r.RawText,
		SourceType:      r.SourceType,
	}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// loadResumes reads a JSON array of resumes. Ids must be unique.
func loadResumes(path string) ([]domain.Resume, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resumes: %w", err)
	}
	var records []resumeRecord
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("decode resumes: %w", err)
	}
	seen := make(map[string]bool, len(records))
	out := make([]domain.Resume, 0, len(records))
	for i, rec := range records {
		if err := getValidator().Struct(rec); err != nil {
			return nil, fmt.Errorf("resume %d: %w", i, err)
		}
		r := rec.toDomain()
		if seen[r.ID] {
			return nil, fmt.Errorf("resume %d: duplicate id %q", i, r.ID)
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out, nil
}

// fileResumes serves a loaded resume file as the candidate pool. Source
// types match exactly, as in Postgres.
type fileResumes []domain.Resume

func (f fileResumes) ListCandidates(_ domain.Context, filter domain.ResumeFilter) ([]domain.Resume, error) {
	if len(filter.SourceTypes) == 0 {
		return f, nil
	}
	allowed := make(map[string]bool, len(filter.SourceTypes))
	for _, s := range filter.SourceTypes {
		allowed[s] = true
	}
	var out []domain.Resume
	for _, r := range f {
		if allowed[r.SourceType] {
			out = append(out, r)
		}
	}
	return out, nil
}
