package postgres

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
)

const resumeColumns = `id, name, role, experience_years, skills, technical_skills, all_skills,
	summary, raw_text, source_type, created_at`

// ResumeRepo reads the candidate pool.
type ResumeRepo struct{ Pool PgxPool }

// NewResumeRepo constructs a ResumeRepo with the given pool.
func NewResumeRepo(p PgxPool) *ResumeRepo { return &ResumeRepo{Pool: p} }

// ListCandidates returns every resume matching the filter ordered by id.
func (r *ResumeRepo) ListCandidates(ctx domain.Context, f domain.ResumeFilter) ([]domain.Resume, error) {
	ctx, span := otel.Tracer("repo.resumes").Start(ctx, "resumes.ListCandidates")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "resumes"),
	)

	q := `SELECT ` + resumeColumns + ` FROM resumes`
	var args []any
	if len(f.SourceTypes) > 0 {
		q += ` WHERE source_type = ANY($1)`
		args = append(args, f.SourceTypes)
	}
	q += ` ORDER BY id`

	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=resume.list: %w", err)
	}
	defer rows.Close()

	var out []domain.Resume
	for rows.Next() {
		var res domain.Resume
		var skills, technical, all []byte
		if err := rows.Scan(&res.ID, &res.Name, &res.Role, &res.ExperienceYears, &skills, &technical, &all,
			&res.Summary, &res.RawText, &res.SourceType, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=resume.list: %w", err)
		}
		if err := unmarshalAll(blob{skills, &res.Skills}, blob{technical, &res.TechnicalSkills}, blob{all, &res.AllSkills}); err != nil {
			return nil, fmt.Errorf("op=resume.list: resume %s: %w", res.ID, err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=resume.list: %w", err)
	}
	span.SetAttributes(attribute.Int("resume.count", len(out)))
	return out, nil
}

// Upsert inserts or replaces a resume. It backs the import command.
func (r *ResumeRepo) Upsert(ctx domain.Context, res domain.Resume) error {
	ctx, span := otel.Tracer("repo.resumes").Start(ctx, "resumes.Upsert")
	defer span.End()

	if res.ID == "" {
		return fmt.Errorf("op=resume.upsert: %w: empty id", domain.ErrInvalidArgument)
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	blobs, err := marshalAll(nonNil(res.Skills), nonNil(res.TechnicalSkills), nonNil(res.AllSkills))
	if err != nil {
		return fmt.Errorf("op=resume.upsert: %w", err)
	}
	q := `INSERT INTO resumes (` + resumeColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, role=EXCLUDED.role, experience_years=EXCLUDED.experience_years,
	skills=EXCLUDED.skills, technical_skills=EXCLUDED.technical_skills, all_skills=EXCLUDED.all_skills,
	summary=EXCLUDED.summary, raw_text=EXCLUDED.raw_text, source_type=EXCLUDED.source_type`
	if _, err := r.Pool.Exec(ctx, q, res.ID, res.Name, res.Role, res.ExperienceYears, blobs[0], blobs[1], blobs[2],
		res.Summary, res.RawText, res.SourceType, res.CreatedAt); err != nil {
		return fmt.Errorf("op=resume.upsert: %w", err)
	}
	return nil
}
