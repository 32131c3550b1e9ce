package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
)

// AnalysisRepo stores one canonical row per job description hash together
// with its latest report.
type AnalysisRepo struct{ Pool PgxPool }

// NewAnalysisRepo constructs an AnalysisRepo with the given pool.
func NewAnalysisRepo(p PgxPool) *AnalysisRepo { return &AnalysisRepo{Pool: p} }

// Ensure inserts the analysis row for a.JDHash or touches the existing one,
// and returns the stored row. The job id of an existing row is kept.
func (r *AnalysisRepo) Ensure(ctx domain.Context, a domain.Analysis) (domain.Analysis, error) {
	ctx, span := otel.Tracer("repo.analyses").Start(ctx, "analyses.Ensure")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("jd.hash", a.JDHash))

	if a.JobID == "" || a.JDHash == "" {
		return domain.Analysis{}, fmt.Errorf("op=analysis.ensure: %w: job id and jd hash required", domain.ErrInvalidArgument)
	}
	now := time.Now().UTC()
	q := `INSERT INTO jd_analyses (job_id, jd_hash, filename, jd_text, submitted_by, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$6)
	ON CONFLICT (jd_hash) DO UPDATE SET updated_at=EXCLUDED.updated_at,
		filename=CASE WHEN EXCLUDED.filename <> '' THEN EXCLUDED.filename ELSE jd_analyses.filename END
	RETURNING job_id, jd_hash, filename, role, submitted_by, created_at, updated_at`
	var out domain.Analysis
	err := r.Pool.QueryRow(ctx, q, a.JobID, a.JDHash, a.Filename, a.Text, a.SubmittedBy, now).
		Scan(&out.JobID, &out.JDHash, &out.Filename, &out.Role, &out.SubmittedBy, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("op=analysis.ensure: %w", err)
	}
	out.Text = a.Text
	return out, nil
}

// UpdateRequirements records what extraction found for the job description.
func (r *AnalysisRepo) UpdateRequirements(ctx domain.Context, a domain.Analysis) error {
	ctx, span := otel.Tracer("repo.analyses").Start(ctx, "analyses.UpdateRequirements")
	defer span.End()

	blobs, err := marshalAll(nonNil(a.RequiredSkills), nonNil(a.PreferredSkills), nonNil(a.Keywords))
	if err != nil {
		return fmt.Errorf("op=analysis.update_requirements: %w", err)
	}
	q := `UPDATE jd_analyses SET
		filename=CASE WHEN $2::text <> '' THEN $2::text ELSE filename END,
		role=$3, min_experience_years=$4, required_skills=$5, preferred_skills=$6, keywords=$7, updated_at=$8
	WHERE job_id=$1`
	tag, err := r.Pool.Exec(ctx, q, a.JobID, a.Filename, a.Role, a.MinExperienceYears, blobs[0], blobs[1], blobs[2], time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=analysis.update_requirements: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=analysis.update_requirements: %w", domain.ErrNotFound)
	}
	return nil
}

// SaveReport replaces the latest report of a job.
func (r *AnalysisRepo) SaveReport(ctx domain.Context, jobID string, report domain.AnalysisReport) error {
	ctx, span := otel.Tracer("repo.analyses").Start(ctx, "analyses.SaveReport")
	defer span.End()

	b, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("op=analysis.save_report: %w", err)
	}
	q := `UPDATE jd_analyses SET report=$2, result_count=$3, updated_at=$4 WHERE job_id=$1`
	tag, err := r.Pool.Exec(ctx, q, jobID, b, len(report.Results), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=analysis.save_report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=analysis.save_report: %w", domain.ErrNotFound)
	}
	return nil
}

// GetReport loads the latest report of a job.
func (r *AnalysisRepo) GetReport(ctx domain.Context, jobID string) (domain.AnalysisReport, error) {
	ctx, span := otel.Tracer("repo.analyses").Start(ctx, "analyses.GetReport")
	defer span.End()

	var raw []byte
	err := r.Pool.QueryRow(ctx, `SELECT report FROM jd_analyses WHERE job_id=$1 AND report IS NOT NULL`, jobID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AnalysisReport{}, fmt.Errorf("op=analysis.get_report: %w", domain.ErrNotFound)
		}
		return domain.AnalysisReport{}, fmt.Errorf("op=analysis.get_report: %w", err)
	}
	var report domain.AnalysisReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return domain.AnalysisReport{}, fmt.Errorf("op=analysis.get_report: %w: %w", domain.ErrSchemaInvalid, err)
	}
	return report, nil
}

// List returns the most recently updated analyses first.
func (r *AnalysisRepo) List(ctx domain.Context, limit int) ([]domain.AnalysisSummary, error) {
	ctx, span := otel.Tracer("repo.analyses").Start(ctx, "analyses.List")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	q := `SELECT job_id, jd_hash, role, filename, result_count, created_at, updated_at
	FROM jd_analyses ORDER BY updated_at DESC, job_id LIMIT $1`
	rows, err := r.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("op=analysis.list: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AnalysisSummary, 0, limit)
	for rows.Next() {
		var s domain.AnalysisSummary
		if err := rows.Scan(&s.JobID, &s.JDHash, &s.Role, &s.Filename, &s.ResultCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("op=analysis.list: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=analysis.list: %w", err)
	}
	return out, nil
}
