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

const matchColumns = `structure_hash, resume_id, engine_version, job_id, jd_role, total_score,
	weights, breakdown, dimension_labels, matched_skills, missing_skills, evidence_skills,
	explanation, created_at`

// MatchCacheRepo is the durable match cache. It only ever returns rows
// tagged with the running engine version.
type MatchCacheRepo struct {
	Pool    PgxPool
	version string
}

// NewMatchCacheRepo constructs a MatchCacheRepo for domain.EngineVersion.
func NewMatchCacheRepo(p PgxPool) *MatchCacheRepo {
	return &MatchCacheRepo{Pool: p, version: domain.EngineVersion}
}

// Lookup returns the cached result of one (structure, resume) pair.
func (r *MatchCacheRepo) Lookup(ctx domain.Context, structureHash, resumeID string) (domain.MatchResult, bool, error) {
	ctx, span := otel.Tracer("repo.match_cache").Start(ctx, "match_cache.Lookup")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "match_results"))

	q := `SELECT ` + matchColumns + ` FROM match_results
	WHERE structure_hash=$1 AND resume_id=$2 AND engine_version=$3`
	m, err := scanMatch(r.Pool.QueryRow(ctx, q, structureHash, resumeID, r.version))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MatchResult{}, false, nil
		}
		return domain.MatchResult{}, false, fmt.Errorf("op=match_cache.lookup: %w", err)
	}
	return m, true, nil
}

// LookupMany returns the cached results of the given resumes keyed by resume id.
func (r *MatchCacheRepo) LookupMany(ctx domain.Context, structureHash string, resumeIDs []string) (map[string]domain.MatchResult, error) {
	ctx, span := otel.Tracer("repo.match_cache").Start(ctx, "match_cache.LookupMany")
	defer span.End()
	span.SetAttributes(attribute.Int("resume.count", len(resumeIDs)))

	out := make(map[string]domain.MatchResult, len(resumeIDs))
	if len(resumeIDs) == 0 {
		return out, nil
	}
	q := `SELECT ` + matchColumns + ` FROM match_results
	WHERE structure_hash=$1 AND engine_version=$2 AND resume_id = ANY($3)`
	rows, err := r.Pool.Query(ctx, q, structureHash, r.version, resumeIDs)
	if err != nil {
		return nil, fmt.Errorf("op=match_cache.lookup_many: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("op=match_cache.lookup_many: %w", err)
		}
		out[m.ResumeID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=match_cache.lookup_many: %w", err)
	}
	return out, nil
}

// Store inserts a result. A concurrent insert of the same key wins silently;
// rows are never updated.
func (r *MatchCacheRepo) Store(ctx domain.Context, m domain.MatchResult) error {
	ctx, span := otel.Tracer("repo.match_cache").Start(ctx, "match_cache.Store")
	defer span.End()

	if m.EngineVersion == "" {
		m.EngineVersion = r.version
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	blobs, err := marshalAll(m.Weights, m.Breakdown, m.DimensionLabels, nonNil(m.MatchedSkills), nonNil(m.MissingSkills), nonNil(m.EvidenceSkills))
	if err != nil {
		return fmt.Errorf("op=match_cache.store: %w: %w", domain.ErrCacheWriteFailed, err)
	}
	q := `INSERT INTO match_results (` + matchColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	ON CONFLICT (structure_hash, resume_id, engine_version) DO NOTHING`
	_, err = r.Pool.Exec(ctx, q, m.StructureHash, m.ResumeID, m.EngineVersion, m.JobID, m.JDRole, m.TotalScore,
		blobs[0], blobs[1], blobs[2], blobs[3], blobs[4], blobs[5], m.Explanation, m.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("op=match_cache.store: %w: %w", domain.ErrCacheWriteFailed, err)
	}
	return nil
}

func scanMatch(row pgx.Row) (domain.MatchResult, error) {
	var m domain.MatchResult
	var weights, breakdown, labels, matched, missing, evidence []byte
	if err := row.Scan(&m.StructureHash, &m.ResumeID, &m.EngineVersion, &m.JobID, &m.JDRole, &m.TotalScore,
		&weights, &breakdown, &labels, &matched, &missing, &evidence, &m.Explanation, &m.CreatedAt); err != nil {
		return domain.MatchResult{}, err
	}
	if err := unmarshalAll(
		blob{weights, &m.Weights}, blob{breakdown, &m.Breakdown}, blob{labels, &m.DimensionLabels},
		blob{matched, &m.MatchedSkills}, blob{missing, &m.MissingSkills}, blob{evidence, &m.EvidenceSkills},
	); err != nil {
		return domain.MatchResult{}, err
	}
	return m, nil
}

type blob struct {
	raw []byte
	dst any
}

func unmarshalAll(blobs ...blob) error {
	for _, b := range blobs {
		if len(b.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(b.raw, b.dst); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrSchemaInvalid, err)
		}
	}
	return nil
}

func marshalAll(values ...any) ([][]byte, error) {
	out := make([][]byte, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
