package httpserver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-jd-matcher/internal/config"
	"github.com/fairyhunter13/ai-jd-matcher/internal/dimension"
	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/internal/usecase"
	"github.com/fairyhunter13/ai-jd-matcher/pkg/textx"
)

// Analyzer runs a synchronous analysis.
type Analyzer interface {
	Analyze(ctx domain.Context, req domain.AnalyzeRequest) (domain.AnalysisReport, error)
}

// Submitter queues an analysis.
type Submitter interface {
	Submit(ctx domain.Context, req domain.AnalyzeRequest) (usecase.Submission, error)
}

// ReportReader reads stored reports and history.
type ReportReader interface {
	Get(ctx domain.Context, jobID string) (domain.AnalysisReport, error)
	List(ctx domain.Context, limit int) ([]domain.AnalysisSummary, error)
}

// Server aggregates handlers dependencies.
type Server struct {
	Cfg     config.Config
	Analyze Analyzer
	// Submit is nil when no broker is configured.
	Submit    Submitter
	Results   ReportReader
	Library   *dimension.Library
	Extractor domain.TextExtractor

	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
	TikaCheck  func(ctx context.Context) error
	KafkaCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with the engine services wired.
func NewServer(cfg config.Config, an Analyzer, sub Submitter, results ReportReader, lib *dimension.Library, extractor domain.TextExtractor) *Server {
	if lib == nil {
		lib = dimension.Default()
	}
	return &Server{Cfg: cfg, Analyze: an, Submit: sub, Results: results, Library: lib, Extractor: extractor}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// analyzeBody is the JSON form of an analysis request. Multipart requests
// are mapped onto it so both go through the same validation.
type analyzeBody struct {
	JDText      string   `json:"jd_text" validate:"required,max=200000"`
	JDFilename  string   `json:"jd_filename" validate:"max=255"`
	MinScore    *int     `json:"min_score" validate:"omitempty,min=0,max=100"`
	TopN        *int     `json:"top_n" validate:"omitempty,min=1,max=50"`
	SourceTypes []string `json:"source_types" validate:"omitempty,max=20,dive,required,max=64"`
}

// allowedExt enforces an allowlist for uploads: .txt, .pdf, .docx
func allowedExt(name string) bool {
	n := strings.ToLower(name)
	return strings.HasSuffix(n, ".txt") || strings.HasSuffix(n, ".pdf") || strings.HasSuffix(n, ".docx")
}

func allowedMIMEFor(m string, filename string) bool {
	m = strings.ToLower(m)
	// Detectors sometimes classify plain text as another text/* type.
	if strings.HasSuffix(strings.ToLower(filename), ".txt") && strings.HasPrefix(m, "text/") {
		return true
	}
	if strings.HasPrefix(m, "text/plain") {
		return true
	}
	return m == "application/pdf" || m == "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
}

// extractUploadedText returns the JD text of an uploaded file. PDF and DOCX
// go through the document extractor; text files are sanitized directly.
func (s *Server) extractUploadedText(ctx context.Context, filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".pdf" || ext == ".docx" {
		if s.Extractor == nil {
			return "", fmt.Errorf("%w: %s uploads require TIKA_URL", domain.ErrConfiguration, strings.TrimPrefix(ext, "."))
		}
		text, err := s.Extractor.ExtractBytes(ctx, filename, data)
		if err != nil {
			return "", fmt.Errorf("%w: jd extract: %v", domain.ErrInvalidArgument, err)
		}
		return textx.SanitizeText(text), nil
	}
	return textx.SanitizeText(string(data)), nil
}

func acceptsJSON(w http.ResponseWriter, r *http.Request) bool {
	if a := r.Header.Get("Accept"); a != "" && a != "*/*" && !strings.Contains(a, "application/json") {
		writeStatusError(w, http.StatusNotAcceptable, "not acceptable", map[string]any{"accept": a})
		return false
	}
	return true
}

// readAnalyzeRequest decodes a JSON or multipart analysis request. It writes
// the error response itself and reports whether the caller may continue.
func (s *Server) readAnalyzeRequest(w http.ResponseWriter, r *http.Request) (domain.AnalyzeRequest, bool) {
	var body analyzeBody
	if strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		var ok bool
		if body, ok = s.readMultipart(w, r); !ok {
			return domain.AnalyzeRequest{}, false
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, s.Cfg.MaxUploadMB*1024*1024)
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeStatusError(w, http.StatusRequestEntityTooLarge, "payload too large", map[string]any{"max_mb": s.Cfg.MaxUploadMB})
				return domain.AnalyzeRequest{}, false
			}
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return domain.AnalyzeRequest{}, false
		}
	}
	if err := getValidator().Struct(body); err != nil {
		verrs := map[string]string{}
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				verrs[strings.ToLower(fe.Field())] = fe.Tag()
			}
		}
		writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
		return domain.AnalyzeRequest{}, false
	}

	req := domain.AnalyzeRequest{
		JDText:      body.JDText,
		JDFilename:  body.JDFilename,
		MinScore:    s.Cfg.DefaultMinScore,
		TopN:        s.Cfg.DefaultTopN,
		SourceTypes: body.SourceTypes,
		SubmittedBy: strings.TrimSpace(r.Header.Get("X-Submitted-By")),
	}
	if body.MinScore != nil {
		req.MinScore = *body.MinScore
	}
	if body.TopN != nil {
		req.TopN = *body.TopN
	}
	return req, true
}

func (s *Server) readMultipart(w http.ResponseWriter, r *http.Request) (analyzeBody, bool) {
	maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes*2)
	if err := r.ParseMultipartForm(maxBytes * 2); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "too large") {
			writeStatusError(w, http.StatusRequestEntityTooLarge, "payload too large", map[string]any{"max_mb": s.Cfg.MaxUploadMB})
			return analyzeBody{}, false
		}
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
		return analyzeBody{}, false
	}

	var body analyzeBody
	var verrs []ValidationError
	var verr *ValidationError
	if body.MinScore, verr = parseOptionalInt("min_score", r.FormValue("min_score")); verr != nil {
		verrs = append(verrs, *verr)
	}
	if body.TopN, verr = parseOptionalInt("top_n", r.FormValue("top_n")); verr != nil {
		verrs = append(verrs, *verr)
	}
	if len(verrs) > 0 {
		writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
		return analyzeBody{}, false
	}
	body.SourceTypes = splitList(r.MultipartForm.Value["source_types"])

	file, header, err := r.FormFile("jd_file")
	if errors.Is(err, http.ErrMissingFile) {
		body.JDText = r.FormValue("jd_text")
		return body, true
	}
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: jd_file: %v", domain.ErrInvalidArgument, err), map[string]string{"field": "jd_file"})
		return analyzeBody{}, false
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: jd_file read: %v", domain.ErrInvalidArgument, err), nil)
		return analyzeBody{}, false
	}
	if !allowedExt(header.Filename) {
		writeStatusError(w, http.StatusUnsupportedMediaType, "unsupported media type for jd_file (extension)", map[string]any{"filename": header.Filename})
		return analyzeBody{}, false
	}
	mt := mimetype.Detect(data)
	if !allowedMIMEFor(mt.String(), header.Filename) {
		writeStatusError(w, http.StatusUnsupportedMediaType, "unsupported media type for jd_file (content)", map[string]any{"mime": mt.String(), "filename": header.Filename})
		return analyzeBody{}, false
	}
	text, err := s.extractUploadedText(r.Context(), header.Filename, data)
	if err != nil {
		writeError(w, r, err, map[string]string{"field": "jd_file"})
		return analyzeBody{}, false
	}
	body.JDText = text
	body.JDFilename = filepath.Base(header.Filename)
	return body, true
}

// AnalyzeHandler runs an analysis and returns the ranked report.
func (s *Server) AnalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		req, ok := s.readAnalyzeRequest(w, r)
		if !ok {
			return
		}
		report, err := s.Analyze.Analyze(r.Context(), req)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// AnalyzeAsyncHandler queues an analysis for the worker.
func (s *Server) AnalyzeAsyncHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		if s.Submit == nil {
			writeError(w, r, fmt.Errorf("%w: async analyses require KAFKA_BROKERS", domain.ErrConfiguration), nil)
			return
		}
		req, ok := s.readAnalyzeRequest(w, r)
		if !ok {
			return
		}
		sub, err := s.Submit.Submit(r.Context(), req)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Location", "/v1/analyses/"+sub.JobID)
		writeJSON(w, http.StatusAccepted, sub)
	}
}

// AnalysisHandler returns the latest stored report of a job description.
// Reports carry an ETag so pollers can use If-None-Match.
func (s *Server) AnalysisHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		id := strings.TrimSpace(chi.URLParam(r, "job_id"))
		if v := ValidateJobID(id); !v.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid job id", domain.ErrInvalidArgument), v.Errors)
			return
		}
		report, err := s.Results.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		b, err := json.Marshal(report)
		if err != nil {
			writeError(w, r, fmt.Errorf("op=httpserver.AnalysisHandler: %w", err), nil)
			return
		}
		sum := sha256.Sum256(b)
		etag := `"` + hex.EncodeToString(sum[:8]) + `"`
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(append(b, '\n'))
	}
}

// ListAnalysesHandler lists recent analyses, newest first.
func (s *Server) ListAnalysesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		raw := r.URL.Query().Get("limit")
		if v := ValidateLimit(raw); !v.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid limit", domain.ErrInvalidArgument), v.Errors)
			return
		}
		limit, _ := parseOptionalInt("limit", raw)
		n := 0
		if limit != nil {
			n = *limit
		}
		items, err := s.Results.List(r.Context(), n)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if items == nil {
			items = []domain.AnalysisSummary{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"analyses": items, "count": len(items)})
	}
}

type dimensionView struct {
	domain.Dimension
	Anchor bool `json:"anchor"`
}

// DimensionsHandler lists the dimension library.
func (s *Server) DimensionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		anchors := map[domain.DimensionID]bool{}
		for _, id := range domain.AnchorDimensions() {
			anchors[id] = true
		}
		dims := s.Library.List()
		out := make([]dimensionView, 0, len(dims))
		for _, d := range dims {
			out = append(out, dimensionView{Dimension: d, Anchor: anchors[d.ID]})
		}
		writeJSON(w, http.StatusOK, map[string]any{"engine_version": domain.EngineVersion, "dimensions": out})
	}
}

// ReadyzHandler returns a readiness handler that probes DB, Redis, Tika and Kafka.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		probes := []struct {
			name string
			fn   func(context.Context) error
		}{
			{"db", s.DBCheck},
			{"redis", s.RedisCheck},
			{"tika", s.TikaCheck},
			{"kafka", s.KafkaCheck},
		}
		checks := make([]check, 0, len(probes))
		ok := true
		for _, p := range probes {
			if p.fn == nil {
				continue
			}
			if err := p.fn(ctx); err != nil {
				ok = false
				checks = append(checks, check{Name: p.name, OK: false, Details: err.Error()})
				continue
			}
			checks = append(checks, check{Name: p.name, OK: true})
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
