package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/cache/memory"
	"github.com/fairyhunter13/ai-jd-matcher/internal/app"
	"github.com/fairyhunter13/ai-jd-matcher/internal/config"
	"github.com/fairyhunter13/ai-jd-matcher/internal/dimension"
	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/internal/usecase"
)

var (
	analyzeJDFile      string
	analyzeResumesFile string
	analyzeProvider    string
	analyzeMinScore    int
	analyzeTopN        int
	analyzeSourceTypes []string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Rank a resume file against a job description",
	Long: "Run the full engine in-process: structure extraction, Phase-1 shortlist, evidence scoring and ranking. " +
		"Results are cached in memory for the duration of the command only. The report is printed as JSON.",
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeJDFile, "jd-file", "", "Job description text file (required)")
	analyzeCmd.Flags().StringVar(&analyzeResumesFile, "resumes", "", "JSON array of resumes (required)")
	analyzeCmd.Flags().StringVar(&analyzeProvider, "provider", "", "LLM provider: openai or stub (overrides LLM_PROVIDER)")
	analyzeCmd.Flags().IntVar(&analyzeMinScore, "min-score", -1, "Minimum total score (defaults to DEFAULT_MIN_SCORE)")
	analyzeCmd.Flags().IntVar(&analyzeTopN, "top-n", 0, "Number of results (defaults to DEFAULT_TOP_N)")
	analyzeCmd.Flags().StringSliceVar(&analyzeSourceTypes, "source-type", nil, "Restrict the pool to these source types")
	_ = analyzeCmd.MarkFlagRequired("jd-file")
	_ = analyzeCmd.MarkFlagRequired("resumes")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if analyzeProvider != "" {
		cfg.LLMProvider = strings.ToLower(analyzeProvider)
	}
	jd, err := os.ReadFile(analyzeJDFile)
	if err != nil {
		return fmt.Errorf("read jd file: %w", err)
	}
	pool, err := loadResumes(analyzeResumesFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	lib := dimension.Default()
	engine := app.NewExtractor(cfg, app.NewLLMClient(cfg, nil), lib)
	svc := usecase.NewAnalyzeService(fileResumes(pool), nil, memory.New(), engine, usecase.AnalyzeOptionsFromConfig(cfg))

	req := domain.AnalyzeRequest{
		JDText:      string(jd),
		JDFilename:  filepath.Base(analyzeJDFile),
		MinScore:    cfg.DefaultMinScore,
		TopN:        analyzeTopN,
		SourceTypes: analyzeSourceTypes,
	}
	if analyzeMinScore >= 0 {
		req.MinScore = analyzeMinScore
	}
	report, err := svc.Analyze(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
