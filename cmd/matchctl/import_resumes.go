package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-jd-matcher/internal/config"
)

var (
	importResumesFile string
	importDatabaseURL string
)

var importResumesCmd = &cobra.Command{
	Use:   "import-resumes",
	Short: "Upsert a resume file into the candidate pool",
	Long:  "Upsert every resume of a JSON file into Postgres, applying migrations first. Existing resumes with the same id are replaced.",
	Args:  cobra.NoArgs,
	RunE:  runImportResumes,
}

func init() {
	importResumesCmd.Flags().StringVar(&importResumesFile, "resumes", "", "JSON array of resumes (required)")
	importResumesCmd.Flags().StringVar(&importDatabaseURL, "db-url", "", "Database URL (overrides DB_URL)")
	_ = importResumesCmd.MarkFlagRequired("resumes")
	rootCmd.AddCommand(importResumesCmd)
}

func runImportResumes(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if importDatabaseURL != "" {
		cfg.DBURL = importDatabaseURL
	}
	resumes, err := loadResumes(importResumesFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		return err
	}
	repo := postgres.NewResumeRepo(pool)
	for _, r := range resumes {
		if err := repo.Upsert(ctx, r); err != nil {
			return fmt.Errorf("resume %s: %w", r.ID, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d resumes\n", len(resumes))
	return nil
}
