package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-jd-matcher/internal/dimension"
	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/internal/service/scoring"
	"github.com/fairyhunter13/ai-jd-matcher/pkg/textx"
)

var weightsJDFile string

var weightsCmd = &cobra.Command{
	Use:   "weights <dimension-id>...",
	Short: "Print the weights of a dimension selection",
	Long: "Print the weights the engine assigns to a dimension selection. The anchor dimensions are added " +
		"when missing. With --jd-file the JD hash, job id and structure hash are printed too.",
	Args: cobra.MinimumNArgs(1),
	RunE: runWeights,
}

func init() {
	weightsCmd.Flags().StringVar(&weightsJDFile, "jd-file", "", "Job description text file used for the structure hash")
	rootCmd.AddCommand(weightsCmd)
}

// selection puts the anchors first and drops duplicates.
func selection(args []string) []domain.DimensionID {
	seen := map[domain.DimensionID]bool{}
	var ids []domain.DimensionID
	add := func(id domain.DimensionID) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range domain.AnchorDimensions() {
		add(id)
	}
	for _, a := range args {
		add(domain.DimensionID(strings.TrimSpace(a)))
	}
	return ids
}

func runWeights(cmd *cobra.Command, args []string) error {
	ids := selection(args)
	if err := dimension.Default().Validate(ids); err != nil {
		return err
	}
	weights := scoring.AssignWeights(ids)
	out := cmd.OutOrStdout()
	for _, id := range ids {
		fmt.Fprintf(out, "%-24s %3d\n", id, weights[id])
	}
	if weightsJDFile == "" {
		return nil
	}
	b, err := os.ReadFile(weightsJDFile)
	if err != nil {
		return fmt.Errorf("read jd file: %w", err)
	}
	jdHash := scoring.JDHash(textx.SanitizeText(string(b)))
	fmt.Fprintf(out, "jd_hash         %s\n", jdHash)
	fmt.Fprintf(out, "job_id          %s\n", scoring.JobID(jdHash))
	fmt.Fprintf(out, "structure_hash  %s\n", scoring.StructureHash(jdHash, weights))
	return nil
}
