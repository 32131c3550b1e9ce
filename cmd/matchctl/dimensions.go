package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-jd-matcher/internal/dimension"
	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
)

var dimensionsJSON bool

var dimensionsCmd = &cobra.Command{
	Use:   "dimensions",
	Short: "List the dimension library",
	Args:  cobra.NoArgs,
	RunE:  runDimensions,
}

func init() {
	dimensionsCmd.Flags().BoolVar(&dimensionsJSON, "json", false, "Print the library as JSON")
	rootCmd.AddCommand(dimensionsCmd)
}

func runDimensions(cmd *cobra.Command, _ []string) error {
	dims := dimension.Default().List()
	out := cmd.OutOrStdout()
	if dimensionsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"engine_version": domain.EngineVersion, "dimensions": dims})
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tSEED SKILLS")
	for _, d := range dims {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Label, strings.Join(d.SeedSkills, ", "))
	}
	return tw.Flush()
}
