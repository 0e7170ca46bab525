package cmd

import (
	"fmt"
	"net/url"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	domain "github.com/bryanwahyu/leaflens/internal/domain/plants"
)

var listQuery struct {
	search   string
	health   string
	severity string
	sort     string
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List plant records",
	Long: `List the plant library, optionally filtered and sorted.

Filtering is done locally over the full library so the summary line
always matches what is shown.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		all, err := api.ListPlants(cmd.Context(), domain.Query{})
		if err != nil {
			return fmt.Errorf("fetch plants: %w", err)
		}

		q := domain.ParseQuery(url.Values{
			"search":   {listQuery.search},
			"health":   {listQuery.health},
			"severity": {listQuery.severity},
			"sort":     {listQuery.sort},
		})
		view := domain.Apply(all, q)
		sum := domain.Summarize(view)

		if jsonOutput {
			return printJSON(struct {
				Plants  []domain.Plant `json:"plants"`
				Summary domain.Summary `json:"summary"`
			}{view, sum})
		}
		printPlants(view, sum)
		return nil
	},
}

func printPlants(list []domain.Plant, sum domain.Summary) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No plants found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tName\tDiagnosis\tHealth\tConfidence\tDate\tSeverity\n")
	for _, p := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f%%\t%s\t%s\n",
			truncate(string(p.ID), 8),
			truncate(p.DisplayName(), 28),
			truncate(p.Diagnosis, 28),
			p.PlantHealth,
			p.Confidence,
			p.Date.Format("2006-01-02"),
			severityColor(p.Severity).Sprint(p.Severity),
		)
	}
	_ = w.Flush()

	fmt.Fprintf(out, "\nTotal: %d  Healthy: %s  High severity: %s\n",
		sum.Total,
		color.GreenString("%d", sum.Healthy),
		color.RedString("%d", sum.HighSeverity),
	)
}

func severityColor(s domain.Severity) *color.Color {
	switch s {
	case domain.SeverityHigh:
		return color.New(color.FgRed, color.Bold)
	case domain.SeverityMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGreen)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	listCmd.Flags().StringVar(&listQuery.search, "search", "", "match species or diagnosis")
	listCmd.Flags().StringVar(&listQuery.health, "health", "all", "excellent, good, fair, poor, critical or all")
	listCmd.Flags().StringVar(&listQuery.severity, "severity", "all", "low, medium, high or all")
	listCmd.Flags().StringVar(&listQuery.sort, "sort", "", "date, name, health or confidence")
}
