package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/leaflens/internal/client"
)

var diagnoseOpts struct {
	image   string
	kind    string
	species string
	prompt  string
	name    string
	notes   string
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Send a plant photo for diagnosis and save the result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		img, err := os.ReadFile(diagnoseOpts.image)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		rec, err := api.Diagnose(cmd.Context(), client.DiagnoseInput{
			Image:        img,
			Filename:     diagnoseOpts.image,
			PlantType:    diagnoseOpts.kind,
			PlantSpecies: diagnoseOpts.species,
			Prompt:       diagnoseOpts.prompt,
			Name:         diagnoseOpts.name,
			Notes:        diagnoseOpts.notes,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			// image is a large data URI
			rec.Image = ""
			return printJSON(rec)
		}

		bold := color.New(color.Bold)
		bold.Fprintf(out, "%s\n", rec.DisplayName())
		fmt.Fprintf(out, "  ID:         %s\n", rec.ID)
		fmt.Fprintf(out, "  Diagnosis:  %s\n", rec.Diagnosis)
		fmt.Fprintf(out, "  Health:     %s\n", rec.PlantHealth)
		fmt.Fprintf(out, "  Severity:   %s\n", severityColor(rec.Severity).Sprint(rec.Severity))
		fmt.Fprintf(out, "  Confidence: %.0f%%\n", rec.Confidence)
		if len(rec.Treatments) > 0 {
			fmt.Fprintf(out, "  Treatments:\n    - %s\n", strings.Join(rec.Treatments, "\n    - "))
		}
		if rec.ReportURL != "" {
			fmt.Fprintf(out, "  Report:     %s\n", rec.ReportURL)
		}
		return nil
	},
}

func init() {
	f := diagnoseCmd.Flags()
	f.StringVarP(&diagnoseOpts.image, "image", "i", "", "path to a jpeg, png, webp or gif photo")
	f.StringVar(&diagnoseOpts.kind, "type", "", "plant type, e.g. houseplant")
	f.StringVar(&diagnoseOpts.species, "species", "", "plant species if known")
	f.StringVar(&diagnoseOpts.prompt, "prompt", "", "extra question for the analyzer")
	f.StringVar(&diagnoseOpts.name, "name", "", "common name to store with the record")
	f.StringVar(&diagnoseOpts.notes, "notes", "", "notes to store with the record")
	_ = diagnoseCmd.MarkFlagRequired("image")
}
