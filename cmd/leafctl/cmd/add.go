package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	domain "github.com/bryanwahyu/leaflens/internal/domain/plants"
)

var addFile string

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a plant record from a JSON file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := os.ReadFile(addFile)
		if err != nil {
			return fmt.Errorf("read record: %w", err)
		}
		var p domain.Plant
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("parse record %s: %w", addFile, err)
		}
		if err := api.AddPlant(cmd.Context(), p); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]string{"message": "Plant added successfully"})
		}
		fmt.Fprintln(out, "Plant added successfully")
		return nil
	},
}

func init() {
	addCmd.Flags().StringVarP(&addFile, "file", "f", "", "path to a plant record JSON file")
	_ = addCmd.MarkFlagRequired("file")
}
