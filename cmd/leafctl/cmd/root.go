package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanwahyu/leaflens/internal/client"
)

const defaultServer = "http://localhost:3000"

var (
	api        *client.Client
	jsonOutput bool
	out        io.Writer = os.Stdout
)

var rootCmd = &cobra.Command{
	Use:   "leafctl",
	Short: "leafctl - command line client for the LeafLens plant library",
	Long: `leafctl talks to a running LeafLens server.

It lists and filters the plant library, adds records, sends photos
for diagnosis and chats with the plant care assistant.`,
	PersistentPreRunE: setupClient,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupClient(_ *cobra.Command, _ []string) error {
	server := viper.GetString("server")
	if server == "" {
		server = defaultServer
	}
	api = client.New(server, viper.GetDuration("timeout"))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().String("server", defaultServer, "LeafLens server URL")
	rootCmd.PersistentFlags().Duration("timeout", 3*time.Minute, "request timeout")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON output")

	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.SetEnvPrefix("leaflens")
	viper.AutomaticEnv()

	rootCmd.AddCommand(listCmd, addCmd, diagnoseCmd, chatCmd)
}
