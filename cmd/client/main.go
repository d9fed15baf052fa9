package main

import (
	"os"

	"github.com/spf13/cobra"

	"collaborative-canvas/internal/syncclient"
)

var (
	serverURL string
	token     string

	client *syncclient.Client
)

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

var rootCmd = &cobra.Command{
	Use:          "canvas",
	Short:        "Command line client for the collaborative canvas",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		client = syncclient.NewClient(serverURL, token)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("CANVAS_SERVER", "http://localhost:8080"), "server base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("CANVAS_TOKEN"), "bearer token")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(drawCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
