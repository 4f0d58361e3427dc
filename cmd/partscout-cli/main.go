package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagURL     string
	flagToken   string
	flagRetries int
)

var rootCmd = &cobra.Command{
	Use:   "partscout-cli",
	Short: "Query a partscout service and manage stored provider credentials",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagURL, "url", envOrDefault("PARTSCOUT_URL", "http://partscout:8765"), "partscout service URL")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", os.Getenv("PARTSCOUT_API_TOKEN"), "partscout API bearer token")
	rootCmd.PersistentFlags().IntVar(&flagRetries, "retries", 2, "Number of retries on transient failure")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
