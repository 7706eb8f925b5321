package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

type cliOptions struct {
	url     string
	token   string
	stream  bool
	timeout time.Duration
}

var opts = &cliOptions{}

var rootCmd = &cobra.Command{
	Use:   "search-cli",
	Short: "A CLI client for the concussion assessment question answering service",
	Long:  `Ask natural-language questions about patient assessments and print the cited answer.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&opts.url, "url", envOr("NEUROLOGIX_URL", "http://localhost:8080"), "base URL of the search service")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("NEUROLOGIX_TOKEN"), "bearer token carrying the caller's teams")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall request timeout")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
