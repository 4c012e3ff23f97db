// Command scrapeapi runs the scraping/LLM-orchestration service: generating
// and publishing JSON endpoints from natural-language scrape requests, and
// serving them over HTTP. Grounded on kalambet-tbyd's cmd/tbyd cobra root
// command structure.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "scrapeapi",
	Short:   "Generate and serve LLM-driven scraping endpoints",
	Version: version,
}

func main() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
