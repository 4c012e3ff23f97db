package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/usercommon/scrapeapi/internal/config"
	"github.com/usercommon/scrapeapi/internal/llmclient"
	"github.com/usercommon/scrapeapi/internal/model"
	"github.com/usercommon/scrapeapi/internal/orchestrator"
	"github.com/usercommon/scrapeapi/internal/registry"
	"github.com/usercommon/scrapeapi/internal/sandbox"
	"github.com/usercommon/scrapeapi/internal/store"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a scraper plan, execute it, shape the results, and publish an endpoint",
	Long: `Reads a ScrapeRequest as JSON from stdin (or --request-file) and drives the
full generate -> execute -> shape -> publish pipeline synchronously, printing
the resulting access URL. This is the command-line stand-in for the
interactive front-end described by the service's design.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		requestFile, _ := cmd.Flags().GetString("request-file")
		return runGenerate(cmd.Context(), requestFile)
	},
}

func init() {
	generateCmd.Flags().String("request-file", "", "path to a JSON ScrapeRequest file (default: read from stdin)")
}

func runGenerate(ctx context.Context, requestFile string) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	req, err := readScrapeRequest(requestFile)
	if err != nil {
		return fmt.Errorf("reading scrape request: %w", err)
	}

	client, err := llmclient.New(cfg.Provider.APIKey, cfg.Provider.BaseURL)
	if err != nil {
		return fmt.Errorf("building LLM client: %w", err)
	}

	orch := orchestrator.New(client, orchestrator.Config{
		Model:          cfg.Provider.Model,
		Temperature:    cfg.Provider.Temperature,
		MaxTokensPlan:  cfg.Provider.MaxTokensPlan,
		MaxTokensShape: cfg.Provider.MaxTokensShape,
	})
	executor := sandbox.NewExecutor(cfg.Scraping.UserAgent, cfg.Scraping.RequestTimeout)

	plan, err := orch.GeneratePlan(ctx, req)
	if err != nil {
		return fmt.Errorf("generating plan: %w", err)
	}
	slog.Info("plan generated", "generation_ms", plan.GenerationMS)

	execResult := executor.ExecuteGeneratedPlan(ctx, plan, cfg.Scraping.RequestTimeout)
	slog.Info("execution complete", "ok", execResult.OK, "record_count", execResult.Meta.TotalCount)

	parsed, err := orch.ShapeData(ctx, execResult, req)
	if err != nil {
		return fmt.Errorf("shaping data: %w", err)
	}

	st, err := store.Open(cfg.Server.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	reg := registry.New(st, cfg.Server.BaseURL)
	info, err := reg.Create(parsed, req.Description, plan.TargetURLs)
	if err != nil {
		return fmt.Errorf("publishing endpoint: %w", err)
	}

	fmt.Fprintf(os.Stdout, "%s\n", info.AccessURL)
	return nil
}

func readScrapeRequest(path string) (model.ScrapeRequest, error) {
	var raw []byte
	var err error
	if path != "" {
		raw, err = os.ReadFile(path)
	} else {
		raw, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return model.ScrapeRequest{}, err
	}

	var req model.ScrapeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return model.ScrapeRequest{}, fmt.Errorf("parsing JSON: %w", err)
	}
	if strings.TrimSpace(req.Description) == "" {
		return model.ScrapeRequest{}, fmt.Errorf("description is required")
	}
	return req, nil
}
