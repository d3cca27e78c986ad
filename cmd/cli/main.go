package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/clypser/finance-bot/internal/config"
	"github.com/clypser/finance-bot/internal/gcs"
	infraBQ "github.com/clypser/finance-bot/internal/infra/bigquery"
	"github.com/clypser/finance-bot/internal/inference"
	"github.com/clypser/finance-bot/internal/logger"
	"github.com/clypser/finance-bot/internal/pipeline"
	"github.com/clypser/finance-bot/internal/quota"
	"github.com/clypser/finance-bot/internal/records"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.ProcessEnvironmentVariables()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	switch os.Args[1] {
	case "extract":
		runExtract(log, cfg)
	case "quota":
		runQuota(log)
	case "stats":
		runStats(log, cfg)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Finance Bot CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  extract   Extract a record from a message and print it as JSON")
	fmt.Println("  quota     Evaluate the weekly quota for a tier and record count")
	fmt.Println("  stats     Print an account's records and totals for a period")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func printJSON(log zerolog.Logger, v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode output")
	}
}

func runExtract(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	text := fs.String("text", "", "Message text to extract a record from")
	currency := fs.String("currency", cfg.DefaultCurrency, "Default currency for the message")
	offline := fs.Bool("offline", false, "Skip the inference provider and use the local parser only")
	fs.Parse(os.Args[2:])

	if *text == "" {
		log.Fatal().Msg("Error: --text is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	var (
		provider   inference.Provider
		candidates []inference.Candidate
	)
	if !*offline && cfg.GeminiAPIKey != "" {
		gemini, err := inference.NewGeminiProvider(cfg.GeminiAPIKey, cfg.ProxyURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create inference provider")
		}
		provider = gemini

		candidates, err = cfg.LoadCandidates(ctx, gcs.NewStorageFetcher())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load inference candidates")
		}
	}

	extractor := pipeline.NewExtractor(inference.NewOrchestrator(provider, cfg.InferenceTimeout))
	rec, err := extractor.Extract(ctx, *text, *currency, candidates)
	if err != nil {
		log.Fatal().Err(err).Msg("Extraction failed")
	}

	printJSON(log, rec)
}

func runQuota(log zerolog.Logger) {
	fs := flag.NewFlagSet("quota", flag.ExitOnError)
	tierName := fs.String("tier", "free", "Account tier: free or pro")
	expiryStr := fs.String("expiry", "", "Pro expiry as RFC3339 (optional)")
	count := fs.Int("count", 0, "Records in the trailing seven days")
	fs.Parse(os.Args[2:])

	tier, err := quota.ParseTier(*tierName)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid tier")
	}

	var expiry *time.Time
	if *expiryStr != "" {
		t, err := time.Parse(time.RFC3339, *expiryStr)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid --expiry, expected RFC3339")
		}
		expiry = &t
	}

	printJSON(log, quota.Check(tier, expiry, *count))
}

func runStats(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	accountID := fs.String("account", "", "Account ID")
	periodName := fs.String("period", "month", "Period: day, week or month")
	fs.Parse(os.Args[2:])

	if *accountID == "" {
		log.Fatal().Msg("Error: --account is required")
	}

	period, err := records.ParsePeriod(*periodName)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid period")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewRepository(ctx, cfg.GCPProject, cfg.BQDataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create repository")
	}
	defer repo.Close()

	svc := records.NewService(repo, nil, nil, cfg.DefaultCurrency)
	report, err := svc.List(ctx, *accountID, period)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list records")
	}

	fmt.Printf("\n=== %s: %s to %s ===\n", report.Period, report.From.Format("2006-01-02"), report.To.Format("2006-01-02"))
	fmt.Printf("Records: %d\n\n", report.Count)
	for _, t := range report.Totals {
		fmt.Printf("  %-16s %14s %s\n", t.Name, t.Value.StringFixed(2), t.Currency)
	}
	if len(report.Records) > 0 {
		fmt.Println()
	}
	for _, r := range report.Records {
		fmt.Printf("  %s  %-13s %-16s %14s %s  %q\n", r.Date, r.Type, r.Category, r.Amount.StringFixed(2), r.Currency, r.SourceText)
	}
}
