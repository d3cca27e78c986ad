// Package config loads process settings from the environment.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/clypser/finance-bot/internal/gcs"
	"github.com/clypser/finance-bot/internal/inference"
)

const (
	minInferenceTimeout = time.Second
	maxInferenceTimeout = 20 * time.Second
)

type Config struct {
	GeminiAPIKey     string
	ProxyURL         string
	InferenceTimeout time.Duration
	CandidatesFile   string

	GCPProject string
	BQDataset  string

	Port      string
	LogLevel  string
	LogFormat string

	DefaultCurrency string
}

// ProcessEnvironmentVariables reads the configuration from the environment,
// starting from defaults suited to local development.
func ProcessEnvironmentVariables() (*Config, error) {
	env := Config{
		InferenceTimeout: inference.DefaultTimeout,
		BQDataset:        "finance",
		Port:             "8080",
		LogLevel:         "info",
		LogFormat:        "console",
		DefaultCurrency:  "UZS",
	}

	setString(&env.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&env.ProxyURL, "PROXY_URL")
	setString(&env.CandidatesFile, "CANDIDATES_FILE")
	setString(&env.GCPProject, "GCP_PROJECT")
	setString(&env.BQDataset, "BQ_DATASET")
	setString(&env.Port, "PORT")
	setString(&env.LogLevel, "LOG_LEVEL")
	setString(&env.LogFormat, "LOG_FORMAT")
	setString(&env.DefaultCurrency, "DEFAULT_CURRENCY")

	if v := os.Getenv("INFERENCE_TIMEOUT"); len(v) != 0 {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("ProcessEnvironmentVariables: INFERENCE_TIMEOUT: %w", err)
		}
		env.InferenceTimeout = d
	}
	env.InferenceTimeout = min(max(env.InferenceTimeout, minInferenceTimeout), maxInferenceTimeout)

	env.DefaultCurrency = strings.ToUpper(env.DefaultCurrency)

	return &env, nil
}

// LoadCandidates returns the ordered provider candidates. Without an API key
// the list is empty and extraction runs on the local parser only.
// CandidatesFile may be a local path or a gs:// URI read through fetcher.
func (c *Config) LoadCandidates(ctx context.Context, fetcher gcs.Fetcher) ([]inference.Candidate, error) {
	if c.GeminiAPIKey == "" {
		return nil, nil
	}
	if c.CandidatesFile == "" {
		return inference.DefaultCandidates(), nil
	}

	var (
		data []byte
		err  error
	)
	if gcs.IsURI(c.CandidatesFile) {
		data, err = fetcher.Fetch(ctx, c.CandidatesFile)
	} else {
		data, err = os.ReadFile(c.CandidatesFile)
	}
	if err != nil {
		return nil, fmt.Errorf("LoadCandidates: reading %s: %w", c.CandidatesFile, err)
	}

	candidates, err := inference.ParseCandidates(data)
	if err != nil {
		return nil, fmt.Errorf("LoadCandidates: %w", err)
	}
	return candidates, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); len(v) != 0 {
		*dst = v
	}
}
