package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/clypser/finance-bot/internal/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFetcher struct {
	FetchFunc func(ctx context.Context, gcsURI string) ([]byte, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, gcsURI string) ([]byte, error) {
	return m.FetchFunc(ctx, gcsURI)
}

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"GEMINI_API_KEY", "PROXY_URL", "INFERENCE_TIMEOUT", "CANDIDATES_FILE",
		"GCP_PROJECT", "BQ_DATASET", "PORT", "LOG_LEVEL", "LOG_FORMAT", "DEFAULT_CURRENCY",
	} {
		t.Setenv(key, "")
	}
}

func TestProcessEnvironmentVariables_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := ProcessEnvironmentVariables()

	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.InferenceTimeout)
	assert.Equal(t, "finance", cfg.BQDataset)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "UZS", cfg.DefaultCurrency)
	assert.Empty(t, cfg.GeminiAPIKey)
}

func TestProcessEnvironmentVariables_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("PROXY_URL", "http://proxy:3128")
	t.Setenv("BQ_DATASET", "bot")
	t.Setenv("PORT", "9000")
	t.Setenv("DEFAULT_CURRENCY", "usd")
	t.Setenv("INFERENCE_TIMEOUT", "18s")

	cfg, err := ProcessEnvironmentVariables()

	require.NoError(t, err)
	assert.Equal(t, "k", cfg.GeminiAPIKey)
	assert.Equal(t, "http://proxy:3128", cfg.ProxyURL)
	assert.Equal(t, "bot", cfg.BQDataset)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "USD", cfg.DefaultCurrency)
	assert.Equal(t, 18*time.Second, cfg.InferenceTimeout)
}

func TestProcessEnvironmentVariables_TimeoutClamped(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"1m", 20 * time.Second},
		{"10ms", time.Second},
		{"16s", 16 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("INFERENCE_TIMEOUT", tt.value)

			cfg, err := ProcessEnvironmentVariables()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.InferenceTimeout)
		})
	}
}

func TestProcessEnvironmentVariables_BadTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv("INFERENCE_TIMEOUT", "soon")

	_, err := ProcessEnvironmentVariables()
	assert.Error(t, err)
}

func TestLoadCandidates(t *testing.T) {
	ctx := context.Background()
	noFetch := &mockFetcher{FetchFunc: func(ctx context.Context, uri string) ([]byte, error) {
		t.Fatalf("unexpected fetch of %s", uri)
		return nil, nil
	}}

	t.Run("no api key means local only", func(t *testing.T) {
		cfg := &Config{CandidatesFile: "whatever.yaml"}
		got, err := cfg.LoadCandidates(ctx, noFetch)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("defaults", func(t *testing.T) {
		cfg := &Config{GeminiAPIKey: "k"}
		got, err := cfg.LoadCandidates(ctx, noFetch)
		require.NoError(t, err)
		assert.Equal(t, inference.DefaultCandidates(), got)
	})

	t.Run("local file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "candidates.yaml")
		require.NoError(t, os.WriteFile(path, []byte("- model: local-model\n"), 0o600))

		cfg := &Config{GeminiAPIKey: "k", CandidatesFile: path}
		got, err := cfg.LoadCandidates(ctx, noFetch)
		require.NoError(t, err)
		assert.Equal(t, []inference.Candidate{{Model: "local-model"}}, got)
	})

	t.Run("gcs object", func(t *testing.T) {
		var fetched string
		fetcher := &mockFetcher{FetchFunc: func(ctx context.Context, uri string) ([]byte, error) {
			fetched = uri
			return []byte("candidates:\n  - endpoint: https://mirror\n    model: remote\n"), nil
		}}

		cfg := &Config{GeminiAPIKey: "k", CandidatesFile: "gs://cfg/candidates.yaml"}
		got, err := cfg.LoadCandidates(ctx, fetcher)
		require.NoError(t, err)
		assert.Equal(t, "gs://cfg/candidates.yaml", fetched)
		assert.Equal(t, []inference.Candidate{{Endpoint: "https://mirror", Model: "remote"}}, got)
	})

	t.Run("fetch error", func(t *testing.T) {
		fetcher := &mockFetcher{FetchFunc: func(ctx context.Context, uri string) ([]byte, error) {
			return nil, errors.New("permission denied")
		}}

		cfg := &Config{GeminiAPIKey: "k", CandidatesFile: "gs://cfg/candidates.yaml"}
		_, err := cfg.LoadCandidates(ctx, fetcher)
		assert.Error(t, err)
	})

	t.Run("missing local file", func(t *testing.T) {
		cfg := &Config{GeminiAPIKey: "k", CandidatesFile: filepath.Join(t.TempDir(), "nope.yaml")}
		_, err := cfg.LoadCandidates(ctx, noFetch)
		assert.Error(t, err)
	})
}
