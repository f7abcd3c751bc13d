package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-classifier/internal/config"
	"github.com/sells-group/listing-classifier/internal/store"
	anthropicpkg "github.com/sells-group/listing-classifier/pkg/anthropic"
	openaipkg "github.com/sells-group/listing-classifier/pkg/openai"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Crawl: config.CrawlConfig{
			Seeds:             config.DefaultSeeds,
			AllowedDomains:    []string{"coconala.com"},
			UserAgent:         "listing-classifier-test",
			TimeoutSecs:       5,
			RequestsPerSecond: 10,
			Burst:             1,
		},
		Classify: config.ClassifyConfig{Provider: "openai", LogEvery: 10, MaxTokens: 64, Temperature: 0.7},
		OpenAI:   config.OpenAIConfig{Key: "lm-studio", BaseURL: "http://127.0.0.1:1/v1", Model: "gemma-3-4b-it"},
		Anthropic: config.AnthropicConfig{
			Key:   "sk-ant-test",
			Model: "claude-haiku-4-5-20251001",
		},
		Pipeline: config.PipelineConfig{
			CrawlPath:               filepath.Join(dir, "output.json"),
			ClassifiedPath:          filepath.Join(dir, "classified.json"),
			BatchSize:               10,
			AnonymizeField:          "user_name",
			HashLength:              10,
			RequireCompletionMarker: true,
		},
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(dir, "runs.db")},
	}
}

func TestNewCompleter_Providers(t *testing.T) {
	c := testConfig(t)

	comp, err := newCompleter(c)
	require.NoError(t, err)
	assert.IsType(t, &openaipkg.Completer{}, comp)

	c.Classify.Provider = "anthropic"
	comp, err = newCompleter(c)
	require.NoError(t, err)
	assert.IsType(t, &anthropicpkg.Completer{}, comp)

	c.Classify.Provider = "bogus"
	_, err = newCompleter(c)
	assert.Error(t, err)
}

func TestBuildPipeline(t *testing.T) {
	c := testConfig(t)

	comps, err := buildPipeline(context.Background(), c, true)
	require.NoError(t, err)
	defer comps.Close()

	assert.NotNil(t, comps.pipeline)
	assert.NotNil(t, comps.store)

	runs, err := comps.store.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestBuildPipeline_BadHashLength(t *testing.T) {
	c := testConfig(t)
	c.Pipeline.HashLength = 0

	_, err := buildPipeline(context.Background(), c, false)
	assert.Error(t, err)
}

func TestNewCrawler(t *testing.T) {
	assert.NotNil(t, newCrawler(testConfig(t)))
}
