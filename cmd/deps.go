package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-classifier/internal/anonymize"
	"github.com/sells-group/listing-classifier/internal/classify"
	"github.com/sells-group/listing-classifier/internal/config"
	"github.com/sells-group/listing-classifier/internal/crawl"
	"github.com/sells-group/listing-classifier/internal/pipeline"
	"github.com/sells-group/listing-classifier/internal/store"
	anthropicpkg "github.com/sells-group/listing-classifier/pkg/anthropic"
	openaipkg "github.com/sells-group/listing-classifier/pkg/openai"
)

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: c.Store.MaxConns,
		MinConns: c.Store.MinConns,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func newCrawler(c *config.Config) *crawl.Crawler {
	f := crawl.NewHTTPFetcher(crawl.HTTPOptions{
		UserAgent:         c.Crawl.UserAgent,
		Timeout:           time.Duration(c.Crawl.TimeoutSecs) * time.Second,
		MaxRetries:        c.Crawl.MaxRetries,
		RequestsPerSecond: c.Crawl.RequestsPerSecond,
		Burst:             c.Crawl.Burst,
		ObeyRobots:        c.Crawl.ObeyRobots,
		MaxBodyBytes:      c.Crawl.MaxBodyBytes,
	})
	return crawl.New(f, crawl.Options{
		Seeds:           c.Crawl.Seeds,
		AllowedDomains:  c.Crawl.AllowedDomains,
		MaxPagesPerSeed: c.Crawl.MaxPagesPerSeed,
		Concurrency:     c.Crawl.Concurrency,
	})
}

// usageCompleter is a classify.Completer that can report token usage.
type usageCompleter interface {
	classify.Completer
	LogUsage()
}

func newCompleter(c *config.Config) (usageCompleter, error) {
	temperature := c.Classify.Temperature
	switch c.Classify.Provider {
	case "openai":
		var opts []openaipkg.Option
		if c.OpenAI.BaseURL != "" {
			opts = append(opts, openaipkg.WithBaseURL(c.OpenAI.BaseURL))
		}
		opts = append(opts,
			openaipkg.WithMaxRetries(c.OpenAI.MaxRetries),
			openaipkg.WithTimeout(time.Duration(c.OpenAI.TimeoutSecs)*time.Second),
		)
		client := openaipkg.NewClient(c.OpenAI.Key, opts...)
		return openaipkg.NewCompleter(client, openaipkg.CompleterConfig{
			Model:        c.OpenAI.Model,
			MaxTokens:    c.Classify.MaxTokens,
			Temperature:  &temperature,
			StopSequence: classify.EndMarker,
		}), nil
	case "anthropic":
		var opts []anthropicpkg.Option
		if c.Anthropic.BaseURL != "" {
			opts = append(opts, anthropicpkg.WithBaseURL(c.Anthropic.BaseURL))
		}
		opts = append(opts,
			anthropicpkg.WithMaxRetries(c.Anthropic.MaxRetries),
			anthropicpkg.WithTimeout(time.Duration(c.Anthropic.TimeoutSecs)*time.Second),
		)
		client := anthropicpkg.NewClient(c.Anthropic.Key, opts...)
		return anthropicpkg.NewCompleter(client, anthropicpkg.CompleterConfig{
			Model:        c.Anthropic.Model,
			MaxTokens:    c.Classify.MaxTokens,
			Temperature:  &temperature,
			StopSequence: classify.EndMarker,
		}), nil
	default:
		return nil, eris.Errorf("unsupported classify provider: %s", c.Classify.Provider)
	}
}

// components holds everything a command needs to run stages.
type components struct {
	pipeline  *pipeline.Pipeline
	completer usageCompleter
	store     store.Store
}

func (c *components) Close() {
	if c.completer != nil {
		c.completer.LogUsage()
	}
	if c.store != nil {
		c.store.Close() //nolint:errcheck
	}
}

// buildPipeline wires the configured crawler, anonymizer, classifier and
// optional run store.
func buildPipeline(ctx context.Context, c *config.Config, withStore bool) (*components, error) {
	an, err := anonymize.New(c.Pipeline.HashLength)
	if err != nil {
		return nil, err
	}
	completer, err := newCompleter(c)
	if err != nil {
		return nil, err
	}
	comps := &components{completer: completer}

	if withStore {
		st, err := initStore(ctx, c)
		if err != nil {
			return nil, err
		}
		comps.store = st
	}

	classifier := classify.New(completer, classify.WithLogEvery(c.Classify.LogEvery))
	comps.pipeline = pipeline.New(newCrawler(c), an, classifier, comps.store, pipeline.Options{
		AnonymizeField:          c.Pipeline.AnonymizeField,
		BatchSize:               c.Pipeline.BatchSize,
		RequireCompletionMarker: c.Pipeline.RequireCompletionMarker,
	})
	return comps, nil
}
