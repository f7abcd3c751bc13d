// Package crawl walks coconala category listings page by page and turns
// every listing fragment into a record.
package crawl

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/listing-classifier/internal/extract"
	"github.com/sells-group/listing-classifier/internal/model"
)

const recordBuffer = 64

// Sink receives every extracted record. Write is only ever called from one
// goroutine.
type Sink interface {
	Write(rec model.Listing) error
}

// Options configures a crawl.
type Options struct {
	Seeds []string
	// AllowedDomains restricts next-page URLs to these hosts and their
	// subdomains. Empty allows any host.
	AllowedDomains []string
	// MaxPagesPerSeed stops a lineage after this many fetched pages.
	// Zero means no cap.
	MaxPagesPerSeed int
	// Concurrency caps how many lineages run at once. Zero runs every seed
	// concurrently.
	Concurrency int
}

// Stats summarizes a finished crawl.
type Stats struct {
	Pages   int
	Records int
}

// Crawler runs one independent lineage per seed URL.
type Crawler struct {
	fetcher Fetcher
	opts    Options
}

// New creates a Crawler that fetches pages through f.
func New(f Fetcher, opts Options) *Crawler {
	return &Crawler{fetcher: f, opts: opts}
}

// Run crawls every seed and writes records to sink. A failing lineage does
// not stop the others; all lineage errors are combined into the returned
// error. A sink error cancels the whole crawl.
func (c *Crawler) Run(ctx context.Context, sink Sink) (Stats, error) {
	if len(c.opts.Seeds) == 0 {
		return Stats{}, eris.New("crawl: no seed urls")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	records := make(chan model.Listing, recordBuffer)

	var (
		written int
		sinkErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for rec := range records {
			if sinkErr != nil {
				continue
			}
			if err := sink.Write(rec); err != nil {
				sinkErr = eris.Wrap(err, "crawl: write record")
				cancel()
				continue
			}
			written++
		}
	}()

	var (
		mu        sync.Mutex
		pages     int
		lineErrs  error
		lineGroup errgroup.Group
	)
	if c.opts.Concurrency > 0 {
		lineGroup.SetLimit(c.opts.Concurrency)
	}
	for _, seed := range c.opts.Seeds {
		lineGroup.Go(func() error {
			n, err := c.lineage(ctx, seed, records)
			mu.Lock()
			defer mu.Unlock()
			pages += n
			if err != nil {
				zap.L().Error("crawl: lineage failed",
					zap.String("seed", seed),
					zap.Int("pages", n),
					zap.Error(err),
				)
				lineErrs = multierr.Append(lineErrs, eris.Wrapf(err, "crawl: lineage %s", seed))
			}
			return nil
		})
	}
	_ = lineGroup.Wait()
	close(records)
	<-done

	stats := Stats{Pages: pages, Records: written}
	if sinkErr != nil {
		return stats, sinkErr
	}
	if lineErrs != nil {
		return stats, lineErrs
	}

	zap.L().Info("crawl: complete",
		zap.Int("seeds", len(c.opts.Seeds)),
		zap.Int("pages", stats.Pages),
		zap.Int("records", stats.Records),
	)
	return stats, nil
}

// lineage follows one seed until a no-hits page, an offsite next page, the
// page cap, or an error. Records of a page are emitted before its next page
// is requested.
func (c *Crawler) lineage(ctx context.Context, seed string, out chan<- model.Listing) (int, error) {
	log := zap.L().With(zap.String("seed", seed))

	pages := 0
	target := seed
	for {
		if c.opts.MaxPagesPerSeed > 0 && pages >= c.opts.MaxPagesPerSeed {
			log.Info("crawl: page cap reached", zap.Int("max_pages", c.opts.MaxPagesPerSeed))
			return pages, nil
		}

		page, err := c.fetcher.Fetch(ctx, target)
		if err != nil {
			if errors.Is(err, ErrDisallowed) {
				log.Info("crawl: skipping url disallowed by robots.txt", zap.String("url", target))
				return pages, nil
			}
			return pages, err
		}
		pages++

		log.Info("crawl: processing page", zap.String("url", page.URL))

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
		if err != nil {
			return pages, eris.Wrapf(err, "crawl: parse html of %s", page.URL)
		}

		if doc.Find(extract.NoHitsSelector).Length() > 0 {
			log.Info("crawl: no hits, lineage finished", zap.String("url", page.URL))
			return pages, nil
		}

		if err := emit(ctx, doc, out); err != nil {
			return pages, err
		}

		next, err := NextPageURL(page.URL)
		if err != nil {
			return pages, err
		}
		if !c.allowed(next) {
			log.Warn("crawl: next page is offsite, lineage finished", zap.String("url", next))
			return pages, nil
		}
		target = next
	}
}

// emit sends one record per listing fragment in document order.
func emit(ctx context.Context, doc *goquery.Document, out chan<- model.Listing) error {
	var err error
	doc.Find(extract.ListingSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rec := extract.Listing(s).Listing()
		select {
		case out <- rec:
			return true
		case <-ctx.Done():
			err = ctx.Err()
			return false
		}
	})
	return err
}

func (c *Crawler) allowed(rawURL string) bool {
	if len(c.opts.AllowedDomains) == 0 {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range c.opts.AllowedDomains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
