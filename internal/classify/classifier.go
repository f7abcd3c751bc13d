// Package classify assigns free-text categories to listing titles by
// prompting a language model and parsing its marker-delimited answer.
package classify

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-classifier/internal/model"
)

// Completer sends a prompt to a language model and returns the raw
// completion. Implementations must stop generation at EndMarker and keep
// the marker in the returned text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// DefaultLogEvery is how many records pass between progress logs.
const DefaultLogEvery = 100

// Classifier maps titles to category strings, one model call per title.
type Classifier struct {
	completer Completer
	logEvery  int
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogEvery sets the progress log interval. Non-positive disables
// progress logs.
func WithLogEvery(n int) Option {
	return func(c *Classifier) {
		c.logEvery = n
	}
}

// New creates a Classifier backed by completer.
func New(completer Completer, opts ...Option) *Classifier {
	c := &Classifier{completer: completer, logEvery: DefaultLogEvery}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify returns the lowercased, comma-separated categories for text. A
// completion that does not follow the marker format yields "" without error;
// transport errors are returned.
func (c *Classifier) Classify(ctx context.Context, text string) (string, error) {
	raw, err := c.completer.Complete(ctx, RenderPrompt(text))
	if err != nil {
		return "", eris.Wrap(err, "classify: complete")
	}

	res := ParseOutcome(raw)
	if res.Status != ParseOK {
		zap.L().Debug("classify: completion did not follow marker format",
			zap.String("status", string(res.Status)),
			zap.String("title", text),
			zap.String("completion", raw),
		)
	}
	return res.Text, nil
}

// Apply sets Category on every record from its title, in order. A record
// without a title gets an empty category and no model call. The first
// transport error aborts the batch.
func (c *Classifier) Apply(ctx context.Context, batch []model.Listing) error {
	total := len(batch)
	for i := range batch {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "classify: cancelled")
		}

		category := ""
		if batch[i].Title != nil {
			var err error
			category, err = c.Classify(ctx, *batch[i].Title)
			if err != nil {
				return eris.Wrapf(err, "classify: record %d", i)
			}
		}
		batch[i].Category = &category

		if done := i + 1; c.logEvery > 0 && (done%c.logEvery == 0 || done == total) {
			zap.L().Info("classify: progress",
				zap.Int("done", done),
				zap.Int("total", total),
			)
		}
	}
	return nil
}
