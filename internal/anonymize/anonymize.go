// Package anonymize replaces identifying listing fields with deterministic
// pseudonyms.
package anonymize

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-classifier/internal/model"
)

// DefaultLength is the pseudonym length in hex characters.
const DefaultLength = 10

// Fields that can be pseudonymized.
const (
	FieldUserName = "user_name"
	FieldTitle    = "title"
)

// Anonymizer maps values to unsalted, truncated SHA-256 hex digests. The same
// input always yields the same pseudonym, so records of one seller stay
// groupable across batches.
type Anonymizer struct {
	Length int
}

// New returns an Anonymizer producing pseudonyms of length hex characters.
func New(length int) (*Anonymizer, error) {
	if length < 1 || length > sha256.Size*2 {
		return nil, eris.Errorf("anonymize: length %d out of range 1..%d", length, sha256.Size*2)
	}
	return &Anonymizer{Length: length}, nil
}

// Pseudonym returns the first Length hex characters of sha256(s).
func (a *Anonymizer) Pseudonym(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:a.Length]
}

// Apply rewrites field in place for every record. Null values stay null.
func (a *Anonymizer) Apply(batch []model.Listing, field string) error {
	for i := range batch {
		v, err := fieldRef(&batch[i], field)
		if err != nil {
			return err
		}
		if *v == nil {
			continue
		}
		p := a.Pseudonym(**v)
		*v = &p
	}
	return nil
}

func fieldRef(rec *model.Listing, field string) (**string, error) {
	switch field {
	case FieldUserName:
		return &rec.UserName, nil
	case FieldTitle:
		return &rec.Title, nil
	default:
		return nil, eris.Errorf("anonymize: unsupported field %q", field)
	}
}
