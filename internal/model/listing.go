package model

// Listing is one scraped service entry. Absent values serialize as null so
// every record in a batch carries the same key set.
type Listing struct {
	Title      *string `json:"title"`
	Price      float64 `json:"price"`
	UserLevel  *int    `json:"user_level"`
	UserName   *string `json:"user_name"`
	SalesCount int     `json:"sales_count"`
	Category   *string `json:"category,omitempty"`
}

// Sentinels substituted for malformed field values.
const (
	UnknownTitle     = "Unknown Title"
	UnknownUser      = "Unknown User"
	UserLevelInvalid = -1
)

// Extraction holds the per-field outcomes for one listing fragment.
type Extraction struct {
	Title      Field[string]
	Price      Field[float64]
	UserLevel  Field[int]
	UserName   Field[string]
	SalesCount Field[int]
}

// Listing collapses the field outcomes into the persisted record shape.
// Missing and malformed prices and sales counts both become zero.
func (e Extraction) Listing() Listing {
	l := Listing{}

	switch e.Title.Status {
	case FieldPresent:
		l.Title = ptr(e.Title.Value)
	case FieldMalformed:
		l.Title = ptr(UnknownTitle)
	}

	if e.Price.Status == FieldPresent {
		l.Price = e.Price.Value
	}

	switch e.UserLevel.Status {
	case FieldPresent:
		l.UserLevel = ptr(e.UserLevel.Value)
	case FieldMalformed:
		l.UserLevel = ptr(UserLevelInvalid)
	}

	switch e.UserName.Status {
	case FieldPresent:
		l.UserName = ptr(e.UserName.Value)
	case FieldMalformed:
		l.UserName = ptr(UnknownUser)
	}

	if e.SalesCount.Status == FieldPresent {
		l.SalesCount = e.SalesCount.Value
	}

	return l
}

func ptr[T any](v T) *T { return &v }
