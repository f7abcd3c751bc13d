// Package extract pulls listing fields out of coconala service list markup.
// Extractors never fail: every outcome is reported as a model.Field and
// malformed values are logged at error level.
package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/width"

	"github.com/sells-group/listing-classifier/internal/model"
)

// Page-level selectors.
const (
	ListingSelector = ".c-serviceListItemRow"
	NoHitsSelector  = ".c-searchNoHits"
)

const (
	titleSelector      = ".c-serviceListItemColContentHeader_overview"
	priceSelector      = ".c-serviceListItemColContentFooterPrice_price strong"
	userLevelSelector  = ".c-serviceListItemColContentFooterInfoUser_level img"
	userNameSelector   = ".c-serviceListItemColContentFooterInfoUser_name span"
	salesCountSelector = ".c-serviceListItemColContentFooterPriceRating_count"
)

var (
	userLevelRe  = regexp.MustCompile(`icon_(\d+)\.svg`)
	salesCountRe = regexp.MustCompile(`\((\d+)\)`)
)

// Listing runs every field extractor over one listing fragment. Fields are
// independent: a malformed value in one never affects another.
func Listing(s *goquery.Selection) model.Extraction {
	return model.Extraction{
		Title:      Title(s),
		Price:      Price(s),
		UserLevel:  UserLevel(s),
		UserName:   UserName(s),
		SalesCount: SalesCount(s),
	}
}

// Title extracts the trimmed service title.
func Title(s *goquery.Selection) model.Field[string] {
	raw, found := firstText(s.Find(titleSelector))
	return parseText("title", raw, found)
}

// UserName extracts the trimmed seller name.
func UserName(s *goquery.Selection) model.Field[string] {
	raw, found := firstText(s.Find(userNameSelector))
	return parseText("user_name", raw, found)
}

// Price extracts the listed price with thousands separators removed.
// Full-width digits and separators are folded to ASCII first.
func Price(s *goquery.Selection) model.Field[float64] {
	raw, found := firstText(s.Find(priceSelector))
	return parsePrice(raw, found)
}

// UserLevel extracts N from the seller level badge image icon_N.svg.
func UserLevel(s *goquery.Selection) model.Field[int] {
	src, found := firstAttr(s.Find(userLevelSelector), "src")
	return parseUserLevel(src, found)
}

// SalesCount extracts N from the "(N)" sales counter.
func SalesCount(s *goquery.Selection) model.Field[int] {
	raw, found := firstText(s.Find(salesCountSelector))
	return parseSalesCount(raw, found)
}

func parseText(field, raw string, found bool) model.Field[string] {
	if !found {
		return model.Missing[string]()
	}
	if !utf8.ValidString(raw) {
		return malformed[string](field, eris.New("text is not valid utf-8"))
	}
	return model.Present(strings.TrimSpace(raw))
}

func parsePrice(raw string, found bool) model.Field[float64] {
	if !found || raw == "" {
		return model.Missing[float64]()
	}
	cleaned := strings.TrimSpace(strings.ReplaceAll(width.Narrow.String(raw), ",", ""))
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return malformed[float64]("price", eris.Wrapf(err, "parse price %q", raw))
	}
	// ParseFloat accepts "NaN" and "Inf".
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return malformed[float64]("price", eris.Errorf("price out of range: %q", raw))
	}
	return model.Present(v)
}

func parseUserLevel(src string, found bool) model.Field[int] {
	if !found || src == "" {
		return model.Missing[int]()
	}
	m := userLevelRe.FindStringSubmatch(src)
	if m == nil {
		return model.Missing[int]()
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return malformed[int]("user_level", eris.Wrapf(err, "parse user level from %q", src))
	}
	return model.Present(n)
}

func parseSalesCount(raw string, found bool) model.Field[int] {
	if !found || raw == "" {
		return model.Missing[int]()
	}
	m := salesCountRe.FindStringSubmatch(width.Narrow.String(raw))
	if m == nil {
		return model.Missing[int]()
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return malformed[int]("sales_count", eris.Wrapf(err, "parse sales count from %q", raw))
	}
	return model.Present(n)
}

func malformed[T any](field string, err error) model.Field[T] {
	zap.L().Error("extract: field extraction failed",
		zap.String("field", field),
		zap.Error(err),
	)
	return model.Malformed[T](err)
}

// firstText returns the first text node that is a direct child of any
// matched element, in document order.
func firstText(s *goquery.Selection) (string, bool) {
	var (
		text  string
		found bool
	)
	s.EachWithBreak(func(_ int, el *goquery.Selection) bool {
		el.Contents().EachWithBreak(func(_ int, c *goquery.Selection) bool {
			if goquery.NodeName(c) == "#text" {
				text = c.Text()
				found = true
				return false
			}
			return true
		})
		return !found
	})
	return text, found
}

// firstAttr returns the named attribute of the first matched element that
// carries it.
func firstAttr(s *goquery.Selection, name string) (string, bool) {
	var (
		val   string
		found bool
	)
	s.EachWithBreak(func(_ int, el *goquery.Selection) bool {
		val, found = el.Attr(name)
		return !found
	})
	return val, found
}
