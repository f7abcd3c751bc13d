package crawl

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// PageStep is how far each lineage advances per fetch. Listings are sampled
// rather than exhaustively walked.
const PageStep = 10

const pageParam = "page"

type queryParam struct {
	key, value string
	// bare is set for parameters written without "=".
	bare bool
}

// NextPageURL returns current with its page parameter advanced by PageStep.
// A missing or blank page counts as page 1. When page appears more than once the first
// occurrence wins, keeps its position, and the rest are dropped. All other
// parameters keep their values and order.
func NextPageURL(current string) (string, error) {
	u, err := url.Parse(current)
	if err != nil {
		return "", eris.Wrapf(err, "paginate: parse url %q", current)
	}

	params, err := splitQuery(u.RawQuery)
	if err != nil {
		return "", eris.Wrapf(err, "paginate: parse query of %q", current)
	}

	page := 1
	pageIdx := -1
	kept := params[:0]
	for _, p := range params {
		if p.key != pageParam {
			kept = append(kept, p)
			continue
		}
		if pageIdx >= 0 {
			continue
		}
		if v := strings.TrimSpace(p.value); v != "" {
			page, err = strconv.Atoi(v)
			if err != nil {
				return "", eris.Wrapf(err, "paginate: invalid page %q in %q", p.value, current)
			}
		}
		pageIdx = len(kept)
		kept = append(kept, p)
	}

	next := strconv.Itoa(page + PageStep)
	if pageIdx >= 0 {
		kept[pageIdx].value = next
		kept[pageIdx].bare = false
	} else {
		kept = append(kept, queryParam{key: pageParam, value: next})
	}

	u.RawQuery = joinQuery(kept)
	return u.String(), nil
}

// splitQuery decodes a raw query string keeping parameter order and
// duplicates, which url.Values does not.
func splitQuery(raw string) ([]queryParam, error) {
	var params []queryParam
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, hasEq := strings.Cut(part, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, err
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, err
		}
		params = append(params, queryParam{key: key, value: value, bare: !hasEq})
	}
	return params, nil
}

func joinQuery(params []queryParam) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		if p.bare {
			continue
		}
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}
