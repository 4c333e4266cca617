package crawler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultPageParam is the query parameter that carries the page number
const DefaultPageParam = "page"

// NextPageURL returns rawURL with its page parameter incremented by one.
// A missing or malformed page value counts as 0, so the result asks for
// page 1. The query is re-encoded with sorted keys; scheme, host, path and
// fragment are kept. A query that does not decode cleanly is rewritten in
// place instead, leaving every other pair byte for byte. An error is
// returned only when rawURL does not parse.
func NextPageURL(rawURL, param string) (string, error) {
	if param == "" {
		param = DefaultPageParam
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid page URL: %w", err)
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		u.RawQuery = rewriteRawQuery(u.RawQuery, param)
		return u.String(), nil
	}

	query.Set(param, strconv.Itoa(pageNumber(query.Get(param))+1))
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// rewriteRawQuery replaces the param pairs of raw with one incremented pair
// at the position of the first, appending it when absent.
func rewriteRawQuery(raw, param string) string {
	pairs := strings.Split(raw, "&")
	out := make([]string, 0, len(pairs)+1)
	found := false
	for _, pair := range pairs {
		key, value, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if key != param {
			out = append(out, pair)
			continue
		}
		if found {
			continue
		}
		found = true
		out = append(out, param+"="+strconv.Itoa(pageNumber(value)+1))
	}
	if !found {
		out = append(out, param+"=1")
	}
	return strings.Join(out, "&")
}

// pageNumber reads a page value; missing or malformed values count as 0
func pageNumber(value string) int {
	if n, err := strconv.Atoi(value); err == nil && n >= 0 {
		return n
	}
	return 0
}
