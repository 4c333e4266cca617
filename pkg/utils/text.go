package utils

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	yearRegex       = regexp.MustCompile(`\d{4}`)
	nonDigitRegex   = regexp.MustCompile(`\D+`)

	// a digit run that may carry thousands/decimal separators: 350 000, 1,234.56, 12'500
	amountRegex = regexp.MustCompile(`\d[\d\s\x{00A0}\x{202F}'.,]*`)
)

// CleanText removes extra whitespace and normalizes text
func CleanText(text string) string {
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// NormalizeText trims the raw fragment and collapses inner whitespace runs.
// Absent input yields an empty string.
func NormalizeText(raw string) string {
	if raw == "" {
		return ""
	}
	return CleanText(raw)
}

// NormalizePrice extracts a decimal amount from text mixed with currency
// symbols and thousands separators. The second result is false when no
// amount could be found.
func NormalizePrice(raw string) (float64, bool) {
	match := amountRegex.FindString(raw)
	if match == "" {
		return 0, false
	}

	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '\u00a0', '\u202f', '\'':
			return -1
		}
		return r
	}, match)
	cleaned = strings.TrimRight(cleaned, ".,")
	if cleaned == "" {
		return 0, false
	}

	cleaned = resolveSeparators(cleaned)
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsInf(amount, 0) || math.IsNaN(amount) {
		return 0, false
	}
	return amount, true
}

// resolveSeparators rewrites an amount so that only a '.' decimal point
// remains. The last separator is decimal when 1-2 digits follow it, or when
// both kinds are present and it is the rightmost one.
func resolveSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	if lastDot < 0 && lastComma < 0 {
		return s
	}

	decimalAt := -1
	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimalAt = max(lastDot, lastComma)
	default:
		last := max(lastDot, lastComma)
		sep := s[last : last+1]
		digitsAfter := len(s) - last - 1
		if strings.Count(s, sep) == 1 && digitsAfter > 0 && digitsAfter <= 2 {
			decimalAt = last
		}
	}

	var b strings.Builder
	for i, r := range s {
		switch {
		case i == decimalAt:
			b.WriteByte('.')
		case r == '.' || r == ',':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeYear returns the first 4-digit run when it falls within
// [minYear, maxYear].
func NormalizeYear(raw string, minYear, maxYear int) (int, bool) {
	match := yearRegex.FindString(raw)
	if match == "" {
		return 0, false
	}
	year, err := strconv.Atoi(match)
	if err != nil || year < minYear || year > maxYear {
		return 0, false
	}
	return year, true
}

// NormalizeInteger strips every non-digit character and parses the rest.
// An empty remainder is reported as absent, never as zero.
func NormalizeInteger(raw string) (int64, bool) {
	digits := nonDigitRegex.ReplaceAllString(raw, "")
	if digits == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

var dateTokens = []struct {
	token   string
	layout  string
	pattern string
}{
	{"YYYY", "2006", `\d{4}`},
	{"MM", "01", `\d{2}`},
	{"DD", "02", `\d{2}`},
	{"HH", "15", `\d{2}`},
	{"mm", "04", `\d{2}`},
	{"ss", "05", `\d{2}`},
}

// DateLayout converts a DD.MM.YYYY style format into a Go time layout and a
// regexp that finds matching substrings.
func DateLayout(format string) (string, *regexp.Regexp, error) {
	var layout, pattern strings.Builder
	for i := 0; i < len(format); {
		matched := false
		for _, t := range dateTokens {
			if strings.HasPrefix(format[i:], t.token) {
				layout.WriteString(t.layout)
				pattern.WriteString(t.pattern)
				i += len(t.token)
				matched = true
				break
			}
		}
		if !matched {
			layout.WriteByte(format[i])
			pattern.WriteString(regexp.QuoteMeta(format[i : i+1]))
			i++
		}
	}
	re, err := regexp.Compile(pattern.String())
	if err != nil {
		return "", nil, err
	}
	return layout.String(), re, nil
}

// NormalizeDate finds a date written in sourceFormat and renders it in
// outputFormat. Both formats use the YYYY, MM, DD, HH, mm and ss tokens.
// Missing or invalid dates yield an empty string.
func NormalizeDate(raw, sourceFormat, outputFormat string) string {
	if raw == "" {
		return ""
	}
	srcLayout, re, err := DateLayout(sourceFormat)
	if err != nil {
		return ""
	}
	outLayout, _, err := DateLayout(outputFormat)
	if err != nil {
		return ""
	}
	for _, candidate := range re.FindAllString(raw, -1) {
		t, err := time.Parse(srcLayout, candidate)
		if err == nil {
			return t.Format(outLayout)
		}
	}
	return ""
}

// NormalizePresence reports whether the fragment carries anything at all.
func NormalizePresence(raw string) bool {
	return strings.TrimSpace(raw) != ""
}

// EqualsFold compares the cleaned fragment with want, ignoring case.
func EqualsFold(raw, want string) bool {
	return strings.EqualFold(CleanText(raw), CleanText(want))
}

// ContainsFold reports whether the cleaned fragment contains needle, ignoring case.
func ContainsFold(raw, needle string) bool {
	return strings.Contains(strings.ToLower(CleanText(raw)), strings.ToLower(CleanText(needle)))
}

// JoinFragments joins text fragments with a single space, skipping blanks.
func JoinFragments(fragments []string) string {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f = CleanText(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}
