package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/width"
)

// plainDecimalRe is the only shape accepted after separators are stripped.
// It keeps strconv from admitting NaN, Inf, exponents and hex floats.
var plainDecimalRe = regexp.MustCompile(`^[+-]?(?:[0-9]+(?:\.[0-9]*)?|\.[0-9]+)$`)

// Fold converts full-width digits, letters and punctuation to their ASCII
// forms ("１，２３４．５" becomes "1,234.5", "：" becomes ":").
func Fold(s string) string {
	return width.Fold.String(s)
}

// ParseAmount normalizes a figure expressed in 亿元: thousands separators
// and whitespace are stripped, full-width digits folded and a trailing unit
// ignored. "1,234.50" and "1234.5" parse to the same value.
func ParseAmount(s string) (float64, error) {
	raw := s
	s = Fold(s)
	s = strings.TrimSpace(s)
	for _, suffix := range []string{"亿元", "亿"} {
		s = strings.TrimSuffix(s, suffix)
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, eris.Errorf("extract: empty amount %q", raw)
	}
	if !plainDecimalRe.MatchString(s) {
		return 0, eris.Errorf("extract: %q is not a decimal amount", raw)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "extract: parse amount %q", raw)
	}
	return v, nil
}

// ParsePercent parses "12.5%" or "12.5" into 12.5.
func ParsePercent(s string) (float64, error) {
	s = strings.TrimSpace(Fold(s))
	s = strings.TrimSuffix(s, "%")
	v, err := ParseAmount(s)
	if err != nil {
		return 0, eris.Wrapf(err, "extract: parse percent %q", s)
	}
	return v, nil
}

// ParseCount parses a whole number such as "12" or "1,024".
func ParseCount(s string) (int, error) {
	v, err := ParseAmount(strings.TrimSuffix(strings.TrimSpace(s), "家"))
	if err != nil {
		return 0, err
	}
	if v != float64(int(v)) || v < 0 {
		return 0, eris.Errorf("extract: %q is not a count", s)
	}
	return int(v), nil
}
