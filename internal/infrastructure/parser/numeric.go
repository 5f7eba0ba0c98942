package parser

import (
	"strings"

	"github.com/shopspring/decimal"
)

const maxQuantity = 1_000_000

var (
	defaultDecimal  = "0"
	defaultQuantity = "1"
	quantityCeiling = decimal.NewFromInt(maxQuantity)
	amountCleaner   = strings.NewReplacer("rp.", "", "rp", "", "idr", "", "$", "", "%", "", " ", "", "\u00a0", "")
)

// NormalizeDecimal parses amounts the way they show up in spreadsheet exports:
// "Rp 12.500", "12,500.00", "1.234,5", "15%". The second return value is false
// when the input was non-empty and unparsable, in which case the safe default
// "0" is returned. Empty input stays empty.
func NormalizeDecimal(raw string) (string, bool) {
	s := amountCleaner.Replace(strings.ToLower(strings.TrimSpace(raw)))
	if s == "" {
		return "", true
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	d, err := decimal.NewFromString(normalizeSeparators(s))
	if err != nil {
		return defaultDecimal, false
	}
	if negative {
		d = d.Neg()
	}
	return d.String(), true
}

// NormalizeQuantity returns a positive integer string. Anything that is not a
// positive whole number up to maxQuantity becomes "1".
func NormalizeQuantity(raw string) string {
	s, ok := NormalizeDecimal(raw)
	if !ok || s == "" {
		return defaultQuantity
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() || !d.IsPositive() || d.GreaterThan(quantityCeiling) {
		return defaultQuantity
	}
	return d.String()
}

// normalizeSeparators rewrites thousands and decimal separators into the
// plain "1234.56" form. A lone separator followed by exactly three digits
// after a short non-zero integer part is read as a thousands separator.
func normalizeSeparators(s string) string {
	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case commas > 1:
		return strings.ReplaceAll(s, ",", "")
	case dots > 1:
		return strings.ReplaceAll(s, ".", "")
	case commas == 1:
		if isThousandsGroup(s, ",") {
			return strings.Replace(s, ",", "", 1)
		}
		return strings.Replace(s, ",", ".", 1)
	case dots == 1:
		if isThousandsGroup(s, ".") {
			return strings.Replace(s, ".", "", 1)
		}
	}
	return s
}

func isThousandsGroup(s, sep string) bool {
	idx := strings.Index(s, sep)
	head := strings.TrimPrefix(s[:idx], "-")
	tail := s[idx+1:]
	if len(tail) != 3 || len(head) == 0 || len(head) > 3 || head == "0" {
		return false
	}
	return allDigits(head) && allDigits(tail)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
