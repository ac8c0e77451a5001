package csvfile

// numbers.go parses the numeric and flag fields of supplier rows.
//
// Supplier files mix locales freely: "1.234,56", "1,234.56", "12,5",
// currency symbols, stray whitespace. Unparsable values default to
// zero instead of failing the row; missing numbers are a data-quality
// note, not an import stopper.

import (
	"strconv"
	"strings"
)

// ParseDecimal converts a supplier-provided numeric string to float64.
// Decimal commas are normalized to decimal points first. Returns 0 for
// anything unparsable.
func ParseDecimal(s string) float64 {
	s = cleanNumber(s)
	if s == "" {
		return 0
	}
	return parseFloat(s)
}

// ParseInt converts a supplier-provided integer string, tolerating
// decimal notation ("12.0") by truncation. Returns 0 for anything
// unparsable.
func ParseInt(s string) int {
	return int(ParseDecimal(s))
}

// ParseFlag interprets common truthy markers used for discontinued /
// end-of-life columns.
func ParseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "x", "ja", "discontinued", "eol":
		return true
	}
	return false
}

// cleanNumber strips currency symbols and whitespace, then normalizes
// the decimal separator to a point.
func cleanNumber(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '$', '€', '£', ' ', ' ', '\'':
			continue
		}
		b.WriteRune(r)
	}
	s = b.String()

	comma := strings.LastIndexByte(s, ',')
	dot := strings.LastIndexByte(s, '.')

	switch {
	case comma >= 0 && dot >= 0:
		// Both present: the rightmost one is the decimal separator,
		// the other is a thousands separator.
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if strings.Count(s, ",") == 1 {
			// Single comma: decimal comma.
			s = strings.Replace(s, ",", ".", 1)
		} else {
			// Multiple commas: thousands separators.
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	return s
}

// parseFloat wraps strconv.ParseFloat, swallowing errors into the
// zero default.
func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
