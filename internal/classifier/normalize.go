package classifier

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/forumkita/marketpulse/internal/model"
)

// normalizeText prepares a post body for pattern matching: NFKC folds
// fullwidth digits and letters that show up in pasted forum text, and
// whitespace is collapsed so multi-word keywords match across line breaks.
func normalizeText(s string) string {
	s = norm.NFKC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// normalizeNumber parses a numeric literal that may use either US or
// European separator conventions:
//
//   - both "." and "," present: the later-positioned separator is the
//     decimal point, the other is grouping;
//   - one separator, repeated in groups of exactly 3 digits: grouping,
//     stripped;
//   - one single separator: decimal when followed by exactly 2 digits and
//     the currency is USD, grouping when followed by exactly 3 digits,
//     decimal otherwise.
func normalizeNumber(raw string, currency model.Currency) (float64, bool) {
	s := strings.ReplaceAll(raw, " ", "")
	if s == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Mixed separators: later one is the decimal point.
		dec, group := ".", ","
		if lastComma > lastDot {
			dec, group = ",", "."
		}
		s = strings.ReplaceAll(s, group, "")
		s = strings.Replace(s, dec, ".", 1)

	case lastDot >= 0:
		s = resolveSingleSeparator(s, ".", currency)

	case lastComma >= 0:
		s = resolveSingleSeparator(s, ",", currency)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func resolveSingleSeparator(s, sep string, currency model.Currency) string {
	parts := strings.Split(s, sep)

	if len(parts) > 2 {
		// Repeated separator: grouping iff every group after the first has
		// exactly 3 digits, otherwise the literal is malformed and the
		// trailing part is treated as a decimal.
		grouping := true
		for _, p := range parts[1:] {
			if len(p) != 3 {
				grouping = false
				break
			}
		}
		if grouping {
			return strings.Join(parts, "")
		}
		head := strings.Join(parts[:len(parts)-1], "")
		return head + "." + parts[len(parts)-1]
	}

	frac := parts[1]
	switch {
	case len(frac) == 2 && currency == model.CurrencyUSD:
		return parts[0] + "." + frac
	case len(frac) == 3:
		return parts[0] + frac
	default:
		return parts[0] + "." + frac
	}
}
