package processor

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/elabx-org/partscout/internal/catalog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Mounting types reported on normalized parts.
const (
	MountSurface     = "surface_mount"
	MountThroughHole = "through_hole"
)

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"¥": "JPY",
}

// InferPartType matches a vendor category against the caller's part types.
// An exact name match wins, otherwise the longest type name contained in the
// category. Returns "" when nothing matches.
func InferPartType(category string, known []catalog.PartType) string {
	c := strings.ToLower(strings.TrimSpace(category))
	if c == "" {
		return ""
	}
	best := ""
	for _, pt := range known {
		name := strings.ToLower(strings.TrimSpace(pt.Name))
		if name == "" {
			continue
		}
		if name == c {
			return pt.Name
		}
		if strings.Contains(c, name) && len(name) > len(best) {
			best = pt.Name
		}
	}
	return best
}

// MountingType derives the mounting type from parametric attributes whose
// name mentions mounting.
func MountingType(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if strings.Contains(strings.ToLower(k), "mount") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if m := normalizeMounting(params[k]); m != "" {
			return m
		}
	}
	return ""
}

func normalizeMounting(v string) string {
	v = strings.ToLower(v)
	switch {
	case strings.Contains(v, "surface"), strings.Contains(v, "smd"), strings.Contains(v, "smt"):
		return MountSurface
	case strings.Contains(v, "through"), strings.Contains(v, "thru"), strings.Contains(v, "tht"):
		return MountThroughHole
	}
	return ""
}

// ParsePrice reads vendor price strings such as "$1.23", "0,45 €" or
// "1,234.50 USD". The currency is "" when the string does not name one.
func ParsePrice(s string) (decimal.Decimal, string, error) {
	return ParsePriceIn(s, "")
}

// ParsePriceIn is ParsePrice with a currency to assume when the string names
// none. The currency decides how a lone comma is read: "1,234" is 1234 in a
// currency written with a decimal point and 1.234 otherwise.
func ParsePriceIn(s, currency string) (decimal.Decimal, string, error) {
	raw := s
	s = strings.TrimSpace(s)
	named := ""
	for sym, code := range currencySymbols {
		if strings.HasPrefix(s, sym) || strings.HasSuffix(s, sym) {
			named = code
			s = strings.TrimSpace(strings.Trim(s, sym))
			break
		}
	}
	if fields := strings.Fields(s); len(fields) == 2 && isCurrencyCode(fields[1]) {
		named = fields[1]
		s = fields[0]
	}
	if named != "" {
		currency = named
	}
	s = strings.ReplaceAll(s, " ", "")
	if strings.Contains(s, ",") {
		switch {
		case strings.Contains(s, "."):
			s = strings.ReplaceAll(s, ",", "")
		case groupedThousands(s) && (pointDecimal[strings.ToUpper(currency)] || strings.Count(s, ",") > 1):
			s = strings.ReplaceAll(s, ",", "")
		default:
			s = strings.ReplaceAll(s, ",", ".")
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("parse price %q: %w", raw, err)
	}
	return d, currency, nil
}

// Currencies conventionally written with a decimal point and comma grouping.
var pointDecimal = map[string]bool{
	"USD": true,
	"GBP": true,
	"JPY": true,
	"CNY": true,
	"CAD": true,
	"AUD": true,
}

// groupedThousands reports whether s looks like "1,234" or "12,345,678":
// one to three leading digits, then comma-separated groups of three.
func groupedThousands(s string) bool {
	groups := strings.Split(s, ",")
	if len(groups[0]) == 0 || len(groups[0]) > 3 || !allDigits(groups[0]) {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 || !allDigits(g) {
			return false
		}
	}
	return true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// ParseQuantity extracts the leading number of an availability string like
// "1,234 In Stock", "12.500 in stock" or "1.5k". A separator followed by
// exactly three digits groups thousands unless a k/M suffix follows; any
// other separator starts the fraction, which is dropped. Strings without a
// number yield 0 and values beyond int64 are capped.
func ParseQuantity(s string) int64 {
	start := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
	if start < 0 {
		return 0
	}
	rest := s[start:]
	end := strings.IndexFunc(rest, func(r rune) bool { return (r < '0' || r > '9') && r != ',' && r != '.' })
	if end < 0 {
		end = len(rest)
	}
	token := strings.TrimRight(rest[:end], ",.")
	multiplier := quantitySuffix(rest[len(token):])

	groups := strings.FieldsFunc(token, func(r rune) bool { return r == ',' || r == '.' })
	var num strings.Builder
	num.WriteString(groups[0])
	for i, g := range groups[1:] {
		last := i == len(groups)-2
		if len(g) == 3 && !(last && multiplier > 1) {
			num.WriteString(g)
			continue
		}
		// Decimal separator: keep the fraction only when a multiplier can
		// turn it into whole units.
		if multiplier > 1 {
			num.WriteByte('.')
			num.WriteString(g)
		}
		break
	}

	d, err := decimal.NewFromString(num.String())
	if err != nil {
		return 0
	}
	d = d.Mul(decimal.NewFromInt(multiplier)).Floor()
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		log.Debug().Str("quantity", s).Msg("processor: quantity overflows int64, capping")
		return math.MaxInt64
	}
	return d.IntPart()
}

// quantitySuffix returns the multiplier of a "k" or "M" directly after the
// number, when it stands alone rather than starting a word.
func quantitySuffix(after string) int64 {
	if after == "" {
		return 1
	}
	var mult int64
	switch after[0] {
	case 'k', 'K':
		mult = 1_000
	case 'M':
		mult = 1_000_000
	default:
		return 1
	}
	if len(after) > 1 && unicode.IsLetter(rune(after[1])) {
		return 1
	}
	return mult
}
