package source

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/maltedev/product-sourcing/internal/models"
)

var (
	amountPattern   = regexp.MustCompile(`\d{1,3}(?:,\d{3})+|\d+`)
	wonPattern      = regexp.MustCompile(`(\d{1,3}(?:,\d{3})+|\d+)\s*원`)
	rangeSeparators = []string{"~", "～", " - "}

	optionDeltaPattern = regexp.MustCompile(`\(\s*([+-])\s*(\d{1,3}(?:,\d{3})+|\d+)\s*원?\s*\)`)
	optionQtyPattern   = regexp.MustCompile(`\(\s*(?:재고\s*:?\s*)?(\d{1,3}(?:,\d{3})+|\d+)\s*개(?:\s*남음)?\s*\)`)

	markupPattern     = regexp.MustCompile(`<[^>]*>`)
	entityPattern     = regexp.MustCompile(`&(?:nbsp|amp|lt|gt|quot|#\d+);`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	codePattern       = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9_-]*$`)
)

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseAmounts returns every integer amount in text, thousands separators removed.
func ParseAmounts(text string) []int64 {
	matches := amountPattern.FindAllString(text, -1)
	out := make([]int64, 0, len(matches))
	for _, m := range matches {
		out = append(out, parseInt(m))
	}
	return out
}

func wonAmounts(text string) []int64 {
	var out []int64
	for _, m := range wonPattern.FindAllStringSubmatch(text, -1) {
		out = append(out, parseInt(m[1]))
	}
	return out
}

func isRange(text string) bool {
	for _, sep := range rangeSeparators {
		if strings.Contains(text, sep) {
			return true
		}
	}
	return false
}

// ParseAmount reads a single price. Ranges are rejected.
func ParseAmount(text string) (int64, bool) {
	if isRange(text) {
		return 0, false
	}
	amounts := wonAmounts(text)
	if len(amounts) == 0 {
		amounts = ParseAmounts(text)
	}
	if len(amounts) == 0 || amounts[0] <= 0 {
		return 0, false
	}
	return amounts[0], true
}

// ParseRangeMin returns the smallest positive amount of a price range.
func ParseRangeMin(text string) (int64, bool) {
	amounts := wonAmounts(text)
	if len(amounts) == 0 {
		amounts = ParseAmounts(text)
	}
	var min int64
	for _, a := range amounts {
		if a > 0 && (min == 0 || a < min) {
			min = a
		}
	}
	return min, min > 0
}

// ParseFirstTier reads the price of a quantity-tier row such as "1~9개 12,000원".
// Without a currency marker the last number in the row is the price.
func ParseFirstTier(text string) (int64, bool) {
	if amounts := wonAmounts(text); len(amounts) > 0 {
		return amounts[0], amounts[0] > 0
	}
	amounts := ParseAmounts(text)
	if len(amounts) == 0 {
		return 0, false
	}
	last := amounts[len(amounts)-1]
	return last, last > 0
}

// NormalizeDelta converts an option's total price into a non-negative delta over base.
func NormalizeDelta(total, base int64) int64 {
	if total <= base {
		return 0
	}
	return total - base
}

// ParseOptionLabel splits a button label like "Red (+2,000원) (15개)" into
// name, price delta and quantity. Quantity defaults to the sentinel.
func ParseOptionLabel(label string) models.Option {
	opt := models.Option{Qty: models.SentinelQuantity}

	if m := optionDeltaPattern.FindStringSubmatch(label); m != nil {
		delta := parseInt(m[2])
		if m[1] == "+" {
			opt.PriceDelta = delta
		}
		label = strings.Replace(label, m[0], " ", 1)
	}
	if m := optionQtyPattern.FindStringSubmatch(label); m != nil {
		opt.Qty = int(parseInt(m[1]))
		label = strings.Replace(label, m[0], " ", 1)
	}

	opt.Name = CleanText(label)
	return opt
}

// CleanText strips residual markup and entities and collapses whitespace.
func CleanText(s string) string {
	s = markupPattern.ReplaceAllString(s, " ")
	s = entityPattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// valueAfterLabel drops a leading "label :" prefix.
func valueAfterLabel(s string) string {
	s = CleanText(s)
	if i := strings.IndexAny(s, ":："); i >= 0 && i < 20 {
		return strings.TrimSpace(s[i+len(string([]rune(s[i:])[0])):])
	}
	return s
}

func parseProductCode(s string) string {
	return codePattern.FindString(strings.TrimSpace(s))
}

// parseShippingFee returns the fee and whether the text declares free shipping.
// Text without either yields 0, false.
func parseShippingFee(s string) (int64, bool) {
	s = CleanText(s)
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, "무료") || strings.Contains(strings.ToLower(s), "free") {
		return 0, true
	}
	if fee, ok := ParseAmount(s); ok {
		return fee, false
	}
	return 0, false
}

func parseMinPurchase(s string) int {
	amounts := ParseAmounts(s)
	if len(amounts) == 0 || amounts[0] < 1 {
		return 1
	}
	return int(amounts[0])
}
