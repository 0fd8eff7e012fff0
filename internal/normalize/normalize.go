// Package normalize holds the shared text and amount normalization primitives
// used by the deterministic parser, the payload validator and the entity
// fallback. All functions are pure.
package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// dateFormats is the ordered list of accepted date layouts. Order matters:
// day-first layouts are tried before year-first slash layouts, and ambiguous
// dates like 03/04/2023 always resolve day-first. There is no heuristic
// disambiguation beyond this order.
var dateFormats = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"2006/01/02",
}

// noiseTerms is the denylist of administrative terms that disqualify a line
// from being a purchase item: tax ids, VAT lines, payment methods,
// loyalty/member programs, QR references and phone markers.
var noiseTerms = []string{
	"tax id",
	"taxid",
	"vat",
	"ภาษีมูลค่าเพิ่ม",
	"เลขประจำตัวผู้เสียภาษี",
	"cash",
	"เงินสด",
	"เงินทอน",
	"change",
	"credit card",
	"บัตรเครดิต",
	"promptpay",
	"พร้อมเพย์",
	"member",
	"สมาชิก",
	"สะสมแต้ม",
	"แต้ม",
	"คะแนน",
	"qr",
	"คิวอาร์",
	"tel.",
	"โทร",
}

// ParseAmount parses a monetary amount out of noisy OCR text. It strips
// thousands separators and any character outside digits, '.' and '-',
// collapses multiple decimal points into one, and rejects empty, bare-sign
// and non-positive results. The returned amount is rounded to 2 decimals.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	// OCR frequently yields amounts like "1.234.56": keep the first dot as
	// the decimal point and join the remaining fragments.
	if strings.Count(cleaned, ".") > 1 {
		parts := strings.SplitN(cleaned, ".", 2)
		cleaned = parts[0] + "." + strings.ReplaceAll(parts[1], ".", "")
	}

	switch cleaned {
	case "", ".", "-", "-.":
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	if !d.IsPositive() {
		return decimal.Zero, false
	}
	return d.Round(2), true
}

// DecimalFromAny converts an untrusted JSON value (number, numeric string,
// json.Number) into a positive amount. Strings go through ParseAmount so
// separators and currency suffixes are tolerated.
func DecimalFromAny(v interface{}) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, false
	case float64:
		d := decimal.NewFromFloat(val)
		if !d.IsPositive() {
			return decimal.Zero, false
		}
		return d.Round(2), true
	case int:
		return DecimalFromAny(float64(val))
	case int64:
		return DecimalFromAny(float64(val))
	case json.Number:
		return ParseAmount(string(val))
	case string:
		return ParseAmount(val)
	default:
		return decimal.Zero, false
	}
}

// FloatFromAny extracts a float from an untrusted JSON value, defaulting to 0.
func FloatFromAny(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// StringFromAny extracts a trimmed string from an untrusted JSON value.
func StringFromAny(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return string(val)
	default:
		return ""
	}
}

// NormalizeDate tries the fixed format list in order and returns the first
// successful parse as an ISO date string.
func NormalizeDate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// CollapseWhitespace trims and collapses runs of whitespace to single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// IsNoise reports whether a description is an administrative artifact rather
// than a purchased item. The same predicate gates raw-text line extraction,
// validator item filtering and entity fallback.
func IsNoise(description string) bool {
	collapsed := CollapseWhitespace(description)
	if collapsed == "" {
		return true
	}

	lower := strings.ToLower(collapsed)
	dehyphenated := strings.ReplaceAll(lower, "-", "")
	for _, term := range noiseTerms {
		if strings.Contains(lower, term) || strings.Contains(dehyphenated, term) {
			return true
		}
	}

	letters, digits, runes := 0, 0, 0
	for _, r := range collapsed {
		runes++
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		}
	}
	minDigits := runes / 2
	if minDigits < 6 {
		minDigits = 6
	}
	if letters == 0 && digits >= minDigits {
		return true
	}

	return IsNumericOnly(collapsed)
}

// IsNumericOnly reports whether a string contains nothing but digits,
// punctuation and symbols once whitespace is removed. Used to reject merchant
// names that are actually tax ids or reference numbers.
func IsNumericOnly(s string) bool {
	seen := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		if !unicode.IsDigit(r) && !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return false
		}
		seen = true
	}
	return seen
}

// ClampConfidence bounds a confidence value to [0, 1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
