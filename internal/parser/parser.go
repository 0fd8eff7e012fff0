// Package parser implements the deterministic extraction of header fields and
// line items from raw OCR text and entities. It performs no network calls and
// never selects a single header value itself: all candidates are returned
// with a confidence so the caller can pick.
package parser

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/normalize"
)

// Fixed confidences for candidates that do not carry their own score.
const (
	confTextDate  = 0.6
	confTotalLine = 0.5
	confItemsSum  = 0.3
)

// totalKeywords mark summary lines. Lines containing one are never line
// items (that would double-count the receipt) but do produce total
// candidates.
var totalKeywords = []string{
	"total",
	"amount due",
	"รวม",
	"สุทธิ",
	"ทั้งสิ้น",
}

// lineItemRe matches "<description> <amount>[<unit-letter>]" anchored at the
// end of a line. The description is non-greedy so the trailing numeric token
// is as long as possible.
var lineItemRe = regexp.MustCompile(`^(.+?)[ \t]+(-?[0-9][0-9,]*(?:\.[0-9]+)?)[ \t]*\p{L}?$`)

// textDateRe finds the first date-shaped token anywhere in the OCR text.
var textDateRe = regexp.MustCompile(`\d{4}[-/]\d{1,2}[-/]\d{1,2}|\d{1,2}[-/]\d{1,2}[-/]\d{4}`)

// HeaderCandidate is one possible value for a header field.
type HeaderCandidate struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// HeaderCandidates groups all candidate values per header field.
type HeaderCandidates struct {
	Merchant []HeaderCandidate `json:"merchant"`
	Date     []HeaderCandidate `json:"date"`
	Total    []HeaderCandidate `json:"total"`
}

// ItemCandidate is a line item found deterministically in the OCR output.
type ItemCandidate struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Source      string          `json:"source"`
}

// Parse extracts header candidates and line item candidates from OCR text and
// entities. Pure function of its input.
func Parse(fullText string, entities []models.Entity) (HeaderCandidates, []ItemCandidate) {
	items := itemsFromText(fullText)
	items = mergeEntityItems(items, entities)

	header := HeaderCandidates{}
	collectEntityCandidates(&header, entities)
	collectTextDate(&header, fullText)
	collectTotalLines(&header, fullText)

	if sum := SumItems(items); sum.IsPositive() {
		header.Total = append(header.Total, HeaderCandidate{
			Value:      sum.StringFixed(2),
			Confidence: confItemsSum,
			Source:     "items_sum",
		})
	}

	return header, items
}

// ParseItemLine matches one text line against the line-item pattern. A line
// qualifies only when the trailing token parses as a positive amount, the
// description is not noise, and the line is not a totals/summary line.
func ParseItemLine(line string) (string, decimal.Decimal, bool) {
	m := lineItemRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", decimal.Zero, false
	}
	description := normalize.CollapseWhitespace(m[1])
	amount, ok := normalize.ParseAmount(m[2])
	if !ok {
		return "", decimal.Zero, false
	}
	if containsTotalKeyword(description) {
		return "", decimal.Zero, false
	}
	if normalize.IsNoise(description) {
		return "", decimal.Zero, false
	}
	return description, amount, true
}

// SumItems adds up the amounts of a candidate list.
func SumItems(items []ItemCandidate) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total
}

// Sorted returns the candidates ordered by descending confidence, stable on
// input order so entity candidates keep their OCR ordering.
func Sorted(cands []HeaderCandidate) []HeaderCandidate {
	out := make([]HeaderCandidate, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func containsTotalKeyword(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range totalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func itemsFromText(fullText string) []ItemCandidate {
	var items []ItemCandidate
	seen := make(map[string]struct{})
	for _, line := range strings.Split(fullText, "\n") {
		description, amount, ok := ParseItemLine(line)
		if !ok {
			continue
		}
		key := dedupeKey(description, amount)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, ItemCandidate{
			Description: description,
			Amount:      amount,
			Source:      "text",
		})
	}
	return items
}

// mergeEntityItems parses item-typed entities and appends those not already
// present in the text-derived set.
func mergeEntityItems(items []ItemCandidate, entities []models.Entity) []ItemCandidate {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		seen[dedupeKey(item.Description, item.Amount)] = struct{}{}
	}
	for _, entity := range entities {
		entityType := strings.ToLower(entity.Type)
		if !strings.Contains(entityType, "item") && !strings.Contains(entityType, "line_item") {
			continue
		}
		description, amount, ok := ParseItemLine(entity.MentionText)
		if !ok {
			continue
		}
		key := dedupeKey(description, amount)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, ItemCandidate{
			Description: description,
			Amount:      amount,
			Source:      "entity",
		})
	}
	return items
}

func collectEntityCandidates(header *HeaderCandidates, entities []models.Entity) {
	for _, entity := range entities {
		entityType := strings.ToLower(entity.Type)
		value := normalize.CollapseWhitespace(entity.MentionText)
		if entity.NormalizedValue != "" {
			value = normalize.CollapseWhitespace(entity.NormalizedValue)
		}
		if value == "" {
			continue
		}

		switch {
		case strings.Contains(entityType, "supplier"),
			strings.Contains(entityType, "vendor"),
			strings.Contains(entityType, "merchant"):
			header.Merchant = append(header.Merchant, HeaderCandidate{
				Value:      value,
				Confidence: entity.Confidence,
				Source:     "entity",
			})
		case strings.Contains(entityType, "date"):
			header.Date = append(header.Date, HeaderCandidate{
				Value:      value,
				Confidence: entity.Confidence,
				Source:     "entity",
			})
		case strings.Contains(entityType, "total") && !strings.Contains(entityType, "subtotal"):
			header.Total = append(header.Total, HeaderCandidate{
				Value:      value,
				Confidence: entity.Confidence,
				Source:     "entity",
			})
		}
	}
}

func collectTextDate(header *HeaderCandidates, fullText string) {
	if match := textDateRe.FindString(fullText); match != "" {
		header.Date = append(header.Date, HeaderCandidate{
			Value:      match,
			Confidence: confTextDate,
			Source:     "text_regex",
		})
	}
}

// collectTotalLines treats summary lines ("TOTAL 245.00") as total
// candidates, reusing the same trailing-amount pattern as line items.
func collectTotalLines(header *HeaderCandidates, fullText string) {
	for _, line := range strings.Split(fullText, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !containsTotalKeyword(trimmed) {
			continue
		}
		m := lineItemRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		amount, ok := normalize.ParseAmount(m[2])
		if !ok {
			continue
		}
		header.Total = append(header.Total, HeaderCandidate{
			Value:      amount.StringFixed(2),
			Confidence: confTotalLine,
			Source:     "total_line",
		})
	}
}

func dedupeKey(description string, amount decimal.Decimal) string {
	return strings.ToLower(description) + "|" + amount.StringFixed(2)
}
