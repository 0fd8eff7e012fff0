package parser

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
)

func TestParseItemLine(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		description string
		amount      string
		ok          bool
	}{
		{name: "english item", line: "Iced Latte 65.00", description: "Iced Latte", amount: "65", ok: true},
		{name: "thai item", line: "ข้าวผัดกระเพรา 55", description: "ข้าวผัดกระเพรา", amount: "55", ok: true},
		{name: "thousands separator", line: "Catering set 1,250.00", description: "Catering set", amount: "1250", ok: true},
		{name: "trailing unit letter", line: "น้ำแข็ง 20 บ", description: "น้ำแข็ง", amount: "20", ok: true},
		{name: "total line excluded", line: "TOTAL 120.00", ok: false},
		{name: "thai total excluded", line: "รวมทั้งสิ้น 245.00", ok: false},
		{name: "noise line excluded", line: "เงินทอน 40.00", ok: false},
		{name: "vat line excluded", line: "VAT 7.00", ok: false},
		{name: "no amount", line: "Iced Latte", ok: false},
		{name: "negative amount", line: "Discount -10.00", ok: false},
		{name: "empty", line: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			description, amount, ok := ParseItemLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.description, description)
				assert.Equal(t, tt.amount, amount.String())
			}
		})
	}
}

func TestParseFromText(t *testing.T) {
	fullText := "Coffee Corner\n31/12/2023\nIced Latte 65.00\nAmericano 55.00\nTOTAL 120.00\nCASH 200.00\n"

	header, items := Parse(fullText, nil)

	require.Len(t, items, 2)
	assert.Equal(t, "Iced Latte", items[0].Description)
	assert.Equal(t, "65", items[0].Amount.String())
	assert.Equal(t, "text", items[0].Source)
	assert.Equal(t, "Americano", items[1].Description)

	require.NotEmpty(t, header.Date)
	assert.Equal(t, "31/12/2023", header.Date[0].Value)
	assert.Equal(t, "text_regex", header.Date[0].Source)

	// one candidate from the TOTAL line, one from the items sum
	require.Len(t, header.Total, 2)
	assert.Equal(t, "120.00", header.Total[0].Value)
	assert.Equal(t, "total_line", header.Total[0].Source)
	assert.Equal(t, "120.00", header.Total[1].Value)
	assert.Equal(t, "items_sum", header.Total[1].Source)
}

func TestParseDeduplicatesLines(t *testing.T) {
	fullText := "Latte 60.00\nLatte 60.00\nLatte 65.00\n"

	_, items := Parse(fullText, nil)

	require.Len(t, items, 2)
	assert.Equal(t, "60", items[0].Amount.String())
	assert.Equal(t, "65", items[1].Amount.String())
}

func TestParseMergesEntityItems(t *testing.T) {
	fullText := "Latte 60.00\n"
	entities := []models.Entity{
		{Type: "line_item", MentionText: "Green Tea 45.00", Confidence: 0.9},
		{Type: "line_item", MentionText: "Latte 60.00", Confidence: 0.9}, // duplicate of text line
		{Type: "supplier_name", MentionText: "Coffee Corner", Confidence: 0.8},
	}

	header, items := Parse(fullText, entities)

	require.Len(t, items, 2)
	assert.Equal(t, "Latte", items[0].Description)
	assert.Equal(t, "entity", items[1].Source)
	assert.Equal(t, "Green Tea", items[1].Description)

	require.Len(t, header.Merchant, 1)
	assert.Equal(t, "Coffee Corner", header.Merchant[0].Value)
	assert.Equal(t, 0.8, header.Merchant[0].Confidence)
}

func TestParseEntityHeaderCandidates(t *testing.T) {
	entities := []models.Entity{
		{Type: "receipt_date", MentionText: "31/12/23", NormalizedValue: "2023-12-31", Confidence: 0.95},
		{Type: "total_amount", MentionText: "245.00", Confidence: 0.9},
		{Type: "subtotal_amount", MentionText: "229.00", Confidence: 0.9},
	}

	header, _ := Parse("", entities)

	require.Len(t, header.Date, 1)
	assert.Equal(t, "2023-12-31", header.Date[0].Value, "normalized value preferred over mention text")

	// subtotal must not become a total candidate
	require.Len(t, header.Total, 1)
	assert.Equal(t, "245.00", header.Total[0].Value)
}

func TestSorted(t *testing.T) {
	cands := []HeaderCandidate{
		{Value: "a", Confidence: 0.3},
		{Value: "b", Confidence: 0.9},
		{Value: "c", Confidence: 0.9},
		{Value: "d", Confidence: 0.5},
	}

	sorted := Sorted(cands)

	assert.Equal(t, "b", sorted[0].Value)
	assert.Equal(t, "c", sorted[1].Value, "stable on equal confidence")
	assert.Equal(t, "d", sorted[2].Value)
	assert.Equal(t, "a", sorted[3].Value)
	assert.Equal(t, "a", cands[0].Value, "input untouched")
}

func TestSumItems(t *testing.T) {
	items := []ItemCandidate{
		{Amount: decimal.NewFromFloat(65)},
		{Amount: decimal.NewFromFloat(55.5)},
	}
	assert.Equal(t, "120.5", SumItems(items).String())
	assert.True(t, SumItems(nil).IsZero())
}
