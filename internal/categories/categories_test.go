package categories

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
)

func TestForType(t *testing.T) {
	coffee, err := ForType(models.BusinessTypeCoffee)
	require.NoError(t, err)
	assert.Len(t, coffee, 9)
	assert.Equal(t, "C1", coffee[0].ID, "declaration order is the rule priority")

	restaurant, err := ForType(models.BusinessTypeRestaurant)
	require.NoError(t, err)
	assert.Len(t, restaurant, 7)
	assert.Equal(t, "F1", restaurant[0].ID)

	_, err = ForType(models.BusinessType("BAKERY"))
	assert.Error(t, err)
}

func TestValidIDs(t *testing.T) {
	ids := ValidIDs(models.BusinessTypeCoffee)
	assert.Contains(t, ids, "C1")
	assert.Contains(t, ids, "C9")
	assert.NotContains(t, ids, "F1")

	assert.Nil(t, ValidIDs(models.BusinessType("BAKERY")))
}

func TestNameFor(t *testing.T) {
	assert.Equal(t, "COGS (วัตถุดิบ)", NameFor(models.BusinessTypeCoffee, "C1"))
	assert.Equal(t, "", NameFor(models.BusinessTypeCoffee, "F1"))
	assert.Equal(t, "", NameFor(models.BusinessType("BAKERY"), "C1"))
}
