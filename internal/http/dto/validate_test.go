package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCreateMediationRequest(t *testing.T) {
	err := Validate(CreateMediationRequest{BuyerID: "nope", BidAmount: "ten", BidCurrency: "EUR"})
	require.Error(t, err)
	assert.ElementsMatch(t, []string{
		"product_id is required",
		"buyer_id must be a uuid",
		"bid_amount must be a decimal number",
		"bid_currency must be one of: TND USD",
	}, ValidationMessages(err))

	assert.NoError(t, Validate(CreateMediationRequest{
		ProductID:   "1b4e28ba-2fa1-11d2-883f-0016d3cca427",
		BuyerID:     "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		BidAmount:   "40.00",
		BidCurrency: "TND",
	}))
}

func TestToSnake(t *testing.T) {
	assert.Equal(t, "product_id", toSnake("ProductID"))
	assert.Equal(t, "seller_percent", toSnake("SellerPercent"))
	assert.Equal(t, "reason", toSnake("Reason"))
}
