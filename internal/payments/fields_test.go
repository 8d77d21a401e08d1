package payments

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callino/pos-hobex-bridge/pkg/db/models"
)

func TestLineFieldsRoundTrip(t *testing.T) {
	cvm := 1
	line := &models.PaymentLine{
		Amount:               decimal.RequireFromString("10.00"),
		Currency:             "EUR",
		HobexReceipt:         "BELEG\r\nZEILE 2",
		HobexApprovalCode:    "AP1",
		HobexActionCode:      "000",
		HobexAid:             "A0000000031010",
		HobexReference:       "Order0001",
		HobexTid:             "T100",
		HobexTransactionID:   "1700000000000",
		HobexTransactionDate: "2026-01-15T09:30:00",
		HobexCardNumber:      "4111********1111",
		HobexCardExpiry:      "12/27",
		HobexBrand:           "VISA",
		HobexCardIssuer:      "Test Bank",
		HobexTransactionType: "1",
		HobexResponseCode:    "0",
		HobexResponseText:    "OK",
		HobexCvm:             &cvm,
	}

	payload, err := json.Marshal(LineFieldsFrom(line))
	require.NoError(t, err)

	var decoded LineFields
	require.NoError(t, json.Unmarshal(payload, &decoded))

	fresh := &models.PaymentLine{}
	decoded.Apply(fresh)

	assert.Equal(t, line.HobexReceipt, fresh.HobexReceipt)
	assert.Equal(t, line.HobexApprovalCode, fresh.HobexApprovalCode)
	assert.Equal(t, line.HobexActionCode, fresh.HobexActionCode)
	assert.Equal(t, line.HobexAid, fresh.HobexAid)
	assert.Equal(t, line.HobexReference, fresh.HobexReference)
	assert.Equal(t, line.HobexTid, fresh.HobexTid)
	assert.Equal(t, line.HobexTransactionID, fresh.HobexTransactionID)
	assert.Equal(t, line.HobexTransactionDate, fresh.HobexTransactionDate)
	assert.Equal(t, line.HobexCardNumber, fresh.HobexCardNumber)
	assert.Equal(t, line.HobexCardExpiry, fresh.HobexCardExpiry)
	assert.Equal(t, line.HobexBrand, fresh.HobexBrand)
	assert.Equal(t, line.HobexCardIssuer, fresh.HobexCardIssuer)
	assert.Equal(t, line.HobexTransactionType, fresh.HobexTransactionType)
	assert.Equal(t, line.HobexResponseCode, fresh.HobexResponseCode)
	assert.Equal(t, line.HobexResponseText, fresh.HobexResponseText)
	require.NotNil(t, fresh.HobexCvm)
	assert.Equal(t, cvm, *fresh.HobexCvm)
}

func TestLineFieldsDefaultsAreEmptySentinels(t *testing.T) {
	payload, err := json.Marshal(LineFieldsFrom(&models.PaymentLine{}))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))

	keys := []string{
		"hobex_receipt", "hobex_approvalCode", "hobex_actionCode", "hobex_aid",
		"hobex_reference", "hobex_tid", "hobex_transactionId", "hobex_transactionDate",
		"hobex_cardNumber", "hobex_cardExpiry", "hobex_brand", "hobex_cardIssuer",
		"hobex_transactionType", "hobex_responseCode", "hobex_responseText", "hobex_cvm",
	}
	require.Len(t, raw, len(keys))
	for _, key := range keys {
		require.Contains(t, raw, key)
	}
	assert.Equal(t, "", raw["hobex_responseCode"])
	assert.Equal(t, float64(0), raw["hobex_cvm"])
}

func TestReceiptDataNormalizesLineBreaks(t *testing.T) {
	line := &models.PaymentLine{
		Amount:       decimal.RequireFromString("10.00"),
		Currency:     "EUR",
		HobexReceipt: "ZEILE 1\r\nZEILE 2\r\n",
	}
	data := ReceiptDataFrom(line)
	assert.Equal(t, "ZEILE 1\nZEILE 2\n", data.Receipt)
	assert.True(t, data.Amount.Equal(line.Amount))
}
