package format

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPaymentMethodLabel(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"bca virtual account", `{"payment_type":"bank_transfer","va_numbers":[{"bank":"bca","va_number":"123"}]}`, "BCA Virtual Account"},
		{"permata", `{"payment_type":"bank_transfer","permata_va_number":"8562"}`, "Permata Virtual Account"},
		{"mandiri bill", `{"payment_type":"echannel","bill_key":"990","biller_code":"70012"}`, "Mandiri Bill Payment"},
		{"indomaret", `{"payment_type":"cstore","store":"indomaret"}`, "Indomaret"},
		{"gopay", `{"payment_type":"gopay"}`, "GoPay"},
		{"qris via shopeepay", `{"payment_type":"qris","acquirer":"shopeepay"}`, "QRIS (ShopeePay)"},
		{"credit card", `{"payment_type":"credit_card","bank":"bni"}`, "Credit Card (BNI)"},
		{"unknown type is title cased", `{"payment_type":"direct_debit"}`, "Direct Debit"},
		{"backfilled row", `{"source":"backfill","order_number":"INV-1"}`, "Backfilled"},
		{"empty payload", ``, UnknownMethod},
		{"garbage", `not-json`, UnknownMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PaymentMethodLabel(json.RawMessage(tt.payload)))
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "Rp 500.000", FormatAmount(decimal.NewFromInt(500000)))
	assert.Equal(t, "Rp 1.250.000", FormatAmount(decimal.RequireFromString("1249999.6")))
	assert.Equal(t, "Rp 0", FormatAmount(decimal.Zero))
	assert.Equal(t, "-Rp 50.000", FormatAmount(decimal.NewFromInt(-50000)))
}
