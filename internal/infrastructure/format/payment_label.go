// Package format renders payment data for humans. It is presentation only;
// nothing here feeds back into ledger decisions.
package format

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const UnknownMethod = "Unknown"

// brandNames are spellings title-casing would get wrong
var brandNames = map[string]string{
	"gopay":       "GoPay",
	"shopeepay":   "ShopeePay",
	"qris":        "QRIS",
	"ovo":         "OVO",
	"dana":        "DANA",
	"akulaku":     "Akulaku",
	"bca_klikpay": "BCA KlikPay",
	"cimb_clicks": "CIMB Clicks",
	"bri_epay":    "BRI e-Pay",
}

// gatewayPayload is the subset of gateway fields used for labelling
type gatewayPayload struct {
	Source          string `json:"source"`
	PaymentType     string `json:"payment_type"`
	PermataVANumber string `json:"permata_va_number"`
	BillKey         string `json:"bill_key"`
	Store           string `json:"store"`
	Issuer          string `json:"issuer"`
	Acquirer        string `json:"acquirer"`
	Bank            string `json:"bank"`
	VANumbers       []struct {
		Bank string `json:"bank"`
	} `json:"va_numbers"`
}

// PaymentMethodLabel derives a label such as "BCA Virtual Account" or
// "Indomaret" from a raw gateway payload.
func PaymentMethodLabel(raw json.RawMessage) string {
	if len(raw) == 0 {
		return UnknownMethod
	}
	var p gatewayPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return UnknownMethod
	}

	switch {
	case p.Source == "backfill":
		return "Backfilled"
	case p.Source == "manual":
		return "Manual Transfer"
	}

	pt := strings.ToLower(strings.TrimSpace(p.PaymentType))
	switch pt {
	case "bank_transfer":
		if len(p.VANumbers) > 0 && p.VANumbers[0].Bank != "" {
			return strings.ToUpper(p.VANumbers[0].Bank) + " Virtual Account"
		}
		if p.PermataVANumber != "" {
			return "Permata Virtual Account"
		}
		return "Bank Transfer"
	case "echannel":
		return "Mandiri Bill Payment"
	case "cstore":
		if p.Store != "" {
			return titleCase(p.Store)
		}
		return "Convenience Store"
	case "qris":
		if issuer := firstNonEmpty(p.Issuer, p.Acquirer); issuer != "" {
			return "QRIS (" + brandOrTitle(issuer) + ")"
		}
		return "QRIS"
	case "credit_card":
		if p.Bank != "" {
			return "Credit Card (" + strings.ToUpper(p.Bank) + ")"
		}
		return "Credit Card"
	case "":
		if p.BillKey != "" {
			return "Mandiri Bill Payment"
		}
		return UnknownMethod
	}
	return brandOrTitle(pt)
}

func brandOrTitle(s string) string {
	key := strings.ToLower(strings.TrimSpace(s))
	if name, ok := brandNames[key]; ok {
		return name
	}
	return titleCase(key)
}

func titleCase(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", " ")
	return cases.Title(language.English).String(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var idPrinter = message.NewPrinter(language.Indonesian)

// FormatAmount renders a rupiah amount with Indonesian digit grouping, e.g. "Rp 1.500.000"
func FormatAmount(amount decimal.Decimal) string {
	rounded := amount.Round(0)
	if rounded.IsNegative() {
		return "-Rp " + idPrinter.Sprintf("%d", rounded.Neg().IntPart())
	}
	return "Rp " + idPrinter.Sprintf("%d", rounded.IntPart())
}
