package payment

import (
	"strings"

	"github.com/invitely/backend/internal/domain/finance"
)

const midtransTimeLayout = "2006-01-02 15:04:05"

// midtransNotification is the HTTP notification body Midtrans posts
type midtransNotification struct {
	TransactionID     string `json:"transaction_id"`
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	TransactionTime   string `json:"transaction_time"`
	SettlementTime    string `json:"settlement_time"`
}

// midtransRefundRequest is the body of POST /v2/{id}/refund
type midtransRefundRequest struct {
	RefundKey string `json:"refund_key"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason,omitempty"`
}

// midtransRefundResponse is the refund answer. Midtrans reports errors in
// status_code with HTTP 200, so both have to be checked.
type midtransRefundResponse struct {
	StatusCode          string `json:"status_code"`
	StatusMessage       string `json:"status_message"`
	TransactionID       string `json:"transaction_id"`
	OrderID             string `json:"order_id"`
	RefundChargebackID  int64  `json:"refund_chargeback_id"`
	RefundAmount        string `json:"refund_amount"`
	RefundKey           string `json:"refund_key"`
	TransactionStatus   string `json:"transaction_status"`
	RefundChargebackUID string `json:"refund_chargeback_uuid"`
}

// mapMidtransStatus maps transaction_status (and fraud_status for card
// captures) to a ledger status
func mapMidtransStatus(transactionStatus, fraudStatus string) (finance.PaymentStatus, bool) {
	switch strings.ToLower(transactionStatus) {
	case "capture":
		switch strings.ToLower(fraudStatus) {
		case "challenge":
			return finance.PaymentStatusPending, true
		case "deny":
			return finance.PaymentStatusFailed, true
		}
		return finance.PaymentStatusPaid, true
	case "settlement":
		return finance.PaymentStatusPaid, true
	case "pending", "authorize":
		return finance.PaymentStatusPending, true
	case "deny", "expire", "failure":
		return finance.PaymentStatusFailed, true
	case "cancel":
		return finance.PaymentStatusCancelled, true
	case "refund", "partial_refund", "chargeback", "partial_chargeback":
		return finance.PaymentStatusRefunded, true
	}
	return "", false
}

// splitMidtransOrderID separates the instalment suffix that checkout appends
// to the order number, e.g. INV-20260101-00001-DP
func splitMidtransOrderID(orderID string) (string, finance.PaymentPlan) {
	suffixes := []struct {
		suffix string
		plan   finance.PaymentPlan
	}{
		{"-DP", finance.PaymentPlanDownPayment},
		{"-FINAL", finance.PaymentPlanFinal},
		{"-FP", finance.PaymentPlanFull},
		{"-FULL", finance.PaymentPlanFull},
	}
	upper := strings.ToUpper(orderID)
	for _, s := range suffixes {
		if strings.HasSuffix(upper, s.suffix) {
			return orderID[:len(orderID)-len(s.suffix)], s.plan
		}
	}
	return orderID, ""
}
