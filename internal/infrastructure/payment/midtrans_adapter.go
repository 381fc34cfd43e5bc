package payment

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/invitely/backend/internal/domain/finance"
	"github.com/shopspring/decimal"
)

// MidtransGatewayName identifies Midtrans notifications
const MidtransGatewayName = "midtrans"

// MidtransAdapter verifies Midtrans notifications and issues refunds
type MidtransAdapter struct {
	config     *MidtransConfig
	httpClient *http.Client
}

// NewMidtransAdapter creates a new Midtrans adapter
func NewMidtransAdapter(config *MidtransConfig) (*MidtransAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &MidtransAdapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// WithHTTPClient replaces the HTTP client
func (a *MidtransAdapter) WithHTTPClient(client *http.Client) *MidtransAdapter {
	a.httpClient = client
	return a
}

// Name returns the gateway identifier
func (a *MidtransAdapter) Name() string {
	return MidtransGatewayName
}

// Signature computes SHA-512(order_id + status_code + gross_amount + server_key)
func (a *MidtransAdapter) Signature(orderID, statusCode, grossAmount string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + a.config.ServerKey))
	return hex.EncodeToString(sum[:])
}

// VerifyNotification authenticates a notification body and maps it to a
// gateway-neutral notification
func (a *MidtransAdapter) VerifyNotification(_ context.Context, payload []byte) (*finance.PaymentNotification, error) {
	var n midtransNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", finance.ErrGatewayInvalidResponse, err)
	}
	if n.OrderID == "" || n.TransactionID == "" || n.SignatureKey == "" {
		return nil, fmt.Errorf("%w: missing order_id, transaction_id or signature_key", finance.ErrGatewayInvalidResponse)
	}

	expected := a.Signature(n.OrderID, n.StatusCode, n.GrossAmount)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(n.SignatureKey))) != 1 {
		return nil, finance.ErrGatewayInvalidCallback
	}

	status, ok := mapMidtransStatus(n.TransactionStatus, n.FraudStatus)
	if !ok {
		return nil, fmt.Errorf("%w: unknown transaction_status %q", finance.ErrGatewayInvalidResponse, n.TransactionStatus)
	}
	amount, err := decimal.NewFromString(n.GrossAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: gross_amount %q", finance.ErrGatewayInvalidResponse, n.GrossAmount)
	}

	orderNumber, plan := splitMidtransOrderID(n.OrderID)
	notification := &finance.PaymentNotification{
		Gateway:       MidtransGatewayName,
		OrderNumber:   orderNumber,
		TransactionID: n.TransactionID,
		Amount:        amount,
		Status:        status,
		Plan:          plan,
		PaymentType:   n.PaymentType,
		FraudStatus:   n.FraudStatus,
		RawPayload:    json.RawMessage(payload),
	}

	at := n.SettlementTime
	if at == "" {
		at = n.TransactionTime
	}
	if at != "" {
		// Midtrans timestamps are Jakarta local time without a zone.
		if t, err := time.ParseInLocation(midtransTimeLayout, at, jakarta); err == nil {
			notification.OccurredAt = &t
		}
	}
	return notification, nil
}

// Refund asks Midtrans to refund a settled transaction. The refund key is
// the request's idempotency key, so a retry of the same refund is
// deduplicated by Midtrans.
func (a *MidtransAdapter) Refund(ctx context.Context, req finance.RefundRequest) (*finance.RefundResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	target := req.TransactionID
	if target == "" {
		target = req.OrderNumber
	}
	body, err := json.Marshal(midtransRefundRequest{
		RefundKey: req.IdempotencyKey,
		Amount:    req.Amount.Round(0).IntPart(),
		Reason:    req.Reason,
	})
	if err != nil {
		return nil, fmt.Errorf("midtrans: failed to marshal refund: %w", err)
	}

	respBody, err := a.doRequest(ctx, http.MethodPost, "/v2/"+url.PathEscape(target)+"/refund", body)
	if err != nil {
		return nil, err
	}

	var resp midtransRefundResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", finance.ErrGatewayInvalidResponse, err)
	}

	switch {
	case resp.StatusCode == "200":
	case resp.StatusCode == "201" || resp.StatusCode == "202":
		return a.refundResult(resp, req, respBody, false), nil
	case strings.HasPrefix(resp.StatusCode, "5"):
		return nil, fmt.Errorf("%w: %s %s", finance.ErrGatewayUnavailable, resp.StatusCode, resp.StatusMessage)
	default:
		return nil, fmt.Errorf("%w: %s %s", finance.ErrGatewayRequestFailed, resp.StatusCode, resp.StatusMessage)
	}
	return a.refundResult(resp, req, respBody, true), nil
}

func (a *MidtransAdapter) refundResult(resp midtransRefundResponse, req finance.RefundRequest, raw []byte, completed bool) *finance.RefundResult {
	result := &finance.RefundResult{
		RefundTransactionID: resp.RefundKey,
		Amount:              req.Amount,
		Completed:           completed,
		RawResponse:         json.RawMessage(raw),
	}
	if resp.RefundChargebackID != 0 {
		result.RefundTransactionID = fmt.Sprintf("%d", resp.RefundChargebackID)
	}
	if result.RefundTransactionID == "" {
		result.RefundTransactionID = req.IdempotencyKey
	}
	if amount, err := decimal.NewFromString(resp.RefundAmount); err == nil {
		result.Amount = amount
	}
	if completed {
		now := time.Now()
		result.RefundedAt = &now
	}
	return result
}

func (a *MidtransAdapter) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("midtrans: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(a.config.ServerKey, "")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", finance.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("midtrans: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", finance.ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: HTTP %d", finance.ErrGatewayRequestFailed, resp.StatusCode)
	}
	return respBody, nil
}

var jakarta = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		return time.FixedZone("WIB", 7*60*60)
	}
	return loc
}()

var (
	_ finance.NotificationVerifier = (*MidtransAdapter)(nil)
	_ finance.RefundGateway        = (*MidtransAdapter)(nil)
)
