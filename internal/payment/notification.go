package payment

import (
	"encoding/json"
	"fmt"
)

// Notification is the webhook body the gateway POSTs on every transaction
// status change.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	TransactionID     string `json:"transaction_id"`
}

func DecodeNotification(raw []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	if n.OrderID == "" || n.TransactionStatus == "" {
		return nil, fmt.Errorf("notification missing order_id or transaction_status")
	}
	return &n, nil
}

// Authentic checks the embedded signature against the server key. A
// notification that fails this must not be trusted with any state change.
func (n *Notification) Authentic(serverKey string) bool {
	return Verify(n.OrderID, n.StatusCode, n.GrossAmount, serverKey, n.SignatureKey)
}

func (n *Notification) Status() *TransactionStatus {
	return &TransactionStatus{
		OrderRef:          n.OrderID,
		TransactionStatus: n.TransactionStatus,
		FraudStatus:       n.FraudStatus,
		PaymentType:       n.PaymentType,
		TransactionID:     n.TransactionID,
	}
}
