package payment

import (
	"context"
	"errors"
)

// Gateway transaction statuses as reported by the payment provider.
const (
	TxCapture    = "capture"
	TxSettlement = "settlement"
	TxPending    = "pending"
	TxDeny       = "deny"
	TxCancel     = "cancel"
	TxExpire     = "expire"
	TxFailure    = "failure"

	FraudAccept    = "accept"
	FraudChallenge = "challenge"
	FraudDeny      = "deny"
)

var (
	// ErrTransactionNotFound: the gateway has no record of the order ref.
	ErrTransactionNotFound = errors.New("gateway: transaction not found")
	// ErrUnavailable: transient gateway failure, safe to retry, no local
	// state may be mutated because of it.
	ErrUnavailable = errors.New("gateway: unavailable")
)

type SessionRequest struct {
	OrderRef      string
	AmountCents   int
	ItemName      string
	Quantity      int
	CustomerID    string
	ExpiryMinutes int
}

type Session struct {
	Token       string
	RedirectURL string
}

type TransactionStatus struct {
	OrderRef          string
	TransactionStatus string // one of the Tx* constants
	FraudStatus       string
	PaymentType       string
	TransactionID     string
}

// Gateway is the external system of record for online payments. It is
// eventually consistent with us: webhooks may arrive late, twice, or never,
// which is why polling and the reconciliation sweep exist.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	GetTransactionStatus(ctx context.Context, orderRef string) (*TransactionStatus, error)
}
