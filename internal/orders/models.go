package orders

import "time"

type PaymentMethod string

const (
	MethodOnline PaymentMethod = "online"
	MethodCOD    PaymentMethod = "cash_on_delivery"
)

type Order struct {
	ID string
	// GatewayOrderID is assigned at creation for every payment method so
	// reconciliation against the gateway is uniform.
	GatewayOrderID string

	BuyerID  string
	SellerID string
	MealID   string
	Quantity int

	UnitPriceCents  int
	ServiceFeeCents int
	TotalCents      int

	Status        Status
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod
	// PaymentType is the gateway-reported sub-type (gopay, bank_transfer,
	// ...) once known.
	PaymentType   string
	TransactionID string

	PaymentToken string
	PaymentURL   string

	ShippingAddress string
	ShippingPhone   string
	Notes           string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt *time.Time
	PaidAt      *time.Time
}

func (o *Order) State() State {
	return State{Status: o.Status, PaymentStatus: o.PaymentStatus}
}

func (o *Order) IsBuyer(userID string) bool  { return userID != "" && userID == o.BuyerID }
func (o *Order) IsSeller(userID string) bool { return userID != "" && userID == o.SellerID }
