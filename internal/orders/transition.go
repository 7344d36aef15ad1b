package orders

// Transition is the outcome of a decide function: the new joint state plus
// the side effects that must commit atomically with it.
type Transition struct {
	To      State
	Trigger string

	ReserveStock bool
	RestoreStock bool

	SetConfirmedAt bool
	SetPaidAt      bool

	TransactionID string
	PaymentType   string
	Notes         string
}

// DecideFunc inspects an order freshly read under the row lock and returns
// the transition to apply. Returning (nil, nil) means no-op: the order is
// left untouched and returned as-is. Guards therefore hold at write time,
// not just at whatever stale read the caller started from.
type DecideFunc func(o *Order) (*Transition, error)
