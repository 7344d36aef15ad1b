package orders

type Status string

const (
	StatusPending         Status = "pending"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusConfirmed       Status = "confirmed"
	StatusInProgress      Status = "in_progress"
	StatusProcessing      Status = "processing"
	StatusReady           Status = "ready"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentExpired   PaymentStatus = "expired"
	PaymentCancelled PaymentStatus = "cancelled"
)

// State is the joint lifecycle value. Status and PaymentStatus are stored
// and exposed as two fields, but internally only the combinations listed in
// validStates exist, so the cross-field invariants cannot be violated by a
// transition that goes through the engine.
type State struct {
	Status        Status
	PaymentStatus PaymentStatus
}

var validStates = map[State]bool{
	{StatusPending, PaymentPending}:         true,
	{StatusAwaitingPayment, PaymentPending}: true,
	{StatusConfirmed, PaymentPending}:       true,
	{StatusInProgress, PaymentPending}:      true,
	{StatusReady, PaymentPending}:           true,
	{StatusProcessing, PaymentPaid}:         true,
	{StatusCompleted, PaymentPaid}:          true,
	{StatusCancelled, PaymentCancelled}:     true,
	{StatusCancelled, PaymentFailed}:        true,
	{StatusCancelled, PaymentExpired}:       true,
}

func (s State) Valid() bool { return validStates[s] }

func (s State) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusCancelled
}

// Reserved reports whether an order in this state holds a stock
// reservation. Stock is committed at COD confirmation or online settlement
// and released exactly once on cancellation from one of these states.
func (s State) Reserved() bool {
	switch s.Status {
	case StatusConfirmed, StatusInProgress, StatusReady, StatusProcessing, StatusCompleted:
		return true
	}
	return false
}

// manualNext are the seller-driven status progressions allowed through the
// generic update-status entry point. Confirmation, cash acceptance,
// cancellation and payment settlement all have dedicated transitions with
// their own side effects and are deliberately not reachable here; in
// particular there is no pending->processing shortcut, reservation happens
// exactly once at confirmation.
var manualNext = map[Status]map[Status]bool{
	StatusConfirmed:  {StatusInProgress: true},
	StatusInProgress: {StatusReady: true},
	StatusProcessing: {StatusCompleted: true},
}

func CanProgress(from, to Status) bool {
	return manualNext[from][to]
}
