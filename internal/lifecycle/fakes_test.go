package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/Anezz12/gomealsaver-v2-sub001/internal/inventory"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/orders"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/payment"
)

// fakeWorld is an in-memory OrderStore + MealCatalog sharing one mutex, so
// Apply gives the same per-order serialization and atomic stock side
// effects as the pgx repository.
type fakeWorld struct {
	mu     sync.Mutex
	orders map[string]*orders.Order
	meals  map[string]*inventory.Meal
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		orders: map[string]*orders.Order{},
		meals:  map[string]*inventory.Meal{},
	}
}

func (w *fakeWorld) addMeal(m inventory.Meal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.meals[m.ID] = &m
}

func (w *fakeWorld) meal(id string) inventory.Meal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return *w.meals[id]
}

func (w *fakeWorld) order(id string) orders.Order {
	w.mu.Lock()
	defer w.mu.Unlock()
	return *w.orders[id]
}

func cloneOrder(o *orders.Order) *orders.Order {
	c := *o
	if o.ConfirmedAt != nil {
		t := *o.ConfirmedAt
		c.ConfirmedAt = &t
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	return &c
}

func (w *fakeWorld) Create(_ context.Context, o *orders.Order) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.orders[o.ID]; ok {
		return fmt.Errorf("duplicate order id %s", o.ID)
	}
	w.orders[o.ID] = cloneOrder(o)
	return nil
}

func (w *fakeWorld) Get(_ context.Context, id string) (*orders.Order, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	o, ok := w.orders[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (w *fakeWorld) GetByGatewayRef(_ context.Context, ref string) (*orders.Order, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, o := range w.orders {
		if o.GatewayOrderID == ref {
			return cloneOrder(o), nil
		}
	}
	return nil, orders.ErrNotFound
}

func (w *fakeWorld) ListStaleAwaitingPayment(_ context.Context, cutoff time.Time, limit int) ([]orders.Order, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []orders.Order
	for _, o := range w.orders {
		if o.Status == orders.StatusAwaitingPayment && o.PaymentStatus == orders.PaymentPending && o.CreatedAt.Before(cutoff) {
			out = append(out, *cloneOrder(o))
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (w *fakeWorld) Apply(_ context.Context, orderID string, decide orders.DecideFunc) (*orders.Order, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	stored, ok := w.orders[orderID]
	if !ok {
		return nil, orders.ErrNotFound
	}
	o := cloneOrder(stored)

	t, err := decide(o)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return o, nil
	}

	if t.ReserveStock {
		m, ok := w.meals[o.MealID]
		if !ok {
			return nil, inventory.ErrMealNotFound
		}
		if m.StockQuantity < o.Quantity {
			return nil, &inventory.InsufficientStockError{
				MealID: m.ID, Requested: o.Quantity, Available: m.StockQuantity,
			}
		}
		m.StockQuantity -= o.Quantity
		m.TotalOrders += o.Quantity
		m.Available = m.StockQuantity > 0 && !m.Disabled
	}
	if t.RestoreStock {
		m, ok := w.meals[o.MealID]
		if !ok {
			return nil, inventory.ErrMealNotFound
		}
		m.StockQuantity += o.Quantity
		m.TotalOrders -= o.Quantity
		if m.TotalOrders < 0 {
			m.TotalOrders = 0
		}
		m.Available = !m.Disabled
	}

	now := time.Now().UTC()
	o.Status = t.To.Status
	o.PaymentStatus = t.To.PaymentStatus
	o.UpdatedAt = now
	if t.SetConfirmedAt {
		o.ConfirmedAt = &now
	}
	if t.SetPaidAt && o.PaidAt == nil {
		o.PaidAt = &now
	}
	if t.TransactionID != "" {
		o.TransactionID = t.TransactionID
	}
	if t.PaymentType != "" {
		o.PaymentType = t.PaymentType
	}
	if t.Notes != "" {
		o.Notes = t.Notes
	}

	w.orders[o.ID] = cloneOrder(o)
	return o, nil
}

func (w *fakeWorld) GetMeal(_ context.Context, id string) (*inventory.Meal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.meals[id]
	if !ok {
		return nil, inventory.ErrMealNotFound
	}
	c := *m
	return &c, nil
}

type fakeGateway struct {
	mu         sync.Mutex
	session    payment.Session
	sessionErr error
	status     map[string]*payment.TransactionStatus
	statusErr  map[string]error
	calls      []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		session:   payment.Session{Token: "tok-1", RedirectURL: "https://pay.example/tok-1"},
		status:    map[string]*payment.TransactionStatus{},
		statusErr: map[string]error{},
	}
}

func (g *fakeGateway) CreateSession(_ context.Context, req payment.SessionRequest) (*payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "session:"+req.OrderRef)
	if g.sessionErr != nil {
		return nil, g.sessionErr
	}
	s := g.session
	return &s, nil
}

func (g *fakeGateway) GetTransactionStatus(_ context.Context, orderRef string) (*payment.TransactionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "status:"+orderRef)
	if err, ok := g.statusErr[orderRef]; ok {
		return nil, err
	}
	if ts, ok := g.status[orderRef]; ok {
		c := *ts
		return &c, nil
	}
	return nil, payment.ErrTransactionNotFound
}

type fakeSink struct {
	mu     sync.Mutex
	events []orders.Envelope
}

func (s *fakeSink) Publish(_, value []byte, _ ...kafkago.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var env orders.Envelope
	_ = json.Unmarshal(value, &env)
	s.events = append(s.events, env)
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
