package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Anezz12/gomealsaver-v2-sub001/internal/orders"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/payment"
)

type fakeEngine struct {
	mu      sync.Mutex
	stale   []orders.Order
	listErr error
	errs    map[string]error
	results map[string]*orders.Order
	calls   []string
}

func (f *fakeEngine) StaleAwaitingPayment(_ context.Context, limit int) ([]orders.Order, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.stale) > limit {
		return f.stale[:limit], nil
	}
	return f.stale, nil
}

func (f *fakeEngine) Reconcile(_ context.Context, orderID string) (*orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, orderID)
	if err, ok := f.errs[orderID]; ok {
		return nil, err
	}
	if res, ok := f.results[orderID]; ok {
		return res, nil
	}
	o := orders.Order{ID: orderID, Status: orders.StatusAwaitingPayment, PaymentStatus: orders.PaymentPending}
	return &o, nil
}

func staleOrder(id string) orders.Order {
	return orders.Order{
		ID:            id,
		Status:        orders.StatusAwaitingPayment,
		PaymentStatus: orders.PaymentPending,
		CreatedAt:     time.Now().Add(-time.Hour),
	}
}

func TestSweepReconcilesEveryCandidate(t *testing.T) {
	eng := &fakeEngine{
		stale: []orders.Order{staleOrder("o1"), staleOrder("o2"), staleOrder("o3")},
		results: map[string]*orders.Order{
			"o2": {ID: "o2", Status: orders.StatusCancelled, PaymentStatus: orders.PaymentExpired},
		},
	}
	s := &Sweeper{Engine: eng, Logger: zap.NewNop(), Workers: 2}

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(eng.calls) != 3 {
		t.Errorf("want 3 reconcile calls, got %d (%v)", len(eng.calls), eng.calls)
	}
}

func TestSweepToleratesPerOrderFailures(t *testing.T) {
	eng := &fakeEngine{
		stale: []orders.Order{staleOrder("o1"), staleOrder("o2"), staleOrder("o3")},
		errs: map[string]error{
			"o1": payment.ErrUnavailable,
			"o2": errors.New("boom"),
		},
	}
	s := &Sweeper{Engine: eng, Logger: zap.NewNop(), Workers: 1}

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("per-order failures must not abort the sweep: %v", err)
	}
	if len(eng.calls) != 3 {
		t.Errorf("want all 3 orders attempted, got %v", eng.calls)
	}
}

func TestSweepListFailure(t *testing.T) {
	eng := &fakeEngine{listErr: errors.New("db down")}
	s := &Sweeper{Engine: eng, Logger: zap.NewNop(), Workers: 1}
	if err := s.Sweep(context.Background()); err == nil {
		t.Fatal("want error when the candidate list cannot be loaded")
	}
}

func TestSweepEmptyBatch(t *testing.T) {
	eng := &fakeEngine{}
	s := &Sweeper{Engine: eng, Logger: zap.NewNop(), Workers: 4}
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(eng.calls) != 0 {
		t.Errorf("empty batch must not reconcile anything, got %v", eng.calls)
	}
}

func TestSweepHonorsBatchLimit(t *testing.T) {
	eng := &fakeEngine{
		stale: []orders.Order{staleOrder("o1"), staleOrder("o2"), staleOrder("o3")},
	}
	s := &Sweeper{Engine: eng, Logger: zap.NewNop(), Workers: 1, Batch: 2}
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(eng.calls) != 2 {
		t.Errorf("want 2 calls with batch limit 2, got %v", eng.calls)
	}
}

func TestRunZeroInterval(t *testing.T) {
	eng := &fakeEngine{}
	s := &Sweeper{Engine: eng, Logger: zap.NewNop(), Workers: 1} // Interval unset

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	eng := &fakeEngine{}
	s := &Sweeper{Engine: eng, Logger: zap.NewNop(), Interval: time.Millisecond, Workers: 1}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
