package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrMealNotFound      = errors.New("meal not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// InsufficientStockError reports how much stock is actually available so
// the caller can resynchronize.
type InsufficientStockError struct {
	MealID    string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("meal %s: insufficient stock, requested %d, available %d", e.MealID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type Meal struct {
	ID            string
	SellerID      string
	Name          string
	PriceCents    int
	StockQuantity int
	TotalOrders   int
	// Available is false whenever stock is zero, and may also be false
	// while the seller has the listing switched off.
	Available bool
	Disabled  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) GetMeal(ctx context.Context, id string) (*Meal, error) {
	m, err := scanMeal(r.DB.QueryRow(ctx, `
		SELECT id, seller_id, name, price_cents, stock_quantity, total_orders,
		       available, disabled, created_at, updated_at
		FROM meals WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMealNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *Repo) ListAvailable(ctx context.Context) ([]Meal, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, seller_id, name, price_cents, stock_quantity, total_orders,
		       available, disabled, created_at, updated_at
		FROM meals WHERE available ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Meal
	for rows.Next() {
		m, err := scanMeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// ReserveTx commits qty units of stock to an order. The decrement is
// conditional on sufficient stock, so two racing reservations can never
// both pass a check only one can satisfy: the losing update matches no row
// and fails with InsufficientStock.
func (r *Repo) ReserveTx(ctx context.Context, tx pgx.Tx, mealID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("reserve: quantity must be >= 1, got %d", qty)
	}
	ct, err := tx.Exec(ctx, `
		UPDATE meals
		SET stock_quantity = stock_quantity - $2,
		    total_orders   = total_orders + $2,
		    available      = (stock_quantity - $2 > 0) AND NOT disabled,
		    updated_at     = now()
		WHERE id = $1 AND stock_quantity >= $2`, mealID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	// distinguish missing meal from shortfall
	var available int
	err = tx.QueryRow(ctx, `SELECT stock_quantity FROM meals WHERE id=$1`, mealID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrMealNotFound
	}
	if err != nil {
		return err
	}
	return &InsufficientStockError{MealID: mealID, Requested: qty, Available: available}
}

// RestoreTx undoes a reservation. total_orders floors at zero; the caller
// (the lifecycle engine) guarantees at-most-once per order by guarding on
// the order's prior status.
func (r *Repo) RestoreTx(ctx context.Context, tx pgx.Tx, mealID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("restore: quantity must be >= 1, got %d", qty)
	}
	ct, err := tx.Exec(ctx, `
		UPDATE meals
		SET stock_quantity = stock_quantity + $2,
		    total_orders   = GREATEST(total_orders - $2, 0),
		    available      = NOT disabled,
		    updated_at     = now()
		WHERE id = $1`, mealID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrMealNotFound
	}
	return nil
}

func scanMeal(row pgx.Row) (*Meal, error) {
	var m Meal
	err := row.Scan(&m.ID, &m.SellerID, &m.Name, &m.PriceCents, &m.StockQuantity,
		&m.TotalOrders, &m.Available, &m.Disabled, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
