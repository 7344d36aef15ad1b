package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Anezz12/gomealsaver-v2-sub001/internal/inventory"
)

const orderColumns = `id, gateway_order_id, buyer_id, seller_id, meal_id, quantity,
	unit_price_cents, service_fee_cents, total_cents,
	status, payment_status, payment_method, payment_type, transaction_id,
	payment_token, payment_url, shipping_address, shipping_phone, notes,
	created_at, updated_at, confirmed_at, paid_at`

// Repo owns order rows. All writes after creation go through Apply, which
// serializes transitions per order and commits the status change together
// with its inventory side effect.
type Repo struct {
	DB  *pgxpool.Pool
	Inv *inventory.Repo
}

func (r *Repo) Create(ctx context.Context, o *Order) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO orders(id, gateway_order_id, buyer_id, seller_id, meal_id, quantity,
			unit_price_cents, service_fee_cents, total_cents,
			status, payment_status, payment_method, payment_type, transaction_id,
			payment_token, payment_url, shipping_address, shipping_phone, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		o.ID, o.GatewayOrderID, o.BuyerID, o.SellerID, o.MealID, o.Quantity,
		o.UnitPriceCents, o.ServiceFeeCents, o.TotalCents,
		o.Status, o.PaymentStatus, o.PaymentMethod, o.PaymentType, o.TransactionID,
		o.PaymentToken, o.PaymentURL, o.ShippingAddress, o.ShippingPhone, o.Notes)
	return err
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	return r.one(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (r *Repo) GetByGatewayRef(ctx context.Context, ref string) (*Order, error) {
	return r.one(ctx, `SELECT `+orderColumns+` FROM orders WHERE gateway_order_id=$1`, ref)
}

func (r *Repo) one(ctx context.Context, q, arg string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, q, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

// ListStaleAwaitingPayment returns online orders still awaiting payment
// that were created before the cutoff. Input for the reconciliation sweep.
func (r *Repo) ListStaleAwaitingPayment(ctx context.Context, cutoff time.Time, limit int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status=$1 AND payment_status=$2 AND created_at < $3
		ORDER BY created_at
		LIMIT $4`,
		StatusAwaitingPayment, PaymentPending, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// Apply runs one transition: lock the order row (FOR UPDATE serializes
// racing triggers for the same order), let decide re-check its guard on the
// fresh row, perform the stock side effect, and write the new state with a
// guard on the old one. Everything commits or nothing does.
func (r *Repo) Apply(ctx context.Context, orderID string, decide DecideFunc) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	t, err := decide(o)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return o, nil // no-op, nothing written
	}

	if t.ReserveStock {
		if err := r.Inv.ReserveTx(ctx, tx, o.MealID, o.Quantity); err != nil {
			return nil, err
		}
	}
	if t.RestoreStock {
		if err := r.Inv.RestoreTx(ctx, tx, o.MealID, o.Quantity); err != nil {
			return nil, err
		}
	}

	prev := o.State()
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

	ct, err := tx.Exec(ctx, `
		UPDATE orders
		SET status=$2, payment_status=$3, payment_type=$4, transaction_id=$5,
		    notes=$6, confirmed_at=$7, paid_at=$8, updated_at=$9
		WHERE id=$1 AND status=$10 AND payment_status=$11`,
		o.ID, o.Status, o.PaymentStatus, o.PaymentType, o.TransactionID,
		o.Notes, o.ConfirmedAt, o.PaidAt, o.UpdatedAt,
		prev.Status, prev.PaymentStatus)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() != 1 {
		// cannot happen while we hold the row lock, but the guard keeps a
		// partial write impossible if it ever does
		return nil, ErrConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.GatewayOrderID, &o.BuyerID, &o.SellerID, &o.MealID, &o.Quantity,
		&o.UnitPriceCents, &o.ServiceFeeCents, &o.TotalCents,
		&o.Status, &o.PaymentStatus, &o.PaymentMethod, &o.PaymentType, &o.TransactionID,
		&o.PaymentToken, &o.PaymentURL, &o.ShippingAddress, &o.ShippingPhone, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.PaidAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
