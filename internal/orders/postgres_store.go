package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heremarket/orders/internal/domain"
	"github.com/heremarket/orders/internal/models"
)

const uniqueViolation = "23505"

const orderColumns = `id, human_reference, owner_id, items, subtotal, discount_code, discount_amount, total,
	customer, status, payment_method, payment_status, external_transaction_ref, gateway_order_ref,
	payment_requested_at, payment_response_code, paid_at, cancel_reason, version, created_at, updated_at`

// PostgresStore is the relational alternative to MongoStore. Every mutation
// is an UPDATE guarded by the row version.
type PostgresStore struct {
	Pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool, now: time.Now}
}

func (s *PostgresStore) Create(ctx context.Context, order *models.Order) (string, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	order.Version = 1

	items, err := json.Marshal(order.Items)
	if err != nil {
		return "", fmt.Errorf("encode items: %w", err)
	}
	customer, err := json.Marshal(order.Customer)
	if err != nil {
		return "", fmt.Errorf("encode customer: %w", err)
	}

	_, err = s.Pool.Exec(ctx, `INSERT INTO orders(`+orderColumns+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		order.ID, order.HumanReference, order.OwnerID, items, order.Subtotal, nullable(order.DiscountCode),
		order.DiscountAmount, order.Total, customer, string(order.Status), string(order.Payment.Method),
		string(order.Payment.Status), order.Payment.ExternalTransactionRef, nullable(order.Payment.GatewayOrderRef),
		order.Payment.RequestedAt, nullable(order.Payment.ResponseCode), order.Payment.PaidAt,
		nullable(order.CancelReason), order.Version, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("insert order %s: %w", order.HumanReference, domain.ErrConflict)
		}
		return "", fmt.Errorf("insert order: %w", err)
	}
	return order.ID, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (models.Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrderRow(row, "order "+id)
}

func (s *PostgresStore) GetByReference(ctx context.Context, reference string) (models.Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE human_reference = $1`, reference)
	return scanOrderRow(row, "order reference "+reference)
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]models.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]models.Order, 0)
	for rows.Next() {
		o, err := scanOrderRow(rows, "orders")
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) MarkPaymentRequested(ctx context.Context, id, gatewayRef string, at time.Time) (models.Order, error) {
	o, _, err := casUpdate(ctx, s.loader(id), decidePaymentRequest(gatewayRef, at), s.save)
	return o, err
}

func (s *PostgresStore) ApplyPaymentResult(ctx context.Context, id string, result PaymentResult) (models.Order, bool, error) {
	return casUpdate(ctx, s.loader(id), decidePaymentResult(result, s.now()), s.save)
}

func (s *PostgresStore) SetFulfillmentStatus(ctx context.Context, id string, status models.OrderStatus, by Actor) (models.Order, bool, error) {
	return casUpdate(ctx, s.loader(id), decideFulfillment(status, by, s.now()), s.save)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *PostgresStore) loader(id string) func(ctx context.Context) (models.Order, error) {
	return func(ctx context.Context) (models.Order, error) {
		return s.Get(ctx, id)
	}
}

func (s *PostgresStore) save(ctx context.Context, prev, next models.Order) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `UPDATE orders SET
		status = $2, payment_status = $3, external_transaction_ref = $4, gateway_order_ref = $5,
		payment_requested_at = $6, payment_response_code = $7, paid_at = $8, cancel_reason = $9,
		updated_at = $10, version = $11
		WHERE id = $1 AND version = $12`,
		prev.ID, string(next.Status), string(next.Payment.Status), next.Payment.ExternalTransactionRef,
		nullable(next.Payment.GatewayOrderRef), next.Payment.RequestedAt, nullable(next.Payment.ResponseCode),
		next.Payment.PaidAt, nullable(next.CancelReason), next.UpdatedAt, next.Version, prev.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("update order %s: %w", prev.ID, domain.ErrConflict)
		}
		return false, fmt.Errorf("update order %s: %w", prev.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanOrderRow(row pgx.Row, what string) (models.Order, error) {
	var (
		o                                                  models.Order
		items, customer                                    []byte
		discountCode, gatewayRef, responseCode, cancelNote *string
		status, method, payStatus                          string
	)
	err := row.Scan(&o.ID, &o.HumanReference, &o.OwnerID, &items, &o.Subtotal, &discountCode,
		&o.DiscountAmount, &o.Total, &customer, &status, &method, &payStatus,
		&o.Payment.ExternalTransactionRef, &gatewayRef, &o.Payment.RequestedAt, &responseCode,
		&o.Payment.PaidAt, &cancelNote, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Order{}, fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("scan %s: %w", what, err)
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return models.Order{}, fmt.Errorf("decode items of %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(customer, &o.Customer); err != nil {
		return models.Order{}, fmt.Errorf("decode customer of %s: %w", o.ID, err)
	}
	o.Status = models.OrderStatus(status)
	o.Payment.Method = models.PaymentMethod(method)
	o.Payment.Status = models.PaymentStatus(payStatus)
	o.DiscountCode = deref(discountCode)
	o.Payment.GatewayOrderRef = deref(gatewayRef)
	o.Payment.ResponseCode = deref(responseCode)
	o.CancelReason = deref(cancelNote)
	return o, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ Store = (*PostgresStore)(nil)
