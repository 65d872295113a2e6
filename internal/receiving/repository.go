package receiving

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trekgear/gearstock/internal/platform/db"
)

// Repository persists the line ledger, stock balances and order statuses in
// PostgreSQL. The schema lives in migrations/0001_receiving.sql.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetLine(ctx context.Context, orderID, itemID int64) (LedgerEntry, error)
	UpsertLine(ctx context.Context, entry LedgerEntry) (LedgerEntry, error)
	ListOrderLedger(ctx context.Context, orderID int64) ([]LedgerEntry, error)
	LockStockBalance(ctx context.Context, itemID int64) (StockBalance, bool, error)
	UpdateStockBalance(ctx context.Context, balance StockBalance) (StockBalance, error)
	GetStockBalance(ctx context.Context, itemID int64) (StockBalance, error)
	GetOrderStatus(ctx context.Context, orderID int64) (OrderStatusRecord, error)
	UpsertOrderStatus(ctx context.Context, rec OrderStatusRecord) (OrderStatusRecord, error)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
// Serialization failures and deadlocks surface as ErrConflict.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("receiving repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if err != nil && db.IsRetryable(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	if err != nil && db.IsCheckViolation(err) {
		return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	return err
}

const ledgerColumns = `order_id, item_id, ordered_qty, received_qty, damaged_qty, line_status, remarks, updated_at`

func scanLedger(row pgx.Row) (LedgerEntry, error) {
	var e LedgerEntry
	var status string
	if err := row.Scan(&e.OrderID, &e.ItemID, &e.OrderedQuantity, &e.Received, &e.Damaged, &status, &e.Remarks, &e.UpdatedAt); err != nil {
		return LedgerEntry{}, err
	}
	e.Status = LineStatus(status)
	return e, nil
}

func getLine(ctx context.Context, q querier, orderID, itemID int64) (LedgerEntry, error) {
	row := q.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM po_line_ledger WHERE order_id = $1 AND item_id = $2`, orderID, itemID)
	e, err := scanLedger(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return LedgerEntry{}, ErrLedgerEntryNotFound
	}
	return e, err
}

func listOrderLedger(ctx context.Context, q querier, orderID int64) ([]LedgerEntry, error) {
	rows, err := q.Query(ctx, `SELECT `+ledgerColumns+` FROM po_line_ledger WHERE order_id = $1 ORDER BY item_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []LedgerEntry
	for rows.Next() {
		e, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func getStockBalance(ctx context.Context, q querier, itemID int64) (StockBalance, error) {
	var b StockBalance
	err := q.QueryRow(ctx, `SELECT item_id, current_stock, updated_at FROM stock_balances WHERE item_id = $1`, itemID).
		Scan(&b.ItemID, &b.CurrentStock, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockBalance{ItemID: itemID}, ErrBalanceNotFound
	}
	return b, err
}

func getOrderStatus(ctx context.Context, q querier, orderID int64) (OrderStatusRecord, error) {
	var rec OrderStatusRecord
	var status string
	err := q.QueryRow(ctx, `SELECT order_id, status, total_ordered, total_received, received_percent::double precision, updated_at
		FROM po_order_status WHERE order_id = $1`, orderID).
		Scan(&rec.OrderID, &status, &rec.TotalOrdered, &rec.TotalReceived, &rec.ReceivedPercent, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderStatusRecord{OrderID: orderID}, ErrOrderStatusNotFound
	}
	rec.Status = OrderStatus(status)
	return rec, err
}

// GetLine returns the ledger entry of one line.
func (r *Repository) GetLine(ctx context.Context, orderID, itemID int64) (LedgerEntry, error) {
	return getLine(ctx, r.pool, orderID, itemID)
}

// ListOrderLedger returns every ledger entry of an order.
func (r *Repository) ListOrderLedger(ctx context.Context, orderID int64) ([]LedgerEntry, error) {
	return listOrderLedger(ctx, r.pool, orderID)
}

// GetStockBalance returns the stock balance of an item.
func (r *Repository) GetStockBalance(ctx context.Context, itemID int64) (StockBalance, error) {
	return getStockBalance(ctx, r.pool, itemID)
}

// GetOrderStatus returns the cached order status.
func (r *Repository) GetOrderStatus(ctx context.Context, orderID int64) (OrderStatusRecord, error) {
	return getOrderStatus(ctx, r.pool, orderID)
}

// ListStockDrift compares each balance with the sum of net stock recorded in
// the ledger for that item.
func (r *Repository) ListStockDrift(ctx context.Context) ([]StockDrift, error) {
	const query = `
		SELECT COALESCE(b.item_id, l.item_id), COALESCE(b.current_stock, 0), COALESCE(l.net, 0)
		FROM stock_balances b
		FULL OUTER JOIN (
			SELECT item_id, SUM(received_qty - damaged_qty) AS net
			FROM po_line_ledger
			GROUP BY item_id
		) l ON l.item_id = b.item_id
		WHERE COALESCE(b.current_stock, 0) <> COALESCE(l.net, 0)
		ORDER BY 1`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var drift []StockDrift
	for rows.Next() {
		var d StockDrift
		if err := rows.Scan(&d.ItemID, &d.CurrentStock, &d.LedgerNet); err != nil {
			return nil, err
		}
		drift = append(drift, d)
	}
	return drift, rows.Err()
}

func (t *txRepository) GetLine(ctx context.Context, orderID, itemID int64) (LedgerEntry, error) {
	return getLine(ctx, t.tx, orderID, itemID)
}

func (t *txRepository) ListOrderLedger(ctx context.Context, orderID int64) ([]LedgerEntry, error) {
	return listOrderLedger(ctx, t.tx, orderID)
}

func (t *txRepository) GetStockBalance(ctx context.Context, itemID int64) (StockBalance, error) {
	return getStockBalance(ctx, t.tx, itemID)
}

func (t *txRepository) GetOrderStatus(ctx context.Context, orderID int64) (OrderStatusRecord, error) {
	return getOrderStatus(ctx, t.tx, orderID)
}

func (t *txRepository) UpsertLine(ctx context.Context, entry LedgerEntry) (LedgerEntry, error) {
	query := `
		INSERT INTO po_line_ledger (order_id, item_id, ordered_qty, received_qty, damaged_qty, line_status, remarks, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (order_id, item_id) DO UPDATE SET
			ordered_qty = EXCLUDED.ordered_qty,
			received_qty = EXCLUDED.received_qty,
			damaged_qty = EXCLUDED.damaged_qty,
			line_status = EXCLUDED.line_status,
			remarks = EXCLUDED.remarks,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + ledgerColumns
	row := t.tx.QueryRow(ctx, query,
		entry.OrderID, entry.ItemID, entry.OrderedQuantity, entry.Received, entry.Damaged,
		string(entry.Status), entry.Remarks, time.Now().UTC(),
	)
	return scanLedger(row)
}

// LockStockBalance seeds a zero row when the item has none, then takes the
// row lock. The boolean reports whether the row was created here. A row
// inserted by a concurrent transaction after our snapshot makes PostgreSQL
// raise a serialization failure, which WithTx turns into ErrConflict.
func (t *txRepository) LockStockBalance(ctx context.Context, itemID int64) (StockBalance, bool, error) {
	var seeded int64
	created := true
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_balances (item_id, current_stock, updated_at)
		VALUES ($1, 0, $2)
		ON CONFLICT (item_id) DO NOTHING
		RETURNING item_id`, itemID, time.Now().UTC()).Scan(&seeded)
	if errors.Is(err, pgx.ErrNoRows) {
		created = false
	} else if err != nil {
		return StockBalance{}, false, err
	}

	var b StockBalance
	err = t.tx.QueryRow(ctx, `SELECT item_id, current_stock, updated_at FROM stock_balances WHERE item_id = $1 FOR UPDATE`, itemID).
		Scan(&b.ItemID, &b.CurrentStock, &b.UpdatedAt)
	if err != nil {
		return StockBalance{}, false, err
	}
	return b, created, nil
}

func (t *txRepository) UpdateStockBalance(ctx context.Context, balance StockBalance) (StockBalance, error) {
	var b StockBalance
	err := t.tx.QueryRow(ctx, `
		UPDATE stock_balances SET current_stock = $2, updated_at = $3
		WHERE item_id = $1
		RETURNING item_id, current_stock, updated_at`,
		balance.ItemID, balance.CurrentStock, time.Now().UTC()).
		Scan(&b.ItemID, &b.CurrentStock, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockBalance{}, ErrBalanceNotFound
	}
	return b, err
}

func (t *txRepository) UpsertOrderStatus(ctx context.Context, rec OrderStatusRecord) (OrderStatusRecord, error) {
	var out OrderStatusRecord
	var status string
	err := t.tx.QueryRow(ctx, `
		INSERT INTO po_order_status (order_id, status, total_ordered, total_received, received_percent, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id) DO UPDATE SET
			status = EXCLUDED.status,
			total_ordered = EXCLUDED.total_ordered,
			total_received = EXCLUDED.total_received,
			received_percent = EXCLUDED.received_percent,
			updated_at = EXCLUDED.updated_at
		RETURNING order_id, status, total_ordered, total_received, received_percent::double precision, updated_at`,
		rec.OrderID, string(rec.Status), rec.TotalOrdered, rec.TotalReceived, rec.ReceivedPercent, time.Now().UTC()).
		Scan(&out.OrderID, &status, &out.TotalOrdered, &out.TotalReceived, &out.ReceivedPercent, &out.UpdatedAt)
	if err != nil {
		return OrderStatusRecord{}, err
	}
	out.Status = OrderStatus(status)
	return out, nil
}
