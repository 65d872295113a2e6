package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads purchase order lines joined with items and categories.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const lineColumns = `
	pi.purchase_order_id, pi.item_id, pi.quantity,
	i.name, i.code, c.id, c.name, c.code`

const lineJoins = `
	FROM purchase_order_items pi
	JOIN items i ON i.id = pi.item_id
	JOIN categories c ON c.id = i.category_id`

// ResolveLine returns ordered quantity and display attributes for one line.
func (r *Repository) ResolveLine(ctx context.Context, orderID, itemID int64) (LineInfo, error) {
	if r == nil || r.pool == nil {
		return LineInfo{}, errors.New("catalog repository not initialised")
	}
	query := `SELECT` + lineColumns + lineJoins + `
		WHERE pi.purchase_order_id = $1 AND pi.item_id = $2`
	var info LineInfo
	err := r.pool.QueryRow(ctx, query, orderID, itemID).Scan(
		&info.OrderID, &info.ItemID, &info.OrderedQuantity,
		&info.ItemName, &info.ItemCode, &info.CategoryID, &info.CategoryName, &info.CategoryCode,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LineInfo{}, ErrLineNotFound
		}
		return LineInfo{}, err
	}
	return info, nil
}

// ListOrderLines returns every line of an order ordered by item.
func (r *Repository) ListOrderLines(ctx context.Context, orderID int64) ([]LineInfo, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	query := `SELECT` + lineColumns + lineJoins + `
		WHERE pi.purchase_order_id = $1
		ORDER BY pi.item_id`
	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]LineInfo, 0)
	for rows.Next() {
		var info LineInfo
		if err := rows.Scan(
			&info.OrderID, &info.ItemID, &info.OrderedQuantity,
			&info.ItemName, &info.ItemCode, &info.CategoryID, &info.CategoryName, &info.CategoryCode,
		); err != nil {
			return nil, err
		}
		lines = append(lines, info)
	}
	return lines, rows.Err()
}
