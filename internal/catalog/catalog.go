// Package catalog resolves purchase-order lines to their ordered quantity and
// the item/category display attributes owned by the master-data side of the
// admin panel. The receiving core only reads from it.
package catalog

import (
	"context"
	"errors"
)

// LineInfo describes one ordered item on a purchase order.
type LineInfo struct {
	OrderID         int64  `json:"order_id"`
	ItemID          int64  `json:"item_id"`
	OrderedQuantity int64  `json:"ordered_quantity"`
	ItemName        string `json:"item_name"`
	ItemCode        string `json:"item_code"`
	CategoryID      int64  `json:"category_id"`
	CategoryName    string `json:"category_name"`
	CategoryCode    string `json:"category_code"`
}

// Source resolves order lines.
type Source interface {
	ResolveLine(ctx context.Context, orderID, itemID int64) (LineInfo, error)
	ListOrderLines(ctx context.Context, orderID int64) ([]LineInfo, error)
}

// ErrLineNotFound indicates the (order, item) pair is not on any purchase order.
var ErrLineNotFound = errors.New("catalog: order line not found")
