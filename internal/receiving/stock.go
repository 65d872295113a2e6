package receiving

import (
	"context"
	"fmt"
	"log/slog"
)

// nextBalance applies a signed delta to an item's stock. When no record
// existed yet the item starts at max(0, delta).
func nextBalance(current int64, exists bool, delta int64) (int64, error) {
	if !exists {
		if delta < 0 {
			return 0, nil
		}
		return delta, nil
	}
	next := current + delta
	if next < 0 {
		return current, fmt.Errorf("%w: stock %d with delta %d gives %d", ErrInvariantViolation, current, delta, next)
	}
	return next, nil
}

// applyStockDelta is the stock balance store's only mutation. The balance
// row stays locked by the surrounding transaction until commit. A negative
// delta against an item with no record is dropped and logged: the ledger
// and the balance already disagree, which the stock audit reports.
func applyStockDelta(ctx context.Context, tx TxRepository, logger *slog.Logger, itemID, delta int64) (StockBalance, error) {
	balance, created, err := tx.LockStockBalance(ctx, itemID)
	if err != nil {
		return StockBalance{}, err
	}
	next, err := nextBalance(balance.CurrentStock, !created, delta)
	if err != nil {
		return balance, err
	}
	if created && delta < 0 {
		logger.Warn("negative delta on missing stock record, starting at zero",
			slog.Int64("item_id", itemID),
			slog.Int64("delta", delta))
	}
	balance.ItemID = itemID
	balance.CurrentStock = next
	return tx.UpdateStockBalance(ctx, balance)
}
