package receiving

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownLine indicates the (order, item) pair is not on the purchase order.
	ErrUnknownLine = errors.New("receiving: unknown order line")
	// ErrReceivedExceedsOrdered indicates received quantity above ordered quantity.
	ErrReceivedExceedsOrdered = errors.New("receiving: received quantity exceeds ordered quantity")
	// ErrDamagedExceedsReceived indicates damaged quantity above received quantity.
	ErrDamagedExceedsReceived = errors.New("receiving: damaged quantity exceeds received quantity")
	// ErrNegativeNetStock indicates received minus damaged below zero.
	ErrNegativeNetStock = errors.New("receiving: net stock must not be negative")
	// ErrNegativeQuantity indicates a negative reported quantity.
	ErrNegativeQuantity = errors.New("receiving: quantities must not be negative")
	// ErrDuplicateLine indicates the same item appears twice in one report.
	ErrDuplicateLine = errors.New("receiving: item reported more than once")
	// ErrInvalidStatus indicates an unknown requested status.
	ErrInvalidStatus = errors.New("receiving: invalid status")
	// ErrEmptyReport indicates a report without lines.
	ErrEmptyReport = errors.New("receiving: report has no lines")
	// ErrOrderNotReceivable indicates the order is still draft or was rejected.
	ErrOrderNotReceivable = errors.New("receiving: order is not open for receiving")
	// ErrOrderCompleted indicates a report would move a completed order backwards.
	ErrOrderCompleted = errors.New("receiving: order already completed")
	// ErrInvalidTransition indicates a disallowed approval status change.
	ErrInvalidTransition = errors.New("receiving: invalid status transition")

	// ErrInvariantViolation indicates a stock delta that would drive stock negative.
	ErrInvariantViolation = errors.New("receiving: stock invariant violated")
	// ErrConflict indicates a transient concurrent-update conflict.
	ErrConflict = errors.New("receiving: concurrent update conflict")

	// ErrNotFound indicates a missing read model record.
	ErrNotFound = errors.New("receiving: not found")
	// ErrLedgerEntryNotFound indicates no report was applied to the line yet.
	ErrLedgerEntryNotFound = errors.New("receiving: ledger entry not found")
	// ErrBalanceNotFound indicates no stock record exists for the item.
	ErrBalanceNotFound = errors.New("receiving: stock balance not found")
	// ErrOrderStatusNotFound indicates no cached status exists for the order.
	ErrOrderStatusNotFound = errors.New("receiving: order status not found")
)

// LineError attributes a validation failure to one line of a report.
type LineError struct {
	OrderID int64
	ItemID  int64
	Err     error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("order %d item %d: %v", e.OrderID, e.ItemID, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

func lineErr(orderID, itemID int64, err error) error {
	return &LineError{OrderID: orderID, ItemID: itemID, Err: err}
}

// IsValidation reports whether err is a caller input error that must not be
// retried automatically.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrUnknownLine, ErrReceivedExceedsOrdered, ErrDamagedExceedsReceived, ErrNegativeNetStock,
		ErrNegativeQuantity, ErrDuplicateLine, ErrInvalidStatus, ErrEmptyReport,
		ErrOrderNotReceivable, ErrOrderCompleted, ErrInvalidTransition,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
