package receiving

import "time"

// LineStatus is the fulfillment state of one order line.
type LineStatus string

const (
	LineStatusPending           LineStatus = "PENDING"
	LineStatusPartiallyReceived LineStatus = "PARTIALLY_RECEIVED"
	LineStatusCompleted         LineStatus = "COMPLETED"
	LineStatusCancelled         LineStatus = "CANCELLED"
)

// Valid reports whether s is a known line status.
func (s LineStatus) Valid() bool {
	switch s {
	case LineStatusPending, LineStatusPartiallyReceived, LineStatusCompleted, LineStatusCancelled:
		return true
	}
	return false
}

// OrderStatus is the cached order-level status.
type OrderStatus string

const (
	OrderStatusDraft             OrderStatus = "DRAFT"
	OrderStatusApproved          OrderStatus = "APPROVED"
	OrderStatusPending           OrderStatus = "PENDING"
	OrderStatusPartiallyReceived OrderStatus = "PARTIALLY_RECEIVED"
	OrderStatusCompleted         OrderStatus = "COMPLETED"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
	OrderStatusRejected          OrderStatus = "REJECTED"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusDraft, OrderStatusApproved, OrderStatusPending, OrderStatusPartiallyReceived,
		OrderStatusCompleted, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// receivable reports whether delivery reports may be applied to an order in s.
func (s OrderStatus) receivable() bool {
	return s != OrderStatusDraft && s != OrderStatusRejected
}

// LedgerEntry is the latest reconciled cumulative snapshot of one order line.
type LedgerEntry struct {
	OrderID         int64
	ItemID          int64
	OrderedQuantity int64
	Received        int64
	Damaged         int64
	Status          LineStatus
	Remarks         string
	UpdatedAt       time.Time
}

// NetStock is received minus damaged.
func (e LedgerEntry) NetStock() int64 {
	return e.Received - e.Damaged
}

// StockBalance is the on-hand quantity of one item across all orders.
type StockBalance struct {
	ItemID       int64
	CurrentStock int64
	UpdatedAt    time.Time
}

// OrderStatusRecord is the persisted order-level rollup.
type OrderStatusRecord struct {
	OrderID         int64
	Status          OrderStatus
	TotalOrdered    int64
	TotalReceived   int64
	ReceivedPercent float64
	UpdatedAt       time.Time
}

// LineUpdate is one line of a delivery report. Received and Damaged are
// cumulative-to-date figures, not increments.
type LineUpdate struct {
	ItemID          int64
	Received        int64
	Damaged         int64
	RequestedStatus LineStatus
	Remarks         string
}

// DeliveryReport carries one or more line updates for a single order.
type DeliveryReport struct {
	OrderID int64
	Lines   []LineUpdate
}

// LineResult describes what applying one line changed. NewBalance is the
// item's stock after this line's delta, read under the row lock; it is only
// set when BalanceChanged, since a zero delta never touches the balance.
type LineResult struct {
	ItemID         int64
	PriorNet       int64
	NewNet         int64
	Delta          int64
	Status         LineStatus
	BalanceChanged bool
	NewBalance     int64
}

// ReportResult is returned after a delivery report committed.
type ReportResult struct {
	OrderID     int64
	ReportRef   string
	Lines       []LineResult
	OrderStatus OrderStatusRecord
}

// LineView joins a ledger entry with catalog display attributes.
type LineView struct {
	OrderID         int64
	ItemID          int64
	ItemCode        string
	ItemName        string
	CategoryCode    string
	CategoryName    string
	OrderedQuantity int64
	Received        int64
	Damaged         int64
	NetStock        int64
	Status          LineStatus
	Remarks         string
}

// OrderView is the order read model.
type OrderView struct {
	Status OrderStatusRecord
	Lines  []LineView
}

// StockDrift reports an item whose balance disagrees with the ledger.
type StockDrift struct {
	ItemID       int64
	CurrentStock int64
	LedgerNet    int64
}
