package receiving

import "github.com/shopspring/decimal"

// LineSnapshot is the rollup input for one order line. Lines without a
// ledger entry are Pending with nothing received.
type LineSnapshot struct {
	ItemID   int64
	Ordered  int64
	Received int64
	Status   LineStatus
}

// Summary is the derived order status with the totals it was computed from.
type Summary struct {
	Status        OrderStatus
	TotalOrdered  int64
	TotalReceived int64
	Percent       float64
}

// Rollup derives the order status from its lines. Rules apply in order:
//
//  1. at least one line and all lines cancelled: Cancelled
//  2. all active lines completed, or received == ordered: Completed
//  3. 0 < received/ordered < 1: PartiallyReceived
//  4. any active line partially received: PartiallyReceived
//  5. otherwise Pending
//
// Cancelled lines are left out of the totals unless every line is cancelled.
// An order with nothing to receive (no lines, or zero ordered) is Completed.
func Rollup(lines []LineSnapshot) Summary {
	if len(lines) > 0 && allCancelled(lines) {
		sum := Summary{Status: OrderStatusCancelled}
		for _, l := range lines {
			sum.TotalOrdered += l.Ordered
			sum.TotalReceived += l.Received
		}
		sum.Percent = percent(sum.TotalReceived, sum.TotalOrdered)
		return sum
	}

	var sum Summary
	allCompleted := true
	anyPartial := false
	for _, l := range lines {
		if l.Status == LineStatusCancelled {
			continue
		}
		sum.TotalOrdered += l.Ordered
		sum.TotalReceived += l.Received
		if l.Status != LineStatusCompleted {
			allCompleted = false
		}
		if l.Status == LineStatusPartiallyReceived {
			anyPartial = true
		}
	}
	sum.Percent = percent(sum.TotalReceived, sum.TotalOrdered)

	switch {
	case sum.TotalOrdered == 0:
		sum.Status = OrderStatusCompleted
	case allCompleted || sum.TotalReceived == sum.TotalOrdered:
		sum.Status = OrderStatusCompleted
	case sum.TotalReceived > 0 && float64(sum.TotalReceived)/float64(sum.TotalOrdered) < 1:
		sum.Status = OrderStatusPartiallyReceived
	case anyPartial:
		sum.Status = OrderStatusPartiallyReceived
	default:
		sum.Status = OrderStatusPending
	}
	return sum
}

func allCancelled(lines []LineSnapshot) bool {
	for _, l := range lines {
		if l.Status != LineStatusCancelled {
			return false
		}
	}
	return true
}

// percent is for display only; status decisions use the raw totals.
func percent(received, ordered int64) float64 {
	if ordered == 0 {
		return 100
	}
	hundred := decimal.NewFromInt(100)
	return decimal.NewFromInt(received).Mul(hundred).DivRound(decimal.NewFromInt(ordered), 2).InexactFloat64()
}
