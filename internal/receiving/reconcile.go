package receiving

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// checkReport validates the shape of a report before any lookup.
func checkReport(report DeliveryReport) error {
	if len(report.Lines) == 0 {
		return fmt.Errorf("order %d: %w", report.OrderID, ErrEmptyReport)
	}
	seen := make(map[int64]struct{}, len(report.Lines))
	for _, line := range report.Lines {
		if _, dup := seen[line.ItemID]; dup {
			return lineErr(report.OrderID, line.ItemID, ErrDuplicateLine)
		}
		seen[line.ItemID] = struct{}{}
		if line.Received < 0 || line.Damaged < 0 {
			return lineErr(report.OrderID, line.ItemID, ErrNegativeQuantity)
		}
		if line.RequestedStatus != "" && !line.RequestedStatus.Valid() {
			return lineErr(report.OrderID, line.ItemID, ErrInvalidStatus)
		}
	}
	return nil
}

// checkBounds enforces 0 <= damaged <= received <= ordered.
func checkBounds(ordered int64, line LineUpdate) error {
	if line.Received > ordered {
		return fmt.Errorf("%w: received %d, ordered %d", ErrReceivedExceedsOrdered, line.Received, ordered)
	}
	if line.Damaged > line.Received {
		return fmt.Errorf("%w: damaged %d, received %d", ErrDamagedExceedsReceived, line.Damaged, line.Received)
	}
	if line.Received-line.Damaged < 0 {
		return ErrNegativeNetStock
	}
	return nil
}

// deriveLineStatus classifies a line from its quantities. The requested
// status only matters when nothing was received: Cancelled is honoured there.
func deriveLineStatus(ordered, received int64, requested LineStatus) LineStatus {
	switch {
	case received == ordered:
		return LineStatusCompleted
	case received > 0:
		return LineStatusPartiallyReceived
	case requested == LineStatusCancelled:
		return LineStatusCancelled
	default:
		return LineStatusPending
	}
}

func sortedLines(lines []LineUpdate) []LineUpdate {
	out := append([]LineUpdate(nil), lines...)
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// reportRef derives a stable reference so identical submissions share one id.
func reportRef(report DeliveryReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "REPORT:%d", report.OrderID)
	for _, line := range sortedLines(report.Lines) {
		fmt.Fprintf(&b, "|%d:%d:%d:%s:%s", line.ItemID, line.Received, line.Damaged, line.RequestedStatus, line.Remarks)
	}
	return uuid.NewSHA1(uuid.Nil, []byte(b.String())).String()
}
