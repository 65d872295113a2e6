package receiving

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRollupRules(t *testing.T) {
	cases := []struct {
		name    string
		lines   []LineSnapshot
		status  OrderStatus
		percent float64
	}{
		{
			name:    "no lines is vacuously completed",
			lines:   nil,
			status:  OrderStatusCompleted,
			percent: 100,
		},
		{
			name:    "zero ordered quantity is completed",
			lines:   []LineSnapshot{{ItemID: 1, Ordered: 0, Status: LineStatusCompleted}},
			status:  OrderStatusCompleted,
			percent: 100,
		},
		{
			name: "all cancelled",
			lines: []LineSnapshot{
				{ItemID: 1, Ordered: 5, Status: LineStatusCancelled},
				{ItemID: 2, Ordered: 3, Status: LineStatusCancelled},
			},
			status:  OrderStatusCancelled,
			percent: 0,
		},
		{
			name: "all completed",
			lines: []LineSnapshot{
				{ItemID: 1, Ordered: 5, Received: 5, Status: LineStatusCompleted},
				{ItemID: 2, Ordered: 3, Received: 3, Status: LineStatusCompleted},
			},
			status:  OrderStatusCompleted,
			percent: 100,
		},
		{
			name: "one completed one pending is partial",
			lines: []LineSnapshot{
				{ItemID: 1, Ordered: 10, Received: 10, Status: LineStatusCompleted},
				{ItemID: 2, Ordered: 10, Status: LineStatusPending},
			},
			status:  OrderStatusPartiallyReceived,
			percent: 50,
		},
		{
			name: "nothing received is pending",
			lines: []LineSnapshot{
				{ItemID: 1, Ordered: 10, Status: LineStatusPending},
				{ItemID: 2, Ordered: 4, Status: LineStatusPending},
			},
			status:  OrderStatusPending,
			percent: 0,
		},
		{
			name: "tiny partial delivery still partial",
			lines: []LineSnapshot{
				{ItemID: 1, Ordered: 1000000, Received: 1, Status: LineStatusPartiallyReceived},
			},
			status:  OrderStatusPartiallyReceived,
			percent: 0,
		},
		{
			name: "cancelled lines excluded when some line is active",
			lines: []LineSnapshot{
				{ItemID: 1, Ordered: 5, Status: LineStatusCancelled},
				{ItemID: 2, Ordered: 5, Status: LineStatusCancelled},
				{ItemID: 3, Ordered: 10, Received: 10, Status: LineStatusCompleted},
			},
			status:  OrderStatusCompleted,
			percent: 100,
		},
		{
			name: "cancelled plus pending is pending",
			lines: []LineSnapshot{
				{ItemID: 1, Ordered: 5, Status: LineStatusCancelled},
				{ItemID: 2, Ordered: 5, Status: LineStatusPending},
			},
			status:  OrderStatusPending,
			percent: 0,
		},
		{
			name: "percent is rounded for display",
			lines: []LineSnapshot{
				{ItemID: 1, Ordered: 3, Received: 1, Status: LineStatusPartiallyReceived},
			},
			status:  OrderStatusPartiallyReceived,
			percent: 33.33,
		},
		{
			name: "half percent rounds away from zero",
			lines: []LineSnapshot{
				{ItemID: 1, Ordered: 800, Received: 1, Status: LineStatusPartiallyReceived},
			},
			status:  OrderStatusPartiallyReceived,
			percent: 0.13,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sum := Rollup(tc.lines)
			require.Equal(t, tc.status, sum.Status)
			require.InDelta(t, tc.percent, sum.Percent, 0.001)
		})
	}
}

func TestRollupTotalsSkipCancelledLines(t *testing.T) {
	sum := Rollup([]LineSnapshot{
		{ItemID: 1, Ordered: 7, Status: LineStatusCancelled},
		{ItemID: 2, Ordered: 10, Received: 4, Status: LineStatusPartiallyReceived},
	})
	require.Equal(t, int64(10), sum.TotalOrdered)
	require.Equal(t, int64(4), sum.TotalReceived)
}
