package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/trekgear/gearstock/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockAudit compares stock balances with the receiving ledger.
	TaskStockAudit = "receiving:stock_audit"
	// TaskOrderRecompute refreshes cached order statuses.
	TaskOrderRecompute = "receiving:order_recompute"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// StockAuditPayload configures one audit run.
type StockAuditPayload struct {
	Trigger string `json:"trigger"`
}

// OrderRecomputePayload lists the orders whose status should be rebuilt.
type OrderRecomputePayload struct {
	OrderIDs []int64 `json:"order_ids"`
}

// NewStockAuditTask builds the stock audit task.
func NewStockAuditTask(trigger string) (*asynq.Task, error) {
	if trigger == "" {
		trigger = "cron"
	}
	data, err := json.Marshal(StockAuditPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockAudit, data), nil
}

// NewOrderRecomputeTask builds an order status recompute task.
func NewOrderRecomputeTask(orderIDs ...int64) (*asynq.Task, error) {
	if len(orderIDs) == 0 {
		return nil, errors.New("order recompute: no orders given")
	}
	for _, id := range orderIDs {
		if id <= 0 {
			return nil, errors.New("order recompute: order ids must be positive")
		}
	}
	data, err := json.Marshal(OrderRecomputePayload{OrderIDs: orderIDs})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderRecompute, data), nil
}
