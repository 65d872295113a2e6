package receiving

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/trekgear/gearstock/internal/catalog"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLine(ctx context.Context, orderID, itemID int64) (LedgerEntry, error)
	ListOrderLedger(ctx context.Context, orderID int64) ([]LedgerEntry, error)
	GetStockBalance(ctx context.Context, itemID int64) (StockBalance, error)
	GetOrderStatus(ctx context.Context, orderID int64) (OrderStatusRecord, error)
	ListStockDrift(ctx context.Context) ([]StockDrift, error)
}

// CatalogPort resolves order lines to ordered quantities and display data.
type CatalogPort interface {
	ResolveLine(ctx context.Context, orderID, itemID int64) (catalog.LineInfo, error)
	ListOrderLines(ctx context.Context, orderID int64) ([]catalog.LineInfo, error)
}

// LineReloader is implemented by catalog sources that cache order lines. It
// reads the lines past the cache and refreshes it.
type LineReloader interface {
	ReloadOrderLines(ctx context.Context, orderID int64) ([]catalog.LineInfo, error)
}

// MetricsPort receives receiving counters. A nil MetricsPort is allowed.
type MetricsPort interface {
	ReportApplied(outcome string, lines int)
	StockDelta(delta int64)
	Conflict()
}

// Config tunes conflict retries.
type Config struct {
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Service applies delivery reports and serves the receiving read models.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	logger  *slog.Logger
	metrics MetricsPort
	cfg     Config
	sleep   func(context.Context, time.Duration) error
}

// NewService constructs the receiving service.
func NewService(repo RepositoryPort, catalog CatalogPort, logger *slog.Logger, metrics MetricsPort, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 20 * time.Millisecond
	}
	return &Service{repo: repo, catalog: catalog, logger: logger, metrics: metrics, cfg: cfg, sleep: sleepContext}
}

type resolvedLine struct {
	update  LineUpdate
	ordered int64
}

// ApplyDeliveryReport reconciles every line of the report against its last
// ledger snapshot, applies the net stock deltas and refreshes the order
// status. Either the whole report commits or nothing does.
func (s *Service) ApplyDeliveryReport(ctx context.Context, report DeliveryReport) (ReportResult, error) {
	if err := checkReport(report); err != nil {
		s.observeReport("rejected", len(report.Lines))
		return ReportResult{}, err
	}

	lines := sortedLines(report.Lines)
	resolved := make([]resolvedLine, 0, len(lines))
	for _, line := range lines {
		info, err := s.catalog.ResolveLine(ctx, report.OrderID, line.ItemID)
		if err != nil {
			if errors.Is(err, catalog.ErrLineNotFound) {
				s.observeReport("rejected", len(lines))
				return ReportResult{}, lineErr(report.OrderID, line.ItemID, ErrUnknownLine)
			}
			return ReportResult{}, fmt.Errorf("receiving: resolve line %d/%d: %w", report.OrderID, line.ItemID, err)
		}
		if err := checkBounds(info.OrderedQuantity, line); err != nil {
			s.observeReport("rejected", len(lines))
			return ReportResult{}, lineErr(report.OrderID, line.ItemID, err)
		}
		resolved = append(resolved, resolvedLine{update: line, ordered: info.OrderedQuantity})
	}

	result := ReportResult{OrderID: report.OrderID, ReportRef: reportRef(report)}
	err := s.withRetry(ctx, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, stored, err := currentOrderStatus(ctx, tx, report.OrderID)
			if err != nil {
				return err
			}
			if !current.Status.receivable() {
				return fmt.Errorf("order %d is %s: %w", report.OrderID, current.Status, ErrOrderNotReceivable)
			}
			applied := make([]LineResult, 0, len(resolved))
			for _, line := range resolved {
				res, err := s.applyLine(ctx, tx, report.OrderID, current.Status, line)
				if err != nil {
					return err
				}
				applied = append(applied, res)
			}
			reported := make([]int64, 0, len(resolved))
			for _, line := range resolved {
				reported = append(reported, line.update.ItemID)
			}
			status, err := s.recompute(ctx, tx, report.OrderID, current, stored, reported)
			if err != nil {
				return err
			}
			result.Lines = applied
			result.OrderStatus = status
			return nil
		})
	})
	if err != nil {
		switch {
		case IsValidation(err):
			s.observeReport("rejected", len(lines))
		case errors.Is(err, ErrConflict):
			s.observeReport("conflict", len(lines))
		default:
			s.observeReport("failed", len(lines))
		}
		return ReportResult{}, err
	}

	for _, line := range result.Lines {
		if s.metrics != nil && line.Delta != 0 {
			s.metrics.StockDelta(line.Delta)
		}
	}
	s.observeReport("applied", len(lines))
	s.logger.Info("delivery report applied",
		slog.Int64("order_id", report.OrderID),
		slog.String("report_ref", result.ReportRef),
		slog.Int("lines", len(result.Lines)),
		slog.String("order_status", string(result.OrderStatus.Status)))
	return result, nil
}

func (s *Service) applyLine(ctx context.Context, tx TxRepository, orderID int64, orderStatus OrderStatus, line resolvedLine) (LineResult, error) {
	upd := line.update
	prior, err := tx.GetLine(ctx, orderID, upd.ItemID)
	switch {
	case errors.Is(err, ErrLedgerEntryNotFound):
		prior = LedgerEntry{
			OrderID:         orderID,
			ItemID:          upd.ItemID,
			OrderedQuantity: line.ordered,
			Status:          deriveLineStatus(line.ordered, 0, ""),
		}
	case err != nil:
		return LineResult{}, err
	}

	status := deriveLineStatus(line.ordered, upd.Received, upd.RequestedStatus)
	if orderStatus == OrderStatusCompleted && status != prior.Status {
		return LineResult{}, lineErr(orderID, upd.ItemID,
			fmt.Errorf("%w: line would move from %s to %s", ErrOrderCompleted, prior.Status, status))
	}

	newNet := upd.Received - upd.Damaged
	res := LineResult{
		ItemID:   upd.ItemID,
		PriorNet: prior.NetStock(),
		NewNet:   newNet,
		Delta:    newNet - prior.NetStock(),
		Status:   status,
	}

	if res.Delta != 0 {
		balance, err := applyStockDelta(ctx, tx, s.logger, upd.ItemID, res.Delta)
		if err != nil {
			if errors.Is(err, ErrInvariantViolation) {
				s.logger.Error("negative stock requested",
					slog.Int64("order_id", orderID),
					slog.Int64("item_id", upd.ItemID),
					slog.Int64("delta", res.Delta),
					slog.Int64("current_stock", balance.CurrentStock))
				return LineResult{}, lineErr(orderID, upd.ItemID, err)
			}
			return LineResult{}, err
		}
		res.NewBalance = balance.CurrentStock
		res.BalanceChanged = true
	}

	_, err = tx.UpsertLine(ctx, LedgerEntry{
		OrderID:         orderID,
		ItemID:          upd.ItemID,
		OrderedQuantity: line.ordered,
		Received:        upd.Received,
		Damaged:         upd.Damaged,
		Status:          status,
		Remarks:         upd.Remarks,
	})
	if err != nil {
		return LineResult{}, err
	}
	return res, nil
}

// RecomputeOrderStatus derives and persists the status of an order from its
// lines. Draft and rejected orders keep their approval status. An order with
// neither catalog lines nor a stored status is ErrNotFound.
func (s *Service) RecomputeOrderStatus(ctx context.Context, orderID int64) (OrderStatusRecord, error) {
	var rec OrderStatusRecord
	err := s.withRetry(ctx, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, stored, err := currentOrderStatus(ctx, tx, orderID)
			if err != nil {
				return err
			}
			rec, err = s.recompute(ctx, tx, orderID, current, stored, nil)
			return err
		})
	})
	if err != nil {
		return OrderStatusRecord{}, err
	}
	return rec, nil
}

// recompute rolls the order's lines up and persists the result. stored reports
// whether current came from the database; reported lists the items of the
// report being applied, if any.
func (s *Service) recompute(ctx context.Context, tx TxRepository, orderID int64, current OrderStatusRecord, stored bool, reported []int64) (OrderStatusRecord, error) {
	if !current.Status.receivable() {
		return current, nil
	}
	ledger, err := tx.ListOrderLedger(ctx, orderID)
	if err != nil {
		return OrderStatusRecord{}, err
	}
	lines, err := s.orderLines(ctx, orderID, ledger, reported)
	if err != nil {
		return OrderStatusRecord{}, err
	}
	if len(lines) == 0 && !stored {
		return OrderStatusRecord{}, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	sum := Rollup(snapshots(lines, ledger))
	return tx.UpsertOrderStatus(ctx, OrderStatusRecord{
		OrderID:         orderID,
		Status:          sum.Status,
		TotalOrdered:    sum.TotalOrdered,
		TotalReceived:   sum.TotalReceived,
		ReceivedPercent: sum.Percent,
	})
}

// orderLines lists the catalog lines of an order. A list that lacks an item
// present in the ledger or in the current report is stale and gets reloaded
// past any cache; if it still lacks one the rollup would be wrong, so it fails.
func (s *Service) orderLines(ctx context.Context, orderID int64, ledger []LedgerEntry, reported []int64) ([]catalog.LineInfo, error) {
	lines, err := s.catalog.ListOrderLines(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("receiving: list order lines %d: %w", orderID, err)
	}
	missing := missingLine(lines, ledger, reported)
	if missing == 0 {
		return lines, nil
	}
	reloader, ok := s.catalog.(LineReloader)
	if !ok {
		return nil, fmt.Errorf("receiving: catalog lines of order %d lack item %d", orderID, missing)
	}
	s.logger.Warn("stale catalog order lines, reloading",
		slog.Int64("order_id", orderID),
		slog.Int64("item_id", missing))
	lines, err = reloader.ReloadOrderLines(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("receiving: reload order lines %d: %w", orderID, err)
	}
	if missing = missingLine(lines, ledger, reported); missing != 0 {
		return nil, fmt.Errorf("receiving: catalog lines of order %d lack item %d", orderID, missing)
	}
	return lines, nil
}

// missingLine returns the first item of ledger or reported not in lines, or 0.
func missingLine(lines []catalog.LineInfo, ledger []LedgerEntry, reported []int64) int64 {
	known := make(map[int64]struct{}, len(lines))
	for _, l := range lines {
		known[l.ItemID] = struct{}{}
	}
	for _, e := range ledger {
		if _, ok := known[e.ItemID]; !ok {
			return e.ItemID
		}
	}
	for _, id := range reported {
		if _, ok := known[id]; !ok {
			return id
		}
	}
	return 0
}

// SetApprovalStatus records the purchasing workflow status (draft, approved
// or rejected) of an order before any goods were received against it.
func (s *Service) SetApprovalStatus(ctx context.Context, orderID int64, status OrderStatus) (OrderStatusRecord, error) {
	switch status {
	case OrderStatusDraft, OrderStatusApproved, OrderStatusRejected:
	default:
		return OrderStatusRecord{}, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	var rec OrderStatusRecord
	err := s.withRetry(ctx, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetOrderStatus(ctx, orderID)
			if err != nil && !errors.Is(err, ErrOrderStatusNotFound) {
				return err
			}
			if err == nil {
				switch current.Status {
				case OrderStatusDraft, OrderStatusApproved, OrderStatusRejected:
				default:
					return fmt.Errorf("%w: order %d is %s", ErrInvalidTransition, orderID, current.Status)
				}
			}
			ledger, err := tx.ListOrderLedger(ctx, orderID)
			if err != nil {
				return err
			}
			if len(ledger) > 0 {
				return fmt.Errorf("%w: order %d already has receipts", ErrInvalidTransition, orderID)
			}
			rec, err = tx.UpsertOrderStatus(ctx, OrderStatusRecord{OrderID: orderID, Status: status})
			return err
		})
	})
	if err != nil {
		return OrderStatusRecord{}, err
	}
	s.logger.Info("order approval status set", slog.Int64("order_id", orderID), slog.String("status", string(status)))
	return rec, nil
}

// GetLine returns the reconciled state of one order line.
func (s *Service) GetLine(ctx context.Context, orderID, itemID int64) (LineView, error) {
	info, err := s.catalog.ResolveLine(ctx, orderID, itemID)
	if err != nil {
		if errors.Is(err, catalog.ErrLineNotFound) {
			return LineView{}, lineErr(orderID, itemID, ErrUnknownLine)
		}
		return LineView{}, err
	}
	entry, err := s.repo.GetLine(ctx, orderID, itemID)
	if err != nil && !errors.Is(err, ErrLedgerEntryNotFound) {
		return LineView{}, err
	}
	return lineView(info, entry, err == nil), nil
}

// GetStock returns the stock balance of an item.
func (s *Service) GetStock(ctx context.Context, itemID int64) (StockBalance, error) {
	balance, err := s.repo.GetStockBalance(ctx, itemID)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return StockBalance{}, fmt.Errorf("item %d stock: %w", itemID, ErrNotFound)
		}
		return StockBalance{}, err
	}
	return balance, nil
}

// GetOrder returns the cached order status with every line. Orders that
// never had a status persisted get a derived, unsaved one.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (OrderView, error) {
	lines, err := s.catalog.ListOrderLines(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	ledger, err := s.repo.ListOrderLedger(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	status, err := s.repo.GetOrderStatus(ctx, orderID)
	if err != nil {
		if !errors.Is(err, ErrOrderStatusNotFound) {
			return OrderView{}, err
		}
		if len(lines) == 0 {
			return OrderView{}, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
		}
		sum := Rollup(snapshots(lines, ledger))
		status = OrderStatusRecord{
			OrderID:         orderID,
			Status:          sum.Status,
			TotalOrdered:    sum.TotalOrdered,
			TotalReceived:   sum.TotalReceived,
			ReceivedPercent: sum.Percent,
		}
	}

	byItem := make(map[int64]LedgerEntry, len(ledger))
	for _, e := range ledger {
		byItem[e.ItemID] = e
	}
	view := OrderView{Status: status, Lines: make([]LineView, 0, len(lines))}
	for _, info := range lines {
		entry, ok := byItem[info.ItemID]
		view.Lines = append(view.Lines, lineView(info, entry, ok))
	}
	return view, nil
}

// AuditStock lists items whose balance differs from the ledger's net stock.
func (s *Service) AuditStock(ctx context.Context) ([]StockDrift, error) {
	return s.repo.ListStockDrift(ctx)
}

// currentOrderStatus loads the stored status. Orders without one are treated
// as approved; the boolean reports whether a record existed.
func currentOrderStatus(ctx context.Context, tx TxRepository, orderID int64) (OrderStatusRecord, bool, error) {
	rec, err := tx.GetOrderStatus(ctx, orderID)
	if errors.Is(err, ErrOrderStatusNotFound) {
		return OrderStatusRecord{OrderID: orderID, Status: OrderStatusApproved}, false, nil
	}
	if err != nil {
		return OrderStatusRecord{}, false, err
	}
	return rec, true, nil
}

func snapshots(lines []catalog.LineInfo, ledger []LedgerEntry) []LineSnapshot {
	byItem := make(map[int64]LedgerEntry, len(ledger))
	for _, e := range ledger {
		byItem[e.ItemID] = e
	}
	out := make([]LineSnapshot, 0, len(lines))
	for _, info := range lines {
		snap := LineSnapshot{ItemID: info.ItemID, Ordered: info.OrderedQuantity, Status: LineStatusPending}
		if e, ok := byItem[info.ItemID]; ok {
			snap.Received = e.Received
			snap.Status = e.Status
		}
		out = append(out, snap)
	}
	return out
}

func lineView(info catalog.LineInfo, entry LedgerEntry, recorded bool) LineView {
	view := LineView{
		OrderID:         info.OrderID,
		ItemID:          info.ItemID,
		ItemCode:        info.ItemCode,
		ItemName:        info.ItemName,
		CategoryCode:    info.CategoryCode,
		CategoryName:    info.CategoryName,
		OrderedQuantity: info.OrderedQuantity,
		Status:          LineStatusPending,
	}
	if recorded {
		view.Received = entry.Received
		view.Damaged = entry.Damaged
		view.NetStock = entry.NetStock()
		view.Status = entry.Status
		view.Remarks = entry.Remarks
	}
	return view
}

// withRetry replays fn on ErrConflict with exponential backoff.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	var err error
	backoff := s.cfg.RetryBackoff
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, ErrConflict) {
			return err
		}
		if s.metrics != nil {
			s.metrics.Conflict()
		}
		if attempt == s.cfg.MaxAttempts {
			break
		}
		s.logger.Warn("receiving conflict, retrying", slog.Int("attempt", attempt), slog.Duration("backoff", backoff))
		if sleepErr := s.sleep(ctx, backoff); sleepErr != nil {
			return err
		}
		backoff *= 2
	}
	return err
}

func (s *Service) observeReport(outcome string, lines int) {
	if s.metrics != nil {
		s.metrics.ReportApplied(outcome, lines)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
