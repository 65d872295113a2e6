package jobs

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/trekgear/gearstock/internal/platform/httpx"
)

// QueueInspector is the part of asynq.Inspector the queue views read.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// QueueSnapshot is a point-in-time view of the receiving queue.
type QueueSnapshot struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Paused    bool   `json:"paused"`
	LatencyMS int64  `json:"latency_ms"`
}

// Snapshot reads the default queue. A queue that has never seen a task is
// reported empty.
func Snapshot(inspector QueueInspector) (QueueSnapshot, error) {
	out := QueueSnapshot{Queue: QueueDefault}
	info, err := inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		return out, err
	}
	if info == nil {
		return out, nil
	}
	out.Pending = info.Pending
	out.Active = info.Active
	out.Scheduled = info.Scheduled
	out.Retry = info.Retry
	out.Archived = info.Archived
	out.Paused = info.Paused
	out.LatencyMS = info.Latency.Milliseconds()
	return out, nil
}

// Handler serves the queue health endpoint.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler constructs Handler. A nil inspector reports an empty queue.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, QueueSnapshot{Queue: QueueDefault})
		return
	}
	snap, err := Snapshot(h.inspector)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "job queue unreachable")
		return
	}
	status := http.StatusOK
	if snap.Paused {
		status = http.StatusServiceUnavailable
	}
	httpx.JSON(w, status, snap)
}
