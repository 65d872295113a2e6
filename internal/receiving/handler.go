package receiving

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/trekgear/gearstock/internal/platform/httpx"
)

const maxReportBytes = 1 << 20

// Handler exposes the receiving API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the receiving handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{logger: logger, service: service, validator: v}
}

// MountRoutes registers receiving routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/orders/{orderID}", func(r chi.Router) {
		r.Get("/", h.getOrder)
		r.Post("/deliveries", h.postDelivery)
		r.Post("/recompute", h.postRecompute)
		r.Put("/approval", h.putApproval)
		r.Get("/items/{itemID}", h.getLine)
	})
	r.Get("/api/stock/audit", h.getStockAudit)
	r.Get("/api/stock/{itemID}", h.getStock)
}

func (h *Handler) postDelivery(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req deliveryReportRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxReportBytes)
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed delivery report")
		return
	}
	if fields := h.validate(req); fields != nil {
		httpx.FieldProblem(w, http.StatusUnprocessableEntity, "Validation Failed", "delivery report is invalid", fields)
		return
	}
	res, err := h.service.ApplyDeliveryReport(r.Context(), req.toReport(orderID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReportResponse(res))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	view, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := orderResponse{Status: toOrderStatusResponse(view.Status), Lines: make([]lineResponse, 0, len(view.Lines))}
	for _, l := range view.Lines {
		out.Lines = append(out.Lines, toLineResponse(l))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) postRecompute(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	rec, err := h.service.RecomputeOrderStatus(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderStatusResponse(rec))
}

func (h *Handler) putApproval(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req approvalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed approval request")
		return
	}
	if fields := h.validate(req); fields != nil {
		httpx.FieldProblem(w, http.StatusUnprocessableEntity, "Validation Failed", "approval request is invalid", fields)
		return
	}
	rec, err := h.service.SetApprovalStatus(r.Context(), orderID, OrderStatus(req.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderStatusResponse(rec))
}

func (h *Handler) getLine(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	view, err := h.service.GetLine(r.Context(), orderID, itemID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toLineResponse(view))
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	balance, err := h.service.GetStock(r.Context(), itemID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stockResponse{ItemID: balance.ItemID, CurrentStock: balance.CurrentStock, UpdatedAt: balance.UpdatedAt})
}

func (h *Handler) getStockAudit(w http.ResponseWriter, r *http.Request) {
	drift, err := h.service.AuditStock(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]driftResponse, 0, len(drift))
	for _, d := range drift {
		out = append(out, driftResponse{ItemID: d.ItemID, CurrentStock: d.CurrentStock, LedgerNet: d.LedgerNet})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"drift": out})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return id, true
}

// validate returns field messages keyed by JSON path, or nil.
func (h *Handler) validate(v any) map[string]string {
	err := h.validator.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"general": err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		key := fe.Namespace()
		if i := strings.Index(key, "."); i >= 0 {
			key = key[i+1:]
		}
		fields[key] = fmt.Sprintf("failed %s", fe.Tag())
	}
	return fields
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var lineErr *LineError
	switch {
	case errors.Is(err, ErrUnknownLine):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.As(err, &lineErr) && IsValidation(err):
		httpx.FieldProblem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error(), map[string]string{
			"item_id": strconv.FormatInt(lineErr.ItemID, 10),
		})
	case IsValidation(err):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnprocessable, err))
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, ErrConflict):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
	default:
		h.logger.Error("receiving request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
