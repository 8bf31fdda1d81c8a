package inventory

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/partsledger/partsledger/internal/platform/httpx"
	"github.com/partsledger/partsledger/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stocks", h.listStock)
	r.Get("/stocks/card", h.stockCard)
	r.Post("/stocks/receipts", h.receive)
}

type receiptRequest struct {
	ProductID     int64            `json:"product_id" validate:"gt=0"`
	PartNo        string           `json:"part_no" validate:"required,max=64"`
	Qty           int64            `json:"qty" validate:"gt=0"`
	PurchasePrice decimal.Decimal  `json:"purchase_price"`
	SaleBasePrice *decimal.Decimal `json:"sale_base_price,omitempty"`
	Note          string           `json:"note" validate:"max=500"`
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.QueryInt(r, "product_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if partNo := r.URL.Query().Get("part_no"); partNo != "" {
		rec, err := h.service.GetStock(r.Context(), StockKey{ProductID: productID, PartNo: partNo})
		if err != nil {
			h.fail(w, "get stock", err)
			return
		}
		httpx.JSON(w, http.StatusOK, rec)
		return
	}
	records, err := h.service.ListStock(r.Context(), productID)
	if err != nil {
		h.fail(w, "list stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stocks": records})
}

func (h *Handler) stockCard(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.QueryInt(r, "product_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	filter := StockCardFilter{StockKey: StockKey{ProductID: productID, PartNo: q.Get("part_no")}}
	if filter.From, err = parseDate(q.Get("from")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = parseDate(q.Get("to")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !filter.To.IsZero() {
		filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
	}
	entries, err := h.service.GetStockCard(r.Context(), filter)
	if err != nil {
		h.fail(w, "stock card", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key, err := httpx.IdempotencyKey(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	mv, err := h.service.Receive(r.Context(), ReceiptInput{
		StockKey:       StockKey{ProductID: req.ProductID, PartNo: req.PartNo},
		Qty:            req.Qty,
		PurchasePrice:  req.PurchasePrice,
		SaleBasePrice:  req.SaleBasePrice,
		Note:           req.Note,
		IdempotencyKey: key,
	})
	if err != nil {
		h.fail(w, "receive stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, mv)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.ClassOf(err) == nil {
		h.logger.Error("inventory request failed", slog.String("op", op), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", shared.ErrValidation, raw)
	}
	return t, nil
}
