package sales

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/partsledger/partsledger/internal/payments"
	"github.com/partsledger/partsledger/internal/platform/httpx"
	"github.com/partsledger/partsledger/internal/shared"
)

// Handler manages sales endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.createSale)
	r.Get("/sales", h.listSales)
	r.Get("/sales/{id}", h.showSale)
	r.Post("/sale-lines/{id}/returns", h.createReturn)
	r.Get("/sale-lines/{id}/returns", h.listReturns)
}

type lineRequest struct {
	ProductID        int64            `json:"product_id" validate:"gt=0"`
	PartNo           string           `json:"part_no" validate:"required,max=64"`
	Quantity         int64            `json:"quantity"`
	UnitBasePrice    *decimal.Decimal `json:"unit_base_price,omitempty"`
	MarkupPercentage decimal.Decimal  `json:"markup_percentage"`
}

type createSaleRequest struct {
	CustomerID     int64                     `json:"customer_id"`
	SaleDate       string                    `json:"sale_date"`
	Lines          []lineRequest             `json:"lines" validate:"dive"`
	DiscountAmount decimal.Decimal           `json:"discount_amount"`
	Payments       []payments.PaymentRequest `json:"payments" validate:"dive"`
}

type createReturnRequest struct {
	ReturnedQuantity int64  `json:"returned_quantity"`
	ReturnDate       string `json:"return_date"`
	Remarks          string `json:"remarks" validate:"max=500"`
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req createSaleRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	saleDate, err := parseDate(req.SaleDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	key, err := httpx.IdempotencyKey(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := CreateSaleInput{
		CustomerID:     req.CustomerID,
		SaleDate:       saleDate,
		DiscountAmount: req.DiscountAmount,
		IdempotencyKey: key,
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, LineInput{
			ProductID:        l.ProductID,
			PartNo:           l.PartNo,
			Quantity:         l.Quantity,
			UnitBasePrice:    l.UnitBasePrice,
			MarkupPercentage: l.MarkupPercentage,
		})
	}
	for _, p := range req.Payments {
		in.Payments = append(in.Payments, p.Input())
	}
	sale, err := h.service.CreateSale(r.Context(), in)
	if err != nil {
		h.fail(w, "create sale", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	customerID, err := httpx.QueryInt(r, "customer_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	offset, err := httpx.QueryInt(r, "offset")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ListSales(r.Context(), ListFilter{CustomerID: customerID, Page: shared.Page{Limit: int(limit), Offset: int(offset)}})
	if err != nil {
		h.fail(w, "list sales", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales": list})
}

func (h *Handler) showSale(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.fail(w, "get sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) createReturn(w http.ResponseWriter, r *http.Request) {
	lineID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createReturnRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	returnDate, err := parseDate(req.ReturnDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	key, err := httpx.IdempotencyKey(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.CreateReturn(r.Context(), CreateReturnInput{
		SaleLineID:       lineID,
		ReturnedQuantity: req.ReturnedQuantity,
		ReturnDate:       returnDate,
		Remarks:          req.Remarks,
		IdempotencyKey:   key,
	})
	if err != nil {
		h.fail(w, "create return", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) listReturns(w http.ResponseWriter, r *http.Request) {
	lineID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	line, list, err := h.service.ListReturns(r.Context(), lineID)
	if err != nil {
		h.fail(w, "list returns", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"sale_line":            line,
		"returns":              list,
		"already_returned":     line.ReturnedQuantity,
		"remaining_returnable": line.SoldQuantity - line.ReturnedQuantity,
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.ClassOf(err) == nil {
		h.logger.Error("sales request failed", slog.String("op", op), slog.Any("error", err))
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
