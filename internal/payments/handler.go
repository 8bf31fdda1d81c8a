package payments

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/partsledger/partsledger/internal/platform/httpx"
	"github.com/partsledger/partsledger/internal/shared"
)

// Handler exposes payment endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales/{id}/payments", h.addPayment)
	r.Get("/sales/{id}/payments", h.listPayments)
}

// PaymentRequest is the JSON body of a payment. It is shared with sale creation.
type PaymentRequest struct {
	Mode       string          `json:"mode" validate:"required,max=16"`
	BankName   string          `json:"bank_name" validate:"max=128"`
	AccountNo  string          `json:"account_no" validate:"max=64"`
	ChequeNo   string          `json:"cheque_no" validate:"max=64"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
}

// Input converts the request into a ledger input.
func (p PaymentRequest) Input() Input {
	return Input{
		Mode:       Mode(strings.ToUpper(strings.TrimSpace(p.Mode))),
		BankName:   p.BankName,
		AccountNo:  p.AccountNo,
		ChequeNo:   p.ChequeNo,
		PaidAmount: p.PaidAmount,
	}
}

func (h *Handler) addPayment(w http.ResponseWriter, r *http.Request) {
	saleID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req PaymentRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := req.Input()
	if in.IdempotencyKey, err = httpx.IdempotencyKey(r); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.AddPayment(r.Context(), saleID, in)
	if err != nil {
		h.fail(w, "add payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	saleID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, totals, err := h.service.ListPayments(r.Context(), saleID)
	if err != nil {
		h.fail(w, "list payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": list, "totals": totals})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.ClassOf(err) == nil {
		h.logger.Error("payments request failed", slog.String("op", op), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
