package httptransport

import (
	"errors"
	"net/http"
	"strings"
	"time"

	apphold "github.com/flashmart/reservation/internal/application/hold"
	apporder "github.com/flashmart/reservation/internal/application/order"
	appproduct "github.com/flashmart/reservation/internal/application/product"
	appsettlement "github.com/flashmart/reservation/internal/application/settlement"
	domhold "github.com/flashmart/reservation/internal/domain/hold"
	dominv "github.com/flashmart/reservation/internal/domain/inventory"
	domorder "github.com/flashmart/reservation/internal/domain/order"
	domwebhook "github.com/flashmart/reservation/internal/domain/webhook"
	"github.com/flashmart/reservation/internal/pkg/metrics"
	"go.uber.org/zap"
)

type Handler struct {
	holdService       *apphold.Service
	orderService      *apporder.Service
	settlementService *appsettlement.Service
	productService    *appproduct.Service
	logger            *zap.Logger
	metrics           *metrics.Metrics
}

func NewHandler(
	holdSvc *apphold.Service,
	orderSvc *apporder.Service,
	settlementSvc *appsettlement.Service,
	productSvc *appproduct.Service,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		holdService:       holdSvc,
		orderService:      orderSvc,
		settlementService: settlementSvc,
		productService:    productSvc,
		logger:            logger,
		metrics:           m,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/holds", h.method(http.MethodPost, "/v1/holds", h.handleCreateHold))
	mux.HandleFunc("/v1/orders", h.method(http.MethodPost, "/v1/orders", h.handleCreateOrder))
	mux.HandleFunc("/v1/payments/webhook", h.method(http.MethodPost, "/v1/payments/webhook", h.handleWebhook))
	mux.HandleFunc("/v1/products/", h.method(http.MethodGet, "/v1/products/{id}", h.handleGetProduct))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}

type createHoldRequest struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type createHoldResponse struct {
	HoldID    string    `json:"hold_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) handleCreateHold(w http.ResponseWriter, r *http.Request) {
	var req createHoldRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	hold, err := h.holdService.Create(r.Context(), req.ProductID, req.Qty)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createHoldResponse{
		HoldID:    hold.ID,
		ExpiresAt: hold.ExpiresAt,
	})
}

type createOrderRequest struct {
	HoldID string `json:"hold_id"`
}

type createOrderResponse struct {
	OrderID string          `json:"order_id"`
	Status  domorder.Status `json:"status"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.orderService.CreateFromHold(r.Context(), req.HoldID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{
		OrderID: result.ID,
		Status:  result.Status,
	})
}

type webhookRequest struct {
	OrderID        string `json:"order_id"`
	Status         string `json:"status"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.OrderID == "" || req.IdempotencyKey == "" {
		writeError(w, http.StatusBadRequest, errors.New("order_id and idempotency_key are required"))
		return
	}
	outcome, err := domwebhook.ParseOutcome(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.settlementService.RecordNotification(r.Context(), req.OrderID, outcome, req.IdempotencyKey); err != nil {
		writeDomainError(w, err)
		return
	}

	// Always a 200 once the notification is durably recorded, whether it was
	// applied, deferred, or a duplicate.
	writeJSON(w, http.StatusOK, map[string]string{"message": "Webhook successfully processed."})
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimPrefix(r.URL.Path, "/v1/products/")
	if productID == "" || strings.Contains(productID, "/") {
		writeError(w, http.StatusNotFound, errors.New("product not found"))
		return
	}

	view, err := h.productService.GetProduct(r.Context(), productID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Client-facing reason strings for hold validation failures. These are part
// of the API contract.
const (
	reasonHoldNotFound    = "Hold Not Found"
	reasonHoldAlreadyUsed = "Hold Already Used"
	reasonHoldExpired     = "Hold Expired"
)

func writeDomainError(w http.ResponseWriter, err error) {
	var insufficient *dominv.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, map[string]any{
			"message":   "Not Enough Stock Available.",
			"available": insufficient.Available,
		})
	case errors.Is(err, domhold.ErrNotFound):
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": reasonHoldNotFound})
	case errors.Is(err, domhold.ErrAlreadyUsed):
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": reasonHoldAlreadyUsed})
	case errors.Is(err, domhold.ErrExpired):
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": reasonHoldExpired})
	case errors.Is(err, domhold.ErrInvalidQuantity), errors.Is(err, dominv.ErrInvalidQuantity),
		errors.Is(err, domwebhook.ErrInvalidOutcome):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, dominv.ErrNotFound), errors.Is(err, domorder.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		// System errors stay generic; details go to the log, not the client.
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}
