package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/yoked/internal/auth"
	"github.com/BradenHooton/yoked/internal/models"
	pkghttp "github.com/BradenHooton/yoked/pkg/http"
)

// PaymentServiceInterface defines the checkout, verification and history
// contract
type PaymentServiceInterface interface {
	CreateCheckout(ctx context.Context, user *models.User, req models.CreatePaymentRequest) (*models.CreatePaymentResponse, error)
	SubscribeFree(ctx context.Context, user *models.User) error
	CancelCheckout(ctx context.Context, user *models.User, sessionID string) (*models.Payment, error)
	VerifyPayment(ctx context.Context, user *models.User, req models.VerifyPaymentRequest) (*models.Payment, error)
	RefundPayment(ctx context.Context, actorID string, req models.RefundRequest) (*models.Payment, error)
	History(ctx context.Context, userID string, page, pageSize int) (*models.PaymentHistoryResponse, error)
	AllHistory(ctx context.Context, page, pageSize int) (*models.PaymentHistoryResponse, error)
}

// PaymentHandler handles payment HTTP requests
type PaymentHandler struct {
	service PaymentServiceInterface
}

func NewPaymentHandler(service PaymentServiceInterface) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// Create handles POST /api/payments/create
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req models.CreatePaymentRequest
	if msg, ok := decodeAndValidate(w, r, &req); !ok {
		pkghttp.WriteBadRequest(w, msg)
		return
	}

	resp, err := h.service.CreateCheckout(r.Context(), user, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusCreated, resp)
}

// SubscribeFree handles POST /api/payments/free
func (h *PaymentHandler) SubscribeFree(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.SubscribeFree(r.Context(), user); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cancel handles GET /api/payments/cancel?session_id=, the checkout cancel
// return URL.
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		pkghttp.WriteBadRequest(w, "session_id is required")
		return
	}

	payment, err := h.service.CancelCheckout(r.Context(), user, sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, payment)
}

// Verify handles POST /api/payments/verify
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req models.VerifyPaymentRequest
	if msg, ok := decodeAndValidate(w, r, &req); !ok {
		pkghttp.WriteBadRequest(w, msg)
		return
	}

	payment, err := h.service.VerifyPayment(r.Context(), user, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, payment)
}

// History handles GET /api/payments/history
func (h *PaymentHandler) History(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	page, pageSize := pkghttp.Pagination(r, 20, 100)
	resp, err := h.service.History(r.Context(), user.ID, page, pageSize)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Refund handles POST /api/payments/refund (admin)
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	admin := auth.GetUserFromContext(r)
	if admin == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req models.RefundRequest
	if msg, ok := decodeAndValidate(w, r, &req); !ok {
		pkghttp.WriteBadRequest(w, msg)
		return
	}

	payment, err := h.service.RefundPayment(r.Context(), admin.ID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, payment)
}

// AdminHistory handles GET /api/payments/admin/history
func (h *PaymentHandler) AdminHistory(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pkghttp.Pagination(r, 50, 200)
	resp, err := h.service.AllHistory(r.Context(), page, pageSize)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
