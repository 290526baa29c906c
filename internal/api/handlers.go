/**
 * @description
 * This file contains the HTTP handlers for the escrow-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: For URL parameter extraction.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/transfa/escrow-service/internal/app"
	"github.com/transfa/escrow-service/internal/domain"
	"github.com/transfa/escrow-service/internal/store"
	"github.com/transfa/escrow-service/pkg/escrowclient"
)

// EscrowHandlers holds the application service that handlers will use.
type EscrowHandlers struct {
	service *app.Service
	metrics *MetricsRegistry
}

// NewEscrowHandlers creates a new instance of EscrowHandlers.
func NewEscrowHandlers(service *app.Service, metrics *MetricsRegistry) *EscrowHandlers {
	return &EscrowHandlers{service: service, metrics: metrics}
}

// batchRunResponse reports how many records a batch endpoint processed.
type batchRunResponse struct {
	Processed int `json:"processed"`
}

// CreateTransferHandler handles requests to escrow funds for an email recipient.
func (h *EscrowHandlers) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req domain.CreateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	// The sender is always the authenticated caller, never a body field.
	req.SenderUserID = userID

	transfer, err := h.service.CreateTransfer(r.Context(), req)
	if err != nil {
		h.metrics.incOperation("create", "error")
		h.writeServiceError(w, err)
		return
	}

	h.metrics.incOperation("create", "success")
	h.writeJSON(w, http.StatusCreated, transfer)
}

// ListForRecipientHandler lists every transfer addressed to an email,
// finalized records included.
func (h *EscrowHandlers) ListForRecipientHandler(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("recipient_email"))
	if email == "" {
		h.writeError(w, http.StatusBadRequest, "recipient_email query parameter is required")
		return
	}

	summaries, err := h.service.ListForRecipient(r.Context(), email)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summaries)
}

// ListSentHandler lists the authenticated sender's still-pending transfers.
func (h *EscrowHandlers) ListSentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	summaries, err := h.service.ListSentPending(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summaries)
}

// ClaimTransferHandler pays a pending transfer out to the authenticated user.
func (h *EscrowHandlers) ClaimTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transfer id")
		return
	}

	transfer, err := h.service.ClaimTransfer(r.Context(), id, userID)
	if err != nil {
		h.metrics.incOperation("claim", "error")
		h.writeServiceError(w, err)
		return
	}

	h.metrics.incOperation("claim", "success")
	h.writeJSON(w, http.StatusOK, transfer)
}

// CancelTransferHandler refunds a pending transfer to its sender.
func (h *EscrowHandlers) CancelTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transfer id")
		return
	}

	transfer, err := h.service.CancelTransfer(r.Context(), id, userID)
	if err != nil {
		h.metrics.incOperation("cancel", "error")
		h.writeServiceError(w, err)
		return
	}

	h.metrics.incOperation("cancel", "success")
	h.writeJSON(w, http.StatusOK, transfer)
}

// AutoClaimHandler claims every pending transfer addressed to the caller's
// email. Invoked by the client right after onboarding completes.
func (h *EscrowHandlers) AutoClaimHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	count, err := h.service.AutoClaimForNewUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, batchRunResponse{Processed: count})
}

// ExpireTransfersHandler runs the expiry sweep. Server-to-server only; the
// scheduler drives this on a cron but operators can trigger it manually.
func (h *EscrowHandlers) ExpireTransfersHandler(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.ExpirePendingTransfers(r.Context())
	if err != nil {
		h.metrics.incOperation("expire", "error")
		h.writeServiceError(w, err)
		return
	}

	h.metrics.addOperations("expire", "success", count)
	h.writeJSON(w, http.StatusOK, batchRunResponse{Processed: count})
}

// SendRemindersHandler runs the expiry reminder batch. Server-to-server only.
func (h *EscrowHandlers) SendRemindersHandler(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.SendExpiryReminders(r.Context())
	if err != nil {
		h.metrics.incOperation("remind", "error")
		h.writeServiceError(w, err)
		return
	}

	h.metrics.addOperations("remind", "success", count)
	h.writeJSON(w, http.StatusOK, batchRunResponse{Processed: count})
}

// SyncTransferHandler reconciles one transfer against the chain. Server-to-server only.
func (h *EscrowHandlers) SyncTransferHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transfer id")
		return
	}

	transfer, err := h.service.SyncTransferStatus(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, transfer)
}

// writeServiceError maps service-layer errors onto HTTP status codes. A
// transfer that already reached a terminal state answers 409 together with
// the last known status, so clients can tell the user what happened.
func (h *EscrowHandlers) writeServiceError(w http.ResponseWriter, err error) {
	var finalized *app.AlreadyFinalizedError
	switch {
	case errors.As(err, &finalized):
		h.writeJSON(w, http.StatusConflict, map[string]string{
			"error":  "Transfer is already finalized",
			"status": string(finalized.Status),
		})
	case errors.Is(err, domain.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrTransferNotFound):
		h.writeError(w, http.StatusNotFound, "Transfer not found")
	case errors.Is(err, app.ErrUnauthorized):
		h.writeError(w, http.StatusForbidden, "You are not authorized for this transfer")
	case errors.Is(err, app.ErrTransferExpired):
		h.writeError(w, http.StatusGone, "Transfer has expired")
	case errors.Is(err, app.ErrWalletNotConfigured):
		h.writeError(w, http.StatusPreconditionFailed, "No wallet configured for this chain. Please add one first.")
	case errors.Is(err, app.ErrNotRegistered):
		h.writeError(w, http.StatusUnprocessableEntity, "Transfer has no on-chain registration")
	case errors.Is(err, escrowclient.ErrOnchain):
		h.writeError(w, http.StatusBadGateway, "On-chain escrow call failed. Please try again.")
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *EscrowHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *EscrowHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
