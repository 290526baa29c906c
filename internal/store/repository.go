/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access operations required by the escrow-service. The interface decouples
 * the state machine in `internal/app` from the concrete database, so tests
 * run against the in-memory implementation and deployments use PostgreSQL.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For transfer id handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/escrow-service/internal/domain"
)

var (
	ErrTransferNotFound = errors.New("pending transfer not found")
	// ErrStaleTransfer is returned by conditional updates when the record is
	// no longer in the expected status. The on-chain call is the real gate;
	// this guard only keeps the projection from re-entering a terminal state.
	ErrStaleTransfer = errors.New("pending transfer is not in the expected status")
)

// TerminalUpdate carries the fields written when a transfer reaches a
// terminal state. Only non-nil fields are applied.
type TerminalUpdate struct {
	Status                domain.TransferStatus
	EscrowStatus          domain.EscrowStatus
	ClaimedByUserID       *string
	ClaimedAt             *time.Time
	ClaimTransactionHash  *string
	RefundTransactionHash *string
	RecipientWallet       *string
}

// Repository defines the persistence operations for pending transfers.
type Repository interface {
	CreateTransfer(ctx context.Context, t *domain.PendingTransfer) error
	GetTransferByID(ctx context.Context, id uuid.UUID) (*domain.PendingTransfer, error)

	// ListByRecipientEmail matches on the normalized email identity key.
	// Statuses narrows the result; empty means all statuses.
	ListByRecipientEmail(ctx context.Context, email string, statuses ...domain.TransferStatus) ([]domain.PendingTransfer, error)
	ListBySender(ctx context.Context, senderUserID string, statuses ...domain.TransferStatus) ([]domain.PendingTransfer, error)

	// ListExpired returns pending records whose expiry has passed as of `now`.
	ListExpired(ctx context.Context, now time.Time) ([]domain.PendingTransfer, error)
	// ListExpiringWithin returns pending records that expire inside the
	// window, excluding records already reminded inside that same window.
	ListExpiringWithin(ctx context.Context, now time.Time, window time.Duration) ([]domain.PendingTransfer, error)

	// FinalizeTransfer applies a terminal update iff the record is still
	// `pending`; otherwise it returns ErrStaleTransfer and writes nothing.
	FinalizeTransfer(ctx context.Context, id uuid.UUID, update TerminalUpdate) error

	// OverwriteStatus unconditionally sets both status fields. Reserved for
	// reconciliation, where the chain's answer overrides the projection.
	OverwriteStatus(ctx context.Context, id uuid.UUID, status domain.TransferStatus, escrowStatus domain.EscrowStatus) error

	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
}
