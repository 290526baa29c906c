/**
 * @description
 * This file defines the core domain models for the escrow-service.
 * The central entity is `PendingTransfer`: a record of value escrowed on-chain
 * for a recipient who is identified only by an email address and may not have
 * a wallet yet.
 *
 * @notes
 * - Amounts are carried as decimal strings end to end. They are never parsed
 *   into a floating type; the escrow client converts them to big integers in
 *   the token's smallest unit when building transactions.
 * - The record keeps two status fields: `Status` is the application view of
 *   the lifecycle and `EscrowStatus` mirrors the contract's own state machine.
 *   `StatusFromEscrow` is the single mapping between the two.
 */

package domain

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransferStatus is the application-side lifecycle status of a pending transfer.
type TransferStatus string

const (
	StatusPending   TransferStatus = "pending"
	StatusClaimed   TransferStatus = "claimed"
	StatusCancelled TransferStatus = "cancelled"
	StatusExpired   TransferStatus = "expired"
)

// IsTerminal reports whether the status admits no further transitions.
func (s TransferStatus) IsTerminal() bool {
	return s == StatusClaimed || s == StatusCancelled || s == StatusExpired
}

// EscrowStatus mirrors the escrow contract's own status enum for a transfer.
type EscrowStatus string

const (
	EscrowPending  EscrowStatus = "pending"
	EscrowClaimed  EscrowStatus = "claimed"
	EscrowRefunded EscrowStatus = "refunded"
	EscrowExpired  EscrowStatus = "expired"
)

// StatusFromEscrow maps the contract's status enum onto the application status.
// The chain is the source of truth on divergence, so reconciliation overwrites
// the application status with this mapping's output.
//
// A refund observed on-chain is surfaced as "cancelled": the contract does not
// distinguish a sender-initiated cancel from an expiry refund, and a refund
// seen before our own expiry sweep ran can only have been sender-initiated.
func StatusFromEscrow(es EscrowStatus) (TransferStatus, error) {
	switch es {
	case EscrowPending:
		return StatusPending, nil
	case EscrowClaimed:
		return StatusClaimed, nil
	case EscrowRefunded:
		return StatusCancelled, nil
	case EscrowExpired:
		return StatusExpired, nil
	default:
		return "", fmt.Errorf("unknown escrow status %q", es)
	}
}

// PendingTransfer is the off-chain projection of one escrowed transfer.
// This struct maps directly to the `pending_transfers` table.
type PendingTransfer struct {
	ID             uuid.UUID `json:"id"`
	SenderUserID   string    `json:"sender_user_id"`
	SenderEmail    string    `json:"sender_email"`
	SenderName     *string   `json:"sender_name,omitempty"`
	RecipientEmail string    `json:"recipient_email"` // normalized, the identity key

	Amount       string `json:"amount"` // decimal string, e.g. "10.00"
	Token        string `json:"token"`
	TokenAddress string `json:"token_address"`
	Chain        string `json:"chain"`
	Decimals     int    `json:"decimals"`

	Status TransferStatus `json:"status"`

	// On-chain linkage. EscrowTransferID is required once registration
	// succeeds; a record lacking it must never reach a claim or refund path.
	EscrowTransferID string       `json:"escrow_transfer_id"`
	EscrowTxHash     string       `json:"escrow_tx_hash"`
	EscrowStatus     EscrowStatus `json:"escrow_status"`
	RecipientHash    string       `json:"recipient_hash"`
	RecipientWallet  *string      `json:"recipient_wallet,omitempty"`

	ClaimedByUserID       *string    `json:"claimed_by_user_id,omitempty"`
	ClaimedAt             *time.Time `json:"claimed_at,omitempty"`
	ClaimTransactionHash  *string    `json:"claim_transaction_hash,omitempty"`
	RefundTransactionHash *string    `json:"refund_transaction_hash,omitempty"`

	Message *string `json:"message,omitempty"`

	CreatedAt          time.Time  `json:"created_at"`
	ExpiresAt          time.Time  `json:"expires_at"`
	LastReminderSentAt *time.Time `json:"last_reminder_sent_at,omitempty"`
}

// IsRegistered reports whether on-chain registration completed for this record.
func (t *PendingTransfer) IsRegistered() bool {
	return t.EscrowTransferID != ""
}

// PendingTransferSummary is the read-model returned to list callers.
type PendingTransferSummary struct {
	ID             uuid.UUID      `json:"id"`
	RecipientEmail string         `json:"recipient_email"`
	SenderName     string         `json:"sender_name"`
	SenderEmail    string         `json:"sender_email,omitempty"`
	Amount         string         `json:"amount"`
	Token          string         `json:"token"`
	Chain          string         `json:"chain"`
	Status         TransferStatus `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	ExpiresAt      time.Time      `json:"expires_at"`
	DaysRemaining  int            `json:"days_remaining"`
}

// Summarize builds the list read-model for a transfer as of `now`.
func (t *PendingTransfer) Summarize(now time.Time) PendingTransferSummary {
	senderName := ""
	if t.SenderName != nil {
		senderName = *t.SenderName
	}
	return PendingTransferSummary{
		ID:             t.ID,
		RecipientEmail: t.RecipientEmail,
		SenderName:     senderName,
		SenderEmail:    t.SenderEmail,
		Amount:         t.Amount,
		Token:          t.Token,
		Chain:          t.Chain,
		Status:         t.Status,
		CreatedAt:      t.CreatedAt,
		ExpiresAt:      t.ExpiresAt,
		DaysRemaining:  DaysRemaining(t.ExpiresAt, now),
	}
}

// DaysRemaining returns the whole days left until expiry, rounded up and
// floored at zero so expired records read as 0 rather than negative.
func DaysRemaining(expiresAt, now time.Time) int {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

// NormalizeEmail lower-cases and trims an email address. Recipient identity is
// case-insensitive, so every comparison and every stored value goes through this.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var (
	emailPattern  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
)

// KnownChains lists the chains the shared escrow contract is deployed to.
var KnownChains = map[string]bool{
	"celo":         true,
	"celo-sepolia": true,
}

// ErrValidation marks a malformed request, rejected before any side effect.
var ErrValidation = errors.New("validation failed")

// CreateTransferRequest is the DTO for incoming transfer creation requests.
type CreateTransferRequest struct {
	RecipientEmail string  `json:"recipient_email"`
	SenderUserID   string  `json:"sender_user_id"`
	Amount         string  `json:"amount"`
	Token          string  `json:"token"`
	TokenAddress   string  `json:"token_address"`
	Chain          string  `json:"chain"`
	Decimals       int     `json:"decimals"`
	Message        *string `json:"message,omitempty"`
}

// Validate checks the request shape. It does not touch any external system.
func (r *CreateTransferRequest) Validate() error {
	if !emailPattern.MatchString(NormalizeEmail(r.RecipientEmail)) {
		return fmt.Errorf("%w: invalid recipient email", ErrValidation)
	}
	if r.SenderUserID == "" {
		return fmt.Errorf("%w: sender user id is required", ErrValidation)
	}
	if !amountPattern.MatchString(r.Amount) || strings.Trim(r.Amount, "0.") == "" {
		return fmt.Errorf("%w: amount must be a positive decimal string", ErrValidation)
	}
	if r.Token == "" {
		return fmt.Errorf("%w: token is required", ErrValidation)
	}
	if r.TokenAddress == "" {
		return fmt.Errorf("%w: token address is required", ErrValidation)
	}
	if !KnownChains[r.Chain] {
		return fmt.Errorf("%w: unknown chain %q", ErrValidation, r.Chain)
	}
	if r.Decimals <= 0 || r.Decimals > 30 {
		return fmt.Errorf("%w: decimals out of range", ErrValidation)
	}
	return nil
}
