/**
 * @description
 * This package provides the client for the shared on-chain escrow contract.
 * It is a thin adapter: every method maps to one contract interaction and
 * carries no business rules. The contract itself is the final authority on
 * whether a claim or refund is valid; callers treat any error wrapping
 * ErrOnchain as transient and retryable.
 *
 * @dependencies
 * - context, errors, fmt, math/big, strings, time: Standard Go libraries.
 * - github.com/ethereum/go-ethereum: Contract binding, transaction submission
 *   and keccak hashing for the recipient commitment.
 */
package escrowclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// ErrOnchain marks a transient failure talking to the escrow contract. The
// same logical operation is safe to retry; the contract's own status checks
// prevent duplicate effects.
var ErrOnchain = errors.New("onchain escrow call failed")

// Status mirrors the contract's status enum for one escrow entry.
type Status string

const (
	StatusPending  Status = "pending"
	StatusClaimed  Status = "claimed"
	StatusRefunded Status = "refunded"
	StatusExpired  Status = "expired"
)

// CreateTransferRequest carries the inputs for registering a new escrow entry.
type CreateTransferRequest struct {
	RecipientEmail string // normalized; only its commitment goes on-chain
	Amount         string // decimal string in token units, e.g. "10.00"
	Decimals       int
	TokenAddress   string
	Chain          string
	ExpiresAt      time.Time
}

// CreateTransferResponse is returned once the registering transaction is submitted.
type CreateTransferResponse struct {
	EscrowTransferID string
	TxHash           string
	RecipientHash    string
}

// ClaimTransferResponse carries the claim transaction hash.
type ClaimTransferResponse struct {
	TxHash string
}

// RefundTransferResponse carries the refund transaction hash.
type RefundTransferResponse struct {
	TxHash string
}

// Client abstracts the on-chain escrow interaction.
type Client interface {
	// CreateTransfer registers a new escrow entry. It must be called exactly
	// once per pending transfer record.
	CreateTransfer(ctx context.Context, req CreateTransferRequest) (CreateTransferResponse, error)
	// ClaimTransfer authorizes payout to recipientWallet if the contract's
	// recipient-commitment check passes for recipientEmail.
	ClaimTransfer(ctx context.Context, escrowTransferID, recipientWallet, recipientEmail string) (ClaimTransferResponse, error)
	// RefundTransfer returns escrowed funds to the sender. Used by both the
	// cancel and expire paths.
	RefundTransfer(ctx context.Context, escrowTransferID, senderWallet string) (RefundTransferResponse, error)
	// GetStatus reads the contract's status for an entry. A nil status means
	// the id is unknown to the contract.
	GetStatus(ctx context.Context, escrowTransferID string) (*Status, error)
	// IsCancellable is a read-only pre-check used to give a fast error
	// instead of submitting a transaction doomed to revert.
	IsCancellable(ctx context.Context, escrowTransferID string) (bool, error)
}

// HealthChecker is implemented by clients that can probe their RPC endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// ParseAmount converts a decimal-string amount into base units for the given
// token decimals. Amounts never pass through a floating type.
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(amount), ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	value, ok := new(big.Int).SetString(digits, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	return value, nil
}
