/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. All queries operate on the `pending_transfers` table, which is
 * the off-chain projection of escrow contract state.
 *
 * The terminal-state guard lives in the SQL itself: `FinalizeTransfer` is a
 * conditional UPDATE whose WHERE clause requires `status = 'pending'`, so a
 * record can never be finalized twice regardless of caller interleaving.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/escrow-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS pending_transfers (
    id UUID PRIMARY KEY,
    sender_user_id TEXT NOT NULL,
    sender_email TEXT NOT NULL,
    sender_name TEXT,
    recipient_email TEXT NOT NULL,
    amount TEXT NOT NULL,
    token TEXT NOT NULL,
    token_address TEXT NOT NULL,
    chain TEXT NOT NULL,
    decimals INT NOT NULL,
    status TEXT NOT NULL,
    escrow_transfer_id TEXT NOT NULL,
    escrow_tx_hash TEXT NOT NULL,
    escrow_status TEXT NOT NULL,
    recipient_hash TEXT NOT NULL,
    recipient_wallet TEXT,
    claimed_by_user_id TEXT,
    claimed_at TIMESTAMPTZ,
    claim_transaction_hash TEXT,
    refund_transaction_hash TEXT,
    message TEXT,
    created_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    last_reminder_sent_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_pending_transfers_recipient ON pending_transfers (recipient_email);
CREATE INDEX IF NOT EXISTS idx_pending_transfers_sender ON pending_transfers (sender_user_id);
CREATE INDEX IF NOT EXISTS idx_pending_transfers_status_expiry ON pending_transfers (status, expires_at);
`

// NewPostgresRepository creates the repository and ensures the table exists.
func NewPostgresRepository(ctx context.Context, db *pgxpool.Pool) (*PostgresRepository, error) {
	if _, err := db.Exec(ctx, createTableSQL); err != nil {
		return nil, err
	}
	return &PostgresRepository{db: db}, nil
}

// Ping reports database connectivity for the health endpoint.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

const transferColumns = `
	id, sender_user_id, sender_email, sender_name, recipient_email,
	amount, token, token_address, chain, decimals, status,
	escrow_transfer_id, escrow_tx_hash, escrow_status, recipient_hash, recipient_wallet,
	claimed_by_user_id, claimed_at, claim_transaction_hash, refund_transaction_hash,
	message, created_at, expires_at, last_reminder_sent_at`

func scanTransfer(row pgx.Row) (*domain.PendingTransfer, error) {
	var t domain.PendingTransfer
	err := row.Scan(
		&t.ID, &t.SenderUserID, &t.SenderEmail, &t.SenderName, &t.RecipientEmail,
		&t.Amount, &t.Token, &t.TokenAddress, &t.Chain, &t.Decimals, &t.Status,
		&t.EscrowTransferID, &t.EscrowTxHash, &t.EscrowStatus, &t.RecipientHash, &t.RecipientWallet,
		&t.ClaimedByUserID, &t.ClaimedAt, &t.ClaimTransactionHash, &t.RefundTransactionHash,
		&t.Message, &t.CreatedAt, &t.ExpiresAt, &t.LastReminderSentAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTransfer inserts a fully registered transfer record.
func (r *PostgresRepository) CreateTransfer(ctx context.Context, t *domain.PendingTransfer) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO pending_transfers (`+transferColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
`,
		t.ID, t.SenderUserID, t.SenderEmail, t.SenderName, t.RecipientEmail,
		t.Amount, t.Token, t.TokenAddress, t.Chain, t.Decimals, string(t.Status),
		t.EscrowTransferID, t.EscrowTxHash, string(t.EscrowStatus), t.RecipientHash, t.RecipientWallet,
		t.ClaimedByUserID, t.ClaimedAt, t.ClaimTransactionHash, t.RefundTransactionHash,
		t.Message, t.CreatedAt, t.ExpiresAt, t.LastReminderSentAt,
	)
	return err
}

// GetTransferByID retrieves one transfer by its id.
func (r *PostgresRepository) GetTransferByID(ctx context.Context, id uuid.UUID) (*domain.PendingTransfer, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transferColumns+` FROM pending_transfers WHERE id = $1`, id)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *PostgresRepository) listTransfers(ctx context.Context, query string, args ...any) ([]domain.PendingTransfer, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []domain.PendingTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}

// ListByRecipientEmail retrieves transfers addressed to a normalized email.
func (r *PostgresRepository) ListByRecipientEmail(ctx context.Context, email string, statuses ...domain.TransferStatus) ([]domain.PendingTransfer, error) {
	if len(statuses) == 0 {
		return r.listTransfers(ctx, `
SELECT `+transferColumns+` FROM pending_transfers
WHERE recipient_email = $1 ORDER BY created_at DESC`, domain.NormalizeEmail(email))
	}
	return r.listTransfers(ctx, `
SELECT `+transferColumns+` FROM pending_transfers
WHERE recipient_email = $1 AND status = ANY($2) ORDER BY created_at DESC`,
		domain.NormalizeEmail(email), statusStrings(statuses))
}

// ListBySender retrieves transfers created by a sender.
func (r *PostgresRepository) ListBySender(ctx context.Context, senderUserID string, statuses ...domain.TransferStatus) ([]domain.PendingTransfer, error) {
	if len(statuses) == 0 {
		return r.listTransfers(ctx, `
SELECT `+transferColumns+` FROM pending_transfers
WHERE sender_user_id = $1 ORDER BY created_at DESC`, senderUserID)
	}
	return r.listTransfers(ctx, `
SELECT `+transferColumns+` FROM pending_transfers
WHERE sender_user_id = $1 AND status = ANY($2) ORDER BY created_at DESC`,
		senderUserID, statusStrings(statuses))
}

// ListExpired returns pending transfers whose expiry has passed.
func (r *PostgresRepository) ListExpired(ctx context.Context, now time.Time) ([]domain.PendingTransfer, error) {
	return r.listTransfers(ctx, `
SELECT `+transferColumns+` FROM pending_transfers
WHERE status = $1 AND expires_at < $2 ORDER BY expires_at ASC`,
		string(domain.StatusPending), now)
}

// ListExpiringWithin returns pending transfers expiring inside the reminder
// window that have not already been reminded inside it.
func (r *PostgresRepository) ListExpiringWithin(ctx context.Context, now time.Time, window time.Duration) ([]domain.PendingTransfer, error) {
	return r.listTransfers(ctx, `
SELECT `+transferColumns+` FROM pending_transfers
WHERE status = $1
  AND expires_at > $2
  AND expires_at <= $3
  AND (last_reminder_sent_at IS NULL OR last_reminder_sent_at < $4)
ORDER BY expires_at ASC`,
		string(domain.StatusPending), now, now.Add(window), now.Add(-window))
}

// FinalizeTransfer applies a terminal update only if the record is still pending.
func (r *PostgresRepository) FinalizeTransfer(ctx context.Context, id uuid.UUID, update TerminalUpdate) error {
	tag, err := r.db.Exec(ctx, `
UPDATE pending_transfers
SET status = $1,
    escrow_status = $2,
    claimed_by_user_id = COALESCE($3, claimed_by_user_id),
    claimed_at = COALESCE($4, claimed_at),
    claim_transaction_hash = COALESCE($5, claim_transaction_hash),
    refund_transaction_hash = COALESCE($6, refund_transaction_hash),
    recipient_wallet = COALESCE($7, recipient_wallet)
WHERE id = $8 AND status = $9`,
		string(update.Status), string(update.EscrowStatus),
		update.ClaimedByUserID, update.ClaimedAt,
		update.ClaimTransactionHash, update.RefundTransactionHash,
		update.RecipientWallet,
		id, string(domain.StatusPending),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetTransferByID(ctx, id); err != nil {
			return err
		}
		return ErrStaleTransfer
	}
	return nil
}

// OverwriteStatus mirrors chain truth onto the projection, unconditionally.
func (r *PostgresRepository) OverwriteStatus(ctx context.Context, id uuid.UUID, status domain.TransferStatus, escrowStatus domain.EscrowStatus) error {
	tag, err := r.db.Exec(ctx, `
UPDATE pending_transfers SET status = $1, escrow_status = $2 WHERE id = $3`,
		string(status), string(escrowStatus), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	return nil
}

// MarkReminderSent records that an expiry reminder went out.
func (r *PostgresRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
UPDATE pending_transfers SET last_reminder_sent_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	return nil
}

func statusStrings(statuses []domain.TransferStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
