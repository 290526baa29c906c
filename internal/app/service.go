/**
 * @description
 * This file contains the core business logic for the escrow-service. The
 * `Service` struct orchestrates the pending transfer lifecycle, coordinating
 * between the database repository, the on-chain escrow client, the
 * user-directory and the message broker.
 *
 * Key features:
 * - Implements the main use cases: create, claim, cancel, expire and remind.
 * - The on-chain call always gates the off-chain write: a terminal status is
 *   persisted only after the corresponding transaction was submitted.
 * - Publishes notification events to RabbitMQ; delivery is best-effort and a
 *   failed publish never fails the money movement it describes.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For transfer id handling.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/escrowclient, pkg/rabbitmq, pkg/userdirectory: For external services.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/escrow-service/internal/domain"
	"github.com/transfa/escrow-service/internal/store"
	"github.com/transfa/escrow-service/pkg/escrowclient"
	"github.com/transfa/escrow-service/pkg/rabbitmq"
	"github.com/transfa/escrow-service/pkg/userdirectory"
)

var (
	// ErrUnauthorized is returned when the caller is not the party a lifecycle
	// operation belongs to (wrong claimer email, wrong cancelling sender).
	ErrUnauthorized = errors.New("caller is not authorized for this transfer")
	// ErrTransferExpired is returned when a claim arrives after the expiry
	// timestamp. The record may still read `pending` until the sweep runs.
	ErrTransferExpired = errors.New("transfer has expired")
	// ErrNotRegistered is returned when a lifecycle operation reaches a record
	// that never completed on-chain registration. Such records cannot move
	// funds and indicate a bug in the create path.
	ErrNotRegistered = errors.New("transfer has no on-chain registration")
	// ErrWalletNotConfigured is returned when the user has no wallet address
	// configured for the transfer's chain.
	ErrWalletNotConfigured = errors.New("no wallet configured for this chain")
)

// AlreadyFinalizedError is returned when a lifecycle operation reaches a
// transfer that is already in a terminal state. It carries the last known
// status so callers can report what actually happened to the funds.
type AlreadyFinalizedError struct {
	Status domain.TransferStatus
}

func (e *AlreadyFinalizedError) Error() string {
	return fmt.Sprintf("transfer already finalized with status %q", e.Status)
}

// Service provides the core business logic for pending transfers.
type Service struct {
	repo      store.Repository
	escrow    escrowclient.Client
	directory userdirectory.Directory
	producer  rabbitmq.Publisher

	expiryDays     int
	reminderWindow time.Duration

	// now is swapped in tests to pin the clock.
	now func() time.Time
}

// NewService creates a new escrow service instance. expiryDays is how long a
// transfer stays claimable; reminderWindow is how far ahead of expiry the
// reminder job looks.
func NewService(repo store.Repository, escrow escrowclient.Client, directory userdirectory.Directory, producer rabbitmq.Publisher, expiryDays int, reminderWindow time.Duration) *Service {
	if expiryDays <= 0 {
		expiryDays = 7
	}
	if reminderWindow <= 0 {
		reminderWindow = 48 * time.Hour
	}
	return &Service{
		repo:           repo,
		escrow:         escrow,
		directory:      directory,
		producer:       producer,
		expiryDays:     expiryDays,
		reminderWindow: reminderWindow,
		now:            time.Now,
	}
}

// CreateTransfer escrows funds for an email-identified recipient. The on-chain
// registration happens first; if it fails no record is written, so every
// stored transfer is backed by an escrow entry.
func (s *Service) CreateTransfer(ctx context.Context, req domain.CreateTransferRequest) (*domain.PendingTransfer, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	recipientEmail := domain.NormalizeEmail(req.RecipientEmail)
	now := s.now().UTC()
	expiresAt := now.Add(time.Duration(s.expiryDays) * 24 * time.Hour)

	// Resolve the sender's profile for notification context. A directory
	// outage here degrades the emails, not the transfer.
	senderEmail := ""
	var senderName *string
	if sender, err := s.directory.GetUser(ctx, req.SenderUserID); err != nil {
		log.Printf("CreateTransfer: sender profile lookup failed for %s: %v", req.SenderUserID, err)
	} else {
		senderEmail = domain.NormalizeEmail(sender.Email)
		if sender.Name != "" {
			name := sender.Name
			senderName = &name
		}
	}

	onchain, err := s.escrow.CreateTransfer(ctx, escrowclient.CreateTransferRequest{
		RecipientEmail: recipientEmail,
		Amount:         req.Amount,
		Decimals:       req.Decimals,
		TokenAddress:   req.TokenAddress,
		Chain:          req.Chain,
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		log.Printf("CreateTransfer: on-chain registration failed for recipient %s: %v", recipientEmail, err)
		return nil, fmt.Errorf("failed to register escrow transfer: %w", err)
	}

	transfer := &domain.PendingTransfer{
		ID:               uuid.New(),
		SenderUserID:     req.SenderUserID,
		SenderEmail:      senderEmail,
		SenderName:       senderName,
		RecipientEmail:   recipientEmail,
		Amount:           req.Amount,
		Token:            req.Token,
		TokenAddress:     req.TokenAddress,
		Chain:            req.Chain,
		Decimals:         req.Decimals,
		Status:           domain.StatusPending,
		EscrowTransferID: onchain.EscrowTransferID,
		EscrowTxHash:     onchain.TxHash,
		EscrowStatus:     domain.EscrowPending,
		RecipientHash:    onchain.RecipientHash,
		Message:          req.Message,
		CreatedAt:        now,
		ExpiresAt:        expiresAt,
	}

	if err := s.repo.CreateTransfer(ctx, transfer); err != nil {
		// Funds are already escrowed; the sender can still recover them via
		// cancel-by-escrow-id support tooling or the contract's expiry path.
		log.Printf("CreateTransfer: record write failed after on-chain registration, escrow_transfer_id=%s: %v", onchain.EscrowTransferID, err)
		return nil, fmt.Errorf("failed to persist pending transfer: %w", err)
	}

	log.Printf("CreateTransfer: created transfer %s for %s (escrow id %s, expires %s)", transfer.ID, recipientEmail, onchain.EscrowTransferID, expiresAt.Format(time.RFC3339))

	s.notify(ctx, domain.EventRecipientInvited, transfer, nil)
	s.notify(ctx, domain.EventSenderConfirmed, transfer, nil)
	return transfer, nil
}

// ClaimTransfer pays out a pending transfer to the claiming user's wallet.
// Preconditions are checked in a fixed order so callers get the most specific
// failure: existence, terminal status, email ownership, expiry, wallet,
// registration. The contract's commitment check remains the final gate.
func (s *Service) ClaimTransfer(ctx context.Context, id uuid.UUID, claimerUserID string) (*domain.PendingTransfer, error) {
	transfer, err := s.repo.GetTransferByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if transfer.Status.IsTerminal() {
		return nil, &AlreadyFinalizedError{Status: transfer.Status}
	}

	claimer, err := s.directory.GetUser(ctx, claimerUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve claiming user: %w", err)
	}
	if domain.NormalizeEmail(claimer.Email) != transfer.RecipientEmail {
		log.Printf("ClaimTransfer: user %s attempted claim of %s addressed to another email", claimerUserID, id)
		return nil, ErrUnauthorized
	}
	// The expiry instant itself is no longer claimable.
	if !s.now().Before(transfer.ExpiresAt) {
		return nil, ErrTransferExpired
	}
	wallet, ok := claimer.WalletFor(transfer.Chain)
	if !ok {
		return nil, fmt.Errorf("%w: chain %s", ErrWalletNotConfigured, transfer.Chain)
	}
	if !transfer.IsRegistered() {
		return nil, ErrNotRegistered
	}

	claim, err := s.escrow.ClaimTransfer(ctx, transfer.EscrowTransferID, wallet, transfer.RecipientEmail)
	if err != nil {
		log.Printf("ClaimTransfer: on-chain claim failed for transfer %s (escrow id %s): %v", id, transfer.EscrowTransferID, err)
		return nil, fmt.Errorf("failed to claim escrow transfer: %w", err)
	}

	claimedAt := s.now().UTC()
	update := store.TerminalUpdate{
		Status:               domain.StatusClaimed,
		EscrowStatus:         domain.EscrowClaimed,
		ClaimedByUserID:      &claimerUserID,
		ClaimedAt:            &claimedAt,
		ClaimTransactionHash: &claim.TxHash,
		RecipientWallet:      &wallet,
	}
	if err := s.repo.FinalizeTransfer(ctx, id, update); err != nil {
		if errors.Is(err, store.ErrStaleTransfer) {
			return nil, s.alreadyFinalized(ctx, id)
		}
		return nil, err
	}

	updated, err := s.repo.GetTransferByID(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Printf("ClaimTransfer: transfer %s claimed by %s, tx %s", id, claimerUserID, claim.TxHash)
	s.notify(ctx, domain.EventTransferClaimed, updated, nil)
	return updated, nil
}

// CancelTransfer refunds a pending transfer to its sender. Only the original
// sender may cancel. The projection is reconciled against the chain before
// the refund is attempted so a racing claim surfaces as AlreadyFinalizedError
// instead of a reverted transaction.
func (s *Service) CancelTransfer(ctx context.Context, id uuid.UUID, senderUserID string) (*domain.PendingTransfer, error) {
	transfer, err := s.repo.GetTransferByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if transfer.SenderUserID != senderUserID {
		return nil, ErrUnauthorized
	}
	if !transfer.IsRegistered() {
		return nil, ErrNotRegistered
	}

	// Reconcile before acting; the sweep or a claim may have landed already.
	transfer, err = s.SyncTransferStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if transfer.Status.IsTerminal() {
		return nil, &AlreadyFinalizedError{Status: transfer.Status}
	}

	// Read-only pre-check to avoid submitting a transaction doomed to revert.
	// It is advisory: an error here falls through to the refund attempt.
	if cancellable, err := s.escrow.IsCancellable(ctx, transfer.EscrowTransferID); err != nil {
		log.Printf("CancelTransfer: cancellable pre-check failed for %s, attempting refund anyway: %v", id, err)
	} else if !cancellable {
		return nil, s.alreadyFinalized(ctx, id)
	}

	sender, err := s.directory.GetUser(ctx, senderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sender: %w", err)
	}
	wallet, ok := sender.WalletFor(transfer.Chain)
	if !ok {
		return nil, fmt.Errorf("%w: chain %s", ErrWalletNotConfigured, transfer.Chain)
	}

	refund, err := s.escrow.RefundTransfer(ctx, transfer.EscrowTransferID, wallet)
	if err != nil {
		log.Printf("CancelTransfer: on-chain refund failed for transfer %s (escrow id %s): %v", id, transfer.EscrowTransferID, err)
		return nil, fmt.Errorf("failed to refund escrow transfer: %w", err)
	}

	update := store.TerminalUpdate{
		Status:                domain.StatusCancelled,
		EscrowStatus:          domain.EscrowRefunded,
		RefundTransactionHash: &refund.TxHash,
	}
	if err := s.repo.FinalizeTransfer(ctx, id, update); err != nil {
		if errors.Is(err, store.ErrStaleTransfer) {
			return nil, s.alreadyFinalized(ctx, id)
		}
		return nil, err
	}

	updated, err := s.repo.GetTransferByID(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Printf("CancelTransfer: transfer %s cancelled by sender %s, tx %s", id, senderUserID, refund.TxHash)
	return updated, nil
}

// SyncTransferStatus reconciles one record against the contract's status.
// The chain is the source of truth: on divergence the projection is
// overwritten, never the other way around. Safe to call repeatedly.
func (s *Service) SyncTransferStatus(ctx context.Context, id uuid.UUID) (*domain.PendingTransfer, error) {
	transfer, err := s.repo.GetTransferByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !transfer.IsRegistered() {
		return transfer, nil
	}

	status, err := s.escrow.GetStatus(ctx, transfer.EscrowTransferID)
	if err != nil {
		return nil, fmt.Errorf("failed to read escrow status: %w", err)
	}
	if status == nil {
		// The contract does not know this id. Leave the projection alone and
		// let an operator investigate rather than guessing a state.
		log.Printf("SyncTransferStatus: escrow id %s unknown to contract for transfer %s", transfer.EscrowTransferID, id)
		return transfer, nil
	}

	escrowStatus := domain.EscrowStatus(*status)
	mapped, err := domain.StatusFromEscrow(escrowStatus)
	if err != nil {
		return nil, err
	}
	if mapped == transfer.Status && escrowStatus == transfer.EscrowStatus {
		return transfer, nil
	}

	log.Printf("SyncTransferStatus: transfer %s diverged (stored %s, chain %s), overwriting", id, transfer.Status, mapped)
	if err := s.repo.OverwriteStatus(ctx, id, mapped, escrowStatus); err != nil {
		return nil, err
	}
	return s.repo.GetTransferByID(ctx, id)
}

// ExpirePendingTransfers refunds every pending transfer whose expiry has
// passed. Each record is processed in isolation; one failure is logged and
// skipped so the rest of the batch still completes. Records finalized between
// the scan and the refund are not counted. Returns the number of transfers
// moved to expired.
func (s *Service) ExpirePendingTransfers(ctx context.Context) (int, error) {
	now := s.now().UTC()
	expired, err := s.repo.ListExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired transfers: %w", err)
	}

	processed := 0
	for i := range expired {
		transfer := &expired[i]
		if err := s.expireOne(ctx, transfer); err != nil {
			if errors.Is(err, store.ErrStaleTransfer) {
				// Claimed or cancelled between the list and the refund. The
				// chain rejected or will reject the refund; nothing to undo.
				log.Printf("ExpirePendingTransfers: transfer %s finalized elsewhere during the sweep", transfer.ID)
			} else {
				log.Printf("ExpirePendingTransfers: transfer %s skipped: %v", transfer.ID, err)
			}
			continue
		}
		processed++
	}
	if len(expired) > 0 {
		log.Printf("ExpirePendingTransfers: processed %d of %d expired transfers", processed, len(expired))
	}
	return processed, nil
}

func (s *Service) expireOne(ctx context.Context, transfer *domain.PendingTransfer) error {
	if !transfer.IsRegistered() {
		return ErrNotRegistered
	}

	sender, err := s.directory.GetUser(ctx, transfer.SenderUserID)
	if err != nil {
		return fmt.Errorf("failed to resolve sender: %w", err)
	}
	wallet, ok := sender.WalletFor(transfer.Chain)
	if !ok {
		return fmt.Errorf("%w: chain %s", ErrWalletNotConfigured, transfer.Chain)
	}

	refund, err := s.escrow.RefundTransfer(ctx, transfer.EscrowTransferID, wallet)
	if err != nil {
		return fmt.Errorf("failed to refund expired transfer: %w", err)
	}

	update := store.TerminalUpdate{
		Status:                domain.StatusExpired,
		EscrowStatus:          domain.EscrowExpired,
		RefundTransactionHash: &refund.TxHash,
	}
	if err := s.repo.FinalizeTransfer(ctx, transfer.ID, update); err != nil {
		return err
	}

	s.notify(ctx, domain.EventTransferExpired, transfer, &refund.TxHash)
	return nil
}

// SendExpiryReminders publishes an expiring-soon notification for every
// pending transfer inside the reminder window. Records reminded within the
// window are excluded by the repository query, so re-runs do not re-send.
// Returns the number of reminders sent.
func (s *Service) SendExpiryReminders(ctx context.Context) (int, error) {
	now := s.now().UTC()
	expiring, err := s.repo.ListExpiringWithin(ctx, now, s.reminderWindow)
	if err != nil {
		return 0, fmt.Errorf("failed to list expiring transfers: %w", err)
	}

	sent := 0
	for i := range expiring {
		transfer := &expiring[i]
		s.notify(ctx, domain.EventTransferExpiring, transfer, nil)
		if err := s.repo.MarkReminderSent(ctx, transfer.ID, now); err != nil {
			log.Printf("SendExpiryReminders: failed to mark reminder for %s: %v", transfer.ID, err)
			continue
		}
		sent++
	}
	if len(expiring) > 0 {
		log.Printf("SendExpiryReminders: sent %d of %d reminders", sent, len(expiring))
	}
	return sent, nil
}

// AutoClaimForNewUser claims every pending transfer addressed to the user's
// email. Called when a user finishes onboarding with a configured wallet.
// Failures on individual transfers are logged and skipped; returns the number
// of transfers claimed.
func (s *Service) AutoClaimForNewUser(ctx context.Context, userID string) (int, error) {
	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve user: %w", err)
	}

	pending, err := s.repo.ListByRecipientEmail(ctx, domain.NormalizeEmail(user.Email), domain.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending transfers: %w", err)
	}

	claimed := 0
	for i := range pending {
		if _, err := s.ClaimTransfer(ctx, pending[i].ID, userID); err != nil {
			log.Printf("AutoClaimForNewUser: transfer %s not claimed for user %s: %v", pending[i].ID, userID, err)
			continue
		}
		claimed++
	}
	if len(pending) > 0 {
		log.Printf("AutoClaimForNewUser: claimed %d of %d transfers for user %s", claimed, len(pending), userID)
	}
	return claimed, nil
}

// ListForRecipient returns every transfer addressed to an email, terminal
// records included; each summary carries its status. Finalized records stay
// listed as an audit trail.
func (s *Service) ListForRecipient(ctx context.Context, email string) ([]domain.PendingTransferSummary, error) {
	transfers, err := s.repo.ListByRecipientEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return s.summarize(transfers), nil
}

// ListSentPending returns the sender's own still-pending transfers.
func (s *Service) ListSentPending(ctx context.Context, senderUserID string) ([]domain.PendingTransferSummary, error) {
	transfers, err := s.repo.ListBySender(ctx, senderUserID, domain.StatusPending)
	if err != nil {
		return nil, err
	}
	return s.summarize(transfers), nil
}

// GetTransfer returns one transfer by id.
func (s *Service) GetTransfer(ctx context.Context, id uuid.UUID) (*domain.PendingTransfer, error) {
	return s.repo.GetTransferByID(ctx, id)
}

func (s *Service) summarize(transfers []domain.PendingTransfer) []domain.PendingTransferSummary {
	now := s.now()
	summaries := make([]domain.PendingTransferSummary, 0, len(transfers))
	for i := range transfers {
		summaries = append(summaries, transfers[i].Summarize(now))
	}
	return summaries
}

// alreadyFinalized re-reads the record and builds the terminal-state error
// with the freshest status available.
func (s *Service) alreadyFinalized(ctx context.Context, id uuid.UUID) error {
	if synced, err := s.SyncTransferStatus(ctx, id); err == nil {
		return &AlreadyFinalizedError{Status: synced.Status}
	}
	if current, err := s.repo.GetTransferByID(ctx, id); err == nil {
		return &AlreadyFinalizedError{Status: current.Status}
	}
	return &AlreadyFinalizedError{Status: domain.StatusPending}
}

// notify publishes one notification event. Best-effort: errors are logged,
// never propagated.
func (s *Service) notify(ctx context.Context, routingKey string, t *domain.PendingTransfer, refundTxHash *string) {
	event := domain.EscrowNotificationEvent{
		TransferID:     t.ID,
		RecipientEmail: t.RecipientEmail,
		SenderEmail:    t.SenderEmail,
		Amount:         t.Amount,
		Token:          t.Token,
		Chain:          t.Chain,
		ExpiresAt:      t.ExpiresAt,
		OccurredAt:     s.now().UTC(),
	}
	if t.SenderName != nil {
		event.SenderName = *t.SenderName
	}
	if t.Message != nil {
		event.Message = *t.Message
	}
	if t.ClaimTransactionHash != nil {
		event.ClaimTxHash = *t.ClaimTransactionHash
	}
	if refundTxHash != nil {
		event.RefundTxHash = *refundTxHash
	}
	if err := s.producer.PublishNotification(ctx, routingKey, event); err != nil {
		log.Printf("notify: failed to publish %s for transfer %s: %v", routingKey, t.ID, err)
	}
}
