package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/escrow-service/internal/domain"
)

// MemoryRepository is an in-memory Repository. It backs the service tests and
// local development; it mirrors the PostgreSQL implementation's semantics,
// including the conditional terminal-state guard.
type MemoryRepository struct {
	mu        sync.RWMutex
	transfers map[uuid.UUID]domain.PendingTransfer
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		transfers: make(map[uuid.UUID]domain.PendingTransfer),
	}
}

func (m *MemoryRepository) CreateTransfer(_ context.Context, t *domain.PendingTransfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers[t.ID] = *t
	return nil
}

func (m *MemoryRepository) GetTransferByID(_ context.Context, id uuid.UUID) (*domain.PendingTransfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transfers[id]
	if !ok {
		return nil, ErrTransferNotFound
	}
	return &t, nil
}

func matchesStatus(t domain.PendingTransfer, statuses []domain.TransferStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if t.Status == s {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) list(filter func(domain.PendingTransfer) bool) []domain.PendingTransfer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.PendingTransfer
	for _, t := range m.transfers {
		if filter(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MemoryRepository) ListByRecipientEmail(_ context.Context, email string, statuses ...domain.TransferStatus) ([]domain.PendingTransfer, error) {
	normalized := domain.NormalizeEmail(email)
	return m.list(func(t domain.PendingTransfer) bool {
		return t.RecipientEmail == normalized && matchesStatus(t, statuses)
	}), nil
}

func (m *MemoryRepository) ListBySender(_ context.Context, senderUserID string, statuses ...domain.TransferStatus) ([]domain.PendingTransfer, error) {
	return m.list(func(t domain.PendingTransfer) bool {
		return t.SenderUserID == senderUserID && matchesStatus(t, statuses)
	}), nil
}

func (m *MemoryRepository) ListExpired(_ context.Context, now time.Time) ([]domain.PendingTransfer, error) {
	return m.list(func(t domain.PendingTransfer) bool {
		return t.Status == domain.StatusPending && t.ExpiresAt.Before(now)
	}), nil
}

func (m *MemoryRepository) ListExpiringWithin(_ context.Context, now time.Time, window time.Duration) ([]domain.PendingTransfer, error) {
	return m.list(func(t domain.PendingTransfer) bool {
		if t.Status != domain.StatusPending {
			return false
		}
		if !t.ExpiresAt.After(now) || t.ExpiresAt.After(now.Add(window)) {
			return false
		}
		return t.LastReminderSentAt == nil || t.LastReminderSentAt.Before(now.Add(-window))
	}), nil
}

func (m *MemoryRepository) FinalizeTransfer(_ context.Context, id uuid.UUID, update TerminalUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[id]
	if !ok {
		return ErrTransferNotFound
	}
	if t.Status != domain.StatusPending {
		return ErrStaleTransfer
	}
	t.Status = update.Status
	t.EscrowStatus = update.EscrowStatus
	if update.ClaimedByUserID != nil {
		t.ClaimedByUserID = update.ClaimedByUserID
	}
	if update.ClaimedAt != nil {
		t.ClaimedAt = update.ClaimedAt
	}
	if update.ClaimTransactionHash != nil {
		t.ClaimTransactionHash = update.ClaimTransactionHash
	}
	if update.RefundTransactionHash != nil {
		t.RefundTransactionHash = update.RefundTransactionHash
	}
	if update.RecipientWallet != nil {
		t.RecipientWallet = update.RecipientWallet
	}
	m.transfers[id] = t
	return nil
}

func (m *MemoryRepository) OverwriteStatus(_ context.Context, id uuid.UUID, status domain.TransferStatus, escrowStatus domain.EscrowStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[id]
	if !ok {
		return ErrTransferNotFound
	}
	t.Status = status
	t.EscrowStatus = escrowStatus
	m.transfers[id] = t
	return nil
}

func (m *MemoryRepository) MarkReminderSent(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[id]
	if !ok {
		return ErrTransferNotFound
	}
	t.LastReminderSentAt = &at
	m.transfers[id] = t
	return nil
}
