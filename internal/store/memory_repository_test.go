package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/escrow-service/internal/domain"
)

func seedTransfer(t *testing.T, repo *MemoryRepository, status domain.TransferStatus, expiresAt time.Time) *domain.PendingTransfer {
	t.Helper()
	tr := &domain.PendingTransfer{
		ID:               uuid.New(),
		SenderUserID:     "user_sender",
		SenderEmail:      "alice@example.com",
		RecipientEmail:   "bob@example.com",
		Amount:           "10.00",
		Token:            "cUSD",
		TokenAddress:     "0xtoken",
		Chain:            "celo-sepolia",
		Decimals:         18,
		Status:           status,
		EscrowTransferID: "42",
		EscrowTxHash:     "0xabc",
		EscrowStatus:     domain.EscrowPending,
		RecipientHash:    "0xhash",
		CreatedAt:        time.Now().UTC(),
		ExpiresAt:        expiresAt,
	}
	if err := repo.CreateTransfer(context.Background(), tr); err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}
	return tr
}

func TestMemoryRepositoryGetMissing(t *testing.T) {
	repo := NewMemoryRepository()
	if _, err := repo.GetTransferByID(context.Background(), uuid.New()); !errors.Is(err, ErrTransferNotFound) {
		t.Fatalf("expected ErrTransferNotFound, got %v", err)
	}
}

func TestFinalizeTransferGuardsTerminalStates(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	tr := seedTransfer(t, repo, domain.StatusPending, time.Now().Add(time.Hour))

	hash := "0xclaim"
	update := TerminalUpdate{
		Status:               domain.StatusClaimed,
		EscrowStatus:         domain.EscrowClaimed,
		ClaimTransactionHash: &hash,
	}
	if err := repo.FinalizeTransfer(ctx, tr.ID, update); err != nil {
		t.Fatalf("first finalize: %v", err)
	}

	// A second terminal transition must be rejected, not applied.
	err := repo.FinalizeTransfer(ctx, tr.ID, TerminalUpdate{
		Status:       domain.StatusCancelled,
		EscrowStatus: domain.EscrowRefunded,
	})
	if !errors.Is(err, ErrStaleTransfer) {
		t.Fatalf("expected ErrStaleTransfer, got %v", err)
	}

	got, err := repo.GetTransferByID(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GetTransferByID: %v", err)
	}
	if got.Status != domain.StatusClaimed {
		t.Errorf("status = %q after rejected second finalize", got.Status)
	}
	if got.ClaimTransactionHash == nil || *got.ClaimTransactionHash != hash {
		t.Error("claim tx hash not persisted")
	}
}

func TestListExpired(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	expired := seedTransfer(t, repo, domain.StatusPending, now.Add(-time.Hour))
	seedTransfer(t, repo, domain.StatusPending, now.Add(time.Hour))
	seedTransfer(t, repo, domain.StatusClaimed, now.Add(-time.Hour))

	got, err := repo.ListExpired(ctx, now)
	if err != nil {
		t.Fatalf("ListExpired: %v", err)
	}
	if len(got) != 1 || got[0].ID != expired.ID {
		t.Fatalf("ListExpired returned %d records, want only the expired pending one", len(got))
	}
}

func TestListExpiringWithinSkipsRecentlyReminded(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now().UTC()
	window := 48 * time.Hour

	soon := seedTransfer(t, repo, domain.StatusPending, now.Add(24*time.Hour))
	seedTransfer(t, repo, domain.StatusPending, now.Add(96*time.Hour)) // outside window

	got, err := repo.ListExpiringWithin(ctx, now, window)
	if err != nil {
		t.Fatalf("ListExpiringWithin: %v", err)
	}
	if len(got) != 1 || got[0].ID != soon.ID {
		t.Fatalf("expected only the soon-expiring transfer, got %d records", len(got))
	}

	if err := repo.MarkReminderSent(ctx, soon.ID, now); err != nil {
		t.Fatalf("MarkReminderSent: %v", err)
	}
	got, err = repo.ListExpiringWithin(ctx, now, window)
	if err != nil {
		t.Fatalf("ListExpiringWithin after reminder: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("reminded transfer reappeared in the window, got %d records", len(got))
	}
}

func TestListByRecipientEmailNormalizes(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	seedTransfer(t, repo, domain.StatusPending, time.Now().Add(time.Hour))

	got, err := repo.ListByRecipientEmail(ctx, "  BOB@Example.com ")
	if err != nil {
		t.Fatalf("ListByRecipientEmail: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 transfer for case-insensitive lookup, got %d", len(got))
	}

	pendingOnly, err := repo.ListByRecipientEmail(ctx, "bob@example.com", domain.StatusClaimed)
	if err != nil {
		t.Fatalf("ListByRecipientEmail filtered: %v", err)
	}
	if len(pendingOnly) != 0 {
		t.Fatalf("status filter ignored, got %d records", len(pendingOnly))
	}
}
