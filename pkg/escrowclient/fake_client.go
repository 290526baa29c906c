package escrowclient

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// FakeClient is an in-memory stand-in for the escrow contract, used in local
// development and tests. It enforces the contract's own rules: a commitment
// check on claim and at most one successful terminal transition per entry, so
// racing callers observe the same outcomes they would on-chain.
type FakeClient struct {
	mu      sync.Mutex
	nextID  int64
	entries map[string]*fakeEntry
	Now     func() time.Time
}

type fakeEntry struct {
	status        Status
	recipientHash string
	expiresAt     time.Time
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		nextID:  1,
		entries: make(map[string]*fakeEntry),
		Now:     time.Now,
	}
}

func (f *FakeClient) CreateTransfer(_ context.Context, req CreateTransferRequest) (CreateTransferResponse, error) {
	if _, err := ParseAmount(req.Amount, req.Decimals); err != nil {
		return CreateTransferResponse{}, err
	}
	commitment, _ := RecipientCommitment(req.RecipientEmail)

	f.mu.Lock()
	defer f.mu.Unlock()

	id := strconv.FormatInt(f.nextID, 10)
	f.nextID++
	f.entries[id] = &fakeEntry{
		status:        StatusPending,
		recipientHash: commitment.Hex(),
		expiresAt:     req.ExpiresAt,
	}

	txHash := crypto.Keccak256Hash([]byte("create:" + id)).Hex()
	return CreateTransferResponse{
		EscrowTransferID: id,
		TxHash:           txHash,
		RecipientHash:    commitment.Hex(),
	}, nil
}

func (f *FakeClient) ClaimTransfer(_ context.Context, escrowTransferID, recipientWallet, recipientEmail string) (ClaimTransferResponse, error) {
	if recipientWallet == "" {
		return ClaimTransferResponse{}, fmt.Errorf("missing recipient wallet")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[escrowTransferID]
	if !ok {
		return ClaimTransferResponse{}, fmt.Errorf("%w: unknown transfer %s", ErrOnchain, escrowTransferID)
	}
	if entry.status != StatusPending {
		return ClaimTransferResponse{}, fmt.Errorf("%w: transfer %s is %s", ErrOnchain, escrowTransferID, entry.status)
	}
	commitment, _ := RecipientCommitment(recipientEmail)
	if commitment.Hex() != entry.recipientHash {
		return ClaimTransferResponse{}, fmt.Errorf("%w: recipient commitment mismatch", ErrOnchain)
	}

	entry.status = StatusClaimed
	return ClaimTransferResponse{
		TxHash: crypto.Keccak256Hash([]byte("claim:" + escrowTransferID)).Hex(),
	}, nil
}

func (f *FakeClient) RefundTransfer(_ context.Context, escrowTransferID, senderWallet string) (RefundTransferResponse, error) {
	if senderWallet == "" {
		return RefundTransferResponse{}, fmt.Errorf("missing sender wallet")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[escrowTransferID]
	if !ok {
		return RefundTransferResponse{}, fmt.Errorf("%w: unknown transfer %s", ErrOnchain, escrowTransferID)
	}
	if entry.status != StatusPending {
		return RefundTransferResponse{}, fmt.Errorf("%w: transfer %s is %s", ErrOnchain, escrowTransferID, entry.status)
	}

	// Refunds after the deadline read back as expired, matching the
	// contract's own distinction between a cancel and an expiry sweep.
	if f.Now().After(entry.expiresAt) {
		entry.status = StatusExpired
	} else {
		entry.status = StatusRefunded
	}
	return RefundTransferResponse{
		TxHash: crypto.Keccak256Hash([]byte("refund:" + escrowTransferID)).Hex(),
	}, nil
}

func (f *FakeClient) GetStatus(_ context.Context, escrowTransferID string) (*Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[escrowTransferID]
	if !ok {
		return nil, nil
	}
	status := entry.status
	return &status, nil
}

func (f *FakeClient) IsCancellable(_ context.Context, escrowTransferID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[escrowTransferID]
	if !ok {
		return false, nil
	}
	return entry.status == StatusPending, nil
}
