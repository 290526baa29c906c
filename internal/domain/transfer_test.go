package domain

import (
	"errors"
	"testing"
	"time"
)

func TestStatusFromEscrow(t *testing.T) {
	cases := []struct {
		escrow EscrowStatus
		want   TransferStatus
	}{
		{EscrowPending, StatusPending},
		{EscrowClaimed, StatusClaimed},
		{EscrowRefunded, StatusCancelled},
		{EscrowExpired, StatusExpired},
	}
	for _, c := range cases {
		got, err := StatusFromEscrow(c.escrow)
		if err != nil {
			t.Fatalf("StatusFromEscrow(%q) returned error: %v", c.escrow, err)
		}
		if got != c.want {
			t.Errorf("StatusFromEscrow(%q) = %q, want %q", c.escrow, got, c.want)
		}
	}
}

func TestStatusFromEscrowRejectsUnknown(t *testing.T) {
	if _, err := StatusFromEscrow(EscrowStatus("minted")); err == nil {
		t.Fatal("expected error for unknown escrow status")
	}
}

func TestTerminalStatuses(t *testing.T) {
	if StatusPending.IsTerminal() {
		t.Error("pending must not be terminal")
	}
	for _, s := range []TransferStatus{StatusClaimed, StatusCancelled, StatusExpired} {
		if !s.IsTerminal() {
			t.Errorf("%q must be terminal", s)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Bob@Example.COM "); got != "bob@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}

func TestDaysRemaining(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if got := DaysRemaining(now.Add(7*24*time.Hour), now); got != 7 {
		t.Errorf("full week remaining = %d, want 7", got)
	}
	// A partial day still counts as one remaining day.
	if got := DaysRemaining(now.Add(3*time.Hour), now); got != 1 {
		t.Errorf("partial day remaining = %d, want 1", got)
	}
	if got := DaysRemaining(now.Add(-time.Minute), now); got != 0 {
		t.Errorf("past expiry = %d, want 0", got)
	}
}

func validCreateRequest() CreateTransferRequest {
	return CreateTransferRequest{
		RecipientEmail: "bob@example.com",
		SenderUserID:   "user_2abc",
		Amount:         "10.00",
		Token:          "cUSD",
		TokenAddress:   "0x874069Fa1Eb16D44d622F2e0Ca25eeA172369bC1",
		Chain:          "celo-sepolia",
		Decimals:       18,
	}
}

func TestCreateTransferRequestValidate(t *testing.T) {
	req := validCreateRequest()
	if err := req.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	mutations := map[string]func(*CreateTransferRequest){
		"bad email":       func(r *CreateTransferRequest) { r.RecipientEmail = "not-an-email" },
		"empty sender":    func(r *CreateTransferRequest) { r.SenderUserID = "" },
		"zero amount":     func(r *CreateTransferRequest) { r.Amount = "0.00" },
		"negative amount": func(r *CreateTransferRequest) { r.Amount = "-5" },
		"float junk":      func(r *CreateTransferRequest) { r.Amount = "1e9" },
		"unknown chain":   func(r *CreateTransferRequest) { r.Chain = "dogechain" },
		"zero decimals":   func(r *CreateTransferRequest) { r.Decimals = 0 },
	}
	for name, mutate := range mutations {
		r := validCreateRequest()
		mutate(&r)
		err := r.Validate()
		if err == nil {
			t.Errorf("%s: expected validation error", name)
			continue
		}
		if !errors.Is(err, ErrValidation) {
			t.Errorf("%s: error %v is not ErrValidation", name, err)
		}
	}
}

func TestSummarize(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	name := "Alice"
	tr := PendingTransfer{
		RecipientEmail: "bob@example.com",
		SenderName:     &name,
		SenderEmail:    "alice@example.com",
		Amount:         "10.00",
		Token:          "cUSD",
		Chain:          "celo-sepolia",
		Status:         StatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(7 * 24 * time.Hour),
	}

	sum := tr.Summarize(now)
	if sum.SenderName != "Alice" {
		t.Errorf("SenderName = %q", sum.SenderName)
	}
	if sum.DaysRemaining != 7 {
		t.Errorf("DaysRemaining = %d, want 7", sum.DaysRemaining)
	}
}
