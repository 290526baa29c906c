package escrowclient

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		amount   string
		decimals int
		want     string
	}{
		{"10.00", 18, "10000000000000000000"},
		{"0.5", 6, "500000"},
		{"1", 2, "100"},
		{"123.456", 3, "123456"},
	}
	for _, c := range cases {
		got, err := ParseAmount(c.amount, c.decimals)
		if err != nil {
			t.Fatalf("ParseAmount(%q, %d): %v", c.amount, c.decimals, err)
		}
		if got.String() != c.want {
			t.Errorf("ParseAmount(%q, %d) = %s, want %s", c.amount, c.decimals, got, c.want)
		}
	}
}

func TestParseAmountRejectsExcessPrecision(t *testing.T) {
	if _, err := ParseAmount("1.234", 2); err == nil {
		t.Fatal("expected error for more fractional digits than token decimals")
	}
	if _, err := ParseAmount("abc", 18); err == nil {
		t.Fatal("expected error for non-numeric amount")
	}
}

func TestRecipientCommitmentIsDeterministic(t *testing.T) {
	a, _ := RecipientCommitment("bob@example.com")
	b, _ := RecipientCommitment("bob@example.com")
	c, _ := RecipientCommitment("carol@example.com")
	if a != b {
		t.Error("same email produced different commitments")
	}
	if a == c {
		t.Error("different emails produced the same commitment")
	}
}

func createFakeTransfer(t *testing.T, f *FakeClient, email string, expiresAt time.Time) CreateTransferResponse {
	t.Helper()
	resp, err := f.CreateTransfer(context.Background(), CreateTransferRequest{
		RecipientEmail: email,
		Amount:         "10.00",
		Decimals:       18,
		TokenAddress:   "0x874069Fa1Eb16D44d622F2e0Ca25eeA172369bC1",
		Chain:          "celo-sepolia",
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}
	return resp
}

func TestFakeClientClaimEnforcesCommitment(t *testing.T) {
	f := NewFakeClient()
	ctx := context.Background()
	resp := createFakeTransfer(t, f, "bob@example.com", time.Now().Add(time.Hour))

	if _, err := f.ClaimTransfer(ctx, resp.EscrowTransferID, "0x1111111111111111111111111111111111111111", "mallory@example.com"); err == nil {
		t.Fatal("claim with wrong email preimage must fail")
	}

	claim, err := f.ClaimTransfer(ctx, resp.EscrowTransferID, "0x1111111111111111111111111111111111111111", "bob@example.com")
	if err != nil {
		t.Fatalf("claim with correct preimage: %v", err)
	}
	if claim.TxHash == "" {
		t.Error("claim tx hash is empty")
	}
}

func TestFakeClientSingleTerminalTransition(t *testing.T) {
	f := NewFakeClient()
	ctx := context.Background()
	resp := createFakeTransfer(t, f, "bob@example.com", time.Now().Add(time.Hour))

	if _, err := f.ClaimTransfer(ctx, resp.EscrowTransferID, "0x1111111111111111111111111111111111111111", "bob@example.com"); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	// Both a second claim and a refund must now fail with an onchain error.
	if _, err := f.ClaimTransfer(ctx, resp.EscrowTransferID, "0x2222222222222222222222222222222222222222", "bob@example.com"); !errors.Is(err, ErrOnchain) {
		t.Fatalf("second claim: got %v, want ErrOnchain", err)
	}
	if _, err := f.RefundTransfer(ctx, resp.EscrowTransferID, "0x3333333333333333333333333333333333333333"); !errors.Is(err, ErrOnchain) {
		t.Fatalf("refund after claim: got %v, want ErrOnchain", err)
	}

	status, err := f.GetStatus(ctx, resp.EscrowTransferID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status == nil || *status != StatusClaimed {
		t.Errorf("status = %v, want claimed", status)
	}
}

func TestFakeClientRefundStatusDependsOnExpiry(t *testing.T) {
	f := NewFakeClient()
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f.Now = func() time.Time { return now }

	early := createFakeTransfer(t, f, "a@example.com", now.Add(time.Hour))
	late := createFakeTransfer(t, f, "b@example.com", now.Add(-time.Hour))

	if _, err := f.RefundTransfer(ctx, early.EscrowTransferID, "0x1111111111111111111111111111111111111111"); err != nil {
		t.Fatalf("refund before expiry: %v", err)
	}
	if _, err := f.RefundTransfer(ctx, late.EscrowTransferID, "0x1111111111111111111111111111111111111111"); err != nil {
		t.Fatalf("refund after expiry: %v", err)
	}

	s1, _ := f.GetStatus(ctx, early.EscrowTransferID)
	s2, _ := f.GetStatus(ctx, late.EscrowTransferID)
	if s1 == nil || *s1 != StatusRefunded {
		t.Errorf("pre-expiry refund status = %v, want refunded", s1)
	}
	if s2 == nil || *s2 != StatusExpired {
		t.Errorf("post-expiry refund status = %v, want expired", s2)
	}
}

func TestFakeClientUnknownIDStatusIsNil(t *testing.T) {
	f := NewFakeClient()
	status, err := f.GetStatus(context.Background(), "999")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status != nil {
		t.Errorf("unknown id status = %v, want nil", status)
	}

	cancellable, err := f.IsCancellable(context.Background(), "999")
	if err != nil {
		t.Fatalf("IsCancellable: %v", err)
	}
	if cancellable {
		t.Error("unknown id must not be cancellable")
	}
}
