package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys for escrow notification events published to the shared events
// exchange. The notification-service binds to `escrow.notification.*`, renders
// the matching template and sends the email. Delivery is at-most-once,
// best-effort: a failed publish is logged and never retried by this service.
const (
	EventRecipientInvited = "escrow.notification.invite"
	EventSenderConfirmed  = "escrow.notification.sender_confirmation"
	EventTransferClaimed  = "escrow.notification.claimed"
	EventTransferExpiring = "escrow.notification.expiring_soon"
	EventTransferExpired  = "escrow.notification.expired"
)

// EscrowNotificationEvent is the payload for every escrow.notification.* key.
// One shape keeps the notification-service consumer bindings simple; fields
// that do not apply to a given key are zero-valued.
type EscrowNotificationEvent struct {
	TransferID      uuid.UUID `json:"transfer_id"`
	RecipientEmail  string    `json:"recipient_email"`
	SenderEmail     string    `json:"sender_email,omitempty"`
	SenderName      string    `json:"sender_name,omitempty"`
	Amount          string    `json:"amount"`
	Token           string    `json:"token"`
	Chain           string    `json:"chain"`
	Message         string    `json:"message,omitempty"`
	ClaimTxHash     string    `json:"claim_tx_hash,omitempty"`
	RefundTxHash    string    `json:"refund_tx_hash,omitempty"`
	ExpiresAt       time.Time `json:"expires_at"`
	OccurredAt      time.Time `json:"occurred_at"`
}
