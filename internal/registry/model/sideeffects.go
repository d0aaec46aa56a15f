package model

import "time"

// PollMessageType classifies poll messages.
type PollMessageType string

const (
	// PollTransferRequested notifies the losing registrar of a new request.
	PollTransferRequested PollMessageType = "transfer-requested"
	// PollTransferResolved notifies either party of a transfer outcome.
	PollTransferResolved PollMessageType = "transfer-resolved"
)

// PollMessage is a registrar-visible notification record. Speculative poll
// messages are written at transfer request time with EventTime set to the
// automatic-approval deadline; they become visible without any further
// write once that instant passes.
type PollMessage struct {
	ID          string
	RegistrarID string
	// EventTime is the instant the message becomes visible to its registrar.
	EventTime time.Time
	Type      PollMessageType
	Message   string
	// ResourceKind and ResourceName identify the subject resource.
	ResourceKind Kind
	ResourceName string
	// TransferStatus carries the resolved status for transfer messages.
	TransferStatus TransferStatus
}

// BillingEventType classifies billing events.
type BillingEventType string

const (
	// BillingTransferFee charges the gaining registrar for a transfer.
	BillingTransferFee BillingEventType = "transfer-fee"
	// BillingTransferCredit credits a registrar after a voided transfer.
	BillingTransferCredit BillingEventType = "transfer-credit"
)

// BillingEvent is a billable side-effect record. Like poll messages,
// transfer billing events are written speculatively at request time, dated
// at the deadline.
type BillingEvent struct {
	ID          string
	RegistrarID string
	// EventTime is the instant the charge takes effect.
	EventTime time.Time
	Type      BillingEventType
	// AmountCents is the charge in minor currency units.
	AmountCents int64
	Description string
	// ResourceKind and ResourceName identify the subject resource.
	ResourceKind Kind
	ResourceName string
}
