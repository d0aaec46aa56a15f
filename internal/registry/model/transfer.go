package model

import "time"

// TransferStatus describes the state of a registrar-to-registrar transfer.
type TransferStatus int

const (
	// TransferNone indicates no transfer has ever been requested.
	TransferNone TransferStatus = iota
	// TransferPending indicates an open transfer awaiting resolution.
	TransferPending
	// TransferClientApproved indicates the losing registrar approved.
	TransferClientApproved
	// TransferClientRejected indicates the losing registrar rejected.
	TransferClientRejected
	// TransferClientCancelled indicates the gaining registrar withdrew.
	TransferClientCancelled
	// TransferServerApproved indicates automatic approval at the deadline.
	TransferServerApproved
	// TransferServerCancelled indicates the registry voided the transfer.
	TransferServerCancelled
)

var transferStatusNames = map[TransferStatus]string{
	TransferNone:            "NONE",
	TransferPending:         "PENDING",
	TransferClientApproved:  "CLIENT_APPROVED",
	TransferClientRejected:  "CLIENT_REJECTED",
	TransferClientCancelled: "CLIENT_CANCELLED",
	TransferServerApproved:  "SERVER_APPROVED",
	TransferServerCancelled: "SERVER_CANCELLED",
}

// String returns the protocol name of the status.
func (s TransferStatus) String() string {
	if name, ok := transferStatusNames[s]; ok {
		return name
	}
	return "NONE"
}

// IsTerminal reports whether the status is a resolved end state.
func (s TransferStatus) IsTerminal() bool {
	switch s {
	case TransferClientApproved, TransferClientRejected, TransferClientCancelled,
		TransferServerApproved, TransferServerCancelled:
		return true
	}
	return false
}

// TransferData captures the transfer negotiation state stored on domains
// and contacts.
type TransferData struct {
	Status TransferStatus
	// GainingRegistrar requested the transfer.
	GainingRegistrar string
	// LosingRegistrar sponsored the resource when the request was made.
	LosingRegistrar string
	// RequestTime is the instant the pending transfer was opened.
	RequestTime time.Time
	// PendingExpirationTime is the automatic-approval deadline.
	PendingExpirationTime time.Time
	// ServerApproveEntityKeys references the speculative poll/billing
	// records written at request time and dated at the deadline. Non-empty
	// iff Status is PENDING.
	ServerApproveEntityKeys []string
}

// Clone returns an independent copy of the transfer data.
func (t TransferData) Clone() TransferData {
	out := t
	if t.ServerApproveEntityKeys != nil {
		out.ServerApproveEntityKeys = append([]string(nil), t.ServerApproveEntityKeys...)
	}
	return out
}
