// Package errors provides structured error handling for registry flows.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeNotFound indicates a referenced object or foreign key is absent
	// or expired at the query instant.
	CodeNotFound Code = "OBJECT_DOES_NOT_EXIST"
	// CodeAuthorization indicates the acting registrar lacks the role the
	// operation requires (sponsor, initiator, or counterparty).
	CodeAuthorization Code = "AUTHORIZATION_ERROR"
	// CodeStatusProhibitsOperation indicates a status flag blocks the
	// requested mutation.
	CodeStatusProhibitsOperation Code = "STATUS_PROHIBITS_OPERATION"
	// CodeAlreadyPendingTransfer indicates a transfer request arrived while
	// another transfer is already pending.
	CodeAlreadyPendingTransfer Code = "OBJECT_PENDING_TRANSFER"
	// CodeNoPendingTransfer indicates a transfer resolution arrived with no
	// pending transfer stored.
	CodeNoPendingTransfer Code = "OBJECT_NOT_PENDING_TRANSFER"
	// CodeAlreadyExists indicates a foreign key collision with a
	// currently-valid index entry.
	CodeAlreadyExists Code = "OBJECT_EXISTS"
	// CodeCommandUse indicates a malformed or unroutable command envelope.
	CodeCommandUse Code = "COMMAND_USE_ERROR"
	// CodeCommandFailed is the opaque generic failure surfaced for internal
	// errors and exhausted retries.
	CodeCommandFailed Code = "COMMAND_FAILED"
)

// EPP result codes, preserved bit-for-bit for protocol compatibility.
const (
	EPPSuccess                  = 1000
	EPPSuccessPending           = 1001
	EPPCommandUseError          = 2002
	EPPAuthorizationError       = 2201
	EPPObjectPendingTransfer    = 2300
	EPPObjectNotPendingTransfer = 2301
	EPPObjectExists             = 2302
	EPPObjectDoesNotExist       = 2303
	EPPStatusProhibitsOperation = 2304
	EPPCommandFailed            = 2400
)

// EPPCode maps domain codes to numeric EPP result codes.
func (c Code) EPPCode() int {
	switch c {
	case CodeNotFound:
		return EPPObjectDoesNotExist
	case CodeAuthorization:
		return EPPAuthorizationError
	case CodeStatusProhibitsOperation:
		return EPPStatusProhibitsOperation
	case CodeAlreadyPendingTransfer:
		return EPPObjectPendingTransfer
	case CodeNoPendingTransfer:
		return EPPObjectNotPendingTransfer
	case CodeAlreadyExists:
		return EPPObjectExists
	case CodeCommandUse:
		return EPPCommandUseError
	default:
		return EPPCommandFailed
	}
}
