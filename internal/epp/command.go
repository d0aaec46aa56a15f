package epp

import (
	"strings"
	"time"

	apperrors "github.com/registrolabs/corenic/internal/platform/errors"
)

// Op identifies the command operation.
type Op string

const (
	// OpCreate provisions a new resource under the acting registrar.
	OpCreate Op = "create"
	// OpInfo returns the state of a resource at a point in time.
	OpInfo Op = "info"
	// OpDelete soft-deletes a resource.
	OpDelete Op = "delete"
	// OpUpdate mutates a resource; for hosts this includes renames.
	OpUpdate Op = "update"
	// OpTransferRequest opens a registrar-to-registrar transfer.
	OpTransferRequest Op = "transfer-request"
	// OpTransferApprove lets the losing registrar approve a pending transfer.
	OpTransferApprove Op = "transfer-approve"
	// OpTransferReject lets the losing registrar reject a pending transfer.
	OpTransferReject Op = "transfer-reject"
	// OpTransferCancel lets the gaining registrar withdraw its request.
	OpTransferCancel Op = "transfer-cancel"
	// OpTransferQuery returns the current transfer state.
	OpTransferQuery Op = "transfer-query"
)

// ResourceType identifies which resource variant a command addresses.
type ResourceType string

const (
	// ResourceDomain addresses domain resources.
	ResourceDomain ResourceType = "domain"
	// ResourceContact addresses contact resources.
	ResourceContact ResourceType = "contact"
	// ResourceHost addresses host resources.
	ResourceHost ResourceType = "host"
)

// CreateData carries the resource-specific inputs of a create command.
type CreateData struct {
	// Registrant is the registrant contact id (domains only).
	Registrant string `json:"registrant,omitempty"`
	// ContactIDs lists associated contact ids (domains only).
	ContactIDs []string `json:"contactIds,omitempty"`
	// HostNames lists delegated host names (domains only).
	HostNames []string `json:"hostNames,omitempty"`
	// Addresses lists glue addresses (hosts only).
	Addresses []string `json:"addresses,omitempty"`
	// AuthInfo is the authorization password stored on the new resource.
	AuthInfo string `json:"authInfo,omitempty"`
}

// UpdateData carries the inputs of an update command.
type UpdateData struct {
	// NewName renames a host; the foreign key index is republished.
	NewName string `json:"newName,omitempty"`
}

// Command is the canonical decoded command envelope.
type Command struct {
	Op       Op           `json:"op"`
	Resource ResourceType `json:"resource"`
	// Target is the external name the command addresses: a fully qualified
	// domain name, a contact id, or a host name.
	Target string `json:"target"`
	// RegistrarID identifies the acting registrar.
	RegistrarID string `json:"registrarId"`
	// ClientTRID is the caller-supplied transaction id; optional and opaque.
	ClientTRID string `json:"clientTrid,omitempty"`
	// Superuser marks a privileged invocation that bypasses role checks.
	Superuser bool `json:"superuser,omitempty"`
	// DryRun executes the command without persisting any writes.
	DryRun bool `json:"dryRun,omitempty"`
	// AuthInfo carries authorization material where the operation needs it.
	AuthInfo string `json:"authInfo,omitempty"`
	// AsOf optionally pins the read instant of pure queries.
	AsOf *time.Time `json:"asOf,omitempty"`

	Create *CreateData `json:"create,omitempty"`
	Update *UpdateData `json:"update,omitempty"`
}

var validOps = map[Op]bool{
	OpCreate:          true,
	OpInfo:            true,
	OpDelete:          true,
	OpUpdate:          true,
	OpTransferRequest: true,
	OpTransferApprove: true,
	OpTransferReject:  true,
	OpTransferCancel:  true,
	OpTransferQuery:   true,
}

var validResources = map[ResourceType]bool{
	ResourceDomain:  true,
	ResourceContact: true,
	ResourceHost:    true,
}

// Validate checks the envelope before dispatch. Resource-specific payload
// validation belongs to the individual flows.
func (c Command) Validate() error {
	if !validOps[c.Op] {
		return apperrors.New(apperrors.CodeCommandUse, "unknown command operation")
	}
	if !validResources[c.Resource] {
		return apperrors.New(apperrors.CodeCommandUse, "unknown resource type")
	}
	if strings.TrimSpace(c.Target) == "" {
		return apperrors.New(apperrors.CodeCommandUse, "command target is required")
	}
	if strings.TrimSpace(c.RegistrarID) == "" {
		return apperrors.New(apperrors.CodeCommandUse, "acting registrar is required")
	}
	if c.Resource == ResourceHost && transferOp(c.Op) {
		return apperrors.New(apperrors.CodeCommandUse, "hosts are not transferable")
	}
	return nil
}

func transferOp(op Op) bool {
	switch op {
	case OpTransferRequest, OpTransferApprove, OpTransferReject, OpTransferCancel, OpTransferQuery:
		return true
	}
	return false
}
