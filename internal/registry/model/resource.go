package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/registrolabs/corenic/internal/platform/id"
)

// Kind identifies a resource variant.
type Kind int

const (
	// KindUnspecified represents an invalid resource kind value.
	KindUnspecified Kind = iota
	// KindDomain is a registered domain name.
	KindDomain
	// KindContact is a registrant or administrative contact.
	KindContact
	// KindHost is a name server host.
	KindHost
)

var kindNames = map[Kind]string{
	KindDomain:  "domain",
	KindContact: "contact",
	KindHost:    "host",
}

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unspecified"
}

// repoIDSuffix is the fixed suffix of every repository id minted by this
// registry, giving ids their token-suffix shape.
const repoIDSuffix = "CORENIC"

// NewRepoID mints a globally unique repository id in token-suffix format.
func NewRepoID() string {
	token := strings.ToUpper(id.MustNewID())[:16]
	return fmt.Sprintf("%s-%s", token, repoIDSuffix)
}

// RevisionPointer records that a committed snapshot exists for a date. The
// snapshot itself lives in the store, addressed by token.
type RevisionPointer struct {
	// Date is the UTC midnight of the day the snapshot closed.
	Date time.Time
	// Token addresses the stored snapshot.
	Token string
}

// Lifecycle holds the fields every resource variant shares.
type Lifecycle struct {
	// RepoID is the globally unique repository id in token-suffix format.
	RepoID string
	// Name is the external human-readable identifier: a fully qualified
	// domain name, a contact id, or a host name.
	Name string
	// SponsoringRegistrar currently owns the resource.
	SponsoringRegistrar string
	// CreatingRegistrar created the resource; immutable.
	CreatingRegistrar string
	// LastUpdatingRegistrar performed the most recent mutation, if any.
	LastUpdatingRegistrar string
	// CreationTime is set exactly once at the creating transaction's instant.
	CreationTime time.Time
	// DeletionTime is EndOfTime while active, a concrete instant once
	// deleted or scheduled for deletion.
	DeletionTime time.Time
	// LastUpdateTime is the entity group's write clock at the last commit
	// that touched this resource.
	LastUpdateTime time.Time
	// Statuses is the stored status set; empty means the implicit OK.
	Statuses StatusSet
	// Revisions points at historical committed snapshots, ordered by date
	// ascending, for point-in-time reconstruction.
	Revisions []RevisionPointer
}

// ActiveAt reports whether the resource exists at instant t:
// CreationTime <= t < DeletionTime.
func (l *Lifecycle) ActiveAt(t time.Time) bool {
	if l.CreationTime.IsZero() {
		return false
	}
	return !t.Before(l.CreationTime) && t.Before(l.DeletionTime)
}

// Life exposes the shared lifecycle fields to callers holding a Resource.
func (l *Lifecycle) Life() *Lifecycle {
	return l
}

func (l *Lifecycle) cloneInto(dst *Lifecycle) {
	*dst = *l
	dst.Statuses = l.Statuses.Clone()
	if l.Revisions != nil {
		dst.Revisions = append([]RevisionPointer(nil), l.Revisions...)
	}
}

// Resource is the closed union over the registry's three resource variants.
type Resource interface {
	// ResourceKind identifies the variant.
	ResourceKind() Kind
	// Life exposes the shared lifecycle fields.
	Life() *Lifecycle
	// Transfer exposes transfer negotiation state, or nil for variants
	// that do not support transfers.
	Transfer() *TransferData
	// Clone returns a deep copy safe for read-time mutation.
	Clone() Resource
}

// Domain is a registered domain name.
type Domain struct {
	Lifecycle
	// Registrant is the registrant contact id.
	Registrant string
	// ContactIDs lists associated contact ids.
	ContactIDs []string
	// HostNames lists delegated name server host names.
	HostNames []string
	// AuthInfo is the transfer authorization password.
	AuthInfo string
	// TransferData is the transfer negotiation state.
	TransferData TransferData
}

// ResourceKind identifies the variant.
func (d *Domain) ResourceKind() Kind { return KindDomain }

// Transfer exposes the domain's transfer negotiation state.
func (d *Domain) Transfer() *TransferData { return &d.TransferData }

// Clone returns a deep copy of the domain.
func (d *Domain) Clone() Resource {
	out := &Domain{
		Registrant:   d.Registrant,
		AuthInfo:     d.AuthInfo,
		TransferData: d.TransferData.Clone(),
	}
	d.Lifecycle.cloneInto(&out.Lifecycle)
	if d.ContactIDs != nil {
		out.ContactIDs = append([]string(nil), d.ContactIDs...)
	}
	if d.HostNames != nil {
		out.HostNames = append([]string(nil), d.HostNames...)
	}
	return out
}

// Contact is a registrant or administrative contact.
type Contact struct {
	Lifecycle
	// Email is the contact's notification address.
	Email string
	// AuthInfo is the transfer authorization password.
	AuthInfo string
	// TransferData is the transfer negotiation state.
	TransferData TransferData
}

// ResourceKind identifies the variant.
func (c *Contact) ResourceKind() Kind { return KindContact }

// Transfer exposes the contact's transfer negotiation state.
func (c *Contact) Transfer() *TransferData { return &c.TransferData }

// Clone returns a deep copy of the contact.
func (c *Contact) Clone() Resource {
	out := &Contact{
		Email:        c.Email,
		AuthInfo:     c.AuthInfo,
		TransferData: c.TransferData.Clone(),
	}
	c.Lifecycle.cloneInto(&out.Lifecycle)
	return out
}

// Host is a name server host. Hosts are not transferable; their sponsorship
// follows the superordinate domain.
type Host struct {
	Lifecycle
	// SuperordinateDomain is the in-registry parent domain name, if any.
	SuperordinateDomain string
	// Addresses lists glue addresses for in-bailiwick hosts.
	Addresses []string
}

// ResourceKind identifies the variant.
func (h *Host) ResourceKind() Kind { return KindHost }

// Transfer returns nil: hosts do not carry transfer state.
func (h *Host) Transfer() *TransferData { return nil }

// Clone returns a deep copy of the host.
func (h *Host) Clone() Resource {
	out := &Host{
		SuperordinateDomain: h.SuperordinateDomain,
	}
	h.Lifecycle.cloneInto(&out.Lifecycle)
	if h.Addresses != nil {
		out.Addresses = append([]string(nil), h.Addresses...)
	}
	return out
}
