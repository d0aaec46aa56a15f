// Package storage defines the persistence contracts of the registry core.
//
// All mutation happens inside a Transactor transaction: one transaction is
// one entity-group commit, applied atomically with a strictly increasing
// write instant. No cross-entity-group atomicity is provided or assumed.
package storage

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/registrolabs/corenic/internal/platform/errors"
	"github.com/registrolabs/corenic/internal/registry/model"
)

// ErrNotFound indicates a requested record is missing or expired at the
// query instant. Absence is a normal result, not a storage failure; flows
// decide how to surface it.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "object does not exist")

// ErrContention indicates the underlying store aborted the attempt because
// of write contention. The whole transaction attempt may be retried.
var ErrContention = errors.New("storage contention")

// ForeignKeyEntry maps an external human-readable name to the resource that
// currently owns it, bounded by a validity window. At most one entry per
// (kind, name) is valid at any instant.
type ForeignKeyEntry struct {
	Kind model.Kind
	Name string
	// RepoID is the owning resource's repository id.
	RepoID string
	// ValidUntil ends the entry's validity window; model.EndOfTime while
	// the owning resource keeps the name.
	ValidUntil time.Time
}

// ResourceStore reads and writes resource snapshots and their historical
// revisions.
type ResourceStore interface {
	// GetResource returns the current snapshot stored under repoID.
	GetResource(ctx context.Context, repoID string) (model.Resource, error)
	// PutResource persists the resource, stamps its LastUpdateTime with
	// the transaction instant, and records the day's revision snapshot.
	PutResource(ctx context.Context, res model.Resource) error
	// DeleteResource removes the stored snapshot. Reserved for retention
	// cleanup; flows soft-delete by setting DeletionTime instead.
	DeleteResource(ctx context.Context, repoID string) error
	// GetRevision loads a historical snapshot by revision token.
	GetRevision(ctx context.Context, repoID, token string) (model.Resource, error)
}

// ForeignKeyStore maintains the external-name index.
type ForeignKeyStore interface {
	// ResolveForeignKey returns the entry for (kind, name) if it is valid
	// at asOf. Callers separately confirm the resource itself is active.
	ResolveForeignKey(ctx context.Context, kind model.Kind, name string, asOf time.Time) (ForeignKeyEntry, error)
	// PublishForeignKey creates or overwrites the entry for the resource's
	// name when it is created or renamed.
	PublishForeignKey(ctx context.Context, entry ForeignKeyEntry) error
	// RetireForeignKey ends the entry's validity window at validUntil,
	// freeing the name for reassignment after that instant.
	RetireForeignKey(ctx context.Context, kind model.Kind, name string, validUntil time.Time) error
}

// PollMessageStore persists registrar notification records, including the
// speculative deadline-dated records of pending transfers.
type PollMessageStore interface {
	PutPollMessage(ctx context.Context, msg model.PollMessage) error
	GetPollMessage(ctx context.Context, id string) (model.PollMessage, error)
	DeletePollMessage(ctx context.Context, id string) error
	// ListPollMessages returns the messages visible to a registrar at asOf,
	// ordered by event time.
	ListPollMessages(ctx context.Context, registrarID string, asOf time.Time) ([]model.PollMessage, error)
}

// BillingStore persists billable side-effect records.
type BillingStore interface {
	PutBillingEvent(ctx context.Context, evt model.BillingEvent) error
	GetBillingEvent(ctx context.Context, id string) (model.BillingEvent, error)
	DeleteBillingEvent(ctx context.Context, id string) error
}

// ReferenceStore tracks which contacts and hosts each active domain
// references, so deletes can check references synchronously inside the
// same entity-group transaction.
type ReferenceStore interface {
	// SetDomainReferences replaces the reference rows of a domain.
	SetDomainReferences(ctx context.Context, domainRepoID string, contactIDs, hostNames []string) error
	// ClearDomainReferences removes all reference rows of a domain.
	ClearDomainReferences(ctx context.Context, domainRepoID string) error
	// CountReferences returns how many active domains reference the named
	// contact or host.
	CountReferences(ctx context.Context, kind model.Kind, name string) (int, error)
}

// Transaction is the view flows get inside one entity-group transaction.
// All reads observe the transaction-start snapshot; all writes commit
// atomically or not at all.
type Transaction interface {
	ResourceStore
	ForeignKeyStore
	PollMessageStore
	BillingStore
	ReferenceStore

	// Instant returns the single instant shared by every read and write in
	// this transaction.
	Instant() time.Time
}

// Transactor opens entity-group transactions.
type Transactor interface {
	// RunInTransaction executes fn inside one transaction. When persist is
	// true the transaction's writes commit atomically; when false, or when
	// fn returns an error, every write is discarded. Contention surfaces
	// as an error matching ErrContention.
	RunInTransaction(ctx context.Context, persist bool, fn func(tx Transaction) error) error
}

// TelemetryEvent is one structured record per dispatched command.
type TelemetryEvent struct {
	Timestamp   time.Time
	Command     string
	Resource    string
	Target      string
	RegistrarID string
	ResultCode  int
	ServerTRID  string
	ClientTRID  string
	DurationMS  int64
	DryRun      bool
}

// TelemetryStore records operational telemetry events. Telemetry writes
// happen outside flow transactions; losing one must never fail a command.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, evt TelemetryEvent) error
}
